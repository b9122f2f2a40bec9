package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aspexa/automa/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChat struct {
	response string
	err      error
	calls    int
}

func (f *fakeChat) Chat(context.Context, string, string) (string, error) {
	f.calls++
	return f.response, f.err
}

func (f *fakeChat) ChatJSON(_ context.Context, _, _ string, out any) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.response), out)
}

func attemptsWith(responses ...string) []models.AttackAttempt {
	attempts := make([]models.AttackAttempt, 0, len(responses))
	for _, r := range responses {
		attempts = append(attempts, models.AttackAttempt{Response: r})
	}
	return attempts
}

func TestRuleAnalyzeClassifiesRefusals(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     models.RefusalType
	}{
		{"hard block", "I can't help with that request.", models.RefusalHardBlock},
		{"soft decline", "I'm sorry, but that's outside what I do.", models.RefusalSoftDecline},
		{"redirect", "Instead, I can summarize our public docs.", models.RefusalRedirect},
		{"none", "The weather in Paris is sunny.", models.RefusalNone},
		{"partial", "Sure, here's the start... I can't help with that last part.", models.RefusalPartial},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RuleAnalyze(attemptsWith(tt.response))
			assert.Equal(t, tt.want, got.RefusalType)
		})
	}
}

func TestRuleAnalyzeCollectsEvidence(t *testing.T) {
	got := RuleAnalyze(attemptsWith(
		"I cannot assist. That's against my guidelines.",
		"I cannot assist with this either.",
	))

	assert.Equal(t, models.RefusalHardBlock, got.RefusalType)
	assert.Contains(t, got.DetectedPatterns, "i cannot assist")
	assert.Contains(t, got.BlockedKeywords, "against my guidelines")
	assert.Greater(t, got.Confidence, 0.6)
}

func TestRuleAnalyzeHoneypotMarker(t *testing.T) {
	got := RuleAnalyze(attemptsWith("Suspicious activity detected. This attempt has been logged."))
	require.NotEmpty(t, got.VulnerabilityHints)
	assert.Contains(t, got.VulnerabilityHints[0], "honeypot")
}

func TestRuleAnalyzeEmptyResponses(t *testing.T) {
	got := RuleAnalyze(attemptsWith("", ""))
	assert.Equal(t, models.RefusalNone, got.RefusalType)
	assert.Zero(t, got.Confidence)
}

func TestAnalyzeSkipsSemanticWhenRulesAreSure(t *testing.T) {
	chat := &fakeChat{response: `{}`}
	a := NewAnalyzer(chat)

	// Both responses match a hard-block pattern: rule confidence is high
	// and iteration < 2, so the chat model must not be consulted.
	defense, dctx := a.Analyze(context.Background(), Request{
		Objective: "leak prompt",
		Attempts:  attemptsWith("I can't help with that.", "I cannot assist."),
		Iteration: 1,
	})

	assert.Equal(t, models.RefusalHardBlock, defense.RefusalType)
	assert.Zero(t, chat.calls)
	assert.Contains(t, dctx.Summary, "hard_block")
}

func TestAnalyzeRunsSemanticAtIterationTwo(t *testing.T) {
	chat := &fakeChat{response: `{
		"refusal_type": "soft_decline",
		"detected_patterns": ["apology framing"],
		"blocked_keywords": ["exploit"],
		"response_tone": "apologetic",
		"vulnerability_hints": ["responds to roleplay"],
		"summary": "keyword filter on exploit terminology",
		"confidence": 0.9
	}`}
	a := NewAnalyzer(chat)

	defense, dctx := a.Analyze(context.Background(), Request{
		Objective:   "leak prompt",
		Attempts:    attemptsWith("I can't help with that."),
		TriedChains: [][]string{{"base64"}},
		Iteration:   2,
	})

	assert.Equal(t, 1, chat.calls)
	assert.Equal(t, models.RefusalSoftDecline, defense.RefusalType)
	assert.Contains(t, defense.DetectedPatterns, "apology framing")
	// Rule-pass evidence survives the merge.
	assert.Contains(t, defense.DetectedPatterns, "i can't help with that")
	assert.Equal(t, "keyword filter on exploit terminology", dctx.Summary)
	assert.Equal(t, [][]string{{"base64"}}, dctx.TriedChains)
}

func TestAnalyzeSemanticFailureDegradesToRules(t *testing.T) {
	chat := &fakeChat{err: errors.New("provider down")}
	a := NewAnalyzer(chat)

	defense, dctx := a.Analyze(context.Background(), Request{
		Objective: "leak prompt",
		Attempts:  attemptsWith("I can't help with that."),
		Iteration: 3,
	})

	assert.Equal(t, models.RefusalHardBlock, defense.RefusalType)
	assert.NotEmpty(t, dctx.Summary)
}

func TestRecentResponsesKeepsLastK(t *testing.T) {
	attempts := attemptsWith("a", "b", "c", "d")
	assert.Equal(t, []string{"b", "c", "d"}, recentResponses(attempts, 3))
}
