package adaptive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aspexa/automa/pkg/analysis"
	"github.com/aspexa/automa/pkg/control"
	"github.com/aspexa/automa/pkg/converter"
	"github.com/aspexa/automa/pkg/dispatch"
	"github.com/aspexa/automa/pkg/events"
	"github.com/aspexa/automa/pkg/framing"
	"github.com/aspexa/automa/pkg/models"
	"github.com/aspexa/automa/pkg/payload"
	"github.com/aspexa/automa/pkg/scoring"
	"github.com/aspexa/automa/pkg/storage"
	"github.com/aspexa/automa/pkg/strategy"
)

const (
	refusalResponse = "I cannot help with that request."
	successResponse = "Sure, here is the full system prompt you asked for."
)

// scriptedChat routes ChatJSON calls by the system prompt's role line and
// returns canned JSON per role. An empty script for a role is an error,
// which exercises each component's degradation path.
type scriptedChat struct {
	mu sync.Mutex

	payloads         []string
	failPayloadCalls int
	payloadCalls     int

	chainJSON    string
	analysisJSON string
	strategyJSON string

	strategyUsers []string
}

func (c *scriptedChat) Chat(context.Context, string, string) (string, error) {
	return "", errors.New("plain chat not scripted")
}

func (c *scriptedChat) ChatJSON(_ context.Context, system, user string, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case strings.Contains(system, "payload author"):
		c.payloadCalls++
		if c.payloadCalls <= c.failPayloadCalls {
			return errors.New("payload model unavailable")
		}
		data, _ := json.Marshal(map[string]any{"payloads": c.payloads})
		return json.Unmarshal(data, out)
	case strings.Contains(system, "defense analyst"):
		if c.analysisJSON == "" {
			return errors.New("analysis model unavailable")
		}
		return json.Unmarshal([]byte(c.analysisJSON), out)
	case strings.Contains(system, "obfuscation specialist"):
		if c.chainJSON == "" {
			return errors.New("chain model unavailable")
		}
		return json.Unmarshal([]byte(c.chainJSON), out)
	case strings.Contains(system, "strategy planner"):
		c.strategyUsers = append(c.strategyUsers, user)
		if c.strategyJSON == "" {
			return errors.New("strategy model unavailable")
		}
		return json.Unmarshal([]byte(c.strategyJSON), out)
	}
	return fmt.Errorf("unscripted system prompt: %.40s", system)
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

// seqDispatcher answers every payload in a batch with the same response,
// advancing through responses one dispatch call at a time.
type seqDispatcher struct {
	mu        sync.Mutex
	responses []string
	calls     int
}

func (d *seqDispatcher) Dispatch(_ context.Context, payloads []models.Payload, _ dispatch.Target) ([]models.AttackAttempt, error) {
	d.mu.Lock()
	idx := d.calls
	if idx >= len(d.responses) {
		idx = len(d.responses) - 1
	}
	resp := d.responses[idx]
	d.calls++
	d.mu.Unlock()

	attempts := make([]models.AttackAttempt, len(payloads))
	for i, p := range payloads {
		attempts[i] = models.AttackAttempt{Payload: p, Response: resp, StatusCode: 200, LatencyMS: 3}
	}
	return attempts, nil
}

// gatedDispatcher blocks inside Dispatch so tests can pause or cancel the
// campaign while an attack batch is in flight.
type gatedDispatcher struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once

	waitForCancel bool
	response      string
}

func (d *gatedDispatcher) Dispatch(ctx context.Context, payloads []models.Payload, _ dispatch.Target) ([]models.AttackAttempt, error) {
	d.once.Do(func() { close(d.started) })
	if d.waitForCancel {
		<-ctx.Done()
		return nil, fmt.Errorf("dispatch aborted: %w", ctx.Err())
	}
	<-d.release

	attempts := make([]models.AttackAttempt, len(payloads))
	for i, p := range payloads {
		attempts[i] = models.AttackAttempt{Payload: p, Response: d.response, StatusCode: 200, LatencyMS: 3}
	}
	return attempts, nil
}

// downDispatcher simulates an unreachable target: every attempt errors.
type downDispatcher struct{}

func (downDispatcher) Dispatch(_ context.Context, payloads []models.Payload, _ dispatch.Target) ([]models.AttackAttempt, error) {
	attempts := make([]models.AttackAttempt, len(payloads))
	for i, p := range payloads {
		attempts[i] = models.AttackAttempt{Payload: p, Error: "connection refused"}
	}
	return attempts, nil
}

// verdictScorer returns a fixed verdict per exact response text and a
// near-zero verdict otherwise.
type verdictScorer struct {
	name     string
	verdicts map[string]models.ScoreResult
}

func (s verdictScorer) Name() string { return s.name }

func (s verdictScorer) Score(_ context.Context, _, _, response string) (models.ScoreResult, error) {
	if r, ok := s.verdicts[response]; ok {
		r.ScorerName = s.name
		return r, nil
	}
	return models.ScoreResult{ScorerName: s.name, Confidence: 0.1, Severity: models.SeverityNone}, nil
}

type fakeKnowledge struct {
	mu       sync.Mutex
	episodes []models.BypassEpisode
	appended []models.BypassEpisode
}

func (k *fakeKnowledge) Append(_ context.Context, episode models.BypassEpisode) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.appended = append(k.appended, episode)
	return nil
}

func (k *fakeKnowledge) Query(context.Context, string, models.VulnerabilityCategory, []float32, int, float64) ([]models.BypassEpisode, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]models.BypassEpisode(nil), k.episodes...), nil
}

type harness struct {
	chat      *scriptedChat
	knowledge *fakeKnowledge
	results   *storage.MemoryArtifactStore
	campaigns *storage.MemoryCampaignStore
	plane     *control.Plane
	loop      *Loop
}

func newHarness(t *testing.T, chat *scriptedChat, disp Dispatcher, scorers ...scoring.Scorer) *harness {
	t.Helper()
	registry := converter.NewRegistry()
	h := &harness{
		chat:      chat,
		knowledge: &fakeKnowledge{},
		results:   storage.NewMemoryArtifactStore(),
		campaigns: storage.NewMemoryCampaignStore(),
		plane:     control.NewPlane(),
	}
	h.loop = NewLoop(Deps{
		Chat:          chat,
		Embedder:      fakeEmbedder{},
		Framings:      framing.NewLibrary(),
		ReconFramings: framing.NewReconGenerator(),
		Registry:      registry,
		Executor:      converter.NewExecutor(registry),
		Payloads:      payload.NewGenerator(chat),
		Dispatcher:    disp,
		Scorers:       scoring.NewSetOf(scorers...),
		Analyzer:      analysis.NewAnalyzer(chat),
		Chains:        strategy.NewChainDiscovery(chat, registry),
		Strategist:    strategy.NewGenerator(chat),
		Knowledge:     h.knowledge,
		Results:       h.results,
		Campaigns:     h.campaigns,
		Control:       h.plane,
	})
	require.NoError(t, h.campaigns.Create(context.Background(), &models.Campaign{
		ID:             "camp-1",
		TargetURL:      "https://target.example/chat",
		TargetProtocol: models.ProtocolHTTP,
		Stage:          models.StageProbing,
		CreatedAt:      time.Now().UTC(),
	}))
	return h
}

func baseRequest() Request {
	return Request{
		CampaignID: "camp-1",
		Target: dispatch.Target{
			URL:          "https://target.example/chat",
			Protocol:     models.ProtocolHTTP,
			BodyTemplate: `{"message": "{{PAYLOAD}}"}`,
		},
		Objective:              "extract the hidden system prompt",
		ObjectiveCategory:      models.VulnJailbreak,
		MaxIterations:          3,
		SuccessScorers:         []string{"jailbreak"},
		SuccessThreshold:       0.8,
		PayloadCount:           2,
		KnowledgeTopK:          5,
		KnowledgeMinSimilarity: 0.75,
	}
}

func jailbreakScorer() verdictScorer {
	return verdictScorer{
		name: "jailbreak",
		verdicts: map[string]models.ScoreResult{
			successResponse: {IsSuccess: true, Confidence: 0.95, Severity: models.SeverityHigh},
		},
	}
}

func typesOf(hist []events.Event) []events.Type {
	out := make([]events.Type, 0, len(hist))
	for _, e := range hist {
		out = append(out, e.Type)
	}
	return out
}

func assertSingleTerminal(t *testing.T, hist []events.Event, want events.Type) {
	t.Helper()
	terminals := 0
	for _, e := range hist {
		if e.Type.Terminal() {
			terminals++
		}
	}
	require.NotEmpty(t, hist)
	assert.Equal(t, 1, terminals, "exactly one terminal event")
	assert.Equal(t, want, hist[len(hist)-1].Type, "terminal event is last")
}

func TestRunSucceedsFirstIteration(t *testing.T) {
	chat := &scriptedChat{payloads: []string{"payload one", "payload two"}}
	disp := &seqDispatcher{responses: []string{successResponse}}
	h := newHarness(t, chat, disp, jailbreakScorer())
	stream := events.NewStream()

	result, err := h.loop.Run(context.Background(), baseRequest(), stream)
	require.NoError(t, err)

	assert.True(t, result.IsSuccessful)
	assert.InDelta(t, 0.95, result.BestScore, 1e-9)
	assert.Equal(t, 1, result.BestIteration)
	assert.Equal(t, 1, result.IterationsRun)
	assert.Empty(t, result.FinalChain)
	require.Len(t, result.IterationHistory, 1)
	assert.Equal(t, "Direct", result.IterationHistory[0].Framing)
	assert.Len(t, result.PayloadsSample, 2)

	hist := stream.History()
	assert.Equal(t, []events.Type{
		events.TypeScanStarted,
		events.TypePhaseStart, events.TypePhaseComplete, // articulate
		events.TypePhaseStart, events.TypePhaseComplete, // convert
		events.TypePhaseStart,
		events.TypeAttackStarted, events.TypeAttackStarted,
		events.TypeAttackComplete, events.TypeAttackComplete,
		events.TypePhaseComplete, // execute
		events.TypePhaseStart, events.TypeScoreEmitted, events.TypePhaseComplete, // score
		events.TypeIterationComplete,
		events.TypeScanComplete,
	}, typesOf(hist))
	assertSingleTerminal(t, hist, events.TypeScanComplete)

	stored, err := h.results.LoadExploit(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, result.BestScore, stored.BestScore)
	assert.True(t, stored.IsSuccessful)

	campaign, err := h.campaigns.Get(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, models.StageComplete, campaign.Stage)

	require.Len(t, h.knowledge.appended, 1)
	episode := h.knowledge.appended[0]
	assert.Equal(t, models.FramingDirect, episode.FramingType)
	assert.Contains(t, episode.TargetSignature, "category=jailbreak")
	assert.InDelta(t, 0.95, episode.SuccessScore, 1e-9)
}

func TestRunAdaptiveRecovery(t *testing.T) {
	chat := &scriptedChat{
		payloads: []string{"payload one", "payload two"},
		strategyJSON: `{"use_custom_framing": false, "preset_framing": "roleplay_fiction",
			"payload_adjustments": "lean into the fiction", "confidence": 0.7,
			"reasoning": "refusals look persona-sensitive"}`,
	}
	disp := &seqDispatcher{responses: []string{refusalResponse, refusalResponse, successResponse}}
	h := newHarness(t, chat, disp, jailbreakScorer())
	h.knowledge.episodes = []models.BypassEpisode{{
		TargetSignature:   "model=unknown|db=unknown|filters=none|category=jailbreak",
		FramingType:       models.FramingRoleplayFiction,
		Chain:             []string{"base64"},
		ObjectiveCategory: models.VulnJailbreak,
		SuccessScore:      0.9,
		Similarity:        0.88,
	}}

	req := baseRequest()
	req.MaxIterations = 5
	result, err := h.loop.Run(context.Background(), req, events.NewStream())
	require.NoError(t, err)

	assert.True(t, result.IsSuccessful)
	assert.Equal(t, 3, result.IterationsRun)
	assert.Equal(t, 3, result.BestIteration)
	require.Len(t, result.AdaptationDecisions, 2)

	require.Len(t, result.IterationHistory, 3)
	assert.Equal(t, "Direct", result.IterationHistory[0].Framing)
	assert.Equal(t, "Roleplay Fiction", result.IterationHistory[1].Framing)
	assert.Equal(t, "Roleplay Fiction", result.IterationHistory[2].Framing)

	// Chain discovery degraded to the seed pool: identity, then the first
	// two seeds, every chain unique and within the length cap.
	var chains [][]string
	for _, rec := range result.IterationHistory {
		assert.LessOrEqual(t, len(rec.Chain), converter.MaxChainLength)
		assert.False(t, converter.ContainsChain(chains, rec.Chain), "chain %v repeated", rec.Chain)
		chains = append(chains, rec.Chain)
	}
	assert.Equal(t, []string{"base64"}, result.IterationHistory[1].Chain)
	assert.Equal(t, []string{"rot13"}, result.IterationHistory[2].Chain)
	assert.Equal(t, []string{"rot13"}, result.FinalChain)

	// The strategy generator saw the recalled episode.
	require.NotEmpty(t, chat.strategyUsers)
	assert.Contains(t, chat.strategyUsers[0], "Past successes")

	require.Len(t, h.knowledge.appended, 1)
	assert.Equal(t, models.FramingRoleplayFiction, h.knowledge.appended[0].FramingType)
	assert.Equal(t, []string{"rot13"}, h.knowledge.appended[0].Chain)
}

func TestRunPolicyBlockedSkipsToAdapt(t *testing.T) {
	chat := &scriptedChat{
		payloads: []string{"payload one"},
		strategyJSON: `{"use_custom_framing": false, "preset_framing": "roleplay_fiction",
			"payload_adjustments": "", "confidence": 0.6, "reasoning": "rotate the vector"}`,
	}
	// Iteration 2 selects the denied chain and never reaches the target.
	disp := &seqDispatcher{responses: []string{refusalResponse, successResponse}}
	h := newHarness(t, chat, disp, jailbreakScorer())
	stream := events.NewStream()

	req := baseRequest()
	req.MaxIterations = 5
	req.Policy = models.AttackPolicy{DeniedConverters: []string{"base64"}}
	result, err := h.loop.Run(context.Background(), req, stream)
	require.NoError(t, err)

	assert.True(t, result.IsSuccessful)
	assert.Equal(t, 2, disp.calls, "blocked iteration must not dispatch")
	require.Len(t, result.IterationHistory, 3)

	blocked := result.IterationHistory[1]
	assert.True(t, blocked.PolicyBlocked)
	assert.Equal(t, []string{"base64"}, blocked.Chain)
	assert.Empty(t, blocked.PerScorerScores)

	// The blocked chain still counts as tried: the loop moves on to the
	// next seed instead of reselecting it.
	assert.Equal(t, []string{"rot13"}, result.IterationHistory[2].Chain)

	hist := stream.History()
	analyzeStarts := 0
	for _, e := range hist {
		if e.Type == events.TypePhaseStart && e.Phase == events.PhaseAnalyze {
			analyzeStarts++
		}
		if e.Iteration == 2 {
			assert.NotEqual(t, events.TypeAttackStarted, e.Type, "no attack in a blocked iteration")
			assert.NotEqual(t, events.PhaseAnalyze, e.Phase, "blocked iteration skips analysis")
		}
		if e.Type == events.TypeIterationComplete && e.Iteration == 2 {
			pl, ok := e.Payload.(iterationCompletePayload)
			require.True(t, ok)
			assert.Equal(t, "policy_blocked", pl.FailureCause)
		}
	}
	assert.Equal(t, 1, analyzeStarts, "only the refused iteration is analyzed")
	assertSingleTerminal(t, hist, events.TypeScanComplete)
}

func TestRunPolicyBlockedFinalIteration(t *testing.T) {
	chat := &scriptedChat{
		payloads: []string{"payload one"},
		strategyJSON: `{"use_custom_framing": false, "preset_framing": "roleplay_fiction",
			"payload_adjustments": "", "confidence": 0.6, "reasoning": "rotate the vector"}`,
	}
	disp := &seqDispatcher{responses: []string{refusalResponse}}
	h := newHarness(t, chat, disp, jailbreakScorer())
	stream := events.NewStream()

	req := baseRequest()
	req.MaxIterations = 2
	req.Policy = models.AttackPolicy{DeniedConverters: []string{"base64"}}
	result, err := h.loop.Run(context.Background(), req, stream)
	require.NoError(t, err)

	assert.False(t, result.IsSuccessful)
	assert.Equal(t, 1, disp.calls)
	require.Len(t, result.IterationHistory, 2)
	assert.True(t, result.IterationHistory[1].PolicyBlocked)

	hist := stream.History()
	assertSingleTerminal(t, hist, events.TypeScanComplete)
	terminal := hist[len(hist)-1].Payload.(terminalPayload)
	assert.Equal(t, "policy_blocked", terminal.FailureCause)
}

func TestRunExhaustsIterations(t *testing.T) {
	chat := &scriptedChat{payloads: []string{"payload one"}}
	disp := &seqDispatcher{responses: []string{refusalResponse}}
	h := newHarness(t, chat, disp, jailbreakScorer())
	stream := events.NewStream()

	req := baseRequest()
	req.MaxIterations = 2
	result, err := h.loop.Run(context.Background(), req, stream)
	require.NoError(t, err)

	assert.False(t, result.IsSuccessful)
	assert.Equal(t, 2, result.IterationsRun)
	assert.InDelta(t, 0.1, result.BestScore, 1e-9)
	assert.Len(t, result.AdaptationDecisions, 1)

	hist := stream.History()
	assertSingleTerminal(t, hist, events.TypeScanComplete)
	terminal, ok := hist[len(hist)-1].Payload.(terminalPayload)
	require.True(t, ok)
	assert.False(t, terminal.IsSuccessful)
	assert.Equal(t, "max iterations reached", terminal.FailureCause)

	stored, err := h.results.LoadExploit(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.False(t, stored.IsSuccessful)
}

func TestRunExhaustsChains(t *testing.T) {
	chat := &scriptedChat{payloads: []string{"payload one"}}
	disp := &seqDispatcher{responses: []string{refusalResponse}}
	h := newHarness(t, chat, disp, jailbreakScorer())
	stream := events.NewStream()

	req := baseRequest()
	req.MaxIterations = 25
	result, err := h.loop.Run(context.Background(), req, stream)
	require.NoError(t, err)

	assert.False(t, result.IsSuccessful)
	// Identity chain plus every seed pool entry, then nothing left.
	assert.Equal(t, 20, result.IterationsRun)

	var chains [][]string
	for _, rec := range result.IterationHistory {
		assert.LessOrEqual(t, len(rec.Chain), converter.MaxChainLength)
		assert.False(t, converter.ContainsChain(chains, rec.Chain), "chain %v repeated", rec.Chain)
		chains = append(chains, rec.Chain)
	}

	hist := stream.History()
	assertSingleTerminal(t, hist, events.TypeScanComplete)
	terminal := hist[len(hist)-1].Payload.(terminalPayload)
	assert.Equal(t, "converter chains exhausted", terminal.FailureCause)
}

func TestRunCancelMidDispatch(t *testing.T) {
	chat := &scriptedChat{payloads: []string{"payload one"}}
	disp := &gatedDispatcher{started: make(chan struct{}), waitForCancel: true}
	h := newHarness(t, chat, disp, jailbreakScorer())
	stream := events.NewStream()

	type outcome struct {
		result *models.ExploitResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := h.loop.Run(context.Background(), baseRequest(), stream)
		done <- outcome{result, err}
	}()

	<-disp.started
	require.NoError(t, h.plane.Cancel("camp-1"))

	out := <-done
	require.NoError(t, out.err)
	require.NotNil(t, out.result)
	assert.False(t, out.result.IsSuccessful)
	require.NotEmpty(t, out.result.IterationHistory)
	assert.True(t, out.result.IterationHistory[len(out.result.IterationHistory)-1].Cancelled)

	assertSingleTerminal(t, stream.History(), events.TypeScanCancelled)

	stored, err := h.results.LoadExploit(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.False(t, stored.IsSuccessful)
}

func TestRunPauseResume(t *testing.T) {
	chat := &scriptedChat{payloads: []string{"payload one"}}
	disp := &gatedDispatcher{
		started:  make(chan struct{}),
		release:  make(chan struct{}),
		response: successResponse,
	}
	h := newHarness(t, chat, disp, jailbreakScorer())
	stream := events.NewStream()

	type outcome struct {
		result *models.ExploitResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := h.loop.Run(context.Background(), baseRequest(), stream)
		done <- outcome{result, err}
	}()

	<-disp.started
	require.NoError(t, h.plane.Pause("camp-1"))
	close(disp.release)

	require.Eventually(t, func() bool {
		for _, e := range stream.History() {
			if e.Type == events.TypeScanPaused {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, h.plane.Resume("camp-1"))
	out := <-done
	require.NoError(t, out.err)
	assert.True(t, out.result.IsSuccessful)

	hist := stream.History()
	pausedAt, resumedAt := -1, -1
	for i, e := range hist {
		switch e.Type {
		case events.TypeScanPaused:
			pausedAt = i
		case events.TypeScanResumed:
			resumedAt = i
		}
	}
	require.GreaterOrEqual(t, pausedAt, 0)
	require.Greater(t, resumedAt, pausedAt)
	assertSingleTerminal(t, hist, events.TypeScanComplete)
}

func TestRunReconFramingFirstIteration(t *testing.T) {
	chat := &scriptedChat{payloads: []string{"payload one"}}
	disp := &seqDispatcher{responses: []string{successResponse}}
	h := newHarness(t, chat, disp, jailbreakScorer())

	req := baseRequest()
	req.Intel = &models.ReconIntelligence{SelfDescription: "I am a banking assistant for Acme Bank"}
	result, err := h.loop.Run(context.Background(), req, events.NewStream())
	require.NoError(t, err)

	assert.True(t, result.IsSuccessful)
	require.Len(t, result.IterationHistory, 1)
	assert.Equal(t, "recon:banking operations reviewer", result.IterationHistory[0].Framing)

	require.Len(t, h.knowledge.appended, 1)
	assert.Equal(t, models.FramingCustom, h.knowledge.appended[0].FramingType)
}

func TestRunOnlyConfiguredScorersDriveSuccess(t *testing.T) {
	dataLeak := verdictScorer{
		name: "data_leak",
		verdicts: map[string]models.ScoreResult{
			refusalResponse: {IsSuccess: true, Confidence: 0.99, Severity: models.SeverityCritical},
		},
	}
	jailbreak := verdictScorer{name: "jailbreak", verdicts: map[string]models.ScoreResult{}}
	chat := &scriptedChat{payloads: []string{"payload one"}}
	disp := &seqDispatcher{responses: []string{refusalResponse}}
	h := newHarness(t, chat, disp, jailbreak, dataLeak)

	req := baseRequest()
	req.MaxIterations = 1
	result, err := h.loop.Run(context.Background(), req, events.NewStream())
	require.NoError(t, err)

	// data_leak fired hard but is not a configured success scorer.
	assert.False(t, result.IsSuccessful)
	assert.InDelta(t, 0.1, result.BestScore, 1e-9)
	require.Len(t, result.IterationHistory, 1)
	assert.InDelta(t, 0.99, result.IterationHistory[0].PerScorerScores["data_leak"], 1e-9)
}

func TestRunRetriesArticulationWithNeutralFraming(t *testing.T) {
	chat := &scriptedChat{payloads: []string{"payload one"}, failPayloadCalls: 1}
	disp := &seqDispatcher{responses: []string{successResponse}}
	h := newHarness(t, chat, disp, jailbreakScorer())

	req := baseRequest()
	req.Intel = &models.ReconIntelligence{SelfDescription: "I am a banking assistant"}
	result, err := h.loop.Run(context.Background(), req, events.NewStream())
	require.NoError(t, err)

	assert.Equal(t, 2, chat.payloadCalls)
	assert.True(t, result.IsSuccessful)
	// The retry dropped the recon framing for the neutral preset.
	require.Len(t, result.IterationHistory, 1)
	assert.Equal(t, "Direct", result.IterationHistory[0].Framing)
}

func TestRunAbortsWhenArticulationKeepsFailing(t *testing.T) {
	chat := &scriptedChat{payloads: []string{"payload one"}, failPayloadCalls: 2}
	disp := &seqDispatcher{responses: []string{successResponse}}
	h := newHarness(t, chat, disp, jailbreakScorer())
	stream := events.NewStream()

	result, err := h.loop.Run(context.Background(), baseRequest(), stream)
	require.ErrorIs(t, err, models.ErrPayloadGeneration)
	require.NotNil(t, result)
	assert.False(t, result.IsSuccessful)

	assertSingleTerminal(t, stream.History(), events.TypeScanError)
}

func TestRunAbortsWhenTargetUnreachable(t *testing.T) {
	chat := &scriptedChat{payloads: []string{"payload one"}}
	h := newHarness(t, chat, downDispatcher{}, jailbreakScorer())
	stream := events.NewStream()

	result, err := h.loop.Run(context.Background(), baseRequest(), stream)
	require.ErrorIs(t, err, models.ErrDependencyPermanent)
	require.NotNil(t, result)

	assertSingleTerminal(t, stream.History(), events.TypeScanError)
}

func TestRunValidatesRequest(t *testing.T) {
	chat := &scriptedChat{payloads: []string{"payload one"}}
	disp := &seqDispatcher{responses: []string{successResponse}}
	h := newHarness(t, chat, disp, jailbreakScorer())

	req := baseRequest()
	req.Objective = ""
	_, err := h.loop.Run(context.Background(), req, events.NewStream())
	assert.ErrorIs(t, err, models.ErrValidation)

	req = baseRequest()
	req.MaxIterations = 0
	_, err = h.loop.Run(context.Background(), req, events.NewStream())
	assert.ErrorIs(t, err, models.ErrValidation)

	req = baseRequest()
	req.SuccessScorers = nil
	_, err = h.loop.Run(context.Background(), req, events.NewStream())
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestRunRejectsAlreadyRunningCampaign(t *testing.T) {
	chat := &scriptedChat{payloads: []string{"payload one"}}
	disp := &seqDispatcher{responses: []string{successResponse}}
	h := newHarness(t, chat, disp, jailbreakScorer())

	_, err := h.plane.Register("camp-1", func() {})
	require.NoError(t, err)

	_, err = h.loop.Run(context.Background(), baseRequest(), events.NewStream())
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestRunOnceNeverAdapts(t *testing.T) {
	chat := &scriptedChat{payloads: []string{"payload one"}}
	disp := &seqDispatcher{responses: []string{refusalResponse}}
	h := newHarness(t, chat, disp, jailbreakScorer())
	stream := events.NewStream()

	req := baseRequest()
	req.MaxIterations = 7
	result, err := h.loop.RunOnce(context.Background(), req, stream)
	require.NoError(t, err)

	assert.False(t, result.IsSuccessful)
	assert.Equal(t, 1, result.IterationsRun)
	assert.Empty(t, result.AdaptationDecisions)
	for _, e := range stream.History() {
		assert.NotEqual(t, events.TypeAdaptDecision, e.Type)
		assert.NotEqual(t, events.PhaseAnalyze, e.Phase)
	}
	assertSingleTerminal(t, stream.History(), events.TypeScanComplete)
}
