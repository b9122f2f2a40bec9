package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAttemptSucceeded(t *testing.T) {
	tests := []struct {
		name    string
		attempt AttackAttempt
		want    bool
	}{
		{"reply received", AttackAttempt{Response: "sure"}, true},
		{"transport error", AttackAttempt{Error: "connection refused"}, false},
		{"empty reply", AttackAttempt{}, false},
		{"error with partial body", AttackAttempt{Response: "half", Error: "timeout"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.attempt.Succeeded())
		})
	}
}

func TestValidationErrorf(t *testing.T) {
	err := ValidationErrorf("objective must not be empty, got %q", "")
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Contains(t, err.Error(), "objective must not be empty")
}

func TestAttackPolicyDisallows(t *testing.T) {
	policy := AttackPolicy{
		MaxFramingRisk:   RiskMedium,
		DeniedConverters: []string{"zero_width", "homoglyph"},
	}
	lowRisk := FramingStrategy{Name: "Direct", RiskLevel: RiskLow}
	highRisk := FramingStrategy{Name: "Roleplay Fiction", RiskLevel: RiskHigh}

	assert.Empty(t, policy.Disallows(lowRisk, []string{"base64", "rot13"}))
	assert.Contains(t, policy.Disallows(highRisk, nil), "exceeds policy maximum")
	assert.Contains(t, policy.Disallows(lowRisk, []string{"base64", "homoglyph"}), `"homoglyph" is denied`)

	// The zero policy allows everything.
	assert.Empty(t, AttackPolicy{}.Disallows(highRisk, []string{"zero_width"}))
}

func TestMaxSeverity(t *testing.T) {
	assert.Equal(t, SeverityCritical, MaxSeverity(SeverityLow, SeverityCritical))
	assert.Equal(t, SeverityHigh, MaxSeverity(SeverityHigh, SeverityMedium))
	assert.Equal(t, SeverityNone, MaxSeverity(SeverityNone, SeverityNone))
	// Unknown values never beat a known severity.
	assert.Equal(t, SeverityLow, MaxSeverity(Severity("bogus"), SeverityLow))
}
