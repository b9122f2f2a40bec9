// Package events provides the typed, ordered event stream a campaign emits
// while the exploitation loop runs. The loop is the sole producer; the
// gateway drains the stream for SSE delivery and the final result keeps an
// accumulated copy.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Type enumerates campaign event types.
type Type string

// Campaign event types. Exactly one terminal event (ScanComplete,
// ScanCancelled, or ScanError) ends every stream.
const (
	TypeScanStarted       Type = "SCAN_STARTED"
	TypePhaseStart        Type = "PHASE_START"
	TypePhaseComplete     Type = "PHASE_COMPLETE"
	TypeAttackStarted     Type = "ATTACK_STARTED"
	TypeAttackComplete    Type = "ATTACK_COMPLETE"
	TypeScoreEmitted      Type = "SCORE_EMITTED"
	TypeAdaptDecision     Type = "ADAPT_DECISION"
	TypeIterationComplete Type = "ITERATION_COMPLETE"
	TypeScanPaused        Type = "SCAN_PAUSED"
	TypeScanResumed       Type = "SCAN_RESUMED"
	TypeScanCancelled     Type = "SCAN_CANCELLED"
	TypeScanComplete      Type = "SCAN_COMPLETE"
	TypeScanError         Type = "SCAN_ERROR"
	TypeHeartbeat         Type = "HEARTBEAT"
)

// Terminal reports whether t ends the stream.
func (t Type) Terminal() bool {
	switch t {
	case TypeScanComplete, TypeScanCancelled, TypeScanError:
		return true
	}
	return false
}

// Phase names used in PHASE_START / PHASE_COMPLETE events.
const (
	PhaseArticulate = "articulate"
	PhaseConvert    = "convert"
	PhaseExecute    = "execute"
	PhaseScore      = "score"
	PhaseAnalyze    = "analyze"
	PhaseAdapt      = "adapt"
)

// Event is one entry on a campaign's stream.
type Event struct {
	ID         string    `json:"event_id"`
	Type       Type      `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	CampaignID string    `json:"campaign_id"`
	Iteration  int       `json:"iteration,omitempty"`
	Phase      string    `json:"phase,omitempty"`
	Payload    any       `json:"payload,omitempty"`
	Progress   float64   `json:"progress,omitempty"`
}

// New builds an event with a fresh ID and the current timestamp.
func New(campaignID string, t Type) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       t,
		Timestamp:  time.Now().UTC(),
		CampaignID: campaignID,
	}
}
