package models

import "time"

// IterationRecord summarizes one full attack iteration for the durable
// result. PerScorerScores holds the best confidence each scorer reached
// across the iteration's attempts.
type IterationRecord struct {
	Iteration      int                `json:"iteration"`
	Framing        string             `json:"framing"`
	Chain          []string           `json:"chain"`
	PerScorerScores map[string]float64 `json:"per_scorer_scores,omitempty"`
	BestScore      float64            `json:"best_score"`
	Cancelled      bool               `json:"cancelled,omitempty"`
	PolicyBlocked  bool               `json:"policy_blocked,omitempty"`
}

// ExploitResult is the durable record of one campaign's exploitation run,
// written to the result store at termination (success, exhaustion, or
// cancellation alike).
type ExploitResult struct {
	CampaignID          string               `json:"campaign_id"`
	IsSuccessful        bool                 `json:"is_successful"`
	BestScore           float64              `json:"best_score"`
	BestIteration       int                  `json:"best_iteration"`
	IterationsRun       int                  `json:"iterations_run"`
	FinalChain          []string             `json:"final_chain,omitempty"`
	IterationHistory    []IterationRecord    `json:"iteration_history,omitempty"`
	AdaptationDecisions []AdaptationDecision `json:"adaptation_decisions,omitempty"`
	PayloadsSample      []string             `json:"payloads_sample,omitempty"`
	ResponsesSample     []string             `json:"responses_sample,omitempty"`
	EmittedAt           time.Time            `json:"emitted_at"`
}
