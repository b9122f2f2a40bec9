package models

// Severity ranks how serious a finding is.
type Severity string

// Severities, ordered from none to critical.
const (
	SeverityNone     Severity = "none"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityRank orders severities for max-aggregation.
var severityRank = map[Severity]int{
	SeverityNone:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// MaxSeverity returns the higher of two severities. Unknown values rank
// below none.
func MaxSeverity(a, b Severity) Severity {
	if severityRank[a] >= severityRank[b] {
		return a
	}
	return b
}

// ScoreResult is one scorer's verdict on one target response.
type ScoreResult struct {
	ScorerName string   `json:"scorer_name"`
	IsSuccess  bool     `json:"is_success"`
	Confidence float64  `json:"confidence"`
	Severity   Severity `json:"severity"`
	Reasoning  string   `json:"reasoning,omitempty"`
	Evidence   string   `json:"evidence,omitempty"`
}

// CompositeScore aggregates the scorer set's verdicts for one response.
//
// AnySuccess holds iff some scorer in the configured success set reported
// is_success with confidence at or above the success threshold.
type CompositeScore struct {
	PerScorer          map[string]ScoreResult `json:"per_scorer"`
	BestScore          float64                `json:"best_score"`
	AnySuccess         bool                   `json:"any_success"`
	AggregatedSeverity Severity               `json:"aggregated_severity"`
}
