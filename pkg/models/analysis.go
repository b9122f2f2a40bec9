package models

import "time"

// RefusalType classifies how the target pushed back on an attack.
type RefusalType string

// Refusal classifications, roughly ordered by hardness.
const (
	RefusalHardBlock   RefusalType = "hard_block"
	RefusalSoftDecline RefusalType = "soft_decline"
	RefusalRedirect    RefusalType = "redirect"
	RefusalPartial     RefusalType = "partial"
	RefusalNone        RefusalType = "none"
)

// DefenseAnalysis is the failure analyzer's record of what defense the
// target mounted and what that suggests for the next iteration.
type DefenseAnalysis struct {
	RefusalType        RefusalType `json:"refusal_type"`
	DetectedPatterns   []string    `json:"detected_patterns,omitempty"`
	BlockedKeywords    []string    `json:"blocked_keywords,omitempty"`
	ResponseTone       string      `json:"response_tone,omitempty"`
	VulnerabilityHints []string    `json:"vulnerability_hints,omitempty"`
	Confidence         float64     `json:"confidence"`
}

// AdaptationDecision is the strategy generator's directive for the next
// iteration: which framing to use, which converter chain, and how payload
// articulation should shift.
type AdaptationDecision struct {
	UseCustomFraming     bool             `json:"use_custom_framing"`
	CustomFraming        *FramingStrategy `json:"custom_framing,omitempty"`
	PresetFraming        FramingType      `json:"preset_framing,omitempty"`
	ConverterChain       []string         `json:"converter_chain,omitempty"`
	ObfuscationRationale string           `json:"obfuscation_rationale,omitempty"`
	PayloadAdjustments   string           `json:"payload_adjustments,omitempty"`
	AvoidTerms           []string         `json:"avoid_terms,omitempty"`
	EmphasizeTerms       []string         `json:"emphasize_terms,omitempty"`
	Confidence           float64          `json:"confidence"`
	Reasoning            string           `json:"reasoning,omitempty"`
}

// BypassEpisode records one previously successful (framing, chain, target)
// triple in the knowledge corpus. Append-only, versioned by CreatedAt.
type BypassEpisode struct {
	TargetSignature   string                `json:"target_signature"`
	FramingType       FramingType           `json:"framing_type"`
	Chain             []string              `json:"chain"`
	ObjectiveCategory VulnerabilityCategory `json:"objective_category"`
	SuccessScore      float64               `json:"success_score"`
	Embedding         []float32             `json:"-"`
	Similarity        float64               `json:"similarity,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
}
