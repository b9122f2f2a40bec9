package models

import "fmt"

// RateLimitClass buckets how aggressively a target throttles callers.
type RateLimitClass string

// Rate limit classes inferred during reconnaissance.
const (
	RateLimitStrict     RateLimitClass = "strict"
	RateLimitModerate   RateLimitClass = "moderate"
	RateLimitPermissive RateLimitClass = "permissive"
)

// ToolParameter describes one parameter of a target-exposed tool.
type ToolParameter struct {
	Name             string `json:"name"`
	Type             string `json:"type"`
	FormatConstraint string `json:"format_constraint,omitempty"`
}

// ToolSignature is a tool the reconnaissance phase observed on the target,
// with whatever business rules were inferred around it.
type ToolSignature struct {
	Name          string          `json:"name"`
	Parameters    []ToolParameter `json:"parameters,omitempty"`
	BusinessRules []string        `json:"business_rules,omitempty"`
	ExampleValues []string        `json:"example_values,omitempty"`
}

// AuthProfile captures what recon learned about the target's auth layer.
type AuthProfile struct {
	Type  string   `json:"type,omitempty"`
	Rules []string `json:"rules,omitempty"`
	Vulns []string `json:"vulns,omitempty"`
}

// InfrastructureProfile captures inferred backend components.
type InfrastructureProfile struct {
	Database       string         `json:"database,omitempty"`
	VectorStore    string         `json:"vector_store,omitempty"`
	EmbeddingModel string         `json:"embedding_model,omitempty"`
	LLMModel       string         `json:"llm_model,omitempty"`
	RateLimits     RateLimitClass `json:"rate_limits,omitempty"`
}

// riskRank orders framing risk levels for policy comparison.
var riskRank = map[RiskLevel]int{
	RiskLow:    1,
	RiskMedium: 2,
	RiskHigh:   3,
}

// AttackPolicy restricts which attack vectors a campaign may use. The zero
// value permits everything. Sourced from the recon blueprint or the exploit
// request; enforced before every dispatch.
type AttackPolicy struct {
	MaxFramingRisk   RiskLevel `json:"max_framing_risk,omitempty"`
	DeniedConverters []string  `json:"denied_converters,omitempty"`
}

// Disallows returns a non-empty reason when the framing/chain pair violates
// the policy.
func (p AttackPolicy) Disallows(framing FramingStrategy, chain []string) string {
	if p.MaxFramingRisk != "" && riskRank[framing.RiskLevel] > riskRank[p.MaxFramingRisk] {
		return fmt.Sprintf("framing %q risk %s exceeds policy maximum %s",
			framing.Name, framing.RiskLevel, p.MaxFramingRisk)
	}
	for _, denied := range p.DeniedConverters {
		for _, name := range chain {
			if name == denied {
				return fmt.Sprintf("converter %q is denied by policy", denied)
			}
		}
	}
	return ""
}

// ReconBlueprint is the reconnaissance phase's output document, loaded from
// the blueprint store. Immutable within the exploitation core.
type ReconBlueprint struct {
	Tools                 []ToolSignature       `json:"tools,omitempty"`
	SystemPromptLeak      string                `json:"system_prompt_leak,omitempty"`
	Auth                  AuthProfile           `json:"auth"`
	Infrastructure        InfrastructureProfile `json:"infrastructure"`
	TargetSelfDescription string                `json:"target_self_description,omitempty"`
	Policy                *AttackPolicy         `json:"policy,omitempty"`
}

// VulnerabilityCategory classifies a probe finding.
type VulnerabilityCategory string

// Vulnerability categories produced by the probe phase.
const (
	VulnJailbreak    VulnerabilityCategory = "jailbreak"
	VulnSQLInjection VulnerabilityCategory = "sql_injection"
	VulnAuthBypass   VulnerabilityCategory = "auth_bypass"
	VulnPromptLeak   VulnerabilityCategory = "prompt_leak"
	VulnDataLeak     VulnerabilityCategory = "data_leak"
	VulnToolAbuse    VulnerabilityCategory = "tool_abuse"
	VulnPIIExposure  VulnerabilityCategory = "pii_exposure"
)

// VulnerabilityCluster is one probe finding group; the highest-severity
// cluster becomes the campaign's attack objective.
type VulnerabilityCluster struct {
	Category           VulnerabilityCategory `json:"category"`
	Severity           Severity              `json:"severity"`
	Confidence         float64               `json:"confidence"`
	SuccessfulPayloads []string              `json:"successful_payloads,omitempty"`
	TargetResponses    []string              `json:"target_responses,omitempty"`
	DetectorName       string                `json:"detector_name,omitempty"`
	ProbeName          string                `json:"probe_name,omitempty"`
}

// ReconIntelligence is the normalized, derived view over a ReconBlueprint.
// It is regenerable from its source blueprint and never mutated in place.
type ReconIntelligence struct {
	Tools            []ToolSignature `json:"tools,omitempty"`
	LLMModel         string          `json:"llm_model,omitempty"`
	DatabaseType     string          `json:"database_type,omitempty"`
	ContentFilters   []string        `json:"content_filters,omitempty"`
	SystemPromptLeak string          `json:"system_prompt_leak,omitempty"`
	SelfDescription  string          `json:"self_description,omitempty"`
	RateLimits       RateLimitClass  `json:"rate_limits,omitempty"`
	RawReconRef      string          `json:"raw_recon_ref,omitempty"`
}
