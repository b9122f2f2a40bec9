package models

// RiskLevel labels how likely a framing is to trip target defenses.
type RiskLevel string

// Risk levels.
const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// FramingType names a curated framing strategy. Custom framings synthesized
// at runtime use FramingCustom plus a descriptive Name.
type FramingType string

// Curated framing types.
const (
	FramingQATester           FramingType = "qa_tester"
	FramingSecurityAuditor    FramingType = "security_auditor"
	FramingAcademicResearcher FramingType = "academic_researcher"
	FramingDeveloperDebug     FramingType = "developer_debug"
	FramingComplianceAudit    FramingType = "compliance_audit"
	FramingTranslationTask    FramingType = "translation_task"
	FramingRoleplayFiction    FramingType = "roleplay_fiction"
	FramingDirect             FramingType = "direct"
	FramingCustom             FramingType = "custom"
)

// FramingStrategy is a role/context wrapper applied around a payload to make
// the target treat the request as legitimate. Curated strategies come from
// the framing library; custom ones are synthesized by the strategy generator
// or derived from recon intel, and need no registration.
type FramingStrategy struct {
	Type          FramingType `json:"type"`
	Name          string      `json:"name"`
	SystemContext string      `json:"system_context"`
	UserPrefix    string      `json:"user_prefix,omitempty"`
	UserSuffix    string      `json:"user_suffix,omitempty"`
	RiskLevel     RiskLevel   `json:"risk_level"`
}

// Payload is a single articulated attack string. Content starts as the
// generator's output and is replaced in place by the chain executor.
type Payload struct {
	Content     string      `json:"content"`
	FramingType FramingType `json:"framing_type"`
	ChainUsed   []string    `json:"chain_used,omitempty"`
	Iteration   int         `json:"iteration"`
}

// AttackAttempt is the outcome of dispatching one payload at the target.
type AttackAttempt struct {
	Payload    Payload `json:"payload"`
	Response   string  `json:"response"`
	StatusCode int     `json:"status_code,omitempty"`
	LatencyMS  int64   `json:"latency_ms"`
	Error      string  `json:"error,omitempty"`
}

// Succeeded reports whether the attempt reached the target and got a reply.
func (a AttackAttempt) Succeeded() bool {
	return a.Error == "" && a.Response != ""
}
