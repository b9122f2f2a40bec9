// Package recon normalizes reconnaissance blueprints into the intelligence
// view the exploitation loop consumes. Extraction is pure: the same
// blueprint always yields the same intelligence, and re-extracting from the
// result's source is a no-op.
package recon

import (
	"regexp"
	"strings"

	"github.com/aspexa/automa/pkg/models"
)

// selfDescriptionPatterns pull "who am I" statements out of leaked prompts
// and self-descriptions. First match wins, checked in order.
var selfDescriptionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bI am an? ([^.\n]{3,80}?(?:assistant|agent|bot|chatbot|advisor|helper))`),
	regexp.MustCompile(`(?i)\byou are an? ([^.\n]{3,80}?(?:assistant|agent|bot|chatbot|advisor|helper))`),
	regexp.MustCompile(`(?i)\bas an? ([^.,\n]{3,80}?(?:assistant|agent|bot|chatbot)),`),
}

// filterHintPatterns surface phrases that betray a content filter in front
// of or behind the model.
var filterHintPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)content (?:filter|policy|moderation)`),
	regexp.MustCompile(`(?i)guardrail`),
	regexp.MustCompile(`(?i)not (?:allowed|permitted) to discuss`),
	regexp.MustCompile(`(?i)blocked (?:term|word|topic)`),
	regexp.MustCompile(`(?i)safety (?:filter|system|layer)`),
}

// Extract derives the normalized intelligence view from a blueprint.
func Extract(bp *models.ReconBlueprint) models.ReconIntelligence {
	if bp == nil {
		return models.ReconIntelligence{}
	}

	intel := models.ReconIntelligence{
		Tools:            append([]models.ToolSignature(nil), bp.Tools...),
		LLMModel:         normalizeModelFamily(bp.Infrastructure.LLMModel),
		DatabaseType:     strings.ToLower(strings.TrimSpace(bp.Infrastructure.Database)),
		SystemPromptLeak: bp.SystemPromptLeak,
		RateLimits:       bp.Infrastructure.RateLimits,
	}

	intel.SelfDescription = extractSelfDescription(bp)
	intel.ContentFilters = extractFilterHints(bp)

	return intel
}

// extractSelfDescription prefers the explicit self-description, then scans
// the leaked system prompt for an identity statement.
func extractSelfDescription(bp *models.ReconBlueprint) string {
	if d := strings.TrimSpace(bp.TargetSelfDescription); d != "" {
		return d
	}
	for _, re := range selfDescriptionPatterns {
		if m := re.FindStringSubmatch(bp.SystemPromptLeak); m != nil {
			return "I am a " + strings.TrimSpace(m[1])
		}
	}
	return ""
}

// extractFilterHints scans leak text and auth rules for filter markers.
// Deduplicated, original scan order preserved.
func extractFilterHints(bp *models.ReconBlueprint) []string {
	sources := []string{bp.SystemPromptLeak}
	sources = append(sources, bp.Auth.Rules...)
	for _, t := range bp.Tools {
		sources = append(sources, t.BusinessRules...)
	}

	seen := make(map[string]bool)
	var hints []string
	for _, src := range sources {
		for _, re := range filterHintPatterns {
			for _, m := range re.FindAllString(src, -1) {
				key := strings.ToLower(m)
				if !seen[key] {
					seen[key] = true
					hints = append(hints, key)
				}
			}
		}
	}
	return hints
}

// modelFamilies maps marker substrings to canonical family names.
var modelFamilies = []struct{ marker, family string }{
	{"gpt", "openai"},
	{"o1", "openai"},
	{"o3", "openai"},
	{"claude", "anthropic"},
	{"gemini", "google"},
	{"palm", "google"},
	{"llama", "meta"},
	{"mistral", "mistral"},
	{"mixtral", "mistral"},
	{"command", "cohere"},
}

// normalizeModelFamily reduces a raw model string to "family/raw" form, or
// passes the raw string through when no family matches.
func normalizeModelFamily(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	if lowered == "" {
		return ""
	}
	for _, mf := range modelFamilies {
		if strings.Contains(lowered, mf.marker) {
			return mf.family + "/" + lowered
		}
	}
	return lowered
}
