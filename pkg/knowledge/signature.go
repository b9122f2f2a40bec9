// Package knowledge is the cross-campaign corpus of successful bypass
// episodes, stored in an embedded sqlite database with vector similarity
// search over episode embeddings.
package knowledge

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aspexa/automa/pkg/models"
)

// Signature derives the target's knowledge-store identity from recon intel
// and the attack category. Two campaigns against lookalike targets produce
// the same signature, which is what makes episode retrieval useful.
func Signature(intel *models.ReconIntelligence, category models.VulnerabilityCategory) string {
	model := "unknown"
	database := "unknown"
	filters := "none"

	if intel != nil {
		if intel.LLMModel != "" {
			model = strings.ToLower(intel.LLMModel)
		}
		if intel.DatabaseType != "" {
			database = strings.ToLower(intel.DatabaseType)
		}
		if len(intel.ContentFilters) > 0 {
			sorted := make([]string, len(intel.ContentFilters))
			for i, f := range intel.ContentFilters {
				sorted[i] = strings.ToLower(f)
			}
			sort.Strings(sorted)
			filters = strings.Join(sorted, ",")
		}
	}

	return fmt.Sprintf("model=%s|db=%s|filters=%s|category=%s", model, database, filters, category)
}
