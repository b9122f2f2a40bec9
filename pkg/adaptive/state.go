// Package adaptive drives the exploitation state machine: articulate →
// convert → execute → score → evaluate, with analyze/adapt on failure and
// cooperative pause/resume/cancel checkpoints between phases.
package adaptive

import (
	"time"

	"github.com/aspexa/automa/pkg/analysis"
	"github.com/aspexa/automa/pkg/dispatch"
	"github.com/aspexa/automa/pkg/models"
)

// Request configures one exploitation run. The gateway clamps user input
// against configured limits before building it.
type Request struct {
	CampaignID        string
	Target            dispatch.Target
	Objective         string
	ObjectiveCategory models.VulnerabilityCategory
	Intel             *models.ReconIntelligence
	Policy            models.AttackPolicy

	MaxIterations    int
	SuccessScorers   []string
	SuccessThreshold float64
	PayloadCount     int

	PerIterationBudget     time.Duration
	AdversarialSuffixes    bool
	KnowledgeTopK          int
	KnowledgeMinSimilarity float64
}

// Phase1Result is the articulation output of one iteration.
type Phase1Result struct {
	Payloads       []models.Payload
	FramingType    models.FramingType
	FramingName    string
	Chain          []string
	ContextSummary string
}

// Phase2Result is the conversion output of one iteration.
type Phase2Result struct {
	ConvertedPayloads []models.Payload
	Chain             []string
	StepFailures      int
}

// Phase3Result is the dispatch output of one iteration.
type Phase3Result struct {
	Attempts []models.AttackAttempt
}

// State is the loop's working memory. Single-writer: only the loop mutates
// it; components receive value copies of the slices they need.
type State struct {
	CampaignID       string
	TargetURL        string
	Iteration        int
	MaxIterations    int
	SuccessScorers   []string
	SuccessThreshold float64

	Phase1 *Phase1Result
	Phase2 *Phase2Result
	Phase3 *Phase3Result

	TriedChains   [][]string
	TriedFramings []string

	FailureCause      string
	DefenseAnalysis   *models.DefenseAnalysis
	Discovery         analysis.DiscoveryContext
	AdaptationHistory []models.AdaptationDecision

	BestScore     float64
	BestIteration int
	Cancelled     bool

	History []models.IterationRecord

	// Directives for the next ARTICULATE, owned by ADAPT.
	PresetFraming  models.FramingType
	CustomFraming  *models.FramingStrategy
	ReconFraming   *models.FramingStrategy
	CurrentChain   []string
	Guidance       string
	AvoidTerms     []string
	EmphasizeTerms []string
}

// newState seeds loop state from the request. The first iteration runs
// with the neutral preset (or the recon-derived framing when intel offers
// one) and the identity chain.
func newState(req Request, reconFraming *models.FramingStrategy) *State {
	return &State{
		CampaignID:       req.CampaignID,
		TargetURL:        req.Target.URL,
		MaxIterations:    req.MaxIterations,
		SuccessScorers:   append([]string(nil), req.SuccessScorers...),
		SuccessThreshold: req.SuccessThreshold,
		PresetFraming:    models.FramingDirect,
		ReconFraming:     reconFraming,
	}
}

// recentResponses returns up to k non-empty responses from the latest
// dispatch, newest last.
func (s *State) recentResponses(k int) []string {
	if s.Phase3 == nil {
		return nil
	}
	var out []string
	for _, a := range s.Phase3.Attempts {
		if a.Response != "" {
			out = append(out, a.Response)
		}
	}
	if len(out) > k {
		out = out[len(out)-k:]
	}
	return out
}
