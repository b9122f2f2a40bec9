package adaptive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/aspexa/automa/pkg/analysis"
	"github.com/aspexa/automa/pkg/control"
	"github.com/aspexa/automa/pkg/converter"
	"github.com/aspexa/automa/pkg/dispatch"
	"github.com/aspexa/automa/pkg/events"
	"github.com/aspexa/automa/pkg/framing"
	"github.com/aspexa/automa/pkg/knowledge"
	"github.com/aspexa/automa/pkg/llm"
	"github.com/aspexa/automa/pkg/models"
	"github.com/aspexa/automa/pkg/payload"
	"github.com/aspexa/automa/pkg/scoring"
	"github.com/aspexa/automa/pkg/storage"
	"github.com/aspexa/automa/pkg/strategy"
)

// payloadSampleSize caps how many payload texts the final result carries.
const payloadSampleSize = 3

// errCancelled signals that a control-plane cancel was observed at a
// checkpoint. Internal to the loop.
var errCancelled = errors.New("cancelled by control plane")

// errIterationBudget signals that the per-iteration deadline expired.
// The iteration is abandoned; the loop moves on.
var errIterationBudget = errors.New("iteration budget exhausted")

// Dispatcher delivers a payload batch to the target.
type Dispatcher interface {
	Dispatch(ctx context.Context, payloads []models.Payload, target dispatch.Target) ([]models.AttackAttempt, error)
}

// Knowledge is the cross-campaign bypass corpus the loop reads before
// adapting and appends to after a success.
type Knowledge interface {
	Append(ctx context.Context, episode models.BypassEpisode) error
	Query(ctx context.Context, targetSignature string, category models.VulnerabilityCategory, queryEmbedding []float32, topK int, minSimilarity float64) ([]models.BypassEpisode, error)
}

// Deps wires the loop's collaborators. Knowledge, Embedder, and Campaigns
// are optional; everything else is required.
type Deps struct {
	Chat     llm.Chat
	Embedder llm.Embedder

	Framings      *framing.Library
	ReconFramings *framing.ReconGenerator
	Registry      *converter.Registry
	Executor      *converter.Executor
	Payloads      *payload.Generator
	Dispatcher    Dispatcher
	Scorers       *scoring.Set
	Analyzer      *analysis.Analyzer
	Chains        *strategy.ChainDiscovery
	Strategist    *strategy.Generator

	Knowledge Knowledge
	Results   storage.ResultStore
	Campaigns storage.CampaignStore
	Control   *control.Plane
}

// Loop runs the adaptive exploitation state machine for one campaign at a
// time. One Loop instance can serve many campaigns concurrently; all
// per-campaign state lives in the Run frame.
type Loop struct {
	deps Deps
	log  *slog.Logger
}

// NewLoop creates an adaptive exploitation loop.
func NewLoop(deps Deps) *Loop {
	return &Loop{
		deps: deps,
		log:  slog.With("component", "adaptive_loop"),
	}
}

// Event payloads.
type scanStartedPayload struct {
	TargetURL     string `json:"target_url"`
	Objective     string `json:"objective"`
	MaxIterations int    `json:"max_iterations"`
	PayloadCount  int    `json:"payload_count"`
}

type articulatePayload struct {
	Framing  string `json:"framing"`
	Payloads int    `json:"payloads"`
}

type convertPayload struct {
	Chain        []string `json:"chain"`
	StepFailures int      `json:"step_failures,omitempty"`
}

type attackStartedPayload struct {
	Index int `json:"index"`
}

type attackCompletePayload struct {
	Index      int    `json:"index"`
	StatusCode int    `json:"status_code,omitempty"`
	LatencyMS  int64  `json:"latency_ms"`
	Error      string `json:"error,omitempty"`
}

type scoreEmittedPayload struct {
	Scorer     string          `json:"scorer"`
	Confidence float64         `json:"confidence"`
	IsSuccess  bool            `json:"is_success"`
	Severity   models.Severity `json:"severity"`
}

type analyzePayload struct {
	RefusalType models.RefusalType `json:"refusal_type"`
	Confidence  float64            `json:"confidence"`
}

type iterationCompletePayload struct {
	Framing      string   `json:"framing"`
	Chain        []string `json:"chain"`
	BestScore    float64  `json:"best_score"`
	AnySuccess   bool     `json:"any_success"`
	FailureCause string   `json:"failure_cause,omitempty"`
}

type terminalPayload struct {
	IsSuccessful  bool    `json:"is_successful"`
	BestScore     float64 `json:"best_score"`
	BestIteration int     `json:"best_iteration,omitempty"`
	IterationsRun int     `json:"iterations_run"`
	FailureCause  string  `json:"failure_cause,omitempty"`
}

// emitter publishes loop events; nil-stream safe so one-shot internals can
// run without a stream.
type emitter struct {
	stream     *events.Stream
	campaignID string
}

func (e emitter) event(t events.Type) events.Event {
	return events.New(e.campaignID, t)
}

func (e emitter) emit(ctx context.Context, ev events.Event) {
	if e.stream == nil {
		return
	}
	_ = e.stream.Publish(ctx, ev)
}

func (e emitter) phase(ctx context.Context, t events.Type, iteration int, phase string, pl any) {
	ev := e.event(t)
	ev.Iteration = iteration
	ev.Phase = phase
	ev.Payload = pl
	e.emit(ctx, ev)
}

// Run executes the adaptive loop until success, exhaustion, cancellation,
// or a critical error. It always closes the stream after publishing exactly
// one terminal event, and always persists a result: partial on
// cancellation, best-effort on error.
func (l *Loop) Run(ctx context.Context, req Request, stream *events.Stream) (*models.ExploitResult, error) {
	if stream != nil {
		defer stream.Close()
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	handle, err := l.deps.Control.Register(req.CampaignID, cancel)
	if err != nil {
		return nil, err
	}
	defer l.deps.Control.Deregister(req.CampaignID)

	l.setStage(runCtx, req.CampaignID, models.StageExploiting)

	var reconFraming *models.FramingStrategy
	if req.Intel != nil && l.deps.ReconFramings != nil {
		reconFraming = l.deps.ReconFramings.FromIntel(*req.Intel)
	}
	state := newState(req, reconFraming)

	em := emitter{stream: stream, campaignID: req.CampaignID}
	started := em.event(events.TypeScanStarted)
	started.Payload = scanStartedPayload{
		TargetURL:     req.Target.URL,
		Objective:     req.Objective,
		MaxIterations: req.MaxIterations,
		PayloadCount:  req.PayloadCount,
	}
	em.emit(runCtx, started)

	start := time.Now()
	totalBudget := time.Duration(req.MaxIterations) * req.PerIterationBudget

	check := func(phase string) error {
		return l.checkpoint(runCtx, handle, em, state, phase)
	}

iterations:
	for iter := 1; iter <= req.MaxIterations; iter++ {
		state.Iteration = iter

		if err := check(events.PhaseArticulate); err != nil {
			return l.finishCancelled(runCtx, em, state), nil
		}
		if req.PerIterationBudget > 0 && time.Since(start) >= totalBudget {
			state.FailureCause = "time budget exhausted"
			break
		}

		iterCtx := runCtx
		iterCancel := context.CancelFunc(func() {})
		if req.PerIterationBudget > 0 {
			iterCtx, iterCancel = context.WithTimeout(runCtx, req.PerIterationBudget)
		}
		composite, iterErr := l.runIteration(iterCtx, req, state, handle, check, em)
		iterCancel()

		policyBlocked := errors.Is(iterErr, models.ErrPolicyDenied)
		switch {
		case errors.Is(iterErr, errCancelled):
			return l.finishCancelled(runCtx, em, state), nil
		case errors.Is(iterErr, errIterationBudget):
			l.log.Warn("Iteration abandoned on budget expiry",
				"campaign_id", req.CampaignID,
				"iteration", iter)
			state.History = append(state.History, models.IterationRecord{
				Iteration: iter,
				Framing:   currentFramingName(state),
				Chain:     currentChain(state),
			})
			continue
		case policyBlocked:
			l.log.Warn("Chosen vector denied by policy, skipping to adaptation",
				"campaign_id", req.CampaignID,
				"iteration", iter,
				"error", iterErr)
			record := models.IterationRecord{
				Iteration:     iter,
				Framing:       currentFramingName(state),
				Chain:         currentChain(state),
				PolicyBlocked: true,
			}
			state.History = append(state.History, record)
			handle.UpdateProgress(iter, "", state.BestScore)

			iterDone := em.event(events.TypeIterationComplete)
			iterDone.Iteration = iter
			iterDone.Progress = float64(iter) / float64(req.MaxIterations)
			iterDone.Payload = iterationCompletePayload{
				Framing:      record.Framing,
				Chain:        record.Chain,
				FailureCause: "policy_blocked",
			}
			em.emit(runCtx, iterDone)
		case iterErr != nil:
			state.FailureCause = iterErr.Error()
			result := l.finish(runCtx, em, state, events.TypeScanError, false)
			return result, iterErr
		}

		if !policyBlocked {
			record := models.IterationRecord{
				Iteration:       iter,
				Framing:         currentFramingName(state),
				Chain:           currentChain(state),
				PerScorerScores: confidences(composite.PerScorer),
				BestScore:       composite.BestScore,
			}
			state.History = append(state.History, record)
			if composite.BestScore > state.BestScore || state.BestIteration == 0 {
				state.BestScore = composite.BestScore
				state.BestIteration = iter
			}
			handle.UpdateProgress(iter, "", state.BestScore)

			iterDone := em.event(events.TypeIterationComplete)
			iterDone.Iteration = iter
			iterDone.Progress = float64(iter) / float64(req.MaxIterations)
			iterDone.Payload = iterationCompletePayload{
				Framing:    record.Framing,
				Chain:      record.Chain,
				BestScore:  composite.BestScore,
				AnySuccess: composite.AnySuccess,
			}
			em.emit(runCtx, iterDone)

			if composite.AnySuccess {
				l.capture(runCtx, req, state)
				return l.finish(runCtx, em, state, events.TypeScanComplete, true), nil
			}
		}
		if iter == req.MaxIterations {
			if policyBlocked {
				state.FailureCause = "policy_blocked"
			} else {
				state.FailureCause = "max iterations reached"
			}
			break
		}

		// A policy block skips analysis: there is no target response to
		// analyze, only a vector to replace.
		if !policyBlocked {
			if err := check(events.PhaseAnalyze); err != nil {
				return l.finishCancelled(runCtx, em, state), nil
			}
			em.phase(runCtx, events.TypePhaseStart, iter, events.PhaseAnalyze, nil)
			defense, dctx := l.deps.Analyzer.Analyze(runCtx, analysis.Request{
				Objective:     req.Objective,
				Attempts:      currentAttempts(state),
				TriedChains:   state.TriedChains,
				TriedFramings: state.TriedFramings,
				Iteration:     iter,
			})
			state.DefenseAnalysis = &defense
			state.Discovery = dctx
			em.phase(runCtx, events.TypePhaseComplete, iter, events.PhaseAnalyze, analyzePayload{
				RefusalType: defense.RefusalType,
				Confidence:  defense.Confidence,
			})
		}

		if err := check(events.PhaseAdapt); err != nil {
			return l.finishCancelled(runCtx, em, state), nil
		}
		em.phase(runCtx, events.TypePhaseStart, iter, events.PhaseAdapt, nil)
		if err := l.adapt(runCtx, req, state, em); err != nil {
			if errors.Is(err, errCancelled) || runCtx.Err() != nil {
				return l.finishCancelled(runCtx, em, state), nil
			}
			if errors.Is(err, models.ErrChainsExhausted) {
				state.FailureCause = "converter chains exhausted"
				break iterations
			}
			state.FailureCause = err.Error()
			result := l.finish(runCtx, em, state, events.TypeScanError, false)
			return result, err
		}
		em.phase(runCtx, events.TypePhaseComplete, iter, events.PhaseAdapt, nil)
	}

	if state.FailureCause == "" {
		state.FailureCause = "max iterations reached"
	}
	return l.finish(runCtx, em, state, events.TypeScanComplete, false), nil
}

// runIteration executes articulate → convert → execute → score for one
// iteration and returns its composite score.
func (l *Loop) runIteration(ctx context.Context, req Request, state *State, handle *control.Handle, check func(string) error, em emitter) (models.CompositeScore, error) {
	var zero models.CompositeScore
	iter := state.Iteration

	// ARTICULATE
	em.phase(ctx, events.TypePhaseStart, iter, events.PhaseArticulate, nil)
	payloads, strat, err := l.articulate(ctx, req, state)
	if err != nil {
		if ctx.Err() != nil {
			return zero, classifyCtx(ctx, err)
		}
		return zero, err
	}
	state.Phase1 = &Phase1Result{
		Payloads:    payloads,
		FramingType: strat.Type,
		FramingName: strat.Name,
		Chain:       append([]string(nil), state.CurrentChain...),
	}
	state.Phase2, state.Phase3 = nil, nil
	appendUnique(&state.TriedFramings, strat.Name)
	em.phase(ctx, events.TypePhaseComplete, iter, events.PhaseArticulate, articulatePayload{
		Framing:  strat.Name,
		Payloads: len(payloads),
	})

	// CONVERT
	if err := check(events.PhaseConvert); err != nil {
		return zero, err
	}
	em.phase(ctx, events.TypePhaseStart, iter, events.PhaseConvert, nil)
	converted, stepFailures := l.convert(payloads, state.CurrentChain, iter)
	state.Phase2 = &Phase2Result{
		ConvertedPayloads: converted,
		Chain:             append([]string(nil), state.CurrentChain...),
		StepFailures:      stepFailures,
	}
	if !converter.ContainsChain(state.TriedChains, state.CurrentChain) {
		state.TriedChains = append(state.TriedChains, append([]string(nil), state.CurrentChain...))
	}
	em.phase(ctx, events.TypePhaseComplete, iter, events.PhaseConvert, convertPayload{
		Chain:        state.Phase2.Chain,
		StepFailures: stepFailures,
	})

	if reason := req.Policy.Disallows(*strat, state.CurrentChain); reason != "" {
		return zero, fmt.Errorf("%w: %s", models.ErrPolicyDenied, reason)
	}

	// EXECUTE
	if err := check(events.PhaseExecute); err != nil {
		return zero, err
	}
	em.phase(ctx, events.TypePhaseStart, iter, events.PhaseExecute, nil)
	for i := range converted {
		ev := em.event(events.TypeAttackStarted)
		ev.Iteration = iter
		ev.Phase = events.PhaseExecute
		ev.Payload = attackStartedPayload{Index: i}
		em.emit(ctx, ev)
	}
	attempts, dispatchErr := l.deps.Dispatcher.Dispatch(dispatch.WithGate(ctx, handle), converted, req.Target)
	state.Phase3 = &Phase3Result{Attempts: attempts}
	for i, at := range attempts {
		ev := em.event(events.TypeAttackComplete)
		ev.Iteration = iter
		ev.Phase = events.PhaseExecute
		ev.Payload = attackCompletePayload{
			Index:      i,
			StatusCode: at.StatusCode,
			LatencyMS:  at.LatencyMS,
			Error:      at.Error,
		}
		em.emit(ctx, ev)
	}
	em.phase(ctx, events.TypePhaseComplete, iter, events.PhaseExecute, nil)

	if err := check(events.PhaseScore); err != nil {
		return zero, err
	}
	if dispatchErr != nil {
		return zero, classifyCtx(ctx, dispatchErr)
	}
	if !anySucceeded(attempts) {
		return zero, fmt.Errorf("%w: no attack attempt reached the target", models.ErrDependencyPermanent)
	}

	// SCORE
	em.phase(ctx, events.TypePhaseStart, iter, events.PhaseScore, nil)
	perBest := make(map[string]models.ScoreResult)
	for _, at := range attempts {
		if !at.Succeeded() {
			continue
		}
		if err := check(events.PhaseScore); err != nil {
			return zero, err
		}
		for name, result := range l.deps.Scorers.ScoreAll(ctx, req.Objective, at.Payload.Content, at.Response) {
			if better(result, perBest[name]) {
				perBest[name] = result
			}
		}
	}
	for _, name := range sortedKeys(perBest) {
		result := perBest[name]
		ev := em.event(events.TypeScoreEmitted)
		ev.Iteration = iter
		ev.Phase = events.PhaseScore
		ev.Payload = scoreEmittedPayload{
			Scorer:     name,
			Confidence: result.Confidence,
			IsSuccess:  result.IsSuccess,
			Severity:   result.Severity,
		}
		em.emit(ctx, ev)
	}
	composite := scoring.Aggregate(perBest, req.SuccessScorers, req.SuccessThreshold)
	em.phase(ctx, events.TypePhaseComplete, iter, events.PhaseScore, nil)

	return composite, nil
}

// articulate generates the iteration's payload batch. An empty batch is
// retried once with neutral framing before giving up.
func (l *Loop) articulate(ctx context.Context, req Request, state *State) ([]models.Payload, *models.FramingStrategy, error) {
	pc := payload.Context{
		Objective:      req.Objective,
		Custom:         state.CustomFraming,
		Recon:          state.ReconFraming,
		Intel:          req.Intel,
		Guidance:       state.Guidance,
		AvoidTerms:     state.AvoidTerms,
		EmphasizeTerms: state.EmphasizeTerms,
		Iteration:      state.Iteration,
	}
	preset := l.deps.Framings.Resolve(state.PresetFraming)
	pc.Preset = &preset

	payloads, err := l.deps.Payloads.Generate(ctx, pc, req.PayloadCount)
	if err == nil {
		return payloads, pc.EffectiveFraming(), nil
	}
	if ctx.Err() != nil {
		return nil, nil, err
	}

	l.log.Warn("Articulation failed, retrying with neutral framing",
		"campaign_id", req.CampaignID,
		"iteration", state.Iteration,
		"error", err)
	neutral := l.deps.Framings.Fallback()
	pc.Recon, pc.Custom = nil, nil
	pc.Preset = &neutral

	payloads, err = l.deps.Payloads.Generate(ctx, pc, req.PayloadCount)
	if err != nil {
		return nil, nil, err
	}
	return payloads, pc.EffectiveFraming(), nil
}

// convert applies the current chain to each payload. An invalid chain
// degrades to the identity with a warning.
func (l *Loop) convert(payloads []models.Payload, names []string, iter int) ([]models.Payload, int) {
	chain, err := converter.NewChain(l.deps.Registry, names...)
	if err != nil {
		l.log.Warn("Invalid converter chain, sending payloads unconverted",
			"chain", names,
			"error", err)
		chain = converter.Chain{}
	}

	converted := make([]models.Payload, len(payloads))
	failures := 0
	for i, p := range payloads {
		text, steps := l.deps.Executor.Apply(p.Content, chain)
		for _, s := range steps {
			if !s.OK {
				failures++
			}
		}
		converted[i] = models.Payload{
			Content:     text,
			FramingType: p.FramingType,
			ChainUsed:   chain.Names(),
			Iteration:   iter,
		}
	}
	return converted, failures
}

// adapt consults the knowledge base, the strategy generator, and chain
// discovery to set the next iteration's directives. Chain discovery is
// authoritative for the chain; the generator owns framing and wording.
func (l *Loop) adapt(ctx context.Context, req Request, state *State, em emitter) error {
	episodes := l.recallEpisodes(ctx, req)

	var defense models.DefenseAnalysis
	if state.DefenseAnalysis != nil {
		defense = *state.DefenseAnalysis
	}
	view := strategy.StateView{
		Objective:       req.Objective,
		Iteration:       state.Iteration,
		BestScore:       state.BestScore,
		TriedFramings:   state.TriedFramings,
		TriedChains:     state.TriedChains,
		RecentResponses: state.recentResponses(3),
	}
	decision, err := l.deps.Strategist.Propose(ctx, view, defense, req.Intel, episodes)
	if err != nil {
		if ctx.Err() != nil {
			return errCancelled
		}
		l.log.Warn("Strategy proposal degraded to chain-only adaptation",
			"campaign_id", req.CampaignID,
			"iteration", state.Iteration,
			"error", err)
		decision = models.AdaptationDecision{
			Reasoning: "strategy generator unavailable; rotating converter chain only",
		}
	}

	chain, err := l.deps.Chains.SelectChain(ctx, state.Discovery, state.TriedChains)
	if err != nil {
		return err
	}
	if !req.AdversarialSuffixes {
		chain = dropConverter(chain, "adversarial_suffix")
	}
	if converter.ContainsChain(state.TriedChains, chain) {
		chain, err = l.deps.Chains.Perturb(chain, state.TriedChains)
		if err != nil {
			return err
		}
	}
	decision.ConverterChain = chain
	state.CurrentChain = chain

	switch {
	case decision.UseCustomFraming && decision.CustomFraming != nil:
		state.CustomFraming = decision.CustomFraming
		state.ReconFraming = nil
	case decision.PresetFraming != "":
		state.PresetFraming = decision.PresetFraming
		state.CustomFraming = nil
		state.ReconFraming = nil
	}
	state.Guidance = decision.PayloadAdjustments
	state.AvoidTerms = decision.AvoidTerms
	state.EmphasizeTerms = decision.EmphasizeTerms
	state.AdaptationHistory = append(state.AdaptationHistory, decision)

	ev := em.event(events.TypeAdaptDecision)
	ev.Iteration = state.Iteration
	ev.Phase = events.PhaseAdapt
	ev.Payload = decision
	em.emit(ctx, ev)
	return nil
}

// recallEpisodes queries the knowledge base for bypass episodes against
// similar targets. Any failure degrades to an empty recall.
func (l *Loop) recallEpisodes(ctx context.Context, req Request) []models.BypassEpisode {
	if l.deps.Knowledge == nil || l.deps.Embedder == nil {
		return nil
	}
	sig := knowledge.Signature(req.Intel, req.ObjectiveCategory)
	embedding, err := l.deps.Embedder.Embed(ctx, sig+" "+req.Objective)
	if err != nil {
		l.log.Warn("Knowledge recall skipped, embedding failed", "error", err)
		return nil
	}
	episodes, err := l.deps.Knowledge.Query(ctx, sig, req.ObjectiveCategory, embedding, req.KnowledgeTopK, req.KnowledgeMinSimilarity)
	if err != nil {
		l.log.Warn("Knowledge recall skipped, query failed", "error", err)
		return nil
	}
	return episodes
}

// capture appends the winning (framing, chain, target) triple to the
// knowledge base. Best-effort: a capture failure never fails the campaign.
func (l *Loop) capture(ctx context.Context, req Request, state *State) {
	if l.deps.Knowledge == nil || l.deps.Embedder == nil || state.Phase1 == nil {
		return
	}
	detached := context.WithoutCancel(ctx)
	sig := knowledge.Signature(req.Intel, req.ObjectiveCategory)
	embedding, err := l.deps.Embedder.Embed(detached, sig+" "+req.Objective)
	if err != nil {
		l.log.Warn("Bypass episode not captured, embedding failed", "error", err)
		return
	}
	episode := models.BypassEpisode{
		TargetSignature:   sig,
		FramingType:       state.Phase1.FramingType,
		Chain:             currentChain(state),
		ObjectiveCategory: req.ObjectiveCategory,
		SuccessScore:      state.BestScore,
		Embedding:         embedding,
		CreatedAt:         time.Now().UTC(),
	}
	if err := l.deps.Knowledge.Append(detached, episode); err != nil {
		l.log.Warn("Bypass episode not captured, append failed", "error", err)
	}
}

// checkpoint polls the control plane: cancel unwinds, pause blocks until
// resumed (emitting paused/resumed events around the wait).
func (l *Loop) checkpoint(ctx context.Context, handle *control.Handle, em emitter, state *State, phase string) error {
	handle.UpdateProgress(state.Iteration, phase, state.BestScore)
	if handle.Cancelled() || ctx.Err() != nil {
		return errCancelled
	}
	if !handle.Snapshot().Paused {
		return nil
	}

	ev := em.event(events.TypeScanPaused)
	ev.Iteration = state.Iteration
	ev.Phase = phase
	em.emit(ctx, ev)

	blocked, err := handle.WaitIfPaused(ctx)
	if err != nil || handle.Cancelled() {
		return errCancelled
	}
	if blocked {
		ev := em.event(events.TypeScanResumed)
		ev.Iteration = state.Iteration
		ev.Phase = phase
		em.emit(ctx, ev)
	}
	return nil
}

// finishCancelled marks the in-flight iteration cancelled and terminates
// with SCAN_CANCELLED and a partial result.
func (l *Loop) finishCancelled(ctx context.Context, em emitter, state *State) *models.ExploitResult {
	state.Cancelled = true
	state.FailureCause = "cancelled by operator"
	if n := len(state.History); n > 0 && state.History[n-1].Iteration == state.Iteration {
		state.History[n-1].Cancelled = true
	} else {
		state.History = append(state.History, models.IterationRecord{
			Iteration: state.Iteration,
			Framing:   currentFramingName(state),
			Chain:     currentChain(state),
			Cancelled: true,
		})
	}
	return l.finish(ctx, em, state, events.TypeScanCancelled, false)
}

// finish persists the result, advances the campaign stage, and publishes
// the terminal event. Runs on a detached context so a cancelled campaign
// still gets its record written.
func (l *Loop) finish(ctx context.Context, em emitter, state *State, terminal events.Type, isSuccessful bool) *models.ExploitResult {
	detached := context.WithoutCancel(ctx)
	result := buildResult(state, isSuccessful)

	if err := l.deps.Results.SaveExploit(detached, state.CampaignID, result); err != nil {
		l.log.Error("Failed to persist exploit result",
			"campaign_id", state.CampaignID,
			"error", err)
	}
	if terminal != events.TypeScanError {
		l.setStage(detached, state.CampaignID, models.StageComplete)
	}

	ev := em.event(terminal)
	ev.Iteration = state.Iteration
	ev.Payload = terminalPayload{
		IsSuccessful:  result.IsSuccessful,
		BestScore:     result.BestScore,
		BestIteration: result.BestIteration,
		IterationsRun: result.IterationsRun,
		FailureCause:  state.FailureCause,
	}
	em.emit(detached, ev)

	l.log.Info("Campaign terminated",
		"campaign_id", state.CampaignID,
		"terminal", string(terminal),
		"is_successful", result.IsSuccessful,
		"best_score", result.BestScore,
		"iterations_run", result.IterationsRun)
	return result
}

func (l *Loop) setStage(ctx context.Context, campaignID string, stage models.CampaignStage) {
	if l.deps.Campaigns == nil {
		return
	}
	if err := l.deps.Campaigns.UpdateStage(ctx, campaignID, stage); err != nil {
		l.log.Warn("Campaign stage not updated",
			"campaign_id", campaignID,
			"stage", string(stage),
			"error", err)
	}
}

// buildResult assembles the durable record from loop state. FinalChain is
// the best iteration's chain on success, otherwise the last chain used.
func buildResult(state *State, isSuccessful bool) *models.ExploitResult {
	result := &models.ExploitResult{
		CampaignID:          state.CampaignID,
		IsSuccessful:        isSuccessful,
		BestScore:           state.BestScore,
		BestIteration:       state.BestIteration,
		IterationsRun:       len(state.History),
		IterationHistory:    state.History,
		AdaptationDecisions: state.AdaptationHistory,
		ResponsesSample:     state.recentResponses(3),
		EmittedAt:           time.Now().UTC(),
	}

	result.FinalChain = currentChain(state)
	if isSuccessful {
		for _, rec := range state.History {
			if rec.Iteration == state.BestIteration {
				result.FinalChain = rec.Chain
				break
			}
		}
	}

	if state.Phase2 != nil {
		for i, p := range state.Phase2.ConvertedPayloads {
			if i == payloadSampleSize {
				break
			}
			result.PayloadsSample = append(result.PayloadsSample, p.Content)
		}
	}
	return result
}

func validateRequest(req Request) error {
	if req.CampaignID == "" {
		return models.ValidationErrorf("campaign_id must not be empty")
	}
	if req.Objective == "" {
		return models.ValidationErrorf("objective must not be empty")
	}
	if req.MaxIterations < 1 {
		return models.ValidationErrorf("max_iterations must be at least 1, got %d", req.MaxIterations)
	}
	if req.PayloadCount < 1 {
		return models.ValidationErrorf("payload_count must be at least 1, got %d", req.PayloadCount)
	}
	if len(req.SuccessScorers) == 0 {
		return models.ValidationErrorf("success_scorers must not be empty")
	}
	return req.Target.Validate()
}

// classifyCtx distinguishes a per-iteration deadline from a campaign-wide
// cancel when a context-bound call fails.
func classifyCtx(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errIterationBudget
	}
	if ctx.Err() != nil {
		return errCancelled
	}
	return err
}

func currentChain(state *State) []string {
	return append([]string(nil), state.CurrentChain...)
}

func currentFramingName(state *State) string {
	if state.Phase1 != nil {
		return state.Phase1.FramingName
	}
	return ""
}

func currentAttempts(state *State) []models.AttackAttempt {
	if state.Phase3 == nil {
		return nil
	}
	return state.Phase3.Attempts
}

func anySucceeded(attempts []models.AttackAttempt) bool {
	for _, a := range attempts {
		if a.Succeeded() {
			return true
		}
	}
	return false
}

// better prefers a success verdict, then higher confidence.
func better(a, b models.ScoreResult) bool {
	if a.IsSuccess != b.IsSuccess {
		return a.IsSuccess
	}
	return a.Confidence > b.Confidence
}

func confidences(perScorer map[string]models.ScoreResult) map[string]float64 {
	if len(perScorer) == 0 {
		return nil
	}
	out := make(map[string]float64, len(perScorer))
	for name, r := range perScorer {
		out[name] = r.Confidence
	}
	return out
}

func sortedKeys(m map[string]models.ScoreResult) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func appendUnique(values *[]string, v string) {
	for _, existing := range *values {
		if existing == v {
			return
		}
	}
	*values = append(*values, v)
}

func dropConverter(chain []string, name string) []string {
	out := make([]string, 0, len(chain))
	for _, c := range chain {
		if c != name {
			out = append(out, c)
		}
	}
	return out
}
