package converter

import (
	"log/slog"
	"sync"
)

// StepResult records the outcome of one converter application.
type StepResult struct {
	Converter string
	OK        bool
	Error     string
}

// EffectivenessStats is a snapshot of one converter's usage counters.
type EffectivenessStats struct {
	Applied int
	Failed  int
}

// SuccessRate returns the fraction of applications that succeeded.
func (s EffectivenessStats) SuccessRate() float64 {
	if s.Applied == 0 {
		return 0
	}
	return float64(s.Applied-s.Failed) / float64(s.Applied)
}

// Executor applies converter chains to payloads. Apart from the
// effectiveness counters it is side-effect free; the counters are guarded
// so one executor can serve concurrent payload batches.
type Executor struct {
	registry *Registry

	mu    sync.Mutex
	stats map[string]EffectivenessStats
}

// NewExecutor creates an executor over the given registry.
func NewExecutor(reg *Registry) *Executor {
	return &Executor{
		registry: reg,
		stats:    make(map[string]EffectivenessStats),
	}
}

// Apply runs the chain's converters in order over payload. A failing
// converter leaves the text unchanged for that step and is recorded as a
// step failure; the remaining converters still run. The empty chain is the
// identity.
func (e *Executor) Apply(payload string, chain Chain) (string, []StepResult) {
	text := payload
	steps := make([]StepResult, 0, chain.Len())

	for _, name := range chain.names {
		conv, err := e.registry.Get(name)
		if err != nil {
			// Unreachable for chains built via NewChain; guard anyway.
			steps = append(steps, StepResult{Converter: name, Error: err.Error()})
			e.record(name, false)
			continue
		}

		converted, err := conv.Convert(text)
		if err != nil {
			slog.Warn("Converter failed, passing text through unchanged",
				"converter", name, "error", err)
			steps = append(steps, StepResult{Converter: name, Error: err.Error()})
			e.record(name, false)
			continue
		}

		text = converted
		steps = append(steps, StepResult{Converter: name, OK: true})
		e.record(name, true)
	}

	return text, steps
}

// Stats returns a snapshot of per-converter effectiveness counters.
func (e *Executor) Stats() map[string]EffectivenessStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]EffectivenessStats, len(e.stats))
	for name, s := range e.stats {
		out[name] = s
	}
	return out
}

func (e *Executor) record(name string, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stats[name]
	s.Applied++
	if !ok {
		s.Failed++
	}
	e.stats[name] = s
}
