package control

import (
	"context"
	"sync"
)

// Handle is one campaign's entry in the control plane. The loop holds it
// for checkpoint polling and snapshot updates; the plane mutates it on
// pause/resume/cancel requests.
type Handle struct {
	campaignID string
	cancel     context.CancelFunc

	mu        sync.Mutex
	paused    bool
	resumeCh  chan struct{}
	cancelled bool

	iteration int
	phase     string
	bestScore float64
}

// CampaignID returns the owning campaign's ID.
func (h *Handle) CampaignID() string { return h.campaignID }

// Cancel marks the campaign cancelled and fires its context cancellation.
// A paused campaign is resumed so the loop can observe the cancel and
// unwind. Idempotent.
func (h *Handle) Cancel() {
	h.mu.Lock()
	h.cancelled = true
	resumeCh := h.resumeCh
	h.paused = false
	h.resumeCh = nil
	h.mu.Unlock()

	if resumeCh != nil {
		close(resumeCh)
	}
	if h.cancel != nil {
		h.cancel()
	}
}

// Cancelled reports whether cancellation was requested.
func (h *Handle) Cancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

// WaitIfPaused blocks while the campaign is paused. It returns true when
// the call actually blocked (so the loop can emit paused/resumed events),
// false when the campaign was running. ctx ending unblocks with ctx.Err().
func (h *Handle) WaitIfPaused(ctx context.Context) (bool, error) {
	h.mu.Lock()
	if !h.paused || h.cancelled {
		h.mu.Unlock()
		return false, nil
	}
	resumeCh := h.resumeCh
	h.mu.Unlock()

	select {
	case <-resumeCh:
		return true, nil
	case <-ctx.Done():
		return true, ctx.Err()
	}
}

// UpdateProgress refreshes the snapshot fields the loop owns.
func (h *Handle) UpdateProgress(iteration int, phase string, bestScore float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.iteration = iteration
	h.phase = phase
	h.bestScore = bestScore
}

// Snapshot returns the current status view.
func (h *Handle) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Snapshot{
		CampaignID: h.campaignID,
		Iteration:  h.iteration,
		Phase:      h.phase,
		BestScore:  h.bestScore,
		Paused:     h.paused,
		Cancelled:  h.cancelled,
	}
}

func (h *Handle) pause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.paused || h.cancelled {
		return
	}
	h.paused = true
	h.resumeCh = make(chan struct{})
}

func (h *Handle) resume() {
	h.mu.Lock()
	if !h.paused {
		h.mu.Unlock()
		return
	}
	h.paused = false
	resumeCh := h.resumeCh
	h.resumeCh = nil
	h.mu.Unlock()

	if resumeCh != nil {
		close(resumeCh)
	}
}
