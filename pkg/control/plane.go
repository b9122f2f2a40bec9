// Package control hosts the process-wide registry of live campaigns. Each
// registered campaign exposes cooperative pause/resume/cancel signals and a
// read-only status snapshot. The exploitation loop registers itself at
// start, polls the signals at its checkpoints, and deregisters at
// termination.
package control

import (
	"context"
	"sync"

	"github.com/aspexa/automa/pkg/models"
)

// Snapshot is the externally visible state of a running campaign.
type Snapshot struct {
	CampaignID string  `json:"campaign_id"`
	Iteration  int     `json:"iteration"`
	Phase      string  `json:"phase"`
	BestScore  float64 `json:"best_score"`
	Paused     bool    `json:"paused"`
	Cancelled  bool    `json:"cancelled"`
}

// Plane is the process-wide campaign registry. One instance per process.
type Plane struct {
	mu      sync.Mutex
	entries map[string]*Handle
}

// NewPlane creates an empty control plane.
func NewPlane() *Plane {
	return &Plane{entries: make(map[string]*Handle)}
}

// Register adds a campaign and returns its handle. The cancel function is
// invoked when Cancel is called, so in-flight dispatch aborts promptly.
// Registering an already-registered campaign returns ErrAlreadyRunning.
func (p *Plane) Register(campaignID string, cancel context.CancelFunc) (*Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.entries[campaignID]; ok {
		return nil, models.ValidationErrorf("campaign %s is already running", campaignID)
	}
	h := &Handle{
		campaignID: campaignID,
		cancel:     cancel,
	}
	p.entries[campaignID] = h
	return h, nil
}

// Deregister removes a campaign. Safe to call for unknown IDs.
func (p *Plane) Deregister(campaignID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, campaignID)
}

// Pause requests a cooperative pause; it takes effect at the loop's next
// checkpoint. Re-pausing a paused campaign is a no-op.
func (p *Plane) Pause(campaignID string) error {
	h, err := p.get(campaignID)
	if err != nil {
		return err
	}
	h.pause()
	return nil
}

// Resume lifts a pause. Idempotent: resuming a running campaign is a no-op.
func (p *Plane) Resume(campaignID string) error {
	h, err := p.get(campaignID)
	if err != nil {
		return err
	}
	h.resume()
	return nil
}

// Cancel requests termination. The campaign's context is cancelled
// immediately; the loop emits its terminal event at the next checkpoint
// (or as soon as in-flight dispatch settles).
func (p *Plane) Cancel(campaignID string) error {
	h, err := p.get(campaignID)
	if err != nil {
		return err
	}
	h.Cancel()
	return nil
}

// Status returns the campaign's current snapshot.
func (p *Plane) Status(campaignID string) (Snapshot, error) {
	h, err := p.get(campaignID)
	if err != nil {
		return Snapshot{}, err
	}
	return h.Snapshot(), nil
}

// Running returns the IDs of all registered campaigns.
func (p *Plane) Running() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.entries))
	for id := range p.entries {
		ids = append(ids, id)
	}
	return ids
}

func (p *Plane) get(campaignID string) (*Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.entries[campaignID]
	if !ok {
		return nil, models.ErrCampaignNotFound
	}
	return h, nil
}
