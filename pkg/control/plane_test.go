package control

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aspexa/automa/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndStatus(t *testing.T) {
	p := NewPlane()
	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	h, err := p.Register("c1", cancel)
	require.NoError(t, err)

	h.UpdateProgress(3, "execute", 0.42)

	snap, err := p.Status("c1")
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Iteration)
	assert.Equal(t, "execute", snap.Phase)
	assert.Equal(t, 0.42, snap.BestScore)
	assert.False(t, snap.Paused)
	assert.False(t, snap.Cancelled)
}

func TestRegisterDuplicateFails(t *testing.T) {
	p := NewPlane()
	_, err := p.Register("c1", func() {})
	require.NoError(t, err)

	_, err = p.Register("c1", func() {})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestUnknownCampaign(t *testing.T) {
	p := NewPlane()

	assert.ErrorIs(t, p.Pause("missing"), models.ErrCampaignNotFound)
	assert.ErrorIs(t, p.Resume("missing"), models.ErrCampaignNotFound)
	assert.ErrorIs(t, p.Cancel("missing"), models.ErrCampaignNotFound)
	_, err := p.Status("missing")
	assert.ErrorIs(t, err, models.ErrCampaignNotFound)
}

func TestCancelFiresContext(t *testing.T) {
	p := NewPlane()
	ctx, cancel := context.WithCancel(context.Background())

	h, err := p.Register("c1", cancel)
	require.NoError(t, err)

	require.NoError(t, p.Cancel("c1"))
	assert.True(t, h.Cancelled())

	select {
	case <-ctx.Done():
	default:
		t.Fatal("cancel must fire the campaign context")
	}
}

func TestPauseBlocksUntilResume(t *testing.T) {
	p := NewPlane()
	h, err := p.Register("c1", func() {})
	require.NoError(t, err)

	require.NoError(t, p.Pause("c1"))

	var wg sync.WaitGroup
	wg.Add(1)
	var waited bool
	go func() {
		defer wg.Done()
		waited, _ = h.WaitIfPaused(context.Background())
	}()

	// Give the waiter time to block, then resume.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, p.Resume("c1"))
	wg.Wait()

	assert.True(t, waited)
}

func TestWaitIfPausedWhenRunning(t *testing.T) {
	p := NewPlane()
	h, err := p.Register("c1", func() {})
	require.NoError(t, err)

	waited, err := h.WaitIfPaused(context.Background())
	require.NoError(t, err)
	assert.False(t, waited)
}

func TestResumeIsIdempotent(t *testing.T) {
	p := NewPlane()
	_, err := p.Register("c1", func() {})
	require.NoError(t, err)

	require.NoError(t, p.Resume("c1"))
	require.NoError(t, p.Pause("c1"))
	require.NoError(t, p.Resume("c1"))
	require.NoError(t, p.Resume("c1"))
}

func TestCancelUnblocksPausedLoop(t *testing.T) {
	p := NewPlane()
	_, cancel := context.WithCancel(context.Background())
	h, err := p.Register("c1", cancel)
	require.NoError(t, err)

	require.NoError(t, p.Pause("c1"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = h.WaitIfPaused(context.Background())
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, p.Cancel("c1"))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cancel must unblock a paused loop")
	}
	assert.True(t, h.Cancelled())
}

func TestDeregister(t *testing.T) {
	p := NewPlane()
	_, err := p.Register("c1", func() {})
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, p.Running())

	p.Deregister("c1")
	assert.Empty(t, p.Running())

	// Re-registration after deregister must work.
	_, err = p.Register("c1", func() {})
	assert.NoError(t, err)
}
