package storage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aspexa/automa/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCampaignStoreLifecycle(t *testing.T) {
	s := NewMemoryCampaignStore()
	ctx := context.Background()

	campaign := &models.Campaign{
		ID:             "c1",
		TargetURL:      "https://target.example/chat",
		TargetProtocol: models.ProtocolHTTP,
		Stage:          models.StageCreated,
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, s.Create(ctx, campaign))

	got, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "https://target.example/chat", got.TargetURL)

	require.NoError(t, s.UpdateStage(ctx, "c1", models.StageExploiting))
	got, err = s.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, models.StageExploiting, got.Stage)
}

func TestMemoryCampaignStoreErrors(t *testing.T) {
	s := NewMemoryCampaignStore()
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrCampaignNotFound)
	assert.ErrorIs(t, s.UpdateStage(ctx, "missing", models.StageComplete), models.ErrCampaignNotFound)

	require.NoError(t, s.Create(ctx, &models.Campaign{ID: "c1"}))
	assert.ErrorIs(t, s.Create(ctx, &models.Campaign{ID: "c1"}), models.ErrValidation)
}

func TestMemoryArtifactStore(t *testing.T) {
	s := NewMemoryArtifactStore()
	ctx := context.Background()

	_, err := s.Load(ctx, "scan-1")
	assert.ErrorIs(t, err, ErrNotFound)

	s.PutBlueprint("scan-1", &models.ReconBlueprint{TargetSelfDescription: "I am a banking assistant"})
	bp, err := s.Load(ctx, "scan-1")
	require.NoError(t, err)
	assert.Equal(t, "I am a banking assistant", bp.TargetSelfDescription)

	s.PutClusters("probe-1", []models.VulnerabilityCluster{{Category: models.VulnJailbreak}})
	clusters, err := s.LoadClusters(ctx, "probe-1")
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.Equal(t, models.VulnJailbreak, clusters[0].Category)
}

func TestExploitResultRoundTrip(t *testing.T) {
	s := NewMemoryArtifactStore()
	ctx := context.Background()

	_, err := s.LoadExploit(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)

	result := &models.ExploitResult{
		CampaignID:    "c1",
		IsSuccessful:  true,
		BestScore:     0.92,
		BestIteration: 3,
		IterationsRun: 3,
		FinalChain:    []string{"base64", "rot13"},
		IterationHistory: []models.IterationRecord{
			{Iteration: 1, Framing: "qa_tester", Chain: []string{}, BestScore: 0.2},
			{Iteration: 3, Framing: "roleplay_fiction", Chain: []string{"base64", "rot13"}, BestScore: 0.92},
		},
		EmittedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.SaveExploit(ctx, "c1", result))

	// The persisted form must survive JSON serialization unchanged.
	data, err := json.Marshal(result)
	require.NoError(t, err)
	var decoded models.ExploitResult
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, *result, decoded)

	loaded, err := s.LoadExploit(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, result, loaded)
}
