// Package storage holds the campaign record store (Postgres), the
// artifact stores (S3 object storage), and in-memory implementations for
// tests and local runs.
package storage

import (
	"context"
	"errors"

	"github.com/aspexa/automa/pkg/models"
)

// ErrNotFound indicates a requested artifact does not exist in its store.
var ErrNotFound = errors.New("artifact not found")

// CampaignStore is the relational record of campaigns. The exploitation
// core reads campaigns and advances their stage; creation belongs to the
// upstream workflow (and tests).
type CampaignStore interface {
	Get(ctx context.Context, campaignID string) (*models.Campaign, error)
	Create(ctx context.Context, campaign *models.Campaign) error
	UpdateStage(ctx context.Context, campaignID string, stage models.CampaignStage) error
}

// BlueprintStore loads reconnaissance blueprints by scan ID.
type BlueprintStore interface {
	Load(ctx context.Context, reconScanID string) (*models.ReconBlueprint, error)
}

// ResultStore loads probe findings and persists exploit results at
// deterministic keys.
type ResultStore interface {
	LoadClusters(ctx context.Context, probeScanID string) ([]models.VulnerabilityCluster, error)
	SaveExploit(ctx context.Context, campaignID string, result *models.ExploitResult) error
	LoadExploit(ctx context.Context, campaignID string) (*models.ExploitResult, error)
}
