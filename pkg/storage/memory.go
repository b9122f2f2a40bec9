package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/aspexa/automa/pkg/models"
)

// MemoryCampaignStore is an in-memory CampaignStore for tests and local
// runs without a database.
type MemoryCampaignStore struct {
	mu        sync.RWMutex
	campaigns map[string]models.Campaign
}

// NewMemoryCampaignStore creates an empty in-memory campaign store.
func NewMemoryCampaignStore() *MemoryCampaignStore {
	return &MemoryCampaignStore{campaigns: make(map[string]models.Campaign)}
}

func (s *MemoryCampaignStore) Get(_ context.Context, campaignID string) (*models.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.campaigns[campaignID]
	if !ok {
		return nil, models.ErrCampaignNotFound
	}
	return &c, nil
}

func (s *MemoryCampaignStore) Create(_ context.Context, campaign *models.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.campaigns[campaign.ID]; ok {
		return models.ValidationErrorf("campaign %s already exists", campaign.ID)
	}
	s.campaigns[campaign.ID] = *campaign
	return nil
}

func (s *MemoryCampaignStore) UpdateStage(_ context.Context, campaignID string, stage models.CampaignStage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[campaignID]
	if !ok {
		return models.ErrCampaignNotFound
	}
	c.Stage = stage
	s.campaigns[campaignID] = c
	return nil
}

// MemoryArtifactStore is an in-memory BlueprintStore + ResultStore.
type MemoryArtifactStore struct {
	mu         sync.RWMutex
	blueprints map[string]*models.ReconBlueprint
	clusters   map[string][]models.VulnerabilityCluster
	exploits   map[string]*models.ExploitResult
}

// NewMemoryArtifactStore creates an empty in-memory artifact store.
func NewMemoryArtifactStore() *MemoryArtifactStore {
	return &MemoryArtifactStore{
		blueprints: make(map[string]*models.ReconBlueprint),
		clusters:   make(map[string][]models.VulnerabilityCluster),
		exploits:   make(map[string]*models.ExploitResult),
	}
}

// PutBlueprint seeds a blueprint (test/harness helper).
func (s *MemoryArtifactStore) PutBlueprint(reconScanID string, bp *models.ReconBlueprint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blueprints[reconScanID] = bp
}

// PutClusters seeds probe findings (test/harness helper).
func (s *MemoryArtifactStore) PutClusters(probeScanID string, clusters []models.VulnerabilityCluster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clusters[probeScanID] = clusters
}

func (s *MemoryArtifactStore) Load(_ context.Context, reconScanID string) (*models.ReconBlueprint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bp, ok := s.blueprints[reconScanID]
	if !ok {
		return nil, fmt.Errorf("%w: blueprint %s", ErrNotFound, reconScanID)
	}
	return bp, nil
}

func (s *MemoryArtifactStore) LoadClusters(_ context.Context, probeScanID string) ([]models.VulnerabilityCluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clusters, ok := s.clusters[probeScanID]
	if !ok {
		return nil, fmt.Errorf("%w: probe findings %s", ErrNotFound, probeScanID)
	}
	return clusters, nil
}

func (s *MemoryArtifactStore) SaveExploit(_ context.Context, campaignID string, result *models.ExploitResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exploits[campaignID] = result
	return nil
}

func (s *MemoryArtifactStore) LoadExploit(_ context.Context, campaignID string) (*models.ExploitResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.exploits[campaignID]
	if !ok {
		return nil, fmt.Errorf("%w: exploit result %s", ErrNotFound, campaignID)
	}
	return result, nil
}
