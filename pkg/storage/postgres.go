package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aspexa/automa/pkg/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies the embedded schema migrations to the database.
func Migrate(databaseURL string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}

	// golang-migrate's pgx/v5 driver registers the pgx5 URL scheme.
	url := strings.Replace(databaseURL, "postgres://", "pgx5://", 1)
	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	slog.Info("Database migrations applied")
	return nil
}

// PostgresCampaignStore is the pgx-backed campaign record store.
type PostgresCampaignStore struct {
	pool *pgxpool.Pool
}

// NewPostgresCampaignStore connects a campaign store to the pool.
func NewPostgresCampaignStore(pool *pgxpool.Pool) *PostgresCampaignStore {
	return &PostgresCampaignStore{pool: pool}
}

// Connect opens a pgx pool against the database URL.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return pool, nil
}

// Get returns the campaign by ID.
func (s *PostgresCampaignStore) Get(ctx context.Context, campaignID string) (*models.Campaign, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, target_url, target_protocol, recon_scan_id, probe_scan_id, stage, owner, created_at
		FROM campaigns WHERE id = $1`, campaignID)

	var c models.Campaign
	var reconScanID, probeScanID *string
	err := row.Scan(&c.ID, &c.TargetURL, &c.TargetProtocol, &reconScanID, &probeScanID, &c.Stage, &c.Owner, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrCampaignNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign %s: %w", campaignID, err)
	}
	if reconScanID != nil {
		c.ReconScanID = *reconScanID
	}
	if probeScanID != nil {
		c.ProbeScanID = *probeScanID
	}
	return &c, nil
}

// Create inserts a campaign record.
func (s *PostgresCampaignStore) Create(ctx context.Context, campaign *models.Campaign) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO campaigns (id, target_url, target_protocol, recon_scan_id, probe_scan_id, stage, owner, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8)`,
		campaign.ID, campaign.TargetURL, campaign.TargetProtocol,
		campaign.ReconScanID, campaign.ProbeScanID, campaign.Stage,
		campaign.Owner, campaign.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create campaign %s: %w", campaign.ID, err)
	}
	return nil
}

// UpdateStage advances the campaign's lifecycle stage.
func (s *PostgresCampaignStore) UpdateStage(ctx context.Context, campaignID string, stage models.CampaignStage) error {
	tag, err := s.pool.Exec(ctx, `UPDATE campaigns SET stage = $2 WHERE id = $1`, campaignID, stage)
	if err != nil {
		return fmt.Errorf("failed to update campaign %s stage: %w", campaignID, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrCampaignNotFound
	}
	return nil
}
