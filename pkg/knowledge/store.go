package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/aspexa/automa/pkg/models"
)

// sqliteDriver is the database/sql driver name. The default is the pure-Go
// modernc driver; the sqlite_vec build swaps in the cgo driver with the
// sqlite-vec extension loaded.
var sqliteDriver = "sqlite"

// vecQuery, when set, ranks episodes inside sqlite instead of in Go. The
// sqlite_vec build points it at the vec_distance_cosine implementation;
// the default build leaves it nil.
var vecQuery func(ctx context.Context, db *sql.DB, targetSignature string, category models.VulnerabilityCategory, queryEmbedding []float32, topK int, minSimilarity float64) ([]models.BypassEpisode, error)

const schema = `
CREATE TABLE IF NOT EXISTS bypass_episodes (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	target_signature   TEXT    NOT NULL,
	framing_type       TEXT    NOT NULL,
	chain              TEXT    NOT NULL,
	objective_category TEXT    NOT NULL,
	success_score      REAL    NOT NULL,
	embedding          BLOB    NOT NULL,
	created_at         TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_episodes_signature
	ON bypass_episodes (target_signature, objective_category);
`

// Store is the shared, append-only episode corpus. Appends are serialized;
// queries run concurrently against sqlite's snapshot semantics.
type Store struct {
	db      *sql.DB
	writeMu sync.Mutex
	log     *slog.Logger
}

// Open creates or opens the episode database at path, creating parent
// directories as needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create knowledge dir: %w", err)
		}
	}
	db, err := sql.Open(sqliteDriver, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply knowledge schema: %w", err)
	}
	return &Store{
		db:  db,
		log: slog.With("component", "bypass_knowledge"),
	}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Append stores a successful episode. Append-only; versioned by CreatedAt.
// Safe for concurrent use across campaigns.
func (s *Store) Append(ctx context.Context, episode models.BypassEpisode) error {
	if episode.TargetSignature == "" {
		return models.ValidationErrorf("episode target_signature must not be empty")
	}
	if len(episode.Embedding) == 0 {
		return models.ValidationErrorf("episode embedding must not be empty")
	}
	if episode.CreatedAt.IsZero() {
		episode.CreatedAt = time.Now().UTC()
	}

	chainJSON, err := json.Marshal(episode.Chain)
	if err != nil {
		return fmt.Errorf("failed to encode chain: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bypass_episodes
			(target_signature, framing_type, chain, objective_category, success_score, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		episode.TargetSignature,
		string(episode.FramingType),
		string(chainJSON),
		string(episode.ObjectiveCategory),
		episode.SuccessScore,
		encodeFloat32SliceToBlob(episode.Embedding),
		episode.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to append episode: %w", err)
	}

	s.log.Info("Appended bypass episode",
		"target_signature", episode.TargetSignature,
		"category", episode.ObjectiveCategory,
		"score", episode.SuccessScore)
	return nil
}

// Query returns up to topK episodes for the signature and category, ranked
// by cosine similarity against the query embedding. Episodes below
// minSimilarity are dropped: an empty result beats a misleading one.
func (s *Store) Query(ctx context.Context, targetSignature string, category models.VulnerabilityCategory, queryEmbedding []float32, topK int, minSimilarity float64) ([]models.BypassEpisode, error) {
	if topK <= 0 {
		topK = 5
	}
	if vecQuery != nil && len(queryEmbedding) > 0 {
		return vecQuery(ctx, s.db, targetSignature, category, queryEmbedding, topK, minSimilarity)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT target_signature, framing_type, chain, objective_category, success_score, embedding, created_at
		FROM bypass_episodes
		WHERE target_signature = ? AND objective_category = ?`,
		targetSignature, string(category))
	if err != nil {
		return nil, fmt.Errorf("failed to query episodes: %w", err)
	}
	defer rows.Close()

	var episodes []models.BypassEpisode
	for rows.Next() {
		var (
			ep        models.BypassEpisode
			framing   string
			chainJSON string
			cat       string
			blob      []byte
			createdAt string
		)
		if err := rows.Scan(&ep.TargetSignature, &framing, &chainJSON, &cat, &ep.SuccessScore, &blob, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan episode: %w", err)
		}
		ep.FramingType = models.FramingType(framing)
		ep.ObjectiveCategory = models.VulnerabilityCategory(cat)
		if err := json.Unmarshal([]byte(chainJSON), &ep.Chain); err != nil {
			return nil, fmt.Errorf("failed to decode chain: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			ep.CreatedAt = ts
		}
		ep.Embedding = decodeFloat32SliceFromBlob(blob)
		ep.Similarity = cosineSimilarity(queryEmbedding, ep.Embedding)

		if ep.Similarity >= minSimilarity {
			episodes = append(episodes, ep)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate episodes: %w", err)
	}

	sort.Slice(episodes, func(i, j int) bool {
		if episodes[i].Similarity != episodes[j].Similarity {
			return episodes[i].Similarity > episodes[j].Similarity
		}
		return episodes[i].CreatedAt.After(episodes[j].CreatedAt)
	})
	if len(episodes) > topK {
		episodes = episodes[:topK]
	}
	return episodes, nil
}

// Count returns the total number of stored episodes.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bypass_episodes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count episodes: %w", err)
	}
	return n, nil
}
