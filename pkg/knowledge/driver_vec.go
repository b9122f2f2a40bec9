//go:build sqlite_vec && cgo

package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	// cgo sqlite driver, registered as "sqlite3".
	_ "github.com/mattn/go-sqlite3"

	"github.com/aspexa/automa/pkg/models"
)

func init() {
	// Load the sqlite-vec extension into every new connection.
	vec.Auto()
	sqliteDriver = "sqlite3"
	vecQuery = queryWithVec
}

// queryWithVec ranks episodes inside sqlite with vec_distance_cosine. The
// distance is 1 - cosine, so similarity is recovered as 1 - distance. The
// similarity expression is repeated in WHERE because sqlite does not allow
// the SELECT alias there.
func queryWithVec(ctx context.Context, db *sql.DB, targetSignature string, category models.VulnerabilityCategory, queryEmbedding []float32, topK int, minSimilarity float64) ([]models.BypassEpisode, error) {
	blob := encodeFloat32SliceToBlob(queryEmbedding)

	rows, err := db.QueryContext(ctx, `
		SELECT target_signature, framing_type, chain, objective_category, success_score, embedding, created_at,
		       1.0 - vec_distance_cosine(embedding, ?1) AS similarity
		FROM bypass_episodes
		WHERE target_signature = ?2 AND objective_category = ?3
		  AND 1.0 - vec_distance_cosine(embedding, ?1) >= ?4
		ORDER BY similarity DESC, created_at DESC
		LIMIT ?5`,
		blob, targetSignature, string(category), minSimilarity, topK)
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
			epBlob    []byte
			createdAt string
		)
		if err := rows.Scan(&ep.TargetSignature, &framing, &chainJSON, &cat, &ep.SuccessScore, &epBlob, &createdAt, &ep.Similarity); err != nil {
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
		ep.Embedding = decodeFloat32SliceFromBlob(epBlob)
		episodes = append(episodes, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate episodes: %w", err)
	}
	return episodes, nil
}
