//go:build sqlite_vec && cgo

package knowledge

import (
	"context"
	"testing"

	"github.com/aspexa/automa/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The vec build must rank inside sqlite, and its results must agree with
// the in-process ranking the default build uses.
func TestVecQueryIsWired(t *testing.T) {
	require.NotNil(t, vecQuery)
	assert.Equal(t, "sqlite3", sqliteDriver)
}

func TestVecQueryRanksAndFilters(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, episode("sig-a", 0.8, []float32{1, 0.4, 0})))
	require.NoError(t, s.Append(ctx, episode("sig-a", 0.85, []float32{1, 0.1, 0})))
	require.NoError(t, s.Append(ctx, episode("sig-a", 0.9, []float32{0, 1, 0})))

	got, err := vecQuery(ctx, s.db, "sig-a", models.VulnJailbreak, []float32{1, 0, 0}, 5, 0.75)
	require.NoError(t, err)
	require.Len(t, got, 2, "orthogonal embedding stays below the floor")

	assert.Equal(t, 0.85, got[0].SuccessScore, "closest embedding first")
	assert.GreaterOrEqual(t, got[0].Similarity, got[1].Similarity)

	for i, ep := range got {
		want := cosineSimilarity([]float32{1, 0, 0}, ep.Embedding)
		assert.InDelta(t, want, ep.Similarity, 1e-5, "episode %d", i)
	}
}
