package memory

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragmind/engine/document"
)

// hashEmbedder deterministically maps text to a fixed-dimension vector by
// hashing each token into a bucket, so distinct texts produce distinct,
// reproducible embeddings without a real model.
type hashEmbedder struct {
	dim int
}

func (h *hashEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	v := make([]float64, h.dim)
	hashSum := 0
	for _, r := range text {
		hashSum += int(r)
	}
	for i := range v {
		bucket := (hashSum + i*31) % h.dim
		v[bucket] += 1
	}
	if allZero(v) {
		v[0] = 1
	}
	return v, nil
}

func allZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

func mustMemDoc(t *testing.T, id, content string) *document.Document {
	t.Helper()
	d, err := document.New(id, content)
	require.NoError(t, err)
	return d
}

func TestAdvance_FirstCall_InitializesState(t *testing.T) {
	store, err := New(Config{Embedder: &hashEmbedder{dim: 8}, Dim: 8})
	require.NoError(t, err)

	result, err := store.Advance(context.Background(), "s1", "capital of France", []*document.Document{
		mustMemDoc(t, "a", "Paris is the capital of France"),
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.TopicShift)
	assert.True(t, result.State.Initialized)
	assert.Len(t, result.State.Vector, 8)
}

func TestAdvance_TopicShift_ZeroForIdenticalQuery(t *testing.T) {
	store, err := New(Config{Embedder: &hashEmbedder{dim: 8}, Dim: 8})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = store.Advance(ctx, "s1", "capital of France", nil)
	require.NoError(t, err)

	result, err := store.Advance(ctx, "s1", "capital of France", nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.TopicShift)
}

func TestAdvance_TopicShift_PositiveForUnrelatedQuery(t *testing.T) {
	store, err := New(Config{Embedder: &hashEmbedder{dim: 8}, Dim: 8})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = store.Advance(ctx, "s1", "capital of France", nil)
	require.NoError(t, err)

	result, err := store.Advance(ctx, "s1", "recipe for banana bread", nil)
	require.NoError(t, err)
	assert.Greater(t, result.TopicShift, 0.0)
}

func TestDeltaRuleUpdate_FixedPoint_AlphaOneBetaZero(t *testing.T) {
	s := []float64{0.2, -0.5, 0.9, 0.1}
	kt := unitNorm([]float64{1, 2, 3, 4})
	alpha := []float64{1, 1, 1, 1}
	beta := 0.0
	vNew := 0.42

	updated := hadamard(alpha, s)
	vOld := dot(updated, kt)
	updated = subVec(updated, hadamard(alpha, scalarMulVec(beta*vOld, kt)))
	updated = addVec(updated, scalarMulVec(beta*vNew, kt))

	for i := range s {
		assert.InDelta(t, s[i], updated[i], 1e-9)
	}
}

func TestAdvance_NoDocuments_DegradesToDecay(t *testing.T) {
	store, err := New(Config{Embedder: &hashEmbedder{dim: 8}, Dim: 8})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = store.Advance(ctx, "s1", "capital of France", []*document.Document{
		mustMemDoc(t, "a", "Paris is the capital of France"),
	})
	require.NoError(t, err)

	result, err := store.Advance(ctx, "s1", "unrelated banana bread recipe", nil)
	require.NoError(t, err)
	assert.Len(t, result.State.Vector, 8)
}

func TestReset_ClearsState_NextAdvanceReinitializes(t *testing.T) {
	store, err := New(Config{Embedder: &hashEmbedder{dim: 8}, Dim: 8})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = store.Advance(ctx, "s1", "capital of France", nil)
	require.NoError(t, err)

	require.NoError(t, store.Reset(ctx, "s1"))

	_, ok, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)

	result, err := store.Advance(ctx, "s1", "capital of France", nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.TopicShift)
}

func TestGatingAlpha_Uniform(t *testing.T) {
	low := gatingAlpha(GatingUniform, 0.1, 0.5, 4)
	high := gatingAlpha(GatingUniform, 0.9, 0.5, 4)
	for _, v := range low {
		assert.Equal(t, 0.9, v)
	}
	for _, v := range high {
		assert.Equal(t, 0.3, v)
	}
}

func TestGatingAlpha_DataDependent(t *testing.T) {
	assert.Equal(t, 0.9, gatingAlpha(GatingDataDependent, 0.1, 0.5, 1)[0])
	assert.Equal(t, 0.5, gatingAlpha(GatingDataDependent, 0.4, 0.5, 1)[0])
	assert.Equal(t, 0.2, gatingAlpha(GatingDataDependent, 0.9, 0.5, 1)[0])
}

func TestGatingAlpha_PerDimension(t *testing.T) {
	shifted := gatingAlpha(GatingPerDimension, 0.8, 0.5, 4)
	assert.Equal(t, []float64{0.1, 0.1, 0.9, 0.9}, shifted)

	stable := gatingAlpha(GatingPerDimension, 0.1, 0.5, 4)
	for _, v := range stable {
		assert.Equal(t, 0.5, v)
	}
}

func TestUnitNorm_ProducesUnitLength(t *testing.T) {
	v := unitNorm([]float64{3, 4})
	norm := math.Hypot(v[0], v[1])
	assert.InDelta(t, 1.0, norm, 1e-9)
}

func TestNew_RequiresEmbedderAndDim(t *testing.T) {
	_, err := New(Config{Dim: 4})
	assert.Error(t, err)

	_, err = New(Config{Embedder: &hashEmbedder{dim: 4}})
	assert.Error(t, err)
}
