package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragmind/engine/document"
	"github.com/ragmind/engine/vectorstore"
	"github.com/ragmind/engine/vectorstore/vectorstoretest"
)

func mustRagDoc(t *testing.T, id, content string) *document.Document {
	t.Helper()
	d, err := document.New(id, content)
	require.NoError(t, err)
	return d
}

func seededStore(t *testing.T) *vectorstoretest.Store {
	t.Helper()
	store := vectorstoretest.New(nil)
	require.NoError(t, store.Insert(context.Background(), []*document.Document{
		mustRagDoc(t, "a", "reciprocal rank fusion combines ranked lists from multiple queries"),
		mustRagDoc(t, "b", "bananas are a good source of potassium and fiber"),
		mustRagDoc(t, "c", "hybrid search blends semantic and keyword retrieval signals"),
	}))
	return store
}

func TestRetrieve_SingleQuery_AssignsRanks(t *testing.T) {
	retriever, err := NewVectorStoreDocumentRetriever(RetrieverConfig{VectorStore: seededStore(t)})
	require.NoError(t, err)

	query, err := NewQuery("rank fusion across multiple queries")
	require.NoError(t, err)

	result, err := retriever.Retrieve(context.Background(), query, RetrievalOptions{K: 2})
	require.NoError(t, err)
	require.NotEmpty(t, result.Documents)
	for i, d := range result.Documents {
		assert.Equal(t, i+1, d.Rank)
	}
	assert.LessOrEqual(t, len(result.Documents), 2)
}

func TestRetrieve_EmptyResult_NoError(t *testing.T) {
	retriever, err := NewVectorStoreDocumentRetriever(RetrieverConfig{VectorStore: seededStore(t)})
	require.NoError(t, err)

	query, err := NewQuery("quantum chromodynamics lattice gauge theory")
	require.NoError(t, err)

	result, err := retriever.Retrieve(context.Background(), query, RetrievalOptions{K: 5, MinSimilarity: 0.99})
	require.NoError(t, err)
	assert.Empty(t, result.Documents)
	assert.Equal(t, 0.0, result.AvgSimilarity)
}

func TestRetrieve_ZeroK_ReturnsEmptyDocuments(t *testing.T) {
	retriever, err := NewVectorStoreDocumentRetriever(RetrieverConfig{VectorStore: seededStore(t)})
	require.NoError(t, err)

	query, err := NewQuery("hybrid search")
	require.NoError(t, err)

	result, err := retriever.Retrieve(context.Background(), query, RetrievalOptions{K: 0})
	require.NoError(t, err)
	assert.Empty(t, result.Documents)
}

// fixedReformulator always returns the same fixed set of working queries,
// letting a test hold the query set constant while varying Parallel.
type fixedReformulator struct {
	queries []ReformulatedQuery
}

func (f *fixedReformulator) Reformulate(context.Context, *Query, ReformulationOptions) (ReformulationResult, error) {
	return ReformulationResult{Reformulations: f.queries}, nil
}

func TestRetrieve_ParallelMatchesSequential(t *testing.T) {
	reformulator := &fixedReformulator{queries: []ReformulatedQuery{
		{Query: "hybrid search", Strategy: StrategyExpansion, Quality: 1.0, Rank: 1},
		{Query: "reciprocal rank fusion", Strategy: StrategyClarification, Quality: 0.8, Rank: 2},
		{Query: "potassium sources", Strategy: StrategySimplification, Quality: 0.6, Rank: 3},
	}}
	query, err := NewQuery("hybrid search")
	require.NoError(t, err)

	runRetrieve := func(parallel bool) RetrievalResult {
		retriever, err := NewVectorStoreDocumentRetriever(RetrieverConfig{
			VectorStore:  seededStore(t),
			Reformulator: reformulator,
		})
		require.NoError(t, err)
		result, err := retriever.Retrieve(context.Background(), query, RetrievalOptions{
			K:                2,
			UseReformulation: true,
			Parallel:         parallel,
		})
		require.NoError(t, err)
		return result
	}

	sequential := runRetrieve(false)
	parallel := runRetrieve(true)

	require.Equal(t, len(sequential.Documents), len(parallel.Documents))
	for i := range sequential.Documents {
		assert.Equal(t, sequential.Documents[i].ID, parallel.Documents[i].ID)
		assert.Equal(t, sequential.Documents[i].Rank, parallel.Documents[i].Rank)
		assert.Equal(t, sequential.Documents[i].Similarity, parallel.Documents[i].Similarity)
	}
	assert.Equal(t, sequential.AvgSimilarity, parallel.AvgSimilarity)
}

func TestRetrieve_RequiresReformulatorWhenRequested(t *testing.T) {
	retriever, err := NewVectorStoreDocumentRetriever(RetrieverConfig{VectorStore: seededStore(t)})
	require.NoError(t, err)

	query, err := NewQuery("hybrid search")
	require.NoError(t, err)

	_, err = retriever.Retrieve(context.Background(), query, RetrievalOptions{K: 2, UseReformulation: true})
	assert.Error(t, err)
}

func TestFuseByID_DeterministicAcrossOrder(t *testing.T) {
	docA := mustRagDoc(t, "x", "content x")
	docA.Rank = 1
	docA.Metadata[SourceWeightKey] = 1.0
	docB := mustRagDoc(t, "x", "content x")
	docB.Rank = 2
	docB.Metadata[SourceWeightKey] = 1.0

	fused1 := fuseByID([][]*document.Document{{docA}, {docB}}, vectorstore.RRFConstant)
	fused2 := fuseByID([][]*document.Document{{docB}, {docA}}, vectorstore.RRFConstant)

	require.Len(t, fused1, 1)
	require.Len(t, fused2, 1)
	assert.Equal(t, fused1[0].Similarity, fused2[0].Similarity)
}
