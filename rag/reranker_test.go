package rag

import (
	"context"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragmind/engine/document"
	"github.com/ragmind/engine/llm"
)

// scriptedRerankGenerator returns texts keyed by a substring of the prompt,
// cycling through each key's list on repeated calls. Falls back to
// defaultText when no key matches.
type scriptedRerankGenerator struct {
	byKeyword   map[string][]string
	defaultText string
	calls       map[string]int
}

func (s *scriptedRerankGenerator) Generate(_ context.Context, prompt string, _ llm.GenerateOptions) (llm.Completion, error) {
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	for kw, texts := range s.byKeyword {
		if containsSubstr(prompt, kw) {
			i := s.calls[kw] % len(texts)
			s.calls[kw]++
			return llm.Completion{Text: texts[i]}, nil
		}
	}
	return llm.Completion{Text: s.defaultText}, nil
}

func containsSubstr(s, substr string) bool {
	return len(s) >= len(substr) && (func() bool {
		for i := 0; i+len(substr) <= len(s); i++ {
			if s[i:i+len(substr)] == substr {
				return true
			}
		}
		return false
	})()
}

func rerankDocs(t *testing.T) []*document.Document {
	t.Helper()
	return []*document.Document{
		mustRagDoc(t, "1", "bananas are rich in potassium"),
		mustRagDoc(t, "2", "reciprocal rank fusion merges ranked lists"),
		mustRagDoc(t, "3", "hybrid search blends keyword and semantic scores"),
	}
}

func TestRerank_Listwise_WithoutSampling_AppliesParsedRanking(t *testing.T) {
	gen := &scriptedRerankGenerator{defaultText: "2,3,1"}
	reranker, err := NewHybridReranker(RerankerConfig{Generator: gen})
	require.NoError(t, err)

	query, err := NewQuery("rank fusion")
	require.NoError(t, err)

	result, err := reranker.Rerank(context.Background(), query, rerankDocs(t), RerankOptions{Method: MethodListwise})
	require.NoError(t, err)
	require.Len(t, result.Documents, 3)
	assert.Equal(t, "2", result.Documents[0].ID)
	assert.Equal(t, "3", result.Documents[1].ID)
	assert.Equal(t, "1", result.Documents[2].ID)
	assert.Equal(t, []int{1, 2, 3}, result.NewRanks)
}

func TestRerank_Listwise_WithoutSampling_ParseFailureKeepsOriginalOrder(t *testing.T) {
	gen := &scriptedRerankGenerator{defaultText: "not a ranking"}
	reranker, err := NewHybridReranker(RerankerConfig{Generator: gen})
	require.NoError(t, err)

	query, err := NewQuery("rank fusion")
	require.NoError(t, err)

	docs := rerankDocs(t)
	result, err := reranker.Rerank(context.Background(), query, docs, RerankOptions{Method: MethodListwise})
	require.NoError(t, err)
	require.Len(t, result.Documents, 3)
	for i, d := range result.Documents {
		assert.Equal(t, docs[i].ID, d.ID)
	}
}

func TestRerank_MaxDocuments_LeavesTailUnchanged(t *testing.T) {
	gen := &scriptedRerankGenerator{defaultText: "2,1"}
	reranker, err := NewHybridReranker(RerankerConfig{Generator: gen})
	require.NoError(t, err)

	query, err := NewQuery("rank fusion")
	require.NoError(t, err)

	docs := rerankDocs(t)
	result, err := reranker.Rerank(context.Background(), query, docs, RerankOptions{Method: MethodListwise, MaxDocuments: lo.ToPtr(2)})
	require.NoError(t, err)
	require.Len(t, result.Documents, 3)
	assert.Equal(t, "2", result.Documents[0].ID)
	assert.Equal(t, "1", result.Documents[1].ID)
	assert.Equal(t, "3", result.Documents[2].ID)
}

func TestRerank_Pairwise_OrdersByPreference(t *testing.T) {
	gen := &scriptedRerankGenerator{defaultText: "B"}
	reranker, err := NewHybridReranker(RerankerConfig{Generator: gen})
	require.NoError(t, err)

	query, err := NewQuery("rank fusion")
	require.NoError(t, err)

	result, err := reranker.Rerank(context.Background(), query, rerankDocs(t), RerankOptions{Method: MethodPairwise})
	require.NoError(t, err)
	require.Len(t, result.Documents, 3)
	assert.Equal(t, "3", result.Documents[0].ID)
}

func TestRerank_Pointwise_SortsByScoreDescending(t *testing.T) {
	gen := &scriptedRerankGenerator{byKeyword: map[string][]string{
		"potassium": {"2"},
		"merges":    {"9"},
		"blends":    {"5"},
	}}
	reranker, err := NewHybridReranker(RerankerConfig{Generator: gen})
	require.NoError(t, err)

	query, err := NewQuery("rank fusion")
	require.NoError(t, err)

	result, err := reranker.Rerank(context.Background(), query, rerankDocs(t), RerankOptions{Method: MethodPointwise})
	require.NoError(t, err)
	require.Len(t, result.Documents, 3)
	assert.Equal(t, "2", result.Documents[0].ID)
	assert.Equal(t, "3", result.Documents[1].ID)
	assert.Equal(t, "1", result.Documents[2].ID)
}

func TestRerank_NilDocuments_ReturnsEmpty(t *testing.T) {
	gen := &scriptedRerankGenerator{defaultText: "2,1"}
	reranker, err := NewHybridReranker(RerankerConfig{Generator: gen})
	require.NoError(t, err)

	query, err := NewQuery("rank fusion")
	require.NoError(t, err)

	result, err := reranker.Rerank(context.Background(), query, nil, RerankOptions{Method: MethodListwise})
	require.NoError(t, err)
	assert.Empty(t, result.Documents)
}

func TestRerank_ExplicitZeroMaxDocuments_ReturnsInputOrderUnchanged(t *testing.T) {
	// defaultText would reverse a 3-document order if reranking actually
	// ran; an explicit MaxDocuments=0 must skip reranking entirely and
	// leave the input order untouched, distinct from the zero-value
	// (unset) case which reranks everything.
	gen := &scriptedRerankGenerator{defaultText: "3,2,1"}
	reranker, err := NewHybridReranker(RerankerConfig{Generator: gen})
	require.NoError(t, err)

	query, err := NewQuery("rank fusion")
	require.NoError(t, err)

	docs := rerankDocs(t)
	result, err := reranker.Rerank(context.Background(), query, docs, RerankOptions{Method: MethodListwise, MaxDocuments: lo.ToPtr(0)})
	require.NoError(t, err)
	require.Len(t, result.Documents, 3)
	for i, d := range result.Documents {
		assert.Equal(t, docs[i].ID, d.ID)
	}
	assert.Equal(t, result.OriginalRanks, result.NewRanks)
}

func TestParseRanking_RejectsDuplicatesAndOutOfRange(t *testing.T) {
	_, ok := parseRanking("1,1,2", 3)
	assert.False(t, ok)

	_, ok = parseRanking("1,2,4", 3)
	assert.False(t, ok)

	ranking, ok := parseRanking("3,1,2", 3)
	assert.True(t, ok)
	assert.Equal(t, []int{2, 0, 1}, ranking)
}

func TestKendallTauDistance_IdenticalRankingsIsZero(t *testing.T) {
	d := kendallTauDistance([]int{0, 1, 2}, []int{0, 1, 2}, 3)
	assert.Equal(t, 0.0, d)
}

func TestKendallTauDistance_ReversedRankingsIsOne(t *testing.T) {
	d := kendallTauDistance([]int{0, 1, 2}, []int{2, 1, 0}, 3)
	assert.Equal(t, 1.0, d)
}

func TestNewHybridReranker_RequiresGenerator(t *testing.T) {
	_, err := NewHybridReranker(RerankerConfig{})
	assert.Error(t, err)
}
