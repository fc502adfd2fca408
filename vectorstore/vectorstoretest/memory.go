// Package vectorstoretest provides an in-memory VectorStore fake used by
// the test suites of DocumentRetriever (C4) and Pipeline (C10), so those
// packages can be tested without a live backend. It is grounded on the
// teacher's vector_store.go request/response shapes, generalized to the
// three search modes of the spec.
package vectorstoretest

import (
	"context"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/ragmind/engine/document"
	"github.com/ragmind/engine/llm"
	"github.com/ragmind/engine/pkg/jaccard"
	"github.com/ragmind/engine/vectorstore"
)

// Store is an in-memory VectorStore. Embedder is optional; when nil,
// SimilaritySearch and HybridSearch fall back to keyword (Jaccard) scoring
// and VectorSearch returns rag.NotConfigured-style errors from callers that
// require embeddings (the store itself just returns empty cosine scores).
type Store struct {
	mu       sync.RWMutex
	docs     map[string]*document.Document
	embedder llm.Embedder
}

// New creates an empty Store. Pass a nil embedder to exercise the
// keyword-only fallback path.
func New(embedder llm.Embedder) *Store {
	return &Store{
		docs:     make(map[string]*document.Document),
		embedder: embedder,
	}
}

var _ vectorstore.VectorStore = (*Store)(nil)

func matchesFilters(d *document.Document, filters map[string]any) bool {
	for k, v := range filters {
		if d.Metadata[k] != v {
			return false
		}
	}
	return true
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}

func (s *Store) snapshot() []*document.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*document.Document, 0, len(s.docs))
	for _, d := range s.docs {
		out = append(out, d.Clone())
	}
	return out
}

func rankAndTrim(docs []*document.Document, topK int) []*document.Document {
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].Similarity > docs[j].Similarity
	})
	if topK > 0 && len(docs) > topK {
		docs = docs[:topK]
	}
	for i, d := range docs {
		d.Rank = i + 1
	}
	return docs
}

// SimilaritySearch scores every document by cosine similarity against an
// embedding of query when an Embedder is configured, otherwise by Jaccard
// token overlap between query and document content.
func (s *Store) SimilaritySearch(ctx context.Context, query string, opts vectorstore.SearchOptions) ([]*document.Document, error) {
	var queryEmbedding []float64
	if s.embedder != nil {
		emb, err := s.embedder.Embed(ctx, query)
		if err != nil {
			return nil, err
		}
		queryEmbedding = emb
	}

	candidates := s.snapshot()
	matched := candidates[:0]
	for _, d := range candidates {
		if !matchesFilters(d, opts.Filters) {
			continue
		}
		if queryEmbedding != nil && d.Embedding != nil {
			d.Similarity = cosineSimilarity(queryEmbedding, d.Embedding)
		} else {
			d.Similarity = jaccard.Similarity(query, d.Content)
		}
		matched = append(matched, d)
	}

	topK := opts.TopK
	if topK == 0 {
		topK = vectorstore.DefaultTopK
	}
	return rankAndTrim(matched, topK), nil
}

// VectorSearch scores every document by cosine similarity against
// queryEmbedding directly.
func (s *Store) VectorSearch(_ context.Context, queryEmbedding []float64, opts vectorstore.SearchOptions) ([]*document.Document, error) {
	candidates := s.snapshot()
	matched := candidates[:0]
	for _, d := range candidates {
		if !matchesFilters(d, opts.Filters) {
			continue
		}
		d.Similarity = cosineSimilarity(queryEmbedding, d.Embedding)
		matched = append(matched, d)
	}

	topK := opts.TopK
	if topK == 0 {
		topK = vectorstore.DefaultTopK
	}
	return rankAndTrim(matched, topK), nil
}

// HybridSearch fuses a semantic ranked list (SimilaritySearch) with a
// keyword ranked list (pure Jaccard overlap, ignoring any embedding) via
// RRF, weighting the semantic arm by alpha.
func (s *Store) HybridSearch(ctx context.Context, query string, alpha float64, opts vectorstore.SearchOptions) ([]*document.Document, error) {
	semantic, err := s.SimilaritySearch(ctx, query, opts)
	if err != nil {
		return nil, err
	}

	candidates := s.snapshot()
	keyword := candidates[:0]
	for _, d := range candidates {
		if !matchesFilters(d, opts.Filters) {
			continue
		}
		d.Similarity = jaccard.Similarity(query, d.Content)
		keyword = append(keyword, d)
	}
	topK := opts.TopK
	if topK == 0 {
		topK = vectorstore.DefaultTopK
	}
	keyword = rankAndTrim(keyword, topK)

	fused := vectorstore.FuseRRF([][]*document.Document{semantic, keyword}, []float64{alpha, 1 - alpha})
	if len(fused) > topK {
		fused = fused[:topK]
	}
	return fused, nil
}

// Insert embeds (when an Embedder is configured and the document has none)
// and stores docs, overwriting any existing document with the same ID.
func (s *Store) Insert(ctx context.Context, docs []*document.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range docs {
		clone := d.Clone()
		if clone.Embedding == nil && s.embedder != nil {
			emb, err := s.embedder.Embed(ctx, clone.Content)
			if err != nil {
				return err
			}
			clone.Embedding = emb
		}
		s.docs[clone.ID] = clone
	}
	return nil
}

// Delete removes every stored document matching filters.
func (s *Store) Delete(_ context.Context, filters map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, d := range s.docs {
		if matchesFilters(d, filters) {
			delete(s.docs, id)
		}
	}
	return nil
}

// GetCollectionInfo reports the current document count.
func (s *Store) GetCollectionInfo(_ context.Context) (vectorstore.CollectionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return vectorstore.CollectionInfo{
		Provider:      "vectorstoretest.Store",
		DocumentCount: len(s.docs),
		NativeClient:  s,
	}, nil
}
