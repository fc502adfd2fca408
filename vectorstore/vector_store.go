// Package vectorstore defines the VectorStore contract (C2): semantic,
// vector, and hybrid search with reciprocal rank fusion, plus insert,
// delete, and collection introspection. No backend is implemented here —
// only the contract and an RRF fusion helper.
package vectorstore

import (
	"context"
	"errors"

	"github.com/ragmind/engine/document"
)

const (
	// DefaultTopK is used when a caller omits TopK.
	DefaultTopK = 5

	// RRFConstant is the rank-fusion smoothing constant k in
	// score(d) = Σ_l w_l / (RRFConstant + rank_l(d)).
	RRFConstant = 60

	// MinScore/MaxScore bound a valid similarity.
	MinScore = 0.0
	MaxScore = 1.0
)

// SearchOptions carries the parameters shared by all three search modes.
type SearchOptions struct {
	// TopK is the maximum number of documents to return. Defaults to
	// DefaultTopK when zero.
	TopK int
	// Filters maps a metadata key to a required value; a document must
	// match every entry to be eligible.
	Filters map[string]any
}

func (o SearchOptions) validate() (SearchOptions, error) {
	if o.TopK < 0 {
		return o, errors.New("vectorstore: topK must not be negative")
	}
	if o.TopK == 0 {
		o.TopK = DefaultTopK
	}
	return o, nil
}

// CollectionInfo describes the backing store, analogous to the teacher's
// StoreInfo: enough for a caller to identify the provider and, if needed,
// drop down to the native client for operations this contract doesn't cover.
type CollectionInfo struct {
	Provider      string
	DocumentCount int
	NativeClient  any
}

// VectorStore is the C2 contract. Implementations MAY fall back to
// keyword-only search in SimilaritySearch when no embedding provider is
// configured, but MUST then report rag.NotConfigured from HybridSearch and
// VectorSearch, which require vectors.
type VectorStore interface {
	// SimilaritySearch performs semantic search over query text, embedding
	// it internally. Returned documents are ordered by similarity desc,
	// ranks assigned starting at 1, every Similarity populated.
	SimilaritySearch(ctx context.Context, query string, opts SearchOptions) ([]*document.Document, error)

	// VectorSearch performs a direct nearest-neighbor lookup against a
	// precomputed query embedding.
	VectorSearch(ctx context.Context, queryEmbedding []float64, opts SearchOptions) ([]*document.Document, error)

	// HybridSearch fuses semantic and keyword search via reciprocal rank
	// fusion. alpha in [0,1] weights the semantic arm: 0 is keyword-only,
	// 1 is semantic-only.
	HybridSearch(ctx context.Context, query string, alpha float64, opts SearchOptions) ([]*document.Document, error)

	// Insert embeds and indexes docs for future search.
	Insert(ctx context.Context, docs []*document.Document) error

	// Delete removes every document whose metadata matches filters.
	Delete(ctx context.Context, filters map[string]any) error

	// GetCollectionInfo reports metadata about the backing store.
	GetCollectionInfo(ctx context.Context) (CollectionInfo, error)
}

// FuseRRF combines any number of ranked lists into one, scoring each
// document by Σ weight/(RRFConstant+rank) over every list it appears in,
// and reassigning 1-based ranks by descending fused score. lists and
// weights must be the same length; a weight of 0 excludes a list's
// contribution without needing to omit it. The in-memory fake in
// vectorstoretest builds its HybridSearch on it; the DocumentRetriever (C4)
// fuses its per-query lists with its own implementation in package rag.
func FuseRRF(lists [][]*document.Document, weights []float64) []*document.Document {
	if len(lists) == 0 {
		return nil
	}

	type accum struct {
		doc   *document.Document
		score float64
		seen  int
	}
	byID := make(map[string]*accum)
	order := make([]string, 0)

	for li, list := range lists {
		w := 1.0
		if li < len(weights) {
			w = weights[li]
		}
		if w == 0 {
			continue
		}
		for i, doc := range list {
			rank := i + 1
			a, ok := byID[doc.ID]
			if !ok {
				clone := doc.Clone()
				a = &accum{doc: clone}
				byID[doc.ID] = a
				order = append(order, doc.ID)
			}
			a.score += w / float64(RRFConstant+rank)
			a.seen++
		}
	}

	fused := make([]*document.Document, 0, len(order))
	for _, id := range order {
		a := byID[id]
		a.doc.Similarity = a.score
		a.doc.Metadata["seenInQueries"] = a.seen
		fused = append(fused, a.doc)
	}

	sortDocumentsBySimilarityDesc(fused)
	for i, d := range fused {
		d.Rank = i + 1
	}
	return fused
}

func sortDocumentsBySimilarityDesc(docs []*document.Document) {
	for i := 1; i < len(docs); i++ {
		for j := i; j > 0 && docs[j].Similarity > docs[j-1].Similarity; j-- {
			docs[j], docs[j-1] = docs[j-1], docs[j]
		}
	}
}
