package rag

import (
	"context"

	"github.com/ragmind/engine/document"
)

// QueryReformulator generates diverse, strategy-tagged reformulations of a
// query (C3), addressing poorly formed queries, ambiguous terms, or
// overly complex questions that benefit from decomposition.
type QueryReformulator interface {
	Reformulate(ctx context.Context, query *Query, opts ReformulationOptions) (ReformulationResult, error)
}

// DocumentRetriever retrieves documents relevant to a query from an
// underlying VectorStore, fusing multi-query results via RRF (C4).
type DocumentRetriever interface {
	Retrieve(ctx context.Context, query *Query, opts RetrievalOptions) (RetrievalResult, error)
}

// Reranker reorders a candidate document list using listwise, pairwise, or
// pointwise judgment, optionally blended with a VerifierAdapter score (C5).
type Reranker interface {
	Rerank(ctx context.Context, query *Query, documents []*document.Document, opts RerankOptions) (RerankResult, error)
}

// ContextSynthesizer compresses a reranked document list into a single
// context string, optionally advancing a DeltaMemory state (C7).
type ContextSynthesizer interface {
	Synthesize(ctx context.Context, query *Query, documents []*document.Document, opts SynthesisOptions) (SynthesisResult, error)
}

// AnswerGenerator draws and verifies an answer to a query given a
// synthesized context (C8).
type AnswerGenerator interface {
	Generate(ctx context.Context, query *Query, context string, opts GenerationOptions) (GenerationResult, error)
}
