package rag

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/ragmind/engine/document"
	"github.com/ragmind/engine/pkg/jaccard"
	"github.com/ragmind/engine/vectorstore"
)

const (
	// SourceQueryKey / SourceWeightKey tag every returned document with the
	// query text and weight of the first working query (in query order)
	// whose results contained it.
	SourceQueryKey  = "rag:retriever:source_query"
	SourceWeightKey = "rag:retriever:source_weight"
	SeenInQueriesKey = "rag:retriever:seen_in_queries"
)

// RetrievalOptions configures a single Retrieve call.
type RetrievalOptions struct {
	K                       int
	UseReformulation        bool
	NumReformulations       int
	ReformulationStrategies []Strategy
	HybridAlpha             float64
	Parallel                bool
	Filters                 map[string]any
	MinSimilarity           float64
	MaxDiversity            float64
	RRFK                    int
}

func (o RetrievalOptions) validate() (RetrievalOptions, error) {
	if o.K < 0 {
		return o, errors.New("rag: retrieval k must be >= 0")
	}
	// K==0 is left as-is, not defaulted: it is the spec's boundary case
	// ("k=0 -> empty documents, no error"), handled by an early return in
	// Retrieve before any search runs. A caller that wants the package
	// default simply sets K to vectorstore.DefaultTopK.
	if o.HybridAlpha == 0 {
		o.HybridAlpha = 0.5
	}
	if o.RRFK == 0 {
		o.RRFK = vectorstore.RRFConstant
	}
	// MaxDiversity left at its zero value means "no diversity filtering":
	// the exclusion threshold (1-MaxDiversity) is then 1, which no Jaccard
	// similarity can exceed.
	if o.NumReformulations == 0 {
		o.NumReformulations = 3
	}
	return o, nil
}

// RetrievalResult is the spec's retrieve() return value.
type RetrievalResult struct {
	Documents      []*document.Document
	Reformulations []ReformulatedQuery
	Diversity      float64
	AvgSimilarity  float64
	Latency        time.Duration
	QueriesUsed    int
}

// RetrieverConfig configures a VectorStoreDocumentRetriever.
type RetrieverConfig struct {
	// VectorStore serves the hybrid searches. Required.
	VectorStore vectorstore.VectorStore
	// Reformulator generates the working query set when UseReformulation is
	// set in RetrievalOptions. Optional — if nil, UseReformulation is a
	// caller error.
	Reformulator QueryReformulator
}

func (c RetrieverConfig) validate() (RetrieverConfig, error) {
	if c.VectorStore == nil {
		return c, errors.New("rag: retriever config: vector store is required")
	}
	return c, nil
}

var _ DocumentRetriever = (*VectorStoreDocumentRetriever)(nil)

// VectorStoreDocumentRetriever retrieves documents for one or more working
// queries (optionally produced by a QueryReformulator) via hybrid search,
// fusing per-query ranked lists with weighted RRF (C4).
type VectorStoreDocumentRetriever struct {
	vectorStore  vectorstore.VectorStore
	reformulator QueryReformulator
}

func NewVectorStoreDocumentRetriever(cfg RetrieverConfig) (*VectorStoreDocumentRetriever, error) {
	cfg, err := cfg.validate()
	if err != nil {
		return nil, err
	}
	return &VectorStoreDocumentRetriever{
		vectorStore:  cfg.VectorStore,
		reformulator: cfg.Reformulator,
	}, nil
}

type weightedQuery struct {
	text   string
	weight float64
}

func (v *VectorStoreDocumentRetriever) Retrieve(ctx context.Context, query *Query, opts RetrievalOptions) (RetrievalResult, error) {
	start := time.Now()
	opts, err := opts.validate()
	if err != nil {
		return RetrievalResult{}, err
	}
	if query == nil {
		return RetrievalResult{}, errors.New("rag: query must not be nil")
	}
	if opts.K == 0 {
		return RetrievalResult{Latency: time.Since(start)}, nil
	}

	var reformulations []ReformulatedQuery
	queries := []weightedQuery{{text: query.Text, weight: 1.0}}

	if opts.UseReformulation {
		if v.reformulator == nil {
			return RetrievalResult{}, newError(KindNotConfigured, "retrieve", "retrieval requested reformulation but no reformulator is configured", nil)
		}
		result, err := v.reformulator.Reformulate(ctx, query, ReformulationOptions{
			NumReformulations: opts.NumReformulations,
			Strategies:        opts.ReformulationStrategies,
			IncludeOriginal:   true,
		})
		if err != nil {
			return RetrievalResult{}, err
		}
		reformulations = result.Reformulations
		queries = queries[:0]
		for _, r := range reformulations {
			queries = append(queries, weightedQuery{text: r.Query, weight: r.Quality})
		}
		if len(queries) == 0 {
			queries = []weightedQuery{{text: query.Text, weight: 1.0}}
		}
	}

	perQueryDocs, err := v.searchQueries(ctx, queries, opts)
	if err != nil {
		return RetrievalResult{}, err
	}

	fused := fuseByID(perQueryDocs, opts.RRFK)
	filtered := filterByThresholds(fused, opts.MinSimilarity, opts.MaxDiversity)

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Similarity > filtered[j].Similarity
	})
	if len(filtered) > opts.K {
		filtered = filtered[:opts.K]
	}
	for i, d := range filtered {
		d.Rank = i + 1
	}

	return RetrievalResult{
		Documents:      filtered,
		Reformulations: reformulations,
		Diversity:      meanDocumentDiversity(filtered),
		AvgSimilarity:  avgSimilarity(filtered),
		Latency:        time.Since(start),
		QueriesUsed:    len(queries),
	}, nil
}

// searchQueries runs a hybrid search per working query, in parallel when
// RetrievalOptions.Parallel is set, and tags every returned document with
// its sourcing query and weight.
func (v *VectorStoreDocumentRetriever) searchQueries(ctx context.Context, queries []weightedQuery, opts RetrievalOptions) ([][]*document.Document, error) {
	results := make([][]*document.Document, len(queries))
	searchOpts := vectorstore.SearchOptions{TopK: 2 * opts.K, Filters: opts.Filters}

	search := func(i int) error {
		docs, err := v.vectorStore.HybridSearch(ctx, queries[i].text, opts.HybridAlpha, searchOpts)
		if err != nil {
			return newError(KindBackendError, "retrieve", "hybrid search failed", err)
		}
		for _, d := range docs {
			d.Metadata[SourceQueryKey] = queries[i].text
			d.Metadata[SourceWeightKey] = queries[i].weight
		}
		results[i] = docs
		return nil
	}

	if !opts.Parallel {
		for i := range queries {
			if err := ctx.Err(); err != nil {
				return nil, newError(KindCancelled, "retrieve", "context cancelled", err)
			}
			if err := search(i); err != nil {
				return nil, err
			}
		}
		return results, nil
	}

	g, _ := errgroup.WithContext(ctx)
	for i := range queries {
		i := i
		g.Go(func() error {
			return search(i)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// fuseByID groups documents across all per-query result lists by id,
// computing each one's RRF score from every occurrence's sourcing weight
// and rank. Stable order (sorted by id) guarantees identical scores
// regardless of parallel completion order.
func fuseByID(perQueryDocs [][]*document.Document, rrfK int) []*document.Document {
	type group struct {
		doc   *document.Document
		score float64
		seen  int
	}
	byID := make(map[string]*group)
	var ids []string

	for _, docs := range perQueryDocs {
		for _, d := range docs {
			g, exists := byID[d.ID]
			if !exists {
				clone := d.Clone()
				g = &group{doc: clone}
				byID[d.ID] = g
				ids = append(ids, d.ID)
			}
			weight, ok := d.Metadata[SourceWeightKey].(float64)
			if !ok {
				weight = 1
			}
			g.score += weight / float64(rrfK+d.Rank)
			g.seen++
		}
	}

	sort.Strings(ids)
	out := make([]*document.Document, 0, len(ids))
	for _, id := range ids {
		g := byID[id]
		g.doc.Similarity = g.score
		g.doc.Metadata[SeenInQueriesKey] = g.seen
		out = append(out, g.doc)
	}
	return out
}

func filterByThresholds(docs []*document.Document, minSimilarity, maxDiversity float64) []*document.Document {
	maxAllowedSimilarity := 1 - maxDiversity
	kept := make([]*document.Document, 0, len(docs))
	for _, d := range docs {
		if d.Similarity < minSimilarity {
			continue
		}
		tooSimilar := false
		for _, k := range kept {
			if jaccard.Similarity(d.Content, k.Content) > maxAllowedSimilarity {
				tooSimilar = true
				break
			}
		}
		if tooSimilar {
			continue
		}
		kept = append(kept, d)
	}
	return kept
}

func avgSimilarity(docs []*document.Document) float64 {
	if len(docs) == 0 {
		return 0
	}
	return lo.SumBy(docs, func(d *document.Document) float64 { return d.Similarity }) / float64(len(docs))
}

func meanDocumentDiversity(docs []*document.Document) float64 {
	if len(docs) < 2 {
		return 0
	}
	var sum float64
	var count int
	for i := 0; i < len(docs); i++ {
		for j := i + 1; j < len(docs); j++ {
			sum += 1 - jaccard.Similarity(docs[i].Content, docs[j].Content)
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
