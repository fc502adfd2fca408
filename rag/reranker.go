package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ragmind/engine/document"
	"github.com/ragmind/engine/llm"
	"github.com/ragmind/engine/sampling"
	"github.com/ragmind/engine/verifier"
)

// Method selects the reranking strategy.
type Method string

const (
	MethodListwise Method = "listwise"
	MethodPairwise Method = "pairwise"
	MethodPointwise Method = "pointwise"
)

// RerankOptions configures a single Rerank call.
type RerankOptions struct {
	Method        Method
	NumHypotheses int
	Beta          float64
	// MaxDocuments caps how many of the highest-ranked input documents are
	// sent through reranking; the remainder pass through unchanged. Nil
	// means "unset" and defaults to every document. An explicit *0* is the
	// spec's boundary case: it reranks nothing and Rerank returns the
	// input order unchanged, so this must stay a pointer rather than a
	// plain int — a plain int can't tell "caller didn't set this" apart
	// from "caller asked for zero".
	MaxDocuments         *int
	DiversityWeight      float64
	TRMEnabled           bool
	TRMWeight            float64
	UseInferenceSampling bool
}

func (o RerankOptions) validate() (RerankOptions, error) {
	if o.Method == "" {
		o.Method = MethodListwise
	}
	if o.NumHypotheses == 0 {
		o.NumHypotheses = 4
	}
	if o.Beta == 0 {
		o.Beta = 1
	}
	if o.TRMWeight < 0 || o.TRMWeight > 1 {
		return o, errors.New("rag: trm weight must be within [0,1]")
	}
	if o.DiversityWeight < 0 || o.DiversityWeight > 1 {
		return o, errors.New("rag: diversity weight must be within [0,1]")
	}
	return o, nil
}

// resolveMaxDocuments applies the nil-means-"every document" default and
// clamps an explicit value to [0, docCount].
func (o RerankOptions) resolveMaxDocuments(docCount int) int {
	if o.MaxDocuments == nil {
		return docCount
	}
	n := *o.MaxDocuments
	if n < 0 {
		return 0
	}
	if n > docCount {
		return docCount
	}
	return n
}

// RerankResult is the spec's rerank() return value.
type RerankResult struct {
	Documents     []*document.Document
	OriginalRanks []int
	NewRanks      []int
	DiversityScore float64
	QualityScore  float64
	Latency       time.Duration
	Method        Method
}

// RerankerConfig configures a HybridReranker.
type RerankerConfig struct {
	// Generator issues pairwise/pointwise judge prompts and, when
	// UseInferenceSampling is false, the single listwise ranking prompt.
	// Required.
	Generator llm.Generator
	// Engine draws diverse candidate rankings for listwise+sampling.
	// Required only when Rerank is called with UseInferenceSampling=true
	// and Method=listwise.
	Engine *sampling.Engine
	// Verifier blends a faithfulness score into the listwise ranking
	// selection when RerankOptions.TRMEnabled is set. Optional.
	Verifier verifier.Adapter
}

func (c RerankerConfig) validate() (RerankerConfig, error) {
	if c.Generator == nil {
		return c, errors.New("rag: reranker config: generator is required")
	}
	return c, nil
}

var _ Reranker = (*HybridReranker)(nil)

// HybridReranker implements listwise (with optional diverse-hypothesis
// sampling via C1), pairwise, and pointwise reranking, optionally blending
// a VerifierAdapter score into the listwise candidate selection.
type HybridReranker struct {
	generator llm.Generator
	engine    *sampling.Engine
	verifier  verifier.Adapter
}

func NewHybridReranker(cfg RerankerConfig) (*HybridReranker, error) {
	cfg, err := cfg.validate()
	if err != nil {
		return nil, err
	}
	return &HybridReranker{generator: cfg.Generator, engine: cfg.Engine, verifier: cfg.Verifier}, nil
}

func (h *HybridReranker) Rerank(ctx context.Context, query *Query, documents []*document.Document, opts RerankOptions) (RerankResult, error) {
	start := time.Now()
	if query == nil {
		return RerankResult{}, errors.New("rag: query must not be nil")
	}
	opts, err := opts.validate()
	if err != nil {
		return RerankResult{}, err
	}

	originalRanks := make([]int, len(documents))
	for i := range documents {
		originalRanks[i] = i + 1
	}

	maxDocuments := opts.resolveMaxDocuments(len(documents))
	if maxDocuments == 0 {
		return RerankResult{
			Documents:     cloneDocs(documents),
			OriginalRanks: originalRanks,
			NewRanks:      append([]int(nil), originalRanks...),
			Method:        opts.Method,
			Latency:       time.Since(start),
		}, nil
	}

	head := documents[:maxDocuments]
	tail := documents[maxDocuments:]

	var reordered []*document.Document
	switch opts.Method {
	case MethodPairwise:
		reordered, err = h.rerankPairwise(ctx, query, head)
	case MethodPointwise:
		reordered, err = h.rerankPointwise(ctx, query, head)
	default:
		reordered, err = h.rerankListwise(ctx, query, head, opts)
	}
	if err != nil {
		return RerankResult{}, err
	}

	final := append(cloneDocs(reordered), cloneDocs(tail)...)
	newRanks := make([]int, len(final))
	originalRankByID := make(map[string]int, len(documents))
	for i, d := range documents {
		originalRankByID[d.ID] = i + 1
	}
	for i, d := range final {
		d.Rank = i + 1
		newRanks[i] = i + 1
	}

	return RerankResult{
		Documents:      final,
		OriginalRanks:  originalRanks,
		NewRanks:       newRanks,
		DiversityScore: meanDocumentDiversity(head),
		QualityScore:   qualityScore(documents, final, originalRankByID),
		Latency:        time.Since(start),
		Method:         opts.Method,
	}, nil
}

func cloneDocs(docs []*document.Document) []*document.Document {
	out := make([]*document.Document, len(docs))
	for i, d := range docs {
		out[i] = d.Clone()
	}
	return out
}

// rerankListwise implements both listwise variants: with diverse-hypothesis
// sampling (drawing H candidate rankings and scoring each by a
// quality/diversity/verifier blend), and without (a single generation,
// falling back to input order on parse failure).
func (h *HybridReranker) rerankListwise(ctx context.Context, query *Query, docs []*document.Document, opts RerankOptions) ([]*document.Document, error) {
	m := len(docs)
	prompt := buildListwisePrompt(query.Text, docs)

	if !opts.UseInferenceSampling {
		completion, err := h.generator.Generate(ctx, prompt, llm.GenerateOptions{Temperature: 0.3, MaxTokens: 128})
		if err != nil {
			return nil, newError(KindGeneratorError, "rerank", "listwise ranking call failed", err)
		}
		ranking, ok := parseRanking(completion.Text, m)
		if !ok {
			return cloneDocs(docs), nil
		}
		return applyRanking(docs, ranking), nil
	}

	if h.engine == nil {
		return nil, newError(KindNotConfigured, "rerank", "listwise reranking with sampling requires a sampling engine", nil)
	}
	result, err := h.engine.Sample(ctx, prompt, sampling.Config{
		NumSamples: opts.NumHypotheses * 2,
		TopK:       opts.NumHypotheses,
		Beta:       opts.Beta,
	})
	if err != nil {
		var genErr *sampling.GeneratorError
		if errors.As(err, &genErr) {
			return cloneDocs(docs), nil
		}
		return nil, newError(KindGeneratorError, "rerank", "listwise sampling failed", err)
	}

	var rankings [][]int
	var qualities []float64
	for i, sample := range result.Samples {
		ranking, ok := parseRanking(sample, m)
		if !ok {
			continue
		}
		rankings = append(rankings, ranking)
		qualities = append(qualities, result.Likelihoods[i])
	}
	if len(rankings) == 0 {
		return cloneDocs(docs), nil
	}

	bestIdx := h.selectBestRanking(ctx, query, docs, rankings, qualities, opts)
	return applyRanking(docs, rankings[bestIdx]), nil
}

func (h *HybridReranker) selectBestRanking(ctx context.Context, query *Query, docs []*document.Document, rankings [][]int, qualities []float64, opts RerankOptions) int {
	maxPairs := float64(len(docs) * (len(docs) - 1) / 2)

	scores := make([]float64, len(rankings))
	for i, ranking := range rankings {
		var tauSum float64
		for j, other := range rankings {
			if i == j {
				continue
			}
			tauSum += kendallTauDistance(ranking, other, maxPairs)
		}
		meanTau := 0.0
		if len(rankings) > 1 {
			meanTau = tauSum / float64(len(rankings)-1)
		}
		scores[i] = (1-opts.DiversityWeight)*qualities[i] + opts.DiversityWeight*meanTau
	}

	if opts.TRMEnabled && opts.TRMWeight > 0 && h.verifier != nil {
		for i, ranking := range rankings {
			reordered := applyRanking(docs, ranking)
			top := reordered
			if len(top) > 3 {
				top = top[:3]
			}
			var sb strings.Builder
			for _, d := range top {
				sb.WriteString(d.Content)
				sb.WriteString("\n")
			}
			newFirst := ""
			if len(reordered) > 0 {
				newFirst = reordered[0].Content
			}
			v, err := h.verifier.Verify(ctx, query.Text, sb.String(), newFirst)
			if err == nil {
				scores[i] = (1-opts.TRMWeight)*scores[i] + opts.TRMWeight*v.Score
			}
		}
	}

	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	return best
}

// rerankPairwise bubble-sorts docs using a pairwise "which is more
// relevant" judge prompt issued per comparison.
func (h *HybridReranker) rerankPairwise(ctx context.Context, query *Query, docs []*document.Document) ([]*document.Document, error) {
	ordered := cloneDocs(docs)
	for i := 0; i < len(ordered); i++ {
		for j := 0; j < len(ordered)-i-1; j++ {
			aWins, err := h.pairwisePrefersFirst(ctx, query.Text, ordered[j], ordered[j+1])
			if err != nil {
				return nil, err
			}
			if !aWins {
				ordered[j], ordered[j+1] = ordered[j+1], ordered[j]
			}
		}
	}
	return ordered, nil
}

func (h *HybridReranker) pairwisePrefersFirst(ctx context.Context, queryText string, a, b *document.Document) (bool, error) {
	prompt := fmt.Sprintf(
		"Query: %s\n\nDocument A:\n%s\n\nDocument B:\n%s\n\nWhich document is more relevant to the query? Respond with only \"A\" or \"B\".",
		queryText, a.Content, b.Content,
	)
	completion, err := h.generator.Generate(ctx, prompt, llm.GenerateOptions{Temperature: 0, MaxTokens: 4})
	if err != nil {
		return false, newError(KindGeneratorError, "rerank", "pairwise judge call failed", err)
	}
	return !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(completion.Text)), "B"), nil
}

// rerankPointwise scores each document independently on a 0-10 scale and
// sorts descending.
func (h *HybridReranker) rerankPointwise(ctx context.Context, query *Query, docs []*document.Document) ([]*document.Document, error) {
	ordered := cloneDocs(docs)
	scores := make([]float64, len(ordered))
	for i, d := range ordered {
		prompt := fmt.Sprintf(
			"Query: %s\n\nDocument:\n%s\n\nOn a scale from 0 to 10, how relevant is this document to the query? Respond with only the number.",
			query.Text, d.Content,
		)
		completion, err := h.generator.Generate(ctx, prompt, llm.GenerateOptions{Temperature: 0, MaxTokens: 4})
		if err != nil {
			return nil, newError(KindGeneratorError, "rerank", "pointwise judge call failed", err)
		}
		scores[i] = parseScoreOutOfTen(completion.Text)
	}

	indices := make([]int, len(ordered))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(a, b int) bool {
		return scores[indices[a]] > scores[indices[b]]
	})

	out := make([]*document.Document, len(ordered))
	for i, idx := range indices {
		out[i] = ordered[idx]
	}
	return out, nil
}

func parseScoreOutOfTen(text string) float64 {
	text = strings.TrimSpace(text)
	end := 0
	for end < len(text) && text[end] >= '0' && text[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	n, err := strconv.Atoi(text[:end])
	if err != nil {
		return 0
	}
	if n > 10 {
		n = 10
	}
	return float64(n)
}

const listwisePromptTemplate = "Query: {{.query}}\n\n" +
	"Rank the following documents from most to least relevant to the query.\n" +
	"{{.documents}}\n" +
	"Respond with only a comma-separated list of document numbers, e.g. \"3,1,2\"."

func buildListwisePrompt(queryText string, docs []*document.Document) string {
	var sb strings.Builder
	for i, d := range docs {
		fmt.Fprintf(&sb, "[%d] %s\n", i+1, d.Content)
	}
	return llm.NewPromptTemplate().
		WithTemplate(listwisePromptTemplate).
		WithQuery(queryText).
		WithVariable("documents", sb.String()).
		MustRender()
}

// parseRanking parses a comma-separated 1-based ranking and validates it is
// a permutation of 0..m-1 once converted to 0-based indices.
func parseRanking(text string, m int) ([]int, bool) {
	parts := strings.Split(strings.TrimSpace(text), ",")
	if len(parts) != m {
		return nil, false
	}
	indices := make([]int, 0, m)
	seen := make(map[int]bool, m)
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, false
		}
		idx := n - 1
		if idx < 0 || idx >= m || seen[idx] {
			return nil, false
		}
		seen[idx] = true
		indices = append(indices, idx)
	}
	return indices, true
}

func applyRanking(docs []*document.Document, ranking []int) []*document.Document {
	out := make([]*document.Document, len(ranking))
	for i, idx := range ranking {
		out[i] = docs[idx].Clone()
	}
	return out
}

// kendallTauDistance counts discordant pairs between two rankings over the
// same index set and normalizes by the maximum possible pair count.
func kendallTauDistance(a, b []int, maxPairs float64) float64 {
	if maxPairs == 0 {
		return 0
	}
	posInB := make(map[int]int, len(b))
	for pos, v := range b {
		posInB[v] = pos
	}
	discordant := 0
	for i := 0; i < len(a); i++ {
		for j := i + 1; j < len(a); j++ {
			if (posInB[a[i]] - posInB[a[j]]) * (i - j) < 0 {
				discordant++
			}
		}
	}
	return float64(discordant) / maxPairs
}

// qualityScore is the rank-improvement proxy: average over the top 5 final
// documents of (originalRank-newRank)/originalRank, clamped at 0.
func qualityScore(original, final []*document.Document, originalRankByID map[string]int) float64 {
	limit := len(final)
	if limit > 5 {
		limit = 5
	}
	if limit == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < limit; i++ {
		originalRank, ok := originalRankByID[final[i].ID]
		if !ok || originalRank == 0 {
			continue
		}
		newRank := i + 1
		improvement := float64(originalRank-newRank) / float64(originalRank)
		if improvement < 0 {
			improvement = 0
		}
		sum += improvement
	}
	return sum / float64(limit)
}
