package rag

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/ragmind/engine/llm"
	"github.com/ragmind/engine/pkg/jaccard"
	"github.com/ragmind/engine/pkg/sets"
	"github.com/ragmind/engine/sampling"
)

// Strategy tags how a ReformulatedQuery was produced.
type Strategy string

const (
	StrategyExpansion     Strategy = "expansion"
	StrategyClarification Strategy = "clarification"
	StrategyDecomposition Strategy = "decomposition"
	StrategySimplification Strategy = "simplification"
	StrategyVariation     Strategy = "variation"
)

// AllStrategies is the default strategy set used when ReformulationOptions
// leaves Strategies empty.
var AllStrategies = []Strategy{
	StrategyExpansion,
	StrategyClarification,
	StrategyDecomposition,
	StrategySimplification,
}

// ReformulatedQuery is one candidate reformulation of the original query.
type ReformulatedQuery struct {
	Query      string
	Strategy   Strategy
	Quality    float64
	Similarity float64
	Rank       int
}

// ReformulationOptions configures a single Reformulate call.
type ReformulationOptions struct {
	NumReformulations int
	Strategies        []Strategy
	Beta              float64
	DedupThreshold    float64
	IncludeOriginal   bool
}

func (o ReformulationOptions) validate() (ReformulationOptions, error) {
	if o.NumReformulations < 0 {
		return o, errors.New("rag: numReformulations must be >= 0")
	}
	if o.NumReformulations == 0 {
		return o, nil
	}
	if len(o.Strategies) == 0 {
		o.Strategies = AllStrategies
	}
	if o.Beta == 0 {
		o.Beta = 1
	}
	if o.DedupThreshold == 0 {
		o.DedupThreshold = 0.7
	}
	return o, nil
}

// ReformulationResult is the spec's reformulate() return value.
type ReformulationResult struct {
	Reformulations []ReformulatedQuery
	Diversity      float64
	AvgQuality     float64
	StrategiesUsed []Strategy
	Latency        time.Duration
}

// ReformulatorConfig configures a MultiStrategyReformulator.
type ReformulatorConfig struct {
	// Engine draws diverse candidates per strategy. Required.
	Engine *sampling.Engine
}

func (c ReformulatorConfig) validate() (ReformulatorConfig, error) {
	if c.Engine == nil {
		return c, errors.New("rag: reformulator config: engine is required")
	}
	return c, nil
}

var _ QueryReformulator = (*MultiStrategyReformulator)(nil)

// MultiStrategyReformulator generates diverse reformulations of a query by
// prompting per strategy and drawing diverse completions from a
// sampling.Engine (C1), deduplicating against the original and against
// every earlier survivor by Jaccard token similarity.
type MultiStrategyReformulator struct {
	engine *sampling.Engine
}

func NewMultiStrategyReformulator(cfg ReformulatorConfig) (*MultiStrategyReformulator, error) {
	cfg, err := cfg.validate()
	if err != nil {
		return nil, err
	}
	return &MultiStrategyReformulator{engine: cfg.Engine}, nil
}

func (r *MultiStrategyReformulator) Reformulate(ctx context.Context, query *Query, opts ReformulationOptions) (ReformulationResult, error) {
	start := time.Now()
	opts, err := opts.validate()
	if err != nil {
		return ReformulationResult{}, err
	}
	if query == nil {
		return ReformulationResult{}, errors.New("rag: query must not be nil")
	}
	if opts.NumReformulations == 0 {
		return ReformulationResult{Latency: time.Since(start)}, nil
	}

	var kept []ReformulatedQuery
	lowerSeen := sets.NewHashSet[string]()
	strategiesUsed := make([]Strategy, 0, len(opts.Strategies))

	for _, strategy := range opts.Strategies {
		if err := ctx.Err(); err != nil {
			return ReformulationResult{}, newError(KindCancelled, "reformulate", "context cancelled", err)
		}

		candidates, err := r.sampleStrategy(ctx, strategy, query.Text, opts)
		if err != nil {
			var genErr *sampling.GeneratorError
			if errors.As(err, &genErr) {
				continue
			}
			return ReformulationResult{}, newError(KindGeneratorError, "reformulate", "sampling failed", err)
		}
		if len(candidates.Samples) > 0 {
			strategiesUsed = append(strategiesUsed, strategy)
		}

		for i, raw := range candidates.Samples {
			cleaned := cleanCandidate(raw)
			quality := candidates.Likelihoods[i]

			for _, text := range splitIfDecomposition(strategy, cleaned) {
				text = strings.TrimSpace(text)
				if text == "" {
					continue
				}
				lower := strings.ToLower(text)
				if lowerSeen.Contains(lower) {
					continue
				}

				similarity := jaccard.Similarity(text, query.Text)
				if similarity > opts.DedupThreshold {
					continue
				}
				tooSimilarToSurvivor := false
				for _, k := range kept {
					if jaccard.Similarity(text, k.Query) > opts.DedupThreshold {
						tooSimilarToSurvivor = true
						break
					}
				}
				if tooSimilarToSurvivor {
					continue
				}

				lowerSeen.Add(lower)
				kept = append(kept, ReformulatedQuery{
					Query:      text,
					Strategy:   strategy,
					Quality:    quality,
					Similarity: similarity,
				})
			}
		}
	}

	sortByQualityDesc(kept)
	if len(kept) > opts.NumReformulations {
		kept = kept[:opts.NumReformulations]
	}

	if opts.IncludeOriginal {
		kept = append([]ReformulatedQuery{{
			Query:      query.Text,
			Strategy:   StrategyVariation,
			Quality:    1,
			Similarity: 1,
		}}, kept...)
	}
	for i := range kept {
		kept[i].Rank = i + 1
	}

	return ReformulationResult{
		Reformulations: kept,
		Diversity:      meanPairwiseDiversity(kept),
		AvgQuality:     avgQuality(kept),
		StrategiesUsed: strategiesUsed,
		Latency:        time.Since(start),
	}, nil
}

func (r *MultiStrategyReformulator) sampleStrategy(ctx context.Context, strategy Strategy, queryText string, opts ReformulationOptions) (sampling.Result, error) {
	prompt := strategyPrompt(strategy, queryText)
	return r.engine.Sample(ctx, prompt, sampling.Config{
		NumSamples: opts.NumReformulations * 2,
		TopK:       opts.NumReformulations,
		Beta:       opts.Beta,
	})
}

var strategyPromptTemplates = map[Strategy]string{
	StrategyExpansion:      "Expand the following query to cover related aspects and broaden the search:\n\nOriginal query: {{.query}}\n\nExpanded query:",
	StrategyClarification:  "Rewrite the following query to remove ambiguity and clarify the user's intent:\n\nOriginal query: {{.query}}\n\nClarified query:",
	StrategyDecomposition:  "Break the following query down into simpler sub-questions, one per line, each ending in a question mark:\n\nOriginal query: {{.query}}\n\nSub-questions:",
	StrategySimplification: "Rewrite the following query using simpler, more direct vocabulary:\n\nOriginal query: {{.query}}\n\nSimplified query:",
}

const defaultStrategyPromptTemplate = "Rephrase the following query while preserving its meaning:\n\nOriginal query: {{.query}}\n\nRephrased query:"

func strategyPrompt(strategy Strategy, queryText string) string {
	tmpl, ok := strategyPromptTemplates[strategy]
	if !ok {
		tmpl = defaultStrategyPromptTemplate
	}
	return llm.NewPromptTemplate().WithTemplate(tmpl).WithQuery(queryText).MustRender()
}

var candidatePrefixes = []string{
	"Expanded query:", "Clarified query:", "Simplified query:", "Rephrased query:",
	"Query:", "Answer:",
}

// cleanCandidate strips a leading strategy label, a leading numbering marker
// ("1.", "2)"), and surrounding quotes from a raw sampled candidate.
func cleanCandidate(text string) string {
	text = strings.TrimSpace(text)
	for _, prefix := range candidatePrefixes {
		if strings.HasPrefix(text, prefix) {
			text = strings.TrimSpace(strings.TrimPrefix(text, prefix))
		}
	}
	text = trimLeadingNumbering(text)
	text = strings.Trim(text, `"'`)
	return strings.TrimSpace(text)
}

func trimLeadingNumbering(text string) string {
	i := 0
	for i < len(text) && text[i] >= '0' && text[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(text) {
		return text
	}
	if text[i] == '.' || text[i] == ')' {
		rest := strings.TrimSpace(text[i+1:])
		if _, err := strconv.Atoi(text[:i]); err == nil {
			return rest
		}
	}
	return text
}

// splitIfDecomposition splits a single decomposition candidate into
// sub-queries, keeping only lines that look like questions. For every
// other strategy the candidate passes through unchanged.
func splitIfDecomposition(strategy Strategy, text string) []string {
	if strategy != StrategyDecomposition {
		return []string{text}
	}
	lines := lo.Map(strings.Split(text, "\n"), func(line string, _ int) string {
		return strings.TrimSpace(line)
	})
	return lo.Filter(lines, func(line string, _ int) bool {
		return len(line) >= 10 && strings.Contains(line, "?")
	})
}

func sortByQualityDesc(rs []ReformulatedQuery) {
	for i := 1; i < len(rs); i++ {
		for j := i; j > 0 && rs[j-1].Quality < rs[j].Quality; j-- {
			rs[j-1], rs[j] = rs[j], rs[j-1]
		}
	}
}

func avgQuality(rs []ReformulatedQuery) float64 {
	if len(rs) == 0 {
		return 0
	}
	return lo.SumBy(rs, func(r ReformulatedQuery) float64 { return r.Quality }) / float64(len(rs))
}

func meanPairwiseDiversity(rs []ReformulatedQuery) float64 {
	if len(rs) < 2 {
		return 0
	}
	var sum float64
	var count int
	for i := 0; i < len(rs); i++ {
		for j := i + 1; j < len(rs); j++ {
			sum += 1 - jaccard.Similarity(rs[i].Query, rs[j].Query)
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
