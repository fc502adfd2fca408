package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ragmind/engine/document"
	"github.com/ragmind/engine/memory"
	"github.com/ragmind/engine/tokenizer"
)

// ReformulationStageConfig wraps ReformulationOptions with the stage-level
// enable flag. When disabled, Execute uses a synthetic single
// reformulation carrying the original query unchanged, per the spec's
// "reformulation.enabled=false" behavior.
type ReformulationStageConfig struct {
	Enabled bool
	Options ReformulationOptions
}

// RerankingStageConfig wraps RerankOptions with the stage-level enable
// flag. When disabled, Execute passes the retrieved documents straight
// through to synthesis unchanged.
type RerankingStageConfig struct {
	Enabled bool
	Options RerankOptions
}

// PipelineRunConfig configures a single Execute call.
type PipelineRunConfig struct {
	Reformulation ReformulationStageConfig
	Retrieval     RetrievalOptions
	Reranking     RerankingStageConfig
	Synthesis     SynthesisOptions
	Generation    GenerationOptions
}

// DeltaStateSummary is the spec's PipelineResult.{topicShift, alpha, beta}.
type DeltaStateSummary struct {
	TopicShift float64
	Alpha      []float64
	Beta       float64
}

// PipelineResult is the spec's PipelineResult.
type PipelineResult struct {
	Query              string
	Answer             string
	Reformulations     []ReformulatedQuery
	RetrievedDocuments []*document.Document
	RerankedDocuments  []*document.Document
	Context            string
	StageLatencies     map[string]time.Duration
	TotalLatency       time.Duration
	EstimatedCost      float64
	Verification       Verification
	DeltaState         DeltaStateSummary
}

// costPerThousandTokens is the simple token-count cost model the spec asks
// for: a flat per-1k-token rate, not tied to any specific provider's
// pricing table (out of scope per spec.md §1).
const costPerThousandTokens = 0.002

// PipelineConfig configures a Pipeline. Every stage component is required:
// a Pipeline always threads C3-C8 together, even when individual stages
// are disabled per-call via PipelineRunConfig.
type PipelineConfig struct {
	Reformulator QueryReformulator
	Retriever    DocumentRetriever
	Reranker     Reranker
	Synthesizer  ContextSynthesizer
	Generator    AnswerGenerator
	// Memory is the same store backing Synthesizer's DeltaMemory calls.
	// Pipeline.Reset clears it for SessionID. Required only when a caller
	// intends to use useDeltaRule synthesis and call Reset.
	Memory memory.Store
	// SessionID scopes the DeltaMemory state this Pipeline instance owns.
	// Optional. Defaults to "default" — a Pipeline instance represents one
	// session by construction, since it is not safe for concurrent Execute
	// calls (it owns mutable MemoryState).
	SessionID string
	// Tokenizer estimates token counts for the cost model. Optional.
	// Defaults to tokenizer.NewTiktokenWithCL100KBase().
	Tokenizer tokenizer.Estimator
	// Logger receives a warning when retrieval returns no documents or a
	// token estimate fails, and one info entry per completed Execute.
	// Optional. Defaults to slog.Default().
	Logger *slog.Logger
}

func (c PipelineConfig) validate() (PipelineConfig, error) {
	if c.Reformulator == nil {
		return c, errors.New("rag: pipeline config: reformulator is required")
	}
	if c.Retriever == nil {
		return c, errors.New("rag: pipeline config: retriever is required")
	}
	if c.Reranker == nil {
		return c, errors.New("rag: pipeline config: reranker is required")
	}
	if c.Synthesizer == nil {
		return c, errors.New("rag: pipeline config: synthesizer is required")
	}
	if c.Generator == nil {
		return c, errors.New("rag: pipeline config: generator is required")
	}
	if c.SessionID == "" {
		c.SessionID = "default"
	}
	if c.Tokenizer == nil {
		c.Tokenizer = tokenizer.NewTiktokenWithCL100KBase()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c, nil
}

// Pipeline threads C3 (reformulation) -> C4 (retrieval) -> C5 (reranking)
// -> C7 (synthesis, using C6) -> C8 (generation, using C9) together,
// recording per-stage timing and a token-based cost estimate. A Pipeline
// instance is not safe for concurrent Execute calls: it owns the session's
// mutable DeltaMemory state.
type Pipeline struct {
	reformulator QueryReformulator
	retriever    DocumentRetriever
	reranker     Reranker
	synthesizer  ContextSynthesizer
	generator    AnswerGenerator
	memory       memory.Store
	sessionID    string
	tokenizer    tokenizer.Estimator
	logger       *slog.Logger
}

func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	cfg, err := cfg.validate()
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		reformulator: cfg.Reformulator,
		retriever:    cfg.Retriever,
		reranker:     cfg.Reranker,
		synthesizer:  cfg.Synthesizer,
		generator:    cfg.Generator,
		memory:       cfg.Memory,
		sessionID:    cfg.SessionID,
		tokenizer:    cfg.Tokenizer,
		logger:       cfg.Logger,
	}, nil
}

// Reset clears the pipeline's DeltaMemory state, so the next Execute call's
// synthesis stage treats the query as the first of a new session
// (topicShift=0).
func (p *Pipeline) Reset(ctx context.Context) error {
	if p.memory == nil {
		return nil
	}
	return p.memory.Reset(ctx, p.sessionID)
}

// Execute runs the full pipeline on query, returning a PipelineResult.
// Stage failures propagate immediately; Pipeline never retries between
// stages.
func (p *Pipeline) Execute(ctx context.Context, query *Query, cfg PipelineRunConfig) (PipelineResult, error) {
	totalStart := time.Now()
	if query == nil {
		return PipelineResult{}, errors.New("rag: query must not be nil")
	}

	latencies := make(map[string]time.Duration, 5)
	result := PipelineResult{Query: query.Text}

	reformulations, err := p.runReformulation(ctx, query, cfg.Reformulation, latencies)
	if err != nil {
		return PipelineResult{}, fmt.Errorf("pipeline stage 'reformulation' failed: %w", err)
	}
	result.Reformulations = reformulations

	retrieved, err := p.runRetrieval(ctx, query, cfg.Retrieval, latencies)
	if err != nil {
		return PipelineResult{}, fmt.Errorf("pipeline stage 'retrieval' failed: %w", err)
	}
	result.RetrievedDocuments = retrieved

	reranked, err := p.runReranking(ctx, query, retrieved, cfg.Reranking, latencies)
	if err != nil {
		return PipelineResult{}, fmt.Errorf("pipeline stage 'reranking' failed: %w", err)
	}
	result.RerankedDocuments = reranked

	synthesis, err := p.runSynthesis(ctx, query, reranked, cfg.Synthesis, latencies)
	if err != nil {
		return PipelineResult{}, fmt.Errorf("pipeline stage 'synthesis' failed: %w", err)
	}
	result.Context = synthesis.Context
	result.DeltaState = DeltaStateSummary{
		TopicShift: synthesis.TopicShift,
		Alpha:      synthesis.Alpha,
		Beta:       synthesis.Beta,
	}

	generation, err := p.runGeneration(ctx, query, synthesis.Context, cfg.Generation, latencies)
	if err != nil {
		return PipelineResult{}, fmt.Errorf("pipeline stage 'generation' failed: %w", err)
	}
	if len(retrieved) == 0 {
		// No retrieved documents: the answer is never reported complete.
		generation.Verification.Complete = false
	}
	result.Answer = generation.Answer
	result.Verification = generation.Verification

	result.StageLatencies = latencies
	result.TotalLatency = time.Since(totalStart)
	result.EstimatedCost = p.estimateCost(ctx, query.Text, synthesis.Context, generation.Answer)

	p.logger.Info("pipeline execute complete",
		slog.Duration("total_latency", result.TotalLatency),
		slog.Int("retrieved", len(retrieved)),
		slog.Bool("complete", generation.Verification.Complete),
	)
	return result, nil
}

// Run is a convenience wrapper that builds a Query from text and executes
// the pipeline with cfg.
func (p *Pipeline) Run(ctx context.Context, text string, cfg PipelineRunConfig) (PipelineResult, error) {
	query, err := NewQuery(text)
	if err != nil {
		return PipelineResult{}, err
	}
	return p.Execute(ctx, query, cfg)
}

func (p *Pipeline) runReformulation(ctx context.Context, query *Query, cfg ReformulationStageConfig, latencies map[string]time.Duration) ([]ReformulatedQuery, error) {
	start := time.Now()
	defer func() { latencies["reformulation"] = time.Since(start) }()

	if !cfg.Enabled {
		return []ReformulatedQuery{{Query: query.Text, Strategy: StrategyVariation, Quality: 1, Similarity: 1, Rank: 1}}, nil
	}
	result, err := p.reformulator.Reformulate(ctx, query, cfg.Options)
	if err != nil {
		return nil, err
	}
	return result.Reformulations, nil
}

func (p *Pipeline) runRetrieval(ctx context.Context, query *Query, opts RetrievalOptions, latencies map[string]time.Duration) ([]*document.Document, error) {
	start := time.Now()
	defer func() { latencies["retrieval"] = time.Since(start) }()

	result, err := p.retriever.Retrieve(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	if len(result.Documents) == 0 {
		p.logger.Warn("retrieval returned no documents", slog.String("query", query.Text))
	}
	return result.Documents, nil
}

func (p *Pipeline) runReranking(ctx context.Context, query *Query, documents []*document.Document, cfg RerankingStageConfig, latencies map[string]time.Duration) ([]*document.Document, error) {
	start := time.Now()
	defer func() { latencies["reranking"] = time.Since(start) }()

	if !cfg.Enabled {
		return documents, nil
	}
	result, err := p.reranker.Rerank(ctx, query, documents, cfg.Options)
	if err != nil {
		return nil, err
	}
	return result.Documents, nil
}

func (p *Pipeline) runSynthesis(ctx context.Context, query *Query, documents []*document.Document, opts SynthesisOptions, latencies map[string]time.Duration) (SynthesisResult, error) {
	start := time.Now()
	defer func() { latencies["synthesis"] = time.Since(start) }()

	if opts.SessionID == "" {
		opts.SessionID = p.sessionID
	}
	return p.synthesizer.Synthesize(ctx, query, documents, opts)
}

func (p *Pipeline) runGeneration(ctx context.Context, query *Query, contextText string, opts GenerationOptions, latencies map[string]time.Duration) (GenerationResult, error) {
	start := time.Now()
	defer func() { latencies["generation"] = time.Since(start) }()

	return p.generator.Generate(ctx, query, contextText, opts)
}

// estimateCost is the spec's "simple token-count model": estimate the
// combined prompt+context+answer token count and apply a flat per-1k-token
// rate. Estimation failures are non-fatal — they log and contribute 0 to
// the total, since cost accounting is advisory, not load-bearing.
func (p *Pipeline) estimateCost(ctx context.Context, query, contextText, answer string) float64 {
	tokens := 0
	for _, text := range []string{query, contextText, answer} {
		n, err := p.tokenizer.EstimateText(ctx, text)
		if err != nil {
			p.logger.Warn("token estimate failed", slog.String("error", err.Error()))
			continue
		}
		tokens += n
	}
	return float64(tokens) / 1000 * costPerThousandTokens
}
