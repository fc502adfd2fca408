package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ragmind/engine/document"
	"github.com/ragmind/engine/llm"
	"github.com/ragmind/engine/memory"
	"github.com/ragmind/engine/sampling"
)

// SynthesisOptions configures a single Synthesize call.
type SynthesisOptions struct {
	// SessionID scopes the DeltaMemory state this call reads/advances.
	SessionID string
	// MaxContextLength is the target context length L, enforced as a soft
	// budget via the generator's MaxTokens, not a hard truncation.
	MaxContextLength int
	// UseDeltaRule advances (or initializes) the C6 state for SessionID.
	UseDeltaRule bool
	// GatingStrategy, TopicShiftThreshold, and Beta are not read by
	// Synthesize: C6 applies the values set on its own memory.Config.
	GatingStrategy      memory.GatingStrategy
	TopicShiftThreshold float64
	Beta                float64
	// UseInferenceSampling draws NumCandidates*2 continuations via C1 and
	// keeps the highest-scored one, instead of generating once.
	UseInferenceSampling bool
	NumCandidates        int
}

func (o SynthesisOptions) validate() (SynthesisOptions, error) {
	if o.MaxContextLength <= 0 {
		o.MaxContextLength = 2000
	}
	if o.NumCandidates <= 0 {
		o.NumCandidates = 3
	}
	if o.UseDeltaRule && o.SessionID == "" {
		return o, errors.New("rag: synthesis options: sessionID is required when useDeltaRule is set")
	}
	return o, nil
}

// SynthesisResult is the spec's synthesize() return value.
type SynthesisResult struct {
	Context          string
	Documents        []*document.Document
	MemoryState      *memory.State
	Alpha            []float64
	Beta             float64
	TopicShift       float64
	DiversityScore   float64
	CompressionRatio float64
	Latency          time.Duration
}

// SynthesizerConfig configures a DeltaSynthesizer.
type SynthesizerConfig struct {
	// Generator produces the synthesized context text. Required.
	Generator llm.Generator
	// Engine draws diverse candidates when UseInferenceSampling is set.
	// Optional; required only for calls that request sampling.
	Engine *sampling.Engine
	// Memory advances DeltaMemory state when UseDeltaRule is set. Optional;
	// required only for calls that request it.
	Memory memory.Store
}

func (c SynthesizerConfig) validate() (SynthesizerConfig, error) {
	if c.Generator == nil {
		return c, errors.New("rag: synthesizer config: generator is required")
	}
	return c, nil
}

var _ ContextSynthesizer = (*DeltaSynthesizer)(nil)

// DeltaSynthesizer compresses a reranked document list into a single
// context string, optionally advancing a DeltaMemory (C6) state first and
// optionally drawing diverse candidate contexts via C1.
type DeltaSynthesizer struct {
	generator llm.Generator
	engine    *sampling.Engine
	memory    memory.Store
}

func NewDeltaSynthesizer(cfg SynthesizerConfig) (*DeltaSynthesizer, error) {
	cfg, err := cfg.validate()
	if err != nil {
		return nil, err
	}
	return &DeltaSynthesizer{generator: cfg.Generator, engine: cfg.Engine, memory: cfg.Memory}, nil
}

const docPreviewChars = 300

func (s *DeltaSynthesizer) Synthesize(ctx context.Context, query *Query, documents []*document.Document, opts SynthesisOptions) (SynthesisResult, error) {
	start := time.Now()
	if query == nil {
		return SynthesisResult{}, errors.New("rag: query must not be nil")
	}
	opts, err := opts.validate()
	if err != nil {
		return SynthesisResult{}, err
	}

	result := SynthesisResult{Documents: documents}

	if opts.UseDeltaRule {
		if s.memory == nil {
			return SynthesisResult{}, newError(KindNotConfigured, "synthesize", "useDeltaRule requires a configured memory store", nil)
		}
		update, err := s.memory.Advance(ctx, opts.SessionID, query.Text, documents)
		if err != nil {
			return SynthesisResult{}, newError(KindEmbedderError, "synthesize", "delta memory advance failed", err)
		}
		state := update.State
		result.MemoryState = &state
		result.Alpha = update.Alpha
		result.Beta = update.Beta
		result.TopicShift = update.TopicShift
	}

	prompt := buildSynthesisPrompt(query.Text, documents, opts.MaxContextLength)

	var contextText string
	if opts.UseInferenceSampling {
		if s.engine == nil {
			return SynthesisResult{}, newError(KindNotConfigured, "synthesize", "useInferenceSampling requires a configured sampling engine", nil)
		}
		sampled, err := s.engine.Sample(ctx, prompt, sampling.Config{
			NumSamples:  opts.NumCandidates * 2,
			TopK:        opts.NumCandidates,
			Temperature: 0.8,
			MaxTokens:   estimateMaxTokens(opts.MaxContextLength),
		})
		if err != nil {
			return SynthesisResult{}, newError(KindGeneratorError, "synthesize", "inference sampling failed", err)
		}
		contextText = sampled.Samples[0]
	} else {
		completion, err := s.generator.Generate(ctx, prompt, llm.GenerateOptions{
			Temperature: 0.3,
			MaxTokens:   estimateMaxTokens(opts.MaxContextLength),
		})
		if err != nil {
			return SynthesisResult{}, newError(KindGeneratorError, "synthesize", "context synthesis failed", err)
		}
		contextText = completion.Text
	}
	contextText = strings.TrimSpace(contextText)

	result.Context = contextText
	result.DiversityScore = meanDocumentDiversity(documents)
	result.CompressionRatio = compressionRatio(documents, contextText)
	result.Latency = time.Since(start)
	return result, nil
}

// estimateMaxTokens converts a target character budget into an
// approximate token budget using the common ~4 chars/token heuristic.
func estimateMaxTokens(maxContextLength int) int {
	tokens := maxContextLength / 4
	if tokens < 16 {
		tokens = 16
	}
	return tokens
}

const synthesisPromptTemplate = "Query: {{.query}}\n\n" +
	"Synthesize a concise context passage from the following documents, addressing the query.\n" +
	"{{.documents}}\n" +
	"Target length: approximately {{.length}} characters."

func buildSynthesisPrompt(queryText string, documents []*document.Document, maxContextLength int) string {
	var sb strings.Builder
	for i, d := range documents {
		preview := d.Content
		if len(preview) > docPreviewChars {
			preview = preview[:docPreviewChars]
		}
		fmt.Fprintf(&sb, "[%d] %s\n", i+1, preview)
	}
	return llm.NewPromptTemplate().
		WithTemplate(synthesisPromptTemplate).
		WithQuery(queryText).
		WithVariable("documents", sb.String()).
		WithVariable("length", maxContextLength).
		MustRender()
}

// compressionRatio is sum(len(doc.content)) / len(context), defined as 1
// when the context is empty or there are no source documents, so a caller
// never divides by zero or reports an undefined ratio.
func compressionRatio(documents []*document.Document, contextText string) float64 {
	if len(contextText) == 0 {
		return 1
	}
	var total int
	for _, d := range documents {
		total += len(d.Content)
	}
	if total == 0 {
		return 1
	}
	return float64(total) / float64(len(contextText))
}
