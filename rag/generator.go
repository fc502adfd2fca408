package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ragmind/engine/llm"
	"github.com/ragmind/engine/pkg/jaccard"
	"github.com/ragmind/engine/sampling"
	"github.com/ragmind/engine/verifier"
)

// GenerationOptions configures a single Generate call.
type GenerationOptions struct {
	MaxAnswerLength      int
	UseInferenceSampling bool
	NumCandidates        int
	Beta                 float64
	VerifyFaithfulness   bool
	UseSelfConsistency   bool
	// ConfidenceThreshold c is the adaptive-computation loop's exit
	// condition: the loop stops once confidence >= c or attempts reach
	// MaxAttempts.
	ConfidenceThreshold float64
	MaxAttempts         int
	UseTRMVerification  bool
	TRMMinScore         float64
}

func (o GenerationOptions) validate() (GenerationOptions, error) {
	if o.MaxAnswerLength <= 0 {
		o.MaxAnswerLength = 1000
	}
	if o.NumCandidates <= 0 {
		o.NumCandidates = 3
	}
	if o.Beta == 0 {
		o.Beta = 1
	}
	if o.ConfidenceThreshold <= 0 {
		o.ConfidenceThreshold = 0.8
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.UseTRMVerification && o.TRMMinScore <= 0 {
		o.TRMMinScore = 0.7
	}
	return o, nil
}

// Verification is the spec's {faithful, consistent, complete} triple.
type Verification struct {
	Faithful   bool
	Consistent bool
	Complete   bool
}

// GenerationResult is the spec's generate() return value.
type GenerationResult struct {
	Answer          string
	Candidates      []string
	Confidence      float64
	Faithfulness    bool
	SelfConsistency bool
	Verification    Verification
	Attempts        int
	Latency         time.Duration
}

// GeneratorConfig configures an AdaptiveAnswerGenerator.
type GeneratorConfig struct {
	// Generator produces answer candidates and judge responses. Required.
	Generator llm.Generator
	// Engine draws diverse candidates when UseInferenceSampling is set.
	// Optional; required only for calls that request sampling.
	Engine *sampling.Engine
	// Verifier backs UseTRMVerification. Optional; required only for calls
	// that request it.
	Verifier verifier.Adapter
}

func (c GeneratorConfig) validate() (GeneratorConfig, error) {
	if c.Generator == nil {
		return c, errors.New("rag: generator config: generator is required")
	}
	return c, nil
}

var _ AnswerGenerator = (*AdaptiveAnswerGenerator)(nil)

// AdaptiveAnswerGenerator implements the spec's adaptive-computation answer
// loop: draw candidates until confidence clears a threshold or attempts
// are exhausted, then optionally check faithfulness and self-consistency,
// always ask a completeness judge, and optionally run a TRM-style
// verify/improve pass.
type AdaptiveAnswerGenerator struct {
	generator llm.Generator
	engine    *sampling.Engine
	verifier  verifier.Adapter
}

func NewAdaptiveAnswerGenerator(cfg GeneratorConfig) (*AdaptiveAnswerGenerator, error) {
	cfg, err := cfg.validate()
	if err != nil {
		return nil, err
	}
	return &AdaptiveAnswerGenerator{generator: cfg.Generator, engine: cfg.Engine, verifier: cfg.Verifier}, nil
}

func (g *AdaptiveAnswerGenerator) Generate(ctx context.Context, query *Query, contextText string, opts GenerationOptions) (GenerationResult, error) {
	start := time.Now()
	if query == nil {
		return GenerationResult{}, errors.New("rag: query must not be nil")
	}
	opts, err := opts.validate()
	if err != nil {
		return GenerationResult{}, err
	}

	prompt := buildAnswerPrompt(query.Text, contextText, opts.MaxAnswerLength)
	maxTokens := estimateMaxTokens(opts.MaxAnswerLength)

	var best string
	var candidates []string
	confidence := 0.0
	attempts := 0

	for confidence < opts.ConfidenceThreshold && attempts < opts.MaxAttempts {
		attempts++
		if ctx.Err() != nil {
			return GenerationResult{}, ctx.Err()
		}

		if opts.UseInferenceSampling {
			if g.engine == nil {
				return GenerationResult{}, newError(KindNotConfigured, "generate", "useInferenceSampling requires a configured sampling engine", nil)
			}
			sampled, err := g.engine.Sample(ctx, prompt, sampling.Config{
				NumSamples: opts.NumCandidates * 2,
				TopK:       opts.NumCandidates,
				Beta:       opts.Beta,
				MaxTokens:  maxTokens,
			})
			if err != nil {
				return GenerationResult{}, newError(KindGeneratorError, "generate", "inference sampling failed", err)
			}
			candidates = sampled.Samples
			best = sampled.Samples[0]
			confidence = sampled.Likelihoods[0]
		} else {
			completion, err := g.generator.Generate(ctx, prompt, llm.GenerateOptions{Temperature: 0.3, MaxTokens: maxTokens})
			if err != nil {
				return GenerationResult{}, newError(KindGeneratorError, "generate", "answer generation failed", err)
			}
			best = strings.TrimSpace(completion.Text)
			candidates = []string{best}
			confidence = 0.8
		}
	}

	result := GenerationResult{
		Answer:     best,
		Candidates: candidates,
		Confidence: confidence,
		Attempts:   attempts,
	}

	if opts.VerifyFaithfulness {
		faithful, err := g.judgeBool(ctx, fmt.Sprintf(
			"Context:\n%s\n\nAnswer:\n%s\n\nIs this answer entailed by the context? Respond with only \"yes\" or \"no\".",
			contextText, best,
		))
		if err != nil {
			return GenerationResult{}, err
		}
		result.Faithfulness = faithful
		result.Verification.Faithful = faithful
	}

	if opts.UseSelfConsistency && len(candidates) >= 2 {
		result.SelfConsistency = selfConsistent(candidates)
		result.Verification.Consistent = result.SelfConsistency
	}

	complete, err := g.judgeBool(ctx, fmt.Sprintf(
		"Query:\n%s\n\nAnswer:\n%s\n\nDoes this answer fully address the query? Respond with only \"yes\" or \"no\".",
		query.Text, best,
	))
	if err != nil {
		return GenerationResult{}, err
	}
	result.Verification.Complete = complete

	if opts.UseTRMVerification {
		if g.verifier == nil {
			return GenerationResult{}, newError(KindNotConfigured, "generate", "useTRMVerification requires a configured verifier", nil)
		}
		score, err := g.verifier.Verify(ctx, query.Text, contextText, best)
		if err != nil {
			return GenerationResult{}, err
		}
		if score.Score < opts.TRMMinScore {
			improved, err := g.verifier.Improve(ctx, query.Text, contextText, best)
			if err != nil {
				return GenerationResult{}, err
			}
			result.Answer = improved.Answer
		}
	}

	result.Latency = time.Since(start)
	return result, nil
}

func (g *AdaptiveAnswerGenerator) judgeBool(ctx context.Context, prompt string) (bool, error) {
	completion, err := g.generator.Generate(ctx, prompt, llm.GenerateOptions{Temperature: 0, MaxTokens: 4})
	if err != nil {
		return false, newError(KindGeneratorError, "generate", "judge call failed", err)
	}
	answer := strings.ToLower(strings.TrimSpace(completion.Text))
	return strings.HasPrefix(answer, "y"), nil
}

// selfConsistent counts candidate pairs whose Jaccard similarity exceeds
// 0.5 and reports whether more than half of all pairs do.
func selfConsistent(candidates []string) bool {
	total := 0
	agreeing := 0
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			total++
			if jaccard.Similarity(candidates[i], candidates[j]) > 0.5 {
				agreeing++
			}
		}
	}
	if total == 0 {
		return false
	}
	return float64(agreeing)/float64(total) > 0.5
}

const answerPromptTemplate = "Context:\n{{.context}}\n\n" +
	"Query: {{.query}}\n\n" +
	"Answer the query using only information from the context. Target length: approximately {{.length}} characters."

func buildAnswerPrompt(queryText, contextText string, maxAnswerLength int) string {
	return llm.NewPromptTemplate().
		WithTemplate(answerPromptTemplate).
		WithContext(contextText).
		WithQuery(queryText).
		WithVariable("length", maxAnswerLength).
		MustRender()
}
