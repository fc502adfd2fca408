// Package llm defines the generator and embedder contracts every pipeline
// stage calls through, plus a prompt-templating helper and a concrete
// OpenAI-backed implementation of both contracts.
package llm

import "context"

// Completion is the result of a single Generate call.
type Completion struct {
	Text string
	// Logprob is the length-normalized log-probability of Text, when the
	// backing model reports one. A zero value means "not reported" — callers
	// that need to distinguish a genuine zero-probability completion from an
	// absent one should check LogprobOK.
	Logprob   float64
	LogprobOK bool
	// TokensUsed is the total (prompt+completion) token count billed for
	// the call, when the backend reports usage.
	TokensUsed int
}

// GenerateOptions configures a single Generate call. The zero value is
// valid and uses provider defaults.
type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
	TopP        float64
	// NumCompletions requests more than one sample from a single prompt,
	// used by sampling.Engine to draw a candidate pool in one round trip
	// when the backend supports it. Zero and one are equivalent.
	NumCompletions int
	StopSequences  []string
}

// Generator produces text completions from a prompt. The stages in this
// module call it from one goroutine at a time; the only goroutine fan-out
// (parallel retrieval in C4) calls the VectorStore, not the Generator.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (Completion, error)
}

// GenerateN produces multiple completions, using opts.NumCompletions when
// a Generator implements it, otherwise issuing n sequential Generate calls.
// This is the entry point sampling.Engine uses so that it works against
// any Generator, not just ones with native multi-sample support.
func GenerateN(ctx context.Context, g Generator, prompt string, opts GenerateOptions, n int) ([]Completion, error) {
	if n <= 0 {
		return nil, nil
	}
	if multi, ok := g.(MultiGenerator); ok {
		opts.NumCompletions = n
		return multi.GenerateN(ctx, prompt, opts)
	}
	completions := make([]Completion, 0, n)
	for i := 0; i < n; i++ {
		c, err := g.Generate(ctx, prompt, opts)
		if err != nil {
			return nil, err
		}
		completions = append(completions, c)
	}
	return completions, nil
}

// MultiGenerator is an optional capability a Generator may implement to
// return several sampled completions from a single round trip.
type MultiGenerator interface {
	GenerateN(ctx context.Context, prompt string, opts GenerateOptions) ([]Completion, error)
}

// Embedder converts text into a dense vector representation.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}
