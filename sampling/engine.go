// Package sampling implements the MCMC-style diverse candidate sampler
// (C1) shared by query reformulation (C3), retrieval (C4), reranking (C5),
// and answer generation (C8): draw a wide pool of raw completions, score
// each by pseudo-likelihood, sharpen toward quality or diversity via a β
// exponent, then greedily select a small diverse survivor set.
package sampling

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ragmind/engine/llm"
	"github.com/ragmind/engine/pkg/jaccard"
)

// Config configures a single Sample call. validate() applies defaults for
// zero-valued fields, following the teacher's <Name>Config.validate() idiom.
type Config struct {
	// NumSamples is N, the number of raw candidates to draw. Defaults to
	// 2*TopK when zero, satisfying the spec's N≥2K guarantee.
	NumSamples int
	// TopK is K, the number of survivors to return.
	TopK int
	// Beta sharpens (>1) or flattens (<1) the likelihood distribution
	// before diversity-weighted selection. Defaults to 1 (no reshaping).
	Beta float64
	// Temperature is forwarded to the generator. Defaults to 0.8.
	Temperature float64
	MaxTokens   int
}

func (c Config) validate() (Config, error) {
	if c.TopK <= 0 {
		return c, errors.New("sampling: topK must be > 0")
	}
	if c.NumSamples <= 0 {
		c.NumSamples = 2 * c.TopK
	}
	if c.NumSamples < c.TopK {
		return c, fmt.Errorf("sampling: numSamples (%d) must be >= topK (%d)", c.NumSamples, c.TopK)
	}
	if c.Beta == 0 {
		c.Beta = 1
	}
	if c.Temperature == 0 {
		c.Temperature = 0.8
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 512
	}
	return c, nil
}

// Result is the spec's SamplingResult: parallel Samples/Likelihoods,
// ordered by descending likelihood, with at most Config.TopK entries and
// no two byte-identical.
type Result struct {
	Samples     []string
	Likelihoods []float64
}

// Engine wraps an llm.Generator with the sampling algorithm. It holds no
// mutable state and is safe for concurrent use.
type Engine struct {
	generator llm.Generator
}

// New creates an Engine over generator.
func New(generator llm.Generator) (*Engine, error) {
	if generator == nil {
		return nil, errors.New("sampling: generator must not be nil")
	}
	return &Engine{generator: generator}, nil
}

// candidate is a raw draw plus its pseudo-likelihood, before sharpening.
type candidate struct {
	text       string
	likelihood float64
}

// Sample draws cfg.NumSamples raw completions of prompt, scores and
// sharpens them, then greedily selects up to cfg.TopK diverse survivors.
func (e *Engine) Sample(ctx context.Context, prompt string, cfg Config) (Result, error) {
	cfg, err := cfg.validate()
	if err != nil {
		return Result{}, err
	}

	completions, err := llm.GenerateN(ctx, e.generator, prompt, llm.GenerateOptions{
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}, cfg.NumSamples)
	if err != nil {
		return Result{}, &GeneratorError{Cause: err}
	}

	candidates := make([]candidate, 0, len(completions))
	seen := make(map[string]struct{}, len(completions))
	for _, c := range completions {
		text := strings.TrimSpace(c.Text)
		if text == "" {
			continue
		}
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}
		candidates = append(candidates, candidate{
			text:       text,
			likelihood: pseudoLikelihood(c),
		})
	}
	if len(candidates) == 0 {
		return Result{}, &GeneratorError{Cause: errors.New("generator produced no usable candidates")}
	}

	sharpened := make([]float64, len(candidates))
	for i, c := range candidates {
		sharpened[i] = math.Pow(c.likelihood, cfg.Beta)
	}

	selected := greedyDiverseSelect(candidates, sharpened, cfg.TopK)

	sort.SliceStable(selected, func(i, j int) bool {
		return candidates[selected[i]].likelihood > candidates[selected[j]].likelihood
	})

	result := Result{
		Samples:     make([]string, len(selected)),
		Likelihoods: make([]float64, len(selected)),
	}
	for i, idx := range selected {
		result.Samples[i] = candidates[idx].text
		result.Likelihoods[i] = candidates[idx].likelihood
	}
	return result, nil
}

// pseudoLikelihood is the spec's "implementer choice" for step 2: use the
// generator-reported length-normalized logprob when available, otherwise
// fall back to a repetition-rate heuristic — fewer distinct tokens per
// total tokens is treated as lower quality, since degenerate/repetitive
// completions are the dominant failure mode of naive sampling.
func pseudoLikelihood(c llm.Completion) float64 {
	if c.LogprobOK {
		// Logprob is a per-token average log-probability (<=0); squashing
		// through exp maps it onto (0,1] the way a true likelihood would be.
		return math.Exp(c.Logprob)
	}
	tokens := strings.Fields(c.Text)
	if len(tokens) == 0 {
		return 0
	}
	distinct := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		distinct[strings.ToLower(t)] = struct{}{}
	}
	return float64(len(distinct)) / float64(len(tokens))
}

// greedyDiverseSelect implements step 4: repeatedly pick the unselected
// candidate maximizing sharpened_i * diversity(i | selected), where
// diversity is one minus the maximum Jaccard similarity to any already
// selected candidate (1 for the first pick, since there's nothing to
// compare against). Ties break by insertion (original draw) order.
func greedyDiverseSelect(candidates []candidate, sharpened []float64, topK int) []int {
	n := len(candidates)
	if topK > n {
		topK = n
	}
	selected := make([]int, 0, topK)
	chosen := make([]bool, n)

	for len(selected) < topK {
		best := -1
		bestScore := -1.0
		for i := 0; i < n; i++ {
			if chosen[i] {
				continue
			}
			diversity := 1.0
			for _, j := range selected {
				sim := jaccard.Similarity(candidates[i].text, candidates[j].text)
				if sim > 1-diversity {
					diversity = 1 - sim
				}
			}
			score := sharpened[i] * diversity
			if score > bestScore {
				bestScore = score
				best = i
			}
		}
		if best == -1 {
			break
		}
		selected = append(selected, best)
		chosen[best] = true
	}
	return selected
}
