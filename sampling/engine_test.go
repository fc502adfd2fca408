package sampling

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragmind/engine/llm"
)

// stubMultiGenerator returns a fixed, pre-scripted batch of completions
// regardless of prompt, letting tests control exactly what Sample sees.
type stubMultiGenerator struct {
	completions []llm.Completion
	err         error
}

func (s *stubMultiGenerator) Generate(_ context.Context, _ string, _ llm.GenerateOptions) (llm.Completion, error) {
	if s.err != nil {
		return llm.Completion{}, s.err
	}
	if len(s.completions) == 0 {
		return llm.Completion{}, errors.New("no completions configured")
	}
	return s.completions[0], nil
}

func (s *stubMultiGenerator) GenerateN(_ context.Context, _ string, _ llm.GenerateOptions, n int) ([]llm.Completion, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]llm.Completion, 0, n)
	for i := 0; i < n && i < len(s.completions); i++ {
		out = append(out, s.completions[i])
	}
	return out, nil
}

var _ llm.Generator = (*stubMultiGenerator)(nil)
var _ llm.MultiGenerator = (*stubMultiGenerator)(nil)

func TestNew_NilGenerator(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestSample_ReturnsAtMostTopK(t *testing.T) {
	gen := &stubMultiGenerator{completions: []llm.Completion{
		{Text: "alpha beta gamma", Logprob: -0.1, LogprobOK: true},
		{Text: "delta epsilon zeta", Logprob: -0.2, LogprobOK: true},
		{Text: "eta theta iota", Logprob: -0.3, LogprobOK: true},
		{Text: "kappa lambda mu", Logprob: -0.4, LogprobOK: true},
	}}
	engine, err := New(gen)
	require.NoError(t, err)

	result, err := engine.Sample(context.Background(), "prompt", Config{TopK: 2})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(result.Samples), 2)
	assert.Equal(t, len(result.Samples), len(result.Likelihoods))
}

func TestSample_NoDuplicateSurvivors(t *testing.T) {
	gen := &stubMultiGenerator{completions: []llm.Completion{
		{Text: "same answer", Logprob: -0.1, LogprobOK: true},
		{Text: "same answer", Logprob: -0.1, LogprobOK: true},
		{Text: "different answer entirely", Logprob: -0.2, LogprobOK: true},
	}}
	engine, err := New(gen)
	require.NoError(t, err)

	result, err := engine.Sample(context.Background(), "prompt", Config{TopK: 3})
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, s := range result.Samples {
		assert.False(t, seen[s], "duplicate survivor: %s", s)
		seen[s] = true
	}
}

func TestSample_SortedByLikelihoodDescending(t *testing.T) {
	gen := &stubMultiGenerator{completions: []llm.Completion{
		{Text: "low quality rambling repeated repeated repeated", Logprob: -2.0, LogprobOK: true},
		{Text: "high quality concise answer", Logprob: -0.05, LogprobOK: true},
		{Text: "medium quality response here", Logprob: -0.5, LogprobOK: true},
	}}
	engine, err := New(gen)
	require.NoError(t, err)

	result, err := engine.Sample(context.Background(), "prompt", Config{TopK: 3, Beta: 1})
	require.NoError(t, err)
	require.Len(t, result.Samples, 3)
	for i := 1; i < len(result.Likelihoods); i++ {
		assert.GreaterOrEqual(t, result.Likelihoods[i-1], result.Likelihoods[i])
	}
}

func TestSample_DiversityPrefersDissimilarCandidates(t *testing.T) {
	// Two near-duplicate high-likelihood candidates vs. one lower-likelihood
	// but distinct candidate: with topK=2, diversity weighting should admit
	// the distinct one instead of the second near-duplicate.
	gen := &stubMultiGenerator{completions: []llm.Completion{
		{Text: "the capital of france is paris", Logprob: -0.05, LogprobOK: true},
		{Text: "the capital of france is paris indeed", Logprob: -0.06, LogprobOK: true},
		{Text: "quantum entanglement links distant particles", Logprob: -0.3, LogprobOK: true},
	}}
	engine, err := New(gen)
	require.NoError(t, err)

	result, err := engine.Sample(context.Background(), "prompt", Config{TopK: 2})
	require.NoError(t, err)
	require.Len(t, result.Samples, 2)

	foundDistinct := false
	for _, s := range result.Samples {
		if s == "quantum entanglement links distant particles" {
			foundDistinct = true
		}
	}
	assert.True(t, foundDistinct, "diversity weighting should have admitted the distinct candidate")
}

func TestSample_GeneratorErrorOnZeroCandidates(t *testing.T) {
	gen := &stubMultiGenerator{completions: []llm.Completion{
		{Text: "   ", LogprobOK: false},
		{Text: "", LogprobOK: false},
	}}
	engine, err := New(gen)
	require.NoError(t, err)

	_, err = engine.Sample(context.Background(), "prompt", Config{TopK: 2})
	require.Error(t, err)
	var genErr *GeneratorError
	assert.ErrorAs(t, err, &genErr)
}

func TestSample_GeneratorErrorOnUnderlyingFailure(t *testing.T) {
	gen := &stubMultiGenerator{err: fmt.Errorf("upstream unavailable")}
	engine, err := New(gen)
	require.NoError(t, err)

	_, err = engine.Sample(context.Background(), "prompt", Config{TopK: 2})
	require.Error(t, err)
	var genErr *GeneratorError
	assert.ErrorAs(t, err, &genErr)
}

func TestConfig_Validate_Defaults(t *testing.T) {
	cfg, err := Config{TopK: 3}.validate()
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.NumSamples)
	assert.Equal(t, 1.0, cfg.Beta)
	assert.Equal(t, 0.8, cfg.Temperature)
	assert.Equal(t, 512, cfg.MaxTokens)
}

func TestConfig_Validate_RejectsZeroTopK(t *testing.T) {
	_, err := Config{}.validate()
	assert.Error(t, err)
}

func TestConfig_Validate_RejectsNumSamplesBelowTopK(t *testing.T) {
	_, err := Config{TopK: 5, NumSamples: 2}.validate()
	assert.Error(t, err)
}

func TestHeuristicLikelihood_FallsBackWithoutLogprob(t *testing.T) {
	gen := &stubMultiGenerator{completions: []llm.Completion{
		{Text: "repeated repeated repeated repeated", LogprobOK: false},
		{Text: "entirely distinct unique words here", LogprobOK: false},
	}}
	engine, err := New(gen)
	require.NoError(t, err)

	result, err := engine.Sample(context.Background(), "prompt", Config{TopK: 2})
	require.NoError(t, err)
	require.Len(t, result.Samples, 2)
	for _, l := range result.Likelihoods {
		assert.GreaterOrEqual(t, l, 0.0)
		assert.LessOrEqual(t, l, 1.0)
	}
}
