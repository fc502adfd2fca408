package verifier

import (
	"context"
	"errors"
	"strings"

	"github.com/ragmind/engine/pkg/jaccard"
)

// HeuristicAdapterConfig configures a HeuristicAdapter.
type HeuristicAdapterConfig struct {
	// ImprovementThreshold is the Verify score below which Improve attempts
	// a rewrite. Optional. Defaults to 0.5.
	ImprovementThreshold float64
}

func (c HeuristicAdapterConfig) validate() (HeuristicAdapterConfig, error) {
	if c.ImprovementThreshold < 0 || c.ImprovementThreshold > 1 {
		return c, errors.New("verifier: improvement threshold must be within [0,1]")
	}
	if c.ImprovementThreshold == 0 {
		c.ImprovementThreshold = 0.5
	}
	return c, nil
}

var _ Adapter = (*HeuristicAdapter)(nil)

// HeuristicAdapter is a zero-dependency Adapter: it scores an answer by
// lexical (Jaccard) overlap with the context, with no LLM call, as the
// fallback when no Generator is configured.
type HeuristicAdapter struct {
	threshold float64
}

func NewHeuristicAdapter(cfg HeuristicAdapterConfig) (*HeuristicAdapter, error) {
	cfg, err := cfg.validate()
	if err != nil {
		return nil, err
	}
	return &HeuristicAdapter{threshold: cfg.ImprovementThreshold}, nil
}

func (h *HeuristicAdapter) Verify(_ context.Context, _, context, answer string) (VerificationScore, error) {
	if answer == "" {
		return VerificationScore{Score: 0}, nil
	}
	return VerificationScore{Score: jaccard.Similarity(answer, context)}, nil
}

// Improve appends the most relevant context sentence (the one with the
// highest token overlap with the answer) when the current score is below
// threshold, otherwise returns the answer unchanged.
func (h *HeuristicAdapter) Improve(ctx context.Context, query, contextText, answer string) (ImprovementResult, error) {
	score, err := h.Verify(ctx, query, contextText, answer)
	if err != nil {
		return ImprovementResult{}, err
	}
	if score.Score >= h.threshold {
		return ImprovementResult{Answer: answer, Score: score.Score}, nil
	}

	best := mostRelevantSentence(contextText, answer)
	if best == "" {
		return ImprovementResult{Answer: answer, Score: score.Score}, nil
	}

	improved := strings.TrimSpace(answer)
	if improved != "" {
		improved += " " + best
	} else {
		improved = best
	}
	newScore, err := h.Verify(ctx, query, contextText, improved)
	if err != nil {
		return ImprovementResult{}, err
	}
	if newScore.Score < score.Score {
		return ImprovementResult{Answer: answer, Score: score.Score}, nil
	}
	return ImprovementResult{Answer: improved, Score: newScore.Score}, nil
}

func mostRelevantSentence(contextText, answer string) string {
	sentences := strings.FieldsFunc(contextText, func(r rune) bool {
		return r == '.' || r == '\n'
	})
	var best string
	var bestScore float64
	for _, s := range sentences {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		score := jaccard.Similarity(s, answer)
		if score > bestScore {
			bestScore = score
			best = s
		}
	}
	return best
}
