// Package verifier implements the VerifierAdapter capability set (C9):
// scoring and optionally improving an answer against its (query, context)
// pair, with a heuristic and an LLM-judge variant behind a single contract —
// resolving the "cyclic adapter/trained-adapter imports" design note by
// defining one capability set with two concrete implementations instead of
// an adapter/trained-adapter import cycle.
package verifier

import "context"

// VerificationScore is the result of Verify: a single score in [0,1].
type VerificationScore struct {
	Score float64
}

// ImprovementResult is the result of Improve: a possibly-revised answer and
// its Verify score under the same adapter.
type ImprovementResult struct {
	Answer string
	Score  float64
}

// Adapter scores and can attempt to improve an answer given the query and
// the context it was generated from. Implementations may be purely
// heuristic, an LLM-judge, or a trained recursive-refinement model; the
// pipeline only depends on this contract.
type Adapter interface {
	// Verify scores how well answer is supported by context and addresses
	// query.
	Verify(ctx context.Context, query, context, answer string) (VerificationScore, error)

	// Improve attempts to produce an answer that scores at least as well
	// under Verify in expectation. It is allowed to return the input
	// unchanged.
	Improve(ctx context.Context, query, context, answer string) (ImprovementResult, error)
}
