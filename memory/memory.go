// Package memory implements DeltaMemory (C6): a bounded semantic state
// vector S advanced across a session's queries by a Delta Rule update with
// selectable gating, plus the topic-shift score that drives gating and
// that ContextSynthesizer (C7) reuses for its own alpha computation.
package memory

import (
	"context"

	"github.com/ragmind/engine/document"
)

// GatingStrategy selects how the per-dimension retention/write strength
// alpha is derived from the topic-shift score.
type GatingStrategy string

const (
	GatingUniform      GatingStrategy = "uniform"
	GatingDataDependent GatingStrategy = "data_dependent"
	GatingPerDimension  GatingStrategy = "per_dimension"
)

// State is the persisted DeltaMemory state for one session: the vector S,
// and the previous query's text and embedding (used to compute the next
// topic-shift score).
type State struct {
	Vector             []float64
	PrevQuery          string
	PrevQueryEmbedding []float64
	Initialized        bool
}

// Clone returns a deep copy, so callers can retain a State snapshot without
// aliasing the memory's internal slices.
func (s State) Clone() State {
	clone := State{
		PrevQuery:   s.PrevQuery,
		Initialized: s.Initialized,
	}
	if s.Vector != nil {
		clone.Vector = append([]float64(nil), s.Vector...)
	}
	if s.PrevQueryEmbedding != nil {
		clone.PrevQueryEmbedding = append([]float64(nil), s.PrevQueryEmbedding...)
	}
	return clone
}

// UpdateResult is the spec's "updated S, topicShift, alpha, beta" return
// value from a single Advance call.
type UpdateResult struct {
	State      State
	TopicShift float64
	Alpha      []float64
	Beta       float64
}

// Store manages DeltaMemory state across sessions.
type Store interface {
	// Advance computes the topic-shift score against the session's previous
	// query, derives the gating vector, and applies the Delta Rule update
	// using query and the documents' embeddings as the value source.
	// Implementations must work whether or not a prior state exists for
	// sessionID (see the Delta Rule's first-call initialization rule).
	Advance(ctx context.Context, sessionID string, query string, documents []*document.Document) (UpdateResult, error)

	// Get returns the current state for sessionID, or the zero State and
	// false if the session has never been advanced.
	Get(ctx context.Context, sessionID string) (State, bool, error)

	// Reset clears the session's state, so the next Advance call
	// re-initializes S from scratch.
	Reset(ctx context.Context, sessionID string) error
}
