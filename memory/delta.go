package memory

import (
	"context"
	"errors"
	"math"
	"sync"

	"github.com/ragmind/engine/document"
	"github.com/ragmind/engine/llm"
	"github.com/ragmind/engine/pkg/jaccard"
)

// Config configures a DeltaStore.
type Config struct {
	// Embedder produces the unit-norm key/value vectors the Delta Rule
	// update operates on. Required.
	Embedder llm.Embedder
	// Dim is the embedding dimensionality d. Required.
	Dim int
	// Beta is the update strength applied to both the erase and write
	// terms. Optional. Defaults to 0.8.
	Beta float64
	// GatingStrategy selects how alpha is derived from the topic-shift
	// score. Optional. Defaults to GatingUniform.
	GatingStrategy GatingStrategy
	// TopicShiftThreshold is the cutoff the gating rules compare
	// topic-shift against. Optional. Defaults to 0.5.
	TopicShiftThreshold float64
}

func (c Config) validate() (Config, error) {
	if c.Embedder == nil {
		return c, errors.New("memory: embedder is required")
	}
	if c.Dim <= 0 {
		return c, errors.New("memory: dim must be > 0")
	}
	if c.Beta == 0 {
		c.Beta = 0.8
	}
	if c.Beta < 0 || c.Beta > 1 {
		return c, errors.New("memory: beta must be within [0,1]")
	}
	if c.GatingStrategy == "" {
		c.GatingStrategy = GatingUniform
	}
	if c.TopicShiftThreshold == 0 {
		c.TopicShiftThreshold = 0.5
	}
	return c, nil
}

var _ Store = (*DeltaStore)(nil)

// DeltaStore is an in-memory, per-session implementation of Store. It holds
// one State per session behind a RWMutex, following the teacher's
// map+RWMutex session-store idiom, repurposed here to guard a numeric
// state vector instead of a conversation's message history.
type DeltaStore struct {
	cfg Config
	mu  sync.RWMutex
	by  map[string]*State
}

// New creates a DeltaStore.
func New(cfg Config) (*DeltaStore, error) {
	cfg, err := cfg.validate()
	if err != nil {
		return nil, err
	}
	return &DeltaStore{cfg: cfg, by: make(map[string]*State)}, nil
}

func (m *DeltaStore) Get(ctx context.Context, sessionID string) (State, bool, error) {
	if err := ctx.Err(); err != nil {
		return State{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.by[sessionID]
	if !ok {
		return State{}, false, nil
	}
	return s.Clone(), true, nil
}

func (m *DeltaStore) Reset(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.by, sessionID)
	return nil
}

// Advance implements the spec's Delta Rule update:
//
//	S ← α ⊙ S
//	v_old := S · k_t
//	S ← S − α ⊙ (β · v_old · k_t)
//	v_new := avg(value_embeddings) · k_t
//	S ← S + β · v_new · k_t
//
// where k_t is the unit-norm query embedding and value_embeddings are the
// unit-norm document embeddings (embedding documents lazily via the
// configured Embedder when a Document carries none). On the first call for
// a session, S is initialized to v_new·k_t instead of being read back.
func (m *DeltaStore) Advance(ctx context.Context, sessionID string, query string, documents []*document.Document) (UpdateResult, error) {
	if err := ctx.Err(); err != nil {
		return UpdateResult{}, err
	}

	prev, existed, err := m.Get(ctx, sessionID)
	if err != nil {
		return UpdateResult{}, err
	}

	topicShift := 0.0
	if existed && prev.PrevQuery != "" {
		topicShift = 1 - jaccard.Similarity(query, prev.PrevQuery)
	}
	alpha := gatingAlpha(m.cfg.GatingStrategy, topicShift, m.cfg.TopicShiftThreshold, m.cfg.Dim)

	kt, err := m.embedUnit(ctx, query)
	if err != nil {
		return UpdateResult{}, err
	}

	valueAvg, err := m.avgValueEmbedding(ctx, documents)
	if err != nil {
		return UpdateResult{}, err
	}
	vNew := dot(valueAvg, kt)

	var s []float64
	if existed && prev.Initialized {
		s = prev.Vector
		s = hadamard(alpha, s)
		vOld := dot(s, kt)
		s = subVec(s, hadamard(alpha, scalarMulVec(m.cfg.Beta*vOld, kt)))
		s = addVec(s, scalarMulVec(m.cfg.Beta*vNew, kt))
	} else {
		s = scalarMulVec(vNew, kt)
	}

	newState := State{
		Vector:             s,
		PrevQuery:          query,
		PrevQueryEmbedding: kt,
		Initialized:        true,
	}

	m.mu.Lock()
	m.by[sessionID] = &newState
	m.mu.Unlock()

	return UpdateResult{
		State:      newState.Clone(),
		TopicShift: topicShift,
		Alpha:      alpha,
		Beta:       m.cfg.Beta,
	}, nil
}

func (m *DeltaStore) embedUnit(ctx context.Context, text string) ([]float64, error) {
	v, err := m.cfg.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return unitNorm(v), nil
}

// avgValueEmbedding averages the unit-norm embeddings of documents,
// embedding via the configured Embedder whenever a document carries none.
// An empty document list yields a zero vector, so v_new collapses to 0 and
// the write term drops out: the update reduces to the decay (S <- alpha ⊙ S)
// followed by the erase of the old value along k_t.
func (m *DeltaStore) avgValueEmbedding(ctx context.Context, documents []*document.Document) ([]float64, error) {
	sum := make([]float64, m.cfg.Dim)
	if len(documents) == 0 {
		return sum, nil
	}
	for _, d := range documents {
		v := d.Embedding
		if v == nil {
			embedded, err := m.cfg.Embedder.Embed(ctx, d.Content)
			if err != nil {
				return nil, err
			}
			v = embedded
		}
		v = unitNorm(v)
		for i := 0; i < m.cfg.Dim && i < len(v); i++ {
			sum[i] += v[i]
		}
	}
	n := float64(len(documents))
	for i := range sum {
		sum[i] /= n
	}
	return sum, nil
}

// gatingAlpha implements the spec's three gating selectors. uniform and
// data-dependent both compute a scalar and broadcast it across all d
// dimensions; per-dimension assigns distinct strengths to the first and
// second halves of the vector.
func gatingAlpha(strategy GatingStrategy, topicShift, threshold float64, dim int) []float64 {
	alpha := make([]float64, dim)
	switch strategy {
	case GatingDataDependent:
		var v float64
		switch {
		case topicShift < threshold/2:
			v = 0.9
		case topicShift < threshold:
			v = 0.5
		default:
			v = 0.2
		}
		for i := range alpha {
			alpha[i] = v
		}
	case GatingPerDimension:
		half := dim / 2
		for i := range alpha {
			if topicShift > 0.7 {
				if i < half {
					alpha[i] = 0.1
				} else {
					alpha[i] = 0.9
				}
			} else {
				alpha[i] = 0.5
			}
		}
	default: // GatingUniform
		v := 0.9
		if topicShift > threshold {
			v = 0.3
		}
		for i := range alpha {
			alpha[i] = v
		}
	}
	return alpha
}

func unitNorm(v []float64) []float64 {
	var sumSq float64
	for _, x := range v {
		sumSq += x * x
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return append([]float64(nil), v...)
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func hadamard(a, b []float64) []float64 {
	out := make([]float64, len(b))
	for i := range out {
		av := 0.0
		if i < len(a) {
			av = a[i]
		}
		out[i] = av * b[i]
	}
	return out
}

func scalarMulVec(s float64, v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = s * x
	}
	return out
}

func subVec(a, b []float64) []float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = a[i] - b[i]
	}
	return out
}

func addVec(a, b []float64) []float64 {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]float64, n)
	for i := range out {
		var av, bv float64
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		out[i] = av + bv
	}
	return out
}
