package rag

import (
	"errors"
	"maps"
)

// Query is the input to the pipeline: the user's question plus an
// open-ended bag of per-request extras (filters, session ids, etc.)
// threaded through every stage.
type Query struct {
	Text  string
	Extra map[string]any
}

// NewQuery creates a Query from raw text.
func NewQuery(text string) (*Query, error) {
	if text == "" {
		return nil, errors.New("text is empty")
	}
	return &Query{Text: text}, nil
}

func (q *Query) ensureExtra() {
	if q.Extra == nil {
		q.Extra = make(map[string]any)
	}
}

func (q *Query) Get(key string) (any, bool) {
	q.ensureExtra()
	value, exists := q.Extra[key]
	return value, exists
}

func (q *Query) Set(key string, value any) {
	q.ensureExtra()
	q.Extra[key] = value
}

func (q *Query) Clone() *Query {
	return &Query{
		Text:  q.Text,
		Extra: maps.Clone(q.Extra),
	}
}
