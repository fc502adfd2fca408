// Package document defines the Document value type shared by every stage of
// the retrieval pipeline, from retrieval through reranking to synthesis.
package document

import (
	"errors"

	"github.com/google/uuid"
)

// Document is a single retrieved or generated unit of content flowing through
// the pipeline. Embedding and Similarity are populated lazily: a freshly
// retrieved Document carries Similarity (from the vector backend) but may
// have a nil Embedding if the backend does not return vectors; Rank is the
// 1-based position assigned by whichever stage last ordered the list (the
// vector backend and the retriever both assign it).
type Document struct {
	ID         string
	Content    string
	Embedding  []float64
	Metadata   map[string]any
	Similarity float64
	Rank       int
}

// New creates a Document with the given content and an initialized metadata
// map. Returns an error if content is empty, since an empty Document carries
// nothing for the pipeline to retrieve, rerank, or synthesize. An empty id
// is replaced with a generated UUID, so callers ingesting a corpus without
// natural keys (e.g. a document loader) don't need their own ID generator.
func New(id, content string) (*Document, error) {
	if content == "" {
		return nil, errors.New("document: content must not be empty")
	}
	if id == "" {
		id = uuid.New().String()
	}
	return &Document{
		ID:       id,
		Content:  content,
		Metadata: make(map[string]any),
	}, nil
}

// Clone returns a deep copy of the document, so that callers downstream
// (rerankers, synthesizers) can mutate Rank/Similarity without affecting the
// version held elsewhere, e.g. by a concurrent retrieval fan-out.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	clone := *d
	if d.Embedding != nil {
		clone.Embedding = append([]float64(nil), d.Embedding...)
	}
	clone.Metadata = make(map[string]any, len(d.Metadata))
	for k, v := range d.Metadata {
		clone.Metadata[k] = v
	}
	return &clone
}
