package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	doc, err := New("doc-1", "hello world")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", doc.ID)
	assert.Equal(t, "hello world", doc.Content)
	assert.NotNil(t, doc.Metadata)
	assert.Empty(t, doc.Metadata)
}

func TestNew_EmptyContent(t *testing.T) {
	_, err := New("doc-1", "")
	assert.Error(t, err)
}

func TestNew_EmptyID_GeneratesUUID(t *testing.T) {
	doc, err := New("", "hello world")
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)

	other, err := New("", "hello world")
	require.NoError(t, err)
	assert.NotEqual(t, doc.ID, other.ID)
}

func TestDocument_Clone(t *testing.T) {
	original, err := New("doc-1", "hello world")
	require.NoError(t, err)
	original.Embedding = []float64{1, 2, 3}
	original.Metadata["source"] = "wiki"
	original.Similarity = 0.9
	original.Rank = 1

	clone := original.Clone()
	assert.Equal(t, original.ID, clone.ID)
	assert.Equal(t, original.Content, clone.Content)
	assert.Equal(t, original.Embedding, clone.Embedding)
	assert.Equal(t, original.Metadata, clone.Metadata)
	assert.Equal(t, original.Similarity, clone.Similarity)
	assert.Equal(t, original.Rank, clone.Rank)

	clone.Embedding[0] = 99
	clone.Metadata["source"] = "changed"
	assert.Equal(t, float64(1), original.Embedding[0])
	assert.Equal(t, "wiki", original.Metadata["source"])
}

func TestDocument_Clone_Nil(t *testing.T) {
	var doc *Document
	assert.Nil(t, doc.Clone())
}
