package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptTemplate_Render(t *testing.T) {
	rendered, err := NewPromptTemplate().
		WithTemplate("Q: {{.query}}\nCONTEXT:\n{{.context}}").
		WithQuery("what is RRF?").
		WithContext("reciprocal rank fusion combines ranked lists").
		Render()

	require.NoError(t, err)
	assert.Contains(t, rendered, "Q: what is RRF?")
	assert.Contains(t, rendered, "reciprocal rank fusion")
}

func TestPromptTemplate_WithAnswer(t *testing.T) {
	rendered, err := NewPromptTemplate().
		WithTemplate("ANSWER: {{.answer}}").
		WithAnswer("Paris").
		Render()

	require.NoError(t, err)
	assert.Equal(t, "ANSWER: Paris", rendered)
}

func TestPromptTemplate_WithVariables(t *testing.T) {
	rendered, err := NewPromptTemplate().
		WithTemplate("{{.a}}-{{.b}}").
		WithVariables(map[string]any{"a": "x", "b": "y"}).
		Render()

	require.NoError(t, err)
	assert.Equal(t, "x-y", rendered)
}

func TestPromptTemplate_EmptyTemplate(t *testing.T) {
	rendered, err := NewPromptTemplate().Render()
	require.NoError(t, err)
	assert.Empty(t, rendered)
}
