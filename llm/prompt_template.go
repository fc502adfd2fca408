package llm

import (
	"github.com/ragmind/engine/pkg/text"
)

// PromptTemplate is a fluent builder for rendering the prompts each rag
// component sends to a Generator. It wraps pkg/text.Renderer rather than
// reimplementing template handling, adding only the variable-name
// vocabulary (WithQuery, WithContext, WithAnswer) the rag prompts share.
type PromptTemplate struct {
	renderer *text.Renderer
}

// NewPromptTemplate creates an empty PromptTemplate. Use WithTemplate to
// set the template string before rendering.
func NewPromptTemplate() *PromptTemplate {
	return &PromptTemplate{renderer: text.NewRenderer()}
}

// WithTemplate sets the template string. Returns the receiver for chaining.
func (p *PromptTemplate) WithTemplate(templateString string) *PromptTemplate {
	p.renderer.WithTemplate(templateString)
	return p
}

// WithVariable sets a single template variable. Returns the receiver for chaining.
func (p *PromptTemplate) WithVariable(name string, value any) *PromptTemplate {
	p.renderer.WithVariable(name, value)
	return p
}

// WithVariables replaces all template variables at once. Returns the
// receiver for chaining.
func (p *PromptTemplate) WithVariables(vars map[string]any) *PromptTemplate {
	p.renderer.WithVariables(vars)
	return p
}

// WithQuery is shorthand for WithVariable("query", query), the variable
// name every reformulation/retrieval/generation prompt template uses.
func (p *PromptTemplate) WithQuery(query string) *PromptTemplate {
	return p.WithVariable("query", query)
}

// WithContext is shorthand for WithVariable("context", ctx), the variable
// name synthesis and generation prompt templates use for retrieved content.
func (p *PromptTemplate) WithContext(ctx string) *PromptTemplate {
	return p.WithVariable("context", ctx)
}

// WithAnswer is shorthand for WithVariable("answer", answer), used by
// verifier prompt templates.
func (p *PromptTemplate) WithAnswer(answer string) *PromptTemplate {
	return p.WithVariable("answer", answer)
}

// Render renders the template against its current variables.
func (p *PromptTemplate) Render() (string, error) {
	return p.renderer.Render()
}

// MustRender renders the template and panics on error. Reserved for
// template strings that are compile-time constants known to be valid.
func (p *PromptTemplate) MustRender() string {
	return p.renderer.MustRender()
}
