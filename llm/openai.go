package llm

import (
	"context"
	"errors"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIConfig configures an OpenAIClient. APIKey is required; the rest
// carry the defaults applied when GenerateOptions leaves a field zero.
type OpenAIConfig struct {
	APIKey           string
	ChatModel        string
	EmbeddingModel   string
	RequestOptions   []option.RequestOption
	DefaultTemp      float64
	DefaultMaxTokens int
}

func (c *OpenAIConfig) validate() error {
	if c == nil {
		return errors.New("llm: openai config is nil")
	}
	if c.APIKey == "" {
		return errors.New("llm: openai config requires an APIKey")
	}
	if c.ChatModel == "" {
		c.ChatModel = "gpt-4o"
	}
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = "text-embedding-3-small"
	}
	if c.DefaultTemp == 0 {
		c.DefaultTemp = 0.7
	}
	if c.DefaultMaxTokens == 0 {
		c.DefaultMaxTokens = 1024
	}
	return nil
}

// OpenAIClient implements both Generator and Embedder against the OpenAI
// chat completions and embeddings APIs.
type OpenAIClient struct {
	client openai.Client
	cfg    *OpenAIConfig
}

var _ Generator = (*OpenAIClient)(nil)
var _ MultiGenerator = (*OpenAIClient)(nil)
var _ Embedder = (*OpenAIClient)(nil)

// NewOpenAIClient creates an OpenAIClient from cfg, applying defaults for
// any zero-valued field.
func NewOpenAIClient(cfg *OpenAIConfig) (*OpenAIClient, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	options := append(append([]option.RequestOption(nil), cfg.RequestOptions...), option.WithAPIKey(cfg.APIKey))
	return &OpenAIClient{
		client: openai.NewClient(options...),
		cfg:    cfg,
	}, nil
}

func (c *OpenAIClient) buildParams(prompt string, opts GenerateOptions) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.cfg.ChatModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	}

	temperature := opts.Temperature
	if temperature == 0 {
		temperature = c.cfg.DefaultTemp
	}
	params.Temperature = openai.Float(temperature)

	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.cfg.DefaultMaxTokens
	}
	params.MaxCompletionTokens = openai.Int(int64(maxTokens))

	if opts.TopP != 0 {
		params.TopP = openai.Float(opts.TopP)
	}
	if len(opts.StopSequences) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{
			OfStringArray: opts.StopSequences,
		}
	}
	if opts.NumCompletions > 1 {
		params.N = openai.Int(int64(opts.NumCompletions))
	}
	params.Logprobs = openai.Bool(true)

	return params
}

func completionFromChoice(resp *openai.ChatCompletion, choice openai.ChatCompletionChoice) Completion {
	c := Completion{
		Text:       choice.Message.Content,
		TokensUsed: int(resp.Usage.TotalTokens),
	}
	if choice.Logprobs.Content != nil {
		var sum float64
		for _, lp := range choice.Logprobs.Content {
			sum += lp.Logprob
		}
		if len(choice.Logprobs.Content) > 0 {
			c.Logprob = sum / float64(len(choice.Logprobs.Content))
			c.LogprobOK = true
		}
	}
	return c
}

// Generate issues a single chat completion call.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (Completion, error) {
	params := c.buildParams(prompt, opts)
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Completion{}, err
	}
	if len(resp.Choices) == 0 {
		return Completion{}, errors.New("llm: openai returned no choices")
	}
	return completionFromChoice(resp, resp.Choices[0]), nil
}

// GenerateN requests opts.NumCompletions samples in a single round trip
// using the chat completions API's native N parameter.
func (c *OpenAIClient) GenerateN(ctx context.Context, prompt string, opts GenerateOptions) ([]Completion, error) {
	params := c.buildParams(prompt, opts)
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, err
	}
	completions := make([]Completion, 0, len(resp.Choices))
	for _, choice := range resp.Choices {
		completions = append(completions, completionFromChoice(resp, choice))
	}
	return completions, nil
}

// Embed issues a single embeddings request for text.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: c.cfg.EmbeddingModel,
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: []string{text},
		},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("llm: openai returned no embedding data")
	}
	return resp.Data[0].Embedding, nil
}
