// Package tokenizer provides interfaces for text tokenization and token-count
// estimation, used by the pipeline for cost/budget accounting before and
// after LLM calls.
package tokenizer

import "context"

// Estimator estimates the number of tokens in text content. This is useful
// for calculating token usage before making API calls to AI services that
// have token limits or charge based on token consumption.
type Estimator interface {
	// EstimateText estimates the number of tokens in the given text without
	// performing the full encode/decode round trip.
	EstimateText(ctx context.Context, text string) (int, error)
}

// Encoder converts text into token sequences.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]int, error)
}

// Decoder converts token sequences back into text.
type Decoder interface {
	Decode(ctx context.Context, tokens []int) (string, error)
}

// Tokenizer combines both encoding and decoding capabilities. Decoding the
// result of encoding a text should yield the original text.
type Tokenizer interface {
	Encoder
	Decoder
}
