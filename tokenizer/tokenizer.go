// Package tokenizer provides the text codecs attribution models tokenize
// with.
//
// This package wraps the internal tokenizer implementations and provides a
// clean public API.
//
// Supported tokenizers:
//   - TikToken: OpenAI BPE tokenizers (GPT-3, GPT-4)
//   - Word: growable whitespace word-level tokenizer for demos and tests
//
// Example usage:
//
//	import "github.com/Bots-Avatar/inseq/tokenizer"
//
//	tok, err := tokenizer.NewTikToken("cl100k_base")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ids, err := tok.Encode("Hello, world!")
package tokenizer

import (
	"github.com/Bots-Avatar/inseq/internal/tokenizer"
)

// Tokenizer is the core interface for text tokenization.
//
// All tokenizer implementations must implement this interface.
type Tokenizer = tokenizer.Tokenizer

// Word is a whitespace word-level tokenizer with a growable vocabulary.
type Word = tokenizer.Word

// NewTikToken creates a new TikToken tokenizer with the specified encoding.
//
// Supported encodings: "cl100k_base" (GPT-4), "p50k_base" (GPT-3).
func NewTikToken(encodingName string) (Tokenizer, error) {
	return tokenizer.NewTikToken(encodingName)
}

// NewTikTokenForModel creates a TikToken tokenizer for a specific model.
//
// Example models: "gpt-4", "gpt-3.5-turbo", "text-embedding-ada-002".
func NewTikTokenForModel(modelName string) (Tokenizer, error) {
	return tokenizer.NewTikTokenForModel(modelName)
}

// NewWord creates an empty word-level tokenizer. IDs are assigned in
// first-seen order, which keeps demo attributions reproducible.
func NewWord() *Word {
	return tokenizer.NewWord()
}
