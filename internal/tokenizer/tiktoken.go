package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

const (
	// encodingCL100kBase is the encoding name for GPT-4 and GPT-3.5-turbo.
	encodingCL100kBase = "cl100k_base"
	// encodingP50kBase is the encoding name for GPT-3.
	encodingP50kBase = "p50k_base"
	// encodingR50kBase is the encoding name for older GPT-3 models.
	encodingR50kBase = "r50k_base"
)

// TikToken wraps the pkoukk/tiktoken-go library for OpenAI tokenizers.
//
// Supported encodings:
//   - cl100k_base: GPT-4, GPT-3.5-turbo, text-embedding-ada-002
//   - p50k_base: GPT-3, Codex
//   - r50k_base: GPT-3, davinci-002, babbage-002
type TikToken struct {
	encoding *tiktoken.Tiktoken
	name     string
}

// NewTikToken creates a new TikToken tokenizer with the specified encoding.
func NewTikToken(encodingName string) (*TikToken, error) {
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding %q: %w", encodingName, err)
	}

	return &TikToken{
		encoding: encoding,
		name:     encodingName,
	}, nil
}

// NewTikTokenForModel creates a TikToken tokenizer for a specific model.
//
// Example models: "gpt-4", "gpt-3.5-turbo", "text-embedding-ada-002".
func NewTikTokenForModel(modelName string) (*TikToken, error) {
	encoding, err := tiktoken.EncodingForModel(modelName)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken for model %q: %w", modelName, err)
	}

	return &TikToken{
		encoding: encoding,
		name:     modelName,
	}, nil
}

// Encode converts text to token IDs.
func (t *TikToken) Encode(text string) ([]int32, error) {
	tokens := t.encoding.Encode(text, nil, nil)

	result := make([]int32, len(tokens))
	for i, tok := range tokens {
		result[i] = int32(tok) //nolint:gosec // G115: Token ID fits in int32 - vocab size < 2^31.
	}

	return result, nil
}

// Decode converts token IDs back to text.
func (t *TikToken) Decode(tokens []int32) (string, error) {
	intTokens := make([]int, len(tokens))
	for i, tok := range tokens {
		intTokens[i] = int(tok)
	}

	return t.encoding.Decode(intTokens), nil
}

// IDToToken converts a single token ID to its surface string.
func (t *TikToken) IDToToken(id int32) string {
	return t.encoding.Decode([]int{int(id)})
}

// TokenToID converts a single token string to its first token ID.
// BPE merges guarantee this round-trips for strings produced by IDToToken.
func (t *TikToken) TokenToID(token string) int32 {
	ids := t.encoding.Encode(token, nil, nil)
	if len(ids) == 0 {
		return t.UnkToken()
	}
	return int32(ids[0]) //nolint:gosec // G115: Token ID fits in int32 - vocab size < 2^31.
}

// VocabSize returns the total vocabulary size.
func (t *TikToken) VocabSize() int {
	switch t.name {
	case encodingCL100kBase:
		return 100256
	case encodingP50kBase, encodingR50kBase:
		return 50257
	default:
		return 100000 // Conservative default
	}
}

// BosToken returns the beginning-of-sequence token ID.
// tiktoken doesn't use BOS tokens, returns -1.
func (t *TikToken) BosToken() int32 {
	return -1
}

// EosToken returns the end-of-sequence token ID (<|endoftext|>).
func (t *TikToken) EosToken() int32 {
	switch t.name {
	case encodingCL100kBase:
		return 100257
	case encodingP50kBase, encodingR50kBase:
		return 50256
	default:
		return -1
	}
}

// PadToken returns the padding token ID.
// tiktoken doesn't define a padding token, returns -1.
func (t *TikToken) PadToken() int32 {
	return -1
}

// UnkToken returns the unknown token ID.
// tiktoken handles unknown tokens via BPE fallback, returns -1.
func (t *TikToken) UnkToken() int32 {
	return -1
}

// IsSpecialToken checks if a token ID is a special token.
func (t *TikToken) IsSpecialToken(token int32) bool {
	if token == t.EosToken() {
		return true
	}

	// cl100k_base special tokens: 100256-100276 (ChatML tokens).
	if t.name == encodingCL100kBase && token >= 100256 && token <= 100276 {
		return true
	}

	return false
}

// SpecialTokens returns the token strings of all special tokens.
func (t *TikToken) SpecialTokens() []string {
	return []string{"<|endoftext|>"}
}

// SpecialTokenIDs returns the IDs of all special tokens.
func (t *TikToken) SpecialTokenIDs() []int32 {
	return []int32{t.EosToken()}
}

// Name returns the tokenizer name.
func (t *TikToken) Name() string {
	return t.name
}
