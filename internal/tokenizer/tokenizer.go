// Package tokenizer implements the text codec used by attribution models.
//
// A tokenizer converts between raw text and token-id sequences and exposes
// the special-token metadata attribution methods rely on (padding for
// batching, UNK for baselines, EOS for stop detection).
package tokenizer

// Tokenizer is the core interface for text tokenization.
//
// All tokenizer implementations (tiktoken, word-level, etc.) must implement
// this interface.
type Tokenizer interface {
	// Encode converts text to token IDs.
	Encode(text string) ([]int32, error)

	// Decode converts token IDs back to text.
	Decode(tokens []int32) (string, error)

	// IDToToken converts a single token ID to its token string.
	IDToToken(id int32) string

	// TokenToID converts a single token string to its token ID.
	// Returns the UNK token ID for unknown tokens.
	TokenToID(token string) int32

	// VocabSize returns the total vocabulary size.
	VocabSize() int

	// BosToken returns the beginning-of-sequence token ID.
	// Returns -1 if not applicable.
	BosToken() int32

	// EosToken returns the end-of-sequence token ID.
	// Returns -1 if not applicable.
	EosToken() int32

	// PadToken returns the padding token ID.
	// Returns -1 if not applicable.
	PadToken() int32

	// UnkToken returns the unknown token ID.
	// Returns -1 if not applicable.
	UnkToken() int32

	// IsSpecialToken checks if a token ID is a special token.
	IsSpecialToken(token int32) bool

	// SpecialTokens returns the token strings of all special tokens.
	SpecialTokens() []string

	// SpecialTokenIDs returns the IDs of all special tokens.
	SpecialTokenIDs() []int32
}
