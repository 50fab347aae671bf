package tokenizer

import "strings"

// Word special token IDs.
const (
	wordPadID int32 = iota
	wordBosID
	wordEosID
	wordUnkID
	wordFirstID // first ID handed out to regular words
)

// Word is a whitespace word-level tokenizer with a vocabulary that grows as
// texts are encoded. IDs are assigned deterministically in first-seen order,
// which makes it suitable for self-contained demos and tests that need exact
// text round-trips without external vocabulary files.
type Word struct {
	vocab    map[string]int32
	invVocab map[int32]string
	next     int32
}

// NewWord creates an empty word-level tokenizer.
func NewWord() *Word {
	w := &Word{
		vocab:    make(map[string]int32),
		invVocab: make(map[int32]string),
		next:     wordFirstID,
	}
	for id, tok := range map[int32]string{
		wordPadID: "<pad>",
		wordBosID: "<bos>",
		wordEosID: "<eos>",
		wordUnkID: "<unk>",
	} {
		w.vocab[tok] = id
		w.invVocab[id] = tok
	}
	return w
}

// Encode converts text to token IDs, extending the vocabulary on the fly.
func (w *Word) Encode(text string) ([]int32, error) {
	words := strings.Fields(text)
	ids := make([]int32, 0, len(words))
	for _, word := range words {
		ids = append(ids, w.TokenToID(word))
	}
	return ids, nil
}

// Decode converts token IDs back to text, skipping special tokens.
func (w *Word) Decode(tokens []int32) (string, error) {
	words := make([]string, 0, len(tokens))
	for _, id := range tokens {
		if w.IsSpecialToken(id) {
			continue
		}
		words = append(words, w.IDToToken(id))
	}
	return strings.Join(words, " "), nil
}

// IDToToken converts a single token ID to its token string.
func (w *Word) IDToToken(id int32) string {
	if tok, ok := w.invVocab[id]; ok {
		return tok
	}
	return "<unk>"
}

// TokenToID converts a single token string to its token ID, assigning a new
// ID when the word has not been seen before.
func (w *Word) TokenToID(token string) int32 {
	if id, ok := w.vocab[token]; ok {
		return id
	}
	id := w.next
	w.next++
	w.vocab[token] = id
	w.invVocab[id] = token
	return id
}

// VocabSize returns the current vocabulary size.
func (w *Word) VocabSize() int {
	return len(w.vocab)
}

// BosToken returns the beginning-of-sequence token ID.
func (w *Word) BosToken() int32 { return wordBosID }

// EosToken returns the end-of-sequence token ID.
func (w *Word) EosToken() int32 { return wordEosID }

// PadToken returns the padding token ID.
func (w *Word) PadToken() int32 { return wordPadID }

// UnkToken returns the unknown token ID.
func (w *Word) UnkToken() int32 { return wordUnkID }

// IsSpecialToken checks if a token ID is a special token.
func (w *Word) IsSpecialToken(token int32) bool {
	return token >= wordPadID && token < wordFirstID
}

// SpecialTokens returns the token strings of all special tokens.
func (w *Word) SpecialTokens() []string {
	return []string{"<pad>", "<bos>", "<eos>", "<unk>"}
}

// SpecialTokenIDs returns the IDs of all special tokens.
func (w *Word) SpecialTokenIDs() []int32 {
	return []int32{wordPadID, wordBosID, wordEosID, wordUnkID}
}
