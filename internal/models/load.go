package models

import (
	"fmt"

	"github.com/Bots-Avatar/inseq/internal/tokenizer"
)

// LoadModel wraps a backend and tokenizer into an attribution model,
// resolving the adapter from the backend's capability set. Seq2Seq backends
// get the encoder-decoder adapter, causal backends the decoder-only one.
func LoadModel(name string, backend any, tok tokenizer.Tokenizer, opts ...Option) (*AttributionModel, error) {
	if tok == nil {
		return nil, fmt.Errorf("load model %q: nil tokenizer", name)
	}

	var adapter ModelAdapter
	switch b := backend.(type) {
	case Seq2SeqLM:
		adapter = NewEncoderDecoderAdapter(name, b, tok)
	case CausalLM:
		adapter = NewDecoderOnlyAdapter(name, b, tok)
	case nil:
		// Tokenization-only model: defaults to decoder-only conventions.
		adapter = NewDecoderOnlyAdapter(name, nil, tok)
	default:
		return nil, fmt.Errorf("load model %q: backend type %T implements neither CausalLM nor Seq2SeqLM", name, backend)
	}

	return NewAttributionModel(adapter, opts...)
}
