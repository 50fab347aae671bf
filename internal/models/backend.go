package models

import (
	"github.com/Bots-Avatar/inseq/internal/generate"
	"github.com/Bots-Avatar/inseq/internal/tensor"
)

// CausalLM is the forward-pass capability set a decoder-only backend must
// provide to support attribution. It extends the generation capability with
// embedding-space entry points used by gradient-style methods.
type CausalLM interface {
	generate.CausalLM

	// ForwardEmbeds runs the forward pass from precomputed input embeddings
	// of shape [batch, seq, dim], returning [batch, seq, vocab] logits.
	ForwardEmbeds(inputEmbeds, attentionMask *tensor.RawTensor) (*tensor.RawTensor, error)

	// EmbeddingTable returns the [vocab, dim] input embedding table.
	EmbeddingTable() *tensor.RawTensor
}

// Seq2SeqLM is the forward-pass capability set an encoder-decoder backend
// must provide to support attribution. Source and target sides may use
// distinct vocabularies.
type Seq2SeqLM interface {
	generate.Seq2SeqLM

	// ForwardEmbeds runs the forward pass from precomputed source and
	// target embeddings, returning [batch, tgt_seq, vocab] logits.
	ForwardEmbeds(sourceEmbeds, sourceMask, targetEmbeds *tensor.RawTensor) (*tensor.RawTensor, error)

	// EncoderEmbeddingTable returns the source-side embedding table.
	EncoderEmbeddingTable() *tensor.RawTensor

	// DecoderEmbeddingTable returns the target-side embedding table.
	DecoderEmbeddingTable() *tensor.RawTensor
}

// DeviceMover is implemented by backends (and adapters wrapping them) that
// can move their parameters between execution devices.
type DeviceMover interface {
	MoveTo(device tensor.Device) error
}

// EvalSwitcher is implemented by backends that distinguish training and
// evaluation mode. Attribution always runs in evaluation mode.
type EvalSwitcher interface {
	SetEval()
}
