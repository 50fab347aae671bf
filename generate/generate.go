// Package generate provides the generation backend attribution models use
// to produce the texts they attribute.
//
// This package wraps the internal generate implementations and provides a
// clean public API.
//
// Example usage:
//
//	import "github.com/Bots-Avatar/inseq/generate"
//
//	cfg := generate.DefaultGenerateConfig()
//	cfg.MaxNewTokens = 32
//	gen := generate.NewCausalGenerator(model, eosToken)
//	seqs, err := gen.Generate(prompts, cfg)
package generate

import (
	"github.com/Bots-Avatar/inseq/internal/generate"
)

// SamplingConfig configures the sampling strategy for text generation.
type SamplingConfig = generate.SamplingConfig

// GenerateConfig configures text generation.
//
//nolint:revive // GenerateConfig is clearer than Config
type GenerateConfig = generate.GenerateConfig

// Sampler samples tokens from logits using configurable strategies.
type Sampler = generate.Sampler

// CausalLM is the minimal forward capability required to drive decoder-only
// generation.
type CausalLM = generate.CausalLM

// Seq2SeqLM is the minimal forward capability required to drive
// encoder-decoder generation.
type Seq2SeqLM = generate.Seq2SeqLM

// CausalGenerator runs autoregressive decoding for decoder-only models.
type CausalGenerator = generate.CausalGenerator

// Seq2SeqGenerator runs autoregressive decoding for encoder-decoder models.
type Seq2SeqGenerator = generate.Seq2SeqGenerator

// DefaultSamplingConfig returns greedy decoding, the right default for
// attribution targets.
func DefaultSamplingConfig() SamplingConfig {
	return generate.DefaultSamplingConfig()
}

// DefaultGenerateConfig returns sensible defaults for generation.
func DefaultGenerateConfig() GenerateConfig {
	return generate.DefaultGenerateConfig()
}

// NewSampler creates a new sampler with the given configuration.
func NewSampler(config SamplingConfig) *Sampler {
	return generate.NewSampler(config)
}

// NewCausalGenerator creates a generator over a causal language model.
// eosToken stops generation; pass -1 to disable.
func NewCausalGenerator(model CausalLM, eosToken int32) *CausalGenerator {
	return generate.NewCausalGenerator(model, eosToken)
}

// NewSeq2SeqGenerator creates a generator over a sequence-to-sequence model.
// eosToken stops generation; pass -1 to disable.
func NewSeq2SeqGenerator(model Seq2SeqLM, eosToken int32) *Seq2SeqGenerator {
	return generate.NewSeq2SeqGenerator(model, eosToken)
}
