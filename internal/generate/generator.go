package generate

import (
	"fmt"

	"github.com/Bots-Avatar/inseq/internal/tensor"
)

// GenerateConfig configures text generation.
//
//nolint:revive // GenerateConfig is clearer than Config
type GenerateConfig struct {
	// MaxNewTokens is the maximum number of tokens to generate per example.
	MaxNewTokens int

	// StopTokens are token IDs that trigger stopping (besides EOS).
	StopTokens []int32

	// DecoderInputIDs optionally seeds the decoder with target prefixes,
	// one row per example. Encoder-decoder models only.
	DecoderInputIDs [][]int32

	// Sampling is the sampling configuration.
	Sampling SamplingConfig
}

// DefaultGenerateConfig returns sensible defaults for generation.
func DefaultGenerateConfig() GenerateConfig {
	return GenerateConfig{
		MaxNewTokens: 256,
		Sampling:     DefaultSamplingConfig(),
	}
}

// CausalLM is the minimal forward capability required to drive decoder-only
// generation. Input shape [batch, seq], output shape [batch, seq, vocab].
type CausalLM interface {
	Forward(inputIDs, attentionMask *tensor.RawTensor) (*tensor.RawTensor, error)
	VocabSize() int
}

// Seq2SeqLM is the minimal forward capability required to drive
// encoder-decoder generation. The decoder consumes the target prefix and
// returns logits shaped [batch, tgt_seq, vocab].
type Seq2SeqLM interface {
	Forward(sourceIDs, sourceMask, targetIDs *tensor.RawTensor) (*tensor.RawTensor, error)
	DecoderStartToken() int32
	VocabSize() int
}

// CausalGenerator runs autoregressive decoding for decoder-only models.
type CausalGenerator struct {
	model CausalLM
	eos   int32
}

// NewCausalGenerator creates a generator over a causal language model.
// eosToken stops generation; pass -1 to disable.
func NewCausalGenerator(model CausalLM, eosToken int32) *CausalGenerator {
	return &CausalGenerator{model: model, eos: eosToken}
}

// Generate extends each prompt with sampled continuations and returns the
// full sequences (prompt plus continuation).
func (g *CausalGenerator) Generate(prompts [][]int32, config GenerateConfig) ([][]int32, error) {
	if len(prompts) == 0 {
		return nil, fmt.Errorf("empty input")
	}
	if len(config.DecoderInputIDs) > 0 {
		return nil, fmt.Errorf("decoder input seeding is an encoder-decoder feature")
	}

	sampler := NewSampler(config.Sampling)
	out := make([][]int32, len(prompts))
	for i, prompt := range prompts {
		if len(prompt) == 0 {
			return nil, fmt.Errorf("empty prompt at index %d", i)
		}
		seq, err := g.generateOne(prompt, sampler, config)
		if err != nil {
			return nil, fmt.Errorf("generate example %d: %w", i, err)
		}
		out[i] = seq
	}
	return out, nil
}

// generateOne is the core decoding loop for one example.
func (g *CausalGenerator) generateOne(prompt []int32, sampler *Sampler, config GenerateConfig) ([]int32, error) {
	seq := append([]int32{}, prompt...)

	for i := 0; i < config.MaxNewTokens; i++ {
		input, mask, err := idsTensor(seq)
		if err != nil {
			return nil, err
		}
		logits, err := g.model.Forward(input, mask)
		if err != nil {
			return nil, fmt.Errorf("forward: %w", err)
		}

		next := sampler.Sample(lastLogits(logits), seq)
		seq = append(seq, next)

		if g.isStop(next, config) {
			break
		}
	}
	return seq, nil
}

func (g *CausalGenerator) isStop(token int32, config GenerateConfig) bool {
	if g.eos >= 0 && token == g.eos {
		return true
	}
	for _, stop := range config.StopTokens {
		if token == stop {
			return true
		}
	}
	return false
}

// Seq2SeqGenerator runs autoregressive decoding for encoder-decoder models.
type Seq2SeqGenerator struct {
	model Seq2SeqLM
	eos   int32
}

// NewSeq2SeqGenerator creates a generator over a sequence-to-sequence model.
// eosToken stops generation; pass -1 to disable.
func NewSeq2SeqGenerator(model Seq2SeqLM, eosToken int32) *Seq2SeqGenerator {
	return &Seq2SeqGenerator{model: model, eos: eosToken}
}

// Generate decodes one target sequence per source sequence. Returned
// sequences start with the decoder start token. When
// config.DecoderInputIDs is set, decoding continues from those prefixes.
func (g *Seq2SeqGenerator) Generate(sources [][]int32, config GenerateConfig) ([][]int32, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("empty input")
	}
	if len(config.DecoderInputIDs) > 0 && len(config.DecoderInputIDs) != len(sources) {
		return nil, fmt.Errorf("got %d decoder prefixes for %d sources",
			len(config.DecoderInputIDs), len(sources))
	}

	sampler := NewSampler(config.Sampling)
	out := make([][]int32, len(sources))
	for i, source := range sources {
		if len(source) == 0 {
			return nil, fmt.Errorf("empty source at index %d", i)
		}

		target := []int32{g.model.DecoderStartToken()}
		if len(config.DecoderInputIDs) > 0 {
			target = append(target, config.DecoderInputIDs[i]...)
		}

		seq, err := g.generateOne(source, target, sampler, config)
		if err != nil {
			return nil, fmt.Errorf("generate example %d: %w", i, err)
		}
		out[i] = seq
	}
	return out, nil
}

func (g *Seq2SeqGenerator) generateOne(source, target []int32, sampler *Sampler, config GenerateConfig) ([]int32, error) {
	src, srcMask, err := idsTensor(source)
	if err != nil {
		return nil, err
	}

	for i := 0; i < config.MaxNewTokens; i++ {
		tgt, _, err := idsTensor(target)
		if err != nil {
			return nil, err
		}
		logits, err := g.model.Forward(src, srcMask, tgt)
		if err != nil {
			return nil, fmt.Errorf("forward: %w", err)
		}

		next := sampler.Sample(lastLogits(logits), target)
		target = append(target, next)

		if g.isStop(next, config) {
			break
		}
	}
	return target, nil
}

func (g *Seq2SeqGenerator) isStop(token int32, config GenerateConfig) bool {
	if g.eos >= 0 && token == g.eos {
		return true
	}
	for _, stop := range config.StopTokens {
		if token == stop {
			return true
		}
	}
	return false
}

// idsTensor builds a [1, seq] id tensor and matching all-ones mask.
func idsTensor(ids []int32) (*tensor.RawTensor, *tensor.RawTensor, error) {
	shape := tensor.Shape{1, len(ids)}
	input, err := tensor.FromInt32(ids, shape, tensor.CPU)
	if err != nil {
		return nil, nil, err
	}
	mask, err := tensor.NewRaw(shape, tensor.Int32, tensor.CPU)
	if err != nil {
		return nil, nil, err
	}
	m := mask.AsInt32()
	for i := range m {
		m[i] = 1
	}
	return input, mask, nil
}

// lastLogits extracts logits for the last position.
func lastLogits(logits *tensor.RawTensor) []float32 {
	shape := logits.Shape()
	data := logits.AsFloat32()
	switch len(shape) {
	case 3:
		// [batch, seq_len, vocab_size], batch 0
		vocab := shape[2]
		start := (shape[1] - 1) * vocab
		return data[start : start+vocab]
	case 2:
		// [seq_len, vocab_size]
		vocab := shape[1]
		start := (shape[0] - 1) * vocab
		return data[start : start+vocab]
	default:
		// Assume [vocab_size]
		return data
	}
}
