package generate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bots-Avatar/inseq/internal/tensor"
)

const (
	mockVocab  = 16
	mockEOS    = int32(2)
	mockStart  = int32(1)
	boostLogit = float32(10)
	floorLogit = float32(-10)
)

// scriptedCausal always predicts the scripted token after the current
// sequence position, then EOS.
type scriptedCausal struct {
	script []int32
}

func (m *scriptedCausal) Forward(inputIDs, _ *tensor.RawTensor) (*tensor.RawTensor, error) {
	seqLen := inputIDs.Shape()[1]
	return scriptedLogits(m.script, seqLen-1) // predictions for position after the last token
}

func (m *scriptedCausal) VocabSize() int { return mockVocab }

// scriptedSeq2Seq predicts the scripted token for each target prefix length.
type scriptedSeq2Seq struct {
	script []int32
}

func (m *scriptedSeq2Seq) Forward(_, _, targetIDs *tensor.RawTensor) (*tensor.RawTensor, error) {
	prefixLen := targetIDs.Shape()[1]
	return scriptedLogits(m.script, prefixLen-1)
}

func (m *scriptedSeq2Seq) DecoderStartToken() int32 { return mockStart }
func (m *scriptedSeq2Seq) VocabSize() int           { return mockVocab }

// scriptedLogits returns [1, 1, vocab] logits favoring script[step], or EOS
// past the end of the script. The scripts are indexed by how many tokens
// beyond the prompt/start token have been produced.
func scriptedLogits(script []int32, produced int) (*tensor.RawTensor, error) {
	logits := make([]float32, mockVocab)
	for i := range logits {
		logits[i] = floorLogit
	}
	if produced >= 0 && produced < len(script) {
		logits[script[produced]] = boostLogit
	} else {
		logits[mockEOS] = boostLogit
	}
	return tensor.FromFloat32(logits, tensor.Shape{1, 1, mockVocab}, tensor.CPU)
}

func TestCausalGenerate(t *testing.T) {
	model := &scriptedCausal{script: []int32{10, 11, 12}} // single-token prompts: script[i] is the i-th generated token
	gen := NewCausalGenerator(model, mockEOS)

	out, err := gen.Generate([][]int32{{5}}, DefaultGenerateConfig())
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Equal(t, []int32{5, 10, 11, 12, mockEOS}, out[0],
		"full sequence keeps the prompt prefix and stops at EOS")
}

func TestCausalGenerateMaxTokens(t *testing.T) {
	model := &scriptedCausal{script: []int32{10, 11, 12, 13, 14}}
	gen := NewCausalGenerator(model, mockEOS)

	cfg := DefaultGenerateConfig()
	cfg.MaxNewTokens = 2
	out, err := gen.Generate([][]int32{{5}}, cfg)
	require.NoError(t, err)
	assert.Equal(t, []int32{5, 10, 11}, out[0])
}

func TestCausalGenerateStopTokens(t *testing.T) {
	model := &scriptedCausal{script: []int32{10, 11, 12}}
	gen := NewCausalGenerator(model, mockEOS)

	cfg := DefaultGenerateConfig()
	cfg.StopTokens = []int32{11}
	out, err := gen.Generate([][]int32{{5}}, cfg)
	require.NoError(t, err)
	assert.Equal(t, []int32{5, 10, 11}, out[0], "stop token is kept in the output")
}

func TestCausalGenerateValidation(t *testing.T) {
	gen := NewCausalGenerator(&scriptedCausal{}, mockEOS)

	_, err := gen.Generate(nil, DefaultGenerateConfig())
	assert.Error(t, err)

	_, err = gen.Generate([][]int32{{}}, DefaultGenerateConfig())
	assert.Error(t, err)

	cfg := DefaultGenerateConfig()
	cfg.DecoderInputIDs = [][]int32{{1}}
	_, err = gen.Generate([][]int32{{5}}, cfg)
	assert.Error(t, err, "decoder prefix seeding is rejected for causal models")
}

func TestSeq2SeqGenerate(t *testing.T) {
	model := &scriptedSeq2Seq{script: []int32{7, 8}}
	gen := NewSeq2SeqGenerator(model, mockEOS)

	out, err := gen.Generate([][]int32{{4, 5}}, DefaultGenerateConfig())
	require.NoError(t, err)
	assert.Equal(t, []int32{mockStart, 7, 8, mockEOS}, out[0],
		"target starts with the decoder start token")
}

func TestSeq2SeqGeneratePrefixSeeding(t *testing.T) {
	model := &scriptedSeq2Seq{script: []int32{7, 8, 9}}
	gen := NewSeq2SeqGenerator(model, mockEOS)

	cfg := DefaultGenerateConfig()
	cfg.DecoderInputIDs = [][]int32{{7, 8}}
	out, err := gen.Generate([][]int32{{4}}, cfg)
	require.NoError(t, err)
	assert.Equal(t, []int32{mockStart, 7, 8, 9, mockEOS}, out[0],
		"decoding continues from the seeded prefix")

	cfg.DecoderInputIDs = [][]int32{{7}, {8}}
	_, err = gen.Generate([][]int32{{4}}, cfg)
	assert.Error(t, err, "prefix count must match source count")
}

func TestSamplerGreedy(t *testing.T) {
	sampler := NewSampler(DefaultSamplingConfig())
	logits := []float32{0.1, 0.9, 0.3}
	assert.Equal(t, int32(1), sampler.Sample(logits, nil))
}

func TestSamplerSeededReproducible(t *testing.T) {
	cfg := DefaultSamplingConfig()
	cfg.Temperature = 1.0
	cfg.Seed = 42

	logits := []float32{1, 2, 3, 4}
	a := NewSampler(cfg).Sample(logits, nil)
	b := NewSampler(cfg).Sample(logits, nil)
	assert.Equal(t, a, b)
}

func TestSamplerTopK(t *testing.T) {
	cfg := DefaultSamplingConfig()
	cfg.Temperature = 1.0
	cfg.TopK = 1
	cfg.Seed = 7

	sampler := NewSampler(cfg)
	logits := []float32{0.1, 5, 0.3}
	for i := 0; i < 10; i++ {
		assert.Equal(t, int32(1), sampler.Sample(logits, nil), "top-1 always picks the argmax")
	}
}

func TestSamplerRepetitionPenalty(t *testing.T) {
	cfg := DefaultSamplingConfig()
	cfg.RepeatPenalty = 100

	sampler := NewSampler(cfg)
	logits := []float32{1.0, 1.1}
	// Token 1 was just produced; the penalty must push greedy decoding to token 0.
	assert.Equal(t, int32(0), sampler.Sample(logits, []int32{1}))
}
