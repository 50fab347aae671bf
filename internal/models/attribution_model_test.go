package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bots-Avatar/inseq/internal/data"
	"github.com/Bots-Avatar/inseq/internal/generate"
	"github.com/Bots-Avatar/inseq/internal/logger"
	"github.com/Bots-Avatar/inseq/internal/stepscores"
	"github.com/Bots-Avatar/inseq/internal/tensor"
	"github.com/Bots-Avatar/inseq/internal/tokenizer"
)

const (
	testVocab = 64
	testDim   = 4
)

// eosLogits builds [1, seq, vocab] logits that always favor EOS, so echo
// backends generate nothing beyond their prompt.
func eosLogits(seq int, eos int32) *tensor.RawTensor {
	vals := make([]float32, seq*testVocab)
	for i := range vals {
		vals[i] = -10
	}
	for pos := 0; pos < seq; pos++ {
		vals[pos*testVocab+int(eos)] = 10
	}
	t, err := tensor.FromFloat32(vals, tensor.Shape{1, seq, testVocab}, tensor.CPU)
	if err != nil {
		panic(err)
	}
	return t
}

func testEmbeddingTable() *tensor.RawTensor {
	vals := make([]float32, testVocab*testDim)
	for i := range vals {
		vals[i] = float32(i)
	}
	t, err := tensor.FromFloat32(vals, tensor.Shape{testVocab, testDim}, tensor.CPU)
	if err != nil {
		panic(err)
	}
	return t
}

// echoCausal immediately predicts EOS, so generated text equals the prompt.
// It records forward calls and device moves.
type echoCausal struct {
	forwardCalls int
	moves        []tensor.Device
}

func (m *echoCausal) Forward(inputIDs, _ *tensor.RawTensor) (*tensor.RawTensor, error) {
	m.forwardCalls++
	return eosLogits(inputIDs.Shape()[1], 2), nil
}

func (m *echoCausal) ForwardEmbeds(inputEmbeds, _ *tensor.RawTensor) (*tensor.RawTensor, error) {
	m.forwardCalls++
	return eosLogits(inputEmbeds.Shape()[1], 2), nil
}

func (m *echoCausal) VocabSize() int                      { return testVocab }
func (m *echoCausal) EmbeddingTable() *tensor.RawTensor   { return testEmbeddingTable() }
func (m *echoCausal) MoveTo(device tensor.Device) error   { m.moves = append(m.moves, device); return nil }

// echoSeq2Seq immediately predicts EOS after the seeded prefix.
type echoSeq2Seq struct {
	forwardCalls int
}

func (m *echoSeq2Seq) Forward(_, _, targetIDs *tensor.RawTensor) (*tensor.RawTensor, error) {
	m.forwardCalls++
	return eosLogits(targetIDs.Shape()[1], 2), nil
}

func (m *echoSeq2Seq) ForwardEmbeds(_, _, targetEmbeds *tensor.RawTensor) (*tensor.RawTensor, error) {
	m.forwardCalls++
	return eosLogits(targetEmbeds.Shape()[1], 2), nil
}

func (m *echoSeq2Seq) DecoderStartToken() int32                 { return 1 }
func (m *echoSeq2Seq) VocabSize() int                           { return testVocab }
func (m *echoSeq2Seq) EncoderEmbeddingTable() *tensor.RawTensor { return testEmbeddingTable() }
func (m *echoSeq2Seq) DecoderEmbeddingTable() *tensor.RawTensor { return testEmbeddingTable() }

// fakeMethod records the parameters of its last run and emits one output
// per example so merge ordering is observable.
type fakeMethod struct {
	name         string
	model        *AttributionModel
	lastParams   AttributionParams
	deviceDuring string
	calls        int
	unhooks      int
}

func (f *fakeMethod) MethodName() string { return f.name }

func (f *fakeMethod) PrepareAndAttribute(params AttributionParams) ([]*data.FeatureAttributionOutput, error) {
	f.calls++
	f.lastParams = params
	f.deviceDuring = f.model.Device()

	outs := make([]*data.FeatureAttributionOutput, len(params.InputTexts))
	for i := range params.InputTexts {
		seq := &data.FeatureAttributionSequenceOutput{
			Target: []data.TokenWithID{{Token: params.GeneratedTexts[i]}},
		}
		outs[i] = data.NewFeatureAttributionOutput([]*data.FeatureAttributionSequenceOutput{seq}, nil)
	}
	return outs, nil
}

func (f *fakeMethod) Unhook() error {
	f.unhooks++
	return nil
}

// registerFake installs a fake method factory and returns the slice its
// created instances are appended to.
func registerFake(name string) *[]*fakeMethod {
	created := &[]*fakeMethod{}
	RegisterMethod(name, func(model *AttributionModel, _ MethodConfig) (FeatureAttribution, error) {
		m := &fakeMethod{name: name, model: model}
		*created = append(*created, m)
		return m, nil
	})
	return created
}

func newCausalModel(t *testing.T, backend CausalLM, opts ...Option) *AttributionModel {
	t.Helper()
	opts = append([]Option{WithLogger(logger.Discard())}, opts...)
	model, err := LoadModel("echo-causal", backend, tokenizer.NewWord(), opts...)
	require.NoError(t, err)
	return model
}

func TestAttributeEmptyInput(t *testing.T) {
	registerFake("fake")
	model := newCausalModel(t, &echoCausal{}, WithMethod("fake"))

	_, err := model.Attribute(nil, AttributeOptions{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestAttributeLengthMismatch(t *testing.T) {
	registerFake("fake")
	model := newCausalModel(t, &echoCausal{}, WithMethod("fake"))

	_, err := model.Attribute([]string{"a b"}, AttributeOptions{
		GeneratedTexts: []string{"a b c", "d e"},
	})
	var lerr *LengthMismatchError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, 1, lerr.Inputs)
	assert.Equal(t, 2, lerr.Targets)
}

func TestAttributeMissingMethod(t *testing.T) {
	model := newCausalModel(t, &echoCausal{})

	_, err := model.Attribute([]string{"hello"}, AttributeOptions{})
	assert.ErrorIs(t, err, ErrMissingAttributionMethod)
}

func TestAttributeUnknownMethod(t *testing.T) {
	model := newCausalModel(t, &echoCausal{})

	_, err := model.Attribute([]string{"hello"}, AttributeOptions{Method: "does-not-exist"})
	var uerr *UnknownMethodError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "does-not-exist", uerr.Name)
}

func TestAttributeUnknownAttributedFn(t *testing.T) {
	registerFake("fake")
	model := newCausalModel(t, &echoCausal{}, WithMethod("fake"))

	_, err := model.Attribute([]string{"hello"}, AttributeOptions{AttributedFn: "no-such-score"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no-such-score")
}

func TestAttributeTargetDisabledForDecoderOnly(t *testing.T) {
	created := registerFake("fake")
	model := newCausalModel(t, &echoCausal{}, WithMethod("fake"))

	out, err := model.Attribute([]string{"hello world"}, AttributeOptions{AttributeTarget: true})
	require.NoError(t, err)

	assert.False(t, out.InfoBool(data.InfoAttributeTarget), "flag must be reported as disabled")
	assert.False(t, (*created)[0].lastParams.AttributeTarget)
}

func TestAttributeGenerationEcho(t *testing.T) {
	created := registerFake("fake")
	backend := &echoCausal{}
	model := newCausalModel(t, backend, WithMethod("fake"))

	out, err := model.Attribute([]string{"hello world"}, AttributeOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"hello world"}, (*created)[0].lastParams.GeneratedTexts,
		"echo backend generates EOS right away, keeping only the prompt")
	assert.Greater(t, backend.forwardCalls, 0)

	assert.Equal(t, []string{"hello world"}, out.InfoStrings(data.InfoGeneratedTexts),
		"generated texts are always recorded as a list")
	assert.False(t, out.InfoBool(data.InfoConstrainedDecoding))
	assert.NotEmpty(t, out.InfoString(data.InfoRunID))
	assert.Equal(t, "echo-causal", out.InfoString(data.InfoModelName))
	assert.Equal(t, "fake", out.InfoString(data.InfoAttributionMethod))
	assert.Equal(t, stepscores.Probability, out.InfoString(data.InfoAttributedFn))
	assert.Contains(t, out.Info, data.InfoGenerationArgs)
}

func TestAttributeConstrainedSkipsGeneration(t *testing.T) {
	registerFake("fake")
	backend := &echoCausal{}
	model := newCausalModel(t, backend, WithMethod("fake"))

	cfg := generate.DefaultGenerateConfig()
	out, err := model.Attribute([]string{"hello"}, AttributeOptions{
		GeneratedTexts: []string{"hello world"},
		Generation:     &cfg,
	})
	require.NoError(t, err)

	assert.Equal(t, 0, backend.forwardCalls, "forced targets skip generation entirely")
	assert.True(t, out.InfoBool(data.InfoConstrainedDecoding))
	assert.NotContains(t, out.Info, data.InfoGenerationArgs,
		"ignored generation options are not recorded")
}

func TestAttributeDecoderOnlyPrefixPrecondition(t *testing.T) {
	registerFake("fake")
	model := newCausalModel(t, &echoCausal{}, WithMethod("fake"))

	_, err := model.Attribute([]string{"the cake"}, AttributeOptions{
		GeneratedTexts: []string{"a different text"},
	})
	var perr *PreconditionError
	require.ErrorAs(t, err, &perr)
}

func TestAttributeBatchSizeForcing(t *testing.T) {
	created := registerFake("fake")
	limeCreated := registerFake("lime")
	model := newCausalModel(t, &echoCausal{}, WithMethod("fake"))

	// Forced targets over multiple decoder-only examples.
	_, err := model.Attribute([]string{"a b", "c"}, AttributeOptions{
		GeneratedTexts: []string{"a b x", "c y z"},
		BatchSize:      8,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, (*created)[0].lastParams.BatchSize)

	// Custom attribution spans over multiple examples.
	_, err = model.Attribute([]string{"a b", "c d"}, AttributeOptions{
		AttrPosStart: 1,
		BatchSize:    8,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, (*created)[0].lastParams.BatchSize)

	// Lime always runs one example at a time.
	_, err = model.Attribute([]string{"a b"}, AttributeOptions{Method: "lime", BatchSize: 8})
	require.NoError(t, err)
	assert.Equal(t, 1, (*limeCreated)[0].lastParams.BatchSize)

	// Unforced generation over prompts of unequal token lengths.
	_, err = model.Attribute([]string{"a b c", "d"}, AttributeOptions{BatchSize: 8})
	require.NoError(t, err)
	assert.Equal(t, 1, (*created)[0].lastParams.BatchSize)

	// Equal-length prompts keep the requested batch size.
	_, err = model.Attribute([]string{"a b", "c d"}, AttributeOptions{BatchSize: 8})
	require.NoError(t, err)
	assert.Equal(t, 8, (*created)[0].lastParams.BatchSize)

	// A single plain example keeps the requested batch size.
	_, err = model.Attribute([]string{"a b"}, AttributeOptions{BatchSize: 8})
	require.NoError(t, err)
	assert.Equal(t, 8, (*created)[0].lastParams.BatchSize)
}

func TestAttributeMergePreservesOrder(t *testing.T) {
	registerFake("fake")
	model := newCausalModel(t, &echoCausal{}, WithMethod("fake"))

	out, err := model.Attribute([]string{"a", "b", "c"}, AttributeOptions{})
	require.NoError(t, err)

	require.Equal(t, 3, out.NumSequences())
	assert.Equal(t, "a", out.Sequence(0).Target[0].Token)
	assert.Equal(t, "b", out.Sequence(1).Target[0].Token)
	assert.Equal(t, "c", out.Sequence(2).Target[0].Token)
}

func TestAttributeMethodOverride(t *testing.T) {
	createdA := registerFake("fake-a")
	registerFake("fake-b")
	model := newCausalModel(t, &echoCausal{}, WithMethod("fake-a"))
	require.Equal(t, "fake-a", model.MethodName())

	// One-off use keeps the bound default but unhooks it first.
	_, err := model.Attribute([]string{"x"}, AttributeOptions{Method: "fake-b"})
	require.NoError(t, err)
	assert.Equal(t, "fake-a", model.MethodName())
	assert.Equal(t, 1, (*createdA)[0].unhooks)

	// Override rebinds the default.
	_, err = model.Attribute([]string{"x"}, AttributeOptions{Method: "fake-b", OverrideDefaultMethod: true})
	require.NoError(t, err)
	assert.Equal(t, "fake-b", model.MethodName())
}

func TestAttributeScopedDeviceOverride(t *testing.T) {
	created := registerFake("fake")
	backend := &echoCausal{}
	model := newCausalModel(t, backend, WithMethod("fake"))
	require.Equal(t, "cpu", model.Device())

	_, err := model.Attribute([]string{"x"}, AttributeOptions{Device: "cuda"})
	require.NoError(t, err)

	assert.Equal(t, "cuda", (*created)[0].deviceDuring, "attribution runs on the override device")
	assert.Equal(t, "cpu", model.Device(), "original device is restored afterwards")
	assert.Equal(t, []tensor.Device{tensor.CUDA, tensor.CPU}, backend.moves)
}

func TestAttributeInvalidDeviceLeavesStateUntouched(t *testing.T) {
	registerFake("fake")
	backend := &echoCausal{}
	model := newCausalModel(t, backend, WithMethod("fake"))

	_, err := model.Attribute([]string{"x"}, AttributeOptions{Device: "tpu"})
	require.Error(t, err)
	assert.Equal(t, "cpu", model.Device())
	assert.Empty(t, backend.moves, "validation failures must not move the model")
}

func TestAttributeCustomAttributedFn(t *testing.T) {
	created := registerFake("fake")
	model := newCausalModel(t, &echoCausal{}, WithMethod("fake"))

	custom := func(stepscores.StepFunctionArgs) ([]float32, error) {
		return nil, fmt.Errorf("not called in this test")
	}
	out, err := model.Attribute([]string{"x"}, AttributeOptions{AttributedFnFunc: custom})
	require.NoError(t, err)

	assert.Equal(t, "custom", out.InfoString(data.InfoAttributedFn))
	assert.NotNil(t, (*created)[0].lastParams.AttributedFn)
}

func TestGenerateFromTargetPrefix(t *testing.T) {
	created := registerFake("fake")
	backend := &echoSeq2Seq{}
	model, err := LoadModel("echo-seq2seq", backend, tokenizer.NewWord(),
		WithLogger(logger.Discard()), WithMethod("fake"))
	require.NoError(t, err)

	out, err := model.Attribute([]string{"hello world"}, AttributeOptions{
		GeneratedTexts:           []string{"bonjour"},
		GenerateFromTargetPrefix: true,
	})
	require.NoError(t, err)

	assert.Greater(t, backend.forwardCalls, 0, "prefix continuation requires generation")
	assert.Equal(t, []string{"bonjour"}, (*created)[0].lastParams.GeneratedTexts,
		"echo backend stops right after the seeded prefix")
	assert.True(t, out.InfoBool(data.InfoGenerateFromTargetPrefix))
	assert.Contains(t, out.Info, data.InfoGenerationArgs)
}

func TestGenerateFromTargetPrefixDisabledForDecoderOnly(t *testing.T) {
	registerFake("fake")
	backend := &echoCausal{}
	model := newCausalModel(t, backend, WithMethod("fake"))

	out, err := model.Attribute([]string{"hello"}, AttributeOptions{
		GeneratedTexts:           []string{"hello world"},
		GenerateFromTargetPrefix: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 0, backend.forwardCalls, "flag is dropped, targets stay forced")
	assert.False(t, out.InfoBool(data.InfoGenerateFromTargetPrefix))
}

func TestSetDefaultAttributedFnValidates(t *testing.T) {
	model := newCausalModel(t, &echoCausal{})

	require.NoError(t, model.SetDefaultAttributedFn(stepscores.Entropy))
	assert.Equal(t, stepscores.Entropy, model.AttributedFnName())

	err := model.SetDefaultAttributedFn("bogus")
	require.Error(t, err)
	assert.Equal(t, stepscores.Entropy, model.AttributedFnName(), "failed update leaves the default untouched")
}

func TestLoadModelAdapterResolution(t *testing.T) {
	causal, err := LoadModel("c", &echoCausal{}, tokenizer.NewWord(), WithLogger(logger.Discard()))
	require.NoError(t, err)
	assert.False(t, causal.IsEncoderDecoder())

	seq2seq, err := LoadModel("s", &echoSeq2Seq{}, tokenizer.NewWord(), WithLogger(logger.Discard()))
	require.NoError(t, err)
	assert.True(t, seq2seq.IsEncoderDecoder())

	_, err = LoadModel("bad", 42, tokenizer.NewWord(), WithLogger(logger.Discard()))
	require.Error(t, err)

	_, err = LoadModel("no-tok", &echoCausal{}, nil)
	require.Error(t, err)
}

func TestListMethodsSorted(t *testing.T) {
	registerFake("zz-last")
	registerFake("aa-first")

	names := ListMethods()
	require.GreaterOrEqual(t, len(names), 2)
	assert.True(t, sortedStrings(names), "method listing must be sorted: %v", names)
}

func sortedStrings(s []string) bool {
	for i := 1; i < len(s); i++ {
		if s[i-1] > s[i] {
			return false
		}
	}
	return true
}

func TestTokenizeWithIDs(t *testing.T) {
	model := newCausalModel(t, &echoCausal{})

	pairs, err := model.TokenizeWithIDs("one two one")
	require.NoError(t, err)
	require.Len(t, pairs, 3)
	assert.Equal(t, "one", pairs[0].Token)
	assert.Equal(t, pairs[0].ID, pairs[2].ID, "repeated words share an id")
	assert.NotEqual(t, pairs[0].ID, pairs[1].ID)
}

func TestEmbedTexts(t *testing.T) {
	model := newCausalModel(t, &echoCausal{})

	embeds, err := model.Embed([]string{"one two"}, false)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 2, testDim}, embeds.Shape())
}

func TestAttributeErrorIsNotWrappedValidation(t *testing.T) {
	// Sanity check that typed errors survive the call chain.
	registerFake("fake")
	model := newCausalModel(t, &echoCausal{}, WithMethod("fake"))

	_, err := model.Attribute([]string{}, AttributeOptions{})
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}
