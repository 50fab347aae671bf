package models

import (
	"github.com/Bots-Avatar/inseq/internal/data"
	"github.com/Bots-Avatar/inseq/internal/generate"
	"github.com/Bots-Avatar/inseq/internal/stepscores"
	"github.com/Bots-Avatar/inseq/internal/tensor"
)

// ForwardArgs is the explicit argument set for a model forward pass. The
// adapter decides which fields it consumes; fields that do not apply to the
// architecture stay nil.
type ForwardArgs struct {
	EncoderInputIDs      *tensor.RawTensor
	EncoderInputEmbeds   *tensor.RawTensor
	EncoderAttentionMask *tensor.RawTensor

	DecoderInputIDs      *tensor.RawTensor
	DecoderInputEmbeds   *tensor.RawTensor
	DecoderAttentionMask *tensor.RawTensor

	// UseEmbeds selects the embedding-space entry point instead of the
	// id-based one. Gradient-style methods set this.
	UseEmbeds bool
}

// AttributionInput pairs the raw input texts with their (generated or
// forced) target texts for one attribution run.
type AttributionInput struct {
	InputTexts     []string
	GeneratedTexts []string
}

// ModelAdapter is the architecture contract attribution methods and the
// attribution model drive all model interaction through. Implementations
// exist for decoder-only and encoder-decoder generation models; methods
// never branch on the concrete architecture.
type ModelAdapter interface {
	// ModelName identifies the wrapped model in output metadata.
	ModelName() string

	// IsEncoderDecoder reports whether the wrapped model keeps source and
	// target sequences apart.
	IsEncoderDecoder() bool

	// Encode tokenizes and right-pads texts into a batch encoding.
	// asTargets selects target-side conventions (decoder start token) on
	// encoder-decoder models and is rejected by decoder-only ones.
	// returnBaseline additionally produces UNK-filled baseline ids; EOS
	// positions keep their token unless includeEOSBaseline is set.
	Encode(texts []string, asTargets, returnBaseline, includeEOSBaseline bool) (*data.BatchEncoding, error)

	// Generate produces one output text per encoded example. When
	// returnGenerationOutput is set, the raw generated id sequences are
	// returned alongside the texts.
	Generate(encoding *data.BatchEncoding, returnGenerationOutput bool, config generate.GenerateConfig) ([]string, any, error)

	// EmbedIDs looks up embeddings for a [batch, seq] id tensor, returning
	// [batch, seq, dim]. asTargets selects the decoder-side table on
	// encoder-decoder models.
	EmbedIDs(ids *tensor.RawTensor, asTargets bool) (*tensor.RawTensor, error)

	// ConvertIDsToTokens maps ids to token strings, optionally dropping
	// special tokens.
	ConvertIDsToTokens(ids []int32, skipSpecialTokens bool) []string

	// ConvertTokensToIDs maps token strings to ids.
	ConvertTokensToIDs(tokens []string) []int32

	// ConvertTokensToString detokenizes token strings back to text.
	ConvertTokensToString(tokens []string, skipSpecialTokens bool) (string, error)

	// ConvertStringToTokens tokenizes text to token strings.
	ConvertStringToTokens(text string, skipSpecialTokens bool) ([]string, error)

	// SpecialTokens returns the tokenizer's special token strings.
	SpecialTokens() []string

	// SpecialTokenIDs returns the tokenizer's special token ids.
	SpecialTokenIDs() []int32

	// VocabularyEmbeddings returns the [vocab, dim] embedding table of the
	// attributed side, or nil when no model is loaded.
	VocabularyEmbeddings() *tensor.RawTensor

	// GetEmbeddingLayer returns the embedding table attribution substitutes
	// interpretable embeddings into. Backends that accept embeddings as
	// forward input directly expose the same table as VocabularyEmbeddings.
	GetEmbeddingLayer() *tensor.RawTensor

	// PrepareInputsForAttribution encodes and embeds the attribution inputs
	// into the architecture's batch layout, baselines included.
	PrepareInputsForAttribution(input AttributionInput, includeEOSBaseline bool) (data.AttributionBatch, error)

	// FormatForwardArgs maps a batch to forward-pass arguments.
	FormatForwardArgs(batch data.AttributionBatch, useEmbeds bool) ForwardArgs

	// FormatAttributionArgs maps a batch to the embedding-space forward
	// arguments attribution methods perturb.
	FormatAttributionArgs(batch data.AttributionBatch) ForwardArgs

	// FormatStepFunctionArgs assembles the step-function parameter set for
	// the current step.
	FormatStepFunctionArgs(
		forwardOutput any,
		logits *tensor.RawTensor,
		targetIDs []int32,
		batch data.AttributionBatch,
		extra map[string]any,
	) stepscores.StepFunctionArgs

	// GetTextSequences recovers the detokenized texts of a batch's
	// attributed side.
	GetTextSequences(batch data.AttributionBatch) ([]string, error)

	// GetForwardOutput runs the forward pass and returns the raw output.
	GetForwardOutput(args ForwardArgs) (any, error)

	// Output2Logits extracts the [batch, vocab] next-token logits from a
	// raw forward output.
	Output2Logits(forwardOutput any) (*tensor.RawTensor, error)

	// EnrichStepOutput attaches token metadata to a step output.
	EnrichStepOutput(
		stepOutput *data.FeatureAttributionStepOutput,
		batch data.AttributionBatch,
		targetIDs []int32,
	) *data.FeatureAttributionStepOutput

	// Forward runs the full scoring pipeline for one step: forward pass,
	// logit extraction and the attributed function, returning one score per
	// example.
	Forward(
		attributedFn stepscores.StepFunction,
		args ForwardArgs,
		targetIDs []int32,
		batch data.AttributionBatch,
		extra map[string]any,
	) ([]float32, error)

	// ConfigureInterpretableEmbeddings prepares the model for methods that
	// substitute inputs at the embedding layer. A no-op for architectures
	// that accept embeddings as forward input.
	ConfigureInterpretableEmbeddings() error

	// RemoveInterpretableEmbeddings undoes ConfigureInterpretableEmbeddings.
	RemoveInterpretableEmbeddings() error
}
