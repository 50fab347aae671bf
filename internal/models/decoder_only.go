package models

import (
	"fmt"

	"github.com/Bots-Avatar/inseq/internal/data"
	"github.com/Bots-Avatar/inseq/internal/generate"
	"github.com/Bots-Avatar/inseq/internal/stepscores"
	"github.com/Bots-Avatar/inseq/internal/tensor"
	"github.com/Bots-Avatar/inseq/internal/tokenizer"
)

// DecoderOnlyAdapter adapts causal language models to the attribution
// contract. The full sequence (input plus generation) acts as both context
// and attribution target.
type DecoderOnlyAdapter struct {
	name    string
	backend CausalLM
	tok     tokenizer.Tokenizer
}

// NewDecoderOnlyAdapter wraps a causal language model. backend may be nil
// for tokenization-only use; forward passes then fail with an error.
func NewDecoderOnlyAdapter(name string, backend CausalLM, tok tokenizer.Tokenizer) *DecoderOnlyAdapter {
	return &DecoderOnlyAdapter{name: name, backend: backend, tok: tok}
}

// ModelName returns the wrapped model's identifier.
func (a *DecoderOnlyAdapter) ModelName() string { return a.name }

// IsEncoderDecoder always reports false.
func (a *DecoderOnlyAdapter) IsEncoderDecoder() bool { return false }

// Encode tokenizes texts into a right-padded batch encoding.
func (a *DecoderOnlyAdapter) Encode(texts []string, asTargets, returnBaseline, includeEOSBaseline bool) (*data.BatchEncoding, error) {
	if asTargets {
		return nil, &ValidationError{Msg: "decoder-only models tokenize as source only, target-side encoding is an encoder-decoder feature"}
	}

	idRows := make([][]int32, len(texts))
	tokenRows := make([][]string, len(texts))
	var baselineRows [][]int32
	if returnBaseline {
		baselineRows = make([][]int32, len(texts))
	}

	for i, text := range texts {
		ids, err := a.tok.Encode(text)
		if err != nil {
			return nil, fmt.Errorf("encode text %d: %w", i, err)
		}
		idRows[i] = ids
		tokenRows[i] = a.ConvertIDsToTokens(ids, false)
		if returnBaseline {
			baselineRows[i] = baselineRow(a.tok, ids, includeEOSBaseline)
		}
	}

	return data.NewBatchEncoding(idRows, tokenRows, padTokenID(a.tok), baselineRows)
}

// Generate extends each encoded prompt and decodes the full sequences back
// to text. The returned texts include the input prefix.
func (a *DecoderOnlyAdapter) Generate(encoding *data.BatchEncoding, returnGenerationOutput bool, config generate.GenerateConfig) ([]string, any, error) {
	if a.backend == nil {
		return nil, nil, fmt.Errorf("cannot generate: no model loaded")
	}

	gen := generate.NewCausalGenerator(a.backend, a.tok.EosToken())
	seqs, err := gen.Generate(unpaddedRows(encoding), config)
	if err != nil {
		return nil, nil, err
	}

	texts := make([]string, len(seqs))
	for i, seq := range seqs {
		text, err := decodeSkippingSpecials(a.tok, seq)
		if err != nil {
			return nil, nil, fmt.Errorf("decode generation %d: %w", i, err)
		}
		texts[i] = text
	}

	if returnGenerationOutput {
		return texts, seqs, nil
	}
	return texts, nil, nil
}

// EmbedIDs looks up input embeddings for an id tensor.
func (a *DecoderOnlyAdapter) EmbedIDs(ids *tensor.RawTensor, asTargets bool) (*tensor.RawTensor, error) {
	if asTargets {
		return nil, &ValidationError{Msg: "decoder-only models have no target-side embeddings"}
	}
	if a.backend == nil {
		return nil, fmt.Errorf("cannot embed: no model loaded")
	}
	return lookupEmbeddings(a.backend.EmbeddingTable(), ids)
}

// ConvertIDsToTokens maps ids to token strings.
func (a *DecoderOnlyAdapter) ConvertIDsToTokens(ids []int32, skipSpecialTokens bool) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if skipSpecialTokens && a.tok.IsSpecialToken(id) {
			continue
		}
		out = append(out, a.tok.IDToToken(id))
	}
	return out
}

// ConvertTokensToIDs maps token strings to ids.
func (a *DecoderOnlyAdapter) ConvertTokensToIDs(tokens []string) []int32 {
	out := make([]int32, len(tokens))
	for i, tok := range tokens {
		out[i] = a.tok.TokenToID(tok)
	}
	return out
}

// ConvertTokensToString detokenizes through the tokenizer codec so spacing
// conventions are preserved.
func (a *DecoderOnlyAdapter) ConvertTokensToString(tokens []string, skipSpecialTokens bool) (string, error) {
	ids := a.ConvertTokensToIDs(tokens)
	if skipSpecialTokens {
		return decodeSkippingSpecials(a.tok, ids)
	}
	return a.tok.Decode(ids)
}

// ConvertStringToTokens tokenizes text to token strings.
func (a *DecoderOnlyAdapter) ConvertStringToTokens(text string, skipSpecialTokens bool) ([]string, error) {
	ids, err := a.tok.Encode(text)
	if err != nil {
		return nil, err
	}
	return a.ConvertIDsToTokens(ids, skipSpecialTokens), nil
}

// SpecialTokens returns the tokenizer's special token strings.
func (a *DecoderOnlyAdapter) SpecialTokens() []string { return a.tok.SpecialTokens() }

// SpecialTokenIDs returns the tokenizer's special token ids.
func (a *DecoderOnlyAdapter) SpecialTokenIDs() []int32 { return a.tok.SpecialTokenIDs() }

// VocabularyEmbeddings returns the input embedding table, or nil when no
// model is loaded.
func (a *DecoderOnlyAdapter) VocabularyEmbeddings() *tensor.RawTensor {
	if a.backend == nil {
		return nil
	}
	return a.backend.EmbeddingTable()
}

// GetEmbeddingLayer returns the table interpretable embeddings substitute
// into. Causal backends take embeddings as forward input, so this is the
// input embedding table itself.
func (a *DecoderOnlyAdapter) GetEmbeddingLayer() *tensor.RawTensor {
	return a.VocabularyEmbeddings()
}

// PrepareInputsForAttribution encodes and embeds the full sequences. For
// decoder-only models the generated texts already contain the input prefix.
func (a *DecoderOnlyAdapter) PrepareInputsForAttribution(input AttributionInput, includeEOSBaseline bool) (data.AttributionBatch, error) {
	enc, err := a.Encode(input.GeneratedTexts, false, true, includeEOSBaseline)
	if err != nil {
		return nil, err
	}

	embeds, err := a.EmbedIDs(enc.InputIDs, false)
	if err != nil {
		return nil, err
	}
	baselineEmbeds, err := a.EmbedIDs(enc.BaselineIDs, false)
	if err != nil {
		return nil, err
	}

	return data.NewDecoderOnlyBatch(&data.Batch{
		Encoding:  enc,
		Embedding: &data.BatchEmbedding{InputEmbeds: embeds, BaselineEmbeds: baselineEmbeds},
	}), nil
}

// FormatForwardArgs maps a batch to forward-pass arguments.
func (a *DecoderOnlyAdapter) FormatForwardArgs(batch data.AttributionBatch, useEmbeds bool) ForwardArgs {
	return ForwardArgs{
		DecoderInputIDs:      batch.TargetIDs(),
		DecoderInputEmbeds:   batch.TargetEmbeds(),
		DecoderAttentionMask: batch.TargetMask(),
		UseEmbeds:            useEmbeds,
	}
}

// FormatAttributionArgs maps a batch to embedding-space forward arguments.
func (a *DecoderOnlyAdapter) FormatAttributionArgs(batch data.AttributionBatch) ForwardArgs {
	return a.FormatForwardArgs(batch, true)
}

// FormatStepFunctionArgs assembles the step-function parameter set.
func (a *DecoderOnlyAdapter) FormatStepFunctionArgs(
	forwardOutput any,
	logits *tensor.RawTensor,
	targetIDs []int32,
	batch data.AttributionBatch,
	extra map[string]any,
) stepscores.StepFunctionArgs {
	return stepscores.StepFunctionArgs{
		ForwardOutput:        forwardOutput,
		Logits:               logits,
		TargetIDs:            targetIDs,
		DecoderInputIDs:      batch.TargetIDs(),
		DecoderInputEmbeds:   batch.TargetEmbeds(),
		DecoderAttentionMask: batch.TargetMask(),
		Extra:                extra,
	}
}

// GetTextSequences detokenizes the batch sequences.
func (a *DecoderOnlyAdapter) GetTextSequences(batch data.AttributionBatch) ([]string, error) {
	rows := unpaddedRows(&data.BatchEncoding{
		InputIDs:      batch.TargetIDs(),
		AttentionMask: batch.TargetMask(),
	})
	texts := make([]string, len(rows))
	for i, row := range rows {
		text, err := decodeSkippingSpecials(a.tok, row)
		if err != nil {
			return nil, fmt.Errorf("decode sequence %d: %w", i, err)
		}
		texts[i] = text
	}
	return texts, nil
}

// GetForwardOutput runs the forward pass.
func (a *DecoderOnlyAdapter) GetForwardOutput(args ForwardArgs) (any, error) {
	if a.backend == nil {
		return nil, fmt.Errorf("cannot run forward pass: no model loaded")
	}
	if args.UseEmbeds {
		return a.backend.ForwardEmbeds(args.DecoderInputEmbeds, args.DecoderAttentionMask)
	}
	return a.backend.Forward(args.DecoderInputIDs, args.DecoderAttentionMask)
}

// Output2Logits extracts [batch, vocab] next-token logits.
func (a *DecoderOnlyAdapter) Output2Logits(forwardOutput any) (*tensor.RawTensor, error) {
	logits, ok := forwardOutput.(*tensor.RawTensor)
	if !ok {
		return nil, fmt.Errorf("unexpected forward output type %T", forwardOutput)
	}
	return lastPositionLogits(logits)
}

// EnrichStepOutput attaches the attributed tokens and their context tokens.
func (a *DecoderOnlyAdapter) EnrichStepOutput(
	stepOutput *data.FeatureAttributionStepOutput,
	batch data.AttributionBatch,
	targetIDs []int32,
) *data.FeatureAttributionStepOutput {
	targets := make([]data.TokenWithID, len(targetIDs))
	for i, id := range targetIDs {
		targets[i] = data.TokenWithID{Token: a.tok.IDToToken(id), ID: id}
	}
	stepOutput.TargetTokens = targets
	stepOutput.SourceTokens = tokensWithIDs(batch.TargetTokens(), batch.TargetIDs(), batch.TargetMask())
	return stepOutput
}

// Forward runs the full scoring pipeline for one step.
func (a *DecoderOnlyAdapter) Forward(
	attributedFn stepscores.StepFunction,
	args ForwardArgs,
	targetIDs []int32,
	batch data.AttributionBatch,
	extra map[string]any,
) ([]float32, error) {
	out, err := a.GetForwardOutput(args)
	if err != nil {
		return nil, err
	}
	logits, err := a.Output2Logits(out)
	if err != nil {
		return nil, err
	}
	return attributedFn(a.FormatStepFunctionArgs(out, logits, targetIDs, batch, extra))
}

// ConfigureInterpretableEmbeddings is a no-op: the backend accepts
// embeddings as forward input natively.
func (a *DecoderOnlyAdapter) ConfigureInterpretableEmbeddings() error { return nil }

// RemoveInterpretableEmbeddings is a no-op.
func (a *DecoderOnlyAdapter) RemoveInterpretableEmbeddings() error { return nil }

// MoveTo forwards the device change to the backend when it supports moving.
func (a *DecoderOnlyAdapter) MoveTo(device tensor.Device) error {
	if mover, ok := a.backend.(DeviceMover); ok {
		return mover.MoveTo(device)
	}
	return nil
}

// SetEval switches the backend to evaluation mode when it distinguishes one.
func (a *DecoderOnlyAdapter) SetEval() {
	if sw, ok := a.backend.(EvalSwitcher); ok {
		sw.SetEval()
	}
}
