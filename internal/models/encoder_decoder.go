package models

import (
	"fmt"

	"github.com/Bots-Avatar/inseq/internal/data"
	"github.com/Bots-Avatar/inseq/internal/generate"
	"github.com/Bots-Avatar/inseq/internal/stepscores"
	"github.com/Bots-Avatar/inseq/internal/tensor"
	"github.com/Bots-Avatar/inseq/internal/tokenizer"
)

// EncoderDecoderAdapter adapts sequence-to-sequence models to the
// attribution contract, keeping source texts and target prefixes apart.
type EncoderDecoderAdapter struct {
	name         string
	backend      Seq2SeqLM
	tok          tokenizer.Tokenizer
	decoderStart int32
}

// NewEncoderDecoderAdapter wraps a sequence-to-sequence model. backend may
// be nil for tokenization-only use; the decoder start token then falls back
// to the tokenizer's BOS.
func NewEncoderDecoderAdapter(name string, backend Seq2SeqLM, tok tokenizer.Tokenizer) *EncoderDecoderAdapter {
	start := tok.BosToken()
	if backend != nil {
		start = backend.DecoderStartToken()
	}
	return &EncoderDecoderAdapter{name: name, backend: backend, tok: tok, decoderStart: start}
}

// ModelName returns the wrapped model's identifier.
func (a *EncoderDecoderAdapter) ModelName() string { return a.name }

// IsEncoderDecoder always reports true.
func (a *EncoderDecoderAdapter) IsEncoderDecoder() bool { return true }

// DecoderStartToken returns the id target sequences begin with.
func (a *EncoderDecoderAdapter) DecoderStartToken() int32 { return a.decoderStart }

// Encode tokenizes texts into a right-padded batch encoding. Target-side
// encodings are prefixed with the decoder start token.
func (a *EncoderDecoderAdapter) Encode(texts []string, asTargets, returnBaseline, includeEOSBaseline bool) (*data.BatchEncoding, error) {
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
		if asTargets {
			ids = append([]int32{a.decoderStart}, ids...)
		}
		idRows[i] = ids
		tokenRows[i] = a.ConvertIDsToTokens(ids, false)
		if returnBaseline {
			baselineRows[i] = baselineRow(a.tok, ids, includeEOSBaseline)
		}
	}

	return data.NewBatchEncoding(idRows, tokenRows, padTokenID(a.tok), baselineRows)
}

// Generate decodes one target text per encoded source.
func (a *EncoderDecoderAdapter) Generate(encoding *data.BatchEncoding, returnGenerationOutput bool, config generate.GenerateConfig) ([]string, any, error) {
	if a.backend == nil {
		return nil, nil, fmt.Errorf("cannot generate: no model loaded")
	}

	gen := generate.NewSeq2SeqGenerator(a.backend, a.tok.EosToken())
	seqs, err := gen.Generate(unpaddedRows(encoding), config)
	if err != nil {
		return nil, nil, err
	}

	texts := make([]string, len(seqs))
	for i, seq := range seqs {
		text, err := a.decodeTarget(seq)
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

// decodeTarget detokenizes a target sequence, dropping the decoder start
// token and other specials.
func (a *EncoderDecoderAdapter) decodeTarget(seq []int32) (string, error) {
	kept := make([]int32, 0, len(seq))
	for _, id := range seq {
		if id == a.decoderStart || a.tok.IsSpecialToken(id) {
			continue
		}
		kept = append(kept, id)
	}
	return a.tok.Decode(kept)
}

// EmbedIDs looks up embeddings from the encoder or decoder table.
func (a *EncoderDecoderAdapter) EmbedIDs(ids *tensor.RawTensor, asTargets bool) (*tensor.RawTensor, error) {
	if a.backend == nil {
		return nil, fmt.Errorf("cannot embed: no model loaded")
	}
	if asTargets {
		return lookupEmbeddings(a.backend.DecoderEmbeddingTable(), ids)
	}
	return lookupEmbeddings(a.backend.EncoderEmbeddingTable(), ids)
}

// ConvertIDsToTokens maps ids to token strings.
func (a *EncoderDecoderAdapter) ConvertIDsToTokens(ids []int32, skipSpecialTokens bool) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if skipSpecialTokens && (a.tok.IsSpecialToken(id) || id == a.decoderStart) {
			continue
		}
		out = append(out, a.tok.IDToToken(id))
	}
	return out
}

// ConvertTokensToIDs maps token strings to ids.
func (a *EncoderDecoderAdapter) ConvertTokensToIDs(tokens []string) []int32 {
	out := make([]int32, len(tokens))
	for i, tok := range tokens {
		out[i] = a.tok.TokenToID(tok)
	}
	return out
}

// ConvertTokensToString detokenizes through the tokenizer codec.
func (a *EncoderDecoderAdapter) ConvertTokensToString(tokens []string, skipSpecialTokens bool) (string, error) {
	ids := a.ConvertTokensToIDs(tokens)
	if skipSpecialTokens {
		return a.decodeTarget(ids)
	}
	return a.tok.Decode(ids)
}

// ConvertStringToTokens tokenizes text to token strings.
func (a *EncoderDecoderAdapter) ConvertStringToTokens(text string, skipSpecialTokens bool) ([]string, error) {
	ids, err := a.tok.Encode(text)
	if err != nil {
		return nil, err
	}
	return a.ConvertIDsToTokens(ids, skipSpecialTokens), nil
}

// SpecialTokens returns the tokenizer's special token strings.
func (a *EncoderDecoderAdapter) SpecialTokens() []string { return a.tok.SpecialTokens() }

// SpecialTokenIDs returns the tokenizer's special token ids.
func (a *EncoderDecoderAdapter) SpecialTokenIDs() []int32 { return a.tok.SpecialTokenIDs() }

// VocabularyEmbeddings returns the encoder embedding table, or nil when no
// model is loaded.
func (a *EncoderDecoderAdapter) VocabularyEmbeddings() *tensor.RawTensor {
	if a.backend == nil {
		return nil
	}
	return a.backend.EncoderEmbeddingTable()
}

// GetEmbeddingLayer returns the table interpretable embeddings substitute
// into, the encoder side of the paired vocabularies.
func (a *EncoderDecoderAdapter) GetEmbeddingLayer() *tensor.RawTensor {
	return a.VocabularyEmbeddings()
}

// PrepareInputsForAttribution encodes and embeds source texts and target
// texts into a paired batch.
func (a *EncoderDecoderAdapter) PrepareInputsForAttribution(input AttributionInput, includeEOSBaseline bool) (data.AttributionBatch, error) {
	srcEnc, err := a.Encode(input.InputTexts, false, true, includeEOSBaseline)
	if err != nil {
		return nil, err
	}
	tgtEnc, err := a.Encode(input.GeneratedTexts, true, true, includeEOSBaseline)
	if err != nil {
		return nil, err
	}

	srcEmbeds, err := a.EmbedIDs(srcEnc.InputIDs, false)
	if err != nil {
		return nil, err
	}
	srcBaseline, err := a.EmbedIDs(srcEnc.BaselineIDs, false)
	if err != nil {
		return nil, err
	}
	tgtEmbeds, err := a.EmbedIDs(tgtEnc.InputIDs, true)
	if err != nil {
		return nil, err
	}
	tgtBaseline, err := a.EmbedIDs(tgtEnc.BaselineIDs, true)
	if err != nil {
		return nil, err
	}

	return data.NewEncoderDecoderBatch(
		&data.Batch{
			Encoding:  srcEnc,
			Embedding: &data.BatchEmbedding{InputEmbeds: srcEmbeds, BaselineEmbeds: srcBaseline},
		},
		&data.Batch{
			Encoding:  tgtEnc,
			Embedding: &data.BatchEmbedding{InputEmbeds: tgtEmbeds, BaselineEmbeds: tgtBaseline},
		},
	), nil
}

// FormatForwardArgs maps a batch to forward-pass arguments.
func (a *EncoderDecoderAdapter) FormatForwardArgs(batch data.AttributionBatch, useEmbeds bool) ForwardArgs {
	return ForwardArgs{
		EncoderInputIDs:      batch.SourceIDs(),
		EncoderInputEmbeds:   batch.SourceEmbeds(),
		EncoderAttentionMask: batch.SourceMask(),
		DecoderInputIDs:      batch.TargetIDs(),
		DecoderInputEmbeds:   batch.TargetEmbeds(),
		DecoderAttentionMask: batch.TargetMask(),
		UseEmbeds:            useEmbeds,
	}
}

// FormatAttributionArgs maps a batch to embedding-space forward arguments.
func (a *EncoderDecoderAdapter) FormatAttributionArgs(batch data.AttributionBatch) ForwardArgs {
	return a.FormatForwardArgs(batch, true)
}

// FormatStepFunctionArgs assembles the step-function parameter set.
func (a *EncoderDecoderAdapter) FormatStepFunctionArgs(
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
		EncoderInputIDs:      batch.SourceIDs(),
		EncoderInputEmbeds:   batch.SourceEmbeds(),
		EncoderAttentionMask: batch.SourceMask(),
		DecoderInputIDs:      batch.TargetIDs(),
		DecoderInputEmbeds:   batch.TargetEmbeds(),
		DecoderAttentionMask: batch.TargetMask(),
		Extra:                extra,
	}
}

// GetTextSequences detokenizes the batch target sequences.
func (a *EncoderDecoderAdapter) GetTextSequences(batch data.AttributionBatch) ([]string, error) {
	rows := unpaddedRows(&data.BatchEncoding{
		InputIDs:      batch.TargetIDs(),
		AttentionMask: batch.TargetMask(),
	})
	texts := make([]string, len(rows))
	for i, row := range rows {
		text, err := a.decodeTarget(row)
		if err != nil {
			return nil, fmt.Errorf("decode sequence %d: %w", i, err)
		}
		texts[i] = text
	}
	return texts, nil
}

// GetForwardOutput runs the forward pass.
func (a *EncoderDecoderAdapter) GetForwardOutput(args ForwardArgs) (any, error) {
	if a.backend == nil {
		return nil, fmt.Errorf("cannot run forward pass: no model loaded")
	}
	if args.UseEmbeds {
		return a.backend.ForwardEmbeds(args.EncoderInputEmbeds, args.EncoderAttentionMask, args.DecoderInputEmbeds)
	}
	return a.backend.Forward(args.EncoderInputIDs, args.EncoderAttentionMask, args.DecoderInputIDs)
}

// Output2Logits extracts [batch, vocab] next-token logits.
func (a *EncoderDecoderAdapter) Output2Logits(forwardOutput any) (*tensor.RawTensor, error) {
	logits, ok := forwardOutput.(*tensor.RawTensor)
	if !ok {
		return nil, fmt.Errorf("unexpected forward output type %T", forwardOutput)
	}
	return lastPositionLogits(logits)
}

// EnrichStepOutput attaches the attributed tokens, the source context and
// the target prefix tokens.
func (a *EncoderDecoderAdapter) EnrichStepOutput(
	stepOutput *data.FeatureAttributionStepOutput,
	batch data.AttributionBatch,
	targetIDs []int32,
) *data.FeatureAttributionStepOutput {
	targets := make([]data.TokenWithID, len(targetIDs))
	for i, id := range targetIDs {
		targets[i] = data.TokenWithID{Token: a.tok.IDToToken(id), ID: id}
	}
	stepOutput.TargetTokens = targets
	stepOutput.SourceTokens = tokensWithIDs(batch.SourceTokens(), batch.SourceIDs(), batch.SourceMask())
	stepOutput.PrefixTokens = tokensWithIDs(batch.TargetTokens(), batch.TargetIDs(), batch.TargetMask())
	return stepOutput
}

// Forward runs the full scoring pipeline for one step.
func (a *EncoderDecoderAdapter) Forward(
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
func (a *EncoderDecoderAdapter) ConfigureInterpretableEmbeddings() error { return nil }

// RemoveInterpretableEmbeddings is a no-op.
func (a *EncoderDecoderAdapter) RemoveInterpretableEmbeddings() error { return nil }

// MoveTo forwards the device change to the backend when it supports moving.
func (a *EncoderDecoderAdapter) MoveTo(device tensor.Device) error {
	if mover, ok := a.backend.(DeviceMover); ok {
		return mover.MoveTo(device)
	}
	return nil
}

// SetEval switches the backend to evaluation mode when it distinguishes one.
func (a *EncoderDecoderAdapter) SetEval() {
	if sw, ok := a.backend.(EvalSwitcher); ok {
		sw.SetEval()
	}
}
