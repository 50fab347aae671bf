// Package data defines the batch structures and result aggregates exchanged
// between attribution models and attribution methods.
package data

import (
	"fmt"

	"github.com/Bots-Avatar/inseq/internal/tensor"
)

// TokenWithID pairs a token's surface string with its vocabulary ID.
type TokenWithID struct {
	Token string `json:"token"`
	ID    int32  `json:"id"`
}

// BatchEncoding is the output produced by the tokenization step.
//
// InputIDs and AttentionMask have shape [batch, longest_seq]; shorter
// sequences are right-padded and masked out. BaselineIDs is only populated
// for attribution methods requiring a baseline input (e.g. integrated
// gradients) and mirrors the shape of InputIDs.
type BatchEncoding struct {
	InputIDs      *tensor.RawTensor
	InputTokens   [][]string
	AttentionMask *tensor.RawTensor
	BaselineIDs   *tensor.RawTensor
}

// NewBatchEncoding builds a padded encoding from ragged id rows.
// baselineRows may be nil; when present it must parallel idRows.
func NewBatchEncoding(idRows [][]int32, tokenRows [][]string, padID int32, baselineRows [][]int32) (*BatchEncoding, error) {
	if len(idRows) == 0 {
		return nil, fmt.Errorf("empty batch")
	}
	if baselineRows != nil && len(baselineRows) != len(idRows) {
		return nil, fmt.Errorf("baseline rows %d do not match id rows %d", len(baselineRows), len(idRows))
	}

	maxLen := 0
	for _, row := range idRows {
		if len(row) > maxLen {
			maxLen = len(row)
		}
	}
	if maxLen == 0 {
		return nil, fmt.Errorf("all sequences in batch are empty")
	}

	shape := tensor.Shape{len(idRows), maxLen}
	ids, err := tensor.NewRaw(shape, tensor.Int32, tensor.CPU)
	if err != nil {
		return nil, err
	}
	mask, err := tensor.NewRaw(shape, tensor.Int32, tensor.CPU)
	if err != nil {
		return nil, err
	}

	idData := ids.AsInt32()
	maskData := mask.AsInt32()
	for i, row := range idRows {
		for j := 0; j < maxLen; j++ {
			idx := i*maxLen + j
			if j < len(row) {
				idData[idx] = row[j]
				maskData[idx] = 1
			} else {
				idData[idx] = padID
			}
		}
	}

	var baseline *tensor.RawTensor
	if baselineRows != nil {
		baseline, err = tensor.NewRaw(shape, tensor.Int32, tensor.CPU)
		if err != nil {
			return nil, err
		}
		baseData := baseline.AsInt32()
		for i, row := range baselineRows {
			for j := 0; j < maxLen; j++ {
				idx := i*maxLen + j
				if j < len(row) {
					baseData[idx] = row[j]
				} else {
					baseData[idx] = padID
				}
			}
		}
	}

	return &BatchEncoding{
		InputIDs:      ids,
		InputTokens:   tokenRows,
		AttentionMask: mask,
		BaselineIDs:   baseline,
	}, nil
}

// Len returns the number of examples in the encoding.
func (e *BatchEncoding) Len() int {
	return len(e.InputTokens)
}

// SeqLen returns the padded sequence length.
func (e *BatchEncoding) SeqLen() int {
	return e.InputIDs.Shape()[1]
}

// BatchEmbedding holds the embedded view of a BatchEncoding.
// Tensors have shape [batch, seq, embedding_size].
type BatchEmbedding struct {
	InputEmbeds    *tensor.RawTensor
	BaselineEmbeds *tensor.RawTensor
}

// Batch groups an encoding with its embeddings for one architecture side.
type Batch struct {
	Encoding  *BatchEncoding
	Embedding *BatchEmbedding
}

// InputIDs returns the batch token ids.
func (b *Batch) InputIDs() *tensor.RawTensor { return b.Encoding.InputIDs }

// InputTokens returns the batch token strings.
func (b *Batch) InputTokens() [][]string { return b.Encoding.InputTokens }

// AttentionMask returns the batch attention mask.
func (b *Batch) AttentionMask() *tensor.RawTensor { return b.Encoding.AttentionMask }

// BaselineIDs returns the baseline ids, or nil when no baseline was requested.
func (b *Batch) BaselineIDs() *tensor.RawTensor { return b.Encoding.BaselineIDs }

// InputEmbeds returns the input embeddings, or nil before embedding.
func (b *Batch) InputEmbeds() *tensor.RawTensor {
	if b.Embedding == nil {
		return nil
	}
	return b.Embedding.InputEmbeds
}

// BaselineEmbeds returns the baseline embeddings, or nil.
func (b *Batch) BaselineEmbeds() *tensor.RawTensor {
	if b.Embedding == nil {
		return nil
	}
	return b.Embedding.BaselineEmbeds
}

// truncate returns a copy of the batch keeping the first n sequence positions.
func (b *Batch) truncate(n int) *Batch {
	enc := &BatchEncoding{
		InputIDs:      sliceSeq(b.Encoding.InputIDs, n),
		InputTokens:   truncateTokens(b.Encoding.InputTokens, n),
		AttentionMask: sliceSeq(b.Encoding.AttentionMask, n),
		BaselineIDs:   sliceSeq(b.Encoding.BaselineIDs, n),
	}
	var emb *BatchEmbedding
	if b.Embedding != nil {
		emb = &BatchEmbedding{
			InputEmbeds:    sliceSeq(b.Embedding.InputEmbeds, n),
			BaselineEmbeds: sliceSeq(b.Embedding.BaselineEmbeds, n),
		}
	}
	return &Batch{Encoding: enc, Embedding: emb}
}

// AttributionBatch is the architecture-polymorphic batch view attribution
// methods operate on. Decoder-only batches report their full sequence as
// target side and have no source side; encoder-decoder batches keep the two
// apart. Methods never branch on the concrete type.
type AttributionBatch interface {
	// NumExamples returns the number of examples in the batch.
	NumExamples() int

	// MaxGenerationLength returns the padded length of the attributed side.
	MaxGenerationLength() int

	// SourceIDs returns source-side ids, or nil for decoder-only batches.
	SourceIDs() *tensor.RawTensor
	// SourceTokens returns source-side token strings, or nil.
	SourceTokens() [][]string
	// SourceMask returns the source attention mask, or nil.
	SourceMask() *tensor.RawTensor
	// SourceEmbeds returns source embeddings, or nil.
	SourceEmbeds() *tensor.RawTensor
	// SourceBaselineIDs returns source baseline ids, or nil.
	SourceBaselineIDs() *tensor.RawTensor
	// SourceBaselineEmbeds returns source baseline embeddings, or nil.
	SourceBaselineEmbeds() *tensor.RawTensor

	// TargetIDs returns the ids of the attributed side.
	TargetIDs() *tensor.RawTensor
	// TargetTokens returns the token strings of the attributed side.
	TargetTokens() [][]string
	// TargetMask returns the attention mask of the attributed side.
	TargetMask() *tensor.RawTensor
	// TargetEmbeds returns the embeddings of the attributed side, or nil.
	TargetEmbeds() *tensor.RawTensor
	// TargetBaselineIDs returns baseline ids of the attributed side, or nil.
	TargetBaselineIDs() *tensor.RawTensor
	// TargetBaselineEmbeds returns baseline embeddings of the attributed side, or nil.
	TargetBaselineEmbeds() *tensor.RawTensor

	// StepTarget returns the target ids and mask column for one generation step.
	StepTarget(step int) (ids []int32, mask []int32)

	// TruncateTargets returns a view of the batch with the attributed side
	// cut to the first n positions, used as per-step context.
	TruncateTargets(n int) AttributionBatch
}

// DecoderOnlyBatch is the input batch for decoder-only attribution models.
// The single sequence acts as both context and attribution target.
type DecoderOnlyBatch struct {
	*Batch
}

// NewDecoderOnlyBatch wraps a batch for decoder-only attribution.
func NewDecoderOnlyBatch(b *Batch) *DecoderOnlyBatch {
	return &DecoderOnlyBatch{Batch: b}
}

func (b *DecoderOnlyBatch) NumExamples() int                         { return b.Encoding.Len() }
func (b *DecoderOnlyBatch) MaxGenerationLength() int                 { return b.Encoding.SeqLen() }
func (b *DecoderOnlyBatch) SourceIDs() *tensor.RawTensor             { return nil }
func (b *DecoderOnlyBatch) SourceTokens() [][]string                 { return nil }
func (b *DecoderOnlyBatch) SourceMask() *tensor.RawTensor            { return nil }
func (b *DecoderOnlyBatch) SourceEmbeds() *tensor.RawTensor          { return nil }
func (b *DecoderOnlyBatch) SourceBaselineIDs() *tensor.RawTensor     { return nil }
func (b *DecoderOnlyBatch) SourceBaselineEmbeds() *tensor.RawTensor  { return nil }
func (b *DecoderOnlyBatch) TargetIDs() *tensor.RawTensor             { return b.InputIDs() }
func (b *DecoderOnlyBatch) TargetTokens() [][]string                 { return b.InputTokens() }
func (b *DecoderOnlyBatch) TargetMask() *tensor.RawTensor            { return b.AttentionMask() }
func (b *DecoderOnlyBatch) TargetEmbeds() *tensor.RawTensor          { return b.InputEmbeds() }
func (b *DecoderOnlyBatch) TargetBaselineIDs() *tensor.RawTensor     { return b.BaselineIDs() }
func (b *DecoderOnlyBatch) TargetBaselineEmbeds() *tensor.RawTensor  { return b.BaselineEmbeds() }

// StepTarget returns the target ids and mask column at a generation step.
func (b *DecoderOnlyBatch) StepTarget(step int) ([]int32, []int32) {
	return column(b.InputIDs(), step), column(b.AttentionMask(), step)
}

// TruncateTargets cuts the sequence to the first n positions.
func (b *DecoderOnlyBatch) TruncateTargets(n int) AttributionBatch {
	return &DecoderOnlyBatch{Batch: b.Batch.truncate(n)}
}

// EncoderDecoderBatch is the input batch for encoder-decoder attribution
// models, keeping the source text and target prefix apart.
type EncoderDecoderBatch struct {
	Sources *Batch
	Targets *Batch
}

// NewEncoderDecoderBatch pairs source and target batches.
func NewEncoderDecoderBatch(sources, targets *Batch) *EncoderDecoderBatch {
	return &EncoderDecoderBatch{Sources: sources, Targets: targets}
}

func (b *EncoderDecoderBatch) NumExamples() int                        { return b.Sources.Encoding.Len() }
func (b *EncoderDecoderBatch) MaxGenerationLength() int                { return b.Targets.Encoding.SeqLen() }
func (b *EncoderDecoderBatch) SourceIDs() *tensor.RawTensor            { return b.Sources.InputIDs() }
func (b *EncoderDecoderBatch) SourceTokens() [][]string                { return b.Sources.InputTokens() }
func (b *EncoderDecoderBatch) SourceMask() *tensor.RawTensor           { return b.Sources.AttentionMask() }
func (b *EncoderDecoderBatch) SourceEmbeds() *tensor.RawTensor         { return b.Sources.InputEmbeds() }
func (b *EncoderDecoderBatch) SourceBaselineIDs() *tensor.RawTensor    { return b.Sources.BaselineIDs() }
func (b *EncoderDecoderBatch) SourceBaselineEmbeds() *tensor.RawTensor { return b.Sources.BaselineEmbeds() }
func (b *EncoderDecoderBatch) TargetIDs() *tensor.RawTensor            { return b.Targets.InputIDs() }
func (b *EncoderDecoderBatch) TargetTokens() [][]string                { return b.Targets.InputTokens() }
func (b *EncoderDecoderBatch) TargetMask() *tensor.RawTensor           { return b.Targets.AttentionMask() }
func (b *EncoderDecoderBatch) TargetEmbeds() *tensor.RawTensor         { return b.Targets.InputEmbeds() }
func (b *EncoderDecoderBatch) TargetBaselineIDs() *tensor.RawTensor    { return b.Targets.BaselineIDs() }
func (b *EncoderDecoderBatch) TargetBaselineEmbeds() *tensor.RawTensor { return b.Targets.BaselineEmbeds() }

// StepTarget returns the target ids and mask column at a generation step.
func (b *EncoderDecoderBatch) StepTarget(step int) ([]int32, []int32) {
	return column(b.Targets.InputIDs(), step), column(b.Targets.AttentionMask(), step)
}

// TruncateTargets cuts the target prefix to the first n positions.
// The source side is shared, not copied.
func (b *EncoderDecoderBatch) TruncateTargets(n int) AttributionBatch {
	return &EncoderDecoderBatch{Sources: b.Sources, Targets: b.Targets.truncate(n)}
}

// column extracts column j from a 2D Int32 tensor.
func column(t *tensor.RawTensor, j int) []int32 {
	shape := t.Shape()
	data := t.AsInt32()
	col := make([]int32, shape[0])
	for i := 0; i < shape[0]; i++ {
		col[i] = data[i*shape[1]+j]
	}
	return col
}

// sliceSeq copies the first n positions of dim 1 from a 2D or 3D tensor.
// Returns nil when t is nil.
func sliceSeq(t *tensor.RawTensor, n int) *tensor.RawTensor {
	if t == nil {
		return nil
	}
	shape := t.Shape()
	if n >= shape[1] {
		return t.Clone()
	}

	newShape := shape.Clone()
	newShape[1] = n
	out, err := tensor.NewRaw(newShape, t.DType(), t.Device())
	if err != nil {
		panic(fmt.Sprintf("sliceSeq: %v", err))
	}

	inner := 1
	for _, d := range shape[2:] {
		inner *= d
	}
	rowIn := shape[1] * inner
	rowOut := n * inner
	elem := t.DType().Size()
	src := t.Data()
	dst := out.Data()
	for i := 0; i < shape[0]; i++ {
		copy(dst[i*rowOut*elem:(i+1)*rowOut*elem], src[i*rowIn*elem:(i*rowIn+rowOut)*elem])
	}
	return out
}

// truncateTokens cuts each token row to at most n tokens.
func truncateTokens(rows [][]string, n int) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		if len(row) > n {
			out[i] = row[:n]
		} else {
			out[i] = row
		}
	}
	return out
}
