package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bots-Avatar/inseq/internal/tensor"
)

const padID int32 = 0

func makeEncoding(t *testing.T, rows [][]int32) *BatchEncoding {
	t.Helper()
	tokens := make([][]string, len(rows))
	for i, row := range rows {
		tokens[i] = make([]string, len(row))
		for j := range row {
			tokens[i][j] = "t"
		}
	}
	enc, err := NewBatchEncoding(rows, tokens, padID, nil)
	require.NoError(t, err)
	return enc
}

func TestNewBatchEncodingPadding(t *testing.T) {
	enc := makeEncoding(t, [][]int32{
		{10, 11, 12},
		{20},
	})

	assert.Equal(t, 2, enc.Len())
	assert.Equal(t, 3, enc.SeqLen())
	assert.Equal(t, []int32{10, 11, 12, 20, padID, padID}, enc.InputIDs.AsInt32())
	assert.Equal(t, []int32{1, 1, 1, 1, 0, 0}, enc.AttentionMask.AsInt32())
	assert.Nil(t, enc.BaselineIDs)
}

func TestNewBatchEncodingBaseline(t *testing.T) {
	rows := [][]int32{{10, 11}, {20, 21}}
	baseline := [][]int32{{3, 3}, {3, 3}}
	tokens := [][]string{{"a", "b"}, {"c", "d"}}

	enc, err := NewBatchEncoding(rows, tokens, padID, baseline)
	require.NoError(t, err)
	require.NotNil(t, enc.BaselineIDs)
	assert.Equal(t, []int32{3, 3, 3, 3}, enc.BaselineIDs.AsInt32())

	_, err = NewBatchEncoding(rows, tokens, padID, [][]int32{{3, 3}})
	assert.Error(t, err, "mismatched baseline rows must be rejected")
}

func TestNewBatchEncodingEmpty(t *testing.T) {
	_, err := NewBatchEncoding(nil, nil, padID, nil)
	assert.Error(t, err)

	_, err = NewBatchEncoding([][]int32{{}}, [][]string{{}}, padID, nil)
	assert.Error(t, err)
}

func TestDecoderOnlyBatchViews(t *testing.T) {
	enc := makeEncoding(t, [][]int32{{10, 11, 12}, {20, 21, 22}})
	batch := NewDecoderOnlyBatch(&Batch{Encoding: enc})

	assert.Equal(t, 2, batch.NumExamples())
	assert.Equal(t, 3, batch.MaxGenerationLength())
	assert.Nil(t, batch.SourceIDs(), "decoder-only batches have no source side")
	assert.Same(t, enc.InputIDs, batch.TargetIDs())

	ids, mask := batch.StepTarget(1)
	assert.Equal(t, []int32{11, 21}, ids)
	assert.Equal(t, []int32{1, 1}, mask)
}

func TestDecoderOnlyTruncateTargets(t *testing.T) {
	enc := makeEncoding(t, [][]int32{{10, 11, 12}, {20, 21, 22}})
	batch := NewDecoderOnlyBatch(&Batch{Encoding: enc})

	ctx := batch.TruncateTargets(2)
	assert.Equal(t, 2, ctx.MaxGenerationLength())
	assert.Equal(t, []int32{10, 11, 20, 21}, ctx.TargetIDs().AsInt32())

	// Truncation copies: mutating the view must not touch the original.
	ctx.TargetIDs().AsInt32()[0] = 99
	assert.Equal(t, int32(10), batch.TargetIDs().AsInt32()[0])

	// Truncating past the end is a plain copy.
	full := batch.TruncateTargets(10)
	assert.Equal(t, 3, full.MaxGenerationLength())
}

func TestEncoderDecoderBatchViews(t *testing.T) {
	src := makeEncoding(t, [][]int32{{10, 11}})
	tgt := makeEncoding(t, [][]int32{{1, 30, 31}})
	batch := NewEncoderDecoderBatch(&Batch{Encoding: src}, &Batch{Encoding: tgt})

	assert.Equal(t, 1, batch.NumExamples())
	assert.Equal(t, 3, batch.MaxGenerationLength())
	assert.Same(t, src.InputIDs, batch.SourceIDs())
	assert.Same(t, tgt.InputIDs, batch.TargetIDs())

	ids, _ := batch.StepTarget(2)
	assert.Equal(t, []int32{31}, ids)

	ctx := batch.TruncateTargets(2)
	assert.Equal(t, []int32{1, 30}, ctx.TargetIDs().AsInt32())
	assert.Same(t, src.InputIDs, ctx.SourceIDs(), "source side is shared, not copied")
}

func TestTruncateEmbeddings(t *testing.T) {
	enc := makeEncoding(t, [][]int32{{10, 11, 12}})
	embeds, err := tensor.FromFloat32(
		[]float32{1, 1, 2, 2, 3, 3},
		tensor.Shape{1, 3, 2}, tensor.CPU,
	)
	require.NoError(t, err)

	batch := NewDecoderOnlyBatch(&Batch{
		Encoding:  enc,
		Embedding: &BatchEmbedding{InputEmbeds: embeds},
	})

	ctx := batch.TruncateTargets(2)
	require.NotNil(t, ctx.TargetEmbeds())
	assert.True(t, ctx.TargetEmbeds().Shape().Equal(tensor.Shape{1, 2, 2}))
	assert.Equal(t, []float32{1, 1, 2, 2}, ctx.TargetEmbeds().AsFloat32())
}
