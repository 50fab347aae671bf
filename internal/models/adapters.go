package models

import (
	"fmt"

	"github.com/Bots-Avatar/inseq/internal/data"
	"github.com/Bots-Avatar/inseq/internal/tensor"
	"github.com/Bots-Avatar/inseq/internal/tokenizer"
)

// baselineTokenID picks the id used to replace tokens in baseline inputs.
func baselineTokenID(tok tokenizer.Tokenizer) int32 {
	if id := tok.UnkToken(); id >= 0 {
		return id
	}
	if id := tok.PadToken(); id >= 0 {
		return id
	}
	return 0
}

// padTokenID picks the id used for right-padding. Tokenizers without an
// explicit pad token fall back to EOS, a common convention.
func padTokenID(tok tokenizer.Tokenizer) int32 {
	if id := tok.PadToken(); id >= 0 {
		return id
	}
	if id := tok.EosToken(); id >= 0 {
		return id
	}
	return 0
}

// baselineRow builds the baseline ids for one encoded row. Special tokens
// keep their identity so the baseline stays structurally valid; EOS follows
// includeEOSBaseline.
func baselineRow(tok tokenizer.Tokenizer, ids []int32, includeEOSBaseline bool) []int32 {
	baseline := baselineTokenID(tok)
	eos := tok.EosToken()
	out := make([]int32, len(ids))
	for i, id := range ids {
		switch {
		case id == eos && eos >= 0:
			if includeEOSBaseline {
				out[i] = baseline
			} else {
				out[i] = id
			}
		case tok.IsSpecialToken(id):
			out[i] = id
		default:
			out[i] = baseline
		}
	}
	return out
}

// unpaddedRows recovers the ragged id rows of an encoding using its mask.
// Padding is contiguous on the right, so the row length is the mask sum.
func unpaddedRows(enc *data.BatchEncoding) [][]int32 {
	shape := enc.InputIDs.Shape()
	ids := enc.InputIDs.AsInt32()
	mask := enc.AttentionMask.AsInt32()

	rows := make([][]int32, shape[0])
	for i := 0; i < shape[0]; i++ {
		n := 0
		for j := 0; j < shape[1]; j++ {
			if mask[i*shape[1]+j] == 1 {
				n++
			}
		}
		rows[i] = append([]int32(nil), ids[i*shape[1]:i*shape[1]+n]...)
	}
	return rows
}

// decodeSkippingSpecials detokenizes ids with special tokens removed.
func decodeSkippingSpecials(tok tokenizer.Tokenizer, ids []int32) (string, error) {
	kept := make([]int32, 0, len(ids))
	for _, id := range ids {
		if !tok.IsSpecialToken(id) {
			kept = append(kept, id)
		}
	}
	return tok.Decode(kept)
}

// lookupEmbeddings gathers rows of a [vocab, dim] table for a [batch, seq]
// id tensor, producing [batch, seq, dim].
func lookupEmbeddings(table, ids *tensor.RawTensor) (*tensor.RawTensor, error) {
	if table == nil {
		return nil, fmt.Errorf("model exposes no embedding table")
	}
	if ids == nil {
		return nil, fmt.Errorf("nil ids tensor")
	}
	ts := table.Shape()
	is := ids.Shape()
	if len(ts) != 2 || len(is) != 2 {
		return nil, fmt.Errorf("expected 2D table and 2D ids, got %v and %v", ts, is)
	}

	vocab, dim := ts[0], ts[1]
	out, err := tensor.NewRaw(tensor.Shape{is[0], is[1], dim}, tensor.Float32, table.Device())
	if err != nil {
		return nil, err
	}

	src := table.AsFloat32()
	dst := out.AsFloat32()
	for p, id := range ids.AsInt32() {
		if int(id) < 0 || int(id) >= vocab {
			return nil, fmt.Errorf("token id %d outside vocabulary of size %d", id, vocab)
		}
		copy(dst[p*dim:(p+1)*dim], src[int(id)*dim:(int(id)+1)*dim])
	}
	return out, nil
}

// lastPositionLogits reduces [batch, seq, vocab] forward logits to the
// [batch, vocab] next-token logits. 2D inputs pass through unchanged.
func lastPositionLogits(logits *tensor.RawTensor) (*tensor.RawTensor, error) {
	if logits == nil {
		return nil, fmt.Errorf("nil logits")
	}
	shape := logits.Shape()
	switch len(shape) {
	case 2:
		return logits, nil
	case 3:
		batch, seq, vocab := shape[0], shape[1], shape[2]
		out, err := tensor.NewRaw(tensor.Shape{batch, vocab}, tensor.Float32, logits.Device())
		if err != nil {
			return nil, err
		}
		src := logits.AsFloat32()
		dst := out.AsFloat32()
		for i := 0; i < batch; i++ {
			start := (i*seq + seq - 1) * vocab
			copy(dst[i*vocab:(i+1)*vocab], src[start:start+vocab])
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected 2D or 3D logits, got shape %v", shape)
	}
}

// tokensWithIDs pairs token strings with ids, row by row, honoring the mask.
func tokensWithIDs(tokens [][]string, ids, mask *tensor.RawTensor) [][]data.TokenWithID {
	if ids == nil {
		return nil
	}
	shape := ids.Shape()
	idData := ids.AsInt32()
	var maskData []int32
	if mask != nil {
		maskData = mask.AsInt32()
	}

	out := make([][]data.TokenWithID, shape[0])
	for i := 0; i < shape[0]; i++ {
		row := make([]data.TokenWithID, 0, shape[1])
		for j := 0; j < shape[1]; j++ {
			idx := i*shape[1] + j
			if maskData != nil && maskData[idx] == 0 {
				continue
			}
			tok := ""
			if i < len(tokens) && j < len(tokens[i]) {
				tok = tokens[i][j]
			}
			row = append(row, data.TokenWithID{Token: tok, ID: idData[idx]})
		}
		out[i] = row
	}
	return out
}
