// Package demo provides a small self-contained language model used by the
// CLI and examples. It needs no weight files: parameters are derived from a
// seed, so attributions are reproducible across runs.
package demo

import (
	"math"
	"math/rand"

	"github.com/Bots-Avatar/inseq/internal/parallel"
	"github.com/Bots-Avatar/inseq/internal/tensor"
)

const (
	// DefaultVocabSize covers the word-level tokenizer's growing vocabulary
	// for demo-sized inputs.
	DefaultVocabSize = 4096

	// DefaultEmbeddingDim keeps forward passes cheap.
	DefaultEmbeddingDim = 16
)

// CausalBag is a deterministic bag-of-embeddings causal language model.
// Next-token logits score every vocabulary entry by its similarity to the
// mean embedding of the visible context. Not a real language model, but its
// scores respond to every context position, which is exactly what
// attribution demos need.
type CausalBag struct {
	table *tensor.RawTensor
	vocab int
	dim   int
	par   parallel.Config
}

// NewCausalBag creates a demo model with seed-derived embeddings.
func NewCausalBag(vocab, dim int, seed int64) *CausalBag {
	if vocab <= 0 {
		vocab = DefaultVocabSize
	}
	if dim <= 0 {
		dim = DefaultEmbeddingDim
	}

	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // deterministic demo weights
	vals := make([]float32, vocab*dim)
	for i := range vals {
		vals[i] = float32(rng.NormFloat64())
	}
	table, err := tensor.FromFloat32(vals, tensor.Shape{vocab, dim}, tensor.CPU)
	if err != nil {
		panic(err)
	}
	return &CausalBag{table: table, vocab: vocab, dim: dim, par: parallel.DefaultConfig()}
}

// Forward embeds the ids and scores the context bag.
func (m *CausalBag) Forward(inputIDs, attentionMask *tensor.RawTensor) (*tensor.RawTensor, error) {
	shape := inputIDs.Shape()
	embeds, err := tensor.NewRaw(tensor.Shape{shape[0], shape[1], m.dim}, tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, err
	}
	dst := embeds.AsFloat32()
	tab := m.table.AsFloat32()
	for p, id := range inputIDs.AsInt32() {
		row := int(id) % m.vocab
		copy(dst[p*m.dim:(p+1)*m.dim], tab[row*m.dim:(row+1)*m.dim])
	}
	return m.ForwardEmbeds(embeds, attentionMask)
}

// ForwardEmbeds scores the context bag from precomputed embeddings,
// returning [batch, seq, vocab] logits. Only the last position carries
// meaningful scores; earlier positions are zero.
func (m *CausalBag) ForwardEmbeds(inputEmbeds, attentionMask *tensor.RawTensor) (*tensor.RawTensor, error) {
	shape := inputEmbeds.Shape()
	batch, seq := shape[0], shape[1]

	out, err := tensor.NewRaw(tensor.Shape{batch, seq, m.vocab}, tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, err
	}

	emb := inputEmbeds.AsFloat32()
	tab := m.table.AsFloat32()
	logits := out.AsFloat32()
	var mask []int32
	if attentionMask != nil {
		mask = attentionMask.AsInt32()
	}

	bags := make([][]float64, batch)
	for i := 0; i < batch; i++ {
		bag := make([]float64, m.dim)
		visible := 0
		for p := 0; p < seq; p++ {
			if mask != nil && mask[i*seq+p] == 0 {
				continue
			}
			visible++
			for d := 0; d < m.dim; d++ {
				bag[d] += float64(emb[(i*seq+p)*m.dim+d])
			}
		}
		if visible > 0 {
			for d := range bag {
				bag[d] /= float64(visible)
			}
		}
		bags[i] = bag
	}

	scale := math.Sqrt(float64(m.dim))
	parallel.ForBatch(batch, m.vocab, func(i, v int) {
		var dot float64
		for d := 0; d < m.dim; d++ {
			dot += bags[i][d] * float64(tab[v*m.dim+d])
		}
		logits[(i*seq+seq-1)*m.vocab+v] = float32(dot / scale)
	}, m.par)
	return out, nil
}

// VocabSize returns the vocabulary size.
func (m *CausalBag) VocabSize() int { return m.vocab }

// EmbeddingTable returns the [vocab, dim] embedding table.
func (m *CausalBag) EmbeddingTable() *tensor.RawTensor { return m.table }
