package demo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bots-Avatar/inseq/internal/tensor"
)

func TestCausalBagDeterministic(t *testing.T) {
	a := NewCausalBag(32, 8, 7)
	b := NewCausalBag(32, 8, 7)
	assert.Equal(t, a.EmbeddingTable().AsFloat32(), b.EmbeddingTable().AsFloat32())

	c := NewCausalBag(32, 8, 8)
	assert.NotEqual(t, a.EmbeddingTable().AsFloat32(), c.EmbeddingTable().AsFloat32())
}

func TestCausalBagForwardShapes(t *testing.T) {
	m := NewCausalBag(32, 8, 7)

	ids, err := tensor.FromInt32([]int32{4, 5, 6}, tensor.Shape{1, 3}, tensor.CPU)
	require.NoError(t, err)
	mask, err := tensor.FromInt32([]int32{1, 1, 1}, tensor.Shape{1, 3}, tensor.CPU)
	require.NoError(t, err)

	logits, err := m.Forward(ids, mask)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 3, 32}, logits.Shape())
}

func TestCausalBagContextSensitivity(t *testing.T) {
	m := NewCausalBag(32, 8, 7)

	mask, err := tensor.FromInt32([]int32{1, 1}, tensor.Shape{1, 2}, tensor.CPU)
	require.NoError(t, err)

	a, err := tensor.FromInt32([]int32{4, 5}, tensor.Shape{1, 2}, tensor.CPU)
	require.NoError(t, err)
	b, err := tensor.FromInt32([]int32{4, 9}, tensor.Shape{1, 2}, tensor.CPU)
	require.NoError(t, err)

	la, err := m.Forward(a, mask)
	require.NoError(t, err)
	lb, err := m.Forward(b, mask)
	require.NoError(t, err)

	assert.NotEqual(t, la.AsFloat32(), lb.AsFloat32(), "changing the context must change the scores")
}

func TestCausalBagDefaults(t *testing.T) {
	m := NewCausalBag(0, 0, 1)
	assert.Equal(t, DefaultVocabSize, m.VocabSize())
	assert.Equal(t, tensor.Shape{DefaultVocabSize, DefaultEmbeddingDim}, m.EmbeddingTable().Shape())
}
