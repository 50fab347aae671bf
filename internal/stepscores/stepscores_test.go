package stepscores

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bots-Avatar/inseq/internal/tensor"
)

func logitsTensor(t *testing.T, rows [][]float32) *tensor.RawTensor {
	t.Helper()
	flat := []float32{}
	for _, row := range rows {
		flat = append(flat, row...)
	}
	raw, err := tensor.FromFloat32(flat, tensor.Shape{len(rows), len(rows[0])}, tensor.CPU)
	require.NoError(t, err)
	return raw
}

func TestRegistryLookup(t *testing.T) {
	for _, name := range []string{Probability, Entropy, CrossEntropy} {
		fn, err := Get(name)
		require.NoError(t, err)
		assert.NotNil(t, fn)
	}

	_, err := Get("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"nope"`, "error must name the unregistered key")

	assert.Contains(t, List(), Probability)
}

func TestRegisterCustom(t *testing.T) {
	Register("always_one", func(args StepFunctionArgs) ([]float32, error) {
		out := make([]float32, len(args.TargetIDs))
		for i := range out {
			out[i] = 1
		}
		return out, nil
	})

	fn, err := Get("always_one")
	require.NoError(t, err)
	scores, err := fn(StepFunctionArgs{TargetIDs: []int32{0, 0}})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1}, scores)
}

func TestProbabilityFn(t *testing.T) {
	args := StepFunctionArgs{
		Logits:    logitsTensor(t, [][]float32{{0, 0, 0, 0}, {10, -10, -10, -10}}),
		TargetIDs: []int32{1, 0},
	}

	scores, err := ProbabilityFn(args)
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.InDelta(t, 0.25, scores[0], 1e-5, "uniform logits give uniform probability")
	assert.InDelta(t, 1.0, scores[1], 1e-4, "dominant logit saturates probability")
}

func TestEntropyFn(t *testing.T) {
	args := StepFunctionArgs{
		Logits:    logitsTensor(t, [][]float32{{0, 0, 0, 0}}),
		TargetIDs: []int32{0},
	}

	scores, err := EntropyFn(args)
	require.NoError(t, err)
	assert.InDelta(t, math.Log(4), float64(scores[0]), 1e-5)
}

func TestCrossEntropyFn(t *testing.T) {
	args := StepFunctionArgs{
		Logits:    logitsTensor(t, [][]float32{{0, 0, 0, 0}}),
		TargetIDs: []int32{2},
	}

	scores, err := CrossEntropyFn(args)
	require.NoError(t, err)
	assert.InDelta(t, math.Log(4), float64(scores[0]), 1e-5)
}

func TestStepFunctionValidation(t *testing.T) {
	_, err := ProbabilityFn(StepFunctionArgs{TargetIDs: []int32{0}})
	assert.Error(t, err, "missing logits must fail")

	logits := logitsTensor(t, [][]float32{{0, 0}})
	_, err = ProbabilityFn(StepFunctionArgs{Logits: logits, TargetIDs: []int32{0, 1}})
	assert.Error(t, err, "batch mismatch must fail")

	_, err = ProbabilityFn(StepFunctionArgs{Logits: logits, TargetIDs: []int32{5}})
	assert.Error(t, err, "out-of-vocabulary target must fail")
}
