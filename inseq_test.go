package inseq_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bots-Avatar/inseq"
	"github.com/Bots-Avatar/inseq/data"
	"github.com/Bots-Avatar/inseq/generate"
)

func TestDemoModelConstrainedAttribution(t *testing.T) {
	model, err := inseq.LoadDemoModel(7, inseq.WithMethod(inseq.Occlusion))
	require.NoError(t, err)

	out, err := model.Attribute(
		[]string{"how much is the cake?"},
		inseq.AttributeOptions{
			GeneratedTexts: []string{"how much is the cake? 350 rubles"},
			StepScores:     []string{inseq.Probability},
		},
	)
	require.NoError(t, err)
	require.Equal(t, 1, out.NumSequences())

	assert.True(t, out.InfoBool(data.InfoConstrainedDecoding))
	assert.Equal(t, []string{"how much is the cake? 350 rubles"}, out.InfoStrings(data.InfoGeneratedTexts))
	assert.Equal(t, inseq.Occlusion, out.InfoString(data.InfoAttributionMethod))

	seq := out.Sequence(0)
	require.Len(t, seq.Target, 2)
	assert.Equal(t, "350", seq.Target[0].Token)
	assert.Equal(t, "rubles", seq.Target[1].Token)

	require.Len(t, seq.Source, 7)
	require.Len(t, seq.SourceAttributions, 2)
	for _, row := range seq.SourceAttributions {
		assert.Len(t, row, 7)
	}

	probs := seq.StepScores[inseq.Probability]
	require.Len(t, probs, 2)
	for _, p := range probs {
		assert.GreaterOrEqual(t, p, float32(0))
		assert.LessOrEqual(t, p, float32(1))
	}
}

func TestDemoModelGenerationAttribution(t *testing.T) {
	model, err := inseq.LoadDemoModel(7, inseq.WithMethod(inseq.Saliency))
	require.NoError(t, err)

	gcfg := generate.DefaultGenerateConfig()
	gcfg.MaxNewTokens = 3

	out, err := model.Attribute(
		[]string{"how much does it cost"},
		inseq.AttributeOptions{Generation: &gcfg},
	)
	require.NoError(t, err)
	require.Equal(t, 1, out.NumSequences())

	assert.False(t, out.InfoBool(data.InfoConstrainedDecoding))
	generated := out.InfoStrings(data.InfoGeneratedTexts)
	require.Len(t, generated, 1)
	assert.True(t, strings.HasPrefix(generated[0], "how much does it cost"),
		"decoder-only generation must extend the prompt, got %q", generated[0])

	seq := out.Sequence(0)
	assert.NotEmpty(t, seq.Target)
	assert.NotEmpty(t, seq.SourceAttributions)
}

func TestOutputJSONRoundTrip(t *testing.T) {
	model, err := inseq.LoadDemoModel(3, inseq.WithMethod(inseq.Occlusion))
	require.NoError(t, err)

	out, err := model.Attribute(
		[]string{"the quick brown fox"},
		inseq.AttributeOptions{GeneratedTexts: []string{"the quick brown fox jumps"}},
	)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, data.Save(out, &buf))

	loaded, err := data.LoadOutput(&buf)
	require.NoError(t, err)
	require.Equal(t, out.NumSequences(), loaded.NumSequences())
	assert.Equal(t, out.Sequence(0).SourceAttributions, loaded.Sequence(0).SourceAttributions)
	assert.Equal(t, out.InfoString(data.InfoRunID), loaded.InfoString(data.InfoRunID))
}

func TestRegisteredMethodsAndSteps(t *testing.T) {
	methods := inseq.ListMethods()
	for _, name := range []string{inseq.Occlusion, inseq.Saliency, inseq.IntegratedGradients, inseq.Lime} {
		assert.Contains(t, methods, name)
	}

	steps := inseq.ListStepFunctions()
	for _, name := range []string{inseq.Probability, inseq.Entropy, inseq.CrossEntropy} {
		assert.Contains(t, steps, name)
	}
}
