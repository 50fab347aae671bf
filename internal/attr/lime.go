package attr

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/Bots-Avatar/inseq/internal/data"
	"github.com/Bots-Avatar/inseq/internal/models"
	"github.com/Bots-Avatar/inseq/internal/tensor"
)

// defaultLimeSamples is the number of random masks sampled per step.
const defaultLimeSamples = 32

// lime attributes context positions by fitting a kernel-weighted linear
// surrogate over random occlusion masks: positions whose presence
// correlates with higher scores get positive attribution. Runs one example
// at a time.
type lime struct {
	methodBase
	nSamples int
	seed     int64
}

func newLime(model *models.AttributionModel, cfg models.MethodConfig) (models.FeatureAttribution, error) {
	nSamples := cfg.NSamples
	if nSamples <= 0 {
		nSamples = defaultLimeSamples
	}
	l := &lime{
		methodBase: methodBase{name: Lime, model: model},
		nSamples:   nSamples,
		seed:       cfg.Seed,
	}
	l.step = l.attributeStep
	return l, nil
}

func (l *lime) attributeStep(ctx stepContext) (*data.FeatureAttributionStepOutput, error) {
	if ctx.batch.NumExamples() != 1 {
		return nil, fmt.Errorf("lime attributes one example at a time, got a batch of %d", ctx.batch.NumExamples())
	}
	rng := rand.New(rand.NewSource(l.seed)) //nolint:gosec // deterministic sampling for reproducible attributions

	out := &data.FeatureAttributionStepOutput{}
	for sideIdx, side := range l.sides(ctx) {
		attrs, err := l.attributeSide(ctx, side, rng)
		if err != nil {
			return nil, err
		}
		setSideAttributions(out, sideIdx, [][]float32{attrs})
	}
	return out, nil
}

// attributeSide samples masked variants of one input side and fits the
// per-position surrogate coefficients.
func (l *lime) attributeSide(ctx stepContext, side attrSide, rng *rand.Rand) ([]float32, error) {
	positions := side.embeds.Shape()[1]
	kernelWidth := 0.75 * math.Sqrt(float64(positions))

	// The unperturbed sample anchors the surrogate.
	masks := [][]bool{allKept(positions)}
	for s := 1; s < l.nSamples; s++ {
		mask := make([]bool, positions)
		for j := range mask {
			mask[j] = rng.Intn(2) == 0
		}
		masks = append(masks, mask)
	}

	scores := make([]float64, len(masks))
	weights := make([]float64, len(masks))
	for s, mask := range masks {
		score, err := l.score(ctx, &side, applyMask(side.embeds, side.baseline, mask))
		if err != nil {
			return nil, err
		}
		scores[s] = float64(score[0])

		dropped := 0
		for _, kept := range mask {
			if !kept {
				dropped++
			}
		}
		weights[s] = math.Exp(-float64(dropped*dropped) / (kernelWidth * kernelWidth))
	}

	attrs := make([]float32, positions)
	for j := 0; j < positions; j++ {
		attrs[j] = float32(weightedCoefficient(masks, scores, weights, j))
	}
	return attrs, nil
}

// weightedCoefficient computes the weighted least-squares slope of the score
// against the keep/drop indicator of one position.
func weightedCoefficient(masks [][]bool, scores, weights []float64, j int) float64 {
	var wSum, zMean, fMean float64
	for s := range masks {
		z := 0.0
		if masks[s][j] {
			z = 1.0
		}
		wSum += weights[s]
		zMean += weights[s] * z
		fMean += weights[s] * scores[s]
	}
	if wSum == 0 {
		return 0
	}
	zMean /= wSum
	fMean /= wSum

	var num, den float64
	for s := range masks {
		z := 0.0
		if masks[s][j] {
			z = 1.0
		}
		num += weights[s] * (z - zMean) * (scores[s] - fMean)
		den += weights[s] * (z - zMean) * (z - zMean)
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// applyMask clones embeddings with dropped positions replaced by their
// baseline rows.
func applyMask(embeds, baseline *tensor.RawTensor, mask []bool) *tensor.RawTensor {
	out := embeds
	for j, kept := range mask {
		if !kept {
			out = replacePosition(out, baseline, j)
		}
	}
	if out == embeds {
		return embeds.Clone()
	}
	return out
}

// allKept builds a mask keeping every position.
func allKept(n int) []bool {
	mask := make([]bool, n)
	for i := range mask {
		mask[i] = true
	}
	return mask
}
