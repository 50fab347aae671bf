package attr

import (
	"github.com/Bots-Avatar/inseq/internal/data"
	"github.com/Bots-Avatar/inseq/internal/models"
)

const (
	// defaultIGSteps is the number of interpolation points on the
	// baseline-to-input path.
	defaultIGSteps = 16

	// igStepSize is the relative perturbation for the derivative estimate
	// at each interpolation point.
	igStepSize = 0.01
)

// integratedGradients attributes each context position by averaging the
// directional derivative of the score along the position's
// input-minus-baseline direction over interpolation points between baseline
// and input, the path-integral estimate of integrated gradients.
type integratedGradients struct {
	methodBase
	nSteps int
}

func newIntegratedGradients(model *models.AttributionModel, cfg models.MethodConfig) (models.FeatureAttribution, error) {
	nSteps := cfg.NSteps
	if nSteps <= 0 {
		nSteps = defaultIGSteps
	}
	ig := &integratedGradients{
		methodBase: methodBase{name: IntegratedGradients, model: model},
		nSteps:     nSteps,
	}
	ig.step = ig.attributeStep
	return ig, nil
}

func (g *integratedGradients) attributeStep(ctx stepContext) (*data.FeatureAttributionStepOutput, error) {
	out := &data.FeatureAttributionStepOutput{}
	for sideIdx, side := range g.sides(ctx) {
		positions := side.embeds.Shape()[1]
		attrs := newAttrRows(ctx.batch.NumExamples(), positions)

		for k := 0; k < g.nSteps; k++ {
			// Midpoint rule over the interpolation path.
			alpha := (float32(k) + 0.5) / float32(g.nSteps)
			point := interpolate(side.embeds, side.baseline, alpha)

			for j := 0; j < positions; j++ {
				plus, err := g.score(ctx, &side, nudgePosition(point, side.embeds, side.baseline, j, igStepSize))
				if err != nil {
					return nil, err
				}
				minus, err := g.score(ctx, &side, nudgePosition(point, side.embeds, side.baseline, j, -igStepSize))
				if err != nil {
					return nil, err
				}
				for i := range plus {
					deriv := (plus[i] - minus[i]) / (2 * igStepSize)
					attrs[i][j] += deriv / float32(g.nSteps)
				}
			}
		}
		setSideAttributions(out, sideIdx, attrs)
	}
	return out, nil
}
