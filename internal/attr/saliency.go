package attr

import (
	"math"

	"github.com/Bots-Avatar/inseq/internal/data"
	"github.com/Bots-Avatar/inseq/internal/models"
)

// saliencyStepSize is the relative perturbation used for the central
// difference estimating the directional derivative.
const saliencyStepSize = 0.01

// saliency attributes each context position by the magnitude of the score's
// directional derivative along the position's input-minus-baseline
// direction, a finite-difference take on gradient-times-input.
type saliency struct {
	methodBase
}

func newSaliency(model *models.AttributionModel, _ models.MethodConfig) (models.FeatureAttribution, error) {
	s := &saliency{methodBase: methodBase{name: Saliency, model: model}}
	s.step = s.attributeStep
	return s, nil
}

func (s *saliency) attributeStep(ctx stepContext) (*data.FeatureAttributionStepOutput, error) {
	out := &data.FeatureAttributionStepOutput{}
	for sideIdx, side := range s.sides(ctx) {
		positions := side.embeds.Shape()[1]
		attrs := newAttrRows(ctx.batch.NumExamples(), positions)

		for j := 0; j < positions; j++ {
			plus, err := s.score(ctx, &side, nudgePosition(side.embeds, side.embeds, side.baseline, j, saliencyStepSize))
			if err != nil {
				return nil, err
			}
			minus, err := s.score(ctx, &side, nudgePosition(side.embeds, side.embeds, side.baseline, j, -saliencyStepSize))
			if err != nil {
				return nil, err
			}
			for i := range plus {
				deriv := (plus[i] - minus[i]) / (2 * saliencyStepSize)
				attrs[i][j] = float32(math.Abs(float64(deriv)))
			}
		}
		setSideAttributions(out, sideIdx, attrs)
	}
	return out, nil
}
