package attr

import (
	"github.com/Bots-Avatar/inseq/internal/data"
	"github.com/Bots-Avatar/inseq/internal/models"
)

// occlusion attributes each context position by the score drop observed
// when its embedding is replaced with the baseline embedding.
type occlusion struct {
	methodBase
}

func newOcclusion(model *models.AttributionModel, _ models.MethodConfig) (models.FeatureAttribution, error) {
	o := &occlusion{methodBase: methodBase{name: Occlusion, model: model}}
	o.step = o.attributeStep
	return o, nil
}

func (o *occlusion) attributeStep(ctx stepContext) (*data.FeatureAttributionStepOutput, error) {
	base, err := o.score(ctx, nil, nil)
	if err != nil {
		return nil, err
	}

	out := &data.FeatureAttributionStepOutput{}
	for sideIdx, side := range o.sides(ctx) {
		positions := side.embeds.Shape()[1]
		attrs := newAttrRows(ctx.batch.NumExamples(), positions)

		for j := 0; j < positions; j++ {
			scores, err := o.score(ctx, &side, replacePosition(side.embeds, side.baseline, j))
			if err != nil {
				return nil, err
			}
			for i := range scores {
				attrs[i][j] = base[i] - scores[i]
			}
		}
		setSideAttributions(out, sideIdx, attrs)
	}
	return out, nil
}
