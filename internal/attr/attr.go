// Package attr implements the built-in feature attribution methods:
// occlusion, saliency, integrated gradients and lime. All methods share the
// prepare-and-attribute driver and differ only in how they score one
// generation step.
package attr

import "github.com/Bots-Avatar/inseq/internal/models"

// Method identifiers.
const (
	Occlusion           = "occlusion"
	Saliency            = "saliency"
	IntegratedGradients = "integrated_gradients"
	Lime                = "lime"
)

func init() {
	models.RegisterMethod(Occlusion, newOcclusion)
	models.RegisterMethod(Saliency, newSaliency)
	models.RegisterMethod(IntegratedGradients, newIntegratedGradients)
	models.RegisterMethod(Lime, newLime)
}
