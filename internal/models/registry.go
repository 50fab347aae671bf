package models

import (
	"sort"

	"github.com/Bots-Avatar/inseq/internal/data"
	"github.com/Bots-Avatar/inseq/internal/stepscores"
)

// MethodConfig carries per-method tuning knobs. Methods read only the fields
// that apply to them and fall back to defaults for zero values.
type MethodConfig struct {
	// NSteps is the number of interpolation points for path-based methods.
	NSteps int

	// NSamples is the number of perturbation samples for sampling methods.
	NSamples int

	// Seed fixes the perturbation RNG. Zero means seed 0, which keeps
	// repeated runs reproducible by default.
	Seed int64
}

// AttributionParams is the full parameter set an attribution method receives
// for one run: resolved texts, positional bounds, batching and the scoring
// function to explain.
type AttributionParams struct {
	// InputTexts are the validated input texts.
	InputTexts []string

	// GeneratedTexts are the resolved target texts, generated or forced.
	GeneratedTexts []string

	// BatchSize splits the run into batches of at most this many examples.
	// Zero or negative means one batch with everything.
	BatchSize int

	// AttrPosStart and AttrPosEnd bound the attributed generation steps.
	// Zero values mean the natural bounds of each example.
	AttrPosStart int
	AttrPosEnd   int

	// AttributeTarget additionally attributes the target prefix on
	// encoder-decoder models.
	AttributeTarget bool

	// OutputStepAttributions keeps the raw per-step outputs in the result.
	OutputStepAttributions bool

	// IncludeEOSBaseline includes EOS positions in baseline replacement.
	IncludeEOSBaseline bool

	// ShowProgress displays a progress bar over attributed steps.
	ShowProgress bool

	// AttributedFn is the scoring function attribution explains.
	AttributedFn stepscores.StepFunction

	// StepScores names additional step functions computed alongside
	// attribution.
	StepScores []string

	// StepScoreArgs is routed to step functions via their Extra field.
	StepScoreArgs map[string]any
}

// FeatureAttribution is implemented by every attribution method. A method is
// bound to one model at load time and owns the full prepare-attribute loop
// for a run.
type FeatureAttribution interface {
	// MethodName returns the registry identifier of the method.
	MethodName() string

	// PrepareAndAttribute encodes the inputs and runs attribution, returning
	// one output per processed batch in input order.
	PrepareAndAttribute(params AttributionParams) ([]*data.FeatureAttributionOutput, error)

	// Unhook detaches the method from the model, undoing any forward-pass
	// instrumentation it installed.
	Unhook() error
}

// MethodFactory constructs a method instance bound to a model.
type MethodFactory func(model *AttributionModel, config MethodConfig) (FeatureAttribution, error)

// methodRegistry maps method identifiers to factories. Populated at init
// time by the method implementations, not synchronized by design.
var methodRegistry = map[string]MethodFactory{}

// RegisterMethod adds an attribution method factory under the given
// identifier. Registering an existing identifier replaces it.
func RegisterMethod(name string, factory MethodFactory) {
	methodRegistry[name] = factory
}

// LoadMethod instantiates a registered method bound to the given model.
func LoadMethod(name string, model *AttributionModel, config MethodConfig) (FeatureAttribution, error) {
	factory, ok := methodRegistry[name]
	if !ok {
		return nil, &UnknownMethodError{Name: name, Available: ListMethods()}
	}
	return factory(model, config)
}

// ListMethods returns the registered method identifiers in sorted order.
func ListMethods() []string {
	names := make([]string, 0, len(methodRegistry))
	for name := range methodRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
