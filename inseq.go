// Package inseq is a feature attribution toolkit for sequence generation
// models. It explains which input tokens drove each generated token by
// perturbation and gradient-style methods, uniformly over decoder-only and
// encoder-decoder architectures.
//
// Example usage:
//
//	import (
//	    "github.com/Bots-Avatar/inseq"
//	    "github.com/Bots-Avatar/inseq/tokenizer"
//	)
//
//	model, err := inseq.LoadModel("my-model", backend, tokenizer.NewWord(),
//	    inseq.WithMethod(inseq.Occlusion))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	out, err := model.Attribute([]string{"The capital of France is"}, inseq.AttributeOptions{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(out.Sequence(0).SourceAttributions)
package inseq

import (
	"github.com/Bots-Avatar/inseq/internal/attr"
	"github.com/Bots-Avatar/inseq/internal/data"
	"github.com/Bots-Avatar/inseq/internal/demo"
	"github.com/Bots-Avatar/inseq/internal/models"
	"github.com/Bots-Avatar/inseq/internal/stepscores"
	"github.com/Bots-Avatar/inseq/internal/tokenizer"
)

// AttributionModel couples a model with a bound attribution method and
// drives the attribution workflow.
type AttributionModel = models.AttributionModel

// AttributeOptions configures one attribution run.
type AttributeOptions = models.AttributeOptions

// MethodConfig carries per-method tuning knobs.
type MethodConfig = models.MethodConfig

// AttributionParams is the parameter set attribution methods receive.
type AttributionParams = models.AttributionParams

// FeatureAttribution is implemented by every attribution method.
type FeatureAttribution = models.FeatureAttribution

// MethodFactory constructs a method instance bound to a model.
type MethodFactory = models.MethodFactory

// ModelAdapter is the architecture contract attribution drives model
// interaction through.
type ModelAdapter = models.ModelAdapter

// CausalLM is the capability set decoder-only backends implement.
type CausalLM = models.CausalLM

// Seq2SeqLM is the capability set encoder-decoder backends implement.
type Seq2SeqLM = models.Seq2SeqLM

// Option configures an AttributionModel at load time.
type Option = models.Option

// StepFunction computes one score per example for a generation step.
type StepFunction = stepscores.StepFunction

// StepFunctionArgs is the fixed parameter set step functions receive.
type StepFunctionArgs = stepscores.StepFunctionArgs

// FeatureAttributionOutput is the result aggregate of an attribution call.
type FeatureAttributionOutput = data.FeatureAttributionOutput

// Typed errors surfaced by attribution calls.
type (
	// ValidationError reports invalid attribution inputs.
	ValidationError = models.ValidationError
	// LengthMismatchError reports input/target length mismatches.
	LengthMismatchError = models.LengthMismatchError
	// PreconditionError reports a violated architecture precondition.
	PreconditionError = models.PreconditionError
	// UnknownMethodError reports a lookup of an unregistered method.
	UnknownMethodError = models.UnknownMethodError
)

// ErrMissingAttributionMethod is returned when attribution is requested
// with no method name and no bound default.
var ErrMissingAttributionMethod = models.ErrMissingAttributionMethod

// Built-in attribution method identifiers.
const (
	Occlusion           = attr.Occlusion
	Saliency            = attr.Saliency
	IntegratedGradients = attr.IntegratedGradients
	Lime                = attr.Lime
)

// Built-in step function identifiers.
const (
	Probability  = stepscores.Probability
	Entropy      = stepscores.Entropy
	CrossEntropy = stepscores.CrossEntropy
)

// LoadModel wraps a backend and tokenizer into an attribution model. The
// adapter is resolved from the backend's capability set.
func LoadModel(name string, backend any, tok tokenizer.Tokenizer, opts ...Option) (*AttributionModel, error) {
	return models.LoadModel(name, backend, tok, opts...)
}

// LoadDemoModel builds a self-contained attribution model with seed-derived
// weights and a word-level tokenizer. No model files required.
func LoadDemoModel(seed int64, opts ...Option) (*AttributionModel, error) {
	backend := demo.NewCausalBag(demo.DefaultVocabSize, demo.DefaultEmbeddingDim, seed)
	return models.LoadModel("demo-bag-lm", backend, tokenizer.NewWord(), opts...)
}

// Load-time options.
var (
	// WithDevice selects the execution device by name.
	WithDevice = models.WithDevice
	// WithMethod binds a default attribution method at load time.
	WithMethod = models.WithMethod
	// WithMethodConfig sets the tuning knobs used when binding methods.
	WithMethodConfig = models.WithMethodConfig
	// WithAttributedFn sets the default attributed step function.
	WithAttributedFn = models.WithAttributedFn
	// WithLogger sets the logger.
	WithLogger = models.WithLogger
)

// RegisterMethod adds a custom attribution method factory.
func RegisterMethod(name string, factory MethodFactory) {
	models.RegisterMethod(name, factory)
}

// ListMethods returns the registered attribution method identifiers.
func ListMethods() []string {
	return models.ListMethods()
}

// RegisterStepFunction adds a custom step function usable both as an
// attribution target and as an auxiliary per-step score.
func RegisterStepFunction(name string, fn StepFunction) {
	stepscores.Register(name, fn)
}

// ListStepFunctions returns the registered step function identifiers.
func ListStepFunctions() []string {
	return stepscores.List()
}

// MergeAttributions merges batch-level outputs into a single output,
// preserving example order.
func MergeAttributions(outputs []*FeatureAttributionOutput) (*FeatureAttributionOutput, error) {
	return data.MergeAttributions(outputs)
}
