// Package stepscores provides the registry of step functions: named scores
// computed once per generation step alongside attribution, and usable as the
// scoring target attribution methods explain.
package stepscores

import (
	"fmt"
	"sort"

	"github.com/Bots-Avatar/inseq/internal/tensor"
)

// StepFunctionArgs carries the fixed base parameter set available to every
// step function. Fields that do not apply to the current architecture are
// nil (a decoder-only model has no encoder side).
type StepFunctionArgs struct {
	// ForwardOutput is the raw backend output of the forward pass.
	ForwardOutput any

	// Logits is the normalized [batch, vocab] logits tensor for the
	// current step, extracted from ForwardOutput by the model adapter.
	Logits *tensor.RawTensor

	// TargetIDs holds the target token id of each example at this step.
	TargetIDs []int32

	EncoderInputIDs      *tensor.RawTensor
	DecoderInputIDs      *tensor.RawTensor
	EncoderInputEmbeds   *tensor.RawTensor
	DecoderInputEmbeds   *tensor.RawTensor
	EncoderAttentionMask *tensor.RawTensor
	DecoderAttentionMask *tensor.RawTensor

	// Extra holds caller-supplied arguments routed to step functions.
	Extra map[string]any
}

// StepFunction computes one score per example for a generation step.
type StepFunction func(args StepFunctionArgs) ([]float32, error)

// registry maps step-function identifiers to implementations.
//
// Registration is not synchronized by design: step functions are registered
// at init time, before any attribution call runs.
var registry = map[string]StepFunction{}

// Register adds a step function under the given identifier.
// Registering an already-present identifier replaces it.
func Register(name string, fn StepFunction) {
	registry[name] = fn
}

// Get looks up a step function. Unknown identifiers fail with an error
// naming the unregistered key.
func Get(name string) (StepFunction, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf(
			"unknown step function %q: register custom functions with RegisterStepFunction", name)
	}
	return fn, nil
}

// List returns the registered identifiers in sorted order.
func List() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
