package data

import "fmt"

// Info metadata keys attached to a FeatureAttributionOutput.
const (
	InfoInputTexts               = "input_texts"
	InfoGeneratedTexts           = "generated_texts"
	InfoGenerationArgs           = "generation_args"
	InfoConstrainedDecoding      = "constrained_decoding"
	InfoGenerateFromTargetPrefix = "generate_from_target_prefix"
	InfoAttributeTarget          = "attribute_target"
	InfoModelName                = "model_name"
	InfoAttributionMethod        = "attribution_method"
	InfoAttributedFn             = "attributed_fn"
	InfoRunID                    = "run_id"
)

// FeatureAttributionStepOutput is the result of attributing one generation
// step: per-example attribution vectors over the context at that step, the
// step-function scores computed alongside, and token metadata attached by
// the adapter's enrichment hook.
type FeatureAttributionStepOutput struct {
	// SourceAttributions holds one attribution vector per example over the
	// source context ([batch][source_len]).
	SourceAttributions [][]float32 `json:"source_attributions"`

	// TargetAttributions optionally holds attribution over the target
	// prefix ([batch][prefix_len]), for encoder-decoder target attribution.
	TargetAttributions [][]float32 `json:"target_attributions,omitempty"`

	// StepScores maps step-function identifiers to per-example scores.
	StepScores map[string][]float32 `json:"step_scores,omitempty"`

	// TargetTokens holds the attributed token of each example at this step.
	TargetTokens []TokenWithID `json:"target_tokens,omitempty"`

	// SourceTokens holds the context tokens of each example at this step.
	SourceTokens [][]TokenWithID `json:"source_tokens,omitempty"`

	// PrefixTokens holds the target prefix tokens of each example, for
	// encoder-decoder batches.
	PrefixTokens [][]TokenWithID `json:"prefix_tokens,omitempty"`
}

// FeatureAttributionSequenceOutput is the per-example view of an attribution
// run: token-level matrices with one row per attributed generation step.
type FeatureAttributionSequenceOutput struct {
	// Source holds the tokens attribution scores are assigned to.
	Source []TokenWithID `json:"source"`

	// Target holds the attributed generated tokens, one per matrix row.
	Target []TokenWithID `json:"target"`

	// SourceAttributions is the [len(Target)][len(Source)] score matrix.
	SourceAttributions [][]float32 `json:"source_attributions"`

	// TargetAttributions is the optional target-prefix score matrix for
	// encoder-decoder target attribution; row i covers prefix length at
	// step i and is nil otherwise.
	TargetAttributions [][]float32 `json:"target_attributions,omitempty"`

	// StepScores maps step-function identifiers to per-step score series
	// aligned with Target.
	StepScores map[string][]float32 `json:"step_scores,omitempty"`
}

// FeatureAttributionOutput is the user-facing result aggregate of an
// attribution call. After MergeAttributions it must be treated as read-only;
// only accessor methods are part of the supported surface.
type FeatureAttributionOutput struct {
	// SequenceAttributions holds per-example results in input order.
	SequenceAttributions []*FeatureAttributionSequenceOutput `json:"sequence_attributions"`

	// StepAttributions optionally holds the raw per-step outputs.
	StepAttributions []*FeatureAttributionStepOutput `json:"step_attributions,omitempty"`

	// Info holds run metadata (input texts, generated texts, flags).
	Info map[string]any `json:"info"`
}

// NewFeatureAttributionOutput creates an output aggregate for one batch.
func NewFeatureAttributionOutput(
	sequences []*FeatureAttributionSequenceOutput,
	steps []*FeatureAttributionStepOutput,
) *FeatureAttributionOutput {
	return &FeatureAttributionOutput{
		SequenceAttributions: sequences,
		StepAttributions:     steps,
		Info:                 make(map[string]any),
	}
}

// NumSequences returns the number of per-example attributions.
func (o *FeatureAttributionOutput) NumSequences() int {
	return len(o.SequenceAttributions)
}

// Sequence returns the attribution for example i.
func (o *FeatureAttributionOutput) Sequence(i int) *FeatureAttributionSequenceOutput {
	return o.SequenceAttributions[i]
}

// InfoString returns a string metadata entry, or "" when absent.
func (o *FeatureAttributionOutput) InfoString(key string) string {
	if v, ok := o.Info[key].(string); ok {
		return v
	}
	return ""
}

// InfoBool returns a boolean metadata entry, or false when absent.
func (o *FeatureAttributionOutput) InfoBool(key string) bool {
	if v, ok := o.Info[key].(bool); ok {
		return v
	}
	return false
}

// InfoStrings returns a string-list metadata entry, or nil when absent.
func (o *FeatureAttributionOutput) InfoStrings(key string) []string {
	switch v := o.Info[key].(type) {
	case []string:
		return v
	case []any:
		// Deserialized outputs carry []any.
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// MergeAttributions merges batch-level outputs into a single output.
//
// Sequence attributions are concatenated in the order the batches were
// produced, which preserves the original example ordering. Per-batch results
// are never mixed: each sequence keeps the matrices computed for it. The
// merged output takes ownership of the inputs and is read-only afterwards.
func MergeAttributions(outputs []*FeatureAttributionOutput) (*FeatureAttributionOutput, error) {
	if len(outputs) == 0 {
		return nil, fmt.Errorf("no attribution outputs to merge")
	}

	merged := &FeatureAttributionOutput{
		Info: make(map[string]any),
	}
	for _, out := range outputs {
		if out == nil {
			return nil, fmt.Errorf("cannot merge nil attribution output")
		}
		merged.SequenceAttributions = append(merged.SequenceAttributions, out.SequenceAttributions...)
		merged.StepAttributions = append(merged.StepAttributions, out.StepAttributions...)
		for k, v := range out.Info {
			merged.Info[k] = v
		}
	}
	return merged, nil
}
