// Package data exposes the batch structures and attribution result
// aggregates exchanged between attribution models and attribution methods.
//
// This package wraps the internal data implementation and provides a clean
// public API.
//
// Example usage:
//
//	import "github.com/Bots-Avatar/inseq/data"
//
//	out, err := model.Attribute([]string{"Hello"}, opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := data.SaveFile(out, "attribution.json"); err != nil {
//	    log.Fatal(err)
//	}
package data

import (
	"io"

	"github.com/Bots-Avatar/inseq/internal/data"
)

// TokenWithID pairs a token's surface string with its vocabulary ID.
type TokenWithID = data.TokenWithID

// BatchEncoding is the output produced by the tokenization step.
type BatchEncoding = data.BatchEncoding

// BatchEmbedding holds the embedded view of a BatchEncoding.
type BatchEmbedding = data.BatchEmbedding

// Batch groups an encoding with its embeddings for one architecture side.
type Batch = data.Batch

// AttributionBatch is the architecture-polymorphic batch view attribution
// methods operate on.
type AttributionBatch = data.AttributionBatch

// DecoderOnlyBatch is the input batch for decoder-only attribution models.
type DecoderOnlyBatch = data.DecoderOnlyBatch

// EncoderDecoderBatch is the input batch for encoder-decoder attribution
// models.
type EncoderDecoderBatch = data.EncoderDecoderBatch

// FeatureAttributionStepOutput is the result of attributing one generation
// step.
type FeatureAttributionStepOutput = data.FeatureAttributionStepOutput

// FeatureAttributionSequenceOutput is the per-example view of an
// attribution run.
type FeatureAttributionSequenceOutput = data.FeatureAttributionSequenceOutput

// FeatureAttributionOutput is the user-facing result aggregate of an
// attribution call.
type FeatureAttributionOutput = data.FeatureAttributionOutput

// Info metadata keys attached to a FeatureAttributionOutput.
const (
	InfoInputTexts               = data.InfoInputTexts
	InfoGeneratedTexts           = data.InfoGeneratedTexts
	InfoGenerationArgs           = data.InfoGenerationArgs
	InfoConstrainedDecoding      = data.InfoConstrainedDecoding
	InfoGenerateFromTargetPrefix = data.InfoGenerateFromTargetPrefix
	InfoAttributeTarget          = data.InfoAttributeTarget
	InfoModelName                = data.InfoModelName
	InfoAttributionMethod        = data.InfoAttributionMethod
	InfoAttributedFn             = data.InfoAttributedFn
	InfoRunID                    = data.InfoRunID
)

// MergeAttributions merges batch-level outputs into a single output,
// preserving example order.
func MergeAttributions(outputs []*FeatureAttributionOutput) (*FeatureAttributionOutput, error) {
	return data.MergeAttributions(outputs)
}

// Save writes an attribution output as JSON.
func Save(out *FeatureAttributionOutput, w io.Writer) error {
	return out.Save(w)
}

// SaveFile writes an attribution output to a JSON file.
func SaveFile(out *FeatureAttributionOutput, path string) error {
	return out.SaveFile(path)
}

// LoadOutput reads an attribution output from JSON.
func LoadOutput(r io.Reader) (*FeatureAttributionOutput, error) {
	return data.LoadOutput(r)
}

// LoadOutputFile reads an attribution output from a JSON file.
func LoadOutputFile(path string) (*FeatureAttributionOutput, error) {
	return data.LoadOutputFile(path)
}
