package attr

import (
	"fmt"

	"github.com/schollz/progressbar/v3"

	"github.com/Bots-Avatar/inseq/internal/data"
	"github.com/Bots-Avatar/inseq/internal/models"
	"github.com/Bots-Avatar/inseq/internal/stepscores"
	"github.com/Bots-Avatar/inseq/internal/tensor"
)

// stepContext is the per-step view a method scores: the truncated context
// batch, the tokens being attributed and the function to explain.
type stepContext struct {
	batch           data.AttributionBatch
	targetIDs       []int32
	attributedFn    stepscores.StepFunction
	extra           map[string]any
	attributeTarget bool
}

// attrSide is one perturbable input side of a batch: the source text for
// encoder-decoder models, the full prefix for decoder-only ones, and
// additionally the target prefix when target attribution is requested.
type attrSide struct {
	embeds   *tensor.RawTensor
	baseline *tensor.RawTensor
	encoder  bool
}

// methodBase carries the model binding and the shared attribution loop.
// Concrete methods plug in their per-step scorer.
type methodBase struct {
	name  string
	model *models.AttributionModel
	step  func(ctx stepContext) (*data.FeatureAttributionStepOutput, error)
}

// MethodName returns the registry identifier of the method.
func (b *methodBase) MethodName() string { return b.name }

// Unhook removes the embedding instrumentation installed for attribution.
func (b *methodBase) Unhook() error {
	return b.model.Adapter().RemoveInterpretableEmbeddings()
}

// PrepareAndAttribute encodes the resolved texts, splits them into batches
// and attributes every generation step in range, returning one output per
// batch in input order.
func (b *methodBase) PrepareAndAttribute(params models.AttributionParams) ([]*data.FeatureAttributionOutput, error) {
	adapter := b.model.Adapter()
	if err := adapter.ConfigureInterpretableEmbeddings(); err != nil {
		return nil, fmt.Errorf("configure interpretable embeddings: %w", err)
	}

	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = len(params.InputTexts)
	}

	var outputs []*data.FeatureAttributionOutput
	for lo := 0; lo < len(params.InputTexts); lo += batchSize {
		hi := lo + batchSize
		if hi > len(params.InputTexts) {
			hi = len(params.InputTexts)
		}
		out, err := b.attributeBatch(models.AttributionInput{
			InputTexts:     params.InputTexts[lo:hi],
			GeneratedTexts: params.GeneratedTexts[lo:hi],
		}, params)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

// attributeBatch runs the step loop over one batch of examples.
func (b *methodBase) attributeBatch(input models.AttributionInput, params models.AttributionParams) (*data.FeatureAttributionOutput, error) {
	adapter := b.model.Adapter()

	batch, err := adapter.PrepareInputsForAttribution(input, params.IncludeEOSBaseline)
	if err != nil {
		return nil, fmt.Errorf("prepare inputs: %w", err)
	}

	start, end, err := b.attributionBounds(batch, input, params)
	if err != nil {
		return nil, err
	}

	var bar *progressbar.ProgressBar
	if params.ShowProgress {
		bar = progressbar.NewOptions(end-start,
			progressbar.OptionSetDescription(fmt.Sprintf("attributing with %s", b.name)),
			progressbar.OptionShowCount(),
		)
	}

	var steps []*data.FeatureAttributionStepOutput
	stepPositions := make([]int, 0, end-start)
	for step := start; step < end; step++ {
		targetIDs, stepMask := batch.StepTarget(step)
		if !anyActive(stepMask) {
			break
		}

		ctx := stepContext{
			batch:           batch.TruncateTargets(step),
			targetIDs:       targetIDs,
			attributedFn:    params.AttributedFn,
			extra:           params.StepScoreArgs,
			attributeTarget: params.AttributeTarget,
		}
		stepOut, err := b.step(ctx)
		if err != nil {
			return nil, fmt.Errorf("attribute step %d: %w", step, err)
		}

		if err := b.computeStepScores(stepOut, ctx, params.StepScores); err != nil {
			return nil, err
		}
		adapter.EnrichStepOutput(stepOut, ctx.batch, targetIDs)

		steps = append(steps, stepOut)
		stepPositions = append(stepPositions, step)
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}

	sequences := b.assembleSequences(batch, steps, stepPositions)
	var keptSteps []*data.FeatureAttributionStepOutput
	if params.OutputStepAttributions {
		keptSteps = steps
	}
	return data.NewFeatureAttributionOutput(sequences, keptSteps), nil
}

// attributionBounds resolves the attributed step range. Decoder-only models
// never attribute their input prefix; encoder-decoder models skip the
// decoder start token.
func (b *methodBase) attributionBounds(batch data.AttributionBatch, input models.AttributionInput, params models.AttributionParams) (int, int, error) {
	adapter := b.model.Adapter()

	minStart := 1
	if !adapter.IsEncoderDecoder() {
		// Attribution begins after the longest input prefix in the batch.
		// Ragged constrained batches are split to size 1 upstream.
		for _, text := range input.InputTexts {
			enc, err := adapter.Encode([]string{text}, false, false, false)
			if err != nil {
				return 0, 0, err
			}
			if n := enc.SeqLen(); n > minStart {
				minStart = n
			}
		}
	}

	start := params.AttrPosStart
	if start < minStart {
		start = minStart
	}
	end := batch.MaxGenerationLength()
	if params.AttrPosEnd > 0 && params.AttrPosEnd < end {
		end = params.AttrPosEnd
	}
	if start >= end {
		return 0, 0, &models.ValidationError{
			Msg: fmt.Sprintf("attribution range [%d, %d) is empty: nothing to attribute", start, end),
		}
	}
	return start, end, nil
}

// computeStepScores evaluates the requested step functions on an id-based
// forward pass over the step context.
func (b *methodBase) computeStepScores(stepOut *data.FeatureAttributionStepOutput, ctx stepContext, names []string) error {
	if len(names) == 0 {
		return nil
	}
	adapter := b.model.Adapter()

	out, err := adapter.GetForwardOutput(adapter.FormatForwardArgs(ctx.batch, false))
	if err != nil {
		return fmt.Errorf("step score forward: %w", err)
	}
	logits, err := adapter.Output2Logits(out)
	if err != nil {
		return err
	}
	args := adapter.FormatStepFunctionArgs(out, logits, ctx.targetIDs, ctx.batch, ctx.extra)

	stepOut.StepScores = make(map[string][]float32, len(names))
	for _, name := range names {
		fn, err := stepscores.Get(name)
		if err != nil {
			return err
		}
		scores, err := fn(args)
		if err != nil {
			return fmt.Errorf("step score %q: %w", name, err)
		}
		stepOut.StepScores[name] = scores
	}
	return nil
}

// assembleSequences folds the per-step outputs into one per-example view.
func (b *methodBase) assembleSequences(batch data.AttributionBatch, steps []*data.FeatureAttributionStepOutput, positions []int) []*data.FeatureAttributionSequenceOutput {
	n := batch.NumExamples()
	isEncDec := b.model.Adapter().IsEncoderDecoder()

	mask := batch.TargetMask()
	maskData := mask.AsInt32()
	seqLen := mask.Shape()[1]

	sequences := make([]*data.FeatureAttributionSequenceOutput, n)
	for i := 0; i < n; i++ {
		seq := &data.FeatureAttributionSequenceOutput{}

		if isEncDec {
			seq.Source = tokensRow(batch.SourceTokens(), batch.SourceIDs(), batch.SourceMask(), i)
		} else {
			seq.Source = tokensRow(batch.TargetTokens(), batch.TargetIDs(), batch.TargetMask(), i)
		}
		srcLen := len(seq.Source)

		maxPrefix := 0
		for k, step := range steps {
			if maskData[i*seqLen+positions[k]] == 0 {
				continue
			}
			if step.TargetAttributions != nil && len(step.TargetAttributions[i]) > maxPrefix {
				maxPrefix = len(step.TargetAttributions[i])
			}
		}

		for k, step := range steps {
			if maskData[i*seqLen+positions[k]] == 0 {
				continue
			}
			seq.Target = append(seq.Target, step.TargetTokens[i])
			seq.SourceAttributions = append(seq.SourceAttributions, padRow(step.SourceAttributions[i], srcLen))
			if step.TargetAttributions != nil {
				seq.TargetAttributions = append(seq.TargetAttributions, padRow(step.TargetAttributions[i], maxPrefix))
			}
			for name, scores := range step.StepScores {
				if seq.StepScores == nil {
					seq.StepScores = make(map[string][]float32)
				}
				seq.StepScores[name] = append(seq.StepScores[name], scores[i])
			}
		}
		sequences[i] = seq
	}
	return sequences
}

// score runs the attributed function over the context with optionally
// substituted embeddings for one side.
func (b *methodBase) score(ctx stepContext, side *attrSide, embeds *tensor.RawTensor) ([]float32, error) {
	adapter := b.model.Adapter()
	args := adapter.FormatAttributionArgs(ctx.batch)
	if side != nil && embeds != nil {
		if side.encoder {
			args.EncoderInputEmbeds = embeds
		} else {
			args.DecoderInputEmbeds = embeds
		}
	}
	return adapter.Forward(ctx.attributedFn, args, ctx.targetIDs, ctx.batch, ctx.extra)
}

// sides lists the perturbable input sides of a step context.
func (b *methodBase) sides(ctx stepContext) []attrSide {
	if !b.model.Adapter().IsEncoderDecoder() {
		return []attrSide{{
			embeds:   ctx.batch.TargetEmbeds(),
			baseline: ctx.batch.TargetBaselineEmbeds(),
			encoder:  false,
		}}
	}
	out := []attrSide{{
		embeds:   ctx.batch.SourceEmbeds(),
		baseline: ctx.batch.SourceBaselineEmbeds(),
		encoder:  true,
	}}
	if ctx.attributeTarget {
		out = append(out, attrSide{
			embeds:   ctx.batch.TargetEmbeds(),
			baseline: ctx.batch.TargetBaselineEmbeds(),
			encoder:  false,
		})
	}
	return out
}

// setSideAttributions stores one side's attribution matrix on a step output.
// The primary side always lands in SourceAttributions; the optional
// encoder-decoder target side lands in TargetAttributions.
func setSideAttributions(out *data.FeatureAttributionStepOutput, sideIdx int, attrs [][]float32) {
	if sideIdx == 0 {
		out.SourceAttributions = attrs
	} else {
		out.TargetAttributions = attrs
	}
}

// anyActive reports whether at least one example participates in a step.
func anyActive(mask []int32) bool {
	for _, m := range mask {
		if m == 1 {
			return true
		}
	}
	return false
}

// padRow right-pads an attribution row with zeros to the given width.
func padRow(row []float32, width int) []float32 {
	if len(row) >= width {
		return row
	}
	out := make([]float32, width)
	copy(out, row)
	return out
}

// tokensRow pairs one example's token strings with its ids, honoring the mask.
func tokensRow(tokens [][]string, ids, mask *tensor.RawTensor, i int) []data.TokenWithID {
	if ids == nil {
		return nil
	}
	shape := ids.Shape()
	idData := ids.AsInt32()
	var maskData []int32
	if mask != nil {
		maskData = mask.AsInt32()
	}

	row := make([]data.TokenWithID, 0, shape[1])
	for j := 0; j < shape[1]; j++ {
		idx := i*shape[1] + j
		if maskData != nil && maskData[idx] == 0 {
			continue
		}
		tok := ""
		if i < len(tokens) && j < len(tokens[i]) {
			tok = tokens[i][j]
		}
		row = append(row, data.TokenWithID{Token: tok, ID: idData[idx]})
	}
	return row
}

// newAttrRows allocates a [batch][positions] score matrix.
func newAttrRows(batch, positions int) [][]float32 {
	rows := make([][]float32, batch)
	for i := range rows {
		rows[i] = make([]float32, positions)
	}
	return rows
}

// replacePosition clones [batch, seq, dim] embeddings with position j of
// every example replaced by its baseline row.
func replacePosition(embeds, baseline *tensor.RawTensor, j int) *tensor.RawTensor {
	out := embeds.Clone()
	shape := embeds.Shape()
	seq, dim := shape[1], shape[2]
	dst := out.AsFloat32()
	src := baseline.AsFloat32()
	for i := 0; i < shape[0]; i++ {
		off := (i*seq + j) * dim
		copy(dst[off:off+dim], src[off:off+dim])
	}
	return out
}

// nudgePosition clones target embeddings with position j of every example
// shifted by scale times the input-minus-baseline direction at that
// position. target and input may differ (interpolation points).
func nudgePosition(target, input, baseline *tensor.RawTensor, j int, scale float32) *tensor.RawTensor {
	out := target.Clone()
	shape := target.Shape()
	seq, dim := shape[1], shape[2]
	dst := out.AsFloat32()
	x := input.AsFloat32()
	b := baseline.AsFloat32()
	for i := 0; i < shape[0]; i++ {
		off := (i*seq + j) * dim
		for d := 0; d < dim; d++ {
			dst[off+d] += scale * (x[off+d] - b[off+d])
		}
	}
	return out
}

// interpolate builds baseline + alpha * (input - baseline) element-wise.
func interpolate(embeds, baseline *tensor.RawTensor, alpha float32) *tensor.RawTensor {
	out := embeds.Clone()
	dst := out.AsFloat32()
	b := baseline.AsFloat32()
	for i := range dst {
		dst[i] = b[i] + alpha*(dst[i]-b[i])
	}
	return out
}
