package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Bots-Avatar/inseq/internal/data"
	"github.com/Bots-Avatar/inseq/internal/generate"
	"github.com/Bots-Avatar/inseq/internal/logger"
	"github.com/Bots-Avatar/inseq/internal/stepscores"
	"github.com/Bots-Avatar/inseq/internal/tensor"
)

// DefaultAttributedFn is the step function attribution explains when no
// other function is configured.
const DefaultAttributedFn = stepscores.Probability

// AttributionModel couples a model adapter with a bound attribution method
// and drives the full attribution workflow: validation, generation, method
// dispatch and output merging.
type AttributionModel struct {
	adapter ModelAdapter
	log     logger.Logger

	device tensor.Device

	method       FeatureAttribution
	methodConfig MethodConfig

	attributedFn string
}

// Option configures an AttributionModel during construction.
type Option func(*options)

type options struct {
	device       string
	method       string
	methodConfig MethodConfig
	attributedFn string
	log          logger.Logger
}

// WithDevice selects the execution device by name.
func WithDevice(name string) Option {
	return func(o *options) { o.device = name }
}

// WithMethod binds a default attribution method at load time.
func WithMethod(name string) Option {
	return func(o *options) { o.method = name }
}

// WithMethodConfig sets the tuning knobs used when binding methods.
func WithMethodConfig(cfg MethodConfig) Option {
	return func(o *options) { o.methodConfig = cfg }
}

// WithAttributedFn sets the default attributed step function.
func WithAttributedFn(name string) Option {
	return func(o *options) { o.attributedFn = name }
}

// WithLogger sets the logger. Defaults to the package default logger.
func WithLogger(log logger.Logger) Option {
	return func(o *options) { o.log = log }
}

// NewAttributionModel wraps an adapter and runs the setup sequence: device
// placement, evaluation mode and optional default method binding.
func NewAttributionModel(adapter ModelAdapter, opts ...Option) (*AttributionModel, error) {
	o := &options{attributedFn: DefaultAttributedFn, log: logger.Default()}
	for _, opt := range opts {
		opt(o)
	}

	m := &AttributionModel{
		adapter:      adapter,
		log:          o.log,
		device:       tensor.CPU,
		methodConfig: o.methodConfig,
	}

	if o.device != "" {
		if err := m.SetDevice(o.device); err != nil {
			return nil, err
		}
	}
	if sw, ok := adapter.(EvalSwitcher); ok {
		sw.SetEval()
	}
	if err := m.SetDefaultAttributedFn(o.attributedFn); err != nil {
		return nil, err
	}
	if o.method != "" {
		method, err := LoadMethod(o.method, m, o.methodConfig)
		if err != nil {
			return nil, err
		}
		m.method = method
	}
	return m, nil
}

// Adapter returns the underlying model adapter.
func (m *AttributionModel) Adapter() ModelAdapter { return m.adapter }

// Logger returns the model's logger.
func (m *AttributionModel) Logger() logger.Logger { return m.log }

// ModelName returns the wrapped model's identifier.
func (m *AttributionModel) ModelName() string { return m.adapter.ModelName() }

// IsEncoderDecoder reports the wrapped architecture.
func (m *AttributionModel) IsEncoderDecoder() bool { return m.adapter.IsEncoderDecoder() }

// Device returns the current execution device name.
func (m *AttributionModel) Device() string { return m.device.String() }

// MethodName returns the bound default method's identifier, or "".
func (m *AttributionModel) MethodName() string {
	if m.method == nil {
		return ""
	}
	return m.method.MethodName()
}

// AttributedFnName returns the default attributed function identifier.
func (m *AttributionModel) AttributedFnName() string { return m.attributedFn }

// SetDevice changes the execution device. The name is validated before any
// state changes: an invalid name leaves both the recorded device and the
// model placement untouched.
func (m *AttributionModel) SetDevice(name string) error {
	device, err := tensor.ParseDevice(name)
	if err != nil {
		return err
	}
	return m.setDevice(device)
}

func (m *AttributionModel) setDevice(device tensor.Device) error {
	if mover, ok := m.adapter.(DeviceMover); ok {
		if err := mover.MoveTo(device); err != nil {
			return fmt.Errorf("move model to %s: %w", device, err)
		}
	}
	m.device = device
	return nil
}

// SetDefaultAttributedFn validates and records the default step function
// attribution explains.
func (m *AttributionModel) SetDefaultAttributedFn(name string) error {
	if _, err := stepscores.Get(name); err != nil {
		return err
	}
	m.attributedFn = name
	return nil
}

// Info returns identifying metadata for the loaded model.
func (m *AttributionModel) Info() map[string]any {
	return map[string]any{
		data.InfoModelName:         m.adapter.ModelName(),
		data.InfoAttributionMethod: m.MethodName(),
		"device":                   m.device.String(),
		"encoder_decoder":          m.adapter.IsEncoderDecoder(),
	}
}

// Embed encodes texts and returns their [batch, seq, dim] embeddings.
func (m *AttributionModel) Embed(texts []string, asTargets bool) (*tensor.RawTensor, error) {
	enc, err := m.adapter.Encode(texts, asTargets, false, false)
	if err != nil {
		return nil, err
	}
	return m.adapter.EmbedIDs(enc.InputIDs, asTargets)
}

// TokenizeWithIDs tokenizes one text into token/id pairs.
func (m *AttributionModel) TokenizeWithIDs(text string) ([]data.TokenWithID, error) {
	enc, err := m.adapter.Encode([]string{text}, false, false, false)
	if err != nil {
		return nil, err
	}
	ids := unpaddedRows(enc)[0]
	out := make([]data.TokenWithID, len(ids))
	tokens := m.adapter.ConvertIDsToTokens(ids, false)
	for i, id := range ids {
		out[i] = data.TokenWithID{Token: tokens[i], ID: id}
	}
	return out, nil
}

// AttributeOptions configures one attribution run. The zero value requests
// generation with defaults, attribution with the model's bound method and
// the default attributed function.
type AttributeOptions struct {
	// GeneratedTexts forces the attributed targets instead of generating
	// them (constrained decoding). Must parallel the input texts.
	GeneratedTexts []string

	// Method selects the attribution method for this call. Empty uses the
	// model's bound default.
	Method string

	// OverrideDefaultMethod rebinds the model's default method to Method
	// instead of using it one-off.
	OverrideDefaultMethod bool

	// MethodConfig tunes the method instantiated for this call.
	MethodConfig MethodConfig

	// AttributedFn names the step function attribution explains. Empty
	// uses the model default. AttributedFnFunc overrides both with a
	// custom function.
	AttributedFn     string
	AttributedFnFunc stepscores.StepFunction

	// AttrPosStart and AttrPosEnd bound the attributed generation steps.
	AttrPosStart int
	AttrPosEnd   int

	// AttributeTarget also attributes the target prefix. Encoder-decoder
	// models only; silently disabled elsewhere with a warning.
	AttributeTarget bool

	// GenerateFromTargetPrefix treats GeneratedTexts as decoder prefixes
	// to continue from. Encoder-decoder models only; silently disabled
	// elsewhere with a warning.
	GenerateFromTargetPrefix bool

	// StepScores names step functions computed alongside attribution.
	StepScores []string

	// StepScoreArgs is routed to step functions.
	StepScoreArgs map[string]any

	// OutputStepAttributions keeps raw per-step outputs in the result.
	OutputStepAttributions bool

	// IncludeEOSBaseline includes EOS positions in baseline replacement.
	IncludeEOSBaseline bool

	// BatchSize splits attribution into batches of at most this many
	// examples. Zero means a single batch.
	BatchSize int

	// ShowProgress displays a progress bar over attributed steps.
	ShowProgress bool

	// Generation configures text generation when targets are not forced.
	Generation *generate.GenerateConfig

	// Device temporarily overrides the execution device for this call.
	// The previous device is restored afterwards regardless of outcome.
	Device string
}

// Attribute runs feature attribution over the input texts and returns the
// merged output with run metadata attached.
func (m *AttributionModel) Attribute(inputTexts []string, opts AttributeOptions) (*data.FeatureAttributionOutput, error) {
	if len(inputTexts) == 0 {
		return nil, &ValidationError{Msg: "at least one input text must be provided to perform attribution"}
	}

	attributeTarget := opts.AttributeTarget
	generateFromTargetPrefix := opts.GenerateFromTargetPrefix
	if attributeTarget && !m.adapter.IsEncoderDecoder() {
		m.log.Warn("attribute_target is an encoder-decoder feature, ignoring it")
		attributeTarget = false
	}
	if generateFromTargetPrefix && !m.adapter.IsEncoderDecoder() {
		m.log.Warn("generate_from_target_prefix is an encoder-decoder feature, ignoring it")
		generateFromTargetPrefix = false
	}

	if opts.Device != "" {
		original := m.device
		if err := m.SetDevice(opts.Device); err != nil {
			return nil, err
		}
		defer func() {
			if err := m.setDevice(original); err != nil {
				m.log.Error("failed to restore device", "device", original.String(), "error", err)
			}
		}()
	}

	generatedTexts := append([]string(nil), opts.GeneratedTexts...)
	hasGeneratedTexts := len(generatedTexts) > 0
	if hasGeneratedTexts && len(generatedTexts) != len(inputTexts) {
		return nil, &LengthMismatchError{Inputs: len(inputTexts), Targets: len(generatedTexts)}
	}

	genConfig := generate.DefaultGenerateConfig()
	if opts.Generation != nil {
		genConfig = *opts.Generation
	}

	generationRan := false
	if !hasGeneratedTexts || generateFromTargetPrefix {
		encoded, err := m.adapter.Encode(inputTexts, false, false, false)
		if err != nil {
			return nil, err
		}
		if generateFromTargetPrefix {
			prefixEnc, err := m.adapter.Encode(generatedTexts, false, false, false)
			if err != nil {
				return nil, err
			}
			genConfig.DecoderInputIDs = unpaddedRows(prefixEnc)
		}
		texts, _, err := m.adapter.Generate(encoded, false, genConfig)
		if err != nil {
			return nil, fmt.Errorf("generation failed: %w", err)
		}
		generatedTexts = texts
		generationRan = true
	} else if opts.Generation != nil {
		m.log.Warn("generation options ignored: targets are forced by constrained decoding")
	}

	method, err := m.resolveMethod(opts.Method, opts.OverrideDefaultMethod, opts.MethodConfig)
	if err != nil {
		return nil, err
	}
	attributedFn, attributedFnName, err := m.resolveAttributedFn(opts.AttributedFn, opts.AttributedFnFunc)
	if err != nil {
		return nil, err
	}

	batchSize := opts.BatchSize
	if !m.adapter.IsEncoderDecoder() {
		for i, text := range inputTexts {
			if !strings.HasPrefix(generatedTexts[i], text) {
				return nil, &PreconditionError{
					Msg: fmt.Sprintf("forced generations with decoder-only models must start with the input texts (example %d)", i),
				}
			}
		}
		if hasGeneratedTexts && len(inputTexts) > 1 {
			m.log.Info("forced decoder-only targets of ragged lengths, attributing one example at a time")
			batchSize = 1
		}
		if len(inputTexts) > 1 && (opts.AttrPosStart > 0 || opts.AttrPosEnd > 0) {
			m.log.Info("custom attribution spans over multiple examples, attributing one example at a time")
			batchSize = 1
		}
		if batchSize != 1 && len(inputTexts) > 1 {
			ragged, err := m.raggedPrompts(inputTexts)
			if err != nil {
				return nil, err
			}
			if ragged {
				m.log.Info("decoder-only prompts of unequal lengths, attributing one example at a time")
				batchSize = 1
			}
		}
	}
	if method.MethodName() == "lime" {
		m.log.Info("lime samples one example at a time, setting batch size to 1")
		batchSize = 1
	}

	outputs, err := method.PrepareAndAttribute(AttributionParams{
		InputTexts:             inputTexts,
		GeneratedTexts:         generatedTexts,
		BatchSize:              batchSize,
		AttrPosStart:           opts.AttrPosStart,
		AttrPosEnd:             opts.AttrPosEnd,
		AttributeTarget:        attributeTarget,
		OutputStepAttributions: opts.OutputStepAttributions,
		IncludeEOSBaseline:     opts.IncludeEOSBaseline,
		ShowProgress:           opts.ShowProgress,
		AttributedFn:           attributedFn,
		StepScores:             opts.StepScores,
		StepScoreArgs:          opts.StepScoreArgs,
	})
	if err != nil {
		return nil, err
	}

	out, err := data.MergeAttributions(outputs)
	if err != nil {
		return nil, err
	}

	out.Info[data.InfoRunID] = uuid.NewString()
	out.Info[data.InfoModelName] = m.adapter.ModelName()
	out.Info[data.InfoAttributionMethod] = method.MethodName()
	out.Info[data.InfoAttributedFn] = attributedFnName
	out.Info[data.InfoInputTexts] = inputTexts
	out.Info[data.InfoGeneratedTexts] = generatedTexts
	out.Info[data.InfoConstrainedDecoding] = hasGeneratedTexts
	out.Info[data.InfoGenerateFromTargetPrefix] = generateFromTargetPrefix
	out.Info[data.InfoAttributeTarget] = attributeTarget
	if generationRan {
		out.Info[data.InfoGenerationArgs] = generationInfo(genConfig)
	}
	return out, nil
}

// raggedPrompts reports whether the input texts encode to different prompt
// lengths. Attribution of a decoder-only batch starts after its longest
// prompt, so mixing prompt lengths in one batch would skip the shorter
// examples' first generated tokens.
func (m *AttributionModel) raggedPrompts(texts []string) (bool, error) {
	enc, err := m.adapter.Encode(texts, false, false, false)
	if err != nil {
		return false, err
	}
	rows := unpaddedRows(enc)
	for _, row := range rows[1:] {
		if len(row) != len(rows[0]) {
			return true, nil
		}
	}
	return false, nil
}

// resolveMethod picks the attribution method for a call. A named method
// unhooks the current default before loading; it becomes the new default
// only when no default exists or the override flag is set.
func (m *AttributionModel) resolveMethod(name string, override bool, cfg MethodConfig) (FeatureAttribution, error) {
	if name == "" {
		if m.method == nil {
			return nil, ErrMissingAttributionMethod
		}
		return m.method, nil
	}

	if m.method != nil {
		if err := m.method.Unhook(); err != nil {
			return nil, fmt.Errorf("unhook %s: %w", m.method.MethodName(), err)
		}
	}

	if cfg == (MethodConfig{}) {
		cfg = m.methodConfig
	}
	method, err := LoadMethod(name, m, cfg)
	if err != nil {
		return nil, err
	}
	if override || m.method == nil {
		m.method = method
	}
	return method, nil
}

// resolveAttributedFn picks the step function attribution explains. A
// custom function wins over names; an empty name falls back to the model
// default.
func (m *AttributionModel) resolveAttributedFn(name string, fn stepscores.StepFunction) (stepscores.StepFunction, string, error) {
	if fn != nil {
		return fn, "custom", nil
	}
	if name == "" {
		name = m.attributedFn
	}
	resolved, err := stepscores.Get(name)
	if err != nil {
		return nil, "", err
	}
	return resolved, name, nil
}

// generationInfo summarizes the generation configuration for run metadata.
func generationInfo(cfg generate.GenerateConfig) map[string]any {
	return map[string]any{
		"max_new_tokens": cfg.MaxNewTokens,
		"temperature":    cfg.Sampling.Temperature,
		"top_k":          cfg.Sampling.TopK,
		"top_p":          cfg.Sampling.TopP,
	}
}
