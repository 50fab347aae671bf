package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/Bots-Avatar/inseq"
	"github.com/Bots-Avatar/inseq/data"
	"github.com/Bots-Avatar/inseq/generate"
	"github.com/Bots-Avatar/inseq/internal/logger"
)

// runConfig mirrors the attribute flags so a whole run can be described in a
// YAML file. Flags set on the command line win over file values.
type runConfig struct {
	Texts        []string `yaml:"texts"`
	Targets      []string `yaml:"targets"`
	Method       string   `yaml:"method"`
	AttributedFn string   `yaml:"attributed_fn"`
	StepScores   []string `yaml:"step_scores"`
	Seed         int64    `yaml:"seed"`
	Device       string   `yaml:"device"`
	BatchSize    int      `yaml:"batch_size"`
	MaxNewTokens int      `yaml:"max_new_tokens"`
	NSteps       int      `yaml:"n_steps"`
	NSamples     int      `yaml:"n_samples"`
	AttrStart    int      `yaml:"attr_start"`
	AttrEnd      int      `yaml:"attr_end"`
}

func attributeCmd() *cli.Command {
	var (
		configPath   string
		method       string
		attributedFn string
		jsonPath     string
		seed         int64
		maxNewTokens int64
		batchSize    int64
		attrStart    int64
		attrEnd      int64
		nSteps       int64
		nSamples     int64
		device       string
		progress     bool
		keepSteps    bool
		logLevel     string
	)

	return &cli.Command{
		Name:  "attribute",
		Usage: "Attribute generated tokens to their context on the demo model",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "text",
				Aliases: []string{"t"},
				Usage:   "input text to attribute (repeatable)",
			},
			&cli.StringSliceFlag{
				Name:  "target",
				Usage: "forced generated text, parallel to --text (repeatable)",
			},
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to a YAML run config",
				Destination: &configPath,
			},
			&cli.StringFlag{
				Name:        "method",
				Aliases:     []string{"m"},
				Usage:       "attribution method (see `inseq methods`)",
				Value:       inseq.Occlusion,
				Destination: &method,
			},
			&cli.StringFlag{
				Name:        "attributed-fn",
				Usage:       "step function to attribute (see `inseq steps`)",
				Destination: &attributedFn,
			},
			&cli.StringSliceFlag{
				Name:  "step-score",
				Usage: "extra step function computed alongside attribution (repeatable)",
			},
			&cli.StringFlag{
				Name:        "json",
				Aliases:     []string{"o"},
				Usage:       "write the attribution output to this JSON file",
				Destination: &jsonPath,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "demo model weight seed",
				Value:       42,
				Destination: &seed,
			},
			&cli.Int64Flag{
				Name:        "max-new-tokens",
				Aliases:     []string{"n"},
				Usage:       "generation budget when no targets are forced",
				Value:       8,
				Destination: &maxNewTokens,
			},
			&cli.Int64Flag{
				Name:        "batch-size",
				Usage:       "attribution batch size (0 = single batch)",
				Destination: &batchSize,
			},
			&cli.Int64Flag{
				Name:        "start",
				Usage:       "first attributed generation step",
				Destination: &attrStart,
			},
			&cli.Int64Flag{
				Name:        "end",
				Usage:       "last attributed generation step (0 = all)",
				Destination: &attrEnd,
			},
			&cli.Int64Flag{
				Name:        "n-steps",
				Usage:       "interpolation steps for integrated_gradients",
				Destination: &nSteps,
			},
			&cli.Int64Flag{
				Name:        "n-samples",
				Usage:       "perturbation samples for lime",
				Destination: &nSamples,
			},
			&cli.StringFlag{
				Name:        "device",
				Usage:       "execution device (cpu, cuda, vulkan, metal, webgpu)",
				Destination: &device,
			},
			&cli.BoolFlag{
				Name:        "progress",
				Usage:       "show a progress bar over attributed steps",
				Destination: &progress,
			},
			&cli.BoolFlag{
				Name:        "keep-steps",
				Usage:       "keep raw per-step attributions in the output",
				Destination: &keepSteps,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error)",
				Value:       "warn",
				Destination: &logLevel,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg := runConfig{Seed: seed, MaxNewTokens: int(maxNewTokens), Method: method}
			if configPath != "" {
				raw, err := os.ReadFile(configPath)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: read config: %v", err), 1)
				}
				if err := yaml.Unmarshal(raw, &cfg); err != nil {
					return cli.Exit(fmt.Sprintf("error: parse config: %v", err), 1)
				}
			}

			// Flags set on the command line override the file.
			if texts := c.StringSlice("text"); len(texts) > 0 {
				cfg.Texts = texts
			}
			if targets := c.StringSlice("target"); len(targets) > 0 {
				cfg.Targets = targets
			}
			if scores := c.StringSlice("step-score"); len(scores) > 0 {
				cfg.StepScores = scores
			}
			if c.IsSet("method") || cfg.Method == "" {
				cfg.Method = method
			}
			if c.IsSet("attributed-fn") {
				cfg.AttributedFn = attributedFn
			}
			if c.IsSet("seed") {
				cfg.Seed = seed
			}
			if c.IsSet("device") {
				cfg.Device = device
			}
			if c.IsSet("batch-size") {
				cfg.BatchSize = int(batchSize)
			}
			if c.IsSet("max-new-tokens") {
				cfg.MaxNewTokens = int(maxNewTokens)
			}
			if c.IsSet("n-steps") {
				cfg.NSteps = int(nSteps)
			}
			if c.IsSet("n-samples") {
				cfg.NSamples = int(nSamples)
			}
			if c.IsSet("start") {
				cfg.AttrStart = int(attrStart)
			}
			if c.IsSet("end") {
				cfg.AttrEnd = int(attrEnd)
			}

			if len(cfg.Texts) == 0 {
				return cli.Exit("error: no input texts (use --text or a config file)", 1)
			}

			log := logger.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: logger.ParseLevel(logLevel),
			}))

			model, err := inseq.LoadDemoModel(cfg.Seed,
				inseq.WithMethod(cfg.Method),
				inseq.WithLogger(log),
			)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load model: %v", err), 1)
			}

			opts := inseq.AttributeOptions{
				GeneratedTexts: cfg.Targets,
				AttributedFn:   cfg.AttributedFn,
				StepScores:     cfg.StepScores,
				MethodConfig: inseq.MethodConfig{
					NSteps:   cfg.NSteps,
					NSamples: cfg.NSamples,
					Seed:     cfg.Seed,
				},
				AttrPosStart:           cfg.AttrStart,
				AttrPosEnd:             cfg.AttrEnd,
				BatchSize:              cfg.BatchSize,
				ShowProgress:           progress,
				OutputStepAttributions: keepSteps,
				Device:                 cfg.Device,
			}
			if cfg.MaxNewTokens > 0 {
				gcfg := generate.DefaultGenerateConfig()
				gcfg.MaxNewTokens = cfg.MaxNewTokens
				opts.Generation = &gcfg
			}

			out, err := model.Attribute(cfg.Texts, opts)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: attribute: %v", err), 1)
			}

			printOutput(out)

			if jsonPath != "" {
				if err := data.SaveFile(out, jsonPath); err != nil {
					return cli.Exit(fmt.Sprintf("error: write output: %v", err), 1)
				}
				fmt.Fprintf(os.Stderr, "wrote %s\n", jsonPath)
			}
			return nil
		},
	}
}

func printOutput(out *inseq.FeatureAttributionOutput) {
	fmt.Printf("model:  %s\n", out.InfoString(data.InfoModelName))
	fmt.Printf("method: %s (attributed fn: %s)\n",
		out.InfoString(data.InfoAttributionMethod), out.InfoString(data.InfoAttributedFn))

	generated := out.InfoStrings(data.InfoGeneratedTexts)
	for i, seq := range out.SequenceAttributions {
		fmt.Println()
		if i < len(generated) {
			fmt.Printf("[%d] %q\n", i, generated[i])
		}
		printSequence(seq)
	}
}

// printSequence renders one attribution matrix with source tokens as columns
// and attributed target tokens as rows.
func printSequence(seq *data.FeatureAttributionSequenceOutput) {
	header := make([]string, len(seq.Source))
	for j, tok := range seq.Source {
		header[j] = fmt.Sprintf("%10s", clipToken(tok.Token))
	}
	fmt.Printf("%12s %s\n", "", strings.Join(header, " "))

	for i, tok := range seq.Target {
		cells := make([]string, len(seq.SourceAttributions[i]))
		for j, score := range seq.SourceAttributions[i] {
			cells[j] = fmt.Sprintf("%10.4f", score)
		}
		fmt.Printf("%12s %s\n", clipToken(tok.Token), strings.Join(cells, " "))
	}

	for name, series := range seq.StepScores {
		cells := make([]string, len(series))
		for i, score := range series {
			cells[i] = fmt.Sprintf("%.4f", score)
		}
		fmt.Printf("%s: [%s]\n", name, strings.Join(cells, ", "))
	}
}

func clipToken(tok string) string {
	if len(tok) > 10 {
		return tok[:9] + "…"
	}
	return tok
}
