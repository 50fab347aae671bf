package data

import (
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
)

// Save writes the attribution output as JSON.
func (o *FeatureAttributionOutput) Save(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(o); err != nil {
		return fmt.Errorf("encode attribution output: %w", err)
	}
	return nil
}

// SaveFile writes the attribution output as JSON to a file.
func (o *FeatureAttributionOutput) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	return o.Save(f)
}

// LoadOutput reads an attribution output from JSON.
func LoadOutput(r io.Reader) (*FeatureAttributionOutput, error) {
	var out FeatureAttributionOutput
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode attribution output: %w", err)
	}
	if out.Info == nil {
		out.Info = make(map[string]any)
	}
	return &out, nil
}

// LoadOutputFile reads an attribution output from a JSON file.
func LoadOutputFile(path string) (*FeatureAttributionOutput, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open output file: %w", err)
	}
	defer f.Close()

	return LoadOutput(f)
}
