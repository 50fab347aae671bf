// Package generate provides the generation backend used by attribution
// models: sampling strategies and decoding loops for autoregressive and
// encoder-decoder language models.
package generate

import (
	"math"
	"math/rand"
	"sort"
)

// SamplingConfig configures the sampling strategy for text generation.
type SamplingConfig struct {
	// Temperature controls randomness. 0 = greedy, 1 = normal, >1 = more random.
	Temperature float32

	// TopK limits sampling to top K tokens. 0 = disabled.
	TopK int

	// TopP (nucleus sampling) limits to tokens with cumulative prob < P. 1.0 = disabled.
	TopP float32

	// RepeatPenalty penalizes repeated tokens. 1.0 = no penalty.
	RepeatPenalty float32

	// RepeatWindow is the number of recent tokens to consider. 0 = all.
	RepeatWindow int

	// Seed for reproducibility. -1 = random.
	Seed int64
}

// DefaultSamplingConfig returns greedy decoding, the right default for
// attribution: constrained targets should match what the model would pick.
func DefaultSamplingConfig() SamplingConfig {
	return SamplingConfig{
		Temperature:   0,
		TopK:          0,
		TopP:          1.0,
		RepeatPenalty: 1.0,
		RepeatWindow:  64,
		Seed:          -1,
	}
}

// Sampler samples tokens from logits using configurable strategies.
type Sampler struct {
	config SamplingConfig
	rng    *rand.Rand
}

// NewSampler creates a new sampler with the given configuration.
func NewSampler(config SamplingConfig) *Sampler {
	var rng *rand.Rand
	if config.Seed >= 0 {
		rng = rand.New(rand.NewSource(config.Seed)) //nolint:gosec // Intentional deterministic seed for reproducibility
	} else {
		rng = rand.New(rand.NewSource(rand.Int63())) //nolint:gosec // User requested random seed
	}

	return &Sampler{
		config: config,
		rng:    rng,
	}
}

// Sample returns the next token ID from logits.
//
// The sampling process:
//  1. Apply repetition penalty
//  2. Apply temperature scaling (argmax if temperature = 0)
//  3. Apply Top-K filtering
//  4. Apply Top-P (nucleus) filtering
//  5. Sample from the resulting distribution
func (s *Sampler) Sample(logits []float32, previousTokens []int32) int32 {
	// Make a copy to avoid modifying the original
	logits = append([]float32{}, logits...)

	if s.config.RepeatPenalty != 1.0 && len(previousTokens) > 0 {
		s.applyRepetitionPenalty(logits, previousTokens)
	}

	if s.config.Temperature == 0 {
		return argmax(logits)
	}

	if s.config.Temperature != 1.0 {
		for i := range logits {
			logits[i] /= s.config.Temperature
		}
	}

	if s.config.TopK > 0 && s.config.TopK < len(logits) {
		logits = s.topKFilter(logits)
	}

	if s.config.TopP < 1.0 && s.config.TopP > 0 {
		logits = s.topPFilter(logits)
	}

	return s.multinomial(softmax(logits))
}

// argmax returns the index of the maximum value.
func argmax(logits []float32) int32 {
	maxIdx := 0
	maxVal := logits[0]
	for i, v := range logits[1:] {
		if v > maxVal {
			maxVal = v
			maxIdx = i + 1
		}
	}
	return int32(maxIdx) //nolint:gosec // vocab size is bounded by model architecture
}

// applyRepetitionPenalty penalizes tokens that appeared recently.
func (s *Sampler) applyRepetitionPenalty(logits []float32, prev []int32) {
	penalty := s.config.RepeatPenalty
	window := s.config.RepeatWindow

	recent := prev
	if window > 0 && len(prev) > window {
		recent = prev[len(prev)-window:]
	}

	seen := make(map[int32]bool)
	for _, tok := range recent {
		seen[tok] = true
	}

	for tok := range seen {
		if int(tok) < len(logits) {
			if logits[tok] > 0 {
				logits[tok] /= penalty
			} else {
				logits[tok] *= penalty
			}
		}
	}
}

// topKFilter keeps only top K logits, sets rest to -inf.
func (s *Sampler) topKFilter(logits []float32) []float32 {
	k := s.config.TopK
	if k >= len(logits) {
		return logits
	}

	sorted := append([]float32{}, logits...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })
	threshold := sorted[k-1]

	for i := range logits {
		if logits[i] < threshold {
			logits[i] = float32(math.Inf(-1))
		}
	}

	return logits
}

// topPFilter implements nucleus sampling.
func (s *Sampler) topPFilter(logits []float32) []float32 {
	p := s.config.TopP

	probs := softmax(logits)

	type indexedProb struct {
		idx  int
		prob float32
	}
	indexed := make([]indexedProb, len(probs))
	for i, prob := range probs {
		indexed[i] = indexedProb{i, prob}
	}
	sort.Slice(indexed, func(i, j int) bool { return indexed[i].prob > indexed[j].prob })

	cumSum := float32(0)
	cutoffIdx := len(indexed) - 1
	for i, ip := range indexed {
		cumSum += ip.prob
		if cumSum > p {
			cutoffIdx = i
			break
		}
	}

	// Always keep at least one token
	if cutoffIdx == 0 {
		cutoffIdx = 1
	}

	keep := make(map[int]bool)
	for i := 0; i <= cutoffIdx; i++ {
		keep[indexed[i].idx] = true
	}

	for i := range logits {
		if !keep[i] {
			logits[i] = float32(math.Inf(-1))
		}
	}

	return logits
}

// multinomial samples from a categorical distribution.
func (s *Sampler) multinomial(probs []float32) int32 {
	r := s.rng.Float32()

	cumSum := float32(0)
	for i, p := range probs {
		cumSum += p
		if r < cumSum {
			return int32(i) //nolint:gosec // vocab size is bounded by model architecture
		}
	}

	// Return last token if rounding errors
	return int32(len(probs) - 1) //nolint:gosec // vocab size is bounded by model architecture
}

// softmax converts logits to probabilities.
func softmax(logits []float32) []float32 {
	maxVal := logits[0]
	for _, v := range logits[1:] {
		if v > maxVal {
			maxVal = v
		}
	}

	probs := make([]float32, len(logits))
	sum := float32(0)
	for i, v := range logits {
		if math.IsInf(float64(v), -1) {
			probs[i] = 0
		} else {
			probs[i] = float32(math.Exp(float64(v - maxVal)))
			sum += probs[i]
		}
	}

	if sum > 0 {
		for i := range probs {
			probs[i] /= sum
		}
	}

	return probs
}
