package stepscores

import (
	"fmt"
	"math"
)

// Built-in step function identifiers.
const (
	// Probability is the softmax probability of the target token. It is
	// the default attributed function of attribution models.
	Probability = "probability"

	// Entropy is the entropy of the model's next-token distribution.
	Entropy = "entropy"

	// CrossEntropy is the negative log-probability of the target token.
	CrossEntropy = "crossentropy"
)

func init() {
	Register(Probability, ProbabilityFn)
	Register(Entropy, EntropyFn)
	Register(CrossEntropy, CrossEntropyFn)
}

// ProbabilityFn returns the softmax probability of each example's target token.
func ProbabilityFn(args StepFunctionArgs) ([]float32, error) {
	probs, err := stepProbabilities(args)
	if err != nil {
		return nil, err
	}

	scores := make([]float32, len(args.TargetIDs))
	for i, id := range args.TargetIDs {
		scores[i] = probs[i][id]
	}
	return scores, nil
}

// EntropyFn returns the entropy of each example's next-token distribution in nats.
func EntropyFn(args StepFunctionArgs) ([]float32, error) {
	probs, err := stepProbabilities(args)
	if err != nil {
		return nil, err
	}

	scores := make([]float32, len(probs))
	for i, dist := range probs {
		var h float64
		for _, p := range dist {
			if p > 0 {
				h -= float64(p) * math.Log(float64(p))
			}
		}
		scores[i] = float32(h)
	}
	return scores, nil
}

// CrossEntropyFn returns the negative log-probability of each example's target token.
func CrossEntropyFn(args StepFunctionArgs) ([]float32, error) {
	probs, err := ProbabilityFn(args)
	if err != nil {
		return nil, err
	}

	for i, p := range probs {
		probs[i] = float32(-math.Log(math.Max(float64(p), 1e-12)))
	}
	return probs, nil
}

// stepProbabilities converts [batch, vocab] logits into per-example softmax
// distributions and validates target ids against the vocabulary.
func stepProbabilities(args StepFunctionArgs) ([][]float32, error) {
	if args.Logits == nil {
		return nil, fmt.Errorf("step function requires logits")
	}
	shape := args.Logits.Shape()
	if len(shape) != 2 {
		return nil, fmt.Errorf("step logits must be [batch, vocab], got shape %v", shape)
	}
	batch, vocab := shape[0], shape[1]
	if len(args.TargetIDs) != batch {
		return nil, fmt.Errorf("got %d target ids for batch of %d", len(args.TargetIDs), batch)
	}
	for _, id := range args.TargetIDs {
		if int(id) < 0 || int(id) >= vocab {
			return nil, fmt.Errorf("target id %d out of vocabulary range %d", id, vocab)
		}
	}

	data := args.Logits.AsFloat32()
	probs := make([][]float32, batch)
	for i := 0; i < batch; i++ {
		probs[i] = softmax(data[i*vocab : (i+1)*vocab])
	}
	return probs, nil
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
		probs[i] = float32(math.Exp(float64(v - maxVal)))
		sum += probs[i]
	}

	if sum > 0 {
		for i := range probs {
			probs[i] /= sum
		}
	}
	return probs
}
