package ml

import "math"

type IActivationFn interface {
	Sigma(x float64) float64
	SigmaPrime(x float64) float64
}

type IdentityActivation struct{}

func (*IdentityActivation) Sigma(x float64) float64      { return x }
func (*IdentityActivation) SigmaPrime(x float64) float64 { return 1 }

type ReLuActivation struct{}

func (*ReLuActivation) Sigma(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

func (*ReLuActivation) SigmaPrime(x float64) float64 {
	if x > 0 {
		return 1
	}
	return 0
}

// Softmax writes the normalized exponentials of logits into probs.
func Softmax(logits, probs []float64) {
	var max = math.Inf(-1)
	for _, x := range logits {
		if x > max {
			max = x
		}
	}
	var sum float64
	for i, x := range logits {
		probs[i] = math.Exp(x - max)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
}
