package ml

import "math"

const probEpsilon = 1e-12

// CrossEntropyCost is the categorical cross entropy of softmax outputs.
// CostPrime is taken with respect to the logits.
type CrossEntropyCost struct{}

func (*CrossEntropyCost) Cost(predicted, target []float64) float64 {
	var cost float64
	for i := range target {
		if target[i] != 0 {
			cost -= target[i] * math.Log(math.Max(predicted[i], probEpsilon))
		}
	}
	return cost
}

func (*CrossEntropyCost) CostPrime(predicted, target, delta []float64) {
	for i := range delta {
		delta[i] = predicted[i] - target[i]
	}
}

// ArgMax returns the index of the largest value, the first one on ties.
func ArgMax(data []float64) int {
	var best = 0
	for i := 1; i < len(data); i++ {
		if data[i] > data[best] {
			best = i
		}
	}
	return best
}

func ArgMax32(data []float32) int {
	var best = 0
	for i := 1; i < len(data); i++ {
		if data[i] > data[best] {
			best = i
		}
	}
	return best
}
