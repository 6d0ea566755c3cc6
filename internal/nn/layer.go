package nn

import (
	"math/rand"

	"github.com/ChizhovVadim/tfplus/internal/ml"
)

type Neuron struct {
	Activation float64
	Error      float64
	Prime      float64
}

// Layer is a fully connected layer. Thread copies share weights and keep
// their own outputs and gradients.
type Layer struct {
	activationFn ml.IActivationFn
	outputs      []Neuron
	weights      *ml.Matrix
	biases       *ml.Matrix
	wGradients   ml.Gradients
	bGradients   ml.Gradients
}

func NewLayer(inputSize, outputSize int, activationFn ml.IActivationFn) *Layer {
	var weights = ml.NewMatrix(outputSize, inputSize)
	var biases = ml.NewMatrix(outputSize, 1)
	return &Layer{
		activationFn: activationFn,
		outputs:      make([]Neuron, outputSize),
		weights:      &weights,
		biases:       &biases,
		wGradients:   ml.NewGradients(outputSize, inputSize),
		bGradients:   ml.NewGradients(outputSize, 1),
	}
}

func (l *Layer) ThreadCopy() *Layer {
	return &Layer{
		activationFn: l.activationFn,
		outputs:      make([]Neuron, len(l.outputs)),
		weights:      l.weights,
		biases:       l.biases,
		wGradients:   ml.NewGradients(l.wGradients.Rows, l.wGradients.Cols),
		bGradients:   ml.NewGradients(l.bGradients.Rows, l.bGradients.Cols),
	}
}

func (l *Layer) InitWeightsReLU(rnd *rand.Rand) *Layer {
	ml.InitUniform(rnd, l.weights.Data, 2.0/float64(l.weights.Cols))
	return l
}

func (l *Layer) InitWeightsSoftmax(rnd *rand.Rand) *Layer {
	var variance = 2.0 / float64(l.weights.Cols+l.weights.Rows)
	ml.InitUniform(rnd, l.weights.Data, variance)
	return l
}

func (l *Layer) Forward(input []Neuron) {
	for outputIndex := range l.outputs {
		var x = l.biases.Data[outputIndex]
		for inputIndex := range input {
			x += l.weights.Get(outputIndex, inputIndex) * input[inputIndex].Activation
		}
		var n = &l.outputs[outputIndex]
		n.Activation = l.activationFn.Sigma(x)
		n.Prime = l.activationFn.SigmaPrime(x)
	}
}

// Backward accumulates gradients from the output errors and, when
// propagate is set, writes the errors of the input neurons.
func (l *Layer) Backward(input []Neuron, propagate bool) {
	if propagate {
		for inputIndex := range input {
			input[inputIndex].Error = 0
		}
	}
	for outputIndex := range l.outputs {
		var n = &l.outputs[outputIndex]
		var x = n.Error * n.Prime
		if x == 0 {
			continue
		}
		l.bGradients.Add(outputIndex, 0, x)
		for inputIndex := range input {
			var inputValue = input[inputIndex].Activation
			if inputValue != 0 {
				l.wGradients.Add(outputIndex, inputIndex, x*inputValue)
			}
			if propagate {
				input[inputIndex].Error += l.weights.Get(outputIndex, inputIndex) * x
			}
		}
	}
}

func (l *Layer) AddGradients(main *Layer) {
	l.wGradients.AddTo(&main.wGradients)
	l.bGradients.AddTo(&main.bGradients)
}

// ApplyGradients updates the weights. Biases are not decayed.
func (l *Layer) ApplyGradients(hp *ml.Hyperparameters) {
	l.wGradients.Apply(l.weights, hp)
	var bias = *hp
	bias.WeightDecay = 0
	l.bGradients.Apply(l.biases, &bias)
}

// SquaredWeights is the sum of squared weights, for the L2 loss term.
func (l *Layer) SquaredWeights() float64 {
	var sum float64
	for _, w := range l.weights.Data {
		sum += w * w
	}
	return sum
}
