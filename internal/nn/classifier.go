package nn

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/ChizhovVadim/tfplus/internal/ml"
	"github.com/ChizhovVadim/tfplus/internal/options"
)

const ClassifierName = "classifier"

func init() {
	options.Add("inp_depth", options.KindInt, 3)
	options.Add("inp_size", options.KindInts, []int{32, 32})
	options.Add("layers", options.KindInts, []int{256})
	options.Add("padding", options.KindInt, 4)
	options.Add("learn_rate", options.KindFloat, 0.1)
	options.Add("learn_rate_decay", options.KindFloat, 0.1)
	options.Add("steps_per_lr_decay", options.KindInt, 32000)
	options.Add("momentum", options.KindFloat, 0.9)
	options.Add("wd", options.KindFloat, 1e-4)
	options.Add("num_classes", options.KindInt, 10)

	models.MustRegister(ClassifierName, func(cfg Config) (Model, error) {
		return NewClassifierModel(cfg), nil
	})
}

var classifierOutputs = map[string]bool{
	"loss": true, "acc": true, "learn_rate": true, "step": true,
	"train_step": true, "x_trans": true, "y_out": true,
}

// ClassifierModel is a dense softmax classifier over flattened images:
// ReLU hidden layers, cross entropy with L2 weight decay and momentum SGD
// with a staircase learning rate decay.
type ClassifierModel struct {
	ModelBase
	seed        int64
	concurrency int

	mu          sync.Mutex
	built       bool
	rnd         *rand.Rand
	transform   ImageRandomTransform
	inputShape  [3]int
	numClasses  int
	learnRate   float64
	decay       float64
	decaySteps  int
	momentum    float64
	weightDecay float64
	threads     []*classifierThread
}

type classifierThread struct {
	input  []Neuron
	layers []*Layer
	logits []float64
	probs  []float64
	target []float64
	delta  []float64
	cost   ml.CrossEntropyCost
}

func NewClassifierModel(cfg Config) *ClassifierModel {
	cfg = cfg.withDefaults()
	var name = cfg.Name
	if name == "" {
		name = ClassifierName
	}
	var m = &ClassifierModel{
		seed:        cfg.Seed,
		concurrency: cfg.Concurrency,
	}
	m.InitBase(name, cfg.Logger)
	for _, key := range []string{"inp_depth", "inp_size", "layers", "padding",
		"learn_rate", "learn_rate_decay", "steps_per_lr_decay", "momentum", "wd",
		"num_classes"} {
		m.RegisterOption(key)
	}
	if cfg.Options != nil {
		m.SetOptions(cfg.Options)
	}
	return m
}

func (m *ClassifierModel) Build() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var opt, err = m.Options()
	if err != nil {
		return err
	}
	var size = opt.Ints("inp_size")
	if len(size) != 2 || size[0] <= 0 || size[1] <= 0 {
		return fmt.Errorf("%v: inp_size must be [height, width], got %v", m.Name(), size)
	}
	m.inputShape = [3]int{size[0], size[1], opt.Int("inp_depth")}
	m.numClasses = opt.Int("num_classes")
	m.decaySteps = opt.Int("steps_per_lr_decay")
	if m.inputShape[2] <= 0 || m.numClasses <= 1 || m.decaySteps <= 0 {
		return fmt.Errorf("%v: bad options inp_depth=%v num_classes=%v steps_per_lr_decay=%v",
			m.Name(), m.inputShape[2], m.numClasses, m.decaySteps)
	}
	if opt.Int("padding") < 0 {
		return fmt.Errorf("%v: padding must not be negative, got %v", m.Name(), opt.Int("padding"))
	}
	m.learnRate = opt.Float("learn_rate")
	m.decay = opt.Float("learn_rate_decay")
	m.momentum = opt.Float("momentum")
	m.weightDecay = opt.Float("wd")
	m.transform = ImageRandomTransform{Padding: opt.Int("padding"), RndHFlip: true}
	m.rnd = rand.New(rand.NewSource(m.seed))

	var inputSize = m.inputShape[0] * m.inputShape[1] * m.inputShape[2]
	var layers []*Layer
	var prev = inputSize
	for _, hidden := range opt.Ints("layers") {
		if hidden <= 0 {
			return fmt.Errorf("%v: bad hidden layer size %v", m.Name(), hidden)
		}
		layers = append(layers, NewLayer(prev, hidden, &ml.ReLuActivation{}).InitWeightsReLU(m.rnd))
		prev = hidden
	}
	layers = append(layers, NewLayer(prev, m.numClasses, &ml.IdentityActivation{}).InitWeightsSoftmax(m.rnd))

	m.threads = make([]*classifierThread, m.concurrency)
	for i := range m.threads {
		var threadLayers = layers
		if i > 0 {
			threadLayers = make([]*Layer, len(layers))
			for j, l := range layers {
				threadLayers[j] = l.ThreadCopy()
			}
		}
		m.threads[i] = &classifierThread{
			input:  make([]Neuron, inputSize),
			layers: threadLayers,
			logits: make([]float64, m.numClasses),
			probs:  make([]float64, m.numClasses),
			target: make([]float64, m.numClasses),
			delta:  make([]float64, m.numClasses),
		}
	}
	m.built = true
	m.logger.Info("model built", "input", m.inputShape, "hidden", opt.Ints("layers"),
		"classes", m.numClasses, "gpu", m.GPU())
	return nil
}

// LearnRate is learn_rate * learn_rate_decay^floor(step/steps_per_lr_decay).
func (m *ClassifierModel) LearnRate(step int) float64 {
	return m.learnRate * math.Pow(m.decay, float64(step/m.decaySteps))
}

func (m *ClassifierModel) SaveVarDict() map[string]*ml.Matrix {
	m.mu.Lock()
	defer m.mu.Unlock()
	var vars = make(map[string]*ml.Matrix)
	if !m.built {
		return vars
	}
	var mlp = make(map[string]*ml.Matrix)
	for i, l := range m.threads[0].layers {
		mlp[fmt.Sprintf("layer_%d/w", i)] = l.weights
		mlp[fmt.Sprintf("layer_%d/b", i)] = l.biases
	}
	AddPrefixTo("mlp", mlp, vars)
	return vars
}

func (m *ClassifierModel) Run(ctx context.Context, outputs []string, batch ml.Batch, phaseTrain bool) (ml.Results, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.built {
		return nil, fmt.Errorf("%v: model is not built", m.Name())
	}
	var want = make(map[string]bool, len(outputs))
	for _, name := range outputs {
		if !classifierOutputs[name] {
			return nil, fmt.Errorf("%w %q", ErrUnknownOutput, name)
		}
		want[name] = true
	}

	var x = batch["x"]
	if x == nil || x.Rank() != 4 || x.Shape[1] != m.inputShape[0] ||
		x.Shape[2] != m.inputShape[1] || x.Shape[3] != m.inputShape[2] {
		var shape []int
		if x != nil {
			shape = x.Shape
		}
		return nil, fmt.Errorf("%v: input x must be [B,%v,%v,%v], got %v",
			m.Name(), m.inputShape[0], m.inputShape[1], m.inputShape[2], shape)
	}
	var xTrans = x
	if phaseTrain {
		var err error
		if xTrans, err = m.transform.Apply(m.rnd, x); err != nil {
			return nil, err
		}
	}

	var step = m.GlobalStep()
	var learnRate = m.LearnRate(step)
	var results = ml.Results{}
	if want["step"] {
		results["step"] = step
	}
	if want["learn_rate"] {
		results["learn_rate"] = learnRate
	}
	if want["x_trans"] {
		results["x_trans"] = xTrans
	}

	var train = want["train_step"] && phaseTrain
	var needLabels = want["loss"] || want["acc"] || train
	if !needLabels && !want["y_out"] {
		return results, nil
	}
	var y = batch["y_gt"]
	if needLabels && (y == nil || y.Rank() != 2 || y.Shape[0] != x.Shape[0] || y.Shape[1] != m.numClasses) {
		return nil, fmt.Errorf("%v: labels y_gt must be [%v,%v]", m.Name(), x.Shape[0], m.numClasses)
	}

	var yOut = ml.NewTensor(x.Shape[0], m.numClasses)
	var cost, correct = m.evaluate(xTrans, y, yOut, train)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var batchSize = float64(x.Shape[0])
	if want["loss"] {
		results["loss"] = cost/batchSize + 0.5*m.weightDecay*m.squaredWeights()
	}
	if want["acc"] {
		results["acc"] = float64(correct) / batchSize
	}
	if want["y_out"] {
		results["y_out"] = yOut
	}
	if train {
		m.applyGradients(&ml.Hyperparameters{
			LearningRate: learnRate,
			Momentum:     m.momentum,
			WeightDecay:  m.weightDecay,
			Scale:        1 / batchSize,
		})
		m.SetGlobalStep(step + 1)
		results["train_step"] = step + 1
	}
	return results, nil
}

// evaluate runs the forward pass over the batch on all thread copies,
// accumulating gradients when train is set.
func (m *ClassifierModel) evaluate(x, y, yOut *ml.Tensor, train bool) (float64, int) {
	var size = x.Shape[0]
	var index int32 = -1
	var wg = &sync.WaitGroup{}
	var mu = &sync.Mutex{}
	var totalCost float64
	var totalCorrect int
	for _, t := range m.threads {
		wg.Add(1)
		go func(t *classifierThread) {
			defer wg.Done()
			var localCost float64
			var localCorrect int
			for {
				var i = int(atomic.AddInt32(&index, 1))
				if i >= size {
					break
				}
				t.forward(x.Item(i).Data)
				var out = yOut.Item(i).Data
				for k, p := range t.probs {
					out[k] = float32(p)
				}
				if y == nil {
					continue
				}
				var label = y.Item(i).Data
				for k, v := range label {
					t.target[k] = float64(v)
				}
				localCost += t.cost.Cost(t.probs, t.target)
				if ml.ArgMax(t.probs) == ml.ArgMax32(label) {
					localCorrect++
				}
				if train {
					t.backward()
				}
			}
			mu.Lock()
			totalCost += localCost
			totalCorrect += localCorrect
			mu.Unlock()
		}(t)
	}
	wg.Wait()
	return totalCost, totalCorrect
}

func (m *ClassifierModel) applyGradients(hp *ml.Hyperparameters) {
	var main = m.threads[0]
	for _, t := range m.threads[1:] {
		for j, l := range t.layers {
			l.AddGradients(main.layers[j])
		}
	}
	for _, l := range main.layers {
		l.ApplyGradients(hp)
	}
}

func (m *ClassifierModel) squaredWeights() float64 {
	var sum float64
	for _, l := range m.threads[0].layers {
		sum += l.SquaredWeights()
	}
	return sum
}

func (t *classifierThread) forward(x []float32) {
	for i, v := range x {
		t.input[i].Activation = float64(v)
	}
	var input = t.input
	for _, l := range t.layers {
		l.Forward(input)
		input = l.outputs
	}
	for i, n := range input {
		t.logits[i] = n.Activation
	}
	ml.Softmax(t.logits, t.probs)
}

func (t *classifierThread) backward() {
	t.cost.CostPrime(t.probs, t.target, t.delta)
	var last = t.layers[len(t.layers)-1]
	for i := range last.outputs {
		last.outputs[i].Error = t.delta[i]
	}
	for i := len(t.layers) - 1; i >= 0; i-- {
		if i > 0 {
			t.layers[i].Backward(t.layers[i-1].outputs, true)
		} else {
			t.layers[i].Backward(t.input, false)
		}
	}
}
