package ml

// Hyperparameters of a momentum optimizer step.
type Hyperparameters struct {
	LearningRate float64
	Momentum     float64
	WeightDecay  float64
	// Scale is applied to the accumulated gradient, usually 1/batch size.
	Scale float64
}

type Gradient struct {
	Value    float64
	Velocity float64
}

type Gradients struct {
	Data []Gradient
	Rows int
	Cols int
}

func (g *Gradient) Calculate(weight float64, hp *Hyperparameters) float64 {
	var value = g.Value*hp.Scale + hp.WeightDecay*weight
	g.Velocity = g.Velocity*hp.Momentum + value
	return hp.LearningRate * g.Velocity
}

func NewGradients(rows, cols int) Gradients {
	return Gradients{
		Data: make([]Gradient, cols*rows),
		Rows: rows,
		Cols: cols,
	}
}

func (g *Gradients) Add(row, col int, delta float64) {
	g.Data[col*g.Rows+row].Value += delta
}

func (g *Gradients) AddTo(parent *Gradients) {
	for i := range g.Data {
		parent.Data[i].Value += g.Data[i].Value
		g.Data[i].Value = 0
	}
}

func (g *Gradients) Apply(m *Matrix, hp *Hyperparameters) {
	for i := range g.Data {
		m.Data[i] -= g.Data[i].Calculate(m.Data[i], hp)
		g.Data[i].Value = 0
	}
}
