package ml

import "fmt"

// Tensor is a dense float32 array in row-major order.
type Tensor struct {
	Shape []int
	Data  []float32
}

// Batch maps input names ("x", "y_gt") to batched tensors.
type Batch map[string]*Tensor

func NewTensor(shape ...int) *Tensor {
	return &Tensor{
		Shape: append([]int(nil), shape...),
		Data:  make([]float32, shapeSize(shape)),
	}
}

func shapeSize(shape []int) int {
	var n = 1
	for _, d := range shape {
		n *= d
	}
	return n
}

func (t *Tensor) Rank() int { return len(t.Shape) }

func (t *Tensor) Len() int { return len(t.Data) }

// Dim returns the size of axis i, 0 when the axis does not exist.
func (t *Tensor) Dim(i int) int {
	if i < 0 || i >= len(t.Shape) {
		return 0
	}
	return t.Shape[i]
}

// Item returns the i-th slice along the first axis. The data is shared.
func (t *Tensor) Item(i int) *Tensor {
	var size = shapeSize(t.Shape[1:])
	return &Tensor{
		Shape: t.Shape[1:],
		Data:  t.Data[i*size : (i+1)*size],
	}
}

// SetItem copies src into the i-th slice along the first axis.
func (t *Tensor) SetItem(i int, src *Tensor) error {
	var size = shapeSize(t.Shape[1:])
	if src.Len() != size {
		return fmt.Errorf("tensor item size mismatch: %v into %v", src.Shape, t.Shape)
	}
	copy(t.Data[i*size:(i+1)*size], src.Data)
	return nil
}

func (t *Tensor) Clone() *Tensor {
	return &Tensor{
		Shape: append([]int(nil), t.Shape...),
		Data:  append([]float32(nil), t.Data...),
	}
}

func (t *Tensor) MinMax() (min, max float32) {
	if len(t.Data) == 0 {
		return 0, 0
	}
	min, max = t.Data[0], t.Data[0]
	for _, x := range t.Data[1:] {
		if x < min {
			min = x
		}
		if x > max {
			max = x
		}
	}
	return min, max
}

// Stack builds a tensor of shape [len(items), items[0].Shape...].
func Stack(items []*Tensor) (*Tensor, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("stack of zero tensors")
	}
	var result = NewTensor(append([]int{len(items)}, items[0].Shape...)...)
	for i, item := range items {
		if err := result.SetItem(i, item); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// OneHot returns a [len(labels), numClasses] tensor.
func OneHot(labels []int, numClasses int) (*Tensor, error) {
	var result = NewTensor(len(labels), numClasses)
	for i, label := range labels {
		if label < 0 || label >= numClasses {
			return nil, fmt.Errorf("label %v out of range [0, %v)", label, numClasses)
		}
		result.Data[i*numClasses+label] = 1
	}
	return result, nil
}
