package ml

import "fmt"

// Results maps output names to values: float64 scalars, ints or *Tensor.
type Results map[string]interface{}

// Scalar converts a numeric result to float64.
func (r Results) Scalar(key string) (float64, bool) {
	switch x := r[key].(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

func (r Results) Tensor(key string) (*Tensor, error) {
	switch x := r[key].(type) {
	case *Tensor:
		return x, nil
	case nil:
		return nil, fmt.Errorf("result %q not found", key)
	default:
		return nil, fmt.Errorf("result %q is %T, not a tensor", key, x)
	}
}
