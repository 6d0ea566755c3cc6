package options

// Values holds resolved option values keyed by option key.
type Values map[string]interface{}

func (v Values) Has(key string) bool {
	var value, found = v[key]
	return found && value != nil
}

func (v Values) Int(key string) int {
	var x, _ = v[key].(int)
	return x
}

func (v Values) Float(key string) float64 {
	switch x := v[key].(type) {
	case float64:
		return x
	case int:
		return float64(x)
	}
	return 0
}

func (v Values) Bool(key string) bool {
	var x, _ = v[key].(bool)
	return x
}

// String returns "" for a string option without a value.
func (v Values) String(key string) string {
	var x, _ = v[key].(string)
	return x
}

func (v Values) Ints(key string) []int {
	var x, _ = v[key].([]int)
	return x
}

func (v Values) Floats(key string) []float64 {
	var x, _ = v[key].([]float64)
	return x
}

func (v Values) Strings(key string) []string {
	var x, _ = v[key].([]string)
	return x
}

// Merge returns a copy of v overridden by other.
func (v Values) Merge(other Values) Values {
	var result = make(Values, len(v)+len(other))
	for key, value := range v {
		result[key] = value
	}
	for key, value := range other {
		result[key] = value
	}
	return result
}
