package options

import (
	"fmt"
	"sync"
)

// OptionBase is embedded by components that read registry options.
type OptionBase struct {
	mu       sync.Mutex
	registry *Registry
	keys     []string
	values   Values
}

func (o *OptionBase) registryOrDefault() *Registry {
	if o.registry == nil {
		return defaultRegistry
	}
	return o.registry
}

func (o *OptionBase) SetRegistry(r *Registry) {
	o.mu.Lock()
	o.registry = r
	o.mu.Unlock()
}

func (o *OptionBase) RegisterOption(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, k := range o.keys {
		if k == key {
			return
		}
	}
	o.keys = append(o.keys, key)
}

// SetOptions binds resolved values, typically from Registry.Make.
func (o *OptionBase) SetOptions(values Values) {
	o.mu.Lock()
	o.values = values
	o.mu.Unlock()
}

func (o *OptionBase) RegisteredOptions() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.keys...)
}

func (o *OptionBase) GetOption(key string) (interface{}, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.getOption(key)
}

func (o *OptionBase) getOption(key string) (interface{}, error) {
	var registered bool
	for _, k := range o.keys {
		if k == key {
			registered = true
			break
		}
	}
	if !registered {
		return nil, fmt.Errorf("%w %v: not registered by component", ErrUnknownOption, key)
	}
	if value, found := o.values[key]; found {
		return value, nil
	}
	var opt, found = o.registryOrDefault().Lookup(key)
	if !found {
		return nil, fmt.Errorf("%w %v", ErrUnknownOption, key)
	}
	return opt.Default, nil
}

// Options resolves every registered option.
func (o *OptionBase) Options() (Values, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var result = make(Values, len(o.keys))
	for _, key := range o.keys {
		var value, err = o.getOption(key)
		if err != nil {
			return nil, err
		}
		result[key] = value
	}
	return result, nil
}
