// Package options implements the typed command-line option registry shared by
// models, data providers and commands.
package options

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

type Kind string

const (
	KindInt     Kind = "int"
	KindFloat   Kind = "float"
	KindBool    Kind = "bool"
	KindString  Kind = "str"
	KindInts    Kind = "list<int>"
	KindFloats  Kind = "list<float>"
	KindStrings Kind = "list<str>"
)

// EnvPrefix of environment overrides: TFPLUS_IMAGENET__DATASET_FOLDER sets
// imagenet:dataset_folder.
const EnvPrefix = "TFPLUS_"

var (
	ErrUnknownOption   = errors.New("unknown option")
	ErrDuplicateOption = errors.New("duplicate option")
	ErrBadDefault      = errors.New("bad option default")
)

type Option struct {
	Key     string
	Kind    Kind
	Default interface{}
	Usage   string
}

type Registry struct {
	mu      sync.RWMutex
	options map[string]*Option
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{
		options: make(map[string]*Option),
	}
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry that packages add their options to.
func Default() *Registry {
	return defaultRegistry
}

// Add declares an option on the default registry and panics on a programming
// error, so it can be called from package init.
func Add(key string, kind Kind, def interface{}) {
	if err := defaultRegistry.Add(key, kind, def); err != nil {
		panic(err)
	}
}

func (r *Registry) Add(key string, kind Kind, def interface{}) error {
	def, err := normalizeDefault(kind, def)
	if err != nil {
		return fmt.Errorf("%w %v: %v", ErrBadDefault, key, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, found := r.options[key]; found {
		return fmt.Errorf("%w %v", ErrDuplicateOption, key)
	}
	r.options[key] = &Option{Key: key, Kind: kind, Default: def}
	r.order = append(r.order, key)
	return nil
}

func (r *Registry) Lookup(key string) (Option, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var opt, found = r.options[key]
	if !found {
		return Option{}, false
	}
	return *opt, true
}

// Keys returns option keys in declaration order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Defaults returns the default value of every option.
func (r *Registry) Defaults() Values {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result = make(Values, len(r.options))
	for key, opt := range r.options {
		result[key] = opt.Default
	}
	return result
}

// BindFlags defines one flag per option on fs.
func (r *Registry) BindFlags(fs *pflag.FlagSet) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, key := range r.order {
		var opt = r.options[key]
		if fs.Lookup(key) != nil {
			continue
		}
		var usage = opt.Usage
		if usage == "" {
			usage = string(opt.Kind)
		}
		switch opt.Kind {
		case KindInt:
			fs.Int(key, opt.Default.(int), usage)
		case KindFloat:
			fs.Float64(key, opt.Default.(float64), usage)
		case KindBool:
			fs.Bool(key, opt.Default.(bool), usage)
		case KindString:
			var def, _ = opt.Default.(string)
			fs.String(key, def, usage)
		case KindInts:
			fs.IntSlice(key, opt.Default.([]int), usage)
		case KindFloats:
			fs.Float64Slice(key, opt.Default.([]float64), usage)
		case KindStrings:
			fs.StringSlice(key, opt.Default.([]string), usage)
		}
	}
}

// Collect reads option values from a parsed flag set. Flags the user did not
// set may be overridden from the environment.
func (r *Registry) Collect(fs *pflag.FlagSet) (Values, error) {
	var k = koanf.New(".")
	var err = k.Load(env.Provider(EnvPrefix, ".", envKey), nil)
	if err != nil {
		return nil, err
	}
	for _, key := range k.Keys() {
		var f = fs.Lookup(key)
		if f == nil || f.Changed {
			continue
		}
		if err := fs.Set(key, k.String(key)); err != nil {
			return nil, fmt.Errorf("env override %v: %w", key, err)
		}
	}

	// Options without a flag keep their default.
	var result = r.Defaults()
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, key := range r.order {
		var opt = r.options[key]
		var f = fs.Lookup(key)
		if f == nil {
			continue
		}
		var value interface{}
		switch opt.Kind {
		case KindInt:
			value, err = fs.GetInt(key)
		case KindFloat:
			value, err = fs.GetFloat64(key)
		case KindBool:
			value, err = fs.GetBool(key)
		case KindString:
			if !f.Changed && opt.Default == nil {
				value = nil
			} else {
				value, err = fs.GetString(key)
			}
		case KindInts:
			value, err = fs.GetIntSlice(key)
		case KindFloats:
			value, err = fs.GetFloat64Slice(key)
		case KindStrings:
			value, err = fs.GetStringSlice(key)
		}
		if err != nil {
			return nil, fmt.Errorf("option %v: %w", key, err)
		}
		result[key] = value
	}
	return result, nil
}

// Make parses command-line arguments against the registry.
func (r *Registry) Make(args []string) (Values, error) {
	var fs = pflag.NewFlagSet("tfplus", pflag.ContinueOnError)
	r.BindFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return r.Collect(fs)
}

func envKey(s string) string {
	var key = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(key, "__", ":")
}

func normalizeDefault(kind Kind, def interface{}) (interface{}, error) {
	switch kind {
	case KindInt:
		if def == nil {
			return 0, nil
		}
		if v, ok := def.(int); ok {
			return v, nil
		}
	case KindFloat:
		if def == nil {
			return 0.0, nil
		}
		switch v := def.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		}
	case KindBool:
		if def == nil {
			return false, nil
		}
		if v, ok := def.(bool); ok {
			return v, nil
		}
	case KindString:
		if def == nil {
			return nil, nil
		}
		if v, ok := def.(string); ok {
			return v, nil
		}
	case KindInts:
		if def == nil {
			return []int{}, nil
		}
		if v, ok := def.([]int); ok {
			return v, nil
		}
	case KindFloats:
		if def == nil {
			return []float64{}, nil
		}
		if v, ok := def.([]float64); ok {
			return v, nil
		}
	case KindStrings:
		if def == nil {
			return []string{}, nil
		}
		if v, ok := def.([]string); ok {
			return v, nil
		}
	default:
		return nil, fmt.Errorf("unsupported kind %q", kind)
	}
	return nil, fmt.Errorf("%T is not %v", def, kind)
}

func sortedKeys(v Values) []string {
	var keys = make([]string, 0, len(v))
	for key := range v {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
