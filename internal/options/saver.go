package options

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const OptionsFileName = "opt.yaml"

// Saver persists option values next to a model checkpoint.
type Saver struct {
	registry *Registry
}

func NewSaver(r *Registry) *Saver {
	if r == nil {
		r = defaultRegistry
	}
	return &Saver{registry: r}
}

func (s *Saver) Marshal(values Values) ([]byte, error) {
	var k = koanf.New("/")
	for _, key := range sortedKeys(values) {
		if values[key] == nil {
			continue
		}
		if err := k.Set(key, values[key]); err != nil {
			return nil, err
		}
	}
	return k.Marshal(yaml.Parser())
}

func (s *Saver) Save(folder string, values Values) error {
	err := os.MkdirAll(folder, os.ModePerm)
	if err != nil {
		return err
	}
	data, err := s.Marshal(values)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(folder, OptionsFileName), data, 0644)
}

// Load reads values saved by Save from folder.
func (s *Saver) Load(folder string) (Values, error) {
	return s.LoadFrom(file.Provider(filepath.Join(folder, OptionsFileName)))
}

// LoadFrom reads values from any koanf provider of yaml bytes. Keys unknown
// to the registry are kept with the type yaml decoded them to.
func (s *Saver) LoadFrom(provider koanf.Provider) (Values, error) {
	var k = koanf.New("/")
	if err := k.Load(provider, yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load options: %w", err)
	}
	var result = make(Values)
	for _, key := range k.Keys() {
		var opt, found = s.registry.Lookup(key)
		if !found {
			result[key] = k.Get(key)
			continue
		}
		switch opt.Kind {
		case KindInt:
			result[key] = k.Int(key)
		case KindFloat:
			result[key] = k.Float64(key)
		case KindBool:
			result[key] = k.Bool(key)
		case KindString:
			result[key] = k.String(key)
		case KindInts:
			result[key] = k.Ints(key)
		case KindFloats:
			result[key] = k.Float64s(key)
		case KindStrings:
			result[key] = k.Strings(key)
		}
	}
	return result, nil
}
