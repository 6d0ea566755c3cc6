// Package factory keeps named constructors for pluggable components.
package factory

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrNotRegistered     = errors.New("not registered")
	ErrAlreadyRegistered = errors.New("already registered")
)

type Constructor[A, T any] func(args A) (T, error)

type Factory[A, T any] struct {
	kind  string
	mu    sync.RWMutex
	ctors map[string]Constructor[A, T]
}

// New returns an empty factory; kind names the component in errors.
func New[A, T any](kind string) *Factory[A, T] {
	return &Factory[A, T]{
		kind:  kind,
		ctors: make(map[string]Constructor[A, T]),
	}
}

func (f *Factory[A, T]) Register(name string, ctor Constructor[A, T]) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, found := f.ctors[name]; found {
		return fmt.Errorf("%v %q %w", f.kind, name, ErrAlreadyRegistered)
	}
	f.ctors[name] = ctor
	return nil
}

// MustRegister is Register for package init.
func (f *Factory[A, T]) MustRegister(name string, ctor Constructor[A, T]) {
	if err := f.Register(name, ctor); err != nil {
		panic(err)
	}
}

func (f *Factory[A, T]) Create(name string, args A) (T, error) {
	f.mu.RLock()
	var ctor, found = f.ctors[name]
	f.mu.RUnlock()
	if !found {
		var zero T
		return zero, fmt.Errorf("%v %q %w", f.kind, name, ErrNotRegistered)
	}
	return ctor(args)
}

func (f *Factory[A, T]) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var names = make([]string, 0, len(f.ctors))
	for name := range f.ctors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
