// Package typereg maps event kind names to constructors so envelope
// payloads can be decoded back into their concrete event types.
package typereg

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

type ctor = func() any

// Registry is a bidirectional kind <-> type table. Registration happens
// at startup; duplicates are programmer errors and panic.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]ctor
	types map[reflect.Type]string
}

func New() *Registry {
	return &Registry{
		ctors: make(map[string]ctor),
		types: make(map[reflect.Type]string),
	}
}

func (r *Registry) Register(kind string, c ctor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[reflect.TypeOf(c())]; ok {
		panic(fmt.Sprintf("typereg: type %v is already registered", reflect.TypeOf(c())))
	}
	if _, ok := r.ctors[kind]; ok {
		panic(fmt.Sprintf("typereg: kind %q is already registered", kind))
	}
	r.types[reflect.TypeOf(c())] = kind
	r.ctors[kind] = c
}

// Create returns a fresh zero value for kind.
func (r *Registry) Create(kind string) (any, error) {
	r.mu.RLock()
	ct, ok := r.ctors[kind]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("typereg: unknown kind %q", kind)
	}
	return ct(), nil
}

// NameFor returns the registered kind of in's concrete type.
func (r *Registry) NameFor(in any) (string, error) {
	if in == nil {
		return "", errors.New("typereg: cannot get kind for nil")
	}

	t := reflect.TypeOf(in)

	r.mu.RLock()
	kind, ok := r.types[t]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("typereg: type %v is not registered", t)
	}
	return kind, nil
}
