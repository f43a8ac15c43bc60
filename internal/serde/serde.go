// Package serde serializes registered event bodies to envelope payloads
// and back, dispatching on the event kind.
package serde

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/clinicore/eventkit/internal/typereg"
)

func New[T any](reg *typereg.Registry) *Serder[T] {
	t := reflect.TypeFor[T]()
	if t.Kind() != reflect.Interface {
		panic("serde: type T must be an interface")
	}

	return &Serder[T]{reg: reg}
}

type Serder[T any] struct {
	reg *typereg.Registry
}

func (s *Serder[T]) Serialize(v T) ([]byte, error) {
	return json.Marshal(v)
}

func (s *Serder[T]) Deserialize(kind string, b []byte) (T, error) {
	var zero T
	out, err := s.reg.Create(kind)
	if err != nil {
		return zero, fmt.Errorf("deserialize: %w", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return zero, fmt.Errorf("deserialize: %w", err)
	}
	return out.(T), nil
}
