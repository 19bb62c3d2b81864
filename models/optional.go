package models

import (
	"encoding/json"
	"fmt"
)

// Placeholder is written in place of any field that could not be extracted.
const Placeholder = "N/A"

// Optional holds a value that may be absent.
type Optional[T any] struct {
	value T
	ok    bool
}

// Some wraps a present value.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, ok: true}
}

// None returns an absent value.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.ok
}

// Valid reports whether the value is present.
func (o Optional[T]) Valid() bool {
	return o.ok
}

// OrElse returns the value or fallback when absent.
func (o Optional[T]) OrElse(fallback T) T {
	if !o.ok {
		return fallback
	}
	return o.value
}

// Display renders the value for tabular output.
func (o Optional[T]) Display() string {
	if !o.ok {
		return Placeholder
	}
	return fmt.Sprint(o.value)
}

func (o Optional[T]) String() string {
	return o.Display()
}

// MarshalJSON writes the value itself, or the placeholder string when absent.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.ok {
		return json.Marshal(Placeholder)
	}
	return json.Marshal(o.value)
}
