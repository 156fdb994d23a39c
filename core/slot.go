package core

import (
	"bytes"
	"encoding/json"
)

// StatusFallback marks a slot whose live dependency was unavailable
const StatusFallback = "fallback"

// ErrorWrapper replaces an analyzer result when that analyzer failed
type ErrorWrapper struct {
	Status string `json:"status,omitempty"`
	Error  string `json:"error"`
}

// Slot holds either an analyzer value or the ErrorWrapper that replaced it.
// On the wire it is the bare value or the bare wrapper.
type Slot[T any] struct {
	Value T
	Err   *ErrorWrapper
}

// OK wraps a successful analyzer value
func OK[T any](v T) Slot[T] {
	return Slot[T]{Value: v}
}

// Failed wraps an analyzer error as {"error": msg}
func Failed[T any](err error) Slot[T] {
	return Slot[T]{Err: &ErrorWrapper{Error: errorText(err)}}
}

// Fallback wraps an analyzer error as {"status": "fallback", "error": msg}
func Fallback[T any](err error) Slot[T] {
	return Slot[T]{Err: &ErrorWrapper{Status: StatusFallback, Error: errorText(err)}}
}

// OK reports whether the slot carries a value
func (s Slot[T]) OK() bool {
	return s.Err == nil
}

// Get returns the value and whether it is present
func (s Slot[T]) Get() (T, bool) {
	if s.Err != nil {
		var zero T
		return zero, false
	}
	return s.Value, true
}

// MarshalJSON emits the value or the wrapper
func (s Slot[T]) MarshalJSON() ([]byte, error) {
	if s.Err != nil {
		return json.Marshal(s.Err)
	}
	return json.Marshal(s.Value)
}

// UnmarshalJSON treats any object carrying an "error" key as a wrapper
func (s *Slot[T]) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &probe); err == nil {
			if _, ok := probe["error"]; ok {
				var w ErrorWrapper
				if err := json.Unmarshal(trimmed, &w); err != nil {
					return err
				}
				var zero T
				s.Value = zero
				s.Err = &w
				return nil
			}
		}
	}

	var v T
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return err
	}
	s.Value = v
	s.Err = nil
	return nil
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
