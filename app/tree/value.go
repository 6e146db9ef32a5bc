// Author: Eryk Kulikowski @ KU Leuven (2026). Apache 2.0 License

package tree

import (
	"encoding/json"
	"fmt"
)

// Value is a typed metadata value: String, Bool or Structured.
type Value interface {
	isValue()
}

type String string

type Bool bool

// Structured holds a decoded JSON column: map[string]any, []any, string, bool, json.Number or nil.
type Structured struct {
	V any
}

func (String) isValue()     {}
func (Bool) isValue()       {}
func (Structured) isValue() {}

func (s String) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

func (b Bool) MarshalJSON() ([]byte, error) {
	return json.Marshal(bool(b))
}

func (s Structured) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.V)
}

// Metadata maps a field name to its value. Absent fields are not stored.
type Metadata map[string]Value

func (m Metadata) String(key string) (string, bool) {
	v, ok := m[key].(String)
	return string(v), ok
}

// Bool reports the boolean value of key; a missing or non-boolean value is false.
func (m Metadata) Bool(key string) bool {
	v, ok := m[key].(Bool)
	return ok && bool(v)
}

func (m Metadata) Structured(key string) (any, bool) {
	v, ok := m[key].(Structured)
	return v.V, ok
}

// Text renders any value as the string a CSV cell would hold.
func Text(v Value) string {
	switch t := v.(type) {
	case String:
		return string(t)
	case Bool:
		if t {
			return "TRUE"
		}
		return "FALSE"
	case Structured:
		b, err := json.Marshal(t.V)
		if err != nil {
			return fmt.Sprint(t.V)
		}
		return string(b)
	}
	return ""
}
