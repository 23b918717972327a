package models

import (
	"fmt"
)

// Metadata is the free-form metadata map attached to documents and versions.
// Values are restricted to a closed set of shapes: string, number, bool,
// a list of scalars, or a one-level nested map of scalars.
type Metadata map[string]any

// Validate checks every value against the allowed shapes.
func (m Metadata) Validate() error {
	for key, value := range m {
		if key == "" {
			return fmt.Errorf("metadata keys cannot be empty")
		}
		if err := validateValue(value, false); err != nil {
			return fmt.Errorf("metadata key %q: %w", key, err)
		}
	}
	return nil
}

// Clone returns a shallow-enough copy: top-level and nested containers are
// copied, scalar values are shared.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for key, value := range m {
		switch v := value.(type) {
		case []any:
			list := make([]any, len(v))
			copy(list, v)
			out[key] = list
		case map[string]any:
			nested := make(map[string]any, len(v))
			for nk, nv := range v {
				nested[nk] = nv
			}
			out[key] = nested
		default:
			out[key] = value
		}
	}
	return out
}

func validateValue(value any, nested bool) error {
	switch v := value.(type) {
	case nil:
		return nil
	case string, bool,
		int, int32, int64, float32, float64:
		return nil
	case []any:
		if nested {
			return fmt.Errorf("lists are not allowed inside nested maps")
		}
		for i, item := range v {
			if !isScalar(item) {
				return fmt.Errorf("list element %d must be a scalar", i)
			}
		}
		return nil
	case map[string]any:
		if nested {
			return fmt.Errorf("maps may only nest one level deep")
		}
		for key, item := range v {
			if !isScalar(item) {
				return fmt.Errorf("nested key %q must hold a scalar", key)
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported value type %T", value)
	}
}

func isScalar(value any) bool {
	switch value.(type) {
	case nil, string, bool, int, int32, int64, float32, float64:
		return true
	default:
		return false
	}
}
