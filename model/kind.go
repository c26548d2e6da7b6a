package model

import (
	"encoding/json"
	"fmt"
)

// Kind is the JSON type of an attribute.
type Kind int

const (
	// Invalid is the kind of values that are not JSON-representable (including nil).
	Invalid Kind = iota
	String
	Number
	Bool
	List
	Map
)

func (k Kind) String() string {
	switch k {
	case String:
		return "string"
	case Number:
		return "number"
	case Bool:
		return "boolean"
	case List:
		return "list"
	case Map:
		return "mapping"
	default:
		return "invalid"
	}
}

// KindOf reports the kind of a normalised value.
func KindOf(v any) Kind {
	switch v.(type) {
	case string:
		return String
	case float64:
		return Number
	case bool:
		return Bool
	case []any:
		return List
	case map[string]any:
		return Map
	default:
		return Invalid
	}
}

// Normalize converts v into its JSON form: string, float64, bool, []any or
// map[string]any. Common Go types are converted directly; anything else goes
// through a JSON round trip.
func Normalize(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string, bool, float64:
		return t, nil
	case int:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case uint:
		return float64(t), nil
	case uint32:
		return float64(t), nil
	case uint64:
		return float64(t), nil
	case float32:
		return float64(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("normalize number %q: %w", t, err)
		}
		return f, nil
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			n, err := Normalize(item)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			n, err := Normalize(item)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("normalize %T: %w", v, err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("normalize %T: %w", v, err)
	}
	return out, nil
}

// DeepCopy copies a normalised value so that no list or mapping is shared.
func DeepCopy(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = DeepCopy(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = DeepCopy(item)
		}
		return out
	default:
		return t
	}
}
