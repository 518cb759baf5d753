package validate

import (
	"fmt"
	"strconv"
)

// Values holds validated input.
type Values map[string]any

// Has reports whether name passed validation.
func (v Values) Has(name string) bool {
	_, ok := v[name]
	return ok
}

// String returns the value as a string, or "" when absent.
func (v Values) String(name string) string {
	switch x := v[name].(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// Int returns an integer value.
func (v Values) Int(name string) (int, bool) {
	switch x := v[name].(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	case string:
		n, err := strconv.Atoi(x)
		return n, err == nil
	default:
		return 0, false
	}
}

// Strings returns an IDs value.
func (v Values) Strings(name string) []string {
	switch x := v[name].(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			out = append(out, fmt.Sprint(e))
		}
		return out
	default:
		return nil
	}
}

// List returns an Array value as a slice. Keyed arrays are returned in key order.
func (v Values) List(name string) []any {
	switch x := v[name].(type) {
	case []any:
		return x
	case map[string]any:
		return orderedValues(x)
	default:
		return nil
	}
}
