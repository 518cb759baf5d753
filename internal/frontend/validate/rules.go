// Package validate turns raw request input into validated, type-coerced values.
//
// Rules are plain Go data. A Schema applies its field rules first and then
// any conditional rule sets whose predicate holds for the validated values.
// Errors are split in two severities: fatal errors mean the input structure
// cannot be interpreted (missing required field, wrong shape), soft errors mean
// a well-formed value was rejected and the user can correct it.
package validate

// Type is the value type a field is coerced to.
type Type int

const (
	// String accepts scalars and yields a string.
	String Type = iota
	// Int32 yields an int within the signed 32-bit range.
	Int32
	// Float yields a float64.
	Float
	// ID yields a canonical decimal object id string.
	ID
	// IDs yields a []string of object ids.
	IDs
	// Array yields []any, or map[string]any for keyed arrays.
	Array
)

func (t Type) String() string {
	switch t {
	case String:
		return "string"
	case Int32:
		return "int32"
	case Float:
		return "float"
	case ID:
		return "id"
	case IDs:
		return "ids"
	case Array:
		return "array"
	default:
		return "unknown"
	}
}

// Range is an inclusive numeric bound.
type Range struct {
	Min, Max       int64
	HasMin, HasMax bool
}

// Between returns the range [lo, hi].
func Between(lo, hi int64) *Range {
	return &Range{Min: lo, Max: hi, HasMin: true, HasMax: true}
}

// AtLeast returns the range [lo, +inf).
func AtLeast(lo int64) *Range {
	return &Range{Min: lo, HasMin: true}
}

// AtMost returns the range (-inf, hi].
func AtMost(hi int64) *Range {
	return &Range{Max: hi, HasMax: true}
}

// Rule describes one field.
type Rule struct {
	Type     Type
	Required bool
	NotEmpty bool
	Range    *Range
	In       []string
	// MaxLen limits strings to a number of runes, usually the column width.
	MaxLen int
	// Format is a go-playground/validator tag applied to non-empty strings.
	Format string
	// Check runs last; a non-nil error is reported as a soft error.
	Check func(value any) error
}

// Rules maps field names to rules.
type Rules map[string]Rule

// Condition applies extra rules when If holds for the validated values.
type Condition struct {
	If     func(Values) bool
	Fields Rules
}

// Schema is a complete validation description for one request.
type Schema struct {
	Fields Rules
	When   []Condition
}
