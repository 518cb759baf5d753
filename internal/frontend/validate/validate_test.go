package validate

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilInputIsFatal(t *testing.T) {
	res := Validate(nil, Rules{"name": {Type: String}})
	assert.True(t, res.IsFatal())
	assert.Empty(t, res.Errors)
}

func TestRequiredMissingIsFatal(t *testing.T) {
	res := Validate(map[string]any{}, Rules{"serviceid": {Type: ID, Required: true}})
	require.True(t, res.IsFatal())
	assert.Equal(t, []string{`Field "serviceid" is mandatory.`}, res.Errors)
}

func TestOptionalMissingIsSkipped(t *testing.T) {
	res := Validate(map[string]any{}, Rules{"tags": {Type: Array}})
	assert.True(t, res.OK())
	assert.False(t, res.Values.Has("tags"))
}

func TestCoercion(t *testing.T) {
	raw := map[string]any{
		"sortorder": "42",
		"weight":    float64(7),
		"serviceid": "0012",
		"parents":   map[string]any{"1": "20", "0": "10"},
		"ratio":     "0.5",
		"name":      float64(3),
		"extra":     "dropped",
	}
	res := Validate(raw, Rules{
		"sortorder": {Type: Int32},
		"weight":    {Type: Int32},
		"serviceid": {Type: ID},
		"parents":   {Type: IDs},
		"ratio":     {Type: Float},
		"name":      {Type: String},
	})
	require.True(t, res.OK(), res.Errors)
	assert.Equal(t, 42, res.Values["sortorder"])
	assert.Equal(t, 7, res.Values["weight"])
	assert.Equal(t, "12", res.Values["serviceid"])
	assert.Equal(t, []string{"10", "20"}, res.Values["parents"])
	assert.Equal(t, 0.5, res.Values["ratio"])
	assert.Equal(t, "3", res.Values["name"])
	assert.False(t, res.Values.Has("extra"))
}

func TestStructuralMismatchIsFatal(t *testing.T) {
	cases := []struct {
		rule  Rule
		value any
		want  string
	}{
		{Rule{Type: Array}, "x", `Field "f" is not correct: an array is expected.`},
		{Rule{Type: IDs}, "1", `Field "f" is not correct: an array is expected.`},
		{Rule{Type: String}, []any{"a"}, `Field "f" is not correct: a character string is expected.`},
		{Rule{Type: Int32}, "abc", `Field "f" is not correct: an integer is expected.`},
		{Rule{Type: Int32}, "3000000000", `Field "f" is not correct: an integer is expected.`},
		{Rule{Type: ID}, "-1", `Incorrect value "-1" for "f" field.`},
		{Rule{Type: Float}, "nope", `Field "f" is not correct: a number is expected.`},
	}
	for _, tc := range cases {
		res := Validate(map[string]any{"f": tc.value}, Rules{"f": tc.rule})
		assert.True(t, res.IsFatal(), "value %v", tc.value)
		assert.Equal(t, []string{tc.want}, res.Errors)
	}
}

func TestJSONNumbersKeepPrecision(t *testing.T) {
	res := Validate(map[string]any{
		"serviceid": json.Number("9007199254740993"),
		"parents":   []any{json.Number("9007199254740995")},
		"sortorder": json.Number("12"),
		"ratio":     json.Number("0.25"),
	}, Rules{
		"serviceid": {Type: ID},
		"parents":   {Type: IDs},
		"sortorder": {Type: Int32, Range: Between(0, 999)},
		"ratio":     {Type: Float},
	})
	require.True(t, res.OK(), "errors: %v", res.Errors)
	assert.Equal(t, "9007199254740993", res.Values["serviceid"])
	assert.Equal(t, []string{"9007199254740995"}, res.Values["parents"])
	assert.Equal(t, 12, res.Values["sortorder"])
	assert.Equal(t, 0.25, res.Values["ratio"])

	res = Validate(map[string]any{"serviceid": json.Number("1e3")}, Rules{"serviceid": {Type: ID}})
	assert.True(t, res.IsFatal())
}

func TestSoftErrors(t *testing.T) {
	raw := map[string]any{
		"name":      "  ",
		"sortorder": "1000",
		"algorithm": "7",
		"host":      "not a host!",
		"label":     "abcdef",
		"expr":      "x",
		"low":       "-1",
		"high":      "5",
	}
	res := Validate(raw, Rules{
		"name":      {Type: String, NotEmpty: true},
		"sortorder": {Type: Int32, Range: Between(0, 999)},
		"low":       {Type: Int32, Range: AtLeast(0)},
		"high":      {Type: Int32, Range: AtMost(3)},
		"algorithm": {Type: Int32, In: []string{"0", "1", "2"}},
		"host":      {Type: String, Format: "hostname"},
		"label":     {Type: String, MaxLen: 3},
		"expr":      {Type: String, Check: func(any) error { return errors.New("incorrect syntax near \"x\"") }},
	})
	require.False(t, res.IsFatal())
	assert.Equal(t, []string{
		`Incorrect value "7" for "algorithm" field.`,
		`Incorrect value for field "expr": incorrect syntax near "x".`,
		`Incorrect value for field "high": value must be no greater than "3".`,
		`Incorrect value for field "host": invalid hostname.`,
		`Incorrect value for field "label": value is too long.`,
		`Incorrect value for field "low": value must be no less than "0".`,
		`Incorrect value for field "name": cannot be empty.`,
		`Incorrect value for field "sortorder": value must be no greater than "999".`,
	}, res.Errors)
	assert.Empty(t, res.Values)
}

func TestKeyedArrayKeepsMap(t *testing.T) {
	raw := map[string]any{"status_rules": map[string]any{"new": map[string]any{"type": "1"}}}
	res := Validate(raw, Rules{"status_rules": {Type: Array}})
	require.True(t, res.OK())
	_, isMap := res.Values["status_rules"].(map[string]any)
	assert.True(t, isMap)
}

func TestConditionAppliesToValidatedValues(t *testing.T) {
	schema := Schema{
		Fields: Rules{
			"advanced": {Type: String, In: []string{"1"}},
			"rule":     {Type: Int32},
			"weight":   {Type: String},
		},
		When: []Condition{{
			If:     func(v Values) bool { return v.Has("advanced") },
			Fields: Rules{
				"rule": {Type: Int32, Required: true},
			},
		}, {
			If:     func(v Values) bool { return v.Has("advanced") && v.String("weight") != "" },
			Fields: Rules{
				"weight": {Type: Int32, Range: Between(0, 1000000)},
			},
		}},
	}

	res := schema.Validate(map[string]any{"advanced": "1", "weight": "12"})
	require.True(t, res.IsFatal())
	assert.Equal(t, []string{`Field "rule" is mandatory.`}, res.Errors)
	assert.Equal(t, 12, res.Values["weight"])

	res = schema.Validate(map[string]any{"advanced": "1", "rule": "2", "weight": "2000000"})
	require.False(t, res.IsFatal())
	assert.Equal(t, []string{`Incorrect value for field "weight": value must be no greater than "1000000".`}, res.Errors)
	assert.False(t, res.Values.Has("weight"))

	res = schema.Validate(map[string]any{"rule": "2"})
	assert.True(t, res.OK())
}

func TestValuesAccessors(t *testing.T) {
	v := Values{"a": 3, "b": "4", "ids": []string{"1"}, "list": map[string]any{"1": "y", "0": "x"}}
	n, ok := v.Int("a")
	assert.True(t, ok)
	assert.Equal(t, 3, n)
	n, ok = v.Int("b")
	assert.True(t, ok)
	assert.Equal(t, 4, n)
	assert.Equal(t, "3", v.String("a"))
	assert.Equal(t, "", v.String("missing"))
	assert.Equal(t, []string{"1"}, v.Strings("ids"))
	assert.Equal(t, []any{"x", "y"}, v.List("list"))
}
