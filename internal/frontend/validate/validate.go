package validate

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// maxID is the largest object id the backend database accepts.
const maxID = math.MaxInt64

var formats = validator.New()

// Result is the outcome of validating one input set.
type Result struct {
	Values Values
	Errors []string
	fatal  bool
}

// IsFatal reports whether the input could not be interpreted at all.
func (r *Result) IsFatal() bool { return r.fatal }

// IsError reports whether any error, fatal or soft, was found.
func (r *Result) IsError() bool { return r.fatal || len(r.Errors) > 0 }

// OK reports whether validation passed cleanly.
func (r *Result) OK() bool { return !r.IsError() }

func (r *Result) addFatal(format string, args ...any) {
	r.fatal = true
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) addSoft(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Fatal returns a fatal result without messages, for input that could not be read.
func Fatal() *Result {
	return &Result{Values: Values{}, fatal: true}
}

// Validate applies rules to raw input. A nil input is fatal.
func Validate(raw map[string]any, rules Rules) *Result {
	return Schema{Fields: rules}.Validate(raw)
}

// Validate applies the schema to raw input. A nil input is fatal.
func (s Schema) Validate(raw map[string]any) *Result {
	if raw == nil {
		return Fatal()
	}

	res := &Result{Values: Values{}}
	validateFields(res, raw, s.Fields)

	for _, cond := range s.When {
		if cond.If == nil || !cond.If(res.Values) {
			continue
		}
		subset := make(map[string]any, len(cond.Fields))
		for name := range cond.Fields {
			if v, ok := res.Values[name]; ok {
				subset[name] = v
			}
		}
		sub := &Result{Values: Values{}}
		validateFields(sub, subset, cond.Fields)
		res.Errors = append(res.Errors, sub.Errors...)
		res.fatal = res.fatal || sub.fatal
		for name := range cond.Fields {
			if v, ok := sub.Values[name]; ok {
				res.Values[name] = v
			} else {
				delete(res.Values, name)
			}
		}
	}
	return res
}

func validateFields(res *Result, raw map[string]any, rules Rules) {
	names := make([]string, 0, len(rules))
	for name := range rules {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		rule := rules[name]
		value, present := raw[name]
		if !present {
			if rule.Required {
				res.addFatal("Field \"%s\" is mandatory.", name)
			}
			continue
		}

		coerced, ok := coerce(res, name, rule.Type, value)
		if !ok {
			continue
		}
		if !checkValue(res, name, rule, coerced) {
			continue
		}
		res.Values[name] = coerced
	}
}

func coerce(res *Result, name string, typ Type, value any) (any, bool) {
	switch typ {
	case String:
		s, ok := scalarString(value)
		if !ok {
			res.addFatal("Field \"%s\" is not correct: a character string is expected.", name)
			return nil, false
		}
		return s, true

	case Int32:
		s, ok := scalarString(value)
		if !ok {
			res.addFatal("Field \"%s\" is not correct: an integer is expected.", name)
			return nil, false
		}
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
		if err != nil {
			res.addFatal("Field \"%s\" is not correct: an integer is expected.", name)
			return nil, false
		}
		return int(n), true

	case Float:
		s, ok := scalarString(value)
		if !ok {
			res.addFatal("Field \"%s\" is not correct: a number is expected.", name)
			return nil, false
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			res.addFatal("Field \"%s\" is not correct: a number is expected.", name)
			return nil, false
		}
		return f, true

	case ID:
		id, ok := canonicalID(value)
		if !ok {
			res.addFatal("Incorrect value \"%v\" for \"%s\" field.", value, name)
			return nil, false
		}
		return id, true

	case IDs:
		items, ok := asList(value)
		if !ok {
			res.addFatal("Field \"%s\" is not correct: an array is expected.", name)
			return nil, false
		}
		ids := make([]string, 0, len(items))
		for _, item := range items {
			id, ok := canonicalID(item)
			if !ok {
				res.addFatal("Incorrect value \"%v\" for \"%s\" field.", item, name)
				return nil, false
			}
			ids = append(ids, id)
		}
		return ids, true

	case Array:
		switch x := value.(type) {
		case []any:
			return x, true
		case []string:
			out := make([]any, len(x))
			for i, s := range x {
				out[i] = s
			}
			return out, true
		case map[string]any:
			if allIntegerKeys(x) {
				return orderedValues(x), true
			}
			return x, true
		default:
			res.addFatal("Field \"%s\" is not correct: an array is expected.", name)
			return nil, false
		}
	}

	res.addFatal("Field \"%s\" has unsupported type %s.", name, typ)
	return nil, false
}

func checkValue(res *Result, name string, rule Rule, value any) bool {
	if rule.NotEmpty && isEmpty(value) {
		res.addSoft("Incorrect value for field \"%s\": cannot be empty.", name)
		return false
	}

	if len(rule.In) > 0 {
		s := Values{name: value}.String(name)
		found := false
		for _, allowed := range rule.In {
			if s == allowed {
				found = true
				break
			}
		}
		if !found {
			res.addSoft("Incorrect value \"%s\" for \"%s\" field.", s, name)
			return false
		}
	}

	if rule.Range != nil {
		var n float64
		switch x := value.(type) {
		case int:
			n = float64(x)
		case float64:
			n = x
		default:
			res.addFatal("Field \"%s\" is not correct: a number is expected.", name)
			return false
		}
		if rule.Range.HasMin && n < float64(rule.Range.Min) {
			res.addSoft("Incorrect value for field \"%s\": value must be no less than \"%d\".", name, rule.Range.Min)
			return false
		}
		if rule.Range.HasMax && n > float64(rule.Range.Max) {
			res.addSoft("Incorrect value for field \"%s\": value must be no greater than \"%d\".", name, rule.Range.Max)
			return false
		}
	}

	if s, ok := value.(string); ok {
		if rule.MaxLen > 0 && utf8.RuneCountInString(s) > rule.MaxLen {
			res.addSoft("Incorrect value for field \"%s\": value is too long.", name)
			return false
		}
		if rule.Format != "" && s != "" {
			if err := formats.Var(s, rule.Format); err != nil {
				res.addSoft("Incorrect value for field \"%s\": invalid %s.", name, rule.Format)
				return false
			}
		}
	}

	if rule.Check != nil {
		if err := rule.Check(value); err != nil {
			res.addSoft("Incorrect value for field \"%s\": %s.", name, strings.TrimSuffix(err.Error(), "."))
			return false
		}
	}
	return true
}

func scalarString(value any) (string, bool) {
	switch x := value.(type) {
	case string:
		return x, true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case json.Number:
		return x.String(), true
	case bool:
		if x {
			return "1", true
		}
		return "0", true
	default:
		return "", false
	}
}

func canonicalID(value any) (string, bool) {
	s, ok := scalarString(value)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n > maxID {
		return "", false
	}
	return strconv.FormatUint(n, 10), true
}

func asList(value any) ([]any, bool) {
	switch x := value.(type) {
	case []any:
		return x, true
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, true
	case map[string]any:
		return orderedValues(x), true
	default:
		return nil, false
	}
}

func isEmpty(value any) bool {
	switch x := value.(type) {
	case string:
		return strings.TrimSpace(x) == ""
	case []any:
		return len(x) == 0
	case []string:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	case nil:
		return true
	default:
		return false
	}
}

func allIntegerKeys(m map[string]any) bool {
	for k := range m {
		if _, err := strconv.Atoi(k); err != nil {
			return false
		}
	}
	return true
}

// orderedValues flattens a keyed array. Integer keys sort numerically and
// precede other keys, which sort lexically.
func orderedValues(m map[string]any) []any {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return keys[i] < keys[j]
		}
	})
	out := make([]any, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}
