// Package macro validates the expression macros embedded in trigger event
// names. Only "{?<expression>}" and "{{?<expression>}.<function>(<params>)}"
// are checked; any other text or macro is left alone.
package macro

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
)

// Error reports a malformed macro.
type Error struct {
	// Offset is the byte offset in the validated string where parsing failed.
	Offset int
	// Near is the remainder of the string from Offset.
	Near string
	// EOF is set when the macro ended before it was complete.
	EOF bool
}

func (e *Error) Error() string {
	if e.EOF {
		return "unexpected end of macro"
	}
	return fmt.Sprintf("incorrect syntax near \"%s\"", e.Near)
}

// macroFuncs maps function macro names to their accepted parameter counts.
var macroFuncs = map[string][2]int{
	"fmtnum":  {1, 1},
	"fmttime": {1, 2},
	"regsub":  {2, 2},
	"iregsub": {2, 2},
}

// ValidateEventName checks every expression and function macro in name.
func ValidateEventName(name string) error {
	p := 0
	for p < len(name) {
		switch {
		case strings.HasPrefix(name[p:], "{?"):
			n, err := parseExpressionMacro(name, p)
			if err != nil {
				return err
			}
			p += n
		case strings.HasPrefix(name[p:], "{{?"):
			n, err := parseFunctionMacro(name, p)
			if err != nil {
				return err
			}
			p += n
		default:
			p++
		}
	}
	return nil
}

// Check adapts ValidateEventName to a field check.
func Check(value any) error {
	s, ok := value.(string)
	if !ok {
		return errors.New("a character string is expected")
	}
	return ValidateEventName(s)
}

// parseExpressionMacro parses "{?expr}" starting at pos and returns its length.
func parseExpressionMacro(s string, pos int) (int, error) {
	start := pos + 2
	end, ok := macroEnd(s, start)
	if !ok {
		return 0, &Error{Offset: len(s), EOF: true}
	}
	body := s[start:end]
	if strings.TrimSpace(body) == "" {
		return 0, errorAt(s, end)
	}
	if _, err := exprParser.ParseString("", body); err != nil {
		off := len(body)
		var perr participle.Error
		if errors.As(err, &perr) {
			off = perr.Position().Offset
		}
		if off >= len(body) {
			return 0, errorAt(s, end)
		}
		return 0, errorAt(s, start+off)
	}
	return end + 1 - pos, nil
}

// parseFunctionMacro parses "{{?expr}.func(params)}" starting at pos.
func parseFunctionMacro(s string, pos int) (int, error) {
	n, err := parseExpressionMacro(s, pos+1)
	if err != nil {
		return 0, err
	}
	p := pos + 1 + n
	if p >= len(s) {
		return 0, &Error{Offset: len(s), EOF: true}
	}
	if s[p] != '.' {
		return 0, errorAt(s, p)
	}
	p++

	nameStart := p
	for p < len(s) && s[p] >= 'a' && s[p] <= 'z' {
		p++
	}
	counts, known := macroFuncs[s[nameStart:p]]
	if !known {
		return 0, errorAt(s, nameStart)
	}
	if p >= len(s) {
		return 0, &Error{Offset: len(s), EOF: true}
	}
	if s[p] != '(' {
		return 0, errorAt(s, p)
	}
	p++

	params, p, err := scanParams(s, p)
	if err != nil {
		return 0, err
	}
	if len(params) < counts[0] || len(params) > counts[1] {
		return 0, errorAt(s, nameStart)
	}
	if p >= len(s) {
		return 0, &Error{Offset: len(s), EOF: true}
	}
	if s[p] != '}' {
		return 0, errorAt(s, p)
	}
	return p + 1 - pos, nil
}

// scanParams reads comma separated parameters up to and including the
// closing parenthesis. Quoted parameters may contain commas and parentheses.
func scanParams(s string, p int) ([]string, int, error) {
	var params []string
	for {
		for p < len(s) && s[p] == ' ' {
			p++
		}
		if p >= len(s) {
			return nil, 0, &Error{Offset: len(s), EOF: true}
		}

		var param strings.Builder
		if s[p] == '"' {
			p++
			closed := false
			for p < len(s) {
				if s[p] == '\\' && p+1 < len(s) && (s[p+1] == '"' || s[p+1] == '\\') {
					param.WriteByte(s[p+1])
					p += 2
					continue
				}
				if s[p] == '"' {
					closed = true
					p++
					break
				}
				param.WriteByte(s[p])
				p++
			}
			if !closed {
				return nil, 0, &Error{Offset: len(s), EOF: true}
			}
			for p < len(s) && s[p] == ' ' {
				p++
			}
		} else {
			for p < len(s) && s[p] != ',' && s[p] != ')' {
				param.WriteByte(s[p])
				p++
			}
		}
		params = append(params, strings.TrimRight(param.String(), " "))

		if p >= len(s) {
			return nil, 0, &Error{Offset: len(s), EOF: true}
		}
		switch s[p] {
		case ',':
			p++
		case ')':
			return params, p + 1, nil
		default:
			return nil, 0, errorAt(s, p)
		}
	}
}

// macroEnd returns the index of the brace closing a macro whose body starts at
// start. String literals and nested macros are skipped.
func macroEnd(s string, start int) (int, bool) {
	depth := 0
	for p := start; p < len(s); p++ {
		switch s[p] {
		case '"':
			p++
			for p < len(s) && s[p] != '"' {
				if s[p] == '\\' {
					p++
				}
				p++
			}
			if p >= len(s) {
				return 0, false
			}
		case '{':
			depth++
		case '}':
			if depth == 0 {
				return p, true
			}
			depth--
		}
	}
	return 0, false
}

func errorAt(s string, off int) *Error {
	if off >= len(s) {
		return &Error{Offset: len(s), EOF: true}
	}
	return &Error{Offset: off, Near: s[off:]}
}
