// Package formula checks custom condition formulas such as "A or (B and not C)".
package formula

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Parameter names the input an Error refers to.
type Parameter string

const (
	ParamFormula    Parameter = "formula"
	ParamConditions Parameter = "conditions"
)

// Error describes an invalid formula.
type Error struct {
	Param   Parameter
	Message string
}

func (e *Error) Error() string { return e.Message }

var formulaLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
	{Name: "Keyword", Pattern: `(?:and|or|not)\b`},
	{Name: "Label", Pattern: `[A-Z]+\b`},
	{Name: "Word", Pattern: `[^\s()]+`},
	{Name: "Punct", Pattern: `[()]`},
})

type orNode struct {
	Terms []*andNode `parser:"@@ ( 'or' @@ )*"`
}

type andNode struct {
	Factors []*notNode `parser:"@@ ( 'and' @@ )*"`
}

type notNode struct {
	Not  bool      `parser:"@'not'?"`
	Atom *atomNode `parser:"@@"`
}

type atomNode struct {
	Label string  `parser:"  @Label"`
	Group *orNode `parser:"| '(' @@ ')'"`
}

var parser = participle.MustBuild[orNode](
	participle.Lexer(formulaLexer),
	participle.Elide("Whitespace"),
)

// Validate parses expr and checks that it references exactly labels.
func Validate(expr string, labels []string) error {
	if strings.TrimSpace(expr) == "" {
		return &Error{Param: ParamFormula, Message: "cannot be empty"}
	}

	tree, err := parser.ParseString("", expr)
	if err != nil {
		off := len(expr)
		var perr participle.Error
		if errors.As(err, &perr) {
			off = perr.Position().Offset
		}
		return &Error{
			Param:   ParamFormula,
			Message: fmt.Sprintf("check expression starting from \"%s\"", expr[errorStart(expr, off):]),
		}
	}

	used := map[string]bool{}
	collect(tree, used)
	want := map[string]bool{}
	for _, l := range labels {
		want[l] = true
	}
	if !sameSet(used, want) {
		return &Error{Param: ParamConditions, Message: "incorrect number of conditions"}
	}
	return nil
}

// Labels returns the distinct labels of a valid formula in sorted order.
func Labels(expr string) ([]string, error) {
	tree, err := parser.ParseString("", expr)
	if err != nil {
		return nil, err
	}
	used := map[string]bool{}
	collect(tree, used)
	out := make([]string, 0, len(used))
	for l := range used {
		out = append(out, l)
	}
	sort.Strings(out)
	return out, nil
}

// errorStart moves a failure that follows a complete operand back to the end
// of that operand, so the reported remainder keeps its leading whitespace.
func errorStart(expr string, off int) int {
	if off > len(expr) {
		off = len(expr)
	}
	q := off
	for q > 0 && (expr[q-1] == ' ' || expr[q-1] == '\t' || expr[q-1] == '\r' || expr[q-1] == '\n') {
		q--
	}
	if q < off && q > 0 {
		if c := expr[q-1]; c == ')' || (c >= 'A' && c <= 'Z') {
			return q
		}
	}
	return off
}

func collect(n *orNode, used map[string]bool) {
	for _, and := range n.Terms {
		for _, f := range and.Factors {
			if f.Atom.Group != nil {
				collect(f.Atom.Group, used)
				continue
			}
			used[f.Atom.Label] = true
		}
	}
}

func sameSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// LabelFor returns the label of the n-th condition, counting from zero:
// A..Z, then AA, AB and so on.
func LabelFor(n int) string {
	var b []byte
	for n++; n > 0; n = (n - 1) / 26 {
		b = append([]byte{byte('A' + (n-1)%26)}, b...)
	}
	return string(b)
}
