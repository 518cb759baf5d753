package macro

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// exprLexer tokenises the body of an expression macro. Queries are only
// recognised when the key starts with a letter so "x/2/3" stays arithmetic.
var exprLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		{Name: "Whitespace", Pattern: `\s+`},
		{Name: "String", Pattern: `"(?:\\.|[^"\\])*"`},
		{Name: "Query", Pattern: `/(?:\{HOST\.HOST[1-9]?\}|[\w.\-]*)/[A-Za-z_][\w.\-]*(?:\[(?:"(?:\\.|[^"\\])*"|\[(?:"(?:\\.|[^"\\])*"|[^\]"])*\]|[^\[\]"])*\])?`},
		{Name: "UserMacro", Pattern: `\{\$[A-Z0-9_.]+(?::[^}]*)?\}`},
		{Name: "LLDMacro", Pattern: `\{#[A-Z0-9_.]+\}`},
		{Name: "ValueMacro", Pattern: `\{FUNCTION\.(?:RECOVERY\.)?VALUE[1-9]?\}`},
		{Name: "Period", Pattern: `#\d+(?::now[\w/+\-]*)?|\d+[smhdwMy]?:now[\w/+\-]*`},
		{Name: "Number", Pattern: `(?:\d+(?:\.\d*)?|\.\d+)(?:[eE][+-]?\d+)?[smhdwKMGT]?`},
		{Name: "Keyword", Pattern: `(?:and|or|not)\b`},
		{Name: "Ident", Pattern: `[a-z_][a-z0-9_.]*`},
		{Name: "Operator", Pattern: `<>|<=|>=|[-+*/=<>]`},
		{Name: "Punct", Pattern: `[(),]`},
	},
})

type orExpr struct {
	Left  *andExpr   `parser:"@@"`
	Right []*andExpr `parser:"( 'or' @@ )*"`
}

type andExpr struct {
	Left  *cmpExpr   `parser:"@@"`
	Right []*cmpExpr `parser:"( 'and' @@ )*"`
}

type cmpExpr struct {
	Left  *addExpr `parser:"@@"`
	Right []*cmpOp `parser:"@@*"`
}

type cmpOp struct {
	Op    string   `parser:"@( '=' | '<>' | '<' | '<=' | '>' | '>=' )"`
	Right *addExpr `parser:"@@"`
}

type addExpr struct {
	Left  *mulExpr `parser:"@@"`
	Right []*addOp `parser:"@@*"`
}

type addOp struct {
	Op    string   `parser:"@( '+' | '-' )"`
	Right *mulExpr `parser:"@@"`
}

type mulExpr struct {
	Left  *unary   `parser:"@@"`
	Right []*mulOp `parser:"@@*"`
}

type mulOp struct {
	Op    string `parser:"@( '*' | '/' )"`
	Right *unary `parser:"@@"`
}

type unary struct {
	Ops     []string `parser:"@( '-' | 'not' )*"`
	Primary *primary `parser:"@@"`
}

type primary struct {
	Number *string `parser:"  @Number"`
	String *string `parser:"| @String"`
	Macro  *string `parser:"| @( UserMacro | LLDMacro | ValueMacro )"`
	Call   *call   `parser:"| @@"`
	Group  *orExpr `parser:"| '(' @@ ')'"`
}

type call struct {
	Name string `parser:"@Ident '('"`
	Args []*arg `parser:"( @@ ( ',' @@ )* )? ')'"`
}

type arg struct {
	Query  *string `parser:"  @Query"`
	Period *string `parser:"| @Period"`
	Expr   *orExpr `parser:"| @@"`
}

var exprParser = participle.MustBuild[orExpr](
	participle.Lexer(exprLexer),
	participle.Elide("Whitespace"),
)
