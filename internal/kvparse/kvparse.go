// Package kvparse compiles the "field=value,field=value" grammar used by
// the CLI's --where and --set flags (spec.md §6) into an ordered list of
// pairs, grounded in core/ir's participle-based reference grammar.
package kvparse

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Pair is one field=value assignment. Order is preserved so --set and
// --where flags translate deterministically into SQL field lists.
type Pair struct {
	Field string
	Value string
}

//nolint:govet // participle grammar tags are not standard struct tags
type pairGrammar struct {
	Field string `@Ident "="`
	Value string `( @String | @Bare )`
}

//nolint:govet // participle grammar tags are not standard struct tags
type listGrammar struct {
	Pairs []*pairGrammar `@@ ( "," @@ )*`
}

var kvLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `'[^']*'|"[^"]*"`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_.]*`},
	{Name: "Bare", Pattern: `[^,=\s]+`},
	{Name: "Punct", Pattern: `[=,]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var kvParser = participle.MustBuild[listGrammar](
	participle.Lexer(kvLexer),
	participle.Elide("Whitespace"),
)

// Parse compiles a "field=value,field=value" string into an ordered pair
// list. Values may be bare tokens or single/double-quoted strings;
// quotes are stripped but the contents are otherwise left untouched —
// callers are responsible for any further type coercion via
// core/typedesc.
func Parse(s string) ([]Pair, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	parsed, err := kvParser.ParseString("", s)
	if err != nil {
		return nil, fmt.Errorf("kvparse: invalid assignment list %q: %w", s, err)
	}

	pairs := make([]Pair, 0, len(parsed.Pairs))
	for _, p := range parsed.Pairs {
		pairs = append(pairs, Pair{Field: p.Field, Value: unquote(p.Value)})
	}
	return pairs, nil
}

func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '\'' && v[len(v)-1] == '\'') || (v[0] == '"' && v[len(v)-1] == '"') {
			return v[1 : len(v)-1]
		}
	}
	return v
}
