package grammar

import (
	"github.com/alecthomas/participle/v2/lexer"
)

var TermLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		// Comments
		{"Comment", `;[^\n]*`, nil},

		// String literals
		{"String", `"(\\.|[^"\\])*"`, nil},

		// Integer literals (sign included; the grammar has no infix minus)
		{"Int", `-?[0-9]+`, nil},

		// Call-site and function attributes
		{"Attr", `@[a-z]+`, nil},

		// Identifiers; '*' allows the *opt* convention for optional params
		{"Ident", `[A-Za-z_*][A-Za-z0-9_*'.]*`, nil},

		// Punctuation
		{"Punct", `[():]`, nil},

		// Whitespace
		{"Whitespace", `[ \t\r\n]+`, nil},
	},
})
