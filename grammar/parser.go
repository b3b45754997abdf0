package grammar

import (
	"github.com/alecthomas/participle/v2"

	"lamina/internal/lambda"
)

var termParser = participle.MustBuild[Node](
	participle.Lexer(TermLexer),
	participle.Elide("Whitespace", "Comment"),
	// Forms share the "(" prefix; the keyword behind it disambiguates.
	participle.UseLookahead(3),
)

// Parse reads one term in the textual IR syntax and lowers it to a lambda
// term with fresh, lexically resolved identifiers.
func Parse(filename, source string) (lambda.Term, error) {
	node, err := termParser.ParseString(filename, source)
	if err != nil {
		return nil, err
	}
	return newLowerer(filename).node(node)
}

// MustParse is Parse for fixtures known to be well-formed.
func MustParse(source string) lambda.Term {
	t, err := Parse("<fixture>", source)
	if err != nil {
		panic(err)
	}
	return t
}
