// SPDX-License-Identifier: Apache-2.0
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"

	"lamina/grammar"
	"lamina/internal/lambda"
)

// lamina-fmt parses a term and prints its canonical textual form, verifying
// that the printer output parses back to the same term.
func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: lamina-fmt <file.lam>")
		os.Exit(1)
	}

	path := os.Args[1]
	source, err := os.ReadFile(path)
	if err != nil {
		color.Red("Failed to read file: %s", err)
		os.Exit(1)
	}

	term, err := grammar.Parse(path, string(source))
	if err != nil {
		color.Red("Syntax error: %s", err)
		os.Exit(1)
	}

	printed := lambda.Print(term)
	reparsed, err := grammar.Parse(path, printed)
	if err != nil {
		color.Red("Printer emitted unparseable output: %s", err)
		os.Exit(1)
	}
	if !lambda.AlphaEquiv(term, reparsed) {
		color.Red("Printer output does not round-trip")
		os.Exit(1)
	}

	fmt.Println(printed)
}
