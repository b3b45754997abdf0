// Package repl SPDX-License-Identifier: Apache-2.0
package repl

import (
	"bufio"
	"fmt"
	"io"

	"github.com/fatih/color"

	"lamina/grammar"
	"lamina/internal/config"
	"lamina/internal/diag"
	"lamina/internal/lambda"
	"lamina/internal/simplif"
)

const PROMPT = ">> "

// Start reads one term per line, runs the optimization pipeline on it and
// prints the simplified form.
func Start(in io.Reader, flags config.Flags) {
	scanner := bufio.NewScanner(in)

	for {
		fmt.Print(PROMPT)
		if !scanner.Scan() {
			return
		}

		line := scanner.Text()
		if line == "" {
			continue
		}

		term, err := grammar.Parse("<repl>", line)
		if err != nil {
			color.Red("parse error: %s", err)
			continue
		}

		sink := &diag.Sink{}
		out, err := simplif.Run(flags, sink, term)
		if err != nil {
			color.Red("%s", err)
			continue
		}

		reporter := diag.NewReporter("<repl>", line)
		for _, w := range sink.Warnings {
			fmt.Print(reporter.FormatWarning(w))
		}
		fmt.Println(lambda.Print(out))
	}
}
