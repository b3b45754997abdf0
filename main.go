// SPDX-License-Identifier: Apache-2.0
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/fatih/color"
	"github.com/tliron/commonlog"

	"lamina/grammar"
	"lamina/internal/annot"
	"lamina/internal/config"
	"lamina/internal/diag"
	"lamina/internal/lambda"
	"lamina/internal/simplif"
	"lamina/repl"
)

func main() {
	native := flag.Bool("native", false, "optimize for the native-code back end")
	debug := flag.Bool("debug", false, "keep the term debuggable; disables most rewrites")
	annotations := flag.Bool("annot", false, "emit tail-call annotations")
	forceTMC := flag.Bool("force-tmc", false, "treat every recursive function as a TMC candidate")
	verbosity := flag.Int("v", 0, "log verbosity")
	replMode := flag.Bool("repl", false, "start an interactive loop")
	flag.Parse()

	commonlog.Configure(*verbosity, nil)

	flags := config.Flags{
		NativeCode:  *native,
		Debug:       *debug,
		Annotations: *annotations,
		ForceTMC:    *forceTMC,
	}

	if *replMode {
		repl.Start(os.Stdin, flags)
		return
	}

	if flag.NArg() < 1 {
		fmt.Println("Usage: lamina [flags] <file.lam>")
		os.Exit(1)
	}

	path := flag.Arg(0)
	source, err := os.ReadFile(path)
	if err != nil {
		color.Red("Failed to read file: %s", err)
		os.Exit(1)
	}

	term, err := grammar.Parse(path, string(source))
	if err != nil {
		reportParseError(string(source), err)
		os.Exit(1)
	}

	term = annot.SplitDefaultWrappers(term)

	sink := &diag.Sink{}
	out, err := simplif.Run(flags, sink, term)
	if err != nil {
		color.Red("%s", err)
		os.Exit(1)
	}
	annot.EmitTailInfos(flags, sink, out)

	reporter := diag.NewReporter(path, string(source))
	for _, w := range sink.Warnings {
		fmt.Print(reporter.FormatWarning(w))
	}

	fmt.Println(lambda.Print(out))
	color.Green("✅ Successfully simplified %s", path)
}

// reportParseError prints a friendly caret-style parse error message.
func reportParseError(src string, err error) {
	pe, ok := err.(participle.Error)
	if !ok {
		color.Red("Unexpected error: %s", err)
		return
	}

	pos := pe.Position()
	lines := strings.Split(src, "\n")
	if pos.Line <= 0 || pos.Line > len(lines) {
		color.Red("Syntax error at unknown location: %s", err)
		return
	}

	line := lines[pos.Line-1]
	caret := strings.Repeat(" ", pos.Column-1) + "^"

	color.Red("❌ Syntax error in %s at line %d, column %d:", pos.Filename, pos.Line, pos.Column)
	fmt.Println(line)
	color.HiRed(caret)
	fmt.Printf("→ %s\n", pe.Message())
}
