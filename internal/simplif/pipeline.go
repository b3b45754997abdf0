package simplif

import (
	"fmt"

	"github.com/tliron/commonlog"

	"lamina/internal/config"
	"lamina/internal/diag"
	"lamina/internal/lambda"
	"lamina/internal/localfn"
	"lamina/internal/tmc"
)

var log = commonlog.GetLogger("lamina.simplif")

// Pass is a single transformation over a compilation unit's term.
type Pass interface {
	Name() string
	Description() string
	Run(lambda.Term) (lambda.Term, error)
}

// Pipeline returns the fixed pass sequence for the given flags: local
// function lifting (native code only), exit simplification, let
// simplification, then TMC.
func Pipeline(flags config.Flags, sink *diag.Sink) []Pass {
	var passes []Pass
	if flags.NativeCode {
		passes = append(passes, localfnPass{sink: sink})
	}
	passes = append(passes,
		exitsPass{},
		letsPass{flags: flags},
		tmcPass{flags: flags, sink: sink},
	)
	return passes
}

// Run applies the whole pipeline. Internal invariant violations surface as
// an internal-error diagnostic instead of a raw panic.
func Run(flags config.Flags, sink *diag.Sink, t lambda.Term) (out lambda.Term, err error) {
	defer func() {
		if r := recover(); r != nil {
			if ice, ok := r.(*diag.InternalError); ok {
				out, err = nil, ice
				return
			}
			panic(r)
		}
	}()
	out = t
	for _, pass := range Pipeline(flags, sink) {
		log.Debugf("running %s: %s", pass.Name(), pass.Description())
		out, err = pass.Run(out)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", pass.Name(), err)
		}
	}
	return out, nil
}

type localfnPass struct {
	sink *diag.Sink
}

func (localfnPass) Name() string { return "local functions" }
func (localfnPass) Description() string {
	return "lifts local functions into static-exception handlers"
}
func (p localfnPass) Run(t lambda.Term) (lambda.Term, error) {
	return localfn.Simplify(p.sink, t), nil
}

type exitsPass struct{}

func (exitsPass) Name() string { return "exits" }
func (exitsPass) Description() string {
	return "contracts dead, single-use and aliased static-exception handlers"
}
func (exitsPass) Run(t lambda.Term) (lambda.Term, error) {
	return SimplifyExits(t), nil
}

type letsPass struct {
	flags config.Flags
}

func (letsPass) Name() string { return "lets" }
func (letsPass) Description() string {
	return "removes dead bindings, propagates copies and promotes reference cells"
}
func (p letsPass) Run(t lambda.Term) (lambda.Term, error) {
	return SimplifyLets(p.flags, t), nil
}

type tmcPass struct {
	flags config.Flags
	sink  *diag.Sink
}

func (tmcPass) Name() string { return "tmc" }
func (tmcPass) Description() string {
	return "synthesizes destination-passing companions for TMC candidates"
}
func (p tmcPass) Run(t lambda.Term) (lambda.Term, error) {
	return tmc.Rewrite(p.flags, p.sink, t)
}
