package annot

import (
	"lamina/internal/config"
	"lamina/internal/diag"
	"lamina/internal/lambda"
)

// EmitTailInfos is the final traversal recording, for each application,
// whether it sits in tail position of its enclosing function. It also warns
// about @tail-hinted calls that are not tail calls after all rewrites.
func EmitTailInfos(flags config.Flags, sink *diag.Sink, t lambda.Term) {
	e := &emitter{flags: flags, sink: sink}
	e.tail(t)
}

type emitter struct {
	flags config.Flags
	sink  *diag.Sink
}

func (e *emitter) tail(t lambda.Term) {
	switch n := t.(type) {
	case *lambda.Apply:
		if e.flags.Annotations {
			e.sink.Annotate(n.Loc, true)
		}
		e.nonTail(n.Func)
		for _, a := range n.Args {
			e.nonTail(a)
		}
	case *lambda.Function:
		e.tail(n.Body)
	default:
		lambda.ShallowIter(e.tail, e.nonTail, t)
	}
}

func (e *emitter) nonTail(t lambda.Term) {
	switch n := t.(type) {
	case *lambda.Apply:
		if n.Tailcall == lambda.TailcallExpect {
			e.sink.Warn(diag.WarnExpectTailcall, n.Loc,
				"expected this call to be a tail call")
		}
		if e.flags.Annotations {
			e.sink.Annotate(n.Loc, false)
		}
		e.nonTail(n.Func)
		for _, a := range n.Args {
			e.nonTail(a)
		}
	case *lambda.Function:
		e.tail(n.Body)
	default:
		// Tail position of a non-tail node is still non-tail for the
		// enclosing function.
		lambda.IterChildren(e.nonTail, t)
	}
}
