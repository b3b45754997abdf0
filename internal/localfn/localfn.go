package localfn

import (
	"lamina/internal/diag"
	"lamina/internal/lambda"
)

// Local-function lifting rewrites a let-bound first-order function whose
// every call site is a fully applied tail call inside one common tail scope
// into a static-exception handler wrapping that scope; the calls become
// Staticraise. Scopes are identified by node identity, which is pointer
// identity of the term nodes.

type slot struct {
	fn    *lambda.Function
	scope lambda.Term // nil until the first admissible call site is seen
}

type lifted struct {
	label int
	fn    *lambda.Function
}

type lifter struct {
	sink         *diag.Sink
	slots        map[lambda.Ident]*slot
	staticID     map[lambda.Ident]int
	static       map[lambda.Term][]lifted
	currentScope lambda.Term
}

// Simplify runs the lifting pass.
func Simplify(sink *diag.Sink, t lambda.Term) lambda.Term {
	l := &lifter{
		sink:     sink,
		slots:    make(map[lambda.Ident]*slot),
		staticID: make(map[lambda.Ident]int),
		static:   make(map[lambda.Term][]lifted),
	}
	l.currentScope = t
	l.tail(t)
	return l.rewrite(t)
}

func eligible(attr lambda.FunctionAttr) bool {
	switch attr.Local {
	case lambda.LocalAlways:
		return true
	case lambda.LocalDefault:
		return attr.Inline == lambda.InlineNever || attr.Inline == lambda.InlineDefault
	default:
		return false
	}
}

func (l *lifter) checkStatic(fn *lambda.Function) {
	if fn.Attr.Local == lambda.LocalAlways {
		l.sink.Warn(diag.WarnInliningImpossible, fn.Loc,
			"this function cannot be compiled into a static continuation")
	}
}

func (l *lifter) tail(t lambda.Term) {
	switch n := t.(type) {
	case *lambda.Let:
		fn, ok := n.Bound.(*lambda.Function)
		if !ok || !eligible(fn.Attr) {
			break
		}
		l.slots[n.Id] = &slot{fn: fn}
		l.tail(n.Body)
		if sl, alive := l.slots[n.Id]; alive && sl.scope != nil {
			sc := sl.scope
			if sc == l.currentScope {
				// A handler cannot be hoisted above its binding.
				sc = n.Body
			}
			label := lambda.NextRaiseCount()
			l.staticID[n.Id] = label
			l.static[sc] = append(l.static[sc], lifted{label: label, fn: fn})
		} else {
			l.checkStatic(fn)
		}
		delete(l.slots, n.Id)
		l.nonTail(fn.Body)
		return
	case *lambda.Apply:
		v, ok := n.Func.(*lambda.Var)
		if !ok {
			break
		}
		sl, ok := l.slots[v.Id]
		if !ok {
			break
		}
		switch {
		case len(n.Args) != len(sl.fn.Params):
			delete(l.slots, v.Id)
		case sl.scope == nil:
			sl.scope = l.currentScope
		case sl.scope != l.currentScope:
			delete(l.slots, v.Id)
		}
		for _, a := range n.Args {
			l.nonTail(a)
		}
		return
	case *lambda.Var:
		// Any other reference is an escape.
		delete(l.slots, n.Id)
		return
	}
	lambda.ShallowIter(l.tail, l.nonTail, t)
}

func (l *lifter) nonTail(t lambda.Term) {
	saved := l.currentScope
	l.currentScope = t
	l.tail(t)
	l.currentScope = saved
}

func (l *lifter) rewrite(t lambda.Term) lambda.Term {
	var out lambda.Term
	switch n := t.(type) {
	case *lambda.Let:
		if _, ok := l.staticID[n.Id]; ok {
			out = l.rewrite(n.Body)
			break
		}
		out = lambda.MapChildren(l.rewrite, t)
	case *lambda.Apply:
		if v, ok := n.Func.(*lambda.Var); ok {
			if label, ok := l.staticID[v.Id]; ok {
				args := make([]lambda.Term, len(n.Args))
				for i, a := range n.Args {
					args[i] = l.rewrite(a)
				}
				out = &lambda.Staticraise{Label: label, Args: args}
				break
			}
		}
		out = lambda.MapChildren(l.rewrite, t)
	default:
		out = lambda.MapChildren(l.rewrite, t)
	}
	for _, lf := range l.static[t] {
		out = &lambda.Staticcatch{
			Body:    out,
			Label:   lf.label,
			Params:  append([]lambda.Param(nil), lf.fn.Params...),
			Handler: l.rewrite(lf.fn.Body),
		}
	}
	return out
}
