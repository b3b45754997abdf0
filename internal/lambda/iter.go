package lambda

// ShallowIter applies tail to the direct subterms that sit in tail position
// of t and nonTail to all others. It does not recurse.
func ShallowIter(tail, nonTail func(Term), t Term) {
	switch n := t.(type) {
	case *Var, *Const:
	case *Apply:
		nonTail(n.Func)
		for _, a := range n.Args {
			nonTail(a)
		}
	case *Function:
		nonTail(n.Body)
	case *Let:
		nonTail(n.Bound)
		tail(n.Body)
	case *Letrec:
		for _, b := range n.Bindings {
			nonTail(b.Bound)
		}
		tail(n.Body)
	case *Prim:
		for _, a := range n.Args {
			nonTail(a)
		}
	case *Switch:
		nonTail(n.Scrut)
		for _, c := range n.Consts {
			tail(c.Body)
		}
		for _, c := range n.Blocks {
			tail(c.Body)
		}
		if n.Default != nil {
			tail(n.Default)
		}
	case *Stringswitch:
		nonTail(n.Scrut)
		for _, c := range n.Cases {
			tail(c.Body)
		}
		if n.Default != nil {
			tail(n.Default)
		}
	case *Staticraise:
		for _, a := range n.Args {
			nonTail(a)
		}
	case *Staticcatch:
		tail(n.Body)
		tail(n.Handler)
	case *Trywith:
		nonTail(n.Body)
		tail(n.Handler)
	case *Ifthenelse:
		nonTail(n.Cond)
		tail(n.Then)
		tail(n.Else)
	case *Sequence:
		nonTail(n.First)
		tail(n.Second)
	case *While:
		nonTail(n.Cond)
		nonTail(n.Body)
	case *For:
		nonTail(n.Lo)
		nonTail(n.Hi)
		nonTail(n.Body)
	case *Assign:
		nonTail(n.Value)
	case *Send:
		nonTail(n.Meth)
		nonTail(n.Obj)
		for _, a := range n.Args {
			nonTail(a)
		}
	case *Event:
		tail(n.Term)
	case *Ifused:
		tail(n.Term)
	}
}

// IterChildren applies f to every direct subterm of t.
func IterChildren(f func(Term), t Term) {
	ShallowIter(f, f, t)
}

// MapChildren rebuilds t with f applied to every direct subterm. The result
// never aliases t: a fresh node is allocated even for leaves.
func MapChildren(f func(Term) Term, t Term) Term {
	switch n := t.(type) {
	case *Var:
		return &Var{Id: n.Id}
	case *Const:
		return &Const{Value: n.Value}
	case *Apply:
		return &Apply{
			Func:     f(n.Func),
			Args:     mapTerms(f, n.Args),
			Loc:      n.Loc,
			Tailcall: n.Tailcall,
			Inlined:  n.Inlined,
		}
	case *Function:
		return &Function{
			Kind:   n.Kind,
			Params: append([]Param(nil), n.Params...),
			Return: n.Return,
			Body:   f(n.Body),
			Attr:   n.Attr,
			Loc:    n.Loc,
		}
	case *Let:
		return &Let{Kind: n.Kind, Value: n.Value, Id: n.Id, Bound: f(n.Bound), Body: f(n.Body)}
	case *Letrec:
		bindings := make([]Binding, len(n.Bindings))
		for i, b := range n.Bindings {
			bindings[i] = Binding{Id: b.Id, Bound: f(b.Bound)}
		}
		return &Letrec{Bindings: bindings, Body: f(n.Body)}
	case *Prim:
		return &Prim{Op: n.Op, Args: mapTerms(f, n.Args), Loc: n.Loc}
	case *Switch:
		return &Switch{
			Scrut:     f(n.Scrut),
			NumConsts: n.NumConsts,
			Consts:    mapCases(f, n.Consts),
			NumBlocks: n.NumBlocks,
			Blocks:    mapCases(f, n.Blocks),
			Default:   mapOpt(f, n.Default),
			Loc:       n.Loc,
		}
	case *Stringswitch:
		cases := make([]StrCase, len(n.Cases))
		for i, c := range n.Cases {
			cases[i] = StrCase{Pattern: c.Pattern, Body: f(c.Body)}
		}
		return &Stringswitch{Scrut: f(n.Scrut), Cases: cases, Default: mapOpt(f, n.Default), Loc: n.Loc}
	case *Staticraise:
		return &Staticraise{Label: n.Label, Args: mapTerms(f, n.Args)}
	case *Staticcatch:
		return &Staticcatch{
			Body:    f(n.Body),
			Label:   n.Label,
			Params:  append([]Param(nil), n.Params...),
			Handler: f(n.Handler),
		}
	case *Trywith:
		return &Trywith{Body: f(n.Body), ExnVar: n.ExnVar, Handler: f(n.Handler)}
	case *Ifthenelse:
		return &Ifthenelse{Cond: f(n.Cond), Then: f(n.Then), Else: f(n.Else)}
	case *Sequence:
		return &Sequence{First: f(n.First), Second: f(n.Second)}
	case *While:
		return &While{Cond: f(n.Cond), Body: f(n.Body)}
	case *For:
		return &For{Id: n.Id, Lo: f(n.Lo), Hi: f(n.Hi), Dir: n.Dir, Body: f(n.Body)}
	case *Assign:
		return &Assign{Id: n.Id, Value: f(n.Value)}
	case *Send:
		return &Send{Meth: f(n.Meth), Obj: f(n.Obj), Args: mapTerms(f, n.Args), Loc: n.Loc}
	case *Event:
		return &Event{Term: f(n.Term), Event: n.Event}
	case *Ifused:
		return &Ifused{Id: n.Id, Term: f(n.Term)}
	}
	return t
}

func mapTerms(f func(Term) Term, ts []Term) []Term {
	out := make([]Term, len(ts))
	for i, t := range ts {
		out[i] = f(t)
	}
	return out
}

func mapCases(f func(Term) Term, cs []Case) []Case {
	out := make([]Case, len(cs))
	for i, c := range cs {
		out[i] = Case{Index: c.Index, Body: f(c.Body)}
	}
	return out
}

func mapOpt(f func(Term) Term, t Term) Term {
	if t == nil {
		return nil
	}
	return f(t)
}
