package lambda

// AlphaEquiv reports whether two terms are equal up to a consistent,
// injective renaming of identifiers and static-exception labels. Free
// identifiers are matched by position too, so terms built by independent
// parses compare equal when they have the same shape.
func AlphaEquiv(a, b Term) bool {
	e := &alphaEnv{
		ids: make(map[Ident]Ident), rids: make(map[Ident]Ident),
		labels: make(map[int]int), rlabels: make(map[int]int),
	}
	return e.term(a, b)
}

type alphaEnv struct {
	ids     map[Ident]Ident
	rids    map[Ident]Ident
	labels  map[int]int
	rlabels map[int]int
}

func (e *alphaEnv) bind(a, b Ident) {
	e.ids[a] = b
	e.rids[b] = a
}

func (e *alphaEnv) sameIdent(a, b Ident) bool {
	if r, ok := e.ids[a]; ok {
		return r == b
	}
	if _, taken := e.rids[b]; taken {
		return false
	}
	e.bind(a, b)
	return true
}

func (e *alphaEnv) bindLabel(a, b int) {
	e.labels[a] = b
	e.rlabels[b] = a
}

func (e *alphaEnv) sameLabel(a, b int) bool {
	if r, ok := e.labels[a]; ok {
		return r == b
	}
	if _, taken := e.rlabels[b]; taken {
		return false
	}
	e.bindLabel(a, b)
	return true
}

func (e *alphaEnv) params(a, b []Param) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Kind != b[i].Kind {
			return false
		}
		e.bind(a[i].Id, b[i].Id)
	}
	return true
}

func (e *alphaEnv) terms(a, b []Term) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !e.term(a[i], b[i]) {
			return false
		}
	}
	return true
}

func (e *alphaEnv) term(a, b Term) bool {
	switch x := a.(type) {
	case *Var:
		y, ok := b.(*Var)
		return ok && e.sameIdent(x.Id, y.Id)
	case *Const:
		y, ok := b.(*Const)
		return ok && constEqual(x.Value, y.Value)
	case *Apply:
		y, ok := b.(*Apply)
		return ok && x.Tailcall == y.Tailcall && e.term(x.Func, y.Func) && e.terms(x.Args, y.Args)
	case *Function:
		y, ok := b.(*Function)
		if !ok || x.Kind != y.Kind || x.Return != y.Return || x.Attr != y.Attr {
			return false
		}
		return e.params(x.Params, y.Params) && e.term(x.Body, y.Body)
	case *Let:
		// Value kinds are hints the passes may refine; they don't take part
		// in equivalence.
		y, ok := b.(*Let)
		if !ok || x.Kind != y.Kind || !e.term(x.Bound, y.Bound) {
			return false
		}
		e.bind(x.Id, y.Id)
		return e.term(x.Body, y.Body)
	case *Letrec:
		y, ok := b.(*Letrec)
		if !ok || len(x.Bindings) != len(y.Bindings) {
			return false
		}
		for i := range x.Bindings {
			e.bind(x.Bindings[i].Id, y.Bindings[i].Id)
		}
		for i := range x.Bindings {
			if !e.term(x.Bindings[i].Bound, y.Bindings[i].Bound) {
				return false
			}
		}
		return e.term(x.Body, y.Body)
	case *Prim:
		y, ok := b.(*Prim)
		return ok && primEqual(x.Op, y.Op) && e.terms(x.Args, y.Args)
	case *Switch:
		y, ok := b.(*Switch)
		if !ok || x.NumConsts != y.NumConsts || x.NumBlocks != y.NumBlocks ||
			!e.term(x.Scrut, y.Scrut) || !e.cases(x.Consts, y.Consts) || !e.cases(x.Blocks, y.Blocks) {
			return false
		}
		return e.optTerm(x.Default, y.Default)
	case *Stringswitch:
		y, ok := b.(*Stringswitch)
		if !ok || len(x.Cases) != len(y.Cases) || !e.term(x.Scrut, y.Scrut) {
			return false
		}
		for i := range x.Cases {
			if x.Cases[i].Pattern != y.Cases[i].Pattern || !e.term(x.Cases[i].Body, y.Cases[i].Body) {
				return false
			}
		}
		return e.optTerm(x.Default, y.Default)
	case *Staticraise:
		y, ok := b.(*Staticraise)
		return ok && e.sameLabel(x.Label, y.Label) && e.terms(x.Args, y.Args)
	case *Staticcatch:
		y, ok := b.(*Staticcatch)
		if !ok {
			return false
		}
		e.bindLabel(x.Label, y.Label)
		if !e.term(x.Body, y.Body) {
			return false
		}
		return e.params(x.Params, y.Params) && e.term(x.Handler, y.Handler)
	case *Trywith:
		y, ok := b.(*Trywith)
		if !ok || !e.term(x.Body, y.Body) {
			return false
		}
		e.bind(x.ExnVar, y.ExnVar)
		return e.term(x.Handler, y.Handler)
	case *Ifthenelse:
		y, ok := b.(*Ifthenelse)
		return ok && e.term(x.Cond, y.Cond) && e.term(x.Then, y.Then) && e.term(x.Else, y.Else)
	case *Sequence:
		y, ok := b.(*Sequence)
		return ok && e.term(x.First, y.First) && e.term(x.Second, y.Second)
	case *While:
		y, ok := b.(*While)
		return ok && e.term(x.Cond, y.Cond) && e.term(x.Body, y.Body)
	case *For:
		y, ok := b.(*For)
		if !ok || x.Dir != y.Dir || !e.term(x.Lo, y.Lo) || !e.term(x.Hi, y.Hi) {
			return false
		}
		e.bind(x.Id, y.Id)
		return e.term(x.Body, y.Body)
	case *Assign:
		y, ok := b.(*Assign)
		return ok && e.sameIdent(x.Id, y.Id) && e.term(x.Value, y.Value)
	case *Send:
		y, ok := b.(*Send)
		return ok && e.term(x.Meth, y.Meth) && e.term(x.Obj, y.Obj) && e.terms(x.Args, y.Args)
	case *Event:
		y, ok := b.(*Event)
		return ok && e.term(x.Term, y.Term)
	case *Ifused:
		y, ok := b.(*Ifused)
		return ok && e.sameIdent(x.Id, y.Id) && e.term(x.Term, y.Term)
	}
	return false
}

func (e *alphaEnv) cases(a, b []Case) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Index != b[i].Index || !e.term(a[i].Body, b[i].Body) {
			return false
		}
	}
	return true
}

func (e *alphaEnv) optTerm(a, b Term) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || e.term(a, b)
}

func constEqual(a, b Constant) bool {
	switch x := a.(type) {
	case ConstInt:
		y, ok := b.(ConstInt)
		return ok && x == y
	case ConstString:
		y, ok := b.(ConstString)
		return ok && x == y
	case ConstBlock:
		y, ok := b.(ConstBlock)
		if !ok || x.Tag != y.Tag || len(x.Fields) != len(y.Fields) {
			return false
		}
		for i := range x.Fields {
			if !constEqual(x.Fields[i], y.Fields[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func primEqual(a, b Primitive) bool {
	switch x := a.(type) {
	case Pmakeblock:
		y, ok := b.(Pmakeblock)
		if !ok || x.Tag != y.Tag || x.Mut != y.Mut || len(x.Shape) != len(y.Shape) {
			return false
		}
		for i := range x.Shape {
			if x.Shape[i] != y.Shape[i] {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
