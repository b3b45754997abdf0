package lambda

// Subst replaces every free occurrence of the mapped identifiers with the
// associated term. Replacement terms must not capture: callers substitute
// either fresh identifiers or closed terms.
func Subst(env map[Ident]Term, t Term) Term {
	if len(env) == 0 {
		return t
	}
	var walk func(Term) Term
	walk = func(t Term) Term {
		switch n := t.(type) {
		case *Var:
			if r, ok := env[n.Id]; ok {
				return r
			}
		case *Assign:
			if r, ok := env[n.Id]; ok {
				if v, ok := r.(*Var); ok {
					return &Assign{Id: v.Id, Value: walk(n.Value)}
				}
			}
		case *Ifused:
			if r, ok := env[n.Id]; ok {
				if v, ok := r.(*Var); ok {
					return &Ifused{Id: v.Id, Term: walk(n.Term)}
				}
			}
		}
		return MapChildren(walk, t)
	}
	return walk(t)
}

// Rename is Subst restricted to variable-for-variable replacement.
func Rename(env map[Ident]Ident, t Term) Term {
	m := make(map[Ident]Term, len(env))
	for old, id := range env {
		m[old] = &Var{Id: id}
	}
	return Subst(m, t)
}

// Duplicate returns an alpha-renamed copy of t: every bound identifier and
// every static-exception label bound within t is replaced by a fresh one, so
// the copy shares no binder with the original.
func Duplicate(t Term) Term {
	env := make(map[Ident]Ident)
	lenv := make(map[int]int)
	var walk func(Term) Term
	walk = func(t Term) Term {
		switch n := t.(type) {
		case *Var:
			if id, ok := env[n.Id]; ok {
				return &Var{Id: id}
			}
			return &Var{Id: n.Id}
		case *Assign:
			id := n.Id
			if r, ok := env[id]; ok {
				id = r
			}
			return &Assign{Id: id, Value: walk(n.Value)}
		case *Ifused:
			id := n.Id
			if r, ok := env[id]; ok {
				id = r
			}
			return &Ifused{Id: id, Term: walk(n.Term)}
		case *Let:
			bound := walk(n.Bound)
			id := n.Id.Rename()
			env[n.Id] = id
			return &Let{Kind: n.Kind, Value: n.Value, Id: id, Bound: bound, Body: walk(n.Body)}
		case *Letrec:
			bindings := make([]Binding, len(n.Bindings))
			for i, b := range n.Bindings {
				env[b.Id] = b.Id.Rename()
				bindings[i].Id = env[b.Id]
			}
			for i, b := range n.Bindings {
				bindings[i].Bound = walk(b.Bound)
			}
			return &Letrec{Bindings: bindings, Body: walk(n.Body)}
		case *Function:
			params := make([]Param, len(n.Params))
			for i, p := range n.Params {
				env[p.Id] = p.Id.Rename()
				params[i] = Param{Id: env[p.Id], Kind: p.Kind}
			}
			return &Function{
				Kind: n.Kind, Params: params, Return: n.Return,
				Body: walk(n.Body), Attr: n.Attr, Loc: n.Loc,
			}
		case *For:
			id := n.Id.Rename()
			lo, hi := walk(n.Lo), walk(n.Hi)
			env[n.Id] = id
			return &For{Id: id, Lo: lo, Hi: hi, Dir: n.Dir, Body: walk(n.Body)}
		case *Trywith:
			body := walk(n.Body)
			id := n.ExnVar.Rename()
			env[n.ExnVar] = id
			return &Trywith{Body: body, ExnVar: id, Handler: walk(n.Handler)}
		case *Staticcatch:
			label := NextRaiseCount()
			lenv[n.Label] = label
			params := make([]Param, len(n.Params))
			for i, p := range n.Params {
				env[p.Id] = p.Id.Rename()
				params[i] = Param{Id: env[p.Id], Kind: p.Kind}
			}
			return &Staticcatch{Body: walk(n.Body), Label: label, Params: params, Handler: walk(n.Handler)}
		case *Staticraise:
			label := n.Label
			if l, ok := lenv[label]; ok {
				label = l
			}
			return &Staticraise{Label: label, Args: mapTerms(walk, n.Args)}
		}
		return MapChildren(walk, t)
	}
	return walk(t)
}
