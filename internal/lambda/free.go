package lambda

// FreeVars returns the set of identifiers occurring free in t. Assign and
// Ifused count as occurrences of their identifier.
func FreeVars(t Term) map[Ident]bool {
	free := make(map[Ident]bool)
	bound := make(map[Ident]bool)
	use := func(id Ident) {
		if !bound[id] {
			free[id] = true
		}
	}
	// Identifier stamps are globally unique, so a binder can be recorded
	// without scoped removal: the same id cannot occur outside its scope
	// in a well-formed term.
	var walk func(Term)
	walk = func(t Term) {
		switch n := t.(type) {
		case *Var:
			use(n.Id)
			return
		case *Assign:
			use(n.Id)
		case *Ifused:
			use(n.Id)
		case *Let:
			walk(n.Bound)
			bound[n.Id] = true
			walk(n.Body)
			return
		case *Letrec:
			for _, b := range n.Bindings {
				bound[b.Id] = true
			}
		case *Function:
			for _, p := range n.Params {
				bound[p.Id] = true
			}
		case *For:
			walk(n.Lo)
			walk(n.Hi)
			bound[n.Id] = true
			walk(n.Body)
			return
		case *Trywith:
			walk(n.Body)
			bound[n.ExnVar] = true
			walk(n.Handler)
			return
		case *Staticcatch:
			for _, p := range n.Params {
				bound[p.Id] = true
			}
		}
		IterChildren(walk, t)
	}
	walk(t)
	return free
}
