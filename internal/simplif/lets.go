package simplif

import (
	"lamina/internal/config"
	"lamina/internal/lambda"
)

// Let simplification removes bindings of unused variables, substitutes
// variables used exactly once, beta-reduces exact applications, merges
// immediately nested curried functions, and promotes single-field mutable
// blocks to Variable bindings.

type letSimplifier struct {
	optimize bool
	native   bool
	// occ maps every let-bound identifier to its use count. Uses reached
	// through bv count once; uses across a function or loop boundary count
	// twice so single-use rewrites never fire on them.
	occ   map[lambda.Ident]*int
	subst map[lambda.Ident]lambda.Term
}

// localCounts tracks the identifiers bound in the current function or loop
// frame. Entries alias the cells stored in occ.
type localCounts map[lambda.Ident]*int

// SimplifyLets runs the let-simplification pass.
func SimplifyLets(flags config.Flags, t lambda.Term) lambda.Term {
	s := &letSimplifier{
		optimize: flags.Optimize(),
		native:   flags.NativeCode,
		occ:      make(map[lambda.Ident]*int),
		subst:    make(map[lambda.Ident]lambda.Term),
	}
	s.count(localCounts{}, t)
	return s.simplify(t)
}

func (s *letSimplifier) countVar(v lambda.Ident) int {
	if r, ok := s.occ[v]; ok {
		return *r
	}
	return 0
}

func (s *letSimplifier) bindVar(bv localCounts, v lambda.Ident) {
	r := new(int)
	s.occ[v] = r
	bv[v] = r
}

func (s *letSimplifier) useVar(bv localCounts, v lambda.Ident, n int) {
	if r, ok := bv[v]; ok {
		*r += n
		return
	}
	if r, ok := s.occ[v]; ok {
		// Bound in an enclosing frame: the use sits under a lambda or in a
		// loop, so mark it multi-use.
		*r += 2 * n
	}
}

func (s *letSimplifier) count(bv localCounts, t lambda.Term) {
	switch n := t.(type) {
	case *lambda.Const:
	case *lambda.Var:
		s.useVar(bv, n.Id, 1)
	case *lambda.Apply:
		if s.optimize {
			if reduced, ok := exactApplication(n); ok {
				s.count(bv, reduced)
				return
			}
		}
		s.count(bv, n.Func)
		for _, a := range n.Args {
			s.count(bv, a)
		}
	case *lambda.Function:
		s.count(localCounts{}, n.Body)
	case *lambda.Let:
		if w, ok := n.Bound.(*lambda.Var); ok && s.optimize && n.Kind != lambda.LetVariable {
			// The binding will be substituted away, so every use of the
			// bound id becomes a use of w.
			s.bindVar(bv, n.Id)
			s.count(bv, n.Body)
			s.useVar(bv, w.Id, s.countVar(n.Id))
			return
		}
		s.bindVar(bv, n.Id)
		s.count(bv, n.Body)
		if n.Kind == lambda.LetStrict || n.Kind == lambda.LetVariable || s.countVar(n.Id) > 0 {
			s.count(bv, n.Bound)
		}
	case *lambda.Letrec:
		for _, b := range n.Bindings {
			s.count(bv, b.Bound)
		}
		s.count(bv, n.Body)
	case *lambda.Switch:
		s.countSwitchDefault(bv, n)
		s.count(bv, n.Scrut)
		for _, c := range n.Consts {
			s.count(bv, c.Body)
		}
		for _, c := range n.Blocks {
			s.count(bv, c.Body)
		}
	case *lambda.Stringswitch:
		s.count(bv, n.Scrut)
		for _, c := range n.Cases {
			s.count(bv, c.Body)
		}
		if n.Default != nil {
			s.count(bv, n.Default)
			if len(n.Cases) >= 2 {
				s.count(bv, n.Default)
			}
		}
	case *lambda.While:
		s.count(localCounts{}, n.Cond)
		s.count(localCounts{}, n.Body)
	case *lambda.For:
		s.count(bv, n.Lo)
		s.count(bv, n.Hi)
		s.count(localCounts{}, n.Body)
	case *lambda.Assign:
		// Writing a cell is not a use of it.
		s.count(bv, n.Value)
	case *lambda.Ifused:
		if s.countVar(n.Id) > 0 {
			s.count(bv, n.Term)
		}
	default:
		lambda.IterChildren(func(c lambda.Term) { s.count(bv, c) }, t)
	}
}

func (s *letSimplifier) countSwitchDefault(bv localCounts, sw *lambda.Switch) {
	if sw.Default == nil {
		return
	}
	if len(sw.Consts) < sw.NumConsts && len(sw.Blocks) < sw.NumBlocks {
		s.count(bv, sw.Default)
		s.count(bv, sw.Default)
	} else {
		s.count(bv, sw.Default)
	}
}

func (s *letSimplifier) simplify(t lambda.Term) lambda.Term {
	switch n := t.(type) {
	case *lambda.Var:
		if r, ok := s.subst[n.Id]; ok {
			if v, isVar := r.(*lambda.Var); isVar {
				return &lambda.Var{Id: v.Id}
			}
			return r
		}
	case *lambda.Apply:
		if s.optimize {
			if reduced, ok := exactApplication(n); ok {
				return s.simplify(reduced)
			}
		}
		fn := s.simplify(n.Func)
		args := make([]lambda.Term, len(n.Args))
		for i, a := range n.Args {
			args[i] = s.simplify(a)
		}
		out := &lambda.Apply{Func: fn, Args: args, Loc: n.Loc, Tailcall: n.Tailcall, Inlined: n.Inlined}
		if s.optimize {
			// Curry merging on the callee can expose an exact application.
			if _, ok := fn.(*lambda.Function); ok {
				if reduced, ok := exactApplication(out); ok {
					return s.simplify(reduced)
				}
			}
		}
		return out
	case *lambda.Function:
		body := s.simplify(n.Body)
		if s.optimize && n.Kind == lambda.Curried {
			if inner, ok := body.(*lambda.Function); ok && inner.Kind == lambda.Curried &&
				len(n.Params)+len(inner.Params) <= lambda.MaxArity(s.native) {
				return &lambda.Function{
					Kind:   lambda.Curried,
					Params: append(append([]lambda.Param(nil), n.Params...), inner.Params...),
					Return: inner.Return,
					Body:   inner.Body,
					Attr:   n.Attr,
					Loc:    n.Loc,
				}
			}
		}
		return &lambda.Function{
			Kind: n.Kind, Params: append([]lambda.Param(nil), n.Params...),
			Return: n.Return, Body: body, Attr: n.Attr, Loc: n.Loc,
		}
	case *lambda.Let:
		return s.simplifyLet(n)
	case *lambda.Sequence:
		if iu, ok := n.First.(*lambda.Ifused); ok {
			if s.countVar(iu.Id) > 0 {
				return &lambda.Sequence{First: s.simplify(iu.Term), Second: s.simplify(n.Second)}
			}
			return s.simplify(n.Second)
		}
	case *lambda.Ifused:
		if s.countVar(n.Id) > 0 {
			return s.simplify(n.Term)
		}
		return lambda.Unit()
	}
	return lambda.MapChildren(s.simplify, t)
}

func (s *letSimplifier) simplifyLet(n *lambda.Let) lambda.Term {
	if _, ok := n.Bound.(*lambda.Var); ok && s.optimize && n.Kind != lambda.LetVariable {
		s.subst[n.Id] = s.simplify(n.Bound)
		return s.simplify(n.Body)
	}
	if n.Kind == lambda.LetStrict && s.optimize {
		if prim, mk, ok := refCell(n.Bound); ok {
			init := s.simplify(prim.Args[0])
			body := s.simplify(n.Body)
			if promoted, ok := eliminateRef(n.Id, body); ok {
				kind := lambda.KindGeneric
				if len(mk.Shape) == 1 {
					kind = mk.Shape[0]
				}
				return s.mkLet(lambda.LetVariable, kind, n.Id, init, promoted)
			}
			return s.mkLet(lambda.LetStrict, n.Value, n.Id,
				&lambda.Prim{Op: mk, Args: []lambda.Term{init}, Loc: prim.Loc}, body)
		}
	}
	switch n.Kind {
	case lambda.LetAlias:
		switch {
		case s.countVar(n.Id) == 0:
			return s.simplify(n.Body)
		case s.countVar(n.Id) == 1 && s.optimize:
			s.subst[n.Id] = s.simplify(n.Bound)
			return s.simplify(n.Body)
		default:
			return &lambda.Let{
				Kind: lambda.LetAlias, Value: n.Value, Id: n.Id,
				Bound: s.simplify(n.Bound), Body: s.simplify(n.Body),
			}
		}
	case lambda.LetStrictOpt:
		if s.countVar(n.Id) == 0 {
			return s.simplify(n.Body)
		}
		return s.mkLet(lambda.LetStrictOpt, n.Value, n.Id, s.simplify(n.Bound), s.simplify(n.Body))
	default:
		return s.mkLet(n.Kind, n.Value, n.Id, s.simplify(n.Bound), s.simplify(n.Body))
	}
}

// mkLet builds a Let, collapsing the eta form let x = e in x to e.
func (s *letSimplifier) mkLet(kind lambda.LetKind, vk lambda.ValueKind, id lambda.Ident, bound, body lambda.Term) lambda.Term {
	if s.optimize {
		if v, ok := body.(*lambda.Var); ok && v.Id == id {
			return bound
		}
	}
	return &lambda.Let{Kind: kind, Value: vk, Id: id, Bound: bound, Body: body}
}

// refCell matches the allocation of a one-field mutable block of tag 0:
// the representation of a reference cell.
func refCell(t lambda.Term) (*lambda.Prim, lambda.Pmakeblock, bool) {
	prim, ok := t.(*lambda.Prim)
	if !ok {
		return nil, lambda.Pmakeblock{}, false
	}
	mk, ok := prim.Op.(lambda.Pmakeblock)
	if !ok || mk.Tag != 0 || mk.Mut != lambda.Mutable || len(prim.Args) != 1 || len(mk.Shape) > 1 {
		return nil, lambda.Pmakeblock{}, false
	}
	return prim, mk, true
}

type realReference struct{}

// eliminateRef rewrites every ref-shaped use of id (field read, field
// write, offsetref) into direct variable access, and fails when id is used
// any other way.
func eliminateRef(id lambda.Ident, t lambda.Term) (out lambda.Term, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			if _, real := r.(realReference); real {
				out, ok = nil, false
				return
			}
			panic(r)
		}
	}()
	var walk func(lambda.Term) lambda.Term
	walk = func(t lambda.Term) lambda.Term {
		switch n := t.(type) {
		case *lambda.Var:
			if n.Id == id {
				panic(realReference{})
			}
		case *lambda.Prim:
			switch op := n.Op.(type) {
			case lambda.Pfield:
				if op.Index == 0 && len(n.Args) == 1 && isVar(n.Args[0], id) {
					return &lambda.Var{Id: id}
				}
			case lambda.Psetfield:
				if op.Index == 0 && len(n.Args) == 2 && isVar(n.Args[0], id) {
					return &lambda.Assign{Id: id, Value: walk(n.Args[1])}
				}
			case lambda.Poffsetref:
				if len(n.Args) == 1 && isVar(n.Args[0], id) {
					return &lambda.Assign{Id: id, Value: &lambda.Prim{
						Op:   lambda.Poffsetint{Delta: op.Delta},
						Args: []lambda.Term{&lambda.Var{Id: id}},
						Loc:  n.Loc,
					}}
				}
			}
		}
		return lambda.MapChildren(walk, t)
	}
	return walk(t), true
}

func isVar(t lambda.Term, id lambda.Ident) bool {
	v, ok := t.(*lambda.Var)
	return ok && v.Id == id
}
