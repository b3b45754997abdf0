package annot

import (
	"lamina/internal/lambda"
)

// The default-argument wrapper splitter. A function whose body starts with
// bindings of the shape
//
//	let strict x = (if *opt* (field 0 *opt*) default) in ...
//
// is peeled into a small wrapper that computes the defaults and calls an
// inner function carrying the remaining body. The wrapper is marked as a
// stub so later inlining treats it as cheap.

// SplitDefaultWrappers applies the split to every function binding of a
// term, in Lets and Letrecs alike.
func SplitDefaultWrappers(t lambda.Term) lambda.Term {
	switch n := t.(type) {
	case *lambda.Let:
		if fn, ok := n.Bound.(*lambda.Function); ok {
			split := splitDefaultWrapper(n.Id, fn)
			body := SplitDefaultWrappers(n.Body)
			for i := len(split) - 1; i >= 0; i-- {
				body = &lambda.Let{
					Kind:  n.Kind,
					Value: n.Value,
					Id:    split[i].Id,
					Bound: split[i].Bound,
					Body:  body,
				}
			}
			return body
		}
	case *lambda.Letrec:
		var bindings []lambda.Binding
		for _, b := range n.Bindings {
			if fn, ok := b.Bound.(*lambda.Function); ok {
				bindings = append(bindings, splitDefaultWrapper(b.Id, fn)...)
				continue
			}
			bindings = append(bindings, lambda.Binding{Id: b.Id, Bound: SplitDefaultWrappers(b.Bound)})
		}
		return &lambda.Letrec{Bindings: bindings, Body: SplitDefaultWrappers(n.Body)}
	}
	return lambda.MapChildren(SplitDefaultWrappers, t)
}

const optName = "*opt*"

// splitDefaultWrapper returns either the original binding or the
// wrapper/inner pair, inner first so a Let chain keeps it in scope.
func splitDefaultWrapper(id lambda.Ident, fn *lambda.Function) []lambda.Binding {
	keep := []lambda.Binding{{Id: id, Bound: lambda.MapChildren(SplitDefaultWrappers, fn)}}

	isOptParam := func(cand lambda.Ident) bool {
		if cand.Name != optName {
			return false
		}
		for _, p := range fn.Params {
			if p.Id == cand {
				return true
			}
		}
		return false
	}

	// Collect the leading chain of default bindings.
	defaults := make(map[lambda.Ident]lambda.Ident) // opt param -> bound id
	var chain []*lambda.Let
	rest := fn.Body
	for {
		let, ok := rest.(*lambda.Let)
		if !ok || let.Kind != lambda.LetStrict {
			break
		}
		ite, ok := let.Bound.(*lambda.Ifthenelse)
		if !ok {
			break
		}
		cond, ok := ite.Cond.(*lambda.Var)
		if !ok || !isOptParam(cond.Id) {
			break
		}
		if _, seen := defaults[cond.Id]; seen {
			break
		}
		defaults[cond.Id] = let.Id
		chain = append(chain, let)
		rest = let.Body
	}
	if len(chain) == 0 {
		return keep
	}
	// The optional parameters must not be needed past their defaults.
	free := lambda.FreeVars(rest)
	for opt := range defaults {
		if free[opt] {
			return keep
		}
	}

	innerID := lambda.Fresh(id.Name + "_inner")

	// The inner function takes the same parameter list with each optional
	// parameter replaced by its computed default.
	innerParams := make([]lambda.Param, len(fn.Params))
	renaming := make(map[lambda.Ident]lambda.Ident)
	callArgs := make([]lambda.Term, len(fn.Params))
	for i, p := range fn.Params {
		src := p.Id
		if d, ok := defaults[p.Id]; ok {
			src = d
		}
		fresh := src.Rename()
		renaming[src] = fresh
		innerParams[i] = lambda.Param{Id: fresh, Kind: p.Kind}
		callArgs[i] = &lambda.Var{Id: src}
	}
	innerBody := lambda.Rename(renaming, rest)
	inner := &lambda.Function{
		Kind:   lambda.Curried,
		Params: innerParams,
		Return: fn.Return,
		Body:   SplitDefaultWrappers(innerBody),
		Attr:   fn.Attr,
		Loc:    fn.Loc,
	}

	wrapperBody := lambda.Term(&lambda.Apply{
		Func: &lambda.Var{Id: innerID},
		Args: callArgs,
		Loc:  fn.Loc,
	})
	for i := len(chain) - 1; i >= 0; i-- {
		let := chain[i]
		wrapperBody = &lambda.Let{
			Kind:  lambda.LetStrict,
			Value: let.Value,
			Id:    let.Id,
			Bound: let.Bound,
			Body:  wrapperBody,
		}
	}
	wrapperAttr := fn.Attr
	wrapperAttr.Stub = true
	wrapper := &lambda.Function{
		Kind:   fn.Kind,
		Params: append([]lambda.Param(nil), fn.Params...),
		Return: fn.Return,
		Body:   wrapperBody,
		Attr:   wrapperAttr,
		Loc:    fn.Loc,
	}
	return []lambda.Binding{
		{Id: innerID, Bound: inner},
		{Id: id, Bound: wrapper},
	}
}
