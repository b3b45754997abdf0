package tmc

import (
	"lamina/internal/config"
	"lamina/internal/diag"
	"lamina/internal/lambda"
)

// Tail modulo cons. For every Letrec binding annotated as a TMC candidate
// (or all function bindings under ForceTMC) the pass synthesizes a
// destination-passing-style companion of arity + 2 and rewrites recursive
// calls in constructor context into tail calls on the companion.

type specialInfo struct {
	dpsID lambda.Ident
	arity int
}

type rewriter struct {
	flags       config.Flags
	sink        *diag.Sink
	specialized map[lambda.Ident]specialInfo
}

// Rewrite runs the TMC pass. The only fatal error is
// Ambiguous_constructor_arguments.
func Rewrite(flags config.Flags, sink *diag.Sink, t lambda.Term) (out lambda.Term, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(*diag.Error); ok {
				out, err = nil, e
				return
			}
			panic(r)
		}
	}()
	r := &rewriter{
		flags:       flags,
		sink:        sink,
		specialized: make(map[lambda.Ident]specialInfo),
	}
	return r.rewrite(t), nil
}

// rewrite is the plain traversal used outside candidate bodies and in
// non-tail positions within them.
func (r *rewriter) rewrite(t lambda.Term) lambda.Term {
	if lr, ok := t.(*lambda.Letrec); ok {
		bindings, hasCandidates := r.rewriteBindings(lr)
		if hasCandidates {
			return &lambda.Letrec{Bindings: bindings, Body: r.rewrite(lr.Body)}
		}
	}
	return lambda.MapChildren(r.rewrite, t)
}

// rewriteBindings processes one Letrec's bindings, specializing every
// candidate into a direct and a DPS version.
func (r *rewriter) rewriteBindings(lr *lambda.Letrec) ([]lambda.Binding, bool) {
	candidates := make(map[lambda.Ident]*lambda.Function)
	for _, b := range lr.Bindings {
		fn, ok := b.Bound.(*lambda.Function)
		if !ok {
			continue
		}
		if fn.Attr.TMCCandidate || r.flags.ForceTMC {
			candidates[b.Id] = fn
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}
	for _, b := range lr.Bindings {
		if fn, ok := candidates[b.Id]; ok {
			r.specialized[b.Id] = specialInfo{
				dpsID: lambda.Fresh(b.Id.Name + "_dps"),
				arity: len(fn.Params),
			}
		}
	}
	var bindings []lambda.Binding
	for _, b := range lr.Bindings {
		fn, ok := candidates[b.Id]
		if !ok {
			bindings = append(bindings, lambda.Binding{Id: b.Id, Bound: r.rewrite(b.Bound)})
			continue
		}
		direct, dpsFn := r.specialize(fn)
		bindings = append(bindings,
			lambda.Binding{Id: b.Id, Bound: direct},
			lambda.Binding{Id: r.specialized[b.Id].dpsID, Bound: dpsFn})
	}
	return bindings, true
}

// specialize materializes the two versions of a candidate body.
func (r *rewriter) specialize(fn *lambda.Function) (direct, dpsVersion lambda.Term) {
	c := r.choice(fn.Body)
	if !c.hasTMC && fn.Attr.TMCCandidate {
		r.sink.Warn(diag.WarnUnusedTMCAttribute, fn.Loc,
			"this function is annotated @tmc but has no call in tail modulo cons position")
	}
	attr := fn.Attr
	// The candidate attribute is consumed here; the emitted functions must
	// not be specialized again.
	attr.TMCCandidate = false

	direct = &lambda.Function{
		Kind:   fn.Kind,
		Params: append([]lambda.Param(nil), fn.Params...),
		Return: fn.Return,
		Body:   c.direct(),
		Attr:   attr,
		Loc:    fn.Loc,
	}

	dstID := lambda.Fresh("dst")
	offID := lambda.Fresh("offset")
	params := make([]lambda.Param, 0, len(fn.Params)+2)
	params = append(params,
		lambda.Param{Id: dstID, Kind: lambda.KindGeneric},
		lambda.Param{Id: offID, Kind: lambda.KindInt})
	params = append(params, fn.Params...)
	body := c.dps.code(nil, true, destination{id: dstID, off: varOffset(offID)})
	dpsFn := &lambda.Function{
		Kind:   fn.Kind,
		Params: params,
		Return: fn.Return,
		Body:   body,
		Attr:   attr,
		Loc:    fn.Loc,
	}
	// The two bodies come from the same choice and may share subterms; a
	// full alpha-renamed copy keeps them disjoint.
	return direct, lambda.Duplicate(dpsFn)
}

// choice transforms a subterm of a candidate body in tail-propagating
// position.
func (r *rewriter) choice(t lambda.Term) choice {
	switch n := t.(type) {
	case *lambda.Apply:
		if v, ok := n.Func.(*lambda.Var); ok {
			if spec, ok := r.specialized[v.Id]; ok &&
				len(n.Args) == spec.arity && n.Tailcall != lambda.TailcallForbid {
				return r.callChoice(n, spec)
			}
		}
		return r.applyLeaf(n)
	case *lambda.Prim:
		if mk, ok := n.Op.(lambda.Pmakeblock); ok {
			return r.constrChoice(n, mk)
		}
	case *lambda.Sequence:
		first := r.rewrite(n.First)
		return mapChoice(func(second lambda.Term) lambda.Term {
			return &lambda.Sequence{First: first, Second: second}
		}, r.choice(n.Second))
	case *lambda.Let:
		bound := r.rewrite(n.Bound)
		return mapChoice(func(body lambda.Term) lambda.Term {
			return &lambda.Let{Kind: n.Kind, Value: n.Value, Id: n.Id, Bound: bound, Body: body}
		}, r.choice(n.Body))
	case *lambda.Letrec:
		bindings, hasCandidates := r.rewriteBindings(n)
		if !hasCandidates {
			bindings = make([]lambda.Binding, len(n.Bindings))
			for i, b := range n.Bindings {
				bindings[i] = lambda.Binding{Id: b.Id, Bound: r.rewrite(b.Bound)}
			}
		}
		return mapChoice(func(body lambda.Term) lambda.Term {
			return &lambda.Letrec{Bindings: bindings, Body: body}
		}, r.choice(n.Body))
	case *lambda.Ifthenelse:
		cond := r.rewrite(n.Cond)
		return pairChoice(r.choice(n.Then), r.choice(n.Else),
			func(then, els lambda.Term) lambda.Term {
				return &lambda.Ifthenelse{Cond: cond, Then: then, Else: els}
			})
	case *lambda.Switch:
		return r.switchChoice(n)
	case *lambda.Stringswitch:
		return r.stringswitchChoice(n)
	case *lambda.Staticcatch:
		return pairChoice(r.choice(n.Body), r.choice(n.Handler),
			func(body, handler lambda.Term) lambda.Term {
				return &lambda.Staticcatch{
					Body:    body,
					Label:   n.Label,
					Params:  append([]lambda.Param(nil), n.Params...),
					Handler: handler,
				}
			})
	case *lambda.Trywith:
		return r.trywithChoice(n)
	case *lambda.Event:
		return mapChoice(func(inner lambda.Term) lambda.Term {
			return &lambda.Event{Term: inner, Event: n.Event}
		}, r.choice(n.Term))
	}
	// Terminal: Var, Const, Function, Send, Assign, For, While, Staticraise,
	// non-propagating primitives, Ifused.
	return ret(lambda.MapChildren(r.rewrite, t))
}

// callChoice builds the Set choice for a call to a specialized function.
func (r *rewriter) callChoice(ap *lambda.Apply, spec specialInfo) choice {
	args := make([]lambda.Term, len(ap.Args))
	for i, a := range ap.Args {
		args[i] = r.rewrite(a)
	}
	fnVar := ap.Func.(*lambda.Var)
	return choice{
		direct: func() lambda.Term {
			return &lambda.Apply{
				Func:     &lambda.Var{Id: fnVar.Id},
				Args:     args,
				Loc:      ap.Loc,
				Tailcall: ap.Tailcall,
				Inlined:  ap.Inlined,
			}
		},
		dps: dps{
			code: func(delayed []constr, tail bool, d destination) lambda.Term {
				return reifyDelayed(delayed, d, func(hole destination) lambda.Term {
					attr := ap.Tailcall
					if tail {
						attr = lambda.TailcallExpect
					}
					dpsArgs := make([]lambda.Term, 0, len(args)+2)
					dpsArgs = append(dpsArgs, &lambda.Var{Id: hole.id}, hole.off.term())
					dpsArgs = append(dpsArgs, args...)
					return &lambda.Apply{
						Func:     &lambda.Var{Id: spec.dpsID},
						Args:     dpsArgs,
						Loc:      ap.Loc,
						Tailcall: attr,
						Inlined:  ap.Inlined,
					}
				})
			},
			delayedUseCount: 1,
		},
		hasTMC: true,
		// The direct form is a plain call; the DPS form turns it into a TMC
		// tail call, so DPS always wins here.
		benefitsFromDps: true,
		explicitTail:    ap.Tailcall == lambda.TailcallExpect,
	}
}

// applyLeaf lifts a non-specialized application, warning when the DPS form
// demotes a former tail call.
func (r *rewriter) applyLeaf(ap *lambda.Apply) choice {
	rewritten := lambda.MapChildren(r.rewrite, ap)
	c := ret(rewritten)
	inner := c.dps.code
	c.dps.code = func(delayed []constr, tail bool, d destination) lambda.Term {
		if tail {
			r.sink.Warn(diag.WarnTMCBreaksTailcall, ap.Loc,
				"this call is no longer in tail position after the TMC transformation")
		}
		return inner(delayed, tail, d)
	}
	return c
}

// constrChoice handles a block constructor: the central case of the pass.
func (r *rewriter) constrChoice(n *lambda.Prim, mk lambda.Pmakeblock) choice {
	argChoices := make([]choice, len(n.Args))
	for i, a := range n.Args {
		argChoices[i] = r.choice(a)
	}
	var tmcArgs []int
	for i, c := range argChoices {
		if c.hasTMC {
			tmcArgs = append(tmcArgs, i)
		}
	}
	if len(tmcArgs) == 0 {
		parts := make([]lambda.Term, len(argChoices))
		for i, c := range argChoices {
			parts[i] = c.direct()
		}
		return ret(&lambda.Prim{Op: mk, Args: parts, Loc: n.Loc})
	}
	k := tmcArgs[0]
	if len(tmcArgs) > 1 {
		var explicit []int
		for _, i := range tmcArgs {
			if argChoices[i].explicitTail {
				explicit = append(explicit, i)
			}
		}
		if len(explicit) != 1 {
			panic(diag.AmbiguousConstructorArguments(n.Loc))
		}
		k = explicit[0]
	}
	chosen := argChoices[k]

	// Pin down the evaluation of the non-chosen arguments so the frame can
	// be materialized at any point without reordering effects.
	var bindings []lambda.Binding
	normalize := func(c choice) lambda.Term {
		t := c.direct()
		switch t.(type) {
		case *lambda.Var, *lambda.Const:
			return t
		}
		id := lambda.Fresh("arg")
		bindings = append(bindings, lambda.Binding{Id: id, Bound: t})
		return &lambda.Var{Id: id}
	}
	before := make([]lambda.Term, 0, k)
	for i := 0; i < k; i++ {
		before = append(before, normalize(argChoices[i]))
	}
	after := make([]lambda.Term, 0, len(argChoices)-k-1)
	for i := k + 1; i < len(argChoices); i++ {
		after = append(after, normalize(argChoices[i]))
	}
	wrap := func(t lambda.Term) lambda.Term {
		for i := len(bindings) - 1; i >= 0; i-- {
			t = &lambda.Let{
				Kind:  lambda.LetStrict,
				Value: lambda.KindGeneric,
				Id:    bindings[i].Id,
				Bound: bindings[i].Bound,
				Body:  t,
			}
		}
		return t
	}
	frame := constr{tag: mk.Tag, mut: mk.Mut, shape: mk.Shape, before: before, after: after, loc: n.Loc}

	direct := func() lambda.Term {
		if !chosen.benefitsFromDps {
			return wrap(frame.plug(chosen.direct()))
		}
		// The chosen argument gains tail calls from DPS even here: allocate
		// the block with a placeholder and let the DPS code fill it in.
		block := lambda.Fresh("block")
		hole := destination{id: block, off: constOffset(len(frame.before))}
		return wrap(&lambda.Let{
			Kind:  lambda.LetStrict,
			Value: lambda.KindPointer,
			Id:    block,
			Bound: frame.plug(placeholder()),
			Body: &lambda.Sequence{
				First:  chosen.dps.code(nil, false, hole),
				Second: &lambda.Var{Id: block},
			},
		})
	}
	code := func(delayed []constr, tail bool, d destination) lambda.Term {
		return wrap(chosen.dps.code(append(append([]constr(nil), delayed...), frame), tail, d))
	}
	return choice{
		direct:          direct,
		dps:             dps{code: code, delayedUseCount: chosen.dps.delayedUseCount},
		hasTMC:          true,
		benefitsFromDps: true,
		explicitTail:    chosen.explicitTail,
	}
}

func (r *rewriter) switchChoice(n *lambda.Switch) choice {
	scrut := r.rewrite(n.Scrut)
	var cs []choice
	for _, c := range n.Consts {
		cs = append(cs, r.choice(c.Body))
	}
	for _, c := range n.Blocks {
		cs = append(cs, r.choice(c.Body))
	}
	hasDefault := n.Default != nil
	if hasDefault {
		cs = append(cs, r.choice(n.Default))
	}
	return listChoice(cs, func(parts []lambda.Term) lambda.Term {
		out := &lambda.Switch{
			Scrut:     scrut,
			NumConsts: n.NumConsts,
			NumBlocks: n.NumBlocks,
			Loc:       n.Loc,
		}
		i := 0
		for _, c := range n.Consts {
			out.Consts = append(out.Consts, lambda.Case{Index: c.Index, Body: parts[i]})
			i++
		}
		for _, c := range n.Blocks {
			out.Blocks = append(out.Blocks, lambda.Case{Index: c.Index, Body: parts[i]})
			i++
		}
		if hasDefault {
			out.Default = parts[i]
		}
		return out
	})
}

func (r *rewriter) stringswitchChoice(n *lambda.Stringswitch) choice {
	scrut := r.rewrite(n.Scrut)
	var cs []choice
	for _, c := range n.Cases {
		cs = append(cs, r.choice(c.Body))
	}
	hasDefault := n.Default != nil
	if hasDefault {
		cs = append(cs, r.choice(n.Default))
	}
	return listChoice(cs, func(parts []lambda.Term) lambda.Term {
		out := &lambda.Stringswitch{Scrut: scrut, Loc: n.Loc}
		for i, c := range n.Cases {
			out.Cases = append(out.Cases, lambda.StrCase{Pattern: c.Pattern, Body: parts[i]})
		}
		if hasDefault {
			out.Default = parts[len(n.Cases)]
		}
		return out
	})
}

// trywithChoice: the body must pop the handler before the result can be
// written, so the body is not in tail position; only the handler inherits.
// Both the body's write and the handler consume the destination, so the
// delayed frames are reified up front like under any other branching node.
func (r *rewriter) trywithChoice(n *lambda.Trywith) choice {
	body := r.rewrite(n.Body)
	hc := r.choice(n.Handler)
	if !hc.hasTMC {
		return ret(&lambda.Trywith{Body: body, ExnVar: n.ExnVar, Handler: hc.direct()})
	}
	code := func(delayed []constr, tail bool, d destination) lambda.Term {
		return reifyDelayed(delayed, d, func(hole destination) lambda.Term {
			return &lambda.Trywith{
				Body:    assignToDst(hole, body),
				ExnVar:  n.ExnVar,
				Handler: hc.dps.code(nil, tail, hole),
			}
		})
	}
	return choice{
		direct: func() lambda.Term {
			return &lambda.Trywith{Body: body, ExnVar: n.ExnVar, Handler: hc.direct()}
		},
		dps:             dps{code: code, delayedUseCount: 1},
		hasTMC:          true,
		benefitsFromDps: hc.benefitsFromDps,
		explicitTail:    hc.explicitTail,
	}
}
