package tmc

import (
	"lamina/internal/lambda"
)

// The Choice applicative. Every subterm of a TMC candidate body is
// transformed into a choice that can be materialized twice: once in direct
// style and once in destination-passing style. The DPS side carries a list
// of delayed constructor frames that are folded into a single block
// allocation when the choice reaches a leaf.

// offset is a destination offset: either a constant or an integer-kinded
// variable. It materializes a fresh node on every use so emitted trees never
// share leaves.
type offset struct {
	isVar bool
	id    lambda.Ident
	value int64
}

func constOffset(n int) offset {
	return offset{value: int64(n)}
}

func varOffset(id lambda.Ident) offset {
	return offset{isVar: true, id: id}
}

func (o offset) term() lambda.Term {
	if o.isVar {
		return &lambda.Var{Id: o.id}
	}
	return &lambda.Const{Value: lambda.ConstInt{Value: o.value}}
}

// destination names the block and offset a DPS body writes its result to.
type destination struct {
	id  lambda.Ident
	off offset
}

// assignToDst stores a value at the destination.
func assignToDst(d destination, v lambda.Term) lambda.Term {
	return &lambda.Prim{
		Op:   lambda.Psetfieldcomputed{Ptr: lambda.Pointer, Init: lambda.HeapInit},
		Args: []lambda.Term{&lambda.Var{Id: d.id}, d.off.term(), v},
	}
}

func placeholder() lambda.Term {
	return &lambda.Const{Value: lambda.ConstInt{Value: 0}}
}

// constr is a deferred constructor frame. Its before and after argument
// lists hold only variables and constants; anything effectful was let-bound
// before the frame was pushed.
type constr struct {
	tag    int
	mut    lambda.Mutability
	shape  []lambda.ValueKind
	before []lambda.Term
	after  []lambda.Term
	loc    lambda.Loc
}

func (c constr) plug(hole lambda.Term) lambda.Term {
	args := make([]lambda.Term, 0, len(c.before)+1+len(c.after))
	args = append(args, c.before...)
	args = append(args, hole)
	args = append(args, c.after...)
	return &lambda.Prim{
		Op:   lambda.Pmakeblock{Tag: c.tag, Mut: c.mut, Shape: c.shape},
		Args: args,
		Loc:  c.loc,
	}
}

// plugDelayed folds the frames around a value; frames[0] is outermost.
func plugDelayed(frames []constr, v lambda.Term) lambda.Term {
	out := v
	for i := len(frames) - 1; i >= 0; i-- {
		out = frames[i].plug(out)
	}
	return out
}

// reifyDelayed materializes the deferred frames: the combined block chain is
// allocated with a placeholder in the innermost hole and written once to d,
// then k continues with the hole as the new destination. With no frames it
// is just k(d).
func reifyDelayed(frames []constr, d destination, k func(destination) lambda.Term) lambda.Term {
	if len(frames) == 0 {
		return k(d)
	}
	inner := frames[len(frames)-1]
	block := lambda.Fresh("dst")
	hole := destination{id: block, off: constOffset(len(inner.before))}
	return &lambda.Let{
		Kind:  lambda.LetStrict,
		Value: lambda.KindPointer,
		Id:    block,
		Bound: inner.plug(placeholder()),
		Body: &lambda.Sequence{
			First:  assignToDst(d, plugDelayed(frames[:len(frames)-1], &lambda.Var{Id: block})),
			Second: k(hole),
		},
	}
}

// dps is the destination-passing half of a choice. code emits the subterm
// writing its result through the destination; delayedUseCount is a
// conservative count of how many syntactic copies of the delayed frames the
// emitted code would contain.
type dps struct {
	code            func(delayed []constr, tail bool, d destination) lambda.Term
	delayedUseCount int
}

// choice is one transformed subterm, materializable in either style.
type choice struct {
	direct func() lambda.Term
	dps    dps
	// hasTMC: some subexpression is a recursive call under a constructor.
	hasTMC bool
	// benefitsFromDps: the DPS form contains strictly more TMC tail calls
	// than the direct form.
	benefitsFromDps bool
	// explicitTail: a responsible call carries @tail.
	explicitTail bool
}

// ret lifts a plain term into a choice with no TMC calls.
func ret(t lambda.Term) choice {
	return choice{
		direct: func() lambda.Term { return t },
		dps: dps{
			code: func(delayed []constr, _ bool, d destination) lambda.Term {
				return assignToDst(d, plugDelayed(delayed, t))
			},
			delayedUseCount: 1,
		},
	}
}

// mapChoice wraps both materializations of a choice.
func mapChoice(f func(lambda.Term) lambda.Term, c choice) choice {
	return choice{
		direct: func() lambda.Term { return f(c.direct()) },
		dps: dps{
			code: func(delayed []constr, tail bool, d destination) lambda.Term {
				return f(c.dps.code(delayed, tail, d))
			},
			delayedUseCount: c.dps.delayedUseCount,
		},
		hasTMC:          c.hasTMC,
		benefitsFromDps: c.benefitsFromDps,
		explicitTail:    c.explicitTail,
	}
}

// pairChoice combines two sibling tail positions.
func pairChoice(c1, c2 choice, rebuild func(a, b lambda.Term) lambda.Term) choice {
	return listChoice([]choice{c1, c2}, func(parts []lambda.Term) lambda.Term {
		return rebuild(parts[0], parts[1])
	})
}

// optionChoice lifts a possibly absent subterm; rebuild sees nil for absent.
func optionChoice(c *choice, rebuild func(lambda.Term) lambda.Term) choice {
	if c == nil {
		return ret(rebuild(nil))
	}
	return mapChoice(rebuild, *c)
}

// listChoice combines the choices of all tail branches of one node. When
// several branches would each materialize the delayed frames, the frames
// are reified once in front of the node so no branch duplicates them.
func listChoice(cs []choice, rebuild func(parts []lambda.Term) lambda.Term) choice {
	uses := 0
	hasTMC, benefits, explicit := false, false, false
	for _, c := range cs {
		uses += c.dps.delayedUseCount
		hasTMC = hasTMC || c.hasTMC
		benefits = benefits || c.benefitsFromDps
		explicit = explicit || c.explicitTail
	}
	direct := func() lambda.Term {
		parts := make([]lambda.Term, len(cs))
		for i, c := range cs {
			parts[i] = c.direct()
		}
		return rebuild(parts)
	}
	if !hasTMC {
		return ret(direct())
	}
	emit := func(delayed []constr, tail bool, d destination) lambda.Term {
		parts := make([]lambda.Term, len(cs))
		for i, c := range cs {
			parts[i] = c.dps.code(delayed, tail, d)
		}
		return rebuild(parts)
	}
	code := func(delayed []constr, tail bool, d destination) lambda.Term {
		if len(delayed) > 0 && uses > 1 {
			return reifyDelayed(delayed, d, func(hole destination) lambda.Term {
				return emit(nil, tail, hole)
			})
		}
		return emit(delayed, tail, d)
	}
	count := uses
	if count > 1 {
		count = 1
	}
	return choice{
		direct:          direct,
		dps:             dps{code: code, delayedUseCount: count},
		hasTMC:          true,
		benefitsFromDps: benefits,
		explicitTail:    explicit,
	}
}
