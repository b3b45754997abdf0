package grammar

import (
	"fmt"
	"strconv"

	"github.com/alecthomas/participle/v2/lexer"

	"lamina/internal/lambda"
)

// Lowering resolves the parse tree into a lambda term: names become
// identifiers by lexical scoping, and names with no binder become free
// identifiers that stay stable within one parse.

type lowerer struct {
	file  string
	scope map[string][]lambda.Ident
	free  map[string]lambda.Ident
}

func newLowerer(file string) *lowerer {
	return &lowerer{
		file:  file,
		scope: make(map[string][]lambda.Ident),
		free:  make(map[string]lambda.Ident),
	}
}

func (l *lowerer) loc(pos lexer.Position) lambda.Loc {
	return lambda.Loc{File: l.file, Line: pos.Line, Column: pos.Column}
}

func (l *lowerer) lookup(name string) lambda.Ident {
	if st := l.scope[name]; len(st) > 0 {
		return st[len(st)-1]
	}
	if id, ok := l.free[name]; ok {
		return id
	}
	id := lambda.Fresh(name)
	l.free[name] = id
	return id
}

func (l *lowerer) bind(name string) lambda.Ident {
	id := lambda.Fresh(name)
	l.scope[name] = append(l.scope[name], id)
	return id
}

func (l *lowerer) unbind(name string) {
	st := l.scope[name]
	l.scope[name] = st[:len(st)-1]
}

func (l *lowerer) node(n *Node) (lambda.Term, error) {
	switch {
	case n.Int != nil:
		return &lambda.Const{Value: lambda.ConstInt{Value: *n.Int}}, nil
	case n.Str != nil:
		s, err := strconv.Unquote(*n.Str)
		if err != nil {
			return nil, fmt.Errorf("bad string literal %s: %w", *n.Str, err)
		}
		return &lambda.Const{Value: lambda.ConstString{Value: s}}, nil
	case n.Name != nil:
		return &lambda.Var{Id: l.lookup(*n.Name)}, nil
	case n.Block != nil:
		c, err := l.blockConst(n.Block)
		if err != nil {
			return nil, err
		}
		return &lambda.Const{Value: c}, nil
	case n.Let != nil:
		return l.let(n.Let)
	case n.Letrec != nil:
		return l.letrec(n.Letrec)
	case n.Fn != nil:
		return l.fn(n.Fn)
	case n.Apply != nil:
		return l.apply(n.Apply)
	case n.If != nil:
		return l.triple(n.If.Cond, n.If.Then, n.If.Else, func(a, b, c lambda.Term) lambda.Term {
			return &lambda.Ifthenelse{Cond: a, Then: b, Else: c}
		})
	case n.Seq != nil:
		first, err := l.node(n.Seq.First)
		if err != nil {
			return nil, err
		}
		second, err := l.node(n.Seq.Second)
		if err != nil {
			return nil, err
		}
		return &lambda.Sequence{First: first, Second: second}, nil
	case n.While != nil:
		cond, err := l.node(n.While.Cond)
		if err != nil {
			return nil, err
		}
		body, err := l.node(n.While.Body)
		if err != nil {
			return nil, err
		}
		return &lambda.While{Cond: cond, Body: body}, nil
	case n.For != nil:
		return l.forLoop(n.For)
	case n.Assign != nil:
		value, err := l.node(n.Assign.Value)
		if err != nil {
			return nil, err
		}
		return &lambda.Assign{Id: l.lookup(n.Assign.Name), Value: value}, nil
	case n.Exit != nil:
		args, err := l.nodes(n.Exit.Args)
		if err != nil {
			return nil, err
		}
		return &lambda.Staticraise{Label: int(n.Exit.Label), Args: args}, nil
	case n.Catch != nil:
		return l.catch(n.Catch)
	case n.Try != nil:
		return l.try(n.Try)
	case n.Switch != nil:
		return l.switchTerm(n.Switch)
	case n.StrSw != nil:
		return l.strswitch(n.StrSw)
	case n.Send != nil:
		meth, err := l.node(n.Send.Meth)
		if err != nil {
			return nil, err
		}
		obj, err := l.node(n.Send.Obj)
		if err != nil {
			return nil, err
		}
		args, err := l.nodes(n.Send.Args)
		if err != nil {
			return nil, err
		}
		return &lambda.Send{Meth: meth, Obj: obj, Args: args, Loc: l.loc(n.Send.Pos)}, nil
	case n.Event != nil:
		inner, err := l.node(n.Event.Term)
		if err != nil {
			return nil, err
		}
		return &lambda.Event{Term: inner, Event: lambda.DebugEvent{Loc: l.loc(n.Event.Pos)}}, nil
	case n.Ifused != nil:
		inner, err := l.node(n.Ifused.Term)
		if err != nil {
			return nil, err
		}
		return &lambda.Ifused{Id: l.lookup(n.Ifused.Name), Term: inner}, nil
	default:
		return l.prim(n)
	}
}

func (l *lowerer) nodes(ns []*Node) ([]lambda.Term, error) {
	out := make([]lambda.Term, len(ns))
	for i, n := range ns {
		t, err := l.node(n)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

func (l *lowerer) triple(a, b, c *Node, build func(a, b, c lambda.Term) lambda.Term) (lambda.Term, error) {
	ta, err := l.node(a)
	if err != nil {
		return nil, err
	}
	tb, err := l.node(b)
	if err != nil {
		return nil, err
	}
	tc, err := l.node(c)
	if err != nil {
		return nil, err
	}
	return build(ta, tb, tc), nil
}

func (l *lowerer) blockConst(b *BlockForm) (lambda.Constant, error) {
	fields := make([]lambda.Constant, len(b.Fields))
	for i, f := range b.Fields {
		t, err := l.node(f)
		if err != nil {
			return nil, err
		}
		c, ok := t.(*lambda.Const)
		if !ok {
			return nil, fmt.Errorf("block fields must be constants")
		}
		fields[i] = c.Value
	}
	return lambda.ConstBlock{Tag: int(b.Tag), Fields: fields}, nil
}

func letKind(s string) lambda.LetKind {
	switch s {
	case "alias":
		return lambda.LetAlias
	case "opt":
		return lambda.LetStrictOpt
	case "var":
		return lambda.LetVariable
	default:
		return lambda.LetStrict
	}
}

func valueKind(s string) lambda.ValueKind {
	switch s {
	case "int":
		return lambda.KindInt
	case "float":
		return lambda.KindFloat
	case "ptr":
		return lambda.KindPointer
	default:
		return lambda.KindGeneric
	}
}

func (l *lowerer) let(f *LetForm) (lambda.Term, error) {
	bound, err := l.node(f.Bound)
	if err != nil {
		return nil, err
	}
	id := l.bind(f.Name)
	defer l.unbind(f.Name)
	body, err := l.node(f.Body)
	if err != nil {
		return nil, err
	}
	return &lambda.Let{Kind: letKind(f.Kind), Value: lambda.KindGeneric, Id: id, Bound: bound, Body: body}, nil
}

func (l *lowerer) letrec(f *LetrecForm) (lambda.Term, error) {
	bindings := make([]lambda.Binding, len(f.Bindings))
	for i, b := range f.Bindings {
		bindings[i].Id = l.bind(b.Name)
	}
	defer func() {
		for _, b := range f.Bindings {
			l.unbind(b.Name)
		}
	}()
	for i, b := range f.Bindings {
		bound, err := l.node(b.Bound)
		if err != nil {
			return nil, err
		}
		bindings[i].Bound = bound
	}
	body, err := l.node(f.Body)
	if err != nil {
		return nil, err
	}
	return &lambda.Letrec{Bindings: bindings, Body: body}, nil
}

func (l *lowerer) fn(f *FnForm) (lambda.Term, error) {
	kind := lambda.Curried
	if f.Tupled {
		kind = lambda.Tupled
	}
	var attr lambda.FunctionAttr
	for _, a := range f.Attrs {
		switch a {
		case "@tmc":
			attr.TMCCandidate = true
		case "@local":
			attr.Local = lambda.LocalAlways
		case "@nolocal":
			attr.Local = lambda.LocalNever
		case "@inline":
			attr.Inline = lambda.InlineAlways
		case "@noinline":
			attr.Inline = lambda.InlineNever
		case "@stub":
			attr.Stub = true
		default:
			return nil, fmt.Errorf("%s: unknown function attribute %s", f.Pos, a)
		}
	}
	params := make([]lambda.Param, len(f.Params))
	for i, p := range f.Params {
		params[i] = lambda.Param{Id: l.bind(p.Name), Kind: valueKind(p.Kind)}
	}
	defer func() {
		for _, p := range f.Params {
			l.unbind(p.Name)
		}
	}()
	body, err := l.node(f.Body)
	if err != nil {
		return nil, err
	}
	return &lambda.Function{
		Kind:   kind,
		Params: params,
		Return: lambda.KindGeneric,
		Body:   body,
		Attr:   attr,
		Loc:    l.loc(f.Pos),
	}, nil
}

func (l *lowerer) apply(f *ApplyForm) (lambda.Term, error) {
	tailcall := lambda.TailcallDefault
	switch f.Attr {
	case "":
	case "@tail":
		tailcall = lambda.TailcallExpect
	case "@notail":
		tailcall = lambda.TailcallForbid
	default:
		return nil, fmt.Errorf("%s: unknown call attribute %s", f.Pos, f.Attr)
	}
	fn, err := l.node(f.Fn)
	if err != nil {
		return nil, err
	}
	args, err := l.nodes(f.Args)
	if err != nil {
		return nil, err
	}
	return &lambda.Apply{Func: fn, Args: args, Loc: l.loc(f.Pos), Tailcall: tailcall}, nil
}

func (l *lowerer) forLoop(f *ForForm) (lambda.Term, error) {
	lo, err := l.node(f.Lo)
	if err != nil {
		return nil, err
	}
	hi, err := l.node(f.Hi)
	if err != nil {
		return nil, err
	}
	dir := lambda.UpTo
	if f.Dir == "downto" {
		dir = lambda.DownTo
	}
	id := l.bind(f.Name)
	defer l.unbind(f.Name)
	body, err := l.node(f.Body)
	if err != nil {
		return nil, err
	}
	return &lambda.For{Id: id, Lo: lo, Hi: hi, Dir: dir, Body: body}, nil
}

func (l *lowerer) catch(f *CatchForm) (lambda.Term, error) {
	body, err := l.node(f.Body)
	if err != nil {
		return nil, err
	}
	params := make([]lambda.Param, len(f.Params))
	for i, p := range f.Params {
		params[i] = lambda.Param{Id: l.bind(p.Name), Kind: valueKind(p.Kind)}
	}
	defer func() {
		for _, p := range f.Params {
			l.unbind(p.Name)
		}
	}()
	handler, err := l.node(f.Handler)
	if err != nil {
		return nil, err
	}
	return &lambda.Staticcatch{Body: body, Label: int(f.Label), Params: params, Handler: handler}, nil
}

func (l *lowerer) try(f *TryForm) (lambda.Term, error) {
	body, err := l.node(f.Body)
	if err != nil {
		return nil, err
	}
	id := l.bind(f.ExnVar)
	defer l.unbind(f.ExnVar)
	handler, err := l.node(f.Handler)
	if err != nil {
		return nil, err
	}
	return &lambda.Trywith{Body: body, ExnVar: id, Handler: handler}, nil
}

func (l *lowerer) cases(fs []*CaseForm) ([]lambda.Case, error) {
	out := make([]lambda.Case, len(fs))
	for i, f := range fs {
		body, err := l.node(f.Body)
		if err != nil {
			return nil, err
		}
		out[i] = lambda.Case{Index: int(f.Index), Body: body}
	}
	return out, nil
}

func (l *lowerer) switchTerm(f *SwitchForm) (lambda.Term, error) {
	scrut, err := l.node(f.Scrut)
	if err != nil {
		return nil, err
	}
	consts, err := l.cases(f.Consts)
	if err != nil {
		return nil, err
	}
	blocks, err := l.cases(f.Blocks)
	if err != nil {
		return nil, err
	}
	var def lambda.Term
	if f.Default != nil {
		if def, err = l.node(f.Default); err != nil {
			return nil, err
		}
	}
	return &lambda.Switch{
		Scrut:     scrut,
		NumConsts: int(f.NumConsts),
		Consts:    consts,
		NumBlocks: int(f.NumBlocks),
		Blocks:    blocks,
		Default:   def,
		Loc:       l.loc(f.Pos),
	}, nil
}

func (l *lowerer) strswitch(f *StrswitchForm) (lambda.Term, error) {
	scrut, err := l.node(f.Scrut)
	if err != nil {
		return nil, err
	}
	cases := make([]lambda.StrCase, len(f.Cases))
	for i, c := range f.Cases {
		pat, err := strconv.Unquote(c.Pattern)
		if err != nil {
			return nil, fmt.Errorf("bad case pattern %s: %w", c.Pattern, err)
		}
		body, err := l.node(c.Body)
		if err != nil {
			return nil, err
		}
		cases[i] = lambda.StrCase{Pattern: pat, Body: body}
	}
	var def lambda.Term
	if f.Default != nil {
		if def, err = l.node(f.Default); err != nil {
			return nil, err
		}
	}
	return &lambda.Stringswitch{Scrut: scrut, Cases: cases, Default: def, Loc: l.loc(f.Pos)}, nil
}

func (l *lowerer) prim(n *Node) (lambda.Term, error) {
	switch {
	case n.Makeblk != nil:
		f := n.Makeblk
		mut := lambda.Immutable
		if f.Mut == "mut" {
			mut = lambda.Mutable
		}
		var shape []lambda.ValueKind
		for _, s := range f.Shape {
			shape = append(shape, valueKind(s))
		}
		args, err := l.nodes(f.Args)
		if err != nil {
			return nil, err
		}
		return &lambda.Prim{
			Op:   lambda.Pmakeblock{Tag: int(f.Tag), Mut: mut, Shape: shape},
			Args: args,
			Loc:  l.loc(f.Pos),
		}, nil
	case n.Field != nil:
		args, err := l.nodes(n.Field.Args)
		if err != nil {
			return nil, err
		}
		return &lambda.Prim{Op: lambda.Pfield{Index: int(n.Field.Index)}, Args: args, Loc: l.loc(n.Field.Pos)}, nil
	case n.Setfield != nil:
		args, err := l.nodes(n.Setfield.Args)
		if err != nil {
			return nil, err
		}
		return &lambda.Prim{
			Op:   lambda.Psetfield{Index: int(n.Setfield.Index), Ptr: lambda.Pointer, Init: lambda.Assignment},
			Args: args,
			Loc:  l.loc(n.Setfield.Pos),
		}, nil
	case n.Setfc != nil:
		args, err := l.nodes(n.Setfc.Args)
		if err != nil {
			return nil, err
		}
		return &lambda.Prim{
			Op:   lambda.Psetfieldcomputed{Ptr: lambda.Pointer, Init: lambda.HeapInit},
			Args: args,
			Loc:  l.loc(n.Setfc.Pos),
		}, nil
	case n.Offsetr != nil:
		args, err := l.nodes(n.Offsetr.Args)
		if err != nil {
			return nil, err
		}
		return &lambda.Prim{Op: lambda.Poffsetref{Delta: int(n.Offsetr.Delta)}, Args: args, Loc: l.loc(n.Offsetr.Pos)}, nil
	case n.Offseti != nil:
		args, err := l.nodes(n.Offseti.Args)
		if err != nil {
			return nil, err
		}
		return &lambda.Prim{Op: lambda.Poffsetint{Delta: int(n.Offseti.Delta)}, Args: args, Loc: l.loc(n.Offseti.Pos)}, nil
	case n.Extcall != nil:
		name, err := strconv.Unquote(n.Extcall.Name)
		if err != nil {
			return nil, fmt.Errorf("bad extcall name %s: %w", n.Extcall.Name, err)
		}
		args, err := l.nodes(n.Extcall.Args)
		if err != nil {
			return nil, err
		}
		return &lambda.Prim{
			Op:   lambda.Pextcall{Name: name, Arity: len(args)},
			Args: args,
			Loc:  l.loc(n.Extcall.Pos),
		}, nil
	case n.GenPrim != nil:
		args, err := l.nodes(n.GenPrim.Args)
		if err != nil {
			return nil, err
		}
		op, err := genPrimOp(n.GenPrim.Op)
		if err != nil {
			return nil, err
		}
		return &lambda.Prim{Op: op, Args: args, Loc: l.loc(n.GenPrim.Pos)}, nil
	}
	return nil, fmt.Errorf("empty term")
}

func genPrimOp(name string) (lambda.Primitive, error) {
	switch name {
	case "revapply":
		return lambda.Prevapply{}, nil
	case "dirapply":
		return lambda.Pdirapply{}, nil
	case "identity":
		return lambda.Pidentity{}, nil
	case "bytes2str":
		return lambda.Pbytestostring{}, nil
	case "str2bytes":
		return lambda.Pbytesofstring{}, nil
	case "raise":
		return lambda.Praise{}, nil
	}
	ops := map[string]lambda.IntOp{
		"add": lambda.AddInt, "sub": lambda.SubInt, "mul": lambda.MulInt,
		"div": lambda.DivInt, "mod": lambda.ModInt, "and": lambda.AndInt,
		"or": lambda.OrInt, "xor": lambda.XorInt, "neg": lambda.NegInt,
		"not": lambda.NotBool, "eq": lambda.EqInt, "ne": lambda.NeInt,
		"lt": lambda.LtInt, "le": lambda.LeInt, "gt": lambda.GtInt, "ge": lambda.GeInt,
	}
	if op, ok := ops[name]; ok {
		return lambda.Pintop{Op: op}, nil
	}
	return nil, fmt.Errorf("unknown primitive %s", name)
}
