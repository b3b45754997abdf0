package lambda

import (
	"fmt"
	"strconv"
	"strings"
)

// Printer renders terms in the textual IR syntax understood by the grammar
// package. Identifiers print as bare names; stamps are dropped, so the
// output is for humans and round-tripping, not for identity-preserving
// serialization.
type Printer struct {
	out strings.Builder
}

// Print returns the textual form of a term.
func Print(t Term) string {
	p := &Printer{}
	p.term(t)
	return p.out.String()
}

func (p *Printer) write(format string, args ...interface{}) {
	fmt.Fprintf(&p.out, format, args...)
}

func (p *Printer) space() {
	p.out.WriteByte(' ')
}

func (p *Printer) term(t Term) {
	switch n := t.(type) {
	case *Var:
		p.write("%s", n.Id.Name)
	case *Const:
		p.constant(n.Value)
	case *Apply:
		p.write("(apply")
		switch n.Tailcall {
		case TailcallExpect:
			p.write(" @tail")
		case TailcallForbid:
			p.write(" @notail")
		}
		p.space()
		p.term(n.Func)
		for _, a := range n.Args {
			p.space()
			p.term(a)
		}
		p.write(")")
	case *Function:
		p.write("(fn")
		if n.Kind == Tupled {
			p.write(" tupled")
		}
		p.attrs(n.Attr)
		p.write(" (")
		for i, prm := range n.Params {
			if i > 0 {
				p.space()
			}
			p.param(prm)
		}
		p.write(") ")
		p.term(n.Body)
		p.write(")")
	case *Let:
		p.write("(let %s %s ", letKindName(n.Kind), n.Id.Name)
		p.term(n.Bound)
		p.space()
		p.term(n.Body)
		p.write(")")
	case *Letrec:
		p.write("(letrec (")
		for i, b := range n.Bindings {
			if i > 0 {
				p.space()
			}
			p.write("(%s ", b.Id.Name)
			p.term(b.Bound)
			p.write(")")
		}
		p.write(") ")
		p.term(n.Body)
		p.write(")")
	case *Prim:
		p.prim(n)
	case *Switch:
		p.write("(switch ")
		p.term(n.Scrut)
		p.write(" consts %d (", n.NumConsts)
		p.cases(n.Consts)
		p.write(") blocks %d (", n.NumBlocks)
		p.cases(n.Blocks)
		p.write(")")
		if n.Default != nil {
			p.write(" default ")
			p.term(n.Default)
		}
		p.write(")")
	case *Stringswitch:
		p.write("(strswitch ")
		p.term(n.Scrut)
		for _, c := range n.Cases {
			p.write(" (case %s ", strconv.Quote(c.Pattern))
			p.term(c.Body)
			p.write(")")
		}
		if n.Default != nil {
			p.write(" default ")
			p.term(n.Default)
		}
		p.write(")")
	case *Staticraise:
		p.write("(exit %d", n.Label)
		for _, a := range n.Args {
			p.space()
			p.term(a)
		}
		p.write(")")
	case *Staticcatch:
		p.write("(catch ")
		p.term(n.Body)
		p.write(" with (%d", n.Label)
		for _, prm := range n.Params {
			p.space()
			p.param(prm)
		}
		p.write(") ")
		p.term(n.Handler)
		p.write(")")
	case *Trywith:
		p.write("(try ")
		p.term(n.Body)
		p.write(" with %s ", n.ExnVar.Name)
		p.term(n.Handler)
		p.write(")")
	case *Ifthenelse:
		p.write("(if ")
		p.term(n.Cond)
		p.space()
		p.term(n.Then)
		p.space()
		p.term(n.Else)
		p.write(")")
	case *Sequence:
		p.write("(seq ")
		p.term(n.First)
		p.space()
		p.term(n.Second)
		p.write(")")
	case *While:
		p.write("(while ")
		p.term(n.Cond)
		p.space()
		p.term(n.Body)
		p.write(")")
	case *For:
		dir := "to"
		if n.Dir == DownTo {
			dir = "downto"
		}
		p.write("(for %s ", n.Id.Name)
		p.term(n.Lo)
		p.write(" %s ", dir)
		p.term(n.Hi)
		p.space()
		p.term(n.Body)
		p.write(")")
	case *Assign:
		p.write("(assign %s ", n.Id.Name)
		p.term(n.Value)
		p.write(")")
	case *Send:
		p.write("(send ")
		p.term(n.Meth)
		p.space()
		p.term(n.Obj)
		for _, a := range n.Args {
			p.space()
			p.term(a)
		}
		p.write(")")
	case *Event:
		p.write("(event ")
		p.term(n.Term)
		p.write(")")
	case *Ifused:
		p.write("(ifused %s ", n.Id.Name)
		p.term(n.Term)
		p.write(")")
	default:
		p.write("<?>")
	}
}

func (p *Printer) constant(c Constant) {
	switch k := c.(type) {
	case ConstInt:
		p.write("%d", k.Value)
	case ConstString:
		p.write("%s", strconv.Quote(k.Value))
	case ConstBlock:
		p.write("(block %d", k.Tag)
		for _, f := range k.Fields {
			p.space()
			p.constant(f)
		}
		p.write(")")
	}
}

func (p *Printer) param(prm Param) {
	if prm.Kind == KindGeneric {
		p.write("%s", prm.Id.Name)
		return
	}
	p.write("%s:%s", prm.Id.Name, valueKindName(prm.Kind))
}

func (p *Printer) attrs(attr FunctionAttr) {
	if attr.TMCCandidate {
		p.write(" @tmc")
	}
	switch attr.Local {
	case LocalAlways:
		p.write(" @local")
	case LocalNever:
		p.write(" @nolocal")
	}
	switch attr.Inline {
	case InlineAlways:
		p.write(" @inline")
	case InlineNever:
		p.write(" @noinline")
	}
	if attr.Stub {
		p.write(" @stub")
	}
}

func (p *Printer) cases(cs []Case) {
	for i, c := range cs {
		if i > 0 {
			p.space()
		}
		p.write("(case %d ", c.Index)
		p.term(c.Body)
		p.write(")")
	}
}

func (p *Printer) prim(n *Prim) {
	switch op := n.Op.(type) {
	case Pmakeblock:
		mut := "imm"
		if op.Mut == Mutable {
			mut = "mut"
		}
		p.write("(makeblock %d %s (", op.Tag, mut)
		for i, k := range op.Shape {
			if i > 0 {
				p.space()
			}
			p.write("%s", valueKindName(k))
		}
		p.write(")")
		p.primArgs(n.Args)
	case Pfield:
		p.write("(field %d", op.Index)
		p.primArgs(n.Args)
	case Psetfield:
		p.write("(setfield %d", op.Index)
		p.primArgs(n.Args)
	case Psetfieldcomputed:
		p.write("(setfieldc")
		p.primArgs(n.Args)
	case Poffsetref:
		p.write("(offsetref %d", op.Delta)
		p.primArgs(n.Args)
	case Poffsetint:
		p.write("(offsetint %d", op.Delta)
		p.primArgs(n.Args)
	case Prevapply:
		p.write("(revapply")
		p.primArgs(n.Args)
	case Pdirapply:
		p.write("(dirapply")
		p.primArgs(n.Args)
	case Pidentity:
		p.write("(identity")
		p.primArgs(n.Args)
	case Pbytestostring:
		p.write("(bytes2str")
		p.primArgs(n.Args)
	case Pbytesofstring:
		p.write("(str2bytes")
		p.primArgs(n.Args)
	case Pextcall:
		p.write("(extcall %s", strconv.Quote(op.Name))
		p.primArgs(n.Args)
	case Praise:
		p.write("(raise")
		p.primArgs(n.Args)
	case Pintop:
		p.write("(%s", intOpName(op.Op))
		p.primArgs(n.Args)
	default:
		p.write("(prim?")
		p.primArgs(n.Args)
	}
}

func (p *Printer) primArgs(args []Term) {
	for _, a := range args {
		p.space()
		p.term(a)
	}
	p.write(")")
}

func letKindName(k LetKind) string {
	switch k {
	case LetAlias:
		return "alias"
	case LetStrictOpt:
		return "opt"
	case LetVariable:
		return "var"
	default:
		return "strict"
	}
}

func valueKindName(k ValueKind) string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindPointer:
		return "ptr"
	default:
		return "gen"
	}
}

func intOpName(op IntOp) string {
	switch op {
	case AddInt:
		return "add"
	case SubInt:
		return "sub"
	case MulInt:
		return "mul"
	case DivInt:
		return "div"
	case ModInt:
		return "mod"
	case AndInt:
		return "and"
	case OrInt:
		return "or"
	case XorInt:
		return "xor"
	case NegInt:
		return "neg"
	case NotBool:
		return "not"
	case EqInt:
		return "eq"
	case NeInt:
		return "ne"
	case LtInt:
		return "lt"
	case LeInt:
		return "le"
	case GtInt:
		return "gt"
	case GeInt:
		return "ge"
	}
	return "intop?"
}
