// Package interp is a big-step evaluator over closed IR terms. It exists
// for the test harness: transformed programs must evaluate to the same
// value, with external calls firing in the same order, as their input.
package interp

import (
	"fmt"

	"lamina/internal/lambda"
)

// Value is the sum of runtime values.
type Value interface {
	isValue()
}

type IntValue struct {
	N int64
}

type StringValue struct {
	S string
}

type BlockValue struct {
	Tag    int
	Fields []Value
}

type Closure struct {
	Fn  *lambda.Function
	Env *Env
}

func (IntValue) isValue()    {}
func (StringValue) isValue() {}
func (*BlockValue) isValue() {}
func (*Closure) isValue()    {}

// Env is a persistent environment; extension copies so closures stay stable.
type Env struct {
	vars map[lambda.Ident]*Value
}

func emptyEnv() *Env {
	return &Env{vars: make(map[lambda.Ident]*Value)}
}

func (e *Env) extend(id lambda.Ident, v Value) *Env {
	vars := make(map[lambda.Ident]*Value, len(e.vars)+1)
	for k, slot := range e.vars {
		vars[k] = slot
	}
	vars[id] = &v
	return &Env{vars: vars}
}

func (e *Env) extendSlot(id lambda.Ident, slot *Value) *Env {
	vars := make(map[lambda.Ident]*Value, len(e.vars)+1)
	for k, s := range e.vars {
		vars[k] = s
	}
	vars[id] = slot
	return &Env{vars: vars}
}

func (e *Env) lookup(id lambda.Ident) *Value {
	slot, ok := e.vars[id]
	if !ok {
		panic(evalError{fmt.Sprintf("unbound variable %s", id)})
	}
	return slot
}

// control transfers
type staticExit struct {
	label int
	args  []Value
}

type dynExn struct {
	value Value
}

type evalError struct {
	msg string
}

// Interp evaluates terms and records the trace of external calls.
type Interp struct {
	// Trace holds one entry per extcall, in evaluation order.
	Trace []string
}

// Eval evaluates a closed term.
func (ip *Interp) Eval(t lambda.Term) (v Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			switch c := r.(type) {
			case evalError:
				v, err = nil, fmt.Errorf("evaluation error: %s", c.msg)
			case staticExit:
				v, err = nil, fmt.Errorf("uncaught static exit %d", c.label)
			case dynExn:
				v, err = nil, fmt.Errorf("uncaught exception")
			default:
				panic(r)
			}
		}
	}()
	return ip.eval(emptyEnv(), t), nil
}

func (ip *Interp) eval(env *Env, t lambda.Term) Value {
	switch n := t.(type) {
	case *lambda.Var:
		return *env.lookup(n.Id)
	case *lambda.Const:
		return constValue(n.Value)
	case *lambda.Apply:
		fn := ip.eval(env, n.Func)
		args := make([]Value, len(n.Args))
		for i, a := range n.Args {
			args[i] = ip.eval(env, a)
		}
		return ip.applyClosure(fn, args)
	case *lambda.Function:
		return &Closure{Fn: n, Env: env}
	case *lambda.Let:
		bound := ip.eval(env, n.Bound)
		return ip.eval(env.extend(n.Id, bound), n.Body)
	case *lambda.Letrec:
		slots := make([]*Value, len(n.Bindings))
		for i, b := range n.Bindings {
			var empty Value
			slots[i] = &empty
			env = env.extendSlot(b.Id, slots[i])
		}
		for i, b := range n.Bindings {
			*slots[i] = ip.eval(env, b.Bound)
		}
		return ip.eval(env, n.Body)
	case *lambda.Prim:
		return ip.evalPrim(env, n)
	case *lambda.Switch:
		return ip.evalSwitch(env, n)
	case *lambda.Stringswitch:
		scrut := ip.eval(env, n.Scrut)
		s, ok := scrut.(StringValue)
		if !ok {
			panic(evalError{"stringswitch on a non-string"})
		}
		for _, c := range n.Cases {
			if c.Pattern == s.S {
				return ip.eval(env, c.Body)
			}
		}
		if n.Default == nil {
			panic(evalError{"stringswitch fell through"})
		}
		return ip.eval(env, n.Default)
	case *lambda.Staticraise:
		args := make([]Value, len(n.Args))
		for i, a := range n.Args {
			args[i] = ip.eval(env, a)
		}
		panic(staticExit{label: n.Label, args: args})
	case *lambda.Staticcatch:
		return ip.evalCatch(env, n)
	case *lambda.Trywith:
		return ip.evalTry(env, n)
	case *lambda.Ifthenelse:
		cond := ip.eval(env, n.Cond)
		if truthy(cond) {
			return ip.eval(env, n.Then)
		}
		return ip.eval(env, n.Else)
	case *lambda.Sequence:
		ip.eval(env, n.First)
		return ip.eval(env, n.Second)
	case *lambda.While:
		for truthy(ip.eval(env, n.Cond)) {
			ip.eval(env, n.Body)
		}
		return IntValue{0}
	case *lambda.For:
		lo := intOf(ip.eval(env, n.Lo))
		hi := intOf(ip.eval(env, n.Hi))
		var slot Value = IntValue{lo}
		loopEnv := env.extendSlot(n.Id, &slot)
		if n.Dir == lambda.UpTo {
			for i := lo; i <= hi; i++ {
				slot = IntValue{i}
				ip.eval(loopEnv, n.Body)
			}
		} else {
			for i := lo; i >= hi; i-- {
				slot = IntValue{i}
				ip.eval(loopEnv, n.Body)
			}
		}
		return IntValue{0}
	case *lambda.Assign:
		*env.lookup(n.Id) = ip.eval(env, n.Value)
		return IntValue{0}
	case *lambda.Event:
		return ip.eval(env, n.Term)
	case *lambda.Ifused:
		return ip.eval(env, n.Term)
	}
	panic(evalError{fmt.Sprintf("cannot evaluate %T", t)})
}

func (ip *Interp) applyClosure(fn Value, args []Value) Value {
	cl, ok := fn.(*Closure)
	if !ok {
		panic(evalError{"application of a non-function"})
	}
	params := cl.Fn.Params
	if cl.Fn.Kind == lambda.Tupled {
		if len(args) != 1 {
			panic(evalError{"tupled function expects one block argument"})
		}
		block, ok := args[0].(*BlockValue)
		if !ok || len(block.Fields) != len(params) {
			panic(evalError{"tupled function applied to a bad block"})
		}
		args = block.Fields
	}
	if cl.Fn.Kind == lambda.Curried && len(args) > len(params) {
		// Over-application: the body yields another function that takes
		// the remaining arguments.
		inner := ip.applyClosure(fn, args[:len(params)])
		return ip.applyClosure(inner, args[len(params):])
	}
	if len(args) != len(params) {
		panic(evalError{fmt.Sprintf("arity mismatch: %d args for %d params", len(args), len(params))})
	}
	env := cl.Env
	for i, p := range params {
		env = env.extend(p.Id, args[i])
	}
	return ip.eval(env, cl.Fn.Body)
}

func (ip *Interp) evalSwitch(env *Env, n *lambda.Switch) Value {
	scrut := ip.eval(env, n.Scrut)
	switch v := scrut.(type) {
	case IntValue:
		for _, c := range n.Consts {
			if int64(c.Index) == v.N {
				return ip.eval(env, c.Body)
			}
		}
	case *BlockValue:
		for _, c := range n.Blocks {
			if c.Index == v.Tag {
				return ip.eval(env, c.Body)
			}
		}
	default:
		panic(evalError{"switch on a non-discriminable value"})
	}
	if n.Default == nil {
		panic(evalError{"switch fell through"})
	}
	return ip.eval(env, n.Default)
}

func (ip *Interp) evalCatch(env *Env, n *lambda.Staticcatch) (out Value) {
	defer func() {
		if r := recover(); r != nil {
			exit, ok := r.(staticExit)
			if !ok || exit.label != n.Label {
				panic(r)
			}
			if len(exit.args) != len(n.Params) {
				panic(evalError{fmt.Sprintf("exit %d with %d args, handler expects %d",
					n.Label, len(exit.args), len(n.Params))})
			}
			henv := env
			for i, p := range n.Params {
				henv = henv.extend(p.Id, exit.args[i])
			}
			out = ip.eval(henv, n.Handler)
		}
	}()
	return ip.eval(env, n.Body)
}

func (ip *Interp) evalTry(env *Env, n *lambda.Trywith) (out Value) {
	defer func() {
		if r := recover(); r != nil {
			exn, ok := r.(dynExn)
			if !ok {
				panic(r)
			}
			out = ip.eval(env.extend(n.ExnVar, exn.value), n.Handler)
		}
	}()
	return ip.eval(env, n.Body)
}

func (ip *Interp) evalPrim(env *Env, n *lambda.Prim) Value {
	args := make([]Value, len(n.Args))
	for i, a := range n.Args {
		args[i] = ip.eval(env, a)
	}
	switch op := n.Op.(type) {
	case lambda.Pmakeblock:
		return &BlockValue{Tag: op.Tag, Fields: args}
	case lambda.Pfield:
		return blockOf(args[0]).Fields[op.Index]
	case lambda.Psetfield:
		blockOf(args[0]).Fields[op.Index] = args[1]
		return IntValue{0}
	case lambda.Psetfieldcomputed:
		blockOf(args[0]).Fields[intOf(args[1])] = args[2]
		return IntValue{0}
	case lambda.Poffsetref:
		block := blockOf(args[0])
		block.Fields[0] = IntValue{intOf(block.Fields[0]) + int64(op.Delta)}
		return IntValue{0}
	case lambda.Poffsetint:
		return IntValue{intOf(args[0]) + int64(op.Delta)}
	case lambda.Prevapply:
		return ip.applyClosure(args[1], args[:1])
	case lambda.Pdirapply:
		return ip.applyClosure(args[0], args[1:])
	case lambda.Pidentity, lambda.Pbytestostring, lambda.Pbytesofstring:
		return args[0]
	case lambda.Praise:
		panic(dynExn{value: args[0]})
	case lambda.Pextcall:
		return ip.extcall(op.Name, args)
	case lambda.Pintop:
		return intop(op.Op, args)
	}
	panic(evalError{fmt.Sprintf("cannot evaluate primitive %T", n.Op)})
}

func (ip *Interp) extcall(name string, args []Value) Value {
	switch name {
	case lambda.ObjWithTag:
		block := blockOf(args[1])
		return &BlockValue{Tag: int(intOf(args[0])), Fields: block.Fields}
	case "log":
		ip.Trace = append(ip.Trace, Format(args[0]))
		return IntValue{0}
	}
	panic(evalError{fmt.Sprintf("unknown external %s", name)})
}

func intop(op lambda.IntOp, args []Value) Value {
	b := func(cond bool) Value {
		if cond {
			return IntValue{1}
		}
		return IntValue{0}
	}
	if op == lambda.NegInt {
		return IntValue{-intOf(args[0])}
	}
	if op == lambda.NotBool {
		return b(intOf(args[0]) == 0)
	}
	x, y := intOf(args[0]), intOf(args[1])
	switch op {
	case lambda.AddInt:
		return IntValue{x + y}
	case lambda.SubInt:
		return IntValue{x - y}
	case lambda.MulInt:
		return IntValue{x * y}
	case lambda.DivInt:
		if y == 0 {
			panic(evalError{"division by zero"})
		}
		return IntValue{x / y}
	case lambda.ModInt:
		if y == 0 {
			panic(evalError{"division by zero"})
		}
		return IntValue{x % y}
	case lambda.AndInt:
		return IntValue{x & y}
	case lambda.OrInt:
		return IntValue{x | y}
	case lambda.XorInt:
		return IntValue{x ^ y}
	case lambda.EqInt:
		return b(x == y)
	case lambda.NeInt:
		return b(x != y)
	case lambda.LtInt:
		return b(x < y)
	case lambda.LeInt:
		return b(x <= y)
	case lambda.GtInt:
		return b(x > y)
	case lambda.GeInt:
		return b(x >= y)
	}
	panic(evalError{"unknown integer operation"})
}

func constValue(c lambda.Constant) Value {
	switch k := c.(type) {
	case lambda.ConstInt:
		return IntValue{k.Value}
	case lambda.ConstString:
		return StringValue{k.Value}
	case lambda.ConstBlock:
		fields := make([]Value, len(k.Fields))
		for i, f := range k.Fields {
			fields[i] = constValue(f)
		}
		return &BlockValue{Tag: k.Tag, Fields: fields}
	}
	panic(evalError{"unknown constant"})
}

func truthy(v Value) bool {
	if _, ok := v.(*BlockValue); ok {
		return true
	}
	return intOf(v) != 0
}

func intOf(v Value) int64 {
	i, ok := v.(IntValue)
	if !ok {
		panic(evalError{"expected an integer"})
	}
	return i.N
}

func blockOf(v Value) *BlockValue {
	block, ok := v.(*BlockValue)
	if !ok {
		panic(evalError{"expected a block"})
	}
	return block
}

// Format renders a value for traces and test failure messages.
func Format(v Value) string {
	switch k := v.(type) {
	case IntValue:
		return fmt.Sprintf("%d", k.N)
	case StringValue:
		return fmt.Sprintf("%q", k.S)
	case *BlockValue:
		out := fmt.Sprintf("[%d:", k.Tag)
		for _, f := range k.Fields {
			out += " " + Format(f)
		}
		return out + "]"
	case *Closure:
		return "<fun>"
	}
	return "<?>"
}

// Equal compares values structurally; closures never compare equal.
func Equal(a, b Value) bool {
	switch x := a.(type) {
	case IntValue:
		y, ok := b.(IntValue)
		return ok && x == y
	case StringValue:
		y, ok := b.(StringValue)
		return ok && x == y
	case *BlockValue:
		y, ok := b.(*BlockValue)
		if !ok || x.Tag != y.Tag || len(x.Fields) != len(y.Fields) {
			return false
		}
		for i := range x.Fields {
			if !Equal(x.Fields[i], y.Fields[i]) {
				return false
			}
		}
		return true
	}
	return false
}
