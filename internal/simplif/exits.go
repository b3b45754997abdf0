package simplif

import (
	"lamina/internal/diag"
	"lamina/internal/lambda"
)

// Exit simplification contracts Staticcatch nodes whose handler is dead,
// used exactly once, or a bare alias for another label. It also performs the
// control-flow contractions that belong with it: beta reduction of exact
// applications, revapply/dirapply, identity, and obj_with_tag on a fresh
// block.

type exitInfo struct {
	count    int
	maxDepth int
}

type exitHandler struct {
	params  []lambda.Param
	handler lambda.Term
}

type exitSimplifier struct {
	exits    map[int]*exitInfo
	subst    map[int]exitHandler
	tryDepth int
}

// SimplifyExits runs the exit-simplification pass.
func SimplifyExits(t lambda.Term) lambda.Term {
	s := &exitSimplifier{
		exits: make(map[int]*exitInfo),
		subst: make(map[int]exitHandler),
	}
	s.count(t)
	diag.Assert(s.tryDepth == 0, "try depth %d after exit counting", s.tryDepth)
	out := s.simplify(t)
	diag.Assert(s.tryDepth == 0, "try depth %d after exit rewriting", s.tryDepth)
	return out
}

func (s *exitSimplifier) getExit(label int) exitInfo {
	if info, ok := s.exits[label]; ok {
		return *info
	}
	return exitInfo{}
}

func (s *exitSimplifier) incrExit(label, n, depth int) {
	info, ok := s.exits[label]
	if !ok {
		info = &exitInfo{}
		s.exits[label] = info
	}
	info.count += n
	if depth > info.maxDepth {
		info.maxDepth = depth
	}
}

// aliasTarget matches a handler of the shape Staticraise(j, []) on a catch
// binding no parameters.
func aliasTarget(n *lambda.Staticcatch) (int, bool) {
	if len(n.Params) != 0 {
		return 0, false
	}
	raise, ok := n.Handler.(*lambda.Staticraise)
	if !ok || len(raise.Args) != 0 {
		return 0, false
	}
	return raise.Label, true
}

func (s *exitSimplifier) count(t lambda.Term) {
	switch n := t.(type) {
	case *lambda.Staticraise:
		s.incrExit(n.Label, 1, s.tryDepth)
		for _, a := range n.Args {
			s.count(a)
		}
	case *lambda.Staticcatch:
		if j, ok := aliasTarget(n); ok {
			// The handler forwards to j, so every occurrence of the label in
			// the body becomes an occurrence of j.
			s.count(n.Body)
			ic := s.getExit(n.Label)
			depth := s.tryDepth
			if ic.maxDepth > depth {
				depth = ic.maxDepth
			}
			s.incrExit(j, ic.count, depth)
			return
		}
		s.count(n.Body)
		// A dead label means the handler will be dropped, so its exits must
		// not be counted.
		if s.getExit(n.Label).count > 0 {
			s.count(n.Handler)
		}
	case *lambda.Trywith:
		s.tryDepth++
		s.count(n.Body)
		s.tryDepth--
		s.count(n.Handler)
	case *lambda.Switch:
		s.countSwitchDefault(n)
		s.count(n.Scrut)
		for _, c := range n.Consts {
			s.count(c.Body)
		}
		for _, c := range n.Blocks {
			s.count(c.Body)
		}
	case *lambda.Stringswitch:
		s.count(n.Scrut)
		for _, c := range n.Cases {
			s.count(c.Body)
		}
		if n.Default != nil {
			s.count(n.Default)
			if len(n.Cases) >= 2 {
				// The back end replicates the default across the decision tree.
				s.count(n.Default)
			}
		}
	default:
		lambda.IterChildren(s.count, t)
	}
}

func (s *exitSimplifier) countSwitchDefault(sw *lambda.Switch) {
	if sw.Default == nil {
		return
	}
	constsPartial := len(sw.Consts) < sw.NumConsts
	blocksPartial := len(sw.Blocks) < sw.NumBlocks
	if constsPartial && blocksPartial {
		// The default occurs twice in the generated code.
		s.count(sw.Default)
		s.count(sw.Default)
	} else {
		diag.Assert(constsPartial || blocksPartial,
			"switch with a default but complete const and block arms")
		s.count(sw.Default)
	}
}

func (s *exitSimplifier) simplify(t lambda.Term) lambda.Term {
	switch n := t.(type) {
	case *lambda.Apply:
		if reduced, ok := exactApplication(n); ok {
			return s.simplify(reduced)
		}
	case *lambda.Prim:
		if out, ok := s.simplifyPrim(n); ok {
			return out
		}
	case *lambda.Staticraise:
		h, ok := s.subst[n.Label]
		if !ok {
			break
		}
		if len(n.Args) == 0 && len(h.params) == 0 {
			// Alias-recorded handlers can reach several raise sites; a fresh
			// copy keeps the output a tree with unique binders.
			return lambda.Duplicate(h.handler)
		}
		diag.Assert(len(n.Args) == len(h.params),
			"exit %d applied to %d arguments, handler expects %d", n.Label, len(n.Args), len(h.params))
		args := make([]lambda.Term, len(n.Args))
		for i, a := range n.Args {
			args[i] = s.simplify(a)
		}
		// Fresh copies of the formals keep bound identifiers unique even
		// when an alias chain duplicates the handler.
		env := make(map[lambda.Ident]lambda.Ident, len(h.params))
		fresh := make([]lambda.Ident, len(h.params))
		for i, p := range h.params {
			fresh[i] = p.Id.Rename()
			env[p.Id] = fresh[i]
		}
		out := lambda.Rename(env, h.handler)
		for i := len(h.params) - 1; i >= 0; i-- {
			out = &lambda.Let{
				Kind:  lambda.LetStrict,
				Value: h.params[i].Kind,
				Id:    fresh[i],
				Bound: args[i],
				Body:  out,
			}
		}
		return out
	case *lambda.Staticcatch:
		if _, ok := aliasTarget(n); ok {
			s.subst[n.Label] = exitHandler{handler: s.simplify(n.Handler)}
			return s.simplify(n.Body)
		}
		info := s.getExit(n.Label)
		switch {
		case info.count == 0:
			return s.simplify(n.Body)
		case info.count == 1 && info.maxDepth <= s.tryDepth:
			s.subst[n.Label] = exitHandler{
				params:  n.Params,
				handler: s.simplify(n.Handler),
			}
			return s.simplify(n.Body)
		default:
			return &lambda.Staticcatch{
				Body:    s.simplify(n.Body),
				Label:   n.Label,
				Params:  append([]lambda.Param(nil), n.Params...),
				Handler: s.simplify(n.Handler),
			}
		}
	case *lambda.Trywith:
		s.tryDepth++
		body := s.simplify(n.Body)
		s.tryDepth--
		return &lambda.Trywith{Body: body, ExnVar: n.ExnVar, Handler: s.simplify(n.Handler)}
	}
	return lambda.MapChildren(s.simplify, t)
}

// exactApplication recognizes a redex: a literal function applied to exactly
// as many arguments as it has parameters, either curried or through a
// constructed tuple. It returns the beta-reduced form.
func exactApplication(ap *lambda.Apply) (lambda.Term, bool) {
	fn, ok := ap.Func.(*lambda.Function)
	if !ok {
		return nil, false
	}
	switch fn.Kind {
	case lambda.Curried:
		if len(fn.Params) == len(ap.Args) {
			return betaReduce(fn.Params, fn.Body, ap.Args), true
		}
	case lambda.Tupled:
		if len(ap.Args) != 1 {
			return nil, false
		}
		block, ok := ap.Args[0].(*lambda.Prim)
		if !ok {
			return nil, false
		}
		if _, ok := block.Op.(lambda.Pmakeblock); !ok {
			return nil, false
		}
		if len(block.Args) == len(fn.Params) {
			return betaReduce(fn.Params, fn.Body, block.Args), true
		}
	}
	return nil, false
}

// betaReduce binds each parameter to its argument around the body. The first
// argument's binding is outermost so arguments evaluate left to right.
func betaReduce(params []lambda.Param, body lambda.Term, args []lambda.Term) lambda.Term {
	out := body
	for i := len(params) - 1; i >= 0; i-- {
		out = &lambda.Let{
			Kind:  lambda.LetStrict,
			Value: params[i].Kind,
			Id:    params[i].Id,
			Bound: args[i],
			Body:  out,
		}
	}
	return out
}

func (s *exitSimplifier) simplifyPrim(n *lambda.Prim) (lambda.Term, bool) {
	switch op := n.Op.(type) {
	case lambda.Pidentity:
		if len(n.Args) == 1 {
			return s.simplify(n.Args[0]), true
		}
	case lambda.Prevapply:
		if len(n.Args) == 2 {
			return s.contractApply(n.Args[1], n.Args[0], n.Loc), true
		}
	case lambda.Pdirapply:
		if len(n.Args) == 2 {
			return s.contractApply(n.Args[0], n.Args[1], n.Loc), true
		}
	case lambda.Pextcall:
		if op.Name != lambda.ObjWithTag || len(n.Args) != 2 {
			break
		}
		tag, ok := constInt(n.Args[0])
		if !ok {
			break
		}
		switch arg := n.Args[1].(type) {
		case *lambda.Prim:
			if mk, ok := arg.Op.(lambda.Pmakeblock); ok {
				fields := make([]lambda.Term, len(arg.Args))
				for i, f := range arg.Args {
					fields[i] = s.simplify(f)
				}
				return &lambda.Prim{
					Op:   lambda.Pmakeblock{Tag: int(tag), Mut: mk.Mut, Shape: mk.Shape},
					Args: fields,
					Loc:  arg.Loc,
				}, true
			}
		case *lambda.Const:
			if blk, ok := arg.Value.(lambda.ConstBlock); ok {
				return &lambda.Const{Value: lambda.ConstBlock{Tag: int(tag), Fields: blk.Fields}}, true
			}
		}
	}
	return nil, false
}

// contractApply turns revapply/dirapply into a plain application, folding
// the argument into an existing application's argument list when the
// function side already is one.
func (s *exitSimplifier) contractApply(f, x lambda.Term, loc lambda.Loc) lambda.Term {
	sf := s.simplify(f)
	sx := s.simplify(x)
	if ap, ok := sf.(*lambda.Apply); ok {
		return &lambda.Apply{
			Func:     ap.Func,
			Args:     append(append([]lambda.Term(nil), ap.Args...), sx),
			Loc:      loc,
			Tailcall: ap.Tailcall,
			Inlined:  ap.Inlined,
		}
	}
	return &lambda.Apply{Func: sf, Args: []lambda.Term{sx}, Loc: loc}
}

func constInt(t lambda.Term) (int64, bool) {
	c, ok := t.(*lambda.Const)
	if !ok {
		return 0, false
	}
	i, ok := c.Value.(lambda.ConstInt)
	if !ok {
		return 0, false
	}
	return i.Value, true
}
