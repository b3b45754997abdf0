package tmc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lamina/grammar"
	"lamina/internal/config"
	"lamina/internal/diag"
	"lamina/internal/interp"
	"lamina/internal/lambda"
)

var defaultFlags = config.Flags{NativeCode: true}

// mapSource is the classic map with a TMC annotation: nil is the constant 0,
// cons is a tag-0 block of two fields.
const mapSource = `
	(letrec ((map (fn @tmc (f l)
	    (if l
	        (makeblock 0 imm () (apply f (field 0 l)) (apply map f (field 1 l)))
	        0))))
	  (apply map (fn (x) (mul x x)) (makeblock 0 imm () 1 (makeblock 0 imm () 2 (makeblock 0 imm () 3 0)))))`

func rewriteOK(t *testing.T, src string) (lambda.Term, lambda.Term, *diag.Sink) {
	t.Helper()
	in := grammar.MustParse(src)
	sink := &diag.Sink{}
	out, err := Rewrite(defaultFlags, sink, in)
	require.NoError(t, err)
	return in, out, sink
}

func findLetrec(t lambda.Term) *lambda.Letrec {
	var found *lambda.Letrec
	var walk func(lambda.Term)
	walk = func(t lambda.Term) {
		if lr, ok := t.(*lambda.Letrec); ok && found == nil {
			found = lr
		}
		lambda.IterChildren(walk, t)
	}
	walk(t)
	return found
}

func assertSameEval(t *testing.T, before, after lambda.Term) {
	t.Helper()
	var ipBefore, ipAfter interp.Interp
	vb, errB := ipBefore.Eval(before)
	va, errA := ipAfter.Eval(after)
	require.NoError(t, errB)
	require.NoError(t, errA)
	assert.True(t, interp.Equal(vb, va), "value changed: %s vs %s", interp.Format(vb), interp.Format(va))
	assert.Equal(t, ipBefore.Trace, ipAfter.Trace)
}

func TestMapGetsDPSCompanion(t *testing.T) {
	in, out, _ := rewriteOK(t, mapSource)

	lr := findLetrec(out)
	require.NotNil(t, lr)
	require.Len(t, lr.Bindings, 2, "direct and DPS versions")

	direct := lr.Bindings[0].Bound.(*lambda.Function)
	dps := lr.Bindings[1].Bound.(*lambda.Function)
	assert.Equal(t, "map", lr.Bindings[0].Id.Name)
	assert.Equal(t, "map_dps", lr.Bindings[1].Id.Name)
	assert.Len(t, direct.Params, 2)
	assert.Len(t, dps.Params, 4, "dst and offset are prepended")
	assert.Equal(t, lambda.KindInt, dps.Params[1].Kind)
	assert.False(t, direct.Attr.TMCCandidate, "the candidate attribute is consumed")

	assertSameEval(t, in, out)
}

func TestMapDirectBodyUsesCompanion(t *testing.T) {
	// The direct version allocates the block with a placeholder and lets
	// the DPS companion fill it in, so even external callers recurse in
	// constant stack.
	_, out, _ := rewriteOK(t, mapSource)
	lr := findLetrec(out)
	direct := lr.Bindings[0].Bound.(*lambda.Function)

	ite := direct.Body.(*lambda.Ifthenelse)
	argLet, ok := ite.Then.(*lambda.Let)
	require.True(t, ok, "got %s", lambda.Print(ite.Then))
	blockLet, ok := argLet.Body.(*lambda.Let)
	require.True(t, ok, "got %s", lambda.Print(argLet.Body))
	block, ok := blockLet.Bound.(*lambda.Prim)
	require.True(t, ok)
	_, isBlock := block.Op.(lambda.Pmakeblock)
	require.True(t, isBlock)

	seq, ok := blockLet.Body.(*lambda.Sequence)
	require.True(t, ok)
	call, ok := seq.First.(*lambda.Apply)
	require.True(t, ok)
	assert.Equal(t, "map_dps", call.Func.(*lambda.Var).Id.Name)
	ret, ok := seq.Second.(*lambda.Var)
	require.True(t, ok)
	assert.Equal(t, blockLet.Id, ret.Id, "the block is the result")
}

func TestMapDPSBodyWritesThroughDestination(t *testing.T) {
	_, out, _ := rewriteOK(t, mapSource)
	lr := findLetrec(out)
	dps := lr.Bindings[1].Bound.(*lambda.Function)

	// recursive arm: bind the head, allocate the block with a placeholder,
	// write it to the parent destination, then tail-call the DPS version on
	// the hole
	ite := dps.Body.(*lambda.Ifthenelse)
	argLet, ok := ite.Then.(*lambda.Let)
	require.True(t, ok, "got %s", lambda.Print(ite.Then))
	let, ok := argLet.Body.(*lambda.Let)
	require.True(t, ok, "got %s", lambda.Print(argLet.Body))
	block, ok := let.Bound.(*lambda.Prim)
	require.True(t, ok)
	_, isBlock := block.Op.(lambda.Pmakeblock)
	assert.True(t, isBlock)

	seq, ok := let.Body.(*lambda.Sequence)
	require.True(t, ok)
	write, ok := seq.First.(*lambda.Prim)
	require.True(t, ok)
	_, isWrite := write.Op.(lambda.Psetfieldcomputed)
	assert.True(t, isWrite)

	call, ok := seq.Second.(*lambda.Apply)
	require.True(t, ok)
	assert.Equal(t, "map_dps", call.Func.(*lambda.Var).Id.Name)
	assert.Len(t, call.Args, 4)
	assert.Equal(t, lambda.TailcallExpect, call.Tailcall)
	off, ok := call.Args[1].(*lambda.Const)
	require.True(t, ok)
	assert.Equal(t, lambda.ConstInt{Value: 1}, off.Value, "the hole is field 1 of the cons")

	// leaf arm writes the value straight to the destination
	write, ok = ite.Else.(*lambda.Prim)
	require.True(t, ok)
	_, isWrite = write.Op.(lambda.Psetfieldcomputed)
	assert.True(t, isWrite)
}

func TestBodiesShareNoIdentifiers(t *testing.T) {
	_, out, _ := rewriteOK(t, mapSource)
	lr := findLetrec(out)

	binders := func(t lambda.Term) map[lambda.Ident]bool {
		set := make(map[lambda.Ident]bool)
		var walk func(lambda.Term)
		walk = func(t lambda.Term) {
			switch n := t.(type) {
			case *lambda.Let:
				set[n.Id] = true
			case *lambda.Function:
				for _, p := range n.Params {
					set[p.Id] = true
				}
			}
			lambda.IterChildren(walk, t)
		}
		walk(t)
		return set
	}
	direct := binders(lr.Bindings[0].Bound)
	for id := range binders(lr.Bindings[1].Bound) {
		assert.False(t, direct[id], "identifier %s shared between direct and DPS bodies", id)
	}
}

func TestNestedConstructorsCombineIntoOneWrite(t *testing.T) {
	// dup n conses every element twice; the direct version must already use
	// the DPS companion for the inner constructor.
	src := `
		(letrec ((dup (fn @tmc (n)
		    (if (le n 0)
		        0
		        (makeblock 0 imm () n (makeblock 0 imm () n (apply dup (sub n 1))))))))
		  (apply dup 3))`
	in, out, _ := rewriteOK(t, src)
	assertSameEval(t, in, out)

	lr := findLetrec(out)
	direct := lr.Bindings[0].Bound.(*lambda.Function)
	ite := direct.Body.(*lambda.Ifthenelse)
	_, ok := ite.Else.(*lambda.Let)
	assert.True(t, ok, "direct body allocates a placeholder block for the nested constructor: %s",
		lambda.Print(ite.Else))

	// in the DPS body both constructors reach the destination in one write
	dps := lr.Bindings[1].Bound.(*lambda.Function)
	dite := dps.Body.(*lambda.Ifthenelse)
	inner, ok := dite.Else.(*lambda.Let)
	require.True(t, ok, "got %s", lambda.Print(dite.Else))
	seq, ok := inner.Body.(*lambda.Sequence)
	require.True(t, ok, "got %s", lambda.Print(inner.Body))
	write, ok := seq.First.(*lambda.Prim)
	require.True(t, ok)
	_, isWrite := write.Op.(lambda.Psetfieldcomputed)
	assert.True(t, isWrite)
	_, isCall := seq.Second.(*lambda.Apply)
	assert.True(t, isCall, "the recursive call follows the single write")
}

func TestAmbiguousConstructorFails(t *testing.T) {
	src := `
		(letrec ((zip (fn @tmc (l r)
		    (makeblock 0 imm () (apply zip (field 0 l) r) (apply zip l (field 0 r))))))
		  (apply zip a b))`
	in := grammar.MustParse(src)
	sink := &diag.Sink{}
	_, err := Rewrite(defaultFlags, sink, in)
	require.Error(t, err)
	var fatal *diag.Error
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, diag.ErrorAmbiguousConstructorArguments, fatal.Code)
}

func TestExplicitTailcallDisambiguates(t *testing.T) {
	src := `
		(letrec ((zip (fn @tmc (l r)
		    (makeblock 0 imm () (apply zip (field 0 l) r) (apply @tail zip l (field 0 r))))))
		  0)`
	_, out, _ := rewriteOK(t, src)
	lr := findLetrec(out)
	require.Len(t, lr.Bindings, 2)
}

func TestUnusedTMCAttributeWarns(t *testing.T) {
	src := `
		(letrec ((id (fn @tmc (x) x)))
		  (apply id 1))`
	_, _, sink := rewriteOK(t, src)
	require.Len(t, sink.Warnings, 1)
	assert.Equal(t, diag.WarnUnusedTMCAttribute, sink.Warnings[0].Code)
}

func TestTailcallForbidIsRespected(t *testing.T) {
	src := `
		(letrec ((f (fn @tmc (n)
		    (makeblock 0 imm () 1 (apply @notail f n)))))
		  0)`
	_, _, sink := rewriteOK(t, src)
	// the only recursive call opted out, so the candidate has no TMC calls
	require.Len(t, sink.Warnings, 1)
	assert.Equal(t, diag.WarnUnusedTMCAttribute, sink.Warnings[0].Code)
}

func TestForceTMCSpecializesUnannotated(t *testing.T) {
	src := `
		(letrec ((f (fn (n) (makeblock 0 imm () n (apply f n)))))
		  0)`
	in := grammar.MustParse(src)
	sink := &diag.Sink{}
	out, err := Rewrite(config.Flags{NativeCode: true, ForceTMC: true}, sink, in)
	require.NoError(t, err)
	lr := findLetrec(out)
	require.Len(t, lr.Bindings, 2)
	assert.Empty(t, sink.Warnings, "no unused-attribute warning for force-induced candidates")
}

func TestNonFunctionBindingUntouched(t *testing.T) {
	src := `
		(letrec ((f (fn @tmc (n) (makeblock 0 imm () n (apply f n)))) (k 42))
		  k)`
	_, out, _ := rewriteOK(t, src)
	lr := findLetrec(out)
	require.Len(t, lr.Bindings, 3)
	assert.Equal(t, "k", lr.Bindings[2].Id.Name)
}

func TestTMCBreaksTailcallWarning(t *testing.T) {
	// g is not specialized; in the DPS body its tail call moves into
	// non-tail position
	src := `
		(letrec ((f (fn @tmc (n)
		    (if n
		        (makeblock 0 imm () n (apply f n))
		        (apply g n)))))
		  0)`
	_, _, sink := rewriteOK(t, src)
	codes := make(map[string]int)
	for _, w := range sink.Warnings {
		codes[w.Code]++
	}
	assert.Equal(t, 1, codes[diag.WarnTMCBreaksTailcall])
}

func TestBranchingInsideConstructorReifiesOnce(t *testing.T) {
	// Cons(x, if c then f a else leaf): the frame must materialize before
	// the branch so neither side duplicates it.
	src := `
		(letrec ((f (fn @tmc (n)
		    (makeblock 0 imm () n
		      (if (gt n 0) (apply f (sub n 1)) 0)))))
		  (apply f 2))`
	in, out, _ := rewriteOK(t, src)
	assertSameEval(t, in, out)

	dps := findLetrec(out).Bindings[1].Bound.(*lambda.Function)
	let, ok := dps.Body.(*lambda.Let)
	require.True(t, ok, "got %s", lambda.Print(dps.Body))
	seq, ok := let.Body.(*lambda.Sequence)
	require.True(t, ok, "got %s", lambda.Print(let.Body))
	_, ok = seq.Second.(*lambda.Ifthenelse)
	assert.True(t, ok, "the frame is written once, before the branch: %s", lambda.Print(dps.Body))
}

func TestSwitchArmsPropagate(t *testing.T) {
	src := `
		(letrec ((walk (fn @tmc (l)
		    (switch l
		      consts 1 ((case 0 0))
		      blocks 1 ((case 0 (makeblock 0 imm () (field 0 l) (apply walk (field 1 l)))))))))
		  (apply walk (makeblock 0 imm () 7 (makeblock 0 imm () 8 0))))`
	in, out, _ := rewriteOK(t, src)
	assertSameEval(t, in, out)
	lr := findLetrec(out)
	require.Len(t, lr.Bindings, 2)
}

func TestStaticCatchPropagates(t *testing.T) {
	src := `
		(letrec ((f (fn @tmc (n)
		    (catch
		      (if (gt n 0)
		          (makeblock 0 imm () n (apply f (sub n 1)))
		          (exit 9))
		      with (9) 0))))
		  (apply f 2))`
	in, out, _ := rewriteOK(t, src)
	assertSameEval(t, in, out)
}

func TestIdempotentOnOutput(t *testing.T) {
	_, out, _ := rewriteOK(t, mapSource)
	sink := &diag.Sink{}
	twice, err := Rewrite(defaultFlags, sink, out)
	require.NoError(t, err)
	assert.True(t, lambda.AlphaEquiv(out, twice), "TMC must consume its attribute")
}

func TestFreeVarsShrink(t *testing.T) {
	in := grammar.MustParse(mapSource)
	inFree := lambda.FreeVars(in)
	sink := &diag.Sink{}
	out, err := Rewrite(defaultFlags, sink, in)
	require.NoError(t, err)
	for id := range lambda.FreeVars(out) {
		assert.True(t, inFree[id], "new free variable %s", id)
	}
}
