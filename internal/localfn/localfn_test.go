package localfn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lamina/grammar"
	"lamina/internal/diag"
	"lamina/internal/interp"
	"lamina/internal/lambda"
)

func countNodes[T lambda.Term](t lambda.Term) int {
	n := 0
	var walk func(lambda.Term)
	walk = func(t lambda.Term) {
		if _, ok := t.(T); ok {
			n++
		}
		lambda.IterChildren(walk, t)
	}
	walk(t)
	return n
}

func varRefs(t lambda.Term, name string) int {
	n := 0
	var walk func(lambda.Term)
	walk = func(t lambda.Term) {
		if v, ok := t.(*lambda.Var); ok && v.Id.Name == name {
			n++
		}
		lambda.IterChildren(walk, t)
	}
	walk(t)
	return n
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

func TestLiftsBranchingTailCalls(t *testing.T) {
	in := grammar.MustParse(`
		(let strict g (fn (x) (add x 1))
		  (if 1 (apply g 10) (apply g 20)))`)
	sink := &diag.Sink{}
	out := Simplify(sink, in)

	expected := grammar.MustParse(`
		(catch (if 1 (exit 5 10) (exit 5 20))
		  with (5 x) (add x 1))`)
	assert.True(t, lambda.AlphaEquiv(expected, out), "got %s", lambda.Print(out))
	assert.Equal(t, 0, varRefs(out, "g"))
	assert.Equal(t, 1, countNodes[*lambda.Staticcatch](out))
	assertSameEval(t, in, out)
}

func TestEscapeBlocksLifting(t *testing.T) {
	// g is passed as a value, so it must stay a function.
	in := grammar.MustParse(`
		(let strict g (fn (x) (add x 1))
		  (apply h g))`)
	sink := &diag.Sink{}
	out := Simplify(sink, in)
	assert.Equal(t, 0, countNodes[*lambda.Staticcatch](out))
	assert.Equal(t, 1, countNodes[*lambda.Function](out))
}

func TestArityMismatchBlocksLifting(t *testing.T) {
	in := grammar.MustParse(`
		(let strict g (fn (x) (add x 1))
		  (apply g 1 2))`)
	sink := &diag.Sink{}
	out := Simplify(sink, in)
	assert.Equal(t, 0, countNodes[*lambda.Staticcatch](out))
}

func TestNonTailUseBlocksLifting(t *testing.T) {
	// the two calls live in different tail scopes
	in := grammar.MustParse(`
		(let strict g (fn (x) (add x 1))
		  (add (apply g 1) (apply g 2)))`)
	sink := &diag.Sink{}
	out := Simplify(sink, in)
	assert.Equal(t, 0, countNodes[*lambda.Staticcatch](out))
	assertSameEval(t, in, out)
}

func TestSingleCallLifted(t *testing.T) {
	in := grammar.MustParse(`
		(let strict g (fn (x) (mul x x))
		  (apply g 7))`)
	sink := &diag.Sink{}
	out := Simplify(sink, in)
	assert.Equal(t, 1, countNodes[*lambda.Staticcatch](out))
	assert.Equal(t, 0, varRefs(out, "g"))
	assertSameEval(t, in, out)
}

func TestInlineAlwaysNotEligible(t *testing.T) {
	in := grammar.MustParse(`
		(let strict g (fn @inline (x) (add x 1))
		  (if 1 (apply g 10) (apply g 20)))`)
	sink := &diag.Sink{}
	out := Simplify(sink, in)
	assert.Equal(t, 0, countNodes[*lambda.Staticcatch](out))
}

func TestAlwaysLocalWarnsWhenNotLiftable(t *testing.T) {
	in := grammar.MustParse(`
		(let strict g (fn @local (x) (add x 1))
		  (apply h g))`)
	sink := &diag.Sink{}
	Simplify(sink, in)
	require.Len(t, sink.Warnings, 1)
	assert.Equal(t, diag.WarnInliningImpossible, sink.Warnings[0].Code)
}

func TestDefaultLocalNoWarning(t *testing.T) {
	in := grammar.MustParse(`
		(let strict g (fn (x) (add x 1))
		  (apply h g))`)
	sink := &diag.Sink{}
	Simplify(sink, in)
	assert.Empty(t, sink.Warnings)
}

func TestCatchCountGrowsByLiftedFunctions(t *testing.T) {
	in := grammar.MustParse(`
		(let strict g (fn (x) (add x 1))
		  (let strict h (fn (y) (mul y 2))
		    (if 1 (apply g 1) (apply h 2))))`)
	sink := &diag.Sink{}
	out := Simplify(sink, in)
	assert.Equal(t, 2, countNodes[*lambda.Staticcatch](out))
	assert.Equal(t, 0, varRefs(out, "g"))
	assert.Equal(t, 0, varRefs(out, "h"))
	assertSameEval(t, in, out)
}

func TestCallInsideOtherCandidateBody(t *testing.T) {
	// g is only called in tail position of h's body; the catch for g nests
	// inside h's handler.
	in := grammar.MustParse(`
		(let strict g (fn (x) (add x 1))
		  (let strict h (fn (y) (if y (apply g y) 0))
		    (apply h 3)))`)
	sink := &diag.Sink{}
	out := Simplify(sink, in)
	assert.Equal(t, 2, countNodes[*lambda.Staticcatch](out))
	assertSameEval(t, in, out)
}

func TestIdempotentOnLiftedOutput(t *testing.T) {
	in := grammar.MustParse(`
		(let strict g (fn (x) (add x 1))
		  (if 1 (apply g 10) (apply g 20)))`)
	sink := &diag.Sink{}
	once := Simplify(sink, in)
	twice := Simplify(sink, once)
	assert.True(t, lambda.AlphaEquiv(once, twice))
}
