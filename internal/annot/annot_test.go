package annot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lamina/grammar"
	"lamina/internal/config"
	"lamina/internal/diag"
	"lamina/internal/lambda"
)

func TestTailInfosRecorded(t *testing.T) {
	term := grammar.MustParse(`
		(fn (x)
		  (if x
		      (apply f x)
		      (add (apply g x) 1)))`)
	sink := &diag.Sink{}
	EmitTailInfos(config.Flags{Annotations: true}, sink, term)

	require.Len(t, sink.Annotations, 2)
	assert.True(t, sink.Annotations[0].Tail, "the then-branch call is a tail call")
	assert.False(t, sink.Annotations[1].Tail, "the call under add is not")
}

func TestTailInfosSkippedWithoutFlag(t *testing.T) {
	term := grammar.MustParse(`(apply f 1)`)
	sink := &diag.Sink{}
	EmitTailInfos(config.Flags{}, sink, term)
	assert.Empty(t, sink.Annotations)
}

func TestExpectTailcallWarning(t *testing.T) {
	term := grammar.MustParse(`(add (apply @tail f 1) 2)`)
	sink := &diag.Sink{}
	EmitTailInfos(config.Flags{}, sink, term)
	require.Len(t, sink.Warnings, 1)
	assert.Equal(t, diag.WarnExpectTailcall, sink.Warnings[0].Code)
}

func TestExpectTailcallSatisfiedInTailPosition(t *testing.T) {
	term := grammar.MustParse(`(fn (x) (apply @tail f x))`)
	sink := &diag.Sink{}
	EmitTailInfos(config.Flags{}, sink, term)
	assert.Empty(t, sink.Warnings)
}

func TestSplitDefaultWrapper(t *testing.T) {
	// f(*opt*, y) with a defaulted first argument
	term := grammar.MustParse(`
		(let strict f
		  (fn (*opt* y)
		    (let strict x (if *opt* (field 0 *opt*) 7)
		      (add x y)))
		  (apply f 0 1))`)
	out := SplitDefaultWrappers(term)

	// the binding is split into inner + wrapper
	inner, ok := out.(*lambda.Let)
	require.True(t, ok)
	assert.Equal(t, "f_inner", inner.Id.Name)
	innerFn := inner.Bound.(*lambda.Function)
	require.Len(t, innerFn.Params, 2)

	wrapper, ok := inner.Body.(*lambda.Let)
	require.True(t, ok)
	assert.Equal(t, "f", wrapper.Id.Name)
	wrapperFn := wrapper.Bound.(*lambda.Function)
	assert.True(t, wrapperFn.Attr.Stub)

	// the wrapper keeps the default computation and forwards to the inner
	let, ok := wrapperFn.Body.(*lambda.Let)
	require.True(t, ok)
	call, ok := let.Body.(*lambda.Apply)
	require.True(t, ok)
	assert.Equal(t, inner.Id, call.Func.(*lambda.Var).Id)
	require.Len(t, call.Args, 2)
}

func TestSplitDefaultWrapperLeavesPlainFunctions(t *testing.T) {
	term := grammar.MustParse(`
		(let strict f (fn (x y) (add x y)) (apply f 1 2))`)
	out := SplitDefaultWrappers(term)
	let, ok := out.(*lambda.Let)
	require.True(t, ok)
	assert.Equal(t, "f", let.Id.Name)
	_, isLet := let.Body.(*lambda.Let)
	assert.False(t, isLet, "no extra binding is introduced")
}

func TestSplitDefaultWrapperRefusesEscapingOpt(t *testing.T) {
	// *opt* is still needed after the default binding: no split.
	term := grammar.MustParse(`
		(let strict f
		  (fn (*opt* y)
		    (let strict x (if *opt* (field 0 *opt*) 7)
		      (add x (if *opt* 1 0))))
		  (apply f 0 1))`)
	out := SplitDefaultWrappers(term)
	let, ok := out.(*lambda.Let)
	require.True(t, ok)
	assert.Equal(t, "f", let.Id.Name)
}

func TestSplitDefaultWrapperInLetrec(t *testing.T) {
	term := grammar.MustParse(`
		(letrec ((f (fn (*opt* y)
		    (let strict x (if *opt* (field 0 *opt*) 7)
		      (apply f 0 x)))))
		  (apply f 0 1))`)
	out := SplitDefaultWrappers(term)
	lr, ok := out.(*lambda.Letrec)
	require.True(t, ok)
	require.Len(t, lr.Bindings, 2)
	assert.Equal(t, "f_inner", lr.Bindings[0].Id.Name)
	assert.Equal(t, "f", lr.Bindings[1].Id.Name)
}
