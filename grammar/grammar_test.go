package grammar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lamina/internal/lambda"
)

func TestParseConstants(t *testing.T) {
	term, err := Parse("test.lam", "42")
	require.NoError(t, err)
	c, ok := term.(*lambda.Const)
	require.True(t, ok)
	assert.Equal(t, lambda.ConstInt{Value: 42}, c.Value)

	term, err = Parse("test.lam", `"hello"`)
	require.NoError(t, err)
	c, ok = term.(*lambda.Const)
	require.True(t, ok)
	assert.Equal(t, lambda.ConstString{Value: "hello"}, c.Value)

	term, err = Parse("test.lam", `(block 1 42 "s")`)
	require.NoError(t, err)
	c, ok = term.(*lambda.Const)
	require.True(t, ok)
	assert.Equal(t, lambda.ConstBlock{
		Tag:    1,
		Fields: []lambda.Constant{lambda.ConstInt{Value: 42}, lambda.ConstString{Value: "s"}},
	}, c.Value)
}

func TestParseLetResolvesScope(t *testing.T) {
	term, err := Parse("test.lam", "(let strict x 1 (add x x))")
	require.NoError(t, err)

	let, ok := term.(*lambda.Let)
	require.True(t, ok)
	assert.Equal(t, lambda.LetStrict, let.Kind)

	prim, ok := let.Body.(*lambda.Prim)
	require.True(t, ok)
	lhs := prim.Args[0].(*lambda.Var)
	rhs := prim.Args[1].(*lambda.Var)
	assert.Equal(t, let.Id, lhs.Id, "both uses resolve to the binder")
	assert.Equal(t, let.Id, rhs.Id)
}

func TestParseShadowing(t *testing.T) {
	term, err := Parse("test.lam", "(let strict x 1 (let strict x 2 x))")
	require.NoError(t, err)

	outer := term.(*lambda.Let)
	inner := outer.Body.(*lambda.Let)
	use := inner.Body.(*lambda.Var)
	assert.Equal(t, inner.Id, use.Id)
	assert.NotEqual(t, outer.Id, use.Id)
}

func TestParseFunctionAttributes(t *testing.T) {
	term, err := Parse("test.lam", "(fn @tmc @noinline (x:int y) x)")
	require.NoError(t, err)

	fn, ok := term.(*lambda.Function)
	require.True(t, ok)
	assert.True(t, fn.Attr.TMCCandidate)
	assert.Equal(t, lambda.InlineNever, fn.Attr.Inline)
	assert.Equal(t, lambda.Curried, fn.Kind)
	require.Len(t, fn.Params, 2)
	assert.Equal(t, lambda.KindInt, fn.Params[0].Kind)
	assert.Equal(t, lambda.KindGeneric, fn.Params[1].Kind)
}

func TestParseApplyAttributes(t *testing.T) {
	term, err := Parse("test.lam", "(apply @tail f x)")
	require.NoError(t, err)
	ap := term.(*lambda.Apply)
	assert.Equal(t, lambda.TailcallExpect, ap.Tailcall)

	term, err = Parse("test.lam", "(apply @notail f x)")
	require.NoError(t, err)
	assert.Equal(t, lambda.TailcallForbid, term.(*lambda.Apply).Tailcall)
}

func TestParseSwitch(t *testing.T) {
	term, err := Parse("test.lam", `(switch x consts 3 ((case 0 1) (case 1 2)) blocks 1 ((case 0 3)) default 9)`)
	require.NoError(t, err)

	sw := term.(*lambda.Switch)
	assert.Equal(t, 3, sw.NumConsts)
	assert.Equal(t, 1, sw.NumBlocks)
	assert.Len(t, sw.Consts, 2)
	assert.Len(t, sw.Blocks, 1)
	require.NotNil(t, sw.Default)
}

func TestParseCatchAndExit(t *testing.T) {
	term, err := Parse("test.lam", "(catch (exit 7 42) with (7 a:int) (add a 1))")
	require.NoError(t, err)

	catch := term.(*lambda.Staticcatch)
	assert.Equal(t, 7, catch.Label)
	require.Len(t, catch.Params, 1)

	raise := catch.Body.(*lambda.Staticraise)
	assert.Equal(t, 7, raise.Label)
	require.Len(t, raise.Args, 1)
}

func TestParseSyntaxError(t *testing.T) {
	_, err := Parse("test.lam", "(let strict x 1")
	assert.Error(t, err)
}

// Every variant the printer can emit must parse back to an
// alpha-equivalent term.
func TestPrintParseRoundTrip(t *testing.T) {
	fixtures := []string{
		`42`,
		`"text"`,
		`(block 0 1 2)`,
		`x`,
		`(let strict x 1 x)`,
		`(let alias x 1 (let opt y 2 (let var z 3 (add x (add y z)))))`,
		`(letrec ((f (fn (n) (apply g n))) (g (fn (n) (apply f n)))) (apply f 0))`,
		`(fn tupled (a b) (add a b))`,
		`(fn @tmc @local @stub (x:int) x)`,
		`(apply @tail f 1 2)`,
		`(if 1 2 3)`,
		`(seq (extcall "log" 1) 2)`,
		`(while (lt x 3) (assign x (add x 1)))`,
		`(for i 0 to 9 (extcall "log" i))`,
		`(for i 9 downto 0 0)`,
		`(exit 4 1 2)`,
		`(catch (exit 4 1) with (4 v:int) v)`,
		`(try (raise 1) with e 0)`,
		`(switch x consts 2 ((case 0 10)) blocks 2 ((case 0 20)) default 30)`,
		`(strswitch s (case "a" 1) (case "b" 2) default 0)`,
		`(send m o 1 2)`,
		`(event 5)`,
		`(ifused x 1)`,
		`(makeblock 0 mut (int) 0)`,
		`(makeblock 2 imm () 1 2 3)`,
		`(field 0 r)`,
		`(setfield 0 r 1)`,
		`(setfieldc b i v)`,
		`(offsetref 1 r)`,
		`(offsetint -1 n)`,
		`(revapply x f)`,
		`(dirapply f x)`,
		`(identity x)`,
		`(bytes2str b)`,
		`(str2bytes s)`,
		`(extcall "caml_obj_with_tag" 1 b)`,
		`(raise 1)`,
		`(sub (mul 2 3) (neg 4))`,
		`(not (eq 1 2))`,
	}
	for _, src := range fixtures {
		term, err := Parse("fixture.lam", src)
		require.NoError(t, err, "parse %s", src)

		printed := lambda.Print(term)
		reparsed, err := Parse("fixture.lam", printed)
		require.NoError(t, err, "reparse %s as %s", src, printed)
		assert.True(t, lambda.AlphaEquiv(term, reparsed), "round trip of %s via %s", src, printed)
	}
}
