package simplif

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lamina/grammar"
	"lamina/internal/config"
	"lamina/internal/diag"
	"lamina/internal/lambda"
)

// A unit run through all four passes: a local function passed as a value
// (so it is not lifted), a single-use alias binding and a TMC candidate.
const unitSource = `
	(letrec ((map (fn @tmc (f l)
	    (if l
	        (makeblock 0 imm () (apply f (field 0 l)) (apply map f (field 1 l)))
	        0))))
	  (let strict step (fn (x) (add x 1))
	    (let alias input (makeblock 0 imm () 1 (makeblock 0 imm () 2 0))
	      (if 1
	          (apply map step input)
	          (apply map step 0)))))`

func TestPipelineOrderAndComposition(t *testing.T) {
	flags := config.Flags{NativeCode: true}
	passes := Pipeline(flags, &diag.Sink{})
	require.Len(t, passes, 4)
	assert.Equal(t, "local functions", passes[0].Name())
	assert.Equal(t, "exits", passes[1].Name())
	assert.Equal(t, "lets", passes[2].Name())
	assert.Equal(t, "tmc", passes[3].Name())

	bytecode := Pipeline(config.Flags{}, &diag.Sink{})
	require.Len(t, bytecode, 3, "local-function lifting needs native code")
	assert.Equal(t, "exits", bytecode[0].Name())
}

func TestPipelineRunsCleanly(t *testing.T) {
	in := grammar.MustParse(unitSource)
	sink := &diag.Sink{}
	out, err := Run(config.Flags{NativeCode: true}, sink, in)
	require.NoError(t, err)
	require.NotNil(t, out)
	assertSameEval(t, grammar.MustParse(unitSource), out)
}

func TestPipelinePreservesFreeVariables(t *testing.T) {
	src := `(let alias x (add a 1) (if c (apply g x) (apply g x)))`
	in := grammar.MustParse(src)
	inFree := lambda.FreeVars(in)
	out, err := Run(config.Flags{NativeCode: true}, &diag.Sink{}, in)
	require.NoError(t, err)
	for id := range lambda.FreeVars(out) {
		assert.True(t, inFree[id], "new free variable %s", id)
	}
}

func TestPipelineSurfacesTMCError(t *testing.T) {
	src := `
		(letrec ((zip (fn @tmc (l r)
		    (makeblock 0 imm () (apply zip l r) (apply zip r l)))))
		  0)`
	_, err := Run(config.Flags{NativeCode: true}, &diag.Sink{}, grammar.MustParse(src))
	require.Error(t, err)
	var fatal *diag.Error
	assert.ErrorAs(t, err, &fatal)
}

func TestPipelineRecoversInternalErrors(t *testing.T) {
	// A switch with a default but complete arm coverage violates a counted
	// invariant; the pipeline reports it instead of panicking.
	in := grammar.MustParse(`
		(catch
		  (switch x consts 1 ((case 0 (exit 3))) blocks 1 ((case 0 (exit 3))) default (exit 3))
		  with (3) 1)`)
	_, err := Run(config.Flags{NativeCode: true}, &diag.Sink{}, in)
	require.Error(t, err)
	var ice *diag.InternalError
	assert.ErrorAs(t, err, &ice)
}

func TestPipelineDebugModeStillSound(t *testing.T) {
	in := grammar.MustParse(unitSource)
	out, err := Run(config.Flags{Debug: true}, &diag.Sink{}, in)
	require.NoError(t, err)
	assertSameEval(t, grammar.MustParse(unitSource), out)
}

func TestPipelineIdempotent(t *testing.T) {
	flags := config.Flags{NativeCode: true}
	once, err := Run(flags, &diag.Sink{}, grammar.MustParse(unitSource))
	require.NoError(t, err)
	twice, err := Run(flags, &diag.Sink{}, once)
	require.NoError(t, err)
	assert.True(t, lambda.AlphaEquiv(once, twice),
		"pipeline not stable:\n%s\nvs\n%s", lambda.Print(once), lambda.Print(twice))
}
