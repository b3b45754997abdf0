package diag

// Diagnostic codes for the optimizer.
//
// Code ranges:
// E0600-E0699: fatal rewriting errors
// W0800-W0899: warnings
const (
	// E0601: a constructor has several TMC-bearing arguments and no
	// @tailcall disambiguation
	ErrorAmbiguousConstructorArguments = "E0601"

	// W0801: a @tmc function body contains no TMC-eligible call
	WarnUnusedTMCAttribute = "W0801"

	// W0802: TMC rewriting moved a tail call into non-tail position
	WarnTMCBreaksTailcall = "W0802"

	// W0803: a @tail-hinted call site is not a tail call after rewriting
	WarnExpectTailcall = "W0803"

	// W0804: an @local function cannot become a static continuation
	WarnInliningImpossible = "W0804"
)
