package config

// Flags is the read-only compilation configuration consumed by the passes.
// It is threaded explicitly; the library keeps no global flag state.
type Flags struct {
	// NativeCode enables the aggressive let-simplification rewrites and the
	// local-function lifting pass.
	NativeCode bool
	// Debug disables most rewrites when NativeCode is false.
	Debug bool
	// Annotations enables emission of tail-call annotation records.
	Annotations bool
	// ForceTMC treats every function bound in a Letrec as a TMC candidate.
	ForceTMC bool
}

// Optimize reports whether the optimizing rewrites are enabled.
func (f Flags) Optimize() bool {
	return f.NativeCode || !f.Debug
}
