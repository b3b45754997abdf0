package lambda

import (
	"fmt"
	"sync/atomic"
)

// Ident is a compiler-generated identifier. Two idents are the same binding
// iff both name and stamp match, so Ident works directly as a map key.
type Ident struct {
	Name  string
	Stamp uint64
}

var identStamp atomic.Uint64

// Fresh returns a globally unique identifier with the given name prefix.
func Fresh(name string) Ident {
	return Ident{Name: name, Stamp: identStamp.Add(1)}
}

// Rename returns a fresh identifier that keeps the receiver's name.
func (id Ident) Rename() Ident {
	return Fresh(id.Name)
}

func (id Ident) String() string {
	return fmt.Sprintf("%s/%d", id.Name, id.Stamp)
}

var raiseCount atomic.Int64

// NextRaiseCount allocates a fresh static-exception label.
func NextRaiseCount() int {
	return int(raiseCount.Add(1))
}
