// Package exprstate holds the expression buffer and its validation state.
//
// The state is derived from the buffer only when Revalidate is called; an
// Edit leaves the previous state in place until then.
package exprstate

import (
	"fmt"

	"github.com/ashita-ai/sensemaker/internal/lang"
)

// State is the result of the last validation. It is either Valid or Invalid.
type State interface {
	fmt.Stringer
	isState()
}

// Valid carries the inferred type scheme and the parsed expression.
type Valid struct {
	Scheme lang.Scheme
	Expr   lang.Expr
}

// Invalid carries a human-readable reason the buffer was rejected.
type Invalid struct {
	Reason string
}

func (Valid) isState()   {}
func (Invalid) isState() {}

func (v Valid) String() string {
	return fmt.Sprintf("Valid(%#v, %s)", v.Scheme, v.Expr)
}

// String keeps the reason unquoted so multi-line parse snippets stay readable.
func (i Invalid) String() string {
	return "Invalid(" + i.Reason + ")"
}

// IsValid reports whether s is a Valid state.
func IsValid(s State) bool {
	_, ok := s.(Valid)
	return ok
}

// Initial is the state before any validation has run.
var Initial State = Invalid{Reason: "init"}
