package lang

import (
	"fmt"
	"strings"
)

// Type is a monotype.
type Type interface {
	typeNode()
	String() string
}

// TVar is a type variable.
type TVar struct{ Name string }

// TCon is a base type such as Int or Bool.
type TCon struct{ Name string }

// TArr is a function type.
type TArr struct{ From, To Type }

func (TVar) typeNode() {}
func (TCon) typeNode() {}
func (TArr) typeNode() {}

func (t TVar) String() string { return t.Name }
func (t TCon) String() string { return t.Name }

func (t TArr) String() string {
	from := t.From.String()
	if _, ok := t.From.(TArr); ok {
		from = "(" + from + ")"
	}
	return from + " -> " + t.To.String()
}

var (
	tInt  = TCon{Name: "Int"}
	tBool = TCon{Name: "Bool"}
)

// Scheme is a type quantified over Vars.
type Scheme struct {
	Vars []string
	Type Type
}

func (s Scheme) String() string {
	if len(s.Vars) == 0 {
		return s.Type.String()
	}
	return "forall " + strings.Join(s.Vars, " ") + ". " + s.Type.String()
}

// GoString renders the constructor form used by the feedback pane.
func (s Scheme) GoString() string {
	return fmt.Sprintf("Scheme(%s)", s)
}

// TypeError is a failed inference.
type TypeError struct {
	Kind TypeErrorKind
	Msg  string
}

// TypeErrorKind classifies a TypeError.
type TypeErrorKind string

const (
	UnboundVariable    TypeErrorKind = "UnboundVariable"
	UnificationFail    TypeErrorKind = "UnificationFail"
	InfiniteType       TypeErrorKind = "InfiniteType"
	UnsupportedLiteral TypeErrorKind = "UnsupportedLiteral"
)

func (e *TypeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}
