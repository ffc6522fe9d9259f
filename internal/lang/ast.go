// Package lang is the front-end for the rep expression language: an
// s-expression syntax for a small lambda calculus with let-polymorphism.
//
//	expr := int | bool | ident
//	      | (lam [x ...] expr)
//	      | (let ([x expr] ...) expr)
//	      | (if expr expr expr)
//	      | (expr expr ...)
//
// Parse and Infer are pure; the package keeps no state between calls.
package lang

import (
	"fmt"
	"strconv"

	"github.com/vmihailenco/msgpack/v5"
)

// Expr is a node of the abstract syntax tree. Multi-parameter lambdas, multi
// argument applications and multi-binding lets are curried during parsing, so
// every node is unary.
type Expr interface {
	exprNode()
	// String renders the node in constructor form, e.g. App(Var("f"), Lit(LInt(1))).
	String() string
	msgpack.CustomEncoder
}

// Lit is a literal value: int64 or bool.
type Lit struct {
	Value any
}

// Var references a bound name.
type Var struct {
	Name string
}

// App applies Fn to a single argument.
type App struct {
	Fn  Expr
	Arg Expr
}

// Lam is a single-parameter function.
type Lam struct {
	Param string
	Body  Expr
}

// Let binds Name to Bound within Body. Bound is generalized.
type Let struct {
	Name  string
	Bound Expr
	Body  Expr
}

// If is a conditional; both branches must have the same type.
type If struct {
	Cond Expr
	Then Expr
	Else Expr
}

func (Lit) exprNode() {}
func (Var) exprNode() {}
func (App) exprNode() {}
func (Lam) exprNode() {}
func (Let) exprNode() {}
func (If) exprNode()  {}

func (l Lit) String() string {
	switch v := l.Value.(type) {
	case int64:
		return "Lit(LInt(" + strconv.FormatInt(v, 10) + "))"
	case bool:
		return "Lit(LBool(" + strconv.FormatBool(v) + "))"
	default:
		return fmt.Sprintf("Lit(%v)", v)
	}
}

func (v Var) String() string { return fmt.Sprintf("Var(%q)", v.Name) }
func (a App) String() string { return fmt.Sprintf("App(%s, %s)", a.Fn, a.Arg) }
func (l Lam) String() string { return fmt.Sprintf("Lam(%q, %s)", l.Param, l.Body) }
func (l Let) String() string { return fmt.Sprintf("Let(%q, %s, %s)", l.Name, l.Bound, l.Body) }
func (i If) String() string  { return fmt.Sprintf("If(%s, %s, %s)", i.Cond, i.Then, i.Else) }

// The wire encoding is externally tagged: every node is a one-entry map from
// its constructor name to its fields, e.g. {"App": [fn, arg]}.

func encodeTagged(enc *msgpack.Encoder, tag string, fields ...any) error {
	if err := enc.EncodeMapLen(1); err != nil {
		return err
	}
	if err := enc.EncodeString(tag); err != nil {
		return err
	}
	if len(fields) == 1 {
		return enc.Encode(fields[0])
	}
	if err := enc.EncodeArrayLen(len(fields)); err != nil {
		return err
	}
	for _, f := range fields {
		if err := enc.Encode(f); err != nil {
			return err
		}
	}
	return nil
}

// EncodeMsgpack implements msgpack.CustomEncoder.
func (l Lit) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(1); err != nil {
		return err
	}
	if err := enc.EncodeString("Lit"); err != nil {
		return err
	}
	switch v := l.Value.(type) {
	case int64:
		return encodeTagged(enc, "LInt", v)
	case bool:
		return encodeTagged(enc, "LBool", v)
	default:
		return fmt.Errorf("lang: unsupported literal %T", l.Value)
	}
}

// EncodeMsgpack implements msgpack.CustomEncoder.
func (v Var) EncodeMsgpack(enc *msgpack.Encoder) error { return encodeTagged(enc, "Var", v.Name) }

// EncodeMsgpack implements msgpack.CustomEncoder.
func (a App) EncodeMsgpack(enc *msgpack.Encoder) error {
	return encodeTagged(enc, "App", a.Fn, a.Arg)
}

// EncodeMsgpack implements msgpack.CustomEncoder.
func (l Lam) EncodeMsgpack(enc *msgpack.Encoder) error {
	return encodeTagged(enc, "Lam", l.Param, l.Body)
}

// EncodeMsgpack implements msgpack.CustomEncoder.
func (l Let) EncodeMsgpack(enc *msgpack.Encoder) error {
	return encodeTagged(enc, "Let", l.Name, l.Bound, l.Body)
}

// EncodeMsgpack implements msgpack.CustomEncoder.
func (i If) EncodeMsgpack(enc *msgpack.Encoder) error {
	return encodeTagged(enc, "If", i.Cond, i.Then, i.Else)
}
