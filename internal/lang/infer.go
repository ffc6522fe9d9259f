package lang

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
)

// Env maps names to type schemes.
type Env map[string]Scheme

type subst map[string]Type

func (s subst) apply(t Type) Type {
	switch t := t.(type) {
	case TVar:
		if r, ok := s[t.Name]; ok {
			return r
		}
		return t
	case TArr:
		return TArr{From: s.apply(t.From), To: s.apply(t.To)}
	default:
		return t
	}
}

func (s subst) applyScheme(sc Scheme) Scheme {
	inner := maps.Clone(s)
	for _, v := range sc.Vars {
		delete(inner, v)
	}
	return Scheme{Vars: sc.Vars, Type: inner.apply(sc.Type)}
}

func (s subst) applyEnv(env Env) Env {
	out := make(Env, len(env))
	for k, sc := range env {
		out[k] = s.applyScheme(sc)
	}
	return out
}

// compose returns s1 after s2.
func compose(s1, s2 subst) subst {
	out := make(subst, len(s1)+len(s2))
	for k, t := range s2 {
		out[k] = s1.apply(t)
	}
	maps.Copy(out, s1)
	return out
}

func ftv(t Type) map[string]bool {
	out := map[string]bool{}
	var walk func(Type)
	walk = func(t Type) {
		switch t := t.(type) {
		case TVar:
			out[t.Name] = true
		case TArr:
			walk(t.From)
			walk(t.To)
		}
	}
	walk(t)
	return out
}

func ftvScheme(sc Scheme) map[string]bool {
	out := ftv(sc.Type)
	for _, v := range sc.Vars {
		delete(out, v)
	}
	return out
}

func ftvEnv(env Env) map[string]bool {
	out := map[string]bool{}
	for _, sc := range env {
		maps.Copy(out, ftvScheme(sc))
	}
	return out
}

type inferer struct {
	counter int
}

func (in *inferer) fresh() TVar {
	in.counter++
	return TVar{Name: "t" + strconv.Itoa(in.counter)}
}

func (in *inferer) instantiate(sc Scheme) Type {
	s := subst{}
	for _, v := range sc.Vars {
		s[v] = in.fresh()
	}
	return s.apply(sc.Type)
}

func generalize(env Env, t Type) Scheme {
	envVars := ftvEnv(env)
	var vars []string
	for v := range ftv(t) {
		if !envVars[v] {
			vars = append(vars, v)
		}
	}
	slices.Sort(vars)
	return Scheme{Vars: vars, Type: t}
}

func unify(a, b Type) (subst, error) {
	switch a := a.(type) {
	case TVar:
		return bind(a.Name, b)
	case TCon:
		if bv, ok := b.(TVar); ok {
			return bind(bv.Name, a)
		}
		if bc, ok := b.(TCon); ok && bc.Name == a.Name {
			return subst{}, nil
		}
	case TArr:
		switch b := b.(type) {
		case TVar:
			return bind(b.Name, a)
		case TArr:
			s1, err := unify(a.From, b.From)
			if err != nil {
				return nil, err
			}
			s2, err := unify(s1.apply(a.To), s1.apply(b.To))
			if err != nil {
				return nil, err
			}
			return compose(s2, s1), nil
		}
	}
	return nil, &TypeError{Kind: UnificationFail, Msg: fmt.Sprintf("cannot unify %s with %s", a, b)}
}

func bind(name string, t Type) (subst, error) {
	if v, ok := t.(TVar); ok && v.Name == name {
		return subst{}, nil
	}
	if ftv(t)[name] {
		return nil, &TypeError{Kind: InfiniteType, Msg: fmt.Sprintf("%s occurs in %s", name, t)}
	}
	return subst{name: t}, nil
}

func (in *inferer) infer(env Env, e Expr) (subst, Type, error) {
	switch e := e.(type) {
	case Lit:
		switch e.Value.(type) {
		case int64:
			return subst{}, tInt, nil
		case bool:
			return subst{}, tBool, nil
		}
		return nil, nil, &TypeError{Kind: UnsupportedLiteral, Msg: fmt.Sprintf("literal %v", e.Value)}

	case Var:
		sc, ok := env[e.Name]
		if !ok {
			return nil, nil, &TypeError{Kind: UnboundVariable, Msg: fmt.Sprintf("%q is not defined", e.Name)}
		}
		return subst{}, in.instantiate(sc), nil

	case Lam:
		tv := in.fresh()
		inner := maps.Clone(env)
		inner[e.Param] = Scheme{Type: tv}
		s, body, err := in.infer(inner, e.Body)
		if err != nil {
			return nil, nil, err
		}
		return s, TArr{From: s.apply(tv), To: body}, nil

	case App:
		tv := in.fresh()
		s1, fn, err := in.infer(env, e.Fn)
		if err != nil {
			return nil, nil, err
		}
		s2, arg, err := in.infer(s1.applyEnv(env), e.Arg)
		if err != nil {
			return nil, nil, err
		}
		s3, err := unify(s2.apply(fn), TArr{From: arg, To: tv})
		if err != nil {
			return nil, nil, err
		}
		return compose(s3, compose(s2, s1)), s3.apply(tv), nil

	case Let:
		s1, bound, err := in.infer(env, e.Bound)
		if err != nil {
			return nil, nil, err
		}
		env1 := s1.applyEnv(env)
		inner := maps.Clone(env1)
		inner[e.Name] = generalize(env1, bound)
		s2, body, err := in.infer(inner, e.Body)
		if err != nil {
			return nil, nil, err
		}
		return compose(s2, s1), body, nil

	case If:
		s1, cond, err := in.infer(env, e.Cond)
		if err != nil {
			return nil, nil, err
		}
		s2, err := unify(cond, tBool)
		if err != nil {
			return nil, nil, err
		}
		s := compose(s2, s1)
		s3, thenT, err := in.infer(s.applyEnv(env), e.Then)
		if err != nil {
			return nil, nil, err
		}
		s = compose(s3, s)
		s4, elseT, err := in.infer(s.applyEnv(env), e.Else)
		if err != nil {
			return nil, nil, err
		}
		s = compose(s4, s)
		s5, err := unify(s.apply(thenT), s.apply(elseT))
		if err != nil {
			return nil, nil, err
		}
		s = compose(s5, s)
		return s, s.apply(thenT), nil
	}
	return nil, nil, fmt.Errorf("lang: unknown expression %T", e)
}

// Infer computes the principal type scheme of e in an empty environment.
func Infer(e Expr) (Scheme, error) {
	return InferIn(Env{}, e)
}

// InferIn computes the principal type scheme of e under env. Type variables in
// the result are renamed to a, b, c, ... in order of appearance.
func InferIn(env Env, e Expr) (Scheme, error) {
	in := &inferer{}
	s, t, err := in.infer(env, e)
	if err != nil {
		return Scheme{}, err
	}
	return normalize(generalize(s.applyEnv(env), s.apply(t))), nil
}

// normalize renames quantified variables to a, b, ... by first occurrence so
// that equal types print identically.
func normalize(sc Scheme) Scheme {
	quantified := map[string]bool{}
	for _, v := range sc.Vars {
		quantified[v] = true
	}
	rename := subst{}
	var order []string
	var walk func(Type)
	walk = func(t Type) {
		switch t := t.(type) {
		case TVar:
			if quantified[t.Name] {
				if _, seen := rename[t.Name]; !seen {
					name := letterName(len(order))
					rename[t.Name] = TVar{Name: name}
					order = append(order, name)
				}
			}
		case TArr:
			walk(t.From)
			walk(t.To)
		}
	}
	walk(sc.Type)
	return Scheme{Vars: order, Type: rename.apply(sc.Type)}
}

func letterName(i int) string {
	name := string(rune('a' + i%26))
	if i >= 26 {
		name += strconv.Itoa(i / 26)
	}
	return name
}
