package container

import (
	"fmt"
	"maps"
	"reflect"
)

// Policy holds the per-type defaults declared with Declare or Constructor.
// Resolvers snapshot the policy when they are created, so declarations must
// happen before the type is first resolved.
type Policy struct {
	shared    *bool
	propagate *bool
	params    map[string]map[int]paramPolicy
}

type paramPolicy struct {
	optional   bool
	hasDefault bool
	value      any
}

// TypeOption adjusts a type Policy.
type TypeOption func(p *Policy)

// SharedType makes every resolver of the type start shared (or not).
func SharedType(v bool) TypeOption {
	return func(p *Policy) { p.shared = &v }
}

// PropagateType sets the initial propagate flag of the type's resolvers.
func PropagateType(v bool) TypeOption {
	return func(p *Policy) { p.propagate = &v }
}

// ParamDefault declares a default for constructor parameter pos. A parameter
// with a default is optional.
func ParamDefault(pos int, v any) TypeOption {
	return MethodParamDefault("", pos, v)
}

// ParamOptional declares constructor parameter pos optional without a default:
// class parameters bind nil, builtin parameters their zero value.
func ParamOptional(pos int) TypeOption {
	return MethodParamOptional("", pos)
}

// MethodParamDefault is ParamDefault for a method invoked through Call.
func MethodParamDefault(method string, pos int, v any) TypeOption {
	return func(p *Policy) {
		p.param(method, pos, paramPolicy{optional: true, hasDefault: true, value: v})
	}
}

// MethodParamOptional is ParamOptional for a method invoked through Call.
func MethodParamOptional(method string, pos int) TypeOption {
	return func(p *Policy) {
		p.param(method, pos, paramPolicy{optional: true})
	}
}

func (p *Policy) param(method string, pos int, pp paramPolicy) {
	if p.params == nil {
		p.params = make(map[string]map[int]paramPolicy)
	}
	if p.params[method] == nil {
		p.params[method] = make(map[int]paramPolicy)
	}
	p.params[method][pos] = pp
}

func (p *Policy) clone() *Policy {
	out := &Policy{shared: p.shared, propagate: p.propagate}
	if p.params != nil {
		out.params = make(map[string]map[int]paramPolicy, len(p.params))
		for m, pp := range p.params {
			out.params[m] = maps.Clone(pp)
		}
	}
	return out
}

func (p *Policy) paramsOf(method string) map[int]paramPolicy {
	if p == nil {
		return nil
	}
	return p.params[method]
}

// Declare records T in the catalog and applies opts to its policy.
//
//	container.Declare[Server](container.SharedType(true), container.ParamDefault(1, 8080))
func Declare[T any](opts ...TypeOption) string {
	t := reflect.TypeFor[T]()
	id := catalog.add(t)
	if id == "" {
		panic(configErr(t.String(), "declare", errNotAType))
	}
	declare(id, opts)
	return id
}

func declare(id string, opts []TypeOption) {
	catalog.update(id, func(e *catalogEntry) {
		p := e.policy.clone()
		for _, opt := range opts {
			opt(p)
		}
		e.policy = p
	})
}

// Constructor declares fn as the way to build its result type. fn returns the
// instance and optionally an error; its parameters are autowired like the
// parameters of an Init method. The result type must be named.
//
//	container.Constructor(redis.NewClient)
//
// Instances built by a constructor cannot be allocated before their
// dependencies exist, so a cycle through such a type always fails with
// ErrCircularDependency.
func Constructor(fn any, opts ...TypeOption) (string, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return "", configErr(fmt.Sprintf("%T", fn), "constructor", fmt.Errorf("expected a function"))
	}
	ft := v.Type()
	switch {
	case ft.NumOut() == 1:
	case ft.NumOut() == 2 && ft.Out(1) == errorType:
	default:
		return "", configErr(ft.String(), "constructor", fmt.Errorf("must return (T) or (T, error)"))
	}
	id := catalog.add(ft.Out(0))
	if id == "" {
		return "", configErr(ft.String(), "constructor", errNotAType)
	}
	catalog.update(id, func(e *catalogEntry) { e.ctor = v })
	declare(id, opts)
	return id, nil
}
