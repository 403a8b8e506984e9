package container

import (
	"fmt"
	"os"
	"reflect"
)

// ── Contracts ─────────────────────────────────────────────────────────────────

// Resolver produces a value on demand from a Registry.
type Resolver interface {
	Resolve(r Registry) (any, error)
}

// Registry is the read side of a container, as seen by resolvers and factories.
type Registry interface {
	Get(id string) (any, error)
	Has(id string) bool
	// GetResolver returns the resolver stored under id. When includeAutowired
	// is true and id names a constructible type, an autowired resolver is
	// created on first use. It returns nil when there is none.
	GetResolver(id string, includeAutowired bool) Resolver
}

// TypeChecker is implemented by resolvers that know their value up front and
// can tell whether it fits a parameter.
type TypeChecker interface {
	CheckType(expected reflect.Type, allowNil bool) bool
}

type cloner interface {
	cloneResolver() Resolver
}

type errHolder interface {
	Err() error
}

func cloneResolver(r Resolver) Resolver {
	if c, ok := r.(cloner); ok {
		return c.cloneResolver()
	}
	return r
}

// ── Value ─────────────────────────────────────────────────────────────────────

// ValueResolver returns a fixed value.
type ValueResolver struct {
	value any
}

var (
	nullResolver  = &ValueResolver{}
	trueResolver  = &ValueResolver{value: true}
	falseResolver = &ValueResolver{value: false}
)

// Value wraps v. nil, true and false map to shared resolvers.
func Value(v any) *ValueResolver {
	if v == nil {
		return nullResolver
	}
	if b, ok := v.(bool); ok {
		if b {
			return trueResolver
		}
		return falseResolver
	}
	return &ValueResolver{value: v}
}

// Null returns the resolver of nil.
func Null() *ValueResolver { return nullResolver }

// True returns the resolver of true.
func True() *ValueResolver { return trueResolver }

// False returns the resolver of false.
func False() *ValueResolver { return falseResolver }

func (r *ValueResolver) Resolve(Registry) (any, error) {
	return r.value, nil
}

// Value returns the wrapped value.
func (r *ValueResolver) Value() any { return r.value }

// CheckType reports whether the value can be passed as expected.
func (r *ValueResolver) CheckType(expected reflect.Type, allowNil bool) bool {
	if r.value == nil {
		return allowNil
	}
	_, ok := convertValue(reflect.ValueOf(r.value), expected)
	return ok
}

// ── Factory ───────────────────────────────────────────────────────────────────

// Factory builds a value from the registry.
//
//	c.Set("@db", container.Factory(func(r container.Registry) (any, error) {
//	    cfg, err := container.Get[*config.Config](r)
//	    if err != nil {
//	        return nil, err
//	    }
//	    return sql.Open("postgres", cfg.DSN)
//	}))
type Factory func(r Registry) (any, error)

// FactoryResolver invokes a Factory on every resolution.
type FactoryResolver struct {
	factory Factory
}

// NewFactory wraps f.
func NewFactory(f Factory) *FactoryResolver {
	return &FactoryResolver{factory: f}
}

func (r *FactoryResolver) Resolve(reg Registry) (any, error) {
	return r.factory(reg)
}

func asFactory(v any) (Factory, bool) {
	switch f := v.(type) {
	case Factory:
		return f, f != nil
	case func(Registry) (any, error):
		return f, f != nil
	case func(Registry) any:
		if f == nil {
			return nil, false
		}
		return func(r Registry) (any, error) { return f(r), nil }, true
	}
	return nil, false
}

// ── Var ───────────────────────────────────────────────────────────────────────

// VarResolver reads the current value of a variable on every resolution.
type VarResolver struct {
	ptr reflect.Value
}

// Var returns a resolver of *ptr. ptr must be a non-nil pointer.
func Var(ptr any) (*VarResolver, error) {
	v := reflect.ValueOf(ptr)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return nil, configErr(fmt.Sprintf("%T", ptr), "var", fmt.Errorf("expected a non-nil pointer"))
	}
	return &VarResolver{ptr: v}, nil
}

func (r *VarResolver) Resolve(Registry) (any, error) {
	return r.ptr.Elem().Interface(), nil
}

// ── Env ───────────────────────────────────────────────────────────────────────

// EnvResolver reads an environment variable on every resolution.
type EnvResolver struct {
	name string
}

// Env returns a resolver of the environment variable name.
func Env(name string) *EnvResolver {
	return &EnvResolver{name: name}
}

func (r *EnvResolver) Resolve(Registry) (any, error) {
	v, ok := os.LookupEnv(r.name)
	if !ok {
		return nil, &NotFoundError{ID: "$" + r.name, Reason: "environment variable is not set"}
	}
	return v, nil
}

// Name returns the variable name.
func (r *EnvResolver) Name() string { return r.name }

// kindOf names the resolver kind in logs, metrics and Entries.
func kindOf(r Resolver) string {
	switch r.(type) {
	case *ValueResolver:
		return "value"
	case *FactoryResolver:
		return "factory"
	case *ClassResolver:
		return "class"
	case *ReferenceResolver:
		return "reference"
	case *WildcardResolver:
		return "wildcard"
	case *VarResolver:
		return "var"
	case *EnvResolver:
		return "env"
	case nil:
		return ""
	}
	return "custom"
}
