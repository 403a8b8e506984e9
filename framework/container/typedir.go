package container

import (
	"fmt"
	"reflect"
	"sync"
)

// InitMethod is the method called on a freshly allocated *T to construct it.
// Its parameters are the constructor parameters of T. It returns nothing or
// an error.
const InitMethod = "Init"

var errorType = reflect.TypeFor[error]()

type paramKind int

const (
	paramBuiltin paramKind = iota
	paramClass
	paramAny
	paramVariadic
)

func (k paramKind) String() string {
	switch k {
	case paramClass:
		return "class"
	case paramAny:
		return "any"
	case paramVariadic:
		return "variadic"
	default:
		return "builtin"
	}
}

// paramSpec describes one parameter of a constructor or method.
type paramSpec struct {
	typ          reflect.Type // element type for variadic parameters
	id           string       // type identifier of class parameters
	kind         paramKind
	optional     bool
	allowsAbsent bool
	hasDefault   bool
	value        any
}

// typeInfo is the reflected shape of one concrete type. It is built once per
// class resolver and shared by its clones.
type typeInfo struct {
	id        string
	typ       reflect.Type // T, or the result type of the constructor
	instance  reflect.Type // *T, or the result type of the constructor
	ctor      reflect.Value
	hasInit   bool
	ancestors []string
	params    []paramSpec
	policy    *Policy

	mu      sync.Mutex
	methods map[string][]paramSpec
}

func newTypeInfo(e catalogEntry) (*typeInfo, error) {
	if !e.constructible() {
		return nil, configErr(e.id, "class", errNotConstructible)
	}
	info := &typeInfo{id: e.id, typ: e.typ, policy: e.policy, methods: make(map[string][]paramSpec)}

	if e.ctor.IsValid() {
		ft := e.ctor.Type()
		info.ctor = e.ctor
		info.instance = ft.Out(0)
		info.params = describeParams(ft, 0, e.policy.paramsOf(""))
		return info, nil
	}

	info.instance = reflect.PointerTo(e.typ)
	info.ancestors = ancestorsOf(e.typ)
	if m, ok := info.instance.MethodByName(InitMethod); ok {
		if !returnsNothingOrError(m.Type) {
			return nil, configErr(e.id, InitMethod, fmt.Errorf("must return nothing or error"))
		}
		info.hasInit = true
		info.params = describeParams(m.Type, 1, e.policy.paramsOf(""))
	}
	return info, nil
}

// constructorName is used in errors to say where a parameter belongs.
func (ti *typeInfo) constructorName() string {
	if ti.ctor.IsValid() {
		return "constructor"
	}
	return InitMethod
}

// method returns the parameters of an exported method of the instance type.
func (ti *typeInfo) method(name string) ([]paramSpec, error) {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	if specs, ok := ti.methods[name]; ok {
		return specs, nil
	}
	m, ok := ti.instance.MethodByName(name)
	if !ok {
		return nil, configErr(ti.id, "call", fmt.Errorf("%s has no exported method %q", ti.instance, name))
	}
	skip := 1
	if ti.instance.Kind() == reflect.Interface {
		skip = 0
	}
	specs := describeParams(m.Type, skip, ti.policy.paramsOf(name))
	ti.methods[name] = specs
	return specs, nil
}

func describeParams(ft reflect.Type, skip int, policy map[int]paramPolicy) []paramSpec {
	n := ft.NumIn() - skip
	specs := make([]paramSpec, 0, n)
	for pos := range n {
		t := ft.In(pos + skip)
		spec := paramSpec{typ: t}
		if ft.IsVariadic() && pos == n-1 {
			spec.kind = paramVariadic
			spec.typ = t.Elem()
		} else {
			spec.kind, spec.id = classifyParam(t)
		}
		spec.allowsAbsent = nillable(spec.typ)
		if pp, ok := policy[pos]; ok {
			spec.optional = pp.optional
			spec.hasDefault = pp.hasDefault
			spec.value = pp.value
		} else if spec.allowsAbsent && (spec.kind == paramBuiltin || spec.kind == paramAny) {
			// a nillable builtin without an arg binds nil
			spec.optional = true
		}
		specs = append(specs, spec)
	}
	return specs
}

func classifyParam(t reflect.Type) (paramKind, string) {
	if t.Kind() == reflect.Interface && t.NumMethod() == 0 {
		return paramAny, ""
	}
	id := catalog.add(t)
	e, ok := catalog.snapshot(id)
	if !ok {
		return paramBuiltin, ""
	}
	switch {
	case e.typ.Kind() == reflect.Interface, e.typ.Kind() == reflect.Struct:
		return paramClass, id
	case e.ctor.IsValid():
		return paramClass, id
	}
	return paramBuiltin, ""
}

// ancestorsOf follows the first embedded named struct of t, then of that
// struct, and so on. The chain always ends with the wildcard.
func ancestorsOf(t reflect.Type) []string {
	var chain []string
	seen := map[reflect.Type]bool{t: true}
	for cur := embeddedParent(t); cur != nil && !seen[cur]; cur = embeddedParent(cur) {
		seen[cur] = true
		if id := catalog.add(cur); id != "" {
			chain = append(chain, id)
		}
	}
	return append(chain, Wildcard)
}

func embeddedParent(t reflect.Type) reflect.Type {
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.Anonymous {
			continue
		}
		ft := f.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct && ft.Name() != "" && ft.PkgPath() != "" {
			return ft
		}
	}
	return nil
}

func nillable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return true
	}
	return false
}

func returnsNothingOrError(ft reflect.Type) bool {
	return ft.NumOut() == 0 || (ft.NumOut() == 1 && ft.Out(0) == errorType)
}

// callError extracts the trailing error result of a reflected call, if any.
func callError(out []reflect.Value) error {
	if len(out) == 0 {
		return nil
	}
	last := out[len(out)-1]
	if last.Type() != errorType || last.IsNil() {
		return nil
	}
	return last.Interface().(error)
}
