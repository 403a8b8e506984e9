package container

import (
	"math"
	"reflect"
)

// binding is one argument of a reflected call. A nil resolver binds the zero
// value of typ.
type binding struct {
	pos int
	typ reflect.Type
	res Resolver
}

// bindParams matches parameters to resolvers.
//
// Builtin and any parameters consume explicit args in order. Once the args
// run out, optional parameters bind their default or zero value and a
// mandatory one fails with ErrMissingArgument. Class parameters go through
// alias, then the declared type, wherever they appear.
func bindParams(id, method string, specs []paramSpec, args []Resolver, alias map[string]aliasTarget) ([]binding, error) {
	out := make([]binding, 0, len(specs))
	next := 0

	for pos, p := range specs {
		switch p.kind {
		case paramVariadic:
			for ; next < len(args); next++ {
				if err := checkArg(id, method, pos, p, args[next]); err != nil {
					return nil, err
				}
				out = append(out, binding{pos: pos, typ: p.typ, res: args[next]})
			}

		case paramBuiltin, paramAny:
			if next >= len(args) {
				switch {
				case !p.optional:
					return nil, &ResolutionError{ID: id, Method: method, Position: pos, Expected: p.typ, Err: ErrMissingArgument}
				case p.hasDefault:
					out = append(out, binding{pos: pos, typ: p.typ, res: Value(p.value)})
				default:
					out = append(out, binding{pos: pos, typ: p.typ})
				}
				continue
			}
			if err := checkArg(id, method, pos, p, args[next]); err != nil {
				return nil, err
			}
			out = append(out, binding{pos: pos, typ: p.typ, res: args[next]})
			next++

		case paramClass:
			out = append(out, binding{pos: pos, typ: p.typ, res: classArg(p, alias)})
		}
	}
	return out, nil
}

func classArg(p paramSpec, alias map[string]aliasTarget) Resolver {
	if a, ok := alias[p.id]; ok {
		if a.null {
			return Null()
		}
		return NewRef(a.id)
	}
	switch {
	case !p.optional:
		return NewRef(p.id)
	case p.hasDefault:
		return Value(p.value)
	}
	return Null()
}

func checkArg(id, method string, pos int, p paramSpec, arg Resolver) error {
	tc, ok := arg.(TypeChecker)
	if !ok || tc.CheckType(p.typ, p.allowsAbsent) {
		return nil
	}
	var actual reflect.Type
	if v, ok := arg.(*ValueResolver); ok && v.value != nil {
		actual = reflect.TypeOf(v.value)
	}
	return &ResolutionError{ID: id, Method: method, Position: pos, Expected: p.typ, Actual: actual, Err: ErrTypeMismatch}
}

// convertArg turns a resolved value into an argument of type t.
func convertArg(v any, t reflect.Type) (reflect.Value, bool) {
	if v == nil {
		return reflect.Zero(t), true
	}
	return convertValue(reflect.ValueOf(v), t)
}

func convertValue(rv reflect.Value, t reflect.Type) (reflect.Value, bool) {
	vt := rv.Type()
	switch {
	case vt.AssignableTo(t):
		return rv, true
	case vt.Kind() == reflect.Pointer && !rv.IsNil() && vt.Elem().AssignableTo(t):
		return rv.Elem(), true
	case numeric(vt.Kind()) && numeric(t.Kind()):
		return convertNumber(rv, t)
	case vt.Kind() == reflect.String && t.Kind() == reflect.String:
		return rv.Convert(t), true
	}
	return reflect.Value{}, false
}

// convertNumber converts rv to the numeric type t only when the value is
// represented exactly: no truncated fraction, no overflow, no sign change.
func convertNumber(rv reflect.Value, t reflect.Type) (reflect.Value, bool) {
	zero := reflect.Zero(t)
	switch {
	case signed(rv.Kind()):
		n := rv.Int()
		switch {
		case signed(t.Kind()) && zero.OverflowInt(n):
			return reflect.Value{}, false
		case unsigned(t.Kind()) && (n < 0 || zero.OverflowUint(uint64(n))):
			return reflect.Value{}, false
		}
	case unsigned(rv.Kind()):
		u := rv.Uint()
		switch {
		case signed(t.Kind()) && (u > math.MaxInt64 || zero.OverflowInt(int64(u))):
			return reflect.Value{}, false
		case unsigned(t.Kind()) && zero.OverflowUint(u):
			return reflect.Value{}, false
		}
	default:
		f := rv.Float()
		switch {
		case signed(t.Kind()):
			if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 || zero.OverflowInt(int64(f)) {
				return reflect.Value{}, false
			}
		case unsigned(t.Kind()):
			if f != math.Trunc(f) || f < 0 || f >= math.MaxUint64 || zero.OverflowUint(uint64(f)) {
				return reflect.Value{}, false
			}
		case zero.OverflowFloat(f):
			return reflect.Value{}, false
		}
	}
	return rv.Convert(t), true
}

func signed(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func unsigned(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}

func numeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
