package container

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wiredDep struct{}

type wired struct{}

func (*wired) Init(dep *wiredDep, size int, name string, flags ...string) {}

func wiredSpecs(t *testing.T, policy map[int]paramPolicy) []paramSpec {
	t.Helper()
	m, ok := reflect.TypeFor[*wired]().MethodByName(InitMethod)
	require.True(t, ok)
	return describeParams(m.Type, 1, policy)
}

func TestDescribeParams_Kinds(t *testing.T) {
	specs := wiredSpecs(t, nil)
	require.Len(t, specs, 4)

	assert.Equal(t, paramClass, specs[0].kind)
	assert.Equal(t, ID[wiredDep](), specs[0].id)
	assert.True(t, specs[0].allowsAbsent)
	assert.Equal(t, paramBuiltin, specs[1].kind)
	assert.False(t, specs[1].allowsAbsent)
	assert.Equal(t, paramBuiltin, specs[2].kind)
	assert.Equal(t, paramVariadic, specs[3].kind)
	assert.Equal(t, reflect.TypeFor[string](), specs[3].typ)
	assert.Equal(t, "variadic", specs[3].kind.String())
}

func TestBindParams_ExplicitArgsAndVariadic(t *testing.T) {
	specs := wiredSpecs(t, nil)
	args := toResolvers([]any{3, "pool", "a", "b"})

	bs, err := bindParams("wired", InitMethod, specs, args, nil)
	require.NoError(t, err)
	require.Len(t, bs, 5)

	ref, ok := bs[0].res.(*ReferenceResolver)
	require.True(t, ok)
	assert.Equal(t, ID[wiredDep](), ref.Target())
	assert.Equal(t, 3, bs[1].res.(*ValueResolver).Value())
	assert.Equal(t, "pool", bs[2].res.(*ValueResolver).Value())
	assert.Equal(t, 3, bs[3].pos)
	assert.Equal(t, 3, bs[4].pos)
}

func TestBindParams_DefaultsWhenArgsRunOut(t *testing.T) {
	specs := wiredSpecs(t, map[int]paramPolicy{
		1: {optional: true, hasDefault: true, value: 8},
		2: {optional: true, hasDefault: true, value: "default"},
	})

	bs, err := bindParams("wired", InitMethod, specs, nil, nil)
	require.NoError(t, err)
	require.Len(t, bs, 3, "the variadic parameter binds nothing")
	assert.IsType(t, &ReferenceResolver{}, bs[0].res)
	assert.Equal(t, 8, bs[1].res.(*ValueResolver).Value())
	assert.Equal(t, "default", bs[2].res.(*ValueResolver).Value())
}

func TestBindParams_MandatoryAfterDefaultFails(t *testing.T) {
	specs := wiredSpecs(t, map[int]paramPolicy{
		1: {optional: true, hasDefault: true, value: 8},
	})

	_, err := bindParams("wired", InitMethod, specs, nil, nil)
	var re *ResolutionError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 2, re.Position)
	assert.ErrorIs(t, err, ErrMissingArgument)
}

type nillables struct{}

func (*nillables) Init(tags []string, fn func() error, n int) {}

func TestDescribeParams_NillableBuiltinsAreOptional(t *testing.T) {
	m, ok := reflect.TypeFor[*nillables]().MethodByName(InitMethod)
	require.True(t, ok)
	specs := describeParams(m.Type, 1, nil)

	assert.True(t, specs[0].optional)
	assert.True(t, specs[1].optional)
	assert.False(t, specs[2].optional)

	specs = describeParams(m.Type, 1, map[int]paramPolicy{0: {}})
	assert.False(t, specs[0].optional, "an explicit policy entry wins")
}

func TestBindParams_OptionalWithoutDefaultKeepsBinding(t *testing.T) {
	specs := wiredSpecs(t, map[int]paramPolicy{
		1: {optional: true},
	})

	_, err := bindParams("wired", InitMethod, specs, nil, nil)
	var re *ResolutionError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 2, re.Position, "name is still mandatory")
	assert.ErrorIs(t, err, ErrMissingArgument)
}

func TestBindParams_AliasAndNull(t *testing.T) {
	specs := wiredSpecs(t, nil)
	args := toResolvers([]any{1, "x"})

	bs, err := bindParams("wired", InitMethod, specs, args, map[string]aliasTarget{
		ID[wiredDep](): {null: true},
	})
	require.NoError(t, err)
	assert.Same(t, Null(), bs[0].res)

	bs, err = bindParams("wired", InitMethod, specs, args, map[string]aliasTarget{
		ID[wiredDep](): {id: "@dep"},
	})
	require.NoError(t, err)
	assert.Equal(t, "@dep", bs[0].res.(*ReferenceResolver).Target())
}

func TestBindParams_NilForNonNillable(t *testing.T) {
	specs := wiredSpecs(t, nil)
	_, err := bindParams("wired", InitMethod, specs, []Resolver{Null()}, nil)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestConvertArg(t *testing.T) {
	v, ok := convertArg(nil, reflect.TypeFor[int]())
	require.True(t, ok)
	assert.Equal(t, 0, v.Interface())

	v, ok = convertArg(int64(7), reflect.TypeFor[uint8]())
	require.True(t, ok)
	assert.Equal(t, uint8(7), v.Interface())

	type label string
	v, ok = convertArg("x", reflect.TypeFor[label]())
	require.True(t, ok)
	assert.Equal(t, label("x"), v.Interface())

	v, ok = convertArg(&wiredDep{}, reflect.TypeFor[wiredDep]())
	require.True(t, ok)
	assert.Equal(t, wiredDep{}, v.Interface())

	_, ok = convertArg("x", reflect.TypeFor[int]())
	assert.False(t, ok)
}

func TestConvertArg_Numbers(t *testing.T) {
	tests := []struct {
		name string
		in   any
		to   reflect.Type
		want any
		ok   bool
	}{
		{"whole float to int", float64(4), reflect.TypeFor[int](), 4, true},
		{"fraction to int", 4.7, reflect.TypeFor[int](), nil, false},
		{"fits uint8", 255, reflect.TypeFor[uint8](), uint8(255), true},
		{"overflows uint8", 300, reflect.TypeFor[uint8](), nil, false},
		{"negative to uint", -1, reflect.TypeFor[uint](), nil, false},
		{"large uint to int64", uint64(1 << 63), reflect.TypeFor[int64](), nil, false},
		{"huge float to int64", 1e20, reflect.TypeFor[int64](), nil, false},
		{"negative float to uint", -2.0, reflect.TypeFor[uint](), nil, false},
		{"int to float", 3, reflect.TypeFor[float64](), 3.0, true},
		{"float64 overflows float32", 1e300, reflect.TypeFor[float32](), nil, false},
		{"int8 to int16", int8(-5), reflect.TypeFor[int16](), int16(-5), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := convertArg(tt.in, tt.to)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, v.Interface())
			}
		})
	}
}

func TestResolution_ReentryNeedsPublishedInstance(t *testing.T) {
	s := newResolution(nil)
	a, b := &ClassResolver{}, &ClassResolver{}

	require.True(t, s.enter(a))
	require.True(t, s.enter(b))
	assert.False(t, s.enter(a))

	s.published(b, nil)
	assert.True(t, s.enter(a))
	assert.True(t, s.building(a))

	s.leave(a)
	s.leave(b)
	s.leave(a)
	assert.False(t, s.building(a))
}

func TestResolution_PlaceholderIsPrivateToSession(t *testing.T) {
	s, other := newResolution(nil), newResolution(nil)
	a := &ClassResolver{}
	instance := &wired{}

	require.True(t, s.enter(a))
	_, ok := s.placeholder(a)
	assert.False(t, ok)

	s.published(a, instance)
	v, ok := s.placeholder(a)
	require.True(t, ok)
	assert.Same(t, instance, v)
	_, ok = other.placeholder(a)
	assert.False(t, ok)

	s.leave(a)
	_, ok = s.placeholder(a)
	assert.False(t, ok)
}

func TestResolution_WaitDetectsCrossSessionCycle(t *testing.T) {
	s1, s2 := newResolution(nil), newResolution(nil)
	a, b := &ClassResolver{}, &ClassResolver{}
	inflight.Lock()
	inflight.builder[a], inflight.builder[b] = s1, s2
	inflight.Unlock()
	t.Cleanup(func() {
		inflight.Lock()
		delete(inflight.builder, a)
		delete(inflight.builder, b)
		inflight.Unlock()
		s1.done()
		s2.done()
	})

	require.True(t, s1.wait(b), "s2 is not blocked yet")
	assert.False(t, s2.wait(a), "a is built by s1, which waits on s2")
	assert.False(t, s1.wait(a), "a session never waits on its own build")

	s1.done()
	assert.True(t, s2.wait(a))
}
