package container

import (
	"maps"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Modifier post-processes a freshly built instance. The returned value
// replaces the instance.
type Modifier interface {
	Modify(instance any, r Registry) (any, error)
}

// ModifierFunc adapts a function to Modifier.
type ModifierFunc func(instance any, r Registry) (any, error)

func (f ModifierFunc) Modify(instance any, r Registry) (any, error) { return f(instance, r) }

type call struct {
	method string
	args   []Resolver
}

type aliasTarget struct {
	id   string
	null bool
}

// options are the instantiation options shared by class, reference and
// wildcard resolvers. gen changes on every mutation and keys the parameter
// memo of class resolvers.
type options struct {
	shared    bool
	propagate bool
	alias     map[string]aliasTarget
	args      []Resolver
	calls     []call
	modify    Modifier
	gen       uint64
}

func (o *options) clone() *options {
	out := *o
	out.alias = maps.Clone(o.alias)
	out.args = slices.Clone(o.args)
	out.calls = make([]call, len(o.calls))
	for i, c := range o.calls {
		out.calls[i] = call{method: c.method, args: slices.Clone(c.args)}
	}
	return &out
}

func (o *options) hasCustom() bool {
	return len(o.alias) > 0 || len(o.args) > 0 || len(o.calls) > 0 || o.modify != nil
}

func toResolvers(values []any) []Resolver {
	out := make([]Resolver, len(values))
	for i, v := range values {
		if r, ok := v.(Resolver); ok {
			out[i] = r
			continue
		}
		out[i] = Value(v)
	}
	return out
}

// ── Shared instance slot ──────────────────────────────────────────────────────

type instanceSlot struct {
	mu    sync.RWMutex
	value any
	ok    bool
}

func (s *instanceSlot) load() (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value, s.ok
}

func (s *instanceSlot) store(v any) {
	s.mu.Lock()
	s.value, s.ok = v, true
	s.mu.Unlock()
}

func (s *instanceSlot) filled() bool {
	_, ok := s.load()
	return ok
}

// ── Embedded option state ─────────────────────────────────────────────────────

// instanceOptions carries the options, the shared slot and the sticky
// configuration error. Setters record the first error and keep returning the
// resolver, like gorm's chained DB.Error; resolving the resolver, or an
// autowired type inheriting its options, then fails with that error.
type instanceOptions struct {
	id     string
	opts   *options
	slot   *instanceSlot
	flight *singleflight.Group
	err    error
}

func newInstanceOptions(id string, o *options) instanceOptions {
	return instanceOptions{id: id, opts: o, slot: &instanceSlot{}, flight: &singleflight.Group{}}
}

// Err returns the first configuration error recorded by a setter.
func (b *instanceOptions) Err() error { return b.err }

// IsShared reports the resolver's own shared flag.
func (b *instanceOptions) IsShared() bool { return b.opts.shared }

// IsPropagating reports the resolver's own propagate flag.
func (b *instanceOptions) IsPropagating() bool { return b.opts.propagate }

// HasInstance reports whether a shared instance has been stored.
func (b *instanceOptions) HasInstance() bool { return b.slot.filled() }

func (b *instanceOptions) instanceOpts() *options { return b.opts }

func (b *instanceOptions) fail(op string, err error) {
	if b.err == nil {
		b.err = configErr(b.id, op, err)
	}
}

func (b *instanceOptions) setShared(v bool) {
	if !v && b.slot.filled() {
		b.fail("shared", errSharedCreated)
		return
	}
	b.opts.shared = v
	b.opts.gen++
}

func (b *instanceOptions) setPropagate(v bool) {
	b.opts.propagate = v
	b.opts.gen++
}

func (b *instanceOptions) addAlias(from, to string, null bool) {
	if !IsTypeID(from) {
		b.fail("alias", errNotAType)
		return
	}
	if !null && to == "" {
		b.fail("alias", errEmptyID)
		return
	}
	if b.opts.alias == nil {
		b.opts.alias = make(map[string]aliasTarget)
	}
	b.opts.alias[from] = aliasTarget{id: to, null: null}
	b.opts.gen++
}

func (b *instanceOptions) addAliases(m map[string]string) {
	keys := slices.Sorted(maps.Keys(m))
	for _, from := range keys {
		to := m[from]
		b.addAlias(from, to, to == "")
	}
}

func (b *instanceOptions) setArgs(args []any) {
	b.opts.args = append(b.opts.args, toResolvers(args)...)
	b.opts.gen++
}

func (b *instanceOptions) addCall(method string, args []any) {
	b.opts.calls = append(b.opts.calls, call{method: method, args: toResolvers(args)})
	b.opts.gen++
}

func (b *instanceOptions) setModify(m Modifier) {
	b.opts.modify = m
	b.opts.gen++
}

type optionsHolder interface {
	instanceOpts() *options
	Err() error
}

// ── Wildcard ──────────────────────────────────────────────────────────────────

// WildcardResolver only carries options. Every autowired type without a closer
// propagating ancestor inherits them. Resolving it directly fails.
type WildcardResolver struct {
	instanceOptions
}

// NewWildcard returns a wildcard resolver with propagate on.
func NewWildcard() *WildcardResolver {
	return &WildcardResolver{instanceOptions: newInstanceOptions(Wildcard, &options{propagate: true})}
}

func (r *WildcardResolver) Resolve(Registry) (any, error) {
	return nil, &NotFoundError{ID: Wildcard, Reason: "the wildcard resolver has no type to build"}
}

func (r *WildcardResolver) cloneResolver() Resolver {
	c := &WildcardResolver{instanceOptions: newInstanceOptions(r.id, r.opts.clone())}
	c.err = r.err
	return c
}

// Shared makes every inheriting type shared.
func (r *WildcardResolver) Shared(v bool) *WildcardResolver { r.setShared(v); return r }

// Propagate turns inheritance on or off.
func (r *WildcardResolver) Propagate(v bool) *WildcardResolver { r.setPropagate(v); return r }

// Alias binds class parameters of type from to the identifier to.
func (r *WildcardResolver) Alias(from, to string) *WildcardResolver {
	r.addAlias(from, to, false)
	return r
}

// AliasNil binds class parameters of type from to nil.
func (r *WildcardResolver) AliasNil(from string) *WildcardResolver {
	r.addAlias(from, "", true)
	return r
}

// Aliases adds every from → to pair of m. An empty target binds nil.
func (r *WildcardResolver) Aliases(m map[string]string) *WildcardResolver {
	r.addAliases(m)
	return r
}

// Args appends explicit builtin arguments.
func (r *WildcardResolver) Args(args ...any) *WildcardResolver { r.setArgs(args); return r }

// Call queues a method call after construction.
func (r *WildcardResolver) Call(method string, args ...any) *WildcardResolver {
	r.addCall(method, args)
	return r
}

// Modify sets the post-processing hook.
func (r *WildcardResolver) Modify(m Modifier) *WildcardResolver { r.setModify(m); return r }
