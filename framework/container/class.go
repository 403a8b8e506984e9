package container

import (
	"fmt"
	"reflect"
	"sync"
)

const constructorKey = ""

// ClassResolver builds instances of a concrete type by autowiring its
// constructor parameters.
//
// A struct type T is built in two steps: new(T) is allocated, then the Init
// method of *T is called with the resolved parameters. A shared resolver
// publishes the allocated instance to its own resolution before resolving
// parameters, so a cycle through shared types receives the same instance.
// Other callers only see the instance once the build is complete. Types declared with
// Constructor are built by calling their constructor.
type ClassResolver struct {
	instanceOptions
	info      *typeInfo
	autowired bool

	mu   sync.Mutex
	memo map[string]memoEntry
}

// memoEntry caches the bindings of one method for the options they were
// computed from.
type memoEntry struct {
	src      *options
	gen      uint64
	bindings []binding
}

// NewClassResolver returns an explicit resolver of the catalogued type id.
func NewClassResolver(id string) (*ClassResolver, error) {
	e, ok := catalog.snapshot(id)
	if !ok {
		return nil, configErr(id, "class", errUnknownType)
	}
	info, err := newTypeInfo(e)
	if err != nil {
		return nil, err
	}
	opts := &options{propagate: true}
	if p := info.policy; p != nil {
		if p.shared != nil {
			opts.shared = *p.shared
		}
		if p.propagate != nil {
			opts.propagate = *p.propagate
		}
	}
	return &ClassResolver{
		instanceOptions: newInstanceOptions(id, opts),
		info:            info,
		memo:            make(map[string]memoEntry),
	}, nil
}

func (r *ClassResolver) cloneResolver() Resolver { return r.clone() }

func (r *ClassResolver) clone() *ClassResolver {
	c := &ClassResolver{
		instanceOptions: newInstanceOptions(r.id, r.opts.clone()),
		info:            r.info,
		autowired:       r.autowired,
		memo:            make(map[string]memoEntry),
	}
	c.err = r.err
	return c
}

// TypeID returns the identifier of the built type.
func (r *ClassResolver) TypeID() string { return r.info.id }

// Type returns the type of built instances.
func (r *ClassResolver) Type() reflect.Type { return r.info.instance }

// IsAutowired reports whether the container created the resolver on demand.
func (r *ClassResolver) IsAutowired() bool { return r.autowired }

// ── Options ───────────────────────────────────────────────────────────────────

// Shared turns instance sharing on or off. Turning it off after a shared
// instance exists records a configuration error.
func (r *ClassResolver) Shared(v bool) *ClassResolver { r.setShared(v); return r }

// Propagate controls whether autowired subtypes inherit these options.
func (r *ClassResolver) Propagate(v bool) *ClassResolver { r.setPropagate(v); return r }

// Alias binds class parameters of type from to the identifier to.
//
//	c.Class(container.ID[Notifier]()).Alias(container.ID[Mailer](), "@smtp")
func (r *ClassResolver) Alias(from, to string) *ClassResolver {
	r.addAlias(from, to, false)
	return r
}

// AliasNil binds class parameters of type from to nil.
func (r *ClassResolver) AliasNil(from string) *ClassResolver {
	r.addAlias(from, "", true)
	return r
}

// Aliases adds every from → to pair of m. An empty target binds nil.
func (r *ClassResolver) Aliases(m map[string]string) *ClassResolver {
	r.addAliases(m)
	return r
}

// Args appends explicit arguments for builtin parameters, consumed in order.
// Values that are not resolvers are wrapped with Value.
func (r *ClassResolver) Args(args ...any) *ClassResolver { r.setArgs(args); return r }

// Call queues a method to invoke after construction. The method must be an
// exported method of the instance type.
func (r *ClassResolver) Call(method string, args ...any) *ClassResolver {
	if _, err := r.info.method(method); err != nil {
		if r.err == nil {
			r.err = err
		}
		return r
	}
	r.addCall(method, args)
	return r
}

// Modify sets the post-processing hook.
func (r *ClassResolver) Modify(m Modifier) *ClassResolver { r.setModify(m); return r }

// effectiveOptions returns the options used for the next build. An autowired
// resolver takes the options of its first ancestor that has an explicit
// resolver with propagate on, falling back to its own. A configuration error
// recorded on the chosen resolver is returned instead.
func (r *ClassResolver) effectiveOptions(reg Registry) (*options, error) {
	if r.err != nil {
		return nil, r.err
	}
	if !r.autowired {
		return r.opts, nil
	}
	for _, anc := range r.info.ancestors {
		h, ok := reg.GetResolver(anc, false).(optionsHolder)
		if !ok {
			continue
		}
		if o := h.instanceOpts(); o.propagate {
			if err := h.Err(); err != nil {
				return nil, err
			}
			return o, nil
		}
	}
	return r.opts, nil
}

func (r *ClassResolver) effectiveShared(reg Registry) bool {
	o, err := r.effectiveOptions(reg)
	return err == nil && o.shared
}

// overlay copies the non-empty custom options of o onto r. Alias entries are
// merged; args, calls and modify replace.
func (r *ClassResolver) overlay(o *options) error {
	for _, c := range o.calls {
		if _, err := r.info.method(c.method); err != nil {
			return err
		}
	}
	if len(o.alias) > 0 {
		if r.opts.alias == nil {
			r.opts.alias = make(map[string]aliasTarget, len(o.alias))
		}
		for k, v := range o.alias {
			r.opts.alias[k] = v
		}
	}
	if len(o.args) > 0 {
		r.opts.args = o.clone().args
	}
	if len(o.calls) > 0 {
		r.opts.calls = o.clone().calls
	}
	if o.modify != nil {
		r.opts.modify = o.modify
	}
	r.opts.gen++
	return nil
}

// ── Resolution ────────────────────────────────────────────────────────────────

func (r *ClassResolver) Resolve(reg Registry) (any, error) {
	if r.err != nil {
		return nil, r.err
	}
	sess := sessionOf(reg)
	if v, ok := sess.placeholder(r); ok {
		return v, nil
	}
	if v, ok := r.slot.load(); ok {
		return v, nil
	}
	opts, err := r.effectiveOptions(sess)
	if err != nil {
		return nil, err
	}
	if !opts.shared {
		return r.build(sess, opts)
	}
	if sess.building(r) {
		return nil, circularErr(r.info.id)
	}
	return sess.share(r, r.flight, r.info.id, func() (any, error) {
		if v, ok := r.slot.load(); ok {
			return v, nil
		}
		return r.build(sess, opts)
	})
}

func (r *ClassResolver) build(sess *resolution, opts *options) (any, error) {
	if !sess.enter(r) {
		return nil, circularErr(r.info.id)
	}
	defer sess.leave(r)

	method := r.info.constructorName()
	bindings, err := r.bindings(constructorKey, method, r.info.params, opts.args, opts)
	if err != nil {
		return nil, err
	}

	var instance any
	if r.info.ctor.IsValid() {
		args, err := r.resolveArgs(sess, method, bindings)
		if err != nil {
			return nil, err
		}
		out := r.info.ctor.Call(args)
		if err := callError(out); err != nil {
			return nil, &ResolutionError{ID: r.info.id, Method: method, Position: -1, Err: err}
		}
		instance = out[0].Interface()
	} else {
		ptr := reflect.New(r.info.typ)
		instance = ptr.Interface()
		if r.info.hasInit {
			if opts.shared && len(bindings) > 0 {
				sess.published(r, instance)
			}
			args, err := r.resolveArgs(sess, method, bindings)
			if err != nil {
				return nil, err
			}
			if err := callError(ptr.MethodByName(InitMethod).Call(args)); err != nil {
				return nil, &ResolutionError{ID: r.info.id, Method: method, Position: -1, Err: err}
			}
		}
	}

	for i, c := range opts.calls {
		specs, err := r.info.method(c.method)
		if err != nil {
			return nil, err
		}
		bs, err := r.bindings(fmt.Sprintf("%d:%s", i, c.method), c.method, specs, c.args, opts)
		if err != nil {
			return nil, err
		}
		args, err := r.resolveArgs(sess, c.method, bs)
		if err != nil {
			return nil, err
		}
		if err := callError(reflect.ValueOf(instance).MethodByName(c.method).Call(args)); err != nil {
			return nil, &ResolutionError{ID: r.info.id, Method: c.method, Position: -1, Err: err}
		}
	}

	if opts.modify != nil {
		instance, err = opts.modify.Modify(instance, sess)
		if err != nil {
			return nil, &ResolutionError{ID: r.info.id, Method: "modify", Position: -1, Err: err}
		}
	}

	if opts.shared {
		r.slot.store(instance)
	}
	return instance, nil
}

// bindings returns the memoized bindings of a method, recomputing them when
// the options they came from changed.
func (r *ClassResolver) bindings(key, method string, specs []paramSpec, args []Resolver, opts *options) ([]binding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.memo[key]; ok && m.src == opts && m.gen == opts.gen {
		return m.bindings, nil
	}
	bs, err := bindParams(r.info.id, method, specs, args, opts.alias)
	if err != nil {
		return nil, err
	}
	r.memo[key] = memoEntry{src: opts, gen: opts.gen, bindings: bs}
	return bs, nil
}

func (r *ClassResolver) resolveArgs(sess *resolution, method string, bs []binding) ([]reflect.Value, error) {
	args := make([]reflect.Value, 0, len(bs))
	for _, b := range bs {
		if b.res == nil {
			args = append(args, reflect.Zero(b.typ))
			continue
		}
		v, err := b.res.Resolve(sess)
		if err != nil {
			return nil, &ResolutionError{ID: r.info.id, Method: method, Position: b.pos, Expected: b.typ, Err: err}
		}
		rv, ok := convertArg(v, b.typ)
		if !ok {
			return nil, &ResolutionError{ID: r.info.id, Method: method, Position: b.pos, Expected: b.typ, Actual: reflect.TypeOf(v), Err: ErrTypeMismatch}
		}
		args = append(args, rv)
	}
	return args, nil
}
