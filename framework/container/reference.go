package container

import (
	"sync"
)

// ReferenceResolver resolves another identifier. It has two flavours:
//
//   - a type alias, registered under a type identifier, that redirects one
//     type to another;
//   - a named instance, registered under any other key ("@primary-db"),
//     which is always shared and owns its instance.
//
// When the target is an unshared ClassResolver and the reference carries
// options of its own, the reference builds through a private copy of the
// target with those options applied. The target is never modified.
type ReferenceResolver struct {
	instanceOptions
	target   string
	named    bool
	fallback Resolver

	mu      sync.Mutex
	special *specialization
}

type specialization struct {
	base     *ClassResolver
	baseGen  uint64
	ownGen   uint64
	resolver *ClassResolver
}

// NewRef returns a type alias to target.
func NewRef(target string) *ReferenceResolver {
	return &ReferenceResolver{instanceOptions: newInstanceOptions(target, &options{}), target: target}
}

// NewNamedRef returns a named instance of target.
func NewNamedRef(target string) *ReferenceResolver {
	r := NewRef(target)
	r.named = true
	r.opts.shared = true
	return r
}

func (r *ReferenceResolver) cloneResolver() Resolver {
	c := &ReferenceResolver{
		instanceOptions: newInstanceOptions(r.id, r.opts.clone()),
		target:          r.target,
		named:           r.named,
		fallback:        r.fallback,
	}
	c.err = r.err
	return c
}

// Target returns the referenced identifier.
func (r *ReferenceResolver) Target() string { return r.target }

// IsNamed reports whether the reference is a named instance.
func (r *ReferenceResolver) IsNamed() bool { return r.named }

// Shared turns caching of the resolved instance on or off. Named instances
// cannot be unshared.
func (r *ReferenceResolver) Shared(v bool) *ReferenceResolver {
	if r.named && !v {
		r.fail("shared", errSharedNamed)
		return r
	}
	r.setShared(v)
	return r
}

// Propagate always records a configuration error; references never
// propagate their options.
func (r *ReferenceResolver) Propagate(bool) *ReferenceResolver {
	r.fail("propagate", errPropagateReference)
	return r
}

// Alias binds class parameters of type from to the identifier to.
func (r *ReferenceResolver) Alias(from, to string) *ReferenceResolver {
	r.addAlias(from, to, false)
	return r
}

// AliasNil binds class parameters of type from to nil.
func (r *ReferenceResolver) AliasNil(from string) *ReferenceResolver {
	r.addAlias(from, "", true)
	return r
}

// Aliases adds every from → to pair of m. An empty target binds nil.
func (r *ReferenceResolver) Aliases(m map[string]string) *ReferenceResolver {
	r.addAliases(m)
	return r
}

// Args appends explicit builtin arguments used for the specialised build.
func (r *ReferenceResolver) Args(args ...any) *ReferenceResolver { r.setArgs(args); return r }

// Call queues a method call for the specialised build. The method is checked
// when the specialisation is first created.
func (r *ReferenceResolver) Call(method string, args ...any) *ReferenceResolver {
	r.addCall(method, args)
	return r
}

// Modify sets the post-processing hook of the specialised build.
func (r *ReferenceResolver) Modify(m Modifier) *ReferenceResolver { r.setModify(m); return r }

// Default sets the resolver used when the target cannot be found.
func (r *ReferenceResolver) Default(res Resolver) *ReferenceResolver {
	r.fallback = res
	return r
}

func (r *ReferenceResolver) Resolve(reg Registry) (any, error) {
	if r.err != nil {
		return nil, r.err
	}
	if v, ok := r.slot.load(); ok {
		return v, nil
	}
	sess := sessionOf(reg)
	if !r.opts.shared {
		return r.resolveTarget(sess)
	}
	if sess.building(r) {
		return nil, circularErr(r.target)
	}
	return sess.share(r, r.flight, r.target, func() (any, error) {
		if v, ok := r.slot.load(); ok {
			return v, nil
		}
		return r.resolveTarget(sess)
	})
}

func (r *ReferenceResolver) resolveTarget(sess *resolution) (any, error) {
	if !sess.enter(r) {
		return nil, circularErr(r.target)
	}
	defer sess.leave(r)

	target, err := r.targetResolver(sess)
	if err != nil {
		return nil, err
	}
	if target == nil {
		if r.fallback != nil {
			return r.fallback.Resolve(sess)
		}
		return nil, &NotFoundError{ID: r.target, Reason: "reference target is not registered"}
	}

	chosen := target
	if cls, ok := target.(*ClassResolver); ok && r.opts.hasCustom() && !cls.effectiveShared(sess) {
		if chosen, err = r.specialize(cls); err != nil {
			return nil, err
		}
	}

	v, err := chosen.Resolve(sess)
	if err != nil {
		return nil, err
	}
	if _, ok := chosen.(*ClassResolver); ok && r.opts.shared {
		r.slot.store(v)
	}
	return v, nil
}

// targetResolver follows chains of unshared references to the first resolver
// that is not one. It returns nil when the target is missing.
func (r *ReferenceResolver) targetResolver(reg Registry) (Resolver, error) {
	seen := map[*ReferenceResolver]bool{r: true}
	res := reg.GetResolver(r.target, true)
	for {
		ref, ok := res.(*ReferenceResolver)
		if !ok || ref.opts.shared {
			return res, nil
		}
		if seen[ref] {
			return nil, circularErr(r.target)
		}
		if err := ref.Err(); err != nil {
			return nil, err
		}
		seen[ref] = true
		res = reg.GetResolver(ref.target, true)
	}
}

func (r *ReferenceResolver) specialize(base *ClassResolver) (*ClassResolver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.special; s != nil && s.base == base && s.baseGen == base.opts.gen && s.ownGen == r.opts.gen {
		return s.resolver, nil
	}
	c := base.clone()
	c.autowired = false
	if err := c.overlay(r.opts); err != nil {
		return nil, err
	}
	r.special = &specialization{base: base, baseGen: base.opts.gen, ownGen: r.opts.gen, resolver: c}
	return c, nil
}
