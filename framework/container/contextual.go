package container

import "fmt"

// ContextualBuilder implements the fluent contextual binding API. It installs
// an alias on the resolver of the concrete type, creating an explicit class
// resolver when there is none.
//
//	c.When(container.ID[PhotoController]()).
//	    Needs(container.ID[Filesystem]()).
//	    Give(container.ID[S3Filesystem]())
type ContextualBuilder struct {
	container *Container
	concrete  string
	needs     string
}

// When starts a contextual binding chain.
func (c *Container) When(concrete string) *ContextualBuilder {
	return &ContextualBuilder{container: c, concrete: concrete}
}

// Needs specifies which type the concrete type depends on.
func (b *ContextualBuilder) Needs(typeID string) *ContextualBuilder {
	b.needs = typeID
	return b
}

// Give binds the dependency to the identifier target.
func (b *ContextualBuilder) Give(target string) error {
	return b.alias(target, false)
}

// GiveNil binds the dependency to nil.
func (b *ContextualBuilder) GiveNil() error {
	return b.alias("", true)
}

// GiveValue stores value under a private named key and binds the dependency
// to it.
//
//	c.When(container.ID[PhotoController]()).Needs(container.ID[Clock]()).GiveValue(fixedClock)
func (b *ContextualBuilder) GiveValue(value any) error {
	key := fmt.Sprintf("@contextual(%s:%s)", b.concrete, b.needs)
	if _, err := b.container.Set(key, Value(value)); err != nil {
		return err
	}
	return b.Give(key)
}

func (b *ContextualBuilder) alias(target string, null bool) error {
	switch r := b.container.GetResolver(b.concrete, false).(type) {
	case *ClassResolver:
		r.addAlias(b.needs, target, null)
		return r.Err()
	case *ReferenceResolver:
		r.addAlias(b.needs, target, null)
		return r.Err()
	case *WildcardResolver:
		r.addAlias(b.needs, target, null)
		return r.Err()
	case nil:
		cls, err := b.container.Class(b.concrete)
		if err != nil {
			return err
		}
		cls.addAlias(b.needs, target, null)
		return cls.Err()
	default:
		return configErr(b.concrete, "when", fmt.Errorf("%s resolvers take no aliases", kindOf(r)))
	}
}
