package container

import (
	"cmp"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ── Container ─────────────────────────────────────────────────────────────────

// Observer is notified after every top-level Get.
type Observer interface {
	ObserveResolution(id, kind string, d time.Duration, err error)
}

// Container maps identifiers to resolvers and autowires catalogued types that
// have no resolver of their own.
//
// It supports:
//   - Set / Class / Ref / Wildcard registration
//   - Get / Get[T] / MustGet[T] resolution
//   - shared instances, option propagation along embedded structs
//   - aliases, explicit args, method calls and modifiers
//   - contextual aliases (when A needs B, give it C)
//   - Populate (bind a type under all its service interfaces)
//   - resolved callbacks and an Observer for metrics
//
// Configuration is expected to happen from one goroutine before concurrent
// resolution starts. Get is safe for concurrent use.
type Container struct {
	mu sync.RWMutex

	id        string
	resolvers map[string]Resolver
	log       *zap.Logger
	observer  Observer

	afterResolving []func(id string, instance any)
}

// Option configures a Container.
type Option func(c *Container)

// WithLogger sets the logger used for registration and resolution events.
func WithLogger(l *zap.Logger) Option {
	return func(c *Container) {
		if l != nil {
			c.log = l
		}
	}
}

// WithObserver sets the resolution observer.
func WithObserver(o Observer) Option {
	return func(c *Container) { c.observer = o }
}

// New creates a container holding itself under the identifiers of *Container
// and Registry.
func New(opts ...Option) *Container {
	c := &Container{
		id:        uuid.NewString(),
		resolvers: make(map[string]Resolver),
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	self := Value(c)
	c.resolvers[ID[*Container]()] = self
	c.resolvers[ID[Registry]()] = self
	c.log = c.log.With(zap.String("container", c.id))
	return c
}

// ID returns the unique identifier of this container instance.
func (c *Container) ID() string { return c.id }

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger { return c.log }

// ── Registration ──────────────────────────────────────────────────────────────

// Set registers value under id and returns the stored resolver.
//
//	c.Set("*", nil)                                           // wildcard
//	c.Set(container.ID[Store](), nil)                          // explicit class resolver
//	c.Set(container.ID[Mailer](), container.ID[SMTPMailer]())  // type alias
//	c.Set("@mailer", container.ID[SMTPMailer]())               // named instance
//	c.Set("@clock", container.Factory(newClock))               // factory
//	c.Set("app.name", container.Value("billing"))              // plain string
//
// A string value is always a reference: under a type identifier it is a type
// alias, under any other key a named instance. Resolvers are cloned without their shared instance;
// factory functions become factories; anything else is a value.
func (c *Container) Set(id string, value any) (Resolver, error) {
	res, err := c.classify(id, value)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.resolvers[id] = res
	c.mu.Unlock()
	c.log.Debug("resolver set", zap.String("id", id), zap.String("kind", kindOf(res)))
	return res, nil
}

func (c *Container) classify(id string, value any) (Resolver, error) {
	if id == "" {
		return nil, configErr(id, "set", errEmptyID)
	}
	if id == Wildcard {
		if w, ok := value.(*WildcardResolver); ok {
			return w.cloneResolver(), nil
		}
		return NewWildcard(), nil
	}
	if value == nil {
		return NewClassResolver(id)
	}
	if r, ok := value.(Resolver); ok {
		r = cloneResolver(r)
		if cls, ok := r.(*ClassResolver); ok {
			cls.autowired = false
		}
		return r, nil
	}
	if f, ok := asFactory(value); ok {
		return NewFactory(f), nil
	}
	if target, ok := value.(string); ok {
		if target == id {
			return nil, configErr(id, "set", errSelfAlias)
		}
		if IsTypeID(id) {
			return NewRef(target), nil
		}
		return NewNamedRef(target), nil
	}
	return Value(value), nil
}

// SetAll registers every entry under one lock. Either all entries are stored
// or, when an identifier is empty, none is.
func (c *Container) SetAll(entries map[string]Resolver) error {
	stored := make(map[string]Resolver, len(entries))
	for id, res := range entries {
		if id == "" {
			return configErr(id, "set", errEmptyID)
		}
		if res == nil {
			return configErr(id, "set", fmt.Errorf("resolver is nil"))
		}
		stored[id] = cloneResolver(res)
	}
	c.mu.Lock()
	for id, res := range stored {
		c.resolvers[id] = res
	}
	c.mu.Unlock()
	c.log.Debug("resolvers set", zap.Int("count", len(stored)))
	return nil
}

// Class registers an explicit class resolver for the catalogued type id.
func (c *Container) Class(id string) (*ClassResolver, error) {
	r, err := NewClassResolver(id)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.resolvers[id] = r
	c.mu.Unlock()
	c.log.Debug("resolver set", zap.String("id", id), zap.String("kind", "class"))
	return r, nil
}

// Ref registers a reference from id to target. It is a named instance when id
// is not a type identifier.
func (c *Container) Ref(id, target string) (*ReferenceResolver, error) {
	res, err := c.Set(id, target)
	if err != nil {
		return nil, err
	}
	return res.(*ReferenceResolver), nil
}

// Wildcard registers a new wildcard resolver, replacing any previous one.
func (c *Container) Wildcard() *WildcardResolver {
	res, _ := c.Set(Wildcard, nil)
	return res.(*WildcardResolver)
}

// Unset removes the resolver stored under id. Autowired resolvers stay.
func (c *Container) Unset(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cls, ok := c.resolvers[id].(*ClassResolver); ok && cls.autowired {
		return
	}
	delete(c.resolvers, id)
}

// Populate registers one explicit class resolver for id under id and under
// every service interface the type implements, except the ones in exclude.
// All of them share the returned resolver.
func (c *Container) Populate(id string, exclude ...string) (*ClassResolver, error) {
	r, err := NewClassResolver(id)
	if err != nil {
		return nil, err
	}
	ids := append([]string{id}, catalog.servicesOf(r.Type())...)
	c.mu.Lock()
	for _, sid := range ids {
		if slices.Contains(exclude, sid) {
			continue
		}
		c.resolvers[sid] = r
	}
	c.mu.Unlock()
	c.log.Debug("resolver populated", zap.String("id", id), zap.Strings("services", ids[1:]))
	return r, nil
}

// AfterResolving registers a callback fired after every successful Get.
func (c *Container) AfterResolving(cb func(id string, instance any)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.afterResolving = append(c.afterResolving, cb)
}

// ── Lookup ────────────────────────────────────────────────────────────────────

// Has reports whether id has a resolver or names a constructible type.
func (c *Container) Has(id string) bool {
	if c.GetResolver(id, false) != nil {
		return true
	}
	e, ok := catalog.snapshot(id)
	return ok && e.constructible()
}

// GetResolver returns the resolver stored under id. With includeAutowired, a
// missing resolver of a constructible type is created, stored and reused.
func (c *Container) GetResolver(id string, includeAutowired bool) Resolver {
	c.mu.RLock()
	res, ok := c.resolvers[id]
	c.mu.RUnlock()
	if ok {
		if cls, isClass := res.(*ClassResolver); isClass && cls.autowired && !includeAutowired {
			return nil
		}
		return res
	}
	if !includeAutowired {
		return nil
	}
	if e, ok := catalog.snapshot(id); !ok || !e.constructible() {
		return nil
	}
	cls, err := NewClassResolver(id)
	if err != nil {
		c.log.Debug("type cannot be autowired", zap.String("id", id), zap.Error(err))
		return nil
	}
	cls.autowired = true

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.resolvers[id]; ok {
		return existing
	}
	c.resolvers[id] = cls
	c.log.Debug("resolver autowired", zap.String("id", id))
	return cls
}

// Get resolves id.
func (c *Container) Get(id string) (any, error) {
	start := time.Now()
	if !c.Has(id) {
		err := &NotFoundError{ID: id}
		c.observe(id, "", start, err)
		return nil, err
	}
	res := c.GetResolver(id, true)
	if res == nil {
		err := &NotFoundError{ID: id, Reason: "type cannot be autowired"}
		c.observe(id, "", start, err)
		return nil, err
	}

	v, err := res.Resolve(newResolution(c))
	c.observe(id, kindOf(res), start, err)
	if err != nil {
		c.log.Debug("resolution failed", zap.String("id", id), zap.Error(err))
		return nil, err
	}

	c.mu.RLock()
	cbs := c.afterResolving
	c.mu.RUnlock()
	for _, cb := range cbs {
		cb(id, v)
	}
	return v, nil
}

func (c *Container) observe(id, kind string, start time.Time, err error) {
	if c.observer != nil {
		c.observer.ObserveResolution(id, kind, time.Since(start), err)
	}
}

// Validate joins the configuration errors recorded by every stored resolver.
func (c *Container) Validate() error {
	c.mu.RLock()
	ids := make([]string, 0, len(c.resolvers))
	for id := range c.resolvers {
		ids = append(ids, id)
	}
	c.mu.RUnlock()
	slices.Sort(ids)

	var errs []error
	for _, id := range ids {
		if h, ok := c.GetResolver(id, true).(errHolder); ok && h.Err() != nil {
			errs = append(errs, h.Err())
		}
	}
	return errors.Join(errs...)
}

// ── Introspection ─────────────────────────────────────────────────────────────

// Entry describes one stored resolver.
type Entry struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Target    string `json:"target,omitempty"`
	Type      string `json:"type,omitempty"`
	Shared    bool   `json:"shared"`
	Autowired bool   `json:"autowired"`
	Resolved  bool   `json:"resolved"`
	Error     string `json:"error,omitempty"`
}

// Entries describes every stored resolver, sorted by identifier.
func (c *Container) Entries() []Entry {
	c.mu.RLock()
	out := make([]Entry, 0, len(c.resolvers))
	for id, res := range c.resolvers {
		out = append(out, describe(id, res))
	}
	c.mu.RUnlock()
	slices.SortFunc(out, func(a, b Entry) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Entry describes the resolver stored under id.
func (c *Container) Entry(id string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res, ok := c.resolvers[id]
	if !ok {
		return Entry{}, false
	}
	return describe(id, res), true
}

func describe(id string, res Resolver) Entry {
	e := Entry{ID: id, Kind: kindOf(res)}
	switch r := res.(type) {
	case *ClassResolver:
		e.Type = r.Type().String()
		e.Shared = r.IsShared()
		e.Autowired = r.autowired
		e.Resolved = r.HasInstance()
	case *ReferenceResolver:
		e.Target = r.target
		e.Shared = r.IsShared()
		e.Resolved = r.HasInstance()
	case *WildcardResolver:
		e.Shared = r.IsShared()
	case *ValueResolver:
		if r.value != nil {
			e.Type = reflect.TypeOf(r.value).String()
		}
	case *EnvResolver:
		e.Target = "$" + r.name
	}
	if h, ok := res.(errHolder); ok && h.Err() != nil {
		e.Error = h.Err().Error()
	}
	return e
}

// ── Generic helpers ───────────────────────────────────────────────────────────

// Get resolves the identifier of T and asserts the result.
//
//	mailer, err := container.Get[mail.Mailer](c)
func Get[T any](r Registry) (T, error) {
	return GetNamed[T](r, ID[T]())
}

// GetNamed resolves id and asserts the result is a T.
func GetNamed[T any](r Registry, id string) (T, error) {
	var zero T
	v, err := r.Get(id)
	if err != nil || v == nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, &ResolutionError{ID: id, Position: -1, Expected: reflect.TypeFor[T](), Actual: reflect.TypeOf(v), Err: ErrTypeMismatch}
	}
	return typed, nil
}

// MustGet is like Get but panics on error.
func MustGet[T any](r Registry) T {
	v, err := Get[T](r)
	if err != nil {
		panic(err)
	}
	return v
}
