package container

import (
	"slices"
	"sync"

	"go.uber.org/zap"
)

// ── ServiceProvider interface ─────────────────────────────────────────────────

// ServiceProvider groups related registrations.
//
// Register is called when the provider is added. Boot is called after ALL
// providers have been registered, making it safe to resolve other
// identifiers inside Boot().
//
//	type MailProvider struct{ container.BaseProvider }
//
//	func (p *MailProvider) Register(app *container.Container) error {
//	    _, err := app.Ref(container.ID[mail.Mailer](), container.ID[mail.SMTPMailer]())
//	    return err
//	}
//
//	func (p *MailProvider) Boot(app *container.Container) error {
//	    _, err := container.Get[mail.Mailer](app)
//	    return err
//	}
type ServiceProvider interface {
	// Register stores resolvers in the container.
	// Do NOT resolve other identifiers here; use Boot() for that.
	Register(app *Container) error

	// Boot is called after all providers are registered.
	Boot(app *Container) error

	// Provides returns the identifiers this provider registers.
	// Used for deferred (lazy) provider loading.
	Provides() []string

	// IsDeferred returns true if this provider should be loaded lazily,
	// only when one of its Provides() identifiers is first resolved.
	IsDeferred() bool
}

// ── BaseProvider ──────────────────────────────────────────────────────────────

// BaseProvider is an embeddable struct that provides no-op implementations
// of Boot(), Provides(), and IsDeferred().
type BaseProvider struct{}

func (p *BaseProvider) Boot(_ *Container) error { return nil }
func (p *BaseProvider) Provides() []string      { return nil }
func (p *BaseProvider) IsDeferred() bool        { return false }

// ── ProviderRegistry ──────────────────────────────────────────────────────────

// ProviderRegistry manages registration and booting of ServiceProviders,
// including deferred (lazy) providers.
type ProviderRegistry struct {
	app *Container

	mu         sync.Mutex
	eager      []ServiceProvider
	deferred   map[string]ServiceProvider // id → provider
	loaded     map[ServiceProvider]*deferredLoad
	booted     bool
	registered map[ServiceProvider]bool
}

// NewProviderRegistry creates a registry bound to app.
func NewProviderRegistry(app *Container) *ProviderRegistry {
	return &ProviderRegistry{
		app:        app,
		deferred:   make(map[string]ServiceProvider),
		loaded:     make(map[ServiceProvider]*deferredLoad),
		registered: make(map[ServiceProvider]bool),
	}
}

// Register adds a provider and calls its Register() method (unless deferred).
func (r *ProviderRegistry) Register(provider ServiceProvider) error {
	r.mu.Lock()
	if r.registered[provider] {
		r.mu.Unlock()
		return nil
	}
	r.registered[provider] = true

	if provider.IsDeferred() {
		for _, id := range provider.Provides() {
			r.deferred[id] = provider
		}
		r.mu.Unlock()
		return r.interceptDeferred(provider)
	}
	booted := r.booted
	r.eager = append(r.eager, provider)
	r.mu.Unlock()

	if err := provider.Register(r.app); err != nil {
		return err
	}
	r.app.log.Debug("provider registered", zap.Strings("provides", provider.Provides()))

	// boot late providers immediately
	if booted {
		return provider.Boot(r.app)
	}
	return nil
}

// interceptDeferred stores a factory for each deferred identifier. The first
// resolution registers (and boots) the provider for real, which replaces the
// factory.
func (r *ProviderRegistry) interceptDeferred(provider ServiceProvider) error {
	for _, id := range provider.Provides() {
		var self *FactoryResolver
		self = NewFactory(func(reg Registry) (any, error) {
			if err := r.load(provider); err != nil {
				return nil, err
			}
			if r.app.GetResolver(id, false) == Resolver(self) {
				return nil, &NotFoundError{ID: id, Reason: "deferred provider did not register it"}
			}
			return reg.Get(id)
		})
		if _, err := r.app.Set(id, self); err != nil {
			return err
		}
	}
	return nil
}

// deferredLoad runs the registration of one deferred provider exactly once.
type deferredLoad struct {
	once sync.Once
	err  error
}

func (r *ProviderRegistry) load(provider ServiceProvider) error {
	r.mu.Lock()
	l, ok := r.loaded[provider]
	if !ok {
		l = &deferredLoad{}
		r.loaded[provider] = l
	}
	r.mu.Unlock()

	l.once.Do(func() {
		if l.err = provider.Register(r.app); l.err != nil {
			return
		}
		r.mu.Lock()
		for _, id := range provider.Provides() {
			delete(r.deferred, id)
		}
		booted := r.booted
		r.mu.Unlock()
		r.app.log.Debug("deferred provider loaded", zap.Strings("provides", provider.Provides()))
		if booted {
			l.err = provider.Boot(r.app)
		}
	})
	return l.err
}

// Boot calls Boot() on all eager providers, stopping at the first error.
// Must be called after ALL providers have been registered.
func (r *ProviderRegistry) Boot() error {
	r.mu.Lock()
	if r.booted {
		r.mu.Unlock()
		return nil
	}
	r.booted = true
	eager := append([]ServiceProvider(nil), r.eager...)
	r.mu.Unlock()

	for _, provider := range eager {
		if err := provider.Boot(r.app); err != nil {
			return err
		}
	}
	return nil
}

// Booted returns true if Boot() has been called.
func (r *ProviderRegistry) Booted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.booted
}

// Providers returns all registered eager providers.
func (r *ProviderRegistry) Providers() []ServiceProvider {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ServiceProvider(nil), r.eager...)
}

// Deferred returns the identifiers whose provider has not been loaded yet.
func (r *ProviderRegistry) Deferred() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.deferred))
	for id := range r.deferred {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
