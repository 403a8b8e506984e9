// Package container provides an autowiring IoC (Inversion of Control)
// container and Service Provider system for Go.
//
// # Overview
//
// The container maps string identifiers to resolvers. A resolver produces a
// value on demand: a fixed value, the result of a factory, a new instance of
// a struct built by autowiring its Init method, or whatever another
// identifier resolves to. Identifiers shaped like Go type names
// ("github.com/acme/app/mail.SMTPMailer") that were recorded with ID,
// Declare or Constructor are autowired without any registration.
//
// # Container Lifecycle
//
//  1. Create: c := container.New(container.WithLogger(log))
//  2. Configure: Set / Class / Ref / Wildcard, or the loader package
//  3. Register providers: registry.Register(&MyProvider{}); registry.Boot()
//  4. Resolve: container.Get[*Service](c), concurrently if needed
//
// # Autowiring
//
// A struct T is built in two steps. new(T) is allocated, then Init is called
// on *T with one argument per parameter:
//
//	type Notifier struct {
//	    mailer Mailer
//	    from   string
//	}
//
//	func (n *Notifier) Init(m Mailer, from string) { n.mailer, n.from = m, from }
//
// Interface, struct and constructor-backed parameters ("class" parameters)
// resolve the identifier of their type. Other parameters take the explicit
// arguments set with Args, in order:
//
//	notifier, _ := c.Class(container.ID[Notifier]())
//	notifier.Args("noreply@acme.test").Alias(container.ID[Mailer](), "@smtp")
//
// A type without an Init method is allocated and left zero. A function
// declared with Constructor builds its result type instead.
//
// # Shared instances and propagation
//
//	c.Wildcard().Shared(true) // every autowired type is a singleton
//	base, _ := c.Class(container.ID[Handler]())
//	base.Propagate(false) // types embedding Handler still follow the wildcard
//
// An autowired type takes the options of the closest ancestor, following the
// first embedded named struct, that has an explicit resolver with Propagate
// on. The wildcard is the last ancestor of every type.
//
// # References and named instances
//
//	c.Set(container.ID[Mailer](), container.ID[SMTPMailer]())   // type alias
//	c.Set("@backup-smtp", container.ID[SMTPMailer]())            // named instance
//
// A reference with options of its own builds its unshared target through a
// private copy carrying those options, so the target is never affected.
//
// # Service Providers
//
//	type AppServiceProvider struct{ container.BaseProvider }
//
//	func (p *AppServiceProvider) Register(app *container.Container) error {
//	    _, err := app.Populate(container.ID[SMTPMailer]())
//	    return err
//	}
//
//	registry := container.NewProviderRegistry(c)
//	registry.Register(&AppServiceProvider{})
//	registry.Boot()
//
// # Deferred Providers
//
//	type HeavyProvider struct{ container.BaseProvider }
//
//	func (p *HeavyProvider) IsDeferred() bool   { return true }
//	func (p *HeavyProvider) Provides() []string { return []string{"@heavy"} }
//	func (p *HeavyProvider) Register(app *container.Container) error {
//	    _, err := app.Set("@heavy", container.Factory(heavySetup)) // only on first Get("@heavy")
//	    return err
//	}
package container
