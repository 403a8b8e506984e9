package app

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/km-arc/lightcontainer/framework/config"
	"github.com/km-arc/lightcontainer/framework/container"
	"github.com/km-arc/lightcontainer/framework/logging"
	"github.com/km-arc/lightcontainer/framework/metrics"
	"github.com/km-arc/lightcontainer/framework/providers"
	"github.com/km-arc/lightcontainer/framework/routing"
)

// Application is the top-level application container.
// It embeds the Container and ProviderRegistry so user code can call
// app.Set(), app.Class() and app.Register() directly.
type Application struct {
	*container.Container
	Providers *container.ProviderRegistry

	cfg     *config.Config
	log     *zap.Logger
	metrics *metrics.Resolutions
}

// New creates the application: configuration from envFiles, the logger, the
// resolution metrics and the framework providers.
func New(envFiles ...string) (*Application, error) {
	cfg := config.Load(envFiles...)
	log := logging.New(cfg.Log).With(zap.String("app", cfg.App.Name))
	m := metrics.New("lightcontainer", true)

	c := container.New(container.WithLogger(log), container.WithObserver(m))
	registry := container.NewProviderRegistry(c)

	app := &Application{
		Container: c,
		Providers: registry,
		cfg:       cfg,
		log:       log,
		metrics:   m,
	}

	// Register framework core providers
	for _, p := range []container.ServiceProvider{
		&providers.ConfigServiceProvider{Config: cfg},
		&providers.LoggingServiceProvider{},
		&providers.MetricsServiceProvider{Metrics: m},
		&providers.DefinitionsServiceProvider{},
		&providers.InspectorServiceProvider{},
	} {
		if err := registry.Register(p); err != nil {
			return nil, err
		}
	}
	return app, nil
}

// Register adds a ServiceProvider to the application.
func (a *Application) Register(provider container.ServiceProvider) error {
	return a.Providers.Register(provider)
}

// Boot runs the Boot() phase on all providers.
func (a *Application) Boot() error {
	return a.Providers.Boot()
}

// Config returns the loaded configuration.
func (a *Application) Config() *config.Config { return a.cfg }

// Logger returns the application logger.
func (a *Application) Logger() *zap.Logger { return a.log }

// Metrics returns the resolution metrics observed by the container.
func (a *Application) Metrics() *metrics.Resolutions { return a.metrics }

// Inspector resolves the inspector router from the container.
func (a *Application) Inspector() (*routing.Router, error) {
	return container.Get[*routing.Router](a.Container)
}

// Run boots the application (if needed) and serves the inspector until ctx
// is done. Without the inspector it returns once booted.
func (a *Application) Run(ctx context.Context) error {
	if !a.Providers.Booted() {
		if err := a.Boot(); err != nil {
			return err
		}
	}
	if !a.cfg.Inspector.Enabled {
		a.log.Info("application booted", zap.String("env", a.cfg.App.Env))
		return nil
	}

	router, err := a.Inspector()
	if err != nil {
		return err
	}
	srv := &http.Server{Addr: a.cfg.Inspector.Addr, Handler: router}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	a.log.Info("inspector listening",
		zap.String("addr", a.cfg.Inspector.Addr),
		zap.String("env", a.cfg.App.Env),
	)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Inspector.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	a.log.Info("inspector stopped")
	return nil
}

// Environment returns APP_ENV value.
func (a *Application) Environment() string { return a.cfg.App.Env }
func (a *Application) IsLocal() bool       { return a.Environment() == "local" }
func (a *Application) IsProduction() bool  { return a.Environment() == "production" }
func (a *Application) IsTesting() bool     { return a.Environment() == "testing" }
func (a *Application) IsDebug() bool       { return a.cfg.App.Debug }
func (a *Application) Version() string     { return "0.1.0" }
