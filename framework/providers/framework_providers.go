package providers

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/km-arc/lightcontainer/framework/config"
	"github.com/km-arc/lightcontainer/framework/container"
	"github.com/km-arc/lightcontainer/framework/loader"
	"github.com/km-arc/lightcontainer/framework/metrics"
	"github.com/km-arc/lightcontainer/framework/routing"
)

// ConfigAlias is the short named identifier of the configuration.
const ConfigAlias = "@config"

// ── ConfigServiceProvider ─────────────────────────────────────────────────────

// ConfigServiceProvider binds the application configuration.
//
// Bound identifiers:
//   - container.ID[config.Config]() → *config.Config
//   - "@config"                     → the same value
//
// Config is loaded from EnvFiles when it is nil.
type ConfigServiceProvider struct {
	container.BaseProvider
	Config   *config.Config
	EnvFiles []string
}

func (p *ConfigServiceProvider) Register(app *container.Container) error {
	if p.Config == nil {
		p.Config = config.Load(p.EnvFiles...)
	}
	id := container.ID[config.Config]()
	if _, err := app.Set(id, container.Value(p.Config)); err != nil {
		return err
	}
	_, err := app.Set(ConfigAlias, id)
	return err
}

func (p *ConfigServiceProvider) Provides() []string {
	return []string{container.ID[config.Config](), ConfigAlias}
}

// ── LoggingServiceProvider ────────────────────────────────────────────────────

// LoggingServiceProvider binds the container logger so that constructors can
// take a *zap.Logger parameter.
//
// Bound identifiers:
//   - container.ID[zap.Logger]() → *zap.Logger
type LoggingServiceProvider struct {
	container.BaseProvider
}

func (p *LoggingServiceProvider) Register(app *container.Container) error {
	_, err := app.Set(container.ID[zap.Logger](), container.Value(app.Logger()))
	return err
}

func (p *LoggingServiceProvider) Provides() []string {
	return []string{container.ID[zap.Logger]()}
}

// ── MetricsServiceProvider ────────────────────────────────────────────────────

// MetricsServiceProvider binds the resolution metrics. Metrics must be the
// observer the container was created with.
//
// Bound identifiers:
//   - container.ID[metrics.Resolutions]() → *metrics.Resolutions
type MetricsServiceProvider struct {
	container.BaseProvider
	Metrics *metrics.Resolutions
}

func (p *MetricsServiceProvider) Register(app *container.Container) error {
	if p.Metrics == nil {
		return fmt.Errorf("providers: metrics provider needs a *metrics.Resolutions")
	}
	_, err := app.Set(container.ID[metrics.Resolutions](), container.Value(p.Metrics))
	return err
}

func (p *MetricsServiceProvider) Provides() []string {
	return []string{container.ID[metrics.Resolutions]()}
}

// ── DefinitionsServiceProvider ────────────────────────────────────────────────

// DefinitionsServiceProvider loads the definitions file named by
// config.Container.Definitions at boot, then fails on any configuration
// error recorded by a stored resolver.
//
// The loader's constants table holds APP_NAME and APP_ENV; Globals is passed
// as its globals table.
type DefinitionsServiceProvider struct {
	container.BaseProvider
	Globals map[string]any
}

func (p *DefinitionsServiceProvider) Register(*container.Container) error { return nil }

func (p *DefinitionsServiceProvider) Boot(app *container.Container) error {
	cfg, err := container.Get[*config.Config](app)
	if err != nil {
		return err
	}
	if cfg.Container.Definitions != "" {
		l := loader.New(
			loader.WithLogger(app.Logger()),
			loader.WithGlobals(p.Globals),
			loader.WithConstants(map[string]any{
				"APP_NAME": cfg.App.Name,
				"APP_ENV":  cfg.App.Env,
			}),
		)
		if err := l.LoadFile(app, cfg.Container.Definitions); err != nil {
			return err
		}
	}
	return app.Validate()
}

// ── InspectorServiceProvider ──────────────────────────────────────────────────

// InspectorServiceProvider builds the inspector router the first time it is
// resolved.
//
// Bound identifiers:
//   - container.ID[routing.Router]() → *routing.Router
type InspectorServiceProvider struct {
	container.BaseProvider
}

func (p *InspectorServiceProvider) Register(app *container.Container) error {
	opts := []routing.InspectorOption{routing.WithLogger(app.Logger())}
	// an unbound *metrics.Resolutions would be autowired empty
	if app.GetResolver(container.ID[metrics.Resolutions](), false) != nil {
		m, err := container.Get[*metrics.Resolutions](app)
		if err != nil {
			return err
		}
		opts = append(opts, routing.WithMetrics(m.Handler()))
	}
	_, err := app.Set(container.ID[routing.Router](), container.Value(routing.NewInspector(app, opts...)))
	return err
}

func (p *InspectorServiceProvider) Provides() []string {
	return []string{container.ID[routing.Router]()}
}

func (p *InspectorServiceProvider) IsDeferred() bool { return true }
