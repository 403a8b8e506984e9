package providers_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/km-arc/lightcontainer/framework/config"
	"github.com/km-arc/lightcontainer/framework/container"
	"github.com/km-arc/lightcontainer/framework/metrics"
	"github.com/km-arc/lightcontainer/framework/providers"
	"github.com/km-arc/lightcontainer/framework/routing"
)

type Service struct {
	Log  *zap.Logger
	Name string
}

func (s *Service) Init(log *zap.Logger, cfg *config.Config) { s.Log, s.Name = log, cfg.App.Name }

func newRegistry(t *testing.T, cfg *config.Config, extra ...container.ServiceProvider) (*container.Container, *container.ProviderRegistry) {
	t.Helper()
	log := zap.NewNop()
	m := metrics.New("test", false)
	c := container.New(container.WithLogger(log), container.WithObserver(m))
	reg := container.NewProviderRegistry(c)
	all := append([]container.ServiceProvider{
		&providers.ConfigServiceProvider{Config: cfg},
		&providers.LoggingServiceProvider{},
		&providers.MetricsServiceProvider{Metrics: m},
	}, extra...)
	for _, p := range all {
		require.NoError(t, reg.Register(p))
	}
	return c, reg
}

func TestConfigAndLogging_AutowireIntoConstructors(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Name: "billing"}}
	c, _ := newRegistry(t, cfg)

	s, err := container.Get[*Service](c)
	require.NoError(t, err)
	assert.Same(t, c.Logger(), s.Log)
	assert.Equal(t, "billing", s.Name)

	alias, err := container.GetNamed[*config.Config](c, providers.ConfigAlias)
	require.NoError(t, err)
	assert.Same(t, cfg, alias)
}

func TestMetricsProvider_RequiresMetrics(t *testing.T) {
	reg := container.NewProviderRegistry(container.New())
	assert.Error(t, reg.Register(&providers.MetricsServiceProvider{}))
}

func TestInspectorProvider_IsDeferred(t *testing.T) {
	c, reg := newRegistry(t, &config.Config{}, &providers.InspectorServiceProvider{})

	id := container.ID[routing.Router]()
	assert.Equal(t, []string{id}, reg.Deferred())

	r1, err := container.Get[*routing.Router](c)
	require.NoError(t, err)
	require.NotNil(t, r1)
	assert.Empty(t, reg.Deferred())

	r2, _ := container.Get[*routing.Router](c)
	assert.Same(t, r1, r2)
}

func TestDefinitionsProvider_LoadsFileAtBoot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "definitions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
"@name":
  _const: APP_NAME
"@level":
  _global: level
`), 0o600))

	level := "warn"
	cfg := &config.Config{
		App:       config.AppConfig{Name: "billing"},
		Container: config.ContainerConfig{Definitions: path},
	}
	c, reg := newRegistry(t, cfg, &providers.DefinitionsServiceProvider{
		Globals: map[string]any{"level": &level},
	})
	require.NoError(t, reg.Boot())

	name, err := c.Get("@name")
	require.NoError(t, err)
	assert.Equal(t, "billing", name)
	got, err := c.Get("@level")
	require.NoError(t, err)
	assert.Equal(t, "warn", got)
}

func TestDefinitionsProvider_FailsOnInvalidResolvers(t *testing.T) {
	c, reg := newRegistry(t, &config.Config{}, &providers.DefinitionsServiceProvider{})
	cls, err := c.Class(container.ID[Service]())
	require.NoError(t, err)
	cls.Call("Missing")

	assert.ErrorIs(t, reg.Boot(), container.ErrConfiguration)
}

func TestDefinitionsProvider_MissingFile(t *testing.T) {
	cfg := &config.Config{Container: config.ContainerConfig{Definitions: "missing.yaml"}}
	_, reg := newRegistry(t, cfg, &providers.DefinitionsServiceProvider{})
	assert.Error(t, reg.Boot())
}
