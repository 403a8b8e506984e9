package metrics_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/km-arc/lightcontainer/framework/container"
	"github.com/km-arc/lightcontainer/framework/metrics"
)

type Widget struct{ N int }

type Loop struct{ L *Loop }

func (l *Loop) Init(other *Loop) { l.L = other }

// counts gathers lightcontainer_resolutions_total keyed by "kind/outcome".
func counts(t *testing.T, m *metrics.Resolutions) map[string]float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)

	out := make(map[string]float64)
	for _, f := range families {
		if f.GetName() != "lightcontainer_resolutions_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			labels := map[string]string{}
			for _, l := range metric.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			out[labels["kind"]+"/"+labels["outcome"]] = metric.GetCounter().GetValue()
		}
	}
	return out
}

func TestResolutions_CountsByKindAndOutcome(t *testing.T) {
	m := metrics.New("lightcontainer", false)
	c := container.New(container.WithObserver(m))
	_, err := c.Set("@answer", 42)
	require.NoError(t, err)

	_, _ = c.Get("@answer")
	_, _ = c.Get("@answer")
	_, _ = container.Get[*Widget](c)
	_, _ = c.Get("@missing")
	_, _ = container.Get[*Loop](c)

	assert.Equal(t, map[string]float64{
		"value/ok":       2,
		"class/ok":       1,
		"none/not_found": 1,
		"class/circular": 1,
	}, counts(t, m))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, metrics.OutcomeOK, metrics.Outcome(nil))
	assert.Equal(t, metrics.OutcomeNotFound, metrics.Outcome(&container.NotFoundError{ID: "x"}))
	assert.Equal(t, metrics.OutcomeError, metrics.Outcome(errors.New("boom")))
}

func TestResolutions_Handler(t *testing.T) {
	m := metrics.New("lightcontainer", true)
	m.ObserveResolution("@x", "factory", 0, nil)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body, _ := io.ReadAll(rr.Body)
	assert.Contains(t, string(body), `lightcontainer_resolutions_total{kind="factory",outcome="ok"} 1`)
	assert.Contains(t, string(body), "lightcontainer_resolution_duration_seconds_bucket")
	assert.Contains(t, string(body), "go_goroutines")
}
