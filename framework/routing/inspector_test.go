package routing_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/km-arc/lightcontainer/framework/container"
	"github.com/km-arc/lightcontainer/framework/routing"
)

type Clock struct{ Now int }

// ── helpers ──────────────────────────────────────────────────────────────────

func do(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, jsoniter.NewDecoder(rr.Body).Decode(&m))
	return m
}

func newContainer(t *testing.T) *container.Container {
	t.Helper()
	c := container.New()
	cls, err := c.Class(container.ID[Clock]())
	require.NoError(t, err)
	cls.Shared(true)
	_, err = c.Set("@clock", container.ID[Clock]())
	require.NoError(t, err)
	return c
}

// ── routes ────────────────────────────────────────────────────────────────────

func TestInspector_Health(t *testing.T) {
	c := newContainer(t)
	rr := do(t, routing.NewInspector(c), "/healthz")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	data := decodeJSON(t, rr)["data"].(map[string]any)
	assert.Equal(t, c.ID(), data["container"])
}

func TestInspector_ListResolvers(t *testing.T) {
	c := newContainer(t)
	rr := do(t, routing.NewInspector(c), "/resolvers")

	require.Equal(t, http.StatusOK, rr.Code)
	data := decodeJSON(t, rr)["data"].(map[string]any)
	resolvers := data["resolvers"].([]any)
	assert.Len(t, resolvers, len(c.Entries()))

	ids := make([]string, 0, len(resolvers))
	for _, r := range resolvers {
		ids = append(ids, r.(map[string]any)["id"].(string))
	}
	assert.Contains(t, ids, "@clock")
	assert.Contains(t, ids, container.ID[Clock]())
}

func TestInspector_ShowTypeIdentifierWithSlashes(t *testing.T) {
	c := newContainer(t)
	_, err := container.Get[*Clock](c)
	require.NoError(t, err)

	rr := do(t, routing.NewInspector(c), "/resolvers/"+container.ID[Clock]())

	require.Equal(t, http.StatusOK, rr.Code)
	data := decodeJSON(t, rr)["data"].(map[string]any)
	assert.Equal(t, "class", data["kind"])
	assert.Equal(t, true, data["shared"])
	assert.Equal(t, true, data["resolved"])
}

func TestInspector_ShowNamed(t *testing.T) {
	rr := do(t, routing.NewInspector(newContainer(t)), "/resolvers/@clock")

	require.Equal(t, http.StatusOK, rr.Code)
	data := decodeJSON(t, rr)["data"].(map[string]any)
	assert.Equal(t, "reference", data["kind"])
	assert.Equal(t, container.ID[Clock](), data["target"])
	assert.Equal(t, false, data["resolved"], "inspecting never resolves")
}

func TestInspector_ShowMissing(t *testing.T) {
	rr := do(t, routing.NewInspector(newContainer(t)), "/resolvers/@nope")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, decodeJSON(t, rr)["message"], "@nope")
}

func TestInspector_Validate(t *testing.T) {
	c := newContainer(t)
	rr := do(t, routing.NewInspector(c), "/validate")
	require.Equal(t, http.StatusOK, rr.Code)

	cls, err := c.Class(container.ID[Clock]())
	require.NoError(t, err)
	cls.Call("Missing")

	rr = do(t, routing.NewInspector(c), "/validate")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	data := decodeJSON(t, rr)["data"].(map[string]any)
	assert.Equal(t, false, data["valid"])
	assert.Len(t, data["errors"], 1)
}

func TestInspector_Metrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("metrics"))
	})
	c := newContainer(t)

	rr := do(t, routing.NewInspector(c, routing.WithMetrics(metrics)), "/metrics")
	assert.Equal(t, "metrics", rr.Body.String())

	rr = do(t, routing.NewInspector(c), "/metrics")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouter_RecoversPanics(t *testing.T) {
	r := routing.New(nil)
	r.Get("/panic", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rr := do(t, r, "/panic")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestResponse_ServerError(t *testing.T) {
	rr := httptest.NewRecorder()
	routing.NewResponse(rr).ServerError()

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Server Error.", decodeJSON(t, rr)["message"])
}
