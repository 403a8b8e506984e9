package routing

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/km-arc/lightcontainer/framework/container"
)

// InspectorOption configures NewInspector.
type InspectorOption func(*inspector)

// WithMetrics mounts h at /metrics.
func WithMetrics(h http.Handler) InspectorOption {
	return func(i *inspector) { i.metrics = h }
}

// WithLogger sets the request logger.
func WithLogger(log *zap.Logger) InspectorOption {
	return func(i *inspector) { i.log = log }
}

type inspector struct {
	c       *container.Container
	metrics http.Handler
	log     *zap.Logger
}

// NewInspector returns a read-only HTTP view of c.
//
//	GET /healthz
//	GET /resolvers        every stored resolver
//	GET /resolvers/{id}   one resolver; type identifiers contain slashes
//	GET /validate         sticky configuration errors
//	GET /metrics          when WithMetrics is set
//
// Nothing is resolved, so no shared instance is created by inspecting.
func NewInspector(c *container.Container, opts ...InspectorOption) *Router {
	i := &inspector{c: c, log: c.Logger()}
	for _, opt := range opts {
		opt(i)
	}

	r := New(i.log)
	r.Get("/healthz", i.health)
	r.Get("/validate", i.validate)
	r.Prefix("/resolvers", func(api *Router) {
		api.Get("/", i.list)
		api.Get("/*", i.show)
	})
	if i.metrics != nil {
		r.Mount("/metrics", i.metrics)
	}
	return r
}

func (i *inspector) health(w http.ResponseWriter, _ *http.Request) {
	NewResponse(w).Success(envelope{"status": "ok", "container": i.c.ID()})
}

func (i *inspector) list(w http.ResponseWriter, _ *http.Request) {
	entries := i.c.Entries()
	NewResponse(w).Success(envelope{
		"container": i.c.ID(),
		"count":     len(entries),
		"resolvers": entries,
	})
}

func (i *inspector) show(w http.ResponseWriter, req *http.Request) {
	res := NewResponse(w)
	id := Param(req, "*")
	entry, ok := i.c.Entry(id)
	if !ok {
		res.NotFound("No resolver is stored under " + id + ".")
		return
	}
	res.Success(entry)
}

func (i *inspector) validate(w http.ResponseWriter, _ *http.Request) {
	err := i.c.Validate()
	if err == nil {
		NewResponse(w).Success(envelope{"valid": true})
		return
	}
	var problems []string
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			problems = append(problems, e.Error())
		}
	} else {
		problems = []string{err.Error()}
	}
	NewResponse(w).JSON(http.StatusUnprocessableEntity, envelope{"data": envelope{"valid": false, "errors": problems}})
}
