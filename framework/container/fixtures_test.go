package container_test

import (
	"errors"
	"sync/atomic"

	"github.com/km-arc/lightcontainer/framework/container"
)

// ── mailers ───────────────────────────────────────────────────────────────────

type Mailer interface {
	Send(to string) string
}

type SMTPMailer struct {
	Host string
	Port int
}

func (m *SMTPMailer) Init(host string, port int) { m.Host, m.Port = host, port }
func (m *SMTPMailer) Send(to string) string      { return "smtp:" + to }

type NullMailer struct{}

func (*NullMailer) Send(to string) string { return "null:" + to }

type EchoMailer struct{}

func (*EchoMailer) Send(to string) string { return "echo:" + to }

type Unbound interface {
	Unbound()
}

// ── consumers ─────────────────────────────────────────────────────────────────

type Notifier struct {
	Mailer Mailer
}

func (n *Notifier) Init(m Mailer) { n.Mailer = m }

type Greeter struct {
	Name string
}

func (g *Greeter) Init(name string) { g.Name = name }
func (g *Greeter) Greet() string    { return "hello " + g.Name }

type Speaker interface {
	Greet() string
}

type NeedsUnbound struct {
	Dep Unbound
}

func (n *NeedsUnbound) Init(d Unbound) { n.Dep = d }

type Plain struct {
	N int
}

// ── cycles ────────────────────────────────────────────────────────────────────

type CycleA struct{ B *CycleB }

func (a *CycleA) Init(b *CycleB) { a.B = b }

type CycleB struct{ A *CycleA }

func (b *CycleB) Init(a *CycleA) { b.A = a }

type Engine struct{ Serial int64 }

var engineSerial atomic.Int64

func (e *Engine) Init() { e.Serial = engineSerial.Add(1) }

type Car struct{ Engine *Engine }

func (c *Car) Init(e *Engine) { c.Engine = e }

// ── hierarchy ─────────────────────────────────────────────────────────────────

type BaseHandler struct {
	Mailer Mailer
}

func (h *BaseHandler) Init(m Mailer) { h.Mailer = m }

type UserHandler struct {
	BaseHandler
}

type AdminHandler struct {
	UserHandler
}

// ── calls and builds ──────────────────────────────────────────────────────────

type Server struct {
	Port       int
	Middleware []string
}

func (s *Server) SetPort(p int)           { s.Port = p }
func (s *Server) Use(names ...string)     { s.Middleware = append(s.Middleware, names...) }
func (s *Server) Listen(m Mailer) error   { return nil }
func (s *Server) Fail() error             { return errListen }
func (s *Server) Address() (string, bool) { return "", s.Port != 0 }

var errListen = errors.New("listen failed")

type Counted struct{ Seq int64 }

var countedBuilds atomic.Int64

func (c *Counted) Init() { c.Seq = countedBuilds.Add(1) }

type Pool struct {
	Size int
	Name string
}

func (p *Pool) Init(size int, name string) { p.Size, p.Name = size, name }
type Worker struct {
	Port   int
	Engine *Engine
}

func (w *Worker) Init(port int, e *Engine) { w.Port, w.Engine = port, e }

type Gauge struct {
	N int
	U uint8
	F float64
}

func (g *Gauge) Init(n int, u uint8, f float64) { g.N, g.U, g.F = n, u, f }

type Tagged struct {
	Tags   []string
	Labels map[string]string
}

func (t *Tagged) Init(tags []string, labels map[string]string) { t.Tags, t.Labels = tags, labels }

// slowDepInit runs inside SlowDep.Init when set.
var slowDepInit func()

type SlowDep struct{}

func (*SlowDep) Init() {
	if slowDepInit != nil {
		slowDepInit()
	}
}

type Slow struct{ Dep *SlowDep }

func (s *Slow) Init(d *SlowDep) { s.Dep = d }

type Reporter struct {
	Mailer Mailer
}

func (r *Reporter) Init(m Mailer) { r.Mailer = m }

var flakyFail atomic.Bool

type Flaky struct {
	Plain *Plain
}

func (f *Flaky) Init(p *Plain) error {
	if flakyFail.Load() {
		return errFlaky
	}
	f.Plain = p
	return nil
}

var errFlaky = errors.New("flaky init")

type Collector struct {
	Items []string
	Label any
}

func (c *Collector) Init(label any, items ...string) { c.Label, c.Items = label, items }

// ── constructors ──────────────────────────────────────────────────────────────

type Conn struct {
	Mailer Mailer
	DSN    string
}

func newConn(m Mailer, dsn string) (*Conn, error) {
	if dsn == "" {
		return nil, errors.New("empty dsn")
	}
	return &Conn{Mailer: m, DSN: dsn}, nil
}

type LoopX struct{ Y *LoopY }

type LoopY struct{ X *LoopX }

func newLoopX(y *LoopY) *LoopX { return &LoopX{Y: y} }
func newLoopY(x *LoopX) *LoopY { return &LoopY{X: x} }

// ── services ──────────────────────────────────────────────────────────────────

type Sender interface{ Deliver() string }

type Receiver interface{ Receive() string }

type Auditor interface{ Audit() string }

type Postbox struct{}

func (*Postbox) Deliver() string { return "delivered" }
func (*Postbox) Receive() string { return "received" }
func (*Postbox) Audit() string   { return "audited" }

func init() {
	container.Declare[Pool](container.ParamDefault(0, 10))
	container.Declare[Worker](container.ParamDefault(0, 8080))
	container.Declare[Reporter](container.ParamOptional(0))
	container.Declare[SMTPMailer](container.ParamDefault(1, 25))
	if _, err := container.Constructor(newConn); err != nil {
		panic(err)
	}
	if _, err := container.Constructor(newLoopX, container.SharedType(true)); err != nil {
		panic(err)
	}
	if _, err := container.Constructor(newLoopY, container.SharedType(true)); err != nil {
		panic(err)
	}
	container.Service[Sender]()
	container.Service[Receiver]()
	container.Service[Auditor]()
}
