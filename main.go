package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/km-arc/lightcontainer/framework/app"
	"github.com/km-arc/lightcontainer/framework/container"
)

// ── Example services ─────────────────────────────────────────────────────────

type Mailer interface {
	Send(to, body string) error
}

type SMTPMailer struct {
	log  *zap.Logger
	host string
}

func (m *SMTPMailer) Init(log *zap.Logger, host string) { m.log, m.host = log, host }

func (m *SMTPMailer) Send(to, body string) error {
	m.log.Info("mail sent", zap.String("host", m.host), zap.String("to", to))
	return nil
}

type Welcome struct {
	mailer Mailer
}

func (w *Welcome) Init(m Mailer) { w.mailer = m }

func (w *Welcome) Greet(user string) error {
	return w.mailer.Send(user, "welcome aboard")
}

func init() {
	container.Declare[SMTPMailer](container.SharedType(true), container.ParamDefault(1, "localhost"))
	container.Register[Welcome]()
}

func main() {
	application, err := app.New() // loads .env automatically
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Definitions loaded at boot replace this binding.
	if _, err := application.Ref(container.ID[Mailer](), container.ID[SMTPMailer]()); err != nil {
		application.Logger().Fatal("bind mailer", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Boot(); err != nil {
		application.Logger().Fatal("boot failed", zap.Error(err))
	}

	welcome, err := container.Get[*Welcome](application.Container)
	if err != nil {
		application.Logger().Fatal("resolve welcome", zap.Error(err))
	}
	if err := welcome.Greet("ops@example.com"); err != nil {
		application.Logger().Error("welcome mail", zap.Error(err))
	}

	if err := application.Run(ctx); err != nil {
		application.Logger().Fatal("application stopped", zap.Error(err))
	}
}
