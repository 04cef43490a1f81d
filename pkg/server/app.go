package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"SignalForge/pkg/config"
	xhttp "SignalForge/pkg/http"
	pkgkafka "SignalForge/pkg/kafka"
	applogger "SignalForge/pkg/logger"
)

// App runs the intake surfaces: the HTTP API and, when enabled, the Kafka
// items consumer. The clients they write to are owned by the caller.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	httpServer *xhttp.Server
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
}

// Option attaches optional infrastructure to App.
type Option func(*App)

// WithConsumer runs kh on consumer. Both must be non-nil to take effect.
func WithConsumer(consumer *pkgkafka.Consumer, kh pkgkafka.MessageHandler) Option {
	return func(a *App) {
		if consumer != nil && kh != nil {
			a.consumer = consumer
			a.kh = kh
		}
	}
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, log *applogger.Logger, httpServer *xhttp.Server, opts ...Option) *App {
	a := &App{cfg: cfg, log: log, httpServer: httpServer}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the application and blocks until interrupted or until the
// HTTP listener fails.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.run(ctx)
}

func (a *App) run(ctx context.Context) error {
	if a.consumer != nil {
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(); err != nil {
			return err
		}
		a.log.Info("item intake started", applogger.String("topic", a.kh.Topic()))
	}

	httpErr := a.httpServer.Start()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case err, ok := <-httpErr:
		if ok && err != nil {
			a.log.Error("http server failed", applogger.Error(err))
			runErr = err
		}
	}

	return errors.Join(runErr, a.shutdown())
}

// shutdown stops both intakes and waits for in-flight work up to the
// server's shutdown timeout.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.httpServer.ShutdownTimeout())
	defer cancel()

	var errs []error
	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
		errs = append(errs, err)
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}
