package run

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// DefaultShutdownTimeout bounds all shutdown hooks together.
const DefaultShutdownTimeout = 15 * time.Second

type hook struct {
	name string
	fn   func(ctx context.Context) error
}

type Runner struct {
	Logger          *zap.Logger
	ShutdownTimeout time.Duration
	hooks           []hook
}

func New(log *zap.Logger) *Runner {
	return &Runner{Logger: log, ShutdownTimeout: DefaultShutdownTimeout}
}

// OnShutdown registers fn to run once start has stopped or a signal arrived.
// Hooks run in reverse registration order and share one deadline.
func (r *Runner) OnShutdown(name string, fn func(ctx context.Context) error) {
	r.hooks = append(r.hooks, hook{name: name, fn: fn})
}

// WithSignals runs start until it returns or SIGINT/SIGTERM arrives, and maps
// the outcome to a process exit code. http.ErrServerClosed counts as success.
func (r *Runner) WithSignals(start func(ctx context.Context) error) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return r.run(ctx, start)
}

func (r *Runner) run(ctx context.Context, start func(ctx context.Context) error) int {
	errCh := make(chan error, 1)
	go func() {
		errCh <- start(ctx)
	}()

	code := 0
	select {
	case <-ctx.Done():
		r.Logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.Logger.Error("service exited with error", zap.Error(err))
			code = 1
		}
	}
	if !r.shutdown() && code == 0 {
		code = 1
	}
	return code
}

// shutdown reports whether every hook finished without error.
func (r *Runner) shutdown() bool {
	timeout := r.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ok := true
	for i := len(r.hooks) - 1; i >= 0; i-- {
		h := r.hooks[i]
		if err := h.fn(ctx); err != nil {
			r.Logger.Warn("shutdown hook failed", zap.String("hook", h.name), zap.Error(err))
			ok = false
		}
	}
	r.hooks = nil
	return ok
}

func Exit(code int) {
	os.Exit(code)
}
