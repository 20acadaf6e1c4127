package serverapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jobez/dojo/internal/logging"
)

// Stop reasons returned by WaitForStop.
const (
	StopSignal      = "signal"
	StopServerError = "server_error"
)

type cleanupFunc struct {
	name string
	fn   func(context.Context) error
}

// cleanupStack releases resources in reverse order of acquisition.
type cleanupStack []cleanupFunc

func (s *cleanupStack) push(name string, fn func(context.Context) error) {
	*s = append(*s, cleanupFunc{name: name, fn: fn})
}

// run executes every cleanup even when some fail, and joins their errors.
func (s cleanupStack) run(ctx context.Context, logger *logging.Logger) error {
	var errs []error
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if logger != nil {
			logger.Info("shutting down " + c.name)
		}
		if err := c.fn(ctx); err != nil {
			if logger != nil {
				logger.Warn("cleanup error", slog.String("component", c.name), slog.String("error", err.Error()))
			}
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	return errors.Join(errs...)
}

// Start launches the HTTP server goroutine. It requires Init to have completed.
func (a *App) Start() (<-chan error, error) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	if !a.initialized {
		return nil, fmt.Errorf("app is not initialized")
	}
	if !a.started {
		a.serverErrors = startServer(a.cfg, a.logger, a.srv, a.serverAddr)
		a.started = true
	}
	return a.serverErrors, nil
}

// WaitForStop blocks until a signal arrives on stop or the server fails.
// A nil serverErrors falls back to the channel returned by Start.
func (a *App) WaitForStop(stop <-chan os.Signal, serverErrors <-chan error) (reason string, err error) {
	if serverErrors == nil {
		a.stateMu.Lock()
		serverErrors = a.serverErrors
		a.stateMu.Unlock()
	}
	if stop == nil && serverErrors == nil {
		return "", fmt.Errorf("nothing to wait on: both stop and serverErrors are nil")
	}

	// Receiving from a nil channel blocks, so a missing source never fires.
	select {
	case err := <-serverErrors:
		if err == nil {
			err = errors.New("server stopped unexpectedly")
		}
		return StopServerError, fmt.Errorf("server failed: %w", err)
	case sig := <-stop:
		if a.logger != nil {
			a.logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		}
		return StopSignal, nil
	}
}

// Shutdown releases all acquired resources. Only the first call does work;
// later calls return the same result.
func (a *App) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	a.shutdownOnce.Do(func() {
		a.stateMu.Lock()
		cleanup := a.cleanup
		a.started = false
		a.stateMu.Unlock()

		a.shutdownErr = cleanup.run(ctx, a.logger)
	})
	return a.shutdownErr
}
