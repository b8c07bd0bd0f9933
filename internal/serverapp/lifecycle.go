package serverapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"syscall"

	"content-graphql/internal/logging"
)

// Reasons WaitForStop reports.
const (
	StopSignal      = "signal"
	StopServerError = "server_error"
)

// closers releases resources in reverse order of acquisition.
type closers []closer

type closer struct {
	name string
	fn   func(context.Context) error
}

func (c *closers) push(name string, fn func(context.Context) error) {
	*c = append(*c, closer{name: name, fn: fn})
}

// close runs every closer even when earlier ones fail and joins the errors.
func (c closers) close(ctx context.Context, logger *logging.Logger) error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		item := c[i]
		if logger != nil {
			logger.Info("shutting down " + item.name)
		}
		if err := item.fn(ctx); err != nil {
			if logger != nil {
				logger.Warn("cleanup error", slog.String("component", item.name), slog.String("error", err.Error()))
			}
			errs = append(errs, fmt.Errorf("%s: %w", item.name, err))
		}
	}
	return errors.Join(errs...)
}

// Start launches the HTTP server. Calling it again returns the same error
// channel.
func (a *App) Start() (<-chan error, error) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	if !a.initialized {
		return nil, errors.New("app is not initialized")
	}
	if !a.started {
		a.serverErrors = startServer(a.cfg, a.logger, a.srv, a.serverAddr)
		a.started = true
	}
	return a.serverErrors, nil
}

// WaitForStop blocks until a stop signal arrives or the server fails.
// SIGHUP recompiles the content schema from the model files and keeps
// waiting; a failed reload leaves the running schema in place.
func (a *App) WaitForStop(stop <-chan os.Signal, serverErrors <-chan error) (reason string, err error) {
	a.stateMu.Lock()
	if serverErrors == nil {
		serverErrors = a.serverErrors
	}
	reloader := a.reloader
	a.stateMu.Unlock()

	if stop == nil && serverErrors == nil {
		return "", errors.New("nothing to wait on: both stop and serverErrors are nil")
	}

	// A nil channel never fires, so one select covers every combination.
	for {
		select {
		case err := <-serverErrors:
			if err == nil {
				return StopServerError, errors.New("server stopped unexpectedly")
			}
			return StopServerError, fmt.Errorf("server failed: %w", err)
		case sig := <-stop:
			if sig == syscall.SIGHUP && reloader != nil {
				a.reloadOnSignal(reloader)
				continue
			}
			if a.logger != nil {
				a.logger.Info("received shutdown signal", slog.String("signal", sig.String()))
			}
			return StopSignal, nil
		}
	}
}

func (a *App) reloadOnSignal(reloader schemaReloader) {
	ctx, cancel := context.WithTimeout(context.Background(), schemaReloadTimeout)
	defer cancel()
	if err := reloader.RefreshNowContext(ctx); err != nil {
		if a.logger != nil {
			a.logger.Error("schema reload on SIGHUP failed, keeping current schema", slog.String("error", err.Error()))
		}
		return
	}
	if a.logger != nil {
		a.logger.Info("schema reloaded on SIGHUP")
	}
}

// Shutdown releases everything Init acquired. Only the first call does
// work; later calls return its result.
func (a *App) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.shutdownOnce.Do(func() {
		a.stateMu.Lock()
		cleanup := a.cleanup
		a.started = false
		a.stateMu.Unlock()

		a.shutdownErr = cleanup.close(ctx, a.logger)
	})
	return a.shutdownErr
}
