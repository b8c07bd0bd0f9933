// Package schemarefresh holds the active compiled schema and rebuilds it when
// the model or schema files change.
package schemarefresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"content-graphql/internal/engine"
	"content-graphql/internal/logging"
)

// Snapshot contains an immutable compiled schema and the handler serving it.
type Snapshot struct {
	Engine      *engine.Engine
	Handler     http.Handler
	BuiltAt     time.Time
	Fingerprint string
	Components  map[string]string
}

// BuildFunc compiles the schema from the current files.
type BuildFunc func(ctx context.Context) (*engine.Engine, error)

// Recorder receives one call per refresh attempt.
type Recorder interface {
	RecordRefresh(ctx context.Context, duration time.Duration, success bool, trigger string)
}

// Config controls schema refresh behavior.
type Config struct {
	Build BuildFunc
	// ModelsDir and SchemaFiles are fingerprinted to detect changes.
	ModelsDir   string
	SchemaFiles []string
	Playground  bool
	Logger      *logging.Logger
	Metrics     Recorder
	// MinInterval enables polling; zero leaves reloads to RefreshNow.
	MinInterval time.Duration
	MaxInterval time.Duration
}

// Manager maintains and refreshes schema snapshots. It serves the active
// snapshot as an http.Handler.
type Manager struct {
	build       BuildFunc
	sources     sources
	playground  bool
	logger      *logging.Logger
	metrics     Recorder
	minInterval time.Duration
	maxInterval time.Duration

	active  atomic.Pointer[Snapshot]
	buildMu sync.Mutex
	wg      sync.WaitGroup
}

// ErrNotReady is returned when no snapshot has been built.
var ErrNotReady = errors.New("schema not ready")

// NewManager builds the initial snapshot and returns a manager.
func NewManager(ctx context.Context, cfg Config) (*Manager, error) {
	if cfg.Build == nil {
		return nil, fmt.Errorf("schema refresh manager requires a build function")
	}
	if cfg.Logger == nil {
		cfg.Logger = &logging.Logger{Logger: slog.Default()}
	}
	maxInterval := cfg.MaxInterval
	if maxInterval < cfg.MinInterval {
		maxInterval = cfg.MinInterval
	}

	m := &Manager{
		build:       cfg.Build,
		sources:     sources{modelsDir: cfg.ModelsDir, schemaFiles: cfg.SchemaFiles},
		playground:  cfg.Playground,
		logger:      cfg.Logger.WithFields(slog.String("component", "schema_refresh")),
		metrics:     cfg.Metrics,
		minInterval: cfg.MinInterval,
		maxInterval: maxInterval,
	}
	if err := m.refresh(ctx, "startup"); err != nil {
		return nil, err
	}
	return m, nil
}

// Start begins the background refresh loop.
func (m *Manager) Start(ctx context.Context) {
	if m.minInterval <= 0 {
		m.logger.Info("schema polling disabled")
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.refreshLoop(ctx)
	}()
}

// CurrentSnapshot returns the active schema snapshot.
func (m *Manager) CurrentSnapshot() *Snapshot {
	return m.active.Load()
}

// ServeHTTP dispatches to the handler of the active snapshot, so a reload
// takes effect on the next request.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snapshot := m.CurrentSnapshot()
	if snapshot == nil {
		http.Error(w, ErrNotReady.Error(), http.StatusServiceUnavailable)
		return
	}
	snapshot.Handler.ServeHTTP(w, r)
}

// RefreshNow forces a schema rebuild and swap.
func (m *Manager) RefreshNow() error {
	return m.RefreshNowContext(context.Background())
}

// RefreshNowContext forces a schema rebuild and swap with context support. A
// failed build leaves the active snapshot in place.
func (m *Manager) RefreshNowContext(ctx context.Context) error {
	return m.refresh(ctx, "manual")
}

// Wait blocks until the refresh loop exits or the context is canceled.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) refresh(ctx context.Context, trigger string) error {
	start := time.Now()
	fp, err := m.sources.fingerprint()
	if err == nil {
		err = m.rebuild(ctx, fp)
	}
	m.recordRefresh(ctx, time.Since(start), err == nil, trigger)
	return err
}

func (m *Manager) rebuild(ctx context.Context, fp fingerprint) error {
	m.buildMu.Lock()
	defer m.buildMu.Unlock()

	ctx, span := otel.Tracer("content-graphql/schema").Start(ctx, "schema.build")
	defer span.End()
	span.SetAttributes(attribute.String("schema.fingerprint", fp.value))

	start := time.Now()
	eng, err := m.build(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("build schema: %w", err)
	}
	m.active.Store(&Snapshot{
		Engine:      eng,
		Handler:     eng.Handler(m.playground),
		BuiltAt:     time.Now(),
		Fingerprint: fp.value,
		Components:  fp.components,
	})
	m.logger.Info("schema snapshot built",
		slog.String("fingerprint", fp.value),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (m *Manager) refreshLoop(ctx context.Context) {
	interval := m.minInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("schema refresh stopped")
			return
		case <-timer.C:
			interval = m.refreshOnce(ctx, interval)
			timer.Reset(interval)
		}
	}
}

// refreshOnce polls the sources and returns the next polling interval.
// Quiet periods back off toward maxInterval; changes and errors reset it.
func (m *Manager) refreshOnce(ctx context.Context, interval time.Duration) time.Duration {
	start := time.Now()
	fp, err := m.sources.fingerprint()
	if err != nil {
		m.logger.Warn("schema fingerprint check failed", slog.String("error", err.Error()))
		m.recordRefresh(ctx, time.Since(start), false, "poll")
		return m.minInterval
	}

	current := m.CurrentSnapshot()
	if current != nil && fp.value == current.Fingerprint {
		m.recordRefresh(ctx, time.Since(start), true, "poll_no_change")
		return nextInterval(interval, m.minInterval, m.maxInterval)
	}

	var previous map[string]string
	if current != nil {
		previous = current.Components
	}
	m.logger.Info("schema change detected, rebuilding",
		slog.Any("changed_components", changedComponents(previous, fp.components)),
	)
	if err := m.rebuild(ctx, fp); err != nil {
		m.logger.Error("failed to rebuild schema, keeping previous snapshot", slog.String("error", err.Error()))
		m.recordRefresh(ctx, time.Since(start), false, "poll")
		return m.minInterval
	}
	m.recordRefresh(ctx, time.Since(start), true, "poll")
	return m.minInterval
}

func nextInterval(current, minInterval, maxInterval time.Duration) time.Duration {
	if current < minInterval {
		return minInterval
	}
	next := current + current/2
	if next > maxInterval {
		return maxInterval
	}
	return next
}

func (m *Manager) recordRefresh(ctx context.Context, duration time.Duration, success bool, trigger string) {
	if m.metrics == nil {
		return
	}
	m.metrics.RecordRefresh(ctx, duration, success, trigger)
}
