// Package app wires all Pronunex subsystems into a running capture server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves until the context is cancelled, and Shutdown tears
// everything down in order — closing the capture session first so the device
// handle is released even when the process dies mid-recording.
//
// For testing, inject mock implementations via functional options
// (WithPlatform, WithSubmitter, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/jyotiradityaparida25/pronunex-sub000/internal/adapter"
	"github.com/jyotiradityaparida25/pronunex-sub000/internal/config"
	"github.com/jyotiradityaparida25/pronunex-sub000/internal/health"
	"github.com/jyotiradityaparida25/pronunex-sub000/internal/observe"
	"github.com/jyotiradityaparida25/pronunex-sub000/internal/session"
	"github.com/jyotiradityaparida25/pronunex-sub000/internal/uploader"
	"github.com/jyotiradityaparida25/pronunex-sub000/pkg/capture"
	"github.com/jyotiradityaparida25/pronunex-sub000/pkg/capture/malgodev"
)

// App owns all subsystem lifetimes for the capture server.
type App struct {
	cfg *config.Config

	platform  capture.Platform
	metrics   *observe.Metrics
	session   *session.Session
	adapter   *adapter.Server
	submitter uploader.Submitter
	health    *health.Handler
	server    *http.Server

	// tickInterval overrides the session's timer cadence in tests.
	tickInterval time.Duration

	// mu guards the transition-observer bookkeeping below.
	mu           sync.Mutex
	prevState    session.State
	requestStart time.Time

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithPlatform injects a capture platform instead of opening native hardware.
func WithPlatform(p capture.Platform) Option {
	return func(a *App) { a.platform = p }
}

// WithSubmitter injects a submitter instead of creating the HTTP client from
// config.
func WithSubmitter(s uploader.Submitter) Option {
	return func(a *App) { a.submitter = s }
}

// WithMetrics injects a metrics instance instead of using the process-wide
// default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithTickInterval compresses the session's duration timer. Test use only.
func WithTickInterval(d time.Duration) Option {
	return func(a *App) { a.tickInterval = d }
}

// New creates an App by wiring all subsystems together.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, prevState: session.StateIdle}
	for _, o := range opts {
		o(a)
	}

	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Capture platform ──────────────────────────────────────────────
	if a.platform == nil {
		p := malgodev.New()
		a.platform = p
		a.closers = append(a.closers, p.Close)
	}

	// ── 2. Submitter ─────────────────────────────────────────────────────
	if a.submitter == nil && cfg.Upload.BaseURL != "" {
		a.submitter = uploader.New(
			cfg.Upload.BaseURL,
			cfg.Upload.AuthToken,
			time.Duration(cfg.Upload.TimeoutSeconds)*time.Second,
			a.metrics,
		)
	}

	// ── 3. Session ───────────────────────────────────────────────────────
	sess, err := session.New(a.platform, session.Config{
		MaxDuration:      time.Duration(cfg.Capture.MaxDuration()) * time.Second,
		PreferredFormats: cfg.Capture.Formats(),
		Constraints:      cfg.Capture.DeviceConstraints(),
		Origin:           cfg.Capture.Origin,
		TickInterval:     a.tickInterval,
		OnTransition:     a.onTransition,
	})
	if err != nil {
		return nil, fmt.Errorf("app: create session: %w", err)
	}
	a.session = sess
	a.closers = append(a.closers, sess.Close)
	a.metrics.ActiveSessions.Add(context.Background(), 1)
	a.closers = append(a.closers, func() error {
		a.metrics.ActiveSessions.Add(context.Background(), -1)
		return nil
	})

	// ── 4. HTTP surface ──────────────────────────────────────────────────
	a.adapter = adapter.New(sess, a.submitter, a.metrics)
	a.health = health.New(health.PlatformChecker(a.platform, cfg.Capture.Origin))

	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// routes assembles the HTTP handler tree. The WebSocket upgrade bypasses the
// observability middleware because the wrapped response writer hides the
// Hijacker the upgrade needs.
func (a *App) routes() http.Handler {
	mux := http.NewServeMux()
	a.adapter.Register(mux)
	a.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	wrapped := observe.Middleware(a.metrics)(mux)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			mux.ServeHTTP(w, r)
			return
		}
		wrapped.ServeHTTP(w, r)
	})
}

// Session exposes the capture session, mainly for tests and embedders.
func (a *App) Session() *session.Session {
	return a.session
}

// Handler exposes the assembled HTTP handler, mainly for tests and embedders.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// onTransition observes every session transition: it forwards the snapshot
// to connected UI clients and records the capture metrics the session core
// itself stays free of.
func (a *App) onTransition(snap session.Snapshot) {
	ctx := context.Background()

	a.mu.Lock()
	prev := a.prevState
	a.prevState = snap.State
	if snap.State == session.StateRequesting && prev != session.StateRequesting {
		a.requestStart = time.Now()
	}
	var waited time.Duration
	if prev == session.StateRequesting && snap.State != session.StateRequesting && !a.requestStart.IsZero() {
		waited = time.Since(a.requestStart)
		a.requestStart = time.Time{}
	}
	a.mu.Unlock()

	if waited > 0 {
		a.metrics.PermissionWait.Record(ctx, waited.Seconds())
	}

	if snap.State != prev {
		switch {
		case snap.State == session.StateDenied:
			a.metrics.RecordPermission(ctx, "denied")
		case prev == session.StateRequesting &&
			(snap.State == session.StateIdle || snap.State == session.StateRecording):
			a.metrics.RecordPermission(ctx, "granted")
		case snap.State == session.StateError:
			a.metrics.RecordCaptureError(ctx, snap.ErrorKind.String())
		case prev == session.StateProcessing && snap.State == session.StateIdle && snap.HasArtifact:
			a.metrics.RecordAttempt(ctx, "completed", snap.ArtifactMIME)
			a.metrics.RecordingDuration.Record(ctx, float64(snap.ElapsedSeconds))
			if blob, _, ok := a.session.Artifact(); ok {
				a.metrics.ArtifactSize.Record(ctx, int64(len(blob)))
			}
		}
	}

	if a.adapter != nil {
		a.adapter.OnTransition(snap)
	}
}

// Run serves HTTP until ctx is cancelled, then shuts the server down.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("app: listen %q: %w", a.server.Addr, err)
	}
	slog.Info("capture server listening", "addr", ln.Addr().String())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown releases all resources. The session closes before the platform so
// an in-flight recording stops its tracks before the audio backend goes away.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		// Closers were appended in dependency order; release in reverse.
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
