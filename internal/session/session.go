// Package session implements the stateful core of the Pronunex capture
// engine: a state machine that negotiates microphone access, records
// bounded-duration audio, auto-stops at a configured maximum, classifies
// device failures into a closed taxonomy, and guarantees that device handles
// are never leaked regardless of how the caller abandons the operation.
//
// The package also hosts the two leaf components the session consults once
// per attempt: the capability probe ([CaptureSupported], [SecureOrigin]) and
// the codec negotiator ([Negotiate]).
//
// A [Session] owns its device stream, recorder, chunk buffer, duration timer,
// and artifact URL table as instance fields — never as package state — so
// multiple independent sessions can coexist without cross-contamination.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jyotiradityaparida25/pronunex-sub000/pkg/capture"
)

// State identifies the single active phase of a [Session].
type State int

const (
	// StateIdle: no recording in flight. A device handle and an artifact
	// may or may not be held.
	StateIdle State = iota

	// StateRequesting: awaiting the device permission prompt.
	StateRequesting

	// StateDenied: the user (or an OS policy) declined access.
	StateDenied

	// StateRecording: the platform recorder is producing chunks.
	StateRecording

	// StateProcessing: a stop was issued and the recorder is flushing.
	StateProcessing

	// StateError: a classified device or environment failure is recorded.
	StateError
)

// MarshalJSON renders the state by name so UI clients never deal with raw
// integer values.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateDenied:
		return "denied"
	case StateRecording:
		return "recording"
	case StateProcessing:
		return "processing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Snapshot is the read-only view of a [Session] handed to the UI adapter.
// It never exposes the device handle itself.
type Snapshot struct {
	// Seq increases with every snapshot the session takes. Snapshots are
	// published outside the session lock, so two concurrent transitions can
	// reach an observer in either order; consumers that care compare Seq
	// and drop the stale one.
	Seq uint64 `json:"seq"`

	State              State     `json:"state"`
	ErrorKind          ErrorKind `json:"error_kind,omitempty"`
	ErrorMessage       string    `json:"error_message,omitempty"`
	Retryable          bool      `json:"retryable"`
	ElapsedSeconds     int       `json:"elapsed_seconds"`
	MaxDurationSeconds int       `json:"max_duration_seconds"`
	HasArtifact        bool      `json:"has_artifact"`
	ArtifactURL        string    `json:"artifact_url,omitempty"`
	ArtifactMIME       string    `json:"artifact_mime,omitempty"`
}

// DefaultMaxDuration bounds a recording attempt when the caller does not
// configure a maximum.
const DefaultMaxDuration = 30 * time.Second

// defaultTickInterval is the duration timer period. One tick advances the
// elapsed counter by one second regardless of the interval, which is what
// lets tests compress time.
const defaultTickInterval = time.Second

// ErrClosed is returned by operations on a torn-down session.
var ErrClosed = errors.New("session: closed")

// Config holds the caller-supplied settings for a [Session]. All fields are
// constant for the session's lifetime.
type Config struct {
	// MaxDuration is the auto-stop deadline. Defaults to
	// [DefaultMaxDuration] when zero.
	MaxDuration time.Duration

	// PreferredFormats is the encoding preference order for the codec
	// negotiator. Defaults to [capture.DefaultFormats] when empty.
	PreferredFormats []capture.Format

	// Constraints is the audio processing requested at device acquisition.
	// Defaults to [capture.DefaultConstraints] when zero.
	Constraints capture.Constraints

	// Origin is the page origin used by the secure-context probe. Empty
	// means the session runs inside a native host and the check passes.
	Origin string

	// TickInterval compresses the duration timer for tests. Defaults to
	// one second; each tick still counts as one elapsed second.
	TickInterval time.Duration

	// OnTransition, when set, is invoked after every observable change
	// (state transitions and timer ticks) with a consistent snapshot.
	// It is called outside the session lock and must not block for long.
	OnTransition func(Snapshot)
}

// Session is one recording aggregate: it owns the device stream, platform
// recorder, chunk buffer, duration timer, and artifact for a sequence of
// capture attempts. All exported methods are safe for concurrent use.
//
// Transitions are processed to completion under an internal lock, so the
// invariants hold at every observable point: at most one device handle is
// held; leaving Requesting/Recording releases any live handle; the duration
// timer exists exactly while recording; auto-stop and manual stop share one
// code path.
type Session struct {
	mu       sync.Mutex
	cfg      Config
	platform capture.Platform

	state   State
	errKind ErrorKind
	fatal   bool
	elapsed int

	stream   capture.Stream
	recorder capture.Recorder
	chunks   [][]byte
	format   capture.Format

	artifactBlob []byte
	artifactMIME string
	artifactURL  string
	urls         urlTable

	// acquireGen supersedes in-flight permission requests: any grant that
	// resolves under an older generation is released on arrival.
	acquireGen uint64

	// attemptGen invalidates timer ticks and recorder events from earlier
	// attempts.
	attemptGen uint64

	// seq stamps snapshots in lock-acquisition order.
	seq uint64

	timerStop chan struct{}
	closed    bool
}

// New creates a Session for the given platform and runs the capability and
// secure-context probes once, before any permission request. When a probe
// fails the session starts in a terminal error display state and never
// attempts device acquisition.
//
// Invalid configuration (negative durations) is a programmer error and is
// returned as an error rather than folded into session state.
func New(platform capture.Platform, cfg Config) (*Session, error) {
	if cfg.MaxDuration < 0 {
		return nil, fmt.Errorf("session: negative MaxDuration %v", cfg.MaxDuration)
	}
	if cfg.TickInterval < 0 {
		return nil, fmt.Errorf("session: negative TickInterval %v", cfg.TickInterval)
	}
	if cfg.MaxDuration == 0 {
		cfg.MaxDuration = DefaultMaxDuration
	}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if len(cfg.PreferredFormats) == 0 {
		cfg.PreferredFormats = capture.DefaultFormats()
	}
	if cfg.Constraints == (capture.Constraints{}) {
		cfg.Constraints = capture.DefaultConstraints()
	}

	s := &Session{cfg: cfg, platform: platform}

	switch {
	case !CaptureSupported(platform):
		s.state = StateError
		s.errKind = KindUnsupported
		s.fatal = true
	case !SecureOrigin(cfg.Origin):
		s.state = StateError
		s.errKind = KindInsecureContext
		s.fatal = true
	}
	return s, nil
}

// Snapshot returns the current read-only session view.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	s.seq++
	return Snapshot{
		Seq:                s.seq,
		State:              s.state,
		ErrorKind:          s.errKind,
		ErrorMessage:       s.errKind.Message(),
		Retryable:          s.errKind != KindNone && s.errKind.Retryable(),
		ElapsedSeconds:     s.elapsed,
		MaxDurationSeconds: int(s.cfg.MaxDuration / time.Second),
		HasArtifact:        s.artifactBlob != nil,
		ArtifactURL:        s.artifactURL,
		ArtifactMIME:       s.artifactMIME,
	}
}

// notify invokes the transition observer outside the lock.
func (s *Session) notify(snap Snapshot) {
	if s.cfg.OnTransition != nil {
		s.cfg.OnTransition(snap)
	}
}

// Artifact returns the finished recording blob and its media type.
// ok is false when no artifact exists. The returned blob is a copy; the
// session's artifact never changes once assembled.
func (s *Session) Artifact() (blob []byte, mime string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.artifactBlob == nil {
		return nil, "", false
	}
	return bytes.Clone(s.artifactBlob), s.artifactMIME, true
}

// ResolveArtifactURL returns the blob registered under an object URL issued
// by this session, so the UI adapter can serve playable audio.
func (s *Session) ResolveArtifactURL(u string) (blob []byte, mime string, ok bool) {
	return s.urls.resolve(u)
}

// RequestPermission performs the Requesting transition: it asks the platform
// for a device stream and stores the handle on grant. Idempotent when a
// handle is already held. On failure the session lands in Denied or Error
// per the taxonomy and the classified error is returned.
//
// A cancellation or teardown issued while the prompt is pending supersedes
// the acquisition: a handle that resolves afterwards is released the instant
// it arrives and the session state is left untouched.
func (s *Session) RequestPermission(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.fatal {
		err := s.errKind
		s.mu.Unlock()
		return fmt.Errorf("session: %s", err)
	}
	if s.stream != nil {
		s.mu.Unlock()
		return nil
	}
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("session: cannot request permission while %s", state)
	}
	gen := s.acquireGen
	s.state = StateRequesting
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)

	// Suspension point: the user may sit on the prompt indefinitely.
	stream, err := s.platform.RequestStream(ctx, s.cfg.Constraints)

	s.mu.Lock()
	if s.closed || s.acquireGen != gen {
		// Superseded by cancel or teardown. Release immediately, touch
		// nothing else — cancel already reset the state.
		s.mu.Unlock()
		if stream != nil {
			stopTracks(stream)
		}
		return nil
	}
	if err != nil {
		kind := Classify(err)
		if kind == KindPermissionDenied {
			s.state = StateDenied
		} else {
			s.state = StateError
		}
		s.errKind = kind
		s.fatal = !kind.Retryable()
		snap = s.snapshotLocked()
		s.mu.Unlock()
		s.notify(snap)
		slog.Info("permission request failed", "kind", kind.String(), "err", err)
		return fmt.Errorf("session: acquire device: %w", err)
	}
	s.stream = stream
	s.state = StateIdle
	snap = s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
	return nil
}

// StartRecording begins a capture attempt. It acquires permission first when
// no handle is held, resets all per-attempt state, negotiates the encoding
// format, and starts the platform recorder and the duration timer. On
// failure the session is left in Denied or Error.
func (s *Session) StartRecording(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state != StateIdle {
		state, fatal, kind := s.state, s.fatal, s.errKind
		s.mu.Unlock()
		if fatal {
			return fmt.Errorf("session: %s", kind)
		}
		return fmt.Errorf("session: cannot start while %s", state)
	}
	needStream := s.stream == nil
	s.mu.Unlock()

	if needStream {
		if err := s.RequestPermission(ctx); err != nil {
			return err
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state != StateIdle || s.stream == nil {
		// A cancel or teardown won the race against the grant.
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("session: device handle lost before start (state %s)", state)
	}

	// Reset per-attempt state.
	s.attemptGen++
	gen := s.attemptGen
	s.chunks = nil
	s.elapsed = 0

	// Negotiate the encoding once per attempt and use it consistently
	// through artifact assembly.
	s.format = Negotiate(s.platform.Supports, s.cfg.PreferredFormats)

	rec, err := s.platform.NewRecorder(s.stream, s.format)
	if err == nil {
		s.recorder = rec
		err = rec.Start()
	}
	if err != nil {
		s.recorder = nil
		s.releaseStreamLocked()
		s.state = StateError
		s.errKind = Classify(err)
		s.fatal = !s.errKind.Retryable()
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.notify(snap)
		return fmt.Errorf("session: start recorder: %w", err)
	}

	s.state = StateRecording
	s.startTimerLocked(gen)
	go s.pumpEvents(gen, rec.Events())
	format := s.format
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
	slog.Debug("recording started", "format", string(format))
	return nil
}

// StopRecording requests the end of the current attempt. It is a no-op
// unless the session is recording, and is safe to call repeatedly — only
// the first call has effect. The transition to Idle (with the assembled
// artifact) completes asynchronously when the recorder signals it has
// flushed; auto-stop funnels through this same path.
func (s *Session) StopRecording() {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return
	}
	s.state = StateProcessing
	s.stopTimerLocked()
	rec := s.recorder
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)

	// Asynchronous: completion arrives as an EventStop on the pump.
	rec.Stop()
}

// CancelRecording aborts whatever is in flight and returns the session to
// Idle with no artifact, no error, and no held handle. Safe in every state,
// including while a permission prompt is pending — the eventual grant is
// released on arrival.
func (s *Session) CancelRecording() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	snap := s.cancelLocked()
	s.mu.Unlock()
	s.notify(snap)
}

// cancelLocked performs the cancel transition and returns the snapshot to
// publish. Caller holds the lock.
func (s *Session) cancelLocked() Snapshot {
	s.acquireGen++ // supersede any pending acquisition
	s.attemptGen++ // drop late timer ticks and recorder events
	s.stopTimerLocked()
	if s.recorder != nil {
		// Stop without assembling an artifact; the pump ignores the
		// flush because the attempt generation moved on.
		s.recorder.Stop()
		s.recorder = nil
	}
	s.releaseStreamLocked()
	s.chunks = nil
	s.dropArtifactLocked()
	if !s.fatal {
		s.errKind = KindNone
		s.state = StateIdle
	}
	s.elapsed = 0
	return s.snapshotLocked()
}

// Retry clears a Denied or Error state back to Idle. It releases any stale
// handle but deliberately does not re-request permission — the next
// StartRecording will. Meaningless (and a no-op) in other states and for
// fatal probe failures.
func (s *Session) Retry() {
	s.mu.Lock()
	if s.closed || s.fatal || (s.state != StateDenied && s.state != StateError) {
		s.mu.Unlock()
		return
	}
	s.releaseStreamLocked()
	s.errKind = KindNone
	s.state = StateIdle
	s.elapsed = 0
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

// Close tears the session down regardless of state: pending acquisitions
// are superseded, the recorder and timer are stopped, the device handle is
// released, and the artifact URL is revoked. The session accepts no
// operations afterwards.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.cancelLocked()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// ─── Recorder event handling ─────────────────────────────────────────────────

// pumpEvents consumes one recorder's event stream. Events belonging to a
// superseded attempt are dropped, so a cancelled recorder can flush without
// producing an artifact.
func (s *Session) pumpEvents(gen uint64, events <-chan capture.Event) {
	for ev := range events {
		switch ev.Type {
		case capture.EventData:
			s.appendChunk(gen, ev.Data)
		case capture.EventStop:
			s.recorderStopped(gen)
		case capture.EventError:
			s.recorderFailed(gen, ev.Err)
		}
	}
}

func (s *Session) appendChunk(gen uint64, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attemptGen != gen || (s.state != StateRecording && s.state != StateProcessing) {
		return
	}
	s.chunks = append(s.chunks, data)
}

// recorderStopped completes the Processing → Idle edge: the chunk buffer is
// consumed exactly once to build the artifact, the previous artifact URL is
// revoked, and the device handle is released so the microphone indicator
// goes dark between attempts.
func (s *Session) recorderStopped(gen uint64) {
	s.mu.Lock()
	if s.attemptGen != gen || s.state != StateProcessing {
		s.mu.Unlock()
		return
	}
	var blob []byte
	for _, c := range s.chunks {
		blob = append(blob, c...)
	}
	if blob == nil {
		blob = []byte{}
	}
	s.chunks = nil
	s.recorder = nil

	s.dropArtifactLocked()
	s.artifactBlob = blob
	s.artifactMIME = s.format.MIME()
	s.artifactURL = s.urls.create(blob, s.artifactMIME)

	s.releaseStreamLocked()
	s.state = StateIdle
	snap := s.snapshotLocked()
	size := len(blob)
	s.mu.Unlock()
	s.notify(snap)
	slog.Debug("artifact assembled", "bytes", size, "seconds", snap.ElapsedSeconds)
}

// recorderFailed handles a platform recorder error mid-attempt: timer
// stopped, handle released, classified error recorded.
func (s *Session) recorderFailed(gen uint64, err error) {
	s.mu.Lock()
	if s.attemptGen != gen || (s.state != StateRecording && s.state != StateProcessing) {
		s.mu.Unlock()
		return
	}
	s.stopTimerLocked()
	s.recorder = nil
	s.chunks = nil
	s.releaseStreamLocked()
	s.state = StateError
	s.errKind = Classify(err)
	s.fatal = !s.errKind.Retryable()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
	slog.Warn("recorder failed", "kind", snap.ErrorKind.String(), "err", err)
}

// ─── Duration timer ──────────────────────────────────────────────────────────

// startTimerLocked launches the per-attempt duration timer. Exactly one
// timer exists while recording; it dies with the attempt generation.
func (s *Session) startTimerLocked(gen uint64) {
	stop := make(chan struct{})
	s.timerStop = stop
	interval := s.cfg.TickInterval
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				if s.tick(gen) {
					return
				}
			}
		}
	}()
}

func (s *Session) stopTimerLocked() {
	if s.timerStop != nil {
		close(s.timerStop)
		s.timerStop = nil
	}
}

// tick advances the elapsed counter by one second and triggers auto-stop at
// the configured maximum. Returns true when the timer goroutine should exit.
// Auto-stop deliberately routes through [Session.StopRecording] so manual
// and automatic stops share one artifact-assembly path; if a manual stop
// lands in the same instant, whichever acquires the lock first wins and the
// other is a no-op.
func (s *Session) tick(gen uint64) bool {
	s.mu.Lock()
	if s.attemptGen != gen || s.state != StateRecording {
		s.mu.Unlock()
		return true
	}
	s.elapsed++
	autoStop := s.elapsed >= int(s.cfg.MaxDuration/time.Second)
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
	if autoStop {
		s.StopRecording()
	}
	return autoStop
}

// ─── Device handle release ───────────────────────────────────────────────────

// releaseStreamLocked is the single release path for the device handle.
// Every exit from Requesting/Recording funnels through here (or through the
// superseded-acquisition branch, which uses the same stopTracks helper).
func (s *Session) releaseStreamLocked() {
	if s.stream == nil {
		return
	}
	stopTracks(s.stream)
	s.stream = nil
}

func (s *Session) dropArtifactLocked() {
	if s.artifactURL != "" {
		s.urls.revoke(s.artifactURL)
		s.artifactURL = ""
	}
	s.artifactBlob = nil
	s.artifactMIME = ""
}

// stopTracks stops every hardware track on a stream.
func stopTracks(stream capture.Stream) {
	for _, t := range stream.Tracks() {
		t.Stop()
	}
}
