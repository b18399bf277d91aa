// Package mock provides in-memory mock implementations of the
// [capture.Platform], [capture.Stream], [capture.Track], and
// [capture.Recorder] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so
// that tests can assert on call counts and arguments, and they expose
// exported fields that the test can set to control return values.
//
// Typical usage:
//
//	stream := mock.NewStream(1)
//	platform := &mock.Platform{RequestStreamResult: stream}
//	got, err := platform.RequestStream(ctx, capture.DefaultConstraints())
package mock

import (
	"context"
	"sync"

	"github.com/jyotiradityaparida25/pronunex-sub000/pkg/capture"
)

// eventBuffer is the capacity of a mock recorder's event channel. Large
// enough that tests never block on emission.
const eventBuffer = 64

// ─── Track ───────────────────────────────────────────────────────────────────

// Track is a mock implementation of [capture.Track].
type Track struct {
	mu sync.Mutex

	// LabelResult is returned by [Track.Label].
	LabelResult string

	// CallCountStop records how many times Stop was called.
	CallCountStop int
}

// Label implements [capture.Track].
func (t *Track) Label() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.LabelResult
}

// Stop implements [capture.Track]. Repeated calls are recorded but remain
// no-ops, matching the interface contract.
func (t *Track) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.CallCountStop++
}

// Stopped reports whether Stop has been called at least once.
func (t *Track) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.CallCountStop > 0
}

// ─── Stream ──────────────────────────────────────────────────────────────────

// Stream is a mock implementation of [capture.Stream].
type Stream struct {
	// MockTracks are the tracks returned by [Stream.Tracks].
	MockTracks []*Track
}

// NewStream creates a mock stream carrying n mock tracks.
func NewStream(n int) *Stream {
	s := &Stream{}
	for i := 0; i < n; i++ {
		s.MockTracks = append(s.MockTracks, &Track{LabelResult: "mock microphone"})
	}
	return s
}

// Tracks implements [capture.Stream].
func (s *Stream) Tracks() []capture.Track {
	out := make([]capture.Track, len(s.MockTracks))
	for i, t := range s.MockTracks {
		out[i] = t
	}
	return out
}

// AllStopped reports whether every track has been stopped. This is the
// assertion hook for leak-prevention tests.
func (s *Stream) AllStopped() bool {
	for _, t := range s.MockTracks {
		if !t.Stopped() {
			return false
		}
	}
	return true
}

// ─── Recorder ────────────────────────────────────────────────────────────────

// Recorder is a mock implementation of [capture.Recorder].
//
// By default Stop completes synchronously: it emits FlushChunk (when set),
// then the terminal [capture.EventStop], and closes the event channel. Set
// ManualStop to take over that sequence from the test via [Recorder.EmitData]
// and [Recorder.CompleteStop], e.g. to hold the session in its processing
// state.
type Recorder struct {
	mu sync.Mutex

	// StartError is returned by [Recorder.Start].
	StartError error

	// FlushChunk, when non-nil, is emitted as a final data event by the
	// default Stop sequence.
	FlushChunk []byte

	// ManualStop disables the automatic flush-and-complete behaviour of
	// [Recorder.Stop].
	ManualStop bool

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	state    capture.RecorderState
	events   chan capture.Event
	stopped  bool
	finished bool
}

// NewRecorder creates a mock recorder with a buffered event channel.
func NewRecorder() *Recorder {
	return &Recorder{events: make(chan capture.Event, eventBuffer)}
}

// Start implements [capture.Recorder].
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CallCountStart++
	if r.StartError != nil {
		return r.StartError
	}
	r.state = capture.RecorderRecording
	return nil
}

// Stop implements [capture.Recorder]. Only the first call has effect.
func (r *Recorder) Stop() {
	r.mu.Lock()
	r.CallCountStop++
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	manual := r.ManualStop
	flush := r.FlushChunk
	r.mu.Unlock()

	if manual {
		return
	}
	if flush != nil {
		r.EmitData(flush)
	}
	r.CompleteStop()
}

// State implements [capture.Recorder].
func (r *Recorder) State() capture.RecorderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Events implements [capture.Recorder].
func (r *Recorder) Events() <-chan capture.Event {
	return r.events
}

// EmitData delivers an incremental data event, as the platform would while
// recording. No-op once the recorder has finished.
func (r *Recorder) EmitData(chunk []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	r.events <- capture.Event{Type: capture.EventData, Data: chunk}
}

// CompleteStop delivers the terminal stop event and closes the event
// channel. Safe to call once; later calls are no-ops.
func (r *Recorder) CompleteStop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	r.finished = true
	r.state = capture.RecorderInactive
	r.events <- capture.Event{Type: capture.EventStop}
	close(r.events)
}

// Fail delivers a terminal error event and closes the event channel, as the
// platform would on an unrecoverable recorder failure.
func (r *Recorder) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	r.finished = true
	r.state = capture.RecorderInactive
	r.events <- capture.Event{Type: capture.EventError, Err: err}
	close(r.events)
}

// ─── Platform ────────────────────────────────────────────────────────────────

// RequestStreamCall records the arguments of one RequestStream invocation.
type RequestStreamCall struct {
	Constraints capture.Constraints
}

// NewRecorderCall records the arguments of one NewRecorder invocation.
type NewRecorderCall struct {
	Stream capture.Stream
	Format capture.Format
}

// Platform is a mock implementation of [capture.Platform].
// Set the exported Result fields before use; inspect the Call* fields after.
type Platform struct {
	mu sync.Mutex

	// CapabilitiesResult is returned by [Platform.Capabilities].
	// Defaults to both capabilities present when left zero and
	// NoCapabilities is false.
	CapabilitiesResult capture.Capabilities

	// NoCapabilities forces Capabilities to report nothing available.
	NoCapabilities bool

	// RequestStreamResult is returned by [Platform.RequestStream] on
	// success. Defaults to a fresh single-track [Stream] if left nil.
	RequestStreamResult capture.Stream

	// RequestStreamError is returned by [Platform.RequestStream].
	RequestStreamError error

	// RequestStreamGate, when non-nil, blocks RequestStream until the gate
	// is closed (or ctx is done). Use it to simulate a pending permission
	// prompt.
	RequestStreamGate chan struct{}

	// SupportsResult maps formats to encodability. A nil map means every
	// format is supported.
	SupportsResult map[capture.Format]bool

	// NewRecorderError is returned by [Platform.NewRecorder].
	NewRecorderError error

	// RecorderTemplate, when non-nil, configures recorders created by
	// NewRecorder: its StartError, FlushChunk, and ManualStop fields are
	// copied onto each fresh recorder.
	RecorderTemplate *Recorder

	// RequestStreamCalls records every RequestStream invocation in order.
	RequestStreamCalls []RequestStreamCall

	// NewRecorderCalls records every NewRecorder invocation in order.
	NewRecorderCalls []NewRecorderCall

	// CallCountSupports records how many times Supports was called.
	CallCountSupports int

	// CreatedRecorders holds every recorder handed out by NewRecorder,
	// in creation order.
	CreatedRecorders []*Recorder
}

// Capabilities implements [capture.Platform].
func (p *Platform) Capabilities() capture.Capabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.NoCapabilities {
		return capture.Capabilities{}
	}
	if p.CapabilitiesResult == (capture.Capabilities{}) {
		return capture.Capabilities{MediaRequest: true, Recorder: true}
	}
	return p.CapabilitiesResult
}

// RequestStream implements [capture.Platform]. When RequestStreamGate is
// set, the call blocks until the gate is closed, mimicking a permission
// prompt the user has not answered yet.
func (p *Platform) RequestStream(ctx context.Context, c capture.Constraints) (capture.Stream, error) {
	p.mu.Lock()
	p.RequestStreamCalls = append(p.RequestStreamCalls, RequestStreamCall{Constraints: c})
	gate := p.RequestStreamGate
	result := p.RequestStreamResult
	err := p.RequestStreamError
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		// Re-read results: the test may have set them while the prompt
		// was pending.
		p.mu.Lock()
		result = p.RequestStreamResult
		err = p.RequestStreamError
		p.mu.Unlock()
	}

	if err != nil {
		return nil, err
	}
	if result == nil {
		result = NewStream(1)
		p.mu.Lock()
		p.RequestStreamResult = result
		p.mu.Unlock()
	}
	return result, nil
}

// NewRecorder implements [capture.Platform]. Each call hands out a fresh
// [Recorder] (configured from RecorderTemplate when set) and records it in
// CreatedRecorders.
func (p *Platform) NewRecorder(s capture.Stream, format capture.Format) (capture.Recorder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.NewRecorderCalls = append(p.NewRecorderCalls, NewRecorderCall{Stream: s, Format: format})
	if p.NewRecorderError != nil {
		return nil, p.NewRecorderError
	}
	r := NewRecorder()
	if p.RecorderTemplate != nil {
		r.StartError = p.RecorderTemplate.StartError
		r.FlushChunk = p.RecorderTemplate.FlushChunk
		r.ManualStop = p.RecorderTemplate.ManualStop
	}
	p.CreatedRecorders = append(p.CreatedRecorders, r)
	return r, nil
}

// Supports implements [capture.Platform]. A nil SupportsResult map reports
// every format as supported.
func (p *Platform) Supports(format capture.Format) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountSupports++
	if p.SupportsResult == nil {
		return true
	}
	return p.SupportsResult[format]
}

// LastRecorder returns the most recently created recorder, or nil when
// NewRecorder has not been called.
func (p *Platform) LastRecorder() *Recorder {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.CreatedRecorders) == 0 {
		return nil
	}
	return p.CreatedRecorders[len(p.CreatedRecorders)-1]
}
