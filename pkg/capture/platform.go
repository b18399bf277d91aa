// Package capture defines the interfaces and types for microphone platform
// connectivity within Pronunex.
//
// The three primary abstractions are:
//
//   - [Platform] — reports what the runtime can do, acquires a [Stream] from
//     the device layer, and constructs a [Recorder] for that stream.
//   - [Stream] — the live, hardware-backed device handle. Every track it
//     carries must be stopped before the handle is discarded.
//   - [Recorder] — drives encoding of the stream into a chosen [Format] and
//     delivers encoded chunks, a completion signal, and errors as [Event]
//     values on a single channel.
//
// Implementations of these interfaces are provided by platform-specific
// adapter packages (e.g., capture/malgodev for native hardware). The
// interfaces are intentionally narrow to keep the session state machine
// decoupled from device details.
//
// This package lives under pkg/ because external code (alternative device
// adapters, test doubles) is expected to implement [Platform].
package capture

import "context"

// Capabilities reports which capture-related APIs the runtime exposes.
// Both must be true before a session may attempt device acquisition.
type Capabilities struct {
	// MediaRequest is true when the runtime can acquire device streams.
	MediaRequest bool

	// Recorder is true when the runtime can construct stream recorders.
	Recorder bool
}

// Constraints describes the audio processing requested from the device layer
// when acquiring a stream. Devices may reject constraints they cannot honour;
// such rejections surface as a [DeviceError] with an overconstrained name.
type Constraints struct {
	// EchoCancellation requests acoustic echo cancellation.
	EchoCancellation bool

	// NoiseSuppression requests background noise suppression.
	NoiseSuppression bool

	// SampleRate is the target capture rate in Hz.
	SampleRate int
}

// DefaultConstraints returns the constraint set used for pronunciation
// capture: echo cancellation and noise suppression on, 16 kHz.
func DefaultConstraints() Constraints {
	return Constraints{
		EchoCancellation: true,
		NoiseSuppression: true,
		SampleRate:       16000,
	}
}

// Track is a single hardware-backed track within a [Stream].
type Track interface {
	// Label returns the human-readable device label for this track.
	Label() string

	// Stop releases the underlying hardware. It is safe to call Stop more
	// than once; subsequent calls are no-ops.
	Stop()
}

// Stream is the live device handle returned by [Platform.RequestStream].
//
// Ownership: exactly one session owns a Stream at a time. The owner must
// call Stop on every track before discarding the handle — an unstopped
// track keeps the microphone open (and its indicator lit) indefinitely.
type Stream interface {
	// Tracks returns the audio tracks carried by this stream. The slice is
	// a snapshot; it does not change after acquisition.
	Tracks() []Track
}

// RecorderState is the coarse lifecycle state a [Recorder] reports.
type RecorderState int

const (
	// RecorderInactive means the recorder has not started, or has fully
	// flushed after a stop.
	RecorderInactive RecorderState = iota

	// RecorderRecording means the recorder is actively producing chunks.
	RecorderRecording
)

// String returns the human-readable name of the recorder state.
func (s RecorderState) String() string {
	switch s {
	case RecorderInactive:
		return "inactive"
	case RecorderRecording:
		return "recording"
	default:
		return "unknown"
	}
}

// EventType classifies the events a [Recorder] emits.
type EventType int

const (
	// EventData carries an incremental encoded chunk.
	EventData EventType = iota

	// EventStop signals that the recorder has fully flushed after Stop.
	// No further EventData follows an EventStop.
	EventStop

	// EventError signals a platform recorder failure. The recorder is dead
	// after an EventError; the owner must release the device handle.
	EventError
)

// Event is a single recorder notification.
type Event struct {
	// Type indicates which of the fields below is meaningful.
	Type EventType

	// Data is the encoded chunk for an [EventData] event.
	Data []byte

	// Err is the platform error for an [EventError] event.
	Err error
}

// Recorder encodes a [Stream] into a single [Format] and reports progress as
// events. A Recorder is single-use: once it has emitted [EventStop] or
// [EventError] it cannot be restarted.
//
// Implementations must be safe for concurrent use.
type Recorder interface {
	// Start begins capture. Returns an error if the recorder cannot start
	// (dead stream, device lost between acquisition and start).
	Start() error

	// Stop requests an asynchronous stop. Any buffered audio is flushed as
	// final [EventData] events, followed by exactly one [EventStop], after
	// which the event channel is closed. Stop is safe to call more than
	// once; only the first call has effect.
	Stop()

	// State reports the current recorder lifecycle state.
	State() RecorderState

	// Events returns the channel on which data, stop, and error events are
	// delivered, in order. The channel is closed after the terminal event.
	Events() <-chan Event
}

// Platform is the entry point for a device-capture provider.
// Implementations wrap runtime-specific device layers (native audio stacks,
// test doubles) and expose a uniform acquisition and recording surface.
//
// Implementations must be safe for concurrent use.
type Platform interface {
	// Capabilities reports which capture APIs this platform exposes.
	// It has no side effects.
	Capabilities() Capabilities

	// RequestStream acquires a device handle honouring the given
	// constraints. The call may suspend for an arbitrarily long time (the
	// user may be staring at a permission prompt); ctx bounds the attempt.
	//
	// Failures are reported as a [DeviceError] carrying the platform's
	// error name so callers can classify them.
	RequestStream(ctx context.Context, c Constraints) (Stream, error)

	// NewRecorder constructs a recorder that encodes s into format.
	// The format should be one this platform reported via Supports;
	// passing an unsupported format returns a [DeviceError].
	NewRecorder(s Stream, format Format) (Recorder, error)

	// Supports reports whether this platform can encode the given format.
	// It has no side effects and is safe to query repeatedly.
	Supports(format Format) bool
}
