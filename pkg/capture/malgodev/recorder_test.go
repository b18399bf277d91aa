package malgodev

import (
	"bytes"
	"testing"
	"time"

	"github.com/jyotiradityaparida25/pronunex-sub000/pkg/capture"
)

// newLooseStream builds a device stream that is not backed by hardware, for
// exercising the recorder's drain-and-flush pipeline.
func newLooseStream() *deviceStream {
	return &deviceStream{
		track:      &deviceTrack{label: "loopback"},
		sampleRate: 16000,
		pcm:        make(chan []byte, pcmBuffer),
	}
}

func collectEvents(t *testing.T, r *recorder) []capture.Event {
	t.Helper()
	var events []capture.Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-r.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("timed out draining recorder events")
		}
	}
}

func TestRecorderFlushesBufferedAudioOnStop(t *testing.T) {
	t.Parallel()

	stream := newLooseStream()
	rec := newRecorder(stream, &wavEncoder{sampleRate: stream.sampleRate})

	if err := rec.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if got := rec.State(); got != capture.RecorderRecording {
		t.Errorf("State() = %s, want recording", got)
	}

	stream.pcm <- []byte{1, 0, 2, 0}
	stream.pcm <- []byte{3, 0, 4, 0}
	rec.Stop()

	events := collectEvents(t, rec)
	if len(events) != 2 {
		t.Fatalf("got %d events, want data then stop", len(events))
	}
	if events[0].Type != capture.EventData || events[1].Type != capture.EventStop {
		t.Fatalf("event sequence = %v, %v", events[0].Type, events[1].Type)
	}

	// The WAV payload must carry every queued sample.
	payload := events[0].Data
	if !bytes.Equal(payload[44:], []byte{1, 0, 2, 0, 3, 0, 4, 0}) {
		t.Errorf("payload = %v", payload[44:])
	}
	if got := rec.State(); got != capture.RecorderInactive {
		t.Errorf("State() after flush = %s, want inactive", got)
	}
}

func TestRecorderStopIsIdempotent(t *testing.T) {
	t.Parallel()

	stream := newLooseStream()
	rec := newRecorder(stream, &wavEncoder{sampleRate: stream.sampleRate})
	if err := rec.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	rec.Stop()
	rec.Stop()
	rec.Stop()

	events := collectEvents(t, rec)
	stops := 0
	for _, ev := range events {
		if ev.Type == capture.EventStop {
			stops++
		}
	}
	if stops != 1 {
		t.Errorf("stop events = %d, want exactly 1", stops)
	}
}

func TestRecorderRefusesReleasedStream(t *testing.T) {
	t.Parallel()

	stream := newLooseStream()
	stream.track.stopped = true

	rec := newRecorder(stream, &wavEncoder{sampleRate: stream.sampleRate})
	if err := rec.Start(); err == nil {
		t.Fatal("Start() succeeded on a released stream")
	}
}
