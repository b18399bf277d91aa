package malgodev

import (
	"sync"

	"github.com/jyotiradityaparida25/pronunex-sub000/pkg/capture"
)

// recorder drains PCM from a device stream and encodes it on stop. It emits
// a single final data event carrying the complete container, then the
// terminal stop event. Containerised formats (Ogg, FLAC) cannot be emitted
// piecemeal without a streaming muxer on the consumer side, and
// pronunciation clips are small enough to hold in memory.
type recorder struct {
	stream *deviceStream
	enc    encoder

	events   chan capture.Event
	stopCh   chan struct{}
	stopOnce sync.Once

	mu    sync.Mutex
	state capture.RecorderState
}

func newRecorder(stream *deviceStream, enc encoder) *recorder {
	return &recorder{
		stream: stream,
		enc:    enc,
		events: make(chan capture.Event, 4),
		stopCh: make(chan struct{}),
	}
}

// Start implements [capture.Recorder].
func (r *recorder) Start() error {
	if r.stream.track.Stopped() {
		return capture.NewDeviceError(capture.ErrNameTrackStart, "stream already released")
	}

	r.mu.Lock()
	r.state = capture.RecorderRecording
	r.mu.Unlock()

	go r.run()
	return nil
}

// Stop implements [capture.Recorder].
func (r *recorder) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// State implements [capture.Recorder].
func (r *recorder) State() capture.RecorderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Events implements [capture.Recorder].
func (r *recorder) Events() <-chan capture.Event {
	return r.events
}

func (r *recorder) run() {
	for {
		select {
		case chunk := <-r.stream.pcm:
			if err := r.enc.write(chunk); err != nil {
				r.fail(err)
				return
			}
		case <-r.stopCh:
			r.flush()
			return
		}
	}
}

// flush drains whatever PCM is still queued, finalises the container, and
// emits the terminal event sequence.
func (r *recorder) flush() {
	for {
		select {
		case chunk := <-r.stream.pcm:
			if err := r.enc.write(chunk); err != nil {
				r.fail(err)
				return
			}
		default:
			blob, err := r.enc.finish()
			if err != nil {
				r.fail(err)
				return
			}
			r.setInactive()
			if len(blob) > 0 {
				r.events <- capture.Event{Type: capture.EventData, Data: blob}
			}
			r.events <- capture.Event{Type: capture.EventStop}
			close(r.events)
			return
		}
	}
}

func (r *recorder) fail(err error) {
	r.setInactive()
	r.events <- capture.Event{Type: capture.EventError, Err: err}
	close(r.events)
}

func (r *recorder) setInactive() {
	r.mu.Lock()
	r.state = capture.RecorderInactive
	r.mu.Unlock()
}
