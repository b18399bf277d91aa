package malgodev

import (
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/jyotiradityaparida25/pronunex-sub000/pkg/capture"
)

// deviceStream is the native [capture.Stream]: one capture device feeding a
// channel of PCM chunks (S16LE mono).
type deviceStream struct {
	track      *deviceTrack
	sampleRate int
	pcm        chan []byte
}

// Tracks implements [capture.Stream].
func (s *deviceStream) Tracks() []capture.Track {
	return []capture.Track{s.track}
}

// deviceTrack owns the miniaudio device handle.
type deviceTrack struct {
	label  string
	device *malgo.Device

	mu      sync.Mutex
	stopped bool
}

// Label implements [capture.Track].
func (t *deviceTrack) Label() string {
	return t.label
}

// Stop implements [capture.Track]. The first call stops and releases the
// hardware; later calls are no-ops.
func (t *deviceTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	_ = t.device.Stop()
	t.device.Uninit()
}

// Stopped reports whether the hardware has been released.
func (t *deviceTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}
