// Package malgodev implements [capture.Platform] on top of native audio
// hardware using the miniaudio bindings (gen2brain/malgo).
//
// The adapter captures 16-bit mono PCM from the default input device and
// encodes finished recordings into one of the formats it advertises via
// Supports: Ogg Opus, FLAC, or WAV. Unlike browser runtimes it has no
// permission prompt; acquisition fails fast when no input device exists or
// the audio backend cannot be initialised, using the same error-name
// vocabulary browsers report so session classification works unchanged.
package malgodev

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/jyotiradityaparida25/pronunex-sub000/pkg/capture"
)

// pcmBuffer is the capacity of a stream's PCM chunk channel. The recorder
// drains continuously; the buffer only absorbs scheduling jitter.
const pcmBuffer = 64

// Platform is the native [capture.Platform] implementation.
type Platform struct {
	mu  sync.Mutex
	ctx *malgo.AllocatedContext

	// initErr records why the audio backend failed to come up. When set,
	// Capabilities reports nothing available.
	initErr error
}

// New initialises the audio backend and returns the platform. Backend
// initialisation failure is not fatal here: the returned platform reports
// empty [capture.Capabilities] so a session built on it degrades exactly
// like an unsupported browser runtime.
func New() *Platform {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		slog.Warn("audio backend unavailable", "error", err)
		return &Platform{initErr: err}
	}
	return &Platform{ctx: ctx}
}

// Close releases the audio backend. Streams acquired from this platform must
// be stopped first.
func (p *Platform) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx == nil {
		return nil
	}
	err := p.ctx.Uninit()
	p.ctx.Free()
	p.ctx = nil
	return err
}

// Capabilities implements [capture.Platform].
func (p *Platform) Capabilities() capture.Capabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx == nil {
		return capture.Capabilities{}
	}
	return capture.Capabilities{MediaRequest: true, Recorder: true}
}

// RequestStream implements [capture.Platform]. It opens the default capture
// device at the constrained sample rate, 16-bit mono.
//
// Echo cancellation and noise suppression are best-effort constraints in
// every runtime; miniaudio offers neither, so they are accepted and ignored.
func (p *Platform) RequestStream(ctx context.Context, c capture.Constraints) (capture.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, capture.NewDeviceError(capture.ErrNameAbort, err.Error())
	}

	p.mu.Lock()
	mctx := p.ctx
	p.mu.Unlock()
	if mctx == nil {
		return nil, capture.NewDeviceError(capture.ErrNameNotSupported, "audio backend unavailable")
	}

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, capture.NewDeviceError(capture.ErrNameNotReadable,
			fmt.Sprintf("enumerate capture devices: %v", err))
	}
	if len(infos) == 0 {
		return nil, capture.NewDeviceError(capture.ErrNameNotFound, "no capture devices")
	}

	rate := c.SampleRate
	if rate <= 0 {
		rate = capture.DefaultConstraints().SampleRate
	}

	stream := &deviceStream{pcm: make(chan []byte, pcmBuffer)}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(rate)

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			// Copy out of miniaudio's buffer; it is reused after return.
			chunk := make([]byte, len(input))
			copy(chunk, input)
			select {
			case stream.pcm <- chunk:
			default:
				// Recorder fell behind; drop rather than block the
				// realtime audio thread.
			}
		},
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, capture.NewDeviceError(capture.ErrNameNotReadable,
			fmt.Sprintf("open capture device: %v", err))
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, capture.NewDeviceError(capture.ErrNameTrackStart,
			fmt.Sprintf("start capture device: %v", err))
	}

	stream.track = &deviceTrack{
		label:  infos[0].Name(),
		device: device,
	}
	stream.sampleRate = rate

	slog.Debug("capture device acquired",
		"device", stream.track.label, "sample_rate", rate)
	return stream, nil
}

// NewRecorder implements [capture.Platform].
func (p *Platform) NewRecorder(s capture.Stream, format capture.Format) (capture.Recorder, error) {
	ds, ok := s.(*deviceStream)
	if !ok {
		return nil, capture.NewDeviceError(capture.ErrNameNotSupported,
			"stream was not acquired from this platform")
	}
	enc, err := newEncoder(format, ds.sampleRate)
	if err != nil {
		return nil, err
	}
	return newRecorder(ds, enc), nil
}

// Supports implements [capture.Platform]. WebM muxing is a browser affair;
// native hosts produce Ogg Opus instead, which keeps the compressed option
// available under a different identifier.
func (p *Platform) Supports(format capture.Format) bool {
	switch format {
	case capture.FormatOggOpus, capture.FormatFLAC, capture.FormatWAV:
		return true
	default:
		return false
	}
}
