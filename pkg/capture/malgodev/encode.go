package malgodev

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"layeh.com/gopus"

	"github.com/jyotiradityaparida25/pronunex-sub000/pkg/capture"
)

// encoder turns S16LE mono PCM into one finished audio container.
type encoder interface {
	// write appends raw PCM bytes.
	write(pcm []byte) error

	// finish flushes pending samples and returns the complete container.
	// The encoder is dead afterwards.
	finish() ([]byte, error)
}

func newEncoder(format capture.Format, sampleRate int) (encoder, error) {
	switch format {
	case capture.FormatWAV:
		return &wavEncoder{sampleRate: sampleRate}, nil
	case capture.FormatFLAC:
		return newFLACEncoder(sampleRate)
	case capture.FormatOggOpus:
		return newOggOpusEncoder(sampleRate)
	default:
		return nil, capture.NewDeviceError(capture.ErrNameNotSupported,
			fmt.Sprintf("no encoder for %q", format))
	}
}

// bytesToInt16s converts little-endian bytes to int16 PCM samples.
func bytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return pcm
}

// ─── WAV ─────────────────────────────────────────────────────────────────────

// wavEncoder buffers PCM and prepends a RIFF header on finish.
type wavEncoder struct {
	sampleRate int
	data       bytes.Buffer
}

func (e *wavEncoder) write(pcm []byte) error {
	_, err := e.data.Write(pcm)
	return err
}

func (e *wavEncoder) finish() ([]byte, error) {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	dataLen := e.data.Len()
	byteRate := e.sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	var out bytes.Buffer
	out.Grow(44 + dataLen)
	out.WriteString("RIFF")
	binary.Write(&out, binary.LittleEndian, uint32(36+dataLen))
	out.WriteString("WAVE")
	out.WriteString("fmt ")
	binary.Write(&out, binary.LittleEndian, uint32(16))
	binary.Write(&out, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&out, binary.LittleEndian, uint16(channels))
	binary.Write(&out, binary.LittleEndian, uint32(e.sampleRate))
	binary.Write(&out, binary.LittleEndian, uint32(byteRate))
	binary.Write(&out, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&out, binary.LittleEndian, uint16(bitsPerSample))
	out.WriteString("data")
	binary.Write(&out, binary.LittleEndian, uint32(dataLen))
	out.Write(e.data.Bytes())
	return out.Bytes(), nil
}

// ─── FLAC ────────────────────────────────────────────────────────────────────

// flacBlockSize is the fixed number of samples encoded per FLAC frame.
const flacBlockSize = 4096

// flacEncoder wraps mewkiz/flac for mono 16-bit input.
type flacEncoder struct {
	sampleRate int
	buf        bytes.Buffer
	enc        *flac.Encoder
	pend       []int16
}

func newFLACEncoder(sampleRate int) (*flacEncoder, error) {
	e := &flacEncoder{sampleRate: sampleRate}
	info := &meta.StreamInfo{
		BlockSizeMin:  flacBlockSize,
		BlockSizeMax:  flacBlockSize,
		SampleRate:    uint32(sampleRate),
		NChannels:     1,
		BitsPerSample: 16,
	}
	enc, err := flac.NewEncoder(&e.buf, info)
	if err != nil {
		return nil, fmt.Errorf("malgodev: create flac encoder: %w", err)
	}
	e.enc = enc
	return e, nil
}

func (e *flacEncoder) write(pcm []byte) error {
	e.pend = append(e.pend, bytesToInt16s(pcm)...)
	for len(e.pend) >= flacBlockSize {
		if err := e.writeBlock(e.pend[:flacBlockSize]); err != nil {
			return err
		}
		e.pend = e.pend[flacBlockSize:]
	}
	return nil
}

func (e *flacEncoder) writeBlock(block []int16) error {
	samples := make([]int32, len(block))
	for i, s := range block {
		samples[i] = int32(s)
	}

	subframe := &frame.Subframe{
		SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
		Samples:   samples,
		NSamples:  len(block),
	}
	f := &frame.Frame{
		Header: frame.Header{
			BlockSize:     uint16(len(block)),
			SampleRate:    uint32(e.sampleRate),
			Channels:      frame.ChannelsMono,
			BitsPerSample: 16,
		},
		Subframes: []*frame.Subframe{subframe},
	}
	if err := e.enc.WriteFrame(f); err != nil {
		return fmt.Errorf("malgodev: write flac frame: %w", err)
	}
	return nil
}

func (e *flacEncoder) finish() ([]byte, error) {
	if len(e.pend) > 0 {
		if err := e.writeBlock(e.pend); err != nil {
			return nil, err
		}
		e.pend = nil
	}
	if err := e.enc.Close(); err != nil {
		return nil, fmt.Errorf("malgodev: close flac stream: %w", err)
	}
	return e.buf.Bytes(), nil
}

// ─── Ogg Opus ────────────────────────────────────────────────────────────────

const (
	// opusFrameMs is the Opus frame duration used for encoding.
	opusFrameMs = 20

	// opusGranuleStep is the Ogg granule advance per frame. Ogg Opus
	// granules are always counted at 48 kHz regardless of the input rate.
	opusGranuleStep = 48000 * opusFrameMs / 1000

	// maxOpusBytes bounds one encoded Opus packet.
	maxOpusBytes = 4000
)

// oggOpusEncoder encodes 20 ms Opus frames and muxes them into an Ogg
// container via pion's writer, feeding it minimal RTP packets whose
// timestamps advance in 48 kHz units.
type oggOpusEncoder struct {
	frameSize int // samples per frame at the input rate

	enc  *gopus.Encoder
	buf  bytes.Buffer
	ogg  *oggwriter.OggWriter
	pend []int16
	seq  uint16
	ts   uint32
}

func newOggOpusEncoder(sampleRate int) (*oggOpusEncoder, error) {
	switch sampleRate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		return nil, capture.NewDeviceError(capture.ErrNameOverconstrained,
			fmt.Sprintf("opus cannot encode at %d Hz", sampleRate))
	}

	enc, err := gopus.NewEncoder(sampleRate, 1, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("malgodev: create opus encoder: %w", err)
	}

	e := &oggOpusEncoder{
		frameSize: sampleRate * opusFrameMs / 1000,
		enc:       enc,
	}
	ogg, err := oggwriter.NewWith(&e.buf, uint32(sampleRate), 1)
	if err != nil {
		return nil, fmt.Errorf("malgodev: create ogg writer: %w", err)
	}
	e.ogg = ogg
	return e, nil
}

func (e *oggOpusEncoder) write(pcm []byte) error {
	e.pend = append(e.pend, bytesToInt16s(pcm)...)
	for len(e.pend) >= e.frameSize {
		if err := e.writeFrame(e.pend[:e.frameSize]); err != nil {
			return err
		}
		e.pend = e.pend[e.frameSize:]
	}
	return nil
}

func (e *oggOpusEncoder) writeFrame(pcm []int16) error {
	pkt, err := e.enc.Encode(pcm, e.frameSize, maxOpusBytes)
	if err != nil {
		return fmt.Errorf("malgodev: opus encode: %w", err)
	}

	e.seq++
	e.ts += opusGranuleStep
	rtpPkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			SequenceNumber: e.seq,
			Timestamp:      e.ts,
		},
		Payload: pkt,
	}
	if err := e.ogg.WriteRTP(rtpPkt); err != nil {
		return fmt.Errorf("malgodev: mux opus frame: %w", err)
	}
	return nil
}

func (e *oggOpusEncoder) finish() ([]byte, error) {
	if len(e.pend) > 0 {
		// Zero-pad the trailing partial frame; Opus needs full frames.
		last := make([]int16, e.frameSize)
		copy(last, e.pend)
		if err := e.writeFrame(last); err != nil {
			return nil, err
		}
		e.pend = nil
	}
	if err := e.ogg.Close(); err != nil {
		return nil, fmt.Errorf("malgodev: close ogg stream: %w", err)
	}
	return e.buf.Bytes(), nil
}
