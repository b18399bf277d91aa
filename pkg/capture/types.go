package capture

// Format identifies an audio container/codec combination using MIME-style
// identifiers, which is the vocabulary platform recorders negotiate in.
type Format string

const (
	// FormatOpus is the general-purpose compressed format, preferred for
	// upload size.
	FormatOpus Format = "audio/webm;codecs=opus"

	// FormatOggOpus is Opus in an Ogg container, the compressed format
	// native hosts produce instead of WebM.
	FormatOggOpus Format = "audio/ogg;codecs=opus"

	// FormatFLAC is the losslessly-wrapped fallback.
	FormatFLAC Format = "audio/flac"

	// FormatWAV is the last-resort format every platform can produce.
	FormatWAV Format = "audio/wav"
)

// MIME returns the plain media type of f, without codec parameters.
func (f Format) MIME() string {
	for i := 0; i < len(f); i++ {
		if f[i] == ';' {
			return string(f[:i])
		}
	}
	return string(f)
}

// DefaultFormats returns the standard encoding preference order: compressed
// first, lossless fallback, then the universally supported last resort.
func DefaultFormats() []Format {
	return []Format{FormatOpus, FormatFLAC, FormatWAV}
}
