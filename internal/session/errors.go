package session

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/jyotiradityaparida25/pronunex-sub000/pkg/capture"
)

// ErrorKind is the closed taxonomy every device and environment failure is
// mapped onto. Platforms report an open-ended set of error name strings;
// everything unmapped lands in [KindUnknown] so no failure goes unhandled.
type ErrorKind int

const (
	// KindNone means no error is recorded.
	KindNone ErrorKind = iota

	// KindUnsupported: the runtime lacks the capture or recorder API.
	// Fatal for the session.
	KindUnsupported

	// KindInsecureContext: the page is not served over a trusted
	// transport. Fatal until the deployment is fixed.
	KindInsecureContext

	// KindPermissionDenied: the user declined, or an OS-level policy
	// blocks access. Recoverable via retry.
	KindPermissionDenied

	// KindDeviceNotFound: no microphone is attached.
	KindDeviceNotFound

	// KindDeviceBusy: the microphone is held by another application.
	KindDeviceBusy

	// KindConstraints: the device rejected the requested audio
	// constraints.
	KindConstraints

	// KindAborted: the platform interrupted the recording on its own.
	KindAborted

	// KindUnknown: catch-all for unmapped platform errors.
	KindUnknown
)

// MarshalJSON renders the kind by taxonomy name.
func (k ErrorKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// String returns the taxonomy name of k.
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindUnsupported:
		return "unsupported"
	case KindInsecureContext:
		return "insecure_context"
	case KindPermissionDenied:
		return "permission_denied"
	case KindDeviceNotFound:
		return "device_not_found"
	case KindDeviceBusy:
		return "device_busy"
	case KindConstraints:
		return "constraints_not_supported"
	case KindAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Retryable reports whether a retry affordance makes sense for k.
// Unsupported and insecure-context failures cannot be fixed from inside the
// session; everything else can clear on a later attempt.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindUnsupported, KindInsecureContext:
		return false
	default:
		return true
	}
}

// Message returns the human-readable text rendered for k.
func (k ErrorKind) Message() string {
	switch k {
	case KindNone:
		return ""
	case KindUnsupported:
		return "Audio recording is not supported in this browser. Please use a recent version of Chrome, Firefox, or Safari."
	case KindInsecureContext:
		return "Microphone access requires a secure (HTTPS) connection."
	case KindPermissionDenied:
		return "Microphone access was denied. Please allow microphone access and try again."
	case KindDeviceNotFound:
		return "No microphone was found. Please connect a microphone and try again."
	case KindDeviceBusy:
		return "The microphone is in use by another application. Close it and try again."
	case KindConstraints:
		return "Your microphone does not support the requested audio settings. Please try again."
	case KindAborted:
		return "Recording was interrupted. Please try again."
	default:
		return "Something went wrong while accessing the microphone. Please try again."
	}
}

// Classify maps a platform error onto the closed taxonomy. The raw platform
// error name is logged for unmapped errors so diagnostics are never lost.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var de *capture.DeviceError
	if !errors.As(err, &de) {
		slog.Warn("unclassified capture error", "err", err)
		return KindUnknown
	}
	switch de.Name {
	case capture.ErrNameNotAllowed, capture.ErrNamePermissionDenied:
		return KindPermissionDenied
	case capture.ErrNameNotFound, capture.ErrNameDevicesNotFound:
		return KindDeviceNotFound
	case capture.ErrNameNotReadable, capture.ErrNameTrackStart:
		return KindDeviceBusy
	case capture.ErrNameOverconstrained, capture.ErrNameConstraintNotSatisfied:
		return KindConstraints
	case capture.ErrNameAbort:
		return KindAborted
	case capture.ErrNameSecurity:
		return KindInsecureContext
	case capture.ErrNameNotSupported:
		return KindUnsupported
	default:
		slog.Warn("unmapped device error name", "name", de.Name, "message", de.Message)
		return KindUnknown
	}
}
