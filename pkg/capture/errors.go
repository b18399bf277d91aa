package capture

// Well-known device error names. Platforms report failures as loosely-typed
// name strings; this is the vocabulary adapters are expected to use. Several
// conditions have two spellings because real device layers disagree on the
// name for the same failure.
const (
	// ErrNameNotAllowed and ErrNamePermissionDenied: the user (or an OS
	// policy) declined microphone access.
	ErrNameNotAllowed       = "NotAllowedError"
	ErrNamePermissionDenied = "PermissionDeniedError"

	// ErrNameNotFound and ErrNameDevicesNotFound: no capture device exists.
	ErrNameNotFound        = "NotFoundError"
	ErrNameDevicesNotFound = "DevicesNotFoundError"

	// ErrNameNotReadable and ErrNameTrackStart: the device exists but is
	// held by another application or failed to start.
	ErrNameNotReadable = "NotReadableError"
	ErrNameTrackStart  = "TrackStartError"

	// ErrNameOverconstrained and ErrNameConstraintNotSatisfied: the device
	// rejected the requested constraints.
	ErrNameOverconstrained        = "OverconstrainedError"
	ErrNameConstraintNotSatisfied = "ConstraintNotSatisfiedError"

	// ErrNameAbort: the platform interrupted capture on its own (device
	// unplugged mid-recording, OS revoked the stream).
	ErrNameAbort = "AbortError"

	// ErrNameSecurity: the execution context does not permit capture.
	ErrNameSecurity = "SecurityError"

	// ErrNameNotSupported: the requested recorder format or operation is
	// not available on this platform.
	ErrNameNotSupported = "NotSupportedError"
)

// DeviceError is the error type platform adapters report for device and
// recorder failures. Name carries the platform's error name string so the
// session layer can map it onto its closed taxonomy; Message is free-text
// diagnostic detail.
type DeviceError struct {
	Name    string
	Message string
}

// Error implements the error interface.
func (e *DeviceError) Error() string {
	if e.Message == "" {
		return e.Name
	}
	return e.Name + ": " + e.Message
}

// NewDeviceError builds a [DeviceError] from a platform error name and
// diagnostic message.
func NewDeviceError(name, message string) *DeviceError {
	return &DeviceError{Name: name, Message: message}
}
