package session_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jyotiradityaparida25/pronunex-sub000/internal/session"
	"github.com/jyotiradityaparida25/pronunex-sub000/pkg/capture"
)

func TestClassifyCoversAllPlatformNames(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		want session.ErrorKind
	}{
		{capture.ErrNameNotAllowed, session.KindPermissionDenied},
		{capture.ErrNamePermissionDenied, session.KindPermissionDenied},
		{capture.ErrNameNotFound, session.KindDeviceNotFound},
		{capture.ErrNameDevicesNotFound, session.KindDeviceNotFound},
		{capture.ErrNameNotReadable, session.KindDeviceBusy},
		{capture.ErrNameTrackStart, session.KindDeviceBusy},
		{capture.ErrNameOverconstrained, session.KindConstraints},
		{capture.ErrNameConstraintNotSatisfied, session.KindConstraints},
		{capture.ErrNameAbort, session.KindAborted},
		{capture.ErrNameSecurity, session.KindInsecureContext},
		{capture.ErrNameNotSupported, session.KindUnsupported},
		{"FutureVendorError", session.KindUnknown},
	}
	for _, tc := range cases {
		err := capture.NewDeviceError(tc.name, "detail")
		if got := session.Classify(err); got != tc.want {
			t.Errorf("Classify(%s) = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestClassifyWrappedDeviceError(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("acquire device: %w",
		capture.NewDeviceError(capture.ErrNameNotFound, "no input devices"))
	if got := session.Classify(err); got != session.KindDeviceNotFound {
		t.Errorf("Classify(wrapped) = %s, want device_not_found", got)
	}
}

func TestClassifyNonDeviceError(t *testing.T) {
	t.Parallel()

	if got := session.Classify(errors.New("plain failure")); got != session.KindUnknown {
		t.Errorf("Classify(plain) = %s, want unknown", got)
	}
	if got := session.Classify(nil); got != session.KindNone {
		t.Errorf("Classify(nil) = %s, want none", got)
	}
}

func TestRetryableAndMessages(t *testing.T) {
	t.Parallel()

	fatal := []session.ErrorKind{session.KindUnsupported, session.KindInsecureContext}
	for _, k := range fatal {
		if k.Retryable() {
			t.Errorf("%s must not be retryable", k)
		}
	}

	recoverable := []session.ErrorKind{
		session.KindPermissionDenied,
		session.KindDeviceNotFound,
		session.KindDeviceBusy,
		session.KindConstraints,
		session.KindAborted,
		session.KindUnknown,
	}
	for _, k := range recoverable {
		if !k.Retryable() {
			t.Errorf("%s must be retryable", k)
		}
		if k.Message() == "" {
			t.Errorf("%s has no user-facing message", k)
		}
	}

	if session.KindNone.Message() != "" {
		t.Error("KindNone must render no message")
	}
}
