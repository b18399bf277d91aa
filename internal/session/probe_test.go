package session_test

import (
	"testing"

	"github.com/jyotiradityaparida25/pronunex-sub000/internal/session"
	"github.com/jyotiradityaparida25/pronunex-sub000/pkg/capture"
	capturemock "github.com/jyotiradityaparida25/pronunex-sub000/pkg/capture/mock"
)

func TestCaptureSupported(t *testing.T) {
	t.Parallel()

	if session.CaptureSupported(nil) {
		t.Error("nil platform reported as supported")
	}
	if session.CaptureSupported(&capturemock.Platform{NoCapabilities: true}) {
		t.Error("platform without capabilities reported as supported")
	}
	if session.CaptureSupported(&capturemock.Platform{
		CapabilitiesResult: capture.Capabilities{MediaRequest: true},
	}) {
		t.Error("platform without a recorder API reported as supported")
	}
	if !session.CaptureSupported(&capturemock.Platform{}) {
		t.Error("fully capable platform reported as unsupported")
	}
}

func TestSecureOrigin(t *testing.T) {
	t.Parallel()

	cases := []struct {
		origin string
		want   bool
	}{
		{"", true}, // native host
		{"https://pronunex.example.com", true},
		{"https://localhost:3000", true},
		{"http://localhost:3000", true},
		{"http://app.localhost", true},
		{"http://127.0.0.1:8080", true},
		{"http://127.255.255.254", true},
		{"http://[::1]:8080", true},
		{"file:///home/user/index.html", true},
		{"http://pronunex.example.com", false},
		{"http://192.168.1.10", false},
		{"http://127.evil.com", false},
		{"http://localhost.evil.com", false},
		{"ftp://example.com", false},
		{"://not a url", false},
	}
	for _, tc := range cases {
		if got := session.SecureOrigin(tc.origin); got != tc.want {
			t.Errorf("SecureOrigin(%q) = %v, want %v", tc.origin, got, tc.want)
		}
	}
}
