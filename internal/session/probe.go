package session

import (
	"net"
	"net/url"
	"strings"

	"github.com/jyotiradityaparida25/pronunex-sub000/pkg/capture"
)

// CaptureSupported reports whether the platform exposes both a device
// acquisition API and a stream recorder API. Pure check, no side effects.
func CaptureSupported(p capture.Platform) bool {
	if p == nil {
		return false
	}
	caps := p.Capabilities()
	return caps.MediaRequest && caps.Recorder
}

// SecureOrigin reports whether the given origin is served over a trusted
// transport or is a recognised local-development origin. The rules follow
// the "potentially trustworthy origin" definition: https/wss/file schemes,
// localhost and its subdomains, and loopback addresses.
//
// An empty origin is treated as trusted: it means the session runs inside a
// native host application rather than a page.
func SecureOrigin(origin string) bool {
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "https", "wss", "file":
		return true
	case "http", "ws":
		return trustedLocalHost(u.Hostname())
	default:
		return false
	}
}

// trustedLocalHost reports whether host is a loopback address or localhost
// name. Numeric hosts must parse as an IP before the loopback check, so DNS
// names that merely look like loopback ("127.evil.com") do not qualify.
func trustedLocalHost(host string) bool {
	host = strings.ToLower(host)
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
