package session

import "github.com/jyotiradityaparida25/pronunex-sub000/pkg/capture"

// Negotiate returns the first format in preferred that support reports as
// encodable. When nothing in the list is supported it falls back to
// [capture.FormatWAV], which every platform recorder can produce.
//
// Negotiation is deterministic given the platform's support table and is
// performed once per recording attempt — support is deliberately not cached
// across attempts.
func Negotiate(support func(capture.Format) bool, preferred []capture.Format) capture.Format {
	for _, f := range preferred {
		if support(f) {
			return f
		}
	}
	return capture.FormatWAV
}
