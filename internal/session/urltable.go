package session

import (
	"bytes"
	"sync"

	"github.com/google/uuid"
)

// urlScheme prefixes every object URL issued by a [urlTable].
const urlScheme = "mem://artifact/"

// urlTable issues revocable in-memory object URLs for artifact blobs. Each
// session owns exactly one table, so independent sessions (and tests) never
// share URL state. Revoking on artifact replacement is what keeps the table
// from growing without bound.
type urlTable struct {
	mu      sync.Mutex
	entries map[string]urlEntry
}

type urlEntry struct {
	blob []byte
	mime string
}

// create registers blob under a fresh object URL and returns the URL.
func (t *urlTable) create(blob []byte, mime string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.entries == nil {
		t.entries = make(map[string]urlEntry)
	}
	u := urlScheme + uuid.NewString()
	t.entries[u] = urlEntry{blob: blob, mime: mime}
	return u
}

// revoke releases the blob registered under u. Unknown URLs are ignored.
func (t *urlTable) revoke(u string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, u)
}

// resolve returns the blob and media type registered under u. The blob is a
// copy, so callers cannot corrupt the registered artifact.
func (t *urlTable) resolve(u string) (blob []byte, mime string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[u]
	return bytes.Clone(e.blob), e.mime, ok
}

// size returns the number of live entries. Used by tests to verify URLs are
// released when artifacts are replaced.
func (t *urlTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
