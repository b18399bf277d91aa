package adapter_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/jyotiradityaparida25/pronunex-sub000/internal/adapter"
	"github.com/jyotiradityaparida25/pronunex-sub000/internal/observe"
	"github.com/jyotiradityaparida25/pronunex-sub000/internal/session"
	"github.com/jyotiradityaparida25/pronunex-sub000/internal/uploader"
	capturemock "github.com/jyotiradityaparida25/pronunex-sub000/pkg/capture/mock"
)

// envelope mirrors adapter.Envelope with a loosely-typed snapshot so tests
// can read the wire format exactly as a browser client would.
type envelope struct {
	Type       string               `json:"type"`
	Snapshot   map[string]any       `json:"snapshot"`
	Assessment *uploader.Assessment `json:"assessment"`
	Error      string               `json:"error"`
}

// stubSubmitter implements uploader.Submitter for adapter tests.
type stubSubmitter struct {
	Result *uploader.Assessment
	Err    error

	LastRecording uploader.Recording
}

func (s *stubSubmitter) Submit(_ context.Context, rec uploader.Recording) (*uploader.Assessment, error) {
	s.LastRecording = rec
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Result, nil
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

// newTestServer wires a session, adapter, and HTTP server around the given
// mock platform and submitter.
func newTestServer(t *testing.T, platform *capturemock.Platform, sub uploader.Submitter) (*adapter.Server, *httptest.Server) {
	t.Helper()

	var srv *adapter.Server
	sess, err := session.New(platform, session.Config{
		TickInterval: 2 * time.Millisecond,
		OnTransition: func(snap session.Snapshot) {
			if srv != nil {
				srv.OnTransition(snap)
			}
		},
	})
	if err != nil {
		t.Fatalf("session.New() error: %v", err)
	}
	t.Cleanup(func() { _ = sess.Close() })

	srv = adapter.New(sess, sub, testMetrics(t))
	mux := http.NewServeMux()
	srv.Register(mux)

	hs := httptest.NewServer(mux)
	t.Cleanup(hs.Close)
	return srv, hs
}

// dial opens a WebSocket client against hs and returns the connection.
func dial(t *testing.T, hs *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(hs.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

// readUntil reads envelopes until pred holds, failing the test on timeout.
func readUntil(t *testing.T, conn *websocket.Conn, what string, pred func(envelope) bool) envelope {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithDeadline(context.Background(), deadline)
		var env envelope
		err := wsjson.Read(ctx, conn, &env)
		cancel()
		if err != nil {
			t.Fatalf("read while waiting for %s: %v", what, err)
		}
		if pred(env) {
			return env
		}
	}
	t.Fatalf("timed out waiting for %s", what)
	return envelope{}
}

func send(t *testing.T, conn *websocket.Conn, in adapter.Intent) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, conn, in); err != nil {
		t.Fatalf("write intent: %v", err)
	}
}

func TestInitialSnapshotOnConnect(t *testing.T) {
	t.Parallel()

	_, hs := newTestServer(t, &capturemock.Platform{}, nil)
	conn := dial(t, hs)

	env := readUntil(t, conn, "initial snapshot", func(e envelope) bool {
		return e.Type == adapter.TypeSnapshot
	})
	if env.Snapshot["state"] != "idle" {
		t.Errorf("initial state = %v, want idle", env.Snapshot["state"])
	}
	if env.Snapshot["has_artifact"] != false {
		t.Errorf("has_artifact = %v, want false", env.Snapshot["has_artifact"])
	}
}

func TestStartStopRoundTrip(t *testing.T) {
	t.Parallel()

	platform := &capturemock.Platform{
		RecorderTemplate: &capturemock.Recorder{FlushChunk: []byte("clip-bytes")},
	}
	_, hs := newTestServer(t, platform, nil)
	conn := dial(t, hs)

	readUntil(t, conn, "initial snapshot", func(e envelope) bool {
		return e.Type == adapter.TypeSnapshot
	})

	send(t, conn, adapter.Intent{Intent: adapter.IntentStart})
	readUntil(t, conn, "recording state", func(e envelope) bool {
		return e.Type == adapter.TypeSnapshot && e.Snapshot["state"] == "recording"
	})

	send(t, conn, adapter.Intent{Intent: adapter.IntentStop})
	env := readUntil(t, conn, "finished artifact", func(e envelope) bool {
		return e.Type == adapter.TypeSnapshot &&
			e.Snapshot["state"] == "idle" && e.Snapshot["has_artifact"] == true
	})

	artifactURL, _ := env.Snapshot["artifact_url"].(string)
	if artifactURL == "" {
		t.Fatal("finished snapshot carries no artifact URL")
	}

	// The playback endpoint must serve the exact encoded clip.
	resp, err := http.Get(hs.URL + "/artifact?u=" + artifactURL)
	if err != nil {
		t.Fatalf("GET artifact: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("artifact status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "clip-bytes" {
		t.Errorf("artifact body = %q, want clip-bytes", body)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "audio/") {
		t.Errorf("artifact Content-Type = %q, want audio/*", ct)
	}
}

func TestSubmitIntentReturnsAssessment(t *testing.T) {
	t.Parallel()

	platform := &capturemock.Platform{
		RecorderTemplate: &capturemock.Recorder{FlushChunk: []byte("clip")},
	}
	sub := &stubSubmitter{Result: &uploader.Assessment{AttemptID: 9, OverallScore: 0.77}}
	_, hs := newTestServer(t, platform, sub)
	conn := dial(t, hs)

	send(t, conn, adapter.Intent{Intent: adapter.IntentStart})
	readUntil(t, conn, "recording state", func(e envelope) bool {
		return e.Type == adapter.TypeSnapshot && e.Snapshot["state"] == "recording"
	})
	send(t, conn, adapter.Intent{Intent: adapter.IntentStop})
	readUntil(t, conn, "finished artifact", func(e envelope) bool {
		return e.Type == adapter.TypeSnapshot && e.Snapshot["has_artifact"] == true
	})

	send(t, conn, adapter.Intent{Intent: adapter.IntentSubmit, SentenceID: 31})
	env := readUntil(t, conn, "assessment", func(e envelope) bool {
		return e.Type == adapter.TypeAssessment
	})

	if env.Assessment == nil || env.Assessment.AttemptID != 9 {
		t.Fatalf("assessment = %+v, want attempt 9", env.Assessment)
	}
	if sub.LastRecording.SentenceID != 31 {
		t.Errorf("submitted sentence = %d, want 31", sub.LastRecording.SentenceID)
	}
	if string(sub.LastRecording.Audio) != "clip" {
		t.Errorf("submitted audio = %q", sub.LastRecording.Audio)
	}
}

func TestSubmitWithoutArtifactFails(t *testing.T) {
	t.Parallel()

	_, hs := newTestServer(t, &capturemock.Platform{}, &stubSubmitter{})
	conn := dial(t, hs)

	send(t, conn, adapter.Intent{Intent: adapter.IntentSubmit, SentenceID: 1})
	env := readUntil(t, conn, "error envelope", func(e envelope) bool {
		return e.Type == adapter.TypeError
	})
	if !strings.Contains(env.Error, "no artifact") {
		t.Errorf("error = %q, want artifact complaint", env.Error)
	}
}

func TestSubmitterFailureReachesClient(t *testing.T) {
	t.Parallel()

	platform := &capturemock.Platform{
		RecorderTemplate: &capturemock.Recorder{FlushChunk: []byte("clip")},
	}
	sub := &stubSubmitter{Err: errors.New("backend unreachable")}
	_, hs := newTestServer(t, platform, sub)
	conn := dial(t, hs)

	send(t, conn, adapter.Intent{Intent: adapter.IntentStart})
	readUntil(t, conn, "recording state", func(e envelope) bool {
		return e.Type == adapter.TypeSnapshot && e.Snapshot["state"] == "recording"
	})
	send(t, conn, adapter.Intent{Intent: adapter.IntentStop})
	readUntil(t, conn, "finished artifact", func(e envelope) bool {
		return e.Type == adapter.TypeSnapshot && e.Snapshot["has_artifact"] == true
	})

	send(t, conn, adapter.Intent{Intent: adapter.IntentSubmit, SentenceID: 1})
	env := readUntil(t, conn, "error envelope", func(e envelope) bool {
		return e.Type == adapter.TypeError
	})
	if !strings.Contains(env.Error, "backend unreachable") {
		t.Errorf("error = %q", env.Error)
	}
}

func TestUnknownIntent(t *testing.T) {
	t.Parallel()

	_, hs := newTestServer(t, &capturemock.Platform{}, nil)
	conn := dial(t, hs)

	send(t, conn, adapter.Intent{Intent: "rewind"})
	env := readUntil(t, conn, "error envelope", func(e envelope) bool {
		return e.Type == adapter.TypeError
	})
	if !strings.Contains(env.Error, "rewind") {
		t.Errorf("error = %q, want mention of the unknown intent", env.Error)
	}
}

func TestArtifactEndpointRejectsUnknownURL(t *testing.T) {
	t.Parallel()

	_, hs := newTestServer(t, &capturemock.Platform{}, nil)

	resp, err := http.Get(hs.URL + "/artifact?u=mem://artifact/not-issued")
	if err != nil {
		t.Fatalf("GET artifact: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}

	resp2, err := http.Get(hs.URL + "/artifact")
	if err != nil {
		t.Fatalf("GET artifact: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Errorf("status without u = %d, want 400", resp2.StatusCode)
	}
}

func TestStaleSnapshotsAreDropped(t *testing.T) {
	t.Parallel()

	srv, hs := newTestServer(t, &capturemock.Platform{}, nil)
	conn := dial(t, hs)
	readUntil(t, conn, "initial snapshot", func(e envelope) bool {
		return e.Type == adapter.TypeSnapshot
	})

	// Snapshots publish outside the session lock, so an older one can reach
	// the adapter after a newer one. The newer broadcast must win.
	srv.OnTransition(session.Snapshot{Seq: 10, State: session.StateRecording})
	srv.OnTransition(session.Snapshot{Seq: 5, State: session.StateDenied})
	srv.OnTransition(session.Snapshot{Seq: 11, State: session.StateProcessing})

	env := readUntil(t, conn, "recording snapshot", func(e envelope) bool {
		return e.Type == adapter.TypeSnapshot && e.Snapshot["state"] != "idle"
	})
	if env.Snapshot["state"] != "recording" {
		t.Fatalf("first broadcast state = %v, want recording", env.Snapshot["state"])
	}

	env = readUntil(t, conn, "next snapshot", func(e envelope) bool {
		return e.Type == adapter.TypeSnapshot
	})
	if env.Snapshot["state"] != "processing" {
		t.Errorf("state after stale broadcast = %v, want processing (stale snapshot delivered)", env.Snapshot["state"])
	}
}

func TestClientCountTracksConnections(t *testing.T) {
	t.Parallel()

	srv, hs := newTestServer(t, &capturemock.Platform{}, nil)

	conn := dial(t, hs)
	readUntil(t, conn, "initial snapshot", func(e envelope) bool {
		return e.Type == adapter.TypeSnapshot
	})
	if got := srv.ClientCount(); got != 1 {
		t.Errorf("ClientCount = %d, want 1", got)
	}

	conn.Close(websocket.StatusNormalClosure, "")
	deadline := time.Now().Add(2 * time.Second)
	for srv.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := srv.ClientCount(); got != 0 {
		t.Errorf("ClientCount after close = %d, want 0", got)
	}
}
