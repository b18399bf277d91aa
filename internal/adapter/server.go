// Package adapter exposes a capture session to UI clients.
//
// Clients connect over WebSocket, receive the current session snapshot
// immediately, then get a fresh snapshot pushed on every observable
// transition. Client-to-engine traffic is a small set of JSON intents
// (request permission, start, stop, cancel, retry, submit). Finished
// artifacts are served for playback over plain HTTP using the object URL
// carried in the snapshot.
package adapter

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/jyotiradityaparida25/pronunex-sub000/internal/observe"
	"github.com/jyotiradityaparida25/pronunex-sub000/internal/session"
	"github.com/jyotiradityaparida25/pronunex-sub000/internal/uploader"
)

// Intent names accepted over the WebSocket.
const (
	IntentRequestPermission = "request_permission"
	IntentStart             = "start"
	IntentStop              = "stop"
	IntentCancel            = "cancel"
	IntentRetry             = "retry"
	IntentSubmit            = "submit"
)

// Intent is one client command.
type Intent struct {
	Intent string `json:"intent"`

	// SentenceID accompanies the submit intent and names the reference
	// sentence the clip should be scored against.
	SentenceID int64 `json:"sentence_id,omitempty"`
}

// Envelope is one server-to-client message.
type Envelope struct {
	Type       string               `json:"type"`
	Snapshot   *session.Snapshot    `json:"snapshot,omitempty"`
	Assessment *uploader.Assessment `json:"assessment,omitempty"`
	Error      string               `json:"error,omitempty"`
}

// Envelope types.
const (
	TypeSnapshot   = "snapshot"
	TypeAssessment = "assessment"
	TypeError      = "error"
)

// broadcastTimeout bounds one snapshot write per client during a broadcast.
const broadcastTimeout = 5 * time.Second

// client is one connected WebSocket peer. Writes to the connection are
// serialised through writeMu; coder/websocket forbids concurrent writers.
type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *client) send(ctx context.Context, env Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsjson.Write(ctx, c.conn, env)
}

// Server fans session snapshots out to connected clients and translates
// their intents into session calls.
type Server struct {
	session *session.Session
	submit  uploader.Submitter
	metrics *observe.Metrics

	mu      sync.Mutex
	clients map[*client]struct{}

	// lastSeq is the newest snapshot sequence broadcast so far. Snapshots
	// are published outside the session lock, so a slower transition can
	// arrive after a newer one; those are dropped.
	lastSeq uint64
}

// New creates a [Server] for sess. The submitter may be nil when no
// assessment backend is configured; submit intents then fail with an error
// envelope instead of an upload.
func New(sess *session.Session, submit uploader.Submitter, m *observe.Metrics) *Server {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Server{
		session: sess,
		submit:  submit,
		metrics: m,
		clients: make(map[*client]struct{}),
	}
}

// Register adds the adapter routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /artifact", s.handleArtifact)
}

// OnTransition broadcasts snap to every connected client, dropping snapshots
// that arrive after a newer one has already gone out. Wire this into
// [session.Config.OnTransition].
func (s *Server) OnTransition(snap session.Snapshot) {
	s.mu.Lock()
	if snap.Seq < s.lastSeq {
		s.mu.Unlock()
		return
	}
	s.lastSeq = snap.Seq
	peers := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		peers = append(peers, c)
	}
	s.mu.Unlock()

	env := Envelope{Type: TypeSnapshot, Snapshot: &snap}
	for _, c := range peers {
		// A slow or dead peer must not wedge the session's notify path.
		ctx, cancel := context.WithTimeout(context.Background(), broadcastTimeout)
		err := c.send(ctx, env)
		cancel()
		if err != nil {
			s.drop(c, websocket.StatusAbnormalClosure, "write failed")
		}
	}
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		observe.Logger(r.Context()).Warn("websocket accept failed", "error", err)
		return
	}

	c := &client{conn: conn}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	s.metrics.ActiveClients.Add(r.Context(), 1)
	defer func() {
		s.drop(c, websocket.StatusNormalClosure, "")
		s.metrics.ActiveClients.Add(context.Background(), -1)
	}()

	ctx := r.Context()

	// Late joiners need the current state before any transition fires.
	snap := s.session.Snapshot()
	if err := c.send(ctx, Envelope{Type: TypeSnapshot, Snapshot: &snap}); err != nil {
		return
	}

	for {
		var in Intent
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			return
		}
		s.dispatch(ctx, c, in)
	}
}

// dispatch routes one intent. Calls that can block on the platform's
// permission prompt run in their own goroutine so the read loop stays
// responsive to a cancel intent.
func (s *Server) dispatch(ctx context.Context, c *client, in Intent) {
	switch in.Intent {
	case IntentRequestPermission:
		go func() {
			if err := s.session.RequestPermission(context.Background()); err != nil {
				s.sendError(ctx, c, err)
			}
		}()
	case IntentStart:
		go func() {
			if err := s.session.StartRecording(context.Background()); err != nil {
				s.sendError(ctx, c, err)
			}
		}()
	case IntentStop:
		s.session.StopRecording()
	case IntentCancel:
		s.session.CancelRecording()
	case IntentRetry:
		s.session.Retry()
	case IntentSubmit:
		go s.handleSubmit(ctx, c, in.SentenceID)
	default:
		s.sendError(ctx, c, errors.New("unknown intent "+in.Intent))
	}
}

func (s *Server) handleSubmit(ctx context.Context, c *client, sentenceID int64) {
	blob, mime, ok := s.session.Artifact()
	if !ok {
		s.sendError(ctx, c, errors.New("no artifact to submit"))
		return
	}
	if s.submit == nil {
		s.sendError(ctx, c, uploader.ErrDisabled)
		return
	}

	res, err := s.submit.Submit(ctx, uploader.Recording{
		SentenceID: sentenceID,
		Audio:      blob,
		MIME:       mime,
	})
	if err != nil {
		s.sendError(ctx, c, err)
		return
	}
	if err := c.send(ctx, Envelope{Type: TypeAssessment, Assessment: res}); err != nil {
		s.drop(c, websocket.StatusAbnormalClosure, "write failed")
	}
}

func (s *Server) sendError(ctx context.Context, c *client, err error) {
	if sendErr := c.send(ctx, Envelope{Type: TypeError, Error: err.Error()}); sendErr != nil {
		s.drop(c, websocket.StatusAbnormalClosure, "write failed")
	}
}

func (s *Server) drop(c *client, code websocket.StatusCode, reason string) {
	s.mu.Lock()
	_, present := s.clients[c]
	delete(s.clients, c)
	s.mu.Unlock()
	if present {
		c.conn.Close(code, reason)
	}
}

// handleArtifact serves a finished clip for playback. The object URL issued
// in the snapshot is passed as the "u" query parameter.
func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	u := r.URL.Query().Get("u")
	if u == "" {
		http.Error(w, "missing u parameter", http.StatusBadRequest)
		return
	}
	blob, mime, ok := s.session.ResolveArtifactURL(u)
	if !ok {
		http.Error(w, "unknown or revoked artifact", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(blob)
}
