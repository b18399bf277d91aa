// Package uploader submits finished capture artifacts to the pronunciation
// assessment backend and decodes the returned scores.
//
// The backend exposes a single multipart endpoint, POST
// /api/v1/practice/assess/, taking the reference sentence ID and the recorded
// audio clip. Scoring happens entirely server side; this package only moves
// bytes and parses the result.
package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/jyotiradityaparida25/pronunex-sub000/internal/observe"
)

// assessPath is the assessment endpoint relative to the configured base URL.
const assessPath = "/api/v1/practice/assess/"

// ErrDisabled is returned by [Client.Submit] when no backend URL is
// configured. Callers should treat this as "submission unavailable", not as a
// transport failure.
var ErrDisabled = errors.New("uploader: no backend configured")

// PhonemeScore is one per-phoneme similarity score from the assessment.
type PhonemeScore struct {
	Phoneme string  `json:"phoneme"`
	Score   float64 `json:"score"`
}

// Assessment is the scoring result for one submitted clip.
type Assessment struct {
	// AttemptID identifies the stored attempt on the backend.
	AttemptID int64 `json:"attempt_id"`

	// OverallScore is the aggregate pronunciation score in [0, 1].
	OverallScore float64 `json:"overall_score"`

	// FluencyScore is nil when the clip was too short to rate fluency.
	FluencyScore *float64 `json:"fluency_score"`

	// PhonemeScores lists per-phoneme results in utterance order.
	PhonemeScores []PhonemeScore `json:"phoneme_scores"`

	// WeakPhonemes lists the ARPAbet symbols that scored below the
	// backend's weakness threshold.
	WeakPhonemes []string `json:"weak_phonemes"`
}

// Recording is a finished artifact queued for assessment.
type Recording struct {
	// SentenceID is the reference sentence the learner was reading.
	SentenceID int64

	// Audio is the encoded clip.
	Audio []byte

	// MIME is the container type of Audio (e.g. "audio/webm").
	MIME string
}

// Submitter sends a recording for assessment. Implementations must be safe
// for concurrent use.
type Submitter interface {
	Submit(ctx context.Context, rec Recording) (*Assessment, error)
}

// Client is the HTTP [Submitter] implementation.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	metrics *observe.Metrics
}

// New creates a [Client] for the backend at baseURL. An empty baseURL yields
// a client whose Submit always returns [ErrDisabled]. The token, when
// non-empty, is sent as a bearer token. A zero timeout defaults to 30s.
func New(baseURL, token string, timeout time.Duration, m *observe.Metrics) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
		metrics: m,
	}
}

// Submit uploads rec as a multipart form and returns the decoded assessment.
func (c *Client) Submit(ctx context.Context, rec Recording) (*Assessment, error) {
	if c.baseURL == "" {
		return nil, ErrDisabled
	}

	ctx, span := c.startSpan(ctx)
	defer span.End()

	start := time.Now()
	res, err := c.post(ctx, rec)
	c.metrics.SubmissionDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		c.metrics.RecordSubmission(ctx, "transport_error")
		return nil, err
	}
	c.metrics.RecordSubmission(ctx, "ok")

	observe.Logger(ctx).Info("artifact assessed",
		"sentence_id", rec.SentenceID,
		"bytes", len(rec.Audio),
		"overall_score", res.OverallScore,
	)
	return res, nil
}

func (c *Client) startSpan(ctx context.Context) (context.Context, trace.Span) {
	return observe.StartSpan(ctx, "uploader.submit",
		trace.WithSpanKind(trace.SpanKindClient))
}

func (c *Client) post(ctx context.Context, rec Recording) (*Assessment, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := mw.WriteField("sentence_id", strconv.FormatInt(rec.SentenceID, 10)); err != nil {
		return nil, fmt.Errorf("uploader: write field: %w", err)
	}

	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="audio"; filename=%q`, fileName(rec.MIME)))
	hdr.Set("Content-Type", rec.MIME)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return nil, fmt.Errorf("uploader: create part: %w", err)
	}
	if _, err := part.Write(rec.Audio); err != nil {
		return nil, fmt.Errorf("uploader: write audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("uploader: finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+assessPath, &body)
	if err != nil {
		return nil, fmt.Errorf("uploader: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("uploader: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("uploader: backend returned %d: %s", resp.StatusCode, msg)
	}

	var out Assessment
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("uploader: decode response: %w", err)
	}
	return &out, nil
}

// fileName picks an upload filename whose extension matches the container.
func fileName(mime string) string {
	switch mime {
	case "audio/webm":
		return "clip.webm"
	case "audio/ogg":
		return "clip.ogg"
	case "audio/flac":
		return "clip.flac"
	case "audio/wav":
		return "clip.wav"
	default:
		return "clip.bin"
	}
}
