// Package render is the HTTP client for the Render Service, the external
// collaborator that composites media, hook text and music into one artifact.
//
// The client makes exactly one request per call and never retries. The
// service is not assumed to be idempotent.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/roach88/clipforge/internal/clip"
	"github.com/roach88/clipforge/internal/plan"
)

// DefaultTimeout bounds a single render round trip.
const DefaultTimeout = 5 * time.Minute

// maxErrorBody caps how much of a failed response is kept for diagnostics.
const maxErrorBody = 64 << 10

// Hook is the text overlay of a request.
type Hook struct {
	Text     string        `json:"text"`
	Style    string        `json:"style"`
	Position plan.Position `json:"position"`
	Offset   plan.Offset   `json:"offset"`
}

// MediaPart is one element of the ordered media sequence.
type MediaPart struct {
	Locator string    `json:"locator"`
	Kind    clip.Kind `json:"kind"`
}

// Request is one render call. Hook is nil when the job draws no text.
type Request struct {
	JobID        string      `json:"jobId,omitempty"`
	Hook         *Hook       `json:"hook,omitempty"`
	MediaParts   []MediaPart `json:"mediaParts"`
	Overlay      *MediaPart  `json:"overlay,omitempty"`
	MusicLocator string      `json:"musicLocator"`
	Mode         plan.Mode   `json:"mode"`
}

// Response is a successful render result.
type Response struct {
	ArtifactLocator string     `json:"artifactLocator"`
	Expiry          *time.Time `json:"expiry,omitempty"`
}

// NewRequest builds the request for job. media, overlay and music must
// already be durable locators the service can dereference.
func NewRequest(job plan.Job, media []clip.ClipRef, overlay *clip.ClipRef, music string) Request {
	req := Request{
		JobID:        job.ID(),
		MediaParts:   make([]MediaPart, len(media)),
		MusicLocator: music,
		Mode:         job.Mode,
	}
	for i, m := range media {
		req.MediaParts[i] = MediaPart{Locator: m.Locator, Kind: m.Kind}
	}
	if overlay != nil {
		req.Overlay = &MediaPart{Locator: overlay.Locator, Kind: overlay.Kind}
	}
	if job.HasHook() {
		req.Hook = &Hook{
			Text:     job.HookText,
			Style:    job.Style.Style,
			Position: job.Style.Position,
			Offset:   job.Style.Offset,
		}
	}
	return req
}

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("render service returned %d", e.StatusCode)
	}
	return fmt.Sprintf("render service returned %d: %s", e.StatusCode, body)
}

// IsStatusError reports whether err carries a non-2xx service response.
func IsStatusError(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}

// Client calls the Render Service over HTTP.
type Client struct {
	endpoint string
	http     *http.Client
	timeout  time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. The client is never
// modified; WithTimeout applies to a copy of it.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout, regardless of option order.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewClient returns a client posting to baseURL + "/render".
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		endpoint: strings.TrimRight(baseURL, "/") + "/render",
		http:     &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.http
		hc.Timeout = c.timeout
		c.http = &hc
	}
	return c
}

// Render sends req and waits for the result.
func (c *Client) Render(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("encode render request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("build render request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if req.JobID != "" {
		httpReq.Header.Set("X-Clipforge-Job", req.JobID)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("render request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return Response{}, &StatusError{StatusCode: resp.StatusCode, Body: string(msg)}
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, fmt.Errorf("decode render response: %w", err)
	}
	if strings.TrimSpace(out.ArtifactLocator) == "" {
		return Response{}, fmt.Errorf("render response missing artifactLocator")
	}
	return out, nil
}
