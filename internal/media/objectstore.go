package media

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ObjectStore accepts a raw blob under a destination name and returns a
// publicly resolvable locator for it.
type ObjectStore interface {
	Put(ctx context.Context, name, contentType string, body io.Reader) (string, error)
}

// HTTPStore uploads blobs with PUT {baseURL}/{name}.
//
// The public locator is taken from a JSON {"url": ...} response body when the
// store returns one, otherwise it is publicURL/name.
type HTTPStore struct {
	baseURL   string
	publicURL string
	http      *http.Client
}

// NewHTTPStore returns a store client. publicURL defaults to baseURL.
func NewHTTPStore(baseURL, publicURL string, timeout time.Duration) *HTTPStore {
	if publicURL == "" {
		publicURL = baseURL
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &HTTPStore{
		baseURL:   strings.TrimRight(baseURL, "/"),
		publicURL: strings.TrimRight(publicURL, "/"),
		http:      &http.Client{Timeout: timeout},
	}
}

type putResponse struct {
	URL string `json:"url"`
}

// Put uploads body and returns its public locator.
func (s *HTTPStore) Put(ctx context.Context, name, contentType string, body io.Reader) (string, error) {
	name = strings.TrimLeft(name, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.baseURL+"/"+name, body)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("upload %s: object store returned %d: %s", name, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out putResponse
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", fmt.Errorf("decode upload response: %w", err)
		}
	}
	if out.URL != "" {
		return out.URL, nil
	}
	return s.publicURL + "/" + name, nil
}
