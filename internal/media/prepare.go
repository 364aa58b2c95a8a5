// Package media converts transient clip references into durable locators
// the Render Service can dereference on its own.
//
// Locator forms:
//   - http:// and https:// URLs are already durable and pass through
//   - data: URLs are decoded and uploaded
//   - blob: references resolve only if their bytes were registered, e.g.
//     through the server's POST /blobs
//   - file:// URLs and plain paths are read from disk and uploaded
package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/clipforge/internal/clip"
)

// ErrUnresolvedBlob is returned for a blob: reference with no registered bytes.
var ErrUnresolvedBlob = errors.New("blob reference is not resolvable outside its session")

type blob struct {
	data        []byte
	contentType string
}

// Preparer uploads transient media once and remembers the durable locator.
// Safe for concurrent use.
type Preparer struct {
	store  ObjectStore
	prefix string

	mu       sync.Mutex
	prepared map[string]string
	blobs    map[string]blob

	newName func() string
}

// NewPreparer returns a Preparer that uploads under prefix.
func NewPreparer(store ObjectStore, prefix string) *Preparer {
	return &Preparer{
		store:    store,
		prefix:   strings.Trim(prefix, "/"),
		prepared: make(map[string]string),
		blobs:    make(map[string]blob),
		newName:  func() string { return uuid.Must(uuid.NewV7()).String() },
	}
}

// RegisterBlob makes the bytes behind a blob: locator available.
func (p *Preparer) RegisterBlob(locator string, data []byte, contentType string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blobs[locator] = blob{data: append([]byte(nil), data...), contentType: contentType}
}

// IsDurable reports whether locator can be handed to the Render Service as is.
func IsDurable(locator string) bool {
	l := strings.ToLower(locator)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

// Prepare returns ref with a durable Locator, uploading if needed.
func (p *Preparer) Prepare(ctx context.Context, ref clip.ClipRef) (clip.ClipRef, error) {
	if IsDurable(ref.Locator) {
		return ref, nil
	}

	p.mu.Lock()
	cached, ok := p.prepared[ref.Locator]
	p.mu.Unlock()
	if ok {
		ref.Locator = cached
		return ref, nil
	}

	data, contentType, err := p.load(ref)
	if err != nil {
		return ref, fmt.Errorf("prepare clip %s: %w", ref.ID, err)
	}
	if p.store == nil {
		return ref, fmt.Errorf("prepare clip %s: no object store configured", ref.ID)
	}

	name := p.newName() + extensionFor(contentType, ref)
	if p.prefix != "" {
		name = p.prefix + "/" + name
	}
	locator, err := p.store.Put(ctx, name, contentType, bytes.NewReader(data))
	if err != nil {
		return ref, fmt.Errorf("prepare clip %s: %w", ref.ID, err)
	}

	p.mu.Lock()
	p.prepared[ref.Locator] = locator
	p.mu.Unlock()

	ref.Locator = locator
	return ref, nil
}

func (p *Preparer) load(ref clip.ClipRef) ([]byte, string, error) {
	switch {
	case strings.HasPrefix(ref.Locator, "data:"):
		return DecodeDataURL(ref.Locator)

	case strings.HasPrefix(ref.Locator, "blob:"):
		p.mu.Lock()
		b, ok := p.blobs[ref.Locator]
		p.mu.Unlock()
		if !ok {
			return nil, "", ErrUnresolvedBlob
		}
		return b.data, b.contentType, nil

	default:
		path := ref.Locator
		if strings.HasPrefix(path, "file://") {
			u, err := url.Parse(path)
			if err != nil {
				return nil, "", fmt.Errorf("parse file locator: %w", err)
			}
			path = u.Path
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("read media file: %w", err)
		}
		return data, contentTypeFor(path, ref.Kind), nil
	}
}

// DecodeDataURL decodes an RFC 2397 data: URL into its bytes and media type.
func DecodeDataURL(locator string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(locator, "data:")
	if !ok {
		return nil, "", fmt.Errorf("not a data URL")
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("malformed data URL: missing comma")
	}

	isBase64 := false
	if h, found := strings.CutSuffix(header, ";base64"); found {
		header = h
		isBase64 = true
	}
	contentType := header
	if contentType == "" {
		contentType = "text/plain;charset=US-ASCII"
	}

	if isBase64 {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, "", fmt.Errorf("decode data URL: %w", err)
		}
		return data, contentType, nil
	}
	data, err := url.PathUnescape(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode data URL: %w", err)
	}
	return []byte(data), contentType, nil
}

func contentTypeFor(path string, kind clip.Kind) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); ct != "" {
		return ct
	}
	if kind == clip.KindVideo {
		return "video/mp4"
	}
	return "application/octet-stream"
}

func extensionFor(contentType string, ref clip.ClipRef) string {
	if !strings.HasPrefix(ref.Locator, "data:") && !strings.HasPrefix(ref.Locator, "blob:") {
		if ext := filepath.Ext(ref.Locator); ext != "" {
			return strings.ToLower(ext)
		}
	}
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch mediaType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	case "video/quicktime":
		return ".mov"
	case "audio/mpeg":
		return ".mp3"
	}
	return ""
}
