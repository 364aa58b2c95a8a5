package clip

import (
	"fmt"
	"path"
	"strings"
)

// Kind distinguishes still images from video clips.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindImage || k == KindVideo
}

// ClipRef references one uploaded or library-sourced media item.
//
// Locator is whatever the caller has: a public URL, a local file path, a
// data: URL or an in-memory blob: reference. The media package converts the
// transient forms into durable locators before dispatch.
type ClipRef struct {
	ID              string   `json:"id" yaml:"id"`
	Kind            Kind     `json:"kind" yaml:"kind"`
	Locator         string   `json:"locator" yaml:"locator"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty" yaml:"duration_seconds,omitempty"`
}

// Validate checks that the reference is usable.
func (c ClipRef) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("clip id is required")
	}
	if !c.Kind.Valid() {
		return fmt.Errorf("clip %s: invalid kind %q", c.ID, c.Kind)
	}
	if strings.TrimSpace(c.Locator) == "" {
		return fmt.Errorf("clip %s: locator is required", c.ID)
	}
	return nil
}

var videoExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".webm": true, ".m4v": true, ".mkv": true,
}

// KindOf guesses a clip kind from its locator. data: URLs are judged by their
// media type; everything else by file extension. Unknown extensions are
// treated as images.
func KindOf(locator string) Kind {
	if strings.HasPrefix(locator, "data:") {
		if strings.HasPrefix(locator, "data:video/") {
			return KindVideo
		}
		return KindImage
	}
	p := locator
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if videoExtensions[strings.ToLower(path.Ext(p))] {
		return KindVideo
	}
	return KindImage
}
