package plan

import (
	"fmt"
	"strings"

	"github.com/roach88/clipforge/internal/canon"
	"github.com/roach88/clipforge/internal/clip"
)

// Position is the vertical anchor of the hook text.
type Position string

const (
	PositionTop    Position = "top"
	PositionCenter Position = "center"
	PositionBottom Position = "bottom"
)

// Valid reports whether p is a known position.
func (p Position) Valid() bool {
	switch p {
	case PositionTop, PositionCenter, PositionBottom:
		return true
	}
	return false
}

// Offset nudges the hook text from its anchor, in output pixels.
type Offset struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// StyleConfig is the hook styling attached to every job of a batch.
type StyleConfig struct {
	Style    string   `json:"style" yaml:"style"`
	Position Position `json:"position" yaml:"position"`
	Offset   Offset   `json:"offset" yaml:"offset"`
}

// DefaultStyle is used when a manifest leaves styling out.
var DefaultStyle = StyleConfig{Style: "bold-white", Position: PositionCenter}

// Validate checks the style is usable.
func (s StyleConfig) Validate() error {
	if strings.TrimSpace(s.Style) == "" {
		return fmt.Errorf("style name is required")
	}
	if !s.Position.Valid() {
		return fmt.Errorf("invalid position %q", s.Position)
	}
	return nil
}

// Job is one unit of render work. Jobs are consumed exactly once by the
// batch orchestrator; Index orders them but is not part of their identity.
type Job struct {
	Index         int            `json:"index"`
	Mode          Mode           `json:"mode"`
	Media         []clip.ClipRef `json:"media"`
	HookText      string         `json:"hook_text,omitempty"`
	Style         StyleConfig    `json:"style"`
	Overlay       *clip.ClipRef  `json:"overlay,omitempty"`
	CombinationID string         `json:"combination_id,omitempty"`
}

// HasHook reports whether the job draws a text overlay.
func (j Job) HasHook() bool {
	return j.HookText != ""
}

// ID returns the content-addressed identity of the job's work: mode, media
// sequence, hook text and overlay. Index is excluded.
func (j Job) ID() string {
	ids := make([]any, len(j.Media))
	for i, m := range j.Media {
		ids[i] = m.ID
	}
	obj := map[string]any{
		"mode":  string(j.Mode),
		"media": ids,
		"hook":  j.HookText,
		"style": j.Style.Style,
	}
	if j.Overlay != nil {
		obj["overlay"] = j.Overlay.ID
	}
	return canon.MustHash(canon.DomainJob, obj)
}

// Describe renders a one-line human summary of the job.
func (j Job) Describe() string {
	ids := make([]string, len(j.Media))
	for i, m := range j.Media {
		ids[i] = m.ID
	}
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s media=%s", j.Index, j.Mode, strings.Join(ids, ","))
	if j.HasHook() {
		fmt.Fprintf(&b, " hook=%q style=%s@%s(%d,%d)", j.HookText, j.Style.Style, j.Style.Position, j.Style.Offset.X, j.Style.Offset.Y)
	}
	if j.Overlay != nil {
		fmt.Fprintf(&b, " overlay=%s", j.Overlay.ID)
	}
	return b.String()
}

// Describe renders one line per job.
func Describe(jobs []Job) string {
	var b strings.Builder
	for _, j := range jobs {
		b.WriteString(j.Describe())
		b.WriteByte('\n')
	}
	return b.String()
}
