// Package manifest loads batch descriptions from .cue, .json or .yaml files.
//
// All formats are validated against the same embedded CUE schema before
// decoding, so a YAML manifest and a CUE manifest fail the same way.
package manifest

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"

	"github.com/roach88/clipforge/internal/batch"
	"github.com/roach88/clipforge/internal/clip"
	"github.com/roach88/clipforge/internal/plan"
)

//go:embed schema.cue
var schemaCUE string

// Layouts. Versus uses the fixed Versus slots and their ordering rule;
// custom keeps the manifest's own parts in manifest order.
const (
	LayoutVersus = "versus"
	LayoutCustom = "custom"
)

// LoadError reports an invalid manifest, with its source position when
// the schema pinpoints one.
type LoadError struct {
	File    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// Clip is a clip entry: either a bare locator string or a full reference.
type Clip struct {
	ID              string    `json:"id,omitempty"`
	Kind            clip.Kind `json:"kind,omitempty"`
	Locator         string    `json:"locator"`
	DurationSeconds *float64  `json:"duration_seconds,omitempty"`
}

// UnmarshalJSON accepts a string or an object.
func (c *Clip) UnmarshalJSON(data []byte) error {
	var locator string
	if err := json.Unmarshal(data, &locator); err == nil {
		*c = Clip{Locator: locator}
		return nil
	}
	type plain Clip
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = Clip(p)
	return nil
}

// Ref resolves the entry into a clip reference. Missing ids are derived
// from the locator's base name, or from fallback for data: and blob: URLs.
// Missing kinds are inferred from the locator.
func (c Clip) Ref(fallback string) clip.ClipRef {
	ref := clip.ClipRef{ID: c.ID, Kind: c.Kind, Locator: c.Locator, DurationSeconds: c.DurationSeconds}
	if ref.Kind == "" {
		ref.Kind = clip.KindOf(c.Locator)
	}
	if ref.ID == "" {
		ref.ID = deriveID(c.Locator, fallback)
	}
	return ref
}

func deriveID(locator, fallback string) string {
	if strings.HasPrefix(locator, "data:") || strings.HasPrefix(locator, "blob:") {
		return fallback
	}
	p := locator
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	base := path.Base(filepath.ToSlash(p))
	base = strings.TrimSuffix(base, path.Ext(base))
	if base == "" || base == "." || base == "/" {
		return fallback
	}
	return base
}

// Part is a slot entry.
type Part struct {
	Name       clip.PartName `json:"name"`
	Required   *bool         `json:"required,omitempty"`
	Permutable *bool         `json:"permutable,omitempty"`
	Clips      []Clip        `json:"clips"`
}

// Manifest describes one batch.
type Manifest struct {
	Mode   plan.Mode         `json:"mode"`
	Layout string            `json:"layout,omitempty"`
	Parts  []Part            `json:"parts,omitempty"`
	Media  []Clip            `json:"media,omitempty"`
	Hooks  []string          `json:"hooks,omitempty"`
	Music  Clip              `json:"music"`
	Logo   *Clip             `json:"logo,omitempty"`
	Style  *plan.StyleConfig `json:"style,omitempty"`
	Count  int               `json:"count,omitempty"`
	Force  bool              `json:"force,omitempty"`
}

// Load reads and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return Parse(path, data)
}

// Parse validates and decodes a manifest. The format is chosen by the
// filename's extension: .cue, .json, .yaml or .yml.
func Parse(filename string, data []byte) (*Manifest, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".cue", ".json":
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, &LoadError{File: filename, Message: fmt.Sprintf("parse yaml: %v", err)}
		}
		converted, err := json.Marshal(doc)
		if err != nil {
			return nil, &LoadError{File: filename, Message: fmt.Sprintf("convert yaml: %v", err)}
		}
		data = converted
	default:
		return nil, &LoadError{File: filename, Message: "unsupported manifest format (want .cue, .json, .yaml or .yml)"}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile manifest schema: %w", err)
	}

	doc := ctx.CompileBytes(data, cue.Filename(filename))
	if err := doc.Err(); err != nil {
		return nil, cueLoadError(filename, err)
	}

	v := schema.LookupPath(cue.ParsePath("#Manifest")).Unify(doc)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, cueLoadError(filename, err)
	}

	out, err := v.MarshalJSON()
	if err != nil {
		return nil, cueLoadError(filename, err)
	}
	var m Manifest
	if err := json.Unmarshal(out, &m); err != nil {
		return nil, &LoadError{File: filename, Message: fmt.Sprintf("decode manifest: %v", err)}
	}
	return &m, nil
}

// cueLoadError keeps the first error and its position.
func cueLoadError(filename string, err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{File: filename, Message: err.Error()}
	}
	first := errs[0]
	le := &LoadError{File: filename, Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}

// Spec converts the manifest into a batch specification.
//
// With the versus layout, parts are placed into the Versus slots, which
// keep their fixed order and the Goals requirement. Otherwise parts keep
// manifest order; in sampled mode every part is required and ordered by
// default, in exhaustive mode parts are optional and permutable.
func (m *Manifest) Spec() (batch.Spec, error) {
	spec := batch.Spec{
		Mode:  m.Mode,
		Hooks: m.Hooks,
		Count: m.Count,
		Force: m.Force,
		Style: plan.DefaultStyle,
	}
	if m.Style != nil {
		spec.Style = *m.Style
	}
	if m.Music.Locator != "" {
		music := m.Music.Ref("music")
		spec.Music = &music
	}
	if m.Logo != nil {
		logo := m.Logo.Ref("logo")
		spec.Logo = &logo
	}
	for i, c := range m.Media {
		spec.Media = append(spec.Media, c.Ref(fmt.Sprintf("media-%d", i+1)))
	}

	parts, err := m.parts()
	if err != nil {
		return batch.Spec{}, err
	}
	spec.Parts = parts
	return spec, nil
}

func (m *Manifest) parts() ([]clip.Part, error) {
	if len(m.Parts) == 0 {
		return nil, nil
	}

	var r *clip.Registry
	if m.Layout == LayoutVersus || (m.Layout == "" && m.Mode == plan.ModeExhaustive) {
		r = clip.NewVersusRegistry()
		for _, p := range m.Parts {
			if _, ok := r.Part(p.Name); !ok {
				return nil, fmt.Errorf("manifest: unknown versus part %q", p.Name)
			}
		}
	} else {
		r = clip.NewRegistry()
	}

	defaultRequired := m.Mode == plan.ModeSampled
	defaultPermutable := m.Mode != plan.ModeSampled
	for _, p := range m.Parts {
		existing, defined := r.Part(p.Name)
		required, permutable := defaultRequired, defaultPermutable
		if defined {
			required, permutable = existing.Required, existing.Permutable
		}
		if p.Required != nil {
			required = *p.Required
		}
		if p.Permutable != nil {
			permutable = *p.Permutable
		}
		r.Define(p.Name, required, permutable)

		for i, c := range p.Clips {
			if err := r.Add(p.Name, c.Ref(fmt.Sprintf("%s-%d", p.Name, i+1))); err != nil {
				return nil, fmt.Errorf("manifest: %w", err)
			}
		}
	}
	return r.Parts(), nil
}
