package clip

import (
	"fmt"
	"sort"
	"strings"
)

// PartName identifies a slot.
type PartName string

// Versus layout slots in output order.
const (
	Arrives      PartName = "Arrives"
	Training     PartName = "Training"
	Entry        PartName = "Entry"
	Lineup       PartName = "Lineup"
	FaceCam      PartName = "FaceCam"
	Skills       PartName = "Skills"
	Goals        PartName = "Goals"
	Celebrations PartName = "Celebrations"
)

// VersusOrder is the fixed concatenation order of the Versus layout.
var VersusOrder = []PartName{Arrives, Training, Entry, Lineup, FaceCam, Skills, Goals, Celebrations}

// Part is a named slot with its ordered candidate clips.
type Part struct {
	Name  PartName  `json:"name" yaml:"name"`
	Clips []ClipRef `json:"clips" yaml:"clips"`

	// Required parts with no clips invalidate the batch.
	Required bool `json:"required" yaml:"required"`

	// Permutable parts may appear in any internal order across outputs.
	// Non-permutable parts keep upload order.
	Permutable bool `json:"permutable" yaml:"permutable"`
}

// Enabled reports whether the part contributes to combinations.
func (p Part) Enabled() bool {
	return len(p.Clips) > 0
}

// Len returns the number of clips.
func (p Part) Len() int {
	return len(p.Clips)
}

// clone returns a deep copy so callers can't mutate registry state.
func (p Part) clone() Part {
	out := p
	out.Clips = append([]ClipRef(nil), p.Clips...)
	return out
}

// ValidationError lists every reason a registry cannot start a batch.
type ValidationError struct {
	MissingRequired []PartName
	InvalidClips    []string
}

func (e *ValidationError) Error() string {
	var msgs []string
	if len(e.MissingRequired) > 0 {
		names := make([]string, len(e.MissingRequired))
		for i, n := range e.MissingRequired {
			names[i] = string(n)
		}
		msgs = append(msgs, fmt.Sprintf("required parts have no clips: %s", strings.Join(names, ", ")))
	}
	msgs = append(msgs, e.InvalidClips...)
	return strings.Join(msgs, "; ")
}

// Registry holds parts in registration order.
//
// Registry is not safe for concurrent mutation. It is built once from a
// manifest and then read by the planners.
type Registry struct {
	order []PartName
	parts map[PartName]*Part
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{parts: make(map[PartName]*Part)}
}

// NewVersusRegistry creates a registry with all Versus slots defined.
// Every slot is permutable; only Goals is required, since it anchors the
// clip that precedes Celebrations.
func NewVersusRegistry() *Registry {
	r := NewRegistry()
	for _, name := range VersusOrder {
		r.Define(name, name == Goals, true)
	}
	return r
}

// Define declares a slot. Redefining an existing slot updates its flags and
// keeps its clips and position.
func (r *Registry) Define(name PartName, required, permutable bool) {
	if p, ok := r.parts[name]; ok {
		p.Required = required
		p.Permutable = permutable
		return
	}
	r.order = append(r.order, name)
	r.parts[name] = &Part{Name: name, Required: required, Permutable: permutable}
}

// Add appends clips to a defined slot.
func (r *Registry) Add(name PartName, clips ...ClipRef) error {
	p, ok := r.parts[name]
	if !ok {
		return fmt.Errorf("add clips: unknown part %q", name)
	}
	for _, c := range clips {
		for _, existing := range p.Clips {
			if existing.ID == c.ID {
				return fmt.Errorf("add clips: part %s already holds clip %q", name, c.ID)
			}
		}
		p.Clips = append(p.Clips, c)
	}
	return nil
}

// Remove drops a clip from a slot. Removing an absent clip is a no-op.
func (r *Registry) Remove(name PartName, clipID string) {
	p, ok := r.parts[name]
	if !ok {
		return
	}
	kept := p.Clips[:0]
	for _, c := range p.Clips {
		if c.ID != clipID {
			kept = append(kept, c)
		}
	}
	p.Clips = kept
}

// Clear empties a slot, disabling it if optional.
func (r *Registry) Clear(name PartName) {
	if p, ok := r.parts[name]; ok {
		p.Clips = nil
	}
}

// Part returns a copy of the named slot.
func (r *Registry) Part(name PartName) (Part, bool) {
	p, ok := r.parts[name]
	if !ok {
		return Part{}, false
	}
	return p.clone(), true
}

// Parts returns copies of every slot in registration order, disabled ones
// included.
func (r *Registry) Parts() []Part {
	out := make([]Part, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.parts[name].clone())
	}
	return out
}

// Validate checks that every required part holds clips and that every clip
// reference is well formed.
func (r *Registry) Validate() error {
	return ValidateParts(r.Parts())
}

// ValidateParts applies the registry rules to an arbitrary part list.
func ValidateParts(parts []Part) error {
	verr := &ValidationError{}
	for _, p := range parts {
		if p.Required && !p.Enabled() {
			verr.MissingRequired = append(verr.MissingRequired, p.Name)
		}
		for _, c := range p.Clips {
			if err := c.Validate(); err != nil {
				verr.InvalidClips = append(verr.InvalidClips, fmt.Sprintf("%s: %v", p.Name, err))
			}
		}
	}
	sort.Strings(verr.InvalidClips)
	if len(verr.MissingRequired) == 0 && len(verr.InvalidClips) == 0 {
		return nil
	}
	return verr
}
