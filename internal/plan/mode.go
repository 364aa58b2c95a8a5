package plan

import (
	"github.com/roach88/clipforge/internal/clip"
	"github.com/roach88/clipforge/internal/combo"
)

// Mode names a generation model.
type Mode string

const (
	ModeSimple     Mode = "simple"
	ModeExhaustive Mode = "exhaustive"
	ModeSampled    Mode = "sampled"
)

// GenerationMode is a tagged variant: exactly one of Simple, Exhaustive or
// Sampled, each carrying only the fields its planner needs.
type GenerationMode interface {
	Mode() Mode
	isGenerationMode()
}

// Simple crosses hook lines with media items by cyclic pairing: one job per
// hook line, media cycling to fill.
type Simple struct {
	Hooks []string
	Media []clip.ClipRef
}

// Exhaustive plans one job per enumerated combination. Hooks are optional
// and cycle across jobs; without hooks no text overlay is drawn.
type Exhaustive struct {
	Combinations []combo.Combination
	Hooks        []string
}

// Sampled plans one job per sampled combination. The optional Logo overlay
// is attached to every job identically.
type Sampled struct {
	Combinations []combo.Combination
	Hooks        []string
	Logo         *clip.ClipRef
}

func (Simple) Mode() Mode     { return ModeSimple }
func (Exhaustive) Mode() Mode { return ModeExhaustive }
func (Sampled) Mode() Mode    { return ModeSampled }

func (Simple) isGenerationMode()     {}
func (Exhaustive) isGenerationMode() {}
func (Sampled) isGenerationMode()    {}
