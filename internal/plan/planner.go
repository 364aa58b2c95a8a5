// Package plan turns combinations, or hook lines crossed with media items,
// into an ordered list of render jobs.
package plan

import (
	"errors"
	"fmt"

	"github.com/roach88/clipforge/internal/canon"
	"github.com/roach88/clipforge/internal/clip"
	"github.com/roach88/clipforge/internal/combo"
)

// Planning errors.
var (
	ErrNoHooks        = errors.New("at least one hook line is required")
	ErrNoMedia        = errors.New("at least one media item is required")
	ErrNoCombinations = errors.New("no valid combinations")
)

// Plan builds the job list for mode. Jobs carry strictly increasing Index
// values starting at 0.
func Plan(mode GenerationMode, style StyleConfig) ([]Job, error) {
	if err := style.Validate(); err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}

	switch m := mode.(type) {
	case Simple:
		return planSimple(m, style)
	case Exhaustive:
		return planCombinations(ModeExhaustive, m.Combinations, NormalizeHooks(m.Hooks), nil, style)
	case Sampled:
		return planCombinations(ModeSampled, m.Combinations, NormalizeHooks(m.Hooks), m.Logo, style)
	case nil:
		return nil, fmt.Errorf("plan: generation mode is required")
	default:
		return nil, fmt.Errorf("plan: unsupported generation mode %T", mode)
	}
}

// planSimple emits one job per hook line; media cycle to fill.
func planSimple(m Simple, style StyleConfig) ([]Job, error) {
	hooks := NormalizeHooks(m.Hooks)
	if len(hooks) == 0 {
		return nil, fmt.Errorf("plan simple: %w", ErrNoHooks)
	}
	if len(m.Media) == 0 {
		return nil, fmt.Errorf("plan simple: %w", ErrNoMedia)
	}

	jobs := make([]Job, len(hooks))
	for i, hook := range hooks {
		jobs[i] = Job{
			Index:    i,
			Mode:     ModeSimple,
			Media:    []clip.ClipRef{m.Media[i%len(m.Media)]},
			HookText: hook,
			Style:    style,
		}
	}
	return jobs, nil
}

func planCombinations(mode Mode, combos []combo.Combination, hooks []string, logo *clip.ClipRef, style StyleConfig) ([]Job, error) {
	if len(combos) == 0 {
		return nil, fmt.Errorf("plan %s: %w", mode, ErrNoCombinations)
	}

	jobs := make([]Job, len(combos))
	for i, c := range combos {
		j := Job{
			Index:         i,
			Mode:          mode,
			Media:         append([]clip.ClipRef(nil), c.Clips...),
			Style:         style,
			CombinationID: c.ID(),
		}
		if len(hooks) > 0 {
			j.HookText = hooks[i%len(hooks)]
		}
		if logo != nil {
			overlay := *logo
			j.Overlay = &overlay
		}
		jobs[i] = j
	}
	return jobs, nil
}

// NormalizeHooks NFC-normalizes hook lines and drops blank ones.
func NormalizeHooks(hooks []string) []string {
	out := make([]string, 0, len(hooks))
	for _, h := range hooks {
		if n := canon.NormalizeText(h); n != "" {
			out = append(out, n)
		}
	}
	return out
}
