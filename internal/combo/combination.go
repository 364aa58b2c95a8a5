package combo

import (
	"strings"

	"github.com/roach88/clipforge/internal/canon"
	"github.com/roach88/clipforge/internal/clip"
)

// Combination is one concrete ordered sequence of clips spanning every
// enabled part. Two combinations with identical clip-id sequences are
// interchangeable.
type Combination struct {
	Clips []clip.ClipRef `json:"clips"`
}

// IDs returns the ordered clip-id tuple.
func (c Combination) IDs() []string {
	ids := make([]string, len(c.Clips))
	for i, cl := range c.Clips {
		ids[i] = cl.ID
	}
	return ids
}

// Key returns a comparable form of the clip-id tuple for set membership.
func (c Combination) Key() string {
	return strings.Join(c.IDs(), "\x1f")
}

// ID returns the content-addressed identity of the combination.
func (c Combination) ID() string {
	return canon.MustHash(canon.DomainCombination, c.IDs())
}

// Len returns the number of clips in the sequence.
func (c Combination) Len() int {
	return len(c.Clips)
}

func concat(groups [][]clip.ClipRef) Combination {
	n := 0
	for _, g := range groups {
		n += len(g)
	}
	out := make([]clip.ClipRef, 0, n)
	for _, g := range groups {
		out = append(out, g...)
	}
	return Combination{Clips: out}
}
