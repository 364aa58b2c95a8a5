package combo

import (
	"fmt"
	"math/big"

	"github.com/roach88/clipforge/internal/clip"
)

// Constraint couples two parts' internal permutations.
//
// Free and Anchor clips interleave in any order, but the clip that sits
// immediately before the Before part must be drawn from Anchor. An empty
// Anchor part invalidates the whole batch.
type Constraint struct {
	Free   clip.PartName
	Anchor clip.PartName
	Before clip.PartName
}

// VersusConstraint is the Skills/Goals/Celebrations rule.
var VersusConstraint = Constraint{Free: clip.Skills, Anchor: clip.Goals, Before: clip.Celebrations}

// Engine enumerates every valid full ordering of a part list.
type Engine struct {
	Constraints []Constraint
}

// DefaultEngine applies the Versus constraint whenever Goals is present.
var DefaultEngine = Engine{Constraints: []Constraint{VersusConstraint}}

// Enumerate lists every valid combination using DefaultEngine.
func Enumerate(parts []clip.Part) []Combination {
	return DefaultEngine.Enumerate(parts)
}

// Count returns the closed-form combination total using DefaultEngine.
func Count(parts []clip.Part) *big.Int {
	return DefaultEngine.Count(parts)
}

// segment is one factor of the Cartesian product: either a single part or a
// constrained pair merged into one group.
type segment struct {
	free       []clip.ClipRef
	anchor     []clip.ClipRef
	permutable bool
	coupled    bool
}

// segments folds the part list into product factors in part order.
// ok is false when the batch has zero valid combinations.
func (e Engine) segments(parts []clip.Part) (segs []segment, ok bool) {
	index := make(map[clip.PartName]int, len(parts))
	for i, p := range parts {
		index[p.Name] = i
		if p.Required && !p.Enabled() {
			return nil, false
		}
	}

	// consumed[i] marks parts already folded into a coupled segment.
	consumed := make(map[int]bool)
	coupledAt := make(map[int]Constraint)
	for _, c := range e.Constraints {
		ai, hasAnchor := index[c.Anchor]
		if !hasAnchor {
			continue
		}
		if !parts[ai].Enabled() {
			return nil, false
		}
		pos := ai
		if fi, hasFree := index[c.Free]; hasFree && fi < pos {
			pos = fi
		}
		coupledAt[pos] = c
	}

	for i, p := range parts {
		if consumed[i] {
			continue
		}
		if c, ok := coupledAt[i]; ok {
			seg := segment{coupled: true, permutable: true}
			seg.anchor = parts[index[c.Anchor]].Clips
			consumed[index[c.Anchor]] = true
			if fi, hasFree := index[c.Free]; hasFree {
				seg.free = parts[fi].Clips
				consumed[fi] = true
			}
			segs = append(segs, seg)
			continue
		}
		if !p.Enabled() {
			continue
		}
		segs = append(segs, segment{free: p.Clips, permutable: p.Permutable})
	}
	return segs, true
}

// Count returns the exact number of combinations Enumerate would produce,
// without enumerating. Disabled parts contribute a factor of 1.
func (e Engine) Count(parts []clip.Part) *big.Int {
	segs, ok := e.segments(parts)
	if !ok {
		return big.NewInt(0)
	}
	total := big.NewInt(1)
	for _, s := range segs {
		total.Mul(total, s.count())
	}
	return total
}

func (s segment) count() *big.Int {
	if s.coupled {
		g := int64(len(s.anchor))
		rest := factorial(int64(len(s.free)) + g - 1)
		return rest.Mul(rest, big.NewInt(g))
	}
	if !s.permutable {
		return big.NewInt(1)
	}
	return factorial(int64(len(s.free)))
}

// orderings lists every internal ordering of the segment.
func (s segment) orderings() [][]clip.ClipRef {
	if s.coupled {
		var out [][]clip.ClipRef
		for a := range s.anchor {
			pool := make([]clip.ClipRef, 0, len(s.free)+len(s.anchor)-1)
			pool = append(pool, s.free...)
			for i, g := range s.anchor {
				if i != a {
					pool = append(pool, g)
				}
			}
			for _, perm := range permutations(pool) {
				out = append(out, append(perm, s.anchor[a]))
			}
		}
		return out
	}
	if !s.permutable {
		return [][]clip.ClipRef{append([]clip.ClipRef(nil), s.free...)}
	}
	return permutations(s.free)
}

// Enumerate returns every valid combination: the Cartesian product, in part
// order, of each segment's orderings. Any required part that is empty, or an
// empty anchor part, yields no combinations.
func (e Engine) Enumerate(parts []clip.Part) []Combination {
	segs, ok := e.segments(parts)
	if !ok {
		return nil
	}

	product := [][][]clip.ClipRef{{}}
	for _, s := range segs {
		ords := s.orderings()
		next := make([][][]clip.ClipRef, 0, len(product)*len(ords))
		for _, prefix := range product {
			for _, ord := range ords {
				tuple := make([][]clip.ClipRef, len(prefix), len(prefix)+1)
				copy(tuple, prefix)
				next = append(next, append(tuple, ord))
			}
		}
		product = next
	}

	out := make([]Combination, len(product))
	for i, tuple := range product {
		out[i] = concat(tuple)
	}
	return out
}

// permutations returns all n! orderings of clips in lexicographic index
// order. Zero or one clip yields exactly one ordering.
func permutations(clips []clip.ClipRef) [][]clip.ClipRef {
	n := len(clips)
	if n <= 1 {
		return [][]clip.ClipRef{append([]clip.ClipRef(nil), clips...)}
	}
	var out [][]clip.ClipRef
	used := make([]bool, n)
	cur := make([]clip.ClipRef, 0, n)
	var walk func()
	walk = func() {
		if len(cur) == n {
			out = append(out, append([]clip.ClipRef(nil), cur...))
			return
		}
		for i := 0; i < n; i++ {
			if used[i] {
				continue
			}
			used[i] = true
			cur = append(cur, clips[i])
			walk()
			cur = cur[:len(cur)-1]
			used[i] = false
		}
	}
	walk()
	return out
}

func factorial(n int64) *big.Int {
	if n <= 1 {
		return big.NewInt(1)
	}
	return new(big.Int).MulRange(1, n)
}

// DefaultMaxCombinations is the enumeration ceiling used when none is configured.
const DefaultMaxCombinations = 10000

// OverflowError reports a refused enumeration.
type OverflowError struct {
	Count *big.Int
	Max   int64
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("combination count %s exceeds limit %d (request enumeration explicitly to override)", e.Count, e.Max)
}

// Guard refuses to enumerate above Max combinations unless forced.
// The count is always computed first so callers can display it.
type Guard struct {
	Engine Engine
	Max    int64
}

// NewGuard creates a guard over DefaultEngine. max <= 0 selects
// DefaultMaxCombinations.
func NewGuard(max int64) Guard {
	if max <= 0 {
		max = DefaultMaxCombinations
	}
	return Guard{Engine: DefaultEngine, Max: max}
}

// Enumerate returns the combinations and their count. When the count exceeds
// Max and force is false it returns *OverflowError alongside the count.
func (g Guard) Enumerate(parts []clip.Part, force bool) ([]Combination, *big.Int, error) {
	total := g.Engine.Count(parts)
	if !force && total.Cmp(big.NewInt(g.Max)) > 0 {
		return nil, total, &OverflowError{Count: total, Max: g.Max}
	}
	return g.Engine.Enumerate(parts), total, nil
}
