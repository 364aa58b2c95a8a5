package combo

import (
	"math"
	"math/rand/v2"

	"github.com/roach88/clipforge/internal/clip"
)

// DefaultPriorityEdge is how many leading and trailing parts get
// deterministic early-variation cycling.
const DefaultPriorityEdge = 2

// attemptsPerTarget bounds sampling work: target × attemptsPerTarget draws.
const attemptsPerTarget = 100

// DefaultSampleLimit caps how many combinations one Sample call returns.
const DefaultSampleLimit = 100000

// maxPrealloc caps up-front allocation so a huge requested count costs
// nothing until combinations are actually found.
const maxPrealloc = 1024

// Sampler draws a bounded number of distinct combinations from ordered
// slots without enumerating the full Cartesian product.
//
// Each part contributes exactly one clip per combination. The first and
// last PriorityEdge parts cycle deterministically through their clips for
// the first 2×|part| draws so the parts a viewer notices most vary early;
// everything else is drawn uniformly at random.
//
// Limit caps the result size regardless of the requested count; zero means
// no cap beyond MaxPossible.
//
// A Sampler is not safe for concurrent use.
type Sampler struct {
	rng          *rand.Rand
	PriorityEdge int
	Limit        int
}

// NewSampler creates a sampler with a deterministic PCG source.
func NewSampler(seed uint64) *Sampler {
	return &Sampler{
		rng:          rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		PriorityEdge: DefaultPriorityEdge,
		Limit:        DefaultSampleLimit,
	}
}

// MaxPossible returns ∏|part| with empty parts contributing 1, saturating
// at math.MaxInt.
func MaxPossible(parts []clip.Part) int {
	total := 1
	for _, p := range parts {
		n := p.Len()
		if n == 0 {
			continue
		}
		if total > math.MaxInt/n {
			return math.MaxInt
		}
		total *= n
	}
	return total
}

// Sample returns at most min(count, MaxPossible(parts), Limit) distinct
// combinations. It gives up after target×100 draws; returning fewer than
// requested is a degraded outcome, not an error.
func (s *Sampler) Sample(parts []clip.Part, count int) []Combination {
	if count <= 0 {
		return nil
	}
	target := count
	if max := MaxPossible(parts); max < target {
		target = max
	}
	if s.Limit > 0 && s.Limit < target {
		target = s.Limit
	}

	rank := s.priorityRanks(len(parts))
	seen := make(map[string]bool, min(target, maxPrealloc))
	out := make([]Combination, 0, min(target, maxPrealloc))

	maxAttempts := attemptBudget(target)
	for draw := 0; len(out) < target && draw < maxAttempts; draw++ {
		picked := make([]clip.ClipRef, 0, len(parts))
		for i, p := range parts {
			n := p.Len()
			if n == 0 {
				continue
			}
			var idx int
			if r, ok := rank[i]; ok && draw < 2*n {
				idx = (draw + r) % n
			} else {
				idx = s.rng.IntN(n)
			}
			picked = append(picked, p.Clips[idx])
		}

		c := Combination{Clips: picked}
		key := c.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

// attemptBudget is target×attemptsPerTarget, saturating at math.MaxInt.
func attemptBudget(target int) int {
	if target > math.MaxInt/attemptsPerTarget {
		return math.MaxInt
	}
	return target * attemptsPerTarget
}

// priorityRanks maps part index to its cycling offset. Leading parts get
// ranks 0..edge-1, trailing parts continue from there.
func (s *Sampler) priorityRanks(n int) map[int]int {
	edge := s.PriorityEdge
	ranks := make(map[int]int)
	next := 0
	for i := 0; i < edge && i < n; i++ {
		ranks[i] = next
		next++
	}
	for i := n - edge; i < n; i++ {
		if i < 0 {
			continue
		}
		if _, ok := ranks[i]; ok {
			continue
		}
		ranks[i] = next
		next++
	}
	return ranks
}
