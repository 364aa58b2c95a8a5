package combo

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/clipforge/internal/clip"
)

func slots(counts ...int) []clip.Part {
	parts := make([]clip.Part, len(counts))
	for i, n := range counts {
		name := clip.PartName(fmt.Sprintf("S%d", i))
		parts[i] = clip.Part{Name: name, Clips: clips(fmt.Sprintf("s%d-", i), n), Required: true}
	}
	return parts
}

func assertDistinct(t *testing.T, combos []Combination) {
	t.Helper()
	seen := make(map[string]bool, len(combos))
	for _, c := range combos {
		require.False(t, seen[c.Key()], "duplicate combination %v", c.IDs())
		seen[c.Key()] = true
	}
}

func TestSample_ClampsToMaxPossible(t *testing.T) {
	s := NewSampler(7)
	combos := s.Sample(slots(2, 2, 2), 10)

	assert.LessOrEqual(t, len(combos), 8)
	assert.Len(t, combos, 8, "800 draws over 8 tuples should find them all")
	assertDistinct(t, combos)
}

func TestSample_ReturnsRequestedCount(t *testing.T) {
	s := NewSampler(42)
	combos := s.Sample(slots(5, 4, 6, 3, 5), 25)
	require.Len(t, combos, 25)
	assertDistinct(t, combos)
	for _, c := range combos {
		assert.Equal(t, 5, c.Len(), "one clip per part")
	}
}

func TestSample_EarlyDrawsCyclePriorityParts(t *testing.T) {
	s := NewSampler(1)
	parts := slots(3, 4, 4, 4, 3)
	combos := s.Sample(parts, 3)
	require.Len(t, combos, 3)

	// First part has rank 0 and the last part rank 3: the first three draws
	// walk through every clip of each edge part.
	firsts := make(map[string]bool)
	lasts := make(map[string]bool)
	for i, c := range combos {
		ids := c.IDs()
		assert.Equal(t, fmt.Sprintf("s0-%d", i%3+1), ids[0])
		firsts[ids[0]] = true
		lasts[ids[4]] = true
	}
	assert.Len(t, firsts, 3)
	assert.Len(t, lasts, 3)
}

func TestSample_DeterministicForSeed(t *testing.T) {
	parts := slots(6, 6, 6, 6)
	a := NewSampler(99).Sample(parts, 20)
	b := NewSampler(99).Sample(parts, 20)
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].IDs(), b[i].IDs())
	}
}

func TestSample_SingleTuple(t *testing.T) {
	combos := NewSampler(3).Sample(slots(1, 1, 1), 5)
	require.Len(t, combos, 1)
	assert.Equal(t, []string{"s0-1", "s1-1", "s2-1"}, combos[0].IDs())
}

func TestSample_NonPositiveCount(t *testing.T) {
	s := NewSampler(3)
	assert.Nil(t, s.Sample(slots(2, 2), 0))
	assert.Nil(t, s.Sample(slots(2, 2), -4))
}

func TestSample_EmptyPartSkipped(t *testing.T) {
	parts := slots(2, 0, 2)
	combos := NewSampler(5).Sample(parts, 4)
	require.Len(t, combos, 4)
	for _, c := range combos {
		assert.Equal(t, 2, c.Len())
	}
}

func TestMaxPossible(t *testing.T) {
	assert.Equal(t, 8, MaxPossible(slots(2, 2, 2)))
	assert.Equal(t, 4, MaxPossible(slots(2, 0, 2)))
	assert.Equal(t, 1, MaxPossible(nil))

	huge := make([]clip.Part, 40)
	for i := range huge {
		huge[i] = clip.Part{Clips: clips("h", 1000)}
	}
	assert.Equal(t, math.MaxInt, MaxPossible(huge))
}

func TestSample_HugeCountOverLargeParts(t *testing.T) {
	parts := slots(100, 100, 100, 100, 100, 100, 100, 100, 100, 100)
	require.Equal(t, math.MaxInt, MaxPossible(parts))

	s := NewSampler(1)
	assert.Equal(t, DefaultSampleLimit, s.Limit)
	s.Limit = 200

	var combos []Combination
	require.NotPanics(t, func() { combos = s.Sample(parts, math.MaxInt/50) })
	require.Len(t, combos, 200)
	assertDistinct(t, combos)
}

func TestSample_ZeroLimitMeansUncapped(t *testing.T) {
	s := NewSampler(3)
	s.Limit = 0
	assert.Len(t, s.Sample(slots(2, 2, 2), math.MaxInt), 8)
}

func TestAttemptBudget(t *testing.T) {
	assert.Equal(t, 1000, attemptBudget(10))
	assert.Equal(t, math.MaxInt, attemptBudget(math.MaxInt/50))
	assert.Equal(t, math.MaxInt, attemptBudget(math.MaxInt))
	assert.Positive(t, attemptBudget(math.MaxInt/attemptsPerTarget))
}

func TestPriorityRanks(t *testing.T) {
	s := NewSampler(0)
	assert.Equal(t, map[int]int{0: 0, 1: 1, 4: 2, 5: 3}, s.priorityRanks(6))
	assert.Equal(t, map[int]int{0: 0, 1: 1, 2: 2}, s.priorityRanks(3))
	assert.Equal(t, map[int]int{0: 0}, s.priorityRanks(1))
	assert.Empty(t, s.priorityRanks(0))
}
