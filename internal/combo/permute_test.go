package combo

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/clipforge/internal/clip"
)

func clips(prefix string, n int) []clip.ClipRef {
	out := make([]clip.ClipRef, n)
	for i := range out {
		id := fmt.Sprintf("%s%d", prefix, i+1)
		out[i] = clip.ClipRef{ID: id, Kind: clip.KindVideo, Locator: "https://cdn.example.com/" + id + ".mp4"}
	}
	return out
}

func prefix(name clip.PartName) string {
	if len(name) < 2 {
		return string(name)
	}
	return string(name)[:2]
}

func part(name clip.PartName, n int) clip.Part {
	return clip.Part{Name: name, Clips: clips(prefix(name), n), Permutable: true}
}

func versus(counts map[clip.PartName]int) []clip.Part {
	r := clip.NewVersusRegistry()
	for name, n := range counts {
		p, _ := r.Part(name)
		for _, c := range clips(prefix(name), n) {
			if err := r.Add(p.Name, c); err != nil {
				panic(err)
			}
		}
	}
	return r.Parts()
}

func TestCount_IndependentPartsIsProductOfFactorials(t *testing.T) {
	tests := []struct {
		counts []int
		want   int64
	}{
		{[]int{1}, 1},
		{[]int{0, 1}, 1},
		{[]int{2, 3}, 2 * 6},
		{[]int{3, 0, 4}, 6 * 24},
		{[]int{1, 1, 1, 1}, 1},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.counts), func(t *testing.T) {
			var parts []clip.Part
			for i, n := range tt.counts {
				parts = append(parts, part(clip.PartName(fmt.Sprintf("P%d", i)), n))
			}
			assert.Equal(t, big.NewInt(tt.want).String(), Count(parts).String())
			assert.Len(t, Enumerate(parts), int(tt.want))
		})
	}
}

func TestCount_SkillsGoalsConstraint(t *testing.T) {
	tests := []struct {
		skills, goals int
		want          int64
	}{
		{0, 1, 1},
		{0, 3, 6},  // plain 3!
		{1, 2, 4},  // 2 × 2!
		{2, 2, 12}, // 2 × 3!
		{3, 1, 6},  // 1 × 3!
		{3, 0, 0},  // Goals is the mandatory anchor
		{0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("s%d_g%d", tt.skills, tt.goals), func(t *testing.T) {
			parts := versus(map[clip.PartName]int{clip.Skills: tt.skills, clip.Goals: tt.goals})
			assert.Equal(t, big.NewInt(tt.want).String(), Count(parts).String())
			assert.Len(t, Enumerate(parts), int(tt.want))
		})
	}
}

func TestCount_WorkedExample(t *testing.T) {
	parts := versus(map[clip.PartName]int{
		clip.Arrives:      1,
		clip.Goals:        2,
		clip.Skills:       1,
		clip.Celebrations: 1,
	})
	assert.Equal(t, big.NewInt(4).String(), Count(parts).String())

	combos := Enumerate(parts)
	require.Len(t, combos, 4)
	for _, c := range combos {
		ids := c.IDs()
		require.Len(t, ids, 5)
		assert.Equal(t, "Ar1", ids[0])
		assert.Equal(t, "Ce1", ids[4])
		assert.Contains(t, []string{"Go1", "Go2"}, ids[3], "clip before Celebrations must be a goal")
	}
}

func TestCount_GoalsEmptyZeroesEverything(t *testing.T) {
	parts := versus(map[clip.PartName]int{clip.Arrives: 3, clip.Skills: 2, clip.Celebrations: 2})
	assert.Equal(t, 0, Count(parts).Sign())
	assert.Empty(t, Enumerate(parts))
}

func TestEnumerate_RequiredEmptyShortCircuits(t *testing.T) {
	parts := []clip.Part{
		part("A", 3),
		{Name: "B", Required: true, Permutable: true},
	}
	assert.Equal(t, 0, Count(parts).Sign())
	assert.Nil(t, Enumerate(parts))
}

func TestEnumerate_AnchorAlwaysPrecedesCelebrations(t *testing.T) {
	parts := versus(map[clip.PartName]int{
		clip.Entry:        2,
		clip.Skills:       2,
		clip.Goals:        3,
		clip.Celebrations: 2,
	})
	combos := Enumerate(parts)
	require.Equal(t, int(Count(parts).Int64()), len(combos))

	goals := map[string]bool{"Go1": true, "Go2": true, "Go3": true}
	for _, c := range combos {
		ids := c.IDs()
		// Entry(2) + Skills/Goals(5) + Celebrations(2)
		require.Len(t, ids, 9)
		assert.True(t, goals[ids[6]], "position before Celebrations holds %s", ids[6])
		assert.Equal(t, "Ce", ids[7][:2])
	}
}

func TestEnumerate_AnchorLastWithoutCelebrations(t *testing.T) {
	parts := versus(map[clip.PartName]int{clip.Skills: 2, clip.Goals: 2, clip.Arrives: 1})
	for _, c := range Enumerate(parts) {
		ids := c.IDs()
		assert.Equal(t, "Go", ids[len(ids)-1][:2])
	}
}

func TestEnumerate_Unique(t *testing.T) {
	parts := versus(map[clip.PartName]int{clip.Lineup: 3, clip.Skills: 2, clip.Goals: 2, clip.Celebrations: 2})
	combos := Enumerate(parts)
	seen := make(map[string]bool)
	for _, c := range combos {
		require.False(t, seen[c.Key()], "duplicate %v", c.IDs())
		seen[c.Key()] = true
	}
	assert.Len(t, seen, 3*2*1*(2*3*2*1)*2)
}

func TestEnumerate_NonPermutableKeepsUploadOrder(t *testing.T) {
	parts := []clip.Part{
		{Name: "Intro", Clips: clips("in", 3)},
		part("Body", 2),
	}
	assert.Equal(t, big.NewInt(2).String(), Count(parts).String())
	for _, c := range Enumerate(parts) {
		assert.Equal(t, []string{"in1", "in2", "in3"}, c.IDs()[:3])
	}
}

func TestEnumerate_NoConstraintWithoutAnchorPart(t *testing.T) {
	parts := []clip.Part{part(clip.Skills, 3)}
	assert.Equal(t, big.NewInt(6).String(), Count(parts).String())
}

func TestCount_LargeIsExact(t *testing.T) {
	parts := versus(map[clip.PartName]int{clip.Skills: 20, clip.Goals: 5, clip.Arrives: 10})
	want := new(big.Int).MulRange(1, 24)
	want.Mul(want, big.NewInt(5))
	want.Mul(want, new(big.Int).MulRange(1, 10))
	assert.Equal(t, want.String(), Count(parts).String())
}

func TestGuard(t *testing.T) {
	parts := versus(map[clip.PartName]int{clip.Skills: 3, clip.Goals: 3})
	g := NewGuard(100) // 3 × 5! = 360

	combos, total, err := g.Enumerate(parts, false)
	require.Error(t, err)
	assert.Nil(t, combos)
	assert.Equal(t, big.NewInt(360).String(), total.String())

	var oerr *OverflowError
	require.True(t, errors.As(err, &oerr))
	assert.Equal(t, int64(100), oerr.Max)
	assert.Contains(t, err.Error(), "360")

	combos, total, err = g.Enumerate(parts, true)
	require.NoError(t, err)
	assert.Len(t, combos, 360)
	assert.Equal(t, big.NewInt(360).String(), total.String())
}

func TestNewGuard_Default(t *testing.T) {
	assert.Equal(t, int64(DefaultMaxCombinations), NewGuard(0).Max)
}

func TestCombination_Identity(t *testing.T) {
	a := Combination{Clips: clips("x", 3)}
	b := Combination{Clips: clips("x", 3)}
	c := Combination{Clips: []clip.ClipRef{a.Clips[1], a.Clips[0], a.Clips[2]}}

	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, a.ID(), b.ID())
	assert.NotEqual(t, a.ID(), c.ID())
	assert.Equal(t, 3, a.Len())
}
