package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/clipforge/internal/batch"
	"github.com/roach88/clipforge/internal/clip"
	"github.com/roach88/clipforge/internal/combo"
	"github.com/roach88/clipforge/internal/plan"
)

func TestLoad_VersusCUE(t *testing.T) {
	m, err := Load(filepath.Join("testdata", "versus.cue"))
	require.NoError(t, err)

	assert.Equal(t, plan.ModeExhaustive, m.Mode)
	assert.Equal(t, []string{"Watch this", "No way"}, m.Hooks)
	require.NotNil(t, m.Style)
	assert.Equal(t, plan.PositionBottom, m.Style.Position)
	assert.Equal(t, -40, m.Style.Offset.Y)

	spec, err := m.Spec()
	require.NoError(t, err)
	require.NotNil(t, spec.Music)
	assert.Equal(t, "anthem", spec.Music.ID)

	require.Len(t, spec.Parts, len(clip.VersusOrder))
	for i, p := range spec.Parts {
		assert.Equal(t, clip.VersusOrder[i], p.Name)
	}

	goals := spec.Parts[6]
	assert.True(t, goals.Required)
	require.Len(t, goals.Clips, 2)
	assert.Equal(t, "Go1", goals.Clips[0].ID)
	assert.Equal(t, clip.KindVideo, goals.Clips[0].Kind)
	assert.Equal(t, "Go2", goals.Clips[1].ID)
	require.NotNil(t, goals.Clips[1].DurationSeconds)
	assert.Equal(t, 7.5, *goals.Clips[1].DurationSeconds)

	assert.Equal(t, clip.KindImage, spec.Parts[7].Clips[0].Kind)
	assert.Equal(t, "4", combo.Count(spec.Parts).String())
}

func TestLoad_SampledYAML(t *testing.T) {
	m, err := Load(filepath.Join("testdata", "sampled.yaml"))
	require.NoError(t, err)

	spec, err := m.Spec()
	require.NoError(t, err)

	assert.Equal(t, plan.ModeSampled, spec.Mode)
	assert.Equal(t, 10, spec.Count)
	assert.Equal(t, plan.DefaultStyle, spec.Style)

	require.Len(t, spec.Parts, 3)
	assert.Equal(t, clip.PartName("Intro"), spec.Parts[0].Name)
	assert.True(t, spec.Parts[0].Required, "sampled parts are mandatory by default")
	assert.False(t, spec.Parts[0].Permutable)
	assert.True(t, spec.Parts[2].Permutable)

	outro := spec.Parts[2].Clips
	assert.Equal(t, "Outro-1", outro[0].ID, "data URLs get positional ids")
	assert.Equal(t, clip.KindVideo, outro[0].Kind)

	require.NotNil(t, spec.Music)
	assert.Equal(t, "track", spec.Music.ID)
	assert.Equal(t, "./music/track.mp3", spec.Music.Locator)
	require.NotNil(t, spec.Logo)
	assert.Equal(t, "logo", spec.Logo.ID)
	assert.Equal(t, 8, combo.MaxPossible(spec.Parts))
}

func TestLoad_SimpleJSON(t *testing.T) {
	m, err := Load(filepath.Join("testdata", "simple.json"))
	require.NoError(t, err)

	spec, err := m.Spec()
	require.NoError(t, err)
	assert.Equal(t, plan.ModeSimple, spec.Mode)
	require.Len(t, spec.Media, 1)
	assert.Equal(t, "one", spec.Media[0].ID)
	assert.Nil(t, spec.Parts)

	jobs, err := plan.Plan(plan.Simple{Hooks: spec.Hooks, Media: spec.Media}, spec.Style)
	require.NoError(t, err)
	assert.Len(t, jobs, 3)
}

func TestParse_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		file string
		src  string
		want string
	}{
		{
			name: "unknown mode",
			file: "m.yaml",
			src:  "mode: shuffle\nmusic: a.mp3\n",
			want: "mode",
		},
		{
			name: "missing music",
			file: "m.json",
			src:  `{"mode": "simple", "hooks": ["x"]}`,
			want: "music",
		},
		{
			name: "unknown field",
			file: "m.cue",
			src:  "mode: \"simple\"\nmusic: \"a.mp3\"\ncolour: \"red\"\n",
			want: "colour",
		},
		{
			name: "bad position",
			file: "m.yaml",
			src:  "mode: simple\nmusic: a.mp3\nstyle:\n  style: x\n  position: left\n",
			want: "position",
		},
		{
			name: "non-positive count",
			file: "m.yaml",
			src:  "mode: sampled\nmusic: a.mp3\ncount: 0\n",
			want: "count",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.file, []byte(tt.src))
			require.Error(t, err)
			var le *LoadError
			require.ErrorAs(t, err, &le)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParse_UnsupportedFormat(t *testing.T) {
	_, err := Parse("manifest.toml", []byte(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported manifest format")
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse("m.yaml", []byte("mode: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse yaml")
}

func TestSpec_UnknownVersusPart(t *testing.T) {
	m, err := Parse("m.yaml", []byte("mode: exhaustive\nmusic: a.mp3\nparts:\n  - name: Bloopers\n    clips: [a.mp4]\n"))
	require.NoError(t, err)

	_, err = m.Spec()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Bloopers")
}

func TestSpec_DuplicateClipIDs(t *testing.T) {
	m, err := Parse("m.yaml", []byte("mode: sampled\ncount: 2\nmusic: a.mp3\nparts:\n  - name: A\n    clips: [x/a.mp4, y/a.mp4]\n"))
	require.NoError(t, err)

	_, err = m.Spec()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already holds clip")
}

func TestSpec_RunsThroughPlanner(t *testing.T) {
	m, err := Load(filepath.Join("testdata", "versus.cue"))
	require.NoError(t, err)
	spec, err := m.Spec()
	require.NoError(t, err)

	o := batch.New(nil, nil)
	jobs, err := o.PlanJobs(spec)
	require.NoError(t, err)
	assert.Len(t, jobs, 4)
	assert.Equal(t, "Watch this", jobs[0].HookText)
	assert.Equal(t, "No way", jobs[1].HookText)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.cue"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
