package clip

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func img(id string) ClipRef {
	return ClipRef{ID: id, Kind: KindImage, Locator: "https://cdn.example.com/" + id + ".png"}
}

func TestVersusRegistry_Layout(t *testing.T) {
	r := NewVersusRegistry()
	parts := r.Parts()
	require.Len(t, parts, len(VersusOrder))
	for i, p := range parts {
		assert.Equal(t, VersusOrder[i], p.Name)
		assert.True(t, p.Permutable)
		assert.Equal(t, p.Name == Goals, p.Required, "only Goals is required")
		assert.False(t, p.Enabled())
	}
}

func TestRegistry_AddRemoveClear(t *testing.T) {
	r := NewVersusRegistry()
	require.NoError(t, r.Add(Skills, img("s1"), img("s2")))

	p, ok := r.Part(Skills)
	require.True(t, ok)
	assert.Equal(t, 2, p.Len())

	r.Remove(Skills, "s1")
	p, _ = r.Part(Skills)
	require.Len(t, p.Clips, 1)
	assert.Equal(t, "s2", p.Clips[0].ID)

	r.Remove(Skills, "missing")
	r.Remove("NoSuchPart", "s2")

	r.Clear(Skills)
	p, _ = r.Part(Skills)
	assert.False(t, p.Enabled())
}

func TestRegistry_AddErrors(t *testing.T) {
	r := NewVersusRegistry()
	err := r.Add("Bonus", img("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown part")

	require.NoError(t, r.Add(Goals, img("g1")))
	err = r.Add(Goals, img("g1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already holds")
}

func TestRegistry_PartsAreCopies(t *testing.T) {
	r := NewVersusRegistry()
	require.NoError(t, r.Add(Goals, img("g1")))

	parts := r.Parts()
	parts[6].Clips[0].ID = "mutated"

	p, _ := r.Part(Goals)
	assert.Equal(t, "g1", p.Clips[0].ID)
}

func TestRegistry_DefineKeepsPosition(t *testing.T) {
	r := NewRegistry()
	r.Define("A", true, false)
	r.Define("B", true, false)
	require.NoError(t, r.Add("A", img("a1")))
	r.Define("A", false, true)

	parts := r.Parts()
	require.Len(t, parts, 2)
	assert.Equal(t, PartName("A"), parts[0].Name)
	assert.False(t, parts[0].Required)
	assert.True(t, parts[0].Permutable)
	assert.Len(t, parts[0].Clips, 1)
}

func TestRegistry_Validate(t *testing.T) {
	r := NewVersusRegistry()
	err := r.Validate()
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []PartName{Goals}, verr.MissingRequired)
	assert.Contains(t, err.Error(), "Goals")

	require.NoError(t, r.Add(Goals, img("g1")))
	assert.NoError(t, r.Validate())

	require.NoError(t, r.Add(Arrives, ClipRef{ID: "bad", Kind: "gif", Locator: "x"}))
	err = r.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid kind")
}

func TestClipRef_Validate(t *testing.T) {
	assert.NoError(t, img("ok").Validate())
	assert.Error(t, ClipRef{Kind: KindImage, Locator: "x"}.Validate())
	assert.Error(t, ClipRef{ID: "a", Kind: KindVideo}.Validate())
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		locator string
		want    Kind
	}{
		{"https://cdn.example.com/a.mp4", KindVideo},
		{"https://cdn.example.com/a.MOV?sig=1", KindVideo},
		{"/tmp/clip.webm", KindVideo},
		{"/tmp/photo.jpg", KindImage},
		{"data:video/mp4;base64,AAAA", KindVideo},
		{"data:image/png;base64,AAAA", KindImage},
		{"blob:https://app.example.com/123", KindImage},
	}
	for _, tt := range tests {
		t.Run(tt.locator, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.locator))
		})
	}
}
