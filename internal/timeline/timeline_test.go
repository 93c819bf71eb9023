package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustClip(t *testing.T, uri string, duration float64, trim Range) Clip {
	t.Helper()
	c, err := NewClip(Source{Kind: KindVideo, URI: uri, Duration: duration})
	require.NoError(t, err)
	c, err = c.WithTrim(trim)
	require.NoError(t, err)
	return c
}

func TestNewClip_RejectsDegenerateSource(t *testing.T) {
	_, err := NewClip(Source{URI: "/a.mp4", Duration: 0})
	require.ErrorIs(t, err, ErrInvalidRange)

	_, err = NewClip(Source{URI: "", Duration: 3})
	require.Error(t, err)
}

func TestNewClip_DefaultsToFullSpan(t *testing.T) {
	c, err := NewClip(Source{URI: "/a.mp4", Duration: 12})
	require.NoError(t, err)
	assert.Equal(t, KindVideo, c.Source.Kind)
	assert.Equal(t, Span(12), c.Trim)
	assert.InDelta(t, 12.0, c.Duration(), 1e-9)
	assert.NotEmpty(t, c.ID)
}

func TestNewStillClip(t *testing.T) {
	c, err := NewStillClip("/photo.jpg", 0, 1080, 1920)
	require.NoError(t, err)
	assert.True(t, c.IsStill())
	assert.InDelta(t, DefaultStillDuration, c.Duration(), 1e-9)
}

func TestClip_WithTrim(t *testing.T) {
	c, err := NewClip(Source{URI: "/a.mp4", Duration: 10})
	require.NoError(t, err)

	tests := []struct {
		name    string
		r       Range
		wantErr bool
	}{
		{"inside", Range{2, 8}, false},
		{"full", Range{0, 10}, false},
		{"negative lower", Range{-1, 5}, true},
		{"beyond source", Range{2, 11}, true},
		{"empty", Range{4, 4}, true},
		{"inverted", Range{6, 4}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.WithTrim(tt.r)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidRange)
				assert.Equal(t, c.Trim, got.Trim)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.r, got.Trim)
		})
	}
}

func TestTimeline_TotalDurationAndOffsets(t *testing.T) {
	a := mustClip(t, "/a.mp4", 10, Range{2, 8})
	b := mustClip(t, "/b.mp4", 5, Range{0, 5})
	tl, err := New(a, b)
	require.NoError(t, err)

	assert.InDelta(t, 11.0, tl.TotalDuration(), 1e-9)
	assert.Equal(t, []float64{0, 6}, tl.Offsets())

	require.NoError(t, tl.SetTrim(a.ID, Range{0, 10}))
	assert.InDelta(t, 13.0, tl.TotalDuration(), 1e-9)
	assert.Equal(t, []float64{0, 10}, tl.Offsets())
}

func TestTimeline_Move(t *testing.T) {
	clips := []Clip{
		mustClip(t, "/a.mp4", 4, Range{0, 4}),
		mustClip(t, "/b.mp4", 5, Range{1, 5}),
		mustClip(t, "/c.mp4", 6, Range{0, 3}),
		mustClip(t, "/d.mp4", 7, Range{2, 7}),
	}
	ids := func(tl Timeline) []string {
		var out []string
		for _, c := range tl.Clips() {
			out = append(out, c.Source.URI)
		}
		return out
	}

	tests := []struct {
		name     string
		from, to int
		want     []string
	}{
		{"forward", 0, 2, []string{"/b.mp4", "/c.mp4", "/a.mp4", "/d.mp4"}},
		{"backward", 3, 1, []string{"/a.mp4", "/d.mp4", "/b.mp4", "/c.mp4"}},
		{"to end", 1, 3, []string{"/a.mp4", "/c.mp4", "/d.mp4", "/b.mp4"}},
		{"noop", 2, 2, []string{"/a.mp4", "/b.mp4", "/c.mp4", "/d.mp4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tl, err := New(clips...)
			require.NoError(t, err)
			before := tl.TotalDuration()

			require.NoError(t, tl.Move(tt.from, tt.to))
			assert.Equal(t, tt.want, ids(tl))
			assert.InDelta(t, before, tl.TotalDuration(), 1e-9)

			for _, c := range clips {
				got, ok := tl.Get(c.ID)
				require.True(t, ok)
				assert.Equal(t, c.Trim, got.Trim)
			}
		})
	}
}

func TestTimeline_MoveOutOfBounds(t *testing.T) {
	tl, err := New(mustClip(t, "/a.mp4", 4, Range{0, 4}))
	require.NoError(t, err)
	require.ErrorIs(t, tl.Move(0, 1), ErrOutOfBounds)
	require.ErrorIs(t, tl.Move(-1, 0), ErrOutOfBounds)
}

func TestTimeline_RemoveDoesNotAliasClones(t *testing.T) {
	a := mustClip(t, "/a.mp4", 4, Range{0, 4})
	b := mustClip(t, "/b.mp4", 4, Range{0, 4})
	tl, err := New(a, b)
	require.NoError(t, err)
	snapshot := tl.Clone()

	removed, err := tl.Remove(a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, removed.ID)
	assert.Equal(t, 1, tl.Len())
	assert.Equal(t, 2, snapshot.Len())

	_, err = tl.Remove(a.ID)
	require.ErrorIs(t, err, ErrClipNotFound)
}

func TestClampFinalRange(t *testing.T) {
	tests := []struct {
		name  string
		r     Range
		total float64
		want  Range
	}{
		{"inside", Range{1, 5}, 10, Range{1, 5}},
		{"upper clamped", Range{2, 12}, 10, Range{2, 10}},
		{"collapsed falls back to span", Range{11, 12}, 10, Range{0, 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClampFinalRange(tt.r, tt.total))
		})
	}
}

func TestKindForPath(t *testing.T) {
	k, ok := KindForPath("/x/IMG_0001.HEIC")
	assert.True(t, ok)
	assert.Equal(t, KindStill, k)

	k, ok = KindForPath("clip.MOV")
	assert.True(t, ok)
	assert.Equal(t, KindVideo, k)

	_, ok = KindForPath("notes.txt")
	assert.False(t, ok)
}
