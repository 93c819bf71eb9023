package selector

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bestyn/bestynapp-sub001/internal/timeline"
)

type recorder struct {
	ranges  []timeline.Range
	frames  []float64
	started []Handle
	ended   []Handle
}

func (r *recorder) RangeChanged(rng timeline.Range) { r.ranges = append(r.ranges, rng) }
func (r *recorder) FrameChanged(s float64)          { r.frames = append(r.frames, s) }
func (r *recorder) DragStarted(h Handle)            { r.started = append(r.started, h) }
func (r *recorder) DragEnded(h Handle)              { r.ended = append(r.ended, h) }

func newSelector(t *testing.T, cfg Config) (*Selector, *recorder) {
	t.Helper()
	rec := &recorder{}
	s, err := New(cfg, rec)
	require.NoError(t, err)
	return s, rec
}

func drag(t *testing.T, s *Selector, h Handle, xs ...float64) {
	t.Helper()
	require.NoError(t, s.BeginDrag(h))
	for _, x := range xs {
		require.NoError(t, s.DragTo(x))
	}
	require.NoError(t, s.EndDrag())
}

func TestNew_PixelsPerSecond(t *testing.T) {
	tests := []struct {
		name        string
		width       float64
		duration    float64
		wantPPS     float64
		wantContent float64
	}{
		{"short clip fills track", 300, 10, 30, 300},
		{"exactly the visible cap", 300, 60, 5, 300},
		{"long media scrolls", 300, 120, 5, 600},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newSelector(t, Config{Width: tt.width, Duration: tt.duration})
			assert.InDelta(t, tt.wantPPS, s.PixelsPerSecond(), 1e-9)
			assert.InDelta(t, tt.wantContent, s.ContentWidth(), 1e-9)
			assert.Equal(t, timeline.Span(tt.duration), s.Range())
		})
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Width: 0, Duration: 5}, nil)
	require.ErrorIs(t, err, ErrBadConfig)
	_, err = New(Config{Width: 100, Duration: 0}, nil)
	require.ErrorIs(t, err, ErrBadConfig)

	s, err := New(Config{Width: 100, Duration: 0.5}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, s.MinSpan(), 1e-9)
}

func TestDrag_LeftHandleClampedByMinSpan(t *testing.T) {
	s, rec := newSelector(t, Config{Width: 300, Duration: 10, MinSpan: 1})

	drag(t, s, HandleLeft, 60, 290)

	assert.Equal(t, timeline.Range{Lower: 9, Upper: 10}, s.Range())
	require.Len(t, rec.ranges, 2)
	assert.InDelta(t, 2.0, rec.ranges[0].Lower, 1e-9)
	assert.InDelta(t, 9.0, rec.ranges[1].Lower, 1e-9)
	assert.Equal(t, []Handle{HandleLeft}, rec.started)
	assert.Equal(t, []Handle{HandleLeft}, rec.ended)
	assert.InDelta(t, 9.0, s.Pointer(), 1e-9)
}

func TestDrag_RightHandleClampedByMinSpanAndEnd(t *testing.T) {
	s, rec := newSelector(t, Config{Width: 300, Duration: 10, MinSpan: 1})
	s.SetRange(timeline.Range{Lower: 4, Upper: 10})

	drag(t, s, HandleRight, 30)
	assert.Equal(t, timeline.Range{Lower: 4, Upper: 5}, s.Range())

	drag(t, s, HandleRight, 9999)
	assert.Equal(t, timeline.Range{Lower: 4, Upper: 10}, s.Range())
	assert.InDelta(t, 10.0, s.Pointer(), 1e-9)
	require.Len(t, rec.ranges, 2)
}

func TestDrag_PointerStaysBetweenHandles(t *testing.T) {
	s, rec := newSelector(t, Config{Width: 300, Duration: 10})
	s.SetRange(timeline.Range{Lower: 2, Upper: 6})
	s.SetPointer(3)

	drag(t, s, HandlePointer, 0, 120, 290)

	assert.Empty(t, rec.ranges)
	assert.Equal(t, []float64{2, 4, 6}, rec.frames)
}

func TestDrag_PointerResnapsToMovedBoundary(t *testing.T) {
	s, rec := newSelector(t, Config{Width: 300, Duration: 10})
	s.SetPointer(5)

	drag(t, s, HandleRight, 240)

	assert.InDelta(t, 8.0, s.Pointer(), 1e-9)
	require.NotEmpty(t, rec.frames)
	assert.InDelta(t, 8.0, rec.frames[len(rec.frames)-1], 1e-9)
}

func TestDrag_NoEventsWhenNothingMoves(t *testing.T) {
	s, rec := newSelector(t, Config{Width: 300, Duration: 10})

	drag(t, s, HandleLeft, -50)

	assert.Empty(t, rec.ranges)
	assert.Empty(t, rec.frames)
}

func TestGestures_AreExclusive(t *testing.T) {
	s, _ := newSelector(t, Config{Width: 300, Duration: 120})

	assert.ErrorIs(t, s.DragTo(10), ErrNoDrag)
	assert.ErrorIs(t, s.EndDrag(), ErrNoDrag)

	require.NoError(t, s.BeginDrag(HandleLeft))
	assert.ErrorIs(t, s.BeginDrag(HandleRight), ErrGestureActive)
	assert.ErrorIs(t, s.ScrollTo(50), ErrGestureActive)
	assert.Equal(t, HandleLeft, s.Dragging())
	require.NoError(t, s.EndDrag())

	require.NoError(t, s.ScrollTo(50))
	assert.Equal(t, HandleNone, s.Dragging())
}

func TestScroll_RepositionsHandlesFromTimes(t *testing.T) {
	s, rec := newSelector(t, Config{Width: 300, Duration: 120})
	s.SetRange(timeline.Range{Lower: 10, Upper: 20})

	require.NoError(t, s.ScrollTo(100))

	assert.InDelta(t, -50.0, s.PositionOf(HandleLeft), 1e-9)
	assert.InDelta(t, 0.0, s.PositionOf(HandleRight), 1e-9)
	assert.Equal(t, timeline.Range{Lower: 10, Upper: 20}, s.Range())
	assert.Empty(t, rec.ranges)

	require.NoError(t, s.ScrollTo(10000))
	assert.InDelta(t, 300.0, s.ScrollOffset(), 1e-9)
	require.NoError(t, s.ScrollTo(-5))
	assert.InDelta(t, 0.0, s.ScrollOffset(), 1e-9)
}

func TestScroll_PinnedHandlesShiftRange(t *testing.T) {
	s, rec := newSelector(t, Config{Width: 300, Duration: 120, PinHandlesOnScroll: true})
	s.SetRange(timeline.Range{Lower: 10, Upper: 20})

	require.NoError(t, s.ScrollTo(50))

	assert.Equal(t, timeline.Range{Lower: 20, Upper: 30}, s.Range())
	require.Len(t, rec.ranges, 1)
	assert.Equal(t, timeline.Range{Lower: 20, Upper: 30}, rec.ranges[0])
	assert.InDelta(t, 50.0, s.PositionOf(HandleLeft), 1e-9)
}

func TestDragAfterScroll_UsesOffset(t *testing.T) {
	s, _ := newSelector(t, Config{Width: 300, Duration: 120})
	require.NoError(t, s.ScrollTo(200))

	drag(t, s, HandleLeft, 50)

	assert.InDelta(t, 50.0, s.Range().Lower, 1e-9)
	assert.InDelta(t, 50.0, s.TimeAt(50), 1e-9)
	assert.InDelta(t, 50.0, s.XFor(50), 1e-9)
}

func TestSetWidth_KeepsTimes(t *testing.T) {
	s, _ := newSelector(t, Config{Width: 300, Duration: 120})
	s.SetRange(timeline.Range{Lower: 30, Upper: 90})
	require.NoError(t, s.ScrollTo(300))

	require.NoError(t, s.SetWidth(600))
	assert.InDelta(t, 10.0, s.PixelsPerSecond(), 1e-9)
	assert.InDelta(t, 300.0, s.ScrollOffset(), 1e-9)
	assert.Equal(t, timeline.Range{Lower: 30, Upper: 90}, s.Range())
	require.ErrorIs(t, s.SetWidth(0), ErrBadConfig)
}

func TestMinSpanHoldsForRandomGestures(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, pinned := range []bool{false, true} {
		s, rec := newSelector(t, Config{Width: 320, Duration: 95, MinSpan: 1.5, PinHandlesOnScroll: pinned})

		for i := 0; i < 500; i++ {
			if rng.Intn(5) == 0 {
				require.NoError(t, s.ScrollTo(rng.Float64()*800-100))
				continue
			}
			h := []Handle{HandleLeft, HandleRight, HandlePointer}[rng.Intn(3)]
			require.NoError(t, s.BeginDrag(h))
			for j := rng.Intn(6); j >= 0; j-- {
				require.NoError(t, s.DragTo(rng.Float64()*500-100))
			}
			require.NoError(t, s.EndDrag())
		}

		require.NotEmpty(t, rec.ranges)
		for _, r := range rec.ranges {
			assert.GreaterOrEqual(t, r.Duration(), 1.5-1e-9, "range %s", r)
			assert.True(t, timeline.Span(95).Contains(r), "range %s", r)
		}
		final := s.Range()
		assert.GreaterOrEqual(t, s.Pointer(), final.Lower)
		assert.LessOrEqual(t, s.Pointer(), final.Upper)
	}
}

func TestParseHandle(t *testing.T) {
	for _, h := range []Handle{HandleLeft, HandleRight, HandlePointer} {
		got, err := ParseHandle(h.String())
		require.NoError(t, err)
		assert.Equal(t, h, got)
	}
	_, err := ParseHandle("middle")
	assert.Error(t, err)
}
