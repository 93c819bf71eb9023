package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/bestyn/bestynapp-sub001/internal/composition"
	"github.com/bestyn/bestynapp-sub001/internal/frames"
	"github.com/bestyn/bestynapp-sub001/internal/media"
	"github.com/bestyn/bestynapp-sub001/internal/selector"
	"github.com/bestyn/bestynapp-sub001/internal/timeline"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakePlayer struct {
	mu       sync.Mutex
	replaced []*composition.Composition
	windows  []timeline.Range
	seeks    []float64
	pauses   int
	resumes  int
}

func (p *fakePlayer) Replace(c *composition.Composition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replaced = append(p.replaced, c)
}

func (p *fakePlayer) SetWindow(w timeline.Range) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.windows = append(p.windows, w)
}

func (p *fakePlayer) Seek(s float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seeks = append(p.seeks, s)
}

func (p *fakePlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pauses++
}

func (p *fakePlayer) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resumes++
}

func (p *fakePlayer) lastReplaced() *composition.Composition {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.replaced) == 0 {
		return nil
	}
	return p.replaced[len(p.replaced)-1]
}

func (p *fakePlayer) replacedVersions() []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []uint64
	for _, c := range p.replaced {
		out = append(out, c.Version)
	}
	return out
}

type fakeObserver struct {
	mu      sync.Mutex
	applied []uint64
	failed  []uint64
	emptied int
	appliedC chan uint64
}

func newFakeObserver() *fakeObserver {
	return &fakeObserver{appliedC: make(chan uint64, 64)}
}

func (o *fakeObserver) CompositionApplied(v uint64, _ *composition.Composition) {
	o.mu.Lock()
	o.applied = append(o.applied, v)
	o.mu.Unlock()
	o.appliedC <- v
}

func (o *fakeObserver) RebuildFailed(v uint64, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, v)
}

func (o *fakeObserver) TimelineEmptied() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.emptied++
}

func (o *fakeObserver) snapshot() (applied, failed []uint64, emptied int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]uint64(nil), o.applied...), append([]uint64(nil), o.failed...), o.emptied
}

func (o *fakeObserver) waitApplied(t *testing.T, v uint64) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-o.appliedC:
			if got == v {
				return
			}
		case <-deadline:
			t.Fatalf("version %d was never applied", v)
		}
	}
}

// gatedComposer holds chosen rebuild versions until released and can fail
// chosen versions.
type gatedComposer struct {
	*composition.Builder
	builds atomic.Int32

	mu    sync.Mutex
	gates map[uint64]chan struct{}
	fail  map[uint64]error
}

func (g *gatedComposer) hold(v uint64) (release func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch := make(chan struct{})
	g.gates[v] = ch
	return func() { close(ch) }
}

func (g *gatedComposer) failOn(v uint64, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail[v] = err
}

func (g *gatedComposer) Build(ctx context.Context, req composition.Request) (*composition.Composition, error) {
	g.builds.Add(1)
	g.mu.Lock()
	gate, ferr := g.gates[req.Version], g.fail[req.Version]
	g.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if ferr != nil {
		return nil, ferr
	}
	return g.Builder.Build(ctx, req)
}

type fixture struct {
	s        *Session
	player   *fakePlayer
	observer *fakeObserver
	composer *gatedComposer
}

func newFixture(t *testing.T, mod func(*Config)) *fixture {
	t.Helper()
	stub := media.NewStubFFmpeg(nil)
	stub.Register(media.Info{URI: "/a.mp4", Duration: 10, Width: 1920, Height: 1080, HasAudio: true})
	stub.Register(media.Info{URI: "/b.mp4", Duration: 5, Width: 1080, Height: 1920})
	stub.Register(media.Info{URI: "/c.mp4", Duration: 4, Width: 1080, Height: 1920})
	stub.Register(media.Info{URI: "/photo.jpg", Width: 3000, Height: 4000})

	f := &fixture{
		player:   &fakePlayer{},
		observer: newFakeObserver(),
		composer: &gatedComposer{
			Builder: composition.NewBuilder(media.NewCachedProber(stub, 0, nil), composition.Options{}, nil),
			gates:   make(map[uint64]chan struct{}),
			fail:    make(map[uint64]error),
		},
	}
	cfg := Config{Composer: f.composer, Player: f.player, Observer: f.observer, StillDuration: 3}
	if mod != nil {
		mod(&cfg)
	}
	s, err := New(cfg)
	require.NoError(t, err)
	f.s = s
	t.Cleanup(s.Close)

	_, err = s.StartEditing(context.Background())
	require.NoError(t, err)
	return f
}

func (f *fixture) add(t *testing.T, uri string, d float64) timeline.Clip {
	t.Helper()
	c, err := f.s.AddClip(context.Background(), timeline.Source{URI: uri, Duration: d})
	require.NoError(t, err)
	return c
}

func (f *fixture) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.s.Flush(ctx))
}

func (f *fixture) trim(t *testing.T, clipID string, r timeline.Range) {
	t.Helper()
	require.NoError(t, f.s.SelectClip(clipID))
	require.NoError(t, f.s.RangeChanged(r))
	require.NoError(t, f.s.ConfirmDraft())
	f.flush(t)
}

func TestAddClip_AppliesComposition(t *testing.T) {
	f := newFixture(t, nil)
	a := f.add(t, "/a.mp4", 10)
	f.flush(t)

	c := f.s.Composition()
	require.NotNil(t, c)
	assert.Equal(t, uint64(1), c.Version)
	assert.InDelta(t, 10.0, c.Total, 1e-9)
	assert.Equal(t, a.ID, c.Segments[0].ClipID)
	assert.Equal(t, []uint64{1}, f.player.replacedVersions())
	assert.Equal(t, timeline.Span(10), f.s.FinalRange())
	assert.Equal(t, 1920, a.Source.Width)
}

func TestAddClip_TwiceQuickly_StaleRebuildNeverWins(t *testing.T) {
	f := newFixture(t, nil)
	release := f.composer.hold(1)

	f.add(t, "/a.mp4", 10)
	b := f.add(t, "/b.mp4", 5)
	f.observer.waitApplied(t, 2)

	release()
	f.flush(t)

	c := f.s.Composition()
	require.NotNil(t, c)
	assert.Equal(t, uint64(2), c.Version)
	require.Len(t, c.Segments, 2)
	assert.Equal(t, b.ID, c.Segments[1].ClipID)
	assert.Equal(t, []uint64{2}, f.player.replacedVersions())
	applied, _, _ := f.observer.snapshot()
	assert.Equal(t, []uint64{2}, applied)
}

func TestConfirmClipDraft_TrimScenario(t *testing.T) {
	f := newFixture(t, nil)
	a := f.add(t, "/a.mp4", 10)
	b := f.add(t, "/b.mp4", 5)
	f.flush(t)
	assert.Equal(t, timeline.Span(15), f.s.FinalRange())

	f.trim(t, a.ID, timeline.Range{Lower: 2, Upper: 8})
	assert.InDelta(t, 11.0, f.s.Timeline().TotalDuration(), 1e-9)
	assert.Equal(t, timeline.Span(11), f.s.FinalRange())

	before := f.s.Timeline()
	builds := f.composer.builds.Load()
	version := f.s.Snapshot().Version

	f.trim(t, a.ID, timeline.Range{Lower: 0, Upper: 10})

	after := f.s.Timeline()
	assert.InDelta(t, 13.0, after.TotalDuration(), 1e-9)
	assert.Equal(t, timeline.Span(11), f.s.FinalRange())
	gotB, _ := after.Get(b.ID)
	wantB, _ := before.Get(b.ID)
	assert.Equal(t, wantB, gotB)
	gotA, _ := after.Get(a.ID)
	assert.Equal(t, timeline.Range{Lower: 0, Upper: 10}, gotA.Trim)

	assert.Equal(t, builds+1, f.composer.builds.Load())
	assert.Equal(t, version+1, f.s.Snapshot().Version)
	c := f.s.Composition()
	assert.InDelta(t, 13.0, c.Total, 1e-9)
	assert.InDelta(t, 11.0, c.Duration(), 1e-9)
}

func TestCancelDraft_RestoresCommittedState(t *testing.T) {
	f := newFixture(t, nil)
	f.add(t, "/a.mp4", 10)
	b := f.add(t, "/b.mp4", 5)
	f.flush(t)

	committed := f.s.Composition()
	tlBefore := f.s.Timeline()
	frBefore := f.s.FinalRange()
	version := f.s.Snapshot().Version

	require.NoError(t, f.s.SelectClip(b.ID))
	require.Equal(t, StateEditingDraft, f.s.State())
	require.NoError(t, f.s.RangeChanged(timeline.Range{Lower: 1, Upper: 3}))
	assert.Equal(t, timeline.Range{Lower: 1, Upper: 3}, f.s.Preview().Window)
	require.NoError(t, f.s.CancelDraft())

	assert.True(t, f.s.Timeline().Equal(tlBefore))
	assert.Equal(t, frBefore, f.s.FinalRange())
	assert.Same(t, committed, f.player.lastReplaced())
	assert.Nil(t, f.s.DraftView())
	assert.Equal(t, StateEditing, f.s.State())

	require.NoError(t, f.s.BeginWholeTimelineTrim())
	require.NoError(t, f.s.RangeChanged(timeline.Range{Lower: 1, Upper: 4}))
	require.NoError(t, f.s.CancelDraft())

	assert.True(t, f.s.Timeline().Equal(tlBefore))
	assert.Equal(t, frBefore, f.s.FinalRange())
	assert.Equal(t, version, f.s.Snapshot().Version)
}

func TestConfirmWholeTimelineDraft(t *testing.T) {
	f := newFixture(t, nil)
	f.add(t, "/a.mp4", 10)
	f.add(t, "/b.mp4", 5)
	f.flush(t)

	require.NoError(t, f.s.BeginWholeTimelineTrim())
	view := f.s.DraftView()
	require.NotNil(t, view)
	assert.Equal(t, DraftKindWholeTimeline, view.Kind)
	assert.Equal(t, timeline.Span(15), view.Limits)

	require.NoError(t, f.s.RangeChanged(timeline.Range{Lower: 2, Upper: 12}))
	require.NoError(t, f.s.ConfirmDraft())
	f.flush(t)

	assert.Equal(t, timeline.Range{Lower: 2, Upper: 12}, f.s.FinalRange())
	assert.Equal(t, timeline.Range{Lower: 2, Upper: 12}, f.s.Composition().Window)
	assert.InDelta(t, 15.0, f.s.Timeline().TotalDuration(), 1e-9)
}

func TestRangeChanged_IsCheapAndValidated(t *testing.T) {
	f := newFixture(t, nil)
	a := f.add(t, "/a.mp4", 10)
	f.flush(t)
	builds := f.composer.builds.Load()

	require.NoError(t, f.s.SelectClip(a.ID))
	require.NoError(t, f.s.RangeChanged(timeline.Range{Lower: 3, Upper: 7}))
	require.NoError(t, f.s.RangeChanged(timeline.Range{Lower: 4, Upper: 7}))
	assert.ErrorIs(t, f.s.RangeChanged(timeline.Range{Lower: 4, Upper: 12}), timeline.ErrInvalidRange)
	assert.ErrorIs(t, f.s.RangeChanged(timeline.Range{Lower: 5, Upper: 5}), timeline.ErrInvalidRange)

	assert.Equal(t, builds, f.composer.builds.Load())
	assert.Equal(t, timeline.Range{Lower: 4, Upper: 7}, f.s.Draft().Current())
	f.player.mu.Lock()
	assert.Equal(t, []timeline.Range{{Lower: 3, Upper: 7}, {Lower: 4, Upper: 7}}, f.player.windows)
	f.player.mu.Unlock()
	assert.Equal(t, timeline.Span(10), f.s.Timeline().Clips()[0].Trim)
}

func TestGuard_RejectsMutationsWhileDraftOpen(t *testing.T) {
	f := newFixture(t, nil)
	a := f.add(t, "/a.mp4", 10)
	b := f.add(t, "/b.mp4", 5)
	f.flush(t)

	require.NoError(t, f.s.SelectClip(a.ID))

	_, err := f.s.AddClip(context.Background(), timeline.Source{URI: "/c.mp4", Duration: 4})
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = f.s.RemoveClip(b.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.ErrorIs(t, f.s.MoveClip(0, 1), ErrInvalidState)
	assert.ErrorIs(t, f.s.SelectClip(b.ID), ErrInvalidState)
	assert.ErrorIs(t, f.s.BeginWholeTimelineTrim(), ErrInvalidState)
	assert.ErrorIs(t, f.s.SetAudioTrack(nil), ErrInvalidState)
	_, err = f.s.SaveEdit()
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, 2, f.s.Timeline().Len())

	require.NoError(t, f.s.CancelDraft())
	assert.ErrorIs(t, f.s.RangeChanged(timeline.Span(1)), ErrInvalidState)
	assert.ErrorIs(t, f.s.ConfirmDraft(), ErrInvalidState)
	assert.ErrorIs(t, f.s.CancelDraft(), ErrInvalidState)
}

func TestIdle_RejectsEditing(t *testing.T) {
	s, err := New(Config{Composer: &gatedComposer{}})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	_, err = s.AddClip(context.Background(), timeline.Source{URI: "/a.mp4", Duration: 1})
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.ErrorIs(t, s.SelectClip("x"), ErrInvalidState)
	assert.Equal(t, StateIdle, s.State())
}

func TestRemoveLastClip_SignalsEmptyTimelineOnce(t *testing.T) {
	f := newFixture(t, nil)
	release := f.composer.hold(1)
	a := f.add(t, "/a.mp4", 10)

	emptied, err := f.s.RemoveClip(a.ID)
	require.NoError(t, err)
	assert.True(t, emptied)
	assert.Equal(t, StateIdle, f.s.State())

	release()
	f.flush(t)

	_, err = f.s.RemoveClip(a.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	applied, _, emptiedCalls := f.observer.snapshot()
	assert.Equal(t, 1, emptiedCalls)
	assert.Empty(t, applied)
	assert.Empty(t, f.player.replacedVersions())
	assert.Nil(t, f.s.Composition())
}

func TestRemoveClip_ClampsFinalRange(t *testing.T) {
	f := newFixture(t, nil)
	f.add(t, "/a.mp4", 10)
	b := f.add(t, "/b.mp4", 5)
	f.flush(t)

	require.NoError(t, f.s.BeginWholeTimelineTrim())
	require.NoError(t, f.s.RangeChanged(timeline.Range{Lower: 2, Upper: 14}))
	require.NoError(t, f.s.ConfirmDraft())

	emptied, err := f.s.RemoveClip(b.ID)
	require.NoError(t, err)
	assert.False(t, emptied)
	f.flush(t)

	assert.Equal(t, timeline.Range{Lower: 2, Upper: 10}, f.s.FinalRange())
	assert.Equal(t, timeline.Range{Lower: 2, Upper: 10}, f.s.Composition().Window)

	_, err = f.s.RemoveClip("missing")
	assert.ErrorIs(t, err, timeline.ErrClipNotFound)
}

func TestMoveClip_PreservesClipsAndTotal(t *testing.T) {
	f := newFixture(t, nil)
	a := f.add(t, "/a.mp4", 10)
	b := f.add(t, "/b.mp4", 5)
	c := f.add(t, "/c.mp4", 4)
	f.flush(t)
	f.trim(t, a.ID, timeline.Range{Lower: 2, Upper: 8})

	before := f.s.Timeline()
	fr := f.s.FinalRange()

	require.NoError(t, f.s.MoveClip(0, 2))
	f.flush(t)

	after := f.s.Timeline()
	clips := after.Clips()
	require.Len(t, clips, 3)
	assert.Equal(t, []string{b.ID, c.ID, a.ID}, []string{clips[0].ID, clips[1].ID, clips[2].ID})
	for _, clip := range before.Clips() {
		got, ok := after.Get(clip.ID)
		require.True(t, ok)
		assert.Equal(t, clip, got)
	}
	assert.InDelta(t, before.TotalDuration(), after.TotalDuration(), 1e-9)
	assert.Equal(t, fr, f.s.FinalRange())
	assert.Equal(t, a.ID, f.s.Composition().Segments[2].ClipID)

	assert.ErrorIs(t, f.s.MoveClip(0, 3), timeline.ErrOutOfBounds)
}

func TestAddStillImage_ToEmptyTimeline(t *testing.T) {
	f := newFixture(t, nil)

	clip, err := f.s.AddStillImage(context.Background(), "/photo.jpg", 0, 0)
	require.NoError(t, err)
	f.flush(t)

	assert.True(t, clip.IsStill())
	assert.Equal(t, 3000, clip.Source.Width)
	assert.InDelta(t, 3.0, f.s.Timeline().TotalDuration(), 1e-9)
	assert.Equal(t, timeline.Span(3), f.s.FinalRange())
	assert.InDelta(t, 3.0, f.s.Composition().Duration(), 1e-9)
}

func TestCapacity(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.MaxClips = 2 })

	assert.True(t, f.s.CanAddMore(2))
	assert.False(t, f.s.CanAddMore(3))
	f.add(t, "/a.mp4", 10)
	f.add(t, "/b.mp4", 5)
	assert.False(t, f.s.CanAddMore(1))
	assert.True(t, f.s.CanAddMore(0))

	_, err := f.s.AddClip(context.Background(), timeline.Source{URI: "/c.mp4", Duration: 4})
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, 2, f.s.Timeline().Len())
	f.flush(t)
}

func TestAddClip_UnreadableLeavesTimelineUnchanged(t *testing.T) {
	f := newFixture(t, nil)
	f.add(t, "/a.mp4", 10)
	f.flush(t)
	before := f.s.Composition()

	_, err := f.s.AddClip(context.Background(), timeline.Source{URI: "/corrupt.mov", Duration: 3})
	require.ErrorIs(t, err, composition.ErrClipUnreadable)

	assert.Equal(t, 1, f.s.Timeline().Len())
	assert.Same(t, before, f.s.Composition())
}

func TestAddClip_DurationFromProbe(t *testing.T) {
	f := newFixture(t, nil)
	clip, err := f.s.AddClip(context.Background(), timeline.Source{URI: "/b.mp4"})
	require.NoError(t, err)
	f.flush(t)
	assert.Equal(t, timeline.Span(5), clip.Trim)
}

func TestRebuildFailure_KeepsLastComposition(t *testing.T) {
	f := newFixture(t, nil)
	a := f.add(t, "/a.mp4", 10)
	f.add(t, "/b.mp4", 5)
	f.flush(t)

	f.composer.failOn(3, &composition.ClipUnreadableError{ClipID: a.ID, URI: "/a.mp4", Err: errors.New("moov atom not found")})
	require.NoError(t, f.s.MoveClip(0, 1))
	f.flush(t)

	assert.Equal(t, uint64(2), f.s.Composition().Version)
	_, failed, _ := f.observer.snapshot()
	assert.Equal(t, []uint64{3}, failed)
	_, err := f.s.SaveEdit()
	assert.ErrorIs(t, err, composition.ErrClipUnreadable)
	assert.NotEmpty(t, f.s.Snapshot().LastError)

	require.NoError(t, f.s.MoveClip(1, 0))
	f.flush(t)
	exp, err := f.s.SaveEdit()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), exp.Composition.Version)
	assert.Empty(t, f.s.Snapshot().LastError)
}

func TestSaveEdit(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.s.SaveEdit()
	assert.ErrorIs(t, err, composition.ErrEmptyTimeline)

	release := f.composer.hold(1)
	f.add(t, "/a.mp4", 10)
	_, err = f.s.SaveEdit()
	assert.ErrorIs(t, err, ErrRebuildPending)

	release()
	f.flush(t)
	exp, err := f.s.SaveEdit()
	require.NoError(t, err)
	assert.InDelta(t, 10.0, exp.Duration, 1e-9)
	assert.Equal(t, timeline.Span(10), exp.FinalRange)
	assert.Len(t, exp.Clips, 1)
}

func TestSetAudioTrack(t *testing.T) {
	f := newFixture(t, func(c *Config) {})
	f.add(t, "/a.mp4", 10)
	f.flush(t)

	assert.ErrorIs(t, f.s.SetAudioTrack(&composition.AudioTrack{URI: "/m.m4a"}), composition.ErrInvalidAudio)
	require.NoError(t, f.s.SetAudioTrack(&composition.AudioTrack{URI: "/m.m4a", Duration: 30, Volume: 0.5}))
	f.flush(t)

	c := f.s.Composition()
	require.NotNil(t, c.Audio)
	assert.Equal(t, timeline.Span(10), c.Audio.Output)

	require.NoError(t, f.s.SetAudioTrack(nil))
	f.flush(t)
	assert.Nil(t, f.s.Composition().Audio)
}

func TestReset_ReturnsToIdleAndDiscardsWork(t *testing.T) {
	f := newFixture(t, nil)
	a := f.add(t, "/a.mp4", 10)
	f.flush(t)
	release := f.composer.hold(2)
	f.add(t, "/b.mp4", 5)
	require.NoError(t, f.s.SelectClip(a.ID))

	f.s.Reset()
	release()
	f.flush(t)

	assert.Equal(t, StateIdle, f.s.State())
	assert.Nil(t, f.s.Composition())
	assert.Nil(t, f.s.Draft())
	assert.Equal(t, 0, f.s.Timeline().Len())

	_, err := f.s.StartEditing(context.Background(), timeline.Source{URI: "/c.mp4", Duration: 4})
	require.NoError(t, err)
	f.flush(t)
	assert.Equal(t, timeline.Span(4), f.s.FinalRange())
}

func TestClose_RejectsFurtherUse(t *testing.T) {
	f := newFixture(t, nil)
	f.add(t, "/a.mp4", 10)
	f.s.Close()

	_, err := f.s.StartEditing(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

type blockingExtractor struct {
	release chan struct{}
}

func (b blockingExtractor) ExtractFrame(ctx context.Context, uri string, second float64) ([]byte, error) {
	select {
	case <-b.release:
		return []byte("jpeg"), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func drain(t *testing.T, ch <-chan frames.Frame) []frames.Frame {
	t.Helper()
	var out []frames.Frame
	timeout := time.After(2 * time.Second)
	for {
		select {
		case f, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, f)
		case <-timeout:
			t.Fatal("thumbnail batch did not finish")
		}
	}
}

func TestThumbnails_InvalidatedByNewDraft(t *testing.T) {
	ex := blockingExtractor{release: make(chan struct{})}
	gen := frames.NewGenerator(ex, nil, 2, nil)
	f := newFixture(t, func(c *Config) { c.Frames = gen })
	a := f.add(t, "/a.mp4", 10)
	f.flush(t)

	stale, err := f.s.Thumbnails(context.Background(), a.ID, 4)
	require.NoError(t, err)
	require.NoError(t, f.s.SelectClip(a.ID))
	assert.Empty(t, drain(t, stale))

	close(ex.release)
	fresh, err := f.s.Thumbnails(context.Background(), a.ID, 3)
	require.NoError(t, err)
	assert.Len(t, drain(t, fresh), 3)

	fut, err := f.s.CoverFrame(context.Background(), a.ID, 4)
	require.NoError(t, err)
	frame, err := fut.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, a.ID, frame.ClipID)

	_, err = f.s.Thumbnails(context.Background(), "missing", 3)
	assert.ErrorIs(t, err, timeline.ErrClipNotFound)
	require.NoError(t, f.s.CancelDraft())
}

func TestThumbnails_WithoutGenerator(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.s.Thumbnails(context.Background(), "x", 1)
	assert.ErrorIs(t, err, ErrNoFrames)
}

func TestDraftSelector_DrivesDraft(t *testing.T) {
	f := newFixture(t, nil)
	a := f.add(t, "/a.mp4", 10)
	f.flush(t)

	_, err := f.s.DraftSelector(300, false)
	assert.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, f.s.SelectClip(a.ID))
	sel, err := f.s.DraftSelector(300, false)
	require.NoError(t, err)
	assert.InDelta(t, 30.0, sel.PixelsPerSecond(), 1e-9)

	require.NoError(t, sel.BeginDrag(selector.HandleLeft))
	require.NoError(t, sel.DragTo(60))
	require.NoError(t, sel.EndDrag())

	assert.Equal(t, timeline.Range{Lower: 2, Upper: 10}, f.s.Draft().Current())
	f.player.mu.Lock()
	assert.Equal(t, []float64{2}, f.player.seeks)
	assert.Equal(t, 2, f.player.pauses)
	assert.Equal(t, 1, f.player.resumes)
	f.player.mu.Unlock()

	require.NoError(t, f.s.CancelDraft())
	require.NoError(t, f.s.SelectClip(a.ID))

	require.NoError(t, sel.BeginDrag(selector.HandleRight))
	require.NoError(t, sel.DragTo(150))
	require.NoError(t, sel.EndDrag())
	assert.Equal(t, timeline.Span(10), f.s.Draft().Current())
	require.NoError(t, f.s.CancelDraft())
}

func TestDraftSelector_KeepsTrimShorterThanMinSpan(t *testing.T) {
	f := newFixture(t, nil)
	a := f.add(t, "/a.mp4", 10)
	f.flush(t)
	f.trim(t, a.ID, timeline.Range{Lower: 3, Upper: 3.5})

	require.NoError(t, f.s.SelectClip(a.ID))
	sel, err := f.s.DraftSelector(300, false)
	require.NoError(t, err)

	assert.Equal(t, timeline.Range{Lower: 3, Upper: 3.5}, sel.Range())
	assert.InDelta(t, 0.5, sel.MinSpan(), 1e-9)
	assert.Equal(t, timeline.Range{Lower: 3, Upper: 3.5}, f.s.Draft().Current())
	require.NoError(t, f.s.CancelDraft())
}

type evictingCache struct {
	mu      sync.Mutex
	dropped []string
}

func (c *evictingCache) Get(frames.Key) ([]byte, bool) { return nil, false }
func (c *evictingCache) Put(frames.Key, []byte) error  { return nil }

func (c *evictingCache) DropClip(clipID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropped = append(c.dropped, clipID)
	return nil
}

func (c *evictingCache) drops() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.dropped...)
}

func TestRemoveAndReset_EvictCachedFrames(t *testing.T) {
	cache := &evictingCache{}
	gen := frames.NewGenerator(media.NewStubFFmpeg(nil), cache, 1, nil)
	f := newFixture(t, func(c *Config) { c.Frames = gen })
	a := f.add(t, "/a.mp4", 10)
	b := f.add(t, "/b.mp4", 5)
	c := f.add(t, "/c.mp4", 4)
	f.flush(t)

	_, err := f.s.RemoveClip(b.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, cache.drops())

	f.s.Reset()
	assert.Equal(t, []string{b.ID, a.ID, c.ID}, cache.drops())
}
