package session

import (
	"context"
	"fmt"

	"github.com/bestyn/bestynapp-sub001/internal/frames"
	"github.com/bestyn/bestynapp-sub001/internal/metrics"
	"github.com/bestyn/bestynapp-sub001/internal/selector"
	"github.com/bestyn/bestynapp-sub001/internal/timeline"
)

// Thumbnails extracts n frames of a clip for the thumbnail strip. The batch
// belongs to the current draft context: opening a new draft, cancelling,
// confirming or resetting cancels it, and frames finishing after that are
// dropped rather than delivered.
func (s *Session) Thumbnails(ctx context.Context, clipID string, n int) (<-chan frames.Frame, error) {
	if s.frames == nil {
		return nil, ErrNoFrames
	}
	s.mu.RLock()
	clip, ok := s.tl.Get(clipID)
	epoch, epochCtx := s.epoch, s.epochCtx
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", timeline.ErrClipNotFound, clipID)
	}

	batchCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(epochCtx, cancel)
	src := s.frames.ExtractFrames(batchCtx, clip, n)
	out := make(chan frames.Frame, max(n, 0))
	go func() {
		defer close(out)
		defer cancel()
		defer stop()
		for f := range src {
			if !s.frameCurrent(epoch, clip) {
				metrics.IncFrame(metrics.FrameDiscarded)
				continue
			}
			out <- f
		}
	}()
	return out, nil
}

// CoverFrame extracts one frame of a clip for the cover picker.
func (s *Session) CoverFrame(ctx context.Context, clipID string, second float64) (*frames.Future, error) {
	if s.frames == nil {
		return nil, ErrNoFrames
	}
	s.mu.RLock()
	clip, ok := s.tl.Get(clipID)
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", timeline.ErrClipNotFound, clipID)
	}
	return s.frames.ExtractSingleFrame(ctx, clip, second), nil
}

func (s *Session) forgetFrames(clipIDs ...string) {
	if s.frames != nil && len(clipIDs) > 0 {
		s.frames.Forget(clipIDs...)
	}
}

func (s *Session) frameCurrent(epoch uint64, clip timeline.Clip) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.epoch != epoch {
		return false
	}
	cur, ok := s.tl.Get(clip.ID)
	return ok && cur.Source == clip.Source
}

// DraftSelector returns a range selector bound to the open draft. Boundary
// moves feed RangeChanged, pointer moves seek the player and drags pause
// playback. Once the draft is closed or replaced the selector's events are
// ignored.
func (s *Session) DraftSelector(width float64, pinOnScroll bool) (*selector.Selector, error) {
	s.mu.RLock()
	if s.state != StateEditingDraft {
		err := s.stateErrLocked("draft selector")
		s.mu.RUnlock()
		return nil, err
	}
	limits := s.draftLimitsLocked()
	current := s.draft.Current()
	epoch := s.epoch
	s.mu.RUnlock()

	// A trim already shorter than the minimum span must show as it is.
	minSpan := min(s.cfg.MinSpan, current.Duration())

	sel, err := selector.New(selector.Config{
		Width:              width,
		Duration:           limits.Upper,
		MinSpan:            minSpan,
		MaxVisibleSeconds:  s.cfg.MaxVisibleSeconds,
		PinHandlesOnScroll: pinOnScroll,
	}, selector.ListenerFuncs{
		OnRangeChanged: func(r timeline.Range) {
			if err := s.rangeChanged(epoch, r); err != nil {
				s.logger.Debug("selector range ignored", "range", r.String(), "error", err)
			}
		},
		OnFrameChanged: func(second float64) {
			s.playerCall(epoch, func() { s.player.Seek(second) })
		},
		OnDragStarted: func(selector.Handle) {
			s.playerCall(epoch, s.player.Pause)
		},
		OnDragEnded: func(selector.Handle) {
			s.playerCall(epoch, s.player.Resume)
		},
	})
	if err != nil {
		return nil, err
	}
	sel.SetRange(current)
	sel.SetPointer(current.Lower)
	return sel, nil
}

func (s *Session) playerCall(epoch uint64, fn func()) {
	_ = s.mutate(func() (func(), error) {
		if s.epoch != epoch {
			return nil, nil
		}
		return fn, nil
	})
}
