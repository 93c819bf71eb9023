// Package session owns the editing state of one story: the committed
// timeline, its final range, the single open draft and the composition
// rebuilt after every committed change.
//
// Mutating calls are serialised. Rebuilds run on background goroutines and
// are applied last-issued-wins: a result whose version is no longer the
// latest issued is dropped.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/bestyn/bestynapp-sub001/internal/composition"
	"github.com/bestyn/bestynapp-sub001/internal/frames"
	"github.com/bestyn/bestynapp-sub001/internal/logging"
	"github.com/bestyn/bestynapp-sub001/internal/media"
	"github.com/bestyn/bestynapp-sub001/internal/metrics"
	"github.com/bestyn/bestynapp-sub001/internal/timeline"
)

var (
	ErrInvalidState     = errors.New("invalid session state")
	ErrCapacityExceeded = errors.New("clip capacity exceeded")
	ErrRebuildPending   = errors.New("composition rebuild pending")
	ErrClosed           = errors.New("session closed")
	ErrNoFrames         = errors.New("frame generator not configured")
)

const (
	DefaultMaxClips          = 10
	DefaultMinSpan           = 1.0
	DefaultMaxVisibleSeconds = 60.0

	rangeEpsilon = 1e-6
)

type State int

const (
	StateIdle State = iota
	StateEditing
	StateEditingDraft
)

func (s State) String() string {
	switch s {
	case StateEditing:
		return "editing"
	case StateEditingDraft:
		return "editing_draft"
	default:
		return "idle"
	}
}

// Composer builds compositions. *composition.Builder implements it.
type Composer interface {
	Check(ctx context.Context, clip timeline.Clip) (*media.Info, error)
	Build(ctx context.Context, req composition.Request) (*composition.Composition, error)
	Preview(clip timeline.Clip) (*composition.Composition, error)
}

type Config struct {
	ID                string
	MaxClips          int
	StillDuration     float64
	MinSpan           float64
	MaxVisibleSeconds float64

	Composer Composer
	Frames   *frames.Generator
	Player   Player
	Observer Observer
	Logger   *slog.Logger
}

// Export is the committed story handed to the publish flow.
type Export struct {
	Composition *composition.Composition `json:"composition"`
	Clips       []timeline.Clip          `json:"clips"`
	FinalRange  timeline.Range           `json:"final_range"`
	Duration    float64                  `json:"duration"`
}

type Session struct {
	id       string
	cfg      Config
	composer Composer
	frames   *frames.Generator
	player   Player
	observer Observer
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// opMu serialises mutations together with the player and observer
	// calls they produce. Always taken before mu.
	opMu sync.Mutex
	mu   sync.RWMutex

	state      State
	tl         timeline.Timeline
	finalRange timeline.Range
	audio      *composition.AudioTrack
	draft      Draft
	current    *composition.Composition
	preview    *composition.Composition
	closed     bool

	version uint64
	failed  uint64
	failErr error
	pending int
	idle    chan struct{}

	epoch       uint64
	epochCtx    context.Context
	epochCancel context.CancelFunc
}

func New(cfg Config) (*Session, error) {
	if cfg.Composer == nil {
		return nil, fmt.Errorf("session: composer is required")
	}
	if cfg.ID == "" {
		cfg.ID = timeline.NewID()
	}
	if cfg.MaxClips <= 0 {
		cfg.MaxClips = DefaultMaxClips
	}
	if cfg.StillDuration <= 0 {
		cfg.StillDuration = timeline.DefaultStillDuration
	}
	if cfg.MinSpan <= 0 {
		cfg.MinSpan = DefaultMinSpan
	}
	if cfg.MaxVisibleSeconds <= 0 {
		cfg.MaxVisibleSeconds = DefaultMaxVisibleSeconds
	}
	if cfg.Player == nil {
		cfg.Player = noopPlayer{}
	}
	if cfg.Observer == nil {
		cfg.Observer = noopObserver{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)
	s := &Session{
		id:       cfg.ID,
		cfg:      cfg,
		composer: cfg.Composer,
		frames:   cfg.Frames,
		player:   cfg.Player,
		observer: cfg.Observer,
		logger:   logging.WithSessionID(logging.WithComponent(logging.OrDiscard(cfg.Logger), "session"), cfg.ID),
		ctx:      ctx,
		cancel:   cancel,
		idle:     idle,
	}
	s.epochCtx, s.epochCancel = context.WithCancel(ctx)
	return s, nil
}

func (s *Session) ID() string { return s.id }

// mutate runs fn under both locks and then the notification it returns,
// still serialised against other mutations but outside mu.
func (s *Session) mutate(fn func() (func(), error)) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	notify, err := fn()
	s.mu.Unlock()

	if notify != nil {
		notify()
	}
	return err
}

func (s *Session) stateErrLocked(op string) error {
	if s.closed {
		return ErrClosed
	}
	return fmt.Errorf("%w: %s while %s", ErrInvalidState, op, s.state)
}

// StartEditing moves Idle to Editing with an optional pre-seeded timeline.
// Every seed is probed first; an unreadable one leaves the session Idle.
func (s *Session) StartEditing(ctx context.Context, seed ...timeline.Source) ([]timeline.Clip, error) {
	if len(seed) > s.cfg.MaxClips {
		return nil, fmt.Errorf("%w: %d clips, max %d", ErrCapacityExceeded, len(seed), s.cfg.MaxClips)
	}
	clips := make([]timeline.Clip, 0, len(seed))
	for _, src := range seed {
		clip, err := s.prepare(ctx, src)
		if err != nil {
			return nil, err
		}
		clips = append(clips, clip)
	}

	err := s.mutate(func() (func(), error) {
		if s.closed || s.state != StateIdle {
			return nil, s.stateErrLocked("start editing")
		}
		tl, err := timeline.New(clips...)
		if err != nil {
			return nil, err
		}
		s.tl = tl
		s.finalRange = tl.Span()
		s.state = StateEditing
		if !tl.Empty() {
			s.scheduleRebuildLocked()
		}
		s.logger.Info("editing started", "clips", tl.Len(), "total", tl.TotalDuration())
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return clips, nil
}

// CanAddMore reports whether count more clips fit under the capacity.
func (s *Session) CanAddMore(count int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return count >= 0 && s.tl.Len()+count <= s.cfg.MaxClips
}

// AddClip probes src and appends it to the end of the timeline. The probe
// runs without holding the session; state and capacity are checked again
// before the clip is committed.
func (s *Session) AddClip(ctx context.Context, src timeline.Source) (timeline.Clip, error) {
	if err := s.precheckAdd(); err != nil {
		return timeline.Clip{}, err
	}
	clip, err := s.prepare(ctx, src)
	if err != nil {
		return timeline.Clip{}, err
	}

	err = s.mutate(func() (func(), error) {
		if err := s.checkAddLocked(); err != nil {
			return nil, err
		}
		oldTotal := s.tl.TotalDuration()
		wasEmpty := s.tl.Empty()
		if err := s.tl.Append(clip); err != nil {
			return nil, err
		}
		switch {
		case wasEmpty:
			s.finalRange = s.tl.Span()
		case math.Abs(s.finalRange.Upper-oldTotal) < rangeEpsilon:
			// A final range reaching the end keeps reaching it.
			s.finalRange.Upper = s.tl.TotalDuration()
		}
		v := s.scheduleRebuildLocked()
		logging.WithClipID(s.logger, clip.ID).Info("clip added",
			"kind", clip.Source.Kind,
			"uri", logging.SanitizePath(clip.Source.URI),
			"duration", clip.Duration(),
			"version", v,
		)
		return nil, nil
	})
	if err != nil {
		return timeline.Clip{}, err
	}
	return clip, nil
}

// AddStillImage promotes an image to a clip of the configured still
// duration.
func (s *Session) AddStillImage(ctx context.Context, uri string, width, height int) (timeline.Clip, error) {
	return s.AddClip(ctx, timeline.Source{
		Kind:     timeline.KindStill,
		URI:      uri,
		Duration: s.cfg.StillDuration,
		Width:    width,
		Height:   height,
	})
}

func (s *Session) precheckAdd() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkAddLocked()
}

func (s *Session) checkAddLocked() error {
	if s.state != StateEditing {
		return s.stateErrLocked("add clip")
	}
	if s.tl.Len()+1 > s.cfg.MaxClips {
		return fmt.Errorf("%w: max %d clips", ErrCapacityExceeded, s.cfg.MaxClips)
	}
	return nil
}

// prepare probes a source and turns it into a clip covering the whole
// source. A missing duration or size is taken from the probe.
func (s *Session) prepare(ctx context.Context, src timeline.Source) (timeline.Clip, error) {
	if src.Kind == "" {
		src.Kind = timeline.KindVideo
		if k, ok := timeline.KindForPath(src.URI); ok {
			src.Kind = k
		}
	}
	if src.Kind == timeline.KindStill && src.Duration <= 0 {
		src.Duration = s.cfg.StillDuration
	}

	probe := timeline.Clip{ID: timeline.NewID(), Source: src, Trim: src.Span()}
	info, err := s.composer.Check(ctx, probe)
	if err != nil {
		return timeline.Clip{}, err
	}
	if src.Duration <= 0 {
		src.Duration = info.Duration
	}
	if src.Width == 0 || src.Height == 0 {
		src.Width, src.Height = info.DisplaySize()
	}

	clip, err := timeline.NewClip(src)
	if err != nil {
		return timeline.Clip{}, &composition.ClipUnreadableError{ClipID: probe.ID, URI: src.URI, Err: err}
	}
	clip.ID = probe.ID
	return clip, nil
}

// SelectClip opens a single-clip draft. Whole-timeline playback is paused
// and the player switches to a preview of the selected clip.
func (s *Session) SelectClip(clipID string) error {
	return s.mutate(func() (func(), error) {
		if s.state != StateEditing {
			return nil, s.stateErrLocked("select clip")
		}
		clip, ok := s.tl.Get(clipID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", timeline.ErrClipNotFound, clipID)
		}
		preview, err := s.composer.Preview(clip)
		if err != nil {
			return nil, err
		}
		s.draft = ClipDraft{ClipID: clip.ID, Range: clip.Trim}
		s.state = StateEditingDraft
		s.preview = preview
		s.bumpEpochLocked()
		logging.WithClipID(s.logger, clip.ID).Debug("clip draft opened", "range", clip.Trim.String())
		return func() {
			s.player.Pause()
			s.player.Replace(preview)
		}, nil
	})
}

// BeginWholeTimelineTrim opens a draft on the final range.
func (s *Session) BeginWholeTimelineTrim() error {
	return s.mutate(func() (func(), error) {
		if s.state != StateEditing {
			return nil, s.stateErrLocked("begin whole-timeline trim")
		}
		if s.tl.Empty() {
			return nil, fmt.Errorf("%w: timeline is empty", ErrInvalidState)
		}
		s.draft = WholeTimelineDraft{Range: s.finalRange}
		s.state = StateEditingDraft
		if s.current != nil {
			s.preview = s.current.WithWindow(s.finalRange)
		}
		s.bumpEpochLocked()
		s.logger.Debug("timeline draft opened", "range", s.finalRange.String())
		return nil, nil
	})
}

// RangeChanged stores a candidate range in the open draft and moves the
// preview window. The committed state is not touched and nothing is
// rebuilt.
func (s *Session) RangeChanged(r timeline.Range) error {
	return s.rangeChanged(0, r)
}

// rangeChanged applies r only if the epoch still matches; epoch 0 skips the
// check.
func (s *Session) rangeChanged(epoch uint64, r timeline.Range) error {
	return s.mutate(func() (func(), error) {
		if s.state != StateEditingDraft {
			return nil, s.stateErrLocked("range changed")
		}
		if epoch != 0 && epoch != s.epoch {
			return nil, fmt.Errorf("%w: draft was replaced", ErrInvalidState)
		}
		limits := s.draftLimitsLocked()
		if !r.Valid() || !limits.Contains(r) {
			return nil, fmt.Errorf("%w: %s outside %s", timeline.ErrInvalidRange, r, limits)
		}
		s.draft = s.draft.withRange(r)
		if s.preview != nil {
			s.preview = s.preview.WithWindow(r)
		}
		return func() { s.player.SetWindow(r) }, nil
	})
}

// ConfirmDraft writes the draft range back, closes the draft and rebuilds.
func (s *Session) ConfirmDraft() error {
	return s.mutate(func() (func(), error) {
		if s.state != StateEditingDraft {
			return nil, s.stateErrLocked("confirm draft")
		}
		switch d := s.draft.(type) {
		case ClipDraft:
			if err := s.tl.SetTrim(d.ClipID, d.Range); err != nil {
				return nil, err
			}
			if total := s.tl.TotalDuration(); !timeline.Span(total).Contains(s.finalRange) {
				s.finalRange = timeline.ClampFinalRange(s.finalRange, total)
			}
		case WholeTimelineDraft:
			s.finalRange = timeline.ClampFinalRange(d.Range, s.tl.TotalDuration())
		}
		s.closeDraftLocked()
		v := s.scheduleRebuildLocked()
		s.logger.Info("draft confirmed", "final_range", s.finalRange.String(), "version", v)
		return s.player.Resume, nil
	})
}

// CancelDraft discards the draft and restores the committed preview.
func (s *Session) CancelDraft() error {
	return s.mutate(func() (func(), error) {
		if s.state != StateEditingDraft {
			return nil, s.stateErrLocked("cancel draft")
		}
		s.closeDraftLocked()
		cur := s.current
		s.logger.Debug("draft cancelled")
		return func() {
			if cur != nil {
				s.player.Replace(cur)
			}
			s.player.Resume()
		}, nil
	})
}

func (s *Session) closeDraftLocked() {
	s.draft = nil
	s.preview = nil
	s.state = StateEditing
	s.bumpEpochLocked()
}

// RemoveClip deletes a clip. Removing the last clip ends editing: the
// session returns to Idle, any in-flight rebuild is discarded and the
// observer's TimelineEmptied is called; emptied is true in that case.
func (s *Session) RemoveClip(clipID string) (emptied bool, err error) {
	err = s.mutate(func() (func(), error) {
		if s.state != StateEditing {
			return nil, s.stateErrLocked("remove clip")
		}
		if _, err := s.tl.Remove(clipID); err != nil {
			return nil, err
		}
		if s.tl.Empty() {
			emptied = true
			s.clearLocked()
			s.logger.Info("last clip removed, editing ended")
			return func() {
				s.player.Pause()
				s.observer.TimelineEmptied()
				s.forgetFrames(clipID)
			}, nil
		}
		s.finalRange = timeline.ClampFinalRange(s.finalRange, s.tl.TotalDuration())
		v := s.scheduleRebuildLocked()
		logging.WithClipID(s.logger, clipID).Info("clip removed", "version", v)
		return func() { s.forgetFrames(clipID) }, nil
	})
	return emptied, err
}

// MoveClip reorders the timeline. Trim ranges are untouched.
func (s *Session) MoveClip(from, to int) error {
	return s.mutate(func() (func(), error) {
		if s.state != StateEditing {
			return nil, s.stateErrLocked("move clip")
		}
		if err := s.tl.Move(from, to); err != nil {
			return nil, err
		}
		if from != to {
			s.scheduleRebuildLocked()
		}
		return nil, nil
	})
}

// SetAudioTrack attaches, replaces or (with nil) removes the background
// track.
func (s *Session) SetAudioTrack(track *composition.AudioTrack) error {
	if track != nil {
		if err := track.Validate(); err != nil {
			return err
		}
	}
	return s.mutate(func() (func(), error) {
		if s.state != StateEditing {
			return nil, s.stateErrLocked("set audio")
		}
		if track == nil {
			s.audio = nil
		} else {
			cp := *track
			s.audio = &cp
		}
		if !s.tl.Empty() {
			s.scheduleRebuildLocked()
		}
		return nil, nil
	})
}

// Reset drops all state and returns to Idle. Results of work started
// before the reset are discarded.
func (s *Session) Reset() {
	_ = s.mutate(func() (func(), error) {
		ids := make([]string, 0, s.tl.Len())
		for _, c := range s.tl.Clips() {
			ids = append(ids, c.ID)
		}
		s.clearLocked()
		return func() {
			s.player.Pause()
			s.forgetFrames(ids...)
		}, nil
	})
}

func (s *Session) clearLocked() {
	s.state = StateIdle
	s.tl = timeline.Timeline{}
	s.finalRange = timeline.Range{}
	s.audio = nil
	s.draft = nil
	s.current = nil
	s.preview = nil
	s.failErr = nil
	// Outstanding rebuilds become stale.
	s.version++
	s.bumpEpochLocked()
}

// Close resets the session, cancels background work and waits for
// in-flight rebuilds to return.
func (s *Session) Close() {
	s.Reset()
	s.mu.Lock()
	s.closed = true
	idle := s.idle
	s.mu.Unlock()
	s.cancel()
	<-idle
}

// SaveEdit returns the committed story for publishing. It fails while a
// draft is open or while the latest rebuild has not been applied.
func (s *Session) SaveEdit() (Export, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateEditing {
		return Export{}, s.stateErrLocked("save edit")
	}
	if s.tl.Empty() {
		return Export{}, composition.ErrEmptyTimeline
	}
	if s.current == nil || s.current.Version != s.version {
		if s.failed == s.version && s.failErr != nil {
			return Export{}, fmt.Errorf("latest rebuild failed: %w", s.failErr)
		}
		return Export{}, ErrRebuildPending
	}
	return Export{
		Composition: s.current,
		Clips:       s.tl.Clips(),
		FinalRange:  s.finalRange,
		Duration:    s.current.Duration(),
	}, nil
}

// Flush waits until no rebuild is in flight.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.RLock()
	idle := s.idle
	s.mu.RUnlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) scheduleRebuildLocked() uint64 {
	s.version++
	req := composition.Request{
		Clips:      s.tl.Clips(),
		FinalRange: s.finalRange,
		Version:    s.version,
	}
	if s.audio != nil {
		a := *s.audio
		req.Audio = &a
	}
	if s.pending == 0 {
		s.idle = make(chan struct{})
	}
	s.pending++
	go s.rebuild(req, time.Now())
	return req.Version
}

func (s *Session) rebuild(req composition.Request, issued time.Time) {
	c, err := s.composer.Build(s.ctx, req)

	_ = s.mutate(func() (func(), error) {
		switch {
		case req.Version != s.version:
			metrics.ObserveRebuild(metrics.RebuildStale, time.Since(issued))
			s.logger.Debug("stale rebuild discarded", "version", req.Version, "latest", s.version)
			return nil, nil
		case err != nil:
			s.failed, s.failErr = req.Version, err
			metrics.ObserveRebuild(metrics.RebuildFailed, time.Since(issued))
			s.logger.Warn("rebuild failed, keeping last composition", "version", req.Version, "error", err)
			return func() { s.observer.RebuildFailed(req.Version, err) }, nil
		}
		s.current = c
		s.failErr = nil
		push := s.draft == nil
		metrics.ObserveRebuild(metrics.RebuildApplied, time.Since(issued))
		s.logger.Debug("composition applied", "version", req.Version, "duration", c.Duration())
		return func() {
			if push {
				s.player.Replace(c)
			}
			s.observer.CompositionApplied(req.Version, c)
		}, nil
	})

	s.mu.Lock()
	s.pending--
	if s.pending == 0 {
		close(s.idle)
	}
	s.mu.Unlock()
}

// bumpEpochLocked invalidates frame work tied to the previous draft
// context.
func (s *Session) bumpEpochLocked() {
	s.epoch++
	s.epochCancel()
	s.epochCtx, s.epochCancel = context.WithCancel(s.ctx)
}

func (s *Session) draftLimitsLocked() timeline.Range {
	switch d := s.draft.(type) {
	case ClipDraft:
		if clip, ok := s.tl.Get(d.ClipID); ok {
			return clip.Source.Span()
		}
	case WholeTimelineDraft:
		return s.tl.Span()
	}
	return timeline.Range{}
}
