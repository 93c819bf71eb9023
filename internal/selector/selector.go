// Package selector maps horizontal positions on a trim slider to times and
// back. It owns the transient draft range and handle positions only; changes
// are reported through a Listener and never touch the committed timeline.
package selector

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/bestyn/bestynapp-sub001/internal/timeline"
)

const (
	DefaultMinSpan           = 1.0
	DefaultMaxVisibleSeconds = 60.0
)

var (
	ErrGestureActive = errors.New("another gesture is in progress")
	ErrNoDrag        = errors.New("no drag in progress")
	ErrBadConfig     = errors.New("invalid selector config")
)

type Handle int

const (
	HandleNone Handle = iota
	HandleLeft
	HandleRight
	HandlePointer
)

func (h Handle) String() string {
	switch h {
	case HandleLeft:
		return "left"
	case HandleRight:
		return "right"
	case HandlePointer:
		return "pointer"
	default:
		return "none"
	}
}

// ParseHandle is the inverse of Handle.String.
func ParseHandle(s string) (Handle, error) {
	switch s {
	case "left":
		return HandleLeft, nil
	case "right":
		return HandleRight, nil
	case "pointer":
		return HandlePointer, nil
	default:
		return HandleNone, fmt.Errorf("unknown handle %q", s)
	}
}

// Listener receives selector events. Calls are made after the selector's
// lock is released, in the order the events happened.
type Listener interface {
	RangeChanged(r timeline.Range)
	FrameChanged(second float64)
	DragStarted(h Handle)
	DragEnded(h Handle)
}

// ListenerFuncs adapts optional functions to a Listener.
type ListenerFuncs struct {
	OnRangeChanged func(timeline.Range)
	OnFrameChanged func(float64)
	OnDragStarted  func(Handle)
	OnDragEnded    func(Handle)
}

func (l ListenerFuncs) RangeChanged(r timeline.Range) {
	if l.OnRangeChanged != nil {
		l.OnRangeChanged(r)
	}
}

func (l ListenerFuncs) FrameChanged(s float64) {
	if l.OnFrameChanged != nil {
		l.OnFrameChanged(s)
	}
}

func (l ListenerFuncs) DragStarted(h Handle) {
	if l.OnDragStarted != nil {
		l.OnDragStarted(h)
	}
}

func (l ListenerFuncs) DragEnded(h Handle) {
	if l.OnDragEnded != nil {
		l.OnDragEnded(h)
	}
}

type Config struct {
	// Width is the visible track width in pixels.
	Width float64
	// Duration is the length of the media being trimmed.
	Duration          float64
	MinSpan           float64
	MaxVisibleSeconds float64
	// PinHandlesOnScroll keeps the boundary handles at their screen
	// position while the content scrolls, so scrolling changes the range.
	PinHandlesOnScroll bool
}

type Selector struct {
	mu       sync.Mutex
	cfg      Config
	listener Listener

	pps     float64
	scroll  float64
	rng     timeline.Range
	pointer float64
	drag    Handle
}

// New returns a selector covering the full duration with the pointer at 0.
func New(cfg Config, listener Listener) (*Selector, error) {
	if cfg.Width <= 0 {
		return nil, fmt.Errorf("%w: width %.1f", ErrBadConfig, cfg.Width)
	}
	if !timeline.Span(cfg.Duration).Valid() {
		return nil, fmt.Errorf("%w: duration %.3f", ErrBadConfig, cfg.Duration)
	}
	if cfg.MinSpan <= 0 {
		cfg.MinSpan = DefaultMinSpan
	}
	if cfg.MinSpan > cfg.Duration {
		cfg.MinSpan = cfg.Duration
	}
	if cfg.MaxVisibleSeconds <= 0 {
		cfg.MaxVisibleSeconds = DefaultMaxVisibleSeconds
	}
	if listener == nil {
		listener = ListenerFuncs{}
	}
	s := &Selector{
		cfg:      cfg,
		listener: listener,
		rng:      timeline.Span(cfg.Duration),
	}
	s.pps = pixelsPerSecond(cfg.Width, cfg.Duration, cfg.MaxVisibleSeconds)
	return s, nil
}

func pixelsPerSecond(width, duration, maxVisible float64) float64 {
	return width / math.Min(duration, maxVisible)
}

func (s *Selector) PixelsPerSecond() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pps
}

func (s *Selector) ContentWidth() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Duration * s.pps
}

func (s *Selector) MinSpan() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.MinSpan
}

func (s *Selector) Range() timeline.Range {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng
}

func (s *Selector) Pointer() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pointer
}

func (s *Selector) ScrollOffset() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scroll
}

// Dragging returns the handle currently being dragged, if any.
func (s *Selector) Dragging() Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drag
}

// TimeAt converts a screen x to a time, clamped to the media.
func (s *Selector) TimeAt(x float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeAt(x)
}

// XFor converts a time to a screen x under the current scroll offset.
func (s *Selector) XFor(second float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.xFor(second)
}

// PositionOf returns the screen x of a handle.
func (s *Selector) PositionOf(h Handle) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch h {
	case HandleLeft:
		return s.xFor(s.rng.Lower)
	case HandleRight:
		return s.xFor(s.rng.Upper)
	default:
		return s.xFor(s.pointer)
	}
}

func (s *Selector) timeAt(x float64) float64 {
	return clamp((x+s.scroll)/s.pps, 0, s.cfg.Duration)
}

func (s *Selector) xFor(second float64) float64 {
	return second*s.pps - s.scroll
}

func (s *Selector) maxScroll() float64 {
	return math.Max(0, s.cfg.Duration*s.pps-s.cfg.Width)
}

// SetRange positions both boundary handles without emitting events. The
// range is clamped to the media and widened to the minimum span if needed.
func (s *Selector) SetRange(r timeline.Range) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lower := clamp(r.Lower, 0, s.cfg.Duration-s.cfg.MinSpan)
	upper := clamp(r.Upper, lower+s.cfg.MinSpan, s.cfg.Duration)
	s.rng = timeline.Range{Lower: lower, Upper: upper}
	s.pointer = clamp(s.pointer, lower, upper)
}

// SetPointer moves the frame pointer to follow playback. No event is
// emitted since the position came from the player.
func (s *Selector) SetPointer(second float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pointer = clamp(second, s.rng.Lower, s.rng.Upper)
}

// SetWidth adapts to a new track width, keeping handle times.
func (s *Selector) SetWidth(width float64) error {
	if width <= 0 {
		return fmt.Errorf("%w: width %.1f", ErrBadConfig, width)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Width = width
	s.pps = pixelsPerSecond(width, s.cfg.Duration, s.cfg.MaxVisibleSeconds)
	s.scroll = clamp(s.scroll, 0, s.maxScroll())
	return nil
}

// BeginDrag starts a drag gesture on h.
func (s *Selector) BeginDrag(h Handle) error {
	if h == HandleNone {
		return fmt.Errorf("%w: no handle", ErrBadConfig)
	}
	s.mu.Lock()
	if s.drag != HandleNone {
		s.mu.Unlock()
		return ErrGestureActive
	}
	s.drag = h
	s.mu.Unlock()

	s.listener.DragStarted(h)
	return nil
}

// DragTo moves the dragged handle to screen x.
func (s *Selector) DragTo(x float64) error {
	s.mu.Lock()
	if s.drag == HandleNone {
		s.mu.Unlock()
		return ErrNoDrag
	}
	t := s.timeAt(x)
	prev, prevPointer := s.rng, s.pointer
	switch s.drag {
	case HandleLeft:
		s.rng.Lower = clamp(t, 0, s.rng.Upper-s.cfg.MinSpan)
		s.pointer = s.rng.Lower
	case HandleRight:
		s.rng.Upper = clamp(t, s.rng.Lower+s.cfg.MinSpan, s.cfg.Duration)
		s.pointer = s.rng.Upper
	case HandlePointer:
		s.pointer = clamp(t, s.rng.Lower, s.rng.Upper)
	}
	ev := s.changes(prev, prevPointer)
	s.mu.Unlock()

	ev.dispatch(s.listener)
	return nil
}

// EndDrag finishes the current drag gesture.
func (s *Selector) EndDrag() error {
	s.mu.Lock()
	h := s.drag
	if h == HandleNone {
		s.mu.Unlock()
		return ErrNoDrag
	}
	s.drag = HandleNone
	s.mu.Unlock()

	s.listener.DragEnded(h)
	return nil
}

// ScrollTo sets the horizontal scroll offset. It is rejected while a drag
// is in progress.
func (s *Selector) ScrollTo(offset float64) error {
	s.mu.Lock()
	if s.drag != HandleNone {
		s.mu.Unlock()
		return ErrGestureActive
	}
	xl, xr, xp := s.xFor(s.rng.Lower), s.xFor(s.rng.Upper), s.xFor(s.pointer)
	s.scroll = clamp(offset, 0, s.maxScroll())
	if !s.cfg.PinHandlesOnScroll {
		s.mu.Unlock()
		return nil
	}

	prev, prevPointer := s.rng, s.pointer
	lower := clamp(s.timeAt(xl), 0, s.cfg.Duration-s.cfg.MinSpan)
	upper := clamp(s.timeAt(xr), lower+s.cfg.MinSpan, s.cfg.Duration)
	s.rng = timeline.Range{Lower: lower, Upper: upper}
	s.pointer = clamp(s.timeAt(xp), lower, upper)
	ev := s.changes(prev, prevPointer)
	s.mu.Unlock()

	ev.dispatch(s.listener)
	return nil
}

type events struct {
	rng     *timeline.Range
	pointer *float64
}

func (s *Selector) changes(prevRange timeline.Range, prevPointer float64) events {
	var ev events
	if s.rng != prevRange {
		r := s.rng
		ev.rng = &r
	}
	if s.pointer != prevPointer || ev.rng != nil {
		p := s.pointer
		ev.pointer = &p
	}
	return ev
}

func (ev events) dispatch(l Listener) {
	if ev.rng != nil {
		l.RangeChanged(*ev.rng)
	}
	if ev.pointer != nil {
		l.FrameChanged(*ev.pointer)
	}
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	return math.Max(lo, math.Min(v, hi))
}
