// Package composition turns an ordered list of trimmed clips into a single
// playable description: concatenated segments, per-segment render
// instructions and an optional background audio mix.
package composition

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/bestyn/bestynapp-sub001/internal/timeline"
)

var (
	ErrClipUnreadable = errors.New("clip unreadable")
	ErrEmptyTimeline  = errors.New("no clips to compose")
	ErrInvalidAudio   = errors.New("invalid audio track")
)

// ClipUnreadableError identifies the clip that made a build fail.
type ClipUnreadableError struct {
	ClipID string
	URI    string
	Err    error
}

func (e *ClipUnreadableError) Error() string {
	return fmt.Sprintf("clip %s (%s) unreadable: %v", e.ClipID, e.URI, e.Err)
}

func (e *ClipUnreadableError) Unwrap() error { return e.Err }

func (e *ClipUnreadableError) Is(target error) bool { return target == ErrClipUnreadable }

type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// AudioTrack is the optional background track of a story.
type AudioTrack struct {
	URI      string  `json:"uri"`
	Duration float64 `json:"duration"`
	Volume   float64 `json:"volume"`
}

func (a AudioTrack) Validate() error {
	if a.URI == "" {
		return fmt.Errorf("%w: uri is required", ErrInvalidAudio)
	}
	if !timeline.Span(a.Duration).Valid() {
		return fmt.Errorf("%w: duration %.3f", ErrInvalidAudio, a.Duration)
	}
	if a.Volume < 0 || a.Volume > 1 {
		return fmt.Errorf("%w: volume %.2f outside 0..1", ErrInvalidAudio, a.Volume)
	}
	return nil
}

// Segment is one clip's trimmed media placed on the combined timeline.
type Segment struct {
	Index       int             `json:"index"`
	ClipID      string          `json:"clip_id"`
	Source      timeline.Source `json:"source"`
	SourceRange timeline.Range  `json:"source_range"`
	Placement   timeline.Range  `json:"placement"`
	Still       bool            `json:"still"`
	HasAudio    bool            `json:"has_audio"`
}

// Transform maps a source frame into the render canvas.
type Transform struct {
	Scale      float64 `json:"scale"`
	TranslateX float64 `json:"translate_x"`
	TranslateY float64 `json:"translate_y"`
	Rotation   int     `json:"rotation"`
}

// Instruction tells the renderer how to draw the segment covering Placement.
type Instruction struct {
	ClipID    string         `json:"clip_id"`
	Placement timeline.Range `json:"placement"`
	Transform Transform      `json:"transform"`
}

// AudioMix places the background track relative to the window start.
type AudioMix struct {
	Track AudioTrack `json:"track"`
	// Output is relative to the start of the window.
	Output timeline.Range `json:"output"`
	Loop   bool           `json:"loop"`
	Loops  int            `json:"loops"`
}

// Composition is an immutable build result. Consumers only read it.
type Composition struct {
	ID           string         `json:"id"`
	Version      uint64         `json:"version"`
	BuiltAt      time.Time      `json:"built_at"`
	RenderSize   Size           `json:"render_size"`
	FrameRate    float64        `json:"frame_rate"`
	Segments     []Segment      `json:"segments"`
	Instructions []Instruction  `json:"instructions"`
	Audio        *AudioMix      `json:"audio,omitempty"`
	Total        float64        `json:"total"`
	Window       timeline.Range `json:"window"`
}

// Duration is the playable length, i.e. the window length.
func (c *Composition) Duration() float64 {
	return c.Window.Duration()
}

// VisibleSegment is a segment cut down to the window.
type VisibleSegment struct {
	Segment
	// Output is the segment's position relative to the window start.
	Output timeline.Range `json:"output"`
}

// VisibleSegments returns the segments that overlap the window, with source
// and placement ranges cropped to it.
func (c *Composition) VisibleSegments() []VisibleSegment {
	var out []VisibleSegment
	for _, s := range c.Segments {
		overlap, ok := s.Placement.Intersect(c.Window)
		if !ok {
			continue
		}
		cropped := s
		headCut := overlap.Lower - s.Placement.Lower
		cropped.SourceRange = timeline.Range{
			Lower: s.SourceRange.Lower + headCut,
			Upper: s.SourceRange.Lower + headCut + overlap.Duration(),
		}
		cropped.Placement = overlap
		out = append(out, VisibleSegment{
			Segment: cropped,
			Output:  overlap.Shift(-c.Window.Lower),
		})
	}
	return out
}

// Locate maps a time on the combined timeline to the segment that plays it
// and the matching second in that segment's source.
func (c *Composition) Locate(t float64) (Segment, float64, bool) {
	for i, s := range c.Segments {
		last := i == len(c.Segments)-1
		if t >= s.Placement.Lower && (t < s.Placement.Upper || (last && t <= s.Placement.Upper)) {
			local := s.SourceRange.Lower + (t - s.Placement.Lower)
			return s, math.Min(local, s.SourceRange.Upper), true
		}
	}
	return Segment{}, 0, false
}

// Segment returns the segment built from clipID.
func (c *Composition) Segment(clipID string) (Segment, bool) {
	for _, s := range c.Segments {
		if s.ClipID == clipID {
			return s, true
		}
	}
	return Segment{}, false
}

// WithWindow returns a shallow copy of c exposing a different window. It is
// used for cheap scrubbing previews; segments are shared, never mutated.
func (c *Composition) WithWindow(w timeline.Range) *Composition {
	cp := *c
	cp.Window = timeline.ClampFinalRange(w, c.Total)
	if cp.Audio != nil {
		mix := placeAudio(cp.Audio.Track, cp.Window, cp.Audio.Loop)
		cp.Audio = &mix
	}
	return &cp
}

func placeAudio(track AudioTrack, window timeline.Range, loop bool) AudioMix {
	d := window.Duration()
	mix := AudioMix{Track: track, Loop: loop, Loops: 1}
	if loop && track.Duration < d {
		mix.Output = timeline.Span(d)
		mix.Loops = int(math.Ceil(d / track.Duration))
		return mix
	}
	mix.Output = timeline.Span(math.Min(d, track.Duration))
	return mix
}
