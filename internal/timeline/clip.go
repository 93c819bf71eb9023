package timeline

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Kind distinguishes recorded/imported video from still images that were
// promoted to fixed-length clips.
type Kind string

const (
	KindVideo Kind = "video"
	KindStill Kind = "still"
)

// DefaultStillDuration is how long a still image plays when promoted to a clip.
const DefaultStillDuration = 3.0

var StillExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".heic": true,
	".webp": true,
}

var VideoExtensions = map[string]bool{
	".mp4": true,
	".mov": true,
	".m4v": true,
	".mkv": true,
}

// Source is the underlying media item a clip plays from.
type Source struct {
	Kind     Kind    `json:"kind"`
	URI      string  `json:"uri"`
	Duration float64 `json:"duration"`
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
}

func (s Source) Span() Range {
	return Span(s.Duration)
}

// Clip is one media item on the timeline together with its trim range.
// Position in the timeline is implicit from the order of the Timeline.
type Clip struct {
	ID     string `json:"id"`
	Source Source `json:"source"`
	Trim   Range  `json:"trim"`
}

// NewClip creates a clip that plays the whole source.
func NewClip(src Source) (Clip, error) {
	if src.URI == "" {
		return Clip{}, fmt.Errorf("source uri is required")
	}
	if !Span(src.Duration).Valid() {
		return Clip{}, fmt.Errorf("%w: source duration %.3f", ErrInvalidRange, src.Duration)
	}
	if src.Kind == "" {
		src.Kind = KindVideo
	}
	return Clip{
		ID:     NewID(),
		Source: src,
		Trim:   Span(src.Duration),
	}, nil
}

// NewStillClip promotes a still image to a clip of fixed duration d.
func NewStillClip(uri string, d float64, width, height int) (Clip, error) {
	if d <= 0 {
		d = DefaultStillDuration
	}
	return NewClip(Source{
		Kind:     KindStill,
		URI:      uri,
		Duration: d,
		Width:    width,
		Height:   height,
	})
}

func (c Clip) Duration() float64 {
	return c.Trim.Duration()
}

func (c Clip) IsStill() bool {
	return c.Source.Kind == KindStill
}

// WithTrim returns a copy of c using trim r, validating it against the source.
func (c Clip) WithTrim(r Range) (Clip, error) {
	if err := c.ValidateTrim(r); err != nil {
		return c, err
	}
	c.Trim = r
	return c, nil
}

// ValidateTrim checks that r is a non-degenerate range inside the source.
func (c Clip) ValidateTrim(r Range) error {
	if !r.Valid() || !c.Source.Span().Contains(r) {
		return fmt.Errorf("%w: %s outside %s", ErrInvalidRange, r, c.Source.Span())
	}
	return nil
}

// NewID returns a fresh random identifier.
func NewID() string {
	return uuid.NewString()
}

// KindForPath guesses the source kind from a file extension.
func KindForPath(path string) (Kind, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case VideoExtensions[ext]:
		return KindVideo, true
	case StillExtensions[ext]:
		return KindStill, true
	default:
		return "", false
	}
}
