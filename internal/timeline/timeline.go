package timeline

import (
	"fmt"
)

// Timeline is the ordered clip sequence of a story. The zero value is an
// empty timeline. Methods with pointer receivers mutate in place; use Clone
// to take a snapshot.
type Timeline struct {
	clips []Clip
}

// New builds a timeline from clips, validating each trim range.
func New(clips ...Clip) (Timeline, error) {
	var t Timeline
	for _, c := range clips {
		if err := t.Append(c); err != nil {
			return Timeline{}, err
		}
	}
	return t, nil
}

func (t Timeline) Len() int {
	return len(t.clips)
}

func (t Timeline) Empty() bool {
	return len(t.clips) == 0
}

// Clips returns a copy of the clip sequence.
func (t Timeline) Clips() []Clip {
	out := make([]Clip, len(t.clips))
	copy(out, t.clips)
	return out
}

func (t Timeline) At(i int) (Clip, bool) {
	if i < 0 || i >= len(t.clips) {
		return Clip{}, false
	}
	return t.clips[i], true
}

func (t Timeline) IndexOf(id string) int {
	for i, c := range t.clips {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (t Timeline) Get(id string) (Clip, bool) {
	i := t.IndexOf(id)
	if i < 0 {
		return Clip{}, false
	}
	return t.clips[i], true
}

// Append adds c to the end of the timeline.
func (t *Timeline) Append(c Clip) error {
	if err := c.ValidateTrim(c.Trim); err != nil {
		return err
	}
	if t.IndexOf(c.ID) >= 0 {
		return fmt.Errorf("clip %s already on timeline", c.ID)
	}
	t.clips = append(t.clips, c)
	return nil
}

// Remove deletes the clip with the given id and returns it.
func (t *Timeline) Remove(id string) (Clip, error) {
	i := t.IndexOf(id)
	if i < 0 {
		return Clip{}, fmt.Errorf("%w: %s", ErrClipNotFound, id)
	}
	c := t.clips[i]
	t.clips = append(t.clips[:i:i], t.clips[i+1:]...)
	return c, nil
}

// Move relocates the clip at index from so that it ends up at index to.
// Trim ranges are untouched.
func (t *Timeline) Move(from, to int) error {
	n := len(t.clips)
	if from < 0 || from >= n || to < 0 || to >= n {
		return fmt.Errorf("%w: move %d -> %d with %d clips", ErrOutOfBounds, from, to, n)
	}
	if from == to {
		return nil
	}
	c := t.clips[from]
	if from < to {
		copy(t.clips[from:to], t.clips[from+1:to+1])
	} else {
		copy(t.clips[to+1:from+1], t.clips[to:from])
	}
	t.clips[to] = c
	return nil
}

// SetTrim replaces the trim range of one clip.
func (t *Timeline) SetTrim(id string, r Range) error {
	i := t.IndexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrClipNotFound, id)
	}
	c, err := t.clips[i].WithTrim(r)
	if err != nil {
		return err
	}
	t.clips[i] = c
	return nil
}

// TotalDuration is the sum of all trimmed clip durations.
func (t Timeline) TotalDuration() float64 {
	var total float64
	for _, c := range t.clips {
		total += c.Duration()
	}
	return total
}

// Span returns [0, TotalDuration].
func (t Timeline) Span() Range {
	return Span(t.TotalDuration())
}

// Offsets returns the start position of every clip in the concatenated
// timeline, i.e. the cumulative duration of all preceding clips.
func (t Timeline) Offsets() []float64 {
	out := make([]float64, len(t.clips))
	var acc float64
	for i, c := range t.clips {
		out[i] = acc
		acc += c.Duration()
	}
	return out
}

func (t Timeline) Clone() Timeline {
	return Timeline{clips: t.Clips()}
}

// Equal compares two timelines by value, including order.
func (t Timeline) Equal(other Timeline) bool {
	if len(t.clips) != len(other.clips) {
		return false
	}
	for i := range t.clips {
		a, b := t.clips[i], other.clips[i]
		if a.ID != b.ID || a.Source != b.Source || !a.Trim.Equal(b.Trim) {
			return false
		}
	}
	return true
}

// ClampFinalRange fits a whole-timeline range into [0, total]. A range that
// collapses entirely falls back to the full span.
func ClampFinalRange(r Range, total float64) Range {
	out := r.ClampTo(Span(total))
	if !out.Valid() {
		return Span(total)
	}
	return out
}
