// Package timeline holds the clip data model of a story: time ranges, clip
// entities and the ordered clip sequence they form.
package timeline

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidRange = errors.New("invalid time range")
	ErrClipNotFound = errors.New("clip not found")
	ErrOutOfBounds  = errors.New("index out of bounds")
)

// epsilon absorbs float drift from repeated add/subtract of second values.
const epsilon = 1e-9

// Range is a closed interval of seconds.
type Range struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Span returns the range [0, d].
func Span(d float64) Range {
	return Range{Lower: 0, Upper: d}
}

func (r Range) Duration() float64 {
	return r.Upper - r.Lower
}

// Valid reports whether the range is non-degenerate and non-negative.
func (r Range) Valid() bool {
	if math.IsNaN(r.Lower) || math.IsNaN(r.Upper) || math.IsInf(r.Lower, 0) || math.IsInf(r.Upper, 0) {
		return false
	}
	return r.Lower >= 0 && r.Upper-r.Lower > epsilon
}

// Contains reports whether other lies fully inside r.
func (r Range) Contains(other Range) bool {
	return other.Lower >= r.Lower-epsilon && other.Upper <= r.Upper+epsilon
}

// ContainsTime reports whether t lies inside r.
func (r Range) ContainsTime(t float64) bool {
	return t >= r.Lower-epsilon && t <= r.Upper+epsilon
}

// ClampTo shrinks r so that it lies inside bounds. The result may be
// degenerate when r does not overlap bounds at all.
func (r Range) ClampTo(bounds Range) Range {
	out := r
	if out.Lower < bounds.Lower {
		out.Lower = bounds.Lower
	}
	if out.Upper > bounds.Upper {
		out.Upper = bounds.Upper
	}
	if out.Lower > out.Upper {
		out.Lower = out.Upper
	}
	return out
}

// Intersect returns the overlap of r and other and whether it is non-empty.
func (r Range) Intersect(other Range) (Range, bool) {
	lo := math.Max(r.Lower, other.Lower)
	hi := math.Min(r.Upper, other.Upper)
	if hi-lo <= epsilon {
		return Range{}, false
	}
	return Range{Lower: lo, Upper: hi}, true
}

// Shift moves the range by d seconds.
func (r Range) Shift(d float64) Range {
	return Range{Lower: r.Lower + d, Upper: r.Upper + d}
}

// Equal compares two ranges with float tolerance.
func (r Range) Equal(other Range) bool {
	return math.Abs(r.Lower-other.Lower) <= epsilon && math.Abs(r.Upper-other.Upper) <= epsilon
}

func (r Range) String() string {
	return fmt.Sprintf("%.3f...%.3f", r.Lower, r.Upper)
}
