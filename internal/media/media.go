// Package media wraps the decoder used by the timeline engine: probing
// sources, grabbing still frames and rendering a finished composition.
package media

import (
	"context"
	"errors"
)

var (
	ErrUnreadable = errors.New("media unreadable")
	ErrNoVideo    = errors.New("no video stream")
)

// Info is what the engine needs to know about one media file.
type Info struct {
	URI        string  `json:"uri"`
	Duration   float64 `json:"duration"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Rotation   int     `json:"rotation"`
	FrameRate  float64 `json:"frame_rate"`
	VideoCodec string  `json:"video_codec"`
	HasAudio   bool    `json:"has_audio"`
	AudioCodec string  `json:"audio_codec,omitempty"`
}

// DisplaySize returns width and height after applying the rotation tag.
func (i Info) DisplaySize() (int, int) {
	if i.Rotation == 90 || i.Rotation == 270 || i.Rotation == -90 {
		return i.Height, i.Width
	}
	return i.Width, i.Height
}

type Prober interface {
	Probe(ctx context.Context, uri string) (*Info, error)
}

type FrameExtractor interface {
	// ExtractFrame returns a JPEG encoded frame at second.
	ExtractFrame(ctx context.Context, uri string, second float64) ([]byte, error)
}

type Renderer interface {
	Render(ctx context.Context, args []string) (RunResult, error)
}

// Decoder bundles everything the engine asks of the media layer.
type Decoder interface {
	Prober
	FrameExtractor
	Renderer
}
