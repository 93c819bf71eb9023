package composition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bestyn/bestynapp-sub001/internal/media"
	"github.com/bestyn/bestynapp-sub001/internal/timeline"
)

const (
	DefaultRenderWidth  = 1080
	DefaultRenderHeight = 1920
	DefaultFrameRate    = 30.0
	DefaultProbeWorkers = 4

	// durationSlack tolerates container durations that are a few frames
	// shorter than what the capture layer reported.
	durationSlack = 0.1
)

type Options struct {
	RenderSize   Size
	FrameRate    float64
	LoopAudio    bool
	ProbeWorkers int
}

// Request is everything a build reads.
type Request struct {
	Clips      []timeline.Clip
	FinalRange timeline.Range
	Audio      *AudioTrack
	Version    uint64
}

type Builder struct {
	prober *media.CachedProber
	opts   Options
	logger *slog.Logger
}

func NewBuilder(prober *media.CachedProber, opts Options, logger *slog.Logger) *Builder {
	if opts.RenderSize.Width <= 0 || opts.RenderSize.Height <= 0 {
		opts.RenderSize = Size{Width: DefaultRenderWidth, Height: DefaultRenderHeight}
	}
	if opts.FrameRate <= 0 {
		opts.FrameRate = DefaultFrameRate
	}
	if opts.ProbeWorkers <= 0 {
		opts.ProbeWorkers = DefaultProbeWorkers
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Builder{prober: prober, opts: opts, logger: logger}
}

func (b *Builder) Options() Options {
	return b.opts
}

// Check probes a source before it is allowed onto the timeline.
func (b *Builder) Check(ctx context.Context, clip timeline.Clip) (*media.Info, error) {
	info, err := b.prober.Probe(ctx, clip.Source.URI)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ClipUnreadableError{ClipID: clip.ID, URI: clip.Source.URI, Err: err}
	}
	if !clip.IsStill() && info.Duration > 0 && clip.Trim.Upper > info.Duration+durationSlack {
		return nil, &ClipUnreadableError{
			ClipID: clip.ID,
			URI:    clip.Source.URI,
			Err:    fmt.Errorf("trim ends at %.3fs but media decodes to %.3fs", clip.Trim.Upper, info.Duration),
		}
	}
	return info, nil
}

// Build concatenates the clips in order and applies the final range as a
// crop. Either the whole composition is returned or an error; never a
// partial result.
func (b *Builder) Build(ctx context.Context, req Request) (*Composition, error) {
	start := time.Now()
	if len(req.Clips) == 0 {
		return nil, ErrEmptyTimeline
	}
	if req.Audio != nil {
		if err := req.Audio.Validate(); err != nil {
			return nil, err
		}
	}

	for _, clip := range req.Clips {
		if err := clip.ValidateTrim(clip.Trim); err != nil {
			return nil, fmt.Errorf("clip %s: %w", clip.ID, err)
		}
	}

	infos := make([]*media.Info, len(req.Clips))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.ProbeWorkers)
	for i, clip := range req.Clips {
		g.Go(func() error {
			info, err := b.Check(gctx, clip)
			if err != nil {
				return err
			}
			infos[i] = info
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		var unreadable *ClipUnreadableError
		if errors.As(err, &unreadable) {
			b.logger.Warn("composition build aborted", "clip_id", unreadable.ClipID, "error", unreadable.Err)
		}
		return nil, err
	}

	c := b.assemble(req, infos)
	b.logger.Debug("composition built",
		"version", req.Version,
		"segments", len(c.Segments),
		"total", c.Total,
		"window", c.Window.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return c, nil
}

// Preview builds a single clip composition from cached probe data only, so
// it can run on the interaction path. The window covers the clip's trim
// expressed in source time.
func (b *Builder) Preview(clip timeline.Clip) (*Composition, error) {
	info, ok := b.prober.Peek(clip.Source.URI)
	if !ok {
		info = &media.Info{URI: clip.Source.URI, Width: clip.Source.Width, Height: clip.Source.Height}
	}
	full := clip
	full.Trim = clip.Source.Span()
	c := b.assemble(Request{Clips: []timeline.Clip{full}, FinalRange: clip.Trim}, []*media.Info{info})
	return c, nil
}

func (b *Builder) assemble(req Request, infos []*media.Info) *Composition {
	c := &Composition{
		ID:           uuid.NewString(),
		Version:      req.Version,
		BuiltAt:      time.Now(),
		RenderSize:   b.opts.RenderSize,
		FrameRate:    b.opts.FrameRate,
		Segments:     make([]Segment, 0, len(req.Clips)),
		Instructions: make([]Instruction, 0, len(req.Clips)),
	}

	var offset float64
	for i, clip := range req.Clips {
		info := infos[i]
		placement := timeline.Range{Lower: offset, Upper: offset + clip.Duration()}
		c.Segments = append(c.Segments, Segment{
			Index:       i,
			ClipID:      clip.ID,
			Source:      clip.Source,
			SourceRange: clip.Trim,
			Placement:   placement,
			Still:       clip.IsStill(),
			HasAudio:    !clip.IsStill() && info.HasAudio,
		})
		c.Instructions = append(c.Instructions, Instruction{
			ClipID:    clip.ID,
			Placement: placement,
			Transform: fitTransform(info, clip.Source, b.opts.RenderSize),
		})
		offset = placement.Upper
	}

	c.Total = offset
	c.Window = timeline.ClampFinalRange(req.FinalRange, c.Total)
	if req.Audio != nil {
		mix := placeAudio(*req.Audio, c.Window, b.opts.LoopAudio)
		c.Audio = &mix
	}
	return c
}

// fitTransform scales a source frame to fit inside the canvas, centred.
func fitTransform(info *media.Info, src timeline.Source, canvas Size) Transform {
	w, h := info.DisplaySize()
	if w <= 0 || h <= 0 {
		w, h = src.Width, src.Height
	}
	if w <= 0 || h <= 0 {
		return Transform{Scale: 1, Rotation: info.Rotation}
	}
	scale := math.Min(float64(canvas.Width)/float64(w), float64(canvas.Height)/float64(h))
	return Transform{
		Scale:      scale,
		TranslateX: (float64(canvas.Width) - float64(w)*scale) / 2,
		TranslateY: (float64(canvas.Height) - float64(h)*scale) / 2,
		Rotation:   info.Rotation,
	}
}
