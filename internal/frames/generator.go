// Package frames extracts thumbnails from clips on a bounded worker pool.
package frames

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/bestyn/bestynapp-sub001/internal/media"
	"github.com/bestyn/bestynapp-sub001/internal/metrics"
	"github.com/bestyn/bestynapp-sub001/internal/timeline"
)

// Epsilon keeps the last timestamp of a batch off the very end of the media,
// where decoders commonly return nothing.
const Epsilon = 0.1

const DefaultWorkers = 4

// DefaultTimeout bounds one shared extraction once no caller can cancel it.
const DefaultTimeout = 15 * time.Second

// Frame is one extracted image. It is immutable once delivered.
type Frame struct {
	ClipID string  `json:"clip_id"`
	Index  int     `json:"index"`
	Second float64 `json:"second"`
	Image  []byte  `json:"-"`
}

// Timestamps returns n times evenly spaced over [0, duration], the last one
// clamped to duration - Epsilon.
func Timestamps(duration float64, n int) []float64 {
	if n <= 0 || duration <= 0 {
		return nil
	}
	limit := math.Max(0, duration-Epsilon)
	out := make([]float64, n)
	if n == 1 {
		return out
	}
	step := duration / float64(n-1)
	for i := range out {
		out[i] = math.Min(float64(i)*step, limit)
	}
	return out
}

type Generator struct {
	extractor media.FrameExtractor
	cache     Cache
	workers   int
	timeout   time.Duration
	sem       chan struct{}
	flight    singleflight.Group
	logger    *slog.Logger
}

// NewGenerator returns a generator running at most workers extractions per
// batch. cache may be nil.
func NewGenerator(extractor media.FrameExtractor, cache Cache, workers int, logger *slog.Logger) *Generator {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Generator{
		extractor: extractor,
		cache:     cache,
		workers:   workers,
		timeout:   DefaultTimeout,
		sem:       make(chan struct{}, workers),
		logger:    logger,
	}
}

// SetTimeout changes the bound on a single extraction. Non-positive values
// are ignored.
func (g *Generator) SetTimeout(d time.Duration) {
	if d > 0 {
		g.timeout = d
	}
}

// Forget drops the cached frames of removed clips. Caches without per-clip
// eviction are left to expire.
func (g *Generator) Forget(clipIDs ...string) {
	dropper, ok := g.cache.(interface{ DropClip(clipID string) error })
	if !ok {
		return
	}
	for _, id := range clipIDs {
		if err := dropper.DropClip(id); err != nil {
			g.logger.Warn("frame cache eviction failed", "clip_id", id, "error", err)
		}
	}
}

// ExtractFrames extracts n frames spread over the clip's source. Frames are
// sent as they complete; use Frame.Index to order them. Failed frames are
// skipped. The channel is closed when the batch is done or ctx is cancelled.
func (g *Generator) ExtractFrames(ctx context.Context, clip timeline.Clip, n int) <-chan Frame {
	stamps := Timestamps(clip.Source.Duration, n)
	out := make(chan Frame, len(stamps))
	if len(stamps) == 0 {
		close(out)
		return out
	}

	go func() {
		defer close(out)
		eg, ectx := errgroup.WithContext(ctx)
		eg.SetLimit(g.workers)
		for i, ts := range stamps {
			if ectx.Err() != nil {
				break
			}
			eg.Go(func() error {
				f, err := g.frame(ectx, clip, i, ts)
				if err != nil {
					if ectx.Err() == nil {
						metrics.IncFrame(metrics.FrameFailed)
						g.logger.Debug("frame skipped", "clip_id", clip.ID, "second", ts, "error", err)
					}
					return nil
				}
				select {
				case out <- f:
				case <-ectx.Done():
				}
				return nil
			})
		}
		_ = eg.Wait()
	}()
	return out
}

// Future is the pending result of a single frame extraction.
type Future struct {
	done  chan struct{}
	frame Frame
	err   error
}

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the frame is ready or ctx ends.
func (f *Future) Wait(ctx context.Context) (Frame, error) {
	select {
	case <-f.done:
		return f.frame, f.err
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// ExtractSingleFrame dispatches one extraction and returns immediately.
func (g *Generator) ExtractSingleFrame(ctx context.Context, clip timeline.Clip, second float64) *Future {
	fut := &Future{done: make(chan struct{})}
	second = math.Max(0, math.Min(second, clip.Source.Duration-Epsilon))

	go func() {
		defer close(fut.done)
		select {
		case g.sem <- struct{}{}:
		case <-ctx.Done():
			fut.err = ctx.Err()
			return
		}
		defer func() { <-g.sem }()

		fut.frame, fut.err = g.frame(ctx, clip, 0, second)
		if fut.err != nil && ctx.Err() == nil {
			metrics.IncFrame(metrics.FrameFailed)
		}
	}()
	return fut
}

func (g *Generator) frame(ctx context.Context, clip timeline.Clip, index int, second float64) (Frame, error) {
	if clip.IsStill() {
		second = 0
	}
	key := KeyFor(clip.ID, second)
	f := Frame{ClipID: clip.ID, Index: index, Second: second}

	if g.cache != nil {
		if data, ok := g.cache.Get(key); ok {
			metrics.IncFrameCache(true)
			f.Image = data
			return f, nil
		}
		metrics.IncFrameCache(false)
	}

	// The extraction is shared by every batch asking for the same key, so it
	// must outlive the caller that happened to start it.
	ch := g.flight.DoChan(key.String(), func() (any, error) {
		sharedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
		defer cancel()
		data, err := g.extractor.ExtractFrame(sharedCtx, clip.Source.URI, second)
		if err != nil {
			return nil, err
		}
		if g.cache != nil {
			if err := g.cache.Put(key, data); err != nil {
				g.logger.Warn("frame cache write failed", "key", key.String(), "error", err)
			}
		}
		return data, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Frame{}, fmt.Errorf("extract %s: %w", key, res.Err)
		}
		metrics.IncFrame(metrics.FrameOK)
		f.Image = res.Val.([]byte)
		return f, nil
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}
