package media

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// StubFFmpeg is a decoder that does not shell out. Infos come from
// registered values or from a "<uri>.probe.json" sidecar written in ffprobe's
// JSON format; frames are synthesised. It backs headless development runs
// and tests.
type StubFFmpeg struct {
	logger *slog.Logger

	mu      sync.RWMutex
	infos   map[string]*Info
	renders [][]string
}

func NewStubFFmpeg(logger *slog.Logger) *StubFFmpeg {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &StubFFmpeg{logger: logger, infos: make(map[string]*Info)}
}

// Register makes Probe return info for uri.
func (f *StubFFmpeg) Register(info Info) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := info
	f.infos[info.URI] = &cp
}

func (f *StubFFmpeg) Probe(ctx context.Context, uri string) (*Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	info, ok := f.infos[uri]
	f.mu.RUnlock()
	if ok {
		cp := *info
		return &cp, nil
	}

	data, err := os.ReadFile(uri + ".probe.json")
	if err != nil {
		f.logger.Debug("ffmpeg stub: no probe data", "uri", uri)
		return nil, fmt.Errorf("%w: %s", ErrUnreadable, uri)
	}
	return ParseProbe(uri, data)
}

func (f *StubFFmpeg) ExtractFrame(ctx context.Context, uri string, second float64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := f.Probe(ctx, uri); err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("frame:%s@%.3f", uri, second)), nil
}

func (f *StubFFmpeg) Render(ctx context.Context, args []string) (RunResult, error) {
	if err := ctx.Err(); err != nil {
		return RunResult{ExitCode: -1}, err
	}
	f.mu.Lock()
	f.renders = append(f.renders, append([]string(nil), args...))
	f.mu.Unlock()

	f.logger.Info("ffmpeg stub: render requested", "args", strings.Join(args, " "))
	if len(args) > 0 {
		out := args[len(args)-1]
		if err := os.WriteFile(out, []byte("stub render\n"), 0o644); err != nil {
			return RunResult{ExitCode: 1, StderrTail: err.Error()}, nil
		}
	}
	return RunResult{ExitCode: 0}, nil
}

// Renders returns the argument lists passed to Render so far.
func (f *StubFFmpeg) Renders() [][]string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([][]string, len(f.renders))
	copy(out, f.renders)
	return out
}

// WriteProbeSidecar stores info next to uri so a StubFFmpeg in another
// process can probe it.
func WriteProbeSidecar(info Info) error {
	doc := map[string]any{
		"format": map[string]any{"duration": fmt.Sprintf("%.6f", info.Duration)},
		"streams": []map[string]any{{
			"codec_type":   "video",
			"codec_name":   info.VideoCodec,
			"width":        info.Width,
			"height":       info.Height,
			"r_frame_rate": "30/1",
		}},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(info.URI+".probe.json", data, 0o644)
}
