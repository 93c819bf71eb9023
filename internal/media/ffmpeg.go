package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics
)

// RunResult is the outcome of one ffmpeg invocation.
type RunResult struct {
	ExitCode   int           `json:"exit_code"`
	StderrTail string        `json:"stderr_tail,omitempty"`
	Duration   time.Duration `json:"duration"`
}

func (r RunResult) IsSuccess() bool { return r.ExitCode == 0 }

// Config holds the ffmpeg binary locations and timeouts.
type Config struct {
	FFmpegPath    string // empty = look up on PATH
	FFprobePath   string // empty = look up on PATH
	ProbeTimeout  time.Duration
	FrameTimeout  time.Duration
	RenderTimeout time.Duration
	Threads       int
	Logger        *slog.Logger
}

// FFmpeg is the exec based Decoder.
type FFmpeg struct {
	cfg     Config
	ffmpeg  string
	ffprobe string
}

func NewFFmpeg(cfg Config) (*FFmpeg, error) {
	ffmpegPath, err := resolveBinary(cfg.FFmpegPath, "ffmpeg")
	if err != nil {
		return nil, err
	}
	ffprobePath, err := resolveBinary(cfg.FFprobePath, "ffprobe")
	if err != nil {
		return nil, err
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 15 * time.Second
	}
	if cfg.FrameTimeout <= 0 {
		cfg.FrameTimeout = 10 * time.Second
	}
	if cfg.RenderTimeout <= 0 {
		cfg.RenderTimeout = 30 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	cfg.Logger.Info("ffmpeg decoder initialised", "ffmpeg", ffmpegPath, "ffprobe", ffprobePath)
	return &FFmpeg{cfg: cfg, ffmpeg: ffmpegPath, ffprobe: ffprobePath}, nil
}

// Probe runs ffprobe and parses its JSON output.
func (f *FFmpeg) Probe(ctx context.Context, uri string) (*Info, error) {
	if uri == "" {
		return nil, fmt.Errorf("%w: empty uri", ErrUnreadable)
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.ProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.ffprobe,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		uri,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderr, limit: maxStderrBytes}
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: ffprobe %s: %v", ErrUnreadable, uri, err)
	}
	return ParseProbe(uri, out)
}

// ParseProbe converts ffprobe JSON into Info.
func ParseProbe(uri string, data []byte) (*Info, error) {
	var probe probeResult
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: parse ffprobe output: %v", ErrUnreadable, err)
	}

	info := &Info{URI: uri}
	if d, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
		info.Duration = d
	}

	hasVideo := false
	for _, s := range probe.Streams {
		switch s.CodecType {
		case "video":
			if hasVideo {
				continue
			}
			hasVideo = true
			info.Width = s.Width
			info.Height = s.Height
			info.VideoCodec = s.CodecName
			info.FrameRate = parseFrameRate(s.RFrameRate)
			info.Rotation = s.rotation()
			if info.Duration == 0 {
				if d, err := strconv.ParseFloat(s.Duration, 64); err == nil {
					info.Duration = d
				}
			}
		case "audio":
			info.HasAudio = true
			info.AudioCodec = s.CodecName
		}
	}

	if !hasVideo {
		return nil, fmt.Errorf("%w: %s", ErrNoVideo, uri)
	}
	return info, nil
}

// ExtractFrame seeks to second and writes a single JPEG frame to stdout.
func (f *FFmpeg) ExtractFrame(ctx context.Context, uri string, second float64) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.FrameTimeout)
	defer cancel()

	if second < 0 {
		second = 0
	}
	cmd := exec.CommandContext(ctx, f.ffmpeg,
		"-hide_banner", "-loglevel", "error",
		"-ss", strconv.FormatFloat(second, 'f', 3, 64),
		"-i", uri,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"pipe:1",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderr, limit: maxStderrBytes}
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("extract frame at %.3f: %w: %s", second, err, truncate(stderr.String(), 256))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("extract frame at %.3f: empty output", second)
	}
	return out, nil
}

// Render runs ffmpeg with args, keeping a bounded tail of stderr.
func (f *FFmpeg) Render(ctx context.Context, args []string) (RunResult, error) {
	if len(args) == 0 {
		return RunResult{ExitCode: -1}, fmt.Errorf("no arguments provided")
	}
	ctx, cancel := context.WithTimeout(ctx, f.cfg.RenderTimeout)
	defer cancel()

	base := []string{"-y", "-hide_banner", "-loglevel", "error"}
	if f.cfg.Threads > 0 {
		base = append(base, "-threads", strconv.Itoa(f.cfg.Threads))
	}
	full := append(base, args...)

	start := time.Now()
	cmd := exec.CommandContext(ctx, f.ffmpeg, full...)
	var stderrBuf bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}
	cmd.Stdout = io.Discard

	f.cfg.Logger.Debug("executing ffmpeg", "args", full)

	err := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	result := RunResult{ExitCode: exitCode, StderrTail: stderrBuf.String(), Duration: elapsed}
	if exitCode != 0 {
		f.cfg.Logger.Warn("ffmpeg render failed",
			"exit_code", exitCode,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(result.StderrTail, 512),
		)
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		return result, nil
	}

	f.cfg.Logger.Info("ffmpeg render succeeded", "duration_ms", elapsed.Milliseconds())
	return result, nil
}

func resolveBinary(preferred, name string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured %s %q not found", name, preferred)
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH: %w", name, err)
	}
	return p, nil
}

// probeResult matches the subset of ffprobe JSON we read.
type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []probeStream `json:"streams"`
}

type probeStream struct {
	CodecType  string            `json:"codec_type"`
	CodecName  string            `json:"codec_name"`
	Width      int               `json:"width"`
	Height     int               `json:"height"`
	RFrameRate string            `json:"r_frame_rate"`
	Duration   string            `json:"duration"`
	Tags       map[string]string `json:"tags"`
	SideData   []struct {
		Rotation int `json:"rotation"`
	} `json:"side_data_list"`
}

func (s probeStream) rotation() int {
	if v, ok := s.Tags["rotate"]; ok {
		if r, err := strconv.Atoi(v); err == nil {
			return normalizeRotation(r)
		}
	}
	for _, sd := range s.SideData {
		if sd.Rotation != 0 {
			return normalizeRotation(sd.Rotation)
		}
	}
	return 0
}

func normalizeRotation(r int) int {
	r %= 360
	if r < 0 {
		r += 360
	}
	return r
}

// parseFrameRate parses "30000/1001" style rates.
func parseFrameRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		b := lw.w.Bytes()
		tail := make([]byte, lw.limit)
		copy(tail, b[len(b)-lw.limit:])
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
