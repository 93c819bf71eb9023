package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/bestyn/bestynapp-sub001/internal/logging"
)

// Policy holds the editing rules of the story flow.
type Policy struct {
	MaxClips       int          `yaml:"max_clips"`
	StillDurationS float64      `yaml:"still_duration_s"`
	MinSpanS       float64      `yaml:"min_span_s"`
	MaxVisibleS    float64      `yaml:"max_visible_s"`
	LoopAudio      bool         `yaml:"loop_audio"`
	RenderWidth    int          `yaml:"render_width"`
	RenderHeight   int          `yaml:"render_height"`
	FrameRate      float64      `yaml:"frame_rate"`
	FrameWorkers   int          `yaml:"frame_workers"`
	ProbeWorkers   int          `yaml:"probe_workers"`
	ThumbnailCount int          `yaml:"thumbnail_count"`
	Render         RenderPolicy `yaml:"render"`
}

// RenderPolicy is passed to the encoder when a story is exported.
type RenderPolicy struct {
	VideoCodec string `yaml:"video_codec"`
	AudioCodec string `yaml:"audio_codec"`
	CRF        int    `yaml:"crf"`
	Preset     string `yaml:"preset"`
}

func DefaultPolicy() *Policy {
	return &Policy{
		MaxClips:       10,
		StillDurationS: 3,
		MinSpanS:       1,
		MaxVisibleS:    60,
		LoopAudio:      false,
		RenderWidth:    1080,
		RenderHeight:   1920,
		FrameRate:      30,
		FrameWorkers:   4,
		ProbeWorkers:   4,
		ThumbnailCount: 10,
		Render: RenderPolicy{
			VideoCodec: "libx264",
			AudioCodec: "aac",
			CRF:        23,
			Preset:     "medium",
		},
	}
}

// LoadPolicy reads the policy file over the defaults. An empty path or a
// missing file yields the defaults.
func LoadPolicy(path string) (*Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse policy %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("policy %s: %w", path, err)
	}
	return p, nil
}

// Save writes the policy as YAML.
func (p *Policy) Save(path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (p *Policy) Validate() error {
	var errs []error
	if p.MaxClips < 1 {
		errs = append(errs, fmt.Errorf("max_clips must be at least 1"))
	}
	if p.StillDurationS <= 0 {
		errs = append(errs, fmt.Errorf("still_duration_s must be positive"))
	}
	if p.MinSpanS <= 0 {
		errs = append(errs, fmt.Errorf("min_span_s must be positive"))
	}
	if p.MaxVisibleS < p.MinSpanS {
		errs = append(errs, fmt.Errorf("max_visible_s must not be below min_span_s"))
	}
	if p.RenderWidth <= 0 || p.RenderHeight <= 0 {
		errs = append(errs, fmt.Errorf("render size must be positive"))
	}
	if p.FrameRate <= 0 {
		errs = append(errs, fmt.Errorf("frame_rate must be positive"))
	}
	if p.FrameWorkers < 1 || p.ProbeWorkers < 1 {
		errs = append(errs, fmt.Errorf("worker counts must be at least 1"))
	}
	if p.Render.CRF < 0 || p.Render.CRF > 51 {
		errs = append(errs, fmt.Errorf("render.crf must be within 0..51"))
	}
	return errors.Join(errs...)
}

// PolicyHolder keeps the current policy and swaps it on reload. A policy
// that fails to load or validate leaves the previous one in place.
type PolicyHolder struct {
	path    string
	current atomic.Pointer[Policy]
	logger  *slog.Logger
}

func NewPolicyHolder(path string, initial *Policy, logger *slog.Logger) *PolicyHolder {
	if initial == nil {
		initial = DefaultPolicy()
	}
	h := &PolicyHolder{path: path, logger: logging.WithComponent(logging.OrDiscard(logger), "policy")}
	h.current.Store(initial)
	return h
}

// Get returns the current policy. Callers must not modify it.
func (h *PolicyHolder) Get() *Policy {
	return h.current.Load()
}

func (h *PolicyHolder) Path() string {
	return h.path
}

// Reload re-reads the policy file.
func (h *PolicyHolder) Reload() error {
	next, err := LoadPolicy(h.path)
	if err != nil {
		h.logger.Error("policy reload failed, keeping previous policy", "path", h.path, "error", err)
		return err
	}
	prev := h.current.Swap(next)
	h.logger.Info("policy reloaded",
		"path", h.path,
		"max_clips", next.MaxClips,
		"still_duration_s", next.StillDurationS,
		"min_span_s", next.MinSpanS,
	)
	if prev.RenderWidth != next.RenderWidth || prev.RenderHeight != next.RenderHeight ||
		prev.FrameRate != next.FrameRate || prev.Render != next.Render {
		h.logger.Warn("render settings changed; they apply after restart")
	}
	return nil
}
