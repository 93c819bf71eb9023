package story

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/bestyn/bestynapp-sub001/internal/composition"
	"github.com/bestyn/bestynapp-sub001/internal/export"
	"github.com/bestyn/bestynapp-sub001/internal/logging"
	"github.com/bestyn/bestynapp-sub001/internal/media"
	"github.com/bestyn/bestynapp-sub001/internal/metrics"
)

const DefaultPollInterval = 2 * time.Second

type RunnerConfig struct {
	ExportDir    string
	Render       composition.RenderOptions
	PollInterval time.Duration
}

// Runner renders pending stories one job at a time.
type Runner struct {
	repo     Repository
	renderer media.Renderer
	cfg      RunnerConfig
	logger   *slog.Logger
	running  atomic.Bool
	paused   atomic.Bool
}

func NewRunner(repo Repository, renderer media.Renderer, cfg RunnerConfig, logger *slog.Logger) *Runner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Runner{
		repo:     repo,
		renderer: renderer,
		cfg:      cfg,
		logger:   logging.WithComponent(logging.OrDiscard(logger), "export-runner"),
	}
}

// Start polls for pending jobs until ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	if r.running.Swap(true) {
		return
	}
	defer r.running.Store(false)

	r.logger.Info("export runner started", "poll_interval", r.cfg.PollInterval)

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("export runner stopping")
			return
		case <-ticker.C:
			if r.paused.Load() {
				continue
			}
			// Drain the queue before waiting for the next tick.
			for r.RunOnce(ctx) && ctx.Err() == nil {
			}
		}
	}
}

func (r *Runner) Pause() {
	r.paused.Store(true)
	r.logger.Info("export runner paused")
}

func (r *Runner) Resume() {
	r.paused.Store(false)
	r.logger.Info("export runner resumed")
}

func (r *Runner) IsPaused() bool {
	return r.paused.Load()
}

func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

// RunOnce processes the oldest pending job, reporting whether there was one.
func (r *Runner) RunOnce(ctx context.Context) bool {
	jobs, err := r.repo.ListPendingJobs(ctx)
	if err != nil {
		r.logger.Error("failed to list pending jobs", "error", err)
		return false
	}
	if len(jobs) == 0 {
		return false
	}

	job := jobs[0]
	logger := logging.WithJobID(r.logger, job.ID)
	logger.Info("processing job", "type", job.Type, "story_id", job.StoryID)

	switch job.Type {
	case JobTypeRender:
		r.processRenderJob(ctx, job, logger)
	default:
		logger.Warn("unknown job type", "type", job.Type)
		r.fail(ctx, job, "unknown job type")
	}
	return true
}

func (r *Runner) processRenderJob(ctx context.Context, job *Job, logger *slog.Logger) {
	if r.renderer == nil {
		r.fail(ctx, job, "renderer not configured")
		return
	}

	st, err := r.repo.GetStory(ctx, job.StoryID)
	if err != nil || st == nil {
		r.fail(ctx, job, "story not found")
		return
	}
	c, err := st.Decode()
	if err != nil {
		r.fail(ctx, job, err.Error())
		return
	}

	r.repo.UpdateJobStatus(ctx, job.ID, JobStatusRunning, "")
	metrics.IncExportJob(JobStatusRunning)

	if err := os.MkdirAll(r.cfg.ExportDir, 0755); err != nil {
		r.fail(ctx, job, fmt.Sprintf("create export dir: %v", err))
		return
	}
	stem := filepath.Join(r.cfg.ExportDir, export.FileStem(st.Title, st.ID))

	edl := export.GenerateEDL(export.FromComposition(c), st.Title, c.FrameRate)
	if err := os.WriteFile(stem+".edl", []byte(edl), 0o644); err != nil {
		r.fail(ctx, job, fmt.Sprintf("write edl: %v", err))
		return
	}
	r.repo.UpdateJobProgress(ctx, job.ID, 10)

	output := stem + ".mp4"
	args, err := composition.RenderPlan(c, output, r.cfg.Render)
	if err != nil {
		r.fail(ctx, job, fmt.Sprintf("render plan: %v", err))
		return
	}

	logger.Info("rendering story", "output", logging.SanitizePath(output), "duration", c.Duration())
	result, err := r.renderer.Render(ctx, args)
	if err != nil {
		r.fail(ctx, job, fmt.Sprintf("render error: %v", err))
		return
	}
	if !result.IsSuccess() {
		r.fail(ctx, job, fmt.Sprintf("ffmpeg exited %d: %s", result.ExitCode, truncateStr(result.StderrTail, 512)))
		return
	}

	r.repo.SetJobOutput(ctx, job.ID, output)
	r.repo.UpdateJobProgress(ctx, job.ID, 100)
	r.repo.UpdateJobStatus(ctx, job.ID, JobStatusCompleted, "")
	metrics.IncExportJob(JobStatusCompleted)
	logger.Info("render job completed", "story_id", st.ID, "took", result.Duration)
}

func (r *Runner) fail(ctx context.Context, job *Job, msg string) {
	r.repo.UpdateJobStatus(ctx, job.ID, JobStatusFailed, msg)
	metrics.IncExportJob(JobStatusFailed)
	r.logger.Error("job failed", "job_id", job.ID, "error", msg)
}

func truncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[len(s)-maxLen:]
}

// ActiveJobCount returns the number of running jobs.
func (r *Runner) ActiveJobCount(ctx context.Context) int {
	jobs, err := r.repo.ListJobs(ctx, 100)
	if err != nil {
		return 0
	}
	count := 0
	for _, j := range jobs {
		if j.Status == JobStatusRunning {
			count++
		}
	}
	return count
}
