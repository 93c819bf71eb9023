package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bestyn/bestynapp-sub001/internal/api"
	"github.com/bestyn/bestynapp-sub001/internal/composition"
	"github.com/bestyn/bestynapp-sub001/internal/config"
	"github.com/bestyn/bestynapp-sub001/internal/db"
	"github.com/bestyn/bestynapp-sub001/internal/frames"
	"github.com/bestyn/bestynapp-sub001/internal/logging"
	"github.com/bestyn/bestynapp-sub001/internal/media"
	"github.com/bestyn/bestynapp-sub001/internal/playback"
	"github.com/bestyn/bestynapp-sub001/internal/session"
	"github.com/bestyn/bestynapp-sub001/internal/story"
	"github.com/bestyn/bestynapp-sub001/internal/watcher"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	policy, err := config.LoadPolicy(cfg.PolicyFile())
	if err != nil {
		return fmt.Errorf("failed to load policy: %w", err)
	}

	for _, dir := range []string{cfg.DataDir(), cfg.CacheDir(), cfg.ExportDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting story daemon", "version", config.Version, "data_dir", cfg.DataDir())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := story.NewRepository(database.Conn())

	authToken, err := ensureAuthToken(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	decoder, backend, err := newDecoder(cfg, logger)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Printf("║                   STORY DAEMON v%-26s║\n", config.Version)
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-27d ║\n", cfg.Port())
	fmt.Printf("║  Auth Token: %-45s ║\n", authToken)
	fmt.Printf("║  Decoder:    %-45s ║\n", backend)
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	prober := media.NewCachedProber(decoder, cfg.CacheTTL(), logger)
	builder := composition.NewBuilder(prober, composition.Options{
		RenderSize:   composition.Size{Width: policy.RenderWidth, Height: policy.RenderHeight},
		FrameRate:    policy.FrameRate,
		LoopAudio:    policy.LoopAudio,
		ProbeWorkers: policy.ProbeWorkers,
	}, logger)

	frameCache, err := frames.OpenBadgerCache(cfg.CacheDir(), cfg.CacheTTL(), logger)
	if err != nil {
		return fmt.Errorf("failed to open frame cache: %w", err)
	}
	defer frameCache.Close()
	generator := frames.NewGenerator(decoder, frameCache, policy.FrameWorkers, logger)
	generator.SetTimeout(cfg.FrameTimeout())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Editing limits are re-read on change and apply to sessions opened
	// afterwards.
	policies := config.NewPolicyHolder(cfg.PolicyFile(), policy, logger)
	if policies.Path() != "" {
		pw := watcher.New(policies.Path(), watcher.DefaultDebounce, logger)
		pw.OnChange(func(path string, ev watcher.EventType) {
			if ev == watcher.EventDelete {
				logger.Warn("policy file removed, keeping current policy", "path", path)
				return
			}
			_ = policies.Reload()
		})
		if err := pw.Watch(ctx); err != nil {
			logger.Warn("policy watcher unavailable", "error", err)
		} else {
			defer pw.Stop()
		}
	}

	sessions := session.NewRegistry(func(id string) (*session.Session, error) {
		p := policies.Get()
		return session.New(session.Config{
			ID:                id,
			MaxClips:          p.MaxClips,
			StillDuration:     p.StillDurationS,
			MinSpan:           p.MinSpanS,
			MaxVisibleSeconds: p.MaxVisibleS,
			Composer:          builder,
			Frames:            generator,
			Logger:            logger,
		})
	}, logger)
	defer sessions.CloseAll()

	stories := story.NewService(repo, logger)
	runner := story.NewRunner(repo, decoder, story.RunnerConfig{
		ExportDir: cfg.ExportDir(),
		Render: composition.RenderOptions{
			VideoCodec: policy.Render.VideoCodec,
			AudioCodec: policy.Render.AudioCodec,
			CRF:        policy.Render.CRF,
			Preset:     policy.Render.Preset,
		},
	}, logger)
	go runner.Start(ctx)

	apiServer := api.NewServer(api.ServerConfig{
		Port:           cfg.Port(),
		Sessions:       sessions,
		Stories:        stories,
		Runner:         runner,
		Tokens:         repo,
		Playback:       playback.NewServer(cfg.ExportDir(), logger),
		ThumbnailCount: policy.ThumbnailCount,
		DecoderBackend: backend,
		Logger:         logger,
		StartTime:      startTime,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- apiServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// newDecoder returns the ffmpeg backed decoder, or the in-process stub when
// running headless without ffmpeg installed.
func newDecoder(cfg config.Config, logger *slog.Logger) (media.Decoder, string, error) {
	ff, err := media.NewFFmpeg(media.Config{
		FFmpegPath:    cfg.FFmpegPath(),
		FFprobePath:   cfg.FFprobePath(),
		ProbeTimeout:  cfg.ProbeTimeout(),
		FrameTimeout:  cfg.FrameTimeout(),
		RenderTimeout: cfg.RenderTimeout(),
		Logger:        logger,
	})
	if err == nil {
		return ff, "ffmpeg", nil
	}
	if !cfg.Headless() {
		return nil, "", fmt.Errorf("ffmpeg unavailable: %w", err)
	}
	logger.Warn("ffmpeg unavailable, using stub decoder", "error", err)
	return media.NewStubFFmpeg(logger), "stub", nil
}

func ensureAuthToken(repo story.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, api.AuthTokenKey)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, api.AuthTokenKey, token); err != nil {
		return "", err
	}

	return token, nil
}
