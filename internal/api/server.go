package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bestyn/bestynapp-sub001/internal/logging"
	"github.com/bestyn/bestynapp-sub001/internal/playback"
	"github.com/bestyn/bestynapp-sub001/internal/session"
	"github.com/bestyn/bestynapp-sub001/internal/story"
)

const (
	DefaultThumbnailCount = 10
	DefaultFlushTimeout   = 10 * time.Second
	DefaultFrameRateLimit = 120
)

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port           int
	Sessions       *session.Registry
	Stories        *story.Service
	Runner         *story.Runner
	Tokens         TokenStore
	Playback       *playback.Server
	ThumbnailCount int
	// FrameRateLimit is the number of thumbnail and cover requests a client
	// may make per minute.
	FrameRateLimit int
	FlushTimeout   time.Duration
	DecoderBackend string
	Logger         *slog.Logger
	StartTime      time.Time
}

func (cfg *ServerConfig) setDefaults() {
	cfg.Logger = logging.WithComponent(logging.OrDiscard(cfg.Logger), "api")
	if cfg.ThumbnailCount <= 0 {
		cfg.ThumbnailCount = DefaultThumbnailCount
	}
	if cfg.FrameRateLimit <= 0 {
		cfg.FrameRateLimit = DefaultFrameRateLimit
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = DefaultFlushTimeout
	}
	if cfg.StartTime.IsZero() {
		cfg.StartTime = time.Now()
	}
}

func NewServer(cfg ServerConfig) *Server {
	handler := NewRouter(cfg)
	cfg.setDefaults()
	return &Server{
		httpServer: &http.Server{
			Addr:        fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:     handler,
			ReadTimeout: 15 * time.Second,
			// Thumbnail batches and publish flushes can take a while.
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
