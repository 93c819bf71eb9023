package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bestyn/bestynapp-sub001/internal/config"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	cfg.setDefaults()
	sel := newSelectorSet()
	frameLimit := RateLimit(cfg.FrameRateLimit, time.Minute)

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist())

	r.Get("/health", healthHandler(cfg))
	r.With(LoopbackGuard()).Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Tokens, cfg.Logger))

		r.Get("/sessions", listSessionsHandler(cfg))
		r.Post("/sessions", createSessionHandler(cfg))
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Use(sessionCtx(cfg))

			r.Get("/", getSessionHandler())
			r.Delete("/", deleteSessionHandler(cfg, sel))
			r.Post("/start", startEditingHandler())
			r.Post("/reset", resetSessionHandler(sel))
			r.Get("/capacity", capacityHandler())
			r.Get("/composition", compositionHandler())
			r.Get("/composition/locate", locateHandler())

			r.Post("/clips", addClipHandler())
			r.Post("/stills", addStillHandler())
			r.Post("/clips/move", moveClipHandler())
			r.Delete("/clips/{clipID}", removeClipHandler())
			r.Post("/clips/{clipID}/select", selectClipHandler())
			r.With(frameLimit).Get("/clips/{clipID}/thumbnails", thumbnailsHandler(cfg))
			r.With(frameLimit).Get("/clips/{clipID}/cover", coverHandler())

			r.Post("/trim", trimHandler())
			r.Put("/draft/range", draftRangeHandler())
			r.Post("/draft/confirm", confirmDraftHandler(sel))
			r.Post("/draft/cancel", cancelDraftHandler(sel))

			r.Post("/draft/selector", createSelectorHandler(sel))
			r.Get("/draft/selector", getSelectorHandler(sel))
			r.Post("/draft/selector/drag", dragSelectorHandler(sel))
			r.Post("/draft/selector/scroll", scrollSelectorHandler(sel))
			r.Put("/draft/selector/width", resizeSelectorHandler(sel))

			r.Put("/audio", setAudioHandler())
			r.Delete("/audio", clearAudioHandler())

			r.Post("/publish", publishHandler(cfg))
		})

		r.Get("/stories", listStoriesHandler(cfg))
		r.Get("/stories/{id}", getStoryHandler(cfg))
		r.Delete("/stories/{id}", deleteStoryHandler(cfg))
		r.Post("/stories/{id}/render", rerenderHandler(cfg))
		r.Post("/stories/{id}/edl", exportEDLHandler(cfg))
		r.Get("/jobs", listJobsHandler(cfg))
		r.Get("/jobs/{id}", getJobHandler(cfg))
		r.Get("/jobs/{id}/output", jobOutputHandler(cfg))
		r.Head("/jobs/{id}/output", jobOutputHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:         "ok",
			Version:        config.Version,
			UptimeS:        int64(time.Since(cfg.StartTime).Seconds()),
			DecoderBackend: cfg.DecoderBackend,
		}
		if cfg.Sessions != nil {
			resp.Sessions = len(cfg.Sessions.IDs())
		}
		if cfg.Runner != nil {
			resp.JobsRunning = cfg.Runner.ActiveJobCount(r.Context())
			resp.RunnerPaused = cfg.Runner.IsPaused()
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}
