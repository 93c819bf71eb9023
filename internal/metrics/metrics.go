// Package metrics holds the Prometheus collectors of the story engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Rebuild outcomes.
const (
	RebuildApplied = "applied"
	RebuildStale   = "stale"
	RebuildFailed  = "failed"
)

// Frame extraction results.
const (
	FrameOK        = "ok"
	FrameFailed    = "failed"
	FrameDiscarded = "discarded"
)

var (
	rebuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "story_composition_rebuilds_total",
		Help: "Composition rebuilds by outcome (applied, stale, failed)",
	}, []string{"outcome"})

	rebuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "story_composition_rebuild_duration_seconds",
		Help:    "Time from issuing a rebuild until its result is handled",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	framesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "story_frames_total",
		Help: "Extracted frames by result",
	}, []string{"result"})

	frameCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "story_frame_cache_requests_total",
		Help: "Frame cache lookups by result (hit, miss)",
	}, []string{"result"})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "story_sessions_active",
		Help: "Editing sessions currently open",
	})

	exportJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "story_export_jobs_total",
		Help: "Finished export jobs by status",
	}, []string{"status"})
)

// ObserveRebuild records the outcome of one rebuild and how long it took.
func ObserveRebuild(outcome string, took time.Duration) {
	switch outcome {
	case RebuildApplied, RebuildStale, RebuildFailed:
	default:
		outcome = "unknown"
	}
	rebuildsTotal.WithLabelValues(outcome).Inc()
	rebuildDuration.Observe(took.Seconds())
}

func IncFrame(result string) {
	if result == "" {
		result = "unknown"
	}
	framesTotal.WithLabelValues(result).Inc()
}

func IncFrameCache(hit bool) {
	if hit {
		frameCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	frameCacheTotal.WithLabelValues("miss").Inc()
}

func SessionOpened() { activeSessions.Inc() }

func SessionClosed() { activeSessions.Dec() }

func IncExportJob(status string) {
	if status == "" {
		status = "unknown"
	}
	exportJobsTotal.WithLabelValues(status).Inc()
}
