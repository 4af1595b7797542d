package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "artrack",
		Name:      "frames_ingested_total",
		Help:      "Total number of frames captured and queued",
	}, []string{"stream_id"})

	FramesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "artrack",
		Name:      "frames_processed_total",
		Help:      "Total number of frames run through the tracking engine",
	}, []string{"stream_id", "outcome"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "artrack",
		Name:      "stage_duration_seconds",
		Help:      "Duration of frame processing stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	ActiveTracks = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "artrack",
		Name:      "active_tracks",
		Help:      "Number of landmarks currently tracked per stream",
	}, []string{"stream_id"})

	TrackingQuality = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "artrack",
		Name:      "tracking_quality",
		Help:      "Inlier retention ratio of the last processed frame",
	}, []string{"stream_id"})

	Reinitializations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "artrack",
		Name:      "reinitializations_total",
		Help:      "Total number of forced track re-initializations",
	}, []string{"stream_id"})

	PointsAugmented = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "artrack",
		Name:      "points_augmented_total",
		Help:      "Total number of replacement landmarks detected on healthy frames",
	}, []string{"stream_id"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "artrack",
		Name:      "queue_depth",
		Help:      "Number of pending frame tasks in queue",
	})

	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "artrack",
		Name:      "active_streams",
		Help:      "Number of currently active video streams",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "artrack",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "artrack",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
