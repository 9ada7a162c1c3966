package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScanSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ds",
		Name:      "scan_sessions_total",
		Help:      "Capture sessions by terminal outcome (decoded, failed, stopped)",
	}, []string{"outcome"})

	FramesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ds",
		Name:      "frames_processed_total",
		Help:      "Total number of camera frames run through the barcode decoder",
	})

	DecodeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ds",
		Name:      "decode_duration_seconds",
		Help:      "Duration of a single frame decode attempt",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
	}, []string{"result"})

	CameraActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ds",
		Name:      "camera_active",
		Help:      "Number of camera streams currently held",
	})

	AnalysisRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ds",
		Name:      "analysis_requests_total",
		Help:      "Analysis calls by outcome category",
	}, []string{"outcome"})

	AnalysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ds",
		Name:      "analysis_duration_seconds",
		Help:      "Round-trip duration of analysis calls",
		Buckets:   prometheus.DefBuckets,
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ds",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ds",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
