// Package metrics provides Prometheus metrics for driftbox.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Task metrics
	tasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftbox_tasks_total",
			Help: "Total number of finished tasks by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	taskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "driftbox_task_duration_seconds",
			Help:    "Task run time from start to terminal state",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	tasksRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "driftbox_tasks_running",
			Help: "Number of tasks currently running",
		},
	)

	// Transfer metrics
	bytesUploaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "driftbox_bytes_uploaded_total",
			Help: "Total bytes pushed to the blob store",
		},
	)

	bytesDownloaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "driftbox_bytes_downloaded_total",
			Help: "Total bytes fetched through signed URLs",
		},
	)

	// Backend metrics
	blobOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "driftbox_blob_operation_duration_seconds",
			Help:    "Blob store operation latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op", "status"},
	)

	metadataOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "driftbox_metadata_operation_duration_seconds",
			Help:    "Metadata store operation latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op", "status"},
	)

	metadataWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "driftbox_metadata_writes_total",
			Help: "Total metadata set/update/delete calls",
		},
	)

	// Auth metrics
	authAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftbox_auth_attempts_total",
			Help: "Login attempts by result",
		},
		[]string{"result"},
	)
)

// TaskStarted marks a task as running.
func TaskStarted() {
	tasksRunning.Inc()
}

// TaskFinished records a task outcome ("succeeded" or "failed").
func TaskFinished(kind, outcome string, d time.Duration) {
	tasksRunning.Dec()
	tasksTotal.WithLabelValues(kind, outcome).Inc()
	taskDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// AddUploadedBytes records bytes pushed to the blob store.
func AddUploadedBytes(n int64) {
	bytesUploaded.Add(float64(n))
}

// AddDownloadedBytes records bytes fetched through signed URLs.
func AddDownloadedBytes(n int64) {
	bytesDownloaded.Add(float64(n))
}

// ObserveBlobOp records the latency of one blob store call.
func ObserveBlobOp(op string, start time.Time, err error) {
	blobOpDuration.WithLabelValues(op, status(err)).Observe(time.Since(start).Seconds())
}

// ObserveMetadataOp records the latency of one metadata store call.
func ObserveMetadataOp(op string, start time.Time, err error) {
	metadataOpDuration.WithLabelValues(op, status(err)).Observe(time.Since(start).Seconds())
	switch op {
	case "set", "update", "delete":
		metadataWrites.Inc()
	}
}

// RecordAuthAttempt records a login attempt.
func RecordAuthAttempt(success bool) {
	if success {
		authAttempts.WithLabelValues("success").Inc()
	} else {
		authAttempts.WithLabelValues("failure").Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
