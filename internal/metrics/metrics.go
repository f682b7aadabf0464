// Package metrics holds the Prometheus collectors for checkpoint, restore
// and session activity. A launcher is short-lived, so the registry is
// written to a node-exporter textfile instead of being scraped.
package metrics

import (
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apperrors "github.com/wethinkt/go-glkcli/internal/errors"
)

var (
	checkpointOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "glkcli",
		Subsystem: "checkpoint",
		Name:      "operations_total",
		Help:      "Checkpoint attempts by mode and result.",
	}, []string{"mode", "result"})

	dumpDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "glkcli",
		Subsystem: "checkpoint",
		Name:      "dump_duration_seconds",
		Help:      "Wall time of successful checkpoints, dump plus store.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	checkpointSizeBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "glkcli",
		Subsystem: "checkpoint",
		Name:      "size_bytes",
		Help:      "Size of stored checkpoint images.",
		Buckets:   prometheus.ExponentialBuckets(256*1024, 4, 8),
	})

	restoreOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "glkcli",
		Subsystem: "restore",
		Name:      "operations_total",
		Help:      "Restore attempts by result.",
	}, []string{"result"})

	restoreDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "glkcli",
		Subsystem: "restore",
		Name:      "duration_seconds",
		Help:      "Wall time of successful restores including reattach.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	hotkeysTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "glkcli",
		Subsystem: "session",
		Name:      "hotkeys_total",
		Help:      "Hotkeys intercepted from user input, by action.",
	}, []string{"action"})

	playtimeSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "glkcli",
		Subsystem: "session",
		Name:      "playtime_seconds",
		Help:      "Total playtime of the most recent session.",
	})
)

// result maps an error to a low-cardinality label value.
func result(err error) string {
	if err == nil {
		return "ok"
	}
	return strings.ToLower(string(apperrors.CodeOf(err)))
}

// ObserveCheckpoint records one checkpoint attempt.
func ObserveCheckpoint(mode string, d time.Duration, size int64, err error) {
	checkpointOperations.WithLabelValues(mode, result(err)).Inc()
	if err != nil {
		return
	}
	dumpDurationSeconds.Observe(d.Seconds())
	checkpointSizeBytes.Observe(float64(size))
}

// ObserveRestore records one restore attempt.
func ObserveRestore(d time.Duration, err error) {
	restoreOperations.WithLabelValues(result(err)).Inc()
	if err == nil {
		restoreDurationSeconds.Observe(d.Seconds())
	}
}

// CountHotkey records an intercepted hotkey.
func CountHotkey(action string) {
	hotkeysTotal.WithLabelValues(action).Inc()
}

// SetPlaytime records the playtime of the current session.
func SetPlaytime(d time.Duration) {
	playtimeSeconds.Set(d.Seconds())
}

// WriteTextfile writes the default registry to path atomically, in the
// format read by the node exporter textfile collector.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
