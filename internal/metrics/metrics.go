package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	// Transport metrics
	EnvelopesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pchat_envelopes_published_total",
			Help: "Total envelopes written to the chat topic",
		},
		[]string{"kind"},
	)

	EnvelopesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pchat_envelopes_received_total",
			Help: "Total envelopes read from the chat topic",
		},
		[]string{"kind"},
	)

	EnvelopesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pchat_envelopes_dropped_total",
			Help: "Total envelopes that could not be decoded or ingested",
		},
		[]string{"reason"},
	)

	// Outbox metrics
	OutboxSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pchat_outbox_sent_total",
			Help: "Total pending messages synced",
		},
	)

	OutboxFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pchat_outbox_failed_total",
			Help: "Total pending messages that failed to sync",
		},
		[]string{"stage"}, // "upload" or "publish"
	)

	// Media metrics
	MediaLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pchat_media_loads_total",
			Help: "Total media load results",
		},
		[]string{"type", "status"},
	)

	MediaDownloadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pchat_media_download_duration_seconds",
			Help:    "Blob download duration",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	// Relay metrics
	ActionsRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pchat_actions_relayed_total",
			Help: "Total typing/read actions relayed",
		},
		[]string{"direction"}, // "out" or "in"
	)
)

// Serve exposes /metrics on addr until ctx is cancelled. An empty addr
// disables the listener.
func Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listener started", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
