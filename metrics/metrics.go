// SPDX-License-Identifier: GPL-3.0-or-later
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/CrawX/mailferry/log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Message outcomes as used for the outcome label.
const (
	OutcomeTransferred = "transferred"
	OutcomeDeleted     = "deleted"
	OutcomeFailed      = "failed"
	OutcomeSkipped     = "skipped"
	OutcomeAdopted     = "adopted"
)

type Metrics struct {
	registry *prometheus.Registry

	messages      *prometheus.CounterVec
	cycles        *prometheus.CounterVec
	cycleDuration *prometheus.HistogramVec
	lastSuccess   *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		messages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailferry_messages_total",
				Help: "Messages handled per source and outcome.",
			},
			[]string{
				"source",
				"outcome", // transferred, deleted, failed, skipped, adopted
			},
		),
		cycles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailferry_cycles_total",
				Help: "Transfer cycles per source and result.",
			},
			[]string{
				"source",
				"result", // ok, error
			},
		),
		cycleDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailferry_cycle_duration_seconds",
				Help:    "Duration of one transfer cycle in seconds.",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
			},
			[]string{"source"},
		),
		lastSuccess: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mailferry_last_success_timestamp_seconds",
				Help: "Unix time of the last cycle per source that finished without error.",
			},
			[]string{"source"},
		),
	}
}

func (m *Metrics) Message(source string, outcome string) {
	m.messages.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) Cycle(source string, duration time.Duration, err error) {
	m.cycleDuration.WithLabelValues(source).Observe(duration.Seconds())
	if err != nil {
		m.cycles.WithLabelValues(source, "error").Inc()
		return
	}
	m.cycles.WithLabelValues(source, "ok").Inc()
	m.lastSuccess.WithLabelValues(source).SetToCurrentTime()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx ends.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	l := log.Logger(log.LOG_MAIN)

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	l.WithField("listen", listener.Addr().String()).Info("Serving metrics")

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	})
	defer stop()

	err = server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
