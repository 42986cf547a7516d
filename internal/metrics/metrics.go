// Package metrics exposes monitor counters in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cbd-eventstream/internal/logging"
	"cbd-eventstream/internal/runstatus"
)

// Metrics owns a private registry so tests and multiple instances do not
// collide in the default one.
type Metrics struct {
	registry *prometheus.Registry

	frames          prometheus.Counter
	heartbeats      prometheus.Counter
	events          *prometheus.CounterVec
	templateErrors  prometheus.Counter
	decodeErrors    prometheus.Counter
	tokensIssued    *prometheus.CounterVec
	reconnects      *prometheus.CounterVec
	state           *prometheus.GaugeVec
	lastFrameSecond prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cbd_stream_frames_total",
			Help: "Frames received from the event-source stream.",
		}),
		heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cbd_stream_heartbeats_total",
			Help: "Heartbeat records received.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cbd_stream_events_total",
			Help: "Domain event records received, by record type.",
		}, []string{"type"}),
		templateErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cbd_stream_template_errors_total",
			Help: "Events whose english-string referenced missing parameters.",
		}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cbd_stream_decode_errors_total",
			Help: "Frames that were not valid event records.",
		}),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cbd_tokens_issued_total",
			Help: "Access tokens issued, by reason.",
		}, []string{"reason"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cbd_stream_reconnects_total",
			Help: "Stream reconnect attempts, by cause.",
		}, []string{"cause"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cbd_monitor_state",
			Help: "1 for the monitor's current lifecycle state, 0 otherwise.",
		}, []string{"state"}),
		lastFrameSecond: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cbd_stream_last_frame_timestamp_seconds",
			Help: "Unix time of the most recent frame.",
		}),
	}
	m.registry.MustRegister(
		m.frames, m.heartbeats, m.events, m.templateErrors, m.decodeErrors,
		m.tokensIssued, m.reconnects, m.state, m.lastFrameSecond,
	)
	for _, s := range runstatus.States {
		m.state.WithLabelValues(runstatus.Key(s)).Set(0)
	}
	m.state.WithLabelValues(runstatus.Key(runstatus.Idle)).Set(1)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) FrameReceived(heartbeat bool, eventType string) {
	m.frames.Inc()
	m.lastFrameSecond.Set(float64(time.Now().Unix()))
	if heartbeat {
		m.heartbeats.Inc()
		return
	}
	m.events.WithLabelValues(eventType).Inc()
}

func (m *Metrics) TemplateError() {
	m.templateErrors.Inc()
}

func (m *Metrics) DecodeError() {
	m.decodeErrors.Inc()
}

func (m *Metrics) TokenIssued(reason string) {
	m.tokensIssued.WithLabelValues(reason).Inc()
}

func (m *Metrics) Reconnect(cause string) {
	m.reconnects.WithLabelValues(cause).Inc()
}

func (m *Metrics) StateChanged(from, to runstatus.State) {
	m.state.WithLabelValues(runstatus.Key(from)).Set(0)
	m.state.WithLabelValues(runstatus.Key(to)).Set(1)
}

func (m *Metrics) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Serve exposes Handler on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *logging.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("serving metrics", logging.Field("addr", addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
