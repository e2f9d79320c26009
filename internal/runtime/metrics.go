package runtime

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	loggingpkg "github.com/cafescraper/actorkit/internal/runtime/logging"
)

// Metrics tracks delivery statistics for one actor process.
type Metrics struct {
	mu         sync.Mutex
	registerer prometheus.Registerer
	registered bool

	framesTotal      *prometheus.CounterVec
	sendRetriesTotal prometheus.Counter
	reconnectsTotal  prometheus.Counter
	logsDroppedTotal prometheus.Counter
}

func newActorCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "actorkit",
			Subsystem: "delivery",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newActorCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "actorkit",
			Subsystem: "delivery",
			Name:      name,
			Help:      help,
		},
	)
}

// NewMetrics creates a metrics collector. A nil registerer falls back to the
// Prometheus default registry.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Metrics{
		registerer:       registerer,
		framesTotal:      newActorCounterVec("frames_total", "Frames by kind and delivery outcome", []string{"kind", "status"}),
		sendRetriesTotal: newActorCounter("send_retries_total", "Frame delivery retry attempts"),
		reconnectsTotal:  newActorCounter("reconnects_total", "Control-plane reconnections after an established session was lost"),
		logsDroppedTotal: newActorCounter("logs_dropped_total", "Log events dropped by the telemetry buffer"),
	}
}

// Register registers the collectors. Safe to call multiple times; collectors
// already present in the registry are tolerated.
func (m *Metrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.framesTotal,
		m.sendRetriesTotal,
		m.reconnectsTotal,
		m.logsDroppedTotal,
	}
	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	m.registered = true
	return nil
}

func (m *Metrics) FrameSent(kind string)    { m.framesTotal.WithLabelValues(kind, "sent").Inc() }
func (m *Metrics) FrameDropped(kind string) { m.framesTotal.WithLabelValues(kind, "dropped").Inc() }
func (m *Metrics) SendRetry()               { m.sendRetriesTotal.Inc() }
func (m *Metrics) Reconnect()               { m.reconnectsTotal.Inc() }
func (m *Metrics) LogsDropped(n int)        { m.logsDroppedTotal.Add(float64(n)) }

// Serve exposes /metrics on the given port in a background goroutine.
func (m *Metrics) Serve(port int, logger loggingpkg.ServiceLogger) {
	if port <= 0 {
		return
	}
	addr := fmt.Sprintf(":%d", port)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("Starting metrics server", loggingpkg.LogFields{"address": addr})
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("Metrics server failed", err, loggingpkg.LogFields{"address": addr})
		}
	}()
}
