package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nao1215/pagefetch/internal/model"
)

// Namespace prefixes every metric name.
const Namespace = "pagefetch"

// PoolStats is the view of the proxy pool exported as gauges.
// *proxypool.Pool satisfies it.
type PoolStats interface {
	Size() int
	InUse() int
}

// Metrics holds the Prometheus collectors of one process. Each Metrics
// has its own registry so tests and runs never share counters.
type Metrics struct {
	registry *prometheus.Registry

	urls     prometheus.Gauge
	outcomes *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// New registers the collectors. pool may be nil when no pool exists yet;
// the pool gauges are then omitted.
func New(pool PoolStats) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		urls: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "urls",
			Help:      "Number of URLs in the current run.",
		}),
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "outcomes_total",
			Help:      "Finished URLs by outcome reason.",
		}, []string{"reason"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Time a URL held its proxy, by outcome reason.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}, []string{"reason"}),
	}

	// Every reason is exported from the start so rate() works on the first scrape.
	m.outcomes.WithLabelValues(model.ReasonNone.Label())
	for _, r := range model.FailureReasons {
		m.outcomes.WithLabelValues(r.Label())
	}

	if pool != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "proxies_in_use",
			Help:      "Proxies currently leased by a worker.",
		}, func() float64 { return float64(pool.InUse()) })
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "proxies",
			Help:      "Proxies in the pool.",
		}, func() float64 { return float64(pool.Size()) })
	}

	return m
}

// SetURLs records the number of URLs of the run.
func (m *Metrics) SetURLs(n int) {
	m.urls.Set(float64(n))
}

// Observe counts one outcome. It has the signature of an outcome handler.
func (m *Metrics) Observe(o model.Outcome) {
	label := o.Reason.Label()
	m.outcomes.WithLabelValues(label).Inc()
	m.duration.WithLabelValues(label).Observe(o.Duration.Seconds())
}

// Handler returns the HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Server exposes /metrics on a listener.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger *slog.Logger
	done   chan struct{}
}

// Listen binds addr and serves /metrics in the background. Use ":0" to
// pick a free port; Addr reports the bound address.
func (m *Metrics) Listen(addr string, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	s := &Server{
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		ln:     ln,
		logger: logger,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server stopped", "error", err)
		}
	}()
	logger.Info("exposing Prometheus metrics", "address", s.Addr())

	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Shutdown stops the server and waits for it to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	<-s.done
	return err
}
