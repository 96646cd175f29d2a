// Package metrics exports pipeline measurements to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Iron-Ham/foresight/internal/logging"
)

const namespace = "foresight"

// Recorder counts stage outcomes, rejected actions and collaborator
// latency. It satisfies pipeline.Recorder.
type Recorder struct {
	registry *prometheus.Registry

	stageResults  *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	durations     *prometheus.HistogramVec
	modelsTrained prometheus.Counter
}

// NewRecorder creates a Recorder with its own registry, which also carries
// the Go runtime and process collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		stageResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Terminal outcomes per pipeline stage.",
		}, []string{"capability", "outcome"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "precondition_rejections_total",
			Help:      "Actions triggered while their capability was locked.",
		}, []string{"capability"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "collaborator_duration_seconds",
			Help:      "Duration of storage and model collaborator calls.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"operation"}),
		modelsTrained: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "models_trained_total",
			Help:      "Model artifacts deployed by the local trainer.",
		}),
	}
	r.registry = prometheus.NewRegistry()
	r.registry.MustRegister(
		r.stageResults,
		r.rejections,
		r.durations,
		r.modelsTrained,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry returns the registry the recorder's collectors live in.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// StageResult counts a terminal outcome for a stage.
func (r *Recorder) StageResult(stage, outcome string) {
	r.stageResults.WithLabelValues(stage, outcome).Inc()
}

// Rejection counts an action triggered while its capability was locked.
func (r *Recorder) Rejection(stage string) {
	r.rejections.WithLabelValues(stage).Inc()
}

// CollaboratorDuration observes one collaborator call.
func (r *Recorder) CollaboratorDuration(operation string, d time.Duration) {
	r.durations.WithLabelValues(operation).Observe(d.Seconds())
}

// ModelTrained counts one deployed model.
func (r *Recorder) ModelTrained() {
	r.modelsTrained.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Server exposes /metrics on an address.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger *logging.Logger
}

// Listen binds addr and returns a server ready to Serve.
func Listen(addr string, r *Recorder, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	return &Server{
		srv:    &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:     ln,
		logger: logger,
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Serve blocks serving requests until Shutdown.
func (s *Server) Serve() error {
	s.logger.Info("serving metrics", "addr", s.Addr())
	if err := s.srv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
