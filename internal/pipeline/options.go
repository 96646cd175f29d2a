package pipeline

import (
	"go.opentelemetry.io/otel/trace"

	"github.com/Iron-Ham/foresight/internal/logging"
)

// UploadPolicy selects how the two post-format uploads report.
type UploadPolicy string

const (
	// UploadRace lets each upload write its own status; the last to finish wins.
	UploadRace UploadPolicy = "race"
	// UploadJoined writes one status after both uploads finish.
	UploadJoined UploadPolicy = "joined"
)

// Option configures an Orchestrator.
type Option func(*options)

type options struct {
	logger   *logging.Logger
	recorder Recorder
	tracer   trace.TracerProvider
}

// WithLogger sets the orchestrator's logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}

// WithTracerProvider sets the provider used to create operation spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracer = tp
	}
}
