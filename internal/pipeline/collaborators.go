package pipeline

import (
	"context"
	"time"

	"github.com/Iron-Ham/foresight/internal/dataset"
)

// Storage formats generated data and uploads it.
type Storage interface {
	// Format writes the data somewhere UploadBlob can read it and returns
	// that location.
	Format(ctx context.Context, meta dataset.SessionMetadata, features dataset.FeatureMatrix, labels dataset.LabelMatrix) (string, error)
	// UploadBlob uploads the formatted data at location.
	UploadBlob(ctx context.Context, location string) error
	// UploadMetadata stores the session record.
	UploadMetadata(ctx context.Context, record dataset.SessionMetadata) error
}

// Model is a retrieved model handle.
type Model interface {
	// Compiled reports whether the handle can serve predictions.
	Compiled() bool
	// Predict runs inference on input.
	Predict(ctx context.Context, input []float64, useAccelerator bool) ([]float64, error)
}

// ModelSource fetches model artifacts by remote name.
type ModelSource interface {
	Fetch(ctx context.Context, remoteName string) (Model, error)
}

// Recorder receives pipeline measurements.
type Recorder interface {
	// StageResult counts a terminal outcome for a stage.
	StageResult(stage, outcome string)
	// Rejection counts an action triggered while its capability was locked.
	Rejection(stage string)
	// CollaboratorDuration observes how long a collaborator call took.
	CollaboratorDuration(operation string, d time.Duration)
}

// Stage outcomes reported to the Recorder.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeTimeout = "timeout"
)

type nopRecorder struct{}

func (nopRecorder) StageResult(string, string)                 {}
func (nopRecorder) Rejection(string)                           {}
func (nopRecorder) CollaboratorDuration(string, time.Duration) {}
