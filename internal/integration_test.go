// Package internal contains integration tests that verify the pipeline
// packages work together: the orchestrator driving real storage, trainer and
// model collaborators while the event bus reports every change.
package internal

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/foresight/internal/dataset"
	"github.com/Iron-Ham/foresight/internal/event"
	"github.com/Iron-Ham/foresight/internal/metrics"
	"github.com/Iron-Ham/foresight/internal/model"
	"github.com/Iron-Ham/foresight/internal/pipeline"
	"github.com/Iron-Ham/foresight/internal/storage"
	"github.com/Iron-Ham/foresight/internal/trainer"
)

const sessionID = "integration"

type stack struct {
	bus      *event.Bus
	orch     *pipeline.Orchestrator
	trainer  *trainer.Trainer
	models   *model.Source
	records  *storage.RecordStore
	recorder *metrics.Recorder

	mu     sync.Mutex
	events []event.Event
}

func newStack(t *testing.T, policy pipeline.UploadPolicy) *stack {
	t.Helper()

	fsys := afero.NewMemMapFs()
	records, err := storage.OpenRecords(filepath.Join(t.TempDir(), "metadata.db"), "records")
	if err != nil {
		t.Fatalf("OpenRecords() error = %v", err)
	}
	t.Cleanup(func() { _ = records.Close() })

	store := storage.NewStore(fsys, storage.Paths{
		StagingDir:     "/staging",
		WriteBucket:    "uploads",
		WriteBucketDir: "/uploads",
	}, records, nil)
	deployments := storage.NewBucket(fsys, "deployments", "/deployments")

	s := &stack{
		bus:      event.NewBus(),
		models:   model.NewSource(fsys, deployments, "/cache", time.Hour, nil),
		records:  records,
		recorder: metrics.NewRecorder(),
	}
	s.trainer = trainer.New(store.Uploads(), deployments, trainer.Config{
		Epochs:       200,
		LearningRate: 0.5,
		ModelSuffix:  ".fsmodel",
	}, trainer.WithBus(s.bus))

	// Simulate the TUI subscribing to everything
	s.bus.SubscribeAll(func(e event.Event) {
		s.mu.Lock()
		s.events = append(s.events, e)
		s.mu.Unlock()
	})
	s.bus.Subscribe(event.TypeModelTrained, func(e event.Event) {
		s.models.Invalidate(e.(event.ModelTrainedEvent).RemoteName)
	})

	gen, err := dataset.NewGenerator(dataset.Shape{
		NumFeatures:   5,
		FeatureLength: 50,
		TargetLength:  3,
		MinValue:      0,
		MaxValue:      1,
	}, 42)
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}
	s.orch, err = pipeline.NewOrchestrator(pipeline.Config{
		Generator:     gen,
		Metadata:      dataset.NewMetadataBuilder(sessionID),
		Storage:       store,
		Models:        s.models,
		Bus:           s.bus,
		ModelSuffix:   ".fsmodel",
		FormatTimeout: 5 * time.Second,
		UploadPolicy:  policy,
	}, pipeline.WithRecorder(s.recorder))
	if err != nil {
		t.Fatalf("NewOrchestrator() error = %v", err)
	}
	return s
}

func (s *stack) statuses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.events {
		if sc, ok := e.(event.StatusChangedEvent); ok {
			out = append(out, sc.Current)
		}
	}
	return out
}

func (s *stack) countType(eventType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.EventType() == eventType {
			n++
		}
	}
	return n
}

// runToPredict walks every stage in order, training in between.
func (s *stack) runToPredict(t *testing.T) pipeline.Prediction {
	t.Helper()
	ctx := context.Background()

	if err := s.orch.Generate(ctx); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if err := s.orch.Upload(ctx); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if err := s.orch.Drain(); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if _, err := s.trainer.Train(ctx, sessionID); err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if err := s.orch.Retrieve(ctx); err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if err := s.orch.Drain(); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	p, err := s.orch.Predict(ctx)
	if err != nil {
		t.Fatalf("Predict() error = %v (status %q)", err, s.orch.Status())
	}
	return p
}

func TestPipelineIntegration(t *testing.T) {
	for _, policy := range []pipeline.UploadPolicy{pipeline.UploadRace, pipeline.UploadJoined} {
		t.Run(string(policy), func(t *testing.T) {
			s := newStack(t, policy)
			p := s.runToPredict(t)

			// Every label row is class 0, so the trained model must pick it.
			if p.Label != pipeline.LabelFirst {
				t.Errorf("label = %s, want %s (vector %v)", p.Label, pipeline.LabelFirst, p.Vector)
			}
			if got := s.orch.Status(); got != pipeline.PredictionStatus(pipeline.LabelFirst) {
				t.Errorf("status = %q", got)
			}
			for _, c := range pipeline.Capabilities() {
				if !s.orch.Gates().Has(c) {
					t.Errorf("%v should be unlocked after a full run", c)
				}
			}

			recs, err := s.records.List(context.Background(), sessionID)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(recs) != 1 || recs[0].BlobKey == "" {
				t.Errorf("records = %+v, want one record with a blob key", recs)
			}

			if n := s.countType(event.TypeModelTrained); n != 1 {
				t.Errorf("model.trained events = %d, want 1", n)
			}
			if n := s.countType(event.TypePredictionMade); n != 1 {
				t.Errorf("prediction.made events = %d, want 1", n)
			}
		})
	}
}

// TestPipelineIntegration_StatusOrder checks the order of the statuses that
// are not subject to upload completion races.
func TestPipelineIntegration_StatusOrder(t *testing.T) {
	s := newStack(t, pipeline.UploadJoined)
	s.runToPredict(t)

	expected := []string{
		pipeline.StatusGenerating,
		pipeline.StatusGenerated,
		pipeline.StatusUploading,
		pipeline.StatusUploaded,
		pipeline.StatusRetrieving,
		pipeline.StatusRetrieved,
		pipeline.StatusPredicting,
		pipeline.PredictionStatus(pipeline.LabelFirst),
	}
	got := s.statuses()
	i := 0
	for _, st := range got {
		if i < len(expected) && st == expected[i] {
			i++
		}
	}
	if i != len(expected) {
		t.Errorf("statuses %q do not contain %q in order", got, expected)
	}
}

func TestPipelineIntegration_RetrainAfterReset(t *testing.T) {
	s := newStack(t, pipeline.UploadRace)
	first := s.runToPredict(t)

	s.orch.Reset()
	if got := s.orch.Gates(); got != pipeline.NewGateSet() {
		t.Fatalf("gates after reset = %v", got)
	}
	if _, err := s.orch.Predict(context.Background()); err == nil {
		t.Fatal("Predict() after reset should be rejected")
	}

	second := s.runToPredict(t)
	if second.Label != first.Label {
		t.Errorf("labels differ across runs: %s then %s", first.Label, second.Label)
	}
	if n := s.countType(event.TypePreconditionRejected); n != 1 {
		t.Errorf("precondition.rejected events = %d, want 1", n)
	}
	if n := s.countType(event.TypeModelTrained); n != 2 {
		t.Errorf("model.trained events = %d, want 2", n)
	}
}
