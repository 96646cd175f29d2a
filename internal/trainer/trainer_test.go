package trainer

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/foresight/internal/dataset"
	fserrors "github.com/Iron-Ham/foresight/internal/errors"
	"github.com/Iron-Ham/foresight/internal/event"
	"github.com/Iron-Ham/foresight/internal/model"
	"github.com/Iron-Ham/foresight/internal/pipeline"
	"github.com/Iron-Ham/foresight/internal/storage"
)

var testConfig = Config{Epochs: 200, LearningRate: 0.5, ModelSuffix: ".fsmodel"}

func stagedBlob(t *testing.T, sessionID, rangeTS string) []byte {
	t.Helper()
	gen, err := dataset.NewGenerator(dataset.Shape{NumFeatures: 5, FeatureLength: 50, TargetLength: 3, MaxValue: 1}, 3)
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}
	meta := dataset.SessionMetadata{SessionID: sessionID, RangeTimestamp: rangeTS}
	data, err := json.Marshal(dataset.NewStagedDataset(meta, gen.Features(), gen.Labels()))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	return data
}

func newTestTrainer(opts ...Option) (*Trainer, *storage.Bucket, *storage.Bucket) {
	fsys := afero.NewMemMapFs()
	uploads := storage.NewBucket(fsys, "foresight-uploads", "/fs/uploads")
	deployments := storage.NewBucket(fsys, "foresight-deployments", "/fs/deployments")
	return New(uploads, deployments, testConfig, opts...), uploads, deployments
}

func TestFit_LearnsOneHotLabels(t *testing.T) {
	inputs := [][]float64{{0.1, 0.9}, {0.8, 0.2}, {0.5, 0.5}, {0.3, 0.7}}
	targets := [][]float64{{1, 0, 0}, {1, 0, 0}, {1, 0, 0}, {1, 0, 0}}

	short, shortLoss, err := Fit(context.Background(), inputs, targets, 1, 0.5)
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	long, longLoss, err := Fit(context.Background(), inputs, targets, 200, 0.5)
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if longLoss >= shortLoss {
		t.Errorf("loss after 200 epochs = %v, want below %v", longLoss, shortLoss)
	}
	if err := long.Validate(); err != nil {
		t.Fatalf("artifact invalid: %v", err)
	}
	if short.Outputs() != 3 || long.Inputs != 2 {
		t.Errorf("artifact shape = %d -> %d", long.Inputs, long.Outputs())
	}

	h := model.NewHandle("m", "", long, nil)
	if err := h.Compile(); err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	out, err := h.Predict(context.Background(), []float64{0.4, 0.6}, false)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	vec, _ := pipeline.NewPredictionVector(out)
	if got := pipeline.Decide(vec); got != pipeline.LabelFirst {
		t.Errorf("Decide() = %q on %v, want %q", got, out, pipeline.LabelFirst)
	}
}

func TestFit_Validation(t *testing.T) {
	tests := []struct {
		name    string
		inputs  [][]float64
		targets [][]float64
		epochs  int
		lr      float64
	}{
		{"no samples", nil, nil, 1, 0.1},
		{"count mismatch", [][]float64{{1}}, nil, 1, 0.1},
		{"zero epochs", [][]float64{{1}}, [][]float64{{1}}, 0, 0.1},
		{"zero rate", [][]float64{{1}}, [][]float64{{1}}, 1, 0},
		{"ragged", [][]float64{{1}, {1, 2}}, [][]float64{{1}, {1}}, 1, 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Fit(context.Background(), tt.inputs, tt.targets, tt.epochs, tt.lr)
			if !errors.Is(err, fserrors.ErrInvalidInput) {
				t.Errorf("Fit() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestFit_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := Fit(ctx, [][]float64{{1}}, [][]float64{{1}}, 10, 0.1)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Fit() error = %v, want context.Canceled", err)
	}
}

func TestTrain_DeploysLatestBlob(t *testing.T) {
	bus := event.NewBus()
	var trained []event.ModelTrainedEvent
	bus.Subscribe(event.TypeModelTrained, func(e event.Event) {
		trained = append(trained, e.(event.ModelTrainedEvent))
	})

	tr, uploads, deployments := newTestTrainer(WithBus(bus))
	if err := uploads.Put("s1/s1_202601031502.json", stagedBlob(t, "s1", "202601031502")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := uploads.Put("s2/s2_202601031502.json", stagedBlob(t, "s2", "202601031502")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	res, err := tr.Train(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if res.RemoteName != "s1_model0.fsmodel" || res.Samples != 50 || res.BlobKey != "s1/s1_202601031502.json" {
		t.Errorf("Train() = %+v", res)
	}
	if ok, _ := deployments.Exists("s1_model0.fsmodel"); !ok {
		t.Fatal("artifact was not deployed")
	}
	if ok, _ := deployments.Exists("s2_model0.fsmodel"); ok {
		t.Error("only the requested session should be trained")
	}

	data, _ := deployments.Get("s1_model0.fsmodel")
	a, err := model.Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if a.SessionID != "s1" || a.Inputs != 5 || a.Outputs() != 3 {
		t.Errorf("artifact = inputs %d outputs %d session %q", a.Inputs, a.Outputs(), a.SessionID)
	}

	if len(trained) != 1 || trained[0].RemoteName != "s1_model0.fsmodel" || trained[0].Samples != 50 {
		t.Errorf("model.trained events = %+v", trained)
	}
}

func TestTrain_Errors(t *testing.T) {
	tr, uploads, _ := newTestTrainer()
	_ = uploads.Put("bad/bad_1.json", []byte(`{"version":1}`))

	tests := []struct {
		name      string
		sessionID string
		want      error
	}{
		{"empty session", "", fserrors.ErrInvalidInput},
		{"path in session", "../x", fserrors.ErrInvalidInput},
		{"no uploads", "nobody", fserrors.ErrNotFound},
		{"invalid blob", "bad", fserrors.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tr.Train(context.Background(), tt.sessionID)
			if !errors.Is(err, tt.want) {
				t.Errorf("Train(%q) error = %v, want %v", tt.sessionID, err, tt.want)
			}
		})
	}
}

func TestWatcher_TrainsNewBlobs(t *testing.T) {
	root := t.TempDir()
	fsys := afero.NewOsFs()
	uploadsDir := filepath.Join(root, "uploads")
	uploads := storage.NewBucket(fsys, "foresight-uploads", uploadsDir)
	deployments := storage.NewBucket(fsys, "foresight-deployments", filepath.Join(root, "deployments"))
	tr := New(uploads, deployments, testConfig)

	w, err := NewWatcher(tr, uploadsDir, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	results := make(chan *Result, 4)
	w.OnResult(func(r *Result, err error) {
		if err != nil {
			t.Errorf("training error = %v", err)
			return
		}
		results <- r
	})
	w.Start(context.Background())
	defer w.Stop()

	if err := uploads.Put("s1/s1_202601031502.json", stagedBlob(t, "s1", "202601031502")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	select {
	case r := <-results:
		if r.RemoteName != "s1_model0.fsmodel" {
			t.Errorf("RemoteName = %q", r.RemoteName)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not train the uploaded blob")
	}

	if ok, _ := deployments.Exists("s1_model0.fsmodel"); !ok {
		t.Error("artifact was not deployed")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	tr, _, _ := newTestTrainer()
	w, err := NewWatcher(tr, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	// Stop before Start must not block.
	w.Stop()
	w.Stop()
}

func TestWatcher_BlobKey(t *testing.T) {
	w := &Watcher{dir: "/fs/uploads"}

	tests := []struct {
		path string
		key  string
		ok   bool
	}{
		{"/fs/uploads/s1/a.json", "s1/a.json", true},
		{"/fs/uploads/a.json", "", false},
		{"/fs/uploads/s1/a.json.tmp", "", false},
		{"/elsewhere/s1/a.json", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			key, ok := w.blobKey(tt.path)
			if key != tt.key || ok != tt.ok {
				t.Errorf("blobKey(%q) = %q, %v; want %q, %v", tt.path, key, ok, tt.key, tt.ok)
			}
		})
	}
}
