// Package trainer simulates the remote training service. It reads uploaded
// staged datasets from the write bucket, fits a softmax regression and
// deploys the result to the read bucket under the name the pipeline's
// retrieve stage asks for.
package trainer

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/Iron-Ham/foresight/internal/dataset"
	"github.com/Iron-Ham/foresight/internal/errors"
	"github.com/Iron-Ham/foresight/internal/event"
	"github.com/Iron-Ham/foresight/internal/logging"
	"github.com/Iron-Ham/foresight/internal/model"
	"github.com/Iron-Ham/foresight/internal/storage"
)

// Config holds training parameters.
type Config struct {
	Epochs       int
	LearningRate float64
	// ModelSuffix is appended to "{sessionId}_model0" to name the artifact.
	ModelSuffix string
}

// Result describes one deployed model.
type Result struct {
	SessionID  string
	BlobKey    string
	RemoteName string
	Samples    int
	Loss       float64
}

// Trainer turns uploaded blobs into deployed model artifacts.
type Trainer struct {
	uploads     *storage.Bucket
	deployments *storage.Bucket
	cfg         Config
	bus         *event.Bus
	logger      *logging.Logger
}

// Option configures a Trainer.
type Option func(*Trainer)

// WithBus publishes a model.trained event after every deployment.
func WithBus(b *event.Bus) Option {
	return func(t *Trainer) { t.bus = b }
}

// WithLogger sets the trainer's logger.
func WithLogger(l *logging.Logger) Option {
	return func(t *Trainer) { t.logger = l }
}

// New creates a Trainer reading from uploads and writing to deployments.
func New(uploads, deployments *storage.Bucket, cfg Config, opts ...Option) *Trainer {
	t := &Trainer{uploads: uploads, deployments: deployments, cfg: cfg}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = logging.NopLogger()
	}
	t.logger = t.logger.With("component", "trainer")
	return t
}

// RemoteName returns the artifact name for a session.
func RemoteName(sessionID, suffix string) string {
	return sessionID + "_model0" + suffix
}

// Train fits a model on the most recent blob uploaded for sessionID and
// deploys it. A session with no uploads yields an error matching
// errors.ErrNotFound.
func (t *Trainer) Train(ctx context.Context, sessionID string) (*Result, error) {
	if sessionID == "" || strings.ContainsAny(sessionID, `/\`) {
		return nil, errors.NewValidationError("invalid session id").WithField("session_id").WithValue(sessionID)
	}

	obj, ok, err := t.uploads.Latest(sessionID + "/")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "no uploads for session %s", sessionID)
	}
	return t.TrainBlob(ctx, obj.Key)
}

// TrainBlob fits a model on the blob stored under key and deploys it under
// the blob's session.
func (t *Trainer) TrainBlob(ctx context.Context, key string) (*Result, error) {
	start := time.Now()

	data, err := t.uploads.Get(key)
	if err != nil {
		return nil, err
	}
	doc, err := dataset.Decode(data)
	if err != nil {
		return nil, errors.Wrapf(err, "blob %s", key)
	}

	inputs, targets := doc.Samples()
	artifact, loss, err := Fit(ctx, inputs, targets, t.cfg.Epochs, t.cfg.LearningRate)
	if err != nil {
		return nil, err
	}
	artifact.SessionID = doc.Metadata.SessionID

	encoded, err := model.Encode(artifact)
	if err != nil {
		return nil, err
	}
	name := RemoteName(doc.Metadata.SessionID, t.cfg.ModelSuffix)
	if err := t.deployments.Put(name, encoded); err != nil {
		return nil, err
	}

	res := &Result{
		SessionID:  doc.Metadata.SessionID,
		BlobKey:    key,
		RemoteName: name,
		Samples:    len(inputs),
		Loss:       loss,
	}
	t.logger.Info("deployed model",
		"session_id", res.SessionID,
		"blob", key,
		"remote_name", name,
		"samples", res.Samples,
		"loss", loss,
		"duration_ms", time.Since(start).Milliseconds())
	if t.bus != nil {
		t.bus.Publish(event.NewModelTrainedEvent(res.SessionID, name, res.Samples, loss))
	}
	return res, nil
}

// Fit trains a single-layer softmax classifier with full-batch gradient
// descent and returns it with its final mean cross-entropy loss.
func Fit(ctx context.Context, inputs, targets [][]float64, epochs int, lr float64) (*model.Artifact, float64, error) {
	if len(inputs) == 0 || len(inputs) != len(targets) {
		return nil, 0, errors.NewValidationError("need one target per input").WithField("samples").WithValue(len(inputs))
	}
	if epochs <= 0 || lr <= 0 {
		return nil, 0, errors.NewValidationError("epochs and learning rate must be positive")
	}
	d, k := len(inputs[0]), len(targets[0])
	if d == 0 || k == 0 {
		return nil, 0, errors.NewValidationError("samples must not be empty").WithField("samples")
	}

	w := make([][]float64, k)
	for c := range w {
		w[c] = make([]float64, d)
	}
	b := make([]float64, k)
	n := float64(len(inputs))

	gradW := make([][]float64, k)
	for c := range gradW {
		gradW[c] = make([]float64, d)
	}
	gradB := make([]float64, k)
	p := make([]float64, k)

	var loss float64
	for epoch := 0; epoch < epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		for c := range gradW {
			clear(gradW[c])
		}
		clear(gradB)
		loss = 0

		for s, x := range inputs {
			y := targets[s]
			if len(x) != d || len(y) != k {
				return nil, 0, errors.NewValidationError("ragged samples").WithField("samples").WithValue(s)
			}
			for c := 0; c < k; c++ {
				z := b[c]
				for i, v := range x {
					z += w[c][i] * v
				}
				p[c] = z
			}
			model.Softmax(p)
			for c := 0; c < k; c++ {
				if y[c] > 0 {
					loss -= y[c] * math.Log(math.Max(p[c], 1e-12))
				}
				g := p[c] - y[c]
				gradB[c] += g
				for i, v := range x {
					gradW[c][i] += g * v
				}
			}
		}

		for c := 0; c < k; c++ {
			b[c] -= lr * gradB[c] / n
			for i := range w[c] {
				w[c][i] -= lr * gradW[c][i] / n
			}
		}
		loss /= n
	}

	return &model.Artifact{
		Version: model.ArtifactVersion,
		Inputs:  d,
		Layers: []model.Layer{{
			Weights:    w,
			Bias:       b,
			Activation: model.ActivationSoftmax,
		}},
		CreatedAt: time.Now().UTC(),
	}, loss, nil
}
