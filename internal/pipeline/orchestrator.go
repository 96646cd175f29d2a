package pipeline

import (
	"context"
	"slices"
	"time"

	"github.com/sasha-s/go-deadlock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Iron-Ham/foresight/internal/asyncjoin"
	"github.com/Iron-Ham/foresight/internal/dataset"
	"github.com/Iron-Ham/foresight/internal/errors"
	"github.com/Iron-Ham/foresight/internal/event"
	"github.com/Iron-Ham/foresight/internal/logging"
)

const tracerName = "github.com/Iron-Ham/foresight/internal/pipeline"

// Config holds the orchestrator's required collaborators and settings.
type Config struct {
	Generator *dataset.Generator
	Metadata  *dataset.MetadataBuilder
	Storage   Storage
	Models    ModelSource
	Bus       *event.Bus

	// ModelSuffix is appended to "{sessionId}_model0" to name the artifact.
	ModelSuffix    string
	UseAccelerator bool
	// FormatTimeout bounds the blocking wait on Storage.Format; 0 is unbounded.
	FormatTimeout time.Duration
	UploadPolicy  UploadPolicy
}

// Orchestrator owns the capability gates and drives the four pipeline stages.
// It is safe for concurrent use.
type Orchestrator struct {
	cfg      Config
	logger   *logging.Logger
	recorder Recorder
	tracer   trace.Tracer

	mu       deadlock.Mutex
	gates    GateSet
	status   string
	epoch    uint64 // incremented by Reset; stale completions are dropped
	seq      uint64 // last Seq stamped on a status or gates event
	features dataset.FeatureMatrix
	labels   dataset.LabelMatrix
	metadata *dataset.SessionMetadata
	model    Model
	last     *Prediction

	inflight asyncjoin.Group
}

// NewOrchestrator creates an Orchestrator with gates {GENERATE} and the
// default status.
func NewOrchestrator(cfg Config, opts ...Option) (*Orchestrator, error) {
	if cfg.Generator == nil {
		return nil, errors.New("pipeline: Generator is required")
	}
	if cfg.Metadata == nil {
		return nil, errors.New("pipeline: Metadata is required")
	}
	if cfg.Storage == nil {
		return nil, errors.New("pipeline: Storage is required")
	}
	if cfg.Models == nil {
		return nil, errors.New("pipeline: Models is required")
	}
	if cfg.Bus == nil {
		return nil, errors.New("pipeline: Bus is required")
	}
	if cfg.UploadPolicy == "" {
		cfg.UploadPolicy = UploadRace
	}
	if cfg.UploadPolicy != UploadRace && cfg.UploadPolicy != UploadJoined {
		return nil, errors.NewValidationError("unknown upload policy").WithField("upload_policy").WithValue(cfg.UploadPolicy)
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logging.NopLogger()
	}
	if o.recorder == nil {
		o.recorder = nopRecorder{}
	}
	if o.tracer == nil {
		o.tracer = otel.GetTracerProvider()
	}

	return &Orchestrator{
		cfg:      cfg,
		logger:   o.logger.WithSession(cfg.Metadata.SessionID()),
		recorder: o.recorder,
		tracer:   o.tracer.Tracer(tracerName),
		gates:    NewGateSet(),
		status:   StatusDefault,
	}, nil
}

// -----------------------------------------------------------------------------
// Accessors
// -----------------------------------------------------------------------------

// Status returns the current status text.
func (o *Orchestrator) Status() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Gates returns the current gate set.
func (o *Orchestrator) Gates() GateSet {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gates
}

// SessionID returns the process-lifetime session identifier.
func (o *Orchestrator) SessionID() string {
	return o.cfg.Metadata.SessionID()
}

// RemoteModelName returns the artifact name Retrieve fetches.
func (o *Orchestrator) RemoteModelName() string {
	return o.SessionID() + "_model0" + o.cfg.ModelSuffix
}

// Data returns the most recently generated matrices and metadata.
// ok is false before the first Generate. The matrices are shared and must
// not be modified.
func (o *Orchestrator) Data() (features dataset.FeatureMatrix, labels dataset.LabelMatrix, meta dataset.SessionMetadata, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.metadata == nil {
		return nil, nil, dataset.SessionMetadata{}, false
	}
	return o.features, o.labels, *o.metadata, true
}

// Model returns the retrieved model handle, or nil if none was retrieved.
func (o *Orchestrator) Model() Model {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.model
}

// LastPrediction returns the most recent classified prediction.
func (o *Orchestrator) LastPrediction() (Prediction, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return Prediction{}, false
	}
	return *o.last, true
}

// Drain waits for every background upload and retrieval started so far.
func (o *Orchestrator) Drain() error {
	return o.inflight.Wait()
}

// -----------------------------------------------------------------------------
// Actions
// -----------------------------------------------------------------------------

// Generate builds fresh feature and label matrices and session metadata,
// replacing any previous ones, and grants UPLOAD.
func (o *Orchestrator) Generate(ctx context.Context) error {
	_, span := o.tracer.Start(ctx, "pipeline.generate")
	defer span.End()

	o.mu.Lock()
	if !o.gates.Has(Generate) {
		o.mu.Unlock()
		return o.reject(span, Generate, nil)
	}

	var events []event.Event
	events = append(events, o.setStatusLocked(StatusGenerating))

	meta := o.cfg.Metadata.Build()
	o.features = o.cfg.Generator.Features()
	o.labels = o.cfg.Generator.Labels()
	o.metadata = &meta

	events = append(events, o.setStatusLocked(StatusGenerated))
	events = append(events, o.grantLocked(Upload)...)
	fRows, fCols := dataset.Dims(o.features)
	lRows, lCols := dataset.Dims(o.labels)
	o.mu.Unlock()

	o.publish(events)
	o.recorder.StageResult(Generate.Stage(), OutcomeSuccess)
	o.logger.WithStage(Generate.Stage()).Info("generated data",
		"range_timestamp", meta.RangeTimestamp,
		"features", [2]int{fRows, fCols},
		"labels", [2]int{lRows, lCols})
	return nil
}

// Upload blocks until the format step finishes, grants RETRIEVE, and starts
// the blob and metadata uploads in the background. It returns once the
// uploads are started; their outcomes only reach the status text.
//
// If formatting fails or does not finish within the format timeout, nothing
// is uploaded and RETRIEVE is not granted.
func (o *Orchestrator) Upload(ctx context.Context) error {
	ctx, span := o.tracer.Start(ctx, "pipeline.upload")
	defer span.End()
	logger := o.logger.WithStage(Upload.Stage())

	o.mu.Lock()
	if !o.gates.Has(Upload) {
		o.mu.Unlock()
		return o.reject(span, Upload, nil)
	}
	if o.metadata == nil {
		o.mu.Unlock()
		return o.reject(span, Upload, errors.New("no generated data"))
	}
	features, labels, meta := o.features, o.labels, *o.metadata
	epoch := o.epoch
	status := o.setStatusLocked(StatusUploading)
	o.mu.Unlock()
	o.publish([]event.Event{status})

	// The format completion is published here rather than by the operation,
	// so an abandoned Format that finishes late reports nothing.
	start := time.Now()
	location, err := asyncjoin.Await(ctx, "format", o.cfg.FormatTimeout, func(ctx context.Context) (string, error) {
		opStart := time.Now()
		loc, err := o.cfg.Storage.Format(ctx, meta, features, labels)
		o.recorder.CollaboratorDuration("format", time.Since(opStart))
		return loc, err
	})
	o.bus().Publish(event.NewStageCompletedEvent(Upload.Stage(), "format", err, time.Since(start)))
	if err != nil {
		outcome := OutcomeFailure
		var liveness *errors.LivenessError
		if errors.As(err, &liveness) {
			outcome = OutcomeTimeout
		} else if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			err = errors.NewCollaboratorError("format", err).WithCapability(Upload.Stage())
		}
		o.recorder.StageResult(Upload.Stage(), outcome)
		o.complete(epoch, StatusErrorFormatting)
		span.RecordError(err)
		span.SetStatus(codes.Error, "format failed")
		logger.Error("format failed", "error", err.Error())
		return err
	}

	span.SetAttributes(attribute.String("foresight.location", location))
	o.complete(epoch, "", Retrieve)
	logger.Info("formatted data", "location", location)

	// Uploads outlive this call; detach them from the caller's cancellation.
	bg := context.WithoutCancel(ctx)
	blob := func(ctx context.Context) error {
		return o.traced(ctx, "upload_blob", func(ctx context.Context) error {
			start := time.Now()
			err := o.cfg.Storage.UploadBlob(ctx, location)
			o.observe(Upload, "upload_blob", err, time.Since(start))
			return err
		})
	}
	record := func(ctx context.Context) error {
		return o.traced(ctx, "upload_metadata", func(ctx context.Context) error {
			start := time.Now()
			err := o.cfg.Storage.UploadMetadata(ctx, meta)
			o.observe(Upload, "upload_metadata", err, time.Since(start))
			return err
		})
	}

	switch o.cfg.UploadPolicy {
	case UploadJoined:
		var failedSlot int
		o.inflight.Go(bg, func(ctx context.Context) error {
			var err error
			failedSlot, err = asyncjoin.FirstError(asyncjoin.JoinAll(ctx, blob, record))
			return err
		}, func(err error) {
			switch {
			case err == nil:
				o.finishUpload(epoch, "uploads", nil, StatusUploaded)
			case failedSlot == 0:
				o.finishUpload(epoch, "upload_blob", err, StatusErrorUploadingBlob)
			default:
				o.finishUpload(epoch, "upload_metadata", err, StatusErrorUploadingMetadata)
			}
		})
	default:
		o.inflight.Go(bg, blob, func(err error) {
			o.finishUpload(epoch, "upload_blob", err, pick(err, StatusUploadedBlob, StatusErrorUploadingBlob))
		})
		o.inflight.Go(bg, record, func(err error) {
			o.finishUpload(epoch, "upload_metadata", err, pick(err, StatusUploadedMetadata, StatusErrorUploadingMetadata))
		})
	}

	return nil
}

func (o *Orchestrator) finishUpload(epoch uint64, operation string, err error, status string) {
	logger := o.logger.WithStage(Upload.Stage())
	if err != nil {
		o.recorder.StageResult(Upload.Stage(), OutcomeFailure)
		logger.Error("upload failed", "operation", operation,
			"error", errors.NewCollaboratorError(operation, err).WithCapability(Upload.Stage()).Error())
	} else {
		o.recorder.StageResult(Upload.Stage(), OutcomeSuccess)
		logger.Info("upload finished", "operation", operation)
	}
	o.complete(epoch, status)
}

// Retrieve starts fetching "{sessionId}_model0{suffix}" in the background.
// On success the handle is stored and PREDICT is granted; on failure the
// status reports the error and the gates stay as they are. There is no retry.
//
// The operation's span stays open until the fetch reports.
func (o *Orchestrator) Retrieve(ctx context.Context) error {
	ctx, span := o.tracer.Start(ctx, "pipeline.retrieve")

	o.mu.Lock()
	if !o.gates.Has(Retrieve) {
		o.mu.Unlock()
		defer span.End()
		return o.reject(span, Retrieve, nil)
	}
	epoch := o.epoch
	status := o.setStatusLocked(StatusRetrieving)
	o.mu.Unlock()
	o.publish([]event.Event{status})

	name := o.RemoteModelName()
	span.SetAttributes(attribute.String("foresight.remote_name", name))
	logger := o.logger.WithStage(Retrieve.Stage()).With("remote_name", name)

	var fetched Model
	o.inflight.Go(context.WithoutCancel(ctx), func(ctx context.Context) error {
		start := time.Now()
		m, err := o.cfg.Models.Fetch(ctx, name)
		o.observe(Retrieve, "fetch", err, time.Since(start))
		if err != nil {
			return errors.NewCollaboratorError("fetch", err).WithCapability(Retrieve.Stage())
		}
		if m == nil {
			return errors.NewCollaboratorError("fetch", errors.ErrNoModel).WithCapability(Retrieve.Stage())
		}
		fetched = m
		if !m.Compiled() {
			// Fetching the same artifact again yields the same handle.
			return errors.NewCollaboratorError("fetch", errors.ErrModelNotCompiled).
				WithCapability(Retrieve.Stage()).
				WithRetryable(false)
		}
		return nil
	}, func(err error) {
		defer span.End()
		if err != nil {
			o.recorder.StageResult(Retrieve.Stage(), OutcomeFailure)
			span.RecordError(err)
			span.SetStatus(codes.Error, "retrieve failed")
			logger.Error("retrieve failed", "error", err.Error(), "retryable", errors.IsRetryable(err))
		} else {
			o.recorder.StageResult(Retrieve.Stage(), OutcomeSuccess)
			logger.Info("retrieved model")
		}

		o.mu.Lock()
		if epoch != o.epoch {
			o.mu.Unlock()
			logger.Warn("discarding retrieve completion after reset")
			return
		}
		if fetched != nil {
			o.model = fetched
		}
		var events []event.Event
		if err != nil {
			events = append(events, o.setStatusLocked(StatusErrorRetrieving))
		} else {
			events = append(events, o.setStatusLocked(StatusRetrieved))
			events = append(events, o.grantLocked(Predict)...)
		}
		o.mu.Unlock()
		o.publish(events)
	})

	return nil
}

// Predict runs the retrieved model on a fresh input vector and classifies
// the output. A vector with no score above the threshold is classified as
// LabelNone and is not an error.
func (o *Orchestrator) Predict(ctx context.Context) (Prediction, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.predict")
	defer span.End()
	logger := o.logger.WithStage(Predict.Stage())

	o.mu.Lock()
	if !o.gates.Has(Predict) {
		o.mu.Unlock()
		return Prediction{}, o.reject(span, Predict, nil)
	}
	if o.model == nil {
		o.mu.Unlock()
		return Prediction{}, o.reject(span, Predict, errors.ErrNoModel)
	}
	if !o.model.Compiled() {
		o.mu.Unlock()
		return Prediction{}, o.reject(span, Predict, errors.ErrModelNotCompiled)
	}
	model := o.model
	epoch := o.epoch
	status := o.setStatusLocked(StatusPredicting)
	o.mu.Unlock()
	o.publish([]event.Event{status})

	input := o.cfg.Generator.Input()

	start := time.Now()
	out, err := model.Predict(ctx, input, o.cfg.UseAccelerator)
	o.observe(Predict, "predict", err, time.Since(start))
	if err != nil {
		err = errors.NewCollaboratorError("predict", err).WithCapability(Predict.Stage())
		return Prediction{}, o.failPredict(span, epoch, err)
	}

	vec, err := NewPredictionVector(out)
	if err != nil {
		return Prediction{}, o.failPredict(span, epoch, err)
	}

	p := Prediction{Input: input, Vector: vec, Label: Decide(vec)}
	outcome := OutcomeSuccess
	if p.Label == LabelNone {
		outcome = OutcomeFailure
	}
	o.recorder.StageResult(Predict.Stage(), outcome)
	span.SetAttributes(attribute.String("foresight.label", string(p.Label)))
	logger.Info("generated prediction", "vector", vec[:], "label", string(p.Label))

	o.mu.Lock()
	if epoch != o.epoch {
		o.mu.Unlock()
		logger.Warn("discarding prediction after reset")
		return p, nil
	}
	o.last = &p
	events := []event.Event{o.setStatusLocked(PredictionStatus(p.Label))}
	o.mu.Unlock()

	o.publish(events)
	o.bus().Publish(event.NewPredictionMadeEvent(slices.Clone(vec[:]), string(p.Label)))
	return p, nil
}

func (o *Orchestrator) failPredict(span trace.Span, epoch uint64, err error) error {
	o.recorder.StageResult(Predict.Stage(), OutcomeFailure)
	span.RecordError(err)
	span.SetStatus(codes.Error, "predict failed")
	o.logger.WithStage(Predict.Stage()).Error("predict failed", "error", err.Error())
	o.complete(epoch, StatusErrorPredicting)
	return err
}

// Reset sets the gates to {GENERATE} and restores the default status.
// Generated data and the retrieved model are kept. Background operations
// still running are not cancelled, but their completions are discarded.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	o.epoch++
	o.gates = NewGateSet()
	gates := event.NewGatesChangedEvent(o.gates.Names(), "", true)
	gates.Seq = o.nextSeqLocked()
	events := []event.Event{gates, o.setStatusLocked(StatusDefault)}
	o.mu.Unlock()

	o.publish(events)
	o.logger.Info("reset pipeline")
}

// -----------------------------------------------------------------------------
// Internal helpers
// -----------------------------------------------------------------------------

func (o *Orchestrator) bus() *event.Bus {
	return o.cfg.Bus
}

// reject reports an action triggered while its capability was locked. State
// is not touched.
func (o *Orchestrator) reject(span trace.Span, c Capability, cause error) error {
	perr := errors.NewPreconditionError(c.Stage(), rejectReasons[c])
	if cause != nil {
		perr = perr.WithCause(cause)
	}

	span.SetAttributes(attribute.Bool("foresight.rejected", true))
	o.recorder.Rejection(c.Stage())
	o.logger.WithStage(c.Stage()).Warn("invalid request", "reason", perr.Reason(), "gates", o.Gates().String())
	o.bus().Publish(event.NewPreconditionRejectedEvent(c.String(), perr.Reason()))
	return perr
}

// nextSeqLocked returns the sequence number for the next state event.
// o.mu must be held.
func (o *Orchestrator) nextSeqLocked() uint64 {
	o.seq++
	return o.seq
}

// setStatusLocked changes the status and returns the event to publish once
// the lock is released. o.mu must be held.
func (o *Orchestrator) setStatusLocked(s string) event.Event {
	prev := o.status
	o.status = s
	ev := event.NewStatusChangedEvent(o.SessionID(), prev, s)
	ev.Seq = o.nextSeqLocked()
	return ev
}

// grantLocked unlocks c. o.mu must be held.
func (o *Orchestrator) grantLocked(c Capability) []event.Event {
	if o.gates.Has(c) {
		return nil
	}
	o.gates = o.gates.With(c)
	ev := event.NewGatesChangedEvent(o.gates.Names(), c.String(), false)
	ev.Seq = o.nextSeqLocked()
	return []event.Event{ev}
}

// complete applies a completion's status and grants, unless a Reset happened
// since the operation was issued. An empty status leaves the text unchanged.
func (o *Orchestrator) complete(epoch uint64, status string, grants ...Capability) {
	o.mu.Lock()
	if epoch != o.epoch {
		o.mu.Unlock()
		o.logger.Warn("discarding completion after reset", "status", status)
		return
	}
	var events []event.Event
	if status != "" {
		events = append(events, o.setStatusLocked(status))
	}
	for _, c := range grants {
		events = append(events, o.grantLocked(c)...)
	}
	o.mu.Unlock()
	o.publish(events)
}

// traced runs op inside a child span of the one carried by ctx.
func (o *Orchestrator) traced(ctx context.Context, operation string, op func(context.Context) error) error {
	ctx, span := o.tracer.Start(ctx, "pipeline."+operation)
	defer span.End()
	err := op(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, operation+" failed")
	}
	return err
}

func (o *Orchestrator) observe(stage Capability, operation string, err error, d time.Duration) {
	o.recorder.CollaboratorDuration(operation, d)
	o.bus().Publish(event.NewStageCompletedEvent(stage.Stage(), operation, err, d))
}

func (o *Orchestrator) publish(events []event.Event) {
	for _, e := range events {
		o.bus().Publish(e)
	}
}

func pick(err error, ok, failed string) string {
	if err != nil {
		return failed
	}
	return ok
}
