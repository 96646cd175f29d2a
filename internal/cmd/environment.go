package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/foresight/internal/config"
	"github.com/Iron-Ham/foresight/internal/dataset"
	"github.com/Iron-Ham/foresight/internal/errors"
	"github.com/Iron-Ham/foresight/internal/event"
	"github.com/Iron-Ham/foresight/internal/logging"
	"github.com/Iron-Ham/foresight/internal/metrics"
	"github.com/Iron-Ham/foresight/internal/model"
	"github.com/Iron-Ham/foresight/internal/pipeline"
	"github.com/Iron-Ham/foresight/internal/storage"
	"github.com/Iron-Ham/foresight/internal/tracing"
	"github.com/Iron-Ham/foresight/internal/trainer"
)

// environment holds the collaborators one command invocation works with.
type environment struct {
	cfg         *config.Config
	logger      *logging.Logger
	bus         *event.Bus
	records     *storage.RecordStore
	store       *storage.Store
	deployments *storage.Bucket
	models      *model.Source
	recorder    *metrics.Recorder
	metricsSrv  *metrics.Server
	tracing     *tracing.Provider
	trainer     *trainer.Trainer
	subs        []string
}

// newEnvironment opens storage under cfg.Storage.Root and wires the
// collaborators together. Close releases everything it opened.
func newEnvironment(cfg *config.Config) (env *environment, err error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	pipeline.ConfigureLockDetection(cfg.Pipeline.LockTimeout(), logger)

	env = &environment{
		cfg:      cfg,
		logger:   logger,
		bus:      event.NewBus(event.WithLogger(logger)),
		recorder: metrics.NewRecorder(),
	}
	defer func() {
		if err != nil {
			_ = env.Close()
			env = nil
		}
	}()

	env.tracing, err = tracing.New(context.Background(), tracing.Options{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRatio: cfg.Tracing.SampleRatio,
	}, logger)
	if err != nil {
		return env, fmt.Errorf("set up tracing: %w", err)
	}

	env.records, err = storage.OpenRecords(cfg.Storage.Resolve(cfg.Storage.MetadataDB), cfg.Storage.TableName)
	if err != nil {
		return env, fmt.Errorf("open record table: %w", err)
	}

	fsys := afero.NewOsFs()
	env.store = storage.NewStore(fsys, storage.Paths{
		StagingDir:     cfg.Storage.Resolve(cfg.Storage.StagingDir),
		WriteBucket:    cfg.Storage.WriteBucket,
		WriteBucketDir: cfg.Storage.Resolve(cfg.Storage.WriteBucket),
	}, env.records, logger)
	env.deployments = storage.NewBucket(fsys, cfg.Storage.ReadBucket, cfg.Storage.Resolve(cfg.Storage.ReadBucket))
	env.models = model.NewSource(fsys, env.deployments, cfg.Storage.Resolve(cfg.Model.CacheDir), cfg.Model.CacheTTL(), logger)
	env.trainer = trainer.New(env.store.Uploads(), env.deployments, trainer.Config{
		Epochs:       cfg.Trainer.Epochs,
		LearningRate: cfg.Trainer.LearningRate,
		ModelSuffix:  cfg.Model.Suffix,
	}, trainer.WithBus(env.bus), trainer.WithLogger(logger))

	// A redeployed artifact must be fetched again rather than served from
	// the compiled-handle cache.
	env.subs = append(env.subs, env.bus.Subscribe(event.TypeModelTrained, func(e event.Event) {
		if ev, ok := e.(event.ModelTrainedEvent); ok {
			env.models.Invalidate(ev.RemoteName)
			env.recorder.ModelTrained()
		}
	}))

	if cfg.Metrics.Addr != "" {
		env.metricsSrv, err = metrics.Listen(cfg.Metrics.Addr, env.recorder, logger)
		if err != nil {
			return env, fmt.Errorf("listen for metrics: %w", err)
		}
		go func(srv *metrics.Server) {
			if err := srv.Serve(); err != nil {
				logger.Error("metrics server stopped", "error", err)
			}
		}(env.metricsSrv)
	}

	return env, nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	logger, err := logging.NewLogger(logging.Options{
		Dir:        cfg.LogDir(),
		Level:      cfg.Logging.Level,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return logger, nil
}

// newOrchestrator creates a pipeline for one session.
func (e *environment) newOrchestrator() (*pipeline.Orchestrator, error) {
	d := e.cfg.Dataset
	gen, err := dataset.NewGenerator(dataset.Shape{
		NumFeatures:   d.NumFeatures,
		FeatureLength: d.FeatureLength,
		TargetLength:  d.TargetLength,
		MinValue:      d.MinValue,
		MaxValue:      d.MaxValue,
	}, d.Seed)
	if err != nil {
		return nil, err
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(e.logger),
		pipeline.WithRecorder(e.recorder),
		pipeline.WithTracerProvider(e.tracing),
	}
	return pipeline.NewOrchestrator(pipeline.Config{
		Generator:      gen,
		Metadata:       dataset.NewMetadataBuilder(e.cfg.Session.ID),
		Storage:        e.store,
		Models:         e.models,
		Bus:            e.bus,
		ModelSuffix:    e.cfg.Model.Suffix,
		UseAccelerator: e.cfg.Model.UseAccelerator,
		FormatTimeout:  e.cfg.Pipeline.FormatTimeout(),
		UploadPolicy:   pipeline.UploadPolicy(e.cfg.Pipeline.UploadPolicy),
	}, opts...)
}

// Close stops the metrics server, flushes spans and closes storage and the
// log file.
func (e *environment) Close() error {
	var errs []error
	for _, id := range e.subs {
		e.bus.Unsubscribe(id)
	}
	if e.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, e.metricsSrv.Shutdown(ctx))
		cancel()
	}
	if e.tracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := e.tracing.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush spans: %w", err))
		}
		cancel()
	}
	if e.records != nil {
		errs = append(errs, e.records.Close())
	}
	errs = append(errs, e.logger.Close())
	return errors.Join(errs...)
}
