package model

import (
	"context"
	"path/filepath"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/spf13/afero"

	"github.com/Iron-Ham/foresight/internal/errors"
	"github.com/Iron-Ham/foresight/internal/logging"
	"github.com/Iron-Ham/foresight/internal/pipeline"
	"github.com/Iron-Ham/foresight/internal/storage"
)

// Source fetches artifacts from the read bucket, keeps a local copy in the
// cache directory, and compiles them. Compiled handles are cached by remote
// name until the TTL expires or Invalidate is called.
type Source struct {
	bucket   *storage.Bucket
	fs       afero.Fs
	cacheDir string
	compiled *cache.Cache
	logger   *logging.Logger
}

// NewSource creates a Source. A ttl of 0 keeps compiled handles until they
// are invalidated.
func NewSource(fsys afero.Fs, bucket *storage.Bucket, cacheDir string, ttl time.Duration, logger *logging.Logger) *Source {
	if logger == nil {
		logger = logging.NopLogger()
	}
	expiry, cleanup := ttl, 2*ttl
	if ttl <= 0 {
		expiry, cleanup = cache.NoExpiration, 0
	}
	return &Source{
		bucket:   bucket,
		fs:       fsys,
		cacheDir: cacheDir,
		compiled: cache.New(expiry, cleanup),
		logger:   logger.WithStage("retrieve"),
	}
}

// Fetch returns a handle for remoteName. A missing artifact is an error
// matching errors.ErrNotFound. An artifact that fails to compile is
// returned as a fetched, uncompiled handle with a nil error.
func (s *Source) Fetch(ctx context.Context, remoteName string) (pipeline.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if h, ok := s.Cached(remoteName); ok {
		s.logger.Debug("compiled model cache hit", "remote_name", remoteName)
		return h, nil
	}

	data, err := s.bucket.Get(remoteName)
	if err != nil {
		return nil, err
	}

	local := filepath.Join(s.cacheDir, filepath.Base(remoteName))
	if err := s.fs.MkdirAll(s.cacheDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create model cache dir")
	}
	if err := afero.WriteFile(s.fs, local, data, 0o644); err != nil {
		return nil, errors.Wrapf(err, "write %s", local)
	}

	artifact, err := Decode(data)
	if err != nil {
		return nil, err
	}

	h := NewHandle(remoteName, local, artifact, s.logger)
	if err := h.Compile(); err != nil {
		s.logger.Warn("model did not compile", "remote_name", remoteName, "error", err.Error())
		return h, nil
	}

	s.compiled.Set(remoteName, h, cache.DefaultExpiration)
	s.logger.Info("compiled model", "remote_name", remoteName, "path", local,
		"inputs", artifact.Inputs, "outputs", artifact.Outputs())
	return h, nil
}

// Cached returns the compiled handle for remoteName, if any.
func (s *Source) Cached(remoteName string) (*Handle, bool) {
	if x, found := s.compiled.Get(remoteName); found {
		return x.(*Handle), true
	}
	return nil, false
}

// Invalidate drops the compiled handle for remoteName so the next Fetch
// reads the bucket again.
func (s *Source) Invalidate(remoteName string) {
	s.compiled.Delete(remoteName)
}
