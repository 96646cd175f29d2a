package storage

import (
	"context"
	"encoding/json"
	"path"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/foresight/internal/dataset"
	"github.com/Iron-Ham/foresight/internal/errors"
	"github.com/Iron-Ham/foresight/internal/logging"
)

// RecordWriter stores session records.
type RecordWriter interface {
	Put(ctx context.Context, rec Record) error
}

// Store stages generated data locally and uploads it to the write bucket
// and the record table.
type Store struct {
	staging *Bucket
	uploads *Bucket
	records RecordWriter
	logger  *logging.Logger
}

// Paths locates the areas a Store works in.
type Paths struct {
	StagingDir     string
	WriteBucket    string
	WriteBucketDir string
}

// NewStore creates a Store on fsys. records may be shared with other
// readers of the table.
func NewStore(fsys afero.Fs, paths Paths, records RecordWriter, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Store{
		staging: NewBucket(fsys, "staging", paths.StagingDir),
		uploads: NewBucket(fsys, paths.WriteBucket, paths.WriteBucketDir),
		records: records,
		logger:  logger.WithStage("upload"),
	}
}

// Uploads returns the write bucket.
func (s *Store) Uploads() *Bucket { return s.uploads }

// StagingKey names the staged document for meta.
func StagingKey(meta dataset.SessionMetadata) string {
	return meta.SessionID + "_" + meta.RangeTimestamp + ".json"
}

// BlobKey names the uploaded object for meta in the write bucket.
func BlobKey(meta dataset.SessionMetadata) string {
	return path.Join(meta.SessionID, StagingKey(meta))
}

// Format writes a staged dataset document and returns its staging key.
func (s *Store) Format(ctx context.Context, meta dataset.SessionMetadata, features dataset.FeatureMatrix, labels dataset.LabelMatrix) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	doc := dataset.NewStagedDataset(meta, features, labels)
	if err := doc.Validate(); err != nil {
		return "", err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", errors.Wrap(err, "encode staged dataset")
	}

	key := StagingKey(meta)
	if err := s.staging.Put(key, data); err != nil {
		return "", err
	}
	s.logger.Debug("staged dataset", "key", key, "bytes", len(data))
	return key, nil
}

// UploadBlob copies the staged document at location into the write bucket.
func (s *Store) UploadBlob(ctx context.Context, location string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := s.staging.Get(location)
	if err != nil {
		return err
	}
	doc, err := dataset.Decode(data)
	if err != nil {
		return err
	}

	key := BlobKey(doc.Metadata)
	if err := s.uploads.Put(key, data); err != nil {
		return err
	}
	s.logger.Info("uploaded blob", "bucket", s.uploads.Name(), "key", key)
	return nil
}

// UploadMetadata inserts the session record.
func (s *Store) UploadMetadata(ctx context.Context, meta dataset.SessionMetadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rec := RecordFromMetadata(meta)
	rec.BlobKey = BlobKey(meta)
	if err := s.records.Put(ctx, rec); err != nil {
		return err
	}
	s.logger.Info("uploaded metadata", "session_id", meta.SessionID, "range_timestamp", meta.RangeTimestamp)
	return nil
}
