// Package storage provides the storage collaborator of the pipeline.
//
// Generated data is staged as a JSON document (see dataset.StagedDataset),
// then uploaded as a blob into the write bucket while its session record is
// inserted into a SQLite table. Buckets are directories on an afero.Fs, so
// tests run against an in-memory filesystem.
//
// Layout under the storage root, with the default configuration:
//
//	staging/{sessionId}_{range}.json
//	foresight-uploads/{sessionId}/{sessionId}_{range}.json
//	foresight-deployments/{sessionId}_model0.fsmodel
//	metadata.db
package storage
