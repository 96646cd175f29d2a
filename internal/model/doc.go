// Package model provides the model collaborator of the pipeline: a JSON
// feed-forward network format, a Handle that moves from fetched to compiled,
// and a Source that fetches artifacts from the read bucket.
package model
