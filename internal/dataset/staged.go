package dataset

import (
	"encoding/json"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/Iron-Ham/foresight/internal/errors"
)

// StagedVersion is the current StagedDataset document version.
const StagedVersion = 1

// StagedDataset is the document the format step writes and the trainer reads.
type StagedDataset struct {
	Version  int             `json:"version" jsonschema:"required,minimum=1"`
	Metadata SessionMetadata `json:"metadata" jsonschema:"required"`
	// Features holds num_features rows of feature_length values.
	Features FeatureMatrix `json:"features" jsonschema:"required,minItems=1"`
	// Labels holds feature_length one-hot rows of target_length values.
	Labels    LabelMatrix `json:"labels" jsonschema:"required,minItems=1"`
	CreatedAt time.Time   `json:"created_at" jsonschema:"required"`
}

// NewStagedDataset assembles a document from generated data.
func NewStagedDataset(meta SessionMetadata, features FeatureMatrix, labels LabelMatrix) *StagedDataset {
	return &StagedDataset{
		Version:   StagedVersion,
		Metadata:  meta,
		Features:  features,
		Labels:    labels,
		CreatedAt: time.Now().UTC(),
	}
}

// Validate checks that the matrices are non-empty and rectangular, and that
// there is one label row per feature column.
func (d *StagedDataset) Validate() error {
	if d.Version != StagedVersion {
		return errors.NewValidationError("unsupported version").WithField("version").WithValue(d.Version)
	}
	if d.Metadata.SessionID == "" {
		return errors.NewValidationError("must not be empty").WithField("metadata.session_id")
	}

	fRows, fCols := Dims(d.Features)
	if fRows == 0 || fCols == 0 {
		return errors.NewValidationError("must not be empty").WithField("features")
	}
	for i, row := range d.Features {
		if len(row) != fCols {
			return errors.NewValidationError("rows must have equal length").WithField("features").WithValue(i)
		}
	}

	lRows, lCols := Dims(d.Labels)
	if lRows != fCols {
		return errors.NewValidationError("must have one row per feature column").WithField("labels").WithValue(lRows)
	}
	for i, row := range d.Labels {
		if len(row) != lCols || lCols == 0 {
			return errors.NewValidationError("rows must have equal, non-zero length").WithField("labels").WithValue(i)
		}
	}
	return nil
}

// Samples returns the training pairs encoded by the document: one sample per
// feature column, whose inputs are that column across all feature rows.
func (d *StagedDataset) Samples() (inputs [][]float64, targets [][]float64) {
	rows, cols := Dims(d.Features)
	inputs = make([][]float64, cols)
	for j := 0; j < cols; j++ {
		x := make([]float64, rows)
		for i := 0; i < rows; i++ {
			x[i] = d.Features[i][j]
		}
		inputs[j] = x
	}
	return inputs, d.Labels
}

// Decode parses and validates a staged document.
func Decode(data []byte) (*StagedDataset, error) {
	var d StagedDataset
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, errors.Wrap(err, "decode staged dataset")
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Schema returns the JSON schema of StagedDataset.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}
	schema := reflector.Reflect(&StagedDataset{})
	schema.Title = "foresight staged dataset"
	return schema
}
