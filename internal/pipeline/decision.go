package pipeline

import (
	"github.com/Iron-Ham/foresight/internal/errors"
)

// Threshold is the score a class must exceed to be chosen.
const Threshold = 0.5

// Label is the outcome of the decision rule.
type Label string

// Decision labels.
const (
	LabelThird  Label = "001"
	LabelSecond Label = "010"
	LabelFirst  Label = "100"
	LabelNone   Label = "error"
)

// PredictionVector holds one score per class.
type PredictionVector [3]float64

// NewPredictionVector checks that out has exactly three scores.
func NewPredictionVector(out []float64) (PredictionVector, error) {
	var v PredictionVector
	if len(out) != len(v) {
		return v, errors.Wrapf(errors.ErrInvalidPrediction, "got %d scores, want %d", len(out), len(v))
	}
	copy(v[:], out)
	return v, nil
}

// Decide maps v to a label. Classes are checked from the highest index down,
// so when several scores exceed the threshold the highest index wins.
func Decide(v PredictionVector) Label {
	switch {
	case v[2] > Threshold:
		return LabelThird
	case v[1] > Threshold:
		return LabelSecond
	case v[0] > Threshold:
		return LabelFirst
	default:
		return LabelNone
	}
}

// Prediction is a classified model output.
type Prediction struct {
	Input  []float64
	Vector PredictionVector
	Label  Label
}
