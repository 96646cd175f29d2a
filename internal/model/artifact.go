package model

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/Iron-Ham/foresight/internal/errors"
)

// ArtifactVersion is the artifact document version this build reads and writes.
const ArtifactVersion = 1

// Activation names a layer's output function.
type Activation string

// Supported activations.
const (
	ActivationLinear  Activation = "linear"
	ActivationReLU    Activation = "relu"
	ActivationSigmoid Activation = "sigmoid"
	ActivationSoftmax Activation = "softmax"
)

// Layer is one dense layer. Weights has one row per output unit, each with
// one weight per input.
type Layer struct {
	Weights    [][]float64 `json:"weights"`
	Bias       []float64   `json:"bias"`
	Activation Activation  `json:"activation"`
}

// Artifact is a serialized feed-forward network.
type Artifact struct {
	Version   int       `json:"version"`
	Inputs    int       `json:"inputs"`
	Layers    []Layer   `json:"layers"`
	SessionID string    `json:"session_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Outputs returns the width of the last layer, or 0 for an empty network.
func (a *Artifact) Outputs() int {
	if len(a.Layers) == 0 {
		return 0
	}
	return len(a.Layers[len(a.Layers)-1].Weights)
}

// Validate checks that the layer shapes chain from Inputs to the output.
func (a *Artifact) Validate() error {
	if a.Version != ArtifactVersion {
		return errors.NewValidationError("unsupported artifact version").WithField("version").WithValue(a.Version)
	}
	if a.Inputs <= 0 {
		return errors.NewValidationError("must be positive").WithField("inputs").WithValue(a.Inputs)
	}
	if len(a.Layers) == 0 {
		return errors.NewValidationError("must not be empty").WithField("layers")
	}

	width := a.Inputs
	for i, l := range a.Layers {
		field := fmt.Sprintf("layers[%d]", i)
		if len(l.Weights) == 0 {
			return errors.NewValidationError("has no units").WithField(field)
		}
		if len(l.Bias) != len(l.Weights) {
			return errors.NewValidationError("bias length must match unit count").WithField(field).WithValue(len(l.Bias))
		}
		for j, row := range l.Weights {
			if len(row) != width {
				return errors.NewValidationError(fmt.Sprintf("unit %d has %d weights, want %d", j, len(row), width)).WithField(field)
			}
			for _, w := range row {
				if math.IsNaN(w) || math.IsInf(w, 0) {
					return errors.NewValidationError("weights must be finite").WithField(field)
				}
			}
		}
		switch l.Activation {
		case ActivationLinear, ActivationReLU, ActivationSigmoid, ActivationSoftmax:
		default:
			return errors.NewValidationError("unknown activation").WithField(field).WithValue(l.Activation)
		}
		width = len(l.Weights)
	}
	return nil
}

// Encode serializes a.
func Encode(a *Artifact) ([]byte, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, errors.Wrap(err, "encode model artifact")
	}
	return data, nil
}

// Decode parses an artifact without validating it; validation happens at
// compile time.
func Decode(data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, errors.Wrap(err, "decode model artifact")
	}
	return &a, nil
}
