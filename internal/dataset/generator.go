// Package dataset produces the synthetic training data and session metadata
// that the pipeline uploads, and defines the staged dataset document written
// by the format step.
package dataset

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/Iron-Ham/foresight/internal/errors"
)

// FeatureMatrix holds NumFeatures vectors of FeatureLength values each.
type FeatureMatrix [][]float64

// LabelMatrix holds FeatureLength one-hot vectors of TargetLength values each.
type LabelMatrix [][]float64

// Dims returns the number of rows and the length of the first row.
func Dims(m [][]float64) (rows, cols int) {
	if len(m) == 0 {
		return 0, 0
	}
	return len(m), len(m[0])
}

// Shape describes the dimensions of generated data.
type Shape struct {
	NumFeatures   int
	FeatureLength int
	TargetLength  int
	MinValue      float64
	MaxValue      float64
}

// Validate reports the first invalid dimension in s.
func (s Shape) Validate() error {
	switch {
	case s.NumFeatures <= 0:
		return errors.NewValidationError("must be positive").WithField("num_features").WithValue(s.NumFeatures)
	case s.FeatureLength <= 0:
		return errors.NewValidationError("must be positive").WithField("feature_length").WithValue(s.FeatureLength)
	case s.TargetLength <= 0:
		return errors.NewValidationError("must be positive").WithField("target_length").WithValue(s.TargetLength)
	case s.MinValue >= s.MaxValue:
		return errors.NewValidationError("must be greater than min_value").WithField("max_value").WithValue(s.MaxValue)
	}
	return nil
}

// Generator builds feature matrices, label matrices and prediction inputs.
// It is safe for concurrent use.
type Generator struct {
	shape Shape

	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator creates a Generator for shape. A zero seed draws the seed from
// the clock.
func NewGenerator(shape Shape, seed int64) (*Generator, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{
		shape: shape,
		rng:   rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>1|1)),
	}, nil
}

// Shape returns the generator's dimensions.
func (g *Generator) Shape() Shape {
	return g.shape
}

// Features returns a fresh NumFeatures x FeatureLength matrix with entries
// uniform in [MinValue, MaxValue).
func (g *Generator) Features() FeatureMatrix {
	g.mu.Lock()
	defer g.mu.Unlock()

	m := make(FeatureMatrix, g.shape.NumFeatures)
	for i := range m {
		m[i] = g.vectorLocked(g.shape.FeatureLength)
	}
	return m
}

// Labels returns a fresh FeatureLength x TargetLength matrix whose rows are
// all [1, 0, ..., 0].
func (g *Generator) Labels() LabelMatrix {
	m := make(LabelMatrix, g.shape.FeatureLength)
	for i := range m {
		row := make([]float64, g.shape.TargetLength)
		row[0] = 1
		m[i] = row
	}
	return m
}

// Input returns a fresh prediction input of length NumFeatures.
func (g *Generator) Input() []float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.vectorLocked(g.shape.NumFeatures)
}

func (g *Generator) vectorLocked(n int) []float64 {
	span := g.shape.MaxValue - g.shape.MinValue
	v := make([]float64, n)
	for i := range v {
		v[i] = g.shape.MinValue + g.rng.Float64()*span
	}
	return v
}
