package model

import (
	"context"
	"math"
	"sync"

	"github.com/Iron-Ham/foresight/internal/errors"
	"github.com/Iron-Ham/foresight/internal/logging"
)

// State is the lifecycle position of a Handle.
type State int

const (
	// StateAbsent means no artifact has been loaded.
	StateAbsent State = iota
	// StateFetched means the artifact is loaded but not compiled.
	StateFetched
	// StateCompiled means the handle can serve predictions.
	StateCompiled
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateFetched:
		return "fetched"
	case StateCompiled:
		return "compiled"
	default:
		return "unknown"
	}
}

type compiledLayer struct {
	in, out int
	weights []float64 // row-major, out x in
	bias    []float64
	act     Activation
}

// Handle is a model that moves from fetched to compiled. It is safe for
// concurrent use.
type Handle struct {
	name   string
	path   string
	logger *logging.Logger

	mu       sync.RWMutex
	artifact *Artifact
	state    State
	layers   []compiledLayer

	cpuOnce sync.Once
}

// NewHandle wraps an artifact loaded from path. A nil artifact yields an
// absent handle.
func NewHandle(name, path string, a *Artifact, logger *logging.Logger) *Handle {
	if logger == nil {
		logger = logging.NopLogger()
	}
	h := &Handle{name: name, path: path, artifact: a, logger: logger}
	if a != nil {
		h.state = StateFetched
	}
	return h
}

// Name returns the remote name the artifact was fetched under.
func (h *Handle) Name() string { return h.name }

// Path returns the local copy of the artifact.
func (h *Handle) Path() string { return h.path }

// State returns the handle's lifecycle state.
func (h *Handle) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Compiled reports whether the handle can serve predictions.
func (h *Handle) Compiled() bool {
	return h.State() == StateCompiled
}

// Inputs returns the expected input length, or 0 for an absent handle.
func (h *Handle) Inputs() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.artifact == nil {
		return 0
	}
	return h.artifact.Inputs
}

// Compile validates the artifact and prepares it for inference. Compiling
// an already compiled handle is a no-op.
func (h *Handle) Compile() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case StateCompiled:
		return nil
	case StateAbsent:
		return errors.ErrNoModel
	}

	if err := h.artifact.Validate(); err != nil {
		return errors.Wrapf(err, "compile %s", h.name)
	}

	layers := make([]compiledLayer, len(h.artifact.Layers))
	in := h.artifact.Inputs
	for i, l := range h.artifact.Layers {
		out := len(l.Weights)
		w := make([]float64, 0, out*in)
		for _, row := range l.Weights {
			w = append(w, row...)
		}
		layers[i] = compiledLayer{
			in:      in,
			out:     out,
			weights: w,
			bias:    append([]float64(nil), l.Bias...),
			act:     l.Activation,
		}
		in = out
	}

	h.layers = layers
	h.state = StateCompiled
	return nil
}

// Predict runs a forward pass over input. Inference always runs on the CPU;
// when useAccelerator is set, that is logged once per handle.
func (h *Handle) Predict(ctx context.Context, input []float64, useAccelerator bool) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.state != StateCompiled {
		return nil, errors.ErrModelNotCompiled
	}
	if len(input) != h.layers[0].in {
		return nil, errors.NewValidationError("input length mismatch").WithField("input").WithValue(len(input))
	}
	if useAccelerator {
		h.cpuOnce.Do(func() {
			h.logger.Debug("no accelerator available, running inference on CPU", "model", h.name)
		})
	}

	x := input
	for _, l := range h.layers {
		x = l.forward(x)
	}
	return x, nil
}

func (l compiledLayer) forward(x []float64) []float64 {
	y := make([]float64, l.out)
	for o := 0; o < l.out; o++ {
		sum := l.bias[o]
		row := l.weights[o*l.in : (o+1)*l.in]
		for i, w := range row {
			sum += w * x[i]
		}
		y[o] = sum
	}
	activate(l.act, y)
	return y
}

func activate(act Activation, y []float64) {
	switch act {
	case ActivationReLU:
		for i, v := range y {
			y[i] = math.Max(0, v)
		}
	case ActivationSigmoid:
		for i, v := range y {
			y[i] = 1 / (1 + math.Exp(-v))
		}
	case ActivationSoftmax:
		Softmax(y)
	}
}

// Softmax normalizes y in place into a probability distribution.
func Softmax(y []float64) {
	if len(y) == 0 {
		return
	}
	hi := y[0]
	for _, v := range y[1:] {
		if v > hi {
			hi = v
		}
	}
	var sum float64
	for i, v := range y {
		y[i] = math.Exp(v - hi)
		sum += y[i]
	}
	for i := range y {
		y[i] /= sum
	}
}
