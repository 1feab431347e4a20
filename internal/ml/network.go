package ml

import (
	"encoding/gob"
	"io"
	"math"
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/cryptovista/forecast-go/internal/models"
)

// layerParams holds the weights and biases of one dense layer.
// Weights are out-by-in so a forward pass is W*a + b.
type layerParams struct {
	w *mat.Dense
	b []float64
}

// Network is a small dense regression network: one or more ReLU hidden
// layers and a single linear output unit. A network is created fresh
// per training run, trained in place and discarded (or exported) at the
// end of the run.
//
// Concurrency: at most one training run may hold the network at a time;
// concurrent predictions against committed weights are safe.
type Network struct {
	mu      sync.RWMutex // guards params
	trainMu sync.Mutex   // exclusive training gate

	inputWidth int
	hidden     []int
	sizes      []int // [input, hidden..., 1]
	params     []layerParams
}

// NewNetwork constructs an untrained network. Weights use scaled
// He-style initialization from a seeded source so runs are
// reproducible; biases start at zero.
func NewNetwork(inputWidth int, hidden []int, seed int64) (*Network, error) {
	if inputWidth <= 0 {
		return nil, models.NewError(models.ErrKindShapeMismatch, "input width must be positive, got %d", inputWidth)
	}
	if len(hidden) == 0 {
		return nil, models.NewError(models.ErrKindShapeMismatch, "network requires at least one hidden layer")
	}
	for _, units := range hidden {
		if units <= 0 {
			return nil, models.NewError(models.ErrKindShapeMismatch, "hidden layer sizes must be positive, got %v", hidden)
		}
	}

	sizes := make([]int, 0, len(hidden)+2)
	sizes = append(sizes, inputWidth)
	sizes = append(sizes, hidden...)
	sizes = append(sizes, 1)

	rnd := rand.New(rand.NewSource(seed))
	params := make([]layerParams, len(sizes)-1)
	for l := range params {
		in, out := sizes[l], sizes[l+1]
		scale := math.Sqrt(2.0 / float64(in))
		data := make([]float64, out*in)
		for i := range data {
			data[i] = rnd.NormFloat64() * scale
		}
		params[l] = layerParams{
			w: mat.NewDense(out, in, data),
			b: make([]float64, out),
		}
	}

	return &Network{
		inputWidth: inputWidth,
		hidden:     append([]int(nil), hidden...),
		sizes:      sizes,
		params:     params,
	}, nil
}

// Width returns the expected feature-vector arity.
func (n *Network) Width() int {
	return n.inputWidth
}

// Predict returns one value per input row, in input order. Rows with a
// different feature width are rejected, never coerced. Deterministic
// for fixed weights and input.
func (n *Network) Predict(features [][]float64) ([]float64, error) {
	if len(features) == 0 {
		return nil, models.NewError(models.ErrKindDataValidation, "prediction input is empty")
	}
	for i, row := range features {
		if len(row) != n.inputWidth {
			return nil, models.NewError(models.ErrKindShapeMismatch,
				"prediction row %d has width %d, expected %d", i, len(row), n.inputWidth)
		}
	}

	n.mu.RLock()
	defer n.mu.RUnlock()

	ws := newWorkspace(n.sizes)
	out := make([]float64, len(features))
	for i, row := range features {
		out[i] = forward(n.params, row, ws)
	}
	return out, nil
}

// forward runs one sample through the given parameters, storing
// intermediate activations and pre-activations in ws for backprop.
func forward(params []layerParams, x []float64, ws *workspace) float64 {
	copy(ws.acts[0], x)
	last := len(params) - 1
	for l, p := range params {
		av := mat.NewVecDense(len(ws.acts[l]), ws.acts[l])
		zv := mat.NewVecDense(len(ws.zs[l]), ws.zs[l])
		zv.MulVec(p.w, av)
		for i := range ws.zs[l] {
			ws.zs[l][i] += p.b[i]
			if l == last {
				ws.acts[l+1][i] = ws.zs[l][i] // linear output
			} else {
				ws.acts[l+1][i] = math.Max(0, ws.zs[l][i]) // relu
			}
		}
	}
	return ws.acts[len(ws.acts)-1][0]
}

// cloneParams deep-copies the committed parameters for a training run.
func (n *Network) cloneParams() []layerParams {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]layerParams, len(n.params))
	for l, p := range n.params {
		out[l] = layerParams{
			w: mat.DenseCopyOf(p.w),
			b: append([]float64(nil), p.b...),
		}
	}
	return out
}

// commit atomically replaces the committed parameters. Called only when
// a training run finished successfully, so an aborted run leaves the
// network untouched.
func (n *Network) commit(params []layerParams) {
	n.mu.Lock()
	n.params = params
	n.mu.Unlock()
}

// beginTraining acquires the exclusive training gate without blocking.
func (n *Network) beginTraining() bool {
	return n.trainMu.TryLock()
}

func (n *Network) endTraining() {
	n.trainMu.Unlock()
}

// netState is the serialized form of a network.
type netState struct {
	InputWidth int
	Hidden     []int
	Weights    [][]float64 // row-major per layer
	Biases     [][]float64
}

// Export writes the topology and committed weights as a gob artifact.
func (n *Network) Export(w io.Writer) error {
	n.mu.RLock()
	state := netState{
		InputWidth: n.inputWidth,
		Hidden:     append([]int(nil), n.hidden...),
		Weights:    make([][]float64, len(n.params)),
		Biases:     make([][]float64, len(n.params)),
	}
	for l, p := range n.params {
		raw := p.w.RawMatrix()
		state.Weights[l] = append([]float64(nil), raw.Data...)
		state.Biases[l] = append([]float64(nil), p.b...)
	}
	n.mu.RUnlock()

	if err := gob.NewEncoder(w).Encode(&state); err != nil {
		return models.WrapError(models.ErrKindTraining, err, "failed to encode model artifact")
	}
	return nil
}

// Import reconstructs a network from an exported artifact.
func Import(r io.Reader) (*Network, error) {
	var state netState
	if err := gob.NewDecoder(r).Decode(&state); err != nil {
		return nil, models.WrapError(models.ErrKindTraining, err, "failed to decode model artifact")
	}

	net, err := NewNetwork(state.InputWidth, state.Hidden, 0)
	if err != nil {
		return nil, err
	}
	if len(state.Weights) != len(net.params) || len(state.Biases) != len(net.params) {
		return nil, models.NewError(models.ErrKindShapeMismatch, "artifact layer count does not match topology")
	}
	for l := range net.params {
		rows, cols := net.params[l].w.Dims()
		if len(state.Weights[l]) != rows*cols || len(state.Biases[l]) != rows {
			return nil, models.NewError(models.ErrKindShapeMismatch, "artifact layer %d has wrong shape", l)
		}
		net.params[l].w = mat.NewDense(rows, cols, append([]float64(nil), state.Weights[l]...))
		net.params[l].b = append([]float64(nil), state.Biases[l]...)
	}
	return net, nil
}

// workspace holds per-sample scratch arrays sized to one topology.
type workspace struct {
	acts   [][]float64 // activations, acts[0] is the input
	zs     [][]float64 // pre-activations per layer
	deltas [][]float64 // backprop deltas per layer
}

func newWorkspace(sizes []int) *workspace {
	ws := &workspace{
		acts:   make([][]float64, len(sizes)),
		zs:     make([][]float64, len(sizes)-1),
		deltas: make([][]float64, len(sizes)-1),
	}
	for i, size := range sizes {
		ws.acts[i] = make([]float64, size)
	}
	for l := 1; l < len(sizes); l++ {
		ws.zs[l-1] = make([]float64, sizes[l])
		ws.deltas[l-1] = make([]float64, sizes[l])
	}
	return ws
}

func (ws *workspace) reset() {
	for _, s := range ws.acts {
		clear(s)
	}
	for _, s := range ws.zs {
		clear(s)
	}
	for _, s := range ws.deltas {
		clear(s)
	}
}
