package nn

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrPrediction is returned when an input cannot be fed to the network.
var ErrPrediction = errors.New("prediction failed")

// Activation names an element-wise output function.
type Activation string

const (
	Linear   Activation = "linear"
	ReLU     Activation = "relu"
	Sigmoid  Activation = "sigmoid"
	Tanh     Activation = "tanh"
	Softplus Activation = "softplus"
)

func (a Activation) apply(x float64) float64 {
	switch a {
	case ReLU:
		return math.Max(0, x)
	case Sigmoid:
		return 1 / (1 + math.Exp(-x))
	case Tanh:
		return math.Tanh(x)
	case Softplus:
		return math.Log1p(math.Exp(x))
	default:
		return x
	}
}

func (a Activation) valid() bool {
	switch a {
	case Linear, ReLU, Sigmoid, Tanh, Softplus, "":
		return true
	}
	return false
}

// Dense is a fully connected layer computing act(x·W + b).
type Dense struct {
	W   *mat.Dense // in × out
	B   *mat.VecDense
	Act Activation
}

// NewDense builds a layer from row-major weights (one row per input unit).
func NewDense(weights [][]float64, bias []float64, act Activation) (Dense, error) {
	if len(weights) == 0 || len(weights[0]) == 0 {
		return Dense{}, errors.New("layer has no weights")
	}
	if !act.valid() {
		return Dense{}, fmt.Errorf("unknown activation %q", act)
	}
	in, out := len(weights), len(weights[0])
	if len(bias) != out {
		return Dense{}, fmt.Errorf("bias has %d units, weights have %d", len(bias), out)
	}

	data := make([]float64, 0, in*out)
	for i, row := range weights {
		if len(row) != out {
			return Dense{}, fmt.Errorf("weight row %d has %d units, want %d", i, len(row), out)
		}
		data = append(data, row...)
	}

	b := make([]float64, out)
	copy(b, bias)
	return Dense{
		W:   mat.NewDense(in, out, data),
		B:   mat.NewVecDense(out, b),
		Act: act,
	}, nil
}

// In is the layer's input width.
func (d Dense) In() int {
	r, _ := d.W.Dims()
	return r
}

// Out is the layer's output width.
func (d Dense) Out() int {
	_, c := d.W.Dims()
	return c
}

func (d Dense) forward(x *mat.VecDense) *mat.VecDense {
	y := mat.NewVecDense(d.Out(), nil)
	y.MulVec(d.W.T(), x)
	y.AddVec(y, d.B)
	for i := 0; i < y.Len(); i++ {
		y.SetVec(i, d.Act.apply(y.AtVec(i)))
	}
	return y
}

// Head is a named output branch fed by the shared trunk.
type Head struct {
	Name   string
	Layers []Dense
}

// Network is a feed-forward model with a shared trunk and one or more output
// heads. It holds no mutable state, so Predict may be called concurrently.
type Network struct {
	inputWidth int
	trunk      []Dense
	heads      []Head
}

// NewNetwork checks that every layer's width chains into the next.
func NewNetwork(inputWidth int, trunk []Dense, heads []Head) (*Network, error) {
	if inputWidth <= 0 {
		return nil, fmt.Errorf("input width must be positive, got %d", inputWidth)
	}
	if len(heads) == 0 {
		return nil, errors.New("network has no output heads")
	}

	width := inputWidth
	for i, l := range trunk {
		if l.In() != width {
			return nil, fmt.Errorf("trunk layer %d expects %d inputs, previous layer gives %d", i, l.In(), width)
		}
		width = l.Out()
	}
	for _, h := range heads {
		if len(h.Layers) == 0 {
			return nil, fmt.Errorf("head %q has no layers", h.Name)
		}
		w := width
		for i, l := range h.Layers {
			if l.In() != w {
				return nil, fmt.Errorf("head %q layer %d expects %d inputs, previous layer gives %d", h.Name, i, l.In(), w)
			}
			w = l.Out()
		}
	}

	return &Network{inputWidth: inputWidth, trunk: trunk, heads: heads}, nil
}

// InputWidth is the feature vector length the network accepts.
func (n *Network) InputWidth() int {
	return n.inputWidth
}

// Heads returns the output head names in order.
func (n *Network) Heads() []string {
	names := make([]string, len(n.heads))
	for i, h := range n.heads {
		names[i] = h.Name
	}
	return names
}

// Predict runs one sample through the network and returns the output of each
// head, in head order.
func (n *Network) Predict(features []float64) ([][]float64, error) {
	if len(features) != n.inputWidth {
		return nil, fmt.Errorf("%w: feature vector has width %d, model expects %d",
			ErrPrediction, len(features), n.inputWidth)
	}

	x := mat.NewVecDense(len(features), append([]float64(nil), features...))
	for _, l := range n.trunk {
		x = l.forward(x)
	}

	outputs := make([][]float64, len(n.heads))
	for i, h := range n.heads {
		y := x
		for _, l := range h.Layers {
			y = l.forward(y)
		}
		outputs[i] = append([]float64(nil), y.RawVector().Data...)
	}
	return outputs, nil
}
