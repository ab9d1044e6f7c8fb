package nn

import (
	"encoding/json"
	"fmt"
	"io"

	"gonum.org/v1/gonum/mat"
)

// Format identifies the serialized network layout.
const Format = "saferoute-dense/v1"

type layerJSON struct {
	Activation Activation  `json:"activation"`
	Weights    [][]float64 `json:"weights"`
	Bias       []float64   `json:"bias"`
}

type headJSON struct {
	Name   string      `json:"name"`
	Layers []layerJSON `json:"layers"`
}

type modelJSON struct {
	Format     string      `json:"format"`
	InputWidth int         `json:"input_width"`
	Trunk      []layerJSON `json:"trunk"`
	Heads      []headJSON  `json:"heads"`
}

// Load decodes a network exported in the saferoute-dense JSON format.
func Load(r io.Reader) (*Network, error) {
	var m modelJSON
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if m.Format != Format {
		return nil, fmt.Errorf("unsupported model format %q (want %q)", m.Format, Format)
	}

	trunk, err := buildLayers(m.Trunk)
	if err != nil {
		return nil, fmt.Errorf("trunk: %w", err)
	}

	heads := make([]Head, 0, len(m.Heads))
	for _, h := range m.Heads {
		layers, err := buildLayers(h.Layers)
		if err != nil {
			return nil, fmt.Errorf("head %q: %w", h.Name, err)
		}
		heads = append(heads, Head{Name: h.Name, Layers: layers})
	}

	return NewNetwork(m.InputWidth, trunk, heads)
}

// Save writes the network in the format read by Load.
func (n *Network) Save(w io.Writer) error {
	m := modelJSON{
		Format:     Format,
		InputWidth: n.inputWidth,
		Trunk:      exportLayers(n.trunk),
	}
	for _, h := range n.heads {
		m.Heads = append(m.Heads, headJSON{Name: h.Name, Layers: exportLayers(h.Layers)})
	}
	return json.NewEncoder(w).Encode(m)
}

func buildLayers(in []layerJSON) ([]Dense, error) {
	layers := make([]Dense, 0, len(in))
	for i, l := range in {
		d, err := NewDense(l.Weights, l.Bias, l.Activation)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		layers = append(layers, d)
	}
	return layers, nil
}

func exportLayers(layers []Dense) []layerJSON {
	out := make([]layerJSON, 0, len(layers))
	for _, l := range layers {
		w := make([][]float64, l.In())
		for i := range w {
			w[i] = mat.Row(nil, i, l.W)
		}
		out = append(out, layerJSON{
			Activation: l.Act,
			Weights:    w,
			Bias:       append([]float64(nil), l.B.RawVector().Data...),
		})
	}
	return out
}
