package preprocess

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/i474232898/saferoute/internal/schema"
)

// Format identifies the serialized transformer layout.
const Format = "saferoute-preprocessor/v1"

type columnJSON struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

type numericJSON struct {
	Columns []string  `json:"columns"`
	Mean    []float64 `json:"mean"`
	Scale   []float64 `json:"scale"`
}

type categoricalJSON struct {
	Columns    []string   `json:"columns"`
	Categories [][]string `json:"categories"`
}

type artifactJSON struct {
	Format      string          `json:"format"`
	Columns     []columnJSON    `json:"columns"`
	Numeric     numericJSON     `json:"numeric"`
	Categorical categoricalJSON `json:"categorical"`
}

// Save writes the transformer as JSON.
func (t *Transformer) Save(w io.Writer) error {
	a := artifactJSON{
		Format: Format,
		Numeric: numericJSON{
			Columns: t.columns.Columns(schema.Numeric),
			Mean:    t.scaler.Mean,
			Scale:   t.scaler.Scale,
		},
		Categorical: categoricalJSON{
			Columns:    t.columns.Columns(schema.Categorical),
			Categories: t.encoder.Categories,
		},
	}
	for _, f := range t.columns {
		a.Columns = append(a.Columns, columnJSON{Name: f.Name, Kind: f.Kind.String()})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(a)
}

// Load reads a transformer written by Save.
func Load(r io.Reader) (*Transformer, error) {
	var a artifactJSON
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("decode preprocessor: %w", err)
	}
	if a.Format != Format {
		return nil, fmt.Errorf("unsupported preprocessor format %q (want %q)", a.Format, Format)
	}

	columns := make(schema.Schema, 0, len(a.Columns))
	for _, c := range a.Columns {
		var kind schema.Kind
		switch c.Kind {
		case schema.Numeric.String():
			kind = schema.Numeric
		case schema.Categorical.String():
			kind = schema.Categorical
		default:
			return nil, fmt.Errorf("column %q has unknown kind %q", c.Name, c.Kind)
		}
		columns = append(columns, schema.Field{Name: c.Name, Kind: kind})
	}

	if !equalNames(columns.Columns(schema.Numeric), a.Numeric.Columns) ||
		!equalNames(columns.Columns(schema.Categorical), a.Categorical.Columns) {
		return nil, fmt.Errorf("preprocessor column groups disagree with column list %s", columns)
	}

	return New(columns,
		Scaler{Mean: a.Numeric.Mean, Scale: a.Numeric.Scale},
		Encoder{Categories: a.Categorical.Categories},
	)
}

func equalNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
