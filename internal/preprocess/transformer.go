package preprocess

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/i474232898/saferoute/internal/schema"
)

// ErrSchemaMismatch is returned when a record's columns differ from the
// columns the transformer was fitted on.
var ErrSchemaMismatch = errors.New("record does not match fitted schema")

// Scaler standardises numeric columns as (x - mean) / scale.
type Scaler struct {
	Mean  []float64
	Scale []float64
}

// Encoder one-hot encodes categorical columns. Values that were not seen
// during fitting encode to an all-zero block.
type Encoder struct {
	Categories [][]string
}

// Transformer applies a fitted Scaler to the numeric columns and a fitted
// Encoder to the categorical columns of a schema. It is immutable once built
// and safe for concurrent use.
type Transformer struct {
	columns schema.Schema
	scaler  Scaler
	encoder Encoder

	numIdx []int
	catIdx []int
	lookup []map[string]int
	width  int
}

// New validates the fitted parameters against the schema and builds a
// Transformer.
func New(columns schema.Schema, scaler Scaler, encoder Encoder) (*Transformer, error) {
	t := &Transformer{
		columns: columns,
		scaler:  scaler,
		encoder: encoder,
	}
	for i, f := range columns {
		switch f.Kind {
		case schema.Numeric:
			t.numIdx = append(t.numIdx, i)
		case schema.Categorical:
			t.catIdx = append(t.catIdx, i)
		default:
			return nil, fmt.Errorf("column %q has unsupported kind %s", f.Name, f.Kind)
		}
	}

	if len(scaler.Mean) != len(t.numIdx) || len(scaler.Scale) != len(t.numIdx) {
		return nil, fmt.Errorf("scaler has %d means and %d scales for %d numeric columns",
			len(scaler.Mean), len(scaler.Scale), len(t.numIdx))
	}
	for i, s := range scaler.Scale {
		if s == 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, fmt.Errorf("invalid scale %v for column %q", s, columns[t.numIdx[i]].Name)
		}
	}
	if len(encoder.Categories) != len(t.catIdx) {
		return nil, fmt.Errorf("encoder has %d category lists for %d categorical columns",
			len(encoder.Categories), len(t.catIdx))
	}

	t.width = len(t.numIdx)
	t.lookup = make([]map[string]int, len(encoder.Categories))
	for i, cats := range encoder.Categories {
		m := make(map[string]int, len(cats))
		for j, c := range cats {
			if _, dup := m[c]; dup {
				return nil, fmt.Errorf("duplicate category %q in column %q", c, columns[t.catIdx[i]].Name)
			}
			m[c] = j
		}
		t.lookup[i] = m
		t.width += len(cats)
	}

	return t, nil
}

// Schema returns the columns the transformer was fitted on.
func (t *Transformer) Schema() schema.Schema {
	return t.columns
}

// Width is the length of every vector returned by Transform.
func (t *Transformer) Width() int {
	return t.width
}

// Transform turns one record into a dense feature vector: the scaled numeric
// columns first, followed by one indicator block per categorical column.
func (t *Transformer) Transform(rec schema.Record) ([]float64, error) {
	if !rec.Schema.Equal(t.columns) || len(rec.Values) != len(t.columns) {
		return nil, fmt.Errorf("%w: got %s, fitted on %s", ErrSchemaMismatch, rec.Schema, t.columns)
	}

	out := make([]float64, t.width)
	for i, col := range t.numIdx {
		out[i] = (rec.Values[col].Number - t.scaler.Mean[i]) / t.scaler.Scale[i]
	}

	offset := len(t.numIdx)
	for i, col := range t.catIdx {
		if j, ok := t.lookup[i][rec.Values[col].Category]; ok {
			out[offset+j] = 1
		}
		offset += len(t.encoder.Categories[i])
	}
	return out, nil
}

// Fit learns scaler statistics and category sets from rows. All rows must
// share the given schema.
func Fit(columns schema.Schema, rows []schema.Record) (*Transformer, error) {
	if len(rows) == 0 {
		return nil, errors.New("cannot fit on an empty dataset")
	}
	for i, r := range rows {
		if !r.Schema.Equal(columns) || len(r.Values) != len(columns) {
			return nil, fmt.Errorf("row %d: %w", i, ErrSchemaMismatch)
		}
	}

	var (
		scaler  Scaler
		encoder Encoder
		xs      = make([]float64, len(rows))
	)

	for col, f := range columns {
		switch f.Kind {
		case schema.Numeric:
			for i, r := range rows {
				xs[i] = r.Values[col].Number
			}
			mean, scale := meanScale(xs)
			scaler.Mean = append(scaler.Mean, mean)
			scaler.Scale = append(scaler.Scale, scale)

		case schema.Categorical:
			seen := make(map[string]struct{})
			for _, r := range rows {
				seen[r.Values[col].Category] = struct{}{}
			}
			cats := make([]string, 0, len(seen))
			for c := range seen {
				cats = append(cats, c)
			}
			sort.Strings(cats)
			encoder.Categories = append(encoder.Categories, cats)
		}
	}

	return New(columns, scaler, encoder)
}

// meanScale returns the mean and population standard deviation of xs. A
// constant column gets scale 1 so it maps to zero instead of dividing by zero.
func meanScale(xs []float64) (float64, float64) {
	n := float64(len(xs))
	if len(xs) < 2 {
		return stat.Mean(xs, nil), 1
	}
	mean, variance := stat.MeanVariance(xs, nil)
	std := math.Sqrt(variance * (n - 1) / n)
	if std == 0 || math.IsNaN(std) {
		std = 1
	}
	return mean, std
}
