package schema

import (
	"fmt"
	"strings"
)

// Kind tells the preprocessor how a column is transformed.
type Kind int

const (
	Numeric Kind = iota
	Categorical
)

func (k Kind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Categorical:
		return "categorical"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Field is a single named, typed column.
type Field struct {
	Name string
	Kind Kind
}

// Schema is an ordered list of columns. Order is significant: the preprocessor
// is fitted on, and later applied to, columns in exactly this order.
type Schema []Field

// Column names used by the traffic model.
const (
	ColHour      = "Hour"
	ColDayOfWeek = "DayOfWeek"
	ColLatitude  = "Latitude"
	ColLongitude = "Longitude"
	ColAvgSpeed  = "Avg_Speed(km/h)"
	ColRoadID    = "Road_ID"
	ColWeather   = "Weather"
)

// Traffic is the feature schema shared by request assembly, preprocessing and
// the offline preparation tool.
var Traffic = Schema{
	{Name: ColHour, Kind: Numeric},
	{Name: ColDayOfWeek, Kind: Numeric},
	{Name: ColLatitude, Kind: Numeric},
	{Name: ColLongitude, Kind: Numeric},
	{Name: ColAvgSpeed, Kind: Numeric},
	{Name: ColRoadID, Kind: Categorical},
	{Name: ColWeather, Kind: Categorical},
}

// Names returns the column names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}

// Columns returns the names of the columns of the given kind, in order.
func (s Schema) Columns(kind Kind) []string {
	var names []string
	for _, f := range s {
		if f.Kind == kind {
			names = append(names, f.Name)
		}
	}
	return names
}

// Equal reports whether both schemas have the same columns, kinds and order.
func (s Schema) Equal(other Schema) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

func (s Schema) String() string {
	return "[" + strings.Join(s.Names(), ", ") + "]"
}

// Value holds a single cell. Numeric columns use Number, categorical columns
// use Category.
type Value struct {
	Number   float64
	Category string
}

// Record is one row laid out according to Schema.
type Record struct {
	Schema Schema
	Values []Value
}

// Builder fills a Record column by column. Columns are addressed by name so
// callers never depend on positional literals.
type Builder struct {
	schema Schema
	values []Value
	set    []bool
}

// NewBuilder starts a record for the given schema.
func (s Schema) NewBuilder() *Builder {
	return &Builder{
		schema: s,
		values: make([]Value, len(s)),
		set:    make([]bool, len(s)),
	}
}

func (b *Builder) index(name string, kind Kind) (int, error) {
	for i, f := range b.schema {
		if f.Name != name {
			continue
		}
		if f.Kind != kind {
			return -1, fmt.Errorf("column %q is %s, not %s", name, f.Kind, kind)
		}
		return i, nil
	}
	return -1, fmt.Errorf("column %q is not part of schema %s", name, b.schema)
}

// Number sets a numeric column.
func (b *Builder) Number(name string, v float64) error {
	i, err := b.index(name, Numeric)
	if err != nil {
		return err
	}
	b.values[i] = Value{Number: v}
	b.set[i] = true
	return nil
}

// Category sets a categorical column.
func (b *Builder) Category(name, v string) error {
	i, err := b.index(name, Categorical)
	if err != nil {
		return err
	}
	b.values[i] = Value{Category: v}
	b.set[i] = true
	return nil
}

// Record returns the finished row, failing if any column was never set.
func (b *Builder) Record() (Record, error) {
	for i, ok := range b.set {
		if !ok {
			return Record{}, fmt.Errorf("column %q was not set", b.schema[i].Name)
		}
	}
	values := make([]Value, len(b.values))
	copy(values, b.values)
	return Record{Schema: b.schema, Values: values}, nil
}
