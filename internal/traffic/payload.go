package traffic

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/i474232898/saferoute/internal/preprocess"
	"github.com/i474232898/saferoute/internal/schema"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Payload is the untyped request body. Every key is required; a JSON null
// counts as missing.
type Payload struct {
	Hour    *json.RawMessage `json:"hour" validate:"required"`
	Day     *json.RawMessage `json:"day" validate:"required"`
	Lat     *json.RawMessage `json:"lat" validate:"required"`
	Lon     *json.RawMessage `json:"lon" validate:"required"`
	Speed   *json.RawMessage `json:"speed" validate:"required"`
	Road    *json.RawMessage `json:"road" validate:"required"`
	Weather *json.RawMessage `json:"weather" validate:"required"`
}

// Scenario checks presence and coerces every value to its typed form.
func (p Payload) Scenario() (Scenario, error) {
	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			return Scenario{}, fmt.Errorf("%w: %s", ErrMissingField, strings.Join(fields, ", "))
		}
		return Scenario{}, err
	}

	var (
		s   Scenario
		err error
	)
	if s.Hour, err = coerceInt("hour", *p.Hour); err != nil {
		return Scenario{}, err
	}
	if s.Day, err = coerceInt("day", *p.Day); err != nil {
		return Scenario{}, err
	}
	if s.Lat, err = coerceFloat("lat", *p.Lat); err != nil {
		return Scenario{}, err
	}
	if s.Lon, err = coerceFloat("lon", *p.Lon); err != nil {
		return Scenario{}, err
	}
	if s.Speed, err = coerceFloat("speed", *p.Speed); err != nil {
		return Scenario{}, err
	}
	if s.Road, err = coerceCategory("road", *p.Road); err != nil {
		return Scenario{}, err
	}
	if s.Weather, err = coerceCategory("weather", *p.Weather); err != nil {
		return Scenario{}, err
	}
	return s, nil
}

// Record lays the scenario out in the order of the given schema.
func (s Scenario) Record(columns schema.Schema) (schema.Record, error) {
	b := columns.NewBuilder()
	for _, err := range []error{
		b.Number(schema.ColHour, float64(s.Hour)),
		b.Number(schema.ColDayOfWeek, float64(s.Day)),
		b.Number(schema.ColLatitude, s.Lat),
		b.Number(schema.ColLongitude, s.Lon),
		b.Number(schema.ColAvgSpeed, s.Speed),
		b.Category(schema.ColRoadID, s.Road),
		b.Category(schema.ColWeather, s.Weather),
	} {
		if err != nil {
			return schema.Record{}, fmt.Errorf("%w: %v", preprocess.ErrSchemaMismatch, err)
		}
	}
	rec, err := b.Record()
	if err != nil {
		return schema.Record{}, fmt.Errorf("%w: %v", preprocess.ErrSchemaMismatch, err)
	}
	return rec, nil
}

func decodeScalar(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func mismatch(field string, v any, want string) error {
	return fmt.Errorf("%w: %s must be %s, got %v", ErrTypeMismatch, field, want, v)
}

// coerceInt accepts integers, floats (truncated toward zero), integer strings
// and booleans.
func coerceInt(field string, raw json.RawMessage) (int, error) {
	v, err := decodeScalar(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrTypeMismatch, field, err)
	}
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return int(n), nil
		}
		f, err := x.Float64()
		if err != nil || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
			return 0, mismatch(field, x, "an integer")
		}
		return int(math.Trunc(f)), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, mismatch(field, strconv.Quote(x), "an integer")
		}
		return n, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, mismatch(field, x, "an integer")
	}
}

// coerceFloat accepts numbers, numeric strings and booleans.
func coerceFloat(field string, raw json.RawMessage) (float64, error) {
	v, err := decodeScalar(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrTypeMismatch, field, err)
	}
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, mismatch(field, x, "a number")
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, mismatch(field, strconv.Quote(x), "a number")
		}
		return f, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, mismatch(field, x, "a number")
	}
}

// coerceCategory passes strings through unchanged and formats other scalars.
func coerceCategory(field string, raw json.RawMessage) (string, error) {
	v, err := decodeScalar(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrTypeMismatch, field, err)
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case bool:
		if x {
			return "True", nil
		}
		return "False", nil
	default:
		return "", mismatch(field, x, "a category")
	}
}

// String renders the raw payload for logs.
func (p Payload) String() string {
	fields := []struct {
		name string
		raw  *json.RawMessage
	}{
		{"hour", p.Hour}, {"day", p.Day}, {"lat", p.Lat}, {"lon", p.Lon},
		{"speed", p.Speed}, {"road", p.Road}, {"weather", p.Weather},
	}
	var b strings.Builder
	b.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(f.name)
		b.WriteString(": ")
		if f.raw == nil {
			b.WriteString("<missing>")
		} else {
			b.Write(*f.raw)
		}
	}
	b.WriteByte('}')
	return b.String()
}
