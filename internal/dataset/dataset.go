// Package dataset reads the historical traffic CSV used to fit the
// preprocessor.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/i474232898/saferoute/internal/schema"
)

// Source column names.
const (
	ColTimestamp = "Timestamp"
)

// Required lists the CSV columns that must be present.
var Required = []string{
	ColTimestamp,
	schema.ColLatitude,
	schema.ColLongitude,
	schema.ColAvgSpeed,
	schema.ColRoadID,
	schema.ColWeather,
}

// Timestamps are day-first when ambiguous.
var timestampLayouts = []string{
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
	"02-01-2006 15:04:05",
	"02-01-2006 15:04",
	"02.01.2006 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"02/01/2006",
	"02-01-2006",
	"2006-01-02",
}

// ParseTimestamp parses a timestamp, reading dd/mm before mm/dd.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// DayOfWeek numbers days Monday = 0 through Sunday = 6.
func DayOfWeek(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// Options tune Read.
type Options struct {
	// OnRow is called after each data row is parsed.
	OnRow func()
}

// Read parses the CSV and returns one record per row, laid out according
// to the traffic schema with Hour and DayOfWeek derived from Timestamp.
func Read(r io.Reader, opts Options) ([]schema.Record, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("dataset is empty")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	var missing []string
	for _, col := range Required {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("dataset is missing columns: %s", strings.Join(missing, ", "))
	}

	var records []schema.Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		rec, err := parseRow(row, index)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
		if opts.OnRow != nil {
			opts.OnRow()
		}
	}

	if len(records) == 0 {
		return nil, errors.New("dataset has no rows")
	}
	return records, nil
}

func parseRow(row []string, index map[string]int) (schema.Record, error) {
	get := func(col string) string {
		return strings.TrimSpace(row[index[col]])
	}

	ts, err := ParseTimestamp(get(ColTimestamp))
	if err != nil {
		return schema.Record{}, err
	}

	b := schema.Traffic.NewBuilder()
	if err := b.Number(schema.ColHour, float64(ts.Hour())); err != nil {
		return schema.Record{}, err
	}
	if err := b.Number(schema.ColDayOfWeek, float64(DayOfWeek(ts))); err != nil {
		return schema.Record{}, err
	}
	for _, col := range []string{schema.ColLatitude, schema.ColLongitude, schema.ColAvgSpeed} {
		v, err := strconv.ParseFloat(get(col), 64)
		if err != nil {
			return schema.Record{}, fmt.Errorf("column %s: %w", col, err)
		}
		if err := b.Number(col, v); err != nil {
			return schema.Record{}, err
		}
	}
	for _, col := range []string{schema.ColRoadID, schema.ColWeather} {
		if err := b.Category(col, get(col)); err != nil {
			return schema.Record{}, err
		}
	}
	return b.Record()
}
