package preprocess

import (
	"bytes"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/saferoute/internal/schema"
)

func record(t *testing.T, hour, day, lat, lon, speed float64, road, weather string) schema.Record {
	t.Helper()
	b := schema.Traffic.NewBuilder()
	require.NoError(t, b.Number(schema.ColHour, hour))
	require.NoError(t, b.Number(schema.ColDayOfWeek, day))
	require.NoError(t, b.Number(schema.ColLatitude, lat))
	require.NoError(t, b.Number(schema.ColLongitude, lon))
	require.NoError(t, b.Number(schema.ColAvgSpeed, speed))
	require.NoError(t, b.Category(schema.ColRoadID, road))
	require.NoError(t, b.Category(schema.ColWeather, weather))
	rec, err := b.Record()
	require.NoError(t, err)
	return rec
}

func fitted(t *testing.T) *Transformer {
	t.Helper()
	rows := []schema.Record{
		record(t, 6, 0, 12.0, 77.0, 30, "R2", "Clear"),
		record(t, 8, 1, 13.0, 78.0, 50, "R1", "Rain"),
		record(t, 10, 2, 14.0, 79.0, 70, "R2", "Fog"),
	}
	tr, err := Fit(schema.Traffic, rows)
	require.NoError(t, err)
	return tr
}

func TestFitLearnsStatistics(t *testing.T) {
	tr := fitted(t)

	assert.InDeltaSlice(t, []float64{8, 1, 13, 78, 50}, tr.scaler.Mean, 1e-12)
	// Population standard deviation of {a-d, a, a+d} is d*sqrt(2/3).
	k := math.Sqrt(2.0 / 3.0)
	assert.InDeltaSlice(t, []float64{2 * k, k, k, k, 20 * k}, tr.scaler.Scale, 1e-12)
	assert.Equal(t, [][]string{{"R1", "R2"}, {"Clear", "Fog", "Rain"}}, tr.encoder.Categories)
	assert.Equal(t, 10, tr.Width())
}

func TestFitConstantColumnGetsUnitScale(t *testing.T) {
	rows := []schema.Record{
		record(t, 8, 3, 12.0, 77.0, 30, "R1", "Clear"),
		record(t, 8, 3, 13.0, 78.0, 50, "R1", "Clear"),
	}
	tr, err := Fit(schema.Traffic, rows)
	require.NoError(t, err)
	assert.Equal(t, 1.0, tr.scaler.Scale[0])
	assert.Equal(t, 1.0, tr.scaler.Scale[1])
}

func TestTransform(t *testing.T) {
	tr := fitted(t)

	out, err := tr.Transform(record(t, 8, 1, 13.0, 78.0, 50, "R2", "Rain"))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 0, 0, 0, 1, 0, 0, 1}, out)

	out, err = tr.Transform(record(t, 10, 1, 13.0, 78.0, 50, "R1", "Clear"))
	require.NoError(t, err)
	assert.InDelta(t, 1/math.Sqrt(2.0/3.0), out[0], 1e-12)
	assert.Equal(t, []float64{1, 0, 1, 0, 0}, out[5:])
}

func TestTransformUnknownCategoryIsZeroBlock(t *testing.T) {
	tr := fitted(t)

	out, err := tr.Transform(record(t, 8, 1, 13.0, 78.0, 50, "R99", "Hail"))
	require.NoError(t, err)
	require.Len(t, out, tr.Width())
	assert.Equal(t, []float64{0, 0, 0, 0, 0}, out[5:])
}

func TestTransformSchemaMismatch(t *testing.T) {
	tr := fitted(t)

	rec := record(t, 8, 1, 13.0, 78.0, 50, "R1", "Rain")
	reordered := append(schema.Schema(nil), rec.Schema...)
	reordered[2], reordered[3] = reordered[3], reordered[2]
	rec.Schema = reordered

	_, err := tr.Transform(rec)
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	_, err = tr.Transform(schema.Record{Schema: schema.Traffic, Values: make([]schema.Value, 3)})
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestSaveLoad(t *testing.T) {
	tr := fitted(t)

	var buf bytes.Buffer
	require.NoError(t, tr.Save(&buf))

	loaded, err := Load(&buf)
	require.NoError(t, err)
	assert.True(t, loaded.Schema().Equal(schema.Traffic))

	rec := record(t, 7, 4, 12.5, 77.2, 44, "R1", "Fog")
	want, err := tr.Transform(rec)
	require.NoError(t, err)
	got, err := loaded.Transform(rec)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadRejectsBadArtifacts(t *testing.T) {
	for name, doc := range map[string]string{
		"format":   `{"format":"sklearn-pickle"}`,
		"kind":     `{"format":"saferoute-preprocessor/v1","columns":[{"name":"Hour","kind":"date"}]}`,
		"scale":    `{"format":"saferoute-preprocessor/v1","columns":[{"name":"Hour","kind":"numeric"}],"numeric":{"columns":["Hour"],"mean":[1],"scale":[0]}}`,
		"groups":   `{"format":"saferoute-preprocessor/v1","columns":[{"name":"Hour","kind":"numeric"}],"numeric":{"columns":["Day"],"mean":[1],"scale":[1]}}`,
		"encoding": `not json`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(bytes.NewBufferString(doc))
			assert.Error(t, err)
		})
	}
}

func TestTransformConcurrent(t *testing.T) {
	tr := fitted(t)
	rec := record(t, 9, 5, 12.2, 77.7, 35, "R2", "Clear")
	want, err := tr.Transform(rec)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := tr.Transform(rec)
			assert.NoError(t, err)
			assert.Equal(t, want, got)
		}()
	}
	wg.Wait()
}
