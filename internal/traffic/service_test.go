package traffic

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/saferoute/internal/nn"
	"github.com/i474232898/saferoute/internal/preprocess"
	"github.com/i474232898/saferoute/internal/schema"
)

func testTransformer(t *testing.T) *preprocess.Transformer {
	t.Helper()
	tr, err := preprocess.New(schema.Traffic,
		preprocess.Scaler{Mean: []float64{12, 3, 13, 77, 40}, Scale: []float64{6, 2, 1, 1, 15}},
		preprocess.Encoder{Categories: [][]string{{"R1", "R12"}, {"Clear", "Rain"}}},
	)
	require.NoError(t, err)
	return tr
}

// constantNetwork ignores its input and returns the given head outputs.
func constantNetwork(t *testing.T, width int, vehicles, prob float64) *nn.Network {
	t.Helper()
	zero := make([][]float64, width)
	for i := range zero {
		zero[i] = []float64{0}
	}
	v, err := nn.NewDense(zero, []float64{vehicles}, nn.Linear)
	require.NoError(t, err)
	p, err := nn.NewDense(zero, []float64{prob}, nn.Linear)
	require.NoError(t, err)
	n, err := nn.NewNetwork(width, nil, []nn.Head{
		{Name: "vehicle_count", Layers: []nn.Dense{v}},
		{Name: "accident_risk", Layers: []nn.Dense{p}},
	})
	require.NoError(t, err)
	return n
}

type recordingModel struct {
	mu   sync.Mutex
	seen [][]float64
	out  [][]float64
	err  error
}

func (m *recordingModel) Predict(features []float64) ([][]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = append(m.seen, features)
	return m.out, m.err
}

func examplePayload(t *testing.T) Payload {
	return decode(t, `{"hour": 8, "day": 1, "lat": 12.9, "lon": 77.6, "speed": 42.5, "road": "R12", "weather": "Rain"}`)
}

func TestAssessWorkedExampleEndToEnd(t *testing.T) {
	svc := NewService(testTransformer(t), constantNetwork(t, 9, 250.7, 0.42), nil)

	got, err := svc.Assess(examplePayload(t))
	require.NoError(t, err)
	assert.Equal(t, Assessment{
		VehicleCount:       250,
		TrafficDensity:     DensityModerate,
		AccidentLikelihood: 42.0,
		RiskLabel:          RiskCaution,
	}, got)
}

func TestPredictFeedsPreprocessedVector(t *testing.T) {
	model := &recordingModel{out: [][]float64{{100}, {0.1}}}
	svc := NewService(testTransformer(t), model, nil)

	_, err := svc.Assess(examplePayload(t))
	require.NoError(t, err)
	require.Len(t, model.seen, 1)
	assert.InDeltaSlice(t, []float64{
		(8 - 12) / 6.0, (1 - 3) / 2.0, 12.9 - 13, 77.6 - 77, (42.5 - 40) / 15,
		0, 1,
		0, 1,
	}, model.seen[0], 1e-9)
}

func TestUnknownCategoriesStillPredict(t *testing.T) {
	model := &recordingModel{out: [][]float64{{100}, {0.1}}}
	svc := NewService(testTransformer(t), model, nil)

	p := decode(t, `{"hour": 8, "day": 1, "lat": 12.9, "lon": 77.6, "speed": 42.5, "road": "R404", "weather": "Sandstorm"}`)
	_, err := svc.Assess(p)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 0}, model.seen[0][5:])
}

func TestMissingFieldNeverPartiallySucceeds(t *testing.T) {
	model := &recordingModel{out: [][]float64{{100}, {0.1}}}
	svc := NewService(testTransformer(t), model, nil)

	got, err := svc.Assess(decode(t, `{"hour": 8, "day": 1, "lat": 12.9, "lon": 77.6, "road": "R12", "weather": "Rain"}`))
	assert.ErrorIs(t, err, ErrMissingField)
	assert.Zero(t, got)
	assert.Empty(t, model.seen, "model must not run on incomplete input")
}

func TestPredictErrors(t *testing.T) {
	boom := errors.New("boom")
	for name, tc := range map[string]struct {
		model Model
		want  error
	}{
		"width":      {model: constantNetwork(t, 4, 1, 1), want: nn.ErrPrediction},
		"model err":  {model: &recordingModel{err: boom}, want: boom},
		"one output": {model: &recordingModel{out: [][]float64{{1}}}, want: nn.ErrPrediction},
		"nan":        {model: &recordingModel{out: [][]float64{{math.NaN()}, {0.1}}}, want: nn.ErrPrediction},
		"overflow":   {model: &recordingModel{out: [][]float64{{1e20}, {0.1}}}, want: nn.ErrPrediction},
		"underflow":  {model: &recordingModel{out: [][]float64{{-1e20}, {0.1}}}, want: nn.ErrPrediction},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewService(testTransformer(t), tc.model, nil).Assess(examplePayload(t))
			assert.ErrorIs(t, err, tc.want)
			assert.False(t, IsInputError(err))
		})
	}
}

func TestSchemaMismatchFromPreprocessor(t *testing.T) {
	cols := append(schema.Schema(nil), schema.Traffic...)
	cols[5], cols[6] = cols[6], cols[5]
	tr, err := preprocess.New(cols,
		preprocess.Scaler{Mean: make([]float64, 5), Scale: []float64{1, 1, 1, 1, 1}},
		preprocess.Encoder{Categories: [][]string{{"Rain"}, {"R12"}}},
	)
	require.NoError(t, err)

	_, err = NewService(tr, constantNetwork(t, 7, 1, 0), nil).Assess(examplePayload(t))
	assert.ErrorIs(t, err, preprocess.ErrSchemaMismatch)
}

func TestProbabilityOutsideRangeIsNotClamped(t *testing.T) {
	svc := NewService(testTransformer(t), constantNetwork(t, 9, 50, 1.25), nil)

	got, err := svc.Assess(examplePayload(t))
	require.NoError(t, err)
	assert.Equal(t, 125.0, got.AccidentLikelihood)
	assert.Equal(t, RiskHighArea, got.RiskLabel)
}

func TestWithLoggerKeepsServiceImmutable(t *testing.T) {
	var buf bytes.Buffer
	svc := NewService(testTransformer(t), constantNetwork(t, 9, 50, -0.2), nil)
	scoped := svc.WithLogger(slog.New(slog.NewJSONHandler(&buf, nil)).With("request_id", "abc"))

	_, err := scoped.Assess(examplePayload(t))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"request_id":"abc"`)
	assert.Contains(t, buf.String(), "accident probability outside")
	assert.Same(t, svc, svc.WithLogger(nil))
	assert.NotSame(t, svc, scoped)
}

func TestConcurrentAssessMatchesSequential(t *testing.T) {
	trunk, err := nn.NewDense([][]float64{
		{40, 0.01}, {5, 0.02}, {3, 0.05}, {2, 0.01}, {-30, 0.1},
		{10, 0.2}, {60, -0.1}, {0, 0.3}, {25, 0.4},
	}, []float64{250, 0}, nn.Linear)
	require.NoError(t, err)
	vh, err := nn.NewDense([][]float64{{1}, {0}}, []float64{0}, nn.ReLU)
	require.NoError(t, err)
	ph, err := nn.NewDense([][]float64{{0}, {1}}, []float64{0}, nn.Sigmoid)
	require.NoError(t, err)
	net, err := nn.NewNetwork(9, []nn.Dense{trunk}, []nn.Head{
		{Name: "vehicle_count", Layers: []nn.Dense{vh}},
		{Name: "accident_risk", Layers: []nn.Dense{ph}},
	})
	require.NoError(t, err)
	svc := NewService(testTransformer(t), net, nil)

	payloads := make([]Payload, 24)
	want := make([]Assessment, len(payloads))
	for i := range payloads {
		road, weather := "R1", "Clear"
		if i%2 == 0 {
			road = "R12"
		}
		if i%3 == 0 {
			weather = "Rain"
		}
		body, err := json.Marshal(map[string]any{
			"hour": i % 24, "day": i % 7, "lat": 12.9 + float64(i)/10, "lon": 77.6,
			"speed": 20 + float64(i), "road": road, "weather": weather,
		})
		require.NoError(t, err)
		payloads[i] = decode(t, string(body))
		want[i], err = svc.Assess(payloads[i])
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for round := 0; round < 8; round++ {
		for i := range payloads {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				got, err := svc.Assess(payloads[i])
				if assert.NoError(t, err) {
					assert.Equal(t, want[i], got, fmt.Sprintf("payload %d", i))
				}
			}(i)
		}
	}
	wg.Wait()
}
