package traffic

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/i474232898/saferoute/internal/nn"
	"github.com/i474232898/saferoute/internal/schema"
)

// Preprocessor turns a schema-ordered record into a dense feature vector.
type Preprocessor interface {
	Transform(rec schema.Record) ([]float64, error)
}

// Model maps a feature vector to one output slice per head. Head 0 is the
// vehicle count estimate and head 1 the accident probability.
type Model interface {
	Predict(features []float64) ([][]float64, error)
}

// Service runs the prediction pipeline over artifacts loaded once at startup.
// It keeps no per-request state and is safe for concurrent use.
type Service struct {
	columns      schema.Schema
	preprocessor Preprocessor
	model        Model
	logger       *slog.Logger
}

// NewService creates a new Service.
func NewService(preprocessor Preprocessor, model Model, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		columns:      schema.Traffic,
		preprocessor: preprocessor,
		model:        model,
		logger:       logger,
	}
}

// WithLogger returns a copy of the service that logs through l, typically a
// logger already carrying request attributes.
func (s *Service) WithLogger(l *slog.Logger) *Service {
	if l == nil {
		return s
	}
	c := *s
	c.logger = l
	return &c
}

// Assess coerces the payload, predicts and labels the result.
func (s *Service) Assess(p Payload) (Assessment, error) {
	scenario, err := p.Scenario()
	if err != nil {
		return Assessment{}, err
	}
	pred, err := s.Predict(scenario)
	if err != nil {
		return Assessment{}, err
	}
	return Assess(pred), nil
}

// Predict runs a scenario through the preprocessor and the model.
func (s *Service) Predict(scenario Scenario) (Prediction, error) {
	rec, err := scenario.Record(s.columns)
	if err != nil {
		return Prediction{}, err
	}

	features, err := s.preprocessor.Transform(rec)
	if err != nil {
		return Prediction{}, fmt.Errorf("preprocess: %w", err)
	}

	outputs, err := s.model.Predict(features)
	if err != nil {
		return Prediction{}, fmt.Errorf("predict: %w", err)
	}
	if len(outputs) < 2 || len(outputs[0]) == 0 || len(outputs[1]) == 0 {
		return Prediction{}, fmt.Errorf("%w: model returned %d outputs, want vehicle count and accident probability",
			nn.ErrPrediction, len(outputs))
	}

	vehicles, prob := outputs[0][0], outputs[1][0]
	if !finite(vehicles) || !finite(prob) {
		return Prediction{}, fmt.Errorf("%w: non-finite output (vehicles=%v, prob=%v)", nn.ErrPrediction, vehicles, prob)
	}
	if math.Abs(vehicles) >= math.MaxInt64 {
		return Prediction{}, fmt.Errorf("%w: vehicle count %v overflows int", nn.ErrPrediction, vehicles)
	}
	if prob < 0 || prob > 1 {
		s.logger.Warn("accident probability outside [0, 1]", "prob", prob, "scenario", scenario)
	}

	return Prediction{
		VehicleCount: int(vehicles),
		AccidentProb: prob,
	}, nil
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
