package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/i474232898/saferoute/internal/nn"
	"github.com/i474232898/saferoute/internal/preprocess"
	"github.com/i474232898/saferoute/internal/schema"
)

// ErrArtifactLoad wraps every failure to load or reconcile the artifacts.
var ErrArtifactLoad = errors.New("artifact load failure")

// Locations names where each artifact lives: a filesystem path or an
// s3://bucket/key URI.
type Locations struct {
	Preprocessor string
	Model        string
}

// Artifacts are the fitted preprocessor and model. They are read-only after
// loading and shared by every request.
type Artifacts struct {
	Preprocessor *preprocess.Transformer
	Model        *nn.Network
}

// Loader reads artifacts from a Store and checks that they fit together.
type Loader struct {
	store  Store
	schema schema.Schema
	logger *slog.Logger
}

// NewLoader creates a loader that expects the preprocessor to be fitted on
// the given schema.
func NewLoader(store Store, expected schema.Schema, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{store: store, schema: expected, logger: logger}
}

// Load reads both artifacts once. Any error is wrapped with ErrArtifactLoad.
func (l *Loader) Load(ctx context.Context, loc Locations) (*Artifacts, error) {
	l.logger.Info("loading artifacts", "preprocessor", loc.Preprocessor, "model", loc.Model)

	var pre *preprocess.Transformer
	err := l.read(ctx, loc.Preprocessor, func(r io.Reader) (err error) {
		pre, err = preprocess.Load(r)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: preprocessor %s: %v", ErrArtifactLoad, loc.Preprocessor, err)
	}

	var model *nn.Network
	err = l.read(ctx, loc.Model, func(r io.Reader) (err error) {
		model, err = nn.Load(r)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: model %s: %v", ErrArtifactLoad, loc.Model, err)
	}

	a := &Artifacts{Preprocessor: pre, Model: model}
	if err := a.check(l.schema); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactLoad, err)
	}

	l.logger.Info("artifacts loaded",
		"feature_width", pre.Width(),
		"heads", model.Heads(),
	)
	return a, nil
}

func (l *Loader) read(ctx context.Context, location string, decode func(io.Reader) error) error {
	if location == "" {
		return errors.New("location is empty")
	}
	rc, err := l.store.Open(ctx, location)
	if err != nil {
		return err
	}
	defer rc.Close()
	return decode(rc)
}

func (a *Artifacts) check(expected schema.Schema) error {
	if !a.Preprocessor.Schema().Equal(expected) {
		return fmt.Errorf("preprocessor fitted on %s, service expects %s", a.Preprocessor.Schema(), expected)
	}
	if a.Preprocessor.Width() != a.Model.InputWidth() {
		return fmt.Errorf("preprocessor emits %d features, model expects %d",
			a.Preprocessor.Width(), a.Model.InputWidth())
	}
	if len(a.Model.Heads()) < 2 {
		return fmt.Errorf("model has %d output heads, need vehicle count and accident probability", len(a.Model.Heads()))
	}
	return nil
}
