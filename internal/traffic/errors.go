package traffic

import "errors"

var (
	// ErrMissingField is returned when a required request key is absent or null.
	ErrMissingField = errors.New("missing field")
	// ErrTypeMismatch is returned when a request value cannot be coerced.
	ErrTypeMismatch = errors.New("type mismatch")
)

// IsInputError reports whether err was caused by the caller's payload rather
// than by the preprocessor or the model.
func IsInputError(err error) bool {
	return errors.Is(err, ErrMissingField) || errors.Is(err, ErrTypeMismatch)
}
