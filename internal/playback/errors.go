package playback

import (
	"errors"
	"fmt"
)

// ErrStopped is returned by commands issued after Run has returned.
var ErrStopped = errors.New("playback controller stopped")

// ValidationError rejects a generate request before any state change.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// EngineError is a failure reported by the speech engine during playback.
// It is never retried.
type EngineError struct {
	Code string
}

func (e *EngineError) Error() string {
	return "speech engine error: " + e.Code
}

// AsValidation unwraps the ValidationError behind err, if any.
func AsValidation(err error) (*ValidationError, bool) {
	var v *ValidationError
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}
