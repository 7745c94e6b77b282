package position

import (
	"errors"
	"fmt"
)

var ErrTimeout = errors.New("position unavailable: timed out waiting for a fix")

// SensorError is a transient failure reported by a source. The watch keeps
// running after one is delivered.
type SensorError struct {
	Source string
	Err    error
}

func (e *SensorError) Error() string {
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e *SensorError) Unwrap() error {
	return e.Err
}
