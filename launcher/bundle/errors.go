package bundle

import (
	"fmt"
	"time"
)

// ConfigurationIOError is returned when a bundle file cannot be read or
// written while configuring or starting.
type ConfigurationIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *ConfigurationIOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ConfigurationIOError) Unwrap() error {
	return e.Err
}

// StartupTimeoutError is returned by Start when the server never reported
// alive within the start timeout.
type StartupTimeoutError struct {
	Timeout time.Duration
	URL     string
}

func (e *StartupTimeoutError) Error() string {
	return fmt.Sprintf("server at %s did not become alive within %s", e.URL, e.Timeout)
}

// StateError is returned when an operation is not allowed in the bundle's
// current state.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s bundle in state %s", e.Op, e.State)
}
