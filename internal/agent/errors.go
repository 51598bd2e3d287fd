package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrNoProvider is returned when the engine is built without a model
	// provider.
	ErrNoProvider = errors.New("agent: no model provider configured")

	// ErrNoStore is returned when the engine is built without a
	// conversation store.
	ErrNoStore = errors.New("agent: no conversation store configured")

	// ErrEmptyMessage is returned when Execute is called with an empty
	// user message.
	ErrEmptyMessage = errors.New("agent: user message is empty")
)

// ModelCallError wraps a model failure inside the main loop. It is fatal to
// the run and propagates to the run supervisor; only the forced-summary call
// recovers locally.
type ModelCallError struct {
	Turn  int
	Cause error
}

func (e *ModelCallError) Error() string {
	return fmt.Sprintf("model call failed on turn %d: %v", e.Turn, e.Cause)
}

func (e *ModelCallError) Unwrap() error {
	return e.Cause
}
