package pipeline

import (
	"errors"
	"fmt"

	"github.com/ppiankov/decisio/internal/model"
)

// ErrNotAwaiting is returned when resuming a session that is not paused
// for clarification
var ErrNotAwaiting = errors.New("session is not awaiting clarification")

// InputValidationError rejects caller input before any work starts
type InputValidationError struct {
	Field   string
	Message string
}

func (e *InputValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// FailedError is returned when a run moved its session to FAILED. The
// session itself carries the serialisable StageError.
type FailedError struct {
	SessionID string
	Stage     model.Stage
	Kind      string
	Err       error
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("session %s failed during %s (%s): %v", e.SessionID, e.Stage, e.Kind, e.Err)
}

func (e *FailedError) Unwrap() error {
	return e.Err
}

// Failure kinds recorded on StageError
const (
	kindDecomposition = "decomposition"
	kindReasoner      = "reasoner"
	kindCanceled      = "canceled"
	kindStore         = "store"
	kindInternal      = "internal"
)
