package assignment

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("participant not found")
	// ErrNoCandidates means nobody is left that the drawer may give to.
	ErrNoCandidates = errors.New("no available recipients")
	// ErrUnsatisfiable means every candidate would strand a later drawer.
	ErrUnsatisfiable = errors.New("no recipient keeps the draw completable")
	// ErrInvalidState covers lost races that exhausted their retries and
	// requests that do not fit the current game state.
	ErrInvalidState = errors.New("invalid game state")
	ErrValidation   = errors.New("validation failed")
)

// Reason turns a draw error into the message shown to the participant.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "Participant not found"
	case errors.Is(err, ErrNoCandidates):
		return "No available recipients. Please contact the administrator."
	case errors.Is(err, ErrUnsatisfiable):
		return "Cannot complete assignment due to exclusion rules. Please contact administrator."
	case errors.Is(err, ErrInvalidState):
		return "Too many people are drawing right now. Please try again."
	default:
		return "An error occurred while drawing your Secret Santa"
	}
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
