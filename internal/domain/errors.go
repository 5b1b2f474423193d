package domain

import (
	"errors"
	"fmt"
)

// Domain-rule errors. These are expected conditions surfaced to the
// caller as typed failures, never as silent no-ops. Provider and
// persistence failures are NOT represented here - those are absorbed
// at the boundary and degrade to absent data.
var (
	ErrPortfolioNotFound  = errors.New("portfolio not found")
	ErrPositionNotFound   = errors.New("position not found")
	ErrDuplicatePortfolio = errors.New("portfolio name already exists")
	ErrDuplicateTicker    = errors.New("ticker already held in portfolio")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrNothingToUndo      = errors.New("nothing to undo")
	ErrNothingToRedo      = errors.New("nothing to redo")
)

// ValidationError reports bad user input, rejected before any state
// mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a ValidationError for a field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
