package claims

import (
	"errors"
	"fmt"

	"github.com/fraudguard-ai/fraudguard/internal/domain"
)

// ErrDisabled marks a transition that this deployment's capability
// configuration does not permit, regardless of claim status.
var ErrDisabled = errors.New("operation disabled by deployment configuration")

// IllegalTransitionError reports a transition attempted from a status
// that does not permit it. The claim is left unmodified.
type IllegalTransitionError struct {
	Action    string
	Attempted domain.ClaimStatus
	Current   domain.ClaimStatus
}

func (e *IllegalTransitionError) Error() string {
	if e.Attempted != "" {
		return fmt.Sprintf("cannot %s: transition to %q is not allowed from status %q",
			e.Action, e.Attempted, e.Current)
	}
	return fmt.Sprintf("cannot %s: not allowed from status %q", e.Action, e.Current)
}

// ValidationError reports a request rejected before any mutation or
// audit emission.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsIllegalTransition reports whether err is an illegal-transition error.
func IsIllegalTransition(err error) bool {
	var ite *IllegalTransitionError
	return errors.As(err, &ite)
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
