package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors forming the failure taxonomy of the rental lifecycle.
// Services wrap these with context; callers classify with errors.Is.
var (
	// ErrOutOfRange marks malformed or out-of-range input. Local, never retried.
	ErrOutOfRange = errors.New("value out of range")
	// ErrImmutableFieldWrite marks an attempt to overwrite a write-once field.
	ErrImmutableFieldWrite = errors.New("immutable field write")
	// ErrAuthorizationDeclined is returned when the wallet user declines to
	// sign. Surfaced as its own condition, never folded into generic failure.
	ErrAuthorizationDeclined = errors.New("authorization declined")
	// ErrExternalUnavailable marks a transient network or timeout failure of a
	// collaborator. Safe to retry manually; the record is left unchanged.
	ErrExternalUnavailable = errors.New("external service unavailable")
	// ErrExternalRejected marks a permanent rejection by the escrow contract,
	// e.g. a duplicate submission. Triggers reconciliation before any retry.
	ErrExternalRejected = errors.New("rejected by external service")
	// ErrIntegrityFault marks conflicting canonical records for one rental.
	// Fatal for that rental; flagged for manual review, never auto-resolved.
	ErrIntegrityFault = errors.New("record integrity fault")
	// ErrRentalBusy is returned when a gated action is attempted while another
	// one is still in flight for the same rental.
	ErrRentalBusy = errors.New("another action is in flight for this rental")
	// ErrNotFound is returned for unknown rental ids and content addresses.
	ErrNotFound = errors.New("not found")
	// ErrIllegalTransition is the guard rejection: the rental's current status
	// does not permit the requested action.
	ErrIllegalTransition = errors.New("status does not permit this action")
)

// ValidationError reports which field failed validation and why. It unwraps
// to ErrOutOfRange or ErrImmutableFieldWrite.
type ValidationError struct {
	Field  string
	Err    error
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Detail)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// CooldownError rejects a gated action attempted before its cooldown elapsed.
type CooldownError struct {
	Action    string
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s cooldown active, %s remaining", e.Action, e.Remaining.Round(time.Second))
}
