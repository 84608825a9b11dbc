// Package domain contains the core business entities for medstore.
package domain

import (
	"errors"
	"fmt"
)

// Domain errors. Every failure the auth subsystem reports wraps exactly one of these,
// so callers can branch with errors.Is or with KindOf.
var (
	// ErrInvalidInput indicates a missing or malformed identifier, secret or field.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidCredentials indicates the identifier/secret pair was rejected.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountLocked indicates the identifier is under a brute-force lockout.
	ErrAccountLocked = errors.New("account locked")

	// ErrAccountInactive indicates the account has been deactivated.
	ErrAccountInactive = errors.New("account is inactive")

	// ErrNotAuthenticated indicates the operation requires a live session.
	ErrNotAuthenticated = errors.New("authentication required")

	// ErrNoActiveSession indicates logout was requested without a session.
	ErrNoActiveSession = errors.New("no active session")

	// ErrInsufficientPrivilege indicates the session's role does not grant the operation.
	ErrInsufficientPrivilege = errors.New("insufficient privilege")

	// ErrNotFound indicates the target account or snapshot does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a duplicate username, or an operation already in progress.
	ErrConflict = errors.New("conflict")

	// ErrSelfTarget indicates an administrator tried to delete or deactivate
	// the account bound to their own session.
	ErrSelfTarget = errors.New("operation not allowed on the current session's account")

	// ErrStoreUnavailable indicates the credential or lockout store call failed.
	ErrStoreUnavailable = errors.New("credential store unavailable")
)

// ErrorKind classifies an error for callers that render it (HTTP, CLI).
type ErrorKind string

const (
	KindUnknown               ErrorKind = "unknown"
	KindInvalidInput          ErrorKind = "invalid_input"
	KindInvalidCredentials    ErrorKind = "invalid_credentials"
	KindAccountLocked         ErrorKind = "account_locked"
	KindAccountInactive       ErrorKind = "account_inactive"
	KindNotAuthenticated      ErrorKind = "not_authenticated"
	KindNoActiveSession       ErrorKind = "no_active_session"
	KindInsufficientPrivilege ErrorKind = "insufficient_privilege"
	KindNotFound              ErrorKind = "not_found"
	KindConflict              ErrorKind = "conflict"
	KindSelfTarget            ErrorKind = "self_target"
	KindStoreUnavailable      ErrorKind = "store_unavailable"
)

var kinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInvalidInput, KindInvalidInput},
	{ErrAccountLocked, KindAccountLocked}, // before credentials: a triggering lock wraps both
	{ErrInvalidCredentials, KindInvalidCredentials},
	{ErrAccountInactive, KindAccountInactive},
	{ErrNotAuthenticated, KindNotAuthenticated},
	{ErrNoActiveSession, KindNoActiveSession},
	{ErrInsufficientPrivilege, KindInsufficientPrivilege},
	{ErrNotFound, KindNotFound},
	{ErrConflict, KindConflict},
	{ErrSelfTarget, KindSelfTarget},
	{ErrStoreUnavailable, KindStoreUnavailable},
}

// KindOf returns the kind of err, or KindUnknown if err wraps no domain error.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

// CredentialsError is returned when authentication fails but the identifier
// is not (yet) locked.
type CredentialsError struct {
	// AttemptsRemaining is the number of failures left before lockout. Never negative.
	AttemptsRemaining int
}

// Error implements the error interface.
func (e *CredentialsError) Error() string {
	return fmt.Sprintf("%s: %d attempts remaining", ErrInvalidCredentials, e.AttemptsRemaining)
}

// Unwrap returns ErrInvalidCredentials.
func (e *CredentialsError) Unwrap() error {
	return ErrInvalidCredentials
}

// LockoutError is returned while an identifier is locked.
type LockoutError struct {
	// RemainingMinutes is the lockout time left, rounded up.
	RemainingMinutes int

	// Trigger is set on the failed attempt that crossed the threshold. It carries
	// AttemptsRemaining 0, so the attempt is both a credential rejection and a lock.
	Trigger *CredentialsError
}

// Error implements the error interface.
func (e *LockoutError) Error() string {
	if e.Trigger != nil {
		return fmt.Sprintf("too many failed attempts: %s for %d minutes", ErrAccountLocked, e.RemainingMinutes)
	}
	return fmt.Sprintf("%s: try again in %d minutes", ErrAccountLocked, e.RemainingMinutes)
}

// Unwrap returns ErrAccountLocked, plus the triggering credential error if any.
func (e *LockoutError) Unwrap() []error {
	if e.Trigger != nil {
		return []error{ErrAccountLocked, e.Trigger}
	}
	return []error{ErrAccountLocked}
}

// DomainError is a NotFound or Conflict outcome tied to one account or snapshot.
// errors.Is matches the wrapped sentinel; Resource names what was missing or taken.
type DomainError struct {
	Err      error
	Message  string
	Resource string
}

func (e *DomainError) Error() string {
	msg := e.Err.Error()
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Resource != "" {
		msg += " (" + e.Resource + ")"
	}
	return msg
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError ties err to resource, for example an account reference or a username.
func NewDomainError(err error, message, resource string) *DomainError {
	return &DomainError{Err: err, Message: message, Resource: resource}
}
