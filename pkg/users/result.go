package users

import (
	"errors"

	"github.com/platinummonkey/warden/pkg/accounts"
	"github.com/platinummonkey/warden/pkg/policy"
	"github.com/platinummonkey/warden/pkg/storage"
	"github.com/platinummonkey/warden/pkg/transition"
)

// ErrorKind classifies a failed service call
type ErrorKind string

const (
	KindUnauthorized      ErrorKind = "unauthorized"
	KindInvalidTransition ErrorKind = "invalid_transition"
	KindValidationFailure ErrorKind = "validation_failure"
	KindConstraint        ErrorKind = "constraint_error"
	KindNotFound          ErrorKind = "not_found"
)

// Messages returned for failures that must not reveal detail
const (
	MsgUnauthorized = "Unauthorized"
	MsgNotFound     = "User not found"
	MsgConstraint   = "Unable to update user"
)

// Result is the outcome of a service call. On success User holds the
// committed state; on failure Error is safe to show to the caller.
type Result struct {
	Success bool
	User    *accounts.User
	Changed bool
	Error   string
	Kind    ErrorKind
}

// Err returns the failure as an error, or nil on success
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	return &ResultError{Kind: r.Kind, Message: r.Error}
}

// ResultError carries a failed Result through error-returning APIs
type ResultError struct {
	Kind    ErrorKind
	Message string
}

func (e *ResultError) Error() string { return e.Message }

func succeeded(u *accounts.User, changed bool) Result {
	return Result{Success: true, User: u, Changed: changed}
}

func failed(kind ErrorKind, msg string) Result {
	return Result{Kind: kind, Error: msg}
}

// classify maps an internal error onto a result kind and caller-safe message
func classify(err error) (ErrorKind, string) {
	var te *transition.Error
	var ie *transition.ImmutableFieldError
	var ve *accounts.ValidationError

	switch {
	case errors.Is(err, policy.ErrUnauthorized):
		return KindUnauthorized, MsgUnauthorized
	case errors.As(err, &te):
		return KindInvalidTransition, te.Message
	case errors.As(err, &ie):
		return KindInvalidTransition, ie.Error()
	case errors.As(err, &ve):
		return KindValidationFailure, ve.Error()
	case errors.Is(err, storage.ErrNotFound):
		return KindNotFound, MsgNotFound
	}
	return KindConstraint, MsgConstraint
}
