package transition

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidTransition matches every rejection produced by Validate
var ErrInvalidTransition = errors.New("invalid transition")

// Messages shown to users when a tenant would be left without an admin
const (
	MsgTeamNeedsAdmin  = "Team must have at least one admin"
	MsgGroupNeedsAdmin = "Enterprise group must have at least one admin"
	MsgEmailChange     = "Email changes must go through an email change request"
)

// Error is a rejected transition with a user-actionable message
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string { return e.Message }

// Is makes errors.Is(err, ErrInvalidTransition) hold
func (e *Error) Is(target error) bool { return target == ErrInvalidTransition }

// ImmutableFieldError is returned when a change touches a field that can
// never change after creation
type ImmutableFieldError struct {
	Field string
}

func (e *ImmutableFieldError) Error() string {
	return fmt.Sprintf("%s cannot be changed", humanize(e.Field))
}

// Is makes errors.Is(err, ErrInvalidTransition) hold
func (e *ImmutableFieldError) Is(target error) bool { return target == ErrInvalidTransition }

func invalid(field, format string, args ...any) error {
	return &Error{Field: field, Message: fmt.Sprintf(format, args...)}
}

func humanize(field string) string {
	s := strings.ReplaceAll(field, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
