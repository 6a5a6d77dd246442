package invitations

import "errors"

var (
	// ErrAlreadyAccepted is returned when redeeming or revoking a used invitation
	ErrAlreadyAccepted = errors.New("invitation already accepted")
	// ErrExpired is returned when redeeming an invitation past its expiry
	ErrExpired = errors.New("invitation expired")
	// ErrEmailTaken is returned when the invited address already belongs to a user
	ErrEmailTaken = errors.New("email already registered")
	// ErrUsernameTaken is returned when the chosen username is in use
	ErrUsernameTaken = errors.New("username already taken")
	// ErrTeamFull is returned when the team has reached its member limit
	ErrTeamFull = errors.New("team is full")
	// ErrInvalidInvitation is returned for malformed invitation requests
	ErrInvalidInvitation = errors.New("invalid invitation")
)
