package accounts

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{1,38}$`)

// User represents an account. The same shape is used for the actor performing
// an action and for the target being acted upon.
type User struct {
	ID                  int64           `json:"id"`
	Email               string          `json:"email"`
	Username            string          `json:"username"`
	FullName            string          `json:"full_name,omitempty"`
	SystemRole          SystemRole      `json:"system_role"`
	UserType            UserType        `json:"user_type"`
	Status              Status          `json:"status"`
	TeamID              *int64          `json:"team_id,omitempty"`
	TeamRole            *MembershipRole `json:"team_role,omitempty"`
	EnterpriseGroupID   *int64          `json:"enterprise_group_id,omitempty"`
	EnterpriseGroupRole *MembershipRole `json:"enterprise_group_role,omitempty"`
	SignInCount         int             `json:"sign_in_count"`
	LastSignInAt        *time.Time      `json:"last_sign_in_at,omitempty"`
	ConfirmedAt         *time.Time      `json:"confirmed_at,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Clone returns a deep copy of the user
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.TeamID = cloneInt64(u.TeamID)
	c.EnterpriseGroupID = cloneInt64(u.EnterpriseGroupID)
	if u.TeamRole != nil {
		r := *u.TeamRole
		c.TeamRole = &r
	}
	if u.EnterpriseGroupRole != nil {
		r := *u.EnterpriseGroupRole
		c.EnterpriseGroupRole = &r
	}
	if u.LastSignInAt != nil {
		t := *u.LastSignInAt
		c.LastSignInAt = &t
	}
	if u.ConfirmedAt != nil {
		t := *u.ConfirmedAt
		c.ConfirmedAt = &t
	}
	return &c
}

// ErrAssociationMismatch is returned when a user's tenant association does not
// match what its user type allows
var ErrAssociationMismatch = errors.New("tenant association does not match user type")

// CheckAssociation enforces the user type gating: direct users hold no
// association, invited users a team only, enterprise users a group only.
func (u *User) CheckAssociation() error {
	hasTeam := u.TeamID != nil
	hasGroup := u.EnterpriseGroupID != nil

	switch u.UserType {
	case UserTypeDirect:
		if hasTeam || hasGroup {
			return fmt.Errorf("%w: direct users cannot belong to a team or enterprise group", ErrAssociationMismatch)
		}
	case UserTypeInvited:
		if hasGroup {
			return fmt.Errorf("%w: invited users cannot belong to an enterprise group", ErrAssociationMismatch)
		}
	case UserTypeEnterprise:
		if hasTeam {
			return fmt.Errorf("%w: enterprise users cannot belong to a team", ErrAssociationMismatch)
		}
	default:
		return fmt.Errorf("%w: unknown user type %q", ErrAssociationMismatch, u.UserType)
	}

	if hasTeam != (u.TeamRole != nil) {
		return fmt.Errorf("%w: team and team role must be set together", ErrAssociationMismatch)
	}
	if hasGroup != (u.EnterpriseGroupRole != nil) {
		return fmt.Errorf("%w: enterprise group and enterprise role must be set together", ErrAssociationMismatch)
	}
	return nil
}

// ValidationError aggregates field-level validation messages
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages, ", ")
}

// Validate runs the record-level validations applied before every write
func (u *User) Validate() error {
	var msgs []string

	if strings.TrimSpace(u.Email) == "" {
		msgs = append(msgs, "Email can't be blank")
	} else if _, err := mail.ParseAddress(u.Email); err != nil {
		msgs = append(msgs, "Email is invalid")
	}
	if strings.TrimSpace(u.Username) == "" {
		msgs = append(msgs, "Username can't be blank")
	} else if !usernamePattern.MatchString(u.Username) {
		msgs = append(msgs, "Username is invalid")
	}
	if len(u.FullName) > 255 {
		msgs = append(msgs, "Full name is too long (maximum is 255 characters)")
	}
	if !u.SystemRole.Valid() {
		msgs = append(msgs, "System role is not included in the list")
	}
	if !u.UserType.Valid() {
		msgs = append(msgs, "User type is not included in the list")
	}
	if !u.Status.Valid() {
		msgs = append(msgs, "Status is not included in the list")
	}
	if u.UserType.Valid() {
		if err := u.CheckAssociation(); err != nil {
			msgs = append(msgs, err.Error())
		}
	}

	if len(msgs) > 0 {
		return &ValidationError{Messages: msgs}
	}
	return nil
}

// Field returns the value of a filterable column
func (u *User) Field(name string) any {
	switch name {
	case "id":
		return u.ID
	case "email":
		return u.Email
	case "system_role":
		return string(u.SystemRole)
	case "user_type":
		return string(u.UserType)
	case "status":
		return string(u.Status)
	case "team_id":
		return derefInt64(u.TeamID)
	case "enterprise_group_id":
		return derefInt64(u.EnterpriseGroupID)
	}
	return nil
}

// NormalizeEmail lowercases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// derefInt64 returns nil for a nil pointer so that filters compare against a typed value only when set
func derefInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
