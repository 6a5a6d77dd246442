package accounts

import "time"

// InvitationTTL is how long an invitation stays acceptable
const InvitationTTL = 7 * 24 * time.Hour

// OwnerKind identifies which kind of tenant an invitation belongs to
type OwnerKind string

const (
	OwnerTeam            OwnerKind = "team"
	OwnerEnterpriseGroup OwnerKind = "enterprise_group"
)

// Valid reports whether k is a known owner kind
func (k OwnerKind) Valid() bool {
	return k == OwnerTeam || k == OwnerEnterpriseGroup
}

// UserType returns the user type granted by accepting an invitation of this kind
func (k OwnerKind) UserType() UserType {
	if k == OwnerEnterpriseGroup {
		return UserTypeEnterprise
	}
	return UserTypeInvited
}

// InvitationState is derived from an invitation's timestamps
type InvitationState string

const (
	InvitationPending  InvitationState = "pending"
	InvitationAccepted InvitationState = "accepted"
	InvitationExpired  InvitationState = "expired"
)

// Invitation invites an email address into a team or an enterprise group
type Invitation struct {
	ID         int64          `json:"id"`
	OwnerKind  OwnerKind      `json:"owner_type"`
	OwnerID    int64          `json:"owner_id"`
	Email      string         `json:"email"`
	Role       MembershipRole `json:"role"`
	Token      string         `json:"token,omitempty"`
	InvitedBy  int64          `json:"invited_by"`
	CreatedAt  time.Time      `json:"created_at"`
	ExpiresAt  time.Time      `json:"expires_at"`
	AcceptedAt *time.Time     `json:"accepted_at,omitempty"`
	AcceptedBy *int64         `json:"accepted_by,omitempty"`
}

// State returns the invitation state at the given time
func (i *Invitation) State(now time.Time) InvitationState {
	if i.AcceptedAt != nil {
		return InvitationAccepted
	}
	if !i.ExpiresAt.After(now) {
		return InvitationExpired
	}
	return InvitationPending
}

// Field returns the value of a filterable column
func (i *Invitation) Field(name string) any {
	switch name {
	case "id":
		return i.ID
	case "owner_type":
		return string(i.OwnerKind)
	case "owner_id":
		return i.OwnerID
	case "email":
		return i.Email
	case "invited_by":
		return i.InvitedBy
	}
	return nil
}
