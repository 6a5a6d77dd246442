package accounts

import "time"

// TenantStatus represents the status of a team or enterprise group
type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
)

// DefaultTeamMaxMembers is the member limit applied when a team has no plan
const DefaultTeamMaxMembers = 5

// Team is a tenant that invited users belong to
type Team struct {
	ID         int64        `json:"id"`
	Name       string       `json:"name"`
	Slug       string       `json:"slug"`
	AdminID    *int64       `json:"admin_id,omitempty"`
	MaxMembers int          `json:"max_members"`
	Status     TenantStatus `json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// Full reports whether a team holding members users can take no more.
// A MaxMembers of zero means no limit.
func (t *Team) Full(members int) bool {
	return t.MaxMembers > 0 && members >= t.MaxMembers
}

// Unadministered reports whether the team has neither a designated admin nor
// any member holding the admin role
func (t *Team) Unadministered(admins int) bool {
	return t.AdminID == nil && admins == 0
}

// Field returns the value of a filterable column
func (t *Team) Field(name string) any {
	switch name {
	case "id":
		return t.ID
	case "admin_id":
		return derefInt64(t.AdminID)
	case "status":
		return string(t.Status)
	}
	return nil
}

// EnterpriseGroup is a tenant that enterprise users belong to
type EnterpriseGroup struct {
	ID        int64        `json:"id"`
	Name      string       `json:"name"`
	Domain    string       `json:"domain,omitempty"`
	AdminID   *int64       `json:"admin_id,omitempty"`
	Status    TenantStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Field returns the value of a filterable column
func (g *EnterpriseGroup) Field(name string) any {
	switch name {
	case "id":
		return g.ID
	case "admin_id":
		return derefInt64(g.AdminID)
	case "status":
		return string(g.Status)
	}
	return nil
}
