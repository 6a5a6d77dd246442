package accounts

import "time"

// EmailChangeStatus is the state of an email change request
type EmailChangeStatus string

const (
	EmailChangePending  EmailChangeStatus = "pending"
	EmailChangeApproved EmailChangeStatus = "approved"
	EmailChangeRejected EmailChangeStatus = "rejected"
	EmailChangeCanceled EmailChangeStatus = "canceled"
)

// EmailChangeRequest is the only sanctioned way to change a user's email address
type EmailChangeRequest struct {
	ID          int64             `json:"id"`
	UserID      int64             `json:"user_id"`
	OldEmail    string            `json:"old_email"`
	NewEmail    string            `json:"new_email"`
	Status      EmailChangeStatus `json:"status"`
	RequestedAt time.Time         `json:"requested_at"`
	ReviewedBy  *int64            `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time        `json:"reviewed_at,omitempty"`
}

// Pending reports whether the request still awaits review
func (r *EmailChangeRequest) Pending() bool {
	return r.Status == EmailChangePending
}

// Field returns the value of a filterable column
func (r *EmailChangeRequest) Field(name string) any {
	switch name {
	case "id":
		return r.ID
	case "user_id":
		return r.UserID
	case "status":
		return string(r.Status)
	}
	return nil
}
