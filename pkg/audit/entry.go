package audit

import (
	"context"
	"time"
)

// Actions recorded outside user transitions
const (
	ActionInvitationAccepted = "invitation_accepted"
	ActionInvitationCreated  = "invitation_created"
	ActionInvitationRevoked  = "invitation_revoked"
	ActionEmailChange        = "email_change"
	ActionEmailChangeDenied  = "email_change_rejected"
	ActionPlanChange         = "plan_change"
	ActionPlanCreated        = "plan_created"
	ActionSubscriptionCancel = "subscription_canceled"
	ActionAnnouncement       = "announcement_published"
)

// RequestInfo describes where a request came from
type RequestInfo struct {
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Entry is an immutable audit log record
type Entry struct {
	ID        int64          `json:"id,omitempty"`
	ActorID   *int64         `json:"actor_id,omitempty"`
	TargetID  *int64         `json:"target_id,omitempty"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details"`
	Timestamp time.Time      `json:"timestamp"`
	IPAddress string         `json:"ip_address,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// NewEntry builds an entry for actor acting on target
func NewEntry(actorID, targetID int64, action string, details map[string]any, req RequestInfo) Entry {
	if details == nil {
		details = map[string]any{}
	}
	return Entry{
		ActorID:   &actorID,
		TargetID:  &targetID,
		Action:    action,
		Details:   details,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
		RequestID: req.RequestID,
	}
}

// Sink receives audit entries
type Sink interface {
	Record(ctx context.Context, entry *Entry) error
}
