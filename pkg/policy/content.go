package policy

import "github.com/platinummonkey/warden/pkg/accounts"

// AnnouncementPolicy guards announcements. Resources are *accounts.Announcement.
type AnnouncementPolicy struct{}

// Allow implements Policy
func (AnnouncementPolicy) Allow(actor *accounts.User, action Action, resource any) bool {
	a, _ := resource.(*accounts.Announcement)

	switch action {
	case ActionIndex:
		return true
	case ActionShow:
		return a != nil && (a.Published || accounts.IsSiteAdmin(actor))
	case ActionCreate, ActionUpdate, ActionDestroy:
		return accounts.IsSiteAdmin(actor)
	}
	return false
}

// Scope implements Policy
func (AnnouncementPolicy) Scope(actor *accounts.User) Filter {
	if accounts.IsAnyAdmin(actor) {
		return All()
	}
	return Eq("published", true)
}

// NotificationPolicy guards in-app notifications. Resources are *accounts.Notification.
// Notifications are only ever created by the system.
type NotificationPolicy struct{}

// Allow implements Policy
func (NotificationPolicy) Allow(actor *accounts.User, action Action, resource any) bool {
	n, _ := resource.(*accounts.Notification)

	switch action {
	case ActionIndex:
		return true
	case ActionShow, ActionMarkRead, ActionDestroy:
		return n != nil && n.RecipientID == actor.ID
	}
	return false
}

// Scope implements Policy. Everyone sees only their own notifications.
func (NotificationPolicy) Scope(actor *accounts.User) Filter {
	return Eq("recipient_id", actor.ID)
}

// EmailChangeResource pairs a request with the user who owns it
type EmailChangeResource struct {
	Request *accounts.EmailChangeRequest
	Owner   *accounts.User
}

// EmailChangePolicy guards email change requests. Resources are EmailChangeResource.
type EmailChangePolicy struct{}

// Allow implements Policy
func (EmailChangePolicy) Allow(actor *accounts.User, action Action, resource any) bool {
	res, _ := resource.(EmailChangeResource)

	switch action {
	case ActionIndex:
		return true
	case ActionCreate:
		return res.Owner != nil && res.Owner.ID == actor.ID
	case ActionShow:
		return res.Request != nil && (res.Request.UserID == actor.ID || accounts.IsSiteAdmin(actor))
	case ActionApprove, ActionReject:
		return res.Request != nil && siteAdminOver(actor, res.Owner)
	case ActionDestroy:
		return res.Request != nil && res.Request.UserID == actor.ID
	}
	return false
}

// Scope implements Policy
func (EmailChangePolicy) Scope(actor *accounts.User) Filter {
	if accounts.IsAnyAdmin(actor) {
		return All()
	}
	return Eq("user_id", actor.ID)
}
