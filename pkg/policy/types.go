package policy

import "errors"

// ErrUnauthorized is returned when a policy denies an action. It never says why.
var ErrUnauthorized = errors.New("not authorized")

// Kind identifies a resource type guarded by a policy
type Kind string

const (
	KindUser               Kind = "user"
	KindTeam               Kind = "team"
	KindEnterpriseGroup    Kind = "enterprise_group"
	KindInvitation         Kind = "invitation"
	KindAnnouncement       Kind = "announcement"
	KindNotification       Kind = "notification"
	KindPlan               Kind = "plan"
	KindSubscription       Kind = "subscription"
	KindEmailChangeRequest Kind = "email_change_request"
)

// Kinds lists every resource kind with a registered policy
func Kinds() []Kind {
	return []Kind{
		KindUser, KindTeam, KindEnterpriseGroup, KindInvitation, KindAnnouncement,
		KindNotification, KindPlan, KindSubscription, KindEmailChangeRequest,
	}
}

// Action represents an action that can be performed on a resource
type Action string

const (
	ActionIndex             Action = "index"
	ActionShow              Action = "show"
	ActionCreate            Action = "create"
	ActionUpdate            Action = "update"
	ActionDestroy           Action = "destroy"
	ActionManageStatus      Action = "manage_status"
	ActionChangeRole        Action = "change_role"
	ActionChangeTeamRole    Action = "change_team_role"
	ActionChangeAssociation Action = "change_association"
	ActionImpersonate       Action = "impersonate"
	ActionApprove           Action = "approve"
	ActionReject            Action = "reject"
	ActionMarkRead          Action = "mark_read"
)
