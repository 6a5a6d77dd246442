package billing

import "errors"

var (
	// ErrInvalidPlan is returned for malformed plan definitions
	ErrInvalidPlan = errors.New("invalid plan")
	// ErrDuplicatePlan is returned when a plan name is already used
	ErrDuplicatePlan = errors.New("plan already exists")
	// ErrPlanInactive is returned when subscribing to a retired plan
	ErrPlanInactive = errors.New("plan is not active")
	// ErrAlreadySubscribed is returned when the tenant already has a live subscription
	ErrAlreadySubscribed = errors.New("tenant already has an active subscription")
	// ErrSubscriptionCanceled is returned when changing a canceled subscription
	ErrSubscriptionCanceled = errors.New("subscription is canceled")
	// ErrUnknownSubscriber is returned for subscribers that are neither teams nor groups
	ErrUnknownSubscriber = errors.New("unknown subscriber type")
	// ErrOverLimit is returned when a team has more members than the new plan allows
	ErrOverLimit = errors.New("team has more members than the plan allows")
)
