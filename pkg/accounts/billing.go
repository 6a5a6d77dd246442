package accounts

import "time"

// BillingInterval is how often a plan is charged
type BillingInterval string

const (
	IntervalMonth BillingInterval = "month"
	IntervalYear  BillingInterval = "year"
)

// Plan is a purchasable subscription plan
type Plan struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	PriceCents int64           `json:"price_cents"`
	Interval   BillingInterval `json:"interval"`
	MaxMembers int             `json:"max_members"`
	Active     bool            `json:"active"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Field returns the value of a filterable column
func (p *Plan) Field(name string) any {
	switch name {
	case "id":
		return p.ID
	case "active":
		return p.Active
	}
	return nil
}

// SubscriptionStatus represents the status of a subscription
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// Subscription binds a plan to a team or an enterprise group
type Subscription struct {
	ID                int64              `json:"id"`
	PlanID            int64              `json:"plan_id"`
	TeamID            *int64             `json:"team_id,omitempty"`
	EnterpriseGroupID *int64             `json:"enterprise_group_id,omitempty"`
	Status            SubscriptionStatus `json:"status"`
	CurrentPeriodEnd  time.Time          `json:"current_period_end"`
	CanceledAt        *time.Time         `json:"canceled_at,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// Field returns the value of a filterable column
func (s *Subscription) Field(name string) any {
	switch name {
	case "id":
		return s.ID
	case "plan_id":
		return s.PlanID
	case "team_id":
		return derefInt64(s.TeamID)
	case "enterprise_group_id":
		return derefInt64(s.EnterpriseGroupID)
	case "status":
		return string(s.Status)
	}
	return nil
}
