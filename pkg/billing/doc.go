// Package billing manages plans and the subscriptions that bind them to
// teams and enterprise groups.
//
// # Plans
//
// Plans are created by super admins and carry a member limit. Plain users
// only see active plans.
//
// # Subscriptions
//
// A tenant holds at most one live subscription. Changing a team's plan also
// moves the team's member limit; a team cannot downgrade below its current
// head count. Canceling a team subscription restores the default limit.
//
// Plan changes and cancellations are audited and announced to the tenant's
// admin.
package billing
