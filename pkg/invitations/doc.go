// Package invitations issues and redeems invitations into teams and
// enterprise groups.
//
// An invitation is pending until it is accepted or its expiry passes.
// Accepting creates the invited user with the user type and tenant
// association implied by the invitation owner, in the same transaction that
// consumes the invitation. Expired invitations are removed by
// CleanupExpired, which cmd/warden runs on a cron schedule.
package invitations
