// Package accounts defines the account and tenant model shared by every
// other package: users, teams, enterprise groups, invitations, notifications,
// billing records and email change requests.
//
// # Roles and types
//
// A user carries three independent axes:
//
//	SystemRole  user | site_admin | super_admin   (platform privilege)
//	UserType    direct | invited | enterprise     (immutable account category)
//	Status      active | inactive | locked
//
// The user type gates which tenant association a user may hold: direct users
// hold none, invited users belong to a team, enterprise users to an enterprise
// group. Per-tenant privilege is a MembershipRole (member or admin).
//
// The predicates in predicates.go (IsSuperAdmin, IsTeamAdmin, SameTeam, ...)
// are pure and safe to call with nil users.
package accounts
