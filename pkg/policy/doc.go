// Package policy answers "may this actor do this to that resource" and "which
// records may this actor see".
//
// Decisions flow through an Engine holding one Policy per resource Kind.
// Inactive actors are denied outright. A small set of self-action
// restrictions applies to every role before super admins are let through, and
// anything not explicitly allowed is denied.
//
// Scopes are returned as Filter values that can be evaluated in memory with
// Matches or pushed into a query with SQL.
package policy
