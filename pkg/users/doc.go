// Package users implements the user update and status services.
//
// Every call is one unit of work: load the target inside a transaction,
// authorize the actor against each action the change implies, validate the
// transition, write the changed fields through narrow Tx methods and commit.
// Only after commit is the audit entry recorded and the target notified.
// A change that leaves the user as it was succeeds without either.
//
// Failures never escape as errors; they come back as a Result whose Error is
// safe to render. Unexpected persistence failures are logged in full and
// reported as a generic message.
package users
