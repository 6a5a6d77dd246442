// Package emailchange implements the review workflow that is the only way a
// user's email address changes.
//
// A user requests a new address for themselves. A site or super admin other
// than the requester approves or rejects it; the requester may cancel while
// it is pending. Each user has at most one pending request.
package emailchange
