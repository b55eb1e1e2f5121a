// Package credential owns the per-user OAuth credential lifecycle:
// registration sessions, authorization-code exchange, refresh-before-use, and
// unregistration.
//
// The state machine per user is
//
//	Unregistered -> PendingAuthorization -> Connected
//
// with Connected falling back to Unregistered when a refresh fails, since the
// provider invalidates the refresh token on first use. For the same reason
// refreshes are serialized per user id across all concurrent requests; two
// goroutines racing the same refresh token would leave one holding an
// invalid-grant error and the user without a working credential.
package credential
