package credential

import "errors"

var (
	// ErrSessionExists is returned by StartRegistration when the user already
	// has a registration in flight.
	ErrSessionExists = errors.New("registration session already exists")

	// ErrUnknownSession is returned by CompleteRegistration when no session
	// matches the correlation token.
	ErrUnknownSession = errors.New("unknown registration session")

	// ErrExchangeFailed wraps a provider failure during the code exchange.
	// The session is retained so the user can retry.
	ErrExchangeFailed = errors.New("authorization code exchange failed")

	// ErrNotRegistered is returned when no credential is stored for a user.
	ErrNotRegistered = errors.New("user is not registered")

	// ErrCredentialExpired is returned when a refresh fails. The stored
	// credential has been deleted; the user must register again.
	ErrCredentialExpired = errors.New("credential expired and refresh failed")
)
