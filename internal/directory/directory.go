package directory

import (
	"context"
	"time"
)

// Credential holds the provider tokens that authorize calendar access on a
// user's behalf. ExpiresAt is always a UTC instant; expiry arrives from the
// provider as a relative expires_in and is normalized before it ever reaches
// this type.
type Credential struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	ProfileID    string
	Email        string
	UpdatedAt    time.Time
}

// Registered reports whether the credential authorizes provider calls. A
// record without an access token counts as unregistered.
func (c *Credential) Registered() bool {
	return c != nil && c.AccessToken != ""
}

// Directory is the persistence contract for credentials. Get returns
// (nil, nil) when no credential exists for the user; implementations provide
// last-write-wins semantics per user id and their own concurrency safety.
type Directory interface {
	Get(ctx context.Context, userID string) (*Credential, error)
	Put(ctx context.Context, cred *Credential) error
	Delete(ctx context.Context, userID string) error
	ListAll(ctx context.Context) ([]*Credential, error)
}
