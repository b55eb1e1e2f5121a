package directory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Memory is an in-memory Directory guarded by a RWMutex. Credentials are
// copied on the way in and out so callers can never mutate stored state
// through a shared pointer.
type Memory struct {
	mu    sync.RWMutex
	creds map[string]Credential
}

// NewMemory creates an empty in-memory directory.
func NewMemory() *Memory {
	return &Memory{
		creds: make(map[string]Credential),
	}
}

// Get returns the credential for the user, or (nil, nil) if none is stored.
func (m *Memory) Get(_ context.Context, userID string) (*Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cred, ok := m.creds[userID]
	if !ok {
		return nil, nil
	}
	copied := cred
	return &copied, nil
}

// Put stores the credential, replacing any previous record for the user.
func (m *Memory) Put(_ context.Context, cred *Credential) error {
	if cred == nil || cred.UserID == "" {
		return fmt.Errorf("credential must have a user id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *cred
	stored.ExpiresAt = stored.ExpiresAt.UTC()
	stored.UpdatedAt = time.Now().UTC()
	m.creds[cred.UserID] = stored
	return nil
}

// Delete removes the credential for the user. Deleting an absent user is not
// an error.
func (m *Memory) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.creds, userID)
	return nil
}

// ListAll returns every stored credential, ordered by user id.
func (m *Memory) ListAll(_ context.Context) ([]*Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Credential, 0, len(m.creds))
	for _, cred := range m.creds {
		copied := cred
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// compile-time interface check
var _ Directory = (*Memory)(nil)
