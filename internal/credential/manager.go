package credential

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skedge/skedge/internal/cronofy"
	"github.com/skedge/skedge/internal/directory"
	"github.com/skedge/skedge/internal/instrumentation"
	"github.com/skedge/skedge/internal/logging"
)

// Metric result values for refresh and registration outcomes.
const (
	resultSuccess = "success"
	resultFailure = "failure"
)

// Session is an in-flight registration. It lives in memory only; losing it
// just means the user starts registration over.
type Session struct {
	UserID    string
	Token     string
	Email     string
	CreatedAt time.Time
}

// ProviderClient is the slice of the provider API the lifecycle needs.
type ProviderClient interface {
	AuthorizationURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*cronofy.Token, error)
	RefreshToken(ctx context.Context, refreshToken string) (*cronofy.Token, error)
	AccountProfileID(ctx context.Context, accessToken string) (string, error)
}

// Manager drives the registration and refresh state machine. Credentials are
// read from and written to the Directory on every operation; the manager
// keeps no credential cache that could diverge from it.
type Manager struct {
	dir      directory.Directory
	provider ProviderClient
	logger   *slog.Logger
	metrics  *instrumentation.Metrics
	now      func() time.Time

	sessionMu sync.Mutex
	sessions  map[string]*Session // user id -> session
	byToken   map[string]*Session // correlation token -> session

	refreshMu    sync.Mutex
	refreshLocks map[string]*sync.Mutex // user id -> refresh serialization
}

// NewManager creates a Manager on top of the given directory and provider.
func NewManager(dir directory.Directory, provider ProviderClient) *Manager {
	return &Manager{
		dir:          dir,
		provider:     provider,
		logger:       slog.Default(),
		now:          time.Now,
		sessions:     make(map[string]*Session),
		byToken:      make(map[string]*Session),
		refreshLocks: make(map[string]*sync.Mutex),
	}
}

// SetLogger sets a custom logger.
func (m *Manager) SetLogger(logger *slog.Logger) {
	m.logger = logger
}

// SetMetrics attaches refresh and registration outcome metrics.
func (m *Manager) SetMetrics(metrics *instrumentation.Metrics) {
	m.metrics = metrics
}

// SetClock overrides the time source, used by tests for expiry boundaries.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// StartRegistration opens a registration session for the user and returns
// the provider authorization URL carrying the session's correlation token as
// the OAuth state. It fails with ErrSessionExists while a session is already
// in flight for the user.
func (m *Manager) StartRegistration(_ context.Context, userID, email string) (string, error) {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	if _, exists := m.sessions[userID]; exists {
		return "", ErrSessionExists
	}

	session := &Session{
		UserID:    userID,
		Token:     uuid.NewString(),
		Email:     email,
		CreatedAt: m.now().UTC(),
	}
	m.sessions[userID] = session
	m.byToken[session.Token] = session

	m.logger.Info("registration started", logging.UserHash(userID))
	return m.provider.AuthorizationURL(session.Token), nil
}

// CompleteRegistration exchanges the authorization code delivered for the
// given correlation token and persists the resulting credential. On provider
// failure the session is retained so the user may retry the flow.
func (m *Manager) CompleteRegistration(ctx context.Context, correlationToken, code string) (*directory.Credential, error) {
	m.sessionMu.Lock()
	session, ok := m.byToken[correlationToken]
	m.sessionMu.Unlock()
	if !ok {
		return nil, ErrUnknownSession
	}

	tok, err := m.provider.ExchangeCode(ctx, code)
	if err != nil {
		m.metrics.RecordRegistration(ctx, resultFailure)
		m.logger.Warn("code exchange failed", logging.UserHash(session.UserID), logging.Err(err))
		return nil, fmt.Errorf("%w: %w", ErrExchangeFailed, err)
	}

	cred := &directory.Credential{
		UserID:       session.UserID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.ExpiresAt,
		Email:        session.Email,
	}

	// The profile id is informational; registration succeeds without it.
	if profileID, err := m.provider.AccountProfileID(ctx, tok.AccessToken); err != nil {
		m.logger.Warn("profile lookup failed", logging.UserHash(session.UserID), logging.Err(err))
	} else {
		cred.ProfileID = profileID
	}

	if err := m.dir.Put(ctx, cred); err != nil {
		return nil, fmt.Errorf("failed to persist credential: %w", err)
	}
	m.deleteSession(session.UserID)

	m.metrics.RecordRegistration(ctx, resultSuccess)
	m.logger.Info("registration completed", logging.UserHash(session.UserID))
	return cred, nil
}

// EnsureFresh returns a credential that is valid at the time of the call,
// refreshing it first when it has expired. A credential whose expiry equals
// the current instant counts as expired. When the refresh fails the stored
// credential is deleted and ErrCredentialExpired is returned; the caller must
// ask the user to register again.
func (m *Manager) EnsureFresh(ctx context.Context, userID string) (*directory.Credential, error) {
	cred, err := m.dir.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read credential: %w", err)
	}
	if !cred.Registered() {
		return nil, ErrNotRegistered
	}
	if m.now().Before(cred.ExpiresAt) {
		return cred, nil
	}

	return m.refresh(ctx, userID, false)
}

// ForceRefresh refreshes the user's credential regardless of its recorded
// expiry. The orchestrator uses it when the provider rejects an access token
// that the clock still considers valid.
func (m *Manager) ForceRefresh(ctx context.Context, userID string) (*directory.Credential, error) {
	return m.refresh(ctx, userID, true)
}

// refresh performs one serialized refresh for the user. The per-user lock is
// held across the re-read, the provider call, and the write: the provider
// invalidates a refresh token on first use, so only one caller may spend it.
func (m *Manager) refresh(ctx context.Context, userID string, force bool) (*directory.Credential, error) {
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the lock: a concurrent caller may have refreshed while
	// we waited, in which case its fresh credential is the one to use.
	cred, err := m.dir.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read credential: %w", err)
	}
	if !cred.Registered() {
		return nil, ErrNotRegistered
	}
	if !force && m.now().Before(cred.ExpiresAt) {
		return cred, nil
	}

	tok, err := m.provider.RefreshToken(ctx, cred.RefreshToken)
	if err != nil {
		m.metrics.RecordTokenRefresh(ctx, resultFailure)
		// The refresh token is spent or rejected. Drop the credential so the
		// user is cleanly unregistered instead of wedged.
		if delErr := m.dir.Delete(ctx, userID); delErr != nil {
			m.logger.Error("failed to delete credential after refresh failure",
				logging.UserHash(userID), logging.Err(delErr))
		}
		m.logger.Warn("token refresh failed", logging.UserHash(userID), logging.Err(err))
		return nil, fmt.Errorf("%w: %w", ErrCredentialExpired, err)
	}

	updated := *cred
	updated.AccessToken = tok.AccessToken
	updated.RefreshToken = tok.RefreshToken
	updated.ExpiresAt = tok.ExpiresAt
	if err := m.dir.Put(ctx, &updated); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed credential: %w", err)
	}

	m.metrics.RecordTokenRefresh(ctx, resultSuccess)
	m.logger.Debug("token refreshed", logging.UserHash(userID))
	return &updated, nil
}

// Unregister removes the user's credential and any in-flight registration
// session. It is idempotent.
func (m *Manager) Unregister(ctx context.Context, userID string) error {
	m.deleteSession(userID)
	if err := m.dir.Delete(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	m.logger.Info("user unregistered", logging.UserHash(userID))
	return nil
}

// ListRegistered returns every stored credential, for admin listings.
func (m *Manager) ListRegistered(ctx context.Context) ([]*directory.Credential, error) {
	return m.dir.ListAll(ctx)
}

// HasSession reports whether a registration is in flight for the user.
func (m *Manager) HasSession(userID string) bool {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()
	_, ok := m.sessions[userID]
	return ok
}

func (m *Manager) deleteSession(userID string) {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()
	if session, ok := m.sessions[userID]; ok {
		delete(m.byToken, session.Token)
		delete(m.sessions, userID)
	}
}

// userLock returns the refresh mutex for the user, creating it on first use.
// The lock is keyed by user id, not by request: two availability requests
// naming the same user must not both spend that user's refresh token.
func (m *Manager) userLock(userID string) *sync.Mutex {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	lock, ok := m.refreshLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		m.refreshLocks[userID] = lock
	}
	return lock
}
