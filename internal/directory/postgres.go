package directory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS credentials (
	user_id       TEXT PRIMARY KEY,
	access_token  TEXT NOT NULL,
	refresh_token TEXT NOT NULL,
	expires_at    TIMESTAMPTZ NOT NULL,
	profile_id    TEXT NOT NULL DEFAULT '',
	email         TEXT NOT NULL DEFAULT '',
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Postgres is a Directory backed by PostgreSQL. Upserts give the
// last-write-wins semantics the contract asks for; expiry is stored as
// TIMESTAMPTZ so there is exactly one representation of an instant.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a connection pool for the given DSN and verifies it.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Postgres{db: db}, nil
}

// NewPostgresFromDB wraps an existing connection pool.
func NewPostgresFromDB(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the credentials table if it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create credentials table: %w", err)
	}
	return nil
}

// Get returns the credential for the user, or (nil, nil) if none is stored.
func (p *Postgres) Get(ctx context.Context, userID string) (*Credential, error) {
	cred := &Credential{}
	err := p.db.QueryRowContext(ctx,
		`SELECT user_id, access_token, refresh_token, expires_at, profile_id, email, updated_at
		 FROM credentials
		 WHERE user_id = $1`,
		userID,
	).Scan(&cred.UserID, &cred.AccessToken, &cred.RefreshToken, &cred.ExpiresAt,
		&cred.ProfileID, &cred.Email, &cred.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	cred.ExpiresAt = cred.ExpiresAt.UTC()
	return cred, nil
}

// Put upserts the credential for its user id.
func (p *Postgres) Put(ctx context.Context, cred *Credential) error {
	if cred == nil || cred.UserID == "" {
		return fmt.Errorf("credential must have a user id")
	}

	_, err := p.db.ExecContext(ctx,
		`INSERT INTO credentials (user_id, access_token, refresh_token, expires_at, profile_id, email, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (user_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			profile_id = EXCLUDED.profile_id,
			email = EXCLUDED.email,
			updated_at = EXCLUDED.updated_at`,
		cred.UserID, cred.AccessToken, cred.RefreshToken, cred.ExpiresAt.UTC(),
		cred.ProfileID, cred.Email, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert credential: %w", err)
	}
	return nil
}

// Delete removes the credential for the user; absent rows are not an error.
func (p *Postgres) Delete(ctx context.Context, userID string) error {
	if _, err := p.db.ExecContext(ctx,
		`DELETE FROM credentials WHERE user_id = $1`, userID,
	); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

// ListAll returns every stored credential, ordered by user id.
func (p *Postgres) ListAll(ctx context.Context) ([]*Credential, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT user_id, access_token, refresh_token, expires_at, profile_id, email, updated_at
		 FROM credentials
		 ORDER BY user_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	var out []*Credential
	for rows.Next() {
		cred := &Credential{}
		if err := rows.Scan(&cred.UserID, &cred.AccessToken, &cred.RefreshToken,
			&cred.ExpiresAt, &cred.ProfileID, &cred.Email, &cred.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		cred.ExpiresAt = cred.ExpiresAt.UTC()
		out = append(out, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate credentials: %w", err)
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// compile-time interface check
var _ Directory = (*Postgres)(nil)
