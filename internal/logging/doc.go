// Package logging provides structured logging helpers for skedge.
//
// It centralizes slog attribute naming so log queries stay stable across the
// codebase, and sanitizes sensitive values: user ids are hashed before they
// are logged and tokens are never logged beyond their length.
package logging
