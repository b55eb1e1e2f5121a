// Package directory persists provider credentials keyed by user id.
//
// The Directory interface is the sole source of truth for credential state;
// there is deliberately no in-memory mirror that could diverge from it. Two
// implementations are provided: Memory for tests and single-process use, and
// Postgres for deployments.
package directory
