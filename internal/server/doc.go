// Package server exposes the HTTP surface: the availability and registration
// API, the OAuth redirect endpoint, health probes, and a metrics listener on
// a separate port.
package server
