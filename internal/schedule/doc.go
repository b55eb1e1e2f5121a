// Package schedule implements the pure time-interval arithmetic behind
// availability lookups: business-hour window construction, busy-to-free
// conversion, and multi-participant intersection.
//
// All functions in this package are side-effect free and operate on UTC
// instants. Callers are responsible for fetching busy periods from the
// calendar provider; see the availability package.
package schedule
