// Package availability coordinates a multi-participant availability lookup:
// fan-out busy-period fetches against the calendar provider, credential
// freshness, free-period computation, and the final intersection.
//
// Participant failures are isolated. A participant whose credential or fetch
// fails is excluded from the intersection and reported in the result's error
// map; availability is never fabricated for them.
package availability
