// Package cronofy is a thin client for the Cronofy calendar API: the OAuth
// authorization-code flow (exchange and refresh), event listing, and account
// profile lookup.
//
// The client normalizes provider responses at this boundary: token expiry
// arrives as a relative expires_in and leaves as a UTC instant, and event
// start/end times are decoded from the two shapes the API is known to emit
// (an inline ISO-8601 string or a nested {"time": ...} object).
package cronofy
