package cronofy

import (
	"encoding/json"
	"fmt"
	"time"
)

// Token is a provider token grant with the expiry already normalized to a
// UTC instant.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// APIError is a non-2xx response from the Cronofy API. The orchestrator
// inspects StatusCode to map 401 onto a forced refresh.
type APIError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("cronofy: unexpected status %d: %s", e.StatusCode, e.Body)
}

// EventTime is a start or end timestamp as returned by the events endpoint.
// The API emits two shapes for timed events:
//
//	"start": "2026-03-02T10:00:00Z"
//	"start": {"time": "2026-03-02T10:00:00Z", "tzid": "Etc/UTC"}
//
// All-day events carry only a {"date": ...} object and do not decode to an
// instant; callers treat those as unparseable and skip them.
type EventTime struct {
	Time  time.Time
	Valid bool
}

// UnmarshalJSON accepts both known shapes. Unrecognized or date-only values
// leave Valid false rather than failing the whole response.
func (et *EventTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		et.set(s)
		return nil
	}

	var obj struct {
		Time string `json:"time"`
		Date string `json:"date"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		// Unknown shape; the event is skipped, not fatal.
		et.Valid = false
		return nil
	}
	et.set(obj.Time)
	return nil
}

func (et *EventTime) set(value string) {
	if value == "" {
		et.Valid = false
		return
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, value); err == nil {
			et.Time = ts.UTC()
			et.Valid = true
			return
		}
	}
	et.Valid = false
}

// Event is a single raw event record from the events endpoint. Only the
// fields the availability engine consumes are decoded.
type Event struct {
	Summary string    `json:"summary"`
	Start   EventTime `json:"start"`
	End     EventTime `json:"end"`
}

// eventsResponse is the envelope of GET /v1/events.
type eventsResponse struct {
	Events []Event `json:"events"`
}

// accountResponse is the envelope of GET /v1/account.
type accountResponse struct {
	Account struct {
		AccountID string `json:"account_id"`
		Email     string `json:"email"`
	} `json:"account"`
}
