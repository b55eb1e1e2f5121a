package schedule

import "time"

// Period is a half-open time interval [Start, End). It represents busy
// periods, free periods, and business-hour windows alike.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns the length of the period.
func (p Period) Duration() time.Duration {
	return p.End.Sub(p.Start)
}

// IsEmpty reports whether the period covers no time at all. Empty periods
// are valid for windows (a day fully clipped away) but are never emitted as
// free periods.
func (p Period) IsEmpty() bool {
	return !p.Start.Before(p.End)
}

// Overlaps reports whether p and other share any instant.
func (p Period) Overlaps(other Period) bool {
	return p.Start.Before(other.End) && other.Start.Before(p.End)
}

// Clip returns p constrained to the window. The second return value is false
// if p lies fully outside the window.
func (p Period) Clip(window Period) (Period, bool) {
	if !p.Overlaps(window) {
		return Period{}, false
	}
	clipped := p
	if clipped.Start.Before(window.Start) {
		clipped.Start = window.Start
	}
	if clipped.End.After(window.End) {
		clipped.End = window.End
	}
	return clipped, true
}
