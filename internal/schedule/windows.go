package schedule

import "time"

// BuildWindows derives the concrete business-hour windows for each day of the
// horizon. Windows are computed in the given location so that daylight-saving
// transitions land on the correct wall-clock hours, then returned as UTC
// instants.
//
// Day 0 starts no earlier than the reference time, so a request made
// mid-afternoon does not offer slots in the past. A day whose window clips to
// nothing (start >= end) is returned as an empty period rather than dropped,
// so the caller always gets exactly horizonDays windows.
func BuildWindows(reference time.Time, horizonDays, startHour, endHour int, loc *time.Location) []Period {
	if horizonDays <= 0 {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}

	local := reference.In(loc)
	windows := make([]Period, 0, horizonDays)

	for day := 0; day < horizonDays; day++ {
		// time.Date normalizes day overflow, which keeps month and DST
		// boundaries correct without manual arithmetic.
		start := time.Date(local.Year(), local.Month(), local.Day()+day, startHour, 0, 0, 0, loc)
		end := time.Date(local.Year(), local.Month(), local.Day()+day, endHour, 0, 0, 0, loc)

		if day == 0 && reference.After(start) {
			start = reference.In(loc)
		}
		if start.After(end) {
			start = end
		}

		windows = append(windows, Period{Start: start.UTC(), End: end.UTC()})
	}

	return windows
}
