package domain

import "time"

// LocalClock returns the hour and minute of now in loc.
func LocalClock(now time.Time, loc *time.Location) (hour, minute int) {
	if loc == nil {
		loc = time.UTC
	}
	lt := now.In(loc)
	return lt.Hour(), lt.Minute()
}

// DigestDue reports whether the user's digest fires at the given local
// hour and minute. Matching is exact to the minute; a missed minute is not
// caught up later.
func (u User) DigestDue(hour, minute int) bool {
	return u.Active && u.Hour == hour && u.Minute == minute
}
