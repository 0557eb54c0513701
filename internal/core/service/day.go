package service

import "time"

// DayBounds returns the [start, end) UTC seconds of the local day containing t.
// Days spanning a DST change are 23 or 25 hours long.
func DayBounds(t time.Time, loc *time.Location) (int64, int64) {
	y, m, d := t.In(loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	end := time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	return start.Unix(), end.Unix()
}

// ParseDay reads a YYYY-MM-DD date as local midnight in loc.
func ParseDay(value string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(time.DateOnly, value, loc)
}
