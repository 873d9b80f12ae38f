package program

import "time"

const dateLayout = "2006-01-02"

func ParseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

func FormatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

// TodayUTC is the current UTC calendar date at midnight.
func TodayUTC() time.Time {
	return truncateToDate(time.Now().UTC())
}

func truncateToDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// daysBetween counts whole days from a to b, UTC calendar.
func daysBetween(a, b time.Time) int {
	return int(truncateToDate(b).Sub(truncateToDate(a)).Hours() / 24)
}
