package program

import (
	"time"

	"github.com/pulsecoach/backend/internal/schedule"
)

// daySeq adapts a []Day to the schedule accessor.
type daySeq []Day

func (d daySeq) Len() int { return len(d) }

func (d daySeq) HasContent(i int) bool {
	return len(d[i].Blocks) > 0 || d[i].Notes != ""
}

func (d daySeq) Active(i int) bool { return d[i].Active }

func (d daySeq) SetActive(i int, active bool) { d[i].Active = active }

// NormalizeCadence activates exactly daysPerWeek content-bearing days per
// 7-day window starting at start, honoring preferred weekday names, and
// flips the remaining candidates inactive. Inactive days keep their
// markdown content for the lighter-duty fallback view. Idempotent.
func NormalizeCadence(days []Day, start time.Time, daysPerWeek int, preferredWeekdays []string) []Day {
	schedule.EnforceDaysPerWeek(daySeq(days), start, daysPerWeek, schedule.ParseWeekdays(preferredWeekdays))
	return days
}

// TrimCadence only resolves windows with more than daysPerWeek active
// days, flipping the excess inactive. It never activates days. Idempotent.
func TrimCadence(days []Day, start time.Time, daysPerWeek int, preferredWeekdays []string) []Day {
	schedule.EnforceCadence(daySeq(days), start, daysPerWeek, schedule.ParseWeekdays(preferredWeekdays))
	return days
}
