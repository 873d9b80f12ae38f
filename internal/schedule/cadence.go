// Package schedule enforces "N active days per 7-day window" over a day
// sequence. One selection core serves both call sites: filling a freshly
// generated sequence up to the cadence, and trimming a client-edited
// sequence that exceeds it. Both operations are idempotent.
package schedule

import (
	"math"
	"sort"
	"strings"
	"time"
)

// Days is the accessor a day sequence must expose. Index 0 is the day at
// the window start date; indices advance one calendar day at a time.
type Days interface {
	Len() int
	// HasContent reports whether day i carries generated content and is
	// therefore a candidate for staying active.
	HasContent(i int) bool
	Active(i int) bool
	SetActive(i int, active bool)
}

// EnforceDaysPerWeek partitions the sequence into non-overlapping 7-day
// windows starting at start (the final window may be shorter) and, within
// each window, activates exactly daysPerWeek content-bearing days where
// possible: preferred weekdays first, in preference order, then an
// even-spread selection over the remaining candidates. Candidates not
// selected are marked inactive but keep their content.
func EnforceDaysPerWeek(d Days, start time.Time, daysPerWeek int, preferred []time.Weekday) {
	enforce(d, start, daysPerWeek, preferred, false)
}

// EnforceCadence only resolves excess: windows with more than daysPerWeek
// active days get trimmed down to the cadence by the same
// preferred-then-natural-order keep set. It never activates days.
func EnforceCadence(d Days, start time.Time, daysPerWeek int, preferred []time.Weekday) {
	enforce(d, start, daysPerWeek, preferred, true)
}

func enforce(d Days, start time.Time, daysPerWeek int, preferred []time.Weekday, trimOnly bool) {
	if daysPerWeek < 1 {
		daysPerWeek = 1
	}
	if daysPerWeek > 7 {
		daysPerWeek = 7
	}
	start = start.UTC()

	n := d.Len()
	for ws := 0; ws < n; ws += 7 {
		we := ws + 7
		if we > n {
			we = n
		}

		var cands []int
		for i := ws; i < we; i++ {
			if trimOnly {
				if d.Active(i) {
					cands = append(cands, i)
				}
			} else if d.HasContent(i) {
				cands = append(cands, i)
			}
		}

		if trimOnly && len(cands) <= daysPerWeek {
			continue
		}

		keep := selectKeep(cands, daysPerWeek, preferred, func(i int) time.Weekday {
			return start.AddDate(0, 0, i).Weekday()
		})

		keepSet := make(map[int]bool, len(keep))
		for _, i := range keep {
			keepSet[i] = true
		}
		for _, i := range cands {
			if keepSet[i] {
				if !trimOnly {
					d.SetActive(i, true)
				}
			} else {
				d.SetActive(i, false)
			}
		}
	}
}

// selectKeep chooses up to k candidate indices: preferred weekdays first,
// in preference-array order, then an even spread over what remains.
func selectKeep(cands []int, k int, preferred []time.Weekday, weekdayOf func(int) time.Weekday) []int {
	if len(cands) <= k {
		return cands
	}

	keep := make([]int, 0, k)
	used := make(map[int]bool, k)

	for _, wd := range preferred {
		if len(keep) == k {
			break
		}
		for _, i := range cands {
			if !used[i] && weekdayOf(i) == wd {
				keep = append(keep, i)
				used[i] = true
				break
			}
		}
	}

	m := k - len(keep)
	if m > 0 {
		var rem []int
		for _, i := range cands {
			if !used[i] {
				rem = append(rem, i)
			}
		}
		for _, j := range spread(len(rem), m) {
			keep = append(keep, rem[j])
		}
	}

	sort.Ints(keep)
	return keep
}

// spread returns m positions evenly distributed over [0,n). Rounding
// collisions are deduplicated and topped up from the front.
func spread(n, m int) []int {
	if n <= 0 || m <= 0 {
		return nil
	}
	if m >= n {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	if m == 1 {
		return []int{n / 2}
	}

	picks := make([]int, 0, m)
	seen := make(map[int]bool, m)
	for i := 0; i < m; i++ {
		pos := int(math.Round(float64(i) * float64(n-1) / float64(m-1)))
		if !seen[pos] {
			seen[pos] = true
			picks = append(picks, pos)
		}
	}
	for pos := 0; pos < n && len(picks) < m; pos++ {
		if !seen[pos] {
			seen[pos] = true
			picks = append(picks, pos)
		}
	}
	sort.Ints(picks)
	return picks
}

// ParseWeekdays maps day names ("Mon", "Monday", case-insensitive) to
// time.Weekday, dropping anything unrecognized.
func ParseWeekdays(names []string) []time.Weekday {
	var out []time.Weekday
	for _, name := range names {
		key := strings.ToLower(strings.TrimSpace(name))
		if len(key) > 3 {
			key = key[:3]
		}
		switch key {
		case "sun":
			out = append(out, time.Sunday)
		case "mon":
			out = append(out, time.Monday)
		case "tue":
			out = append(out, time.Tuesday)
		case "wed":
			out = append(out, time.Wednesday)
		case "thu":
			out = append(out, time.Thursday)
		case "fri":
			out = append(out, time.Friday)
		case "sat":
			out = append(out, time.Saturday)
		}
	}
	return out
}
