/**
 * @description
 * Calendar arithmetic for subscription expiries. Month addition is an explicit
 * function here because Go's time.AddDate normalizes month-end overflow
 * forward (Jan 31 + 1 month = Mar 2/3), which is not what a subscriber who
 * paid for "one month" expects. This server clamps instead: the day of month
 * is capped to the last valid day of the target month, so Jan 31 + 1 month is
 * Feb 28 (Feb 29 in leap years). The same rule is applied for every extension.
 */
package domain

import "time"

// AddMonths returns t moved forward by the given number of months, clamping
// the day of month to the length of the target month. months must be
// positive; the clock time and location of t are preserved.
func AddMonths(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	// Anchor on the first of the month so AddDate cannot overflow, then
	// restore the day with the clamp applied.
	first := time.Date(year, month, 1, hour, min, sec, t.Nanosecond(), t.Location())
	shifted := first.AddDate(0, months, 0)

	if last := daysInMonth(shifted.Year(), shifted.Month()); day > last {
		day = last
	}
	return time.Date(shifted.Year(), shifted.Month(), day, hour, min, sec, t.Nanosecond(), t.Location())
}

// ExtendedExpiry computes the new expiry for an extension of the given number
// of months. Remaining time stacks: if the current expiry is still in the
// future it is the base of the extension; a missing or lapsed expiry restarts
// the clock from now.
func ExtendedExpiry(current *time.Time, months int, now time.Time) time.Time {
	base := now
	if current != nil && current.After(now) {
		base = *current
	}
	return AddMonths(base, months)
}

func daysInMonth(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
