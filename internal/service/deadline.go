package service

import (
	"fmt"
	"time"

	"github.com/shelfline/shelfline/internal/validation"
)

// Deadline turns a creation instant, a duration in days and an IANA
// timezone into the absolute UTC deadline: end of day (23:59:59.999) of
// now + durationDays in that timezone. The timezone anchors the goal at
// creation and never changes afterwards.
func Deadline(now time.Time, durationDays int, timezone string) (time.Time, error) {
	if err := validation.ValidateDurationDays(durationDays); err != nil {
		return time.Time{}, err
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", validation.ErrUnknownTimezone, timezone)
	}

	local := now.In(loc).AddDate(0, 0, durationDays)
	endOfDay := time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, 999_000_000, loc)

	return endOfDay.UTC(), nil
}

// ExtendDeadline pushes a stored deadline out by N days using plain UTC
// arithmetic. Extension deliberately does not recompute end-of-day from
// "now": the goal's timezone anchor is fixed at creation.
func ExtendDeadline(deadline time.Time, days int) (time.Time, error) {
	if err := validation.ValidateDurationDays(days); err != nil {
		return time.Time{}, err
	}

	return deadline.Add(time.Duration(days) * 24 * time.Hour), nil
}
