package validation

import (
	"errors"
	"strings"
	"time"
)

const (
	MaxGoalNameLength = 120
	MinTargetCount    = 1
	MaxTargetCount    = 9999
)

var (
	ErrNameRequired     = errors.New("goal name is required")
	ErrNameTooLong      = errors.New("goal name is too long (max 120 characters)")
	ErrTargetOutOfRange = errors.New("target count must be between 1 and 9999")
	ErrDurationTooShort = errors.New("duration must be at least one day")
	ErrUnknownTimezone  = errors.New("unknown timezone")
	ErrBadStatusFilter  = errors.New("invalid status filter")
)

// ValidateGoalName validates a goal name for create and update
func ValidateGoalName(name string) error {
	trimmed := strings.TrimSpace(name)

	if trimmed == "" {
		return ErrNameRequired
	}

	if len(trimmed) > MaxGoalNameLength {
		return ErrNameTooLong
	}

	return nil
}

func ValidateTargetCount(count int) error {
	if count < MinTargetCount || count > MaxTargetCount {
		return ErrTargetOutOfRange
	}
	return nil
}

func ValidateDurationDays(days int) error {
	if days < 1 {
		return ErrDurationTooShort
	}
	return nil
}

// ValidateTimezone checks the value against the IANA zone database
func ValidateTimezone(tz string) error {
	if tz == "" {
		return ErrUnknownTimezone
	}
	_, err := time.LoadLocation(tz)
	if err != nil {
		return ErrUnknownTimezone
	}
	return nil
}

// ValidateStatusFilter accepts the three goal statuses or empty (no filter)
func ValidateStatusFilter(status string) error {
	switch status {
	case "", "active", "completed", "expired":
		return nil
	}
	return ErrBadStatusFilter
}
