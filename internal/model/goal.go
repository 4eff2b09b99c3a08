package model

import (
	"time"
)

const (
	GoalStatusActive    = "active"
	GoalStatusCompleted = "completed"
	GoalStatusExpired   = "expired"
)

type Goal struct {
	ID               string     `db:"id"`
	OwnerID          string     `db:"owner_id"`
	Name             string     `db:"name"`
	TargetCount      int        `db:"target_count"`
	ProgressCount    int        `db:"progress_count"`
	BonusCount       int        `db:"bonus_count"`
	Status           string     `db:"status"`
	DeadlineUTC      time.Time  `db:"deadline_utc"`
	DeadlineTimezone string     `db:"deadline_timezone"`
	CompletedAt      *time.Time `db:"completed_at"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
}

// EffectiveStatus reports an active goal whose deadline has already passed
// as expired, so reads never depend on how recently the sweeper ran.
func (g *Goal) EffectiveStatus(now time.Time) string {
	if g.Status == GoalStatusActive && !g.DeadlineUTC.After(now) {
		return GoalStatusExpired
	}
	return g.Status
}

// PercentComplete returns completion as a whole percentage, capped at 100.
// Books finished beyond the target show up in BonusCount instead.
func (g *Goal) PercentComplete() int {
	if g.TargetCount <= 0 {
		return 0
	}
	pct := g.ProgressCount * 100 / g.TargetCount
	if pct > 100 {
		pct = 100
	}
	return pct
}

// BonusFor derives the bonus counter. Bonus is never stored independently:
// it always equals max(0, progress - target).
func BonusFor(progress, target int) int {
	bonus := progress - target
	if bonus < 0 {
		return 0
	}
	return bonus
}
