package model

import (
	"time"
)

// ProgressLink records that one finished reading entry was counted toward
// one goal. Its presence is the sole source of truth for the goal's
// counters: inserting it applies a completion, deleting it reverses one.
type ProgressLink struct {
	GoalID            string    `db:"goal_id"`
	ReadingEntryID    string    `db:"reading_entry_id"`
	BookID            string    `db:"book_id"`
	AppliedAt         time.Time `db:"applied_at"`
	AppliedFromStatus string    `db:"applied_from_status"`
}
