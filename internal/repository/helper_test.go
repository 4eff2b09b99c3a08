package repository

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/shelfline/shelfline/internal/db"
	"github.com/shelfline/shelfline/internal/model"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "goals.db") + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	database, err := db.Init("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = database.Close()
	})

	require.NoError(t, db.RunMigrations(database.DB, "sqlite"))

	return database
}

// makeGoal builds an active goal with sane defaults; tests override what
// they care about.
func makeGoal(ownerID string, target int, deadline time.Time) *model.Goal {
	now := time.Now().UTC().Truncate(time.Second)
	return &model.Goal{
		ID:               uuid.New().String(),
		OwnerID:          ownerID,
		Name:             "read some books",
		TargetCount:      target,
		Status:           model.GoalStatusActive,
		DeadlineUTC:      deadline,
		DeadlineTimezone: "UTC",
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}
