package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/shelfline/shelfline/internal/db"
	"github.com/shelfline/shelfline/internal/model"
	"github.com/shelfline/shelfline/internal/repository"
)

type testEnv struct {
	db       *sqlx.DB
	goals    repository.GoalRepository
	progress repository.ProgressRepository

	goalSvc  *GoalService
	querySvc *GoalQueryService
	engine   *ProgressEngine
	sweeper  *Sweeper
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "goals.db") + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	database, err := db.Init("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = database.Close()
	})

	require.NoError(t, db.RunMigrations(database.DB, "sqlite"))

	goals := repository.NewGoalRepository(database)
	progress := repository.NewProgressRepository(database)

	return &testEnv{
		db:       database,
		goals:    goals,
		progress: progress,
		goalSvc:  NewGoalService(goals),
		querySvc: NewGoalQueryService(goals),
		engine:   NewProgressEngine(progress, 3),
		sweeper:  NewSweeper(goals, time.Minute),
	}
}

// createGoal makes an active goal through the service with a 30-day UTC
// deadline and the given target.
func (env *testEnv) createGoal(t *testing.T, ownerID string, target int) *model.Goal {
	t.Helper()

	goal, err := env.goalSvc.Create(context.Background(), ownerID, "yearly reading pile", target, 30, "UTC")
	require.NoError(t, err)
	return goal
}

// forceDeadline rewrites a goal's deadline directly in the store, letting
// tests move a goal into its past without waiting.
func (env *testEnv) forceDeadline(t *testing.T, ownerID, goalID string, deadline time.Time) {
	t.Helper()

	goal, err := env.goals.ByID(context.Background(), ownerID, goalID)
	require.NoError(t, err)
	goal.DeadlineUTC = deadline
	require.NoError(t, env.goals.Update(context.Background(), goal))
}

func (env *testEnv) goal(t *testing.T, ownerID, goalID string) *model.Goal {
	t.Helper()

	goal, err := env.goals.ByID(context.Background(), ownerID, goalID)
	require.NoError(t, err)
	return goal
}
