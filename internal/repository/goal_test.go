package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfline/shelfline/internal/model"
)

func Test_GoalRepository_CreateAndByID(t *testing.T) {
	database := newTestDB(t)
	repo := NewGoalRepository(database)
	ctx := context.Background()

	deadline := time.Now().UTC().Add(30 * 24 * time.Hour).Truncate(time.Second)
	goal := makeGoal("owner-1", 12, deadline)
	goal.DeadlineTimezone = "Europe/Berlin"

	require.NoError(t, repo.Create(ctx, goal))

	got, err := repo.ByID(ctx, "owner-1", goal.ID)
	require.NoError(t, err)

	assert.Equal(t, goal.ID, got.ID)
	assert.Equal(t, "owner-1", got.OwnerID)
	assert.Equal(t, 12, got.TargetCount)
	assert.Equal(t, 0, got.ProgressCount)
	assert.Equal(t, 0, got.BonusCount)
	assert.Equal(t, model.GoalStatusActive, got.Status)
	assert.Equal(t, "Europe/Berlin", got.DeadlineTimezone)
	assert.True(t, got.DeadlineUTC.Equal(deadline), "got %s, want %s", got.DeadlineUTC, deadline)
	assert.Nil(t, got.CompletedAt)
}

func Test_GoalRepository_ByID_ScopedToOwner(t *testing.T) {
	database := newTestDB(t)
	repo := NewGoalRepository(database)
	ctx := context.Background()

	goal := makeGoal("owner-1", 5, time.Now().UTC().Add(time.Hour))
	require.NoError(t, repo.Create(ctx, goal))

	_, err := repo.ByID(ctx, "someone-else", goal.ID)
	assert.ErrorIs(t, err, ErrGoalNotFound)

	_, err = repo.ByID(ctx, "owner-1", "no-such-goal")
	assert.ErrorIs(t, err, ErrGoalNotFound)
}

func Test_GoalRepository_Update_NotFound(t *testing.T) {
	database := newTestDB(t)
	repo := NewGoalRepository(database)

	goal := makeGoal("owner-1", 5, time.Now().UTC().Add(time.Hour))

	err := repo.Update(context.Background(), goal)
	assert.ErrorIs(t, err, ErrGoalNotFound)
}

func Test_GoalRepository_Delete_CascadesLinks(t *testing.T) {
	database := newTestDB(t)
	repo := NewGoalRepository(database)
	progress := NewProgressRepository(database)
	ctx := context.Background()

	goal := makeGoal("owner-1", 5, time.Now().UTC().Add(time.Hour))
	require.NoError(t, repo.Create(ctx, goal))

	err := progress.InTx(ctx, func(tx ProgressTx) error {
		inserted, err := tx.InsertLink(ctx, &model.ProgressLink{
			GoalID:            goal.ID,
			ReadingEntryID:    "entry-1",
			BookID:            "book-1",
			AppliedAt:         time.Now().UTC(),
			AppliedFromStatus: model.GoalStatusActive,
		})
		require.True(t, inserted)
		return err
	})
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, "owner-1", goal.ID))

	var count int
	require.NoError(t, database.Get(&count, `SELECT COUNT(*) FROM progress_links WHERE goal_id = $1`, goal.ID))
	assert.Equal(t, 0, count)

	err = repo.Delete(ctx, "owner-1", goal.ID)
	assert.ErrorIs(t, err, ErrGoalNotFound)
}

func Test_GoalRepository_Goals_OrderingAndFiltering(t *testing.T) {
	database := newTestDB(t)
	repo := NewGoalRepository(database)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)

	activeGoal := makeGoal("owner-1", 5, now.Add(48*time.Hour))
	activeGoal.Name = "active"

	staleActive := makeGoal("owner-1", 5, now.Add(-time.Hour))
	staleActive.Name = "stale active" // sweeper has not flipped it yet

	completed := makeGoal("owner-1", 5, now.Add(24*time.Hour))
	completed.Name = "completed"
	completed.Status = model.GoalStatusCompleted
	completedAt := now.Add(-2 * time.Hour)
	completed.CompletedAt = &completedAt
	completed.ProgressCount = 5

	expired := makeGoal("owner-1", 5, now.Add(-48*time.Hour))
	expired.Name = "expired"
	expired.Status = model.GoalStatusExpired

	otherOwner := makeGoal("owner-2", 5, now.Add(48*time.Hour))

	for _, g := range []*model.Goal{expired, staleActive, completed, activeGoal, otherOwner} {
		require.NoError(t, repo.Create(ctx, g))
	}

	all, err := repo.Goals(ctx, "owner-1", ListQuery{AsOf: now})
	require.NoError(t, err)
	require.Len(t, all, 4)

	// Active first, then completed, then expired (stale active ranks as
	// expired); deadline breaks ties.
	assert.Equal(t, "active", all[0].Name)
	assert.Equal(t, "completed", all[1].Name)
	assert.Equal(t, "expired", all[2].Name)
	assert.Equal(t, "stale active", all[3].Name)

	active, err := repo.Goals(ctx, "owner-1", ListQuery{Status: model.GoalStatusActive, AsOf: now})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "active", active[0].Name)

	// The expired filter picks up stale active rows too.
	exp, err := repo.Goals(ctx, "owner-1", ListQuery{Status: model.GoalStatusExpired, AsOf: now})
	require.NoError(t, err)
	require.Len(t, exp, 2)

	paged, err := repo.Goals(ctx, "owner-1", ListQuery{AsOf: now, Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 2)
	assert.Equal(t, "completed", paged[0].Name)
	assert.Equal(t, "expired", paged[1].Name)

	// A negative offset clamps to zero instead of wrapping.
	clamped, err := repo.Goals(ctx, "owner-1", ListQuery{AsOf: now, Limit: 2, Offset: -3})
	require.NoError(t, err)
	require.Len(t, clamped, 2)
	assert.Equal(t, "active", clamped[0].Name)
}

func Test_GoalRepository_UpdateActive_DerivesCountersFromLiveRow(t *testing.T) {
	database := newTestDB(t)
	repo := NewGoalRepository(database)
	progress := NewProgressRepository(database)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	goal := makeGoal("owner-1", 5, now.Add(time.Hour))
	require.NoError(t, repo.Create(ctx, goal))

	// Another writer commits progress after the caller took its snapshot;
	// the snapshot still carries zero counters.
	err := progress.InTx(ctx, func(tx ProgressTx) error {
		if _, err := tx.InsertLink(ctx, link(goal.ID, "entry-1")); err != nil {
			return err
		}
		return tx.AddProgress(ctx, []string{goal.ID}, 1, now)
	})
	require.NoError(t, err)

	stale := *goal
	stale.Name = "renamed"
	require.NoError(t, repo.UpdateActive(ctx, &stale, now))

	got, err := repo.ByID(ctx, "owner-1", goal.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, 1, got.ProgressCount)
	assert.Equal(t, 0, got.BonusCount)
	assert.Equal(t, model.GoalStatusActive, got.Status)
}

func Test_GoalRepository_UpdateActive_LoweredTargetCompletes(t *testing.T) {
	database := newTestDB(t)
	repo := NewGoalRepository(database)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	goal := makeGoal("owner-1", 5, now.Add(time.Hour))
	goal.ProgressCount = 4
	require.NoError(t, repo.Create(ctx, goal))

	goal.TargetCount = 3
	require.NoError(t, repo.UpdateActive(ctx, goal, now))

	got, err := repo.ByID(ctx, "owner-1", goal.ID)
	require.NoError(t, err)
	assert.Equal(t, model.GoalStatusCompleted, got.Status)
	assert.Equal(t, 4, got.ProgressCount)
	assert.Equal(t, 1, got.BonusCount)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(now))
}

func Test_GoalRepository_UpdateActive_Guards(t *testing.T) {
	database := newTestDB(t)
	repo := NewGoalRepository(database)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)

	completed := makeGoal("owner-1", 5, now.Add(time.Hour))
	completed.Status = model.GoalStatusCompleted
	completedAt := now
	completed.CompletedAt = &completedAt
	require.NoError(t, repo.Create(ctx, completed))

	err := repo.UpdateActive(ctx, completed, now)
	assert.ErrorIs(t, err, ErrGoalNotEditable)

	overdue := makeGoal("owner-1", 5, now.Add(-time.Hour))
	require.NoError(t, repo.Create(ctx, overdue))

	err = repo.UpdateActive(ctx, overdue, now)
	assert.ErrorIs(t, err, ErrGoalNotEditable)

	missing := makeGoal("owner-1", 5, now.Add(time.Hour))
	err = repo.UpdateActive(ctx, missing, now)
	assert.ErrorIs(t, err, ErrGoalNotFound)
}

func Test_GoalRepository_ExpireOverdue(t *testing.T) {
	database := newTestDB(t)
	repo := NewGoalRepository(database)
	ctx := context.Background()

	now := time.Now().UTC()

	overdue := makeGoal("owner-1", 5, now.Add(-time.Minute))
	current := makeGoal("owner-1", 5, now.Add(time.Hour))
	completed := makeGoal("owner-1", 5, now.Add(-time.Hour))
	completed.Status = model.GoalStatusCompleted
	completedAt := now.Add(-2 * time.Hour)
	completed.CompletedAt = &completedAt

	for _, g := range []*model.Goal{overdue, current, completed} {
		require.NoError(t, repo.Create(ctx, g))
	}

	count, err := repo.ExpireOverdue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	got, err := repo.ByID(ctx, "owner-1", overdue.ID)
	require.NoError(t, err)
	assert.Equal(t, model.GoalStatusExpired, got.Status)

	got, err = repo.ByID(ctx, "owner-1", current.ID)
	require.NoError(t, err)
	assert.Equal(t, model.GoalStatusActive, got.Status)

	// Completed goals past their deadline are history, not overdue.
	got, err = repo.ByID(ctx, "owner-1", completed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.GoalStatusCompleted, got.Status)

	count, err = repo.ExpireOverdue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func Test_GoalRepository_LinksForGoal(t *testing.T) {
	database := newTestDB(t)
	repo := NewGoalRepository(database)
	progress := NewProgressRepository(database)
	ctx := context.Background()

	goal := makeGoal("owner-1", 5, time.Now().UTC().Add(time.Hour))
	require.NoError(t, repo.Create(ctx, goal))

	base := time.Now().UTC().Truncate(time.Second)
	err := progress.InTx(ctx, func(tx ProgressTx) error {
		for i, entry := range []string{"entry-a", "entry-b"} {
			_, err := tx.InsertLink(ctx, &model.ProgressLink{
				GoalID:            goal.ID,
				ReadingEntryID:    entry,
				BookID:            "book-" + entry,
				AppliedAt:         base.Add(time.Duration(i) * time.Second),
				AppliedFromStatus: model.GoalStatusActive,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	links, err := repo.LinksForGoal(ctx, goal.ID)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, "entry-a", links[0].ReadingEntryID)
	assert.Equal(t, "book-entry-a", links[0].BookID)
	assert.Equal(t, model.GoalStatusActive, links[0].AppliedFromStatus)
	assert.Equal(t, "entry-b", links[1].ReadingEntryID)
}
