package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // goqu dialect
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // goqu dialect
	"github.com/jmoiron/sqlx"

	"github.com/shelfline/shelfline/internal/model"
)

// ListQuery narrows and pages the owner's goal list. Status filters on the
// effective status as of AsOf, so a stale "active" row past its deadline is
// listed as expired even before the sweeper touches it.
type ListQuery struct {
	Status string
	Limit  int
	Offset int
	AsOf   time.Time
}

type GoalRepository interface {
	Create(ctx context.Context, goal *model.Goal) error
	ByID(ctx context.Context, ownerID, goalID string) (*model.Goal, error)
	Goals(ctx context.Context, ownerID string, q ListQuery) ([]*model.Goal, error)
	Update(ctx context.Context, goal *model.Goal) error
	UpdateActive(ctx context.Context, goal *model.Goal, now time.Time) error
	Delete(ctx context.Context, ownerID, goalID string) error
	LinksForGoal(ctx context.Context, goalID string) ([]*model.ProgressLink, error)
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

type goalRepository struct {
	db      *sqlx.DB
	dialect goqu.DialectWrapper
}

func NewGoalRepository(db *sqlx.DB) GoalRepository {
	return &goalRepository{
		db:      db,
		dialect: goqu.Dialect(goquDialect(db.DriverName())),
	}
}

// goquDialect maps sql driver names to goqu dialect names
func goquDialect(driver string) string {
	switch driver {
	case "pgx":
		return "postgres"
	case "sqlite":
		return "sqlite3"
	}
	return driver
}

func (r *goalRepository) Create(ctx context.Context, goal *model.Goal) error {
	query := `INSERT INTO goals (id, owner_id, name, target_count, progress_count, bonus_count,
	                             status, deadline_utc, deadline_timezone, completed_at, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.ExecContext(ctx, query,
		goal.ID,
		goal.OwnerID,
		goal.Name,
		goal.TargetCount,
		goal.ProgressCount,
		goal.BonusCount,
		goal.Status,
		goal.DeadlineUTC,
		goal.DeadlineTimezone,
		goal.CompletedAt,
		goal.CreatedAt,
		goal.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create goal %s: %w", goal.ID, classify(err))
	}

	return nil
}

func (r *goalRepository) ByID(ctx context.Context, ownerID, goalID string) (*model.Goal, error) {
	goal := &model.Goal{}
	query := `SELECT * FROM goals WHERE id = $1 AND owner_id = $2`

	err := r.db.GetContext(ctx, goal, query, goalID, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGoalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get goal %s: %w", goalID, classify(err))
	}

	return goal, nil
}

// Goals lists the owner's goals sorted active first, then completed, then
// expired, with the deadline breaking ties. The ranking uses the same
// deadline qualification as the engine, so a goal the sweeper has not yet
// flipped still sorts (and filters) as expired.
func (r *goalRepository) Goals(ctx context.Context, ownerID string, q ListQuery) ([]*model.Goal, error) {
	rank := goqu.Case().
		When(goqu.And(
			goqu.C("status").Eq(model.GoalStatusActive),
			goqu.C("deadline_utc").Gt(q.AsOf),
		), 0).
		When(goqu.C("status").Eq(model.GoalStatusCompleted), 1).
		Else(2)

	ds := r.dialect.From("goals").
		Where(goqu.C("owner_id").Eq(ownerID)).
		Order(rank.Asc(), goqu.C("deadline_utc").Asc())

	switch q.Status {
	case model.GoalStatusActive:
		ds = ds.Where(
			goqu.C("status").Eq(model.GoalStatusActive),
			goqu.C("deadline_utc").Gt(q.AsOf),
		)
	case model.GoalStatusCompleted:
		ds = ds.Where(goqu.C("status").Eq(model.GoalStatusCompleted))
	case model.GoalStatusExpired:
		ds = ds.Where(goqu.Or(
			goqu.C("status").Eq(model.GoalStatusExpired),
			goqu.And(
				goqu.C("status").Eq(model.GoalStatusActive),
				goqu.C("deadline_utc").Lte(q.AsOf),
			),
		))
	}

	if q.Limit > 0 {
		offset := q.Offset
		if offset < 0 {
			offset = 0
		}
		ds = ds.Limit(uint(q.Limit)).Offset(uint(offset))
	}

	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build goal list query: %w", err)
	}

	var goals []*model.Goal
	err = r.db.SelectContext(ctx, &goals, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list goals for owner %s: %w", ownerID, classify(err))
	}

	return goals, nil
}

// Update writes the caller's snapshot back unconditionally, counters
// included. It is a store primitive for maintenance paths; live edits go
// through UpdateActive, which never trusts snapshot counters.
func (r *goalRepository) Update(ctx context.Context, goal *model.Goal) error {
	query := `UPDATE goals
	          SET name = $1, target_count = $2, progress_count = $3, bonus_count = $4,
	              status = $5, deadline_utc = $6, completed_at = $7, updated_at = $8
	          WHERE id = $9 AND owner_id = $10`

	result, err := r.db.ExecContext(ctx, query,
		goal.Name,
		goal.TargetCount,
		goal.ProgressCount,
		goal.BonusCount,
		goal.Status,
		goal.DeadlineUTC,
		goal.CompletedAt,
		goal.UpdatedAt,
		goal.ID,
		goal.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("update goal %s: %w", goal.ID, classify(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrGoalNotFound
	}

	return nil
}

// UpdateActive writes an edit (name, target, deadline) to a goal that is
// still effectively active as of now. The caller's counter snapshot is
// never written back: bonus, status and completed_at are derived from the
// live progress counter inside the statement, so progress committed by a
// concurrent completion or reversal between the caller's read and this
// write survives intact. Lowering the target to or below the live
// progress completes the goal in the same statement. Returns
// ErrGoalNotEditable when the goal exists but the active/deadline guard
// no longer holds.
func (r *goalRepository) UpdateActive(ctx context.Context, goal *model.Goal, now time.Time) error {
	query := fmt.Sprintf(`UPDATE goals
	          SET name = $1,
	              target_count = $2,
	              deadline_utc = $3,
	              bonus_count = %[1]s(0, progress_count - $4),
	              status = CASE WHEN progress_count >= $5 THEN $6 ELSE status END,
	              completed_at = CASE WHEN progress_count >= $7 THEN $8 ELSE completed_at END,
	              updated_at = $9
	          WHERE id = $10 AND owner_id = $11 AND status = $12 AND deadline_utc > $13`,
		greatestFunc(r.db.DriverName()))

	result, err := r.db.ExecContext(ctx, query,
		goal.Name,
		goal.TargetCount,
		goal.DeadlineUTC,
		goal.TargetCount,
		goal.TargetCount,
		model.GoalStatusCompleted,
		goal.TargetCount,
		now,
		now,
		goal.ID,
		goal.OwnerID,
		model.GoalStatusActive,
		now,
	)
	if err != nil {
		return fmt.Errorf("update active goal %s: %w", goal.ID, classify(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		if _, err := r.ByID(ctx, goal.OwnerID, goal.ID); err != nil {
			if errors.Is(err, ErrGoalNotFound) {
				return ErrGoalNotFound
			}
			return err
		}
		return ErrGoalNotEditable
	}

	return nil
}

// Delete removes a goal in any status; its progress links go with it via
// the foreign key cascade.
func (r *goalRepository) Delete(ctx context.Context, ownerID, goalID string) error {
	query := `DELETE FROM goals WHERE id = $1 AND owner_id = $2`

	result, err := r.db.ExecContext(ctx, query, goalID, ownerID)
	if err != nil {
		return fmt.Errorf("delete goal %s: %w", goalID, classify(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrGoalNotFound
	}

	return nil
}

func (r *goalRepository) LinksForGoal(ctx context.Context, goalID string) ([]*model.ProgressLink, error) {
	var links []*model.ProgressLink
	query := `SELECT * FROM progress_links WHERE goal_id = $1 ORDER BY applied_at ASC, reading_entry_id ASC`

	err := r.db.SelectContext(ctx, &links, query, goalID)
	if err != nil {
		return nil, fmt.Errorf("list links for goal %s: %w", goalID, classify(err))
	}

	return links, nil
}

// ExpireOverdue flips every active goal whose deadline has passed to
// expired in one short statement. It only touches rows that were genuinely
// overdue at execution time, so it is safe to run concurrently with live
// progress updates.
func (r *goalRepository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	query := `UPDATE goals
	          SET status = $1, updated_at = $2
	          WHERE status = $3 AND deadline_utc < $4`

	result, err := r.db.ExecContext(ctx, query, model.GoalStatusExpired, now, model.GoalStatusActive, now)
	if err != nil {
		return 0, fmt.Errorf("expire overdue goals: %w", classify(err))
	}

	return result.RowsAffected()
}
