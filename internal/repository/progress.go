package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/shelfline/shelfline/internal/model"
)

// ProgressTx exposes the row-level operations the progress engine composes
// inside one transaction. Both the apply and the reverse path lock the
// affected goal rows first and in the same order, so two operations on the
// same owner never interleave and never deadlock each other.
type ProgressTx interface {
	// OpenGoalsForUpdate locks and returns the owner's goals that can
	// still count completions: active or completed, with a deadline after
	// asOf. Completed goals keep counting so that finishing more books
	// than the target accrues bonus. The deadline qualification is what
	// keeps a completion from counting against an already-overdue goal,
	// regardless of sweeper timing.
	OpenGoalsForUpdate(ctx context.Context, ownerID string, asOf time.Time) ([]*model.Goal, error)

	// GoalsLinkedToEntryForUpdate locks and returns the owner's goals that
	// hold a progress link for the reading entry.
	GoalsLinkedToEntryForUpdate(ctx context.Context, ownerID, readingEntryID string) ([]*model.Goal, error)

	// InsertLink inserts a progress link and reports whether a row was
	// actually written. A duplicate (goal, reading entry) pair is a benign
	// no-op and returns false, never an error.
	InsertLink(ctx context.Context, link *model.ProgressLink) (bool, error)

	// DeleteLinksForEntry removes the entry's links scoped to the given
	// goals and returns how many were deleted.
	DeleteLinksForEntry(ctx context.Context, readingEntryID string, goalIDs []string) (int64, error)

	// AddProgress applies delta to the progress counter of every listed
	// goal in one batched statement, clamping at zero and rederiving the
	// bonus counter from the new progress.
	AddProgress(ctx context.Context, goalIDs []string, delta int, now time.Time) error

	// MarkCompleted flips a goal to completed. completed_at records the
	// event's completion time; updated_at records the write, so a
	// backdated event never moves updated_at backwards.
	MarkCompleted(ctx context.Context, goalID string, completedAt, now time.Time) error

	// MarkActive reverts a goal to active and clears its completion stamp.
	MarkActive(ctx context.Context, goalID string, now time.Time) error
}

// ProgressRepository runs a unit of engine work as one transaction. The
// closure either commits as a whole or leaves no trace; partial application
// across goals is never observable.
type ProgressRepository interface {
	InTx(ctx context.Context, fn func(tx ProgressTx) error) error
}

type progressRepository struct {
	db     *sqlx.DB
	driver string
}

func NewProgressRepository(db *sqlx.DB) ProgressRepository {
	return &progressRepository{db: db, driver: db.DriverName()}
}

func (r *progressRepository) InTx(ctx context.Context, fn func(tx ProgressTx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin progress tx: %w", classify(err))
	}
	defer tx.Rollback()

	err = fn(&progressTx{tx: tx, driver: r.driver})
	if err != nil {
		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("commit progress tx: %w", classify(err))
	}

	return nil
}

type progressTx struct {
	tx     *sqlx.Tx
	driver string
}

// lockingClause returns the row-locking suffix for the given driver.
// SQLite has no FOR UPDATE; its single-writer transactions already
// serialize concurrent mutation of the same rows.
func lockingClause(driver string) string {
	if driver == "pgx" {
		return " FOR UPDATE"
	}
	return ""
}

// greatestFunc returns the scalar max function name: GREATEST on postgres,
// two-argument MAX on sqlite.
func greatestFunc(driver string) string {
	if driver == "pgx" {
		return "GREATEST"
	}
	return "MAX"
}

func (t *progressTx) OpenGoalsForUpdate(ctx context.Context, ownerID string, asOf time.Time) ([]*model.Goal, error) {
	var goals []*model.Goal
	query := `SELECT * FROM goals
	          WHERE owner_id = $1 AND status != $2 AND deadline_utc > $3
	          ORDER BY id` + lockingClause(t.driver)

	err := t.tx.SelectContext(ctx, &goals, query, ownerID, model.GoalStatusExpired, asOf)
	if err != nil {
		return nil, fmt.Errorf("lock open goals for owner %s: %w", ownerID, classify(err))
	}

	return goals, nil
}

func (t *progressTx) GoalsLinkedToEntryForUpdate(ctx context.Context, ownerID, readingEntryID string) ([]*model.Goal, error) {
	var goals []*model.Goal
	query := `SELECT g.* FROM goals g
	          JOIN progress_links pl ON pl.goal_id = g.id
	          WHERE pl.reading_entry_id = $1 AND g.owner_id = $2
	          ORDER BY g.id`
	if t.driver == "pgx" {
		query += " FOR UPDATE OF g"
	}

	err := t.tx.SelectContext(ctx, &goals, query, readingEntryID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("lock goals linked to entry %s: %w", readingEntryID, classify(err))
	}

	return goals, nil
}

func (t *progressTx) InsertLink(ctx context.Context, link *model.ProgressLink) (bool, error) {
	query := `INSERT INTO progress_links (goal_id, reading_entry_id, book_id, applied_at, applied_from_status)
	          VALUES ($1, $2, $3, $4, $5)
	          ON CONFLICT (goal_id, reading_entry_id) DO NOTHING`

	result, err := t.tx.ExecContext(ctx, query,
		link.GoalID,
		link.ReadingEntryID,
		link.BookID,
		link.AppliedAt,
		link.AppliedFromStatus,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert link goal %s entry %s: %w", link.GoalID, link.ReadingEntryID, classify(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows > 0, nil
}

func (t *progressTx) DeleteLinksForEntry(ctx context.Context, readingEntryID string, goalIDs []string) (int64, error) {
	if len(goalIDs) == 0 {
		return 0, nil
	}

	query, args, err := sqlx.In(
		`DELETE FROM progress_links WHERE reading_entry_id = ? AND goal_id IN (?)`,
		readingEntryID, goalIDs,
	)
	if err != nil {
		return 0, fmt.Errorf("build link delete for entry %s: %w", readingEntryID, err)
	}

	result, err := t.tx.ExecContext(ctx, t.tx.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("delete links for entry %s: %w", readingEntryID, classify(err))
	}

	return result.RowsAffected()
}

func (t *progressTx) AddProgress(ctx context.Context, goalIDs []string, delta int, now time.Time) error {
	if len(goalIDs) == 0 {
		return nil
	}

	// Both postgres and sqlite evaluate the right-hand sides against the
	// old row, so the derived bonus sees the same pre-update progress as
	// the clamped progress expression.
	stmt := fmt.Sprintf(`UPDATE goals
	          SET progress_count = %[1]s(0, progress_count + ?),
	              bonus_count = %[1]s(0, progress_count + ? - target_count),
	              updated_at = ?
	          WHERE id IN (?)`, greatestFunc(t.driver))

	query, args, err := sqlx.In(stmt, delta, delta, now, goalIDs)
	if err != nil {
		return fmt.Errorf("build progress delta update: %w", err)
	}

	_, err = t.tx.ExecContext(ctx, t.tx.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("apply progress delta %d: %w", delta, classify(err))
	}

	return nil
}

func (t *progressTx) MarkCompleted(ctx context.Context, goalID string, completedAt, now time.Time) error {
	query := `UPDATE goals SET status = $1, completed_at = $2, updated_at = $3 WHERE id = $4`

	_, err := t.tx.ExecContext(ctx, query, model.GoalStatusCompleted, completedAt, now, goalID)
	if err != nil {
		return fmt.Errorf("mark goal %s completed: %w", goalID, classify(err))
	}

	return nil
}

func (t *progressTx) MarkActive(ctx context.Context, goalID string, now time.Time) error {
	query := `UPDATE goals SET status = $1, completed_at = NULL, updated_at = $2 WHERE id = $3`

	_, err := t.tx.ExecContext(ctx, query, model.GoalStatusActive, now, goalID)
	if err != nil {
		return fmt.Errorf("mark goal %s active: %w", goalID, classify(err))
	}

	return nil
}
