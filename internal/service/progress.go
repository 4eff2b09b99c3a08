package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shelfline/shelfline/internal/model"
	"github.com/shelfline/shelfline/internal/repository"
	"github.com/shelfline/shelfline/internal/retry"
)

var (
	ErrMissingOwner        = errors.New("owner id is required")
	ErrMissingReadingEntry = errors.New("reading entry id is required")
)

// StatusChange reports a goal whose lifecycle state moved as a result of
// one progress event.
type StatusChange struct {
	GoalID string
	From   string
	To     string
}

// ProgressEngine applies finish/unfinish transitions from the reading
// tracker to every affected goal of the owner, transactionally. The
// tracker delivers events at least once; idempotency comes from the
// progress link uniqueness constraint, not from any engine-side state,
// so duplicates are inherently safe without external locking.
type ProgressEngine struct {
	repo        repository.ProgressRepository
	maxAttempts int
	now         func() time.Time
}

func NewProgressEngine(repo repository.ProgressRepository, maxRetryAttempts int) *ProgressEngine {
	if maxRetryAttempts < 1 {
		maxRetryAttempts = retry.DefaultMaxAttempts
	}
	return &ProgressEngine{
		repo:        repo,
		maxAttempts: maxRetryAttempts,
		now:         time.Now,
	}
}

// OnBookCompleted counts one finished book toward every non-expired,
// non-overdue goal of the owner. Completed goals keep counting so books
// finished beyond the target accrue bonus. Goals already holding a link
// for this reading entry (duplicate delivery) are skipped entirely. All
// affected goals commit together; on a transient store failure the whole
// operation retries from scratch. Returns the goals whose status changed.
func (e *ProgressEngine) OnBookCompleted(ctx context.Context, ownerID, readingEntryID, bookID string, completedAt time.Time) ([]StatusChange, error) {
	if ownerID == "" {
		return nil, ErrMissingOwner
	}
	if readingEntryID == "" {
		return nil, ErrMissingReadingEntry
	}

	var changes []StatusChange

	err := retry.DoN(ctx, e.maxAttempts, func(ctx context.Context) error {
		changes = nil

		return e.repo.InTx(ctx, func(tx repository.ProgressTx) error {
			goals, err := tx.OpenGoalsForUpdate(ctx, ownerID, completedAt)
			if err != nil {
				return err
			}

			counted := make(map[string]bool, len(goals))
			var countedIDs []string
			appliedAt := e.now().UTC()

			for _, goal := range goals {
				inserted, err := tx.InsertLink(ctx, &model.ProgressLink{
					GoalID:            goal.ID,
					ReadingEntryID:    readingEntryID,
					BookID:            bookID,
					AppliedAt:         appliedAt,
					AppliedFromStatus: goal.Status,
				})
				if err != nil {
					return err
				}
				if !inserted {
					continue // duplicate delivery, leave counters untouched
				}
				counted[goal.ID] = true
				countedIDs = append(countedIDs, goal.ID)
			}

			if len(countedIDs) == 0 {
				return nil
			}

			err = tx.AddProgress(ctx, countedIDs, 1, appliedAt)
			if err != nil {
				return err
			}

			for _, goal := range goals {
				if !counted[goal.ID] {
					continue
				}
				if goal.ProgressCount+1 >= goal.TargetCount && goal.Status == model.GoalStatusActive {
					err = tx.MarkCompleted(ctx, goal.ID, completedAt, appliedAt)
					if err != nil {
						return err
					}
					changes = append(changes, StatusChange{
						GoalID: goal.ID,
						From:   model.GoalStatusActive,
						To:     model.GoalStatusCompleted,
					})
				}
			}

			return nil
		})
	}, repository.IsTransient)
	if err != nil {
		return nil, fmt.Errorf("apply completion owner=%s entry=%s book=%s: %w", ownerID, readingEntryID, bookID, err)
	}

	return changes, nil
}

// OnBookUncompleted reverses a completion: every goal linked to the
// reading entry loses its link and one progress count. A completed goal
// dropping back below target reverts to active only while its deadline
// still lies ahead; past the deadline the completed record freezes as
// history. Expired goals never revive. Reversing an event that was never
// applied is a no-op.
func (e *ProgressEngine) OnBookUncompleted(ctx context.Context, ownerID, readingEntryID string) ([]StatusChange, error) {
	if ownerID == "" {
		return nil, ErrMissingOwner
	}
	if readingEntryID == "" {
		return nil, ErrMissingReadingEntry
	}

	var changes []StatusChange

	err := retry.DoN(ctx, e.maxAttempts, func(ctx context.Context) error {
		changes = nil

		return e.repo.InTx(ctx, func(tx repository.ProgressTx) error {
			goals, err := tx.GoalsLinkedToEntryForUpdate(ctx, ownerID, readingEntryID)
			if err != nil {
				return err
			}
			if len(goals) == 0 {
				return nil
			}

			goalIDs := make([]string, 0, len(goals))
			for _, goal := range goals {
				goalIDs = append(goalIDs, goal.ID)
			}

			now := e.now().UTC()

			_, err = tx.DeleteLinksForEntry(ctx, readingEntryID, goalIDs)
			if err != nil {
				return err
			}

			err = tx.AddProgress(ctx, goalIDs, -1, now)
			if err != nil {
				return err
			}

			for _, goal := range goals {
				newProgress := goal.ProgressCount - 1
				if newProgress < 0 {
					newProgress = 0
				}
				if goal.Status == model.GoalStatusCompleted && newProgress < goal.TargetCount && goal.DeadlineUTC.After(now) {
					err = tx.MarkActive(ctx, goal.ID, now)
					if err != nil {
						return err
					}
					changes = append(changes, StatusChange{
						GoalID: goal.ID,
						From:   model.GoalStatusCompleted,
						To:     model.GoalStatusActive,
					})
				}
			}

			return nil
		})
	}, repository.IsTransient)
	if err != nil {
		return nil, fmt.Errorf("reverse completion owner=%s entry=%s: %w", ownerID, readingEntryID, err)
	}

	return changes, nil
}
