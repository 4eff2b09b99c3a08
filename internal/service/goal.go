package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shelfline/shelfline/internal/model"
	"github.com/shelfline/shelfline/internal/repository"
	"github.com/shelfline/shelfline/internal/validation"
)

var (
	ErrEditNotAllowed = errors.New("goal can no longer be edited")
	ErrDeadlineInPast = errors.New("deadline resolves to the past")
)

// GoalService owns goal lifecycle outside of progress events: creation,
// edits and deletion. Edits are restricted to effectively active goals;
// deletion works in any status and cascades the goal's progress links.
type GoalService struct {
	repo repository.GoalRepository
	now  func() time.Time
}

func NewGoalService(repo repository.GoalRepository) *GoalService {
	return &GoalService{
		repo: repo,
		now:  time.Now,
	}
}

func (s *GoalService) Create(ctx context.Context, ownerID, name string, targetCount, durationDays int, timezone string) (*model.Goal, error) {
	if ownerID == "" {
		return nil, ErrMissingOwner
	}
	if err := validation.ValidateGoalName(name); err != nil {
		return nil, err
	}
	if err := validation.ValidateTargetCount(targetCount); err != nil {
		return nil, err
	}
	if err := validation.ValidateTimezone(timezone); err != nil {
		return nil, err
	}

	now := s.now().UTC()

	deadline, err := Deadline(now, durationDays, timezone)
	if err != nil {
		return nil, err
	}
	if !deadline.After(now) {
		return nil, ErrDeadlineInPast
	}

	goal := &model.Goal{
		ID:               uuid.New().String(),
		OwnerID:          ownerID,
		Name:             strings.TrimSpace(name),
		TargetCount:      targetCount,
		ProgressCount:    0,
		BonusCount:       0,
		Status:           model.GoalStatusActive,
		DeadlineUTC:      deadline,
		DeadlineTimezone: timezone,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = s.repo.Create(ctx, goal)
	if err != nil {
		return nil, fmt.Errorf("create goal for owner %s: %w", ownerID, err)
	}

	return goal, nil
}

// UpdateGoalInput carries the optional edits; nil fields stay unchanged.
type UpdateGoalInput struct {
	Name               *string
	TargetCount        *int
	ExtendDeadlineDays *int
}

// Update edits an active goal. Lowering the target to or below the current
// progress completes the goal immediately, recomputed the same way a
// completion event would. Non-active goals (including active rows already
// past their deadline) are rejected with ErrEditNotAllowed. The write
// derives counters and status from the live row, so an edit can never
// overwrite progress committed by the engine after the read below.
func (s *GoalService) Update(ctx context.Context, ownerID, goalID string, input UpdateGoalInput) (*model.Goal, error) {
	goal, err := s.repo.ByID(ctx, ownerID, goalID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if goal.EffectiveStatus(now) != model.GoalStatusActive {
		return nil, fmt.Errorf("goal %s owner %s: %w", goalID, ownerID, ErrEditNotAllowed)
	}

	if input.Name != nil {
		if err = validation.ValidateGoalName(*input.Name); err != nil {
			return nil, err
		}
		goal.Name = strings.TrimSpace(*input.Name)
	}

	if input.TargetCount != nil {
		if err = validation.ValidateTargetCount(*input.TargetCount); err != nil {
			return nil, err
		}
		goal.TargetCount = *input.TargetCount
	}

	if input.ExtendDeadlineDays != nil {
		extended, err := ExtendDeadline(goal.DeadlineUTC, *input.ExtendDeadlineDays)
		if err != nil {
			return nil, err
		}
		goal.DeadlineUTC = extended
	}

	err = s.repo.UpdateActive(ctx, goal, now)
	if errors.Is(err, repository.ErrGoalNotEditable) {
		// The goal stopped being active between the read and the write.
		return nil, fmt.Errorf("goal %s owner %s: %w", goalID, ownerID, ErrEditNotAllowed)
	}
	if err != nil {
		return nil, fmt.Errorf("update goal %s owner %s: %w", goalID, ownerID, err)
	}

	return s.repo.ByID(ctx, ownerID, goalID)
}

func (s *GoalService) Delete(ctx context.Context, ownerID, goalID string) error {
	err := s.repo.Delete(ctx, ownerID, goalID)
	if err != nil {
		return fmt.Errorf("delete goal %s owner %s: %w", goalID, ownerID, err)
	}

	return nil
}
