package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shelfline/shelfline/internal/model"
	"github.com/shelfline/shelfline/internal/repository"
	"github.com/shelfline/shelfline/internal/validation"
)

// GoalView is a read-model snapshot of a goal. Status is the effective
// status at read time: an active row whose deadline already passed reads
// as expired no matter how far behind the sweeper is.
type GoalView struct {
	Goal            model.Goal
	Status          string
	PercentComplete int
}

// GoalDetail adds the goal's progress links for audit: which reading
// entries (and books) were counted, when, and from which status.
type GoalDetail struct {
	GoalView
	Links []*model.ProgressLink
}

// GoalQueryService is the read path. It never mutates storage.
type GoalQueryService struct {
	repo repository.GoalRepository
	now  func() time.Time
}

func NewGoalQueryService(repo repository.GoalRepository) *GoalQueryService {
	return &GoalQueryService{
		repo: repo,
		now:  time.Now,
	}
}

func (s *GoalQueryService) Goal(ctx context.Context, ownerID, goalID string) (*GoalView, error) {
	goal, err := s.repo.ByID(ctx, ownerID, goalID)
	if err != nil {
		return nil, err
	}

	view := s.view(goal)
	return &view, nil
}

func (s *GoalQueryService) GoalDetail(ctx context.Context, ownerID, goalID string) (*GoalDetail, error) {
	goal, err := s.repo.ByID(ctx, ownerID, goalID)
	if err != nil {
		return nil, err
	}

	links, err := s.repo.LinksForGoal(ctx, goal.ID)
	if err != nil {
		return nil, fmt.Errorf("goal detail %s owner %s: %w", goalID, ownerID, err)
	}

	return &GoalDetail{
		GoalView: s.view(goal),
		Links:    links,
	}, nil
}

// Goals lists the owner's goals, optionally filtered by effective status,
// sorted active first, then completed, then expired, then by deadline.
func (s *GoalQueryService) Goals(ctx context.Context, ownerID, statusFilter string, limit, offset int) ([]GoalView, error) {
	if err := validation.ValidateStatusFilter(statusFilter); err != nil {
		return nil, err
	}

	goals, err := s.repo.Goals(ctx, ownerID, repository.ListQuery{
		Status: statusFilter,
		Limit:  limit,
		Offset: offset,
		AsOf:   s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	views := make([]GoalView, 0, len(goals))
	for _, goal := range goals {
		views = append(views, s.view(goal))
	}

	return views, nil
}

func (s *GoalQueryService) view(goal *model.Goal) GoalView {
	return GoalView{
		Goal:            *goal,
		Status:          goal.EffectiveStatus(s.now().UTC()),
		PercentComplete: goal.PercentComplete(),
	}
}
