package app

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/shelfline/shelfline/internal/config"
	"github.com/shelfline/shelfline/internal/db"
	"github.com/shelfline/shelfline/internal/repository"
	"github.com/shelfline/shelfline/internal/service"
)

type App struct {
	Cfg *config.Config
	DB  *sqlx.DB

	GoalService    *service.GoalService
	QueryService   *service.GoalQueryService
	ProgressEngine *service.ProgressEngine
	Sweeper        *service.Sweeper
}

func New(cfg *config.Config) (*App, error) {
	// Initialize database
	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %v", err)
	}

	// Run database migrations
	err = db.RunMigrations(database.DB, cfg.DBDriver)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %v", err)
	}

	// Repositories
	goalRepository := repository.NewGoalRepository(database)
	progressRepository := repository.NewProgressRepository(database)

	// Services
	goalService := service.NewGoalService(goalRepository)
	queryService := service.NewGoalQueryService(goalRepository)
	progressEngine := service.NewProgressEngine(progressRepository, cfg.RetryMaxAttempts)
	sweeper := service.NewSweeper(goalRepository, cfg.SweepInterval)

	return &App{
		Cfg:            cfg,
		DB:             database,
		GoalService:    goalService,
		QueryService:   queryService,
		ProgressEngine: progressEngine,
		Sweeper:        sweeper,
	}, nil
}

func (a *App) Close() error {
	return db.Close(a.DB)
}
