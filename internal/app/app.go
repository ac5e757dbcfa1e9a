package app

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/platewise/platewise-backend/internal/db"
	"github.com/platewise/platewise-backend/internal/jobs"
	"github.com/platewise/platewise-backend/internal/pkg/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Repos    Repos
	Services Services
	Worker   *jobs.Worker
	cancel   context.CancelFunc
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	reposet := wireRepos(theDB, log)

	serviceset, err := wireServices(theDB, log, cfg, reposet)
	if err != nil {
		log.Sync()
		return nil, err
	}

	analyzer := jobs.NewAnalyzer(theDB, log, reposet.Meal, reposet.FoodItem, reposet.AnalysisJob,
		serviceset.MealState, serviceset.Vision, serviceset.Bucket,
		jobs.AnalyzerConfig{
			MaxAttempts:  cfg.JobMaxAttempts,
			SignedURLTTL: cfg.SignedURLTTL,
		})
	worker := jobs.NewWorker(theDB, log, reposet.AnalysisJob, analyzer, jobs.WorkerConfig{
		Workers:      cfg.WorkerCount,
		PollInterval: cfg.PollInterval,
		MaxAttempts:  cfg.JobMaxAttempts,
		RetryDelay:   cfg.JobRetryDelay,
		StaleRunning: cfg.JobStaleRunning,
	})

	handlerset := wireHandlers(log, serviceset, reposet)
	router := wireRouter(handlerset)

	return &App{
		Log:      log,
		DB:       theDB,
		Router:   router,
		Cfg:      cfg,
		Repos:    reposet,
		Services: serviceset,
		Worker:   worker,
	}, nil
}

func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	if a.Services.Bus != nil {
		// Replays redis status messages into the local hub so SSE clients
		// on this instance see transitions committed anywhere.
		if err := a.Services.Bus.StartForwarder(ctx, a.Services.Hub.Broadcast); err != nil {
			a.Log.Warn("Status forwarder unavailable", "error", err)
		}
	}
	a.Worker.Start(ctx)
}

func (a *App) Stop() {
	if a == nil || a.cancel == nil {
		return
	}
	a.Worker.Stop()
	a.cancel()
	a.cancel = nil
	if a.Services.Bus != nil {
		if err := a.Services.Bus.Close(); err != nil {
			a.Log.Warn("Status bus close failed", "error", err)
		}
	}
}
