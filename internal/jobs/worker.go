package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/platewise/platewise-backend/internal/pkg/logger"
	"github.com/platewise/platewise-backend/internal/repos"
	"github.com/platewise/platewise-backend/internal/types"
)

type WorkerConfig struct {
	Workers      int
	PollInterval time.Duration
	MaxAttempts  int
	RetryDelay   time.Duration
	StaleRunning time.Duration
}

// Worker runs a fixed pool of claim loops over the job table. The claim
// itself (SKIP LOCKED, attempt counting, stale-heartbeat reclaim) is the
// only coordination between workers; any number of instances can share
// the table.
type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     repos.AnalysisJobRepo
	analyzer *Analyzer
	cfg      WorkerConfig
	cancel   context.CancelFunc
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, repo repos.AnalysisJobRepo, analyzer *Analyzer, cfg WorkerConfig) *Worker {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 1 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 30 * time.Second
	}
	if cfg.StaleRunning <= 0 {
		cfg.StaleRunning = 2 * time.Minute
	}
	return &Worker{
		db:       db,
		log:      baseLog.With("component", "JobWorker"),
		repo:     repo,
		analyzer: analyzer,
		cfg:      cfg,
	}
}

func (w *Worker) Start(ctx context.Context) {
	if w == nil || w.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.cfg.Workers; i++ {
		worker := i
		g.Go(func() error {
			w.loop(gctx, worker)
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		w.log.Info("Job workers stopped")
	}()
	w.log.Info("Job workers started", "workers", w.cfg.Workers, "poll_interval", w.cfg.PollInterval.String())
}

func (w *Worker) Stop() {
	if w != nil && w.cancel != nil {
		w.cancel()
	}
}

func (w *Worker) loop(ctx context.Context, worker int) {
	log := w.log.With("worker", worker)
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, err := w.repo.ClaimNextRunnable(ctx, w.db, w.cfg.MaxAttempts, w.cfg.RetryDelay, w.cfg.StaleRunning)
			if err != nil {
				log.Warn("ClaimNextRunnable failed", "error", err)
				continue
			}
			if job == nil {
				continue
			}
			w.run(ctx, log, job)
		}
	}
}

// run executes one claimed job with panic containment: a handler panic
// marks the job failed instead of taking the worker down. A background
// ticker keeps heartbeat_at fresh for as long as the job runs, so the
// stale-running reclaim in ClaimNextRunnable only fires for workers that
// actually died, not for long vision calls.
func (w *Worker) run(ctx context.Context, log *logger.Logger, job *types.AnalysisJob) {
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go w.heartbeat(hbCtx, log, job.ID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("Job handler panic", "job_id", job.ID, "panic", r)
			_ = w.repo.UpdateFields(ctx, nil, job.ID, map[string]interface{}{
				"status":        types.JobStatusFailed,
				"last_error":    fmt.Sprintf("panic: %v", r),
				"last_error_at": time.Now(),
				"attempts":      w.cfg.MaxAttempts,
			})
		}
	}()
	w.analyzer.Run(ctx, job)
}

func (w *Worker) heartbeat(ctx context.Context, log *logger.Logger, jobID uuid.UUID) {
	// Three beats per stale window keeps one missed beat harmless.
	interval := w.cfg.StaleRunning / 3
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.repo.Heartbeat(ctx, nil, jobID); err != nil {
				log.Warn("Heartbeat failed", "job_id", jobID, "error", err)
			}
		}
	}
}
