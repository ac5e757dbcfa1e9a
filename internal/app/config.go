package app

import (
	"time"

	"github.com/platewise/platewise-backend/internal/pkg/logger"
	"github.com/platewise/platewise-backend/internal/utils"
)

type Config struct {
	Port            string
	WorkerCount     int
	PollInterval    time.Duration
	JobMaxAttempts  int
	JobRetryDelay   time.Duration
	JobStaleRunning time.Duration
	VisionTimeout   time.Duration
	SignedURLTTL    time.Duration
}

func LoadConfig(log *logger.Logger) Config {
	port := utils.GetEnv("PORT", "8080", log)
	workerCount := utils.GetEnvAsInt("JOB_WORKERS", 2, log)
	pollIntervalMS := utils.GetEnvAsInt("JOB_POLL_INTERVAL_MS", 1000, log)
	maxAttempts := utils.GetEnvAsInt("JOB_MAX_ATTEMPTS", 3, log)
	retryDelaySeconds := utils.GetEnvAsInt("JOB_RETRY_DELAY_SECONDS", 30, log)
	staleRunningSeconds := utils.GetEnvAsInt("JOB_STALE_RUNNING_SECONDS", 120, log)
	visionTimeoutSeconds := utils.GetEnvAsInt("VISION_TIMEOUT_SECONDS", 60, log)
	signedURLTTLSeconds := utils.GetEnvAsInt("SIGNED_URL_TTL_SECONDS", 900, log)
	return Config{
		Port:            port,
		WorkerCount:     workerCount,
		PollInterval:    time.Duration(pollIntervalMS) * time.Millisecond,
		JobMaxAttempts:  maxAttempts,
		JobRetryDelay:   time.Duration(retryDelaySeconds) * time.Second,
		JobStaleRunning: time.Duration(staleRunningSeconds) * time.Second,
		VisionTimeout:   time.Duration(visionTimeoutSeconds) * time.Second,
		SignedURLTTL:    time.Duration(signedURLTTLSeconds) * time.Second,
	}
}
