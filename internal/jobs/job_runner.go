package jobs

import (
	"gpurental-backend/internal/config"
	"gpurental-backend/internal/logger"
	"gpurental-backend/internal/reconcile"
	"gpurental-backend/internal/repository"
)

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	store  *reconcile.Store
	repo   repository.RentalRepository
	config *config.Config
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(store *reconcile.Store, repo repository.RentalRepository, cfg *config.Config) *JobRunner {
	return &JobRunner{
		store:  store,
		repo:   repo,
		config: cfg,
	}
}

// Config exposes the configuration for schedule registration
func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// runWithRecovery wraps job execution with panic recovery
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
		}
	}()

	logger.Info("Starting job", "job", jobName)
	jobFunc()
	logger.Info("Job completed", "job", jobName)
}

// RunAllJobs runs every job once (for manual execution)
func (jr *JobRunner) RunAllJobs() {
	jr.ReconcileOpenRentals()
	jr.RepublishCanonical()
}
