package jobs

import (
	"context"
	"time"

	"github.com/straye-as/blob-processor/internal/service"
	"go.uber.org/zap"
)

// SweepJobName is the name of the unprocessed-blob sweep job
const SweepJobName = "sweep"

// Sweeper finds and processes input blobs without output
type Sweeper interface {
	Sweep(ctx context.Context) (*service.SweepResult, error)
}

// SweepObserver records finished sweep runs
type SweepObserver interface {
	ObserveSweep(picked int, err error)
}

// SweepJob runs a sweep with a timeout
type SweepJob struct {
	sweeper  Sweeper
	observer SweepObserver
	logger   *zap.Logger
	timeout  time.Duration
}

// NewSweepJob creates a new sweep job. observer may be nil.
func NewSweepJob(sweeper Sweeper, observer SweepObserver, logger *zap.Logger, timeout time.Duration) *SweepJob {
	return &SweepJob{
		sweeper:  sweeper,
		observer: observer,
		logger:   logger,
		timeout:  timeout,
	}
}

// Run executes one sweep. Called by the scheduler according to the cron expression.
func (j *SweepJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	start := time.Now()
	result, err := j.sweeper.Sweep(ctx)

	picked := 0
	if result != nil {
		picked = result.Picked
	}
	if j.observer != nil {
		j.observer.ObserveSweep(picked, err)
	}

	if err != nil {
		j.logger.Error("sweep job failed",
			zap.Int("picked", picked),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return
	}

	j.logger.Info("sweep job completed",
		zap.String("run_id", result.RunID.String()),
		zap.Int("listed", result.Listed),
		zap.Int("picked", result.Picked),
		zap.Int("processed", result.Processed),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", time.Since(start)))
}

// RegisterSweepJob registers the sweep job with the scheduler.
// If runOnStartup is true, one sweep also runs immediately in a background
// goroutine so it doesn't block server startup.
func RegisterSweepJob(scheduler *Scheduler, sweeper Sweeper, observer SweepObserver, logger *zap.Logger, cronExpr string, timeout time.Duration, runOnStartup bool) error {
	job := NewSweepJob(sweeper, observer, logger, timeout)

	if err := scheduler.AddJob(SweepJobName, cronExpr, job.Run); err != nil {
		return err
	}

	if runOnStartup {
		go job.Run()
	}
	return nil
}
