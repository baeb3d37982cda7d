package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/blob-processor/internal/config"
	"github.com/straye-as/blob-processor/internal/domain"
	"github.com/straye-as/blob-processor/internal/policy"
	"github.com/straye-as/blob-processor/internal/storage"
	"go.uber.org/zap"
)

// SweepResult summarizes one sweep run
type SweepResult struct {
	RunID     uuid.UUID
	StartedAt time.Time
	Duration  time.Duration
	Listed    int
	Picked    int
	Processed int
	Failed    int
}

// SweepService finds input blobs that have no processed output yet and
// runs them through the processor. It backfills notifications that were
// lost or failed.
type SweepService struct {
	cfg       config.ProcessorConfig
	account   string
	gateway   storage.Gateway
	processor *ProcessorService
	logger    *zap.Logger
}

// NewSweepService creates a new SweepService for a single storage account
func NewSweepService(
	cfg config.ProcessorConfig,
	account string,
	gateway storage.Gateway,
	processor *ProcessorService,
	logger *zap.Logger,
) *SweepService {
	return &SweepService{
		cfg:       cfg,
		account:   account,
		gateway:   gateway,
		processor: processor,
		logger:    logger,
	}
}

// Sweep lists the input container and processes every CSV blob whose
// output is missing. Per-blob failures are counted, not returned.
func (s *SweepService) Sweep(ctx context.Context) (*SweepResult, error) {
	result := &SweepResult{RunID: uuid.New(), StartedAt: time.Now()}
	log := s.logger.With(zap.String("sweep_run_id", result.RunID.String()))

	client, err := s.gateway.ResolveClient(s.account)
	if err != nil {
		return result, fmt.Errorf("failed to resolve storage client: %w", err)
	}

	blobs, err := client.List(ctx, s.cfg.InputContainer)
	if err != nil {
		return result, fmt.Errorf("failed to list input container %s: %w", s.cfg.InputContainer, err)
	}
	result.Listed = len(blobs)

	for _, name := range blobs {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(result.StartedAt)
			return result, err
		}
		if !policy.IsCSV(name) {
			continue
		}

		exists, err := client.Exists(ctx, s.cfg.OutputContainer, OutputName(name))
		if err != nil {
			log.Warn("Failed to check output blob", zap.String("blob", name), zap.Error(err))
			continue
		}
		if exists {
			continue
		}

		result.Picked++
		res := domain.ResolvedFrom(domain.SourceListing, s.cfg.InputContainer, name)
		outcome := s.processor.ProcessResolved(ctx, s.account, res)
		switch outcome.Status {
		case domain.OutcomeProcessed:
			result.Processed++
		case domain.OutcomeFailed:
			result.Failed++
		}
	}

	result.Duration = time.Since(result.StartedAt)
	log.Info("Sweep completed",
		zap.Int("listed", result.Listed),
		zap.Int("picked", result.Picked),
		zap.Int("processed", result.Processed),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}
