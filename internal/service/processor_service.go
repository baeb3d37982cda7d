package service

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"time"
	"unicode/utf8"

	"github.com/straye-as/blob-processor/internal/config"
	"github.com/straye-as/blob-processor/internal/domain"
	"github.com/straye-as/blob-processor/internal/logger"
	"github.com/straye-as/blob-processor/internal/metrics"
	"github.com/straye-as/blob-processor/internal/policy"
	"github.com/straye-as/blob-processor/internal/resolver"
	"github.com/straye-as/blob-processor/internal/storage"
	"go.uber.org/zap"
)

// OutputPrefix is prepended to the input basename to name the output blob
const OutputPrefix = "processed_"

// Transformer rewrites CSV content
type Transformer interface {
	Transform(data []byte) ([]byte, error)
}

// Recorder receives processing metrics
type Recorder interface {
	EventReceived()
	ObserveOutcome(o domain.Outcome)
	ObserveStage(stage string, d time.Duration)
	AddDownloaded(n int)
	AddUploaded(n int)
}

// ProcessorService turns blob notifications into processed output blobs
type ProcessorService struct {
	cfg         config.ProcessorConfig
	filter      *policy.Filter
	gateway     storage.Gateway
	transformer Transformer
	recorder    Recorder
	logger      *zap.Logger
}

// NewProcessorService creates a new ProcessorService. recorder may be nil.
func NewProcessorService(
	cfg config.ProcessorConfig,
	gateway storage.Gateway,
	transformer Transformer,
	recorder Recorder,
	logger *zap.Logger,
) *ProcessorService {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &ProcessorService{
		cfg:         cfg,
		filter:      policy.NewFilter(cfg),
		gateway:     gateway,
		transformer: transformer,
		recorder:    recorder,
		logger:      logger,
	}
}

// OutputName returns the output blob name for an input blob path.
// Directory components of the input are dropped.
func OutputName(blobPath string) string {
	return OutputPrefix + path.Base(blobPath)
}

// Handle processes a single notification. Failures are logged and
// reported in the returned Outcome; they are never returned as errors so
// the trigger does not redeliver.
func (s *ProcessorService) Handle(ctx context.Context, n domain.Notification) domain.Outcome {
	s.recorder.EventReceived()

	log := logger.WithEvent(s.logger, n)
	log.Info("Event received", zap.String("subject", n.Subject), zap.String("url", n.URL))

	outcome := s.handle(ctx, n, log)
	s.recorder.ObserveOutcome(outcome)
	return outcome
}

func (s *ProcessorService) handle(ctx context.Context, n domain.Notification, log *zap.Logger) domain.Outcome {
	if n.URL == "" {
		log.Error("Event does not contain url", zap.String("subject", n.Subject))
		return domain.Outcome{
			Status: domain.OutcomeFailed,
			Reason: domain.ReasonMissingURL,
			Err:    domain.ErrMissingURL,
		}
	}

	// The subject carries the location on its own; the url only matters
	// for the fallback and the account name.
	u, parseErr := url.Parse(n.URL)
	if parseErr != nil {
		u = nil
	}
	res := resolver.Resolve(n.Subject, u)
	if !res.Resolved() {
		log.Error("Could not determine container/blob from event",
			zap.String("subject", n.Subject),
			zap.String("url", n.URL),
			zap.NamedError("urlError", parseErr),
		)
		err := domain.ErrUnresolved
		if parseErr != nil {
			err = fmt.Errorf("%w: %w", domain.ErrUnresolved, parseErr)
		}
		return domain.Outcome{
			Status: domain.OutcomeFailed,
			Reason: string(domain.ReasonUnresolved),
			Err:    err,
		}
	}

	accountName := resolver.AccountNameFromRaw(n.URL)
	if u != nil {
		accountName = resolver.AccountName(u)
	} else {
		log.Warn("Event url is not a valid URL, using raw host for account",
			zap.String("url", n.URL), zap.Error(parseErr))
	}

	return s.process(ctx, accountName, res, log)
}

// ProcessResolved runs the policy filter and, when accepted, the
// download/transform/upload steps for an already resolved location.
func (s *ProcessorService) ProcessResolved(ctx context.Context, accountName string, res domain.Resolution) domain.Outcome {
	outcome := s.process(ctx, accountName, res, s.logger)
	s.recorder.ObserveOutcome(outcome)
	return outcome
}

func (s *ProcessorService) process(ctx context.Context, accountName string, res domain.Resolution, log *zap.Logger) domain.Outcome {
	log = logger.WithLocation(log, res.Location).With(
		zap.String("account", accountName),
		zap.Stringer("resolved_from", res.Source),
	)

	decision := s.filter.Evaluate(res)
	if !decision.Accepted {
		log.Info("Ignored: "+decision.Message, zap.String("reason", string(decision.Reason)))
		return domain.Outcome{
			Status: domain.OutcomeSkipped,
			Reason: string(decision.Reason),
			Input:  res.Location,
		}
	}

	input := res.Location
	output := domain.Location{Container: s.cfg.OutputContainer, BlobPath: OutputName(input.BlobPath)}
	failed := func(reason string, err error) domain.Outcome {
		return domain.Outcome{
			Status: domain.OutcomeFailed,
			Reason: reason,
			Input:  input,
			Output: output,
			Err:    err,
		}
	}

	log.Info("Downloading blob")
	start := time.Now()
	client, err := s.gateway.ResolveClient(accountName)
	if err != nil {
		log.Error("Error creating blob client", zap.Error(err))
		return failed(domain.ReasonDownloadFailed, fmt.Errorf("%w: %w", domain.ErrDownload, err))
	}

	data, err := client.Download(ctx, input.Container, input.BlobPath)
	if err == nil && !utf8.Valid(data) {
		err = fmt.Errorf("blob is not valid UTF-8")
	}
	s.recorder.ObserveStage(metrics.StageDownload, time.Since(start))
	if err != nil {
		log.Error("Error downloading blob", zap.Error(err))
		return failed(domain.ReasonDownloadFailed, fmt.Errorf("%w: %w", domain.ErrDownload, err))
	}
	s.recorder.AddDownloaded(len(data))

	start = time.Now()
	out, err := s.transformer.Transform(data)
	s.recorder.ObserveStage(metrics.StageTransform, time.Since(start))
	if err != nil {
		log.Error("Error processing CSV", zap.Error(err))
		return failed(domain.ReasonTransformFailed, fmt.Errorf("%w: %w", domain.ErrTransform, err))
	}

	start = time.Now()
	err = client.Upload(ctx, output.Container, output.BlobPath, out, storage.ContentTypeCSV)
	s.recorder.ObserveStage(metrics.StageUpload, time.Since(start))
	if err != nil {
		log.Error("Error uploading result",
			zap.String("output_container", output.Container),
			zap.String("output_blob", output.BlobPath),
			zap.Error(err),
		)
		return failed(domain.ReasonUploadFailed, fmt.Errorf("%w: %w", domain.ErrUpload, err))
	}
	s.recorder.AddUploaded(len(out))

	log.Info("Processed OK",
		zap.String("output_container", output.Container),
		zap.String("output_blob", output.BlobPath),
		zap.Int("input_bytes", len(data)),
		zap.Int("output_bytes", len(out)),
	)

	return domain.Outcome{
		Status: domain.OutcomeProcessed,
		Reason: string(domain.ReasonAccepted),
		Input:  input,
		Output: output,
	}
}

type nopRecorder struct{}

func (nopRecorder) EventReceived()                     {}
func (nopRecorder) ObserveOutcome(domain.Outcome)      {}
func (nopRecorder) ObserveStage(string, time.Duration) {}
func (nopRecorder) AddDownloaded(int)                  {}
func (nopRecorder) AddUploaded(int)                    {}
