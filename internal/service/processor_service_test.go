package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/straye-as/blob-processor/internal/config"
	"github.com/straye-as/blob-processor/internal/domain"
	"github.com/straye-as/blob-processor/internal/service"
	"github.com/straye-as/blob-processor/internal/storage"
	"github.com/straye-as/blob-processor/internal/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testSubject = "/blobServices/default/containers/input/blobs/2024/data.csv"
	testURL     = "https://acct.blob.core.windows.net/input/2024/data.csv"
)

// memoryGateway is an in-memory storage.Gateway that records every call
type memoryGateway struct {
	blobs       map[string][]byte
	accounts    []string
	downloads   int
	uploads     int
	contentType string
	resolveErr  error
	downloadErr error
	uploadErr   error
}

func newMemoryGateway() *memoryGateway {
	return &memoryGateway{blobs: map[string][]byte{}}
}

func (g *memoryGateway) Mode() string { return "memory" }

func (g *memoryGateway) ResolveClient(accountName string) (storage.Client, error) {
	g.accounts = append(g.accounts, accountName)
	if g.resolveErr != nil {
		return nil, g.resolveErr
	}
	return g, nil
}

func (g *memoryGateway) Download(_ context.Context, container, blobPath string) ([]byte, error) {
	g.downloads++
	if g.downloadErr != nil {
		return nil, g.downloadErr
	}
	data, ok := g.blobs[container+"/"+blobPath]
	if !ok {
		return nil, errors.New("blob not found")
	}
	return data, nil
}

func (g *memoryGateway) Upload(_ context.Context, container, blobName string, content []byte, contentType string) error {
	g.uploads++
	if g.uploadErr != nil {
		return g.uploadErr
	}
	g.blobs[container+"/"+blobName] = content
	g.contentType = contentType
	return nil
}

func (g *memoryGateway) List(_ context.Context, container string) ([]string, error) {
	var names []string
	prefix := container + "/"
	for key := range g.blobs {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			names = append(names, key[len(prefix):])
		}
	}
	return names, nil
}

func (g *memoryGateway) Exists(_ context.Context, container, blobName string) (bool, error) {
	_, ok := g.blobs[container+"/"+blobName]
	return ok, nil
}

func (g *memoryGateway) storageCalls() int {
	return len(g.accounts) + g.downloads + g.uploads
}

type recordingRecorder struct {
	received   int
	outcomes   []domain.Outcome
	stages     []string
	downloaded int
	uploaded   int
}

func (r *recordingRecorder) EventReceived()                  { r.received++ }
func (r *recordingRecorder) ObserveOutcome(o domain.Outcome) { r.outcomes = append(r.outcomes, o) }
func (r *recordingRecorder) ObserveStage(stage string, _ time.Duration) {
	r.stages = append(r.stages, stage)
}
func (r *recordingRecorder) AddDownloaded(n int) { r.downloaded += n }
func (r *recordingRecorder) AddUploaded(n int)   { r.uploaded += n }

func defaultProcessorConfig() config.ProcessorConfig {
	return config.ProcessorConfig{InputContainer: "input", OutputContainer: "output"}
}

func createProcessorService(cfg config.ProcessorConfig, gw storage.Gateway, rec service.Recorder) *service.ProcessorService {
	return service.NewProcessorService(cfg, gw, transform.Default(), rec, zap.NewNop())
}

func testNotification() domain.Notification {
	return domain.Notification{
		ID:        "evt-1",
		EventType: domain.EventTypeBlobCreated,
		Subject:   testSubject,
		URL:       testURL,
	}
}

func TestOutputName(t *testing.T) {
	assert.Equal(t, "processed_data.csv", service.OutputName("2024/data.csv"))
	assert.Equal(t, "processed_data.csv", service.OutputName("data.csv"))
	assert.Equal(t, "processed_DATA.CSV", service.OutputName("a/b/c/DATA.CSV"))
}

func TestProcessorService_Handle_EndToEnd(t *testing.T) {
	ctx := context.Background()

	t.Run("processes accepted blob into output container", func(t *testing.T) {
		gw := newMemoryGateway()
		gw.blobs["input/2024/data.csv"] = []byte(" id , name \n1,a\n,\n2,b\n")
		rec := &recordingRecorder{}
		svc := createProcessorService(defaultProcessorConfig(), gw, rec)

		outcome := svc.Handle(ctx, testNotification())

		require.NoError(t, outcome.Err)
		assert.Equal(t, domain.OutcomeProcessed, outcome.Status)
		assert.Equal(t, domain.Location{Container: "input", BlobPath: "2024/data.csv"}, outcome.Input)
		assert.Equal(t, domain.Location{Container: "output", BlobPath: "processed_data.csv"}, outcome.Output)
		assert.Equal(t, []string{"acct"}, gw.accounts)
		assert.Equal(t, 1, gw.downloads)
		assert.Equal(t, 1, gw.uploads)
		assert.Equal(t, "ID,NAME\n1,a\n2,b\n", string(gw.blobs["output/processed_data.csv"]))
		assert.Equal(t, storage.ContentTypeCSV, gw.contentType)

		assert.Equal(t, 1, rec.received)
		require.Len(t, rec.outcomes, 1)
		assert.Equal(t, []string{"download", "transform", "upload"}, rec.stages)
		assert.Positive(t, rec.downloaded)
		assert.Positive(t, rec.uploaded)
	})

	t.Run("skips blob outside configured input container", func(t *testing.T) {
		gw := newMemoryGateway()
		gw.blobs["input/2024/data.csv"] = []byte("a\n1\n")
		cfg := config.ProcessorConfig{InputContainer: "archive", OutputContainer: "output"}
		svc := createProcessorService(cfg, gw, nil)

		outcome := svc.Handle(ctx, testNotification())

		assert.Equal(t, domain.OutcomeSkipped, outcome.Status)
		assert.Equal(t, string(domain.ReasonWrongContainer), outcome.Reason)
		assert.NoError(t, outcome.Err)
		assert.Zero(t, gw.storageCalls())
	})

	t.Run("aborts when url is missing", func(t *testing.T) {
		gw := newMemoryGateway()
		svc := createProcessorService(defaultProcessorConfig(), gw, nil)
		n := testNotification()
		n.URL = ""

		outcome := svc.Handle(ctx, n)

		assert.Equal(t, domain.OutcomeFailed, outcome.Status)
		assert.Equal(t, domain.ReasonMissingURL, outcome.Reason)
		assert.ErrorIs(t, outcome.Err, domain.ErrMissingURL)
		assert.Zero(t, gw.storageCalls())
	})
}

func TestProcessorService_Handle_Resolution(t *testing.T) {
	ctx := context.Background()

	t.Run("falls back to url when subject lacks blobs", func(t *testing.T) {
		gw := newMemoryGateway()
		gw.blobs["input/2024/data.csv"] = []byte("a\n1\n")
		svc := createProcessorService(defaultProcessorConfig(), gw, nil)
		n := testNotification()
		n.Subject = "/blobServices/default/containers/input"

		outcome := svc.Handle(ctx, n)

		assert.Equal(t, domain.OutcomeProcessed, outcome.Status)
		assert.Equal(t, "2024/data.csv", outcome.Input.BlobPath)
	})

	t.Run("unresolvable event makes no storage calls", func(t *testing.T) {
		gw := newMemoryGateway()
		svc := createProcessorService(defaultProcessorConfig(), gw, nil)
		n := testNotification()
		n.Subject = ""
		n.URL = "https://acct.blob.core.windows.net/onlycontainer"

		outcome := svc.Handle(ctx, n)

		assert.Equal(t, domain.OutcomeFailed, outcome.Status)
		assert.ErrorIs(t, outcome.Err, domain.ErrUnresolved)
		assert.Zero(t, gw.storageCalls())
	})

	t.Run("invalid url makes no storage calls", func(t *testing.T) {
		gw := newMemoryGateway()
		svc := createProcessorService(defaultProcessorConfig(), gw, nil)
		n := testNotification()
		n.Subject = ""
		n.URL = "://bad url"

		outcome := svc.Handle(ctx, n)

		assert.ErrorIs(t, outcome.Err, domain.ErrUnresolved)
		assert.Zero(t, gw.storageCalls())
	})

	t.Run("subject resolves when url does not parse", func(t *testing.T) {
		gw := newMemoryGateway()
		gw.blobs["input/100%.csv"] = []byte("a,b\n1,2\n")
		svc := createProcessorService(defaultProcessorConfig(), gw, nil)
		n := testNotification()
		n.Subject = "/blobServices/default/containers/input/blobs/100%.csv"
		n.URL = "https://acct.blob.core.windows.net/input/100%.csv"

		outcome := svc.Handle(ctx, n)

		require.NoError(t, outcome.Err)
		assert.Equal(t, domain.OutcomeProcessed, outcome.Status)
		assert.Equal(t, domain.Location{Container: "input", BlobPath: "100%.csv"}, outcome.Input)
		assert.Equal(t, []string{"acct"}, gw.accounts)
		assert.Equal(t, "A,B\n1,2\n", string(gw.blobs["output/processed_100%.csv"]))
	})

	t.Run("non csv blob is skipped", func(t *testing.T) {
		gw := newMemoryGateway()
		svc := createProcessorService(defaultProcessorConfig(), gw, nil)
		n := testNotification()
		n.Subject = "/blobServices/default/containers/input/blobs/2024/data.tsv"

		outcome := svc.Handle(ctx, n)

		assert.Equal(t, domain.OutcomeSkipped, outcome.Status)
		assert.Equal(t, string(domain.ReasonWrongExtension), outcome.Reason)
		assert.Zero(t, gw.storageCalls())
	})
}

func TestProcessorService_Handle_StageFailures(t *testing.T) {
	ctx := context.Background()
	cause := errors.New("boom")

	t.Run("client resolution failure is a download error", func(t *testing.T) {
		gw := newMemoryGateway()
		gw.resolveErr = cause
		svc := createProcessorService(defaultProcessorConfig(), gw, nil)

		outcome := svc.Handle(ctx, testNotification())

		assert.Equal(t, domain.OutcomeFailed, outcome.Status)
		assert.Equal(t, domain.ReasonDownloadFailed, outcome.Reason)
		assert.ErrorIs(t, outcome.Err, domain.ErrDownload)
		assert.ErrorIs(t, outcome.Err, cause)
	})

	t.Run("download failure", func(t *testing.T) {
		gw := newMemoryGateway()
		gw.downloadErr = cause
		svc := createProcessorService(defaultProcessorConfig(), gw, nil)

		outcome := svc.Handle(ctx, testNotification())

		assert.ErrorIs(t, outcome.Err, domain.ErrDownload)
		assert.ErrorIs(t, outcome.Err, cause)
		assert.Zero(t, gw.uploads)
	})

	t.Run("invalid utf-8 is a download error", func(t *testing.T) {
		gw := newMemoryGateway()
		gw.blobs["input/2024/data.csv"] = []byte{'a', '\n', 0xff, 0xfe, '\n'}
		svc := createProcessorService(defaultProcessorConfig(), gw, nil)

		outcome := svc.Handle(ctx, testNotification())

		assert.ErrorIs(t, outcome.Err, domain.ErrDownload)
		assert.Zero(t, gw.uploads)
	})

	t.Run("malformed csv is a transform error", func(t *testing.T) {
		gw := newMemoryGateway()
		gw.blobs["input/2024/data.csv"] = []byte("a,b\n1,2,3\n")
		svc := createProcessorService(defaultProcessorConfig(), gw, nil)

		outcome := svc.Handle(ctx, testNotification())

		assert.Equal(t, domain.ReasonTransformFailed, outcome.Reason)
		assert.ErrorIs(t, outcome.Err, domain.ErrTransform)
		assert.Zero(t, gw.uploads)
	})

	t.Run("upload failure", func(t *testing.T) {
		gw := newMemoryGateway()
		gw.blobs["input/2024/data.csv"] = []byte("a\n1\n")
		gw.uploadErr = cause
		svc := createProcessorService(defaultProcessorConfig(), gw, nil)

		outcome := svc.Handle(ctx, testNotification())

		assert.Equal(t, domain.ReasonUploadFailed, outcome.Reason)
		assert.ErrorIs(t, outcome.Err, domain.ErrUpload)
		assert.ErrorIs(t, outcome.Err, cause)
		assert.Equal(t, "processed_data.csv", outcome.Output.BlobPath)
	})
}

func TestProcessorService_ReprocessingOverwrites(t *testing.T) {
	ctx := context.Background()
	gw := newMemoryGateway()
	gw.blobs["input/2024/data.csv"] = []byte("a\n1\n")
	svc := createProcessorService(defaultProcessorConfig(), gw, nil)

	first := svc.Handle(ctx, testNotification())
	second := svc.Handle(ctx, testNotification())

	assert.Equal(t, domain.OutcomeProcessed, first.Status)
	assert.Equal(t, domain.OutcomeProcessed, second.Status)
	assert.Equal(t, 2, gw.uploads)
	assert.Equal(t, "A\n1\n", string(gw.blobs["output/processed_data.csv"]))
}

func TestProcessorService_WithLocalGateway(t *testing.T) {
	ctx := context.Background()
	gw, err := storage.NewLocalGateway(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	client, err := gw.ResolveClient("acct")
	require.NoError(t, err)
	require.NoError(t, client.Upload(ctx, "input", "2024/data.csv", []byte("\ufeffx,y\n1,\n,\n"), storage.ContentTypeCSV))

	svc := createProcessorService(defaultProcessorConfig(), gw, nil)
	outcome := svc.Handle(ctx, testNotification())
	require.NoError(t, outcome.Err)

	out, err := client.Download(ctx, "output", "processed_data.csv")
	require.NoError(t, err)
	assert.Equal(t, "X,Y\n1,\n", string(out))
}
