package storage

import (
	"context"
	"fmt"

	"github.com/straye-as/blob-processor/internal/config"
	"go.uber.org/zap"
)

// ContentTypeCSV is the content type of processed output blobs
const ContentTypeCSV = "text/csv; charset=utf-8"

// Client performs blob operations within one storage account
type Client interface {
	Download(ctx context.Context, container, blobPath string) ([]byte, error)
	// Upload always overwrites an existing blob of the same name
	Upload(ctx context.Context, container, blobName string, content []byte, contentType string) error
	List(ctx context.Context, container string) ([]string, error)
	Exists(ctx context.Context, container, blobName string) (bool, error)
}

// Gateway resolves a Client for a storage account
type Gateway interface {
	ResolveClient(accountName string) (Client, error)
	// Mode names the backing store and credential kind, for logs and health checks
	Mode() string
}

// NewGateway creates a gateway based on configuration.
// For local mode, containers are directories under the base path.
// For azure mode, credentials are picked once here.
func NewGateway(cfg *config.StorageConfig, logger *zap.Logger) (Gateway, error) {
	switch cfg.Mode {
	case "local":
		return NewLocalGateway(cfg.LocalBasePath, logger)
	case "azure":
		provider, err := NewCredentialProvider(cfg)
		if err != nil {
			return nil, err
		}
		return NewAzureGateway(provider, logger), nil
	default:
		return nil, fmt.Errorf("unsupported storage mode: %s", cfg.Mode)
	}
}
