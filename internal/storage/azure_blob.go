package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"go.uber.org/zap"
)

// AzureGateway implements Gateway for Azure Blob Storage
type AzureGateway struct {
	provider CredentialProvider
	logger   *zap.Logger
}

// NewAzureGateway creates a gateway using the given credential provider
func NewAzureGateway(provider CredentialProvider, logger *zap.Logger) *AzureGateway {
	logger.Info("Azure Blob Storage gateway initialized",
		zap.String("credential", provider.Name()),
	)
	return &AzureGateway{provider: provider, logger: logger}
}

// Mode returns the credential kind in use
func (g *AzureGateway) Mode() string {
	return "azure/" + g.provider.Name()
}

// ResolveClient creates a client for the account
func (g *AzureGateway) ResolveClient(accountName string) (Client, error) {
	client, err := g.provider.NewClient(accountName)
	if err != nil {
		return nil, err
	}
	return &AzureBlobClient{client: client, logger: g.logger.With(zap.String("account", accountName))}, nil
}

// AzureBlobClient implements Client on top of azblob
type AzureBlobClient struct {
	client *azblob.Client
	logger *zap.Logger
}

// Download reads a whole blob into memory
func (c *AzureBlobClient) Download(ctx context.Context, container, blobPath string) ([]byte, error) {
	resp, err := c.client.DownloadStream(ctx, container, blobPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download blob: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob body: %w", err)
	}

	c.logger.Debug("Blob downloaded",
		zap.String("container", container),
		zap.String("blobName", blobPath),
		zap.Int("size", len(data)),
	)

	return data, nil
}

// Upload writes content as a block blob, replacing any existing blob
func (c *AzureBlobClient) Upload(ctx context.Context, container, blobName string, content []byte, contentType string) error {
	_, err := c.client.UploadBuffer(ctx, container, blobName, content, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: &contentType,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload blob: %w", err)
	}

	c.logger.Info("Blob uploaded",
		zap.String("container", container),
		zap.String("blobName", blobName),
		zap.String("contentType", contentType),
		zap.Int("size", len(content)),
	)

	return nil
}

// List returns the names of all blobs in a container
func (c *AzureBlobClient) List(ctx context.Context, container string) ([]string, error) {
	var names []string

	pager := c.client.NewListBlobsFlatPager(container, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list blobs: %w", err)
		}
		if page.Segment == nil {
			continue
		}
		for _, item := range page.Segment.BlobItems {
			if item != nil && item.Name != nil {
				names = append(names, *item.Name)
			}
		}
	}

	return names, nil
}

// Exists reports whether a blob exists
func (c *AzureBlobClient) Exists(ctx context.Context, container, blobName string) (bool, error) {
	blobClient := c.client.ServiceClient().NewContainerClient(container).NewBlobClient(blobName)

	_, err := blobClient.GetProperties(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get blob properties: %w", err)
	}

	return true, nil
}
