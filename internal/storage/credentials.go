package storage

import (
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/straye-as/blob-processor/internal/config"
)

// CredentialProvider builds blob clients for an account with one kind of credential
type CredentialProvider interface {
	Name() string
	NewClient(accountName string) (*azblob.Client, error)
}

// NewCredentialProvider selects connection-string credentials when a
// connection string is configured and managed identity otherwise.
func NewCredentialProvider(cfg *config.StorageConfig) (CredentialProvider, error) {
	if cfg.ConnectionString != "" {
		return NewConnectionStringCredential(cfg.ConnectionString), nil
	}
	return NewManagedIdentityCredential(cfg.EndpointSuffix)
}

// ConnectionStringCredential authenticates with a storage connection string.
// The connection string names its own account, so the event account is ignored.
type ConnectionStringCredential struct {
	connectionString string
}

// NewConnectionStringCredential creates a connection string credential provider
func NewConnectionStringCredential(connectionString string) *ConnectionStringCredential {
	return &ConnectionStringCredential{connectionString: connectionString}
}

func (c *ConnectionStringCredential) Name() string { return "connection_string" }

// NewClient creates a blob client from the connection string
func (c *ConnectionStringCredential) NewClient(_ string) (*azblob.Client, error) {
	client, err := azblob.NewClientFromConnectionString(c.connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client from connection string: %w", err)
	}
	return client, nil
}

// ManagedIdentityCredential authenticates with the platform identity
type ManagedIdentityCredential struct {
	cred           *azidentity.DefaultAzureCredential
	endpointSuffix string
}

// NewManagedIdentityCredential creates a provider backed by DefaultAzureCredential
func NewManagedIdentityCredential(endpointSuffix string) (*ManagedIdentityCredential, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}
	return &ManagedIdentityCredential{cred: cred, endpointSuffix: endpointSuffix}, nil
}

func (m *ManagedIdentityCredential) Name() string { return "managed_identity" }

// NewClient creates a blob client for https://<account>.blob.<suffix>/
func (m *ManagedIdentityCredential) NewClient(accountName string) (*azblob.Client, error) {
	if accountName == "" {
		return nil, fmt.Errorf("account name is required for managed identity")
	}
	client, err := azblob.NewClient(AccountURL(accountName, m.endpointSuffix), m.cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}
	return client, nil
}

// AccountURL returns the blob service URL of an account
func AccountURL(accountName, endpointSuffix string) string {
	if endpointSuffix == "" {
		endpointSuffix = "core.windows.net"
	}
	return fmt.Sprintf("https://%s.blob.%s/", accountName, endpointSuffix)
}
