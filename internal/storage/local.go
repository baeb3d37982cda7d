package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// LocalGateway implements Gateway on the local filesystem.
// Every account maps to the same base path; containers are directories.
type LocalGateway struct {
	client *LocalClient
}

// NewLocalGateway creates a local gateway rooted at basePath
func NewLocalGateway(basePath string, logger *zap.Logger) (*LocalGateway, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage directory: %w", err)
	}

	logger.Info("Local storage gateway initialized", zap.String("base_path", abs))

	return &LocalGateway{client: &LocalClient{basePath: abs, logger: logger}}, nil
}

// Mode returns "local"
func (g *LocalGateway) Mode() string { return "local" }

// ResolveClient returns the shared local client
func (g *LocalGateway) ResolveClient(_ string) (Client, error) {
	return g.client, nil
}

// LocalClient implements Client on the local filesystem
type LocalClient struct {
	basePath string
	logger   *zap.Logger
}

// containerPath maps a container name to its directory
func (c *LocalClient) containerPath(container string) (string, error) {
	if container == "" || container == "." || container == ".." || strings.ContainsAny(container, `/\`) {
		return "", fmt.Errorf("invalid container: %s", container)
	}
	return filepath.Join(c.basePath, container), nil
}

// path maps container/blob to a file inside the container directory, refusing escapes
func (c *LocalClient) path(container, blobName string) (string, error) {
	root, err := c.containerPath(container)
	if err != nil {
		return "", err
	}

	full := filepath.Join(root, filepath.FromSlash(blobName))
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid blob path: %s/%s", container, blobName)
	}
	return full, nil
}

// Download reads a file
func (c *LocalClient) Download(_ context.Context, container, blobPath string) ([]byte, error) {
	fullPath, err := c.path(container, blobPath)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("blob not found: %s/%s", container, blobPath)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return data, nil
}

// Upload writes a file, replacing any existing one. The content type is not stored.
func (c *LocalClient) Upload(_ context.Context, container, blobName string, content []byte, contentType string) error {
	fullPath, err := c.path(container, blobName)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(fullPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	c.logger.Debug("Blob written to local storage",
		zap.String("container", container),
		zap.String("blobName", blobName),
		zap.String("contentType", contentType),
		zap.Int("size", len(content)),
	)

	return nil
}

// List returns slash-separated blob names below a container, sorted
func (c *LocalClient) List(_ context.Context, container string) ([]string, error) {
	root, err := c.containerPath(container)
	if err != nil {
		return nil, err
	}

	var names []string
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("container not found: %s", container)
		}
		return nil, fmt.Errorf("failed to list container: %w", err)
	}

	sort.Strings(names)
	return names, nil
}

// Exists reports whether a file exists
func (c *LocalClient) Exists(_ context.Context, container, blobName string) (bool, error) {
	fullPath, err := c.path(container, blobName)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat file: %w", err)
	}

	return !info.IsDir(), nil
}
