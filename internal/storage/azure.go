package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/adoptly/apiserver/config"
)

// AzureClient wraps the Azure Blob Storage SDK client and container name.
type AzureClient struct {
	client    *azblob.Client
	container string
}

// NewAzureClient constructs an Azure Blob client from config.
func NewAzureClient(cfg config.AzureConfig) (*AzureClient, error) {
	if strings.TrimSpace(cfg.ConnectionString) == "" {
		return nil, errors.New("azure storage connection string is required")
	}
	if strings.TrimSpace(cfg.Container) == "" {
		return nil, errors.New("azure storage container is required")
	}

	client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("create azure storage client: %w", err)
	}

	return &AzureClient{
		client:    client,
		container: cfg.Container,
	}, nil
}

// EnsureBucket ensures the configured container exists.
func (a *AzureClient) EnsureBucket(ctx context.Context) error {
	_, err := a.client.CreateContainer(ctx, a.container, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return err
	}
	return nil
}

// Put uploads an object to the configured container.
func (a *AzureClient) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	opts := &azblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: &contentType,
		},
	}
	_, err := a.client.UploadStream(ctx, a.container, key, r, opts)
	return err
}

// Get opens a reader for an object in the configured container.
func (a *AzureClient) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := a.client.DownloadStream(ctx, a.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return resp.Body, nil
}

// Delete removes an object from the configured container.
func (a *AzureClient) Delete(ctx context.Context, key string) error {
	_, err := a.client.DeleteBlob(ctx, a.container, key, nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return ErrNotFound
	}
	return err
}

// Location returns the blob URL of key.
func (a *AzureClient) Location(key string) string {
	return a.client.ServiceClient().NewContainerClient(a.container).NewBlobClient(key).URL()
}

// Bucket returns the configured container name.
func (a *AzureClient) Bucket() string {
	return a.container
}
