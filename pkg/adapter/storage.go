package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/imoye/pkg/model"
)

// Storage is the interface for document upload storage
type Storage interface {
	// Put writes data read from r to the object key and returns its gs:// URI
	Put(ctx context.Context, key, contentType string, r io.Reader) (string, error)
	// Get opens the object key for reading. A missing object fails with
	// model.ErrObjectNotFound.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the object key
	Delete(ctx context.Context, key string) error
	// Bucket returns the bucket name objects are written to
	Bucket() string
}

// storageClient implements Storage interface using Cloud Storage
type storageClient struct {
	bucketName string
	client     *storage.Client
}

// NewStorage creates a new Cloud Storage client
func NewStorage(ctx context.Context, bucketName string) (Storage, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client")
	}

	return &storageClient{
		bucketName: bucketName,
		client:     client,
	}, nil
}

// GCSURI builds the gs:// URI of an object
func GCSURI(bucket, key string) string {
	return fmt.Sprintf("gs://%s/%s", bucket, key)
}

func (s *storageClient) Bucket() string {
	return s.bucketName
}

func (s *storageClient) Put(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	obj := s.client.Bucket(s.bucketName).Object(key)
	writer := obj.NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := io.Copy(writer, r); err != nil {
		_ = writer.Close()
		return "", goerr.Wrap(err, "failed to write object", goerr.V("key", key), goerr.T(model.TagUpstream))
	}

	if err := writer.Close(); err != nil {
		return "", goerr.Wrap(err, "failed to close object writer", goerr.V("key", key), goerr.T(model.TagUpstream))
	}

	return GCSURI(s.bucketName, key), nil
}

func (s *storageClient) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	bucket := s.client.Bucket(s.bucketName)
	obj := bucket.Object(key)
	reader, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, goerr.Wrap(model.ErrObjectNotFound, "object does not exist", goerr.V("key", key))
		}
		return nil, goerr.Wrap(err, "failed to read from storage", goerr.V("key", key), goerr.T(model.TagUpstream))
	}

	return reader, nil
}

func (s *storageClient) Delete(ctx context.Context, key string) error {
	if err := s.client.Bucket(s.bucketName).Object(key).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return goerr.Wrap(model.ErrObjectNotFound, "object does not exist", goerr.V("key", key))
		}
		return goerr.Wrap(err, "failed to delete object", goerr.V("key", key), goerr.T(model.TagUpstream))
	}
	return nil
}
