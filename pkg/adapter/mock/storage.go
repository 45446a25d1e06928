package mock

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/imoye/pkg/adapter"
	"github.com/m-mizutani/imoye/pkg/model"
)

// Object is a stored blob
type Object struct {
	ContentType string
	Data        []byte
}

// Storage is an in-memory bucket
type Storage struct {
	BucketName string

	mu      sync.Mutex
	objects map[string]*Object
}

var _ adapter.Storage = (*Storage)(nil)

func NewStorage(bucket string) *Storage {
	return &Storage{
		BucketName: bucket,
		objects:    make(map[string]*Object),
	}
}

func (s *Storage) Bucket() string {
	return s.BucketName
}

func (s *Storage) Put(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", goerr.Wrap(err, "failed to read upload")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = &Object{ContentType: contentType, Data: data}
	return adapter.GCSURI(s.BucketName, key), nil
}

func (s *Storage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, goerr.Wrap(model.ErrObjectNotFound, "object does not exist", goerr.V("key", key))
	}
	return io.NopCloser(bytes.NewReader(obj.Data)), nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return goerr.Wrap(model.ErrObjectNotFound, "object does not exist", goerr.V("key", key))
	}
	delete(s.objects, key)
	return nil
}

// Objects returns a snapshot of stored objects keyed by name
func (s *Storage) Objects() map[string]*Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*Object, len(s.objects))
	for k, v := range s.objects {
		out[k] = v
	}
	return out
}
