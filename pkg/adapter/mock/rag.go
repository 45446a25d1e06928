// Package mock provides in-memory fakes of the external adapters for tests.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/imoye/pkg/adapter"
	"github.com/m-mizutani/imoye/pkg/model"
)

// RAG is an in-memory RAG Engine
type RAG struct {
	Project  string
	Location string

	// FailWith makes every call return this error when set
	FailWith error
	// Contexts is returned by RetrieveContexts
	Contexts []*adapter.RetrievedContext

	mu        sync.Mutex
	nextID    int
	corpora   []*model.Corpus
	files     map[string][]*model.Document
	imports   []adapter.ImportFilesInput
	listCalls int
}

var _ adapter.RAG = (*RAG)(nil)

func NewRAG() *RAG {
	return &RAG{
		Project:  "test-project",
		Location: "us-central1",
		files:    make(map[string][]*model.Document),
	}
}

// AddCorpus registers a corpus and returns its resource name
func (r *RAG) AddCorpus(displayName string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addCorpus(displayName).ResourceName
}

func (r *RAG) addCorpus(displayName string) *model.Corpus {
	r.nextID++
	now := time.Now()
	c := &model.Corpus{
		ResourceName: fmt.Sprintf("projects/%s/locations/%s/ragCorpora/%d", r.Project, r.Location, r.nextID),
		DisplayName:  displayName,
		CreateTime:   now,
		UpdateTime:   now,
	}
	r.corpora = append(r.corpora, c)
	return c
}

// AddFile registers a file in a corpus
func (r *RAG) AddFile(resourceName string, doc *model.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[resourceName] = append(r.files[resourceName], doc)
}

// ListCalls returns how many times ListCorpora was called
func (r *RAG) ListCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listCalls
}

// Imports returns every ImportFiles input received
func (r *RAG) Imports() []adapter.ImportFilesInput {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]adapter.ImportFilesInput(nil), r.imports...)
}

func (r *RAG) ListCorpora(ctx context.Context) ([]*model.Corpus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	if r.FailWith != nil {
		return nil, r.FailWith
	}
	return append([]*model.Corpus(nil), r.corpora...), nil
}

func (r *RAG) CreateCorpus(ctx context.Context, displayName string) (*model.Corpus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return nil, r.FailWith
	}
	return r.addCorpus(displayName), nil
}

func (r *RAG) DeleteCorpus(ctx context.Context, resourceName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return r.FailWith
	}
	for i, c := range r.corpora {
		if c.ResourceName == resourceName {
			r.corpora = append(r.corpora[:i], r.corpora[i+1:]...)
			delete(r.files, resourceName)
			return nil
		}
	}
	return goerr.New("corpus not found", goerr.V("corpus", resourceName), goerr.T(model.TagNotFound))
}

func (r *RAG) ImportFiles(ctx context.Context, resourceName string, input adapter.ImportFilesInput) (*adapter.ImportFilesResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return nil, r.FailWith
	}
	r.imports = append(r.imports, input)

	sources := append(append([]string(nil), input.GCSURIs...), input.DriveFileIDs...)
	for _, src := range sources {
		r.nextID++
		r.files[resourceName] = append(r.files[resourceName], &model.Document{
			FileID:      fmt.Sprintf("%d", r.nextID),
			DisplayName: model.LastSegment(src),
			SourceURI:   src,
		})
	}

	return &adapter.ImportFilesResult{Imported: int64(len(sources))}, nil
}

func (r *RAG) ListFiles(ctx context.Context, resourceName string) ([]*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return nil, r.FailWith
	}
	return append([]*model.Document(nil), r.files[resourceName]...), nil
}

func (r *RAG) DeleteFile(ctx context.Context, fileResourceName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return r.FailWith
	}
	for corpus, docs := range r.files {
		for i, d := range docs {
			if model.DocumentResourceName(corpus, d.FileID) == fileResourceName {
				r.files[corpus] = append(docs[:i], docs[i+1:]...)
				return nil
			}
		}
	}
	return goerr.New("file not found", goerr.V("file", fileResourceName), goerr.T(model.TagNotFound))
}

func (r *RAG) RetrieveContexts(ctx context.Context, resourceName string, input adapter.RetrieveInput) ([]*adapter.RetrievedContext, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return nil, r.FailWith
	}
	if int(input.TopK) > 0 && len(r.Contexts) > int(input.TopK) {
		return r.Contexts[:input.TopK], nil
	}
	return r.Contexts, nil
}
