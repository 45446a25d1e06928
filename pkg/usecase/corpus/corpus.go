package corpus

import (
	"context"
	"errors"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/imoye/pkg/adapter"
	"github.com/m-mizutani/imoye/pkg/model"
	"github.com/m-mizutani/imoye/pkg/repository"
	"github.com/m-mizutani/imoye/pkg/utils/logging"
)

// Config holds ingestion, retrieval and upload parameters
type Config struct {
	ChunkSize                  int32
	ChunkOverlap               int32
	MaxEmbeddingRequestsPerMin int32
	TopK                       int32
	DistanceThreshold          float64
	MaxUploadMB                int64
	AllowedExtensions          []string
}

// DefaultConfig returns the standard corpus parameters
func DefaultConfig() Config {
	return Config{
		ChunkSize:                  512,
		ChunkOverlap:               100,
		MaxEmbeddingRequestsPerMin: 1000,
		TopK:                       3,
		DistanceThreshold:          0.5,
		MaxUploadMB:                40,
		AllowedExtensions:          []string{"pdf", "txt", "docx"},
	}
}

// UseCase implements corpus management and retrieval on top of the RAG
// Engine. Backend failures are reported as status "error" results rather
// than Go errors.
type UseCase struct {
	rag      adapter.RAG
	storage  adapter.Storage
	resolver *Resolver
	cfg      Config
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithStorage sets the bucket used by UploadDocument
func WithStorage(storage adapter.Storage) Option {
	return func(uc *UseCase) {
		uc.storage = storage
	}
}

// WithConfig overrides DefaultConfig
func WithConfig(cfg Config) Option {
	return func(uc *UseCase) {
		uc.cfg = cfg
	}
}

// New creates a new corpus use case
func New(rag adapter.RAG, repo repository.Repository, opts ...Option) *UseCase {
	uc := &UseCase{
		rag:      rag,
		resolver: NewResolver(rag, repo),
		cfg:      DefaultConfig(),
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

// Resolver returns the resolver shared by all operations
func (uc *UseCase) Resolver() *Resolver {
	return uc.resolver
}

func notExists(name string) string {
	return fmt.Sprintf("Corpus '%s' does not exist", name)
}

func notExistsCreateFirst(name string) string {
	return fmt.Sprintf("Corpus '%s' does not exist. Please create it first using the create_corpus tool.", name)
}

// resolve maps a name to a resource. ok is false when the corpus is unknown;
// other failures are returned as error.
func (uc *UseCase) resolve(ctx context.Context, sessionID model.SessionID, name string) (string, bool, error) {
	resource, err := uc.resolver.Resolve(ctx, sessionID, name)
	if err != nil {
		if errors.Is(err, model.ErrCorpusNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return resource, true, nil
}

func (uc *UseCase) setCurrent(ctx context.Context, sessionID model.SessionID, resource string) {
	if err := uc.resolver.SetCurrent(ctx, sessionID, resource); err != nil {
		logging.From(ctx).Warn("failed to update current corpus", "session_id", sessionID, "error", err)
	}
}

// CreateCorpus creates a corpus named name and makes it current
func (uc *UseCase) CreateCorpus(ctx context.Context, sessionID model.SessionID, name string) (model.Result, error) {
	if name == "" {
		return model.ErrorResult("Corpus name is required", map[string]any{
			"corpus_name":    name,
			"corpus_created": false,
		}), nil
	}

	displayName := model.SanitizeDisplayName(name)
	if uc.resolver.Exists(ctx, name) || (displayName != name && uc.resolver.Exists(ctx, displayName)) {
		return model.NewResult(model.StatusInfo, fmt.Sprintf("Corpus '%s' already exists", name), map[string]any{
			"corpus_name":    name,
			"corpus_created": false,
		}), nil
	}

	corpus, err := uc.rag.CreateCorpus(ctx, displayName)
	if err != nil {
		logging.From(ctx).Error("failed to create corpus", "corpus_name", name, "error", err)
		return model.ErrorResult(fmt.Sprintf("Error creating corpus: %s", err.Error()), map[string]any{
			"corpus_name":    name,
			"corpus_created": false,
		}), nil
	}

	uc.setCurrent(ctx, sessionID, corpus.ResourceName)

	return model.NewResult(model.StatusSuccess, fmt.Sprintf("Successfully created corpus '%s'", name), map[string]any{
		"corpus_name":    corpus.ResourceName,
		"display_name":   corpus.DisplayName,
		"corpus_created": true,
	}), nil
}

// DeleteCorpus deletes a corpus with its files. confirm must be true.
func (uc *UseCase) DeleteCorpus(ctx context.Context, sessionID model.SessionID, name string, confirm bool) (model.Result, error) {
	fields := map[string]any{"corpus_name": name}

	resource, ok, err := uc.resolve(ctx, "", name)
	if err != nil {
		return model.ErrorResult(fmt.Sprintf("Error deleting corpus: %s", err.Error()), fields), nil
	}
	if !ok {
		return model.ErrorResult(notExists(name), fields), nil
	}

	if !confirm {
		return model.ErrorResult("Deletion requires explicit confirmation. Set confirm=true to delete this corpus.", fields), nil
	}

	if err := uc.rag.DeleteCorpus(ctx, resource); err != nil {
		logging.From(ctx).Error("failed to delete corpus", "corpus_name", name, "error", err)
		return model.ErrorResult(fmt.Sprintf("Error deleting corpus: %s", err.Error()), fields), nil
	}

	if current, err := uc.resolver.Current(ctx, sessionID); err == nil && current == resource {
		uc.setCurrent(ctx, sessionID, "")
	}

	return model.NewResult(model.StatusSuccess, fmt.Sprintf("Successfully deleted corpus '%s'", name), fields), nil
}

// DeleteDocument removes one file from a corpus
func (uc *UseCase) DeleteDocument(ctx context.Context, sessionID model.SessionID, name, documentID string) (model.Result, error) {
	fields := map[string]any{
		"corpus_name": name,
		"document_id": documentID,
	}

	if documentID == "" {
		return model.ErrorResult("Document ID is required", fields), nil
	}

	resource, ok, err := uc.resolve(ctx, "", name)
	if err != nil {
		return model.ErrorResult(fmt.Sprintf("Error deleting document: %s", err.Error()), fields), nil
	}
	if !ok {
		return model.ErrorResult(notExists(name), fields), nil
	}

	if err := uc.rag.DeleteFile(ctx, model.DocumentResourceName(resource, documentID)); err != nil {
		logging.From(ctx).Error("failed to delete document", "corpus_name", name, "document_id", documentID, "error", err)
		return model.ErrorResult(fmt.Sprintf("Error deleting document: %s", err.Error()), fields), nil
	}

	uc.setCurrent(ctx, sessionID, resource)

	return model.NewResult(model.StatusSuccess,
		fmt.Sprintf("Successfully deleted document '%s' from corpus '%s'", documentID, name), fields), nil
}

// GetCorpusInfo describes a corpus and the files it holds
func (uc *UseCase) GetCorpusInfo(ctx context.Context, sessionID model.SessionID, name string) (model.Result, error) {
	fields := map[string]any{"corpus_name": name}

	resource, ok, err := uc.resolve(ctx, sessionID, name)
	if err != nil {
		return model.ErrorResult(fmt.Sprintf("Error getting corpus information: %s", err.Error()), fields), nil
	}
	if !ok {
		return model.ErrorResult(notExists(name), fields), nil
	}

	// A listing failure still reports the corpus, with no files
	files, err := uc.rag.ListFiles(ctx, resource)
	if err != nil {
		logging.From(ctx).Warn("failed to list corpus files", "corpus_name", name, "error", err)
		files = nil
	}
	if files == nil {
		files = []*model.Document{}
	}

	uc.setCurrent(ctx, sessionID, resource)

	label, displayName := name, name
	if name == "" {
		label = resource
	}
	if name == "" || model.IsCorpusResourceName(name) {
		displayName = uc.displayNameOf(ctx, resource)
	}

	return model.NewResult(model.StatusSuccess,
		fmt.Sprintf("Successfully retrieved information for corpus '%s'", displayName), map[string]any{
			"corpus_name":         label,
			"corpus_display_name": displayName,
			"file_count":          len(files),
			"files":               files,
		}), nil
}

func (uc *UseCase) displayNameOf(ctx context.Context, resource string) string {
	corpora, err := uc.rag.ListCorpora(ctx)
	if err != nil {
		return resource
	}
	for _, c := range corpora {
		if c.ResourceName == resource {
			return c.DisplayName
		}
	}
	return resource
}

// ListCorpora lists every corpus in the project
func (uc *UseCase) ListCorpora(ctx context.Context) (model.Result, error) {
	corpora, err := uc.rag.ListCorpora(ctx)
	if err != nil {
		logging.From(ctx).Error("failed to list corpora", "error", err)
		return model.ErrorResult(fmt.Sprintf("Error listing corpora: %s", err.Error()), nil), nil
	}

	items := make([]map[string]any, 0, len(corpora))
	for _, c := range corpora {
		items = append(items, map[string]any{
			"resource_name": c.ResourceName,
			"display_name":  c.DisplayName,
			"create_time":   model.FormatTime(c.CreateTime),
			"update_time":   model.FormatTime(c.UpdateTime),
		})
	}

	return model.NewResult(model.StatusSuccess, fmt.Sprintf("Found %d available corpora", len(items)), map[string]any{
		"corpora": items,
	}), nil
}

// Query retrieves the chunks of a corpus most relevant to query. An empty
// name queries the session's current corpus.
func (uc *UseCase) Query(ctx context.Context, sessionID model.SessionID, name, query string) (model.Result, error) {
	fields := map[string]any{
		"corpus_name": name,
		"query":       query,
	}

	if query == "" {
		return model.ErrorResult("Query is required", fields), nil
	}

	resource, ok, err := uc.resolve(ctx, sessionID, name)
	if err != nil {
		return model.ErrorResult(fmt.Sprintf("Error querying corpus: %s", err.Error()), fields), nil
	}
	if !ok {
		if name == "" {
			return model.ErrorResult("No corpus specified and no current corpus is set", fields), nil
		}
		return model.ErrorResult(notExistsCreateFirst(name), fields), nil
	}

	contexts, err := uc.rag.RetrieveContexts(ctx, resource, adapter.RetrieveInput{
		Query:                   query,
		TopK:                    uc.cfg.TopK,
		VectorDistanceThreshold: uc.cfg.DistanceThreshold,
	})
	if err != nil {
		logging.From(ctx).Error("failed to query corpus", "corpus_name", name, "error", err)
		return model.ErrorResult(fmt.Sprintf("Error querying corpus: %s", err.Error()), fields), nil
	}

	uc.setCurrent(ctx, sessionID, resource)

	label := name
	if label == "" {
		label = resource
	}

	results := make([]map[string]any, 0, len(contexts))
	for _, c := range contexts {
		results = append(results, map[string]any{
			"source_uri":  c.SourceURI,
			"source_name": c.SourceName,
			"text":        c.Text,
			"score":       c.Score,
		})
	}

	fields["results"] = results
	fields["results_count"] = len(results)

	if len(results) == 0 {
		return model.NewResult(model.StatusWarning,
			fmt.Sprintf("No results found in corpus '%s' for query: '%s'", label, query), fields), nil
	}

	return model.NewResult(model.StatusSuccess, fmt.Sprintf("Successfully queried corpus '%s'", label), fields), nil
}

// ResourceName returns the resource identifier of a corpus name
func (uc *UseCase) ResourceName(ctx context.Context, name string) (string, error) {
	resource, err := uc.resolver.Resolve(ctx, "", name)
	if err != nil {
		return "", goerr.Wrap(err, "failed to resolve corpus", goerr.V("corpus_name", name))
	}
	return resource, nil
}

// CorpusExists reports whether name is a known corpus
func (uc *UseCase) CorpusExists(ctx context.Context, name string) bool {
	return uc.resolver.Exists(ctx, name)
}

// SetCurrentCorpus resolves name and stores it as the session's current corpus
func (uc *UseCase) SetCurrentCorpus(ctx context.Context, sessionID model.SessionID, name string) (model.Result, error) {
	fields := map[string]any{"corpus_name": name}

	resource, ok, err := uc.resolve(ctx, "", name)
	if err != nil {
		return model.ErrorResult(fmt.Sprintf("Error setting current corpus: %s", err.Error()), fields), nil
	}
	if !ok {
		return model.ErrorResult(notExists(name), fields), nil
	}

	if err := uc.resolver.SetCurrent(ctx, sessionID, resource); err != nil {
		return model.Result{}, goerr.Wrap(err, "failed to set current corpus", goerr.V("corpus_name", name))
	}

	fields["resource_name"] = resource
	return model.NewResult(model.StatusSuccess, fmt.Sprintf("Current corpus is now '%s'", name), fields), nil
}
