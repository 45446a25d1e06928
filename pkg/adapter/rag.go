package adapter

import (
	"context"
	"fmt"
	"time"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/imoye/pkg/model"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// RAG is an interface for the Vertex AI RAG Engine
type RAG interface {
	// ListCorpora returns all corpora in the configured project and location
	ListCorpora(ctx context.Context) ([]*model.Corpus, error)

	// CreateCorpus creates a corpus and waits for the operation to finish
	CreateCorpus(ctx context.Context, displayName string) (*model.Corpus, error)

	// DeleteCorpus force-deletes a corpus including its files
	DeleteCorpus(ctx context.Context, resourceName string) error

	// ImportFiles imports files from Cloud Storage or Google Drive into a corpus
	ImportFiles(ctx context.Context, resourceName string, input ImportFilesInput) (*ImportFilesResult, error)

	// ListFiles returns files stored in a corpus
	ListFiles(ctx context.Context, resourceName string) ([]*model.Document, error)

	// DeleteFile deletes a single file by its resource name
	DeleteFile(ctx context.Context, fileResourceName string) error

	// RetrieveContexts runs a retrieval query against a corpus
	RetrieveContexts(ctx context.Context, resourceName string, input RetrieveInput) ([]*RetrievedContext, error)
}

// ImportFilesInput describes the import sources and chunking parameters
type ImportFilesInput struct {
	GCSURIs                    []string
	DriveFileIDs               []string
	ChunkSize                  int32
	ChunkOverlap               int32
	MaxEmbeddingRequestsPerMin int32
}

// ImportFilesResult is the summary of an import operation
type ImportFilesResult struct {
	Imported int64
	Failed   int64
	Skipped  int64
}

// RetrieveInput holds retrieval query parameters
type RetrieveInput struct {
	Query                   string
	TopK                    int32
	VectorDistanceThreshold float64
}

// RetrievedContext is one retrieved chunk
type RetrievedContext struct {
	SourceURI  string
	SourceName string
	Text       string
	Score      float64
}

type ragClient struct {
	project        string
	location       string
	embeddingModel string

	data     *aiplatform.VertexRagDataClient
	retrieve *aiplatform.VertexRagClient
}

// DefaultEmbeddingModel embeds chunks of new corpora
const DefaultEmbeddingModel = "publishers/google/models/text-embedding-005"

// RAGOption is a functional option for RAG client
type RAGOption func(*ragClient)

// WithEmbeddingModel sets the publisher model used for new corpora
func WithEmbeddingModel(name string) RAGOption {
	return func(c *ragClient) {
		c.embeddingModel = name
	}
}

// NewRAG creates a new RAG Engine client for the given project and location
func NewRAG(ctx context.Context, projectID, location string, opts ...RAGOption) (RAG, error) {
	endpoint := option.WithEndpoint(fmt.Sprintf("%s-aiplatform.googleapis.com:443", location))

	data, err := aiplatform.NewVertexRagDataClient(ctx, endpoint)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create RAG data client", goerr.V("location", location))
	}

	retrieve, err := aiplatform.NewVertexRagClient(ctx, endpoint)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create RAG retrieval client", goerr.V("location", location))
	}

	c := &ragClient{
		project:        projectID,
		location:       location,
		embeddingModel: DefaultEmbeddingModel,
		data:           data,
		retrieve:       retrieve,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func (c *ragClient) parent() string {
	return fmt.Sprintf("projects/%s/locations/%s", c.project, c.location)
}

func (c *ragClient) ListCorpora(ctx context.Context) ([]*model.Corpus, error) {
	it := c.data.ListRagCorpora(ctx, &aiplatformpb.ListRagCorporaRequest{
		Parent: c.parent(),
	})

	var corpora []*model.Corpus
	for {
		corpus, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list corpora", goerr.V("parent", c.parent()), goerr.T(model.TagUpstream))
		}
		corpora = append(corpora, toCorpus(corpus))
	}

	return corpora, nil
}

// newCreateCorpusRequest builds a corpus backed by the managed vector store
// and the given publisher embedding model
func newCreateCorpusRequest(parent, displayName, embeddingModel string) *aiplatformpb.CreateRagCorpusRequest {
	return &aiplatformpb.CreateRagCorpusRequest{
		Parent: parent,
		RagCorpus: &aiplatformpb.RagCorpus{
			DisplayName: displayName,
			BackendConfig: &aiplatformpb.RagCorpus_VectorDbConfig{
				VectorDbConfig: &aiplatformpb.RagVectorDbConfig{
					RagEmbeddingModelConfig: &aiplatformpb.RagEmbeddingModelConfig{
						ModelConfig: &aiplatformpb.RagEmbeddingModelConfig_VertexPredictionEndpoint_{
							VertexPredictionEndpoint: &aiplatformpb.RagEmbeddingModelConfig_VertexPredictionEndpoint{
								Endpoint: parent + "/" + embeddingModel,
							},
						},
					},
				},
			},
		},
	}
}

func (c *ragClient) CreateCorpus(ctx context.Context, displayName string) (*model.Corpus, error) {
	req := newCreateCorpusRequest(c.parent(), displayName, c.embeddingModel)

	op, err := c.data.CreateRagCorpus(ctx, req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create corpus", goerr.V("display_name", displayName), goerr.T(model.TagUpstream))
	}

	corpus, err := op.Wait(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to wait for corpus creation", goerr.V("display_name", displayName), goerr.T(model.TagUpstream))
	}

	return toCorpus(corpus), nil
}

func (c *ragClient) DeleteCorpus(ctx context.Context, resourceName string) error {
	op, err := c.data.DeleteRagCorpus(ctx, &aiplatformpb.DeleteRagCorpusRequest{
		Name:  resourceName,
		Force: true,
	})
	if err != nil {
		return goerr.Wrap(err, "failed to delete corpus", goerr.V("corpus", resourceName), goerr.T(model.TagUpstream))
	}

	if err := op.Wait(ctx); err != nil {
		return goerr.Wrap(err, "failed to wait for corpus deletion", goerr.V("corpus", resourceName), goerr.T(model.TagUpstream))
	}

	return nil
}

func (c *ragClient) ImportFiles(ctx context.Context, resourceName string, input ImportFilesInput) (*ImportFilesResult, error) {
	transformation := &aiplatformpb.RagFileTransformationConfig{
		RagFileChunkingConfig: &aiplatformpb.RagFileChunkingConfig{
			ChunkingConfig: &aiplatformpb.RagFileChunkingConfig_FixedLengthChunking_{
				FixedLengthChunking: &aiplatformpb.RagFileChunkingConfig_FixedLengthChunking{
					ChunkSize:    input.ChunkSize,
					ChunkOverlap: input.ChunkOverlap,
				},
			},
		},
	}

	// GCS and Drive sources are a oneof, so each kind is imported separately
	var configs []*aiplatformpb.ImportRagFilesConfig
	if len(input.GCSURIs) > 0 {
		configs = append(configs, &aiplatformpb.ImportRagFilesConfig{
			ImportSource: &aiplatformpb.ImportRagFilesConfig_GcsSource{
				GcsSource: &aiplatformpb.GcsSource{Uris: input.GCSURIs},
			},
			RagFileTransformationConfig: transformation,
			MaxEmbeddingRequestsPerMin:  input.MaxEmbeddingRequestsPerMin,
		})
	}
	if len(input.DriveFileIDs) > 0 {
		ids := make([]*aiplatformpb.GoogleDriveSource_ResourceId, 0, len(input.DriveFileIDs))
		for _, id := range input.DriveFileIDs {
			ids = append(ids, &aiplatformpb.GoogleDriveSource_ResourceId{
				ResourceId:   id,
				ResourceType: aiplatformpb.GoogleDriveSource_ResourceId_RESOURCE_TYPE_FILE,
			})
		}
		configs = append(configs, &aiplatformpb.ImportRagFilesConfig{
			ImportSource: &aiplatformpb.ImportRagFilesConfig_GoogleDriveSource{
				GoogleDriveSource: &aiplatformpb.GoogleDriveSource{ResourceIds: ids},
			},
			RagFileTransformationConfig: transformation,
			MaxEmbeddingRequestsPerMin:  input.MaxEmbeddingRequestsPerMin,
		})
	}

	result := &ImportFilesResult{}
	for _, cfg := range configs {
		op, err := c.data.ImportRagFiles(ctx, &aiplatformpb.ImportRagFilesRequest{
			Parent:               resourceName,
			ImportRagFilesConfig: cfg,
		})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to import files", goerr.V("corpus", resourceName), goerr.T(model.TagUpstream))
		}

		resp, err := op.Wait(ctx)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to wait for file import", goerr.V("corpus", resourceName), goerr.T(model.TagUpstream))
		}

		result.Imported += resp.GetImportedRagFilesCount()
		result.Failed += resp.GetFailedRagFilesCount()
		result.Skipped += resp.GetSkippedRagFilesCount()
	}

	return result, nil
}

func (c *ragClient) ListFiles(ctx context.Context, resourceName string) ([]*model.Document, error) {
	it := c.data.ListRagFiles(ctx, &aiplatformpb.ListRagFilesRequest{
		Parent: resourceName,
	})

	var docs []*model.Document
	for {
		file, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list files", goerr.V("corpus", resourceName), goerr.T(model.TagUpstream))
		}

		var sourceURI string
		if uris := file.GetGcsSource().GetUris(); len(uris) > 0 {
			sourceURI = uris[0]
		}

		docs = append(docs, &model.Document{
			FileID:      model.LastSegment(file.GetName()),
			DisplayName: file.GetDisplayName(),
			SourceURI:   sourceURI,
			CreateTime:  model.FormatTime(toTime(file.GetCreateTime())),
			UpdateTime:  model.FormatTime(toTime(file.GetUpdateTime())),
		})
	}

	return docs, nil
}

func (c *ragClient) DeleteFile(ctx context.Context, fileResourceName string) error {
	op, err := c.data.DeleteRagFile(ctx, &aiplatformpb.DeleteRagFileRequest{
		Name: fileResourceName,
	})
	if err != nil {
		return goerr.Wrap(err, "failed to delete file", goerr.V("file", fileResourceName), goerr.T(model.TagUpstream))
	}

	if err := op.Wait(ctx); err != nil {
		return goerr.Wrap(err, "failed to wait for file deletion", goerr.V("file", fileResourceName), goerr.T(model.TagUpstream))
	}

	return nil
}

func (c *ragClient) RetrieveContexts(ctx context.Context, resourceName string, input RetrieveInput) ([]*RetrievedContext, error) {
	req := &aiplatformpb.RetrieveContextsRequest{
		Parent: c.parent(),
		DataSource: &aiplatformpb.RetrieveContextsRequest_VertexRagStore_{
			VertexRagStore: &aiplatformpb.RetrieveContextsRequest_VertexRagStore{
				RagResources: []*aiplatformpb.RetrieveContextsRequest_VertexRagStore_RagResource{
					{RagCorpus: resourceName},
				},
			},
		},
		Query: &aiplatformpb.RagQuery{
			Query: &aiplatformpb.RagQuery_Text{Text: input.Query},
			RagRetrievalConfig: &aiplatformpb.RagRetrievalConfig{
				TopK: input.TopK,
				Filter: &aiplatformpb.RagRetrievalConfig_Filter{
					VectorDbThreshold: &aiplatformpb.RagRetrievalConfig_Filter_VectorDistanceThreshold{
						VectorDistanceThreshold: input.VectorDistanceThreshold,
					},
				},
			},
		},
	}

	resp, err := c.retrieve.RetrieveContexts(ctx, req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to retrieve contexts", goerr.V("corpus", resourceName), goerr.T(model.TagUpstream))
	}

	var results []*RetrievedContext
	for _, rc := range resp.GetContexts().GetContexts() {
		results = append(results, &RetrievedContext{
			SourceURI:  rc.GetSourceUri(),
			SourceName: rc.GetSourceDisplayName(),
			Text:       rc.GetText(),
			Score:      rc.GetScore(),
		})
	}

	return results, nil
}

func toCorpus(c *aiplatformpb.RagCorpus) *model.Corpus {
	return &model.Corpus{
		ResourceName: c.GetName(),
		DisplayName:  c.GetDisplayName(),
		CreateTime:   toTime(c.GetCreateTime()),
		UpdateTime:   toTime(c.GetUpdateTime()),
	}
}

func toTime(ts *timestamppb.Timestamp) time.Time {
	if ts == nil {
		return time.Time{}
	}
	return ts.AsTime()
}
