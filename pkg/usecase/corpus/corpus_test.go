package corpus_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/imoye/pkg/adapter"
	"github.com/m-mizutani/imoye/pkg/adapter/mock"
	"github.com/m-mizutani/imoye/pkg/model"
	"github.com/m-mizutani/imoye/pkg/repository"
	"github.com/m-mizutani/imoye/pkg/usecase/corpus"
)

type fixture struct {
	rag     *mock.RAG
	storage *mock.Storage
	repo    *repository.Memory
	uc      *corpus.UseCase
}

func newFixture(bucket string) *fixture {
	f := &fixture{
		rag:     mock.NewRAG(),
		storage: mock.NewStorage(bucket),
		repo:    repository.NewMemory(time.Hour, time.Minute),
	}
	f.uc = corpus.New(f.rag, f.repo, corpus.WithStorage(f.storage))
	return f
}

func (f *fixture) current(t *testing.T, id model.SessionID) string {
	t.Helper()
	session, err := f.repo.GetSession(context.Background(), id)
	gt.NoError(t, err)
	return session.CurrentCorpus
}

func TestCreateCorpus(t *testing.T) {
	ctx := context.Background()
	f := newFixture("bucket")

	result, err := f.uc.CreateCorpus(ctx, "s1", "my notes")
	gt.NoError(t, err)
	gt.Equal(t, result.Status(), model.StatusSuccess)
	gt.Equal(t, result["display_name"], "my_notes")
	gt.Equal(t, result["corpus_created"], true)
	gt.Equal(t, f.current(t, "s1"), result["corpus_name"].(string))

	t.Run("already exists", func(t *testing.T) {
		again, err := f.uc.CreateCorpus(ctx, "s1", "my notes")
		gt.NoError(t, err)
		gt.Equal(t, again.Status(), model.StatusInfo)
		gt.Equal(t, again["corpus_created"], false)
	})

	t.Run("empty name", func(t *testing.T) {
		r, err := f.uc.CreateCorpus(ctx, "s1", "")
		gt.NoError(t, err)
		gt.Equal(t, r.Status(), model.StatusError)
	})

	t.Run("backend failure is a result", func(t *testing.T) {
		f.rag.FailWith = goerr.New("quota exceeded")
		defer func() { f.rag.FailWith = nil }()

		r, err := f.uc.CreateCorpus(ctx, "s1", "other")
		gt.NoError(t, err)
		gt.Equal(t, r.Status(), model.StatusError)
		gt.S(t, r.Message()).Contains("quota exceeded")
	})
}

func TestDeleteCorpus(t *testing.T) {
	ctx := context.Background()
	f := newFixture("bucket")
	resource := f.rag.AddCorpus("research")
	gt.NoError(t, f.uc.Resolver().SetCurrent(ctx, "s1", resource))

	r, err := f.uc.DeleteCorpus(ctx, "s1", "research", false)
	gt.NoError(t, err)
	gt.Equal(t, r.Status(), model.StatusError)
	gt.S(t, r.Message()).Contains("confirm")
	gt.True(t, f.uc.CorpusExists(ctx, "research"))

	r, err = f.uc.DeleteCorpus(ctx, "s1", "research", true)
	gt.NoError(t, err)
	gt.Equal(t, r.Status(), model.StatusSuccess)
	gt.False(t, f.uc.CorpusExists(ctx, "research"))
	gt.Equal(t, f.current(t, "s1"), "")

	r, err = f.uc.DeleteCorpus(ctx, "s1", "research", true)
	gt.NoError(t, err)
	gt.Equal(t, r.Message(), "Corpus 'research' does not exist")
}

func TestAddData(t *testing.T) {
	ctx := context.Background()
	f := newFixture("bucket")
	f.rag.AddCorpus("research")

	r, err := f.uc.AddData(ctx, "s1", "research", []string{
		"gs://bucket/a.pdf",
		"https://docs.google.com/document/d/abc_123/edit",
		"https://example.com/file.pdf",
	})
	gt.NoError(t, err)
	gt.Equal(t, r.Status(), model.StatusSuccess)
	gt.V(t, r["files_added"]).Equal(int64(2))
	gt.A(t, r["invalid_paths"].([]string)).Length(1)

	imports := f.rag.Imports()
	gt.A(t, imports).Length(1)
	gt.Equal(t, imports[0].GCSURIs, []string{"gs://bucket/a.pdf"})
	gt.Equal(t, imports[0].DriveFileIDs, []string{"abc_123"})
	gt.Equal(t, imports[0].ChunkSize, int32(512))
	gt.Equal(t, imports[0].ChunkOverlap, int32(100))
	gt.Equal(t, imports[0].MaxEmbeddingRequestsPerMin, int32(1000))

	t.Run("no valid paths", func(t *testing.T) {
		r, err := f.uc.AddData(ctx, "s1", "research", []string{"/tmp/local.pdf"})
		gt.NoError(t, err)
		gt.Equal(t, r.Status(), model.StatusError)
	})

	t.Run("unknown corpus", func(t *testing.T) {
		r, err := f.uc.AddData(ctx, "s1", "ghost", []string{"gs://bucket/a.pdf"})
		gt.NoError(t, err)
		gt.Equal(t, r.Status(), model.StatusError)
		gt.S(t, r.Message()).Contains("does not exist")
	})

	t.Run("no paths", func(t *testing.T) {
		r, err := f.uc.AddData(ctx, "s1", "research", nil)
		gt.NoError(t, err)
		gt.Equal(t, r["files_added"], 0)
	})
}

func TestGetCorpusInfo(t *testing.T) {
	ctx := context.Background()
	f := newFixture("bucket")
	resource := f.rag.AddCorpus("research")
	f.rag.AddFile(resource, &model.Document{FileID: "9", DisplayName: "a.pdf", SourceURI: "gs://bucket/a.pdf"})

	r, err := f.uc.GetCorpusInfo(ctx, "s1", "research")
	gt.NoError(t, err)
	gt.Equal(t, r.Status(), model.StatusSuccess)
	gt.Equal(t, r["file_count"], 1)
	gt.Equal(t, r["corpus_display_name"], "research")

	t.Run("unknown corpus", func(t *testing.T) {
		r, err := f.uc.GetCorpusInfo(ctx, "", "ghost")
		gt.NoError(t, err)
		gt.Equal(t, r, model.Result{
			"status":      "error",
			"message":     "Corpus 'ghost' does not exist",
			"corpus_name": "ghost",
		})
	})

	t.Run("empty name uses current corpus", func(t *testing.T) {
		r, err := f.uc.GetCorpusInfo(ctx, "s1", "")
		gt.NoError(t, err)
		gt.V(t, r["corpus_name"]).Equal(resource)
		gt.Equal(t, r["corpus_display_name"], "research")
	})
}

func TestDeleteDocument(t *testing.T) {
	ctx := context.Background()
	f := newFixture("bucket")
	resource := f.rag.AddCorpus("research")
	f.rag.AddFile(resource, &model.Document{FileID: "9"})

	r, err := f.uc.DeleteDocument(ctx, "s1", "research", "9")
	gt.NoError(t, err)
	gt.Equal(t, r.Status(), model.StatusSuccess)

	r, err = f.uc.DeleteDocument(ctx, "s1", "research", "9")
	gt.NoError(t, err)
	gt.Equal(t, r.Status(), model.StatusError)
}

func TestListCorpora(t *testing.T) {
	ctx := context.Background()
	f := newFixture("bucket")
	f.rag.AddCorpus("a")
	f.rag.AddCorpus("b")

	r, err := f.uc.ListCorpora(ctx)
	gt.NoError(t, err)
	gt.Equal(t, r.Message(), "Found 2 available corpora")
	gt.A(t, r["corpora"].([]map[string]any)).Length(2)
}

func TestQuery(t *testing.T) {
	ctx := context.Background()
	f := newFixture("bucket")
	f.rag.AddCorpus("research")

	r, err := f.uc.Query(ctx, "s1", "research", "what is imoye")
	gt.NoError(t, err)
	gt.Equal(t, r.Status(), model.StatusWarning)
	gt.Equal(t, r["results_count"], 0)

	f.rag.Contexts = []*adapter.RetrievedContext{
		{SourceURI: "gs://b/1", SourceName: "1", Text: "one", Score: 0.1},
		{SourceURI: "gs://b/2", SourceName: "2", Text: "two", Score: 0.2},
		{SourceURI: "gs://b/3", SourceName: "3", Text: "three", Score: 0.3},
		{SourceURI: "gs://b/4", SourceName: "4", Text: "four", Score: 0.4},
	}

	// the previous query made research current
	r, err = f.uc.Query(ctx, "s1", "", "what is imoye")
	gt.NoError(t, err)
	gt.Equal(t, r.Status(), model.StatusSuccess)
	gt.Equal(t, r["results_count"], 3)

	r, err = f.uc.Query(ctx, "other", "", "what is imoye")
	gt.NoError(t, err)
	gt.Equal(t, r.Status(), model.StatusError)
}

func TestUploadDocument(t *testing.T) {
	ctx := context.Background()

	t.Run("upload and import", func(t *testing.T) {
		f := newFixture("b")
		f.rag.AddCorpus("research")

		data := bytes.Repeat([]byte("x"), 1024*1024)
		r, err := f.uc.UploadDocument(ctx, "s1", corpus.UploadInput{
			CorpusName:  "research",
			Filename:    "notes.PDF",
			ContentType: "application/pdf",
			Size:        int64(len(data)),
			Body:        bytes.NewReader(data),
		})
		gt.NoError(t, err)
		gt.Equal(t, r.Status(), model.StatusSuccess)

		blob := r["blob_name"].(string)
		gt.True(t, strings.HasPrefix(blob, "rag_uploads/"))
		gt.True(t, strings.HasSuffix(blob, "_notes.PDF"))
		gt.V(t, r["file_url"]).Equal("gs://b/" + blob)

		objects := f.storage.Objects()
		gt.Map(t, objects).HasKey(blob)
		gt.Equal(t, len(objects[blob].Data), len(data))

		added := r["add_data_result"].(model.Result)
		gt.Equal(t, added.Status(), model.StatusSuccess)
		gt.Equal(t, f.rag.Imports()[0].GCSURIs, []string{"gs://b/" + blob})
	})

	t.Run("oversized file", func(t *testing.T) {
		f := newFixture("b")
		f.rag.AddCorpus("research")

		_, err := f.uc.UploadDocument(ctx, "s1", corpus.UploadInput{
			CorpusName: "research",
			Filename:   "big.pdf",
			Size:       50 * 1024 * 1024,
			Body:       strings.NewReader(""),
		})
		gt.Error(t, err)
		gt.True(t, goerr.HasTag(err, model.TagValidation))
		gt.Equal(t, err.Error(), "File size 50.00MB exceeds 40MB limit.")
		gt.Equal(t, len(f.storage.Objects()), 0)
	})

	t.Run("extension not allowed", func(t *testing.T) {
		f := newFixture("b")
		_, err := f.uc.UploadDocument(ctx, "s1", corpus.UploadInput{
			CorpusName: "research",
			Filename:   "run.exe",
			Body:       strings.NewReader("x"),
		})
		gt.True(t, goerr.HasTag(err, model.TagValidation))
		gt.S(t, err.Error()).Contains(".exe not allowed")
	})

	t.Run("bucket not configured", func(t *testing.T) {
		f := newFixture("")
		_, err := f.uc.UploadDocument(ctx, "s1", corpus.UploadInput{
			CorpusName: "research",
			Filename:   "a.txt",
			Body:       strings.NewReader("x"),
		})
		gt.True(t, goerr.HasTag(err, model.TagValidation))
	})
}
