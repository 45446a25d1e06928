package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/imoye/pkg/adapter/mock"
	"github.com/m-mizutani/imoye/pkg/agent"
	server "github.com/m-mizutani/imoye/pkg/controller/http"
	"github.com/m-mizutani/imoye/pkg/model"
	"github.com/m-mizutani/imoye/pkg/repository"
	"github.com/m-mizutani/imoye/pkg/service/live"
	"github.com/m-mizutani/imoye/pkg/tool"
	"github.com/m-mizutani/imoye/pkg/tool/rag"
	"github.com/m-mizutani/imoye/pkg/usecase/chat"
	"github.com/m-mizutani/imoye/pkg/usecase/corpus"
	"google.golang.org/genai"
)

type fixture struct {
	backend *mock.RAG
	storage *mock.Storage
	gemini  *mock.Gemini
	srv     *server.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		backend: mock.NewRAG(),
		storage: mock.NewStorage("test-bucket"),
		gemini:  &mock.Gemini{},
	}
	repo := repository.NewMemory(time.Hour, time.Minute)
	corpusUC := corpus.New(f.backend, repo, corpus.WithStorage(f.storage))

	registry := tool.New(rag.New())
	gt.NoError(t, registry.Init(context.Background(), &tool.Client{Corpus: corpusUC}))
	core := agent.NewCore(f.gemini, registry, agent.DefaultConfig().Core)

	connect := func(ctx context.Context, sessionID model.SessionID, isAudio bool) (live.Agent, error) {
		return nil, goerr.New("live agent is not available in tests")
	}

	f.srv = server.New(
		server.WithCorpus(corpusUC),
		server.WithChat(chat.New(core, f.gemini, repo)),
		server.WithLive(live.NewService(connect, repo)),
	)
	return f
}

func (f *fixture) do(t *testing.T, req *nethttp.Request) (int, map[string]any) {
	t.Helper()
	resp, err := f.srv.App().Test(req, -1)
	gt.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	gt.NoError(t, err)

	var body map[string]any
	if len(raw) > 0 {
		gt.NoError(t, json.Unmarshal(raw, &body))
	}
	return resp.StatusCode, body
}

func jsonRequest(method, path string, body any) *nethttp.Request {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestWelcome(t *testing.T) {
	f := newFixture(t)
	status, body := f.do(t, httptest.NewRequest(nethttp.MethodGet, "/", nil))
	gt.Equal(t, status, nethttp.StatusOK)
	gt.V(t, body["status"]).Equal("healthy")
	gt.Map(t, body).HasKey("timestamp")
	gt.Map(t, body).HasKey("message")
}

func TestCORS(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(nethttp.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://localhost:3000")

	resp, err := f.srv.App().Test(req, -1)
	gt.NoError(t, err)
	gt.Equal(t, resp.Header.Get("Access-Control-Allow-Origin"), "*")
}

func TestCorpusEndpoints(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, jsonRequest(nethttp.MethodPost, "/rag/create_corpus",
		map[string]any{"corpus_name": "handbook"}))
	gt.Equal(t, status, nethttp.StatusOK)
	gt.V(t, body["status"]).Equal("success")
	gt.V(t, body["display_name"]).Equal("handbook")

	status, body = f.do(t, httptest.NewRequest(nethttp.MethodGet, "/rag/check_corpus_exists?corpus_name=handbook", nil))
	gt.Equal(t, status, nethttp.StatusOK)
	gt.V(t, body["exists"]).Equal(true)

	status, body = f.do(t, httptest.NewRequest(nethttp.MethodGet, "/rag/list_corpora", nil))
	gt.Equal(t, status, nethttp.StatusOK)
	gt.V(t, body["message"]).Equal("Found 1 available corpora")

	status, body = f.do(t, jsonRequest(nethttp.MethodPost, "/rag/add_document", map[string]any{
		"corpus_name": "handbook",
		"paths":       []string{"gs://test-bucket/a.pdf", "not-a-path"},
	}))
	gt.Equal(t, status, nethttp.StatusOK)
	gt.V(t, body["status"]).Equal("success")
	gt.V(t, body["files_added"]).Equal(float64(1))

	status, body = f.do(t, httptest.NewRequest(nethttp.MethodGet, "/rag/get_corpus_info?corpus_name=handbook", nil))
	gt.Equal(t, status, nethttp.StatusOK)
	gt.V(t, body["file_count"]).Equal(float64(1))

	status, body = f.do(t, httptest.NewRequest(nethttp.MethodDelete, "/rag/delete_corpus?corpus_name=handbook", nil))
	gt.Equal(t, status, nethttp.StatusOK)
	gt.V(t, body["status"]).Equal("error")

	status, body = f.do(t, httptest.NewRequest(nethttp.MethodDelete, "/rag/delete_corpus?corpus_name=handbook&confirm=true", nil))
	gt.Equal(t, status, nethttp.StatusOK)
	gt.V(t, body["status"]).Equal("success")
}

func TestGetCorpusInfoUnknown(t *testing.T) {
	f := newFixture(t)
	status, body := f.do(t, httptest.NewRequest(nethttp.MethodGet, "/rag/get_corpus_info?corpus_name=ghost", nil))
	gt.Equal(t, status, nethttp.StatusOK)
	gt.V(t, body).Equal(map[string]any{
		"status":      "error",
		"message":     "Corpus 'ghost' does not exist",
		"corpus_name": "ghost",
	})
}

func TestGetCorpusResourceName(t *testing.T) {
	f := newFixture(t)
	resource := f.backend.AddCorpus("handbook")

	status, body := f.do(t, httptest.NewRequest(nethttp.MethodGet, "/rag/get_corpus_resource_name?corpus_name=handbook", nil))
	gt.Equal(t, status, nethttp.StatusOK)
	gt.V(t, body["resource_name"]).Equal(resource)

	status, body = f.do(t, httptest.NewRequest(nethttp.MethodGet, "/rag/get_corpus_resource_name?corpus_name=ghost", nil))
	gt.Equal(t, status, nethttp.StatusNotFound)
	gt.V(t, body["message"]).Equal("Corpus 'ghost' does not exist")
}

func TestValidation(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, jsonRequest(nethttp.MethodPost, "/rag/create_corpus", map[string]any{}))
	gt.Equal(t, status, nethttp.StatusBadRequest)
	gt.V(t, body["status"]).Equal("error")
	gt.S(t, body["message"].(string)).Contains("CorpusName")

	status, _ = f.do(t, httptest.NewRequest(nethttp.MethodGet, "/rag/get_corpus_info", nil))
	gt.Equal(t, status, nethttp.StatusBadRequest)

	status, _ = f.do(t, jsonRequest(nethttp.MethodPost, "/rag/add_document",
		map[string]any{"corpus_name": "handbook", "paths": []string{}}))
	gt.Equal(t, status, nethttp.StatusBadRequest)
}

func uploadRequest(t *testing.T, corpusName, filename string, size int) *nethttp.Request {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	gt.NoError(t, w.WriteField("corpus_name", corpusName))
	part, err := w.CreateFormFile("file", filename)
	gt.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte("a"), size))
	gt.NoError(t, err)
	gt.NoError(t, w.Close())

	req := httptest.NewRequest(nethttp.MethodPost, "/rag/upload_document", buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestUploadDocument(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		f := newFixture(t)
		f.backend.AddCorpus("handbook")

		status, body := f.do(t, uploadRequest(t, "handbook", "guide.txt", 128))
		gt.Equal(t, status, nethttp.StatusOK)
		gt.V(t, body["status"]).Equal("success")
		gt.True(t, strings.HasPrefix(body["file_url"].(string), "gs://test-bucket/rag_uploads/"))
		gt.True(t, strings.HasSuffix(body["blob_name"].(string), "_guide.txt"))
	})

	t.Run("too large", func(t *testing.T) {
		f := newFixture(t)
		f.backend.AddCorpus("handbook")

		status, body := f.do(t, uploadRequest(t, "handbook", "big.pdf", 50*1024*1024))
		gt.Equal(t, status, nethttp.StatusBadRequest)
		gt.V(t, body["message"]).Equal("File size 50.00MB exceeds 40MB limit.")
		gt.A(t, f.backend.Imports()).Length(0)
	})

	t.Run("extension not allowed", func(t *testing.T) {
		f := newFixture(t)
		f.backend.AddCorpus("handbook")

		status, body := f.do(t, uploadRequest(t, "handbook", "script.exe", 10))
		gt.Equal(t, status, nethttp.StatusBadRequest)
		gt.V(t, body["message"]).Equal("File type .exe not allowed. Allowed: pdf, txt, docx")
	})

	t.Run("missing corpus name", func(t *testing.T) {
		f := newFixture(t)
		status, _ := f.do(t, uploadRequest(t, "", "guide.txt", 10))
		gt.Equal(t, status, nethttp.StatusBadRequest)
	})
}

func TestChat(t *testing.T) {
	t.Run("reply", func(t *testing.T) {
		f := newFixture(t)
		f.gemini.GenerateContentFunc = func(ctx context.Context, modelName string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return mock.TextResponse(genai.NewPartFromText("Hello there.")), nil
		}

		status, body := f.do(t, jsonRequest(nethttp.MethodPost, "/chat/s1", map[string]any{"message": "hi"}))
		gt.Equal(t, status, nethttp.StatusOK)
		gt.V(t, body["responses"]).Equal([]any{"Hello there."})
		gt.V(t, body["turn_complete"]).Equal(true)
	})

	t.Run("missing message", func(t *testing.T) {
		f := newFixture(t)
		status, body := f.do(t, jsonRequest(nethttp.MethodPost, "/chat/s1", map[string]any{}))
		gt.Equal(t, status, nethttp.StatusBadRequest)
		gt.V(t, body["message"]).Equal("Message field is required")
	})

	t.Run("agent failure", func(t *testing.T) {
		f := newFixture(t)
		f.gemini.GenerateContentFunc = func(ctx context.Context, modelName string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return nil, goerr.New("backend unavailable")
		}

		status, body := f.do(t, jsonRequest(nethttp.MethodPost, "/chat/s1", map[string]any{"message": "hi"}))
		gt.Equal(t, status, nethttp.StatusInternalServerError)
		gt.V(t, body["message"]).Equal("Agent error")
	})
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	f := newFixture(t)
	status, _ := f.do(t, httptest.NewRequest(nethttp.MethodGet, "/ws/s1", nil))
	gt.Equal(t, status, nethttp.StatusUpgradeRequired)
}
