package rag_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/imoye/pkg/adapter"
	"github.com/m-mizutani/imoye/pkg/adapter/mock"
	"github.com/m-mizutani/imoye/pkg/model"
	"github.com/m-mizutani/imoye/pkg/repository"
	"github.com/m-mizutani/imoye/pkg/tool"
	"github.com/m-mizutani/imoye/pkg/tool/rag"
	"github.com/m-mizutani/imoye/pkg/usecase/corpus"
	"google.golang.org/genai"
)

func setup(t *testing.T, opts ...rag.Option) (*tool.Registry, *mock.RAG, *repository.Memory) {
	t.Helper()
	backend := mock.NewRAG()
	repo := repository.NewMemory(time.Hour, time.Minute)
	uc := corpus.New(backend, repo)

	registry := tool.New(rag.New(opts...))
	gt.NoError(t, registry.Init(context.Background(), &tool.Client{Corpus: uc}))
	return registry, backend, repo
}

func TestCoreFunctions(t *testing.T) {
	registry, _, _ := setup(t)
	gt.Equal(t, registry.Names(), []string{rag.FuncQuery, rag.FuncGetCorpusInfo})
	gt.Equal(t, registry.Prompts(context.Background()), "")

	_, err := registry.Execute(context.Background(), genai.FunctionCall{
		Name: rag.FuncCreateCorpus,
		Args: map[string]any{"corpus_name": "x"},
	})
	gt.Error(t, err)
}

func TestFullTools(t *testing.T) {
	registry, backend, repo := setup(t, rag.WithFullTools(true))
	gt.A(t, registry.Names()).Length(8)

	ctx := tool.WithSession(context.Background(), "s1")

	resp, err := registry.Execute(ctx, genai.FunctionCall{
		ID:   "call-1",
		Name: rag.FuncCreateCorpus,
		Args: map[string]any{"corpus_name": "research"},
	})
	gt.NoError(t, err)
	gt.Equal(t, resp.ID, "call-1")
	gt.Equal(t, resp.Name, rag.FuncCreateCorpus)
	gt.V(t, resp.Response["status"]).Equal("success")

	session, err := repo.GetSession(ctx, "s1")
	gt.NoError(t, err)
	gt.True(t, session.CurrentCorpus != "")

	resp, err = registry.Execute(ctx, genai.FunctionCall{
		Name: rag.FuncAddData,
		Args: map[string]any{"paths": []any{"gs://bucket/doc.pdf"}},
	})
	gt.NoError(t, err)
	gt.V(t, resp.Response["status"]).Equal("success")
	gt.A(t, backend.Imports()).Length(1)

	backend.Contexts = []*adapter.RetrievedContext{{SourceURI: "gs://bucket/doc.pdf", Text: "answer"}}
	resp, err = registry.Execute(ctx, genai.FunctionCall{
		Name: rag.FuncQuery,
		Args: map[string]any{"query": "question"},
	})
	gt.NoError(t, err)
	gt.V(t, resp.Response["status"]).Equal(string(model.StatusSuccess))

	resp, err = registry.Execute(ctx, genai.FunctionCall{
		Name: rag.FuncDeleteCorpus,
		Args: map[string]any{"corpus_name": "research"},
	})
	gt.NoError(t, err)
	gt.V(t, resp.Response["status"]).Equal("error")
}

func TestNotInitialized(t *testing.T) {
	registry := tool.New(rag.New())
	gt.NoError(t, registry.Init(context.Background(), &tool.Client{}))
	gt.A(t, registry.Names()).Length(0)
}
