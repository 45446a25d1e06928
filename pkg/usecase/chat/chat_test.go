package chat_test

import (
	"context"
	"bytes"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/imoye/pkg/adapter/mock"
	"github.com/m-mizutani/imoye/pkg/agent"
	"github.com/m-mizutani/imoye/pkg/model"
	"github.com/m-mizutani/imoye/pkg/repository"
	"github.com/m-mizutani/imoye/pkg/tool"
	"github.com/m-mizutani/imoye/pkg/tool/rag"
	"github.com/m-mizutani/imoye/pkg/usecase/chat"
	"github.com/m-mizutani/imoye/pkg/usecase/corpus"
	"google.golang.org/genai"
)

type harness struct {
	backend *mock.RAG
	repo    *repository.Memory
	gemini  *mock.Gemini
	core    *agent.Core
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		backend: mock.NewRAG(),
		repo:    repository.NewMemory(time.Hour, time.Minute),
		gemini:  &mock.Gemini{},
	}

	registry := tool.New(rag.New(rag.WithFullTools(true)))
	gt.NoError(t, registry.Init(context.Background(), &tool.Client{Corpus: corpus.New(h.backend, h.repo)}))
	h.core = agent.NewCore(h.gemini, registry, agent.DefaultConfig().Core)
	return h
}

func TestSend(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var seen int
	h.gemini.GenerateContentFunc = func(ctx context.Context, modelName string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		seen = len(contents)
		last := contents[len(contents)-1]
		if last.Parts[0].FunctionResponse != nil {
			return mock.TextResponse(genai.NewPartFromText("Created.")), nil
		}
		return mock.TextResponse(genai.NewPartFromFunctionCall(rag.FuncCreateCorpus, map[string]any{"corpus_name": "research"})), nil
	}

	uc := chat.New(h.core, h.gemini, h.repo)
	reply, err := uc.Send(ctx, "s1", "create a corpus named research")
	gt.NoError(t, err)
	gt.Equal(t, reply.Responses, []string{"Created."})
	gt.True(t, reply.TurnComplete)

	session, err := h.repo.GetSession(ctx, "s1")
	gt.NoError(t, err)
	gt.True(t, session.CurrentCorpus != "")
	gt.A(t, session.History).Length(4)

	t.Run("history is carried to the next turn", func(t *testing.T) {
		h.gemini.GenerateContentFunc = func(ctx context.Context, modelName string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			seen = len(contents)
			return mock.TextResponse(genai.NewPartFromText("Hello again.")), nil
		}

		reply, err := uc.Send(ctx, "s1", "hello")
		gt.NoError(t, err)
		gt.Equal(t, reply.Responses, []string{"Hello again."})
		gt.Equal(t, seen, 5)
	})

	t.Run("reset drops history and keeps corpus", func(t *testing.T) {
		gt.NoError(t, uc.Reset(ctx, "s1"))
		session, err := h.repo.GetSession(ctx, "s1")
		gt.NoError(t, err)
		gt.A(t, session.History).Length(0)
		gt.True(t, session.CurrentCorpus != "")
	})
}

func TestSendValidation(t *testing.T) {
	h := newHarness(t)
	uc := chat.New(h.core, h.gemini, h.repo)

	_, err := uc.Send(context.Background(), "s1", "")
	gt.True(t, goerr.HasTag(err, model.TagValidation))
	gt.Equal(t, err.Error(), "Message field is required")
}

func TestSendAgentError(t *testing.T) {
	h := newHarness(t)
	h.gemini.GenerateContentFunc = func(ctx context.Context, modelName string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		return nil, goerr.New("unavailable")
	}

	uc := chat.New(h.core, h.gemini, h.repo)
	_, err := uc.Send(context.Background(), "s1", "hello")
	gt.Error(t, err)
	gt.False(t, goerr.HasTag(err, model.TagValidation))
}

func TestSendCompressesOnTokenLimit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	history := []*genai.Content{
		genai.NewContentFromText("first question about the research corpus", genai.RoleUser),
		genai.NewContentFromText("first answer about the research corpus", genai.RoleModel),
		genai.NewContentFromText("second question about the research corpus", genai.RoleUser),
		genai.NewContentFromText("second answer about the research corpus", genai.RoleModel),
	}
	session := model.NewSession("s1")
	session.History = history
	gt.NoError(t, h.repo.PutSession(ctx, session))

	var calls int
	h.gemini.GenerateContentFunc = func(ctx context.Context, modelName string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		calls++
		switch calls {
		case 1:
			return nil, goerr.Wrap(genai.APIError{
				Code:    400,
				Status:  "INVALID_ARGUMENT",
				Message: "The input token count (2000000) exceeds the maximum number of tokens allowed (1048576).",
			}, "failed to generate content")
		case 2:
			gt.Equal(t, modelName, agent.DefaultCoreModel)
			return mock.TextResponse(genai.NewPartFromText("summary")), nil
		default:
			gt.S(t, contents[0].Parts[0].Text).Contains("Previous Conversation Summary")
			return mock.TextResponse(genai.NewPartFromText("answer")), nil
		}
	}

	uc := chat.New(h.core, h.gemini, h.repo)
	reply, err := uc.Send(ctx, "s1", "third question")
	gt.NoError(t, err)
	gt.Equal(t, reply.Responses, []string{"answer"})
	gt.Equal(t, calls, 3)
}

func TestSendWithHistoryStorage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	storage := mock.NewStorage("bucket")

	h.gemini.GenerateContentFunc = func(ctx context.Context, modelName string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		return mock.TextResponse(genai.NewPartFromText("hi")), nil
	}

	uc := chat.New(h.core, h.gemini, h.repo, chat.WithHistoryStorage(storage))
	_, err := uc.Send(ctx, "s1", "hello")
	gt.NoError(t, err)

	session, err := h.repo.GetSession(ctx, "s1")
	gt.NoError(t, err)
	gt.A(t, session.History).Length(0)

	r, err := storage.Get(ctx, "chat_histories/s1.json")
	gt.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	gt.NoError(t, err)

	var contents []*genai.Content
	gt.NoError(t, json.Unmarshal(data, &contents))
	gt.A(t, contents).Length(2)
}

func TestSendKeepsCorpusSetByToolAfterPlainTurn(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	resource := h.backend.AddCorpus("manuals")

	uc := chat.New(h.core, h.gemini, h.repo)

	h.gemini.GenerateContentFunc = func(ctx context.Context, modelName string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		return mock.TextResponse(genai.NewPartFromText("Hello.")), nil
	}
	_, err := uc.Send(ctx, "s1", "hello")
	gt.NoError(t, err)

	h.gemini.GenerateContentFunc = func(ctx context.Context, modelName string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		last := contents[len(contents)-1]
		if last.Parts[0].FunctionResponse != nil {
			return mock.TextResponse(genai.NewPartFromText("Found it.")), nil
		}
		return mock.TextResponse(genai.NewPartFromFunctionCall(rag.FuncQuery, map[string]any{
			"corpus_name": "manuals",
			"query":       "how to reset the device",
		})), nil
	}
	reply, err := uc.Send(ctx, "s1", "search the manuals")
	gt.NoError(t, err)
	gt.Equal(t, reply.Responses, []string{"Found it."})

	session, err := h.repo.GetSession(ctx, "s1")
	gt.NoError(t, err)
	gt.Equal(t, session.CurrentCorpus, resource)
	gt.A(t, session.History).Length(6)
}

func TestSendReusesStoredHistoryOfExpiredSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	storage := mock.NewStorage("bucket")

	stored := []*genai.Content{
		genai.NewContentFromText("what is in the research corpus?", genai.RoleUser),
		genai.NewContentFromText("Two papers.", genai.RoleModel),
	}
	data, err := json.Marshal(stored)
	gt.NoError(t, err)
	_, err = storage.Put(ctx, "chat_histories/s1.json", "application/json", bytes.NewReader(data))
	gt.NoError(t, err)

	var seen int
	h.gemini.GenerateContentFunc = func(ctx context.Context, modelName string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		seen = len(contents)
		return mock.TextResponse(genai.NewPartFromText("The first is about retrieval.")), nil
	}

	uc := chat.New(h.core, h.gemini, h.repo, chat.WithHistoryStorage(storage))
	_, err = uc.Send(ctx, "s1", "tell me about the first one")
	gt.NoError(t, err)
	gt.Equal(t, seen, 3)

	r, err := storage.Get(ctx, "chat_histories/s1.json")
	gt.NoError(t, err)
	defer r.Close()
	saved, err := io.ReadAll(r)
	gt.NoError(t, err)

	var contents []*genai.Content
	gt.NoError(t, json.Unmarshal(saved, &contents))
	gt.A(t, contents).Length(4)
	gt.Equal(t, contents[0].Parts[0].Text, "what is in the research corpus?")

	_, err = h.repo.GetSession(ctx, "s1")
	gt.NoError(t, err)
}

func TestSessionLocksAreReleased(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.gemini.GenerateContentFunc = func(ctx context.Context, modelName string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		return mock.TextResponse(genai.NewPartFromText("ok")), nil
	}

	uc := chat.New(h.core, h.gemini, h.repo)

	var wg sync.WaitGroup
	for _, id := range []model.SessionID{"s1", "s1", "s2", "s3"} {
		wg.Add(1)
		go func(id model.SessionID) {
			defer wg.Done()
			_, err := uc.Send(ctx, id, "hello")
			gt.NoError(t, err)
		}(id)
	}
	wg.Wait()
	gt.NoError(t, uc.Reset(ctx, "s2"))

	gt.Equal(t, uc.LockCountForTest(), 0)

	session, err := h.repo.GetSession(ctx, "s1")
	gt.NoError(t, err)
	gt.A(t, session.History).Length(4)
}
