package adapter

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/imoye/pkg/model"
	"google.golang.org/genai"
)

type Gemini interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	ConnectLive(ctx context.Context, model string, config *genai.LiveConnectConfig) (LiveConn, error)
}

// LiveConn is a bidirectional Live API session. *genai.Session satisfies it.
type LiveConn interface {
	SendClientContent(input genai.LiveClientContentInput) error
	SendRealtimeInput(input genai.LiveRealtimeInput) error
	SendToolResponse(input genai.LiveToolResponseInput) error
	Receive() (*genai.LiveServerMessage, error)
	Close() error
}

type GeminiClient struct {
	client *genai.Client
}

func NewGemini(ctx context.Context, projectID, location string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}

	return &GeminiClient{client: client}, nil
}

func (g *GeminiClient) GenerateContent(ctx context.Context, modelName string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	resp, err := g.client.Models.GenerateContent(ctx, modelName, contents, config)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate content", goerr.V("model", modelName), goerr.T(model.TagUpstream))
	}
	return resp, nil
}

func (g *GeminiClient) ConnectLive(ctx context.Context, modelName string, config *genai.LiveConnectConfig) (LiveConn, error) {
	session, err := g.client.Live.Connect(ctx, modelName, config)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to connect live session", goerr.V("model", modelName), goerr.T(model.TagUpstream))
	}
	return session, nil
}
