package mock

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/imoye/pkg/adapter"
	"google.golang.org/genai"
)

// Gemini delegates to the configured functions
type Gemini struct {
	GenerateContentFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	ConnectLiveFunc     func(ctx context.Context, model string, config *genai.LiveConnectConfig) (adapter.LiveConn, error)
}

var _ adapter.Gemini = (*Gemini)(nil)

func (g *Gemini) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if g.GenerateContentFunc == nil {
		return nil, goerr.New("GenerateContent is not mocked")
	}
	return g.GenerateContentFunc(ctx, model, contents, config)
}

func (g *Gemini) ConnectLive(ctx context.Context, model string, config *genai.LiveConnectConfig) (adapter.LiveConn, error) {
	if g.ConnectLiveFunc == nil {
		return nil, goerr.New("ConnectLive is not mocked")
	}
	return g.ConnectLiveFunc(ctx, model, config)
}

// TextResponse builds a single-candidate response containing the given parts
func TextResponse(parts ...*genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Role: genai.RoleModel, Parts: parts}},
		},
	}
}

// LiveConn is a scripted Live API session
type LiveConn struct {
	// Messages are returned by Receive in order. Closing the channel ends
	// the stream.
	Messages chan *genai.LiveServerMessage

	ClientContents []genai.LiveClientContentInput
	RealtimeInputs []genai.LiveRealtimeInput
	ToolResponses  []genai.LiveToolResponseInput

	mu        sync.Mutex
	closed    chan struct{}
	closeOnce sync.Once
}

var _ adapter.LiveConn = (*LiveConn)(nil)

func NewLiveConn() *LiveConn {
	return &LiveConn{
		Messages: make(chan *genai.LiveServerMessage, 64),
		closed:   make(chan struct{}),
	}
}

func (c *LiveConn) SendClientContent(input genai.LiveClientContentInput) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ClientContents = append(c.ClientContents, input)
	return nil
}

func (c *LiveConn) SendRealtimeInput(input genai.LiveRealtimeInput) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.RealtimeInputs = append(c.RealtimeInputs, input)
	return nil
}

func (c *LiveConn) SendToolResponse(input genai.LiveToolResponseInput) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ToolResponses = append(c.ToolResponses, input)
	return nil
}

func (c *LiveConn) Receive() (*genai.LiveServerMessage, error) {
	select {
	case msg, ok := <-c.Messages:
		if !ok {
			return nil, errLiveClosed
		}
		return msg, nil
	case <-c.closed:
		return nil, errLiveClosed
	}
}

func (c *LiveConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// Closed reports whether Close was called
func (c *LiveConn) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

var errLiveClosed = goerr.New("live session closed")
