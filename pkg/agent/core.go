// Package agent runs Gemini agents over the corpus toolset: a text agent
// that executes function calls, and a live voice agent that delegates to it.
package agent

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/imoye/pkg/adapter"
	"github.com/m-mizutani/imoye/pkg/tool"
	"github.com/m-mizutani/imoye/pkg/utils/logging"
	"google.golang.org/genai"
)

const maxIterations = 8

// Core is the text agent. It answers one user message per Run, calling
// registry tools until the model stops requesting them.
type Core struct {
	gemini   adapter.Gemini
	registry *tool.Registry
	cfg      CoreConfig
}

// NewCore creates a new core agent
func NewCore(gemini adapter.Gemini, registry *tool.Registry, cfg CoreConfig) *Core {
	return &Core{
		gemini:   gemini,
		registry: registry,
		cfg:      cfg,
	}
}

// Turn is the outcome of one user message
type Turn struct {
	// Texts holds every text part the model produced, in order
	Texts []string
	// History is the conversation including this turn
	History []*genai.Content
	// Complete is false when the tool call limit stopped the turn
	Complete bool
}

// Text joins all text parts of the turn
func (t *Turn) Text() string {
	return strings.Join(t.Texts, "\n")
}

func (c *Core) config(ctx context.Context) *genai.GenerateContentConfig {
	instruction := c.cfg.Instruction
	if prompts := c.registry.Prompts(ctx); prompts != "" {
		instruction += "\n\n" + prompts
	}

	thinkingBudget := int32(0)
	return &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(instruction, ""),
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  &thinkingBudget,
		},
		Tools: c.registry.Specs(),
	}
}

// Run appends message to history and drives the function call loop
func (c *Core) Run(ctx context.Context, history []*genai.Content, message string) (*Turn, error) {
	logger := logging.From(ctx)
	config := c.config(ctx)

	contents := append([]*genai.Content{}, history...)
	contents = append(contents, genai.NewContentFromText(message, genai.RoleUser))

	turn := &Turn{}

	for i := 0; i < maxIterations; i++ {
		resp, err := c.gemini.GenerateContent(ctx, c.cfg.Model, contents, config)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to generate content")
		}

		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			return nil, goerr.New("empty response from Gemini", goerr.V("model", c.cfg.Model))
		}

		candidate := resp.Candidates[0]
		if candidate.Content.Role == "" {
			candidate.Content.Role = genai.RoleModel
		}
		contents = append(contents, candidate.Content)

		var functionResponses []*genai.Part
		for _, part := range candidate.Content.Parts {
			if part.Text != "" && !part.Thought {
				turn.Texts = append(turn.Texts, part.Text)
			}

			if part.FunctionCall != nil {
				logger.Debug("function call", "name", part.FunctionCall.Name, "args", part.FunctionCall.Args)
				functionResponses = append(functionResponses, &genai.Part{
					FunctionResponse: c.execute(ctx, *part.FunctionCall),
				})
			}
		}

		if len(functionResponses) == 0 {
			turn.History = contents
			turn.Complete = true
			return turn, nil
		}

		// Add all function responses as a single Content
		contents = append(contents, &genai.Content{
			Role:  genai.RoleUser,
			Parts: functionResponses,
		})
	}

	logger.Warn("function call loop reached the iteration limit", "limit", maxIterations)
	turn.History = contents
	return turn, nil
}

// execute runs a tool and always returns a response so the model can react
// to failures
func (c *Core) execute(ctx context.Context, fc genai.FunctionCall) *genai.FunctionResponse {
	resp, err := c.registry.Execute(ctx, fc)
	if err != nil {
		logging.From(ctx).Warn("tool execution failed", "name", fc.Name, "error", err)
		return &genai.FunctionResponse{
			ID:   fc.ID,
			Name: fc.Name,
			Response: map[string]any{
				"status":  "error",
				"message": err.Error(),
			},
		}
	}
	return resp
}
