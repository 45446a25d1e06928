// Package mcp serves the corpus toolset to MCP clients.
package mcp

import (
	"context"
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/imoye/pkg/model"
	"github.com/m-mizutani/imoye/pkg/tool"
	"github.com/m-mizutani/imoye/pkg/utils/logging"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"google.golang.org/genai"
)

// SessionID keys the current corpus for every MCP call. A stdio server
// has exactly one client.
const SessionID model.SessionID = "mcp"

// Server exposes every function of a tool registry as an MCP tool
type Server struct {
	registry *tool.Registry
	server   *mcp.Server
}

// NewServer builds an MCP server from an initialized registry
func NewServer(registry *tool.Registry, version string) (*Server, error) {
	s := &Server{
		registry: registry,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "imoye",
			Version: version,
		}, nil),
	}

	for _, spec := range registry.Specs() {
		for _, fd := range spec.FunctionDeclarations {
			schema, err := toJSONSchema(fd.Parameters)
			if err != nil {
				return nil, goerr.Wrap(err, "failed to convert tool schema", goerr.V("tool", fd.Name))
			}

			s.server.AddTool(&mcp.Tool{
				Name:        fd.Name,
				Description: fd.Description,
				InputSchema: schema,
			}, s.handler(fd.Name))
		}
	}

	return s, nil
}

// Run serves until the client disconnects or ctx is canceled
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	if err := s.server.Run(ctx, transport); err != nil {
		return goerr.Wrap(err, "MCP server stopped")
	}
	return nil
}

func (s *Server) handler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		logger := logging.From(ctx).With("tool", name)

		args := map[string]any{}
		if req.Params != nil && len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return errorResult("invalid arguments: " + err.Error()), nil
			}
		}

		ctx = tool.WithSession(ctx, SessionID)
		resp, err := s.registry.Execute(ctx, genai.FunctionCall{Name: name, Args: args})
		if err != nil {
			logger.Error("tool execution failed", "error", err)
			return errorResult(err.Error()), nil
		}

		raw, err := json.Marshal(resp.Response)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to marshal tool response", goerr.V("tool", name))
		}

		result := model.Result(resp.Response)
		logger.Debug("tool executed", "status", result.Status())

		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(raw)}},
			IsError: result.Status() == model.StatusError,
		}, nil
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}
