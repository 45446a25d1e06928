package agent

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/imoye/pkg/tool"
	"github.com/urfave/cli/v3"
	"google.golang.org/genai"
)

// CoreToolName is the function the voice agent calls to reach the core agent
const CoreToolName = "imoye_rag_core"

// CoreTool exposes a full core agent turn as a single function
type CoreTool struct {
	core *Core
}

var _ tool.Tool = (*CoreTool)(nil)

// NewCoreTool wraps core as a tool
func NewCoreTool(core *Core) *CoreTool {
	return &CoreTool{core: core}
}

func (x *CoreTool) Flags() []cli.Flag { return nil }

func (x *CoreTool) Init(ctx context.Context, client *tool.Client) (bool, error) {
	return x.core != nil, nil
}

func (x *CoreTool) Prompt(ctx context.Context) string { return "" }

func (x *CoreTool) Spec() *genai.Tool {
	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name:        CoreToolName,
				Description: "Answer questions about document corpora and manage them. Pass the user's request in full.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"request": {
							Type:        genai.TypeString,
							Description: "The user's request",
						},
					},
					Required: []string{"request"},
				},
			},
		},
	}
}

func (x *CoreTool) Execute(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error) {
	request, _ := fc.Args["request"].(string)
	if request == "" {
		return nil, goerr.New("request is required", goerr.V("name", fc.Name))
	}

	turn, err := x.core.Run(ctx, nil, request)
	if err != nil {
		return nil, goerr.Wrap(err, "core agent failed", goerr.V("name", fc.Name))
	}

	return &genai.FunctionResponse{
		ID:   fc.ID,
		Name: fc.Name,
		Response: map[string]any{
			"result": turn.Text(),
		},
	}, nil
}
