// Package rag exposes corpus management and retrieval as LLM function calls.
package rag

import (
	"context"
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/imoye/pkg/model"
	"github.com/m-mizutani/imoye/pkg/tool"
	"github.com/m-mizutani/imoye/pkg/usecase/corpus"
	"github.com/urfave/cli/v3"
	"google.golang.org/genai"
)

const (
	FuncQuery            = "rag_query"
	FuncGetCorpusInfo    = "get_corpus_info"
	FuncListCorpora      = "list_corpora"
	FuncCreateCorpus     = "create_corpus"
	FuncAddData          = "add_data"
	FuncDeleteDocument   = "delete_document"
	FuncDeleteCorpus     = "delete_corpus"
	FuncSetCurrentCorpus = "set_current_corpus"
)

type input struct {
	CorpusName string   `json:"corpus_name"`
	Query      string   `json:"query"`
	Paths      []string `json:"paths"`
	DocumentID string   `json:"document_id"`
	Confirm    bool     `json:"confirm"`
}

type rag struct {
	fullTools bool
	uc        *corpus.UseCase
}

// New creates the corpus toolset. Only rag_query and get_corpus_info are
// exposed unless full tools are enabled.
func New(opts ...Option) *rag {
	r := &rag{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Option is a functional option for the toolset
type Option func(*rag)

// WithFullTools exposes management functions as well as retrieval
func WithFullTools(enabled bool) Option {
	return func(r *rag) {
		r.fullTools = enabled
	}
}

// Flags returns CLI flags for this tool
func (x *rag) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        "agent-full-tools",
			Usage:       "Allow the agent to create, modify and delete corpora",
			Sources:     cli.EnvVars("IMOYE_AGENT_FULL_TOOLS"),
			Destination: &x.fullTools,
		},
	}
}

// Init initializes the tool
func (x *rag) Init(ctx context.Context, client *tool.Client) (bool, error) {
	if client == nil || client.Corpus == nil {
		return false, nil
	}
	x.uc = client.Corpus
	return true, nil
}

// Prompt returns additional information to be added to the system prompt
func (x *rag) Prompt(ctx context.Context) string {
	if !x.fullTools {
		return ""
	}
	return `You can also manage corpora: list_corpora, create_corpus, add_data (Google Drive URLs or gs:// paths), delete_document, delete_corpus (only with explicit user confirmation) and set_current_corpus.`
}

func corpusNameSchema(desc string) *genai.Schema {
	return &genai.Schema{
		Type:        genai.TypeString,
		Description: desc,
	}
}

// Spec returns the tool specification for Gemini function calling
func (x *rag) Spec() *genai.Tool {
	decls := []*genai.FunctionDeclaration{
		{
			Name:        FuncQuery,
			Description: "Query a corpus and return the most relevant passages. If corpus_name is empty, the current corpus is used.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"corpus_name": corpusNameSchema("Display name or full resource name of the corpus. Empty to use the current corpus"),
					"query":       {Type: genai.TypeString, Description: "The question to search for"},
				},
				Required: []string{"query"},
			},
		},
		{
			Name:        FuncGetCorpusInfo,
			Description: "Get details of a corpus including the documents it contains",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"corpus_name": corpusNameSchema("Display name or full resource name of the corpus. Empty to use the current corpus"),
				},
			},
		},
	}

	if x.fullTools {
		decls = append(decls,
			&genai.FunctionDeclaration{
				Name:        FuncListCorpora,
				Description: "List all available corpora",
				Parameters:  &genai.Schema{Type: genai.TypeObject, Properties: map[string]*genai.Schema{}},
			},
			&genai.FunctionDeclaration{
				Name:        FuncCreateCorpus,
				Description: "Create a new corpus and make it the current corpus",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"corpus_name": corpusNameSchema("Name of the new corpus"),
					},
					Required: []string{"corpus_name"},
				},
			},
			&genai.FunctionDeclaration{
				Name:        FuncAddData,
				Description: "Import files into a corpus from Google Drive URLs or gs:// paths",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"corpus_name": corpusNameSchema("Target corpus. Empty to use the current corpus"),
						"paths": {
							Type:        genai.TypeArray,
							Description: "Google Drive URLs or gs:// paths",
							Items:       &genai.Schema{Type: genai.TypeString},
						},
					},
					Required: []string{"paths"},
				},
			},
			&genai.FunctionDeclaration{
				Name:        FuncDeleteDocument,
				Description: "Delete a single document from a corpus",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"corpus_name": corpusNameSchema("Corpus holding the document"),
						"document_id": {Type: genai.TypeString, Description: "File ID as shown by get_corpus_info"},
					},
					Required: []string{"corpus_name", "document_id"},
				},
			},
			&genai.FunctionDeclaration{
				Name:        FuncDeleteCorpus,
				Description: "Delete a corpus and all of its documents. Requires confirm=true",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"corpus_name": corpusNameSchema("Corpus to delete"),
						"confirm":     {Type: genai.TypeBoolean, Description: "Must be true to delete"},
					},
					Required: []string{"corpus_name", "confirm"},
				},
			},
			&genai.FunctionDeclaration{
				Name:        FuncSetCurrentCorpus,
				Description: "Make a corpus the current corpus for this conversation",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"corpus_name": corpusNameSchema("Corpus to use by default"),
					},
					Required: []string{"corpus_name"},
				},
			},
		)
	}

	return &genai.Tool{FunctionDeclarations: decls}
}

// Execute runs the tool with the given function call
func (x *rag) Execute(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error) {
	if x.uc == nil {
		return nil, goerr.New("rag tool is not initialized")
	}

	paramsJSON, err := json.Marshal(fc.Args)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal function arguments")
	}

	var in input
	if err := json.Unmarshal(paramsJSON, &in); err != nil {
		return nil, goerr.Wrap(err, "failed to parse input parameters", goerr.V("name", fc.Name))
	}

	result, err := x.call(ctx, fc.Name, in)
	if err != nil {
		return nil, err
	}

	return &genai.FunctionResponse{
		ID:       fc.ID,
		Name:     fc.Name,
		Response: result,
	}, nil
}

func (x *rag) call(ctx context.Context, name string, in input) (model.Result, error) {
	sessionID := tool.SessionFrom(ctx)

	switch name {
	case FuncQuery:
		return x.uc.Query(ctx, sessionID, in.CorpusName, in.Query)
	case FuncGetCorpusInfo:
		return x.uc.GetCorpusInfo(ctx, sessionID, in.CorpusName)
	}

	if !x.fullTools {
		return nil, goerr.New("function is not enabled", goerr.V("name", name))
	}

	switch name {
	case FuncListCorpora:
		return x.uc.ListCorpora(ctx)
	case FuncCreateCorpus:
		return x.uc.CreateCorpus(ctx, sessionID, in.CorpusName)
	case FuncAddData:
		return x.uc.AddData(ctx, sessionID, in.CorpusName, in.Paths)
	case FuncDeleteDocument:
		return x.uc.DeleteDocument(ctx, sessionID, in.CorpusName, in.DocumentID)
	case FuncDeleteCorpus:
		return x.uc.DeleteCorpus(ctx, sessionID, in.CorpusName, in.Confirm)
	case FuncSetCurrentCorpus:
		return x.uc.SetCurrentCorpus(ctx, sessionID, in.CorpusName)
	default:
		return nil, goerr.New("unknown function", goerr.V("name", name))
	}
}
