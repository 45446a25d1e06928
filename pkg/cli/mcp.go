package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/imoye/pkg/service/mcp"
	"github.com/m-mizutani/imoye/pkg/tool"
	"github.com/m-mizutani/imoye/pkg/tool/rag"
	"github.com/m-mizutani/imoye/pkg/utils/logging"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/urfave/cli/v3"
)

func mcpCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve corpus tools to an MCP client over stdio",
		Flags: globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			// stdout carries the protocol; setupLogger writes to stderr
			ctx, err := cfg.setupLogger(ctx)
			if err != nil {
				return err
			}

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			ragClient, err := cfg.newRAG(ctx)
			if err != nil {
				return err
			}
			storage, err := cfg.newStorage(ctx)
			if err != nil {
				return err
			}

			registry := tool.New(rag.New(rag.WithFullTools(true)))
			if err := registry.Init(ctx, &tool.Client{Corpus: cfg.newCorpus(ragClient, repo, storage)}); err != nil {
				return goerr.Wrap(err, "failed to initialize tools")
			}

			srv, err := mcp.NewServer(registry, Version)
			if err != nil {
				return err
			}

			logging.From(ctx).Info("serving MCP over stdio", "tools", registry.Names())
			return srv.Run(ctx, &mcpsdk.StdioTransport{})
		},
	}
}
