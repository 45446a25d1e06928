package cli

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/imoye/pkg/model"
	"github.com/m-mizutani/imoye/pkg/usecase/corpus"
	"github.com/urfave/cli/v3"
)

// cliSession keys the current corpus between corpus subcommands when a
// persistent session store is configured
const cliSession model.SessionID = "cli"

func corpusCommand() *cli.Command {
	var cfg config

	// withCorpus sets up dependencies and runs fn with the corpus use case
	withCorpus := func(fn func(ctx context.Context, c *cli.Command, uc *corpus.UseCase) (model.Result, error)) cli.ActionFunc {
		return func(ctx context.Context, c *cli.Command) error {
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

			result, err := fn(ctx, c, cfg.newCorpus(ragClient, repo, storage))
			if err != nil {
				return err
			}
			return printResult(c.Root().Writer, result)
		}
	}

	return &cli.Command{
		Name:  "corpus",
		Usage: "Manage RAG corpora",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List all corpora",
				Flags: globalFlags(&cfg),
				Action: withCorpus(func(ctx context.Context, c *cli.Command, uc *corpus.UseCase) (model.Result, error) {
					return uc.ListCorpora(ctx)
				}),
			},
			{
				Name:      "create",
				Usage:     "Create a corpus",
				ArgsUsage: "<name>",
				Flags:     globalFlags(&cfg),
				Action: withCorpus(func(ctx context.Context, c *cli.Command, uc *corpus.UseCase) (model.Result, error) {
					return uc.CreateCorpus(ctx, cliSession, c.Args().First())
				}),
			},
			{
				Name:      "delete",
				Usage:     "Delete a corpus and all its files",
				ArgsUsage: "<name>",
				Flags: append([]cli.Flag{
					&cli.BoolFlag{
						Name:  "confirm",
						Usage: "Confirm deletion",
					},
				}, globalFlags(&cfg)...),
				Action: withCorpus(func(ctx context.Context, c *cli.Command, uc *corpus.UseCase) (model.Result, error) {
					return uc.DeleteCorpus(ctx, cliSession, c.Args().First(), c.Bool("confirm"))
				}),
			},
			{
				Name:      "info",
				Usage:     "Show files in a corpus",
				ArgsUsage: "[name]",
				Flags:     globalFlags(&cfg),
				Action: withCorpus(func(ctx context.Context, c *cli.Command, uc *corpus.UseCase) (model.Result, error) {
					return uc.GetCorpusInfo(ctx, cliSession, c.Args().First())
				}),
			},
			{
				Name:      "add",
				Usage:     "Import Google Drive URLs or gs:// paths into a corpus",
				ArgsUsage: "<name> <path>...",
				Flags:     globalFlags(&cfg),
				Action: withCorpus(func(ctx context.Context, c *cli.Command, uc *corpus.UseCase) (model.Result, error) {
					args := c.Args().Slice()
					if len(args) < 2 {
						return nil, goerr.New("corpus name and at least one path are required")
					}
					return uc.AddData(ctx, cliSession, args[0], args[1:])
				}),
			},
			{
				Name:      "delete-document",
				Usage:     "Delete a file from a corpus",
				ArgsUsage: "<name> <document-id>",
				Flags:     globalFlags(&cfg),
				Action: withCorpus(func(ctx context.Context, c *cli.Command, uc *corpus.UseCase) (model.Result, error) {
					return uc.DeleteDocument(ctx, cliSession, c.Args().Get(0), c.Args().Get(1))
				}),
			},
			{
				Name:      "query",
				Usage:     "Retrieve passages relevant to a query",
				ArgsUsage: "<name> <query>",
				Flags:     globalFlags(&cfg),
				Action: withCorpus(func(ctx context.Context, c *cli.Command, uc *corpus.UseCase) (model.Result, error) {
					return uc.Query(ctx, cliSession, c.Args().Get(0), c.Args().Get(1))
				}),
			},
			{
				Name:      "upload",
				Usage:     "Upload a local file to Cloud Storage and import it",
				ArgsUsage: "<name> <file>",
				Flags:     globalFlags(&cfg),
				Action: withCorpus(func(ctx context.Context, c *cli.Command, uc *corpus.UseCase) (model.Result, error) {
					return uploadFile(ctx, uc, c.Args().Get(0), c.Args().Get(1))
				}),
			},
		},
	}
}

func uploadFile(ctx context.Context, uc *corpus.UseCase, corpusName, path string) (model.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open file", goerr.V("path", path))
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to stat file", goerr.V("path", path))
	}

	return uc.UploadDocument(ctx, cliSession, corpus.UploadInput{
		CorpusName:  corpusName,
		Filename:    filepath.Base(path),
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
		Size:        info.Size(),
		Body:        f,
	})
}

func printResult(w io.Writer, result model.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return goerr.Wrap(err, "failed to write result")
	}
	return nil
}
