package cli

import (
	"context"
	"net"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/imoye/pkg/agent"
	server "github.com/m-mizutani/imoye/pkg/controller/http"
	"github.com/m-mizutani/imoye/pkg/model"
	"github.com/m-mizutani/imoye/pkg/service/live"
	"github.com/m-mizutani/imoye/pkg/tool"
	"github.com/m-mizutani/imoye/pkg/tool/rag"
	"github.com/m-mizutani/imoye/pkg/usecase/chat"
	"github.com/m-mizutani/imoye/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	var (
		cfg  config
		host string
		port int64
	)

	registry := tool.New(rag.New())

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "host",
			Usage:       "Address to listen on",
			Value:       "0.0.0.0",
			Sources:     cli.EnvVars("HOST"),
			Destination: &host,
		},
		&cli.IntFlag{
			Name:        "port",
			Usage:       "Port to listen on",
			Value:       8080,
			Sources:     cli.EnvVars("PORT"),
			Destination: &port,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, agentFlags(&cfg)...)
	flags = append(flags, registry.Flags()...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the REST and WebSocket API",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setupLogger(ctx)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}

			ragClient, err := cfg.newRAG(ctx)
			if err != nil {
				return err
			}

			gemini, err := cfg.newGemini(ctx)
			if err != nil {
				return err
			}

			storage, err := cfg.newStorage(ctx)
			if err != nil {
				return err
			}

			corpusUC := cfg.newCorpus(ragClient, repo, storage)

			core, agentCfg, err := cfg.newCore(ctx, gemini, registry, corpusUC)
			if err != nil {
				return err
			}

			voiceTools := tool.New(agent.NewCoreTool(core))
			if err := voiceTools.Init(ctx, &tool.Client{Corpus: corpusUC}); err != nil {
				return goerr.Wrap(err, "failed to initialize voice tools")
			}
			voice := agent.NewVoice(gemini, voiceTools, agentCfg.Voice)

			connect := func(ctx context.Context, sessionID model.SessionID, isAudio bool) (live.Agent, error) {
				session, err := voice.Connect(ctx, sessionID, isAudio)
				if err != nil {
					return nil, err
				}
				return session, nil
			}

			chatOpts := []chat.Option{}
			if storage != nil {
				chatOpts = append(chatOpts, chat.WithHistoryStorage(storage))
			}

			srv := server.New(
				server.WithCorpus(corpusUC),
				server.WithChat(chat.New(core, gemini, repo, chatOpts...)),
				server.WithLive(live.NewService(connect, repo)),
				server.WithUploadLimitMB(cfg.maxUploadMB),
			)

			logging.From(ctx).Info("starting imoye",
				"project", cfg.project,
				"location", cfg.location,
				"bucket", cfg.bucket,
				"session_store", cfg.sessionStore,
				"tools", registry.Names(),
			)

			return srv.Listen(ctx, net.JoinHostPort(host, strconv.FormatInt(port, 10)))
		},
	}
}
