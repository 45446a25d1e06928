package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/imoye/pkg/model"
	"github.com/m-mizutani/imoye/pkg/tool"
	"github.com/m-mizutani/imoye/pkg/tool/rag"
	"github.com/m-mizutani/imoye/pkg/usecase/chat"
	"github.com/m-mizutani/imoye/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func chatCommand() *cli.Command {
	var (
		cfg       config
		sessionID string
	)

	registry := tool.New(rag.New())

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "session-id",
			Aliases:     []string{"s"},
			Usage:       "Session to resume. A new one is created when empty",
			Sources:     cli.EnvVars("IMOYE_SESSION_ID"),
			Destination: &sessionID,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, agentFlags(&cfg)...)
	flags = append(flags, registry.Flags()...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Talk to the corpus agent in the terminal",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
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
			gemini, err := cfg.newGemini(ctx)
			if err != nil {
				return err
			}
			storage, err := cfg.newStorage(ctx)
			if err != nil {
				return err
			}

			core, _, err := cfg.newCore(ctx, gemini, registry, cfg.newCorpus(ragClient, repo, storage))
			if err != nil {
				return err
			}

			var opts []chat.Option
			if storage != nil {
				opts = append(opts, chat.WithHistoryStorage(storage))
			}
			uc := chat.New(core, gemini, repo, opts...)

			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			return repl(ctx, c.Root().Writer, uc, model.SessionID(sessionID))
		},
	}
}

func repl(ctx context.Context, w io.Writer, uc *chat.UseCase, sessionID model.SessionID) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		HistoryFile:     historyFile(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdout:          w,
	})
	if err != nil {
		return goerr.Wrap(err, "failed to start readline")
	}
	defer rl.Close()

	fmt.Fprintf(w, "Chat session %s started. Type 'exit' to quit, '/reset' to clear history.\n", sessionID)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				break
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return goerr.Wrap(err, "failed to read input")
		}

		message := strings.TrimSpace(line)
		switch message {
		case "":
			continue
		case "exit", "quit":
			fmt.Fprintf(w, "\nChat session completed\n")
			return nil
		case "/reset":
			if err := uc.Reset(ctx, sessionID); err != nil {
				return err
			}
			fmt.Fprintln(w, "History cleared.")
			continue
		}

		sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
		sp.Suffix = " thinking..."
		sp.Start()
		reply, err := uc.Send(ctx, sessionID, message)
		sp.Stop()

		if err != nil {
			logging.From(ctx).Error("agent failed", "error", err)
			fmt.Fprintln(w, "Agent error")
			continue
		}

		for _, text := range reply.Responses {
			fmt.Fprintln(w, text)
		}
		if !reply.TurnComplete {
			fmt.Fprintln(w, "(the agent stopped before finishing; ask it to continue)")
		}
	}

	fmt.Fprintf(w, "\nChat session completed\n")
	return nil
}

func historyFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "imoye_history")
}
