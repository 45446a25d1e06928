package cli

import (
	"context"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/imoye/pkg/adapter"
	"github.com/m-mizutani/imoye/pkg/agent"
	"github.com/m-mizutani/imoye/pkg/repository"
	"github.com/m-mizutani/imoye/pkg/tool"
	"github.com/m-mizutani/imoye/pkg/usecase/corpus"
	"github.com/m-mizutani/imoye/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

const (
	sessionStoreMemory    = "memory"
	sessionStoreFirestore = "firestore"
)

// config holds configuration values
type config struct {
	// Logging
	logLevel    string
	logFormat   string
	environment string

	// Google Cloud
	project        string
	location       string
	bucket         string
	embeddingModel string

	// Session state
	sessionStore string
	database     string
	sessionTTL   time.Duration

	// Agents
	agentConfig string
	maxUploadMB int64
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json). Defaults to json in production",
			Sources:     cli.EnvVars("IMOYE_LOG_FORMAT"),
			Destination: &cfg.logFormat,
		},
		&cli.StringFlag{
			Name:        "environment",
			Usage:       "Deployment environment name",
			Value:       "development",
			Sources:     cli.EnvVars("ENVIRONMENT"),
			Destination: &cfg.environment,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "location",
			Usage:       "Google Cloud location for Vertex AI",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_LOCATION"),
			Destination: &cfg.location,
		},
		&cli.StringFlag{
			Name:        "bucket",
			Usage:       "Cloud Storage bucket for uploads",
			Sources:     cli.EnvVars("GCS_BUCKET_NAME"),
			Destination: &cfg.bucket,
		},
		&cli.StringFlag{
			Name:        "embedding-model",
			Usage:       "Embedding model for new corpora",
			Value:       adapter.DefaultEmbeddingModel,
			Sources:     cli.EnvVars("IMOYE_EMBEDDING_MODEL"),
			Destination: &cfg.embeddingModel,
		},
		&cli.StringFlag{
			Name:        "session-store",
			Usage:       "Session state backend (memory, firestore)",
			Value:       sessionStoreMemory,
			Sources:     cli.EnvVars("IMOYE_SESSION_STORE"),
			Destination: &cfg.sessionStore,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
		&cli.DurationFlag{
			Name:        "session-ttl",
			Usage:       "Idle time after which in-memory sessions expire",
			Value:       time.Hour,
			Sources:     cli.EnvVars("IMOYE_SESSION_TTL"),
			Destination: &cfg.sessionTTL,
		},
		&cli.IntFlag{
			Name:        "max-upload-mb",
			Usage:       "Maximum upload size in megabytes",
			Value:       corpus.DefaultConfig().MaxUploadMB,
			Sources:     cli.EnvVars("IMOYE_MAX_UPLOAD_MB"),
			Destination: &cfg.maxUploadMB,
		},
	}
}

// agentFlags returns flags for agent configuration
func agentFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "agent-config",
			Usage:       "Path to YAML file overriding agent models, voice and instructions",
			Sources:     cli.EnvVars("IMOYE_AGENT_CONFIG"),
			Destination: &cfg.agentConfig,
		},
	}
}

// setupLogger installs the default logger and returns ctx carrying it
func (cfg *config) setupLogger(ctx context.Context) (context.Context, error) {
	format := logging.FormatConsole
	switch {
	case cfg.logFormat != "":
		f, err := logging.ParseFormat(cfg.logFormat)
		if err != nil {
			return ctx, err
		}
		format = f
	case cfg.environment == "production":
		format = logging.FormatJSON
	}

	logger := logging.New(cfg.logLevel, os.Stderr, logging.WithFormat(format)).
		With("environment", cfg.environment)
	logging.SetDefault(logger)
	return logging.With(ctx, logger), nil
}

// newRepository creates the session store selected by --session-store
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, error) {
	switch cfg.sessionStore {
	case sessionStoreMemory, "":
		return repository.NewMemory(cfg.sessionTTL, cfg.sessionTTL/4), nil

	case sessionStoreFirestore:
		if cfg.project == "" {
			return nil, goerr.New("project is required for firestore session store")
		}
		repo, err := repository.NewFirestore(ctx, cfg.project, cfg.database)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create repository")
		}
		return repo, nil

	default:
		return nil, goerr.New("unsupported session store",
			goerr.V("store", cfg.sessionStore),
			goerr.V("supported", []string{sessionStoreMemory, sessionStoreFirestore}))
	}
}

// newRAG creates a new RAG Engine adapter instance
func (cfg *config) newRAG(ctx context.Context) (adapter.RAG, error) {
	if cfg.project == "" {
		return nil, goerr.New("project is required")
	}
	if cfg.location == "" {
		return nil, goerr.New("location is required")
	}
	return adapter.NewRAG(ctx, cfg.project, cfg.location, adapter.WithEmbeddingModel(cfg.embeddingModel))
}

// newGemini creates a new Gemini adapter instance
func (cfg *config) newGemini(ctx context.Context) (adapter.Gemini, error) {
	if cfg.project == "" {
		return nil, goerr.New("project is required")
	}
	return adapter.NewGemini(ctx, cfg.project, cfg.location)
}

// newStorage creates a Storage adapter, or nil when no bucket is configured.
// Uploads then fail with a validation error instead of at startup.
func (cfg *config) newStorage(ctx context.Context) (adapter.Storage, error) {
	if cfg.bucket == "" {
		logging.From(ctx).Warn("GCS_BUCKET_NAME is not set; uploads are disabled")
		return nil, nil
	}

	storage, err := adapter.NewStorage(ctx, cfg.bucket)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage")
	}
	return storage, nil
}

// newCorpus wires the corpus use case
func (cfg *config) newCorpus(rag adapter.RAG, repo repository.Repository, storage adapter.Storage) *corpus.UseCase {
	corpusCfg := corpus.DefaultConfig()
	corpusCfg.MaxUploadMB = cfg.maxUploadMB

	opts := []corpus.Option{corpus.WithConfig(corpusCfg)}
	if storage != nil {
		opts = append(opts, corpus.WithStorage(storage))
	}
	return corpus.New(rag, repo, opts...)
}

// newCore builds the core agent over an already constructed registry
func (cfg *config) newCore(ctx context.Context, gemini adapter.Gemini, registry *tool.Registry, uc *corpus.UseCase) (*agent.Core, agent.Config, error) {
	agentCfg, err := agent.LoadConfig(cfg.agentConfig)
	if err != nil {
		return nil, agentCfg, err
	}

	if err := registry.Init(ctx, &tool.Client{Corpus: uc}); err != nil {
		return nil, agentCfg, goerr.Wrap(err, "failed to initialize tools")
	}

	return agent.NewCore(gemini, registry, agentCfg.Core), agentCfg, nil
}
