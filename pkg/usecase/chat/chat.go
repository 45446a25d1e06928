// Package chat runs non-streaming conversation turns against the core agent.
package chat

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/imoye/pkg/adapter"
	"github.com/m-mizutani/imoye/pkg/agent"
	"github.com/m-mizutani/imoye/pkg/model"
	"github.com/m-mizutani/imoye/pkg/repository"
	"github.com/m-mizutani/imoye/pkg/tool"
	"github.com/m-mizutani/imoye/pkg/utils/logging"
)

// Reply is the result of one chat turn
type Reply struct {
	Responses    []string `json:"responses"`
	TurnComplete bool     `json:"turn_complete"`
}

// UseCase keeps per-session conversation history and forwards messages to
// the core agent
type UseCase struct {
	core    *agent.Core
	gemini  adapter.Gemini
	repo    repository.Repository
	storage adapter.Storage

	summaryModel string

	locksMu sync.Mutex
	locks   map[model.SessionID]*sessionLock
}

// sessionLock serializes turns of one session. Entries are removed once no
// turn holds or waits for them.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithHistoryStorage stores conversation contents in Cloud Storage instead
// of the session repository
func WithHistoryStorage(storage adapter.Storage) Option {
	return func(uc *UseCase) {
		uc.storage = storage
	}
}

// WithSummaryModel sets the model used to compress long histories
func WithSummaryModel(name string) Option {
	return func(uc *UseCase) {
		uc.summaryModel = name
	}
}

// New creates a new chat use case
func New(core *agent.Core, gemini adapter.Gemini, repo repository.Repository, opts ...Option) *UseCase {
	uc := &UseCase{
		core:         core,
		gemini:       gemini,
		repo:         repo,
		summaryModel: agent.DefaultCoreModel,
		locks:        make(map[model.SessionID]*sessionLock),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *UseCase) lock(id model.SessionID) func() {
	uc.locksMu.Lock()
	l, ok := uc.locks[id]
	if !ok {
		l = &sessionLock{}
		uc.locks[id] = l
	}
	l.refs++
	uc.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		uc.locksMu.Lock()
		defer uc.locksMu.Unlock()
		l.refs--
		if l.refs == 0 {
			delete(uc.locks, id)
		}
	}
}

// Send processes one user message. Turns of the same session are
// serialized.
func (uc *UseCase) Send(ctx context.Context, sessionID model.SessionID, message string) (*Reply, error) {
	if sessionID == "" {
		return nil, goerr.New("session ID is required", goerr.T(model.TagValidation))
	}
	if message == "" {
		return nil, goerr.New("Message field is required", goerr.T(model.TagValidation))
	}

	unlock := uc.lock(sessionID)
	defer unlock()

	ctx = tool.WithSession(ctx, sessionID)
	logger := logging.From(ctx).With("session_id", sessionID)
	ctx = logging.With(ctx, logger)

	history, err := uc.loadHistory(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	turn, err := uc.core.Run(ctx, history, message)
	if isTokenLimitError(err) {
		logger.Info("history exceeds token limit, compressing", "contents", len(history))
		compressed, cErr := compressHistory(ctx, uc.gemini, uc.summaryModel, history)
		if cErr != nil {
			return nil, goerr.Wrap(cErr, "failed to compress history", goerr.V("session_id", sessionID))
		}
		turn, err = uc.core.Run(ctx, compressed, message)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "agent failed", goerr.V("session_id", sessionID))
	}

	if err := uc.saveHistory(ctx, sessionID, turn.History); err != nil {
		return nil, err
	}

	responses := turn.Texts
	if responses == nil {
		responses = []string{}
	}

	return &Reply{
		Responses:    responses,
		TurnComplete: turn.Complete,
	}, nil
}

// Reset drops the conversation history of a session. The current corpus is
// kept.
func (uc *UseCase) Reset(ctx context.Context, sessionID model.SessionID) error {
	unlock := uc.lock(sessionID)
	defer unlock()

	return uc.saveHistory(ctx, sessionID, nil)
}
