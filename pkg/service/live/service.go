package live

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/imoye/pkg/model"
	"github.com/m-mizutani/imoye/pkg/repository"
)

// ConnectFunc opens an agent session for a client
type ConnectFunc func(ctx context.Context, sessionID model.SessionID, isAudio bool) (Agent, error)

// Service registers sessions and runs bridges
type Service struct {
	connect ConnectFunc
	repo    repository.Repository
}

// NewService creates a new live service
func NewService(connect ConnectFunc, repo repository.Repository) *Service {
	return &Service{
		connect: connect,
		repo:    repo,
	}
}

// Serve records the session, starts the agent and bridges conn to it until
// either side closes. The current corpus of an existing session is kept.
func (s *Service) Serve(ctx context.Context, sessionID model.SessionID, isAudio bool, conn Conn) error {
	if err := s.touch(ctx, sessionID, isAudio); err != nil {
		return err
	}

	agent, err := s.connect(ctx, sessionID, isAudio)
	if err != nil {
		return goerr.Wrap(err, "failed to start agent session", goerr.V("session_id", sessionID))
	}

	return Run(ctx, sessionID, conn, agent)
}

func (s *Service) touch(ctx context.Context, sessionID model.SessionID, isAudio bool) error {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, model.ErrSessionNotFound) {
			return goerr.Wrap(err, "failed to get session", goerr.V("session_id", sessionID))
		}
		session = model.NewSession(sessionID)
	}

	session.IsAudio = isAudio
	session.UpdatedAt = time.Now()

	if err := s.repo.PutSession(ctx, session); err != nil {
		return goerr.Wrap(err, "failed to save session", goerr.V("session_id", sessionID))
	}
	return nil
}
