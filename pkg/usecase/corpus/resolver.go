package corpus

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/imoye/pkg/adapter"
	"github.com/m-mizutani/imoye/pkg/model"
	"github.com/m-mizutani/imoye/pkg/repository"
	"github.com/m-mizutani/imoye/pkg/utils/logging"
)

// Resolver maps a logical corpus name, or the session's current corpus when
// no name is given, to the backend resource name. The corpus directory is
// listed on every call and never cached.
type Resolver struct {
	rag  adapter.RAG
	repo repository.Repository
}

// NewResolver creates a new Resolver
func NewResolver(rag adapter.RAG, repo repository.Repository) *Resolver {
	return &Resolver{
		rag:  rag,
		repo: repo,
	}
}

// Resolve returns the resource name for name. An empty name falls back to the
// current corpus of the session. Unknown names and an unset current corpus
// fail with model.ErrCorpusNotFound.
func (r *Resolver) Resolve(ctx context.Context, sessionID model.SessionID, name string) (string, error) {
	if name == "" {
		return r.Current(ctx, sessionID)
	}

	corpus, err := r.lookup(ctx, name)
	if err != nil {
		return "", err
	}
	return corpus.ResourceName, nil
}

// Exists reports whether name matches a known corpus. It never fails; lookup
// errors count as absence.
func (r *Resolver) Exists(ctx context.Context, name string) bool {
	if name == "" {
		return false
	}

	if _, err := r.lookup(ctx, name); err != nil {
		if !errors.Is(err, model.ErrCorpusNotFound) {
			logging.From(ctx).Warn("corpus lookup failed", "corpus_name", name, "error", err)
		}
		return false
	}
	return true
}

// Current returns the current corpus of the session
func (r *Resolver) Current(ctx context.Context, sessionID model.SessionID) (string, error) {
	if sessionID == "" {
		return "", goerr.Wrap(model.ErrCorpusNotFound, "no corpus name given and no session to fall back on")
	}

	session, err := r.repo.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			return "", goerr.Wrap(model.ErrCorpusNotFound, "no current corpus is set", goerr.V("session_id", sessionID))
		}
		return "", goerr.Wrap(err, "failed to get session", goerr.V("session_id", sessionID))
	}

	if session.CurrentCorpus == "" {
		return "", goerr.Wrap(model.ErrCorpusNotFound, "no current corpus is set", goerr.V("session_id", sessionID))
	}
	return session.CurrentCorpus, nil
}

// SetCurrent stores resourceName as the session's current corpus. The value
// is written as given without checking that the corpus exists.
func (r *Resolver) SetCurrent(ctx context.Context, sessionID model.SessionID, resourceName string) error {
	if sessionID == "" {
		return nil
	}

	session, err := r.repo.GetSession(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, model.ErrSessionNotFound) {
			return goerr.Wrap(err, "failed to get session", goerr.V("session_id", sessionID))
		}
		session = model.NewSession(sessionID)
	}

	session.CurrentCorpus = resourceName
	if err := r.repo.PutSession(ctx, session); err != nil {
		return goerr.Wrap(err, "failed to save current corpus", goerr.V("session_id", sessionID))
	}
	return nil
}

// lookup matches name against display names, then resource names, exactly
// and case-sensitively
func (r *Resolver) lookup(ctx context.Context, name string) (*model.Corpus, error) {
	corpora, err := r.rag.ListCorpora(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list corpora", goerr.V("corpus_name", name))
	}

	for _, c := range corpora {
		if c.DisplayName == name {
			return c, nil
		}
	}
	if model.IsCorpusResourceName(name) {
		for _, c := range corpora {
			if c.ResourceName == name {
				return c, nil
			}
		}
	}

	return nil, goerr.Wrap(model.ErrCorpusNotFound, "corpus does not exist", goerr.V("corpus_name", name))
}
