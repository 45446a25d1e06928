package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/imoye/pkg/model"
	"google.golang.org/genai"
)

func historyKey(id model.SessionID) string {
	return "chat_histories/" + string(id) + ".json"
}

// loadHistory returns the conversation contents of a session. With history
// storage the object is read even when the session record has expired.
func (uc *UseCase) loadHistory(ctx context.Context, sessionID model.SessionID) ([]*genai.Content, error) {
	if uc.storage == nil {
		session, err := uc.getSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		return session.History, nil
	}

	reader, err := uc.storage.Get(ctx, historyKey(sessionID))
	if err != nil {
		if errors.Is(err, model.ErrObjectNotFound) {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to get history from storage", goerr.V("session_id", sessionID))
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read history data", goerr.V("session_id", sessionID))
	}

	var contents []*genai.Content
	if err := json.Unmarshal(data, &contents); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal history contents", goerr.V("session_id", sessionID))
	}

	return contents, nil
}

// saveHistory writes contents to Cloud Storage when configured, otherwise
// into the session. The session is read again first because tools may have
// changed other fields, such as the current corpus, during the turn.
func (uc *UseCase) saveHistory(ctx context.Context, sessionID model.SessionID, contents []*genai.Content) error {
	if uc.storage != nil {
		data, err := json.Marshal(contents)
		if err != nil {
			return goerr.Wrap(err, "failed to marshal history contents")
		}

		if _, err := uc.storage.Put(ctx, historyKey(sessionID), "application/json", bytes.NewReader(data)); err != nil {
			return goerr.Wrap(err, "failed to write history to storage", goerr.V("session_id", sessionID))
		}
	}

	session, err := uc.getSession(ctx, sessionID)
	if err != nil {
		return err
	}

	session.UpdatedAt = time.Now()
	if uc.storage != nil {
		session.History = nil
	} else {
		session.History = contents
	}

	if err := uc.repo.PutSession(ctx, session); err != nil {
		return goerr.Wrap(err, "failed to save session", goerr.V("session_id", sessionID))
	}

	return nil
}

// getSession returns the stored session or a new one when absent
func (uc *UseCase) getSession(ctx context.Context, sessionID model.SessionID) (*model.Session, error) {
	session, err := uc.repo.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			return model.NewSession(sessionID), nil
		}
		return nil, goerr.Wrap(err, "failed to get session", goerr.V("session_id", sessionID))
	}
	return session, nil
}
