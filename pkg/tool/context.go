package tool

import (
	"context"

	"github.com/m-mizutani/imoye/pkg/model"
)

type sessionKey struct{}

// WithSession attaches the conversation's session ID so tools can read and
// update per-session state such as the current corpus
func WithSession(ctx context.Context, id model.SessionID) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionFrom returns the session ID attached to ctx, or empty
func SessionFrom(ctx context.Context) model.SessionID {
	if id, ok := ctx.Value(sessionKey{}).(model.SessionID); ok {
		return id
	}
	return ""
}
