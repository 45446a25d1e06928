package repository

import (
	"context"

	"github.com/m-mizutani/imoye/pkg/model"
)

// Repository defines the interface for session state persistence
type Repository interface {
	// GetSession retrieves a session by ID. Returns model.ErrSessionNotFound when absent
	GetSession(ctx context.Context, id model.SessionID) (*model.Session, error)

	// PutSession creates or replaces a session
	PutSession(ctx context.Context, session *model.Session) error

	// DeleteSession removes a session. Deleting an absent session is not an error
	DeleteSession(ctx context.Context, id model.SessionID) error
}
