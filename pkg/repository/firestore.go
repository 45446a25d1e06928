package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/imoye/pkg/model"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const sessionCollection = "sessions"

// Firestore stores session state in a Firestore database. Conversation
// history is not persisted.
type Firestore struct {
	client *firestore.Client
}

var _ Repository = (*Firestore)(nil)

// NewFirestore creates a new Firestore repository
func NewFirestore(ctx context.Context, projectID, databaseID string) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project", projectID),
			goerr.V("database", databaseID))
	}

	return &Firestore{client: client}, nil
}

func (r *Firestore) GetSession(ctx context.Context, id model.SessionID) (*model.Session, error) {
	doc, err := r.client.Collection(sessionCollection).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrSessionNotFound, "session is not in firestore", goerr.V("session_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get session", goerr.V("session_id", id), goerr.T(model.TagUpstream))
	}

	var session model.Session
	if err := doc.DataTo(&session); err != nil {
		return nil, goerr.Wrap(err, "failed to decode session", goerr.V("session_id", id))
	}

	return &session, nil
}

func (r *Firestore) PutSession(ctx context.Context, session *model.Session) error {
	if session.ID == "" {
		return goerr.New("session ID is empty", goerr.T(model.TagValidation))
	}

	session.UpdatedAt = time.Now()
	if _, err := r.client.Collection(sessionCollection).Doc(string(session.ID)).Set(ctx, session); err != nil {
		return goerr.Wrap(err, "failed to put session", goerr.V("session_id", session.ID), goerr.T(model.TagUpstream))
	}

	return nil
}

func (r *Firestore) DeleteSession(ctx context.Context, id model.SessionID) error {
	if _, err := r.client.Collection(sessionCollection).Doc(string(id)).Delete(ctx); err != nil {
		return goerr.Wrap(err, "failed to delete session", goerr.V("session_id", id), goerr.T(model.TagUpstream))
	}
	return nil
}

// Close releases the underlying client
func (r *Firestore) Close() error {
	return r.client.Close()
}
