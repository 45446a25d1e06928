package repository

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/imoye/pkg/model"
	"github.com/patrickmn/go-cache"
)

// Memory is a process-local session store. Entries expire after the TTL
// since their last write.
type Memory struct {
	cache *cache.Cache
}

var _ Repository = (*Memory)(nil)

// NewMemory creates a session store with the given expiration and cleanup interval
func NewMemory(ttl, cleanupInterval time.Duration) *Memory {
	return &Memory{
		cache: cache.New(ttl, cleanupInterval),
	}
}

func (r *Memory) GetSession(ctx context.Context, id model.SessionID) (*model.Session, error) {
	x, found := r.cache.Get(string(id))
	if !found {
		return nil, goerr.Wrap(model.ErrSessionNotFound, "session is not in memory", goerr.V("session_id", id))
	}

	// Hand out a copy so callers never share the cached struct
	s := *x.(*model.Session)
	s.History = append(s.History[:0:0], s.History...)
	return &s, nil
}

func (r *Memory) PutSession(ctx context.Context, session *model.Session) error {
	if session.ID == "" {
		return goerr.New("session ID is empty", goerr.T(model.TagValidation))
	}

	s := *session
	s.History = append(s.History[:0:0], s.History...)
	s.UpdatedAt = time.Now()
	r.cache.Set(string(s.ID), &s, cache.DefaultExpiration)
	return nil
}

func (r *Memory) DeleteSession(ctx context.Context, id model.SessionID) error {
	r.cache.Delete(string(id))
	return nil
}

// Count returns the number of live sessions
func (r *Memory) Count() int {
	return r.cache.ItemCount()
}
