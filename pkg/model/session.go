package model

import (
	"time"

	"google.golang.org/genai"
)

// AppName is the fixed application name attached to every session
const AppName = "Imoye Streaming AI"

type SessionID string

// Session holds per-conversation state. It lives in the session repository
// and is never treated as durable.
type Session struct {
	ID            SessionID
	AppName       string
	IsAudio       bool
	CurrentCorpus string
	CreatedAt     time.Time
	UpdatedAt     time.Time

	// Conversation contents are kept in memory only
	History []*genai.Content `firestore:"-"`
}

// NewSession creates an empty session with the given ID
func NewSession(id SessionID) *Session {
	now := time.Now()
	return &Session{
		ID:        id,
		AppName:   AppName,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
