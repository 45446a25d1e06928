// Package live relays a client WebSocket connection to a live agent session.
package live

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/gofiber/websocket/v2"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/imoye/pkg/model"
	"github.com/m-mizutani/imoye/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

// Conn is the client side of the bridge. *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Agent is the agent side of the bridge
type Agent interface {
	SendText(ctx context.Context, role, text string) error
	SendAudio(ctx context.Context, mimeType string, data []byte) error
	Receive(ctx context.Context) (*model.Event, error)
	Close() error
}

// Run pumps messages in both directions until either side ends. The pump
// that stops first closes both the connection and the agent session so the
// other pump unblocks; Run returns after both have stopped.
func Run(ctx context.Context, sessionID model.SessionID, conn Conn, agent Agent) error {
	logger := logging.From(ctx).With("session_id", sessionID)
	ctx = logging.With(ctx, logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		defer cancel()
		return clientToAgent(ctx, conn, agent)
	})
	eg.Go(func() error {
		defer cancel()
		return agentToClient(ctx, conn, agent)
	})
	eg.Go(func() error {
		<-ctx.Done()
		if err := conn.Close(); err != nil {
			logger.Debug("failed to close client connection", "error", err)
		}
		if err := agent.Close(); err != nil {
			logger.Debug("failed to close agent session", "error", err)
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		return goerr.Wrap(err, "live bridge failed", goerr.V("session_id", sessionID))
	}

	logger.Info("live session closed")
	return nil
}

func clientToAgent(ctx context.Context, conn Conn, agent Agent) error {
	logger := logging.From(ctx)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				logger.Info("client disconnected", "error", err)
			}
			return nil
		}

		var msg WireMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn("dropped malformed client frame", "error", err)
			continue
		}

		switch msg.MIMEType {
		case MIMEText:
			role := msg.Role
			if role == "" {
				role = RoleUser
			}
			if err := agent.SendText(ctx, role, msg.Data); err != nil {
				logger.Warn("failed to forward text to agent", "error", err)
				return nil
			}
			logger.Debug("client to agent", "mime_type", msg.MIMEType, "text", msg.Data)

		case MIMEAudio:
			audio, err := base64.StdEncoding.DecodeString(msg.Data)
			if err != nil {
				logger.Warn("dropped audio frame with invalid base64", "error", err)
				continue
			}
			if err := agent.SendAudio(ctx, msg.MIMEType, audio); err != nil {
				logger.Warn("failed to forward audio to agent", "error", err)
				return nil
			}
			logger.Debug("client to agent", "mime_type", msg.MIMEType, "bytes", len(audio))

		default:
			logger.Warn("dropped frame with unsupported mime type", "mime_type", msg.MIMEType)
		}
	}
}

func agentToClient(ctx context.Context, conn Conn, agent Agent) error {
	logger := logging.From(ctx)

	for {
		ev, err := agent.Receive(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Info("agent stream ended", "error", err)
			}
			return nil
		}

		frame := Encode(ev)
		if frame == nil {
			continue
		}

		data, err := json.Marshal(frame)
		if err != nil {
			return goerr.Wrap(err, "failed to marshal frame")
		}

		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			if ctx.Err() == nil {
				logger.Info("failed to write to client", "error", err)
			}
			return nil
		}
		logger.Debug("agent to client", "mime_type", frame.MIMEType, "turn_complete", frame.TurnComplete != nil && *frame.TurnComplete)
	}
}
