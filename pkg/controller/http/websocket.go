package http

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/m-mizutani/imoye/pkg/model"
	"github.com/m-mizutani/imoye/pkg/utils/logging"
)

const localRequestID = "request_id"

func (s *Server) requireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

func (s *Server) websocket() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		sessionID := model.SessionID(conn.Params("session_id"))
		isAudio := strings.EqualFold(conn.Query("is_audio", "false"), "true")

		logger := logging.Default().With("session_id", sessionID, "is_audio", isAudio)
		if id, ok := conn.Locals(localRequestID).(string); ok {
			logger = logger.With("request_id", id)
		}
		ctx := logging.With(s.baseContext(), logger)

		logger.Info("websocket client connected")
		if err := s.live.Serve(ctx, sessionID, isAudio, conn); err != nil {
			logger.Error("websocket session failed", "error", err)
		}
		logger.Info("websocket session closed")
	})
}

func (s *Server) baseContext() context.Context {
	if s.ctx != nil {
		return s.ctx
	}
	return context.Background()
}
