package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/imoye/pkg/model"
	"github.com/m-mizutani/imoye/pkg/utils/logging"
)

type chatRequest struct {
	Message string `json:"message" validate:"required"`
}

func (s *Server) postChat(c *fiber.Ctx) error {
	var req chatRequest
	if err := s.bindBody(c, &req); err != nil {
		return err
	}

	sessionID := model.SessionID(c.Params("session_id"))
	reply, err := s.chat.Send(c.UserContext(), sessionID, req.Message)
	if err != nil {
		if goerr.HasTag(err, model.TagValidation) {
			return err
		}
		logging.From(c.UserContext()).Error("agent failed", "session_id", sessionID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(errorBody("Agent error"))
	}

	if len(reply.Responses) == 0 {
		logging.From(c.UserContext()).Warn("no responses from agent", "session_id", sessionID)
	}

	return c.JSON(reply)
}
