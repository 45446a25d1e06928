package http

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/imoye/pkg/model"
)

func (s *Server) bindBody(c *fiber.Ctx, v any) error {
	if err := c.BodyParser(v); err != nil {
		return goerr.Wrap(err, "Invalid request body", goerr.T(model.TagValidation))
	}
	return s.check(v)
}

func (s *Server) bindQuery(c *fiber.Ctx, v any) error {
	if err := c.QueryParser(v); err != nil {
		return goerr.Wrap(err, "Invalid query parameters", goerr.T(model.TagValidation))
	}
	return s.check(v)
}

func (s *Server) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return goerr.Wrap(err, "Invalid request", goerr.T(model.TagValidation))
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s field is required", fe.StructField()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s field is invalid (%s)", fe.StructField(), fe.Tag()))
		}
	}
	return goerr.New(strings.Join(msgs, "; "), goerr.T(model.TagValidation))
}
