// Package http serves the REST and WebSocket API with Fiber.
package http

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/imoye/pkg/model"
	"github.com/m-mizutani/imoye/pkg/service/live"
	"github.com/m-mizutani/imoye/pkg/usecase/chat"
	"github.com/m-mizutani/imoye/pkg/usecase/corpus"
	"github.com/m-mizutani/imoye/pkg/utils/logging"
)

const defaultUploadLimitMB = 40

// Server is the HTTP front of the service
type Server struct {
	app      *fiber.App
	corpus   *corpus.UseCase
	chat     *chat.UseCase
	live     *live.Service
	validate *validator.Validate

	uploadLimitMB int64

	// ctx bounds websocket sessions; set by Listen
	ctx context.Context
}

// Option is a functional option for Server
type Option func(*Server)

// WithCorpus enables the /rag endpoints
func WithCorpus(uc *corpus.UseCase) Option {
	return func(s *Server) {
		s.corpus = uc
	}
}

// WithChat enables the /chat endpoint
func WithChat(uc *chat.UseCase) Option {
	return func(s *Server) {
		s.chat = uc
	}
}

// WithLive enables the /ws endpoint
func WithLive(svc *live.Service) Option {
	return func(s *Server) {
		s.live = svc
	}
}

// WithUploadLimitMB sets the upload size cited when a request body is too
// large. It must match the corpus use case configuration.
func WithUploadLimitMB(mb int64) Option {
	return func(s *Server) {
		s.uploadLimitMB = mb
	}
}

// New creates a new Server
func New(opts ...Option) *Server {
	s := &Server{
		validate:      validator.New(),
		uploadLimitMB: defaultUploadLimitMB,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.app = fiber.New(fiber.Config{
		// Requests up to twice the upload limit reach the handler so the
		// rejection can report the actual size
		BodyLimit:             int(s.uploadLimitMB) * 2 * 1024 * 1024,
		ErrorHandler:          s.handleError,
		DisableStartupMessage: true,
	})

	s.app.Use(recover.New())
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "*",
		AllowMethods: "GET, POST, PUT, PATCH, DELETE, OPTIONS",
	}))
	s.app.Use(requestLogger)

	s.app.Get("/", s.welcome)

	if s.chat != nil {
		s.app.Post("/chat/:session_id", s.postChat)
	}

	if s.corpus != nil {
		rag := s.app.Group("/rag")
		rag.Post("/create_corpus", s.createCorpus)
		rag.Delete("/delete_corpus", s.deleteCorpus)
		rag.Post("/add_document", s.addDocument)
		rag.Delete("/delete_document", s.deleteDocument)
		rag.Get("/get_corpus_info", s.getCorpusInfo)
		rag.Get("/list_corpora", s.listCorpora)
		rag.Post("/upload_document", s.uploadDocument)
		rag.Get("/check_corpus_exists", s.checkCorpusExists)
		rag.Get("/get_corpus_resource_name", s.getCorpusResourceName)
		rag.Post("/query", s.query)
	}

	if s.live != nil {
		s.app.Use("/ws", s.requireUpgrade)
		s.app.Get("/ws/:session_id", s.websocket())
	}

	return s
}

// App returns the underlying Fiber application
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until ctx is canceled
func (s *Server) Listen(ctx context.Context, addr string) error {
	s.ctx = ctx

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(addr)
	}()

	logging.From(ctx).Info("server started", "addr", addr)

	select {
	case err := <-errCh:
		if err != nil {
			return goerr.Wrap(err, "server stopped", goerr.V("addr", addr))
		}
		return nil
	case <-ctx.Done():
		if err := s.app.ShutdownWithTimeout(10 * time.Second); err != nil {
			return goerr.Wrap(err, "failed to shutdown server")
		}
		return nil
	}
}

// requestLogger attaches a request scoped logger to the user context and
// logs every request after it completes
func requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	requestID := uuid.NewString()

	logger := logging.From(c.UserContext()).With("request_id", requestID)
	c.SetUserContext(logging.With(c.UserContext(), logger))
	c.Locals(localRequestID, requestID)

	err := c.Next()

	status := c.Response().StatusCode()
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	}

	logger.Info("request",
		"method", c.Method(),
		"path", c.Path(),
		"status", status,
		"duration", time.Since(start).String(),
	)
	return err
}

func errorBody(message string) fiber.Map {
	return fiber.Map{
		"status":  string(model.StatusError),
		"message": message,
	}
}

// handleError maps tagged errors to responses. Anything unrecognized is an
// internal error with a generic message.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	logger := logging.From(c.UserContext())

	var fe *fiber.Error
	switch {
	case goerr.HasTag(err, model.TagValidation):
		logger.Info("bad request", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(errorBody(err.Error()))

	case goerr.HasTag(err, model.TagNotFound):
		logger.Info("not found", "error", err)
		return c.Status(fiber.StatusNotFound).JSON(errorBody(err.Error()))

	case errors.As(err, &fe):
		if fe.Code == fiber.StatusRequestEntityTooLarge {
			return c.Status(fiber.StatusBadRequest).JSON(errorBody(
				fmt.Sprintf("File size exceeds %dMB limit.", s.uploadLimitMB)))
		}
		if fe.Code >= 500 {
			logger.Error("request failed", "error", err)
			return c.Status(fe.Code).JSON(fiber.Map{"message": "Internal server error"})
		}
		return c.Status(fe.Code).JSON(errorBody(fe.Message))
	}

	logger.Error("unhandled error", "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "Internal server error"})
}

func (s *Server) welcome(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"message":   "Welcome to the Imoye API!",
		"timestamp": time.Now().Format(time.RFC3339Nano),
		"status":    "healthy",
	})
}
