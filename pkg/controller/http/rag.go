package http

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/imoye/pkg/model"
	"github.com/m-mizutani/imoye/pkg/usecase/corpus"
)

type createCorpusRequest struct {
	CorpusName string `json:"corpus_name" validate:"required"`
}

type addDocumentRequest struct {
	CorpusName string   `json:"corpus_name" validate:"required"`
	Paths      []string `json:"paths" validate:"required,min=1,dive,required"`
}

type queryRequest struct {
	CorpusName string `json:"corpus_name" validate:"required"`
	Query      string `json:"query" validate:"required"`
}

type corpusParams struct {
	CorpusName string `query:"corpus_name" validate:"required"`
}

type deleteCorpusParams struct {
	CorpusName string `query:"corpus_name" validate:"required"`
	Confirm    bool   `query:"confirm"`
}

type deleteDocumentParams struct {
	CorpusName string `query:"corpus_name" validate:"required"`
	DocumentID string `query:"document_id" validate:"required"`
}

// REST calls have no conversation, so they neither read nor update a
// current corpus
const noSession model.SessionID = ""

func respond(c *fiber.Ctx, result model.Result, err error) error {
	if err != nil {
		return err
	}
	return c.JSON(result)
}

func (s *Server) createCorpus(c *fiber.Ctx) error {
	var req createCorpusRequest
	if err := s.bindBody(c, &req); err != nil {
		return err
	}
	result, err := s.corpus.CreateCorpus(c.UserContext(), noSession, req.CorpusName)
	return respond(c, result, err)
}

func (s *Server) deleteCorpus(c *fiber.Ctx) error {
	var params deleteCorpusParams
	if err := s.bindQuery(c, &params); err != nil {
		return err
	}
	result, err := s.corpus.DeleteCorpus(c.UserContext(), noSession, params.CorpusName, params.Confirm)
	return respond(c, result, err)
}

func (s *Server) addDocument(c *fiber.Ctx) error {
	var req addDocumentRequest
	if err := s.bindBody(c, &req); err != nil {
		return err
	}
	result, err := s.corpus.AddData(c.UserContext(), noSession, req.CorpusName, req.Paths)
	return respond(c, result, err)
}

func (s *Server) deleteDocument(c *fiber.Ctx) error {
	var params deleteDocumentParams
	if err := s.bindQuery(c, &params); err != nil {
		return err
	}
	result, err := s.corpus.DeleteDocument(c.UserContext(), noSession, params.CorpusName, params.DocumentID)
	return respond(c, result, err)
}

func (s *Server) getCorpusInfo(c *fiber.Ctx) error {
	var params corpusParams
	if err := s.bindQuery(c, &params); err != nil {
		return err
	}
	result, err := s.corpus.GetCorpusInfo(c.UserContext(), noSession, params.CorpusName)
	return respond(c, result, err)
}

func (s *Server) listCorpora(c *fiber.Ctx) error {
	result, err := s.corpus.ListCorpora(c.UserContext())
	return respond(c, result, err)
}

func (s *Server) query(c *fiber.Ctx) error {
	var req queryRequest
	if err := s.bindBody(c, &req); err != nil {
		return err
	}
	result, err := s.corpus.Query(c.UserContext(), noSession, req.CorpusName, req.Query)
	return respond(c, result, err)
}

func (s *Server) checkCorpusExists(c *fiber.Ctx) error {
	var params corpusParams
	if err := s.bindQuery(c, &params); err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"exists": s.corpus.CorpusExists(c.UserContext(), params.CorpusName),
	})
}

func (s *Server) getCorpusResourceName(c *fiber.Ctx) error {
	var params corpusParams
	if err := s.bindQuery(c, &params); err != nil {
		return err
	}

	resource, err := s.corpus.ResourceName(c.UserContext(), params.CorpusName)
	if err != nil {
		if errors.Is(err, model.ErrCorpusNotFound) {
			return goerr.New(fmt.Sprintf("Corpus '%s' does not exist", params.CorpusName),
				goerr.T(model.TagNotFound))
		}
		return err
	}

	return c.JSON(fiber.Map{"resource_name": resource})
}

func (s *Server) uploadDocument(c *fiber.Ctx) error {
	corpusName := c.FormValue("corpus_name")
	if corpusName == "" {
		return goerr.New("CorpusName field is required", goerr.T(model.TagValidation))
	}

	header, err := c.FormFile("file")
	if err != nil {
		return goerr.Wrap(err, "File field is required", goerr.T(model.TagValidation))
	}

	file, err := header.Open()
	if err != nil {
		return goerr.Wrap(err, "failed to open uploaded file", goerr.V("filename", header.Filename))
	}
	defer file.Close()

	result, err := s.corpus.UploadDocument(c.UserContext(), noSession, corpus.UploadInput{
		CorpusName:  corpusName,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	return respond(c, result, err)
}
