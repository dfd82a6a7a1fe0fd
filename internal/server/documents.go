package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"assistant-router/internal/critique"
	"assistant-router/internal/translator"
)

func (s *Server) handleCreateDocument(c echo.Context) error {
	var req translator.CreateDocumentRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}
	doc := s.docs.Create(req.Text, req.Selection)
	return c.JSON(http.StatusCreated, translator.CreateDocumentResponse{ID: doc.ID()})
}

func (s *Server) handleGetDocument(c echo.Context) error {
	doc, err := s.docs.Get(c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, doc.View())
}

func (s *Server) handleDeleteDocument(c echo.Context) error {
	if err := s.docs.Delete(c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// handlePrompt runs the primary call against the document selection and
// answers once it has been inserted. A requested critique keeps running after
// the response is written; its outcome shows up in the document.
func (s *Server) handlePrompt(c echo.Context) error {
	doc, err := s.docs.Get(c.Param("id"))
	if err != nil {
		return err
	}

	var req translator.PromptRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return invalidRequest(err.Error())
	}

	clearWriteDeadline(c)
	task, err := s.critique.Run(c.Request().Context(), critique.Request{
		Prompt:        req.Prompt,
		Selection:     doc.SelectedText(),
		Model:         req.Model,
		CritiqueModel: req.CritiqueModel,
		Critique:      req.Critique,
	}, s.snapshot(), doc)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, translator.PromptResponse{
		TaskID: task.ID,
		State:  task.State().String(),
		Answer: task.Answer(),
	})
}
