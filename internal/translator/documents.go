package translator

import (
	"errors"
	"strings"

	"assistant-router/internal/document"
)

// CreateDocumentRequest is the body of POST /v1/documents.
type CreateDocumentRequest struct {
	Text      string             `json:"text"`
	Selection document.Selection `json:"selection"`
}

// CreateDocumentResponse returns the id of a new document.
type CreateDocumentResponse struct {
	ID string `json:"id"`
}

// PromptRequest is the body of POST /v1/documents/:id/prompt.
type PromptRequest struct {
	Prompt        string `json:"prompt"`
	Model         string `json:"model"`
	Critique      bool   `json:"critique"`
	CritiqueModel string `json:"critique_model"`
}

// Validate checks the fields a prompt request needs.
func (r PromptRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return errors.New("prompt must not be empty")
	}
	return nil
}

// PromptResponse reports the task created for a prompt.
type PromptResponse struct {
	TaskID string `json:"task_id"`
	State  string `json:"state"`
	Answer string `json:"answer"`
}
