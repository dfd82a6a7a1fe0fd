package translator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"assistant-router/internal/models"
)

var (
	errEmptyMessages  = errors.New("at least one message is required")
	errInvalidRole    = errors.New("invalid role")
	errInvalidContent = errors.New("invalid message content")
	errInvalidSystem  = errors.New("invalid system prompt")
)

var allowedRoles = map[string]struct{}{
	models.RoleSystem:    {},
	models.RoleUser:      {},
	models.RoleAssistant: {},
}

// ChatRequest is the body of POST /v1/chat and of each websocket message.
// Model may be empty, in which case the configured model is used.
type ChatRequest struct {
	Model    string
	System   []string
	Messages []ChatMessage
	Stream   bool
}

// UnmarshalJSON decodes and validates a chat request.
func (r *ChatRequest) UnmarshalJSON(data []byte) error {
	type alias struct {
		Model    string          `json:"model"`
		System   json.RawMessage `json:"system"`
		Messages []ChatMessage   `json:"messages"`
		Stream   bool            `json:"stream"`
	}

	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode chat request: %w", err)
	}

	system, err := parseSystem(raw.System)
	if err != nil {
		return err
	}

	r.Model = strings.TrimSpace(raw.Model)
	r.System = system
	r.Messages = raw.Messages
	r.Stream = raw.Stream

	if len(r.Messages) == 0 {
		return errEmptyMessages
	}
	return nil
}

// ToMessages converts the request into core messages, system prompts first.
func (r ChatRequest) ToMessages() []models.Message {
	msgs := make([]models.Message, 0, len(r.System)+len(r.Messages))
	for _, s := range r.System {
		msgs = append(msgs, models.Message{Role: models.RoleSystem, Content: s})
	}
	for _, m := range r.Messages {
		msgs = append(msgs, m.toMessage())
	}
	return msgs
}

// ChatMessage accepts either string content or an array of text and
// image_url parts.
type ChatMessage struct {
	Role    string
	Content string
	Parts   []models.Part
}

// UnmarshalJSON supports string and array content formats.
func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	type alias struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	}

	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}

	m.Role = strings.TrimSpace(raw.Role)
	if _, ok := allowedRoles[m.Role]; !ok {
		return fmt.Errorf("%w: %q", errInvalidRole, m.Role)
	}

	text, parts, err := extractContent(raw.Content)
	if err != nil {
		return err
	}
	m.Content = text
	m.Parts = parts
	return nil
}

func (m ChatMessage) toMessage() models.Message {
	if len(m.Parts) > 0 {
		return models.Message{Role: m.Role, Parts: m.Parts}
	}
	return models.Message{Role: m.Role, Content: m.Content}
}

type contentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text"`
	ImageURL json.RawMessage `json:"image_url"`
}

func extractContent(raw json.RawMessage) (string, []models.Part, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil, fmt.Errorf("%w: missing content", errInvalidContent)
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if strings.TrimSpace(text) == "" {
			return "", nil, fmt.Errorf("%w: message content must not be empty", errInvalidContent)
		}
		return text, nil, nil
	}

	var segments []contentPart
	if err := json.Unmarshal(raw, &segments); err != nil {
		return "", nil, fmt.Errorf("%w: unsupported content structure", errInvalidContent)
	}
	if len(segments) == 0 {
		return "", nil, fmt.Errorf("%w: message content must not be empty", errInvalidContent)
	}

	parts := make([]models.Part, 0, len(segments))
	for i, segment := range segments {
		switch segment.Type {
		case models.PartText:
			parts = append(parts, models.TextPart(segment.Text))
		case models.PartImage:
			url, err := parseImageURL(segment.ImageURL)
			if err != nil {
				return "", nil, fmt.Errorf("content[%d]: %w", i, err)
			}
			parts = append(parts, models.ImagePart(url))
		default:
			return "", nil, fmt.Errorf("%w: segment type %q not supported", errInvalidContent, segment.Type)
		}
	}
	return "", parts, nil
}

// parseImageURL accepts "image_url": "<url>" and "image_url": {"url": "<url>"}.
func parseImageURL(raw json.RawMessage) (string, error) {
	var url string
	if err := json.Unmarshal(raw, &url); err == nil && url != "" {
		return url, nil
	}
	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.URL != "" {
		return obj.URL, nil
	}
	return "", fmt.Errorf("%w: image_url requires a url", errInvalidContent)
}

func parseSystem(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if s := strings.TrimSpace(single); s != "" {
			return []string{s}, nil
		}
		return nil, nil
	}

	var multiple []string
	if err := json.Unmarshal(raw, &multiple); err == nil {
		out := make([]string, 0, len(multiple))
		for _, item := range multiple {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		return out, nil
	}
	return nil, errInvalidSystem
}

// ChatResponse is the non-streaming reply of POST /v1/chat.
type ChatResponse struct {
	Model  string        `json:"model"`
	Family models.Family `json:"family"`
	Text   string        `json:"text"`
}

// Frame types carried over SSE and websocket.
const (
	FrameFragment = "fragment"
	FrameDone     = "done"
	FrameError    = "error"
)

// StreamFrame is one streaming event.
type StreamFrame struct {
	Type     string `json:"type"`
	Fragment string `json:"fragment,omitempty"`
	Text     string `json:"text,omitempty"`
	Message  string `json:"message,omitempty"`
}

func FragmentFrame(fragment, total string) StreamFrame {
	return StreamFrame{Type: FrameFragment, Fragment: fragment, Text: total}
}

func DoneFrame(text string) StreamFrame {
	return StreamFrame{Type: FrameDone, Text: text}
}

func ErrorFrame(err error) StreamFrame {
	return StreamFrame{Type: FrameError, Message: err.Error()}
}
