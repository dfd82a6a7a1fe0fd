package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"assistant-router/internal/models"
	"assistant-router/internal/provider"
	"assistant-router/internal/stream"
)

// TokenField names the request field that carries the token budget.
type TokenField string

const (
	MaxTokens           TokenField = "max_tokens"
	MaxCompletionTokens TokenField = "max_completion_tokens"
)

// ChatRequest is a single OpenAI-compatible chat-completion call.
type ChatRequest struct {
	Model      string
	Messages   []models.Message
	Stream     bool
	TokenField TokenField
	MaxTokens  int
}

// ChatClient speaks the OpenAI chat-completion wire format. Groq reuses it
// with its own base URL and family.
type ChatClient struct {
	family  models.Family
	apiKey  string
	url     string
	headers map[string]string
	client  *http.Client
}

// NewChatClient builds a client posting to baseURL + "/chat/completions".
func NewChatClient(family models.Family, apiKey, baseURL string, headers map[string]string, client *http.Client) *ChatClient {
	return &ChatClient{
		family:  family,
		apiKey:  apiKey,
		url:     strings.TrimRight(baseURL, "/") + "/chat/completions",
		headers: headers,
		client:  client,
	}
}

// Complete performs the call. In stream mode each non-empty delta is appended
// to an accumulator that forwards to sink; sink may be nil.
func (c *ChatClient) Complete(ctx context.Context, req ChatRequest, sink stream.Func) (string, error) {
	payload, err := buildChatPayload(req)
	if err != nil {
		return "", err
	}

	httpReq, err := provider.NewJSONRequest(ctx, c.url, payload, c.requestHeaders(req.Stream))
	if err != nil {
		return "", err
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return "", provider.TransportError(c.family, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		return "", provider.ParseAPIError(c.family, httpResp)
	}

	if req.Stream {
		return c.readStream(httpResp.Body, sink)
	}

	var providerResp chatResponse
	if err := provider.DecodeJSON(c.family, httpResp.Body, &providerResp); err != nil {
		return "", err
	}
	if len(providerResp.Choices) == 0 {
		return "", provider.MissingField(c.family, "choices")
	}
	return providerResp.Choices[0].Message.Content, nil
}

func (c *ChatClient) requestHeaders(streaming bool) map[string]string {
	h := make(map[string]string, len(c.headers)+2)
	h["Authorization"] = "Bearer " + c.apiKey
	if streaming {
		h["Accept"] = "text/event-stream"
	}
	for k, v := range c.headers {
		h[k] = v
	}
	return h
}

func (c *ChatClient) readStream(body io.Reader, sink stream.Func) (string, error) {
	acc := stream.NewAccumulator(sink)
	reader := stream.NewEventReader(body)

	for {
		_, data, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", provider.TransportError(c.family, err)
		}
		if bytes.Equal(data, stream.Done) {
			break
		}

		var chunk chatChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			return "", provider.ParseError(c.family, err)
		}
		if chunk.Error != nil && chunk.Error.Message != "" {
			return "", &provider.Error{Kind: provider.KindBackendProtocol, Provider: c.family, Message: chunk.Error.Message}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if content := chunk.Choices[0].Delta.Content; content != "" {
			acc.Append(content)
		}
	}

	text := acc.Finalize()
	slog.Debug("stream completed", "family", c.family, "length", len(text))
	return text, nil
}

type chatPayload struct {
	Model               string        `json:"model"`
	Messages            []wireMessage `json:"messages"`
	Stream              bool          `json:"stream"`
	MaxTokens           *int          `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int          `json:"max_completion_tokens,omitempty"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type wirePart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *wireImageURL `json:"image_url,omitempty"`
}

type wireImageURL struct {
	URL string `json:"url"`
}

func buildChatPayload(req ChatRequest) (chatPayload, error) {
	if len(req.Messages) == 0 {
		return chatPayload{}, errors.New("chat request requires at least one message")
	}

	messages := make([]wireMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, toWireMessage(msg))
	}

	payload := chatPayload{
		Model:    req.Model,
		Messages: messages,
		Stream:   req.Stream,
	}

	budget := req.MaxTokens
	switch req.TokenField {
	case MaxCompletionTokens:
		payload.MaxCompletionTokens = &budget
	default:
		payload.MaxTokens = &budget
	}
	return payload, nil
}

func toWireMessage(msg models.Message) wireMessage {
	if !msg.IsMixed() {
		return wireMessage{Role: msg.Role, Content: msg.Content}
	}

	parts := make([]wirePart, 0, len(msg.Parts))
	for _, p := range msg.Parts {
		switch p.Type {
		case models.PartImage:
			parts = append(parts, wirePart{Type: "image_url", ImageURL: &wireImageURL{URL: p.ImageURL}})
		default:
			parts = append(parts, wirePart{Type: "text", Text: p.Text})
		}
	}
	return wireMessage{Role: msg.Role, Content: parts}
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}
