package anthropic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"assistant-router/internal/config"
	"assistant-router/internal/models"
	"assistant-router/internal/provider"
	"assistant-router/internal/stream"
)

const (
	DefaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"
)

// Provider implements provider.Adapter for the Anthropic Messages API. It
// only supports non-streaming text calls.
type Provider struct {
	settings provider.Settings
	apiKey   string
	headers  map[string]string
	client   *http.Client
	messages string
}

// New constructs an Anthropic adapter.
func New(cred config.ProviderConfig, settings provider.Settings, client *http.Client) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}
	baseURL := strings.TrimRight(cred.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Provider{
		settings: settings,
		apiKey:   cred.APIKey,
		headers:  cred.Headers,
		client:   client,
		messages: baseURL + "/v1/messages",
	}, nil
}

func (p *Provider) Family() models.Family { return models.FamilyAnthropic }

func (p *Provider) Model() string { return p.settings.Model }

// Text performs one blocking POST. A non-nil sink receives the complete
// answer as a single fragment once the call finishes.
func (p *Provider) Text(ctx context.Context, messages []models.Message, sink stream.Func) (string, error) {
	payload, err := buildMessagePayload(p.settings, messages)
	if err != nil {
		return "", err
	}

	slog.Debug("anthropic messages call",
		"model", p.settings.Model,
		"messages", len(payload.Messages),
		"api_key", provider.RedactKey(p.apiKey),
	)

	httpReq, err := provider.NewJSONRequest(ctx, p.messages, payload, p.requestHeaders())
	if err != nil {
		return "", err
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return "", provider.TransportError(models.FamilyAnthropic, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		return "", provider.ParseAPIError(models.FamilyAnthropic, httpResp)
	}

	var providerResp messageResponse
	if err := provider.DecodeJSON(models.FamilyAnthropic, httpResp.Body, &providerResp); err != nil {
		return "", err
	}
	if len(providerResp.Content) == 0 {
		return "", provider.MissingField(models.FamilyAnthropic, "content blocks")
	}

	text := providerResp.Content[0].Text
	if sink != nil {
		acc := stream.NewAccumulator(sink)
		acc.Append(text)
		text = acc.Finalize()
	}
	return text, nil
}

func (p *Provider) Image(ctx context.Context, req models.ImageRequest) ([]string, error) {
	return nil, provider.Unsupported(models.FamilyAnthropic, "image generation")
}

func (p *Provider) SpeechToText(ctx context.Context, audio models.Audio, language string) (string, error) {
	return "", provider.Unsupported(models.FamilyAnthropic, "speech to text")
}

func (p *Provider) TextToSpeech(ctx context.Context, text string) (models.Audio, error) {
	return models.Audio{}, provider.Unsupported(models.FamilyAnthropic, "text to speech")
}

func (p *Provider) requestHeaders() map[string]string {
	h := map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": apiVersion,
	}
	for k, v := range p.headers {
		h[k] = v
	}
	return h
}

type messagePayload struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
	System    string    `json:"system,omitempty"`
	Stream    bool      `json:"stream"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

func buildMessagePayload(settings provider.Settings, msgs []models.Message) (messagePayload, error) {
	messages := make([]message, 0, len(msgs))
	var systemParts []string

	for _, msg := range msgs {
		role := strings.ToLower(strings.TrimSpace(msg.Role))
		switch role {
		case models.RoleSystem:
			if text := strings.TrimSpace(msg.Text()); text != "" {
				systemParts = append(systemParts, text)
			}
		case models.RoleUser, models.RoleAssistant:
			blocks := toContentBlocks(msg)
			if len(blocks) == 0 {
				return messagePayload{}, errors.New("anthropic messages must not be empty")
			}
			messages = append(messages, message{Role: role, Content: blocks})
		default:
			return messagePayload{}, fmt.Errorf("anthropic provider does not support role %q", msg.Role)
		}
	}

	if len(messages) == 0 {
		return messagePayload{}, errors.New("anthropic request requires at least one user message")
	}

	payload := messagePayload{
		Model:     settings.Model,
		MaxTokens: settings.MaxTokens,
		Messages:  messages,
		Stream:    false,
	}
	if len(systemParts) > 0 {
		payload.System = strings.Join(systemParts, "\n\n")
	}
	return payload, nil
}

func toContentBlocks(msg models.Message) []contentBlock {
	if !msg.IsMixed() {
		if strings.TrimSpace(msg.Content) == "" {
			return nil
		}
		return []contentBlock{{Type: "text", Text: msg.Content}}
	}

	blocks := make([]contentBlock, 0, len(msg.Parts))
	for _, part := range msg.Parts {
		switch part.Type {
		case models.PartImage:
			blocks = append(blocks, contentBlock{Type: "image", Source: imageSourceFor(part.ImageURL)})
		default:
			if part.Text != "" {
				blocks = append(blocks, contentBlock{Type: "text", Text: part.Text})
			}
		}
	}
	return blocks
}

// imageSourceFor maps a data URL onto a base64 source and anything else onto
// a url source.
func imageSourceFor(ref string) *imageSource {
	if rest, ok := strings.CutPrefix(ref, "data:"); ok {
		meta, data, found := strings.Cut(rest, ",")
		if mediaType, isBase64 := strings.CutSuffix(meta, ";base64"); found && isBase64 {
			return &imageSource{Type: "base64", MediaType: mediaType, Data: data}
		}
	}
	return &imageSource{Type: "url", URL: ref}
}

type messageResponse struct {
	ID         string         `json:"id"`
	Role       string         `json:"role"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
}
