package groq

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"assistant-router/internal/config"
	"assistant-router/internal/models"
	"assistant-router/internal/provider"
	openaiProvider "assistant-router/internal/provider/openai"
	"assistant-router/internal/reasoning"
	"assistant-router/internal/stream"
)

const DefaultBaseURL = "https://api.groq.com/openai/v1"

// IsReasoningModel reports whether id emits deliberation markup that must be
// filtered before the answer is shown.
func IsReasoningModel(id string) bool {
	return strings.Contains(id, "deepseek") || strings.Contains(id, "qwen")
}

// Provider implements provider.Adapter for Groq by delegating the wire format
// to the OpenAI-compatible chat client.
type Provider struct {
	settings provider.Settings
	apiKey   string
	notifier provider.Notifier
	chat     *openaiProvider.ChatClient
}

// New constructs a Groq adapter. notifier receives progress notices and may
// be nil.
func New(cred config.ProviderConfig, settings provider.Settings, client *http.Client, notifier provider.Notifier) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}
	baseURL := strings.TrimRight(cred.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if notifier == nil {
		notifier = provider.NotifierFunc(func(string) {})
	}

	return &Provider{
		settings: settings,
		apiKey:   strings.TrimSpace(cred.APIKey),
		notifier: notifier,
		chat:     openaiProvider.NewChatClient(models.FamilyGroq, cred.APIKey, baseURL, cred.Headers, client),
	}, nil
}

func (p *Provider) Family() models.Family { return models.FamilyGroq }

func (p *Provider) Model() string { return p.settings.Model }

// Text runs the chat call. For reasoning models nothing reaches sink until
// the stream has completed and the filtered answer is known; other models
// stream fragments as they arrive.
func (p *Provider) Text(ctx context.Context, messages []models.Message, sink stream.Func) (string, error) {
	if p.apiKey == "" {
		return "", provider.AuthError(models.FamilyGroq, "Groq API key is not set")
	}

	isReasoning := IsReasoningModel(p.settings.Model)
	slog.Debug("groq chat call",
		"model", p.settings.Model,
		"max_tokens", p.settings.MaxTokens,
		"messages", len(messages),
		"stream", sink != nil,
		"reasoning", isReasoning,
		"api_key", provider.RedactKey(p.apiKey),
	)
	p.notifier.Notify("Calling Groq with " + p.settings.Model + "...")

	forward := sink
	if isReasoning {
		forward = nil
	}

	text, err := p.chat.Complete(ctx, openaiProvider.ChatRequest{
		Model:      p.settings.Model,
		Messages:   messages,
		Stream:     sink != nil,
		TokenField: openaiProvider.MaxTokens,
		MaxTokens:  p.settings.MaxTokens,
	}, forward)
	if err != nil {
		return "", err
	}

	if isReasoning {
		text = reasoning.Filter(text)
		if sink != nil {
			acc := stream.NewAccumulator(sink)
			acc.Append(text)
			text = acc.Finalize()
		}
	}

	slog.Debug("groq response completed", "model", p.settings.Model, "length", len(text))
	p.notifier.Notify("Groq response completed!")
	return text, nil
}

func (p *Provider) Image(ctx context.Context, req models.ImageRequest) ([]string, error) {
	return nil, provider.Unsupported(models.FamilyGroq, "image generation")
}

func (p *Provider) SpeechToText(ctx context.Context, audio models.Audio, language string) (string, error) {
	return "", provider.Unsupported(models.FamilyGroq, "speech to text")
}

func (p *Provider) TextToSpeech(ctx context.Context, text string) (models.Audio, error) {
	return models.Audio{}, provider.Unsupported(models.FamilyGroq, "text to speech")
}
