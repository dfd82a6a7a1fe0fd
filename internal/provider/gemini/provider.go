package gemini

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"assistant-router/internal/config"
	"assistant-router/internal/models"
	"assistant-router/internal/provider"
	"assistant-router/internal/stream"
)

const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Provider implements provider.Adapter for the Gemini generateContent API.
type Provider struct {
	settings provider.Settings
	apiKey   string
	baseURL  string
	headers  map[string]string
	client   *http.Client
}

// New constructs a Gemini adapter.
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
		baseURL:  baseURL,
		headers:  cred.Headers,
		client:   client,
	}, nil
}

func (p *Provider) Family() models.Family { return models.FamilyGemini }

func (p *Provider) Model() string { return p.settings.Model }

// Flatten joins the content of every message with newlines. Gemini receives a
// single prompt; roles are dropped.
func Flatten(messages []models.Message) string {
	texts := make([]string, 0, len(messages))
	for _, m := range messages {
		texts = append(texts, m.Text())
	}
	return strings.Join(texts, "\n")
}

type generatePayload struct {
	Contents []content `json:"contents"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

// text concatenates the parts of the first candidate.
func (r generateResponse) text() (string, bool) {
	if len(r.Candidates) == 0 {
		return "", false
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String(), true
}

// Text performs a single-shot generateContent call. A non-nil sink receives
// the complete answer as one fragment.
func (p *Provider) Text(ctx context.Context, messages []models.Message, sink stream.Func) (string, error) {
	prompt := Flatten(messages)
	payload := generatePayload{Contents: []content{{Parts: []part{{Text: prompt}}}}}

	endpoint := p.baseURL + "/models/" + url.PathEscape(p.settings.Model) + ":generateContent"
	slog.Debug("gemini generate call", "model", p.settings.Model, "prompt_length", len(prompt), "api_key", provider.RedactKey(p.apiKey))

	headers := map[string]string{"x-goog-api-key": p.apiKey}
	for k, v := range p.headers {
		headers[k] = v
	}
	httpReq, err := provider.NewJSONRequest(ctx, endpoint, payload, headers)
	if err != nil {
		return "", err
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return "", provider.TransportError(models.FamilyGemini, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		return "", provider.ParseAPIError(models.FamilyGemini, httpResp)
	}

	var resp generateResponse
	if err := provider.DecodeJSON(models.FamilyGemini, httpResp.Body, &resp); err != nil {
		return "", err
	}
	text, ok := resp.text()
	if !ok {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return "", &provider.Error{Kind: provider.KindBackendProtocol, Provider: models.FamilyGemini, Message: "prompt blocked: " + resp.PromptFeedback.BlockReason}
		}
		return "", provider.MissingField(models.FamilyGemini, "candidates")
	}

	if sink != nil {
		acc := stream.NewAccumulator(sink)
		acc.Append(text)
		text = acc.Finalize()
	}
	return text, nil
}

func (p *Provider) Image(ctx context.Context, req models.ImageRequest) ([]string, error) {
	return nil, provider.Unsupported(models.FamilyGemini, "image generation")
}

func (p *Provider) SpeechToText(ctx context.Context, audio models.Audio, language string) (string, error) {
	return "", provider.Unsupported(models.FamilyGemini, "speech to text")
}

func (p *Provider) TextToSpeech(ctx context.Context, text string) (models.Audio, error) {
	return models.Audio{}, provider.Unsupported(models.FamilyGemini, "text to speech")
}
