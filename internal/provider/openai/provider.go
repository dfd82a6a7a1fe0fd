package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"regexp"
	"slices"
	"strings"

	"assistant-router/internal/config"
	"assistant-router/internal/models"
	"assistant-router/internal/provider"
	"assistant-router/internal/stream"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"

	transcriptionModel = "whisper-1"
	speechModel        = "tts-1"
	speechVoice        = "alloy"
	hdImageModel       = "dall-e-3"
)

var reasoningPattern = regexp.MustCompile(`o[124]`)

// IsReasoningModel reports whether id takes max_completion_tokens instead of
// max_tokens.
func IsReasoningModel(id string) bool {
	return reasoningPattern.MatchString(id) || strings.HasPrefix(id, "gpt-5")
}

// Options configures one adapter instance.
type Options struct {
	provider.Settings
	ImageCapableModels []string
	ImageFallbackModel string
}

// Provider implements provider.Adapter for OpenAI.
type Provider struct {
	opts    Options
	apiKey  string
	baseURL string
	headers map[string]string
	client  *http.Client
	chat    *ChatClient
}

// New creates an OpenAI adapter.
func New(cred config.ProviderConfig, opts Options, client *http.Client) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}

	baseURL := strings.TrimRight(cred.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Provider{
		opts:    opts,
		apiKey:  cred.APIKey,
		baseURL: baseURL,
		headers: cred.Headers,
		client:  client,
		chat:    NewChatClient(models.FamilyOpenAI, cred.APIKey, baseURL, cred.Headers, client),
	}, nil
}

func (p *Provider) Family() models.Family { return models.FamilyOpenAI }

func (p *Provider) Model() string { return p.opts.Model }

// EffectiveModel returns the model used for messages: the configured one, or
// the image fallback when messages carry an image the configured model cannot
// read. The stored options are never changed.
func (p *Provider) EffectiveModel(messages []models.Message) string {
	if models.AnyImage(messages) && !slices.Contains(p.opts.ImageCapableModels, p.opts.Model) {
		return p.opts.ImageFallbackModel
	}
	return p.opts.Model
}

func (p *Provider) Text(ctx context.Context, messages []models.Message, sink stream.Func) (string, error) {
	model := p.EffectiveModel(messages)
	field := MaxTokens
	if IsReasoningModel(model) {
		field = MaxCompletionTokens
	}

	slog.Debug("openai chat call",
		"model", model,
		"configured_model", p.opts.Model,
		"token_field", field,
		"stream", sink != nil,
		"api_key", provider.RedactKey(p.apiKey),
	)

	return p.chat.Complete(ctx, ChatRequest{
		Model:      model,
		Messages:   messages,
		Stream:     sink != nil,
		TokenField: field,
		MaxTokens:  p.opts.MaxTokens,
	}, sink)
}

type imagePayload struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	N       int    `json:"n"`
	Size    string `json:"size"`
	Quality string `json:"quality,omitempty"`
}

type imageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

func (p *Provider) Image(ctx context.Context, req models.ImageRequest) ([]string, error) {
	payload := imagePayload{
		Model:  req.Model,
		Prompt: req.Prompt,
		N:      req.Count,
		Size:   req.Size,
	}
	if req.Model == hdImageModel && req.HD {
		payload.Quality = "hd"
	}

	httpReq, err := provider.NewJSONRequest(ctx, p.baseURL+"/images/generations", payload, p.authHeaders())
	if err != nil {
		return nil, err
	}

	var resp imageResponse
	if err := p.do(httpReq, &resp); err != nil {
		return nil, err
	}

	urls := make([]string, 0, len(resp.Data))
	for _, d := range resp.Data {
		urls = append(urls, d.URL)
	}
	return urls, nil
}

func (p *Provider) SpeechToText(ctx context.Context, audio models.Audio, language string) (string, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	filename := audio.Filename
	if filename == "" {
		filename = "audio.webm"
	}
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := part.Write(audio.Data); err != nil {
		return "", fmt.Errorf("build multipart body: %w", err)
	}
	if err := form.WriteField("model", transcriptionModel); err != nil {
		return "", fmt.Errorf("build multipart body: %w", err)
	}
	if language != "" {
		if err := form.WriteField("language", language); err != nil {
			return "", fmt.Errorf("build multipart body: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("build multipart body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", fmt.Errorf("construct request: %w", err)
	}
	httpReq.Header.Set("Content-Type", form.FormDataContentType())
	httpReq.Header.Set("Accept", provider.ContentTypeJSON)
	httpReq.Header.Set("User-Agent", provider.UserAgent)
	for k, v := range p.authHeaders() {
		httpReq.Header.Set(k, v)
	}

	var resp struct {
		Text string `json:"text"`
	}
	if err := p.do(httpReq, &resp); err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (p *Provider) TextToSpeech(ctx context.Context, text string) (models.Audio, error) {
	payload := map[string]string{
		"model": speechModel,
		"voice": speechVoice,
		"input": text,
	}
	httpReq, err := provider.NewJSONRequest(ctx, p.baseURL+"/audio/speech", payload, p.authHeaders())
	if err != nil {
		return models.Audio{}, err
	}
	httpReq.Header.Set("Accept", "audio/mpeg")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return models.Audio{}, provider.TransportError(models.FamilyOpenAI, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		return models.Audio{}, provider.ParseAPIError(models.FamilyOpenAI, httpResp)
	}

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return models.Audio{}, provider.TransportError(models.FamilyOpenAI, err)
	}

	mediaType := httpResp.Header.Get("Content-Type")
	if mediaType == "" {
		mediaType = "audio/mpeg"
	}
	return models.Audio{Filename: "speech.mp3", MediaType: mediaType, Data: data}, nil
}

func (p *Provider) authHeaders() map[string]string {
	h := map[string]string{"Authorization": "Bearer " + p.apiKey}
	for k, v := range p.headers {
		h[k] = v
	}
	return h
}

func (p *Provider) do(req *http.Request, target any) error {
	httpResp, err := p.client.Do(req)
	if err != nil {
		return provider.TransportError(models.FamilyOpenAI, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		return provider.ParseAPIError(models.FamilyOpenAI, httpResp)
	}
	return provider.DecodeJSON(models.FamilyOpenAI, httpResp.Body, target)
}
