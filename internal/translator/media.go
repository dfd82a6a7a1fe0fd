package translator

import (
	"errors"
	"strings"

	"assistant-router/internal/models"
	"assistant-router/internal/provider"
)

const (
	defaultImageSize  = "1024x1024"
	defaultImageCount = 1
)

// ImageRequest is the body of POST /v1/images.
type ImageRequest struct {
	Prompt string `json:"prompt"`
	Size   string `json:"size"`
	N      int    `json:"n"`
	HD     bool   `json:"hd"`
}

// ToModel validates the request and fills defaults.
func (r ImageRequest) ToModel(model string) (models.ImageRequest, error) {
	if strings.TrimSpace(r.Prompt) == "" {
		return models.ImageRequest{}, errors.New("prompt must not be empty")
	}
	if r.N < 0 {
		return models.ImageRequest{}, errors.New("n must not be negative")
	}
	size := strings.TrimSpace(r.Size)
	if size == "" {
		size = defaultImageSize
	}
	count := r.N
	if count == 0 {
		count = defaultImageCount
	}
	return models.ImageRequest{Model: model, Prompt: r.Prompt, Size: size, Count: count, HD: r.HD}, nil
}

// ImageResponse lists generated image URLs.
type ImageResponse struct {
	Images []string `json:"images"`
}

// SpeechRequest is the body of POST /v1/audio/speech.
type SpeechRequest struct {
	Text string `json:"text"`
}

// TranscriptionResponse is the reply of POST /v1/audio/transcriptions.
type TranscriptionResponse struct {
	Text string `json:"text"`
}

// ModelEntry is one item of GET /v1/models.
type ModelEntry struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Family           models.Family `json:"family"`
	MaxTokens        int           `json:"max_tokens"`
	ImageCapable     bool          `json:"image_capable"`
	IsReasoningModel bool          `json:"is_reasoning_model"`
}

// ModelsResponse is the reply of GET /v1/models.
type ModelsResponse struct {
	Object string       `json:"object"`
	Data   []ModelEntry `json:"data"`
}

// FromCatalog converts catalog entries into the listing shape.
func FromCatalog(entries []provider.Entry) ModelsResponse {
	data := make([]ModelEntry, 0, len(entries))
	for _, e := range entries {
		data = append(data, ModelEntry{
			ID:               e.ID,
			Name:             e.DisplayName,
			Family:           e.Family,
			MaxTokens:        e.MaxTokens,
			ImageCapable:     e.ImageCapable,
			IsReasoningModel: e.IsReasoningModel,
		})
	}
	return ModelsResponse{Object: "list", Data: data}
}
