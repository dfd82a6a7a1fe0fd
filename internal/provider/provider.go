package provider

import (
	"context"

	"assistant-router/internal/models"
	"assistant-router/internal/stream"
)

// Adapter is the capability set every backend exposes. A backend lacking a
// capability returns an error of kind KindUnsupportedCapability.
type Adapter interface {
	Family() models.Family
	Model() string

	// Text runs a chat call. When sink is non-nil the adapter delivers
	// fragments to it as they become available; the returned text always
	// equals the fully accumulated answer.
	Text(ctx context.Context, messages []models.Message, sink stream.Func) (string, error)
	Image(ctx context.Context, req models.ImageRequest) ([]string, error)
	SpeechToText(ctx context.Context, audio models.Audio, language string) (string, error)
	TextToSpeech(ctx context.Context, text string) (models.Audio, error)
}

// Settings are the per-call model parameters shared by every adapter.
type Settings struct {
	Model     string
	MaxTokens int
}

// Unsupported builds the error returned for a capability a backend lacks.
func Unsupported(family models.Family, capability string) error {
	return &Error{
		Kind:     KindUnsupportedCapability,
		Provider: family,
		Message:  capability + " is not supported",
	}
}
