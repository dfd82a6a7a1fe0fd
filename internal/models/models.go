package models

import (
	"slices"
	"strings"
)

// Role values accepted in a Message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Part types within mixed content.
const (
	PartText  = "text"
	PartImage = "image_url"
)

// Part is one element of mixed message content. Image parts carry an opaque
// reference, typically a data URL or remote URL.
type Part struct {
	Type     string
	Text     string
	ImageURL string
}

// TextPart builds a text content part.
func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

// ImagePart builds an image content part.
func ImagePart(ref string) Part {
	return Part{Type: PartImage, ImageURL: ref}
}

// Message represents a single conversational message. When Parts is non-empty
// the message carries mixed content and Content is ignored.
type Message struct {
	Role    string
	Content string
	Parts   []Part
}

// UserText is shorthand for a single user message with plain text content.
func UserText(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// IsMixed reports whether the message carries a part sequence.
func (m Message) IsMixed() bool {
	return len(m.Parts) > 0
}

// HasImage reports whether any part of the message is an image.
func (m Message) HasImage() bool {
	for _, p := range m.Parts {
		if p.Type == PartImage {
			return true
		}
	}
	return false
}

// Text returns the textual content. Mixed content contributes its text parts
// joined by newlines; image parts are skipped.
func (m Message) Text() string {
	if !m.IsMixed() {
		return m.Content
	}
	texts := make([]string, 0, len(m.Parts))
	for _, p := range m.Parts {
		if p.Type == PartText {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// Equal reports whether two messages carry the same role and content.
func (m Message) Equal(other Message) bool {
	return m.Role == other.Role && m.Content == other.Content && slices.Equal(m.Parts, other.Parts)
}

// AnyImage reports whether any message in the list contains an image part.
func AnyImage(messages []Message) bool {
	for _, m := range messages {
		if m.HasImage() {
			return true
		}
	}
	return false
}

// Family identifies the backend protocol a model is served by.
type Family string

const (
	FamilyOpenAI    Family = "openai"
	FamilyAnthropic Family = "anthropic"
	FamilyGemini    Family = "gemini"
	FamilyGroq      Family = "groq"
)

// ModelDescriptor describes a model as resolved at routing time.
type ModelDescriptor struct {
	ID               string
	Family           Family
	MaxTokens        int
	ImageCapable     bool
	IsReasoningModel bool
}

// ImageRequest describes an image generation call.
type ImageRequest struct {
	Model  string
	Prompt string
	Size   string
	Count  int
	HD     bool
}

// Audio is an audio payload: recorded input for speech-to-text, or the
// playable resource returned by text-to-speech.
type Audio struct {
	Filename  string
	MediaType string
	Data      []byte
}
