package config

import (
	"maps"
	"slices"
)

// Snapshot is an immutable per-call view of the configuration handed to
// adapter construction. Adapters never write back to it.
type Snapshot struct {
	OpenAI    ProviderConfig
	Anthropic ProviderConfig
	Gemini    ProviderConfig
	Groq      ProviderConfig

	Model              string
	CritiqueModel      string
	ImageModel         string
	MaxTokens          int
	ReplaceSelection   bool
	Language           string
	ImageCapableModels []string
	ImageFallbackModel string
}

// Snapshot copies the current configuration. Slices and maps are cloned so the
// settings owner can keep mutating its Config between calls.
func (c Config) Snapshot() Snapshot {
	replace := true
	if c.Assistant.ReplaceSelection != nil {
		replace = *c.Assistant.ReplaceSelection
	}
	return Snapshot{
		OpenAI:             c.Providers.OpenAI.clone(),
		Anthropic:          c.Providers.Anthropic.clone(),
		Gemini:             c.Providers.Gemini.clone(),
		Groq:               c.Providers.Groq.clone(),
		Model:              c.Assistant.Model,
		CritiqueModel:      c.Assistant.CritiqueModel,
		ImageModel:         c.Assistant.ImageModel,
		MaxTokens:          c.Assistant.MaxTokens,
		ReplaceSelection:   replace,
		Language:           c.Assistant.Language,
		ImageCapableModels: slices.Clone(c.Assistant.ImageCapableModels),
		ImageFallbackModel: c.Assistant.ImageFallbackModel,
	}
}

func (p ProviderConfig) clone() ProviderConfig {
	p.Headers = maps.Clone(p.Headers)
	return p
}
