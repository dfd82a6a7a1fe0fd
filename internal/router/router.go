package router

import (
	"fmt"
	"net/http"
	"slices"
	"strings"

	"assistant-router/internal/config"
	"assistant-router/internal/models"
	"assistant-router/internal/provider"
	anthropicProvider "assistant-router/internal/provider/anthropic"
	geminiProvider "assistant-router/internal/provider/gemini"
	groqProvider "assistant-router/internal/provider/groq"
	openaiProvider "assistant-router/internal/provider/openai"
)

var groqKeywords = []string{"llama", "qwen", "deepseek", "gpt-oss"}

// FamilyOf resolves the backend family for a model id. Matching is substring
// containment checked in a fixed order: claude, gemini, the Groq keywords,
// then OpenAI for everything else.
func FamilyOf(modelID string) models.Family {
	switch {
	case strings.Contains(modelID, "claude"):
		return models.FamilyAnthropic
	case strings.Contains(modelID, "gemini"):
		return models.FamilyGemini
	case slices.ContainsFunc(groqKeywords, func(k string) bool { return strings.Contains(modelID, k) }):
		return models.FamilyGroq
	default:
		return models.FamilyOpenAI
	}
}

// Describe derives the descriptor for modelID under snap.
func Describe(modelID string, snap config.Snapshot) models.ModelDescriptor {
	family := FamilyOf(modelID)
	d := models.ModelDescriptor{
		ID:        modelID,
		Family:    family,
		MaxTokens: snap.MaxTokens,
	}
	switch family {
	case models.FamilyOpenAI:
		d.ImageCapable = slices.Contains(snap.ImageCapableModels, modelID)
		d.IsReasoningModel = openaiProvider.IsReasoningModel(modelID)
	case models.FamilyAnthropic:
		d.ImageCapable = true
	case models.FamilyGroq:
		d.IsReasoningModel = groqProvider.IsReasoningModel(modelID)
	}
	return d
}

// Router builds adapters for model ids. It holds no per-call state and is safe
// for concurrent use.
type Router struct {
	client *http.Client
}

// New constructs a router sharing client across every adapter it builds.
func New(client *http.Client) *Router {
	if client == nil {
		client = provider.NewHTTPClient()
	}
	return &Router{client: client}
}

// Select returns the adapter for modelID configured from snap, wrapped in the
// reporting boundary so failures reach notifier. A nil notifier logs instead.
func (r *Router) Select(modelID string, snap config.Snapshot, notifier provider.Notifier) (provider.Adapter, error) {
	if strings.TrimSpace(modelID) == "" {
		modelID = snap.Model
	}
	settings := provider.Settings{Model: modelID, MaxTokens: snap.MaxTokens}

	var (
		adapter provider.Adapter
		err     error
	)
	switch FamilyOf(modelID) {
	case models.FamilyAnthropic:
		adapter, err = anthropicProvider.New(snap.Anthropic, settings, r.client)
	case models.FamilyGemini:
		adapter, err = geminiProvider.New(snap.Gemini, settings, r.client)
	case models.FamilyGroq:
		adapter, err = groqProvider.New(snap.Groq, settings, r.client, notifier)
	default:
		adapter, err = openaiProvider.New(snap.OpenAI, openaiProvider.Options{
			Settings:           settings,
			ImageCapableModels: snap.ImageCapableModels,
			ImageFallbackModel: snap.ImageFallbackModel,
		}, r.client)
	}
	if err != nil {
		return nil, fmt.Errorf("initialise adapter for %q: %w", modelID, err)
	}
	return provider.WithReporting(adapter, notifier), nil
}

// BuildCatalog registers every configured model with its routed descriptor.
func BuildCatalog(cfg config.Config) (*provider.Catalog, error) {
	snap := cfg.Snapshot()
	catalog := provider.NewCatalog()
	for id, name := range cfg.Assistant.Models {
		if err := catalog.Register(provider.Entry{ModelDescriptor: Describe(id, snap), DisplayName: name}); err != nil {
			return nil, fmt.Errorf("register model %s: %w", id, err)
		}
	}
	return catalog, nil
}
