package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"assistant-router/internal/config"
	"assistant-router/internal/models"
	"assistant-router/internal/provider"
)

func newTestProvider(t *testing.T, srv *httptest.Server, model string) *Provider {
	t.Helper()
	p, err := New(config.ProviderConfig{APIKey: "sk-test", BaseURL: srv.URL}, Options{
		Settings:           provider.Settings{Model: model, MaxTokens: 321},
		ImageCapableModels: slices.Clone(config.DefaultImageCapableModels),
		ImageFallbackModel: "gpt-4o",
	}, srv.Client())
	require.NoError(t, err)
	return p
}

func captureChat(t *testing.T, body *map[string]any, reply string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(body))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": reply}},
			},
		})
	}))
}

func TestIsReasoningModel(t *testing.T) {
	for _, id := range []string{"o1", "o1-preview", "o4-mini", "o2", "gpt-5", "gpt-5-nano"} {
		require.True(t, IsReasoningModel(id), id)
	}
	for _, id := range []string{"gpt-4o", "gpt-4.1", "o3-mini", "dall-e-3", "gpt-4o-mini"} {
		require.False(t, IsReasoningModel(id), id)
	}
}

func TestTextNonStreamingUsesMaxTokens(t *testing.T) {
	var body map[string]any
	srv := captureChat(t, &body, "A summary.")
	defer srv.Close()

	p := newTestProvider(t, srv, "gpt-4o")
	text, err := p.Text(context.Background(), []models.Message{models.UserText("Summarize")}, nil)
	require.NoError(t, err)
	require.Equal(t, "A summary.", text)

	require.Equal(t, "gpt-4o", body["model"])
	require.Equal(t, false, body["stream"])
	require.EqualValues(t, 321, body["max_tokens"])
	require.NotContains(t, body, "max_completion_tokens")
	msgs := body["messages"].([]any)
	require.Equal(t, map[string]any{"role": "user", "content": "Summarize"}, msgs[0])
}

func TestTextReasoningModelUsesMaxCompletionTokens(t *testing.T) {
	var body map[string]any
	srv := captureChat(t, &body, "ok")
	defer srv.Close()

	p := newTestProvider(t, srv, "gpt-5-mini")
	_, err := p.Text(context.Background(), []models.Message{models.UserText("hi")}, nil)
	require.NoError(t, err)
	require.EqualValues(t, 321, body["max_completion_tokens"])
	require.NotContains(t, body, "max_tokens")
}

func TestImageFallbackIsPerCall(t *testing.T) {
	var body map[string]any
	srv := captureChat(t, &body, "a cat")
	defer srv.Close()

	p := newTestProvider(t, srv, "o1-mini")
	msgs := []models.Message{{
		Role:  models.RoleUser,
		Parts: []models.Part{models.TextPart("what is this?"), models.ImagePart("data:image/png;base64,AAAA")},
	}}

	require.Equal(t, "gpt-4o", p.EffectiveModel(msgs))
	_, err := p.Text(context.Background(), msgs, nil)
	require.NoError(t, err)

	require.Equal(t, "gpt-4o", body["model"])
	require.Contains(t, body, "max_tokens")
	require.Equal(t, "o1-mini", p.Model())

	content := body["messages"].([]any)[0].(map[string]any)["content"].([]any)
	require.Equal(t, map[string]any{"type": "text", "text": "what is this?"}, content[0])
	require.Equal(t, map[string]any{"type": "image_url", "image_url": map[string]any{"url": "data:image/png;base64,AAAA"}}, content[1])

	require.Equal(t, "o1-mini", p.EffectiveModel([]models.Message{models.UserText("plain")}))
}

func TestImageCapableModelKeepsModel(t *testing.T) {
	p, err := New(config.ProviderConfig{APIKey: "k"}, Options{
		Settings:           provider.Settings{Model: "gpt-4.1", MaxTokens: 10},
		ImageCapableModels: config.DefaultImageCapableModels,
		ImageFallbackModel: "gpt-4o",
	}, http.DefaultClient)
	require.NoError(t, err)
	msgs := []models.Message{{Role: models.RoleUser, Parts: []models.Part{models.ImagePart("https://x/y.png")}}}
	require.Equal(t, "gpt-4.1", p.EffectiveModel(msgs))
}

func TestTextStreaming(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "text/event-stream")
		for _, frag := range []string{"Hel", "", "lo", " world"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", frag)
		}
		fmt.Fprint(w, "data: {\"choices\":[]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := newTestProvider(t, srv, "gpt-4o")

	var fragments, totals []string
	text, err := p.Text(context.Background(), []models.Message{models.UserText("hi")}, func(fragment, total string) {
		fragments = append(fragments, fragment)
		totals = append(totals, total)
	})
	require.NoError(t, err)
	require.Equal(t, "Hello world", text)
	require.Equal(t, []string{"Hel", "lo", " world"}, fragments)
	require.Equal(t, []string{"Hel", "Hello", "Hello world"}, totals)
	require.Equal(t, true, body["stream"])
}

func TestTextStreamMalformedChunk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {not json\n\n")
	}))
	defer srv.Close()

	p := newTestProvider(t, srv, "gpt-4o")
	_, err := p.Text(context.Background(), []models.Message{models.UserText("hi")}, func(string, string) {})
	require.ErrorIs(t, err, provider.KindParse)
}

func TestTextErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Mode") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`)
			return
		}
	}))
	defer srv.Close()

	p := newTestProvider(t, srv, "gpt-4o")
	_, err := p.Text(context.Background(), []models.Message{models.UserText("hi")}, nil)
	require.ErrorIs(t, err, provider.KindAuth)
	require.Equal(t, "OpenAI API Error (401): Incorrect API key provided", err.Error())

	p.headers = map[string]string{"X-Mode": "empty"}
	p.chat = NewChatClient(models.FamilyOpenAI, "sk-test", srv.URL, p.headers, srv.Client())
	_, err = p.Text(context.Background(), []models.Message{models.UserText("hi")}, nil)
	require.ErrorIs(t, err, provider.KindParse)
}

func TestImageGeneration(t *testing.T) {
	var bodies []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/images/generations", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		bodies = append(bodies, body)
		_, _ = io.WriteString(w, `{"data":[{"url":"https://img/1.png"},{"url":"https://img/2.png"}]}`)
	}))
	defer srv.Close()

	p := newTestProvider(t, srv, "gpt-4o")

	urls, err := p.Image(context.Background(), models.ImageRequest{Model: "dall-e-3", Prompt: "a fox", Size: "1024x1024", Count: 2, HD: true})
	require.NoError(t, err)
	require.Equal(t, []string{"https://img/1.png", "https://img/2.png"}, urls)
	require.Equal(t, "hd", bodies[0]["quality"])
	require.EqualValues(t, 2, bodies[0]["n"])

	_, err = p.Image(context.Background(), models.ImageRequest{Model: "dall-e-2", Prompt: "a fox", Size: "512x512", Count: 1, HD: true})
	require.NoError(t, err)
	require.NotContains(t, bodies[1], "quality")

	_, err = p.Image(context.Background(), models.ImageRequest{Model: "dall-e-3", Prompt: "a fox", Size: "1024x1024", Count: 1})
	require.NoError(t, err)
	require.NotContains(t, bodies[2], "quality")
}

func TestSpeechToText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/audio/transcriptions", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "whisper-1", r.FormValue("model"))
		require.Equal(t, "fr", r.FormValue("language"))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		require.Equal(t, "clip.webm", header.Filename)
		require.Equal(t, "RIFF", string(data))
		_, _ = io.WriteString(w, `{"text":"bonjour"}`)
	}))
	defer srv.Close()

	p := newTestProvider(t, srv, "gpt-4o")
	text, err := p.SpeechToText(context.Background(), models.Audio{Filename: "clip.webm", Data: []byte("RIFF")}, "fr")
	require.NoError(t, err)
	require.Equal(t, "bonjour", text)
}

func TestSpeechToTextOmitsEmptyLanguage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, []string{"whisper-1"}, r.MultipartForm.Value["model"])
		require.NotContains(t, r.MultipartForm.Value, "language")
		_, _ = io.WriteString(w, `{"text":"hello"}`)
	}))
	defer srv.Close()

	p := newTestProvider(t, srv, "gpt-4o")
	text, err := p.SpeechToText(context.Background(), models.Audio{Data: []byte("RIFF")}, "")
	require.NoError(t, err)
	require.Equal(t, "hello", text)
}

func TestTextToSpeech(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/audio/speech", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, map[string]string{"model": "tts-1", "voice": "alloy", "input": "read me"}, body)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3"))
	}))
	defer srv.Close()

	p := newTestProvider(t, srv, "gpt-4o")
	audio, err := p.TextToSpeech(context.Background(), "read me")
	require.NoError(t, err)
	require.Equal(t, "audio/mpeg", audio.MediaType)
	require.Equal(t, []byte("ID3"), audio.Data)
}
