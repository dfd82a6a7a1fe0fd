package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"assistant-router/internal/config"
	"assistant-router/internal/critique"
	"assistant-router/internal/document"
	"assistant-router/internal/router"
	"assistant-router/internal/translator"
)

// fakeBackend answers the OpenAI and Anthropic routes used by the tests.
func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/chat/completions":
			var body struct {
				Model    string `json:"model"`
				Stream   bool   `json:"stream"`
				Messages []struct {
					Content any `json:"content"`
				} `json:"messages"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			if body.Stream {
				w.Header().Set("Content-Type", "text/event-stream")
				fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
				fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
				fmt.Fprint(w, "data: [DONE]\n\n")
				return
			}
			answer := "Hello"
			if prompt, _ := body.Messages[0].Content.(string); strings.HasPrefix(prompt, "Critique this response.") {
				answer = "- tighten wording"
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"choices": []map[string]any{{"message": map[string]any{"role": "assistant", "content": answer}}},
			})
		case "/images/generations":
			_, _ = io.WriteString(w, `{"data":[{"url":"https://images.example/1.png"}]}`)
		case "/audio/transcriptions":
			require.NoError(t, r.ParseMultipartForm(1<<20))
			require.Equal(t, "whisper-1", r.FormValue("model"))
			require.Equal(t, "de", r.FormValue("language"))
			_, _ = io.WriteString(w, `{"text":"transcribed"}`)
		case "/audio/speech":
			w.Header().Set("Content-Type", "audio/mpeg")
			_, _ = w.Write([]byte("ID3audio"))
		case "/v1/messages":
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
		default:
			http.NotFound(w, r)
		}
	}))
}

type manualHandle struct{ stopped bool }

func (h *manualHandle) Stop() bool {
	was := !h.stopped
	h.stopped = true
	return was
}

type manualScheduler struct {
	fns     []func()
	handles []*manualHandle
}

func (s *manualScheduler) AfterFunc(_ time.Duration, f func()) critique.Handle {
	h := &manualHandle{}
	s.fns = append(s.fns, f)
	s.handles = append(s.handles, h)
	return h
}

func newTestServer(t *testing.T) (*Server, *manualScheduler) {
	t.Helper()
	backend := fakeBackend(t)
	t.Cleanup(backend.Close)

	cfg := config.Default()
	cfg.Providers.OpenAI = config.ProviderConfig{APIKey: "sk-test", BaseURL: backend.URL}
	cfg.Providers.Anthropic = config.ProviderConfig{APIKey: "bad", BaseURL: backend.URL}

	rt := router.New(backend.Client())
	sched := &manualScheduler{}
	srv, err := New(cfg, rt, critique.New(rt, sched))
	require.NoError(t, err)
	return srv, sched
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestModels(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/v1/models", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp translator.ModelsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, len(config.DefaultCatalog))
	require.Equal(t, "anthropic", string(resp.Data[0].Family))
}

func TestChat(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodPost, "/v1/chat", `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"model":"gpt-4o","family":"openai","text":"Hello"}`, rec.Body.String())
}

func TestChatUsesConfiguredModel(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodPost, "/v1/chat", `{"messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"model":"gpt-4o"`)
}

func TestChatStream(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodPost, "/v1/chat", `{"model":"gpt-4o","stream":true,"messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	require.Contains(t, body, "event: fragment\ndata: {\"type\":\"fragment\",\"fragment\":\"Hel\",\"text\":\"Hel\"}\n\n")
	require.Contains(t, body, "event: fragment\ndata: {\"type\":\"fragment\",\"fragment\":\"lo\",\"text\":\"Hello\"}\n\n")
	require.True(t, strings.HasSuffix(body, "event: done\ndata: {\"type\":\"done\",\"text\":\"Hello\"}\n\n"))
}

func TestChatAuthError(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodPost, "/v1/chat", `{"model":"claude-sonnet-4-20250514","messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	body := decodeError(t, rec)
	require.Equal(t, "authentication_error", body.Error.Type)
	require.Equal(t, "Anthropic API Error (401): invalid x-api-key", body.Error.Message)
}

func TestChatInvalidBody(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/v1/chat", `{"messages":[]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_request_error", decodeError(t, rec).Error.Type)

	rec = do(t, srv, http.MethodPost, "/v1/chat", ``)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "request body is required", decodeError(t, rec).Error.Message)

	rec = do(t, srv, http.MethodPost, "/v1/chat", `{"messages":[{"role":"user","content":"a"}]}{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatWebSocket(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/v1/chat/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{
		"model":    "gpt-4o",
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	}))

	var frames []translator.StreamFrame
	for {
		var f translator.StreamFrame
		require.NoError(t, conn.ReadJSON(&f))
		frames = append(frames, f)
		if f.Type != translator.FrameFragment {
			break
		}
	}
	require.Equal(t, []translator.StreamFrame{
		{Type: "fragment", Fragment: "Hel", Text: "Hel"},
		{Type: "fragment", Fragment: "lo", Text: "Hello"},
		{Type: "done", Text: "Hello"},
	}, frames)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"messages":[]}`)))
	var f translator.StreamFrame
	require.NoError(t, conn.ReadJSON(&f))
	require.Equal(t, translator.FrameError, f.Type)
	require.Contains(t, f.Message, "at least one message is required")
}

func TestDocumentPromptWithCritique(t *testing.T) {
	srv, sched := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/v1/documents", `{"text":"intro draft outro","selection":{"from":6,"to":11}}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created translator.CreateDocumentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = do(t, srv, http.MethodPost, "/v1/documents/"+created.ID+"/prompt", `{"prompt":"Improve","model":"gpt-4o","critique":true,"critique_model":"gpt-4.1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var prompted translator.PromptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prompted))
	require.Equal(t, "awaiting_critique", prompted.State)
	require.Equal(t, "Hello", prompted.Answer)
	require.NotEmpty(t, prompted.TaskID)

	require.Len(t, sched.fns, 1)
	sched.fns[0]()

	rec = do(t, srv, http.MethodGet, "/v1/documents/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view document.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Equal(t, "intro Hello\n\n---\n**🤔 Critique:**\n- tighten wording outro", view.Text)
	require.Equal(t, []string{"Preparing critique... This will take about 60 seconds.", "Critique completed!"}, view.Notices)
}

func TestDeleteDocumentRevokesCritique(t *testing.T) {
	srv, sched := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/v1/documents", `{"text":"abc","selection":{"from":0,"to":3}}`)
	var created translator.CreateDocumentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = do(t, srv, http.MethodPost, "/v1/documents/"+created.ID+"/prompt", `{"prompt":"Fix","critique":true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodDelete, "/v1/documents/"+created.ID, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.True(t, sched.handles[0].stopped)

	rec = do(t, srv, http.MethodGet, "/v1/documents/"+created.ID, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "not_found_error", decodeError(t, rec).Error.Type)
}

func TestPromptValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodPost, "/v1/documents", `{"text":"abc"}`)
	var created translator.CreateDocumentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = do(t, srv, http.MethodPost, "/v1/documents/"+created.ID+"/prompt", `{"prompt":"  "}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/v1/documents/missing/prompt", `{"prompt":"x"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImages(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodPost, "/v1/images", `{"prompt":"a cat","hd":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"images":["https://images.example/1.png"]}`, rec.Body.String())
}

func TestImagesUnsupportedBackend(t *testing.T) {
	srv, _ := newTestServer(t)
	cfg := config.Default()
	cfg.Assistant.ImageModel = "gemini-2.5-flash"
	require.NoError(t, srv.UpdateConfig(cfg))

	rec := do(t, srv, http.MethodPost, "/v1/images", `{"prompt":"a cat"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	require.Equal(t, "unsupported_capability", body.Error.Code)
}

func TestTranscription(t *testing.T) {
	srv, _ := newTestServer(t)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", "clip.webm")
	require.NoError(t, err)
	_, _ = part.Write([]byte("fake audio"))
	require.NoError(t, form.WriteField("language", "de"))
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/audio/transcriptions", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"text":"transcribed"}`, rec.Body.String())
}

func TestTranscriptionRequiresFile(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodPost, "/v1/audio/transcriptions", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSpeech(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodPost, "/v1/audio/speech", `{"text":"read this"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	require.Equal(t, "ID3audio", rec.Body.String())

	rec = do(t, srv, http.MethodPost, "/v1/audio/speech", `{"text":""}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
