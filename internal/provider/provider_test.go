package provider

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"assistant-router/internal/models"
	"assistant-router/internal/stream"
)

type stubAdapter struct {
	text  string
	err   error
	panic any
}

func (s *stubAdapter) Family() models.Family { return models.FamilyGemini }
func (s *stubAdapter) Model() string         { return "gemini-2.5-flash" }

func (s *stubAdapter) Text(ctx context.Context, messages []models.Message, sink stream.Func) (string, error) {
	if s.panic != nil {
		panic(s.panic)
	}
	return s.text, s.err
}

func (s *stubAdapter) Image(ctx context.Context, req models.ImageRequest) ([]string, error) {
	return nil, Unsupported(s.Family(), "image generation")
}

func (s *stubAdapter) SpeechToText(ctx context.Context, audio models.Audio, language string) (string, error) {
	return "", errors.New("socket closed")
}

func (s *stubAdapter) TextToSpeech(ctx context.Context, text string) (models.Audio, error) {
	return models.Audio{Data: []byte("x")}, nil
}

type recordingNotifier struct {
	notices []string
}

func (r *recordingNotifier) Notify(message string) { r.notices = append(r.notices, message) }

func TestReportingPassesThroughSuccess(t *testing.T) {
	n := &recordingNotifier{}
	a := WithReporting(&stubAdapter{text: "hello"}, n)

	text, err := a.Text(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, "hello", text)
	require.Empty(t, n.notices)

	audio, err := a.TextToSpeech(context.Background(), "hi")
	require.NoError(t, err)
	require.Equal(t, []byte("x"), audio.Data)
}

func TestReportingConvertsFailures(t *testing.T) {
	n := &recordingNotifier{}
	a := WithReporting(&stubAdapter{text: "partial", err: &Error{Kind: KindParse, Provider: models.FamilyGemini, Message: "response missing text"}}, n)

	text, err := a.Text(context.Background(), nil, nil)
	require.Empty(t, text)
	require.ErrorIs(t, err, KindParse)
	require.Equal(t, []string{"Gemini API Error: response missing text"}, n.notices)

	urls, err := a.Image(context.Background(), models.ImageRequest{})
	require.Nil(t, urls)
	require.ErrorIs(t, err, KindUnsupportedCapability)

	_, err = a.SpeechToText(context.Background(), models.Audio{}, "en")
	require.ErrorIs(t, err, KindBackendProtocol)
	require.Len(t, n.notices, 3)
	require.Contains(t, n.notices[2], "socket closed")
}

func TestReportingRecoversPanics(t *testing.T) {
	n := &recordingNotifier{}
	a := WithReporting(&stubAdapter{panic: "boom"}, n)

	var (
		text string
		err  error
	)
	require.NotPanics(t, func() {
		text, err = a.Text(context.Background(), nil, nil)
	})
	require.Empty(t, text)
	require.ErrorIs(t, err, KindBackendProtocol)
	require.Contains(t, n.notices[0], "adapter panic: boom")
}

func TestParseAPIError(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusUnauthorized,
		Body:       io.NopCloser(strings.NewReader(`{"error":{"message":"invalid x-api-key","type":"authentication_error"}}`)),
	}
	err := ParseAPIError(models.FamilyAnthropic, resp)
	require.ErrorIs(t, err, KindAuth)
	require.Equal(t, "Anthropic API Error (401): invalid x-api-key", err.Error())

	resp = &http.Response{
		StatusCode: http.StatusBadGateway,
		Body:       io.NopCloser(strings.NewReader("upstream down\n")),
	}
	err = ParseAPIError(models.FamilyGroq, resp)
	require.ErrorIs(t, err, KindBackendProtocol)
	require.Equal(t, "Groq API Error (502): upstream down", err.Error())
}

func TestKindOfAndNormalize(t *testing.T) {
	require.Equal(t, KindAuth, KindOf(AuthError(models.FamilyGroq, "missing key")))
	require.Equal(t, KindBackendProtocol, KindOf(errors.New("plain")))

	cause := context.Canceled
	perr := Normalize(models.FamilyOpenAI, cause)
	require.ErrorIs(t, perr, context.Canceled)
	require.ErrorIs(t, perr, KindBackendProtocol)
	require.Nil(t, Normalize(models.FamilyOpenAI, nil))
}

func TestCatalog(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Register(Entry{ModelDescriptor: models.ModelDescriptor{ID: "gpt-4o", Family: models.FamilyOpenAI}, DisplayName: "GPT-4o"}))
	require.NoError(t, c.Register(Entry{ModelDescriptor: models.ModelDescriptor{ID: "claude-sonnet-4-20250514", Family: models.FamilyAnthropic}}))
	require.ErrorIs(t, c.Register(Entry{ModelDescriptor: models.ModelDescriptor{ID: "gpt-4o"}}), ErrDuplicateModel)

	entry, err := c.Lookup("gpt-4o")
	require.NoError(t, err)
	require.Equal(t, "GPT-4o", entry.DisplayName)

	_, err = c.Lookup("nope")
	require.ErrorIs(t, err, ErrUnknownModel)

	list := c.List()
	require.Len(t, list, 2)
	require.Equal(t, models.FamilyAnthropic, list[0].Family)
}
