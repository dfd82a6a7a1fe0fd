package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"assistant-router/internal/models"
	"assistant-router/internal/provider"
	"assistant-router/internal/translator"
)

const (
	transcriptionModel = "whisper-1"
	speechModel        = "tts-1"
)

func (s *Server) handleImages(c echo.Context) error {
	var req translator.ImageRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}

	snap := s.snapshot()
	imageReq, err := req.ToModel(snap.ImageModel)
	if err != nil {
		return invalidRequest(err.Error())
	}

	adapter, err := s.router.Select(snap.ImageModel, snap, provider.LogNotifier{})
	if err != nil {
		return err
	}

	clearWriteDeadline(c)
	urls, err := adapter.Image(c.Request().Context(), imageReq)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, translator.ImageResponse{Images: urls})
}

func (s *Server) handleTranscription(c echo.Context) error {
	c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, maxAudioBytes)

	fh, err := c.FormFile("file")
	if err != nil {
		return invalidRequest(fmt.Sprintf("multipart field %q is required", "file"))
	}
	f, err := fh.Open()
	if err != nil {
		return invalidRequest(fmt.Sprintf("open upload: %v", err))
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return invalidRequest(fmt.Sprintf("read upload: %v", err))
	}

	snap := s.snapshot()
	language := strings.TrimSpace(c.FormValue("language"))
	if language == "" {
		language = snap.Language
	}

	adapter, err := s.router.Select(transcriptionModel, snap, provider.LogNotifier{})
	if err != nil {
		return err
	}

	clearWriteDeadline(c)
	text, err := adapter.SpeechToText(c.Request().Context(), models.Audio{
		Filename:  fh.Filename,
		MediaType: fh.Header.Get("Content-Type"),
		Data:      data,
	}, language)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, translator.TranscriptionResponse{Text: text})
}

func (s *Server) handleSpeech(c echo.Context) error {
	var req translator.SpeechRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Text) == "" {
		return invalidRequest("text must not be empty")
	}

	adapter, err := s.router.Select(speechModel, s.snapshot(), provider.LogNotifier{})
	if err != nil {
		return err
	}

	clearWriteDeadline(c)
	audio, err := adapter.TextToSpeech(c.Request().Context(), req.Text)
	if err != nil {
		return err
	}
	mediaType := audio.MediaType
	if mediaType == "" {
		mediaType = "audio/mpeg"
	}
	return c.Blob(http.StatusOK, mediaType, audio.Data)
}
