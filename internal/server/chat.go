package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"assistant-router/internal/provider"
	"assistant-router/internal/stream"
	"assistant-router/internal/translator"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

func (s *Server) handleModels(c echo.Context) error {
	return c.JSON(http.StatusOK, translator.FromCatalog(s.catalog.List()))
}

func (s *Server) handleChat(c echo.Context) error {
	var req translator.ChatRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}

	snap := s.snapshot()
	adapter, err := s.router.Select(req.Model, snap, provider.LogNotifier{})
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	if req.Stream {
		return writeChatStream(c, func(sink stream.Func) (string, error) {
			return adapter.Text(ctx, req.ToMessages(), sink)
		})
	}

	clearWriteDeadline(c)
	text, err := adapter.Text(ctx, req.ToMessages(), nil)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, translator.ChatResponse{
		Model:  adapter.Model(),
		Family: adapter.Family(),
		Text:   text,
	})
}

func writeChatStream(c echo.Context, call func(stream.Func) (string, error)) error {
	writer := c.Response().Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		slog.Error("http writer does not support flushing")
		return requestError{
			Status:  http.StatusInternalServerError,
			Message: "server does not support streaming responses",
			Type:    "server_error",
		}
	}

	clearWriteDeadline(c)
	header := c.Response().Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	var writeErr error
	send := func(frame translator.StreamFrame) {
		if writeErr != nil {
			return
		}
		if writeErr = writeSSEEvent(writer, frame.Type, frame); writeErr != nil {
			slog.Error("failed to write SSE event", "event", frame.Type, "err", writeErr)
			return
		}
		flusher.Flush()
	}

	text, err := call(func(fragment, total string) {
		send(translator.FragmentFrame(fragment, total))
	})
	if err != nil {
		send(translator.ErrorFrame(err))
		return nil
	}
	send(translator.DoneFrame(text))
	return writeErr
}

func writeSSEEvent(w io.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal SSE payload: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
		return fmt.Errorf("write SSE event name: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write SSE data: %w", err)
	}
	return nil
}

// handleChatSocket serves one chat request per text message. Every request is
// answered with fragment frames followed by a done or error frame.
func (s *Server) handleChatSocket(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "err", err)
		return nil
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("websocket read ended", "err", err)
			}
			return nil
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if err := s.serveSocketRequest(ctx, conn, data); err != nil {
			slog.Warn("websocket write failed", "err", err)
			return nil
		}
	}
}

func (s *Server) serveSocketRequest(ctx context.Context, conn *websocket.Conn, data []byte) error {
	var req translator.ChatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return conn.WriteJSON(translator.ErrorFrame(err))
	}

	adapter, err := s.router.Select(req.Model, s.snapshot(), provider.LogNotifier{})
	if err != nil {
		return conn.WriteJSON(translator.ErrorFrame(err))
	}

	var writeErr error
	text, err := adapter.Text(ctx, req.ToMessages(), func(fragment, total string) {
		if writeErr == nil {
			writeErr = conn.WriteJSON(translator.FragmentFrame(fragment, total))
		}
	})
	if writeErr != nil {
		return writeErr
	}
	if err != nil {
		return conn.WriteJSON(translator.ErrorFrame(err))
	}
	return conn.WriteJSON(translator.DoneFrame(text))
}
