package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"assistant-router/internal/document"
	"assistant-router/internal/provider"
)

func decodeRequestBody[T any](c echo.Context, target *T) error {
	req := c.Request()
	defer req.Body.Close()

	req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes)

	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return invalidRequest("request body is required")
		}
		return invalidRequest(fmt.Sprintf("invalid JSON payload: %v", err))
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return invalidRequest("request body must contain a single JSON object")
	}
	return nil
}

type requestError struct {
	Status  int
	Message string
	Type    string
	Code    string
}

func (e requestError) Error() string {
	return e.Message
}

func invalidRequest(message string) requestError {
	return requestError{Status: http.StatusBadRequest, Message: message, Type: "invalid_request_error"}
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code,omitempty"`
	} `json:"error"`
}

func writeError(c echo.Context, status int, message, errType, code string) error {
	var payload errorBody
	payload.Error.Message = message
	payload.Error.Type = errType
	payload.Error.Code = code
	return c.JSON(status, payload)
}

func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var reqErr requestError
	if errors.As(toHTTPError(err), &reqErr) && reqErr.Status != 0 {
		_ = writeError(c, reqErr.Status, reqErr.Message, reqErr.Type, reqErr.Code)
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		_ = writeError(c, he.Code, fmt.Sprint(he.Message), "invalid_request_error", "")
		return
	}

	_ = writeError(c, http.StatusInternalServerError, "internal server error", "server_error", "")
}

// toHTTPError maps domain errors onto status codes. Errors it does not
// recognise come back with a zero status.
func toHTTPError(err error) error {
	var reqErr requestError
	if errors.As(err, &reqErr) {
		return reqErr
	}

	switch {
	case errors.Is(err, document.ErrNotFound):
		return requestError{Status: http.StatusNotFound, Message: err.Error(), Type: "not_found_error"}
	case errors.Is(err, document.ErrClosed):
		return requestError{Status: http.StatusConflict, Message: err.Error(), Type: "invalid_request_error"}
	}

	var perr *provider.Error
	if !errors.As(err, &perr) {
		return requestError{}
	}

	switch perr.Kind {
	case provider.KindUnsupportedCapability:
		return requestError{Status: http.StatusBadRequest, Message: perr.Error(), Type: "invalid_request_error", Code: string(perr.Kind)}
	case provider.KindAuth:
		return requestError{Status: http.StatusUnauthorized, Message: perr.Error(), Type: "authentication_error", Code: string(perr.Kind)}
	default:
		return requestError{Status: http.StatusBadGateway, Message: perr.Error(), Type: "upstream_error", Code: string(perr.Kind)}
	}
}
