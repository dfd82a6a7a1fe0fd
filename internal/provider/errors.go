package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"assistant-router/internal/models"
)

// Kind classifies adapter failures independently of the backend.
type Kind string

const (
	KindAuth                  Kind = "auth_error"
	KindBackendProtocol       Kind = "backend_protocol_error"
	KindUnsupportedCapability Kind = "unsupported_capability"
	KindParse                 Kind = "parse_error"
)

func (k Kind) Error() string {
	return string(k)
}

// Error is the normalized failure produced at every adapter boundary.
type Error struct {
	Kind       Kind
	Provider   models.Family
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(Label(e.Provider))
	b.WriteString(" API Error")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (%d)", e.StatusCode)
	}
	b.WriteString(": ")
	switch {
	case e.Message != "" && e.Err != nil:
		b.WriteString(e.Message + ": " + e.Err.Error())
	case e.Message != "":
		b.WriteString(e.Message)
	case e.Err != nil:
		b.WriteString(e.Err.Error())
	default:
		b.WriteString(string(e.Kind))
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause, so errors.Is matches either.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf reports the kind of err, defaulting to KindBackendProtocol for
// errors that were never normalized.
func KindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return KindBackendProtocol
}

// Normalize converts any error into an *Error attributed to family.
func Normalize(family models.Family, err error) *Error {
	if err == nil {
		return nil
	}
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	return &Error{Kind: KindBackendProtocol, Provider: family, Err: err}
}

// Label is the human-facing backend name used in notices.
func Label(family models.Family) string {
	switch family {
	case models.FamilyOpenAI:
		return "OpenAI"
	case models.FamilyAnthropic:
		return "Anthropic"
	case models.FamilyGemini:
		return "Gemini"
	case models.FamilyGroq:
		return "Groq"
	default:
		return "Provider"
	}
}

// ParseError wraps a decode failure.
func ParseError(family models.Family, err error) error {
	return &Error{Kind: KindParse, Provider: family, Message: "decode provider response", Err: err}
}

// MissingField reports a response that decoded but lacks the expected shape.
func MissingField(family models.Family, what string) error {
	return &Error{Kind: KindParse, Provider: family, Message: "response missing " + what}
}

// TransportError wraps a failed round-trip.
func TransportError(family models.Family, err error) error {
	return &Error{Kind: KindBackendProtocol, Provider: family, Message: "request failed", Err: err}
}

// AuthError reports a credential missing before any request is attempted.
func AuthError(family models.Family, message string) error {
	return &Error{Kind: KindAuth, Provider: family, Message: message}
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Status  string `json:"status"`
	} `json:"error"`
}

// ParseAPIError turns a non-2xx response into an *Error. The OpenAI, Groq,
// Anthropic and Gemini error envelopes all carry error.message.
func ParseAPIError(family models.Family, resp *http.Response) error {
	kind := KindBackendProtocol
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		kind = KindAuth
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return &Error{Kind: kind, Provider: family, StatusCode: resp.StatusCode, Message: "failed to read error body", Err: err}
	}

	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return &Error{Kind: kind, Provider: family, StatusCode: resp.StatusCode, Message: apiErr.Error.Message}
	}

	return &Error{Kind: kind, Provider: family, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}

// DecodeJSON decodes a provider response body into target.
func DecodeJSON(family models.Family, reader io.Reader, target any) error {
	if err := json.NewDecoder(reader).Decode(target); err != nil {
		return ParseError(family, err)
	}
	return nil
}
