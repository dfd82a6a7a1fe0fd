package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"
)

const (
	ContentTypeJSON = "application/json"
	UserAgent       = "assistant-router/0.1"
)

const (
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

// NewHTTPClient returns the client shared by adapters. There is no overall
// timeout: a slow backend leaves the caller parked until the context ends.
func NewHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{Transport: transport}
}

// NewJSONRequest marshals payload and builds a POST request carrying the
// default headers followed by extra.
func NewJSONRequest(ctx context.Context, url string, payload any, extra map[string]string) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	req.Header.Set("Content-Type", ContentTypeJSON)
	req.Header.Set("Accept", ContentTypeJSON)
	req.Header.Set("User-Agent", UserAgent)
	for k, v := range extra {
		req.Header.Set(k, v)
	}
	return req, nil
}

// RedactKey keeps enough of a credential to tell keys apart in debug logs.
func RedactKey(key string) string {
	if key == "" {
		return "NOT SET"
	}
	if len(key) <= 6 {
		return "***"
	}
	return key[:6] + "..."
}
