// Package ai provides analysis engine adapters speaking the chat-completions,
// messages and generate HTTP protocols, plus an offline mock engine.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// maxResponseBytes caps the size of an engine response body.
const maxResponseBytes = 8 << 20

// EngineConfig configures an HTTP engine adapter.
type EngineConfig struct {
	Name    string
	BaseURL string
	Model   string
	// APIKey authenticates against cloud engines. Local engines leave it empty.
	APIKey      string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
}

func (c EngineConfig) endpoint(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + path
}

func newHTTPClient(cfg EngineConfig, client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// ProviderError is a non-2xx answer from an engine.
type ProviderError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("engine returned %d: %s: %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("engine returned %d: %s", e.StatusCode, e.Message)
}

// postJSON sends payload and decodes a 2xx response into out.
func postJSON(
	ctx context.Context,
	client *http.Client,
	url string,
	headers map[string]string,
	payload, out any,
) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readProviderError(resp)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// readProviderError understands the {"error":{"type","message"}} shape shared
// by most engines and falls back to the raw body.
func readProviderError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var wire struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(body, &wire) == nil && len(wire.Error) > 0 {
		var structured struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		}
		if json.Unmarshal(wire.Error, &structured) == nil && structured.Message != "" {
			return &ProviderError{StatusCode: resp.StatusCode, Type: structured.Type, Message: structured.Message}
		}
		var plain string
		if json.Unmarshal(wire.Error, &plain) == nil && plain != "" {
			return &ProviderError{StatusCode: resp.StatusCode, Message: plain}
		}
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &ProviderError{StatusCode: resp.StatusCode, Message: msg}
}
