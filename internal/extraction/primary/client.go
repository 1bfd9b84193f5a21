package primary

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"
	maxResponseBytes   = 4 << 20
	defaultHTTPTimeout = 120 * time.Second
)

// chatClient posts chat-completions requests to an OpenAI-compatible endpoint.
type chatClient struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client

	mu          sync.Mutex
	tokenSource oauth2.TokenSource
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []message      `json:"messages"`
	Temperature    float32        `json:"temperature"`
	ResponseFormat responseFormat `json:"response_format"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// complete sends messages and returns the content of the first choice.
func (c *chatClient) complete(ctx context.Context, messages []message) ([]byte, error) {
	payload, err := json.Marshal(chatRequest{
		Model:          c.model,
		Messages:       messages,
		Temperature:    0,
		ResponseFormat: responseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.authorize(req); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("model request timeout: %w", err)
		}
		return nil, fmt.Errorf("model request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read model response: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("model response status %d: not json", resp.StatusCode)
	}
	if msg := gjson.GetBytes(body, "error.message"); msg.Exists() {
		return nil, fmt.Errorf("model error (status %d): %s", resp.StatusCode, msg.String())
	}
	// Vertex wraps some errors in a one-element array.
	if msg := gjson.GetBytes(body, "0.error.message"); msg.Exists() {
		return nil, fmt.Errorf("model error (status %d): %s", resp.StatusCode, msg.String())
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("model response status %d", resp.StatusCode)
	}

	content := gjson.GetBytes(body, "choices.0.message.content")
	if !content.Exists() {
		return nil, errors.New("model response missing choices")
	}
	text := stripCodeFence(content.String())
	if text == "" {
		return nil, errors.New("model response empty content")
	}
	return []byte(text), nil
}

func (c *chatClient) authorize(req *http.Request) error {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		return nil
	}
	ts, err := c.source()
	if err != nil {
		return err
	}
	tok, err := ts.Token()
	if err != nil {
		return fmt.Errorf("fetch access token: %w", err)
	}
	tok.SetAuthHeader(req)
	return nil
}

// source resolves application-default credentials on first use and caches
// them; a failed lookup is retried on the next request.
func (c *chatClient) source() (oauth2.TokenSource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tokenSource != nil {
		return c.tokenSource, nil
	}
	ts, err := google.DefaultTokenSource(context.Background(), cloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("application default credentials: %w", err)
	}
	c.tokenSource = oauth2.ReuseTokenSource(nil, ts)
	return c.tokenSource, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
