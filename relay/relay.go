// Package relay is the HTTP client for the OpenAI-compatible image
// generation backend. Every call carries the rotated upstream credential it
// was given; the client itself holds no credentials.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/vantari/imagefront"
)

// ErrUnavailable means the backend could not be reached at all.
var ErrUnavailable = errors.New("relay: backend unavailable")

// StatusError is a non-2xx backend response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relay: backend returned %d: %s", e.Code, e.Body)
}

// IsCredentialError reports whether err indicates the upstream credential
// itself was rejected, as opposed to a transient backend problem.
func IsCredentialError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && (se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden)
}

// Client calls the backend's /images/generations and /chat/completions
// endpoints. An optional rate limiter paces outbound calls so a burst of
// inbound traffic does not trip the backend's own throttling.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ imagefront.Backend = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client (e.g. one with a proxy).
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithRateLimit paces outbound calls to rps with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(cl *Client) {
		if rps > 0 {
			if burst < 1 {
				burst = 1
			}
			cl.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// New creates a backend client for baseURL (e.g. "https://api.example.com/v1").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 180 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GenerateImages performs one image generation call authenticated as token.
func (c *Client) GenerateImages(ctx context.Context, token string, req imagefront.GenerateRequest) (imagefront.GenerateResult, error) {
	if req.Size == "" {
		req.Size = "1024x1536"
	}
	if req.ResponseFormat == "" {
		req.ResponseFormat = "url"
	}

	var resp struct {
		Created int64 `json:"created"`
		Data    []struct {
			URL     string `json:"url"`
			B64JSON string `json:"b64_json"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/images/generations", token, req, &resp); err != nil {
		return imagefront.GenerateResult{}, err
	}

	result := imagefront.GenerateResult{Created: resp.Created}
	for _, d := range resp.Data {
		result.Images = append(result.Images, imagefront.Image{URL: d.URL, B64JSON: d.B64JSON})
	}
	return result, nil
}

// ChatCompletion performs one chat completion call authenticated as token.
func (c *Client) ChatCompletion(ctx context.Context, token string, req imagefront.ChatRequest) (imagefront.ChatResult, error) {
	var resp struct {
		ID      string `json:"id"`
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := c.post(ctx, "/chat/completions", token, req, &resp); err != nil {
		return imagefront.ChatResult{}, err
	}
	if len(resp.Choices) == 0 {
		return imagefront.ChatResult{}, fmt.Errorf("relay: empty choices in response")
	}
	return imagefront.ChatResult{
		ID:      resp.ID,
		Model:   resp.Model,
		Content: resp.Choices[0].Message.Content,
	}, nil
}

func (c *Client) post(ctx context.Context, path, token string, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("relay: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("relay: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(httpResp.Body, 2048))
		return &StatusError{Code: httpResp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return fmt.Errorf("relay: decode response: %w", err)
	}
	return nil
}

// SizeForAspectRatio maps an aspect ratio shorthand to the backend's size
// parameter. Unknown ratios fall back to portrait 1024x1536.
func SizeForAspectRatio(ratio string) string {
	switch ratio {
	case "1:1":
		return "1024x1024"
	case "2:3":
		return "1024x1536"
	case "3:2":
		return "1536x1024"
	case "16:9":
		return "1792x1024"
	case "9:16":
		return "1024x1792"
	}
	return "1024x1536"
}
