// Package translate rewrites non-English image prompts into English via a
// chat completion call, with an in-process memo cache. Translation is best
// effort: any failure falls back to the original prompt.
package translate

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/vantari/imagefront"
)

const systemPrompt = `You are a professional prompt translator for AI image generation.

Task: Translate the following prompt to English and optimize it for AI image generation models.

Requirements:
1. Translate accurately while preserving the original meaning
2. Use descriptive, vivid language
3. Add relevant quality keywords (e.g., "high detail", "professional", "8k")
4. Use comma-separated format
5. Keep it concise (under 200 words)

Prompt: %s

Output only the optimized English prompt, without explanations.`

var qualityKeywords = []string{
	"high detail", "professional", "8k", "4k",
	"photorealistic", "detailed", "masterpiece",
}

// Translator memoizes remote translations keyed by prompt hash.
type Translator struct {
	baseURL    string
	apiKey     string
	model      string
	enhance    bool
	httpClient *http.Client
	log        *slog.Logger

	mu    sync.Mutex
	cache map[string]string
}

var _ imagefront.PromptTranslator = (*Translator)(nil)

// Option configures a Translator.
type Option func(*Translator)

// WithBaseURL sets the chat completion endpoint base (default OpenAI).
func WithBaseURL(u string) Option {
	return func(t *Translator) { t.baseURL = strings.TrimRight(u, "/") }
}

// WithModel sets the translation model (default gpt-4o-mini).
func WithModel(m string) Option {
	return func(t *Translator) { t.model = m }
}

// WithEnhancement appends quality keywords to English prompts that lack them.
func WithEnhancement() Option {
	return func(t *Translator) { t.enhance = true }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Translator) { t.httpClient = c }
}

// WithLogger sets the logger. If unset, slog.Default() is used.
func WithLogger(l *slog.Logger) Option {
	return func(t *Translator) { t.log = l }
}

// New creates a Translator authenticated with apiKey.
func New(apiKey string, opts ...Option) *Translator {
	t := &Translator{
		baseURL:    "https://api.openai.com/v1",
		apiKey:     apiKey,
		model:      "gpt-4o-mini",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cache:      make(map[string]string),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.log == nil {
		t.log = slog.Default()
	}
	return t
}

// Translate returns the English rendition of prompt. English input is
// returned as-is (optionally enhanced); failures return the input unchanged.
func (t *Translator) Translate(ctx context.Context, prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return prompt
	}

	if !containsCJK(prompt) {
		if t.enhance {
			return enhanceEnglish(prompt)
		}
		return prompt
	}

	key := cacheKey(prompt)
	t.mu.Lock()
	cached, ok := t.cache[key]
	t.mu.Unlock()
	if ok {
		return cached
	}

	translated, err := t.translateRemote(ctx, prompt)
	if err != nil {
		t.log.Warn("prompt translation failed, using original", "error", err)
		return prompt
	}

	t.mu.Lock()
	t.cache[key] = translated
	t.mu.Unlock()
	return translated
}

// ClearCache drops all memoized translations.
func (t *Translator) ClearCache() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache = make(map[string]string)
}

// CacheSize returns the number of memoized translations.
func (t *Translator) CacheSize() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.cache)
}

func (t *Translator) translateRemote(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"model": t.model,
		"messages": []map[string]string{
			{"role": "user", "content": fmt.Sprintf(systemPrompt, prompt)},
		},
		"temperature": 0.7,
		"max_tokens":  500,
	}
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("translate: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("translate: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("translate: backend returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("translate: decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("translate: empty choices in response")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func containsCJK(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

func enhanceEnglish(prompt string) string {
	lower := strings.ToLower(prompt)
	for _, kw := range qualityKeywords {
		if strings.Contains(lower, kw) {
			return prompt
		}
	}
	return prompt + ", high detail, professional"
}

func cacheKey(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:8])
}
