package imagefront

import "context"

// Backend is the outbound boundary to the image generation service. The
// token argument is the rotated upstream credential for this one call.
// Implementations live outside the pool core (see the relay package).
type Backend interface {
	GenerateImages(ctx context.Context, token string, req GenerateRequest) (GenerateResult, error)
	ChatCompletion(ctx context.Context, token string, req ChatRequest) (ChatResult, error)
}

// GenerateRequest is one image generation call in OpenAI request shape.
type GenerateRequest struct {
	Prompt         string `json:"prompt"`
	Model          string `json:"model"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format"`
}

// GenerateResult is the outcome of a generation call.
type GenerateResult struct {
	ID      string  `json:"id"`
	Created int64   `json:"created"`
	Images  []Image `json:"data"`
}

// Image is one generated image, as a URL or inline base64 payload.
type Image struct {
	URL     string `json:"url,omitempty"`
	B64JSON string `json:"b64_json,omitempty"`
}

// ChatMessage is one chat turn.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is one chat completion call.
type ChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	N        int           `json:"n,omitempty"`
}

// ChatResult is the outcome of a chat completion call.
type ChatResult struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content string `json:"content"`
}

// PromptTranslator rewrites a prompt before it reaches the backend. It
// never fails: an implementation that cannot translate returns the prompt
// unchanged.
type PromptTranslator interface {
	Translate(ctx context.Context, prompt string) string
}
