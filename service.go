package imagefront

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Service ties the Gate, the prompt translator and the backend together
// into the two request paths the API exposes. Usage on the client key is
// recorded only after the backend call succeeds; usage on the upstream
// token is counted at selection time and is deliberately not compensated
// when the call then fails.
type Service struct {
	gate        *Gate
	backend     Backend
	translator  PromptTranslator
	health      *HealthTracker
	log         *slog.Logger
	imageModel  string
	chatModel   string
	maxAttempts int
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithTranslator enables prompt translation.
func WithTranslator(t PromptTranslator) ServiceOption {
	return func(s *Service) { s.translator = t }
}

// WithModels sets the default backend models for image and chat calls.
func WithModels(image, chat string) ServiceOption {
	return func(s *Service) { s.imageModel, s.chatModel = image, chat }
}

// WithMaxAttempts caps how many upstream credentials one request may burn
// through (default 3).
func WithMaxAttempts(n int) ServiceOption {
	return func(s *Service) { s.maxAttempts = n }
}

// WithServiceLogger sets the logger. If unset, slog.Default() is used.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.log = l }
}

// NewService creates a Service.
func NewService(gate *Gate, backend Backend, opts ...ServiceOption) *Service {
	s := &Service{
		gate:        gate,
		backend:     backend,
		health:      NewHealthTracker(),
		imageModel:  "dall-e-3",
		chatModel:   "grok-imagine",
		maxAttempts: 3,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// Generate serves one image generation request end to end: authorize the
// bearer, translate the prompt, rotate an upstream credential, call the
// backend, and record client usage on success.
func (s *Service) Generate(ctx context.Context, bearer string, req GenerateRequest) (GenerateResult, error) {
	if req.Prompt == "" {
		return GenerateResult{}, fmt.Errorf("%w: prompt is required", ErrInvalidInput)
	}

	client, err := s.gate.Authorize(ctx, bearer)
	if err != nil {
		return GenerateResult{}, err
	}

	if s.translator != nil {
		req.Prompt = s.translator.Translate(ctx, req.Prompt)
	}
	if req.Model == "" {
		req.Model = s.imageModel
	}
	if req.N <= 0 {
		req.N = 1
	}

	var result GenerateResult
	err = s.withUpstream(ctx, client, func(token string) error {
		var err error
		result, err = s.backend.GenerateImages(ctx, token, req)
		return err
	})
	if err != nil {
		return GenerateResult{}, err
	}

	if err := s.gate.RecordClientUsage(ctx, client); err != nil {
		// The image was already produced; surface the accounting problem
		// in the log rather than failing the request.
		s.log.Error("client usage not recorded", "error", err)
	}
	if result.ID == "" {
		result.ID = "gen-" + uuid.NewString()
	}
	return result, nil
}

// ChatCompletion serves one chat-style generation request; same contract as
// Generate.
func (s *Service) ChatCompletion(ctx context.Context, bearer string, req ChatRequest) (ChatResult, error) {
	if len(req.Messages) == 0 {
		return ChatResult{}, fmt.Errorf("%w: messages are required", ErrInvalidInput)
	}

	client, err := s.gate.Authorize(ctx, bearer)
	if err != nil {
		return ChatResult{}, err
	}

	if s.translator != nil {
		for i := len(req.Messages) - 1; i >= 0; i-- {
			if req.Messages[i].Role == "user" {
				req.Messages[i].Content = s.translator.Translate(ctx, req.Messages[i].Content)
				break
			}
		}
	}
	if req.Model == "" {
		req.Model = s.chatModel
	}

	var result ChatResult
	err = s.withUpstream(ctx, client, func(token string) error {
		var err error
		result, err = s.backend.ChatCompletion(ctx, token, req)
		return err
	})
	if err != nil {
		return ChatResult{}, err
	}

	if err := s.gate.RecordClientUsage(ctx, client); err != nil {
		s.log.Error("client usage not recorded", "error", err)
	}
	if result.ID == "" {
		result.ID = "chat-" + uuid.NewString()
	}
	return result, nil
}

// withUpstream rotates upstream credentials into call until one succeeds.
// Credentials in failure cooldown are filtered out before selection, so a
// sidelined credential is never charged for a request that cannot reach the
// backend. A credential that is attempted keeps its usage unit even when
// the call fails.
func (s *Service) withUpstream(ctx context.Context, client *Credential, call func(token string) error) error {
	skip := func(id string) bool { return !s.health.Available(id) }

	var lastErr error
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		tok, err := s.gate.UpstreamFor(ctx, client, skip)
		if err != nil {
			if lastErr != nil {
				return fmt.Errorf("imagefront: upstream attempts failed: %w", lastErr)
			}
			return err
		}

		if err := call(tok.ID); err != nil {
			s.health.RecordFailure(tok.ID)
			s.log.Warn("backend call failed", "credential", tok.MaskedID(), "attempt", attempt+1, "error", err)
			lastErr = err
			continue
		}

		s.health.RecordSuccess(tok.ID)
		return nil
	}
	return fmt.Errorf("imagefront: upstream attempts failed: %w", lastErr)
}
