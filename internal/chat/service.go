// Package chat answers visitor messages about a résumé by composing a prompt
// from the loaded profile document and asking the generation service.
package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/resumechat/internal/composer"
	"github.com/kalambet/resumechat/internal/metrics"
	"github.com/kalambet/resumechat/internal/profile"
	"github.com/kalambet/resumechat/internal/storage"
)

// Generator produces a completion for a single prompt.
type Generator interface {
	Generate(ctx context.Context, apiKey, model, prompt string) (string, error)
}

// Recorder persists finished interactions.
type Recorder interface {
	SaveInteraction(i storage.Interaction) error
}

// Deps holds the collaborators of a Service. Recorder, Metrics and Logger
// are optional.
type Deps struct {
	Profile   *profile.Store
	Generator Generator
	Composer  *composer.Composer
	Variant   Variant
	Model     string // overrides Variant.ModelID when set
	APIKey    func() string
	Recorder  Recorder
	Metrics   *metrics.Collector
	Logger    *slog.Logger
}

// Service runs the per-message chat flow.
type Service struct {
	profile   *profile.Store
	generator Generator
	composer  *composer.Composer
	variant   Variant
	model     string
	apiKey    func() string
	recorder  Recorder
	metrics   *metrics.Collector
	logger    *slog.Logger
}

// NewService creates a Service from deps.
func NewService(deps Deps) *Service {
	s := &Service{
		profile:   deps.Profile,
		generator: deps.Generator,
		composer:  deps.Composer,
		variant:   deps.Variant,
		model:     deps.Model,
		apiKey:    deps.APIKey,
		recorder:  deps.Recorder,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
	}
	if s.model == "" {
		s.model = s.variant.ModelID
	}
	if s.composer == nil {
		s.composer = composer.New("")
	}
	if s.apiKey == nil {
		s.apiKey = func() string { return "" }
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Variant returns the variant the service was built with.
func (s *Service) Variant() Variant { return s.variant }

// Model returns the model id sent upstream.
func (s *Service) Model() string { return s.model }

// ProfileLoaded reports whether a non-empty document is in memory.
func (s *Service) ProfileLoaded() bool { return !s.profile.Get().Empty() }

// ProfileState reports the profile store's lifecycle state.
func (s *Service) ProfileState() profile.State { return s.profile.State() }

// Profile returns the current document.
func (s *Service) Profile() profile.Document { return s.profile.Get() }

// Prompt returns the prompt that would be sent for message.
func (s *Service) Prompt(message string) string {
	return s.composer.Compose(s.variant.Persona, s.profile.Get(), message)
}

// Reply answers message. The returned error is ErrMissingAPIKey,
// ErrProfileNotLoaded or an *UpstreamError.
func (s *Service) Reply(ctx context.Context, message string) (string, error) {
	logger := s.logger.With("request_id", RequestID(ctx))
	logger.Info("received message", "message", message)

	apiKey := s.apiKey()
	if apiKey == "" {
		s.metrics.ChatRequest(metrics.OutcomeMissingAPIKey)
		return "", ErrMissingAPIKey
	}

	doc := s.profile.Get()
	if doc.Empty() {
		// Reload failures are logged by the store.
		doc, _ = s.profile.Reload()
		if doc.Empty() {
			s.metrics.ChatRequest(metrics.OutcomeProfileNotLoaded)
			return "", ErrProfileNotLoaded
		}
	}

	prompt := s.composer.Compose(s.variant.Persona, doc, message)

	start := time.Now()
	reply, err := s.generator.Generate(ctx, apiKey, s.model, prompt)
	elapsed := time.Since(start)
	s.metrics.ObserveUpstream(elapsed)

	s.record(ctx, logger, message, reply, err, elapsed)

	if err != nil {
		logger.Error("error communicating with gemini", "model", s.model, "error", err)
		s.metrics.ChatRequest(metrics.OutcomeUpstreamError)
		return "", &UpstreamError{Model: s.model, Err: err}
	}

	logger.Debug("reply generated",
		"model", s.model,
		"prompt_tokens_est", composer.EstimateTokens(prompt),
		"duration_ms", elapsed.Milliseconds(),
	)
	s.metrics.ChatRequest(metrics.OutcomeOK)
	return reply, nil
}

func (s *Service) record(ctx context.Context, logger *slog.Logger, message, reply string, callErr error, elapsed time.Duration) {
	if s.recorder == nil {
		return
	}

	id := RequestID(ctx)
	if id == "" {
		id = uuid.NewString()
	}
	in := storage.Interaction{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		Variant:   s.variant.Name,
		Model:     s.model,
		Message:   message,
		Reply:     reply,
		Status:    storage.StatusCompleted,
		Duration:  elapsed,
	}
	if callErr != nil {
		in.Status = storage.StatusFailed
		in.Error = callErr.Error()
	}
	if err := s.recorder.SaveInteraction(in); err != nil {
		logger.Warn("failed to record interaction", "error", err)
	}
}
