package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kalambet/resumechat/internal/chat"
	"github.com/kalambet/resumechat/internal/composer"
	"github.com/kalambet/resumechat/internal/config"
	"github.com/kalambet/resumechat/internal/gemini"
	"github.com/kalambet/resumechat/internal/metrics"
	"github.com/kalambet/resumechat/internal/profile"
	"github.com/kalambet/resumechat/internal/storage"
)

// app is the wired set of components shared by serve and mcp.
type app struct {
	cfg             config.Config
	variant         chat.Variant
	handlePreflight bool
	profile         *profile.Store
	metrics         *metrics.Collector // nil when disabled
	store           *storage.Store     // nil unless recording interactions
	chat            *chat.Service
}

func newApp(cfg config.Config, logger *slog.Logger) (*app, error) {
	variant, err := chat.LookupVariant(cfg.Chat.Variant)
	if err != nil {
		return nil, err
	}
	handlePreflight := variant.HandlePreflight
	if cfg.Chat.HandlePreflight != nil {
		handlePreflight = *cfg.Chat.HandlePreflight
	}

	a := &app{cfg: cfg, variant: variant, handlePreflight: handlePreflight}

	if cfg.Metrics.Enabled {
		a.metrics = metrics.NewCollector(nil)
	}

	a.profile = profile.NewStore(cfg.Profile.Path,
		profile.WithLogger(logger),
		profile.WithLoadHook(a.metrics.ProfileLoad),
	)
	// A failed startup load is logged and retried lazily per request.
	_ = a.profile.Load()

	var opts []gemini.Option
	if cfg.Gemini.BaseURL != "" {
		opts = append(opts, gemini.WithBaseURL(cfg.Gemini.BaseURL))
	}
	if cfg.Gemini.Timeout != "" {
		d, err := time.ParseDuration(cfg.Gemini.Timeout)
		if err != nil {
			logger.Warn("invalid gemini timeout, calls will not time out", "value", cfg.Gemini.Timeout, "error", err)
		} else {
			opts = append(opts, gemini.WithTimeout(d))
		}
	}
	if cfg.Gemini.MaxRetries > 0 {
		opts = append(opts, gemini.WithMaxRetries(cfg.Gemini.MaxRetries))
	}

	deps := chat.Deps{
		Profile:   a.profile,
		Generator: gemini.NewClient(opts...),
		Composer:  composer.New(cfg.Chat.PersonaName),
		Variant:   variant,
		Model:     cfg.Gemini.Model,
		APIKey:    apiKeyFunc(cfg),
		Metrics:   a.metrics,
		Logger:    logger,
	}

	if cfg.Storage.RecordInteractions {
		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return nil, fmt.Errorf("opening storage: %w", err)
		}
		a.store = store
		deps.Recorder = store
	}

	a.chat = chat.NewService(deps)
	return a, nil
}

func (a *app) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// apiKeyFunc reads GEMINI_API_KEY on every call and falls back to the
// loaded config.
func apiKeyFunc(cfg config.Config) func() string {
	return func() string {
		if v := strings.TrimSpace(os.Getenv(config.APIKeyEnv)); v != "" {
			return v
		}
		return cfg.Gemini.APIKey
	}
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger(level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(level)}))
}
