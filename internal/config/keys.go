package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "RESUMECHAT_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "RESUMECHAT_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "gemini.api_key", typ: kString, env: APIKeyEnv,
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Gemini.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.APIKey },
	},
	{
		key: "gemini.model", typ: kString, env: "RESUMECHAT_GEMINI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.Model },
	},
	{
		key: "gemini.base_url", typ: kString, env: "RESUMECHAT_GEMINI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.BaseURL },
	},
	{
		key: "gemini.timeout", typ: kString, env: "RESUMECHAT_GEMINI_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Gemini.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.Timeout },
	},
	{
		key: "gemini.max_retries", typ: kInt, env: "RESUMECHAT_GEMINI_MAX_RETRIES",
		apply:   func(cfg *Config, v any) { cfg.Gemini.MaxRetries = v.(int) },
		extract: func(cfg Config) any { return cfg.Gemini.MaxRetries },
	},
	{
		key: "profile.path", typ: kString, env: "RESUMECHAT_PROFILE_PATH",
		apply:   func(cfg *Config, v any) { cfg.Profile.Path = v.(string) },
		extract: func(cfg Config) any { return cfg.Profile.Path },
	},
	{
		key: "profile.watch", typ: kBool, env: "RESUMECHAT_PROFILE_WATCH",
		apply:   func(cfg *Config, v any) { cfg.Profile.Watch = v.(bool) },
		extract: func(cfg Config) any { return cfg.Profile.Watch },
	},
	{
		key: "chat.variant", typ: kString, env: "RESUMECHAT_CHAT_VARIANT",
		apply:   func(cfg *Config, v any) { cfg.Chat.Variant = v.(string) },
		extract: func(cfg Config) any { return cfg.Chat.Variant },
	},
	{
		key: "chat.persona_name", typ: kString, env: "RESUMECHAT_CHAT_PERSONA_NAME",
		apply:   func(cfg *Config, v any) { cfg.Chat.PersonaName = v.(string) },
		extract: func(cfg Config) any { return cfg.Chat.PersonaName },
	},
	{
		key: "chat.handle_preflight", typ: kBool, env: "RESUMECHAT_CHAT_HANDLE_PREFLIGHT",
		apply: func(cfg *Config, v any) {
			b := v.(bool)
			cfg.Chat.HandlePreflight = &b
		},
		extract: func(cfg Config) any {
			if cfg.Chat.HandlePreflight == nil {
				return "(variant)"
			}
			return *cfg.Chat.HandlePreflight
		},
	},
	{
		key: "storage.data_dir", typ: kString, env: "RESUMECHAT_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.record_interactions", typ: kBool, env: "RESUMECHAT_STORAGE_RECORD_INTERACTIONS",
		apply:   func(cfg *Config, v any) { cfg.Storage.RecordInteractions = v.(bool) },
		extract: func(cfg Config) any { return cfg.Storage.RecordInteractions },
	},
	{
		key: "storage.retention", typ: kString, env: "RESUMECHAT_STORAGE_RETENTION",
		apply:   func(cfg *Config, v any) { cfg.Storage.Retention = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Retention },
	},
	{
		key: "metrics.enabled", typ: kBool, env: "RESUMECHAT_METRICS_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Metrics.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Metrics.Enabled },
	},
	{
		key: "log.level", typ: kString, env: "RESUMECHAT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetBool(s.key)
			if err != nil {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s: %v. Using default value.\n", s.key, err)
				continue
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
