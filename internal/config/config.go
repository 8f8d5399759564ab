package config

import (
	"net"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	Gemini  GeminiConfig
	Profile ProfileConfig
	Chat    ChatConfig
	Storage StorageConfig
	Metrics MetricsConfig
	Log     LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type GeminiConfig struct {
	APIKey     string
	Model      string // overrides the variant model when set
	BaseURL    string
	Timeout    string // Go duration; empty means no deadline
	MaxRetries int
}

type ProfileConfig struct {
	Path  string
	Watch bool
}

type ChatConfig struct {
	Variant     string
	PersonaName string
	// HandlePreflight overrides the variant's OPTIONS handling when non-nil.
	HandlePreflight *bool
}

type StorageConfig struct {
	DataDir            string
	RecordInteractions bool
	Retention          string // Go duration; empty keeps interactions forever
}

type MetricsConfig struct {
	Enabled bool
}

type LogConfig struct {
	Level string
}

// APIKeyEnv is the environment variable holding the Gemini credential.
const APIKeyEnv = "GEMINI_API_KEY"

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 3000,
		},
		Profile: ProfileConfig{
			Path: "resume.json",
		},
		Chat: ChatConfig{
			Variant:     "default",
			PersonaName: "[Your Name]",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a .env file in the working directory, the
// JSON file backend, environment variables and the secrets file.
//
// The file backend lives at $XDG_CONFIG_HOME/resumechat/config.json.
// Environment variables (RESUMECHAT_*, GEMINI_API_KEY) override file values.
//
// A missing API key is not an error here: the chat handler reports it per
// request so the server can start and serve health checks without it.
func Load() (Config, error) {
	// .env is optional; variables already in the environment win.
	_ = godotenv.Load()
	return loadWith(newPlatformBackend(), secretsFile{path: secretsFilePath()})
}

// keychain abstracts secret lookup for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Gemini.APIKey == "" {
		if key, err := kc.Get("resumechat", "gemini_api_key"); err == nil && key != "" {
			cfg.Gemini.APIKey = strings.TrimSpace(key)
		}
	}

	return cfg, nil
}

// ListenAddr returns host:port for the HTTP server.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}
