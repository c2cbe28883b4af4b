// Package config loads and validates the application configuration from a
// JSON file with ${VAR} and ${VAR:-default} environment substitution.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for agentchat.
type Config struct {
	General  GeneralConfig  `json:"general"`
	Exchange ExchangeConfig `json:"exchange"`
	Storage  StorageConfig  `json:"storage"`
	Voice    VoiceConfig    `json:"voice"`
	Channels ChannelsConfig `json:"channels"`
	Metrics  MetricsConfig  `json:"metrics"`
}

type GeneralConfig struct {
	OwnerID      string `json:"ownerId"`
	DefaultAgent string `json:"defaultAgent"`
	LogLevel     string `json:"logLevel"`
	LogFile      string `json:"logFile,omitempty"`
}

// ExchangeConfig tunes delivery to agent endpoints.
type ExchangeConfig struct {
	AgentsFile     string `json:"agentsFile"`     // YAML registry of agent profiles
	TimeoutSeconds int    `json:"timeoutSeconds"` // per-attempt, a retry restarts the clock
	MaxAttempts    int    `json:"maxAttempts"`
	BackoffSeconds int    `json:"backoffSeconds"`
	CacheCapacity  int    `json:"cacheCapacity"`
}

type StorageConfig struct {
	DBPath        string `json:"dbPath"`
	FallbackDir   string `json:"fallbackDir"`   // local snapshots used when the DB is unavailable
	AttachmentDir string `json:"attachmentDir"` // staged copies of validated images
}

type VoiceConfig struct {
	Enabled  bool   `json:"enabled"`
	APIBase  string `json:"apiBase,omitempty"`
	APIKey   string `json:"apiKey,omitempty"`
	Model    string `json:"model,omitempty"`
	Language string `json:"language"`
}

type ChannelsConfig struct {
	CLI CLIConfig `json:"cli"`
	Web WebConfig `json:"web"`
}

type CLIConfig struct {
	Enabled bool `json:"enabled"`
}

type WebConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// DefaultConfigDir returns the default config directory (~/.agentchat).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agentchat"
	}
	return filepath.Join(home, ".agentchat")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Defaults() *Config {
	dir := DefaultConfigDir()
	return &Config{
		General: GeneralConfig{
			OwnerID:      "local",
			DefaultAgent: "assistant",
			LogLevel:     "info",
		},
		Exchange: ExchangeConfig{
			AgentsFile:     filepath.Join(dir, "agents.yaml"),
			TimeoutSeconds: 30,
			MaxAttempts:    3,
			BackoffSeconds: 1,
			CacheCapacity:  50,
		},
		Storage: StorageConfig{
			DBPath:        filepath.Join(dir, "conversations.db"),
			FallbackDir:   filepath.Join(dir, "snapshots"),
			AttachmentDir: filepath.Join(dir, "attachments"),
		},
		Voice: VoiceConfig{
			Enabled:  false,
			Model:    "whisper-large-v3",
			Language: "pt",
		},
		Channels: ChannelsConfig{
			CLI: CLIConfig{Enabled: true},
			Web: WebConfig{
				Enabled: false,
				Host:    "127.0.0.1",
				Port:    8080,
			},
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Endpoint: "/metrics",
		},
	}
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Storage.DBPath = ExpandPath(cfg.Storage.DBPath)
	cfg.Storage.FallbackDir = ExpandPath(cfg.Storage.FallbackDir)
	cfg.Storage.AttachmentDir = ExpandPath(cfg.Storage.AttachmentDir)
	cfg.Exchange.AgentsFile = ExpandPath(cfg.Exchange.AgentsFile)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.General.OwnerID == "" {
		errs = append(errs, "general.ownerId must not be empty")
	}
	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Exchange.TimeoutSeconds < 1 {
		errs = append(errs, "exchange.timeoutSeconds must be >= 1")
	}
	if cfg.Exchange.MaxAttempts < 1 || cfg.Exchange.MaxAttempts > 10 {
		errs = append(errs, "exchange.maxAttempts must be between 1 and 10")
	}
	if cfg.Exchange.BackoffSeconds < 0 {
		errs = append(errs, "exchange.backoffSeconds must be >= 0")
	}
	if cfg.Exchange.CacheCapacity < 1 {
		errs = append(errs, "exchange.cacheCapacity must be >= 1")
	}

	if cfg.Storage.DBPath == "" {
		errs = append(errs, "storage.dbPath must not be empty")
	}

	if cfg.Channels.Web.Port < 0 || cfg.Channels.Web.Port > 65535 {
		errs = append(errs, "channels.web.port must be between 0 and 65535")
	}

	if cfg.Voice.Enabled && cfg.Voice.APIKey == "" {
		errs = append(errs, "voice.apiKey is required when voice is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
