package config

import (
	"log/slog"
	"os"
	"path/filepath"
)

const (
	// ProjectConfigFile is the name of the project-level config file.
	ProjectConfigFile = "triggers.yaml"
	// EnvPrefix namespaces every environment variable override.
	EnvPrefix = "TRIGGERS_"
)

// Loader loads configuration with layered precedence: defaults, then an
// optional project config file, then environment variable overrides for
// the secrets that should never live in a checked-in file.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a Loader.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load resolves the final Config for the process: defaults, overridden by
// configPath (if non-empty and present), overridden by environment
// variables, then validated.
func (l *Loader) Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		configPath = l.findProjectConfig()
	}
	if configPath != "" {
		if fileCfg, err := LoadFromFile(configPath); err == nil {
			l.logger.Debug("loaded config file", "path", configPath)
			cfg.Merge(fileCfg)
		} else if !os.IsNotExist(err) {
			l.logger.Warn("failed to load config file", "path", configPath, "error", err)
		}
	}

	l.applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto cfg. Only the fields that a
// deployment genuinely needs to set out-of-band (secrets, endpoint
// overrides) are wired here; everything else belongs in the config file.
func (l *Loader) applyEnv(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "IDENTITY_CLIENT_ID"); v != "" {
		cfg.Identity.ClientID = v
	}
	if v := os.Getenv(EnvPrefix + "IDENTITY_CLIENT_SECRET"); v != "" {
		cfg.Identity.ClientSecret = v
	}
	if v := os.Getenv(EnvPrefix + "IDENTITY_BASE_URL"); v != "" {
		cfg.Identity.BaseURL = v
	}
	if v := os.Getenv(EnvPrefix + "STORE_NATS_URL"); v != "" {
		cfg.Store.NATSURL = v
	}
	if v := os.Getenv(EnvPrefix + "STORE_BUCKET"); v != "" {
		cfg.Store.Bucket = v
	}
	if v := os.Getenv(EnvPrefix + "QUEUE_BASE_URL"); v != "" {
		cfg.Poller.QueueBaseURL = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv(EnvPrefix + "HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv(EnvPrefix + "ENVIRONMENT"); v != "" {
		cfg.Service.Environment = v
	}
}

// findProjectConfig searches for triggers.yaml in the current and parent
// directories.
func (l *Loader) findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		candidate := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
