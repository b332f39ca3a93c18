// Package config resolves factcheck settings from a config file, the
// environment and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/zackproser/portfolio-sub002/audit"
)

const (
	projectConfigName = "factcheck.yaml"
	homeConfigName    = "config.yaml"
	envPrefix         = "FACTCHECK"
)

// Provider kinds.
const (
	ProviderDir    = "dir"
	ProviderSQLite = "sqlite"
)

// Defaults.
const (
	DefaultManifestsDir = "content/manifests"
	DefaultSQLitePath   = ".factcheck/factcheck.db"
	DefaultConcurrency  = 8
	DefaultSchedule     = "0 * * * *"
	DefaultServiceName  = "factcheck"
)

// Config is the resolved runtime configuration.
type Config struct {
	ManifestsDir string    `mapstructure:"manifests_dir"`
	Provider     string    `mapstructure:"provider"`
	SQLitePath   string    `mapstructure:"sqlite_path"`
	Concurrency  int       `mapstructure:"concurrency"`
	FailFast     bool      `mapstructure:"fail_fast"`
	Schedule     string    `mapstructure:"schedule"`
	Telemetry    Telemetry `mapstructure:"telemetry"`

	// Source is the config file used, if any.
	Source string `mapstructure:"-"`
}

// Telemetry configures span export.
type Telemetry struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
}

// Error reports an unusable configuration.
type Error struct {
	Err error
}

func (e *Error) Error() string { return "config: " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// Discover resolves the config file location with first-match semantics:
// an explicit path, then ./factcheck.yaml, then ~/.factcheck/config.yaml.
func Discover(explicitPath string) (string, bool, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false, fmt.Errorf("resolve working directory: %w", err)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Without a home directory only the project file is considered.
		homeDir = ""
	}
	return DiscoverFrom(explicitPath, cwd, homeDir)
}

// DiscoverFrom is a testable variant of Discover.
func DiscoverFrom(explicitPath, cwd, homeDir string) (string, bool, error) {
	candidates := make([]string, 0, 2)
	explicit := strings.TrimSpace(explicitPath) != ""
	if explicit {
		candidates = append(candidates, filepath.Clean(strings.TrimSpace(explicitPath)))
	} else {
		candidates = append(candidates, filepath.Join(cwd, projectConfigName))
		if homeDir != "" {
			candidates = append(candidates, filepath.Join(homeDir, ".factcheck", homeConfigName))
		}
	}

	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, true, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			if explicit {
				return "", false, fmt.Errorf("config file %q not found", candidate)
			}
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("checking config path %q: %w", candidate, err)
		}
	}
	return "", false, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("manifests_dir", DefaultManifestsDir)
	v.SetDefault("provider", ProviderDir)
	v.SetDefault("sqlite_path", DefaultSQLitePath)
	v.SetDefault("concurrency", DefaultConcurrency)
	v.SetDefault("fail_fast", false)
	v.SetDefault("schedule", DefaultSchedule)
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", DefaultServiceName)
}

// flagKeys maps flag names to config keys. Flags left at their defaults do
// not override the file or environment.
var flagKeys = map[string]string{
	"manifests-dir": "manifests_dir",
	"provider":      "provider",
	"sqlite-path":   "sqlite_path",
	"concurrency":   "concurrency",
	"fail-fast":     "fail_fast",
	"schedule":      "schedule",
	"otlp-endpoint": "telemetry.otlp_endpoint",
}

// Load discovers and reads the config file, then applies the environment and
// any flags in fs that were set. All failures are *Error.
func Load(explicitPath string, fs *pflag.FlagSet) (Config, error) {
	path, found, err := Discover(explicitPath)
	if err != nil {
		return Config{}, &Error{Err: err}
	}
	if !found {
		path = ""
	}
	return LoadFile(path, fs)
}

// LoadFile reads path (optional) and resolves the configuration.
func LoadFile(path string, fs *pflag.FlagSet) (Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, &Error{Err: fmt.Errorf("reading %s: %w", path, err)}
		}
	}
	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, &Error{Err: fmt.Errorf("binding flag --%s: %w", name, err)}
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, &Error{Err: fmt.Errorf("decoding settings: %w", err)}
	}
	cfg.Source = path
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the settings are usable.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderDir:
		if strings.TrimSpace(c.ManifestsDir) == "" {
			return &Error{Err: errors.New("manifests_dir is required for the dir provider")}
		}
	case ProviderSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return &Error{Err: errors.New("sqlite_path is required for the sqlite provider")}
		}
	default:
		return &Error{Err: fmt.Errorf("provider must be %q or %q, got %q", ProviderDir, ProviderSQLite, c.Provider)}
	}
	if c.Concurrency <= 0 {
		return &Error{Err: fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)}
	}
	if _, err := audit.ParseSchedule(c.Schedule); err != nil {
		return &Error{Err: fmt.Errorf("schedule: %w", err)}
	}
	return nil
}

// HistoryPath is the audit history database, kept beside the SQLite
// manifest store.
func (c Config) HistoryPath() string {
	return filepath.Join(filepath.Dir(c.SQLitePath), "history.db")
}
