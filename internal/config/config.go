// Package config loads the global episteme configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvHome overrides the configuration home directory.
const EnvHome = "EPISTEME_HOME"

// Backends
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config keys
const (
	KeyStateDir            = "state_dir"
	KeyBackend             = "backend"
	KeySQLitePath          = "sqlite_path"
	KeyEngagementThreshold = "gate.engagement_threshold"
	KeyActionThreshold     = "gate.action_threshold"
	KeyMaxRounds           = "gate.max_rounds"
	KeyPointerMaxAge       = "staleness.pointer_max_age"
	KeyCheckLiveness       = "staleness.check_liveness"
	KeyAcceptGitRoot       = "project.accept_git_root"
	KeyLogLevel            = "log.level"
	KeyLogJSON             = "log.json"
)

// Config is the resolved global configuration.
type Config struct {
	Home       string // directory holding config.yaml
	StateDir   string
	Backend    string
	SQLitePath string
	Gate       GateConfig
	Staleness  StalenessConfig
	// AcceptGitRoot lets a .git directory stand in for a project marker.
	AcceptGitRoot bool
	Log           LogConfig
}

// GateConfig holds the workflow thresholds.
type GateConfig struct {
	EngagementThreshold float64
	ActionThreshold     float64
	MaxRounds           int
}

// StalenessConfig controls when a pointer is flagged stale.
type StalenessConfig struct {
	PointerMaxAge time.Duration
	CheckLiveness bool
}

// LogConfig controls the logger.
type LogConfig struct {
	Level string
	JSON  bool
}

// DefaultHome returns $EPISTEME_HOME or ~/.episteme.
func DefaultHome() (string, error) {
	if h := os.Getenv(EnvHome); h != "" {
		return h, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".episteme"), nil
}

// Load reads home/config.yaml if present and applies EPISTEME_* environment
// overrides, e.g. EPISTEME_GATE_MAX_ROUNDS=5.
func Load(home string) (*Config, error) {
	v := viper.New()
	registerDefaults(v, home)

	v.SetEnvPrefix("EPISTEME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := filepath.Join(home, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{
		Home:       home,
		StateDir:   expandHome(v.GetString(KeyStateDir)),
		Backend:    strings.ToLower(v.GetString(KeyBackend)),
		SQLitePath: expandHome(v.GetString(KeySQLitePath)),
		Gate: GateConfig{
			EngagementThreshold: v.GetFloat64(KeyEngagementThreshold),
			ActionThreshold:     v.GetFloat64(KeyActionThreshold),
			MaxRounds:           v.GetInt(KeyMaxRounds),
		},
		Staleness: StalenessConfig{
			PointerMaxAge: v.GetDuration(KeyPointerMaxAge),
			CheckLiveness: v.GetBool(KeyCheckLiveness),
		},
		AcceptGitRoot: v.GetBool(KeyAcceptGitRoot),
		Log: LogConfig{
			Level: v.GetString(KeyLogLevel),
			JSON:  v.GetBool(KeyLogJSON),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func registerDefaults(v *viper.Viper, home string) {
	v.SetDefault(KeyStateDir, filepath.Join(home, "state"))
	v.SetDefault(KeyBackend, BackendFile)
	v.SetDefault(KeySQLitePath, filepath.Join(home, "episteme.db"))
	v.SetDefault(KeyEngagementThreshold, 0.60)
	v.SetDefault(KeyActionThreshold, 0.70)
	v.SetDefault(KeyMaxRounds, 3)
	v.SetDefault(KeyPointerMaxAge, "4h")
	v.SetDefault(KeyCheckLiveness, true)
	v.SetDefault(KeyAcceptGitRoot, true)
	v.SetDefault(KeyLogLevel, "warn")
	v.SetDefault(KeyLogJSON, false)
}

// Validate rejects values nothing downstream can run with.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("unknown backend %q (valid: %s, %s)", c.Backend, BackendFile, BackendSQLite)
	}
	if c.Gate.MaxRounds < 1 {
		return fmt.Errorf("%s must be at least 1 (got %d)", KeyMaxRounds, c.Gate.MaxRounds)
	}
	if c.Staleness.PointerMaxAge < 0 {
		return fmt.Errorf("%s must not be negative", KeyPointerMaxAge)
	}
	return nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
