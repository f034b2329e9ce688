// Package config holds the echoward runtime configuration.
//
// Precedence, lowest to highest: built-in defaults, the optional JSON
// config file under the data directory, then ECHOWARD_* environment
// variables (a .env file in the working directory is loaded first, so
// deployments can keep overrides next to the binary).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/aviarylabs/echoward/internal/echo"
	"github.com/joho/godotenv"
)

// ConfigFile is the filename of the JSON config under the data dir.
const ConfigFile = "config.json"

// Config is the full runtime configuration.
type Config struct {
	// DataDir is where the SQLite store and config file live.
	DataDir string `json:"data_dir"`
	// MessageLogDir is where the message-stream JSONL logs are read from.
	// A missing directory is a first-class "source unavailable" outcome.
	MessageLogDir string `json:"message_log_dir"`
	// EscalationURL, when set, receives critical echo reports as JSON
	// POSTs. Empty means escalations are only logged.
	EscalationURL string `json:"escalation_url,omitempty"`
	// Monitor holds the detection and intervention knobs.
	Monitor echo.Config `json:"monitor"`
}

// fileConfig mirrors Config for JSON with the monitor knobs flattened to
// the millisecond-based names the surrounding ecosystem uses.
type fileConfig struct {
	DataDir             string   `json:"data_dir,omitempty"`
	MessageLogDir       string   `json:"message_log_dir,omitempty"`
	EscalationURL       string   `json:"escalation_url,omitempty"`
	CheckIntervalMs     *int     `json:"check_interval_ms,omitempty"`
	MinRepetitions      *int     `json:"min_repetitions,omitempty"`
	SimilarityThreshold *float64 `json:"similarity_threshold,omitempty"`
	TimeWindowMs        *int     `json:"time_window_ms,omitempty"`
	MaxEchoDepth        *int     `json:"max_echo_depth,omitempty"`
	SilenceDurationMs   *int     `json:"silence_duration_ms,omitempty"`
	CooloffDurationMs   *int     `json:"cooloff_duration_ms,omitempty"`
	MaxAuditEntries     *int     `json:"max_audit_entries,omitempty"`
	MaxCycleWalkDepth   *int     `json:"max_cycle_walk_depth,omitempty"`
	MaxTrackedProducers *int     `json:"max_tracked_producers,omitempty"`
}

// MaxAuditEntries is carried outside echo.Config because the cap is
// enforced by the store, not the monitor.
type Limits struct {
	MaxAuditEntries int `json:"max_audit_entries"`
}

// Default returns the built-in defaults. The data dir lives under the
// user's home directory.
func Default() Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".echoward")
	return Config{
		DataDir:       dataDir,
		MessageLogDir: filepath.Join(dataDir, "logs"),
		Monitor:       echo.DefaultConfig(),
	}
}

// DefaultLimits returns the default store limits.
func DefaultLimits() Limits {
	return Limits{MaxAuditEntries: 1000}
}

// Load builds the effective configuration: defaults, then the JSON file
// under dataDir (if dataDir is empty the default location is used), then
// environment overrides. A missing config file is not an error.
func Load(dataDir string) (Config, Limits, error) {
	_ = godotenv.Load() // best-effort; absence of .env is normal

	cfg := Default()
	limits := DefaultLimits()
	if dataDir != "" {
		cfg.DataDir = dataDir
		cfg.MessageLogDir = filepath.Join(dataDir, "logs")
	}
	if v := os.Getenv("ECHOWARD_DATA_DIR"); v != "" {
		cfg.DataDir = v
		cfg.MessageLogDir = filepath.Join(v, "logs")
	}

	path := filepath.Join(cfg.DataDir, ConfigFile)
	if data, err := os.ReadFile(path); err == nil {
		var fc fileConfig
		if err := json.Unmarshal(data, &fc); err != nil {
			return cfg, limits, fmt.Errorf("config: parse %s: %w", path, err)
		}
		applyFile(&cfg, &limits, fc)
	} else if !os.IsNotExist(err) {
		return cfg, limits, fmt.Errorf("config: read %s: %w", path, err)
	}

	applyEnv(&cfg, &limits)

	if err := validate(cfg, limits); err != nil {
		return cfg, limits, err
	}
	return cfg, limits, nil
}

func applyFile(cfg *Config, limits *Limits, fc fileConfig) {
	if fc.DataDir != "" {
		cfg.DataDir = fc.DataDir
	}
	if fc.MessageLogDir != "" {
		cfg.MessageLogDir = fc.MessageLogDir
	}
	if fc.EscalationURL != "" {
		cfg.EscalationURL = fc.EscalationURL
	}
	if fc.CheckIntervalMs != nil {
		cfg.Monitor.CheckInterval = time.Duration(*fc.CheckIntervalMs) * time.Millisecond
	}
	if fc.MinRepetitions != nil {
		cfg.Monitor.MinRepetitions = *fc.MinRepetitions
	}
	if fc.SimilarityThreshold != nil {
		cfg.Monitor.SimilarityThreshold = *fc.SimilarityThreshold
	}
	if fc.TimeWindowMs != nil {
		cfg.Monitor.TimeWindow = time.Duration(*fc.TimeWindowMs) * time.Millisecond
	}
	if fc.MaxEchoDepth != nil {
		cfg.Monitor.MaxEchoDepth = *fc.MaxEchoDepth
	}
	if fc.SilenceDurationMs != nil {
		cfg.Monitor.SilenceDuration = time.Duration(*fc.SilenceDurationMs) * time.Millisecond
	}
	if fc.CooloffDurationMs != nil {
		cfg.Monitor.CooloffDuration = time.Duration(*fc.CooloffDurationMs) * time.Millisecond
	}
	if fc.MaxAuditEntries != nil {
		limits.MaxAuditEntries = *fc.MaxAuditEntries
	}
	if fc.MaxCycleWalkDepth != nil {
		cfg.Monitor.MaxCycleWalkDepth = *fc.MaxCycleWalkDepth
	}
	if fc.MaxTrackedProducers != nil {
		cfg.Monitor.MaxTrackedProducers = *fc.MaxTrackedProducers
	}
}

func applyEnv(cfg *Config, limits *Limits) {
	if v := os.Getenv("ECHOWARD_MESSAGE_LOG_DIR"); v != "" {
		cfg.MessageLogDir = v
	}
	if v := os.Getenv("ECHOWARD_ESCALATION_URL"); v != "" {
		cfg.EscalationURL = v
	}
	if ms, ok := envInt("ECHOWARD_CHECK_INTERVAL_MS"); ok {
		cfg.Monitor.CheckInterval = time.Duration(ms) * time.Millisecond
	}
	if n, ok := envInt("ECHOWARD_MIN_REPETITIONS"); ok {
		cfg.Monitor.MinRepetitions = n
	}
	if f, ok := envFloat("ECHOWARD_SIMILARITY_THRESHOLD"); ok {
		cfg.Monitor.SimilarityThreshold = f
	}
	if ms, ok := envInt("ECHOWARD_TIME_WINDOW_MS"); ok {
		cfg.Monitor.TimeWindow = time.Duration(ms) * time.Millisecond
	}
	if n, ok := envInt("ECHOWARD_MAX_ECHO_DEPTH"); ok {
		cfg.Monitor.MaxEchoDepth = n
	}
	if ms, ok := envInt("ECHOWARD_SILENCE_DURATION_MS"); ok {
		cfg.Monitor.SilenceDuration = time.Duration(ms) * time.Millisecond
	}
	if ms, ok := envInt("ECHOWARD_COOLOFF_DURATION_MS"); ok {
		cfg.Monitor.CooloffDuration = time.Duration(ms) * time.Millisecond
	}
	if n, ok := envInt("ECHOWARD_MAX_AUDIT_ENTRIES"); ok {
		limits.MaxAuditEntries = n
	}
	if n, ok := envInt("ECHOWARD_MAX_CYCLE_WALK_DEPTH"); ok {
		cfg.Monitor.MaxCycleWalkDepth = n
	}
	if n, ok := envInt("ECHOWARD_MAX_TRACKED_PRODUCERS"); ok {
		cfg.Monitor.MaxTrackedProducers = n
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func validate(cfg Config, limits Limits) error {
	if cfg.Monitor.CheckInterval <= 0 {
		return fmt.Errorf("config: check interval must be positive")
	}
	if cfg.Monitor.MinRepetitions < 1 {
		return fmt.Errorf("config: min repetitions must be at least 1")
	}
	if cfg.Monitor.SimilarityThreshold < 0 || cfg.Monitor.SimilarityThreshold > 1 {
		return fmt.Errorf("config: similarity threshold must be within [0,1]")
	}
	if cfg.Monitor.TimeWindow <= 0 {
		return fmt.Errorf("config: time window must be positive")
	}
	if cfg.Monitor.MaxCycleWalkDepth < 1 {
		return fmt.Errorf("config: max cycle walk depth must be at least 1")
	}
	if limits.MaxAuditEntries < 1 {
		return fmt.Errorf("config: max audit entries must be at least 1")
	}
	return nil
}
