package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dustin/go-humanize"

	"github.com/paulschiretz/pgl-mirror/pkg/buildinfo"
	"github.com/paulschiretz/pgl-mirror/pkg/plog"
	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// ConfigFileName is the default name of the configuration file written by 'init'.
const ConfigFileName = "pgl-mirror.config.json"

// DefaultIntervalSeconds is the pause between two passes when nothing else is configured.
const DefaultIntervalSeconds = 60

type ScheduleConfig struct {
	// IntervalSeconds is the pause after a completed pass before the next one starts.
	IntervalSeconds int `json:"intervalSeconds"`
}

type SyncConfig struct {
	FailFast         bool `json:"failFast"`
	RetryCount       int  `json:"retryCount"`
	RetryWaitSeconds int  `json:"retryWaitSeconds"`
	BufferSizeKB     int  `json:"bufferSizeKB" comment:"Size of the I/O buffer in kilobytes for hashing and copying. Default is 256 (256KB)."`
	// Note: omitempty is intentionally not used for user-configurable slices
	// so that they appear in the generated config file for better discoverability.
	ExcludeFiles []string `json:"excludeFiles"`
	ExcludeDirs  []string `json:"excludeDirs"`

	// RequireMountedReplica refuses to run unless the replica is a mount point.
	RequireMountedReplica bool `json:"requireMountedReplica"`
}

// HooksConfig lists shell commands run before and after every pass.
// They are only configurable in the config file.
type HooksConfig struct {
	PrePass  []string `json:"prePass"`
	PostPass []string `json:"postPass"`
}

type RuntimeConfig struct {
	DryRun bool
	Once   bool
}

type Config struct {
	Version  string         `json:"version"`
	Source   string         `json:"source"`
	Replica  string         `json:"replica"`
	LogFile  string         `json:"logFile"`
	LogLevel string         `json:"logLevel"`
	Schedule ScheduleConfig `json:"schedule"`
	Sync     SyncConfig     `json:"sync"`
	Hooks    HooksConfig    `json:"hooks"`
	Runtime  RuntimeConfig  `json:"-"` // Never added to config file
}

// NewDefault creates and returns a Config struct with sensible default values.
// The paths are intentionally empty to force user configuration.
func NewDefault() Config {
	return Config{
		Version:  buildinfo.Version,
		LogLevel: "info",
		Schedule: ScheduleConfig{
			IntervalSeconds: DefaultIntervalSeconds,
		},
		Sync: SyncConfig{
			FailFast:         false,
			RetryCount:       2,   // Copies are retried twice before the entry is reported as failed.
			RetryWaitSeconds: 1,   // Short wait, the next pass retries anyway.
			BufferSizeKB:     256, // Keep it between 64KB-4MB
			ExcludeFiles:     []string{},
			ExcludeDirs:      []string{},
		},
		Hooks: HooksConfig{
			PrePass:  []string{},
			PostPass: []string{},
		},
	}
}

// Load reads a configuration file. An empty path or a missing file yields the defaults
// without an error. A file that exists but fails to parse is an error.
func Load(configPath string) (Config, error) {
	if configPath == "" {
		return NewDefault(), nil
	}

	file, err := os.Open(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return NewDefault(), nil
		}
		return Config{}, fmt.Errorf("error opening config file %s: %w", configPath, err)
	}
	defer file.Close()

	// Start with default values, then overwrite with the file's content.
	// This makes the config loading resilient to missing fields in the JSON file.
	config := NewDefault()
	decoder := json.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&config); err != nil {
		return Config{}, fmt.Errorf("error parsing config file %s: %w", configPath, err)
	}

	// Relative paths inside a config file are relative to the file, not the working directory.
	baseDir := filepath.Dir(configPath)
	config.Source = resolveRelative(baseDir, config.Source)
	config.Replica = resolveRelative(baseDir, config.Replica)
	config.LogFile = resolveRelative(baseDir, config.LogFile)

	config.Version = buildinfo.Version
	return config, nil
}

func resolveRelative(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) || strings.HasPrefix(p, "~") {
		return p
	}
	return filepath.Join(baseDir, p)
}

// ErrConfigExists is returned by Generate when the file exists and overwriting was not requested.
var ErrConfigExists = errors.New("config file already exists")

// Generate writes c as indented JSON to configPath.
func Generate(c Config, configPath string, force bool) error {
	if !force {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("%w: %s (use -force to overwrite)", ErrConfigExists, configPath)
		}
	}

	jsonData, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config to JSON: %w", err)
	}
	jsonData = append(jsonData, '\n')

	if err := os.WriteFile(configPath, jsonData, util.UserWritableFilePerms); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration for logical errors and canonicalizes the paths.
// Existence and accessibility of the paths is left to the preflight checks.
func (c *Config) Validate() error {
	// --- Strict Path Validation (Fail-Fast) ---
	if c.Source == "" {
		return fmt.Errorf("source path cannot be empty")
	}
	if c.Replica == "" {
		return fmt.Errorf("replica path cannot be empty")
	}
	if c.LogFile == "" {
		return fmt.Errorf("log file path cannot be empty")
	}

	var err error
	if c.Source, err = canonicalPath(c.Source); err != nil {
		return fmt.Errorf("could not resolve source path: %w", err)
	}
	if c.Replica, err = canonicalPath(c.Replica); err != nil {
		return fmt.Errorf("could not resolve replica path: %w", err)
	}
	if c.LogFile, err = canonicalPath(c.LogFile); err != nil {
		return fmt.Errorf("could not resolve log file path: %w", err)
	}

	// Mirroring a tree into itself (or the other way around) grows the replica on every pass.
	if util.IsSubPath(c.Source, c.Replica) {
		return fmt.Errorf("replica path '%s' cannot be inside the source path '%s'", c.Replica, c.Source)
	}
	if util.IsSubPath(c.Replica, c.Source) {
		return fmt.Errorf("source path '%s' cannot be inside the replica path '%s'", c.Source, c.Replica)
	}

	if c.Schedule.IntervalSeconds <= 0 {
		return fmt.Errorf("schedule.intervalSeconds must be positive, got %d", c.Schedule.IntervalSeconds)
	}
	if c.Sync.RetryCount < 0 {
		return fmt.Errorf("sync.retryCount cannot be negative")
	}
	if c.Sync.RetryWaitSeconds < 0 {
		return fmt.Errorf("sync.retryWaitSeconds cannot be negative")
	}
	if c.Sync.BufferSizeKB <= 0 {
		return fmt.Errorf("sync.bufferSizeKB must be positive")
	}
	if err := validateGlobPatterns("sync.excludeFiles", c.Sync.ExcludeFiles); err != nil {
		return err
	}
	if err := validateGlobPatterns("sync.excludeDirs", c.Sync.ExcludeDirs); err != nil {
		return err
	}
	return nil
}

func canonicalPath(p string) (string, error) {
	expanded, err := util.ExpandPath(p)
	if err != nil {
		return "", err
	}
	// Symlinks are resolved so that nesting checks and protected paths see the real layout.
	return util.ResolvePath(expanded)
}

// validateGlobPatterns checks if a list of strings are valid doublestar patterns.
func validateGlobPatterns(fieldName string, patterns []string) error {
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(filepath.ToSlash(pattern)) {
			return fmt.Errorf("invalid glob pattern for %s: %q", fieldName, pattern)
		}
	}
	return nil
}

// LogSummary logs the effective configuration at Info level.
func (c *Config) LogSummary() {
	logArgs := []any{
		"source", c.Source,
		"replica", c.Replica,
		"log_file", c.LogFile,
		"log_level", c.LogLevel,
		"interval", fmt.Sprintf("%ds", c.Schedule.IntervalSeconds),
		"dry_run", c.Runtime.DryRun,
		"once", c.Runtime.Once,
		"fail_fast", c.Sync.FailFast,
		"retry", fmt.Sprintf("%dx%ds", c.Sync.RetryCount, c.Sync.RetryWaitSeconds),
		"buffer_size", humanize.IBytes(uint64(c.Sync.BufferSizeKB)*1024),
	}
	if len(c.Sync.ExcludeFiles) > 0 {
		logArgs = append(logArgs, "exclude_files", strings.Join(c.Sync.ExcludeFiles, ", "))
	}
	if len(c.Sync.ExcludeDirs) > 0 {
		logArgs = append(logArgs, "exclude_dirs", strings.Join(c.Sync.ExcludeDirs, ", "))
	}
	if c.Sync.RequireMountedReplica {
		logArgs = append(logArgs, "require_mount", true)
	}
	if len(c.Hooks.PrePass) > 0 || len(c.Hooks.PostPass) > 0 {
		logArgs = append(logArgs, "hooks", fmt.Sprintf("%d pre-pass, %d post-pass", len(c.Hooks.PrePass), len(c.Hooks.PostPass)))
	}
	plog.Info("Configuration loaded", logArgs...)
}

// MergeConfigWithFlags overlays the explicitly set command-line flags on top of base.
func MergeConfigWithFlags(base Config, setFlags map[string]any) Config {
	merged := base

	for name, value := range setFlags {
		switch name {
		case "source":
			merged.Source = value.(string)
		case "replica":
			merged.Replica = value.(string)
		case "log":
			merged.LogFile = value.(string)
		case "log-level":
			merged.LogLevel = value.(string)
		case "interval":
			merged.Schedule.IntervalSeconds = value.(int)
		case "dry-run":
			merged.Runtime.DryRun = value.(bool)
		case "fail-fast":
			merged.Sync.FailFast = value.(bool)
		case "retry-count":
			merged.Sync.RetryCount = value.(int)
		case "retry-wait":
			merged.Sync.RetryWaitSeconds = value.(int)
		case "buffer-size-kb":
			merged.Sync.BufferSizeKB = value.(int)
		case "require-mount":
			merged.Sync.RequireMountedReplica = value.(bool)
		case "exclude-files":
			merged.Sync.ExcludeFiles = util.MergeAndDeduplicate(base.Sync.ExcludeFiles, value.([]string))
		case "exclude-dirs":
			merged.Sync.ExcludeDirs = util.MergeAndDeduplicate(base.Sync.ExcludeDirs, value.([]string))
		}
	}
	return merged
}
