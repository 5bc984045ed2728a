// Package config loads layered backy2 configuration: built-in defaults,
// a global user config, a project config, and CLI overrides, in that
// order of precedence.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// DataBackend names the Data Backend shape a Config selects.
const (
	DataBackendFS  = "fs"
	DataBackendSeg = "seg"
)

const (
	// DefaultBlockSize is the block size used when Config.BlockSize is
	// unset (spec.md §6 Defaults).
	DefaultBlockSize = 4 << 20
	// DefaultLargeFileSize bounds one segment container file when the
	// seg Data Backend is selected.
	DefaultLargeFileSize = 1 << 30
	// DefaultCleanupGraceSeconds is cleanup_fast's default grace window.
	DefaultCleanupGraceSeconds = 3600
	// DefaultHintSanitySampleSize equals the engine's fixed sample size for
	// backup's incremental sanity check; the engine does not read it.
	DefaultHintSanitySampleSize = 10
)

// ConfigFileName is the default project config file name.
const ConfigFileName = ".backy2.json"

// Config holds all configuration options.
type Config struct {
	// From config files (serialized)
	MetaPath            string `json:"meta_path"`
	DataDir             string `json:"data_dir"`
	DataBackend         string `json:"data_backend,omitempty"`
	BlockSize           int64  `json:"block_size,omitempty"`
	LargeFileSize       int64  `json:"large_file_size,omitempty"`
	CleanupGraceSeconds int64  `json:"cleanup_grace_seconds,omitempty"`
	ProcessName         string `json:"process_name,omitempty"`
	LogPath             string `json:"log_path,omitempty"`

	// Resolved paths (computed, not serialized)
	EffectiveCwd string `json:"-"`
	MetaPathAbs  string `json:"-"`
	DataDirAbs   string `json:"-"`
	LogPathAbs   string `json:"-"`

	// Sources tracks which config files were loaded (for diagnostics).
	Sources ConfigSources `json:"-"`
}

// ConfigSources tracks which config files were loaded.
type ConfigSources struct {
	Global  string
	Project string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MetaPath:            filepath.Join(".backy2", "meta.db"),
		DataDir:             filepath.Join(".backy2", "data"),
		DataBackend:         DataBackendFS,
		BlockSize:           DefaultBlockSize,
		LargeFileSize:       DefaultLargeFileSize,
		CleanupGraceSeconds: DefaultCleanupGraceSeconds,
		ProcessName:         "backy2",
	}
}

// getGlobalConfigPath returns the path to the global config file. Uses
// $XDG_CONFIG_HOME/backy2/config.json if set, otherwise
// ~/.config/backy2/config.json. Returns "" if neither is resolvable.
func getGlobalConfigPath(env map[string]string) string {
	if xdgConfig := env["XDG_CONFIG_HOME"]; xdgConfig != "" {
		return filepath.Join(xdgConfig, "backy2", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "backy2", "config.json")
	}

	return ""
}

// LoadConfigInput holds the inputs for LoadConfig.
type LoadConfigInput struct {
	WorkDirOverride     string // -C/--cwd flag value; "" means os.Getwd()
	ConfigPath          string // -c/--config flag value
	MetaPathOverride    string
	DataDirOverride     string
	BlockSizeOverride   int64
	ProcessNameOverride string
	LogPathOverride     string
	Env                 map[string]string
}

// LoadConfig loads configuration with the following precedence (highest
// wins): defaults, global user config, project config (or an explicit
// --config file), then CLI overrides. All path fields in the returned
// Config are resolved to absolute paths.
func LoadConfig(input LoadConfigInput) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cfg := DefaultConfig()

	globalCfg, globalPath, err := loadGlobalConfig(input.Env)
	if err != nil {
		return Config{}, err
	}

	cfg.Sources.Global = globalPath
	cfg = mergeConfig(cfg, globalCfg)

	projectCfg, projectPath, err := loadProjectConfig(workDir, input.ConfigPath)
	if err != nil {
		return Config{}, err
	}

	cfg.Sources.Project = projectPath
	cfg = mergeConfig(cfg, projectCfg)

	if input.MetaPathOverride != "" {
		cfg.MetaPath = input.MetaPathOverride
	}

	if input.DataDirOverride != "" {
		cfg.DataDir = input.DataDirOverride
	}

	if input.BlockSizeOverride != 0 {
		cfg.BlockSize = input.BlockSizeOverride
	}

	if input.ProcessNameOverride != "" {
		cfg.ProcessName = input.ProcessNameOverride
	}

	if input.LogPathOverride != "" {
		cfg.LogPath = input.LogPathOverride
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	cfg.EffectiveCwd = workDir
	cfg.MetaPathAbs = resolve(workDir, cfg.MetaPath)
	cfg.DataDirAbs = resolve(workDir, cfg.DataDir)

	if cfg.LogPath != "" {
		cfg.LogPathAbs = resolve(workDir, cfg.LogPath)
	}

	return cfg, nil
}

func resolve(workDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(workDir, path)
}

func loadGlobalConfig(env map[string]string) (Config, string, error) {
	path := getGlobalConfigPath(env)
	if path == "" {
		return Config{}, "", nil
	}

	cfg, loaded, err := loadConfigFile(path, false)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		return Config{}, "", nil
	}

	return cfg, path, nil
}

func loadProjectConfig(workDir, configPath string) (Config, string, error) {
	var (
		cfgFile   string
		mustExist bool
	)

	if configPath != "" {
		cfgFile = configPath
		if !filepath.IsAbs(cfgFile) {
			cfgFile = filepath.Join(workDir, cfgFile)
		}

		mustExist = true

		if _, statErr := os.Stat(cfgFile); statErr != nil {
			return Config{}, "", fmt.Errorf("%w: %s", ErrConfigFileNotFound, configPath)
		}
	} else {
		cfgFile = filepath.Join(workDir, ConfigFileName)
		mustExist = false
	}

	cfg, loaded, err := loadConfigFile(cfgFile, mustExist)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		return Config{}, "", nil
	}

	return cfg, cfgFile, nil
}

func loadConfigFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Config{}, false, nil
		}

		if mustExist {
			return Config{}, false, fmt.Errorf("%w: %s", ErrConfigFileRead, path)
		}

		return Config{}, false, nil
	}

	cfg, parseErr := parseConfig(data)
	if parseErr != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, parseErr)
	}

	return cfg, true, nil
}

// parseConfig standardizes HuJSON (JSON-with-comments-and-trailing-commas)
// to plain JSON before unmarshaling, matching the Data Backend's own
// config-free stance: the only parsing ambiguity tolerated is formatting.
func parseConfig(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}

	return cfg, nil
}

func mergeConfig(base, overlay Config) Config {
	if overlay.MetaPath != "" {
		base.MetaPath = overlay.MetaPath
	}

	if overlay.DataDir != "" {
		base.DataDir = overlay.DataDir
	}

	if overlay.DataBackend != "" {
		base.DataBackend = overlay.DataBackend
	}

	if overlay.BlockSize != 0 {
		base.BlockSize = overlay.BlockSize
	}

	if overlay.LargeFileSize != 0 {
		base.LargeFileSize = overlay.LargeFileSize
	}

	if overlay.CleanupGraceSeconds != 0 {
		base.CleanupGraceSeconds = overlay.CleanupGraceSeconds
	}

	if overlay.ProcessName != "" {
		base.ProcessName = overlay.ProcessName
	}

	if overlay.LogPath != "" {
		base.LogPath = overlay.LogPath
	}

	return base
}

func validateConfig(cfg Config) error {
	if cfg.MetaPath == "" {
		return ErrMetaPathEmpty
	}

	if cfg.DataDir == "" {
		return ErrDataDirEmpty
	}

	switch cfg.DataBackend {
	case DataBackendFS, DataBackendSeg:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDataBackend, cfg.DataBackend)
	}

	return nil
}
