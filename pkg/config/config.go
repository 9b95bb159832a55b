package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/snapvault/snapvault/pkg/archive"
	"github.com/snapvault/snapvault/pkg/buildinfo"
	"github.com/snapvault/snapvault/pkg/pattern"
	"github.com/snapvault/snapvault/pkg/plog"
	"github.com/snapvault/snapvault/pkg/restore"
	"github.com/snapvault/snapvault/pkg/util"
)

// ConfigFileName is the name of the configuration file.
const ConfigFileName = "snapvault.config.json"

type DiscoveryConfig struct {
	// BaseDirs are the directories walked during file selection. Empty
	// means the root path alone.
	BaseDirs      []string `json:"baseDirs"`
	IncludeHidden bool     `json:"includeHidden"`
	// MaxFiles caps a discovery run. 0 disables the cap.
	MaxFiles int `json:"maxFiles"`
}

type ArchiveConfig struct {
	Format       string `json:"format"`
	Level        string `json:"level"`
	BufferSizeKB int    `json:"bufferSizeKB"`
}

type PreviewConfig struct {
	// MaxDepth is the directory depth at which grouped previews fold
	// deeper paths into one group.
	MaxDepth int `json:"maxDepth"`
}

type ProgressConfig struct {
	// BufferSize is the event channel capacity between the backup worker
	// and its consumer.
	BufferSize int `json:"bufferSize"`
}

type RestoreConfig struct {
	Policy string `json:"policy"`
}

type Config struct {
	Version string `json:"version"`
	// RootPath is the installation root recorded in archive metadata and
	// substituted during restore path translation.
	RootPath string `json:"rootPath"`
	// DestDir is where finished archives are written.
	DestDir  string `json:"destDir"`
	LogLevel string `json:"logLevel"`
	// DefaultPatterns is pattern text, one rule per line, used when the
	// caller supplies none. Lines may reference {root} which is replaced
	// with RootPath.
	DefaultPatterns []string       `json:"defaultPatterns"`
	Discovery       DiscoveryConfig `json:"discovery"`
	Archive         ArchiveConfig   `json:"archive"`
	Preview         PreviewConfig   `json:"preview"`
	Progress        ProgressConfig  `json:"progress"`
	Restore         RestoreConfig   `json:"restore"`
}

// NewDefault creates and returns a Config struct with sensible default
// values. RootPath is intentionally empty to force user configuration.
func NewDefault() Config {
	return Config{
		Version:  buildinfo.Version,
		RootPath: "",
		DestDir:  "",
		LogLevel: "info",
		DefaultPatterns: []string{
			"# Data and configuration",
			"{root}/data/**",
			"{root}/config/**",
			"{root}/.env",
			"# Skip caches",
			"!{root}/data/cache/**",
		},
		Discovery: DiscoveryConfig{
			BaseDirs:      []string{},
			IncludeHidden: false,
			MaxFiles:      10000,
		},
		Archive: ArchiveConfig{
			Format:       "zip",
			Level:        "default",
			BufferSizeKB: 256, // Keep it between 64KB-4MB
		},
		Preview: PreviewConfig{
			MaxDepth: 3,
		},
		Progress: ProgressConfig{
			BufferSize: 64,
		},
		Restore: RestoreConfig{
			Policy: "overwrite",
		},
	}
}

// Load attempts to load a configuration from "snapvault.config.json" in the
// given directory. If the file doesn't exist, it returns the default config
// without an error. If the file exists but fails to parse, it returns an
// error and a zero-value config.
func Load(dir string) (Config, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return Config{}, fmt.Errorf("could not determine absolute path for load directory %s: %w", dir, err)
	}

	configPath := filepath.Join(absDir, ConfigFileName)

	file, err := os.Open(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return NewDefault(), nil
		}
		return Config{}, fmt.Errorf("error opening config file %s: %w", configPath, err)
	}
	defer file.Close()

	plog.Info("Loading configuration", "path", configPath)
	// Start with default values, then overwrite with the file's content.
	// This makes the config loading resilient to missing fields in the JSON file.
	config := NewDefault()
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&config); err != nil {
		return Config{}, fmt.Errorf("error parsing config file %s: %w", configPath, err)
	}

	if config.Version != buildinfo.Version {
		config.Version = buildinfo.Version
	}
	return config, nil
}

// Generate creates or overwrites a default snapvault.config.json file in
// the specified directory.
func Generate(dir string, configToGenerate Config) error {
	configPath := filepath.Join(dir, ConfigFileName)
	jsonData, err := json.MarshalIndent(configToGenerate, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal default config to JSON: %w", err)
	}

	if err := os.WriteFile(configPath, jsonData, util.UserWritableFilePerms); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	plog.Info("Configuration file written", "path", configPath)
	return nil
}

// Validate checks the configuration for consistency and normalizes its
// paths. It must be called before the config is handed to the service.
func (c *Config) Validate() error {
	if c.RootPath == "" {
		return fmt.Errorf("rootPath cannot be empty")
	}

	var err error
	c.RootPath, err = util.ExpandPath(c.RootPath)
	if err != nil {
		return fmt.Errorf("could not expand root path: %w", err)
	}
	c.RootPath = filepath.Clean(c.RootPath)

	if c.DestDir != "" {
		c.DestDir, err = util.ExpandPath(c.DestDir)
		if err != nil {
			return fmt.Errorf("could not expand destination directory: %w", err)
		}
		c.DestDir = filepath.Clean(c.DestDir)
	}

	for i, dir := range c.Discovery.BaseDirs {
		expanded, err := util.ExpandPath(dir)
		if err != nil {
			return fmt.Errorf("could not expand base directory %s: %w", dir, err)
		}
		c.Discovery.BaseDirs[i] = filepath.Clean(expanded)
	}

	if c.Discovery.MaxFiles < 0 {
		return fmt.Errorf("discovery.maxFiles cannot be negative")
	}
	if c.Archive.BufferSizeKB < 0 {
		return fmt.Errorf("archive.bufferSizeKB cannot be negative")
	}
	if c.Preview.MaxDepth < 1 {
		return fmt.Errorf("preview.maxDepth must be at least 1")
	}
	if c.Progress.BufferSize < 0 {
		return fmt.Errorf("progress.bufferSize cannot be negative")
	}

	if _, err := archive.ParseFormat(c.Archive.Format); err != nil {
		return err
	}
	if _, err := archive.ParseLevel(c.Archive.Level); err != nil {
		return err
	}
	if _, err := restore.ParseConflictPolicy(c.Restore.Policy); err != nil {
		return err
	}

	// Reject malformed default patterns now rather than on first use.
	if _, err := pattern.Compile(c.ResolvedDefaultPatterns()); err != nil {
		return err
	}
	return nil
}

// BaseDirectories returns the discovery roots, falling back to the root
// path when none are configured.
func (c *Config) BaseDirectories() []string {
	if len(c.Discovery.BaseDirs) > 0 {
		return c.Discovery.BaseDirs
	}
	return []string{c.RootPath}
}

// ResolvedDefaultPatterns returns the default pattern lines with the
// {root} placeholder replaced by the configured root path.
func (c *Config) ResolvedDefaultPatterns() []string {
	root := util.TrimRoot(c.RootPath)
	resolved := make([]string, 0, len(c.DefaultPatterns))
	for _, line := range c.DefaultPatterns {
		resolved = append(resolved, strings.ReplaceAll(line, "{root}", root))
	}
	return resolved
}

// LogSummary logs the effective configuration at startup.
func (c *Config) LogSummary() {
	plog.Info("Configuration",
		"root", c.RootPath,
		"dest", c.DestDir,
		"log_level", c.LogLevel,
		"base_dirs", strings.Join(c.BaseDirectories(), ","),
		"include_hidden", c.Discovery.IncludeHidden,
		"max_files", c.Discovery.MaxFiles,
		"format", c.Archive.Format,
		"level", c.Archive.Level,
		"buffer_size_kb", c.Archive.BufferSizeKB,
		"preview_depth", c.Preview.MaxDepth,
		"restore_policy", c.Restore.Policy,
	)
}
