package config

import (
	"fmt"
	"math"
	"os"
	"path"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// SymlinkPolicy defines how symbolic links in the source tree are handled
type SymlinkPolicy string

const (
	// SymlinkSkip leaves links out of the archive and records them as skipped.
	SymlinkSkip SymlinkPolicy = "skip"
	// SymlinkFollow stores the link target's content under the link's
	// own path when the target is a regular file.
	SymlinkFollow SymlinkPolicy = "follow"
)

// Defaults applied when a field is not set.
const (
	DefaultChunkSize = "64MiB"
	DefaultName      = "{source}.zip"
)

// Config represents the complete zipsum configuration
type Config struct {
	Archive ArchiveConfig `yaml:"archive"`
	Output  OutputConfig  `yaml:"output"`
	Log     LogConfig     `yaml:"log"`
}

// ArchiveConfig configures archiving behavior
type ArchiveConfig struct {
	ChunkSize        string        `yaml:"chunk_size"`
	Symlinks         SymlinkPolicy `yaml:"symlinks"`
	VerifyAfterWrite bool          `yaml:"verify_after_write"`
	Exclude          []string      `yaml:"exclude"`
}

// OutputConfig configures where the archive and manifest are written.
// An empty Dir places both next to the source directory.
type OutputConfig struct {
	Dir  string `yaml:"dir"`
	Name string `yaml:"name"`
}

// LogConfig configures log output
type LogConfig struct {
	File string `yaml:"file"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Expand environment variables in string fields
	cfg.expandEnv()

	// Apply defaults
	cfg.applyDefaults()

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no config file is present
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.Output.Dir = os.ExpandEnv(c.Output.Dir)
	c.Output.Name = os.ExpandEnv(c.Output.Name)
	c.Log.File = os.ExpandEnv(c.Log.File)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Archive.ChunkSize == "" {
		c.Archive.ChunkSize = DefaultChunkSize
	}
	if c.Archive.Symlinks == "" {
		c.Archive.Symlinks = SymlinkSkip
	}
	if c.Output.Name == "" {
		c.Output.Name = DefaultName
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	// Validate chunk size
	if _, err := ParseSize(c.Archive.ChunkSize); err != nil {
		return fmt.Errorf("invalid archive.chunk_size: %w", err)
	}

	// Validate symlink policy
	switch c.Archive.Symlinks {
	case SymlinkSkip, SymlinkFollow:
		// valid
	default:
		return fmt.Errorf("invalid archive.symlinks policy: %s (must be skip or follow)", c.Archive.Symlinks)
	}

	// Validate exclude patterns
	for _, pattern := range c.Archive.Exclude {
		if _, err := path.Match(pattern, "probe"); err != nil {
			return fmt.Errorf("invalid archive.exclude pattern %q: %w", pattern, err)
		}
	}

	// Validate output
	if c.Output.Name == "" {
		return fmt.Errorf("output.name is required")
	}

	return nil
}

// ChunkBytes returns the configured chunk size as a byte count
func (c *Config) ChunkBytes() (int64, error) {
	return ParseSize(c.Archive.ChunkSize)
}

// ParseSize parses a human-readable byte size such as "512", "8KiB",
// "64MiB" or "2GiB" into a byte count. Units are binary and a bare
// number means bytes.
func ParseSize(s string) (int64, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		return 0, fmt.Errorf("empty size")
	}

	unit := int64(1)
	switch upper := strings.ToUpper(v); {
	case strings.HasSuffix(upper, "KIB"):
		unit = 1 << 10
		v = v[:len(v)-3]
	case strings.HasSuffix(upper, "MIB"):
		unit = 1 << 20
		v = v[:len(v)-3]
	case strings.HasSuffix(upper, "GIB"):
		unit = 1 << 30
		v = v[:len(v)-3]
	case strings.HasSuffix(upper, "B"):
		v = v[:len(v)-1]
	}

	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("size must be positive: %s", s)
	}
	if n > math.MaxInt64/unit {
		return 0, fmt.Errorf("size too large: %s", s)
	}

	return n * unit, nil
}
