package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ostorc/msbuild/types"
)

// DefaultFileName is looked up in the working directory when no --config
// flag is given.
const DefaultFileName = "msbuild-rar.yaml"

// Config represents an msbuild-rar.yaml configuration file.
// All values are optional and act as defaults for command flags.
// Flags always override config values.
type Config struct {
	Node    NodeConfig    `yaml:"node"`
	Archive ArchiveConfig `yaml:"archive"`
	Adapter AdapterConfig `yaml:"adapter"`
}

// NodeConfig holds worker launch defaults.
type NodeConfig struct {
	Executable       string   `yaml:"executable"`
	Reuse            *bool    `yaml:"reuse,omitempty"`
	LowPriority      bool     `yaml:"low_priority"`
	HandshakeTimeout Duration `yaml:"handshake_timeout"`
	IdleTimeout      Duration `yaml:"idle_timeout"`
	DiscoveryDir     string   `yaml:"discovery_dir"`
}

// ArchiveConfig holds result archive defaults.
type ArchiveConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// AdapterConfig holds notification adapter defaults.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "15m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if parsed < 0 {
		return fmt.Errorf("invalid duration %q: must not be negative", s)
	}
	d.Duration = parsed
	return nil
}

// BuildParameters returns the launch settings the node section describes.
// Reuse defaults to true when unset.
func (c *Config) BuildParameters() types.BuildParameters {
	reuse := true
	if c.Node.Reuse != nil {
		reuse = *c.Node.Reuse
	}
	return types.BuildParameters{
		EnableNodeReuse: reuse,
		LowPriority:     c.Node.LowPriority,
		NodeExeLocation: c.Node.Executable,
	}
}

// Validate rejects values no command can act on.
func (c *Config) Validate() error {
	switch c.Archive.Backend {
	case "", "fs", "s3":
	default:
		return fmt.Errorf("archive.backend: unknown backend %q (want fs or s3)", c.Archive.Backend)
	}
	if c.Archive.Backend != "" && c.Archive.Path == "" {
		return fmt.Errorf("archive.path is required when archive.backend is %q", c.Archive.Backend)
	}

	switch c.Adapter.Type {
	case "", "webhook", "redis":
	default:
		return fmt.Errorf("adapter.type: unknown adapter %q (want webhook or redis)", c.Adapter.Type)
	}
	if c.Adapter.Type != "" && c.Adapter.URL == "" {
		return fmt.Errorf("adapter.url is required when adapter.type is %q", c.Adapter.Type)
	}
	if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
		return fmt.Errorf("adapter.retries must be >= 0, got %d", *c.Adapter.Retries)
	}
	return nil
}
