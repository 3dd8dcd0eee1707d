package config

import (
	"fmt"
	"time"

	"github.com/pithecene-io/imagine/archive"
)

// Config represents an imagine.yaml configuration file.
// All values are optional and act as defaults for imagine command flags.
// CLI flags always override config values.
type Config struct {
	BaseURL string        `yaml:"base_url"`
	Theme   string        `yaml:"theme"`
	Type    string        `yaml:"type"`
	Session string        `yaml:"session,omitempty"`
	Gallery GalleryConfig `yaml:"gallery"`
	Archive ArchiveConfig `yaml:"archive"`
	Adapter AdapterConfig `yaml:"adapter"`
	Timeout Duration      `yaml:"timeout,omitempty"`
}

// GalleryConfig holds gallery paging defaults from the config file.
type GalleryConfig struct {
	PageLimit int `yaml:"page_limit"`
}

// ArchiveConfig holds event archive defaults from the config file.
type ArchiveConfig struct {
	Backend       string `yaml:"backend"`
	Path          string `yaml:"path"`
	Bucket        string `yaml:"bucket"`
	Prefix        string `yaml:"prefix"`
	Region        string `yaml:"region"`
	BufferRecords int    `yaml:"buffer_records"`
	BufferBytes   int64  `yaml:"buffer_bytes"`
}

// AdapterConfig holds notification adapter defaults from the config file.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// BufferedConfig converts archive buffer settings into an archive.BufferedConfig,
// falling back to archive defaults for unset fields.
func (c *Config) BufferedConfig() archive.BufferedConfig {
	bc := archive.DefaultBufferedConfig()
	if c.Archive.BufferRecords > 0 {
		bc.MaxBufferRecords = c.Archive.BufferRecords
	}
	if c.Archive.BufferBytes > 0 {
		bc.MaxBufferBytes = c.Archive.BufferBytes
	}
	return bc
}

// S3Config converts archive S3 settings into an archive.S3Config.
func (c *Config) S3Config() archive.S3Config {
	return archive.S3Config{
		Bucket: c.Archive.Bucket,
		Prefix: c.Archive.Prefix,
		Region: c.Archive.Region,
	}
}
