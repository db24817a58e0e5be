// Package config handles webtexd configuration from a YAML file.
//
//	http:
//	  addr: 127.0.0.1:7480
//	mcp:
//	  stdio: false
//	db:
//	  path: /var/lib/webtex/events.db
//	  retention_days: 7
//	browser:
//	  remote: ""
//	  stealth: false
//	  resource_blocking: [fonts, media]
//	viewport:
//	  width: 1280
//	  height: 720
//	  placeholder: "#0000ff"
package config

import (
	"fmt"
	"image/color"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level webtexd configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	MCP       MCPConfig       `yaml:"mcp"`
	DB        DBConfig        `yaml:"db"`
	Browser   BrowserConfig   `yaml:"browser"`
	Viewport  ViewportConfig  `yaml:"viewport"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
}

// HTTPConfig controls the HTTP transport. An empty Addr disables it.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// MCPConfig controls the MCP transport.
type MCPConfig struct {
	Stdio bool `yaml:"stdio"`
}

// DBConfig locates the event database. An empty Path keeps events in memory.
type DBConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

// BrowserConfig controls Chrome.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	Bin              string        `yaml:"bin"`
	Stealth          bool          `yaml:"stealth"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	NavigateTimeout  time.Duration `yaml:"navigate_timeout"`
	SnapshotTimeout  time.Duration `yaml:"snapshot_timeout"`
}

// ViewportConfig sizes every surface and its placeholder.
type ViewportConfig struct {
	Width       int32  `yaml:"width"`
	Height      int32  `yaml:"height"`
	Placeholder string `yaml:"placeholder"` // #rrggbb or #rrggbbaa
}

// HeartbeatConfig controls the liveness writer. Zero interval disables it.
type HeartbeatConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = 5 * time.Second
	}
	if c.DB.RetentionDays <= 0 {
		c.DB.RetentionDays = 7
	}
	if c.Browser.NavigateTimeout <= 0 {
		c.Browser.NavigateTimeout = 30 * time.Second
	}
	if c.Browser.SnapshotTimeout <= 0 {
		c.Browser.SnapshotTimeout = 10 * time.Second
	}
	if c.Viewport.Width <= 0 {
		c.Viewport.Width = 1280
	}
	if c.Viewport.Height <= 0 {
		c.Viewport.Height = 720
	}
	if c.Viewport.Placeholder == "" {
		c.Viewport.Placeholder = "#0000ff"
	}
}

// Validate checks values that defaults cannot fix.
func (c *Config) Validate() error {
	if _, err := ParseColor(c.Viewport.Placeholder); err != nil {
		return fmt.Errorf("viewport.placeholder: %w", err)
	}
	const maxSide = 16384
	if c.Viewport.Width > maxSide || c.Viewport.Height > maxSide {
		return fmt.Errorf("viewport: %dx%d exceeds %d", c.Viewport.Width, c.Viewport.Height, maxSide)
	}
	return nil
}

// PlaceholderColor returns the parsed placeholder color.
func (c *Config) PlaceholderColor() color.RGBA {
	col, err := ParseColor(c.Viewport.Placeholder)
	if err != nil {
		return color.RGBA{B: 255, A: 255}
	}
	return col
}

// ParseColor parses #rrggbb or #rrggbbaa.
func ParseColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 && len(hex) != 8 {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	if len(hex) == 6 {
		v = v<<8 | 0xff
	}
	return color.RGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}
