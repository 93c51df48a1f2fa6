// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for
// relay-tui.
//
// Configuration is TOML with sensible defaults, environment variable
// overrides, and validation.
//
// Configuration file location:
//   - ~/.relay/config.toml
//   - Built-in defaults
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete relay-tui configuration.
type Config struct {
	Version string `toml:"version"`

	// Servers lists the servers to connect to at startup.
	Servers []ServerConfig `toml:"servers"`

	// Stream configures the streaming connection.
	Stream StreamConfig `toml:"stream"`

	// Render configures the scrollback renderer.
	Render RenderConfig `toml:"render"`
}

// ServerConfig describes one server account.
type ServerConfig struct {
	// Name is the label shown in the server list.
	Name string `toml:"name"`
	// URL is the server base URL (scheme://host[:port]).
	URL string `toml:"url"`
	// LoginID is the username or email to log in with.
	LoginID string `toml:"login_id"`
	// Password is the account password. Leave empty to use a token.
	Password string `toml:"password"`
	// Token is a pre-provisioned session token, used instead of
	// login_id/password when set.
	Token string `toml:"token"`
}

// StreamConfig contains streaming connection tuning.
type StreamConfig struct {
	// HeartbeatSecs is the ping interval in seconds. A ping unanswered by
	// the next interval marks the connection lost.
	HeartbeatSecs int `toml:"heartbeat_secs"`
	// ReconnectSecs is the fixed retry interval after a lost connection.
	ReconnectSecs int `toml:"reconnect_secs"`
}

// RenderConfig contains scrollback presentation settings.
type RenderConfig struct {
	// Width is the wrap width in display columns.
	Width int `toml:"width"`
	// Tombstone is the marker left where a deleted post was.
	Tombstone string `toml:"tombstone"`
	// Truncation is the suffix marking collapsed overflow on edits.
	Truncation string `toml:"truncation"`
	// Edited is the suffix appended to edited posts.
	Edited string `toml:"edited"`
	// Color enables author-name coloring.
	Color bool `toml:"color"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",
		Stream: StreamConfig{
			HeartbeatSecs: 15,
			ReconnectSecs: 5,
		},
		Render: RenderConfig{
			Width:      100,
			Tombstone:  "(message deleted)",
			Truncation: " [...]",
			Edited:     " (edited)",
			Color:      true,
		},
	}
}

// HeartbeatInterval returns the heartbeat setting as a duration.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Stream.HeartbeatSecs) * time.Second
}

// ReconnectInterval returns the reconnect setting as a duration.
func (c *Config) ReconnectInterval() time.Duration {
	return time.Duration(c.Stream.ReconnectSecs) * time.Second
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the relay-tui configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".relay"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ensureSecurePermissions checks and fixes permissions on config files.
// SECURITY: Config files should be 0600 (owner read/write only); they carry
// passwords and session tokens.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file, falling back to defaults
// when no file exists. Environment overrides are applied last.
func Load() (*Config, error) {
	cfg := Default()

	path, err := ConfigPath()
	if err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path with full
// validation.
func LoadFromPath(path string) (*Config, error) {
	// SECURITY: Check and fix file permissions if needed
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode TOML file: %w", err)
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save saves the configuration to the default TOML file.
// SECURITY: Creates config files with 0600 permissions (owner read/write only).
func Save(cfg *Config) error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	path, err := ConfigPath()
	if err != nil {
		return err
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}

	fmt.Fprintln(file, "# relay-tui configuration file")
	fmt.Fprintln(file, "# Generated by relay-tui - edit with care")
	fmt.Fprintln(file, "")

	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION AND DEFAULTS
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	for i, s := range c.Servers {
		field := fmt.Sprintf("servers[%d]", i)
		if s.URL == "" {
			errs = append(errs, ValidationError{Field: field + ".url", Message: "required"})
			continue
		}
		u, err := url.Parse(s.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".url",
				Message: fmt.Sprintf("invalid URL '%s', must be http(s)://host[:port]", s.URL),
			})
		}
		if s.Token == "" && (s.LoginID == "" || s.Password == "") {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "either token or login_id and password must be set",
			})
		}
	}

	if c.Stream.HeartbeatSecs < 1 || c.Stream.HeartbeatSecs > 300 {
		errs = append(errs, ValidationError{
			Field:   "stream.heartbeat_secs",
			Message: fmt.Sprintf("must be 1-300, got %d", c.Stream.HeartbeatSecs),
		})
	}
	if c.Stream.ReconnectSecs < 1 || c.Stream.ReconnectSecs > 300 {
		errs = append(errs, ValidationError{
			Field:   "stream.reconnect_secs",
			Message: fmt.Sprintf("must be 1-300, got %d", c.Stream.ReconnectSecs),
		})
	}

	if c.Render.Width < 20 || c.Render.Width > 1000 {
		errs = append(errs, ValidationError{
			Field:   "render.width",
			Message: fmt.Sprintf("must be 20-1000, got %d", c.Render.Width),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults sets default values for any missing or zero-value fields.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}
	if c.Stream.HeartbeatSecs == 0 {
		c.Stream.HeartbeatSecs = defaults.Stream.HeartbeatSecs
	}
	if c.Stream.ReconnectSecs == 0 {
		c.Stream.ReconnectSecs = defaults.Stream.ReconnectSecs
	}
	if c.Render.Width == 0 {
		c.Render.Width = defaults.Render.Width
	}
	if c.Render.Tombstone == "" {
		c.Render.Tombstone = defaults.Render.Tombstone
	}
	if c.Render.Truncation == "" {
		c.Render.Truncation = defaults.Render.Truncation
	}
	if c.Render.Edited == "" {
		c.Render.Edited = defaults.Render.Edited
	}
	for i := range c.Servers {
		if c.Servers[i].Name == "" {
			c.Servers[i].Name = c.Servers[i].URL
		}
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - RELAY_SERVER_URL: adds (or overrides the first) server URL
//   - RELAY_TOKEN: token for the first server
//   - RELAY_LOGIN_ID / RELAY_PASSWORD: credentials for the first server
//   - RELAY_WIDTH: overrides render.width
//   - RELAY_NO_COLOR: set to "1" or "true" to disable color
func (c *Config) ApplyEnvOverrides() {
	if u := os.Getenv("RELAY_SERVER_URL"); u != "" {
		if len(c.Servers) == 0 {
			c.Servers = append(c.Servers, ServerConfig{})
		}
		c.Servers[0].URL = u
	}
	if len(c.Servers) > 0 {
		if token := os.Getenv("RELAY_TOKEN"); token != "" {
			c.Servers[0].Token = token
		}
		if login := os.Getenv("RELAY_LOGIN_ID"); login != "" {
			c.Servers[0].LoginID = login
		}
		if pw := os.Getenv("RELAY_PASSWORD"); pw != "" {
			c.Servers[0].Password = pw
		}
	}
	if w := os.Getenv("RELAY_WIDTH"); w != "" {
		var width int
		if _, err := fmt.Sscanf(w, "%d", &width); err == nil && width > 0 {
			c.Render.Width = width
		}
	}
	if nc := os.Getenv("RELAY_NO_COLOR"); nc == "1" || strings.EqualFold(nc, "true") {
		c.Render.Color = false
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Servers = make([]ServerConfig, len(c.Servers))
	copy(clone.Servers, c.Servers)
	return &clone
}

// String returns a string representation of the config for debugging.
// SECURITY: Redacts passwords and tokens so they never reach logs or
// debug output.
func (c *Config) String() string {
	safe := c.Clone()
	for i := range safe.Servers {
		if safe.Servers[i].Password != "" {
			safe.Servers[i].Password = "[REDACTED]"
		}
		if safe.Servers[i].Token != "" {
			safe.Servers[i].Token = "[REDACTED]"
		}
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}
