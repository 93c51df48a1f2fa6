// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if cfg.Stream.HeartbeatSecs != 15 || cfg.Stream.ReconnectSecs != 5 {
		t.Errorf("stream defaults = %+v", cfg.Stream)
	}
	if cfg.Render.Width != 100 {
		t.Errorf("render width = %d", cfg.Render.Width)
	}
}

func TestLoadFromPath(t *testing.T) {
	path := writeConfig(t, `
version = "1.0.0"

[[servers]]
name = "work"
url = "https://chat.example.test"
token = "tok"

[stream]
heartbeat_secs = 30

[render]
width = 80
color = false
`)
	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if len(cfg.Servers) != 1 || cfg.Servers[0].Name != "work" {
		t.Errorf("servers = %+v", cfg.Servers)
	}
	if cfg.Stream.HeartbeatSecs != 30 {
		t.Errorf("heartbeat = %d, want 30", cfg.Stream.HeartbeatSecs)
	}
	if cfg.Stream.ReconnectSecs != 5 {
		t.Errorf("reconnect = %d, want default 5", cfg.Stream.ReconnectSecs)
	}
	if cfg.Render.Width != 80 || cfg.Render.Color {
		t.Errorf("render = %+v", cfg.Render)
	}
	if cfg.Render.Tombstone == "" {
		t.Error("missing render fields should fill from defaults")
	}
}

func TestLoadFromPathRejectsBadURL(t *testing.T) {
	path := writeConfig(t, `
[[servers]]
url = "not a url"
token = "tok"
`)
	if _, err := LoadFromPath(path); err == nil {
		t.Fatal("bad URL accepted")
	}
}

func TestLoadFromPathRejectsMissingCredentials(t *testing.T) {
	path := writeConfig(t, `
[[servers]]
url = "https://chat.example.test"
`)
	_, err := LoadFromPath(path)
	if err == nil {
		t.Fatal("server without credentials accepted")
	}
	if !strings.Contains(err.Error(), "token or login_id") {
		t.Errorf("err = %v", err)
	}
}

func TestValidateRanges(t *testing.T) {
	cfg := Default()
	cfg.Stream.HeartbeatSecs = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero heartbeat accepted")
	}
	cfg = Default()
	cfg.Render.Width = 5
	if err := cfg.Validate(); err == nil {
		t.Error("width 5 accepted")
	}
}

func TestSetDefaultsNamesServers(t *testing.T) {
	cfg := Default()
	cfg.Servers = []ServerConfig{{URL: "https://chat.example.test", Token: "t"}}
	cfg.SetDefaults()
	if cfg.Servers[0].Name != "https://chat.example.test" {
		t.Errorf("name = %q, want the URL fallback", cfg.Servers[0].Name)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RELAY_SERVER_URL", "https://env.example.test")
	t.Setenv("RELAY_TOKEN", "env-token")
	t.Setenv("RELAY_WIDTH", "72")
	t.Setenv("RELAY_NO_COLOR", "1")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if len(cfg.Servers) != 1 || cfg.Servers[0].URL != "https://env.example.test" {
		t.Errorf("servers = %+v", cfg.Servers)
	}
	if cfg.Servers[0].Token != "env-token" {
		t.Errorf("token = %q", cfg.Servers[0].Token)
	}
	if cfg.Render.Width != 72 {
		t.Errorf("width = %d", cfg.Render.Width)
	}
	if cfg.Render.Color {
		t.Error("color still on under RELAY_NO_COLOR")
	}
}

func TestStringRedactsSecrets(t *testing.T) {
	cfg := Default()
	cfg.Servers = []ServerConfig{{
		URL: "https://chat.example.test", LoginID: "alice",
		Password: "hunter2", Token: "secret-token",
	}}
	s := cfg.String()
	if strings.Contains(s, "hunter2") || strings.Contains(s, "secret-token") {
		t.Error("String leaked a secret")
	}
	if !strings.Contains(s, "[REDACTED]") {
		t.Error("String did not mark redactions")
	}
	// The original is untouched.
	if cfg.Servers[0].Password != "hunter2" {
		t.Error("String mutated the config")
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()
	if cfg.HeartbeatInterval().Seconds() != 15 {
		t.Errorf("HeartbeatInterval = %v", cfg.HeartbeatInterval())
	}
	if cfg.ReconnectInterval().Seconds() != 5 {
		t.Errorf("ReconnectInterval = %v", cfg.ReconnectInterval())
	}
}
