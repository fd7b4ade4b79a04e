package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

const minimalUpstream = `
[upstream]
base_url = "https://upstream.example.com"
`

// cliWithPath returns a CLI struct pointing at the given config file with
// every override unset, as Kong would produce without flags.
func cliWithPath(path string) *CLI {
	return &CLI{Config: path, MaxRedirects: -1}
}

// writeConfig writes data to config.toml in a fresh temp dir and returns its path.
func writeConfig(t *testing.T, data string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(data), perm); err != nil {
		t.Fatal(err)
	}
	return path
}

func loadString(t *testing.T, data string) (*Config, error) {
	t.Helper()
	return Load(cliWithPath(writeConfig(t, data, 0o600)))
}

func TestLoad_ValidConfig(t *testing.T) {
	cfg, err := loadString(t, `
[server]
host = "127.0.0.1"
port = 9000
body_max_bytes = 5242880

[upstream]
base_url = "https://upstream.example.com"
timeout_seconds = 60
idle_connections = 50
dial_address = "10.0.0.5:443"
requests_per_second = 25.5

[redirect]
max_redirect_times = 3
buffer_body_max_bytes = 4096
reject_non_replayable = true

[log]
level = "debug"
format = "text"
`)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	checks := []struct {
		field string
		got   any
		want  any
	}{
		{"Server.Host", cfg.Server.Host, "127.0.0.1"},
		{"Server.Port", cfg.Server.Port, 9000},
		{"Server.BodyMaxBytes", cfg.Server.BodyMaxBytes, int64(5242880)},
		{"Upstream.TimeoutSeconds", cfg.Upstream.TimeoutSeconds, 60},
		{"Upstream.IdleConnections", cfg.Upstream.IdleConnections, 50},
		{"Upstream.DialAddress", cfg.Upstream.DialAddress, "10.0.0.5:443"},
		{"Upstream.RequestsPerSecond", cfg.Upstream.RequestsPerSecond, 25.5},
		{"Redirect.MaxRedirects()", cfg.Redirect.MaxRedirects(), uint8(3)},
		{"Redirect.BufferBodyMaxBytes", cfg.Redirect.BufferBodyMaxBytes, int64(4096)},
		{"Redirect.RejectNonReplayable", cfg.Redirect.RejectNonReplayable, true},
		{"Log.Level", cfg.Log.Level, "debug"},
		{"Log.Format", cfg.Log.Format, "text"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.field, c.got, c.want)
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := loadString(t, minimalUpstream)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	checks := []struct {
		field string
		got   any
		want  any
	}{
		{"Server.Host", cfg.Server.Host, "0.0.0.0"},
		{"Server.Port", cfg.Server.Port, 8000},
		{"Server.BodyMaxBytes", cfg.Server.BodyMaxBytes, int64(10 * 1024 * 1024)},
		{"Server.RateLimit.Enabled", cfg.Server.RateLimit.Enabled, false},
		{"Upstream.TimeoutSeconds", cfg.Upstream.TimeoutSeconds, 120},
		{"Upstream.IdleConnections", cfg.Upstream.IdleConnections, 100},
		{"Upstream.RequestsPerSecond", cfg.Upstream.RequestsPerSecond, 0.0},
		{"Redirect.MaxRedirects()", cfg.Redirect.MaxRedirects(), uint8(10)},
		{"Redirect.BufferBodyMaxBytes", cfg.Redirect.BufferBodyMaxBytes, int64(1024 * 1024)},
		{"Redirect.RejectNonReplayable", cfg.Redirect.RejectNonReplayable, false},
		{"Log.Level", cfg.Log.Level, "info"},
		{"Log.Format", cfg.Log.Format, "json"},
		{"Metrics.Path", cfg.Metrics.Path, "/metrics"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("default %s = %v, want %v", c.field, c.got, c.want)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(cliWithPath("/nonexistent/config.toml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file, got nil")
	}
}

func TestLoad_MalformedTOML(t *testing.T) {
	_, err := loadString(t, "[upstream\nbase_url = ")
	if err == nil {
		t.Fatal("Load() expected parse error, got nil")
	}
	if !strings.Contains(err.Error(), "parse") {
		t.Errorf("error = %q, want mention of parse", err)
	}
}

func TestLoad_CLIOverrides(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "0.0.0.0"
port = 8000

[upstream]
base_url = "https://upstream.example.com"

[redirect]
max_redirect_times = 7

[log]
level = "info"
`, 0o600)

	cfg, err := Load(&CLI{
		Config:       path,
		Host:         "127.0.0.1",
		Port:         3000,
		Upstream:     "http://127.0.0.1:9999",
		MaxRedirects: 0,
		LogLevel:     "debug",
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q (CLI override)", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want %d (CLI override)", cfg.Server.Port, 3000)
	}
	if cfg.Upstream.BaseURL != "http://127.0.0.1:9999" {
		t.Errorf("Upstream.BaseURL = %q, want %q (CLI override)", cfg.Upstream.BaseURL, "http://127.0.0.1:9999")
	}
	if cfg.Redirect.MaxRedirects() != 0 {
		t.Errorf("Redirect.MaxRedirects() = %d, want 0 (CLI override)", cfg.Redirect.MaxRedirects())
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (CLI override)", cfg.Log.Level, "debug")
	}
}

func TestLoad_CLIMaxRedirectsUnsetKeepsConfig(t *testing.T) {
	cfg, err := loadString(t, minimalUpstream+`
[redirect]
max_redirect_times = 7
`)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.Redirect.MaxRedirects(); got != 7 {
		t.Errorf("Redirect.MaxRedirects() = %d, want 7", got)
	}
}

func TestLoad_RedirectZeroDisablesFollowing(t *testing.T) {
	cfg, err := loadString(t, minimalUpstream+`
[redirect]
max_redirect_times = 0
`)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.Redirect.MaxRedirects(); got != 0 {
		t.Errorf("Redirect.MaxRedirects() = %d, want 0; explicit zero must not be replaced by the default", got)
	}
}

func TestLoad_RedirectUpperBound(t *testing.T) {
	cfg, err := loadString(t, minimalUpstream+`
[redirect]
max_redirect_times = 255
`)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.Redirect.MaxRedirects(); got != 255 {
		t.Errorf("Redirect.MaxRedirects() = %d, want 255", got)
	}
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantMsg string
	}{
		{
			name:    "missing upstream",
			data:    "[log]\nlevel = \"info\"\n",
			wantMsg: "base_url is required",
		},
		{
			name:    "non-http upstream",
			data:    "[upstream]\nbase_url = \"ftp://upstream.example.com\"\n",
			wantMsg: "http or https",
		},
		{
			name:    "upstream without host",
			data:    "[upstream]\nbase_url = \"https:///path-only\"\n",
			wantMsg: "must include a host",
		},
		{
			name:    "dial address without port",
			data:    minimalUpstream + "dial_address = \"no-port\"\n",
			wantMsg: "dial_address",
		},
		{
			name:    "negative timeout",
			data:    minimalUpstream + "timeout_seconds = -5\n",
			wantMsg: "timeout_seconds",
		},
		{
			name:    "negative idle connections",
			data:    minimalUpstream + "idle_connections = -1\n",
			wantMsg: "idle_connections",
		},
		{
			name:    "negative upstream rate",
			data:    minimalUpstream + "requests_per_second = -1.0\n",
			wantMsg: "upstream.requests_per_second",
		},
		{
			name:    "negative port",
			data:    "[server]\nport = -1\n" + minimalUpstream,
			wantMsg: "server.port",
		},
		{
			name:    "port out of range",
			data:    "[server]\nport = 70000\n" + minimalUpstream,
			wantMsg: "server.port",
		},
		{
			name:    "negative body limit",
			data:    "[server]\nbody_max_bytes = -1\n" + minimalUpstream,
			wantMsg: "body_max_bytes",
		},
		{
			name:    "rate limit without rate",
			data:    minimalUpstream + "[server.rate_limit]\nenabled = true\nrequests_per_second = 0\n",
			wantMsg: "rate_limit.requests_per_second",
		},
		{
			name:    "redirect budget above range",
			data:    minimalUpstream + "[redirect]\nmax_redirect_times = 256\n",
			wantMsg: "max_redirect_times",
		},
		{
			name:    "negative redirect budget",
			data:    minimalUpstream + "[redirect]\nmax_redirect_times = -1\n",
			wantMsg: "max_redirect_times",
		},
		{
			name:    "negative buffer limit",
			data:    minimalUpstream + "[redirect]\nbuffer_body_max_bytes = -1\n",
			wantMsg: "buffer_body_max_bytes",
		},
		{
			name:    "invalid log level",
			data:    minimalUpstream + "[log]\nlevel = \"verbose\"\n",
			wantMsg: "log.level",
		},
		{
			name:    "invalid log format",
			data:    minimalUpstream + "[log]\nformat = \"xml\"\n",
			wantMsg: "log.format",
		},
		{
			name:    "metrics path without slash",
			data:    minimalUpstream + "[metrics]\nenabled = true\npath = \"metrics\"\n",
			wantMsg: "metrics.path",
		},
		{
			name:    "metrics path on healthz",
			data:    minimalUpstream + "[metrics]\nenabled = true\npath = \"/healthz\"\n",
			wantMsg: "conflicts",
		},
		{
			name:    "metrics path below healthz",
			data:    minimalUpstream + "[metrics]\nenabled = true\npath = \"/healthz/metrics\"\n",
			wantMsg: "conflicts",
		},
		{
			name:    "metrics path on status",
			data:    minimalUpstream + "[metrics]\nenabled = true\npath = \"/proxy/status\"\n",
			wantMsg: "conflicts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadString(t, tt.data)
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want mention of %q", err, tt.wantMsg)
			}
		})
	}
}

func TestLoad_RateLimitConfig(t *testing.T) {
	cfg, err := loadString(t, minimalUpstream+`
[server.rate_limit]
enabled = true
requests_per_second = 50.0
`)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Server.RateLimit.Enabled {
		t.Error("expected RateLimit.Enabled = true")
	}
	if cfg.Server.RateLimit.RequestsPerSecond != 50.0 {
		t.Errorf("RateLimit.RequestsPerSecond = %v, want 50.0", cfg.Server.RateLimit.RequestsPerSecond)
	}
}

func TestLoad_MetricsPath(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"default", "[metrics]\nenabled = true\n", "/metrics"},
		{"custom", "[metrics]\nenabled = true\npath = \"/custom-metrics\"\n", "/custom-metrics"},
		{"disabled skips validation", "[metrics]\nenabled = false\npath = \"bad-no-slash\"\n", "bad-no-slash"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := loadString(t, minimalUpstream+tt.data)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.Metrics.Path != tt.want {
				t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, tt.want)
			}
		})
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	cfg, err := Load(cliWithPath("../../configs/config.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.Redirect.MaxRedirects(); got != 10 {
		t.Errorf("MaxRedirects() = %d, want 10", got)
	}
	if cfg.Upstream.BaseURL != "https://upstream.example.com" {
		t.Errorf("Upstream.BaseURL = %q", cfg.Upstream.BaseURL)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics = %+v, want enabled at /metrics", cfg.Metrics)
	}
}

func TestWarnPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not meaningful on Windows")
	}

	tests := []struct {
		name     string
		perm     os.FileMode
		wantWarn bool
	}{
		{"group readable", 0o644, true},
		{"owner only", 0o600, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{filePath: writeConfig(t, "# test", tt.perm)}
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
			cfg.WarnPermissions(logger)

			if got := strings.Contains(buf.String(), "readable by group/others"); got != tt.wantWarn {
				t.Errorf("warned = %v, want %v; log: %q", got, tt.wantWarn, buf.String())
			}
		})
	}
}

func TestFindConfigInPaths(t *testing.T) {
	first := writeConfig(t, minimalUpstream, 0o600)
	second := writeConfig(t, minimalUpstream, 0o600)

	tests := []struct {
		name  string
		paths []string
		want  string
	}{
		{"found", []string{first}, first},
		{"not found", []string{"/nonexistent/a.toml", "/nonexistent/b.toml"}, ""},
		{"first match wins", []string{"/nonexistent/a.toml", first, second}, first},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := findConfigInPaths(tt.paths); got != tt.want {
				t.Errorf("findConfigInPaths() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestServerConfig_Addr(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"127.0.0.1", 3000, "127.0.0.1:3000"},
		{"::1", 8000, "[::1]:8000"},
	}
	for _, tt := range tests {
		sc := &ServerConfig{Host: tt.host, Port: tt.port}
		if got := sc.Addr(); got != tt.want {
			t.Errorf("Addr() = %q, want %q", got, tt.want)
		}
	}
}

func TestRedirectConfig_MaxRedirectsUnset(t *testing.T) {
	var rc RedirectConfig
	if got := rc.MaxRedirects(); got != 10 {
		t.Errorf("MaxRedirects() = %d, want 10", got)
	}
}
