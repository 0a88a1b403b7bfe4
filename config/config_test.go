package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParse_EmptyConfigAppliesServerDefaults(t *testing.T) {
	cfg, err := Parse([]byte(``))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.History.Capacity != 32 {
		t.Errorf("Capacity = %d, want 32", cfg.Server.History.Capacity)
	}
	if cfg.Server.History.Strategy != "sequence" {
		t.Errorf("Strategy = %q, want sequence", cfg.Server.History.Strategy)
	}
	if cfg.Server.NATS.Subject != "pulsewatch.events" {
		t.Errorf("NATS.Subject = %q, want pulsewatch.events", cfg.Server.NATS.Subject)
	}
	if cfg.Level() != slog.LevelInfo {
		t.Errorf("Level() = %v, want info", cfg.Level())
	}
	if cfg.Checker != nil {
		t.Error("Checker should be nil when the section is absent")
	}
}

func TestParse_FullConfig(t *testing.T) {
	yaml := `
log_level: debug

server:
  port: 9090
  title: Platform health
  history:
    capacity: 100
    strategy: time-indexed
  queue_size: 128
  state_file: /tmp/pulsewatch.json
  nats:
    url: nats://localhost:4222
    subject: status.events

checker:
  api_url: http://pulsewatch:9090
  interval: 30s
  timeout: 5s
  max_concurrency: 4
  checks:
    - name: api
      description: Public API
      group: edge
      url: https://api.example.com/health
      method: HEAD
      headers:
        Authorization: Bearer token123
      timeout: 2s
      interval: 10s
      expect_status: [200, 401]
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Level() != slog.LevelDebug {
		t.Errorf("Level() = %v, want debug", cfg.Level())
	}

	s := cfg.Server
	if s.Port != 9090 || s.Title != "Platform health" || s.QueueSize != 128 {
		t.Errorf("unexpected server config: %+v", s)
	}
	if s.History.Capacity != 100 || s.History.Strategy != "time-indexed" {
		t.Errorf("unexpected history config: %+v", s.History)
	}
	if s.StateFile != "/tmp/pulsewatch.json" {
		t.Errorf("StateFile = %q", s.StateFile)
	}
	if s.NATS.URL != "nats://localhost:4222" || s.NATS.Subject != "status.events" {
		t.Errorf("unexpected nats config: %+v", s.NATS)
	}

	ch := cfg.Checker
	if ch == nil {
		t.Fatal("Checker is nil")
	}
	if ch.APIURL != "http://pulsewatch:9090" || ch.Interval.Duration() != 30*time.Second ||
		ch.Timeout.Duration() != 5*time.Second || ch.MaxConcurrency != 4 {
		t.Errorf("unexpected checker config: %+v", ch)
	}
	if len(ch.Checks) != 1 {
		t.Fatalf("len(Checks) = %d, want 1", len(ch.Checks))
	}
	c := ch.Checks[0]
	if c.Method != "HEAD" || c.Headers["Authorization"] != "Bearer token123" {
		t.Errorf("unexpected check: %+v", c)
	}
	if len(c.ExpectStatus) != 2 || c.ExpectStatus[1] != 401 {
		t.Errorf("ExpectStatus = %v, want [200 401]", c.ExpectStatus)
	}
}

func TestParse_CheckerDefaults(t *testing.T) {
	yaml := `
checker:
  checks:
    - name: api
      url: https://example.com
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	ch := cfg.Checker
	if ch.APIURL != "http://localhost:8080" {
		t.Errorf("APIURL = %q, want http://localhost:8080", ch.APIURL)
	}
	if ch.Interval.Duration() != 5*time.Second {
		t.Errorf("Interval = %v, want 5s", ch.Interval.Duration())
	}
	if ch.Timeout.Duration() != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", ch.Timeout.Duration())
	}
	if ch.MaxConcurrency != 10 {
		t.Errorf("MaxConcurrency = %d, want 10", ch.MaxConcurrency)
	}
}

func TestParse_GridConfig(t *testing.T) {
	yaml := `
checker:
  grids:
    - name: platform
      description: Platform
      group: core
      url_template: "https://{{.env}}.example.com/{{.svc}}/health"
      dimensions:
        env: [prod, staging]
        svc: [api, web]
      timeout: 3s
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if len(cfg.Checker.Grids) != 1 {
		t.Fatalf("len(Grids) = %d, want 1", len(cfg.Checker.Grids))
	}
	g := cfg.Checker.Grids[0]
	if g.Name != "platform" || len(g.Dimensions) != 2 || g.Timeout.Duration() != 3*time.Second {
		t.Errorf("unexpected grid: %+v", g)
	}
}

func TestParse_EnvVarSubstitution(t *testing.T) {
	t.Setenv("API_HOST", "api.internal")
	t.Setenv("API_TOKEN", "secret")
	t.Setenv("NATS_HOST", "nats.internal")

	yaml := `
server:
  state_file: ${STATE_DIR:-/var/lib/pulsewatch}/state.json
  nats:
    url: nats://${NATS_HOST}:4222
checker:
  api_url: http://${API_HOST}:8080
  checks:
    - name: api
      url: https://${API_HOST}/health
      headers:
        Authorization: Bearer ${API_TOKEN}
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Server.StateFile != "/var/lib/pulsewatch/state.json" {
		t.Errorf("StateFile = %q", cfg.Server.StateFile)
	}
	if cfg.Server.NATS.URL != "nats://nats.internal:4222" {
		t.Errorf("NATS.URL = %q", cfg.Server.NATS.URL)
	}
	if cfg.Checker.APIURL != "http://api.internal:8080" {
		t.Errorf("APIURL = %q", cfg.Checker.APIURL)
	}
	c := cfg.Checker.Checks[0]
	if c.URL != "https://api.internal/health" {
		t.Errorf("URL = %q", c.URL)
	}
	if c.Headers["Authorization"] != "Bearer secret" {
		t.Errorf("Authorization = %q", c.Headers["Authorization"])
	}
}

func TestParse_EnvVarDefaultDisablesNATS(t *testing.T) {
	yaml := `
server:
  nats:
    url: ${PULSEWATCH_TEST_UNSET_NATS:-}
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Server.NATS.URL != "" {
		t.Errorf("NATS.URL = %q, want empty", cfg.Server.NATS.URL)
	}
}

func TestParse_EnvVarMissing(t *testing.T) {
	yaml := `
checker:
  checks:
    - name: api
      url: https://${PULSEWATCH_TEST_MISSING}/health
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("Parse() expected error for missing env var")
	}
	if !strings.Contains(err.Error(), "PULSEWATCH_TEST_MISSING") {
		t.Errorf("error should name the variable, got: %v", err)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name        string
		yaml        string
		wantErrLike string
	}{
		{
			name:        "bad log level",
			yaml:        `log_level: loud`,
			wantErrLike: "log_level",
		},
		{
			name: "port out of range",
			yaml: `
server:
  port: 70000
`,
			wantErrLike: "server.port",
		},
		{
			name: "negative capacity",
			yaml: `
server:
  history:
    capacity: -1
`,
			wantErrLike: "capacity must be positive",
		},
		{
			name: "unknown strategy",
			yaml: `
server:
  history:
    strategy: lifo
`,
			wantErrLike: "server.history.strategy",
		},
		{
			name: "negative queue",
			yaml: `
server:
  queue_size: -4
`,
			wantErrLike: "queue_size",
		},
		{
			name: "nats wrong scheme",
			yaml: `
server:
  nats:
    url: http://localhost:4222
`,
			wantErrLike: "scheme must be nats or tls",
		},
		{
			name: "nats wildcard subject",
			yaml: `
server:
  nats:
    subject: events.>
`,
			wantErrLike: "wildcards",
		},
		{
			name:        "checker without checks",
			yaml:        "checker:\n  interval: 5s\n",
			wantErrLike: "at least one check or grid",
		},
		{
			name: "bad api url",
			yaml: `
checker:
  api_url: localhost:8080
  checks:
    - name: api
      url: https://example.com
`,
			wantErrLike: "checker.api_url",
		},
		{
			name: "check missing name",
			yaml: `
checker:
  checks:
    - url: https://example.com
`,
			wantErrLike: "checks[0]: name is required",
		},
		{
			name: "check missing url",
			yaml: `
checker:
  checks:
    - name: api
`,
			wantErrLike: "checks[0] (api): url is required",
		},
		{
			name: "check bad scheme",
			yaml: `
checker:
  checks:
    - name: api
      url: ftp://example.com
`,
			wantErrLike: "scheme must be http or https",
		},
		{
			name: "check invalid method",
			yaml: `
checker:
  checks:
    - name: api
      url: https://example.com
      method: DELETE
`,
			wantErrLike: "method must be GET, HEAD, or POST",
		},
		{
			name: "check timeout too short",
			yaml: `
checker:
  checks:
    - name: api
      url: https://example.com
      timeout: 500ms
`,
			wantErrLike: "timeout must be at least 1s",
		},
		{
			name: "check interval too long",
			yaml: `
checker:
  checks:
    - name: api
      url: https://example.com
      interval: 2h
`,
			wantErrLike: "interval must not exceed 1h",
		},
		{
			name: "checker interval too short",
			yaml: `
checker:
  interval: 100ms
  checks:
    - name: api
      url: https://example.com
`,
			wantErrLike: "checker.interval must be at least 1s",
		},
		{
			name: "bad expect status",
			yaml: `
checker:
  checks:
    - name: api
      url: https://example.com
      expect_status: [200, 42]
`,
			wantErrLike: "invalid HTTP status 42",
		},
		{
			name: "grid missing template",
			yaml: `
checker:
  grids:
    - name: platform
      dimensions:
        env: [prod]
`,
			wantErrLike: "url_template is required",
		},
		{
			name: "grid invalid template",
			yaml: `
checker:
  grids:
    - name: platform
      url_template: "https://{{.env.example.com"
      dimensions:
        env: [prod]
`,
			wantErrLike: "invalid url_template",
		},
		{
			name: "grid without dimensions",
			yaml: `
checker:
  grids:
    - name: platform
      url_template: "https://example.com"
`,
			wantErrLike: "at least one dimension",
		},
		{
			name: "grid duplicate dimension value",
			yaml: `
checker:
  grids:
    - name: platform
      url_template: "https://{{.env}}.example.com"
      dimensions:
        env: [prod, prod]
`,
			wantErrLike: `duplicate value "prod"`,
		},
		{
			name: "grid empty dimension",
			yaml: `
checker:
  grids:
    - name: platform
      url_template: "https://{{.env}}.example.com"
      dimensions:
        env: []
`,
			wantErrLike: "has no values",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Parse() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErrLike) {
				t.Errorf("error = %q, want to contain %q", err.Error(), tt.wantErrLike)
			}
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("server: [unclosed"))
	if err == nil {
		t.Fatal("Parse() expected error for invalid YAML")
	}
	if !strings.Contains(err.Error(), "failed to parse YAML") {
		t.Errorf("error = %q, want YAML parse error", err.Error())
	}
}

func TestParse_InvalidDuration(t *testing.T) {
	yaml := `
checker:
  interval: soon
  checks:
    - name: api
      url: https://example.com
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("Parse() expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("error = %q, want invalid duration", err.Error())
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulsewatch.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9999\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Port = %d, want 9999", cfg.Server.Port)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "value")
	t.Setenv("EMPTY_VAR", "") // set but empty

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"no vars", "plain text", "plain text", false},
		{"simple var", "${TEST_VAR}", "value", false},
		{"var in text", "prefix ${TEST_VAR} suffix", "prefix value suffix", false},
		{"multiple vars", "${TEST_VAR}-${TEST_VAR}", "value-value", false},
		{"with default (var set)", "${TEST_VAR:-default}", "value", false},
		{"with default (var unset)", "${UNSET:-default}", "default", false},
		{"missing required", "${MISSING}", "", true},
		{"empty default (var unset)", "${UNSET:-}", "", false},
		{"set but empty var", "${EMPTY_VAR}", "", false},
		{"set but empty with default", "${EMPTY_VAR:-fallback}", "", false}, // set var takes precedence
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// UNSET and MISSING are expected to not exist in environment
			got, err := expandEnvVars(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expandEnvVars() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("expandEnvVars() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("expandEnvVars() = %q, want %q", got, tt.want)
			}
		})
	}
}
