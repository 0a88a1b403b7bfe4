// Package config provides YAML configuration parsing for pulsewatch.
//
// One file configures both processes: the server section drives
// "pulsewatch serve" and the checker section drives "pulsewatch check".
// Either section may be omitted; defaults fill in the server.
//
// Example configuration:
//
//	log_level: info
//
//	server:
//	  port: 8080
//	  title: Platform health
//	  history:
//	    capacity: 32
//	    strategy: sequence
//	  state_file: /var/lib/pulsewatch/state.json
//	  nats:
//	    url: ${NATS_URL:-}
//
//	checker:
//	  api_url: http://localhost:8080
//	  interval: 5s
//	  checks:
//	    - name: api
//	      description: Public API
//	      url: https://api.example.com/health
//	      group: edge
//	  grids:
//	    - name: platform
//	      description: Platform
//	      url_template: "https://{{.env}}.example.com/health"
//	      dimensions:
//	        env: [prod, staging]
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/pulsewatch/internal/buffer"
	"github.com/jpalmerr/pulsewatch/internal/relay"
)

// minInterval is the minimum allowed probe interval. It keeps a typo from
// hammering a target.
const minInterval = 1 * time.Second

// Defaults applied by [Parse].
const (
	DefaultPort           = 8080
	DefaultAPIURL         = "http://localhost:8080"
	DefaultInterval       = 5 * time.Second
	DefaultTimeout        = 10 * time.Second
	DefaultMaxConcurrency = 10
)

// Config is the root configuration structure for pulsewatch.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// LogLevel is debug, info, warn or error. Defaults to info.
	LogLevel string `yaml:"log_level"`

	// Server configures the state server.
	Server ServerConfig `yaml:"server"`

	// Checker configures the probing client. Nil when the section is absent.
	Checker *CheckerConfig `yaml:"checker"`
}

// ServerConfig configures "pulsewatch serve".
type ServerConfig struct {
	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// Title is the dashboard title. Defaults to "pulsewatch".
	Title string `yaml:"title"`

	// History sizes each service's status buffer.
	History HistoryConfig `yaml:"history"`

	// QueueSize bounds the engine's request queue. Zero uses the engine default.
	QueueSize int `yaml:"queue_size"`

	// StateFile, when set, is loaded at startup and written at shutdown.
	StateFile string `yaml:"state_file"`

	// NATS enables the notification relay when URL is set.
	NATS NATSConfig `yaml:"nats"`
}

// HistoryConfig selects the status buffer.
type HistoryConfig struct {
	// Capacity is the number of statuses kept per service. Defaults to 32.
	Capacity int `yaml:"capacity"`

	// Strategy is "sequence" (evict oldest insert) or "time-indexed"
	// (evict earliest timestamp). Defaults to "sequence".
	Strategy string `yaml:"strategy"`
}

// NATSConfig configures the NATS relay.
type NATSConfig struct {
	// URL is the NATS server, e.g. nats://localhost:4222.
	// Supports environment variable substitution.
	URL string `yaml:"url"`

	// Subject is the subject prefix. Defaults to "pulsewatch.events".
	Subject string `yaml:"subject"`
}

// CheckerConfig configures "pulsewatch check".
type CheckerConfig struct {
	// APIURL is the pulsewatch server to submit to.
	// Supports environment variable substitution.
	APIURL string `yaml:"api_url"`

	// Interval is the default time between probes. Defaults to 5s.
	Interval Duration `yaml:"interval"`

	// Timeout is the default probe timeout. Defaults to 10s.
	Timeout Duration `yaml:"timeout"`

	// MaxConcurrency bounds in-flight probes. Defaults to 10.
	MaxConcurrency int `yaml:"max_concurrency"`

	// Checks are individual probe targets.
	Checks []CheckConfig `yaml:"checks"`

	// Grids expand into one check per combination of dimension values.
	Grids []GridConfig `yaml:"grids"`
}

// CheckConfig defines one probed service.
type CheckConfig struct {
	// Name is the service name.
	Name string `yaml:"name"`

	// Description is the spec description. Defaults to Name.
	Description string `yaml:"description"`

	// Group is the spec group.
	Group string `yaml:"group"`

	// URL is the probe URL; it is also recorded in the spec.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	URL string `yaml:"url"`

	// Method is the HTTP method (GET, HEAD, POST). Defaults to GET.
	Method string `yaml:"method"`

	// Headers are sent with each probe. Values support environment variable
	// substitution.
	Headers map[string]string `yaml:"headers"`

	// Timeout overrides the checker timeout.
	Timeout Duration `yaml:"timeout"`

	// Interval overrides the checker interval. Must be between 1s and 1h.
	Interval Duration `yaml:"interval"`

	// ExpectStatus lists the HTTP codes counted as up. Empty means any 2xx.
	ExpectStatus []int `yaml:"expect_status"`
}

// GridConfig defines checks that expand via cartesian product.
//
// For example, with dimensions {env: [prod, staging], svc: [api, web]},
// the grid expands to 4 checks named <name>-<env>-<svc>.
type GridConfig struct {
	// Name is the base name for generated services.
	Name string `yaml:"name"`

	// Description is the base description; dimension values are appended.
	Description string `yaml:"description"`

	// Group is the spec group for all generated services.
	Group string `yaml:"group"`

	// URLTemplate is a Go template for generating probe URLs.
	// Dimension keys are available as template variables: {{.env}}, {{.svc}}
	URLTemplate string `yaml:"url_template"`

	// Dimensions maps dimension names to their possible values.
	Dimensions map[string][]string `yaml:"dimensions"`

	Method       string            `yaml:"method"`
	Headers      map[string]string `yaml:"headers"`
	Timeout      Duration          `yaml:"timeout"`
	Interval     Duration          `yaml:"interval"`
	ExpectStatus []int             `yaml:"expect_status"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Level returns the parsed log level.
func (c *Config) Level() slog.Level {
	var level slog.Level
	// validated in Parse
	_ = level.UnmarshalText([]byte(c.LogLevel))
	return level
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data, applies defaults, expands
// environment variables and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.History.Capacity == 0 {
		c.Server.History.Capacity = buffer.DefaultCapacity
	}
	if c.Server.History.Strategy == "" {
		c.Server.History.Strategy = string(buffer.Sequence)
	}
	if c.Server.NATS.Subject == "" {
		c.Server.NATS.Subject = relay.DefaultSubject
	}

	if ch := c.Checker; ch != nil {
		if ch.APIURL == "" {
			ch.APIURL = DefaultAPIURL
		}
		if ch.Interval == 0 {
			ch.Interval = Duration(DefaultInterval)
		}
		if ch.Timeout == 0 {
			ch.Timeout = Duration(DefaultTimeout)
		}
		if ch.MaxConcurrency == 0 {
			ch.MaxConcurrency = DefaultMaxConcurrency
		}
	}
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}

	if err := c.Server.validate(); err != nil {
		return err
	}
	if c.Checker != nil {
		if err := c.Checker.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (s *ServerConfig) validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", s.Port)
	}
	if s.History.Capacity < 1 {
		return fmt.Errorf("server.history.capacity must be positive, got %d", s.History.Capacity)
	}
	if _, err := buffer.ParseStrategy(s.History.Strategy); err != nil {
		return fmt.Errorf("server.history.strategy: %w", err)
	}
	if s.QueueSize < 0 {
		return fmt.Errorf("server.queue_size cannot be negative, got %d", s.QueueSize)
	}

	expanded, err := expandEnvVars(s.StateFile)
	if err != nil {
		return fmt.Errorf("server.state_file: %w", err)
	}
	s.StateFile = expanded

	expanded, err = expandEnvVars(s.NATS.URL)
	if err != nil {
		return fmt.Errorf("server.nats.url: %w", err)
	}
	s.NATS.URL = expanded
	if s.NATS.URL != "" {
		u, err := url.Parse(s.NATS.URL)
		if err != nil {
			return fmt.Errorf("server.nats.url: %w", err)
		}
		if u.Scheme != "nats" && u.Scheme != "tls" {
			return fmt.Errorf("server.nats.url scheme must be nats or tls, got %q", u.Scheme)
		}
	}
	if strings.ContainsAny(s.NATS.Subject, "*> \t") {
		return fmt.Errorf("server.nats.subject must not contain wildcards or whitespace, got %q", s.NATS.Subject)
	}
	return nil
}

func (ch *CheckerConfig) validate() error {
	expanded, err := expandEnvVars(ch.APIURL)
	if err != nil {
		return fmt.Errorf("checker.api_url: %w", err)
	}
	ch.APIURL = expanded
	if err := validateHTTPURL(ch.APIURL); err != nil {
		return fmt.Errorf("checker.api_url: %w", err)
	}

	if ch.Interval.Duration() < minInterval {
		return fmt.Errorf("checker.interval must be at least %s, got %s", minInterval, ch.Interval.Duration())
	}
	if ch.Timeout.Duration() < time.Second {
		return fmt.Errorf("checker.timeout must be at least 1s, got %s", ch.Timeout.Duration())
	}
	if ch.MaxConcurrency < 1 {
		return fmt.Errorf("checker.max_concurrency must be positive, got %d", ch.MaxConcurrency)
	}

	for i := range ch.Checks {
		c := &ch.Checks[i]

		if c.Name == "" {
			return fmt.Errorf("checks[%d]: name is required", i)
		}
		where := fmt.Sprintf("checks[%d] (%s)", i, c.Name)

		if c.URL == "" {
			return fmt.Errorf("%s: url is required", where)
		}
		expanded, err := expandEnvVars(c.URL)
		if err != nil {
			return fmt.Errorf("%s: url: %w", where, err)
		}
		c.URL = expanded
		if err := validateHTTPURL(c.URL); err != nil {
			return fmt.Errorf("%s: %w", where, err)
		}

		if err := validateProbe(where, c.Method, c.Headers, c.Timeout, c.Interval, c.ExpectStatus); err != nil {
			return err
		}
	}

	for i := range ch.Grids {
		g := &ch.Grids[i]

		if g.Name == "" {
			return fmt.Errorf("grids[%d]: name is required", i)
		}
		where := fmt.Sprintf("grids[%d] (%s)", i, g.Name)

		if g.URLTemplate == "" {
			return fmt.Errorf("%s: url_template is required", where)
		}
		expanded, err := expandEnvVars(g.URLTemplate)
		if err != nil {
			return fmt.Errorf("%s: url_template: %w", where, err)
		}
		g.URLTemplate = expanded

		// fail fast before expansion tries to use an invalid template
		if _, err := template.New("").Parse(g.URLTemplate); err != nil {
			return fmt.Errorf("%s: invalid url_template: %w", where, err)
		}

		if len(g.Dimensions) == 0 {
			return fmt.Errorf("%s: at least one dimension is required", where)
		}
		for dimName, dimValues := range g.Dimensions {
			if len(dimValues) == 0 {
				return fmt.Errorf("%s: dimension %q has no values", where, dimName)
			}
			seen := make(map[string]struct{}, len(dimValues))
			for _, v := range dimValues {
				if _, exists := seen[v]; exists {
					return fmt.Errorf("%s: dimension %q has duplicate value %q", where, dimName, v)
				}
				seen[v] = struct{}{}
			}
		}

		if err := validateProbe(where, g.Method, g.Headers, g.Timeout, g.Interval, g.ExpectStatus); err != nil {
			return err
		}
	}

	if len(ch.Checks) == 0 && len(ch.Grids) == 0 {
		return errors.New("checker: at least one check or grid must be defined")
	}

	return nil
}

// validateProbe checks the settings shared by checks and grids, expanding
// environment variables in header values in place.
func validateProbe(where, method string, headers map[string]string, timeout, interval Duration, expect []int) error {
	for k, v := range headers {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("%s: headers[%s]: %w", where, k, err)
		}
		headers[k] = expanded
	}

	switch method {
	case "", http.MethodGet, http.MethodHead, http.MethodPost:
	default:
		return fmt.Errorf("%s: method must be GET, HEAD, or POST", where)
	}

	if timeout != 0 {
		if timeout.Duration() < 0 {
			return fmt.Errorf("%s: timeout cannot be negative, got %s", where, timeout.Duration())
		}
		if timeout.Duration() < time.Second {
			return fmt.Errorf("%s: timeout must be at least 1s if specified, got %s", where, timeout.Duration())
		}
	}

	if interval != 0 {
		if interval.Duration() < minInterval {
			return fmt.Errorf("%s: interval must be at least 1s, got %s", where, interval.Duration())
		}
		if interval.Duration() > time.Hour {
			return fmt.Errorf("%s: interval must not exceed 1h, got %s", where, interval.Duration())
		}
	}

	for _, code := range expect {
		if code < 100 || code > 599 {
			return fmt.Errorf("%s: expect_status contains invalid HTTP status %d", where, code)
		}
	}
	return nil
}

func validateHTTPURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme == "" {
		return errors.New("url must have a scheme (http:// or https://)")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("url must have a host")
	}
	return nil
}
