// Package config loads the convostream client configuration.
//
// Configuration is a single YAML document validated against an embedded JSON
// schema before it is decoded. Every field has a default; an empty document
// is a valid configuration pointing at a local development backend.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Token placements for the stream handshake.
const (
	TokenPlacementQuery  = "query"
	TokenPlacementHeader = "header"
)

// Credential store backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Config is the full client configuration.
type Config struct {
	// APIURL is the base URL of the REST and token service.
	APIURL string `yaml:"api_url"`

	// StreamURL is the base URL of the stream service; the conversation ID is
	// appended as the final path segment.
	StreamURL string `yaml:"stream_url"`

	// TokenPlacement selects how the access token is presented on the
	// handshake: as the "token" query parameter or an Authorization header.
	TokenPlacement string `yaml:"token_placement"`

	// DialTimeout bounds the websocket handshake only.
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// WriteWait bounds a single outbound write.
	WriteWait time.Duration `yaml:"write_wait"`

	// HeartbeatInterval is the ping period. Zero disables pings.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// HTTPTimeout bounds REST and refresh requests.
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	CredentialStore CredentialStoreConfig `yaml:"credential_store"`
	Metrics         MetricsConfig         `yaml:"metrics"`
	Telemetry       TelemetryConfig       `yaml:"telemetry"`
	Logging         LoggingConfigSpec     `yaml:"logging"`
}

// CredentialStoreConfig selects where the signed-in credential is persisted.
type CredentialStoreConfig struct {
	Backend     string        `yaml:"backend"`
	Path        string        `yaml:"path"`
	RedisAddr   string        `yaml:"redis_addr"`
	RedisPrefix string        `yaml:"redis_prefix"`
	// Profile names the credential within the redis prefix.
	Profile     string        `yaml:"profile"`
	TTL         time.Duration `yaml:"ttl"`
}

// MetricsConfig configures the Prometheus exporter. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// TelemetryConfig configures OTLP trace export. An empty endpoint disables it.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		APIURL:            "http://localhost:8000",
		StreamURL:         "ws://localhost:8000/ws",
		TokenPlacement:    TokenPlacementQuery,
		DialTimeout:       10 * time.Second,
		WriteWait:         10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		HTTPTimeout:       30 * time.Second,
		CredentialStore: CredentialStoreConfig{
			Backend:     BackendFile,
			Path:        "~/.convostream/credentials.yaml",
			RedisPrefix: "convostream",
			Profile:     "default",
			TTL:         720 * time.Hour,
		},
		Telemetry: TelemetryConfig{ServiceName: "convostream"},
		Logging:   DefaultLoggingConfig(),
	}
}

// Defaults returns the default configuration as a flat key/value map using
// dotted keys, suitable for seeding a key/value config layer.
func Defaults() map[string]any {
	d := Default()
	return map[string]any{
		"api_url":                       d.APIURL,
		"stream_url":                    d.StreamURL,
		"token_placement":               d.TokenPlacement,
		"dial_timeout":                  d.DialTimeout.String(),
		"write_wait":                    d.WriteWait.String(),
		"heartbeat_interval":            d.HeartbeatInterval.String(),
		"http_timeout":                  d.HTTPTimeout.String(),
		"credential_store.backend":      d.CredentialStore.Backend,
		"credential_store.path":         d.CredentialStore.Path,
		"credential_store.redis_addr":   d.CredentialStore.RedisAddr,
		"credential_store.redis_prefix": d.CredentialStore.RedisPrefix,
		"credential_store.profile":      d.CredentialStore.Profile,
		"credential_store.ttl":          d.CredentialStore.TTL.String(),
		"metrics.addr":                  d.Metrics.Addr,
		"telemetry.otlp_endpoint":       d.Telemetry.OTLPEndpoint,
		"telemetry.service_name":        d.Telemetry.ServiceName,
		"logging.default_level":         d.Logging.DefaultLevel,
		"logging.format":                d.Logging.Format,
	}
}

// Validate checks cross-field constraints the schema cannot express.
func (c *Config) Validate() error {
	if err := validateURL("api_url", c.APIURL, "http", "https"); err != nil {
		return err
	}
	if err := validateURL("stream_url", c.StreamURL, "ws", "wss"); err != nil {
		return err
	}
	if c.CredentialStore.Backend == BackendRedis && c.CredentialStore.RedisAddr == "" {
		return fmt.Errorf("credential_store: redis_addr is required for the redis backend")
	}
	if c.CredentialStore.Backend == BackendFile && c.CredentialStore.Path == "" {
		return fmt.Errorf("credential_store: path is required for the file backend")
	}
	return c.Logging.Validate()
}

func validateURL(field, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s: %q must be an absolute %s URL", field, raw, strings.Join(schemes, " or "))
}

// CredentialPath returns the credential file path with a leading "~"
// expanded to the user's home directory.
func (c *Config) CredentialPath() (string, error) {
	return ExpandHome(c.CredentialStore.Path)
}

// ExpandHome expands a leading "~" in path.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
