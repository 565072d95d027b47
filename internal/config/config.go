package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// TailscaleConfig contains settings for exposing the bus as a Tailscale / tsnet node.
type TailscaleConfig struct {
	// Enabled toggles whether the server should start with tsnet and join a tailnet.
	Enabled bool `json:"enabled"`

	// Hostname is the device name that will appear in your tailnet for this embedded tsnet node.
	Hostname string `json:"hostname"`

	// AuthKey is an optional Tailscale auth key used for unattended login.
	// If empty, tsnet falls back to TS_AUTHKEY / TS_AUTH_KEY env vars,
	// then prompts for interactive login on first start.
	AuthKey string `json:"authKey"`

	// Ephemeral controls whether this node is ephemeral in the tailnet.
	Ephemeral bool `json:"ephemeral"`

	// ControlURL optionally overrides the Tailscale control server URL (advanced / testing only).
	ControlURL string `json:"controlURL"`

	// Dir overrides the directory where tsnet stores its persistent state.
	Dir string `json:"dir"`

	// HTTPS enables automatic TLS via Tailscale-managed Let's Encrypt certificates.
	HTTPS bool `json:"https"`
}

// Config holds configuration for the agentbus server.
type Config struct {
	Port         int             `json:"port"`
	DatabasePath string          `json:"databasePath"`
	Tailscale    TailscaleConfig `json:"tailscale"`

	// SessionTimeoutSecs is the heartbeat age after which a session is
	// considered stale and eligible for the sweep.
	SessionTimeoutSecs int `json:"sessionTimeoutSecs"`

	// SweepIntervalSecs is how often the stale-session sweeper runs.
	SweepIntervalSecs int `json:"sweepIntervalSecs"`

	// MaxEvents caps the number of retained events; the oldest rows are
	// trimmed when a publish would exceed it.
	MaxEvents int `json:"maxEvents"`

	// WebhookTimeoutSecs is the per-request timeout for outbound webhook POSTs.
	WebhookTimeoutSecs int `json:"webhookTimeoutSecs"`

	// WebhookMaxAttempts is the total number of delivery attempts per webhook
	// (initial attempt plus retries).
	WebhookMaxAttempts int `json:"webhookMaxAttempts"`
}

// Default values for the tunables above.
const (
	DefaultPort               = 8765
	DefaultSessionTimeoutSecs = 600
	DefaultSweepIntervalSecs  = 30
	DefaultMaxEvents          = 10000
	DefaultWebhookTimeoutSecs = 10
	DefaultWebhookMaxAttempts = 3
)

// Parse reads the JSON config file and applies environment overrides.
// The file path is taken from AGENTBUS_CONFIG, defaulting to "agentbus.json";
// a missing file is not an error and yields pure defaults. A .env file in the
// working directory is loaded first, if present.
func Parse() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:               DefaultPort,
		SessionTimeoutSecs: DefaultSessionTimeoutSecs,
		SweepIntervalSecs:  DefaultSweepIntervalSecs,
		MaxEvents:          DefaultMaxEvents,
		WebhookTimeoutSecs: DefaultWebhookTimeoutSecs,
		WebhookMaxAttempts: DefaultWebhookMaxAttempts,
	}

	path := os.Getenv("AGENTBUS_CONFIG")
	if path == "" {
		path = "agentbus.json"
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// No config file; defaults plus env overrides.
	case err != nil:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("AGENTBUS_DB"); v != "" {
		cfg.DatabasePath = v
	}
	for _, o := range []struct {
		name string
		dst  *int
	}{
		{"SESSION_TIMEOUT", &cfg.SessionTimeoutSecs},
		{"SWEEP_INTERVAL", &cfg.SweepIntervalSecs},
		{"MAX_EVENTS", &cfg.MaxEvents},
		{"WEBHOOK_TIMEOUT", &cfg.WebhookTimeoutSecs},
		{"WEBHOOK_MAX_ATTEMPTS", &cfg.WebhookMaxAttempts},
	} {
		v := os.Getenv(o.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing %s=%q: %w", o.name, v, err)
		}
		*o.dst = n
	}
	return nil
}

// SessionTimeout returns the stale-session timeout as a duration.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutSecs) * time.Second
}

// SweepInterval returns the sweeper period as a duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSecs) * time.Second
}

// WebhookTimeout returns the outbound HTTP timeout as a duration.
func (c *Config) WebhookTimeout() time.Duration {
	return time.Duration(c.WebhookTimeoutSecs) * time.Second
}
