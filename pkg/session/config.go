// Package session owns per-backend connection state: endpoint, credentials
// and the open vendor handle, with an explicit connect/disconnect lifecycle.
package session

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Bibi40k/vmgmt/configs"
)

// Credentials holds the authentication material for one backend.
// Which fields are used depends on the backend.
type Credentials struct {
	Username string
	Password string
	Token    string
	// Extra carries vendor-specific auth blobs (key files, tenant IDs...).
	Extra map[string]string
}

// String never prints secrets.
func (c Credentials) String() string {
	var parts []string
	if c.Username != "" {
		parts = append(parts, "user="+c.Username)
	}
	if c.Password != "" {
		parts = append(parts, "password=***")
	}
	if c.Token != "" {
		parts = append(parts, "token=***")
	}
	if len(c.Extra) > 0 {
		parts = append(parts, "extra="+strconv.Itoa(len(c.Extra)))
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// Config is what every backend System is constructed from.
type Config struct {
	Endpoint       string        // hostname, URL or socket path
	Credentials    Credentials   //
	Insecure       bool          // skip TLS verification
	ConnectTimeout time.Duration // 0 = configs.Defaults.Timeouts.Connect()
	// Options are backend-specific pass-through settings. Unknown keys are
	// accepted and ignored by backends that do not use them.
	Options map[string]string
	Logger  *slog.Logger
}

// Option returns the pass-through option key, or def when unset.
func (c Config) Option(key, def string) string {
	if v, ok := c.Options[key]; ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

// BoolOption parses a boolean pass-through option.
func (c Config) BoolOption(key string, def bool) bool {
	v, ok := c.Options[key]
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

// IntOption parses an integer pass-through option.
func (c Config) IntOption(key string, def int) int {
	v, ok := c.Options[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

// DurationOption parses a duration pass-through option ("30s", "2m").
func (c Config) DurationOption(key string, def time.Duration) time.Duration {
	v, ok := c.Options[key]
	if !ok {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return d
}

// EffectiveConnectTimeout returns ConnectTimeout or the library default.
func (c Config) EffectiveConnectTimeout() time.Duration {
	if c.ConnectTimeout > 0 {
		return c.ConnectTimeout
	}
	return configs.Defaults.Timeouts.Connect()
}

// EffectiveLogger returns Logger or slog.Default().
func (c Config) EffectiveLogger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
