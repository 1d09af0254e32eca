// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultNoticeText is the Gating Notice posted to the welcome channel.
const DefaultNoticeText = "**Hey! I'm the WiCHacks Gatekeeper bot!** I'm here to make sure that everyone stays safe this weekend!\n\n" +
	"**Are you a hacker?** React using the thumbs up emoji to verify yourself and see the rest of the server!\n\n" +
	"**Are you a sponsor/volunteer/mentor?** Introduce yourself in the #check-in-desk channel, and an admin will let you in shortly\n\n" +
	"By entering our server, you agree to the RIT Code of Conduct, MLH Privacy Policy, and MLH Code of Conduct " +
	"(all of which you agreed to on your WiCHacks application)\n\n" +
	"***Happy Hacking!***"

// Config holds the gatekeeper configuration.
type Config struct {
	// Mode is the operating mode: strict or dev.
	Mode string `toml:"mode"`

	Discord      DiscordConfig      `toml:"discord"`
	Registry     RegistryConfig     `toml:"registry"`
	OAuth        OAuthConfig        `toml:"oauth"`
	OutboundHTTP OutboundHTTPConfig `toml:"outbound_http"`
	Cache        CacheConfig        `toml:"cache"`
	Audit        AuditConfig        `toml:"audit"`
	Ops          OpsConfig          `toml:"ops"`
	Logging      LoggingConfig      `toml:"logging"`
}

// DiscordConfig holds the bot session and the per-deployment constants.
type DiscordConfig struct {
	// Token is the bot session token. Required; usually from BOT_TOKEN.
	Token string `toml:"token"`

	// GuildID is the community space the gate protects.
	GuildID string `toml:"guild_id"`

	// WelcomeChannelID is where the Gating Notice is posted.
	WelcomeChannelID string `toml:"welcome_channel_id"`

	// SelfUserID overrides the bot identity used to ignore its own reactions.
	// Empty means use the identity reported by the session on ready.
	SelfUserID string `toml:"self_user_id"`

	// AckEmoji is the reaction that counts as acknowledgment.
	AckEmoji string `toml:"ack_emoji"`

	// ElevatedRole and RestrictedRole are case-insensitive substrings
	// matched against guild role names at startup.
	ElevatedRole   string `toml:"elevated_role"`
	RestrictedRole string `toml:"restricted_role"`

	NoticeText    string `toml:"notice_text"`
	CommandPrefix string `toml:"command_prefix"`

	// EventTimeoutMS bounds the handling of a single event.
	EventTimeoutMS int `toml:"event_timeout_ms"`

	// QueueSize is the number of events buffered ahead of the worker.
	QueueSize int `toml:"queue_size"`

	// DebounceSeconds drops repeat acknowledgments from one member inside
	// the window. 0 disables.
	DebounceSeconds int `toml:"debounce_seconds"`
}

// RegistryConfig holds the identity registry settings.
type RegistryConfig struct {
	// BaseURL is the registry root, e.g. https://api.example.org.
	BaseURL string `toml:"base_url"`

	// MaxRefreshes caps token refreshes triggered by 401s in one fetch.
	MaxRefreshes int `toml:"max_refreshes"`
}

// OAuthConfig holds the client-credentials exchange settings.
type OAuthConfig struct {
	Endpoint     string `toml:"endpoint"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	Audience     string `toml:"audience"`
	GrantType    string `toml:"grant_type"`
}

// OutboundHTTPConfig holds settings for outbound HTTP requests.
type OutboundHTTPConfig struct {
	// TimeoutMS is the overall request timeout in milliseconds
	TimeoutMS int `toml:"timeout_ms"`

	// ConnectTimeoutMS is the connection timeout in milliseconds
	ConnectTimeoutMS int `toml:"connect_timeout_ms"`

	// MaxResponseBytes is the maximum response body size
	MaxResponseBytes int64 `toml:"max_response_bytes"`

	// InsecureSkipVerify disables TLS verification (dev-only)
	InsecureSkipVerify bool `toml:"insecure_skip_verify"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	// Driver is the cache driver name: memory or redis.
	Driver string `toml:"driver"`

	// Drivers holds per-driver configuration under [cache.drivers.<name>].
	Drivers map[string]any `toml:"drivers"`
}

// AuditConfig selects where verification attempts are recorded.
type AuditConfig struct {
	// Driver is off, memory, sqlite or mirror.
	Driver string `toml:"driver"`

	// Drivers holds per-driver configuration under [audit.drivers.<name>].
	Drivers map[string]any `toml:"drivers"`
}

// OpsConfig holds the operational HTTP listener settings.
type OpsConfig struct {
	// ListenAddr serves /healthz, /readyz and /metrics. Empty disables.
	ListenAddr string `toml:"listen_addr"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	Level string `toml:"level"`

	// AllowSensitive permits logging of sensitive values (tokens, secrets).
	AllowSensitive bool `toml:"allow_sensitive"`
}

// MissingRequiredError lists every required value that was not provided.
type MissingRequiredError struct {
	Keys []string
}

func (e *MissingRequiredError) Error() string {
	return fmt.Sprintf("missing required configuration: %s", strings.Join(e.Keys, ", "))
}

// Validate checks that every value the bot cannot start without is present.
func (c *Config) Validate() error {
	var missing []string
	required := map[string]string{
		"discord.token (BOT_TOKEN)":                                   c.Discord.Token,
		"discord.guild_id (GATEKEEPER_GUILD_ID)":                      c.Discord.GuildID,
		"discord.welcome_channel_id (GATEKEEPER_WELCOME_CHANNEL_ID)":  c.Discord.WelcomeChannelID,
		"registry.base_url (WICHACKS_API_URL)":                        c.Registry.BaseURL,
		"oauth.client_id (CLIENT_ID)":                                 c.OAuth.ClientID,
		"oauth.client_secret (CLIENT_SECRET)":                         c.OAuth.ClientSecret,
		"oauth.endpoint (GATEKEEPER_OAUTH_ENDPOINT)":                  c.OAuth.Endpoint,
		"discord.ack_emoji (GATEKEEPER_ACK_EMOJI)":                    c.Discord.AckEmoji,
		"discord.elevated_role (GATEKEEPER_ELEVATED_ROLE)":            c.Discord.ElevatedRole,
		"discord.restricted_role (GATEKEEPER_RESTRICTED_ROLE)":        c.Discord.RestrictedRole,
	}
	for key, value := range required {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &MissingRequiredError{Keys: missing}
	}
	return nil
}

// Redacted returns a string representation of the config with secrets redacted.
func (c *Config) Redacted() string {
	secret := func(s string) string {
		if s == "" {
			return `""`
		}
		if c.Logging.AllowSensitive {
			return fmt.Sprintf("%q", s)
		}
		return "[REDACTED]"
	}

	var sb strings.Builder
	sb.WriteString("Config{\n")
	sb.WriteString(fmt.Sprintf("  Mode: %q,\n", c.Mode))
	sb.WriteString("  Discord: {\n")
	sb.WriteString(fmt.Sprintf("    Token: %s,\n", secret(c.Discord.Token)))
	sb.WriteString(fmt.Sprintf("    GuildID: %q,\n", c.Discord.GuildID))
	sb.WriteString(fmt.Sprintf("    WelcomeChannelID: %q,\n", c.Discord.WelcomeChannelID))
	sb.WriteString(fmt.Sprintf("    SelfUserID: %q,\n", c.Discord.SelfUserID))
	sb.WriteString(fmt.Sprintf("    AckEmoji: %q,\n", c.Discord.AckEmoji))
	sb.WriteString(fmt.Sprintf("    ElevatedRole: %q,\n", c.Discord.ElevatedRole))
	sb.WriteString(fmt.Sprintf("    RestrictedRole: %q,\n", c.Discord.RestrictedRole))
	sb.WriteString(fmt.Sprintf("    CommandPrefix: %q,\n", c.Discord.CommandPrefix))
	sb.WriteString(fmt.Sprintf("    EventTimeoutMS: %d,\n", c.Discord.EventTimeoutMS))
	sb.WriteString(fmt.Sprintf("    QueueSize: %d,\n", c.Discord.QueueSize))
	sb.WriteString(fmt.Sprintf("    DebounceSeconds: %d,\n", c.Discord.DebounceSeconds))
	sb.WriteString("  },\n")
	sb.WriteString("  Registry: {\n")
	sb.WriteString(fmt.Sprintf("    BaseURL: %q,\n", c.Registry.BaseURL))
	sb.WriteString(fmt.Sprintf("    MaxRefreshes: %d,\n", c.Registry.MaxRefreshes))
	sb.WriteString("  },\n")
	sb.WriteString("  OAuth: {\n")
	sb.WriteString(fmt.Sprintf("    Endpoint: %q,\n", c.OAuth.Endpoint))
	sb.WriteString(fmt.Sprintf("    ClientID: %q,\n", c.OAuth.ClientID))
	sb.WriteString(fmt.Sprintf("    ClientSecret: %s,\n", secret(c.OAuth.ClientSecret)))
	sb.WriteString(fmt.Sprintf("    Audience: %q,\n", c.OAuth.Audience))
	sb.WriteString(fmt.Sprintf("    GrantType: %q,\n", c.OAuth.GrantType))
	sb.WriteString("  },\n")
	sb.WriteString("  OutboundHTTP: {\n")
	sb.WriteString(fmt.Sprintf("    TimeoutMS: %d,\n", c.OutboundHTTP.TimeoutMS))
	sb.WriteString(fmt.Sprintf("    ConnectTimeoutMS: %d,\n", c.OutboundHTTP.ConnectTimeoutMS))
	sb.WriteString(fmt.Sprintf("    MaxResponseBytes: %d,\n", c.OutboundHTTP.MaxResponseBytes))
	sb.WriteString(fmt.Sprintf("    InsecureSkipVerify: %v,\n", c.OutboundHTTP.InsecureSkipVerify))
	sb.WriteString("  },\n")
	sb.WriteString(fmt.Sprintf("  Cache: {Driver: %q, DriversCount: %d},\n", c.Cache.Driver, len(c.Cache.Drivers)))
	sb.WriteString(fmt.Sprintf("  Audit: {Driver: %q, DriversCount: %d},\n", c.Audit.Driver, len(c.Audit.Drivers)))
	sb.WriteString(fmt.Sprintf("  Ops: {ListenAddr: %q},\n", c.Ops.ListenAddr))
	sb.WriteString(fmt.Sprintf("  Logging: {Level: %q, AllowSensitive: %v},\n", c.Logging.Level, c.Logging.AllowSensitive))
	sb.WriteString("}")
	return sb.String()
}
