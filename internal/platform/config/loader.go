package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// Mode represents the operating mode.
type Mode string

const (
	ModeStrict Mode = "strict"
	ModeDev    Mode = "dev"
)

// ParseMode parses a mode string, returning an error for invalid values.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict", "":
		return ModeStrict, nil
	case "dev":
		return ModeDev, nil
	default:
		return "", fmt.Errorf("invalid mode %q: must be one of strict, dev", s)
	}
}

// LoaderOptions controls how configuration is loaded.
type LoaderOptions struct {
	// ConfigPath is the path to a TOML config file (optional).
	// If provided but file is missing or invalid, loading fails.
	ConfigPath string

	// ModeFlag is the --mode flag value (overrides config file mode).
	ModeFlag string

	// Environment replaces the process environment when non-nil.
	Environment map[string]string

	// FlagOverrides are CLI flag values that override every other source.
	FlagOverrides FlagOverrides

	// Logger is used for warning messages (e.g., undecoded keys).
	// If nil, slog.Default() is used.
	Logger *slog.Logger
}

// FlagOverrides holds CLI flag values; nil or empty means unset.
type FlagOverrides struct {
	GuildID          *string
	WelcomeChannelID *string
	RegistryBaseURL  *string
	OpsListenAddr    *string
	LoggingLevel     *string
}

// fileConfig mirrors Config but with pointer sections to detect presence.
type fileConfig struct {
	Mode         string              `toml:"mode"`
	Discord      *DiscordConfig      `toml:"discord"`
	Registry     *RegistryConfig     `toml:"registry"`
	OAuth        *OAuthConfig        `toml:"oauth"`
	OutboundHTTP *OutboundHTTPConfig `toml:"outbound_http"`
	Cache        *CacheConfig        `toml:"cache"`
	Audit        *AuditConfig        `toml:"audit"`
	Ops          *OpsConfig          `toml:"ops"`
	Logging      *LoggingConfig      `toml:"logging"`
}

// envConfig holds the values read from the environment. The unprefixed
// names are the ones existing deployments already export.
type envConfig struct {
	BotToken         string `env:"BOT_TOKEN"`
	RegistryBaseURL  string `env:"WICHACKS_API_URL"`
	ClientID         string `env:"CLIENT_ID"`
	ClientSecret     string `env:"CLIENT_SECRET"`
	OAuthEndpoint    string `env:"GATEKEEPER_OAUTH_ENDPOINT"`
	OAuthAudience    string `env:"GATEKEEPER_OAUTH_AUDIENCE"`
	GuildID          string `env:"GATEKEEPER_GUILD_ID"`
	WelcomeChannelID string `env:"GATEKEEPER_WELCOME_CHANNEL_ID"`
	SelfUserID       string `env:"GATEKEEPER_SELF_ID"`
	AckEmoji         string `env:"GATEKEEPER_ACK_EMOJI"`
	ElevatedRole     string `env:"GATEKEEPER_ELEVATED_ROLE"`
	RestrictedRole   string `env:"GATEKEEPER_RESTRICTED_ROLE"`
	CacheDriver      string `env:"GATEKEEPER_CACHE_DRIVER"`
	AuditDriver      string `env:"GATEKEEPER_AUDIT_DRIVER"`
	LogLevel         string `env:"GATEKEEPER_LOG_LEVEL"`
}

// Load loads configuration with the following precedence:
//  1. Determine effective mode: --mode flag > mode in config file > default (strict)
//  2. Start from mode preset defaults
//  3. Overlay TOML config file values
//  4. Overlay environment variables
//  5. Overlay CLI flags
//  6. Validate enums and required values
//
// A missing or invalid config file is an error. Unknown TOML keys produce
// a warning but do not fail the load.
func Load(opts LoaderOptions) (*Config, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var fc fileConfig
	var md toml.MetaData

	if opts.ConfigPath != "" {
		data, err := os.ReadFile(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigPath, err)
		}
		md, err = toml.Decode(string(data), &fc)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", opts.ConfigPath, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			logger.Warn("config file contains undecoded keys", "path", opts.ConfigPath, "keys", keys)
		}
	}

	modeStr := "strict"
	if fc.Mode != "" {
		modeStr = fc.Mode
	}
	if opts.ModeFlag != "" {
		modeStr = opts.ModeFlag
	}
	mode, err := ParseMode(modeStr)
	if err != nil {
		return nil, err
	}

	cfg := presetForMode(mode)
	overlayFileConfig(cfg, &fc, md)

	var ec envConfig
	envOpts := env.Options{}
	if opts.Environment != nil {
		envOpts.Environment = opts.Environment
	}
	if err := env.ParseWithOptions(&ec, envOpts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	overlayEnv(cfg, &ec)

	overlayFlags(cfg, opts.FlagOverrides)

	if err := validateEnums(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func presetForMode(mode Mode) *Config {
	if mode == ModeDev {
		return DevConfig()
	}
	return StrictConfig()
}

// StrictConfig returns production defaults.
func StrictConfig() *Config {
	return &Config{
		Mode: string(ModeStrict),
		Discord: DiscordConfig{
			AckEmoji:        "\U0001F44D",
			ElevatedRole:    "hacker",
			RestrictedRole:  "unregistered",
			NoticeText:      DefaultNoticeText,
			CommandPrefix:   "-",
			EventTimeoutMS:  30000,
			QueueSize:       64,
			DebounceSeconds: 10,
		},
		Registry: RegistryConfig{
			MaxRefreshes: 1,
		},
		OAuth: OAuthConfig{
			Endpoint:  "https://wichacks.us.auth0.com/oauth/token",
			Audience:  "wichacks.io",
			GrantType: "client_credentials",
		},
		OutboundHTTP: OutboundHTTPConfig{
			TimeoutMS:        10000,
			ConnectTimeoutMS: 2000,
			MaxResponseBytes: 1048576,
		},
		Cache: CacheConfig{
			Driver: "memory",
		},
		Audit: AuditConfig{
			Driver: "sqlite",
			Drivers: map[string]any{
				"sqlite": map[string]any{"data_dir": ".gatekeeper"},
			},
		},
		Ops: OpsConfig{
			ListenAddr: ":9300",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DevConfig returns development defaults.
func DevConfig() *Config {
	cfg := StrictConfig()
	cfg.Mode = string(ModeDev)
	cfg.Discord.DebounceSeconds = 0
	cfg.Audit.Driver = "memory"
	cfg.Audit.Drivers = nil
	cfg.Logging.Level = "debug"
	return cfg
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// overlayFileConfig applies TOML file values onto cfg.
func overlayFileConfig(cfg *Config, fc *fileConfig, md toml.MetaData) {
	if d := fc.Discord; d != nil {
		setString(&cfg.Discord.Token, d.Token)
		setString(&cfg.Discord.GuildID, d.GuildID)
		setString(&cfg.Discord.WelcomeChannelID, d.WelcomeChannelID)
		setString(&cfg.Discord.SelfUserID, d.SelfUserID)
		setString(&cfg.Discord.AckEmoji, d.AckEmoji)
		setString(&cfg.Discord.ElevatedRole, d.ElevatedRole)
		setString(&cfg.Discord.RestrictedRole, d.RestrictedRole)
		setString(&cfg.Discord.NoticeText, d.NoticeText)
		setString(&cfg.Discord.CommandPrefix, d.CommandPrefix)
		setInt(&cfg.Discord.EventTimeoutMS, d.EventTimeoutMS)
		setInt(&cfg.Discord.QueueSize, d.QueueSize)
		if md.IsDefined("discord", "debounce_seconds") {
			cfg.Discord.DebounceSeconds = d.DebounceSeconds
		}
	}

	if r := fc.Registry; r != nil {
		setString(&cfg.Registry.BaseURL, r.BaseURL)
		setInt(&cfg.Registry.MaxRefreshes, r.MaxRefreshes)
	}

	if o := fc.OAuth; o != nil {
		setString(&cfg.OAuth.Endpoint, o.Endpoint)
		setString(&cfg.OAuth.ClientID, o.ClientID)
		setString(&cfg.OAuth.ClientSecret, o.ClientSecret)
		setString(&cfg.OAuth.Audience, o.Audience)
		setString(&cfg.OAuth.GrantType, o.GrantType)
	}

	if h := fc.OutboundHTTP; h != nil {
		setInt(&cfg.OutboundHTTP.TimeoutMS, h.TimeoutMS)
		setInt(&cfg.OutboundHTTP.ConnectTimeoutMS, h.ConnectTimeoutMS)
		if h.MaxResponseBytes != 0 {
			cfg.OutboundHTTP.MaxResponseBytes = h.MaxResponseBytes
		}
		if md.IsDefined("outbound_http", "insecure_skip_verify") {
			cfg.OutboundHTTP.InsecureSkipVerify = h.InsecureSkipVerify
		}
	}

	if c := fc.Cache; c != nil {
		setString(&cfg.Cache.Driver, c.Driver)
		if len(c.Drivers) > 0 {
			cfg.Cache.Drivers = c.Drivers
		}
	}

	if a := fc.Audit; a != nil {
		setString(&cfg.Audit.Driver, a.Driver)
		if len(a.Drivers) > 0 {
			cfg.Audit.Drivers = a.Drivers
		}
	}

	if o := fc.Ops; o != nil {
		// An explicit empty listen_addr disables the listener.
		if md.IsDefined("ops", "listen_addr") {
			cfg.Ops.ListenAddr = o.ListenAddr
		}
	}

	if l := fc.Logging; l != nil {
		setString(&cfg.Logging.Level, l.Level)
		if md.IsDefined("logging", "allow_sensitive") {
			cfg.Logging.AllowSensitive = l.AllowSensitive
		}
	}
}

// overlayEnv applies environment values onto cfg.
func overlayEnv(cfg *Config, ec *envConfig) {
	setString(&cfg.Discord.Token, ec.BotToken)
	setString(&cfg.Registry.BaseURL, ec.RegistryBaseURL)
	setString(&cfg.OAuth.ClientID, ec.ClientID)
	setString(&cfg.OAuth.ClientSecret, ec.ClientSecret)
	setString(&cfg.OAuth.Endpoint, ec.OAuthEndpoint)
	setString(&cfg.OAuth.Audience, ec.OAuthAudience)
	setString(&cfg.Discord.GuildID, ec.GuildID)
	setString(&cfg.Discord.WelcomeChannelID, ec.WelcomeChannelID)
	setString(&cfg.Discord.SelfUserID, ec.SelfUserID)
	setString(&cfg.Discord.AckEmoji, ec.AckEmoji)
	setString(&cfg.Discord.ElevatedRole, ec.ElevatedRole)
	setString(&cfg.Discord.RestrictedRole, ec.RestrictedRole)
	setString(&cfg.Cache.Driver, ec.CacheDriver)
	setString(&cfg.Audit.Driver, ec.AuditDriver)
	setString(&cfg.Logging.Level, ec.LogLevel)
}

// overlayFlags applies CLI flag overrides onto cfg.
func overlayFlags(cfg *Config, f FlagOverrides) {
	if f.GuildID != nil {
		setString(&cfg.Discord.GuildID, *f.GuildID)
	}
	if f.WelcomeChannelID != nil {
		setString(&cfg.Discord.WelcomeChannelID, *f.WelcomeChannelID)
	}
	if f.RegistryBaseURL != nil {
		setString(&cfg.Registry.BaseURL, *f.RegistryBaseURL)
	}
	if f.OpsListenAddr != nil {
		setString(&cfg.Ops.ListenAddr, *f.OpsListenAddr)
	}
	if f.LoggingLevel != nil {
		setString(&cfg.Logging.Level, *f.LoggingLevel)
	}
}

func validateEnums(cfg *Config) error {
	switch cfg.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q: must be one of trace, debug, info, warn, error", cfg.Logging.Level)
	}
	switch cfg.Cache.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid cache.driver %q: must be memory or redis", cfg.Cache.Driver)
	}
	switch cfg.Audit.Driver {
	case "off", "memory", "sqlite", "mirror":
	default:
		return fmt.Errorf("invalid audit.driver %q: must be off, memory, sqlite or mirror", cfg.Audit.Driver)
	}
	if cfg.Registry.MaxRefreshes < 1 {
		return fmt.Errorf("registry.max_refreshes must be at least 1, got %d", cfg.Registry.MaxRefreshes)
	}
	if cfg.Discord.DebounceSeconds < 0 {
		return fmt.Errorf("discord.debounce_seconds must not be negative")
	}
	for key, value := range map[string]string{
		"oauth.endpoint":    cfg.OAuth.Endpoint,
		"registry.base_url": cfg.Registry.BaseURL,
	} {
		// Empty values are reported by Validate as missing.
		if value == "" {
			continue
		}
		if u, err := url.Parse(value); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid %s %q: must be an absolute URL", key, value)
		}
	}
	return nil
}
