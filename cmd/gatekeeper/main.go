// Package main is the entrypoint for the gatekeeper bot.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MahdiBaghbani/gatekeeper/internal/components/commands"
	"github.com/MahdiBaghbani/gatekeeper/internal/components/discord"
	"github.com/MahdiBaghbani/gatekeeper/internal/components/gate"
	"github.com/MahdiBaghbani/gatekeeper/internal/components/gate/promotion"
	"github.com/MahdiBaghbani/gatekeeper/internal/components/gate/startup"
	"github.com/MahdiBaghbani/gatekeeper/internal/components/registry"
	"github.com/MahdiBaghbani/gatekeeper/internal/components/registry/token"
	"github.com/MahdiBaghbani/gatekeeper/internal/platform/cache"
	"github.com/MahdiBaghbani/gatekeeper/internal/platform/config"
	httpclient "github.com/MahdiBaghbani/gatekeeper/internal/platform/http/client"
	"github.com/MahdiBaghbani/gatekeeper/internal/platform/logutil"
	"github.com/MahdiBaghbani/gatekeeper/internal/platform/metrics"
	"github.com/MahdiBaghbani/gatekeeper/internal/platform/server"
	"github.com/MahdiBaghbani/gatekeeper/internal/platform/store"

	// Register cache drivers
	_ "github.com/MahdiBaghbani/gatekeeper/internal/platform/cache/loader"
	// Register audit drivers
	_ "github.com/MahdiBaghbani/gatekeeper/internal/platform/store/memory"
	_ "github.com/MahdiBaghbani/gatekeeper/internal/platform/store/mirror"
	_ "github.com/MahdiBaghbani/gatekeeper/internal/platform/store/sqlite"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "Path to TOML config file (optional)")
	modeFlag := flag.String("mode", "", "Operating mode: strict or dev (overrides config)")
	guildID := flag.String("guild-id", "", "Guild to protect (overrides config)")
	welcomeChannelID := flag.String("welcome-channel-id", "", "Channel for the gating notice (overrides config)")
	registryBaseURL := flag.String("registry-base-url", "", "Registry base URL (overrides config)")
	opsListen := flag.String("ops-listen", "", "Ops listen address, empty to disable (overrides config)")
	loggingLevel := flag.String("logging-level", "", "Log level: trace, debug, info, warn, error (overrides config)")
	flag.Parse()

	// Bootstrap logger for config loading errors (uses default level)
	bootstrapLogger := logutil.New(os.Stdout, "info")

	cfg, err := config.Load(config.LoaderOptions{
		ConfigPath: *configPath,
		ModeFlag:   *modeFlag,
		FlagOverrides: config.FlagOverrides{
			GuildID:          guildID,
			WelcomeChannelID: welcomeChannelID,
			RegistryBaseURL:  registryBaseURL,
			OpsListenAddr:    opsListen,
			LoggingLevel:     loggingLevel,
		},
		Logger: bootstrapLogger,
	})
	if err != nil {
		bootstrapLogger.Error("failed to load config", "error", err)
		return 1
	}

	logger := logutil.New(os.Stdout, cfg.Logging.Level)
	slog.SetDefault(logger)
	logger.Info("effective configuration", "config", cfg.Redacted())

	m := metrics.New()

	// Outbound HTTP for the token exchange and the registry
	rawHTTPClient := httpclient.New(&cfg.OutboundHTTP)
	httpClient := httpclient.NewContextClient(rawHTTPClient)

	tokenSettings := token.Settings{
		Endpoint:     cfg.OAuth.Endpoint,
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		Audience:     cfg.OAuth.Audience,
		GrantType:    cfg.OAuth.GrantType,
	}
	tokenSettings.ApplyDefaults()
	if err := tokenSettings.Validate(); err != nil {
		logger.Error("invalid oauth settings", "error", err)
		return 1
	}
	tokens := token.NewManager(httpClient, tokenSettings, logger,
		token.WithMetrics(m),
		token.WithMaxResponseBytes(rawHTTPClient.MaxResponseBytes()),
	)

	registryClient := registry.NewClient(httpClient, cfg.Registry.BaseURL, tokens, cfg.Registry.MaxRefreshes, logger, m,
		registry.WithMaxResponseBytes(rawHTTPClient.MaxResponseBytes()),
	)

	// Debounce counter, only when a window is configured
	var debounce cache.Counter
	if cfg.Discord.DebounceSeconds > 0 {
		debounce, err = cache.NewFromConfig(cfg.Cache.Driver, cfg.Cache.Drivers, logger)
		if err != nil {
			logger.Error("failed to create cache", "driver", cfg.Cache.Driver, "error", err)
			return 1
		}
		defer debounce.Close()
	}

	// Audit ledger
	var audit store.Driver
	if cfg.Audit.Driver != "off" {
		audit, err = store.New(cfg.Audit.Driver, cfg.Audit.Drivers)
		if err != nil {
			logger.Error("failed to create audit store", "driver", cfg.Audit.Driver, "error", err)
			return 1
		}
		if err := audit.Init(context.Background()); err != nil {
			logger.Error("failed to initialize audit store", "driver", audit.Name(), "error", err)
			return 1
		}
		defer audit.Close()
		logger.Info("audit store ready", "driver", audit.Name())
	}

	session, err := discord.NewSession(cfg.Discord.Token, logger)
	if err != nil {
		logger.Error("failed to create discord session", "error", err)
		return 1
	}

	var (
		notice gate.Notice
		roles  promotion.Roles
	)

	promoteOpts := []promotion.Option{promotion.WithMetrics(m), promotion.WithLogger(logger)}
	if audit != nil {
		promoteOpts = append(promoteOpts, promotion.WithAudit(audit))
	}
	workflow := promotion.New(registryClient, session, &roles, promoteOpts...)

	sequencer := startup.New(startup.Config{
		GuildID:           cfg.Discord.GuildID,
		WelcomeChannelID:  cfg.Discord.WelcomeChannelID,
		ElevatedPattern:   cfg.Discord.ElevatedRole,
		RestrictedPattern: cfg.Discord.RestrictedRole,
		NoticeText:        cfg.Discord.NoticeText,
		AckEmoji:          cfg.Discord.AckEmoji,
	}, registryClient, tokens, session, &notice, &roles, logger)

	// Startup failures end the process
	fatal := make(chan error, 1)
	onFatal := func(err error) {
		select {
		case fatal <- err:
		default:
		}
	}

	controllerOpts := []gate.Option{
		gate.WithStartup(sequencer, onFatal),
		gate.WithCommands(commands.NewRouter(cfg.Discord.CommandPrefix, session, logger)),
		gate.WithLogger(logger),
		gate.WithMetrics(m),
	}
	if debounce != nil {
		controllerOpts = append(controllerOpts, gate.WithDebounce(debounce))
	}
	controller := gate.NewController(gate.Config{
		GuildID:        cfg.Discord.GuildID,
		SelfID:         cfg.Discord.SelfUserID,
		AckEmoji:       cfg.Discord.AckEmoji,
		DebounceWindow: time.Duration(cfg.Discord.DebounceSeconds) * time.Second,
	}, &notice, workflow, controllerOpts...)

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dispatcher := discord.NewDispatcher(controller, cfg.Discord.QueueSize,
		time.Duration(cfg.Discord.EventTimeoutMS)*time.Millisecond, logger, m)
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	var ops *server.Server
	if cfg.Ops.ListenAddr != "" {
		ops = server.New(cfg.Ops, logger, notice.Posted, m.Handler())
		go func() {
			if err := ops.Start(); err != nil {
				onFatal(err)
			}
		}()
	}

	if err := session.Open(dispatcher); err != nil {
		logger.Error("failed to open discord session", "error", err)
		return 1
	}
	logger.Info("gatekeeper started, press Ctrl+C to stop")

	code := 0
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-fatal:
		logger.Error("fatal error, shutting down", "error", err)
		code = 1
	}

	if err := session.Close(); err != nil {
		logger.Warn("failed to close discord session", "error", err)
	}

	if ops != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := ops.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
			code = 1
		}
	}

	logger.Info("gatekeeper stopped")
	return code
}
