// Package cmd defines the forwarder's root command.
package cmd

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/chainhook/forwarder/internal/auth"
	"github.com/chainhook/forwarder/internal/config"
	"github.com/chainhook/forwarder/internal/constants"
	"github.com/chainhook/forwarder/internal/dedup"
	"github.com/chainhook/forwarder/internal/eventdb"
	"github.com/chainhook/forwarder/internal/logging"
	"github.com/chainhook/forwarder/internal/metrics"
	"github.com/chainhook/forwarder/internal/process"
	"github.com/chainhook/forwarder/internal/server"
)

// knownProviders are the webhook providers this deployment accepts callbacks from.
// Alchemy is the only provider the spec names; the list exists so config can
// grow to other providers without touching the intake handler.
var knownProviders = []string{"alchemy"}

var (
	logLevel     string
	port         string
	databaseURL  string
	enableAuth   bool
	allowedIPs   string
	configPath   string
	runMigration bool
	strictAuth   bool
)

// New returns the root command of the forwarder.
func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "forwarder",
		Short:   "Receives, authenticates, deduplicates, and stores blockchain provider webhook callbacks.",
		Args:    cobra.NoArgs,
		Version: constants.Version(),
		RunE:    run,
	}

	cmd.Flags().StringVarP(&logLevel, logging.Flag, logging.FlagShorthand, logging.DefaultFlagValue, logging.FlagInfo)
	cmd.Flags().StringVar(&port, "port", constants.DefaultPort, "The port on which the forwarder listens for incoming webhooks.")
	cmd.Flags().StringVar(&databaseURL, "database-url", "", "Postgres DSN for the event store. Overrides DATABASE_URL/the config file if set.")
	cmd.Flags().BoolVar(&enableAuth, "enable-auth", false, "Require a valid HMAC signature on incoming webhooks. Overrides ENABLE_AUTH if set.")
	cmd.Flags().StringVar(&allowedIPs, "allowed-ips", "", "Comma-separated list of source addresses allowed to call the intake endpoint.")
	cmd.Flags().StringVar(&configPath, "config", "", "Path to an optional YAML config file.")
	cmd.Flags().BoolVar(&runMigration, "run-migrations", false, "Run AutoMigrate against the event store before serving.")
	cmd.Flags().BoolVar(&strictAuth, "strict-webhook-auth", false, "Reserved for a future hard-fail authentication mode. Not currently enforced.")
	must(cmd.Flags().MarkHidden("strict-webhook-auth"))

	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	log := logging.NewLogger(logLevel)
	log.Info("callback forwarder", "version", constants.Version())

	cfg, err := config.Load(afero.NewOsFs(), configPath, knownProviders)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if cmd.Flags().Changed("database-url") {
		cfg.DatabaseURL = databaseURL
	}
	if cmd.Flags().Changed("enable-auth") {
		cfg.EnableAuth = enableAuth
	}
	if cmd.Flags().Changed("run-migrations") {
		cfg.RunMigrationsOnStartup = runMigration
	}
	if cmd.Flags().Changed("strict-webhook-auth") {
		cfg.StrictWebhookAuth = strictAuth
	}
	if allowedIPs != "" {
		cfg.AllowedAddresses, err = parseAllowedIPs(allowedIPs)
		if err != nil {
			return fmt.Errorf("parsing --allowed-ips: %w", err)
		}
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("no database URL configured: set %s, the config file, or --database-url", constants.EnvDatabaseURL)
	}

	ctx := cmd.Context()

	store, err := eventdb.New(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return fmt.Errorf("connecting to event store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("closing event store", "error", err)
		}
	}()

	if cfg.RunMigrationsOnStartup {
		log.Info("running migrations")
		if err := store.AutoMigrate(ctx); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
	}

	authenticator := auth.New(cfg.EnableAuth, func(provider string) (string, bool) {
		secret, ok := cfg.ProviderSecrets[provider]
		return secret, ok
	}, cfg.AllowedAddresses)
	deduplicator := dedup.New(store, dedup.DefaultTTL)
	defer deduplicator.Close()

	srv := server.New(authenticator, deduplicator, store, metrics.New(), log)

	listener, err := net.Listen("tcp", net.JoinHostPort("", port))
	if err != nil {
		return fmt.Errorf("listening on port %q: %w", port, err)
	}

	httpServer := &http.Server{Addr: listener.Addr().String(), Handler: srv.Handler()}
	return process.HTTPServeContext(ctx, httpServer, listener, log)
}

func parseAllowedIPs(s string) ([]netip.Addr, error) {
	var addrs []netip.Addr
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		addr, err := netip.ParseAddr(p)
		if err != nil {
			return nil, fmt.Errorf("invalid IP address %q: %w", p, err)
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
