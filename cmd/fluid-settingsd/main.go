// Command fluid-settingsd runs the settings-replication daemon as a
// single process. It assembles the daemon around internal/localbus,
// an in-process Bus: the real bus transport client connections arrive
// over (the project's snapcommunicator-equivalent) is an external
// collaborator, reachable through the busmsg.Bus interface but not
// implemented here. This binary is the reference Core — the engine,
// the peer-replication listener (a real TCP transport, not abstracted
// away), and the admin HTTP API — ready to be embedded behind
// whatever client-facing bus a deployment actually uses.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fluidsettings/fluid-settingsd/internal/config"
	"github.com/fluidsettings/fluid-settingsd/internal/daemon"
	"github.com/fluidsettings/fluid-settingsd/internal/localbus"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath string
		busPeer    string
		peerAddr   string
		adminAddr  string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "fluid-settingsd",
		Short: "Run the fluid-settings replication daemon",
		Long: `fluid-settingsd holds a node's settings in memory, serves the
client protocol, gossips and replicates with peers, and persists to
disk on a coalescing timer.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadOrDefault(configPath)
			if busPeer != "" {
				cfg.Bus.Peer = busPeer
			}
			if peerAddr != "" {
				cfg.Peer.ListenAddr = peerAddr
			}
			if adminAddr != "" {
				cfg.Admin.ListenAddr = adminAddr
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}

			setupLogging(cfg.Logging.Level, cfg.Logging.Format)
			return run(cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "path to the daemon's YAML configuration file")
	flags.StringVar(&busPeer, "bus-peer", "", "override this daemon's bus peer identifier")
	flags.StringVar(&peerAddr, "peer-addr", "", "override the peer-replication listen address")
	flags.StringVar(&adminAddr, "admin-addr", "", "override the admin HTTP API listen address")
	flags.StringVar(&logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")

	return cmd
}

func setupLogging(level, format string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func run(cfg *config.Config) error {
	bus := localbus.New()

	d, err := daemon.New(cfg, bus)
	if err != nil {
		return fmt.Errorf("fluid-settingsd: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Run(ctx); err != nil {
		return fmt.Errorf("fluid-settingsd: %w", err)
	}
	log.Info().
		Str("instance_id", d.InstanceID()).
		Str("peer_addr", cfg.Peer.ListenAddr).
		Str("admin_addr", cfg.Admin.ListenAddr).
		Msg("fluid-settingsd: ready")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("fluid-settingsd: shutting down")
	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()
	return d.Close(shutdownCtx)
}
