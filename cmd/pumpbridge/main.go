// pumpbridge bridges Jebao/Gizwits BLE aquarium wave-pumps to MQTT, with
// Home Assistant auto-discovery.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wavepump/pumpbridge/internal/api/rest"
	"github.com/wavepump/pumpbridge/internal/api/ws"
	"github.com/wavepump/pumpbridge/internal/ble"
	"github.com/wavepump/pumpbridge/internal/broker"
	"github.com/wavepump/pumpbridge/internal/config"
	"github.com/wavepump/pumpbridge/internal/logger"
	"github.com/wavepump/pumpbridge/internal/pump"
	"github.com/wavepump/pumpbridge/internal/supervisor"
)

var (
	version   = "0.1.0"
	buildTime = "dev"
	gitCommit = "unknown"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:     "pumpbridge",
		Short:   "Bridge Jebao/Gizwits BLE wave-pumps to MQTT",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildTime),
	}
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./config.yaml)")

	rootCmd.AddCommand(
		newStartCmd(),
		newStatusCmd(),
		newScanCmd(),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Load the configuration and run the bridge until SIGINT/SIGTERM",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart()
		},
	}
}

func runStart() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		if errors.Is(err, config.ErrConfigMissing) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
		File:   cfg.Logging.File,
	})
	slog := log.Logger

	pumpIDs := make([]string, len(cfg.Pumps))
	for i, p := range cfg.Pumps {
		pumpIDs[i] = p.ID
	}

	linkFactory := func(pc pump.Config) pump.Link {
		return ble.NewLink(pc.MAC, 10*time.Second)
	}

	var sv *supervisor.Supervisor
	brokerAdapter := broker.New(cfg.Broker, pumpIDs, dispatcherFunc(func(pumpID, entity, payload string) {
		sv.Dispatch(pumpID, entity, payload)
	}), slog)

	sv = supervisor.New(cfg.Pumps, linkFactory, brokerAdapter, slog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slog.Info("starting pumpbridge", "pumps", len(cfg.Pumps))
	if err := sv.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var restServer *rest.Server
	var wsServer *ws.Server
	if cfg.API.Enabled {
		wsServer = ws.NewServer(slog)
		sv.AddSink(wsServer)

		restServer = rest.NewServer(sv, rest.Config{
			Port:        cfg.API.Port,
			AuthEnabled: cfg.API.Auth.Enabled,
			JWTSecret:   cfg.API.Auth.JWTSecret,
			APIKeys:     cfg.API.Auth.APIKeys,
		}, wsServer, slog)
		if err := restServer.Start(); err != nil {
			return fmt.Errorf("start status api: %w", err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down")
	if restServer != nil {
		_ = restServer.Stop(context.Background())
	}
	sv.Stop()
	slog.Info("stopped")
	return nil
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show bridge status",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("pumpbridge is not running in this process.")
			fmt.Println("Use 'pumpbridge start' to run it, or query GET /api/v1/status if the status API is enabled.")
			return nil
		},
	}
}

func newScanCmd() *cobra.Command {
	var duration time.Duration
	var showAll bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for nearby BLE wave-pumps",
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := ble.Scan(duration)
			if err != nil {
				return err
			}
			ble.PrintReport(os.Stdout, results, showAll)
			return nil
		},
	}
	cmd.Flags().DurationVarP(&duration, "duration", "d", 8*time.Second, "how long to scan for")
	cmd.Flags().BoolVar(&showAll, "all", false, "also list non-pump BLE devices seen during the scan")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pumpbridge %s\n", version)
			fmt.Printf("  Commit: %s\n", gitCommit)
			fmt.Printf("  Built:  %s\n", buildTime)
		},
	}
}

type dispatcherFunc func(pumpID, entity, payload string)

func (f dispatcherFunc) Dispatch(pumpID, entity, payload string) { f(pumpID, entity, payload) }
