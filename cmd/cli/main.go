package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/absmach/cohort"
	"github.com/absmach/cohort/cli"
	"github.com/absmach/cohort/pkg/events"
	"github.com/absmach/cohort/pkg/mqtt"
	"github.com/absmach/cohort/pkg/sdk"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	var (
		cfgPath string
		nodeURL string
	)

	rootCmd := &cobra.Command{
		Use:   "cohort-cli",
		Short: "Cohort CLI",
		Long:  `Cohort CLI is a command line interface for operating a cohort cluster through any of its nodes.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg := cohort.DefaultConfig()
			if cfgPath != "" {
				loaded, err := cohort.LoadConfig(cfgPath)
				if err != nil {
					return err
				}
				cfg = *loaded
			}
			if cmd.Flags().Changed("node-url") {
				cfg.Node.URL = nodeURL
			}

			cli.SetSDK(sdk.NewSDK(sdk.Config{
				NodeURL:         cfg.Node.URL,
				TLSVerification: cfg.Node.TLSVerification,
				Timeout:         cfg.Node.Timeout,
			}))
			cli.SetWatcher(watcher(cfg.MQTT))

			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Path to a TOML config file")
	rootCmd.PersistentFlags().StringVarP(&nodeURL, "node-url", "u", cohort.DefaultConfig().Node.URL, "Node URL")

	rootCmd.AddCommand(
		cli.NewNodesCmd(),
		cli.NewTasksCmd(),
		cli.NewRoundsCmd(),
		cli.NewEventsCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatal(err)
	}
}

// watcher connects to the broker only when a command follows events.
func watcher(cfg cohort.MQTTConfig) cli.Watcher {
	return func(ctx context.Context, fn func(events.Event) error, kinds ...events.Kind) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		id := "cohort-cli-" + uuid.NewString()

		pubsub, err := mqtt.NewPubSub(cfg.Address, cfg.QoS, id, cfg.Username, cfg.Password, "", cfg.Timeout, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := pubsub.Disconnect(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("failed to disconnect from MQTT broker", slog.Any("error", err))
			}
		}()

		return events.Watch(ctx, pubsub, cfg.Prefix, fn, kinds...)
	}
}
