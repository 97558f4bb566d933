/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/readshelf/apiserver/config"
	"github.com/readshelf/apiserver/internal/logger"
	"github.com/readshelf/apiserver/internal/mq"
	"github.com/spf13/cobra"
)

var eventsChannel string

// eventsCmd represents the events command
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Logs catalog events from the message queue",
	Long: `Subscribes to the catalog events channel and logs every event until
interrupted. Usage:

	readshelf events
	readshelf events --channel catalog-events
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		log := logger.Get(cfg.LogLevel)
		defer func() { _ = log.Sync() }()

		channel := cfg.MQ.EventsChannel
		if eventsChannel != "" {
			channel = eventsChannel
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		broker, err := mq.NewFromConfig(ctx, cfg.MQ, log)
		if err != nil {
			return err
		}
		if broker != nil {
			defer func() {
				if err := broker.Close(); err != nil {
					log.Warnw("close message queue", "error", err)
				}
			}()
		}

		log.Infow("consuming catalog events", "backend", cfg.MQ.Backend, "channel", channel)
		return mq.ConsumeCatalogEvents(ctx, broker, channel, log)
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)

	eventsCmd.Flags().StringVarP(&eventsChannel, "channel", "c", "", "channel to consume (defaults to CATALOG_EVENTS_CHANNEL)")
}
