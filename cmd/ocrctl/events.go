package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tendant/simple-ocr-gateway/internal/bus"
)

var (
	eventsNATSURL string
	eventsPrefix  string
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print job lifecycle events published by the gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		url := eventsNATSURL
		if url == "" {
			url = envOr("NATS_URL", "nats://127.0.0.1:4222")
		}
		subjects := bus.NewSubjects(eventsPrefix)

		nc, err := bus.Connect(url)
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		defer nc.Close()

		out := cmd.OutOrStdout()
		sub, err := nc.SubscribeJSON(subjects.All, func(_ context.Context, subject string, data []byte) {
			var event map[string]any
			if err := json.Unmarshal(data, &event); err != nil {
				logger.Warn("undecodable event", "subject", subject, "err", err)
				return
			}
			line, _ := json.Marshal(map[string]any{"subject": subject, "event": event})
			fmt.Fprintln(out, string(line))
		})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", subjects.All, err)
		}
		defer sub.Unsubscribe()
		logger.Info("listening for events", "nats_url", url, "subject", subjects.All)

		ctx, stop := signalContext(cmd.Context())
		defer stop()
		<-ctx.Done()
		return nil
	},
}

func init() {
	eventsCmd.Flags().StringVar(&eventsNATSURL, "nats-url", "", "NATS server (default $NATS_URL or nats://127.0.0.1:4222)")
	eventsCmd.Flags().StringVar(&eventsPrefix, "prefix", envOr("NATS_SUBJECT_PREFIX", "ocr.jobs"), "Event subject prefix")
	rootCmd.AddCommand(eventsCmd)
}
