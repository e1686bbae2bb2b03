package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/tendant/simple-ocr-gateway/internal/apperr"
	"github.com/tendant/simple-ocr-gateway/internal/client"
)

var (
	gatewayURL string
	apiKey     string
	timeout    time.Duration
	verbose    bool

	logger *slog.Logger
	api    *client.Client
)

var rootCmd = &cobra.Command{
	Use:           "ocrctl",
	Short:         "Submit documents to the OCR gateway and follow their jobs.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if api != nil {
			return nil
		}
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(tint.NewHandler(cmd.ErrOrStderr(), &tint.Options{Level: level, TimeFormat: time.Kitchen}))

		if gatewayURL == "" {
			gatewayURL = envOr("OCR_GATEWAY_URL", "http://127.0.0.1:8080")
		}
		if apiKey == "" {
			apiKey = os.Getenv("GATEWAY_API_KEY")
		}
		c, err := client.New(gatewayURL, apiKey, timeout, logger)
		if err != nil {
			return err
		}
		api = c
		return nil
	},
}

func Execute() error {
	_ = godotenv.Load()
	err := rootCmd.Execute()
	if err != nil {
		printError(rootCmd.ErrOrStderr(), err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&gatewayURL, "gateway", "", "Gateway base URL (default $OCR_GATEWAY_URL or http://127.0.0.1:8080)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Gateway API key (default $GATEWAY_API_KEY)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", client.DefaultTimeout, "Per-request timeout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printError(w io.Writer, err error) {
	var e *apperr.Error
	if !errors.As(err, &e) {
		fmt.Fprintln(w, "error:", err)
		return
	}
	fmt.Fprintf(w, "error: %s: %s\n", e.Code, e.Message)
	for _, v := range e.Details {
		fmt.Fprintf(w, "  %s: %s\n", v.Field, v.Message)
	}
}
