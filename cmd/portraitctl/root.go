package main

import (
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"portraitgen/internal/apiclient"
	"portraitgen/internal/infra"
)

type rootOptions struct {
	BaseURL string
	Timeout time.Duration
	Verbose bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "portraitctl",
		Short:         "Drive portrait generation runs against the API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.BaseURL, "api", envOr("PORTRAIT_API_URL", "http://localhost:8080"), "API base URL")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 2*time.Minute, "per-request timeout")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(newGenerateCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))
	cmd.AddCommand(newCleanupCommand(opts))
	return cmd
}

func (o *rootOptions) client() *apiclient.Client {
	return apiclient.New(o.BaseURL, &http.Client{Timeout: o.Timeout})
}

func (o *rootOptions) logger() infra.Logger {
	level := zerolog.InfoLevel
	if o.Verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).With().Timestamp().Logger()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
