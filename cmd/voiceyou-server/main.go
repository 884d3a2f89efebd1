package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rojolang/voiceyou-sdk-go/pkg/voiceserver"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	var port int

	rootCmd := &cobra.Command{
		Use:          "voiceyou-server",
		Short:        "VoiceYou upload service",
		Long:         "Accepts recorded voice notes over HTTP and stores them in an S3 bucket",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := voiceserver.LoadSettings()
			if cmd.Flags().Changed("port") {
				settings.Port = port
			}

			logger := newLogger(settings.Debug)
			if err := settings.Validate(); err != nil {
				logger.Error().Err(err).Msg("Invalid settings")
				return err
			}

			store, err := voiceserver.NewS3Store(settings)
			if err != nil {
				logger.Error().Err(err).Msg("Failed to create S3 client")
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info().
				Str("bucket", settings.S3BucketName).
				Str("region", settings.AWSRegion).
				Str("version", settings.AppVersion).
				Msg("Starting upload service")
			return voiceserver.New(settings, store, logger).Run(ctx)
		},
	}

	rootCmd.Flags().IntVarP(&port, "port", "p", 3000, "Port to listen on (overrides PORT)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(debug bool) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	if debug {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			Level(zerolog.DebugLevel).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).Level(zerolog.InfoLevel).With().Timestamp().Logger()
}
