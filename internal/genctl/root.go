// Package genctl implements the command line client: it drives generation
// jobs against a running bridge and mirrors what a plugin front-end would do.
package genctl

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"genbridge/internal/client"
	"genbridge/internal/config"
)

// app carries the pieces every subcommand needs.
type app struct {
	cfg *config.Config
	log zerolog.Logger
}

func (a *app) client() *client.Client {
	return client.New(a.cfg.BridgeURL)
}

// Execute runs the CLI and returns the command error, if any.
func Execute() error {
	a := &app{log: zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel).With().Timestamp().Logger()}

	root := &cobra.Command{
		Use:           "genctl",
		Short:         "Drive image generation jobs against a bridge",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var configPath string
	var bridgeURL string
	var debug bool
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("GENBRIDGE_CONFIG"), "Path to config file (json/yaml/toml)")
	root.PersistentFlags().StringVar(&bridgeURL, "bridge-url", "", "Bridge base URL (overrides config)")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level := zerolog.WarnLevel
		if debug {
			level = zerolog.DebugLevel
		}
		a.log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

		cfg := config.Config{}
		if configPath != "" {
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
		}
		cfg.ApplyDefaults()
		if bridgeURL != "" {
			cfg.BridgeURL = bridgeURL
		}
		a.cfg = &cfg
		return nil
	}

	root.AddCommand(
		newGenerateCmd(a),
		newUpscaleCmd(a),
		newStylesCmd(a),
		newStatusCmd(a),
		newConnectCmd(a),
		newCancelCmd(a),
		newHistoryCmd(a),
	)

	err := root.Execute()
	if err != nil {
		a.log.Error().Err(err).Msg("command failed")
	}
	return err
}
