package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/makt28/tgwatch/internal/config"
	"github.com/makt28/tgwatch/internal/logging"
)

// Version is set at build time with -ldflags "-X".
var Version = "dev"

type rootOptions struct {
	configPath string
	envFiles   []string
	cfg        config.Config
}

// NewRootCommand builds the tgwatch command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "tgwatch",
		Short: "Debounced outage monitor for the Telegram service",
		Long: `tgwatch probes the Telegram bot API, a distributed HTTP check and the
public web endpoints, folds the results into a debounced alert state and
notifies Mattermost and Telegram when the service goes down or recovers.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.LoadDotEnv(opts.envFiles...)

			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg

			logging.Setup(cfg.System.LogLevel, cfg.System.LogFormat)
			slog.Debug("config loaded", "path", opts.configPath, "store", cfg.Store.Driver)
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "path to the YAML config file")
	root.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "dotenv files loaded before the config")

	root.AddCommand(
		newServeCommand(opts),
		newTickCommand(opts),
		newStatusCommand(opts),
		newHashPasswordCommand(),
		newVersionCommand(),
	)
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the tgwatch version",
		// Skip config loading.
		PersistentPreRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", bold.Render("tgwatch"), Version)
		},
	}
}
