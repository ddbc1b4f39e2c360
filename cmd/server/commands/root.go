// Package commands implements the matchd command line.
package commands

import (
	"mpc_match/internal/config"
	"mpc_match/internal/utils/log"

	"github.com/spf13/cobra"
)

var (
	configPath string
	cfg        *config.Config
)

func Execute() error {
	root := &cobra.Command{
		Use:           "matchd",
		Short:         "Private profile matching over three-party proving sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.Load(configPath); err != nil {
				return err
			}
			return log.Init(cfg.Log.Level, cfg.Log.Development)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			log.Sync()
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (defaults apply when empty)")

	root.AddCommand(serveCmd(), matchCmd(), splitCmd())
	return root.Execute()
}
