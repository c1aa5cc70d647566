package main

import (
	"github.com/spf13/cobra"

	"github.com/silolab/avalanche/internal/app"
	"github.com/silolab/avalanche/internal/log"
	"github.com/silolab/avalanche/pkg/config"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored results over HTTP",
		Long: `Serve the latest stored batch read-only under /api and the process
metrics under /metrics until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("db") {
				cfg.Storage.SQLitePath, _ = cmd.Flags().GetString("db")
			}
			if cmd.Flags().Changed("listen") {
				cfg.Server.ListenAddr, _ = cmd.Flags().GetString("listen")
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port, _ = cmd.Flags().GetInt("port")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			return app.New(config.NewStaticProvider(cfg), log.GetSugaredLogger()).Run(cmd.Context())
		},
	}

	cmd.Flags().String("db", "", "Results database written by analyze --db")
	cmd.Flags().String("listen", "", "Listen address (default all interfaces)")
	cmd.Flags().Int("port", 8080, "HTTP port")
	return cmd
}
