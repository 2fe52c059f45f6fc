// Command web serves the allocation HTTP API, the live filter WebSocket and
// the Prometheus scrape endpoint.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"allocator/internal/app"
	"allocator/internal/config"
	"allocator/pkg/contracts"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("server stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configFile string
		port       int
	)

	cmd := &cobra.Command{
		Use:           "web",
		Short:         "Serve the allocation revise API",
		Version:       contracts.ReadBuildInfo().String(),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				os.Setenv(config.EnvPrefix+"_CONFIG_FILE", configFile)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				if port <= 0 || port > 65535 {
					return fmt.Errorf("invalid server port: %d", port)
				}
				cfg.Server.Port = port
			}

			application, err := app.NewApplication(cfg)
			if err != nil {
				return err
			}
			return application.Run()
		},
	}
	cmd.SetVersionTemplate("{{.Version}}\n")
	cmd.Flags().StringVar(&configFile, "config", "", "YAML config file (overrides "+config.EnvPrefix+"_CONFIG_FILE)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides the configured port)")
	return cmd
}
