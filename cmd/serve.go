package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ozinsight/ozcheck/internal/api"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the zone checker HTTP API",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		return cfg.Validate("serve")
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		c, breakers, closeFn, err := newChecker()
		if err != nil {
			return err
		}
		defer closeFn()

		return api.NewServer(c, breakers, api.Config{
			Port:           cfg.Server.Port,
			CORSOrigins:    cfg.Server.CORSOrigins,
			RequestTimeout: cfg.Server.RequestTimeout,
		}).Run(ctx)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
