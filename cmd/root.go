package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ozinsight/ozcheck/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "ozcheck",
	Short: "Opportunity Zone dataset builder and checker",
	Long: "Builds compact Opportunity Zone geometry and lookup datasets from the public ArcGIS layer, " +
		"and checks whether addresses or coordinates fall inside a designated zone.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
