package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the geocode result cache",
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete cached geocode results older than cache.ttl_days",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := openCache(cmd.Context())
		if err != nil {
			return err
		}
		if c == nil {
			return eris.New("cache.driver is none; nothing to purge")
		}
		defer c.Close() //nolint:errcheck

		n, err := c.Purge(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Purged %d cached geocode results\n", n)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cachePurgeCmd)
	rootCmd.AddCommand(cacheCmd)
}
