package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/foundryup/internal/binary"
)

func newCacheCmd(a *app) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the binary cache",
		Args:  cobra.NoArgs,
	}

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "clean",
		Short: "Remove every cached release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := a.settings.CacheRoot()
			if err != nil {
				return err
			}
			if err := binary.CleanCache(root); err != nil {
				return err
			}
			a.log.WithField("path", root).Info("Cache cleaned")
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", root)
			return nil
		},
	})

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "dir",
		Short: "Print the cache directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := a.settings.CacheRoot()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), root)
			return nil
		},
	})

	return cacheCmd
}
