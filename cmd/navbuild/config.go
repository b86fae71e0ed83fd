package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Faultbox/midgard-nav/internal/config"
)

func (a *app) ConfigCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "config",
		Short: "manage the configuration file",
	}
	c.AddCommand(&cobra.Command{
		Use:   "init [PATH]",
		Short: "write the default configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if len(args) == 0 {
				if err := cfg.Save(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s/config.yaml\n", config.ConfigDir())
				return nil
			}
			if err := cfg.SaveTo(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
			return nil
		},
	})
	return c
}
