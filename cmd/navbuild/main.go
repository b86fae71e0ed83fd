// navbuild turns source terrain, models and placements into navigation
// artifacts: model BVHs, per-tile navmesh fragments and map indexes.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/Faultbox/midgard-nav/internal/cli"
	"github.com/Faultbox/midgard-nav/internal/config"
	"github.com/Faultbox/midgard-nav/internal/logger"
)

// app carries the resolved configuration to the subcommands.
type app struct {
	overrides config.Overrides
	cfg       *config.Config
}

func main() {
	a := &app{}
	root := &cobra.Command{
		Use:          "navbuild",
		Short:        "build navigation data from source assets",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "init" {
				return nil
			}
			cfg, err := cli.Setup(&a.overrides)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}
	a.overrides.BindGlobal(root.PersistentFlags())
	root.AddCommand(
		a.BVHCmd(),
		a.MapCmd(),
		a.TileCmd(),
		a.ConfigCmd(),
		PackCmd(),
	)

	err := root.Execute()
	logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

// bindBuild registers the source and output flags of a build command.
func (a *app) bindBuild(cmd *cobra.Command) {
	cmd.Flags().StringVar(&a.overrides.Source, "source", "", "source directory (default from config)")
	cmd.Flags().StringVar(&a.overrides.Output, "output", "", "output directory (default from config)")
	cmd.Flags().IntVar(&a.overrides.Jobs, "jobs", 0, "parallel workers (default from config)")
}
