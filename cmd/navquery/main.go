// navquery answers navigation queries against built map artifacts from the
// command line.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/Faultbox/midgard-nav/internal/cli"
	"github.com/Faultbox/midgard-nav/internal/config"
	"github.com/Faultbox/midgard-nav/internal/logger"
	"github.com/Faultbox/midgard-nav/internal/pathfind"
)

type app struct {
	overrides config.Overrides
	mapName   string
	cfg       *config.Config
}

func main() {
	err := newRootCmd(&app{}).Execute()
	logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:          "navquery",
		Short:        "query built navigation data",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.Setup(&a.overrides)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}
	a.overrides.BindGlobal(root.PersistentFlags())
	root.PersistentFlags().StringVar(&a.overrides.NavDir, "nav", "", "navigation data directory (default from config)")
	root.PersistentFlags().StringVar(&a.mapName, "map", "", "map to query")
	root.PersistentFlags().IntVar(&a.overrides.MaxTiles, "max-tiles", 0, "bound on resident tiles (default from config)")
	root.MarkPersistentFlagRequired("map")

	root.AddCommand(
		a.LoadCmd(),
		a.HeightsCmd(),
		a.PathCmd(),
		a.LOSCmd(),
		a.ZoneCmd(),
		a.RandomCmd(),
	)
	return root
}

func (a *app) open() (*pathfind.Map, error) {
	return pathfind.Open(a.cfg.Query.NavDir, a.mapName, pathfind.OptionsFromConfig(a.cfg)...)
}
