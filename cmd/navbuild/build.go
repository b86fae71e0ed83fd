package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-nav/internal/build"
	"github.com/Faultbox/midgard-nav/internal/logger"
	"github.com/Faultbox/midgard-nav/internal/source"
)

func (a *app) builder() (*build.Builder, error) {
	opts, err := build.OptionsFromConfig(a.cfg)
	if err != nil {
		return nil, err
	}
	return build.New(opts)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func (a *app) BVHCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "bvh",
		Short: "build a BVH for every source model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.builder()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			n, err := b.BuildBVH(ctx, a.cfg.Source.Dir, a.cfg.Build.Output, a.cfg.Build.Jobs)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d model BVHs written to %s\n", n, a.cfg.Build.Output)
			return nil
		},
	}
	a.bindBuild(c)
	return c
}

func (a *app) MapCmd() *cobra.Command {
	var mapName, objects string
	c := &cobra.Command{
		Use:   "map",
		Short: "build the navmesh of one map, or of every map when --map is omitted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.builder()
			if err != nil {
				return err
			}
			names := []string{mapName}
			if mapName == "" {
				if names, err = listMaps(a.cfg.Source.Dir, a.cfg.Source.NameEncoding); err != nil {
					return err
				}
			}
			ctx, cancel := signalContext()
			defer cancel()

			for _, name := range names {
				report, err := b.BuildMap(ctx, a.cfg.Source.Dir, a.cfg.Build.Output, name, a.cfg.Build.Jobs, objects)
				if err != nil {
					return fmt.Errorf("map %s: %w", name, err)
				}
				printReport(cmd.OutOrStdout(), report)
			}
			return nil
		},
	}
	a.bindBuild(c)
	c.Flags().StringVar(&mapName, "map", "", "map to build")
	c.Flags().StringVar(&objects, "objects", "", "placement CSV with extra objects")
	return c
}

func (a *app) TileCmd() *cobra.Command {
	var (
		mapName, objects string
		x, y             int32
	)
	c := &cobra.Command{
		Use:   "tile",
		Short: "rebuild a single tile and restitch its stored neighbours",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.builder()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			report, err := b.BuildTile(ctx, a.cfg.Source.Dir, a.cfg.Build.Output, mapName, x, y, objects)
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
	a.bindBuild(c)
	c.Flags().StringVar(&mapName, "map", "", "map of the tile")
	c.Flags().Int32Var(&x, "x", 0, "tile x")
	c.Flags().Int32Var(&y, "y", 0, "tile y")
	c.Flags().StringVar(&objects, "objects", "", "placement CSV with extra objects")
	c.MarkFlagRequired("map")
	c.MarkFlagRequired("x")
	c.MarkFlagRequired("y")
	return c
}

func listMaps(dir, nameEncoding string) ([]string, error) {
	src, err := source.Open(dir, source.Options{NameEncoding: nameEncoding})
	if err != nil {
		return nil, err
	}
	defer src.Close()
	maps := src.Maps()
	if len(maps) == 0 {
		return nil, fmt.Errorf("%w: no maps under %s", source.ErrMapNotFound, dir)
	}
	return maps, nil
}

func printReport(w io.Writer, r *build.Report) {
	fmt.Fprintf(w, "%s: %d built, %d skipped, %d failed of %d tiles, %s (build %s)\n",
		r.Map, r.Built, r.Skipped, r.Failed, r.Tiles, humanize.Bytes(uint64(r.Bytes)), r.BuildID)
	if r.Err != nil {
		logger.Warn("tiles failed", zap.String("map", r.Map), zap.Error(r.Err))
	}
}
