package main

import (
	"fmt"
	"math/rand/v2"

	"github.com/spf13/cobra"

	"github.com/Faultbox/midgard-nav/internal/cli"
	"github.com/Faultbox/midgard-nav/internal/navmesh"
	"github.com/Faultbox/midgard-nav/internal/pathfind"
	"github.com/Faultbox/midgard-nav/pkg/math"
)

func (a *app) LoadCmd() *cobra.Command {
	var (
		x, y float32
		all  bool
	)
	c := &cobra.Command{
		Use:   "load",
		Short: "load the tile at (x, y), or every tile with --all",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.open()
			if err != nil {
				return err
			}
			defer m.Close()

			out := cmd.OutOrStdout()
			if all {
				n, err := m.LoadAllTiles()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%d tiles loaded\n", n)
				return nil
			}
			c, err := m.LoadTileAt(x, y)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "tile %s loaded\n", c)
			return nil
		},
	}
	c.Flags().Float32Var(&x, "x", 0, "world x")
	c.Flags().Float32Var(&y, "y", 0, "world y")
	c.Flags().BoolVar(&all, "all", false, "load every tile of the map")
	c.MarkFlagsMutuallyExclusive("all", "x")
	c.MarkFlagsMutuallyExclusive("all", "y")
	return c
}

func (a *app) HeightsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "heights X Y",
		Short: "list the walkable surface heights at (x, y), highest first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := cli.ParseFloats(args)
			if err != nil {
				return err
			}
			m, err := a.open()
			if err != nil {
				return err
			}
			defer m.Close()

			if _, err := m.LoadTileAt(v[0], v[1]); err != nil {
				return err
			}
			hs, err := m.QueryHeights(v[0], v[1])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(hs) == 0 {
				fmt.Fprintln(out, "no surface")
			}
			for _, h := range hs {
				fmt.Fprintf(out, "%.3f\n", h)
			}
			return nil
		},
	}
}

func (a *app) PathCmd() *cobra.Command {
	var partial bool
	c := &cobra.Command{
		Use:   "path SX SY SZ GX GY GZ",
		Short: "find a smoothed path between two points",
		Args:  cobra.ExactArgs(6),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := cli.ParseFloats(args)
			if err != nil {
				return err
			}
			m, err := a.open()
			if err != nil {
				return err
			}
			defer m.Close()

			start := math.Vec3{X: v[0], Y: v[1], Z: v[2]}
			goal := math.Vec3{X: v[3], Y: v[4], Z: v[5]}
			var (
				path    []math.Vec3
				reached = true
			)
			if partial {
				path, reached, err = m.FindPartialPath(start, goal)
			} else {
				path, err = m.FindPath(start, goal)
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(path) == 0 {
				fmt.Fprintln(out, "no path")
				return nil
			}
			for _, p := range path {
				fmt.Fprintf(out, "%.3f %.3f %.3f\n", p.X, p.Y, p.Z)
			}
			if !reached {
				fmt.Fprintln(out, "goal not reached")
			}
			fmt.Fprintf(out, "length %.3f\n", navmesh.PathLength(path))
			return nil
		},
	}
	c.Flags().BoolVar(&partial, "partial", false, "end at the reachable point closest to the goal")
	return c
}

func (a *app) LOSCmd() *cobra.Command {
	var noObjects bool
	c := &cobra.Command{
		Use:   "los SX SY SZ EX EY EZ",
		Short: "test line of sight between two points",
		Args:  cobra.ExactArgs(6),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := cli.ParseFloats(args)
			if err != nil {
				return err
			}
			m, err := a.open()
			if err != nil {
				return err
			}
			defer m.Close()

			var opts []pathfind.SightOption
			if noObjects {
				opts = append(opts, pathfind.WithoutObjects())
			}
			visible, err := m.LineOfSight(math.Vec3{X: v[0], Y: v[1], Z: v[2]}, math.Vec3{X: v[3], Y: v[4], Z: v[5]}, opts...)
			if err != nil {
				return err
			}
			if visible {
				fmt.Fprintln(cmd.OutOrStdout(), "visible")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "blocked")
			}
			return nil
		},
	}
	c.Flags().BoolVar(&noObjects, "no-objects", false, "ignore placed objects")
	return c
}

func (a *app) ZoneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "zone X Y Z",
		Short: "classify a point into its zone and area",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := cli.ParseFloats(args)
			if err != nil {
				return err
			}
			m, err := a.open()
			if err != nil {
				return err
			}
			defer m.Close()

			if _, err := m.LoadTileAt(v[0], v[1]); err != nil {
				return err
			}
			zone, area, err := m.ZoneAndArea(v[0], v[1], v[2])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "zone %d area %d\n", zone, area)
			return nil
		},
	}
}

func (a *app) RandomCmd() *cobra.Command {
	var (
		seed  uint64
		count int
	)
	c := &cobra.Command{
		Use:   "random X Y Z RADIUS",
		Short: "pick random reachable points within a radius of a point",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := cli.ParseFloats(args)
			if err != nil {
				return err
			}
			m, err := a.open()
			if err != nil {
				return err
			}
			defer m.Close()

			var r *rand.Rand
			if cmd.Flags().Changed("seed") {
				r = rand.New(rand.NewPCG(seed, seed))
			}
			out := cmd.OutOrStdout()
			center := math.Vec3{X: v[0], Y: v[1], Z: v[2]}
			for range count {
				p, ok, err := m.RandomPointAroundCircle(r, center, v[3])
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(out, "no surface")
					return nil
				}
				fmt.Fprintf(out, "%.3f %.3f %.3f\n", p.X, p.Y, p.Z)
			}
			return nil
		},
	}
	c.Flags().Uint64Var(&seed, "seed", 0, "seed for repeatable output")
	c.Flags().IntVarP(&count, "count", "n", 1, "number of points")
	return c
}
