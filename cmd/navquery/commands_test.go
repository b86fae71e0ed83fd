package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Faultbox/midgard-nav/internal/build"
	"github.com/Faultbox/midgard-nav/internal/pathfind"
	"github.com/Faultbox/midgard-nav/internal/testworld"
)

type world struct {
	config string
	nav    string
}

func buildWorld(t *testing.T) world {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	out := filepath.Join(dir, "out")
	objects := filepath.Join(dir, testworld.PlacementsFile)
	if err := testworld.Write(src, testworld.Options{}); err != nil {
		t.Fatal(err)
	}
	if err := testworld.WritePlacements(objects); err != nil {
		t.Fatal(err)
	}
	opts := build.DefaultOptions()
	opts.Settings = testworld.Settings()
	b, err := build.New(opts)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.BuildMap(context.Background(), src, out, testworld.MapName, 2, objects); err != nil {
		t.Fatalf("BuildMap: %v", err)
	}

	cfg := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfg, []byte("logging:\n  level: error\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return world{config: cfg, nav: out}
}

// run executes navquery against w with args after the global flags.
func (w world) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(&app{})
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", w.config, "--nav", w.nav, "--map", testworld.MapName}, args...))
	_, err := root.ExecuteC()
	return out.String(), err
}

func lines(s string) []string {
	return strings.Split(strings.TrimSpace(s), "\n")
}

// nearPoint reports whether a printed "x y z" line lies within half a unit
// of (x, y).
func nearPoint(t *testing.T, line string, x, y float64) bool {
	t.Helper()
	var px, py, pz float64
	if _, err := fmt.Sscanf(line, "%f %f %f", &px, &py, &pz); err != nil {
		t.Fatalf("parse %q: %v", line, err)
	}
	return math.Hypot(px-x, py-y) <= 0.5
}

func TestCommands(t *testing.T) {
	w := buildWorld(t)

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"load all", []string{"load", "--all"}, []string{"2 tiles loaded"}},
		{"load one", []string{"load", "--x", "40", "--y", "3"}, []string{"tile " + testworld.East.String() + " loaded"}},
		{"heights under deck", []string{"heights", "48", "12"}, []string{"3.500", "0.000"}},
		{"heights over hole", []string{"heights", "6", "22"}, []string{"0.250"}},
		{"los wall", []string{"los", "8", "20", "1", "16", "20", "1"}, []string{"blocked"}},
		{"los open", []string{"los", "1", "10", "1", "10", "10", "1"}, []string{"visible"}},
		{"los crate", []string{"los", "20", "6", "1", "30", "6", "1"}, []string{"blocked"}},
		{"los crate without objects", []string{"los", "--no-objects", "20", "6", "1", "30", "6", "1"}, []string{"visible"}},
		{"zone indoor", []string{"zone", "18", "20", "0"}, []string{fmt.Sprintf("zone %d area %d", testworld.IndoorZone, testworld.IndoorZone)}},
		{"path to deck", []string{"path", "8", "6", "0", "48", "12", "3.5"}, []string{"no path"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := w.run(t, tt.args...)
			if err != nil {
				t.Fatalf("%v: %v\n%s", tt.args, err, got)
			}
			if l := lines(got); strings.Join(l, "|") != strings.Join(tt.want, "|") {
				t.Errorf("%v printed %q, want %q", tt.args, l, tt.want)
			}
		})
	}
}

func TestPathCmd(t *testing.T) {
	w := buildWorld(t)

	got, err := w.run(t, "path", "8", "6", "0", "15", "22", "0")
	if err != nil {
		t.Fatal(err)
	}
	l := lines(got)
	if len(l) < 3 {
		t.Fatalf("path printed %q", l)
	}
	if !nearPoint(t, l[0], 8, 6) || !nearPoint(t, l[len(l)-2], 15, 22) {
		t.Errorf("path endpoints %q, %q", l[0], l[len(l)-2])
	}
	if !strings.HasPrefix(l[len(l)-1], "length ") {
		t.Errorf("last line %q", l[len(l)-1])
	}
	if strings.Contains(got, "goal not reached") {
		t.Error("full path reported as partial")
	}

	got, err = w.run(t, "path", "--partial", "8", "6", "0", "48", "12", "3.5")
	if err != nil {
		t.Fatal(err)
	}
	l = lines(got)
	if len(l) < 4 || !nearPoint(t, l[0], 8, 6) || l[len(l)-2] != "goal not reached" {
		t.Errorf("partial path printed %q", l)
	}
}

func TestRandomCmd(t *testing.T) {
	w := buildWorld(t)

	args := []string{"random", "--seed", "7", "-n", "5", "15", "17", "0", "3.5"}
	first, err := w.run(t, args...)
	if err != nil {
		t.Fatal(err)
	}
	if l := lines(first); len(l) != 5 {
		t.Fatalf("random printed %q", l)
	}
	second, err := w.run(t, args...)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("seeded output differs:\n%s\n%s", first, second)
	}

	got, err := w.run(t, "random", "15", "17", "50", "3")
	if err != nil {
		t.Fatal(err)
	}
	if got != "no surface\n" {
		t.Errorf("random above the map printed %q", got)
	}

	if _, err := w.run(t, "random", "15", "17", "0", "--", "-1"); !errors.Is(err, pathfind.ErrInvalidRadius) {
		t.Errorf("negative radius: %v", err)
	}
}

func TestCommands_Errors(t *testing.T) {
	w := buildWorld(t)

	tests := []struct {
		name string
		args []string
	}{
		{"bad number", []string{"heights", "x", "1"}},
		{"arg count", []string{"zone", "1", "2"}},
		{"load exclusive flags", []string{"load", "--all", "--x", "1"}},
		{"outside grid", []string{"heights", "1e9", "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := w.run(t, tt.args...); err == nil {
				t.Errorf("%v: expected error", tt.args)
			}
		})
	}

	var out bytes.Buffer
	root := newRootCmd(&app{})
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"--config", w.config, "--nav", w.nav, "--map", "nowhere", "load", "--all"})
	if _, err := root.ExecuteC(); !errors.Is(err, pathfind.ErrMapNotFound) {
		t.Errorf("unknown map: %v", err)
	}
}
