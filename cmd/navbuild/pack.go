package main

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Faultbox/midgard-nav/pkg/pack"
)

// PackCmd groups the source archive utilities.
func PackCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "pack",
		Short: "inspect and create source archives (.pak)",
	}
	c.AddCommand(packInfoCmd(), packListCmd(), packExtractCmd(), packCreateCmd())
	return c
}

func packInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <file.pak>",
		Short: "show archive information",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := pack.Open(args[0])
			if err != nil {
				return err
			}
			defer archive.Close()
			return printPackInfo(cmd.OutOrStdout(), archive)
		},
	}
}

func printPackInfo(w io.Writer, archive *pack.Archive) error {
	files := archive.List()

	// Count by extension
	extCount := make(map[string]int)
	var stored, total uint64
	for _, f := range files {
		ext := strings.ToLower(filepath.Ext(f))
		if ext == "" {
			ext = "(no ext)"
		}
		extCount[ext]++
		if e, ok := archive.Stat(f); ok {
			stored += uint64(e.CompressedSize)
			total += uint64(e.UncompressedSize)
		}
	}

	fmt.Fprintf(w, "Archive: %s\n", archive.Path())
	fmt.Fprintf(w, "Files:   %d\n", len(files))
	fmt.Fprintf(w, "Size:    %s (%s stored)\n", humanize.Bytes(total), humanize.Bytes(stored))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Files by type:")

	type extStat struct {
		ext   string
		count int
	}
	var stats []extStat
	for ext, count := range extCount {
		stats = append(stats, extStat{ext, count})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].count != stats[j].count {
			return stats[i].count > stats[j].count
		}
		return stats[i].ext < stats[j].ext
	})
	for _, s := range stats {
		fmt.Fprintf(w, "  %-10s %d\n", s.ext, s.count)
	}
	return nil
}

func packListCmd() *cobra.Command {
	var limit int
	c := &cobra.Command{
		Use:     "list <file.pak> [pattern]",
		Aliases: []string{"ls"},
		Short:   "list files, optionally filtered by a glob or substring",
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := pack.Open(args[0])
			if err != nil {
				return err
			}
			defer archive.Close()

			pattern := ""
			if len(args) > 1 {
				pattern = strings.ToLower(args[1])
			}
			out := cmd.OutOrStdout()
			count := 0
			for _, f := range archive.List() {
				if !matchName(f, pattern) {
					continue
				}
				fmt.Fprintln(out, f)
				count++
				if limit > 0 && count >= limit {
					break
				}
			}
			if pattern != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "\n(%d files matched)\n", count)
			}
			return nil
		},
	}
	c.Flags().IntVarP(&limit, "limit", "n", 0, "limit output to N files (0 = all)")
	return c
}

// matchName matches a glob against the base name, or a substring against
// the full path. An empty pattern matches everything.
func matchName(name, pattern string) bool {
	if pattern == "" {
		return true
	}
	if matched, _ := filepath.Match(pattern, filepath.Base(name)); matched {
		return true
	}
	return strings.Contains(name, pattern)
}

func packExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "extract <file.pak> <path|glob> [output_dir]",
		Aliases: []string{"x"},
		Short:   "extract files, keeping their directory structure",
		Args:    cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := pack.Open(args[0])
			if err != nil {
				return err
			}
			defer archive.Close()

			outputDir := "."
			if len(args) > 2 {
				outputDir = args[2]
			}
			n, err := extract(archive, args[1], outputDir, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "\nExtracted %d files\n", n)
			return nil
		},
	}
}

func extract(archive *pack.Archive, target, outputDir string, w io.Writer) (int, error) {
	var names []string
	if strings.Contains(target, "*") {
		pattern := strings.ToLower(target)
		for _, f := range archive.List() {
			if matched, _ := filepath.Match(pattern, filepath.Base(f)); matched {
				names = append(names, f)
			}
		}
	} else {
		if !archive.Contains(target) {
			return 0, fmt.Errorf("%w: %s", pack.ErrNotFound, target)
		}
		names = []string{target}
	}

	for _, f := range names {
		data, err := archive.Read(f)
		if err != nil {
			return 0, err
		}
		outputPath := filepath.Join(outputDir, filepath.FromSlash(strings.ReplaceAll(f, "\\", "/")))
		if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
			return 0, err
		}
		if err := os.WriteFile(outputPath, data, 0644); err != nil {
			return 0, err
		}
		fmt.Fprintf(w, "Extracted: %s (%s)\n", outputPath, humanize.Bytes(uint64(len(data))))
	}
	return len(names), nil
}

func packCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <file.pak> <dir>",
		Short: "pack every file under dir, named relative to it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := createPack(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Packed %d files into %s\n", n, args[0])
			return nil
		},
	}
}

func createPack(path, dir string) (int, error) {
	w := pack.NewWriter(path)
	n := 0
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		w.Add(filepath.ToSlash(rel), data)
		n++
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, w.Close()
}
