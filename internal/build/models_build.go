package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/midgard-nav/internal/artifact"
	"github.com/Faultbox/midgard-nav/internal/bvh"
	"github.com/Faultbox/midgard-nav/internal/config"
	"github.com/Faultbox/midgard-nav/internal/source"
	"github.com/Faultbox/midgard-nav/pkg/encoding"
)

// BuildBVH builds one BVH per source model into <out>/BVH and writes the
// model index. Models that fail are logged and skipped. It returns the
// number of model BVH files written.
func (b *Builder) BuildBVH(ctx context.Context, sourceDir, outputDir string, jobs int) (int, error) {
	if err := checkJobs(jobs); err != nil {
		return 0, err
	}
	src, err := source.Open(sourceDir, source.Options{NameEncoding: b.opts.NameEncoding})
	if err != nil {
		return 0, err
	}
	defer src.Close()

	dir := filepath.Join(outputDir, artifact.BVHDir)
	if b.opts.Overwrite == config.OverwriteError && !dirEmpty(dir) {
		return 0, fmt.Errorf("%w: %s", ErrOutputExists, dir)
	}

	models := src.Models()
	b.log.Info("building model bvhs", zap.Int("models", len(models)), zap.Int("jobs", jobs))

	build := uuid.New()
	files := make([]string, len(models))
	sizes := make([]int64, len(models))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, name := range models {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			file := artifact.ModelFile(name)
			path := filepath.Join(dir, file)
			if b.opts.Overwrite == config.OverwriteSkip {
				if _, err := os.Stat(path); err == nil {
					files[i] = file
					return nil
				}
			}

			tris, err := src.ModelTriangles(name)
			if err != nil {
				b.log.Warn("skipping model", zap.String("model", name), zap.Error(err))
				return nil
			}
			tree := bvh.Build(tris, b.opts.BVH)
			n, err := artifact.WriteModel(path, build, name, tree)
			if err != nil {
				b.log.Warn("skipping model", zap.String("model", name), zap.Error(err))
				return nil
			}
			files[i], sizes[i] = file, n
			b.log.Debug("model bvh built",
				zap.String("model", name),
				zap.Int("triangles", tree.Len()),
				zap.Int("nodes", len(tree.Nodes)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	idx := &artifact.Index{Models: make(map[string]string)}
	var total int64
	for i, name := range models {
		if files[i] == "" {
			continue
		}
		idx.Models[encoding.NormalizeModelPath(name)] = files[i]
		total += sizes[i]
	}
	n, err := artifact.WriteIndex(artifact.IndexPath(outputDir), build, idx)
	if err != nil {
		return 0, err
	}
	total += n

	b.log.Info("model bvhs built",
		zap.Int("written", len(idx.Models)),
		zap.Int("failed", len(models)-len(idx.Models)),
		zap.String("size", humanize.Bytes(uint64(total))))
	return len(idx.Models), nil
}

// dirEmpty reports whether dir is missing or holds only unpublished
// temporary files.
func dirEmpty(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return true
	}
	for _, e := range entries {
		if !artifact.IsTemp(e.Name()) {
			return false
		}
	}
	return true
}
