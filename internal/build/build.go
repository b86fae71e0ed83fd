// Package build turns a source tree into navigation artifacts: model BVHs,
// per-tile navigation data and the map index.
package build

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-nav/internal/bvh"
	"github.com/Faultbox/midgard-nav/internal/config"
	"github.com/Faultbox/midgard-nav/internal/logger"
	"github.com/Faultbox/midgard-nav/internal/navmesh"
)

// Build errors.
var (
	ErrInvalidJobs  = errors.New("jobs must be at least 1")
	ErrOutputExists = errors.New("output already exists")
)

// Options configures a Builder.
type Options struct {
	NameEncoding string
	Settings     navmesh.Settings
	BVH          bvh.Options
	// Overwrite is one of config.OverwriteReplace, OverwriteError or
	// OverwriteSkip. Empty means replace.
	Overwrite string
}

// DefaultOptions returns options with default compile settings.
func DefaultOptions() Options {
	return Options{
		Settings:  navmesh.DefaultSettings(),
		BVH:       bvh.DefaultOptions(),
		Overwrite: config.OverwriteReplace,
	}
}

// OptionsFromConfig extracts builder options from cfg.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	bo, err := cfg.BVHOptions()
	if err != nil {
		return Options{}, err
	}
	return Options{
		NameEncoding: cfg.Source.NameEncoding,
		Settings:     cfg.MeshSettings(),
		BVH:          bo,
		Overwrite:    cfg.Build.Overwrite,
	}, nil
}

// Builder runs builds. A Builder holds no per-build state and may be
// reused.
type Builder struct {
	opts Options
	log  *zap.Logger
}

// New validates opts and returns a Builder.
func New(opts Options) (*Builder, error) {
	if err := opts.Settings.Validate(); err != nil {
		return nil, err
	}
	switch opts.Overwrite {
	case "":
		opts.Overwrite = config.OverwriteReplace
	case config.OverwriteReplace, config.OverwriteError, config.OverwriteSkip:
	default:
		return nil, fmt.Errorf("unknown overwrite policy %q", opts.Overwrite)
	}
	return &Builder{opts: opts, log: logger.Named("build")}, nil
}

// Report summarizes a map or tile build.
type Report struct {
	Map     string
	BuildID uuid.UUID
	Tiles   int   // tiles considered
	Built   int   // tiles compiled and published
	Skipped int   // existing tiles kept
	Failed  int   // tiles that could not be built or published
	Bytes   int64 // bytes published
	// Err aggregates the per-tile failures.
	Err error
}

func checkJobs(jobs int) error {
	if jobs < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidJobs, jobs)
	}
	return nil
}
