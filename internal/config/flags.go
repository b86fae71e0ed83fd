package config

import "github.com/spf13/pflag"

// Overrides holds command-line values that take priority over the file.
// Zero values leave the loaded setting untouched.
type Overrides struct {
	ConfigPath string
	Debug      bool
	LogFile    string
	Source     string
	Output     string
	NavDir     string
	Jobs       int
	MaxTiles   int
}

// BindGlobal registers the flags shared by every command.
func (o *Overrides) BindGlobal(fs *pflag.FlagSet) {
	fs.StringVar(&o.ConfigPath, "config", "", "Path to config file")
	fs.BoolVar(&o.Debug, "debug", false, "Enable debug logging")
	fs.StringVar(&o.LogFile, "log-file", "", "Write logs to this file")
}

// Apply applies overrides to cfg.
func (o *Overrides) Apply(cfg *Config) {
	if o.Debug {
		cfg.Logging.Level = "debug"
	}
	if o.LogFile != "" {
		cfg.Logging.LogFile = o.LogFile
	}
	if o.Source != "" {
		cfg.Source.Dir = o.Source
	}
	if o.Output != "" {
		cfg.Build.Output = o.Output
	}
	if o.NavDir != "" {
		cfg.Query.NavDir = o.NavDir
	}
	if o.Jobs > 0 {
		cfg.Build.Jobs = o.Jobs
	}
	if o.MaxTiles > 0 {
		cfg.Cache.MaxTiles = o.MaxTiles
	}
}

// ApplyOverrides loads the config named by o (or the standard locations)
// and applies o on top.
func ApplyOverrides(o *Overrides) (*Config, error) {
	cfg, err := Load(o.ConfigPath)
	if err != nil {
		return nil, err
	}
	o.Apply(cfg)
	return cfg, nil
}
