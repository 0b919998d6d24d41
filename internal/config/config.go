package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/rzbill/ldes/internal/fragment"
	"github.com/rzbill/ldes/internal/view"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	DataDir              string       `json:"dataDir" yaml:"dataDir"`
	Fsync                string       `json:"fsync" yaml:"fsync"`
	FsyncIntervalMs      int          `json:"fsyncIntervalMs" yaml:"fsyncIntervalMs"`
	LogLevel             string       `json:"logLevel" yaml:"logLevel"`
	LogFormat            string       `json:"logFormat" yaml:"logFormat"`
	PaginationIntervalMs int          `json:"paginationIntervalMs" yaml:"paginationIntervalMs"`
	SealIntervalMs       int          `json:"sealIntervalMs" yaml:"sealIntervalMs"`
	Parallelism          int          `json:"parallelism" yaml:"parallelism"`
	MetricsAddr          string       `json:"metricsAddr" yaml:"metricsAddr"`
	Views                []ViewConfig `json:"views" yaml:"views"`
}

// ViewConfig declares a view to ensure at startup.
type ViewConfig struct {
	Name           string                `json:"name" yaml:"name"`
	Fragmentations []FragmentationConfig `json:"fragmentations" yaml:"fragmentations"`
	Pagination     map[string]string     `json:"pagination" yaml:"pagination"`
	MemberFilter   string                `json:"memberFilter" yaml:"memberFilter"`
}

// FragmentationConfig names one strategy of a view's chain.
type FragmentationConfig struct {
	Name       string            `json:"name" yaml:"name"`
	Properties map[string]string `json:"properties" yaml:"properties"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		DataDir:              DefaultDataDir(),
		Fsync:                "interval",
		FsyncIntervalMs:      5,
		LogLevel:             "info",
		LogFormat:            "text",
		PaginationIntervalMs: 1000,
		SealIntervalMs:       60_000,
		Parallelism:          4,
	}
}

// Load reads configuration from a JSON or YAML file (by extension) on top of
// Default. If path is empty, returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.UnmarshalStrict(b, &cfg)
	default:
		err = json.Unmarshal(b, &cfg)
	}
	if err != nil {
		return Config{}, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// Validate checks values that cannot be fixed by defaulting.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("dataDir is required")
	}
	switch c.Fsync {
	case "", "always", "interval", "never":
	default:
		return errors.Errorf("fsync must be always|interval|never, got %q", c.Fsync)
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return errors.Errorf("logFormat must be text|json, got %q", c.LogFormat)
	}
	if c.Parallelism < 0 || c.PaginationIntervalMs < 0 || c.SealIntervalMs < 0 || c.FsyncIntervalMs < 0 {
		return errors.New("intervals and parallelism must not be negative")
	}
	seen := make(map[string]bool, len(c.Views))
	for _, v := range c.Views {
		if _, err := v.Definition(); err != nil {
			return err
		}
		if seen[v.Name] {
			return errors.Errorf("view %s declared twice", v.Name)
		}
		seen[v.Name] = true
	}
	return nil
}

// Definition converts v into the registry record.
func (v ViewConfig) Definition() (view.Definition, error) {
	name, err := fragment.ParseViewName(v.Name)
	if err != nil {
		return view.Definition{}, errors.Wrap(err, "view name")
	}
	d := view.Definition{Name: name, Pagination: v.Pagination, MemberFilter: v.MemberFilter}
	for _, f := range v.Fragmentations {
		if f.Name == "" {
			return view.Definition{}, errors.Errorf("view %s: fragmentation without name", v.Name)
		}
		d.Fragmentations = append(d.Fragmentations, view.Fragmentation{Name: f.Name, Properties: f.Properties})
	}
	return d, nil
}
