// Package config loads pourtree's configuration. Configuration is
// layered: embedded defaults, then the user config file, then
// POURTREE_* environment variables, each overriding the previous.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/pourtree/pourtree/pkg/errors"
)

// AppDirName is the directory name for pourtree-specific files.
const AppDirName = "pourtree"

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "POURTREE_"

// Mirror is one download mirror. OCI mirrors serve bottles as
// container-registry blobs; flat mirrors serve them as plain files.
type Mirror struct {
	URL string `koanf:"url"`
	OCI bool   `koanf:"oci"`
}

// Config is the read-only run configuration consumed by the pipeline.
type Config struct {
	// Target is the bottle architecture to install, e.g. "x86_64_linux".
	Target string `koanf:"target"`

	// OSFallback lists architectures to try, in order, when no bottle
	// matches Target or "all".
	OSFallback []string `koanf:"os_fallback"`

	// Mirrors is the ordered mirror list; the first entry wins. Empty
	// means bottles are fetched from their formula-declared URLs.
	Mirrors []Mirror `koanf:"mirrors"`

	// Concurrency is the soft ceiling on parallel per-package work
	// within a stage.
	Concurrency int `koanf:"concurrency"`

	// Filesystem roots.
	CacheDir   string `koanf:"cache_dir"`
	CellarDir  string `koanf:"cellar_dir"`
	MetaDir    string `koanf:"meta_dir"`
	ScriptsDir string `koanf:"scripts_dir"`
	PrefixDir  string `koanf:"prefix_dir"`
}

// Load reads configuration from defaults, the given config file (or
// the default location when path is empty), and the environment.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(&rawBytesProvider{bytes: defaultConfig}, toml.Parser()); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to load defaults")
	}

	if path == "" {
		path = filepath.Join(xdg.ConfigHome, AppDirName, "pourtree.toml")
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, errors.Wrapf(err, errors.ErrConfigParse, "failed to load config from %s", path)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to load environment overrides")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigParse, "failed to decode configuration")
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills unset fields with computed defaults.
func (c *Config) applyDefaults() {
	if c.Target == "" {
		c.Target = defaultTarget()
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.PrefixDir == "" {
		c.PrefixDir = filepath.Join(xdg.DataHome, AppDirName)
	}
	if c.CellarDir == "" {
		c.CellarDir = filepath.Join(c.PrefixDir, "Cellar")
	}
	if c.CacheDir == "" {
		c.CacheDir = filepath.Join(xdg.CacheHome, AppDirName)
	}
	if c.MetaDir == "" {
		c.MetaDir = filepath.Join(c.PrefixDir, "var", AppDirName)
	}
	if c.ScriptsDir == "" {
		c.ScriptsDir = filepath.Join(xdg.ConfigHome, AppDirName, "scripts")
	}
}

// Validate reports missing configuration the pipeline cannot run without.
func (c *Config) Validate() error {
	switch {
	case c.Target == "":
		return errors.New(errors.ErrConfigValid, "target architecture is not set")
	case c.CacheDir == "":
		return errors.New(errors.ErrConfigValid, "cache_dir is not set")
	case c.CellarDir == "":
		return errors.New(errors.ErrConfigValid, "cellar_dir is not set")
	case c.MetaDir == "":
		return errors.New(errors.ErrConfigValid, "meta_dir is not set")
	case c.PrefixDir == "":
		return errors.New(errors.ErrConfigValid, "prefix_dir is not set")
	}
	return nil
}

// defaultTarget guesses a bottle architecture for the running host.
func defaultTarget() string {
	switch runtime.GOOS + "/" + runtime.GOARCH {
	case "linux/amd64":
		return "x86_64_linux"
	case "linux/arm64":
		return "arm64_linux"
	case "darwin/arm64":
		return "arm64_sonoma"
	case "darwin/amd64":
		return "sonoma"
	}
	return "all"
}
