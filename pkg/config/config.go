// Package config loads the propspec configuration: the alias and module
// override tables used to rewrite imports, the ambient object exposed to the
// sandbox, and the limits of the batch tooling.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gnana997/propspec/pkg/rewrite"
	"github.com/gnana997/propspec/pkg/sandbox"
	"github.com/gnana997/propspec/pkg/util"
)

// DefaultPath is where the CLI looks for a config file when none is given.
const DefaultPath = ".propspec/config.yaml"

// EnvPrefix prefixes the environment overrides applied by ApplyEnv.
const EnvPrefix = "PROPSPEC_"

// ErrInvalidConfig reports a configuration that failed validation.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the complete propspec configuration.
type Config struct {
	// Alias maps an import prefix to a directory, like a bundler alias:
	// with {"@": "/src"}, "@/theme" loads "/src/theme".
	Alias map[string]string `yaml:"alias" json:"alias"`

	// ResolveModule maps exact module names to replacements used verbatim.
	ResolveModule map[string]string `yaml:"resolveModule" json:"resolveModule"`

	// GlobalObject is exposed to evaluated programs as __propspec__.
	GlobalObject map[string]any `yaml:"globalObject" json:"globalObject"`

	AssetExtensions []string `yaml:"assetExtensions" json:"assetExtensions"`

	// Timeout bounds one evaluation.
	Timeout Duration `yaml:"timeout" json:"timeout"`

	CompileNodeModules bool `yaml:"compileNodeModules" json:"compileNodeModules"`

	// CacheSize is the number of extraction results kept in memory.
	CacheSize int `yaml:"cacheSize" json:"cacheSize"`

	// Include and Exclude are doublestar patterns relative to the scan root.
	Include []string `yaml:"include" json:"include"`
	Exclude []string `yaml:"exclude" json:"exclude"`

	// NoGitignore disables .gitignore filtering during scans.
	NoGitignore bool `yaml:"noGitignore" json:"noGitignore"`

	// Workers is the scan concurrency. 0 picks one per CPU.
	Workers int `yaml:"workers" json:"workers"`

	Log LogConfig `yaml:"log" json:"log"`
}

// LogConfig selects the logger level and format.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Alias: map[string]string{},
		ResolveModule: map[string]string{
			"prop-types": sandbox.PropTypesModule,
		},
		GlobalObject:    map[string]any{},
		AssetExtensions: append([]string(nil), rewrite.DefaultAssetExtensions...),
		Timeout:         Duration(sandbox.DefaultTimeout),
		CacheSize:       256,
		Include:         []string{"**/*.{js,jsx,ts,tsx}"},
		Exclude: []string{
			"**/node_modules/**",
			"**/*.d.ts",
			"**/*.test.*",
			"**/*.spec.*",
			"**/*.stories.*",
		},
		Log: LogConfig{
			Level:  string(util.LevelInfo),
			Format: string(util.FormatText),
		},
	}
}

// Load reads a YAML config file and merges it over Default. Relative alias
// targets are resolved against the directory holding the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}
	cfg.resolveAliases(filepath.Dir(abs))
	return cfg, nil
}

// Parse merges a YAML document over Default.
func Parse(data []byte) (*Config, error) {
	var override map[string]any
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return FromMap(override)
}

// FromMap merges an override tree over Default and decodes the result.
func FromMap(override map[string]any) (*Config, error) {
	defaults, err := Default().toMap()
	if err != nil {
		return nil, err
	}

	merged, err := yaml.Marshal(Merge(defaults, override))
	if err != nil {
		return nil, fmt.Errorf("failed to encode merged config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(merged, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return &cfg, nil
}

func (c *Config) toMap() (map[string]any, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return m, nil
}

func (c *Config) resolveAliases(base string) {
	for key, target := range c.Alias {
		if !filepath.IsAbs(target) {
			c.Alias[key] = filepath.Join(base, target)
		}
	}
}

// ApplyEnv applies PROPSPEC_* overrides read through lookup, normally
// os.LookupEnv. List values are comma separated and replace the configured
// list.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %sTIMEOUT: %v", ErrInvalidConfig, EnvPrefix, err)
		}
		c.Timeout = Duration(d)
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"WORKERS", &c.Workers},
		{"CACHE_SIZE", &c.CacheSize},
	}
	for _, iv := range ints {
		if v, ok := get(iv.name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%w: %s%s: %v", ErrInvalidConfig, EnvPrefix, iv.name, err)
			}
			*iv.dst = n
		}
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"COMPILE_NODE_MODULES", &c.CompileNodeModules},
		{"NO_GITIGNORE", &c.NoGitignore},
	}
	for _, bv := range bools {
		if v, ok := get(bv.name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%w: %s%s: %v", ErrInvalidConfig, EnvPrefix, bv.name, err)
			}
			*bv.dst = b
		}
	}

	if v, ok := get("INCLUDE"); ok {
		c.Include = splitList(v)
	}
	if v, ok := get("EXCLUDE"); ok {
		c.Exclude = splitList(v)
	}
	if v, ok := get("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := get("LOG_FORMAT"); ok {
		c.Log.Format = v
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the configuration for values the pipeline cannot use.
func (c *Config) Validate() error {
	var errs []error

	for key, target := range c.Alias {
		if key == "" {
			errs = append(errs, errors.New("alias with empty key"))
		}
		if !filepath.IsAbs(target) {
			errs = append(errs, fmt.Errorf("alias %q: target %q is not absolute", key, target))
		}
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", c.Timeout))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}
	if c.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("cacheSize must not be negative, got %d", c.CacheSize))
	}
	switch util.LogFormat(c.Log.Format) {
	case util.FormatText, util.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("log format must be text or json, got %q", c.Log.Format))
	}
	for _, pattern := range append(append([]string(nil), c.Include...), c.Exclude...) {
		if strings.TrimSpace(pattern) == "" {
			errs = append(errs, errors.New("empty include/exclude pattern"))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// LoggerConfig returns the util logger settings for this config.
func (c *Config) LoggerConfig() util.LoggerConfig {
	cfg := util.DefaultLoggerConfig()
	if c.Log.Level != "" {
		cfg.Level = util.LogLevel(c.Log.Level)
	}
	if c.Log.Format != "" {
		cfg.Format = util.LogFormat(c.Log.Format)
	}
	return cfg
}

// Duration is a time.Duration written as "10s" in YAML and JSON.
type Duration time.Duration

func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// UnmarshalYAML accepts a duration string or a number of milliseconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.parse(node.Value)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts a duration string or a number of milliseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return d.parse(s)
	}
	return d.parse(string(data))
}

func (d *Duration) parse(s string) error {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}
