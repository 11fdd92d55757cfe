// Package config handles closurec.toml configuration files.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/go-homedir"
	"github.com/rs/zerolog"
	"github.com/simon-1M/closurec"
	"github.com/simon-1M/closurec/bytecode"
)

// FileName is the name looked up in the working directory when no path is
// given.
const FileName = "closurec.toml"

// Config holds settings shared by the CLI and by library callers that want
// file-driven options.
type Config struct {
	// FormatVersion is the binary format version to emit.
	FormatVersion uint32 `toml:"format_version" mapstructure:"format_version"`
	// Parallelism bounds how many modules CompileAll compiles at once.
	Parallelism int `toml:"parallelism" mapstructure:"parallelism"`
	// LogLevel is a zerolog level name such as "debug" or "warn".
	LogLevel string `toml:"log_level" mapstructure:"log_level"`
	// Color is "auto", "always" or "never".
	Color string `toml:"color" mapstructure:"color"`
	// Verify runs the verifier after emitting each module.
	Verify bool `toml:"verify" mapstructure:"verify"`

	// Path is the file the config was loaded from (set at load time). The
	// CLI resolves it from the --config flag.
	Path string `toml:"-" mapstructure:"config"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		FormatVersion: bytecode.DefaultVersion,
		Parallelism:   closurec.DefaultParallelism,
		LogLevel:      "warn",
		Color:         "auto",
		Verify:        true,
	}
}

// Load parses the TOML file at path over the defaults. A leading "~" is
// expanded to the home directory.
func Load(path string) (*Config, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", expanded, err)
	}
	c := Default()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", expanded, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys in %s: %s", expanded, strings.Join(keys, ", "))
	}
	c.Path = expanded
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", expanded, err)
	}
	return c, nil
}

// FindAndLoad loads FileName from dir if it exists, and the defaults
// otherwise.
func FindAndLoad(dir string) (*Config, error) {
	path := dir + string(os.PathSeparator) + FileName
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return Load(path)
}

// Validate checks every field against its allowed range.
func (c *Config) Validate() error {
	if c.FormatVersion < bytecode.MinVersion || c.FormatVersion > bytecode.MaxVersion {
		return fmt.Errorf("format_version %d outside %d..%d", c.FormatVersion, bytecode.MinVersion, bytecode.MaxVersion)
	}
	if c.Parallelism < 1 {
		return fmt.Errorf("parallelism must be positive, got %d", c.Parallelism)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	switch c.Color {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("color must be auto, always or never, got %q", c.Color)
	}
	return nil
}

// Level returns the parsed log level.
func (c *Config) Level() (zerolog.Level, error) {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// Options converts the configuration into compile options. The logger is
// passed through at the configured level.
func (c *Config) Options(logger zerolog.Logger) []closurec.Option {
	if level, err := c.Level(); err == nil {
		logger = logger.Level(level)
	}
	opts := []closurec.Option{
		closurec.WithLogger(logger),
		closurec.WithFormatVersion(c.FormatVersion),
		closurec.WithParallelism(c.Parallelism),
	}
	if !c.Verify {
		opts = append(opts, closurec.WithoutVerification())
	}
	return opts
}
