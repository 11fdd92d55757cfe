package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/mitchellh/go-homedir"
	"github.com/rs/zerolog"
	"github.com/simon-1M/closurec/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables that override config keys,
// as in CLOSUREC_LOG_LEVEL=debug.
const EnvPrefix = "CLOSUREC"

// session is the state shared by every command, built once from flags and
// the config file.
type session struct {
	cfg    *config.Config
	logger zerolog.Logger
	stderr io.Writer
}

var current *session

// settings is everything viper resolves: the config file keys plus the
// flags that only steer the CLI.
type settings struct {
	config.Config `mapstructure:",squash"`
	NoColor       bool `mapstructure:"no_color"`
}

// flagKeys maps persistent flags to the keys they override.
var flagKeys = map[string]string{
	"config":    "config",
	"no-color":  "no_color",
	"log-level": "log_level",
}

// setup resolves the configuration and prepares logging and colors.
func setup(cmd *cobra.Command, stderr io.Writer) error {
	s, err := loadSettings(cmd.Flags())
	if err != nil {
		return err
	}
	cfg := &s.Config
	color.NoColor = !useColor(cfg.Color, s.NoColor)

	level, err := cfg.Level()
	if err != nil {
		return err
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: stderr, NoColor: color.NoColor}).
		Level(level).With().Timestamp().Logger()
	current = &session{cfg: cfg, logger: logger, stderr: stderr}
	return nil
}

// loadSettings layers flags over CLOSUREC_* variables over the config file
// over the defaults. An explicit --config must exist; otherwise
// closurec.toml is read from the working directory when present. Unknown
// keys in the file are rejected.
func loadSettings(flags *pflag.FlagSet) (*settings, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	def := config.Default()
	v.SetDefault("format_version", def.FormatVersion)
	v.SetDefault("parallelism", def.Parallelism)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("color", def.Color)
	v.SetDefault("verify", def.Verify)
	for name, key := range flagKeys {
		if f := flags.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}

	v.SetConfigType("toml")
	path := v.GetString("config")
	if path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
		}
		path = expanded
	} else if _, err := os.Stat(config.FileName); err == nil {
		path = config.FileName
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", path, err)
		}
	}

	var s settings
	if err := v.UnmarshalExact(&s); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	s.Path = v.ConfigFileUsed()
	if err := s.Validate(); err != nil {
		if s.Path == "" {
			return nil, err
		}
		return nil, fmt.Errorf("invalid config %s: %w", s.Path, err)
	}
	return &s, nil
}

func useColor(mode string, noColor bool) bool {
	if noColor || os.Getenv("NO_COLOR") != "" {
		return false
	}
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	return isTerminalIO()
}

func isTerminalIO() bool {
	stdout := os.Stdout.Fd()
	return isatty.IsTerminal(stdout) || isatty.IsCygwinTerminal(stdout)
}
