package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/simon-1M/closurec/bytecode"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	require.Nil(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	c := Default()
	require.Nil(t, c.Validate())
	require.Equal(t, uint32(bytecode.DefaultVersion), c.FormatVersion)
	require.True(t, c.Verify)
	require.Len(t, c.Options(zerolog.Nop()), 3)
}

func TestLoad(t *testing.T) {
	path := write(t, `
format_version = 8
parallelism = 2
log_level = "debug"
color = "never"
verify = false
`)
	c, err := Load(path)
	require.Nil(t, err)
	require.Equal(t, uint32(8), c.FormatVersion)
	require.Equal(t, 2, c.Parallelism)
	require.Equal(t, "never", c.Color)
	require.False(t, c.Verify)
	require.Equal(t, path, c.Path)

	level, err := c.Level()
	require.Nil(t, err)
	require.Equal(t, zerolog.DebugLevel, level)
	require.Len(t, c.Options(zerolog.Nop()), 4)
}

func TestLoadKeepsDefaults(t *testing.T) {
	c, err := Load(write(t, `parallelism = 3`))
	require.Nil(t, err)
	require.Equal(t, 3, c.Parallelism)
	require.Equal(t, "auto", c.Color)
	require.True(t, c.Verify)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		msg  string
	}{
		{"syntax", `parallelism = `, "parse error"},
		{"unknown key", `threads = 4`, "unknown keys"},
		{"old version", `format_version = 2`, "format_version 2 outside"},
		{"parallelism", `parallelism = 0`, "parallelism must be positive"},
		{"log level", `log_level = "loud"`, "log_level"},
		{"color", `color = "sometimes"`, "color must be"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(write(t, tt.body))
			require.NotNil(t, err)
			require.Contains(t, err.Error(), tt.msg)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NotNil(t, err)
	require.Contains(t, err.Error(), "cannot read")
}

func TestFindAndLoad(t *testing.T) {
	c, err := FindAndLoad(t.TempDir())
	require.Nil(t, err)
	require.Equal(t, Default(), c)

	path := write(t, `color = "always"`)
	c, err = FindAndLoad(filepath.Dir(path))
	require.Nil(t, err)
	require.Equal(t, "always", c.Color)
}
