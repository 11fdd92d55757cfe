package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/simon-1M/closurec/bytecode"
	"github.com/simon-1M/closurec/op"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(append([]string{"--no-color"}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// examples writes the example modules into a temporary directory.
func examples(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	out, _, err := execute(t, "examples", dir)
	require.Nil(t, err)
	require.Len(t, strings.Split(strings.TrimSpace(out), "\n"), len(exampleModules()))
	return dir
}

func TestDisassembly(t *testing.T) {
	dir := examples(t)
	path := filepath.Join(dir, "0x42_test"+Extension)

	out, _, err := execute(t, "dis", path)
	require.Nil(t, err)
	require.True(t, strings.HasPrefix(out, "module 0x42::test (format v8)\n"))
	require.Contains(t, out, "CallClosure(")

	out, _, err = execute(t, "dis", "--func", "len", path)
	require.Nil(t, err)
	require.True(t, strings.HasPrefix(out, "public fun len(Arg0: &MyList): u64\n"))
	require.Contains(t, out, "| BLOCK |")
	require.Contains(t, out, "ImmBorrowField")

	_, _, err = execute(t, "dis", "--func", "nope", path)
	require.NotNil(t, err)
	require.Contains(t, err.Error(), `function "nope" not found`)
}

func TestVerify(t *testing.T) {
	dir := examples(t)
	paths, err := filepath.Glob(filepath.Join(dir, "*"+Extension))
	require.Nil(t, err)
	require.Len(t, paths, len(exampleModules()))

	out, _, err := execute(t, append([]string{"verify"}, paths...)...)
	require.Nil(t, err)
	require.Equal(t, len(paths), strings.Count(out, "bytecode verification succeeded"))

	// Drop the result of len, leaving its signature unsatisfied.
	path := filepath.Join(dir, "0x42_test"+Extension)
	data, err := os.ReadFile(path)
	require.Nil(t, err)
	m, err := bytecode.Decode(data)
	require.Nil(t, err)
	i := m.FunctionIndex("len")
	m.Functions[i].Code = bytecode.EncodeCode([]bytecode.Instruction{{Op: op.Ret}})
	bad := filepath.Join(t.TempDir(), "bad"+Extension)
	data, err = bytecode.Encode(m)
	require.Nil(t, err)
	require.Nil(t, os.WriteFile(bad, data, 0o644))

	out, _, err = execute(t, "verify", paths[0], bad)
	require.NotNil(t, err)
	require.Contains(t, err.Error(), "verification failed for 1 of 2 modules")
	require.Contains(t, out, "0x42::test::len")

	garbage := filepath.Join(t.TempDir(), "garbage"+Extension)
	require.Nil(t, os.WriteFile(garbage, []byte("not a module"), 0o644))
	_, _, err = execute(t, "verify", garbage)
	require.NotNil(t, err)
	require.Contains(t, err.Error(), "bad magic")
}

func TestRun(t *testing.T) {
	dir := examples(t)
	file := func(name string) string { return filepath.Join(dir, "0x42_"+name+Extension) }

	out, _, err := execute(t, "run", file("capture"), "add_offset", "3", "4")
	require.Nil(t, err)
	require.Equal(t, "10\n", out)

	out, _, err = execute(t, "run", file("tuples"), "divmod", "17", "5", "--output", "json")
	require.Nil(t, err)
	require.Equal(t, "[\n  3,\n  2\n]\n", out)

	out, _, err = execute(t, "run", file("test"), "test", "1")
	require.Nil(t, err)
	require.Equal(t, "", out)

	_, stderr, err := execute(t, "run", file("test"), "test", "2")
	require.NotNil(t, err)
	require.Contains(t, stderr, "abort: code 1")
	require.Contains(t, stderr, "Stack trace:")

	_, _, err = execute(t, "run", file("capture"), "add_offset", "3")
	require.NotNil(t, err)
	require.Contains(t, err.Error(), "takes 2 arguments (1 given)")

	_, _, err = execute(t, "run", file("capture"), "add_offset", "3", "x")
	require.NotNil(t, err)
	require.Contains(t, err.Error(), "argument 1")
}

func TestConfigFlag(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "closurec.toml")
	require.Nil(t, os.WriteFile(cfg, []byte("format_version = 6\n"), 0o644))

	// Version 6 cannot hold closures, so only closure-free examples compile.
	dir := t.TempDir()
	out, _, err := execute(t, "--config", cfg, "examples", dir)
	require.NotNil(t, err)
	require.Contains(t, out, "0x42_loops"+Extension)
	require.NotContains(t, out, "0x42_test"+Extension)

	_, _, err = execute(t, "--config", filepath.Join(t.TempDir(), "missing.toml"), "examples", dir)
	require.NotNil(t, err)

	_, _, err = execute(t, "--log-level", "loud", "examples", dir)
	require.NotNil(t, err)
	require.Contains(t, err.Error(), "log_level")
}

func TestEnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CLOSUREC_FORMAT_VERSION", "6")
	out, _, err := execute(t, "examples", dir)
	require.NotNil(t, err)
	require.Contains(t, out, "0x42_loops"+Extension)
	require.NotContains(t, out, "0x42_test"+Extension)

	// The environment wins over the file.
	cfg := filepath.Join(t.TempDir(), "closurec.toml")
	require.Nil(t, os.WriteFile(cfg, []byte("format_version = 6\n"), 0o644))
	t.Setenv("CLOSUREC_FORMAT_VERSION", "8")
	_, _, err = execute(t, "--config", cfg, "examples", t.TempDir())
	require.Nil(t, err)

	// The flag wins over the environment.
	t.Setenv("CLOSUREC_LOG_LEVEL", "loud")
	_, _, err = execute(t, "examples", t.TempDir())
	require.NotNil(t, err)
	require.Contains(t, err.Error(), "log_level")
	_, _, err = execute(t, "--log-level", "error", "examples", t.TempDir())
	require.Nil(t, err)
}

func TestConfigRejectsUnknownKeys(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "closurec.toml")
	require.Nil(t, os.WriteFile(cfg, []byte("format_version = 8\nbogus = 1\n"), 0o644))
	_, _, err := execute(t, "--config", cfg, "examples", t.TempDir())
	require.NotNil(t, err)
	require.Contains(t, err.Error(), "bogus")
}
