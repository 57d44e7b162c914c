package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"flakeview/internal/config"
	"flakeview/internal/security"
	"flakeview/internal/ui"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type result struct {
	code   int
	out    string
	errOut string
}

// testEnv points HOME at a temp dir and clears the Snowflake variables a
// developer machine or CI runner may carry.
func testEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(config.ConfigEnv, "")
	t.Setenv(security.KeyringEnv, "false")
	for _, name := range []string{
		"SNOWFLAKE_ACCOUNT", "SNOWFLAKE_USER", "SNOWFLAKE_PASSWORD",
		"SNOWFLAKE_PRIVATE_KEY", "SNOWFLAKE_PRIVATE_KEY_PATH", "SNOWFLAKE_ROLE",
		"SNOWFLAKE_WAREHOUSE", "SNOWFLAKE_DATABASE", "SNOWFLAKE_SCHEMA",
	} {
		t.Setenv(name, "")
	}
	return home
}

// resetFlags restores every flag of c and its subcommands to its default.
// Command trees are package globals, so parsed values survive between runs.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func execute(t *testing.T, args ...string) result {
	t.Helper()

	var out, errOut bytes.Buffer
	oldOut, oldErr := ui.Output, ui.ErrOutput
	ui.Output, ui.ErrOutput = &out, &errOut
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	defer func() {
		ui.Output, ui.ErrOutput = oldOut, oldErr
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	}()

	resetFlags(rootCmd)
	code := run(context.Background(), args)
	return result{code: code, out: out.String(), errOut: errOut.String()}
}

func TestRootCommandHelp(t *testing.T) {
	testEnv(t)

	res := execute(t, "--help")
	assert.Equal(t, ExitOK, res.code)
	assert.Contains(t, res.out, "Available Commands:")
	for _, name := range []string{"keygen", "deploy", "plan", "history", "config", "version"} {
		assert.Contains(t, res.out, name)
	}
}

func TestInvalidCommand(t *testing.T) {
	testEnv(t)

	res := execute(t, "invalid-command")
	assert.Equal(t, ExitInternal, res.code)
	assert.Contains(t, res.errOut, "unknown command")
}

func TestVersionIgnoresBrokenConfig(t *testing.T) {
	testEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("snowflake: [unterminated"), 0600))

	res := execute(t, "--config", path, "version")
	assert.Equal(t, ExitOK, res.code)
	assert.Contains(t, res.out, "flakeview version "+Version)
}

func TestMissingConfigFile(t *testing.T) {
	testEnv(t)

	res := execute(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "plan")
	assert.Equal(t, ExitConfig, res.code)
	assert.NotEmpty(t, res.errOut)
}

func TestMalformedConfigFile(t *testing.T) {
	testEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("deployment:\n  target: oracle\n"), 0600))

	res := execute(t, "--config", path, "plan")
	assert.Equal(t, ExitConfig, res.code)
}

func TestLogFile(t *testing.T) {
	testEnv(t)
	logPath := filepath.Join(t.TempDir(), "flakeview.log")

	res := execute(t, "--log-file", logPath, "--log-level", "debug", "keygen", "--dir", t.TempDir(), "--quiet")
	require.Equal(t, ExitOK, res.code, res.errOut)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Key pair written")
	assert.True(t, strings.HasPrefix(strings.TrimSpace(string(data)), "{"))
}
