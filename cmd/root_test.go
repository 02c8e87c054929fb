package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biomed-sul/leadscout/internal/config"
)

// withConfig installs c as the global config for the duration of the test.
func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"run", "collect", "enrich", "dedupe", "reset", "status"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "leadscout", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestCollectCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range collectCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"locations", "directory", "search", "coordinates"} {
		assert.True(t, names[name], "collect should have subcommand %q", name)
	}
}

func TestRunCommand_Flags(t *testing.T) {
	for _, name := range []string{"skip-directory", "skip-search", "skip-enrich", "refresh-locations"} {
		flag := runCmd.Flags().Lookup(name)
		require.NotNil(t, flag, "run should have --%s", name)
		assert.Equal(t, "false", flag.DefValue)
	}
	flag := runCmd.Flags().Lookup("metrics-addr")
	require.NotNil(t, flag)
	assert.Empty(t, flag.DefValue)
}

func TestResetCommand_Flags(t *testing.T) {
	assert.NotNil(t, resetCmd.Flags().Lookup("search-log"))
	assert.NotNil(t, resetCmd.Flags().Lookup("all"))
}

func TestResetCommand_RequiresOneFlag(t *testing.T) {
	resetSearchLog, resetAll = false, false
	err := resetCmd.RunE(resetCmd, nil)
	assert.ErrorContains(t, err, "exactly one")

	resetSearchLog, resetAll = true, true
	t.Cleanup(func() { resetSearchLog, resetAll = false, false })
	err = resetCmd.RunE(resetCmd, nil)
	assert.ErrorContains(t, err, "exactly one")
}
