package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"seed", "fetch", "update", "upload", "migrate", "status", "serve"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "fide-ratings", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestSeedCommand_Flags(t *testing.T) {
	for _, name := range []string{"file", "date", "all", "manifest", "min-rating", "continue-on-error"} {
		assert.NotNil(t, seedCmd.Flags().Lookup(name), "seed should have --%s", name)
	}
	assert.Equal(t, "0", seedCmd.Flags().Lookup("min-rating").DefValue)
	assert.Equal(t, "false", seedCmd.Flags().Lookup("continue-on-error").DefValue)
}

func TestFetchCommand_Flags(t *testing.T) {
	require.NotNil(t, fetchCmd.Flags().Lookup("from"))
	require.NotNil(t, fetchCmd.Flags().Lookup("to"))
}

func TestUploadCommand_Flags(t *testing.T) {
	flag := uploadCmd.Flags().Lookup("file")
	require.NotNil(t, flag)
	assert.Equal(t, "rankings_latest.json", flag.DefValue)
}

func TestStatusCommand_Flags(t *testing.T) {
	flag := statusCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "20", flag.DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}
