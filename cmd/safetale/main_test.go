package main

import (
	"errors"
	"flag"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseArgs(t *testing.T) {
	opts, err := parseArgs([]string{"-config", "/tmp/s.json", "-addr", ":9999", "-write-config"})
	require.NoError(t, err)
	require.Equal(t, "/tmp/s.json", opts.configPath)
	require.Equal(t, ":9999", opts.addr)
	require.True(t, opts.writeConfig)

	_, err = parseArgs([]string{"extra"})
	require.Error(t, err)

	_, err = parseArgs([]string{"-h"})
	require.True(t, errors.Is(err, flag.ErrHelp))
}
