package main

import (
	"flag"
	"path/filepath"
	"testing"

	"github.com/urfave/cli/v2"
	"github.com/stretchr/testify/require"
)

func newContext(t *testing.T, preset string, args ...string) *cli.Context {
	t.Helper()
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	set.String("preset", preset, "")
	require.NoError(t, set.Parse(append([]string{"-preset", preset}, args...)))
	return cli.NewContext(cli.NewApp(), set, nil)
}

func TestFormatThenStatRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.efs")

	require.NoError(t, formatImage(newContext(t, "tiny", path)))
	require.NoError(t, statImage(newContext(t, "tiny", path)))
}

func TestFormatRejectsUnknownPreset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.efs")
	require.Error(t, formatImage(newContext(t, "no-such-preset", path)))
}

func TestFormatRequiresImagePath(t *testing.T) {
	require.Error(t, formatImage(newContext(t, "tiny")))
}
