package cmd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/axeberg/axebergos/kernel"
	"github.com/axeberg/axebergos/kernel/bootcfg"
)

func TestReplayScriptDrivesFilesystemAndProcessOps(t *testing.T) {
	k, err := kernel.Boot(bootcfg.Default())
	require.NoError(t, err)

	script := strings.Join([]string{
		`{"op":"mkdir","path":"/srv","mode":493}`,
		`{"op":"open","path":"/srv/note.txt","flags":20,"mode":420,"label":"note"}`,
		`{"op":"write","path":"/srv/note.txt","data":"hello"}`,
		`{"op":"fork","label":"child"}`,
		`{"op":"exit","pid":"child","status":7}`,
		`{"op":"waitpid","target":"child"}`,
	}, "\n")

	require.NoError(t, replayScript(k, strings.NewReader(script)))

	names, err := k.Sys.ReadDir(k.Init.Pid, "/srv")
	require.NoError(t, err)
	require.Contains(t, names, "note.txt")
}

func TestReplayScriptRejectsUnknownOp(t *testing.T) {
	k, err := kernel.Boot(bootcfg.Default())
	require.NoError(t, err)

	err = replayScript(k, strings.NewReader(`{"op":"frobnicate"}`))
	require.Error(t, err)
}
