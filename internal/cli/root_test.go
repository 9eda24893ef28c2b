package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := NewRootCmd()

	cmd, _, err := root.Find([]string{"import", "run"})
	require.NoError(t, err)
	assert.Equal(t, "run", cmd.Name())
	assert.Equal(t, "configs/pipelines.yaml", cmd.Flags().Lookup("file").DefValue)

	for _, name := range []string{"status", "failures"} {
		cmd, _, err := root.Find([]string{"import", name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestImportRun_RequiresEntities(t *testing.T) {
	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"import", "run", "-f", "missing.yaml"})

	err := root.Execute()
	assert.ErrorContains(t, err, "nothing to import")
}

func TestImportStatus_RequiresEntityID(t *testing.T) {
	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"import", "status"})

	assert.Error(t, root.Execute())
}
