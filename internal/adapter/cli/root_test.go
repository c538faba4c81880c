package cli_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clarence1208/PAMP-submissions-service/internal/adapter/cli"
)

func writeSubmissionTree(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte(content), 0o644))
	return dir
}

func TestRunCommand_LocalSourceProducesJSONOutcome(t *testing.T) {
	dir := writeSubmissionTree(t, "package main\n\nfunc add(a, b int) int {\n\treturn a + b\n}\n")
	storePath := filepath.Join(t.TempDir(), "fingerprints.db")
	jsonOut := filepath.Join(t.TempDir(), "outcome.json")

	var stdout, stderr bytes.Buffer
	root := cli.NewRootCommand(cli.Dependencies{Args: cli.Arguments{OutWriter: &stdout, ErrWriter: &stderr}})
	root.SetArgs([]string{
		"run",
		"--submission-id", "sub-1",
		"--step-id", "step-1",
		"--source", "local:" + dir,
		"--json", jsonOut,
		"--config", t.TempDir(),
		"--quiet",
	})
	t.Setenv("SIMCHECK_STORE_PATH", storePath)

	err := root.Execute()
	require.NoError(t, err)

	_, statErr := os.Stat(jsonOut)
	assert.NoError(t, statErr)
	assert.Contains(t, stdout.String(), "sub-1")
}

func TestRunCommand_MissingRequiredFlagsFails(t *testing.T) {
	var stdout, stderr bytes.Buffer
	root := cli.NewRootCommand(cli.Dependencies{Args: cli.Arguments{OutWriter: &stdout, ErrWriter: &stderr}})
	root.SetArgs([]string{"run"})

	err := root.Execute()
	assert.Error(t, err)
}

func TestMigrateCommand_RunsAgainstFreshStore(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "fingerprints.db")

	var stdout, stderr bytes.Buffer
	root := cli.NewRootCommand(cli.Dependencies{Args: cli.Arguments{OutWriter: &stdout, ErrWriter: &stderr}})
	root.SetArgs([]string{"migrate", "--config", t.TempDir(), "--k", "5", "--w", "7"})
	t.Setenv("SIMCHECK_STORE_PATH", storePath)

	err := root.Execute()
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "migrated store")
}
