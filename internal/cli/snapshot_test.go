package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotImport(t *testing.T) {
	dir := t.TempDir()
	fixturePath := writeFixture(t, dir, teamsFixture)
	dbPath := filepath.Join(dir, "teams.db")

	run := execute(t, "--format", "json", "snapshot", "import", fixturePath, "--db", dbPath)
	require.NoError(t, run.err, run.stdout.String())
	assert.FileExists(t, dbPath)

	var resp struct {
		Status string        `json:"status"`
		Data   ImportSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(run.stdout.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, ImportSummary{
		Fixture:         fixturePath,
		Database:        dbPath,
		Databases:       1,
		ObjectStores:    3,
		Records:         6,
		LocalEntries:    2,
		SessionVersions: 2,
	}, resp.Data)
}

func TestSnapshotImport_ExistingDatabase(t *testing.T) {
	dir := t.TempDir()
	fixturePath := writeFixture(t, dir, teamsFixture)
	dbPath := filepath.Join(dir, "teams.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("not a snapshot"), 0o644))

	run := execute(t, "snapshot", "import", fixturePath, "--db", dbPath)
	require.Error(t, run.err)
	assert.Equal(t, ExitCommandError, GetExitCode(run.err))
	assert.Contains(t, run.stdout.String(), "--force")

	run = execute(t, "snapshot", "import", fixturePath, "--db", dbPath, "--force")
	require.NoError(t, run.err, run.stdout.String())
	assert.Contains(t, run.stdout.String(), "✓ Imported 1 database(s), 3 object store(s), 6 record(s)")
}

func TestSnapshotImport_BadFixture(t *testing.T) {
	dir := t.TempDir()
	fixturePath := writeFixture(t, dir, "databases: [")

	run := execute(t, "snapshot", "import", fixturePath, "--db", filepath.Join(dir, "teams.db"))
	require.Error(t, run.err)
	assert.Equal(t, ExitCommandError, GetExitCode(run.err))
	assert.NoFileExists(t, filepath.Join(dir, "teams.db"))
}

func TestSnapshotImport_MissingDBFlag(t *testing.T) {
	dir := t.TempDir()
	fixturePath := writeFixture(t, dir, teamsFixture)

	run := execute(t, "snapshot", "import", fixturePath)
	require.Error(t, run.err)
	assert.Contains(t, run.err.Error(), "required flag")
	assert.Contains(t, run.err.Error(), "db")
}
