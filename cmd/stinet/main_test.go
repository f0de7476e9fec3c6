package main

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/stinet/internal/infrastructure/config"
)

// execute runs the root command with args against dir and returns stdout.
func execute(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--dir", dir}, args...))
	err := cmd.ExecuteContext(t.Context())
	return out.String(), err
}

func clearEnv(t *testing.T) {
	t.Setenv("STINET_REDIS_ADDR", "")
	t.Setenv("STINET_REDIS_PASSWORD", "")
	t.Setenv("STINET_LOG_LEVEL", "error")
	t.Setenv("STINET_RANK", "")
}

var runIDPattern = regexp.MustCompile(`run ([0-9a-f-]{36})`)

func TestCLI_Workflow(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	out, err := execute(t, dir, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "stinet initialized successfully!")
	assert.True(t, config.Exists(dir))
	assert.FileExists(t, config.SQLitePathForScenario(dir, config.DefaultScenario))

	_, err = execute(t, dir, "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already initialized")

	out, err = execute(t, dir, "scenarios", "create", "small", "--nodes", "2", "--individuals", "30", "--steps", "4", "--seed", "7")
	require.NoError(t, err)
	assert.Contains(t, out, `Created scenario "small"`)

	out, err = execute(t, dir, "scenarios", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "small")

	out, err = execute(t, dir, "-s", "small", "run")
	require.NoError(t, err)
	assert.Contains(t, out, "individuals:   60")
	match := runIDPattern.FindStringSubmatch(out)
	require.Len(t, match, 2, out)
	runID := match[1]
	assert.FileExists(t, config.SQLitePathForScenario(dir, "small"))

	out, err = execute(t, dir, "-s", "small", "run", "--resume", runID, "--steps", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Resumed run "+runID+" (steps 4-6)")

	out, err = execute(t, dir, "-s", "small", "runs")
	require.NoError(t, err)
	assert.Contains(t, out, runID)

	out, err = execute(t, dir, "-s", "small", "relationships", runID, "--step", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "step 4: 60 individuals")

	_, err = execute(t, dir, "-s", "small", "events", runID)
	require.NoError(t, err)

	exportPath := filepath.Join(dir, "rels.csv")
	out, err = execute(t, dir, "-s", "small", "export", runID, "--format", "csv", "--output", exportPath)
	require.NoError(t, err)
	assert.Contains(t, out, "of step 6")
	data, err := os.ReadFile(exportPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "id,type,state,"))

	out, err = execute(t, dir, "-s", "small", "runs", "delete", runID)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted run")

	out, err = execute(t, dir, "-s", "small", "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "No runs found.")

	out, err = execute(t, dir, "scenarios", "delete", "small")
	require.NoError(t, err)
	assert.Contains(t, out, `Deleted scenario "small"`)
	assert.NoDirExists(t, config.ScenarioDir(dir, "small"))
}

func TestCLI_RunWithPopulationFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	_, err := execute(t, dir, "init")
	require.NoError(t, err)

	path := filepath.Join(dir, "people.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,gender,age_years,node,infected\n1,M,25,1,true\n2,F,23,1,\n"), 0644))

	out, err := execute(t, dir, "import", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Valid: 2 individuals, 1 infected")

	out, err = execute(t, dir, "run", "--population", path, "--steps", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "imported:      2 individuals (1 infected)")
	assert.Contains(t, out, "individuals:   2")
}

func TestCLI_ImportReportsInvalidRows(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	_, err := execute(t, dir, "init")
	require.NoError(t, err)

	path := filepath.Join(dir, "people.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,gender,age_years,node\n1,Z,25,1\n"), 0644))

	out, err := execute(t, dir, "import", path)

	require.Error(t, err)
	assert.Contains(t, out, "Validation errors (1)")
	assert.Contains(t, out, "line 2")
}

func TestCLI_Errors(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	t.Run("not initialized", func(t *testing.T) {
		_, err := execute(t, dir, "runs")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "stinet init")
	})

	_, err := execute(t, dir, "init")
	require.NoError(t, err)

	t.Run("unknown scenario", func(t *testing.T) {
		_, err := execute(t, dir, "-s", "missing", "runs")
		require.Error(t, err)
	})

	t.Run("reserved scenario name", func(t *testing.T) {
		_, err := execute(t, dir, "scenarios", "create", "Default")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reserved")
	})

	t.Run("invalid relationship type", func(t *testing.T) {
		_, err := execute(t, dir, "relationships", "some-run", "--type", "casual")
		require.Error(t, err)
	})

	t.Run("invalid export format", func(t *testing.T) {
		_, err := execute(t, dir, "export", "some-run", "--format", "xml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid format")
	})

	t.Run("resume unknown run", func(t *testing.T) {
		_, err := execute(t, dir, "run", "--resume", "missing")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "run not found")
	})
}
