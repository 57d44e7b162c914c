package cmd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryEmpty(t *testing.T) {
	testEnv(t)

	res := execute(t, "history")
	require.Equal(t, ExitOK, res.code, res.errOut)
	assert.Contains(t, res.out, "No deployments recorded yet")
}

func TestHistoryListAndShow(t *testing.T) {
	home := testEnv(t)
	dir := t.TempDir()
	db := filepath.Join(dir, "rehearsal.duckdb")
	pipe := writePipeline(t, dir, brokenPipeline)

	require.Equal(t, ExitDeployment, execute(t, "deploy", "--target", "duckdb", "--duckdb", db, "--pipeline", pipe, "--yes").code)

	records := historyRecords(t, home)
	require.Len(t, records, 1)
	id := records[0].ID

	res := execute(t, "history")
	require.Equal(t, ExitOK, res.code, res.errOut)
	assert.Contains(t, res.out, id)
	assert.Contains(t, res.out, "failed")
	assert.Contains(t, res.out, "1/3")

	res = execute(t, "history", "--show", id)
	require.Equal(t, ExitOK, res.code, res.errOut)
	assert.Contains(t, res.out, "missing_source")
	assert.Contains(t, res.out, "not attempted")
	assert.Contains(t, res.out, "starts at t2")

	res = execute(t, "history", "--show", "no-such-id")
	assert.Equal(t, ExitValidation, res.code)
}
