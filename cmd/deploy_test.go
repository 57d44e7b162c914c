package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"flakeview/internal/history"
	"flakeview/internal/local"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const orderedPipeline = `views:
  - name: t1
    query: CREATE OR REPLACE VIEW t1 AS SELECT 1 AS x
  - name: t2
    query: CREATE OR REPLACE VIEW t2 AS SELECT x FROM t1
`

const reversedPipeline = `views:
  - name: t2
    query: CREATE OR REPLACE VIEW t2 AS SELECT x FROM t1
  - name: t1
    query: CREATE OR REPLACE VIEW t1 AS SELECT 1 AS x
`

const brokenPipeline = `views:
  - name: t1
    query: CREATE OR REPLACE VIEW t1 AS SELECT 1 AS x
  - name: t2
    query: CREATE OR REPLACE VIEW t2 AS SELECT y FROM missing_source
  - name: t3
    query: CREATE OR REPLACE VIEW t3 AS SELECT x FROM t1
`

const fixedPipeline = `views:
  - name: t1
    query: CREATE OR REPLACE VIEW t1 AS SELECT 1 AS x
  - name: t2
    query: CREATE OR REPLACE VIEW t2 AS SELECT x AS y FROM t1
  - name: t3
    query: CREATE OR REPLACE VIEW t3 AS SELECT x FROM t1
`

func writePipeline(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func duckdbViews(t *testing.T, path string) []string {
	t.Helper()
	store, err := local.Open(t.Context(), path)
	require.NoError(t, err)
	defer store.Close()

	views, err := store.Views(t.Context())
	require.NoError(t, err)
	return views
}

func historyRecords(t *testing.T, home string) []*history.Record {
	t.Helper()
	hm, err := history.NewManager(filepath.Join(home, ".flakeview", "history"))
	require.NoError(t, err)
	return hm.List(0)
}

func TestDeployDuckDB(t *testing.T) {
	home := testEnv(t)
	dir := t.TempDir()
	db := filepath.Join(dir, "rehearsal.duckdb")
	pipe := writePipeline(t, dir, orderedPipeline)

	res := execute(t, "deploy", "--target", "duckdb", "--duckdb", db, "--pipeline", pipe, "--yes")
	require.Equal(t, ExitOK, res.code, res.errOut)
	assert.Contains(t, res.out, "2 views applied")

	assert.ElementsMatch(t, []string{"t1", "t2"}, duckdbViews(t, db))

	records := historyRecords(t, home)
	require.Len(t, records, 1)
	assert.Equal(t, history.StateCompleted, records[0].State)
	assert.Equal(t, pipe, records[0].Pipeline)
	assert.Len(t, records[0].Views, 2)
}

func TestDeployRejectsOutOfOrderPipeline(t *testing.T) {
	home := testEnv(t)
	dir := t.TempDir()
	db := filepath.Join(dir, "rehearsal.duckdb")
	pipe := writePipeline(t, dir, reversedPipeline)

	res := execute(t, "deploy", "--target", "duckdb", "--duckdb", db, "--pipeline", pipe, "--yes")
	assert.Equal(t, ExitValidation, res.code)
	assert.Contains(t, res.errOut, "defined later")
	assert.Empty(t, historyRecords(t, home), "nothing is executed when validation fails")
}

func TestDeployNoValidateStopsAtFirstFailure(t *testing.T) {
	home := testEnv(t)
	dir := t.TempDir()
	db := filepath.Join(dir, "rehearsal.duckdb")
	pipe := writePipeline(t, dir, reversedPipeline)

	res := execute(t, "deploy", "--target", "duckdb", "--duckdb", db, "--pipeline", pipe, "--no-validate", "--yes")
	assert.Equal(t, ExitDeployment, res.code)
	assert.Contains(t, res.out, "not attempted")

	assert.Empty(t, duckdbViews(t, db))

	records := historyRecords(t, home)
	require.Len(t, records, 1)
	assert.Equal(t, history.StateFailed, records[0].State)
	assert.Equal(t, "t2", records[0].FailedView)
	assert.Equal(t, []string{"t1"}, records[0].Pending)
}

func TestDeploySortFixesOrder(t *testing.T) {
	testEnv(t)
	dir := t.TempDir()
	db := filepath.Join(dir, "rehearsal.duckdb")
	pipe := writePipeline(t, dir, reversedPipeline)

	res := execute(t, "deploy", "--target", "duckdb", "--duckdb", db, "--pipeline", pipe, "--sort", "--yes")
	require.Equal(t, ExitOK, res.code, res.errOut)
	assert.ElementsMatch(t, []string{"t1", "t2"}, duckdbViews(t, db))
}

func TestDeployDryRun(t *testing.T) {
	home := testEnv(t)
	dir := t.TempDir()
	db := filepath.Join(dir, "rehearsal.duckdb")
	pipe := writePipeline(t, dir, orderedPipeline)

	res := execute(t, "deploy", "--target", "duckdb", "--duckdb", db, "--pipeline", pipe, "--dry-run")
	require.Equal(t, ExitOK, res.code, res.errOut)
	assert.Contains(t, res.out, "(dry run)")
	assert.Contains(t, res.out, "2 views planned")

	_, err := os.Stat(db)
	assert.True(t, os.IsNotExist(err), "dry run must not open the database")
	assert.Empty(t, historyRecords(t, home))
}

func TestDeployResume(t *testing.T) {
	home := testEnv(t)
	dir := t.TempDir()
	db := filepath.Join(dir, "rehearsal.duckdb")
	pipe := writePipeline(t, dir, brokenPipeline)

	res := execute(t, "deploy", "--target", "duckdb", "--duckdb", db, "--pipeline", pipe, "--yes")
	require.Equal(t, ExitDeployment, res.code)
	assert.Equal(t, []string{"t1"}, duckdbViews(t, db))

	writePipeline(t, dir, fixedPipeline)
	res = execute(t, "deploy", "--target", "duckdb", "--duckdb", db, "--pipeline", pipe, "--resume", "--yes")
	require.Equal(t, ExitOK, res.code, res.errOut)
	assert.Contains(t, res.out, "Resuming deployment")
	assert.Contains(t, res.out, "2 views applied")
	assert.ElementsMatch(t, []string{"t1", "t2", "t3"}, duckdbViews(t, db))

	records := historyRecords(t, home)
	require.Len(t, records, 2)
	assert.Equal(t, history.StateCompleted, records[0].State)
	assert.Equal(t, records[1].ID, records[0].PreviousID)

	// nothing left to resume
	res = execute(t, "deploy", "--target", "duckdb", "--duckdb", db, "--pipeline", pipe, "--resume", "--yes")
	assert.Equal(t, ExitValidation, res.code)
	assert.Contains(t, res.errOut, "nothing to resume")
}

func TestDeployFromAndSelect(t *testing.T) {
	testEnv(t)
	dir := t.TempDir()
	db := filepath.Join(dir, "rehearsal.duckdb")
	pipe := writePipeline(t, dir, fixedPipeline)

	res := execute(t, "deploy", "--target", "duckdb", "--duckdb", db, "--pipeline", pipe, "--from", "t3", "--yes")
	require.Equal(t, ExitDeployment, res.code, "t3 reads t1, which was never created")

	res = execute(t, "deploy", "--target", "duckdb", "--duckdb", db, "--pipeline", pipe, "--select", "t1", "--yes")
	require.Equal(t, ExitOK, res.code, res.errOut)
	assert.Contains(t, res.out, "3 views applied", "selecting t1 brings its dependents")

	res = execute(t, "deploy", "--target", "duckdb", "--pipeline", pipe, "--from", "nope", "--yes")
	assert.Equal(t, ExitValidation, res.code)

	res = execute(t, "deploy", "--target", "duckdb", "--pipeline", pipe, "--from", "t1", "--resume")
	assert.Equal(t, ExitInternal, res.code, "flag conflicts are usage errors")
}

func TestDeployWithoutCredential(t *testing.T) {
	testEnv(t)

	res := execute(t, "deploy",
		"--account", "xy12345", "--user", "DEPLOY_USER", "--warehouse", "QUICKSTART_WH",
		"--database", "QUICKSTART_PROD", "--schema", "SILVER", "--yes")
	assert.Equal(t, ExitConfig, res.code)
	assert.Contains(t, res.errOut, "No Snowflake credential configured")
}

func TestDeployMissingConnectionSetting(t *testing.T) {
	testEnv(t)
	t.Setenv("SNOWFLAKE_PASSWORD", "secret")

	res := execute(t, "deploy", "--account", "xy12345", "--user", "DEPLOY_USER", "--yes")
	assert.Equal(t, ExitConfig, res.code)
	assert.Contains(t, res.errOut, "snowflake.warehouse is required")
}
