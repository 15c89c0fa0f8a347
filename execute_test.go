package dbbench

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExecuteReturnsLastStatement(t *testing.T) {
	t.Parallel()

	inst, _ := newTestInstance(t)
	ctx := context.Background()

	out, err := inst.Execute(ctx, "SELECT 1; SELECT 2;", "")
	require.NoError(t, err)
	require.Equal(t, "[[2]]", out)

	out, err = inst.Execute(ctx, "SELECT 1, 'one'", "")
	require.NoError(t, err)
	require.Equal(t, `[[1,"one"]]`, out)
}

func TestExecuteEmptyBatch(t *testing.T) {
	t.Parallel()

	inst, _ := newTestInstance(t)
	for _, batch := range []string{"", " ", ";", " ; ;\n"} {
		out, err := inst.Execute(context.Background(), batch, "")
		require.NoError(t, err)
		require.Empty(t, out)
	}
}

func TestExecuteStatementsPersist(t *testing.T) {
	t.Parallel()

	inst, _ := newTestInstance(t)
	ctx := context.Background()

	out, err := inst.Execute(ctx, `
		CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT);
		INSERT INTO users (id, name) VALUES (1, 'alice'), (2, NULL);
	`, "")
	require.NoError(t, err)
	require.Equal(t, "[]", out)

	// Each call runs on a fresh session; committed work is visible.
	out, err = inst.Execute(ctx, "SELECT id, name FROM users ORDER BY id", "")
	require.NoError(t, err)
	require.Equal(t, `[[1,"alice"],[2,null]]`, out)

	out, err = inst.Execute(ctx, "SELECT id FROM users WHERE id > 10", "")
	require.NoError(t, err)
	require.Equal(t, "[]", out)
}

func TestExecuteStatementErrorIsResult(t *testing.T) {
	t.Parallel()

	inst, _ := newTestInstance(t)
	ctx := context.Background()

	out, err := inst.Execute(ctx, "SELEC 1", "")
	require.NoError(t, err)
	require.Contains(t, out, "syntax error")

	// The instance stays usable after a failed statement.
	out, err = inst.Execute(ctx, "SELECT 3", "")
	require.NoError(t, err)
	require.Equal(t, "[[3]]", out)
}

func TestExecuteStopsAtFirstFailure(t *testing.T) {
	t.Parallel()

	inst, _ := newTestInstance(t)
	ctx := context.Background()

	out, err := inst.Execute(ctx, "CREATE TABLE t (x INTEGER); INSERT INTO missing VALUES (1); INSERT INTO t VALUES (1)", "")
	require.NoError(t, err)
	require.Contains(t, out, "missing")

	out, err = inst.Execute(ctx, "SELECT count(*) FROM t", "")
	require.NoError(t, err)
	require.Equal(t, "[[0]]", out)
}

func TestQueryStatementError(t *testing.T) {
	t.Parallel()

	inst, _ := newTestInstance(t)

	_, err := inst.Query(context.Background(), "SELECT 1; SELECT nope FROM nowhere; SELECT 2", "")
	var stmtErr *StatementError
	require.ErrorAs(t, err, &stmtErr)
	require.Equal(t, 1, stmtErr.Index)
	require.Equal(t, "SELECT nope FROM nowhere", stmtErr.Statement)
	require.Equal(t, stmtErr.Err.Error(), err.Error())
}

func TestQuerySelectDatabase(t *testing.T) {
	t.Parallel()

	// SQLite has no USE statement, so selecting a database fails before the batch runs.
	inst, _ := newTestInstance(t)
	_, err := inst.Query(context.Background(), "SELECT 1", "bench")
	var stmtErr *StatementError
	require.ErrorAs(t, err, &stmtErr)
	require.Equal(t, -1, stmtErr.Index)
	require.Equal(t, "USE `bench`", stmtErr.Statement)

	out, err := inst.Execute(context.Background(), "SELECT 1", "bench")
	require.NoError(t, err)
	require.NotEmpty(t, out)
}

func TestExecuteKeepsNoIdleSessions(t *testing.T) {
	t.Parallel()

	inst, _ := newTestInstance(t)
	_, err := inst.Execute(context.Background(), "SELECT 1", "")
	require.NoError(t, err)
	stats := inst.db.Stats()
	require.Zero(t, stats.Idle)
	require.Zero(t, stats.InUse)
}

func TestExecuteAfterDelete(t *testing.T) {
	t.Parallel()

	inst, _ := newTestInstance(t)
	inst.Delete(context.Background())

	_, err := inst.Execute(context.Background(), "SELECT 1", "")
	require.ErrorIs(t, err, ErrDeleted)
	_, err = inst.Query(context.Background(), "SELECT 1", "")
	require.ErrorIs(t, err, ErrDeleted)
}

func TestQuoteIdentifier(t *testing.T) {
	t.Parallel()

	require.Equal(t, "`bench`", quoteIdentifier("bench"))
	require.Equal(t, "`we``ird`", quoteIdentifier("we`ird"))
}
