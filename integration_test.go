package dbbench_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pressly/dbbench"
	"github.com/pressly/dbbench/internal/testdb"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestMain(m *testing.M) {
	testdb.WrapTestMain(m)
}

func TestIntegrationExecute(t *testing.T) {
	t.Parallel()

	inst := testdb.New(t)
	ctx := context.Background()

	out, err := inst.Execute(ctx, "SELECT 1; SELECT 2;", "")
	require.NoError(t, err)
	require.Equal(t, "[[2]]", out)

	out, err = inst.Execute(ctx, "CREATE DATABASE bench; CREATE TABLE bench.t (id INT, name VARCHAR(10))", "")
	require.NoError(t, err)
	require.Equal(t, "[]", out)

	out, err = inst.Execute(ctx, "INSERT INTO t VALUES (1, 'a'), (2, NULL); SELECT id, name FROM t ORDER BY id", "bench")
	require.NoError(t, err)
	require.Equal(t, `[[1,"a"],[2,null]]`, out)

	out, err = inst.Execute(ctx, "SELEC 1", "")
	require.NoError(t, err)
	require.Contains(t, out, "You have an error in your SQL syntax")

	out, err = inst.Execute(ctx, "SELECT 1", "missing")
	require.NoError(t, err)
	require.Contains(t, out, "Unknown database")
}

func TestIntegrationConcurrentInstances(t *testing.T) {
	t.Parallel()

	runtime := testdb.Runtime(t)
	ctx := context.Background()
	const n = 3
	ports := make([]int, n)
	var g errgroup.Group
	for idx := range n {
		g.Go(func() error {
			return dbbench.With(ctx, runtime, func(ctx context.Context, inst *dbbench.Instance) error {
				ports[idx] = inst.Port()
				_, err := inst.Execute(ctx, "CREATE DATABASE isolated", "")
				return err
			})
		})
	}
	require.NoError(t, g.Wait())
	seen := make(map[int]bool)
	for _, port := range ports {
		require.False(t, seen[port], "port %d allocated twice", port)
		seen[port] = true
	}
}

func TestIntegrationContainerExited(t *testing.T) {
	t.Parallel()

	runtime := testdb.Runtime(t)
	inst, err := dbbench.New(context.Background(), runtime,
		dbbench.WithCommand("mysqld", "--no-such-option"),
		dbbench.WithRetryBudget(60, 2*time.Second),
	)
	require.NotNil(t, inst)
	defer inst.Delete(context.Background())
	require.ErrorIs(t, err, dbbench.ErrContainerExited)

	var rerr *dbbench.ReadinessError
	require.ErrorAs(t, err, &rerr)
	require.NotZero(t, rerr.ExitCode)
	require.True(t, strings.Contains(rerr.Logs, "no-such-option"), rerr.Logs)
}

func TestIntegrationDelete(t *testing.T) {
	t.Parallel()

	runtime := testdb.Runtime(t)
	ctx := context.Background()
	inst, err := dbbench.New(ctx, runtime)
	require.NoError(t, err)
	name := inst.ContainerName()

	inst.Delete(ctx)
	inst.Delete(ctx)
	exists, err := runtime.Exists(ctx, name)
	require.NoError(t, err)
	require.False(t, exists)

	_, err = inst.Execute(ctx, "SELECT 1", "")
	require.ErrorIs(t, err, dbbench.ErrDeleted)
}
