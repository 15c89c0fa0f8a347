// Package dbbench provisions ephemeral MySQL containers for benchmark and test runs.
//
// Each [Instance] owns one container on its own host port and one client handle to the server
// inside it. [New] picks a port that no other container or listener holds, launches the container,
// and blocks until the server accepts connections. Launch failures and containers that vanish or
// exit during startup fail fast; a slow start is retried until the budget configured with
// [WithRetryBudget] runs out.
//
// [Instance.Execute] runs a semicolon-delimited batch and returns the rows of the last statement.
// A bad statement is reported in the returned text rather than as an error, so a harness can
// record failing SQL and keep going.
//
// Release an Instance with [Instance.Delete] (or Close), or let [With] scope it:
//
//	manager, err := dockermanage.NewManager(logger)
//	if err != nil {
//		return err
//	}
//	defer manager.Close()
//	err = dbbench.With(ctx, manager, func(ctx context.Context, inst *dbbench.Instance) error {
//		out, err := inst.Execute(ctx, "CREATE DATABASE bench; SELECT 1", "")
//		...
//	})
package dbbench
