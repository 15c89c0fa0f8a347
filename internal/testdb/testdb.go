// Package testdb starts real MySQL instances for integration tests.
//
// Tests using it are skipped unless DBBENCH_INTEGRATION is true, since they need a running Docker
// engine and pull the MySQL image on first use.
package testdb

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/pressly/dbbench"
	"github.com/pressly/dbbench/pkg/dockermanage"
)

// SkipUnlessIntegration skips t unless integration tests are enabled.
func SkipUnlessIntegration(t testing.TB) {
	t.Helper()
	if !envIsTrue(key_DBBENCH_INTEGRATION) {
		t.Skipf("set %s=true to run tests against a container engine", key_DBBENCH_INTEGRATION)
	}
}

// Runtime returns a Docker-backed container runtime that is closed when the test ends.
func Runtime(t testing.TB) *dockermanage.Manager {
	t.Helper()
	SkipUnlessIntegration(t)
	manager, err := dockermanage.NewManager(newLogger())
	if err != nil {
		t.Fatalf("failed to connect to docker: %v", err)
	}
	t.Cleanup(func() {
		if err := manager.Close(); err != nil {
			t.Logf("failed to close docker client: %v", err)
		}
	})
	return manager
}

// New starts a ready MySQL instance that is deleted when the test ends. With DBBENCH_NOCLEANUP set
// the container is left running and must be removed manually, for example with `dbbench prune`.
func New(t testing.TB, options ...dbbench.Option) *dbbench.Instance {
	t.Helper()
	runtime := Runtime(t)
	options = append([]dbbench.Option{dbbench.WithLogger(newLogger())}, options...)
	inst, err := dbbench.New(context.Background(), runtime, options...)
	t.Cleanup(func() {
		if inst == nil {
			return
		}
		if envIsTrue(key_DBBENCH_NOCLEANUP) {
			t.Logf("keeping container %s on port %d", inst.ContainerName(), inst.Port())
			return
		}
		inst.Delete(context.Background())
	})
	if err != nil {
		t.Fatalf("failed to start instance: %v", err)
	}
	return inst
}

func newLogger() *slog.Logger {
	if !testing.Verbose() {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
