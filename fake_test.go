package dbbench

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pressly/dbbench/pkg/dockermanage"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

var (
	stateCreated = dockermanage.State{Status: dockermanage.StatusCreated}
	stateRunning = dockermanage.State{Status: dockermanage.StatusRunning, Running: true}
	stateExited  = dockermanage.State{Status: dockermanage.StatusExited, ExitCode: 1}
)

// fakeRuntime is an in-memory ContainerRuntime. Inspect walks through states and then repeats the
// last one.
type fakeRuntime struct {
	mu sync.Mutex

	states      []dockermanage.State
	inspectErrs []error
	startErrs   []error
	stopErr     error
	removeErr   error
	logs        string
	// exists reports every container name as taken.
	exists bool

	startCalls   int
	inspectCalls int
	stopCalls    int
	removeCalls  int
	logTails     []int
}

var _ ContainerRuntime = (*fakeRuntime)(nil)

func (f *fakeRuntime) Start(context.Context, ...dockermanage.Option) (*dockermanage.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	if f.startCalls <= len(f.startErrs) && f.startErrs[f.startCalls-1] != nil {
		return nil, f.startErrs[f.startCalls-1]
	}
	return &dockermanage.Container{
		ID:   fmt.Sprintf("container-%d", f.startCalls),
		Name: fmt.Sprintf("fake-%d", f.startCalls),
	}, nil
}

func (f *fakeRuntime) Inspect(context.Context, string) (*dockermanage.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inspectCalls++
	if f.inspectCalls <= len(f.inspectErrs) && f.inspectErrs[f.inspectCalls-1] != nil {
		return nil, f.inspectErrs[f.inspectCalls-1]
	}
	if len(f.states) == 0 {
		st := stateRunning
		return &st, nil
	}
	idx := min(f.inspectCalls-1, len(f.states)-1)
	st := f.states[idx]
	return &st, nil
}

func (f *fakeRuntime) Logs(_ context.Context, _ string, tail int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logTails = append(f.logTails, tail)
	return f.logs, nil
}

func (f *fakeRuntime) Stop(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return f.stopErr
}

func (f *fakeRuntime) Remove(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeCalls++
	return f.removeErr
}

func (f *fakeRuntime) Exists(context.Context, string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exists, nil
}

// fakeDialer fails with errs in order, then with always if set, and otherwise opens a SQLite
// database in dir standing in for the server.
type fakeDialer struct {
	mu     sync.Mutex
	dir    string
	errs   []error
	always error
	calls  int
}

func (d *fakeDialer) dial(ctx context.Context, _ *mysql.Config) (*sql.DB, error) {
	d.mu.Lock()
	d.calls++
	calls := d.calls
	d.mu.Unlock()
	if calls <= len(d.errs) {
		return nil, d.errs[calls-1]
	}
	if d.always != nil {
		return nil, d.always
	}
	db, err := sql.Open("sqlite", filepath.Join(d.dir, "bench.db"))
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (d *fakeDialer) dialCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

var errRefused = &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}

// freePort returns a loopback port that was free a moment ago.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

// testOptions returns options for a fast, deterministic instance backed by dialer.
func testOptions(t *testing.T, dialer *fakeDialer, extra ...Option) []Option {
	t.Helper()
	if dialer.dir == "" {
		dialer.dir = t.TempDir()
	}
	opts := []Option{
		WithPortRange(freePort(t), 0),
		WithRetryBudget(10, time.Millisecond),
		WithProtocolRetry(time.Millisecond, 10),
		withDialer(dialer.dial),
	}
	return append(opts, extra...)
}

// newTestInstance returns a ready instance over SQLite. It is deleted when the test ends.
func newTestInstance(t *testing.T) (*Instance, *fakeRuntime) {
	t.Helper()
	runtime := &fakeRuntime{}
	inst, err := New(context.Background(), runtime, testOptions(t, &fakeDialer{})...)
	require.NoError(t, err)
	t.Cleanup(func() { inst.Delete(context.Background()) })
	return inst, runtime
}
