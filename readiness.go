package dbbench

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"syscall"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pressly/dbbench/pkg/dockermanage"
	"github.com/sethvargo/go-retry"
)

const (
	// exitedLogTail and timeoutLogTail are the number of container log lines captured for
	// diagnostics on each kind of failure.
	exitedLogTail  = 100
	timeoutLogTail = 50

	// logEvery is the cadence, in attempts, of progress logging while waiting.
	logEvery = 10
)

// ReadinessState is a state of the readiness wait that follows a container launch.
type ReadinessState int

const (
	// StateStarting means the container exists but is not running yet.
	StateStarting ReadinessState = iota
	// StateConnecting means the container runs and a client connection is being attempted.
	StateConnecting
	// StateReady means a client connection succeeded.
	StateReady
	// StateFailed means the wait ended without a usable server.
	StateFailed
)

func (s ReadinessState) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("ReadinessState(%d)", int(s))
}

type connectErrorClass int

const (
	// connectErrorOther is anything unexpected; retried within the normal budget.
	connectErrorOther connectErrorClass = iota
	// connectErrorOperational means the server is not accepting connections yet.
	connectErrorOperational
	// connectErrorProtocol means the handshake itself failed, which rarely resolves on its own.
	connectErrorProtocol
)

var protocolErrors = []error{
	mysql.ErrMalformPkt,
	mysql.ErrOldProtocol,
	mysql.ErrUnknownPlugin,
	mysql.ErrNoTLS,
	mysql.ErrPktSync,
	mysql.ErrPktSyncMul,
	mysql.ErrNativePassword,
	mysql.ErrCleartextPassword,
	mysql.ErrOldPassword,
}

func classifyConnectError(err error) connectErrorClass {
	for _, target := range protocolErrors {
		if errors.Is(err, target) {
			return connectErrorProtocol
		}
	}
	var opErr *net.OpError
	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, mysql.ErrInvalidConn),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &opErr):
		return connectErrorOperational
	}
	return connectErrorOther
}

// probe drives one readiness wait. It is not safe for concurrent use.
type probe struct {
	inst   *Instance
	logger *slog.Logger

	state     ReadinessState
	attempts  int
	nextDelay time.Duration
}

// waitReady blocks until the container accepts a client connection, the budget runs out, or the
// container fails in a way that cannot recover.
func (i *Instance) waitReady(ctx context.Context) (*sql.DB, error) {
	p := &probe{
		inst:   i,
		logger: i.logger,
		state:  StateStarting,
	}
	return p.run(ctx)
}

func (p *probe) run(ctx context.Context) (*sql.DB, error) {
	cfg := p.inst.cfg
	// The delay differs per failure class, so each attempt sets the next one.
	backoff := retry.WithMaxRetries(
		uint64(cfg.maxAttempts-1),
		retry.BackoffFunc(func() (time.Duration, bool) {
			return p.nextDelay, false
		}),
	)
	var db *sql.DB
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		p.attempts++
		p.nextDelay = cfg.pollInterval
		var err error
		db, err = p.step(ctx)
		return err
	})
	if err == nil {
		p.state = StateReady
		return db, nil
	}
	var readinessErr *ReadinessError
	if errors.As(err, &readinessErr) {
		p.state = StateFailed
		return nil, readinessErr
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("wait for container %s: %w", p.inst.ContainerName(), ctxErr)
	}
	logs := p.tailLogs(ctx, timeoutLogTail)
	p.logger.Error("container did not become ready",
		slog.Int("attempts", p.attempts),
		slog.String("state", p.state.String()),
		slog.String("logs", logs),
	)
	return nil, p.fail(ErrReadinessTimeout, err, logs)
}

// step runs a single attempt. A nil error means ready; a retryable error keeps waiting; any other
// error ends the wait.
func (p *probe) step(ctx context.Context) (*sql.DB, error) {
	containerID := p.inst.ContainerID()
	state, err := p.inst.runtime.Inspect(ctx, containerID)
	if err != nil {
		if dockermanage.IsNotFound(err) {
			return nil, p.fail(ErrContainerVanished, err, "")
		}
		p.logEvery("container inspect failed", slog.Any("error", err))
		return nil, retry.RetryableError(err)
	}
	if state.Status == dockermanage.StatusExited {
		logs := p.tailLogs(ctx, exitedLogTail)
		p.logger.Error("container exited during startup",
			slog.Int("exit_code", state.ExitCode),
			slog.String("logs", logs),
		)
		rerr := p.fail(ErrContainerExited, nil, logs)
		rerr.ExitCode = state.ExitCode
		return nil, rerr
	}
	if !state.Running {
		p.state = StateStarting
		p.logEvery("waiting for container to start", slog.String("status", state.Status))
		return nil, retry.RetryableError(fmt.Errorf("container status is %s", state.Status))
	}

	p.state = StateConnecting
	attemptCtx, cancel := context.WithTimeout(ctx, p.inst.cfg.connectTimeout)
	defer cancel()
	db, err := p.inst.cfg.dial(attemptCtx, p.inst.mysqlConfig())
	if err == nil {
		return db, nil
	}
	switch classifyConnectError(err) {
	case connectErrorOperational:
		p.logEvery("server not accepting connections yet", slog.Any("error", err))
	case connectErrorProtocol:
		if p.attempts > p.inst.cfg.protocolAttemptLimit {
			return nil, p.fail(ErrProtocol, err, "")
		}
		p.logger.Debug("protocol error while connecting", slog.Int("attempt", p.attempts), slog.Any("error", err))
		p.nextDelay = p.inst.cfg.protocolDelay
	default:
		p.logEvery("unexpected error while connecting", slog.Any("error", err))
	}
	return nil, retry.RetryableError(err)
}

func (p *probe) fail(kind, err error, logs string) *ReadinessError {
	rerr := &ReadinessError{
		Kind:      kind,
		Container: p.inst.ContainerName(),
		State:     p.state,
		Attempts:  p.attempts,
		Logs:      logs,
		Err:       err,
	}
	p.state = StateFailed
	return rerr
}

// logEvery logs on the first attempt and every logEvery attempts after it.
func (p *probe) logEvery(msg string, attrs ...any) {
	if (p.attempts-1)%logEvery != 0 {
		return
	}
	attrs = append(attrs,
		slog.Int("attempt", p.attempts),
		slog.Int("max_attempts", p.inst.cfg.maxAttempts),
	)
	p.logger.Info(msg, attrs...)
}

func (p *probe) tailLogs(ctx context.Context, tail int) string {
	logs, err := p.inst.runtime.Logs(context.WithoutCancel(ctx), p.inst.ContainerID(), tail)
	if err != nil {
		p.logger.Warn("could not retrieve container logs", slog.Any("error", err))
		return ""
	}
	return logs
}
