package dbbench

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pressly/dbbench/internal/portalloc"
)

var (
	// ErrAllocationExhausted is returned by [New] when no free host port is found within the
	// allocator's attempt cap.
	ErrAllocationExhausted = portalloc.ErrExhausted

	// ErrContainerVanished is matched by a [ReadinessError] when the container disappeared while
	// waiting for it. Not retried.
	ErrContainerVanished = errors.New("container vanished")

	// ErrContainerExited is matched by a [ReadinessError] when the container stopped before
	// accepting connections. Not retried.
	ErrContainerExited = errors.New("container exited")

	// ErrReadinessTimeout is matched by a [ReadinessError] when the retry budget ran out.
	ErrReadinessTimeout = errors.New("readiness timeout")

	// ErrProtocol is matched by a [ReadinessError] when client/server protocol negotiation kept
	// failing past the early-abandon threshold.
	ErrProtocol = errors.New("protocol negotiation failed")

	// ErrDeleted is returned when using an instance after it was deleted, or one that never became
	// ready.
	ErrDeleted = errors.New("instance deleted")
)

// LaunchError is returned when the container runtime rejects the request to create or start the
// database container.
type LaunchError struct {
	Image string
	Name  string
	Port  int
	Err   error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s as %s on port %d: %v", e.Image, e.Name, e.Port, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// ReadinessError is returned when a launched container never became usable. Kind is one of
// [ErrContainerVanished], [ErrContainerExited], [ErrReadinessTimeout] or [ErrProtocol], and
// errors.Is matches it.
type ReadinessError struct {
	Kind error
	// Container is the container name.
	Container string
	// State is the last state reached before failing.
	State ReadinessState
	// Attempts is the number of polling iterations used.
	Attempts int
	// ExitCode is only meaningful when Kind is ErrContainerExited.
	ExitCode int
	// Logs holds the tail of the container output, when it could be fetched.
	Logs string
	// Err is the last underlying error, may be nil.
	Err error
}

func (e *ReadinessError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%v: container %s", e.Kind, e.Container)
	if errors.Is(e.Kind, ErrContainerExited) {
		fmt.Fprintf(&sb, " (exit code %d)", e.ExitCode)
	}
	fmt.Fprintf(&sb, " in state %s after %d attempt(s)", e.State, e.Attempts)
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	return sb.String()
}

func (e *ReadinessError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// StatementError describes a failed SQL statement. Its message is the database's own error text,
// which is what [Instance.Execute] returns as the result.
type StatementError struct {
	// Statement is the SQL that failed.
	Statement string
	// Index is the position of Statement in the batch, or -1 for the schema selection.
	Index int
	Err   error
}

func (e *StatementError) Error() string { return e.Err.Error() }

func (e *StatementError) Unwrap() error { return e.Err }
