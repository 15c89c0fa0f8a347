package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/pressly/dbbench"
	"github.com/pressly/dbbench/pkg/dockermanage"
)

// Runtime is the container engine used by the commands.
type Runtime interface {
	dbbench.ContainerRuntime
	RemoveManaged(ctx context.Context) (int, error)
	Close() error
}

var _ Runtime = (*dockermanage.Manager)(nil)

// state holds the state of the CLI and is passed to each command. It is used to configure the
// environment, the container runtime, and input and output streams.
type state struct {
	version string
	environ []string
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer

	openRuntime func(logger *slog.Logger) (Runtime, error)
}

// newLogger returns a text logger on stderr. Verbose output includes debug records.
func (s *state) newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(s.stderr, &slog.HandlerOptions{Level: level}))
}

func openDockerRuntime(logger *slog.Logger) (Runtime, error) {
	return dockermanage.NewManager(logger)
}
