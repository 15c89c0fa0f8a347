package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
)

func execPrune(ctx context.Context, s *state, args []string) error {
	fs := newFlagSet(s, "prune", "prune [flags]")
	verbose := fs.Bool("v", false, "log verbose output")
	if err := parseFlags(s, fs, args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("prune takes no arguments, got %q", fs.Args())
	}
	logger := s.newLogger(*verbose)
	runtime, err := s.openRuntime(logger)
	if err != nil {
		return fmt.Errorf("connect to container engine: %w", err)
	}
	defer func() {
		if err := runtime.Close(); err != nil {
			logger.Debug("close container engine client", slog.Any("error", err))
		}
	}()
	n, err := runtime.RemoveManaged(ctx)
	fmt.Fprintf(s.stdout, "removed %d container(s)\n", n)
	return err
}
