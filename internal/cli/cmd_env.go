package cli

import (
	"context"
	"fmt"

	"github.com/pressly/dbbench/internal/cfg"
)

func execEnv(_ context.Context, s *state, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("env takes no arguments, got %q", args)
	}
	for _, env := range cfg.List() {
		fmt.Fprintf(s.stdout, "%s=%q\n", env.Name, env.Value)
	}
	return nil
}
