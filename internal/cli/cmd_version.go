package cli

import (
	"context"
	"fmt"
)

func execVersion(_ context.Context, s *state, _ []string) error {
	_, err := fmt.Fprintf(s.stdout, "dbbench version: %s\n", s.version)
	return err
}
