package cli

import (
	"fmt"
	"io"
	"log/slog"
)

// Options are used to configure the command execution and are passed to the Run or Main function.
type Options interface {
	apply(*state) error
}

type optionFunc func(*state) error

func (f optionFunc) apply(s *state) error { return f(s) }

// WithEnviron sets the environment variables used by `run -envsub`. This will overwrite the
// current environment, primarily useful for testing.
func WithEnviron(env []string) Options {
	return optionFunc(func(s *state) error {
		s.environ = env
		return nil
	})
}

// WithStdout sets the writer for stdout.
func WithStdout(w io.Writer) Options {
	return optionFunc(func(s *state) error {
		if w == nil {
			return fmt.Errorf("stdout cannot be nil")
		}
		if s.stdout != nil {
			return fmt.Errorf("stdout already set")
		}
		s.stdout = w
		return nil
	})
}

// WithStderr sets the writer for stderr.
func WithStderr(w io.Writer) Options {
	return optionFunc(func(s *state) error {
		if w == nil {
			return fmt.Errorf("stderr cannot be nil")
		}
		if s.stderr != nil {
			return fmt.Errorf("stderr already set")
		}
		s.stderr = w
		return nil
	})
}

// WithStdin sets the reader SQL is read from when `run` gets neither -file nor arguments.
func WithStdin(r io.Reader) Options {
	return optionFunc(func(s *state) error {
		if r == nil {
			return fmt.Errorf("stdin cannot be nil")
		}
		if s.stdin != nil {
			return fmt.Errorf("stdin already set")
		}
		s.stdin = r
		return nil
	})
}

// WithRuntime sets the function that connects to the container engine. The default connects to
// Docker using the standard DOCKER_* environment variables.
func WithRuntime(open func(logger *slog.Logger) (Runtime, error)) Options {
	return optionFunc(func(s *state) error {
		if open == nil {
			return fmt.Errorf("runtime function cannot be nil")
		}
		if s.openRuntime != nil {
			return fmt.Errorf("runtime function already set")
		}
		s.openRuntime = open
		return nil
	})
}

// WithVersion sets the version string for the command. This is typically set by the build system
// when the binary is built. It is used to print the version when the --version flag is passed.
func WithVersion(version string) Options {
	return optionFunc(func(s *state) error {
		if version == "" {
			return fmt.Errorf("version cannot be empty")
		}
		if s.version != "" {
			return fmt.Errorf("version already set")
		}
		s.version = version
		return nil
	})
}
