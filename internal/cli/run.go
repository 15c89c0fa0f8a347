package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mfridman/xflag"
)

type command struct {
	name  string
	short string
	exec  func(ctx context.Context, s *state, args []string) error
}

var commands = []command{
	{name: "run", short: "Start an instance, run SQL against it and print the result", exec: execRun},
	{name: "prune", short: "Remove every container started by dbbench", exec: execPrune},
	{name: "env", short: "Print the environment variables used by dbbench", exec: execEnv},
	{name: "version", short: "Print the dbbench version", exec: execVersion},
}

func run(ctx context.Context, args []string, opts ...Options) (retErr error) {
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("panic: %v", r)
		}
	}()
	st, err := newStateWithDefaults(opts...)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		printUsage(st.stderr)
		return errors.New("missing command")
	}
	name := args[0]
	switch name {
	case "-h", "-help", "--help", "help":
		printUsage(st.stdout)
		return nil
	case "-version", "--version":
		return execVersion(ctx, st, args[1:])
	}
	for _, cmd := range commands {
		if cmd.name == name {
			return cmd.exec(ctx, st, args[1:])
		}
	}
	printUsage(st.stderr)
	return fmt.Errorf("unknown command: %q", name)
}

func newStateWithDefaults(opts ...Options) (*state, error) {
	state := &state{
		environ: os.Environ(),
	}
	for _, opt := range opts {
		if err := opt.apply(state); err != nil {
			return nil, err
		}
	}
	// Set defaults if not set by the caller
	if state.stdin == nil {
		state.stdin = os.Stdin
	}
	if state.stdout == nil {
		state.stdout = os.Stdout
	}
	if state.stderr == nil {
		state.stderr = os.Stderr
	}
	if state.openRuntime == nil {
		state.openRuntime = openDockerRuntime
	}
	if state.version == "" {
		state.version = "devel"
	}
	return state, nil
}

// parseFlags parses args into fs, allowing flags after positional arguments. A help request is
// reported as flag.ErrHelp after the usage has been printed.
func parseFlags(s *state, fs *flag.FlagSet, args []string) error {
	fs.SetOutput(s.stderr)
	return xflag.ParseToEnd(fs, args)
}

func newFlagSet(s *state, name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet("dbbench "+name, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(s.stderr, "Usage: dbbench %s\n\nFlags:\n", usage)
		fs.PrintDefaults()
	}
	return fs
}

func printUsage(w io.Writer) {
	var sb strings.Builder
	sb.WriteString("Usage: dbbench COMMAND [FLAGS] [ARGS]\n\nCommands:\n")
	for _, cmd := range commands {
		fmt.Fprintf(&sb, "    %-10s %s\n", cmd.name, cmd.short)
	}
	sb.WriteString(usageSuffix)
	fmt.Fprint(w, sb.String())
}

const usageSuffix = `
Examples:
    dbbench run "CREATE DATABASE bench; SELECT 1"
    dbbench run -database=bench -file=queries.sql
    echo "SELECT VERSION()" | dbbench run -image=mysql:8.4
    DBBENCH_NOCLEANUP=1 dbbench run -v "SELECT 1"
    dbbench prune

Run 'dbbench COMMAND -h' for the flags of a command.
`
