package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pressly/dbbench"
	"github.com/pressly/dbbench/internal/cfg"
	"github.com/pressly/dbbench/internal/sqlbatch"
)

type runFlags struct {
	image        string
	password     string
	database     string
	file         string
	basePort     int
	jitter       int
	maxAttempts  int
	pollInterval time.Duration
	keep         bool
	envsub       bool
	verbose      bool
}

func (f *runFlags) register(fs *flag.FlagSet) error {
	basePort, err := cfg.Int("DBBENCH_BASE_PORT", cfg.DBBENCHBASEPORT)
	if err != nil {
		return err
	}
	jitter, err := cfg.Int("DBBENCH_PORT_JITTER", cfg.DBBENCHPORTJITTER)
	if err != nil {
		return err
	}
	maxAttempts, err := cfg.Int("DBBENCH_MAX_ATTEMPTS", cfg.DBBENCHMAXATTEMPTS)
	if err != nil {
		return err
	}
	pollInterval, err := cfg.Duration("DBBENCH_POLL_INTERVAL", cfg.DBBENCHPOLLINTERVAL)
	if err != nil {
		return err
	}
	fs.StringVar(&f.image, "image", cfg.DBBENCHIMAGE, "MySQL image to run")
	fs.StringVar(&f.password, "password", cfg.DBBENCHPASSWORD, "root password")
	fs.StringVar(&f.database, "database", "", "database to select before running the batch")
	fs.StringVar(&f.file, "file", "", "read SQL from file, - for stdin")
	fs.IntVar(&f.basePort, "base-port", basePort, "lowest host port to allocate from")
	fs.IntVar(&f.jitter, "jitter", jitter, "random offset added to the base port")
	fs.IntVar(&f.maxAttempts, "max-attempts", maxAttempts, "readiness polls before giving up")
	fs.DurationVar(&f.pollInterval, "poll-interval", pollInterval, "time between readiness polls")
	fs.BoolVar(&f.keep, "keep", cfg.IsTrue(cfg.DBBENCHNOCLEANUP), "keep the container after the run")
	fs.BoolVar(&f.envsub, "envsub", false, "expand ${VAR} references in the SQL from the environment")
	fs.BoolVar(&f.verbose, "v", false, "log verbose output")
	return nil
}

func (f *runFlags) options(s *state, logger *slog.Logger) []dbbench.Option {
	opts := []dbbench.Option{
		dbbench.WithImage(f.image),
		dbbench.WithPassword(f.password),
		dbbench.WithPortRange(f.basePort, f.jitter),
		dbbench.WithRetryBudget(f.maxAttempts, f.pollInterval),
		dbbench.WithKeepContainer(f.keep),
		dbbench.WithLogger(logger),
	}
	if f.verbose {
		opts = append(opts, dbbench.WithPullProgress(s.stderr))
	}
	return opts
}

func execRun(ctx context.Context, s *state, args []string) error {
	f := new(runFlags)
	fs := newFlagSet(s, "run", "run [flags] [SQL...]")
	if err := f.register(fs); err != nil {
		return err
	}
	if err := parseFlags(s, fs, args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	batch, err := readBatch(s, f.file, fs.Args())
	if err != nil {
		return err
	}
	if f.envsub {
		if batch, err = sqlbatch.Expand(batch, s.environ); err != nil {
			return err
		}
	}
	if strings.TrimSpace(batch) == "" {
		return errors.New("no SQL to run, pass it as arguments, with -file or on stdin")
	}

	logger := s.newLogger(f.verbose)
	runtime, err := s.openRuntime(logger)
	if err != nil {
		return fmt.Errorf("connect to container engine: %w", err)
	}
	defer func() {
		if err := runtime.Close(); err != nil {
			logger.Debug("close container engine client", slog.Any("error", err))
		}
	}()

	return dbbench.With(ctx, runtime, func(ctx context.Context, inst *dbbench.Instance) error {
		if f.keep {
			logger.Info("keeping container",
				slog.String("name", inst.ContainerName()),
				slog.String("dsn", inst.DSN()),
			)
		}
		out, err := inst.Execute(ctx, batch, f.database)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(s.stdout, out)
		return err
	}, f.options(s, logger)...)
}

// readBatch returns the SQL to run: the -file contents, the positional arguments, or stdin, in
// that order.
func readBatch(s *state, file string, args []string) (string, error) {
	switch {
	case file == "-":
		return readAll(s.stdin)
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read SQL file: %w", err)
		}
		return string(b), nil
	case len(args) > 0:
		return strings.Join(args, " "), nil
	}
	return readAll(s.stdin)
}

func readAll(r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read SQL from stdin: %w", err)
	}
	return string(b), nil
}
