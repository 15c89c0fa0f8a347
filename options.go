package dbbench

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"
)

const (
	// DefaultImage is the default MySQL image.
	DefaultImage = "mysql:8.0"

	// DefaultPassword is the root password configured in every instance.
	DefaultPassword = "password"

	// DefaultBasePort and DefaultPortJitter pick host ports in [13000, 23000] before stepping.
	DefaultBasePort   = 13000
	DefaultPortJitter = 10000

	// DefaultMaxAttempts and DefaultPollInterval bound the readiness wait to roughly two minutes.
	DefaultMaxAttempts  = 60
	DefaultPollInterval = 2 * time.Second

	defaultProtocolDelay        = 5 * time.Second
	defaultProtocolAttemptLimit = 10
	defaultConnectTimeout       = 5 * time.Second
	defaultLaunchAttempts       = 3
)

// DefaultCommand is the command override used to start the server.
var DefaultCommand = []string{"mysqld", "--default-authentication-plugin=mysql_native_password"}

// Option configures an Instance.
type Option interface {
	apply(*config) error
}

type optionFunc func(*config) error

func (f optionFunc) apply(cfg *config) error {
	return f(cfg)
}

type config struct {
	image                string
	password             string
	command              []string
	basePort             int
	portJitter           int
	maxAttempts          int
	pollInterval         time.Duration
	protocolDelay        time.Duration
	protocolAttemptLimit int
	connectTimeout       time.Duration
	launchAttempts       int
	keepContainer        bool
	pullProgress         io.Writer
	logger               *slog.Logger

	// dial opens and pings a database handle. Replaced in tests.
	dial dialFunc
}

func defaultConfig() *config {
	return &config{
		image:                DefaultImage,
		password:             DefaultPassword,
		command:              slices.Clone(DefaultCommand),
		basePort:             DefaultBasePort,
		portJitter:           DefaultPortJitter,
		maxAttempts:          DefaultMaxAttempts,
		pollInterval:         DefaultPollInterval,
		protocolDelay:        defaultProtocolDelay,
		protocolAttemptLimit: defaultProtocolAttemptLimit,
		connectTimeout:       defaultConnectTimeout,
		launchAttempts:       defaultLaunchAttempts,
		pullProgress:         io.Discard,
		logger:               slog.New(slog.DiscardHandler),
		dial:                 dialMySQL,
	}
}

func newConfig(options []Option) (*config, error) {
	cfg := defaultConfig()
	for _, opt := range options {
		if opt == nil {
			continue
		}
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// WithImage sets the MySQL image, for example mysql:8.0.
func WithImage(image string) Option {
	return optionFunc(func(cfg *config) error {
		image = strings.TrimSpace(image)
		if image == "" {
			return errors.New("image must not be empty")
		}
		cfg.image = image
		return nil
	})
}

// WithPassword sets the root password.
func WithPassword(password string) Option {
	return optionFunc(func(cfg *config) error {
		if password == "" {
			return errors.New("password must not be empty")
		}
		cfg.password = password
		return nil
	})
}

// WithCommand overrides the server command. Defaults to [DefaultCommand].
func WithCommand(cmd ...string) Option {
	return optionFunc(func(cfg *config) error {
		if len(cmd) == 0 {
			return errors.New("command must not be empty")
		}
		cfg.command = slices.Clone(cmd)
		return nil
	})
}

// WithPortRange sets where port allocation starts: basePort plus a random offset in [0, jitter].
func WithPortRange(basePort, jitter int) Option {
	return optionFunc(func(cfg *config) error {
		if basePort <= 0 || basePort > 65535 {
			return fmt.Errorf("base port must be in range 1-65535: %d", basePort)
		}
		if jitter < 0 {
			return fmt.Errorf("port jitter must not be negative: %d", jitter)
		}
		cfg.basePort = basePort
		cfg.portJitter = jitter
		return nil
	})
}

// WithRetryBudget sets the readiness budget: at most maxAttempts polls, pollInterval apart.
func WithRetryBudget(maxAttempts int, pollInterval time.Duration) Option {
	return optionFunc(func(cfg *config) error {
		if maxAttempts <= 0 {
			return fmt.Errorf("max attempts must be positive: %d", maxAttempts)
		}
		if pollInterval < 0 {
			return fmt.Errorf("poll interval must not be negative: %v", pollInterval)
		}
		cfg.maxAttempts = maxAttempts
		cfg.pollInterval = pollInterval
		return nil
	})
}

// WithProtocolRetry sets the delay used after a protocol-level connection error and the attempt
// number past which such errors stop being retried. Defaults to 5s and 10.
func WithProtocolRetry(delay time.Duration, attemptLimit int) Option {
	return optionFunc(func(cfg *config) error {
		if delay < 0 {
			return fmt.Errorf("protocol delay must not be negative: %v", delay)
		}
		if attemptLimit <= 0 {
			return fmt.Errorf("protocol attempt limit must be positive: %d", attemptLimit)
		}
		cfg.protocolDelay = delay
		cfg.protocolAttemptLimit = attemptLimit
		return nil
	})
}

// WithConnectTimeout bounds each connection attempt. Defaults to 5s.
func WithConnectTimeout(d time.Duration) Option {
	return optionFunc(func(cfg *config) error {
		if d <= 0 {
			return fmt.Errorf("connect timeout must be positive: %v", d)
		}
		cfg.connectTimeout = d
		return nil
	})
}

// WithLaunchAttempts sets how many times allocation and launch are retried together when the
// engine reports the port or name was taken concurrently. Defaults to 3; 1 disables the retry.
func WithLaunchAttempts(n int) Option {
	return optionFunc(func(cfg *config) error {
		if n <= 0 {
			return fmt.Errorf("launch attempts must be positive: %d", n)
		}
		cfg.launchAttempts = n
		return nil
	})
}

// WithKeepContainer makes [With] leave the container in place after it returns, for debugging.
// The user must remove it manually, for example with `dbbench prune`.
func WithKeepContainer(keep bool) Option {
	return optionFunc(func(cfg *config) error {
		cfg.keepContainer = keep
		return nil
	})
}

// WithPullProgress sets where image pull output is streamed. Defaults to discarding it.
func WithPullProgress(w io.Writer) Option {
	return optionFunc(func(cfg *config) error {
		if w == nil {
			w = io.Discard
		}
		cfg.pullProgress = w
		return nil
	})
}

// WithLogger sets the logger. Defaults to discarding all output.
func WithLogger(logger *slog.Logger) Option {
	return optionFunc(func(cfg *config) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		cfg.logger = logger
		return nil
	})
}

func withDialer(dial dialFunc) Option {
	return optionFunc(func(cfg *config) error {
		cfg.dial = dial
		return nil
	})
}
