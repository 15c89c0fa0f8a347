// Package portalloc picks host TCP ports for new database containers.
//
// A port is considered free when no known container is named after it and nothing on the local
// host accepts a TCP connection on it. The check is best effort: another process may still bind
// the port between the probe and the container start.
package portalloc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"
)

const (
	defaultMaxAttempts  = 300
	defaultMaxStep      = 20
	defaultProbeTimeout = 500 * time.Millisecond

	// probeHost matches the host IP the engine binds published ports to.
	probeHost = "127.0.0.1"

	maxPort = 65535
)

// ErrExhausted is returned when no free port is found within the attempt cap.
var ErrExhausted = errors.New("no free port found")

// Registry reports whether a container with the given name exists.
type Registry interface {
	Exists(ctx context.Context, name string) (bool, error)
}

// Allocator picks unused ports. It is safe for concurrent use.
type Allocator struct {
	registry     Registry
	nameFor      func(port int) string
	maxAttempts  int
	maxStep      int
	probeTimeout time.Duration
	logger       *slog.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithMaxAttempts caps the number of ports probed by a single Allocate call. Defaults to 300.
func WithMaxAttempts(n int) Option {
	return func(a *Allocator) {
		if n > 0 {
			a.maxAttempts = n
		}
	}
}

// WithMaxStep sets the largest random increment applied after a collision. Defaults to 20.
func WithMaxStep(n int) Option {
	return func(a *Allocator) {
		if n > 0 {
			a.maxStep = n
		}
	}
}

// WithProbeTimeout bounds each TCP probe. Defaults to 500ms.
func WithProbeTimeout(d time.Duration) Option {
	return func(a *Allocator) {
		if d > 0 {
			a.probeTimeout = d
		}
	}
}

// WithRand sets the random source, mostly useful for deterministic tests.
func WithRand(r *rand.Rand) Option {
	return func(a *Allocator) {
		if r != nil {
			a.rnd = r
		}
	}
}

// WithLogger sets the logger. Defaults to discarding all output.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Allocator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New returns an Allocator that checks registry for containers named by nameFor(port). A nil
// registry skips the container check and relies on the TCP probe alone.
func New(registry Registry, nameFor func(port int) string, opts ...Option) *Allocator {
	a := &Allocator{
		registry:     registry,
		nameFor:      nameFor,
		maxAttempts:  defaultMaxAttempts,
		maxStep:      defaultMaxStep,
		probeTimeout: defaultProbeTimeout,
		logger:       slog.New(slog.DiscardHandler),
		rnd:          rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(slog.String("logger", "portalloc"))
	return a
}

// Allocate returns the first free port found starting at basePort plus a random offset in
// [0, jitter], stepping upward by a random amount on each collision.
func (a *Allocator) Allocate(ctx context.Context, basePort, jitter int) (int, error) {
	if basePort <= 0 || basePort > maxPort {
		return 0, fmt.Errorf("base port must be in range 1-65535: %d", basePort)
	}
	if jitter < 0 {
		return 0, fmt.Errorf("jitter must not be negative: %d", jitter)
	}
	port := basePort + a.intn(jitter+1)
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if port > maxPort {
			return 0, fmt.Errorf("%w: passed port %d after %d attempts", ErrExhausted, maxPort, attempt-1)
		}
		if !a.InUse(ctx, port) {
			a.logger.Debug("port allocated", slog.Int("port", port), slog.Int("attempts", attempt))
			return port, nil
		}
		port += 1 + a.intn(a.maxStep)
	}
	return 0, fmt.Errorf("%w: %d attempts starting near port %d", ErrExhausted, a.maxAttempts, basePort)
}

// InUse reports whether port is taken by a known container or by any local listener.
func (a *Allocator) InUse(ctx context.Context, port int) bool {
	if a.registry != nil && a.nameFor != nil {
		name := a.nameFor(port)
		exists, err := a.registry.Exists(ctx, name)
		if err != nil {
			a.logger.Debug("container lookup failed, relying on probe",
				slog.String("name", name),
				slog.Any("error", err),
			)
		} else if exists {
			return true
		}
	}
	return a.listening(ctx, port)
}

// listening dials the loopback address on port. Only a refused connection counts as free; a
// successful dial or any other failure means the port cannot be trusted.
func (a *Allocator) listening(ctx context.Context, port int) bool {
	dialer := net.Dialer{Timeout: a.probeTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(probeHost, strconv.Itoa(port)))
	if err == nil {
		_ = conn.Close()
		return true
	}
	return !errors.Is(err, syscall.ECONNREFUSED)
}

func (a *Allocator) intn(n int) int {
	if n <= 1 {
		return 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rnd.IntN(n)
}
