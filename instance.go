package dbbench

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/go-sql-driver/mysql"
	"github.com/pressly/dbbench/pkg/dockermanage"
)

const (
	rootUser = "root"

	// containerPort is the port the server listens on inside the container.
	containerPort = 3306

	// containerType is the value of the managed label on every instance container.
	containerType = "mysql"
)

// ContainerRuntime is the container engine as seen by an Instance. [*dockermanage.Manager]
// implements it.
type ContainerRuntime interface {
	Start(ctx context.Context, options ...dockermanage.Option) (*dockermanage.Container, error)
	Inspect(ctx context.Context, containerID string) (*dockermanage.State, error)
	Logs(ctx context.Context, containerID string, tail int) (string, error)
	Stop(ctx context.Context, containerID string) error
	Remove(ctx context.Context, containerID string) error
	Exists(ctx context.Context, name string) (bool, error)
}

var _ ContainerRuntime = (*dockermanage.Manager)(nil)

// Instance is one ephemeral MySQL container plus a handle to the server inside it.
//
// An Instance is meant to be driven by a single caller at a time. It must be released with
// [Instance.Delete] or [Instance.Close], typically deferred right after [New], or scoped with
// [With].
type Instance struct {
	runtime ContainerRuntime
	cfg     *config
	logger  *slog.Logger

	port      int
	container *dockermanage.Container

	mu      sync.Mutex
	db      *sql.DB
	deleted atomic.Bool
}

// ContainerName returns the container name used for port. The allocator relies on this naming to
// detect ports held by containers that are not listening yet.
func ContainerName(port int) string {
	return containerType + "_" + strconv.Itoa(port)
}

// New allocates a port, launches a MySQL container bound to it, and blocks until the server
// accepts connections or fails definitively.
//
// If the container was created but never became ready, New returns the error together with the
// partially constructed Instance so the caller can inspect the container (see [ReadinessError]
// for its logs) and must call [Instance.Delete] to remove it. When no container was created the
// returned Instance is nil.
func New(ctx context.Context, runtime ContainerRuntime, options ...Option) (*Instance, error) {
	if runtime == nil {
		return nil, errors.New("container runtime must not be nil")
	}
	cfg, err := newConfig(options)
	if err != nil {
		return nil, err
	}
	inst := &Instance{
		runtime: runtime,
		cfg:     cfg,
		logger:  cfg.logger.With(slog.String("logger", "dbbench")),
	}
	container, err := inst.launch(ctx)
	if err != nil {
		return nil, err
	}
	inst.container = container
	inst.logger = inst.logger.With(slog.String("container", container.Name))

	db, err := inst.waitReady(ctx)
	if err != nil {
		return inst, err
	}
	// Keep no idle sessions so every Execute starts on a fresh connection.
	db.SetMaxIdleConns(0)
	db.SetMaxOpenConns(1)
	inst.db = db
	inst.logger.Info("instance ready", slog.Int("port", inst.port))
	return inst, nil
}

// With creates an Instance, calls fn with it, and deletes the Instance when fn returns or panics.
// A container left behind by a failed construction is deleted as well. With [WithKeepContainer]
// the container is left in place and only the client handle is released.
func With(ctx context.Context, runtime ContainerRuntime, fn func(context.Context, *Instance) error, options ...Option) error {
	if fn == nil {
		return errors.New("function must not be nil")
	}
	inst, err := New(ctx, runtime, options...)
	if inst != nil {
		if inst.cfg.keepContainer {
			defer inst.release()
		} else {
			defer inst.Delete(ctx)
		}
	}
	if err != nil {
		return err
	}
	return fn(ctx, inst)
}

// Port returns the host port the server is published on.
func (i *Instance) Port() int { return i.port }

// Image returns the container image.
func (i *Instance) Image() string { return i.cfg.image }

// Password returns the root password.
func (i *Instance) Password() string { return i.cfg.password }

// ContainerID returns the engine's container ID.
func (i *Instance) ContainerID() string {
	if i.container == nil {
		return ""
	}
	return i.container.ID
}

// ContainerName returns the container name, mysql_<port>.
func (i *Instance) ContainerName() string {
	if i.container == nil {
		return ContainerName(i.port)
	}
	return i.container.Name
}

// Deleted reports whether Delete has run.
func (i *Instance) Deleted() bool { return i.deleted.Load() }

// DSN returns a go-sql-driver/mysql connection string for the root user.
func (i *Instance) DSN() string {
	return i.mysqlConfig().FormatDSN()
}

func (i *Instance) mysqlConfig() *mysql.Config {
	cfg := mysql.NewConfig()
	cfg.User = rootUser
	cfg.Passwd = i.cfg.password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(dockermanage.DefaultHostIP, strconv.Itoa(i.port))
	cfg.Timeout = i.cfg.connectTimeout
	cfg.AllowNativePasswords = true
	return cfg
}

// dialFunc opens a database handle and verifies it with a ping.
type dialFunc func(ctx context.Context, cfg *mysql.Config) (*sql.DB, error)

func dialMySQL(ctx context.Context, cfg *mysql.Config) (*sql.DB, error) {
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("create connector: %w", err)
	}
	db := sql.OpenDB(connector)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
