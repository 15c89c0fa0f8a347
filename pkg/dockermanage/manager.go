package dockermanage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/netip"
	"strconv"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/network"
	"github.com/moby/moby/client"
	"golang.org/x/sync/errgroup"
)

// Container status values reported by the engine.
const (
	StatusCreated    = "created"
	StatusRunning    = "running"
	StatusRestarting = "restarting"
	StatusPaused     = "paused"
	StatusExited     = "exited"
	StatusDead       = "dead"
)

// removeConcurrency bounds parallel removals in RemoveManaged.
const removeConcurrency = 8

// Container is a Docker container managed by this package.
type Container struct {
	ID     string
	Name   string
	Image  string
	Host   string
	Port   int
	Labels map[string]string
}

// State is a point-in-time view of a container's runtime state.
type State struct {
	Status   string
	Running  bool
	ExitCode int
}

// Manager manages Docker containers using the native Docker client.
type Manager struct {
	client *client.Client
	logger *slog.Logger
}

// NewManager creates a new manager backed by the Docker client configured from environment.
func NewManager(logger *slog.Logger) (*Manager, error) {
	dockerClient, err := client.New(
		client.FromEnv,
	)
	if err != nil {
		return nil, fmt.Errorf("create Docker client: %w", err)
	}
	return newManagerWithClient(dockerClient, logger), nil
}

func newManagerWithClient(dockerClient *client.Client, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		client: dockerClient,
		logger: logger.With(slog.String("logger", "dockermanage")),
	}
}

// Start creates and starts a detached container with the provided options.
//
// If the container is created but fails to start (for example because the host port is already
// bound), it is force removed before the error is returned so the name can be reused.
func (m *Manager) Start(ctx context.Context, options ...Option) (_ *Container, retErr error) {
	cfg := defaultConfig()
	cfg.pullProgress = io.Discard
	if err := applyOptions(cfg, options); err != nil {
		return nil, err
	}
	if cfg.image == "" {
		return nil, errors.New("image is required")
	}
	if cfg.containerPort.IsZero() {
		return nil, errors.New("container port is required")
	}
	if err := m.pullImageIfNotExists(ctx, cfg.image, cfg.pullProgress); err != nil {
		return nil, fmt.Errorf("pull image %s: %w", cfg.image, err)
	}

	portBinding := network.PortBinding{HostIP: netip.MustParseAddr(cfg.hostIP)}
	if cfg.hostPort > 0 {
		portBinding.HostPort = strconv.Itoa(cfg.hostPort)
	}

	resp, err := m.client.ContainerCreate(ctx, client.ContainerCreateOptions{
		Name: cfg.name,
		Config: &container.Config{
			Image: cfg.image,
			Env:   cfg.envVars,
			Cmd:   cfg.cmd,
			ExposedPorts: network.PortSet{
				cfg.containerPort: struct{}{},
			},
			Tty:       cfg.tty,
			OpenStdin: cfg.openStdin,
			Labels:    maps.Clone(cfg.labels),
		},
		HostConfig: &container.HostConfig{
			PortBindings: network.PortMap{cfg.containerPort: []network.PortBinding{portBinding}},
			AutoRemove:   cfg.autoRemove,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create container: %w", err)
	}
	defer func() {
		if retErr != nil {
			cleanupCtx := context.WithoutCancel(ctx)
			_, err := m.client.ContainerRemove(cleanupCtx, resp.ID, client.ContainerRemoveOptions{Force: true})
			if err != nil {
				m.logger.Error(
					"remove container after start failure",
					slog.String("container_id", resp.ID),
					slog.Any("error", err),
				)
			}
		}
	}()

	if _, err := m.client.ContainerStart(ctx, resp.ID, client.ContainerStartOptions{}); err != nil {
		return nil, fmt.Errorf("start container: %w", err)
	}

	hostPort := cfg.hostPort
	if hostPort == 0 {
		inspectResult, err := m.client.ContainerInspect(ctx, resp.ID, client.ContainerInspectOptions{})
		if err != nil {
			return nil, fmt.Errorf("inspect container for port: %w", err)
		}
		hostPort, err = resolveBoundPort(inspectResult.Container, cfg.containerPort)
		if err != nil {
			return nil, fmt.Errorf("resolve host port: %w", err)
		}
	}

	m.logger.Info(
		"docker container started",
		slog.String("container_id", resp.ID),
		slog.String("name", cfg.name),
		slog.String("image", cfg.image),
		slog.Int("port", hostPort),
	)
	return &Container{
		ID:     resp.ID,
		Name:   cfg.name,
		Image:  cfg.image,
		Host:   cfg.hostIP,
		Port:   hostPort,
		Labels: maps.Clone(cfg.labels),
	}, nil
}

func resolveBoundPort(containerJSON container.InspectResponse, containerPort network.Port) (int, error) {
	if containerJSON.NetworkSettings == nil {
		return 0, errors.New("container network settings are missing")
	}
	portBindings, ok := containerJSON.NetworkSettings.Ports[containerPort]
	if !ok || len(portBindings) == 0 {
		return 0, fmt.Errorf("no port bindings found for %s", containerPort)
	}
	for _, binding := range portBindings {
		if binding.HostPort == "" {
			continue
		}
		port, err := strconv.Atoi(binding.HostPort)
		if err != nil {
			return 0, fmt.Errorf("parse host port %q: %w", binding.HostPort, err)
		}
		return port, nil
	}
	return 0, fmt.Errorf("no host port found for %s", containerPort)
}

// Inspect returns the current state of a container. A missing container yields an error for
// which [IsNotFound] reports true.
func (m *Manager) Inspect(ctx context.Context, containerID string) (*State, error) {
	result, err := m.client.ContainerInspect(ctx, containerID, client.ContainerInspectOptions{})
	if err != nil {
		return nil, fmt.Errorf("inspect container %s: %w", containerID, err)
	}
	st := result.Container.State
	if st == nil {
		return nil, fmt.Errorf("inspect container %s: state is missing", containerID)
	}
	return &State{
		Status:   string(st.Status),
		Running:  st.Running,
		ExitCode: st.ExitCode,
	}, nil
}

// Exists reports whether a container with the given name or ID exists, in any state.
func (m *Manager) Exists(ctx context.Context, name string) (bool, error) {
	_, err := m.client.ContainerInspect(ctx, name, client.ContainerInspectOptions{})
	if err == nil {
		return true, nil
	}
	if errdefs.IsNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("inspect container %s: %w", name, err)
}

// Logs returns the last tail lines of a container's combined output. A tail of zero or less
// returns the whole log.
func (m *Manager) Logs(ctx context.Context, containerID string, tail int) (_ string, retErr error) {
	tailArg := "all"
	if tail > 0 {
		tailArg = strconv.Itoa(tail)
	}
	reader, err := m.client.ContainerLogs(ctx, containerID, client.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       tailArg,
	})
	if err != nil {
		return "", fmt.Errorf("fetch logs for container %s: %w", containerID, err)
	}
	defer func() {
		retErr = errors.Join(retErr, reader.Close())
	}()
	// Containers started with a TTY emit a raw stream, so no demultiplexing is needed.
	var sb strings.Builder
	if _, err := io.Copy(&sb, reader); err != nil {
		return "", fmt.Errorf("read logs for container %s: %w", containerID, err)
	}
	return sb.String(), nil
}

// Stop stops a running container.
func (m *Manager) Stop(ctx context.Context, containerID string) error {
	if _, err := m.client.ContainerStop(ctx, containerID, client.ContainerStopOptions{}); err != nil {
		return fmt.Errorf("stop container %s: %w", containerID, err)
	}
	m.logger.Info("docker container stopped", slog.String("container_id", containerID))
	return nil
}

// Remove removes a container. If running, it is force removed.
func (m *Manager) Remove(ctx context.Context, containerID string) error {
	if _, err := m.client.ContainerRemove(ctx, containerID, client.ContainerRemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("remove container %s: %w", containerID, err)
	}
	m.logger.Info("docker container removed", slog.String("container_id", containerID))
	return nil
}

// ListManaged returns all container IDs started by this package, running or not.
func (m *Manager) ListManaged(ctx context.Context) ([]string, error) {
	result, err := m.client.ContainerList(ctx, client.ContainerListOptions{
		All:     true,
		Filters: client.Filters{}.Add("label", ManagedLabelKey),
	})
	if err != nil {
		return nil, fmt.Errorf("list managed containers: %w", err)
	}
	ids := make([]string, 0, len(result.Items))
	for _, c := range result.Items {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

// RemoveManaged force removes all containers started by this package and returns how many were
// removed. Removal continues past individual failures; all failures are joined in the error.
func (m *Manager) RemoveManaged(ctx context.Context) (int, error) {
	ids, err := m.ListManaged(ctx)
	if err != nil {
		return 0, fmt.Errorf("list containers for remove: %w", err)
	}
	errs := make([]error, len(ids))
	var g errgroup.Group
	g.SetLimit(removeConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			errs[i] = m.Remove(ctx, id)
			return nil
		})
	}
	_ = g.Wait()
	removed := 0
	for _, err := range errs {
		if err == nil {
			removed++
		}
	}
	if err := errors.Join(errs...); err != nil {
		return removed, err
	}
	m.logger.Info("removed all managed containers", slog.Int("count", removed))
	return removed, nil
}

// Close closes the underlying Docker client.
func (m *Manager) Close() error {
	return m.client.Close()
}

// IsNotFound reports whether err means the container (or image) does not exist.
func IsNotFound(err error) bool {
	return errdefs.IsNotFound(err)
}

// IsConflict reports whether err is an engine conflict, such as a container name already in use.
func IsConflict(err error) bool {
	return errdefs.IsConflict(err)
}

// IsPortInUse reports whether a start failure was caused by the host port already being bound.
// The engine reports this as a plain server error, so the message is matched.
func IsPortInUse(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "port is already allocated") ||
		strings.Contains(msg, "address already in use")
}

func (m *Manager) pullImageIfNotExists(ctx context.Context, imageName string, progressWriter io.Writer) (retErr error) {
	if _, err := m.client.ImageInspect(ctx, imageName); err == nil {
		return nil
	} else if !errdefs.IsNotFound(err) {
		return fmt.Errorf("inspect image: %w", err)
	}

	m.logger.Info("pulling image", slog.String("image", imageName))
	reader, err := m.client.ImagePull(ctx, imageName, client.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("pull image: %w", err)
	}
	defer func() {
		retErr = errors.Join(retErr, reader.Close())
	}()

	if progressWriter == nil {
		progressWriter = io.Discard
	}
	if _, err := io.Copy(progressWriter, reader); err != nil {
		return fmt.Errorf("stream pull output: %w", err)
	}
	return nil
}
