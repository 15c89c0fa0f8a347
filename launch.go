package dbbench

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/pressly/dbbench/internal/portalloc"
	"github.com/pressly/dbbench/pkg/dockermanage"
)

// launch allocates a port and starts the container on it.
//
// The probe in the allocator and the bind in the engine are not atomic, so a concurrent launch can
// take the port (or the mysql_<port> name) in between. When the engine reports either conflict the
// allocation and launch are retried together, up to the configured number of launch attempts.
func (i *Instance) launch(ctx context.Context) (*dockermanage.Container, error) {
	allocator := portalloc.New(i.runtime, ContainerName, portalloc.WithLogger(i.logger))
	var lastErr error
	for attempt := 1; attempt <= i.cfg.launchAttempts; attempt++ {
		port, err := allocator.Allocate(ctx, i.cfg.basePort, i.cfg.portJitter)
		if err != nil {
			return nil, fmt.Errorf("allocate port: %w", err)
		}
		i.port = port
		container, err := i.runtime.Start(ctx, i.containerOptions(port)...)
		if err == nil {
			return container, nil
		}
		lastErr = &LaunchError{
			Image: i.cfg.image,
			Name:  ContainerName(port),
			Port:  port,
			Err:   err,
		}
		if !dockermanage.IsConflict(err) && !dockermanage.IsPortInUse(err) {
			return nil, lastErr
		}
		i.logger.Warn("port taken by a concurrent launch, allocating again",
			slog.Int("port", port),
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)
	}
	return nil, lastErr
}

func (i *Instance) containerOptions(port int) []dockermanage.Option {
	return []dockermanage.Option{
		dockermanage.WithName(ContainerName(port)),
		dockermanage.WithImage(i.cfg.image),
		dockermanage.WithContainerPortTCP(containerPort),
		dockermanage.WithHostPort(port),
		dockermanage.WithEnv("MYSQL_ROOT_PASSWORD", i.cfg.password),
		dockermanage.WithEnv("MYSQL_ROOT_HOST", "%"),
		dockermanage.WithCmd(i.cfg.command...),
		dockermanage.WithTTY(true),
		// Keep failed containers around for post-mortem inspection.
		dockermanage.WithAutoRemove(false),
		dockermanage.WithPullProgress(i.cfg.pullProgress),
		dockermanage.WithLabels(map[string]string{
			dockermanage.ManagedLabelKey: containerType,
			"pressly.dbbench.port":       strconv.Itoa(port),
		}),
	}
}
