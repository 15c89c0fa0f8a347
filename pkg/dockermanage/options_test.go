package dockermanage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		cfg := defaultConfig()
		require.Equal(t, DefaultHostIP, cfg.hostIP)
		require.Contains(t, cfg.labels, ManagedLabelKey)
		require.False(t, cfg.autoRemove)
		require.False(t, cfg.tty)
	})
	t.Run("apply", func(t *testing.T) {
		t.Parallel()
		cfg := defaultConfig()
		err := applyOptions(cfg, []Option{
			WithName(" mysql_13001 "),
			WithImage("mysql:8.0"),
			WithContainerPortTCP(3306),
			WithHostPort(13001),
			WithEnv("MYSQL_ROOT_PASSWORD", "password"),
			WithEnv("MYSQL_ROOT_HOST", "%"),
			WithCmd("mysqld", "--default-authentication-plugin=mysql_native_password"),
			WithTTY(true),
			WithAutoRemove(false),
			WithLabel(ManagedLabelKey, "mysql"),
			WithLabels(map[string]string{"port": "13001"}),
			nil,
		})
		require.NoError(t, err)
		require.Equal(t, "mysql_13001", cfg.name)
		require.Equal(t, "mysql:8.0", cfg.image)
		require.False(t, cfg.containerPort.IsZero())
		require.Equal(t, 13001, cfg.hostPort)
		require.Equal(t, []string{"MYSQL_ROOT_PASSWORD=password", "MYSQL_ROOT_HOST=%"}, cfg.envVars)
		require.Equal(t, []string{"mysqld", "--default-authentication-plugin=mysql_native_password"}, cfg.cmd)
		require.True(t, cfg.tty)
		require.True(t, cfg.openStdin)
		require.Equal(t, map[string]string{ManagedLabelKey: "mysql", "port": "13001"}, cfg.labels)
	})
	t.Run("invalid", func(t *testing.T) {
		t.Parallel()
		tests := []struct {
			name   string
			option Option
		}{
			{"empty name", WithName("  ")},
			{"empty image", WithImage("")},
			{"container port zero", WithContainerPortTCP(0)},
			{"container port too large", WithContainerPortTCP(70000)},
			{"host port negative", WithHostPort(-1)},
			{"host port too large", WithHostPort(65536)},
			{"empty env key", WithEnv(" ", "x")},
			{"env key with equals", WithEnv("A=B", "x")},
			{"empty command", WithCmd()},
			{"empty label key", WithLabel("", "x")},
			{"empty labels key", WithLabels(map[string]string{" ": "x"})},
		}
		for _, tt := range tests {
			err := applyOptions(defaultConfig(), []Option{tt.option})
			assert.Error(t, err, tt.name)
		}
	})
	t.Run("command is copied", func(t *testing.T) {
		t.Parallel()
		cmd := []string{"mysqld"}
		cfg := defaultConfig()
		require.NoError(t, applyOptions(cfg, []Option{WithCmd(cmd...)}))
		cmd[0] = "changed"
		require.Equal(t, []string{"mysqld"}, cfg.cmd)
	})
}

func TestResolveBoundPortMissingSettings(t *testing.T) {
	t.Parallel()

	p, ok := network.PortFrom(3306, network.TCP)
	require.True(t, ok)
	_, err := resolveBoundPort(container.InspectResponse{}, p)
	require.Error(t, err)
	require.Contains(t, err.Error(), "network settings are missing")
}

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	notFound := fmt.Errorf("inspect container abc: %w", errdefs.ErrNotFound)
	require.True(t, IsNotFound(notFound))
	require.False(t, IsNotFound(errors.New("boom")))

	conflict := fmt.Errorf("create container: %w", errdefs.ErrConflict)
	require.True(t, IsConflict(conflict))
	require.False(t, IsConflict(notFound))

	require.True(t, IsPortInUse(errors.New(
		"start container: driver failed programming external connectivity: Bind for 127.0.0.1:13001 failed: port is already allocated",
	)))
	require.True(t, IsPortInUse(errors.New("listen tcp4 127.0.0.1:13001: bind: address already in use")))
	require.False(t, IsPortInUse(errors.New("no such image")))
	require.False(t, IsPortInUse(nil))
}
