package testdb

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"testing"
)

const (
	// key_DBBENCH_INTEGRATION is the environment variable that enables tests against a real
	// container engine.
	key_DBBENCH_INTEGRATION = "DBBENCH_INTEGRATION"
	// key_DBBENCH_NOCLEANUP is the environment variable that disables container cleanup.
	key_DBBENCH_NOCLEANUP = "DBBENCH_NOCLEANUP"
	// key_DBBENCH_BLOCK is the environment variable that blocks the test until a signal is received.
	key_DBBENCH_BLOCK = "DBBENCH_BLOCK"
)

// WrapTestMain runs the tests and, with DBBENCH_BLOCK set, keeps the process alive afterwards so
// kept containers can be inspected.
func WrapTestMain(m *testing.M) {
	code := m.Run()
	defer func() {
		if envIsTrue(key_DBBENCH_BLOCK) {
			blockUntilSignal(code)
		}
		os.Exit(code)
	}()
}

func blockUntilSignal(code int) {
	sigs := make(chan os.Signal, 1)
	done := make(chan bool, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		done <- true
	}()
	fmt.Fprintf(os.Stderr, "+++ debug mode: must exit (CTRL+C) manually. (code: %d)\n", code)
	<-done
}

func envIsTrue(key string) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && b
}
