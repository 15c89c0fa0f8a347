package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pressly/dbbench"
)

var (
	DBBENCHIMAGE        = dbbench.DefaultImage
	DBBENCHPASSWORD     = dbbench.DefaultPassword
	DBBENCHBASEPORT     = strconv.Itoa(dbbench.DefaultBasePort)
	DBBENCHPORTJITTER   = strconv.Itoa(dbbench.DefaultPortJitter)
	DBBENCHMAXATTEMPTS  = strconv.Itoa(dbbench.DefaultMaxAttempts)
	DBBENCHPOLLINTERVAL = dbbench.DefaultPollInterval.String()
	DBBENCHNOCLEANUP    = "false"
)

// Load reads the config values from environment, allowing them to be loaded first from a .env file
// by the caller.
func Load() {
	DBBENCHIMAGE = envOr("DBBENCH_IMAGE", DBBENCHIMAGE)
	DBBENCHPASSWORD = envOr("DBBENCH_PASSWORD", DBBENCHPASSWORD)
	DBBENCHBASEPORT = envOr("DBBENCH_BASE_PORT", DBBENCHBASEPORT)
	DBBENCHPORTJITTER = envOr("DBBENCH_PORT_JITTER", DBBENCHPORTJITTER)
	DBBENCHMAXATTEMPTS = envOr("DBBENCH_MAX_ATTEMPTS", DBBENCHMAXATTEMPTS)
	DBBENCHPOLLINTERVAL = envOr("DBBENCH_POLL_INTERVAL", DBBENCHPOLLINTERVAL)
	DBBENCHNOCLEANUP = envOr("DBBENCH_NOCLEANUP", DBBENCHNOCLEANUP)
}

// An EnvVar is an environment variable Name=Value.
type EnvVar struct {
	Name  string
	Value string
}

func List() []EnvVar {
	return []EnvVar{
		{Name: "DBBENCH_IMAGE", Value: DBBENCHIMAGE},
		{Name: "DBBENCH_PASSWORD", Value: DBBENCHPASSWORD},
		{Name: "DBBENCH_BASE_PORT", Value: DBBENCHBASEPORT},
		{Name: "DBBENCH_PORT_JITTER", Value: DBBENCHPORTJITTER},
		{Name: "DBBENCH_MAX_ATTEMPTS", Value: DBBENCHMAXATTEMPTS},
		{Name: "DBBENCH_POLL_INTERVAL", Value: DBBENCHPOLLINTERVAL},
		{Name: "DBBENCH_NOCLEANUP", Value: DBBENCHNOCLEANUP},
	}
}

// Int parses an integer setting. name is only used in the error.
func Int(name, value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", name, value)
	}
	return n, nil
}

// Duration parses a duration setting such as "2s". A bare number is read as seconds.
func Duration(name, value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", name, value)
	}
	return d, nil
}

// IsTrue reports whether value is one of "1", "true" or "yes", ignoring case.
func IsTrue(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// envOr returns os.Getenv(key) if set, or else default.
func envOr(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		val = def
	}
	return val
}
