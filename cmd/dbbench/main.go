package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime/debug"

	"github.com/joho/godotenv"
	"github.com/pressly/dbbench/internal/cfg"
	"github.com/pressly/dbbench/internal/cli"
)

var version string

func main() {
	// A .env file in the working directory, or the file named by DBBENCH_ENV_FILE, sets defaults.
	// Variables already in the environment take precedence.
	envFile := os.Getenv("DBBENCH_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", envFile, err)
		os.Exit(1)
	}
	cfg.Load()
	cli.Main(cli.WithVersion(getVersion()))
}

func getVersion() string {
	if version != "" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "devel"
}
