// Package pgdump shells out to the pg_dump client tool. The binary is
// found on PATH unless overridden, and inherits the libpq environment
// so it connects the same way the rest of the tool does.
package pgdump

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// EnvExecutable overrides the pg_dump binary location.
const EnvExecutable = "PGWARD_PG_DUMP"

// Client runs pg_dump.
type Client struct {
	// Path is an explicit binary location; empty falls back to the
	// environment override, then to PATH lookup of "pg_dump".
	Path string
}

func (c Client) executable() string {
	if c.Path != "" {
		return c.Path
	}
	if env := os.Getenv(EnvExecutable); env != "" {
		return env
	}
	return "pg_dump"
}

// Run executes pg_dump with the given arguments and returns its exit
// code and captured stdout. Stderr passes through to the caller's
// stderr. A missing binary is reported before anything runs.
func (c Client) Run(ctx context.Context, args ...string) (int, string, error) {
	exe := c.executable()
	resolved, err := exec.LookPath(exe)
	if err != nil {
		return -1, "", fmt.Errorf("pg_dump could not be located: '%s'", exe)
	}

	cmd := exec.CommandContext(ctx, resolved, args...)
	cmd.Stdin = nil
	cmd.Stderr = os.Stderr
	var stdout strings.Builder
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), stdout.String(), nil
		}
		return -1, stdout.String(), fmt.Errorf("run pg_dump: %w", err)
	}
	return 0, stdout.String(), nil
}
