package interfaces

import (
	"context"
	"io"
)

// LaunchSpec describes an external process to spawn
type LaunchSpec struct {
	Command string
	Args    []string
	Env     []string // KEY=VALUE, appended to the harness environment
	Dir     string
	Output  io.Writer // Optional extra sink for combined stdout/stderr
}

// Process is a spawned OS process owned by the supervisor
type Process interface {
	PID() int

	// Terminate requests graceful shutdown
	Terminate() error

	// Kill force-kills the process and its descendants
	Kill() error

	// Done is closed once the process has exited and been reaped
	Done() <-chan struct{}

	// ExitStatus returns the exit code once exited is true
	ExitStatus() (code int, exited bool)

	// OutputLines returns the captured stdout/stderr lines so far
	OutputLines() []string
}

// ProcessLauncher spawns processes
type ProcessLauncher interface {
	Launch(ctx context.Context, spec LaunchSpec) (Process, error)
}
