package runtime

import (
	"context"
	"io"
	"time"
)

// Log sources attached to LogEntry values.
const (
	LogSourceStdout = "stdout"
	LogSourceStderr = "stderr"
	LogSourceSystem = "orchestrator"
)

// LogEntry is a single line of output captured from a background process.
type LogEntry struct {
	Timestamp time.Time
	Message   string
	Source    string
	Level     string
}

// Command describes a child process to launch.
type Command struct {
	// Name identifies the process in logs and errors ("server", "runner").
	Name string
	Argv []string
	Dir  string
	// Env is layered on top of the orchestrator's own environment.
	Env map[string]string
}

// Stdio carries the streams handed to a foreground process.
type Stdio struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Result describes how a foreground process terminated.
type Result struct {
	// ExitCode is the process exit status, or 128+N when the process was
	// terminated by signal N.
	ExitCode int
	// Signal names the terminating signal, if any.
	Signal   string
	Started  time.Time
	Duration time.Duration
}

// Instance represents a running background process.
type Instance interface {
	// PID returns the operating system process id.
	PID() int

	// Started reports when the process was launched.
	Started() time.Time

	// Logs returns a channel of output lines. The channel is closed once
	// both output streams are drained.
	Logs() <-chan LogEntry

	// Done is closed once the process has exited.
	Done() <-chan struct{}

	// Stop requests termination. Implementations must be idempotent: the
	// termination request is issued at most once regardless of how many
	// times Stop is called.
	Stop(ctx context.Context) error
}

// Runtime describes a backend capable of launching processes.
type Runtime interface {
	// Start launches cmd in the background and returns a handle to it.
	Start(ctx context.Context, cmd Command) (Instance, error)

	// Run launches cmd in the foreground with the provided streams and
	// blocks until it exits. A non-nil error means the process could not
	// be started or waited on; a non-zero exit status is not an error.
	Run(ctx context.Context, cmd Command, stdio Stdio) (Result, error)
}
