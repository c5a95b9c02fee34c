package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Paintersrp/rune2e/internal/runtime"
)

const (
	defaultStopTimeout = 5 * time.Second
	defaultWaitDelay   = 10 * time.Second
)

type runtimeImpl struct {
	stopTimeout time.Duration
	waitDelay   time.Duration
}

// Option customises the process runtime.
type Option func(*runtimeImpl)

// WithStopTimeout sets how long Stop waits after the graceful termination
// signal before killing the process group.
func WithStopTimeout(d time.Duration) Option {
	return func(r *runtimeImpl) {
		if d > 0 {
			r.stopTimeout = d
		}
	}
}

// WithWaitDelay bounds how long a cancelled foreground process may take to
// exit before it is killed.
func WithWaitDelay(d time.Duration) Option {
	return func(r *runtimeImpl) {
		if d > 0 {
			r.waitDelay = d
		}
	}
}

// New constructs a runtime that executes commands as local processes.
func New(opts ...Option) runtime.Runtime {
	r := &runtimeImpl{stopTimeout: defaultStopTimeout, waitDelay: defaultWaitDelay}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *runtimeImpl) Start(ctx context.Context, c runtime.Command) (runtime.Instance, error) {
	if len(c.Argv) == 0 {
		return nil, fmt.Errorf("process %s requires a command", c.Name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The instance outlives ctx; lifetime is bounded by Stop instead.
	cmd := exec.Command(c.Argv[0], c.Argv[1:]...)
	cmd.Dir = c.Dir
	cmd.Env = buildEnv(c.Env)

	// Wait must not race the log readers, so the pipes are owned here
	// rather than through cmd.StdoutPipe.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("process %s stdout: %w", c.Name, err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("process %s stderr: %w", c.Name, err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	configureCmdSysProcAttr(cmd)

	started := time.Now()
	err = cmd.Start()
	stdoutW.Close()
	stderrW.Close()
	if err != nil {
		stdoutR.Close()
		stderrR.Close()
		return nil, fmt.Errorf("start %s: %w", c.Name, err)
	}

	inst := &processInstance{
		name:        c.Name,
		cmd:         cmd,
		started:     started,
		stopTimeout: r.stopTimeout,
		logs:        make(chan runtime.LogEntry, 64),
		waitDone:    make(chan struct{}),
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go inst.streamLogs(stdoutR, runtime.LogSourceStdout, &wg)
	go inst.streamLogs(stderrR, runtime.LogSourceStderr, &wg)
	go func() {
		wg.Wait()
		close(inst.logs)
	}()

	go func() {
		inst.waitErr = cmd.Wait()
		close(inst.waitDone)
	}()

	return inst, nil
}

func (r *runtimeImpl) Run(ctx context.Context, c runtime.Command, stdio runtime.Stdio) (runtime.Result, error) {
	if len(c.Argv) == 0 {
		return runtime.Result{}, fmt.Errorf("process %s requires a command", c.Name)
	}

	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	cmd.Dir = c.Dir
	cmd.Env = buildEnv(c.Env)
	cmd.Stdin = stdio.Stdin
	cmd.Stdout = stdio.Stdout
	cmd.Stderr = stdio.Stderr
	cmd.Cancel = func() error {
		return interrupt(cmd.Process)
	}
	cmd.WaitDelay = r.waitDelay

	result := runtime.Result{Started: time.Now()}
	if err := cmd.Start(); err != nil {
		return result, fmt.Errorf("start %s: %w", c.Name, err)
	}

	err := cmd.Wait()
	result.Duration = time.Since(result.Started)
	if cmd.ProcessState == nil {
		return result, fmt.Errorf("wait %s: %w", c.Name, err)
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) && !errors.Is(err, ctx.Err()) && !errors.Is(err, exec.ErrWaitDelay) {
		return result, fmt.Errorf("wait %s: %w", c.Name, err)
	}
	result.ExitCode, result.Signal = exitStatus(cmd.ProcessState)
	return result, nil
}

func buildEnv(overrides map[string]string) []string {
	env := os.Environ()
	if len(overrides) == 0 {
		return env
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, overrides[k]))
	}
	return env
}

type processInstance struct {
	name        string
	cmd         *exec.Cmd
	started     time.Time
	stopTimeout time.Duration
	logs        chan runtime.LogEntry

	waitDone chan struct{}
	waitErr  error

	stopOnce sync.Once
	stopErr  error
	// terminations counts graceful termination requests sent to the process.
	terminations atomic.Int32
}

func (p *processInstance) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *processInstance) Started() time.Time {
	return p.started
}

func (p *processInstance) Logs() <-chan runtime.LogEntry {
	return p.logs
}

func (p *processInstance) Done() <-chan struct{} {
	return p.waitDone
}

func (p *processInstance) Stop(ctx context.Context) error {
	p.stopOnce.Do(func() {
		p.stopErr = p.terminate(ctx)
	})
	return p.stopErr
}

func (p *processInstance) streamLogs(r io.ReadCloser, source string, wg *sync.WaitGroup) {
	defer wg.Done()
	defer r.Close()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		entry := runtime.LogEntry{Timestamp: time.Now(), Message: line, Source: source}
		if source == runtime.LogSourceStderr {
			entry.Level = "warn"
		}
		p.logs <- entry
	}
	// Keep draining so the child never blocks on a full pipe.
	_, _ = io.Copy(io.Discard, r)
}

// exited reports whether the process has been reaped.
func (p *processInstance) exited() bool {
	select {
	case <-p.waitDone:
		return true
	default:
		return false
	}
}
