package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Paintersrp/rune2e/internal/cliutil"
	"github.com/Paintersrp/rune2e/internal/config"
	"github.com/Paintersrp/rune2e/internal/environment"
	"github.com/Paintersrp/rune2e/internal/logmux"
	"github.com/Paintersrp/rune2e/internal/metrics"
	"github.com/Paintersrp/rune2e/internal/probe"
	"github.com/Paintersrp/rune2e/internal/runtime"
)

const (
	// stopGrace is added on top of the server stop timeout so the forced
	// kill still has time to be reaped.
	stopGrace = 5 * time.Second

	logFlushTimeout = 2 * time.Second
	serverLogBuffer = 256
)

// Orchestrator launches the application server in the background, runs the
// test runner against it in the foreground and always stops the server
// afterward.
type Orchestrator struct {
	rt  runtime.Runtime
	cfg *config.Config

	lookupEnv func(string) (string, bool)
	stdio     runtime.Stdio
	events    chan<- Event
	log       *zap.SugaredLogger
	now       func() time.Time
	alive     func(pid int) bool
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithLookupEnv overrides how the CI indicator variable is read.
func WithLookupEnv(lookup func(string) (string, bool)) Option {
	return func(o *Orchestrator) {
		if lookup != nil {
			o.lookupEnv = lookup
		}
	}
}

// WithStdio sets the streams handed to the runner.
func WithStdio(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(o *Orchestrator) {
		o.stdio = runtime.Stdio{Stdin: stdin, Stdout: stdout, Stderr: stderr}
	}
}

// WithEvents publishes lifecycle events on ch. The caller must keep ch
// drained for the duration of Run.
func WithEvents(ch chan<- Event) Option {
	return func(o *Orchestrator) {
		o.events = ch
	}
}

// WithLogger sets the logger used for lifecycle and server output.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

// WithClock overrides the time source used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLivenessCheck installs a check used after stopping the server to warn
// about processes that survived.
func WithLivenessCheck(alive func(pid int) bool) Option {
	return func(o *Orchestrator) {
		o.alive = alive
	}
}

// New constructs an orchestrator for cfg backed by rt.
func New(rt runtime.Runtime, cfg *config.Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		rt:        rt,
		cfg:       cfg,
		lookupEnv: os.LookupEnv,
		stdio:     runtime.Stdio{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr},
		log:       zap.S().Named("engine"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Outcome summarises a completed run.
type Outcome struct {
	Environments environment.Set
	// ExitCode is the runner's exit status; 1 when Run returns an error.
	ExitCode int
	Signal   string
	TimedOut bool

	ServerStarted   bool
	ServerStops     int
	ServerStartedAt time.Time
	RunnerStartedAt time.Time
	Duration        time.Duration
}

// Run executes one end-to-end test run. A non-nil error is either a
// *ReadinessError or a *RunnerError; in both cases the server, if it was
// started, has already been asked to stop.
func (o *Orchestrator) Run(ctx context.Context) (outcome Outcome, err error) {
	if o.cfg == nil {
		return Outcome{ExitCode: 1}, errors.New("engine: configuration is required")
	}
	started := o.now()
	defer func() {
		outcome.Duration = o.now().Sub(started)
		if err != nil {
			outcome.ExitCode = 1
		}
		metrics.ObserveRun(outcome.ExitCode, outcome.Duration)
	}()

	selector := environment.FromConfig(o.cfg.Environments)
	envs := selector.Select(o.lookupEnv)
	outcome.Environments = envs
	metrics.SetEnvironments(envs)
	o.log.Infow("selected environments",
		"environments", envs.String(),
		"ciVariable", selector.Variable,
		"ci", selector.InCI(o.lookupEnv),
	)

	server, startErr := o.startServer(ctx)
	if startErr == nil {
		outcome.ServerStarted = true
		outcome.ServerStartedAt = server.Started()
		flushLogs := o.forwardServerLogs(server)
		defer func() {
			outcome.ServerStops++
			o.stopServer(ctx, server)
			flushLogs()
		}()

		if spec := o.cfg.Server.Readiness; spec != nil {
			if err := o.waitReady(ctx, server, spec); err != nil {
				return outcome, &ReadinessError{Err: err}
			}
		}
	}

	result, runErr := o.runRunner(ctx, envs)
	outcome.RunnerStartedAt = result.Started
	if runErr != nil {
		o.emit(ProcessRunner, EventTypeError, "error", "runner failed", ReasonRunnerError, runErr)
		return outcome, &RunnerError{Err: runErr}
	}
	outcome.ExitCode = result.ExitCode
	outcome.Signal = result.Signal
	outcome.TimedOut = result.timedOut

	reason := ReasonRunnerExit
	if outcome.TimedOut {
		reason = ReasonRunnerTimeout
	}
	o.emit(ProcessRunner, EventTypeExited, "", fmt.Sprintf("runner exited with code %d", result.ExitCode), reason, nil)
	return outcome, nil
}

func (o *Orchestrator) startServer(ctx context.Context) (runtime.Instance, error) {
	cmd := runtime.Command{
		Name: ProcessServer,
		Argv: append([]string(nil), o.cfg.Server.Command...),
		Dir:  o.cfg.Server.Workdir,
		Env:  o.cfg.Server.Env,
	}
	o.emit(ProcessServer, EventTypeStarting, "", "starting server: "+describe(cmd.Argv), ReasonServerStart, nil)
	if len(cmd.Env) > 0 {
		o.log.Debugw("server environment", "env", cliutil.RedactEnv(cmd.Env))
	}

	server, err := o.rt.Start(ctx, cmd)
	if err != nil {
		// The run's result is defined by the runner alone; a runner
		// pointed at a missing server fails on its own.
		o.emit(ProcessServer, EventTypeError, "warn", "server failed to start", ReasonStartFailure, err)
		return nil, err
	}
	o.emit(ProcessServer, EventTypeStarted, "", fmt.Sprintf("server started with pid %d", server.PID()), ReasonServerStart, nil)
	return server, nil
}

func (o *Orchestrator) forwardServerLogs(server runtime.Instance) (flush func()) {
	logs := server.Logs()
	if logs == nil {
		return func() {}
	}

	var sink *logmux.FileSink
	if path := o.cfg.Server.LogFile; path != "" {
		s, err := logmux.OpenFile(path)
		if err != nil {
			o.log.Warnw("server log file unavailable", "path", path, "error", err)
		} else {
			sink = s
		}
	}

	mux := logmux.New(serverLogBuffer)
	mux.Add(logs)
	go mux.Close()

	serverLog := o.log.Named(ProcessServer)
	done := make(chan struct{})
	go func() {
		defer close(done)
		var writeFailed bool
		for entry := range mux.Output() {
			if entry.Source == runtime.LogSourceSystem {
				serverLog.Warnw("server output dropped", "detail", entry.Message)
			} else {
				serverLog.Debugw(entry.Message, "source", entry.Source)
			}
			if sink != nil && !writeFailed {
				if err := sink.Write(entry); err != nil {
					writeFailed = true
					serverLog.Warnw("failed to write server log file", "path", o.cfg.Server.LogFile, "error", err)
				}
			}
		}
	}()

	return func() {
		timer := time.NewTimer(logFlushTimeout)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			o.log.Warnw("server output still open after stop", "pid", server.PID())
		}
		if sink != nil {
			if err := sink.Close(); err != nil {
				o.log.Warnw("failed to close server log file", "path", o.cfg.Server.LogFile, "error", err)
			}
		}
	}
}

func (o *Orchestrator) waitReady(ctx context.Context, server runtime.Instance, spec *config.ReadinessSpec) error {
	prober, err := probe.New(spec)
	if err != nil {
		return err
	}

	begin := o.now()
	attempts, err := probe.Wait(ctx, prober, probe.WaitOptions{
		Interval:       spec.Interval.Duration,
		Timeout:        spec.Timeout.Duration,
		AttemptTimeout: spec.AttemptTimeout.Duration,
		Exited:         server.Done(),
		Notify: func(attempt int, err error) {
			o.log.Debugw("server not ready yet", "attempt", attempt, "error", err)
		},
	})
	if err != nil {
		o.emit(ProcessServer, EventTypeError, "error", "server readiness wait failed", ReasonProbeFailed, err)
		return err
	}
	elapsed := o.now().Sub(begin)
	metrics.ObserveServerReady(elapsed)
	o.emit(ProcessServer, EventTypeReady, "", fmt.Sprintf("server ready after %d attempt(s)", attempts), ReasonProbeReady, nil)
	return nil
}

type runnerResult struct {
	runtime.Result
	timedOut bool
}

func (o *Orchestrator) runRunner(ctx context.Context, envs environment.Set) (runnerResult, error) {
	argv := append([]string(nil), o.cfg.Runner.Command...)
	if flag := o.cfg.Runner.EnvFlag; flag != "" {
		argv = append(argv, flag)
	}
	argv = append(argv, envs.String())

	cmd := runtime.Command{
		Name: ProcessRunner,
		Argv: argv,
		Dir:  o.cfg.Runner.Workdir,
		Env:  o.cfg.Runner.Env,
	}

	runCtx := ctx
	if timeout := o.cfg.Runner.Timeout.Duration; timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	o.emit(ProcessRunner, EventTypeStarting, "", "starting runner: "+describe(argv), ReasonRunnerStart, nil)
	res, err := o.rt.Run(runCtx, cmd, o.stdio)
	out := runnerResult{Result: res}
	if runCtx != ctx && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		out.timedOut = true
	}
	return out, err
}

func (o *Orchestrator) stopServer(ctx context.Context, server runtime.Instance) {
	stopTimeout := o.cfg.Server.StopTimeout.Duration
	if stopTimeout <= 0 {
		stopTimeout = config.DefaultServerStopTimeout
	}
	timeout := stopTimeout + stopGrace
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	o.emit(ProcessServer, EventTypeStopping, "", "stopping server", ReasonCleanup, nil)
	metrics.IncServerStops()
	if err := server.Stop(stopCtx); err != nil {
		o.emit(ProcessServer, EventTypeError, "warn", "server stop failed", ReasonStopFailed, err)
		return
	}
	if o.alive != nil && o.alive(server.PID()) {
		o.emit(ProcessServer, EventTypeError, "warn", fmt.Sprintf("server pid %d still present after stop", server.PID()), ReasonServerLingered, nil)
		return
	}
	o.emit(ProcessServer, EventTypeStopped, "", "server stopped", ReasonCleanup, nil)
}

func describe(argv []string) string {
	return cliutil.RedactSecrets(strings.Join(argv, " "))
}
