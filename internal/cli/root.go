package cli

import (
	stdcontext "context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Paintersrp/rune2e/internal/config"
	"github.com/Paintersrp/rune2e/internal/logging"
	"github.com/Paintersrp/rune2e/internal/runtime"
	"github.com/Paintersrp/rune2e/internal/runtime/process"
)

// Environment variables consulted for flag defaults.
const (
	EnvConfig    = "RUNE2E_CONFIG"
	EnvLogLevel  = "RUNE2E_LOG_LEVEL"
	EnvLogFormat = "RUNE2E_LOG_FORMAT"
)

// defaultLogLevel keeps a passing run quiet so the runner's own output is all
// that reaches the terminal.
const defaultLogLevel = "warn"

func newRootCommand() (*cobra.Command, *context) {
	ctx := &context{
		lookupEnv:  os.LookupEnv,
		newRuntime: defaultRuntime,
	}

	root := &cobra.Command{
		Use:   "rune2e",
		Short: "Run the end-to-end suite against a freshly started application server",
		Long: "rune2e starts the application server in the background, runs the browser\n" +
			"test runner in the foreground and stops the server once the runner exits.\n" +
			"The runner's exit status becomes rune2e's exit status.",
		Args: cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.installLogger(cmd.ErrOrStderr())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runE2E(cmd, ctx)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&ctx.configFile, "config", "c", envOr(EnvConfig, ""), "Path to the rune2e configuration file (default "+config.DefaultFile+" when present)")
	flags.StringVar(&ctx.logLevel, "log-level", envOr(EnvLogLevel, defaultLogLevel), "Log level (debug, info, warn, error)")
	flags.StringVar(&ctx.logFormat, "log-format", envOr(EnvLogFormat, logging.FormatAuto), "Log format (auto, console, json)")
	flags.StringVar(&ctx.metricsTextfile, "metrics-textfile", "", "Write Prometheus metrics to this file after the run")

	root.AddCommand(newEnvironmentsCmd(ctx))
	root.AddCommand(newConfigCmd(ctx))

	root.SilenceUsage = true
	root.SilenceErrors = true

	return root, ctx
}

// Execute runs the CLI entrypoint and returns the process exit status.
func Execute() int {
	ctx, stop := interruptContext(stdcontext.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, cliCtx := newRootCommand()
	err := root.ExecuteContext(ctx)
	cliCtx.closeLogger()
	return exitStatus(err, os.Stderr)
}

// interruptContext is cancelled by the first of sigs. Signal handling is
// released at that point, so a second Ctrl-C terminates rune2e immediately
// instead of waiting for the server to shut down.
func interruptContext(parent stdcontext.Context, sigs ...os.Signal) (stdcontext.Context, stdcontext.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, sigs...)
	go func() {
		<-ctx.Done()
		stop()
	}()
	return ctx, stop
}

type context struct {
	configFile      string
	logLevel        string
	logFormat       string
	metricsTextfile string

	lookupEnv  func(string) (string, bool)
	newRuntime func(cfg *config.Config) runtime.Runtime

	restoreLogger func()
}

func defaultRuntime(cfg *config.Config) runtime.Runtime {
	return process.New(process.WithStopTimeout(cfg.Server.StopTimeout.Duration))
}

func (c *context) installLogger(out io.Writer) error {
	restore, err := logging.Install(logging.Options{
		Level:  c.logLevel,
		Format: c.logFormat,
		Output: out,
	})
	if err != nil {
		return err
	}
	c.closeLogger()
	c.restoreLogger = restore
	return nil
}

func (c *context) closeLogger() {
	if c.restoreLogger != nil {
		c.restoreLogger()
		c.restoreLogger = nil
	}
}

// loadConfig resolves the configuration file and applies environment and flag
// overrides. A file named through --config or RUNE2E_CONFIG must exist; the
// default file is optional.
func (c *context) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if c.configFile != "" {
		cfg, err = config.Load(c.configFile)
	} else {
		cfg, err = config.LoadOptional(config.DefaultFile)
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnvOverrides(c.lookupEnv); err != nil {
		return nil, err
	}
	if c.metricsTextfile != "" {
		cfg.Metrics.Textfile = c.metricsTextfile
	}
	zap.S().Named("cli").Debugw("configuration loaded", "source", sourceName(cfg))
	return cfg, nil
}

func sourceName(cfg *config.Config) string {
	if cfg.Source == "" {
		return "built-in defaults"
	}
	return cfg.Source
}

func envOr(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

// exitError carries a specific process exit status. A nil err means the
// status speaks for itself and nothing is printed.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func exitStatus(err error, stderr io.Writer) int {
	if err == nil {
		return 0
	}
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		if exitErr.err != nil {
			fmt.Fprintln(stderr, exitErr.err)
		}
		if exitErr.code == 0 {
			return 1
		}
		return exitErr.code
	}
	fmt.Fprintln(stderr, err)
	return 1
}
