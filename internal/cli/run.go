package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Paintersrp/rune2e/internal/engine"
	"github.com/Paintersrp/rune2e/internal/metrics"
	"github.com/Paintersrp/rune2e/internal/runtime/process"
)

func runE2E(cmd *cobra.Command, ctx *context) error {
	cfg, err := ctx.loadConfig()
	if err != nil {
		return err
	}

	log := zap.S().Named("cli")
	orch := engine.New(ctx.newRuntime(cfg), cfg,
		engine.WithLookupEnv(ctx.lookupEnv),
		engine.WithStdio(cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr()),
		engine.WithLogger(zap.S().Named("engine")),
		engine.WithLivenessCheck(process.Alive),
	)

	outcome, runErr := orch.Run(cmd.Context())
	log.Infow("run finished",
		"exitCode", outcome.ExitCode,
		"environments", outcome.Environments.String(),
		"duration", outcome.Duration,
		"timedOut", outcome.TimedOut,
	)

	if path := cfg.Metrics.Textfile; path != "" {
		if err := metrics.WriteTextfile(path); err != nil {
			log.Warnw("failed to write metrics textfile", "path", path, "error", err)
		}
	}

	if runErr != nil {
		return &exitError{code: 1, err: runErr}
	}
	if outcome.ExitCode != 0 {
		return &exitError{code: outcome.ExitCode}
	}
	return nil
}
