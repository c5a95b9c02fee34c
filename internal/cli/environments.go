package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/rune2e/internal/environment"
)

func newEnvironmentsCmd(ctx *context) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "environments",
		Short: "Print the browser environments the runner would receive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig()
			if err != nil {
				return err
			}
			selector := environment.FromConfig(cfg.Environments)
			envs := selector.Select(ctx.lookupEnv)
			if !verbose {
				fmt.Fprintln(cmd.OutOrStdout(), envs.String())
				return nil
			}

			mode := "default"
			if selector.InCI(ctx.lookupEnv) {
				mode = "ci"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s, indicator %s)\n", envs.String(), mode, selector.Variable)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Explain which set was chosen")
	return cmd
}
