package cmd

import (
	"fmt"

	"conductor/internal/app"

	"github.com/spf13/cobra"
)

func newSetupCmd() *cobra.Command {
	var parallel int

	cmd := &cobra.Command{
		Use:     "setup",
		Aliases: []string{"soundcheck", "clone"},
		Short:   "Clone repositories and run init commands",
		Long: `Prepares every selected component: clones its repository when it has
one and the target directory does not hold a checkout yet, then runs its
init commands in order.

Components are set up concurrently. A failure only stops the component it
belongs to; the command exits non-zero if any component failed.
Clone credentials for https remotes are read from GIT_USER and GIT_PAT.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if parallel < 0 {
				return fmt.Errorf("--parallel must not be negative")
			}
			return runAppWith(cmd, app.ModeSetup, "", func(cfg *app.Config) {
				cfg.Parallel = parallel
			})
		},
	}

	cmd.Flags().IntVar(&parallel, "parallel", 0, "maximum number of components set up at once (0 means no limit)")
	return cmd
}
