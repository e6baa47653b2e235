package cmd

import (
	"conductor/internal/app"

	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "run [component]",
		Aliases: []string{"play", "start"},
		Short:   "Run the project's components",
		Long: `Starts every selected component and streams their combined output.

With a component name only that component runs and --tags is ignored.
Otherwise all components run, or those carrying one of --tags.
When one component exits the others are stopped; Ctrl+C stops them all.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return runApp(cmd, app.ModeRun, name)
		},
	}
}
