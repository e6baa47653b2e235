package cmd

import (
	"strings"

	"conductor/internal/app"
	"conductor/internal/config"

	"github.com/spf13/cobra"
)

const componentGroupID = "components"

// registerComponentCommands adds a "<name>" shortcut for "run <name>" for
// every component of the project the arguments point at. A missing or
// broken configuration registers nothing; the chosen command reports it.
func registerComponentCommands(root *cobra.Command, args []string) {
	project, err := config.Discover(configFlagValue(args))
	if err != nil {
		return
	}

	if !root.ContainsGroup(componentGroupID) {
		root.AddGroup(&cobra.Group{ID: componentGroupID, Title: "Components:"})
	}
	for _, c := range project.Components {
		if isReserved(root, c.Name) {
			continue
		}
		root.AddCommand(newComponentCmd(c))
	}
}

func newComponentCmd(c config.Component) *cobra.Command {
	short := "Run only " + c.Name
	if !c.Start.IsZero() {
		short += " (" + c.Start.String() + ")"
	}
	return &cobra.Command{
		Use:     c.Name,
		Short:   short,
		GroupID: componentGroupID,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(cmd, app.ModeRun, c.Name)
		},
	}
}

// isReserved reports whether name collides with a built-in command or alias.
func isReserved(root *cobra.Command, name string) bool {
	if name == "help" || name == "completion" || strings.HasPrefix(name, "-") {
		return true
	}
	for _, sub := range root.Commands() {
		if sub.Name() == name || sub.HasAlias(name) {
			return true
		}
	}
	return false
}

// configFlagValue extracts --config/-c from raw arguments before cobra
// parses them, so the right document is used for registration.
func configFlagValue(args []string) string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--":
			return config.DefaultFileName
		case arg == "-c" || arg == "--config":
			if i+1 < len(args) {
				return args[i+1]
			}
		case strings.HasPrefix(arg, "--config="):
			return strings.TrimPrefix(arg, "--config=")
		case strings.HasPrefix(arg, "-c="):
			return strings.TrimPrefix(arg, "-c=")
		case strings.HasPrefix(arg, "-c") && len(arg) > 2 && !strings.HasPrefix(arg, "--"):
			return arg[2:]
		}
	}
	return config.DefaultFileName
}
