package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"conductor/internal/app"
	"conductor/internal/color"
	"conductor/internal/config"
	"conductor/internal/selector"

	"github.com/spf13/cobra"
)

// globalFlags holds the persistent flags shared by every command.
type globalFlags struct {
	configPath  string
	tags        string
	colorMode   string
	align       bool
	gracePeriod time.Duration
	stopOn      string
	logLevel    string
	debug       bool
}

var flags globalFlags

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "conductor",
	Short: "Run all components of a local development stack at once",
	Long: `conductor launches the components of a multi-service project, each with
its own command and environment, and merges their output into a single
stream where every line is tagged with the component it came from.

Without a subcommand every component (or every component matching --tags)
is started. The stack stops as soon as one component exits.`,
	// SilenceUsage is set to true to prevent printing usage message on errors
	// handled by us (e.g. unknown components, failed processes)
	SilenceUsage: true,
	// Errors are printed by Execute so that propagated exit codes stay quiet.
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApp(cmd, app.ModeRun, "")
	},
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	rootCmd.Version = v // Set cobra's version field as well
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	// Set up version template
	rootCmd.SetVersionTemplate(`{{printf "conductor version %s\n" .Version}}`)

	registerComponentCommands(rootCmd, os.Args[1:])

	err := rootCmd.ExecuteContext(context.Background())
	if err != nil {
		if msg := errorMessage(err); msg != "" {
			fmt.Fprintln(os.Stderr, "Error:", msg)
		}
		os.Exit(app.ExitCode(err))
	}
}

// errorMessage returns what to print for err. Propagated child exit codes
// have already been reported on the stream and print nothing.
func errorMessage(err error) string {
	var exitErr *app.ExitError
	if errors.As(err, &exitErr) && exitErr.Err == nil {
		return ""
	}
	return err.Error()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", config.DefaultFileName, "configuration file, searched from the working directory upward")
	pf.StringVarP(&flags.tags, "tags", "t", "", "comma separated tags selecting the components")
	pf.StringVar(&flags.colorMode, "color", string(color.ModeAuto), "colorize output: auto, always or never")
	pf.BoolVar(&flags.align, "align", false, "pad component names to the same width")
	pf.DurationVar(&flags.gracePeriod, "grace-period", 0, "time between SIGTERM and SIGKILL when stopping (default from config, else 5s)")
	pf.StringVar(&flags.stopOn, "stop-on", "", "which exits stop the stack: any or failure (default from config, else any)")
	pf.StringVar(&flags.logLevel, "log-level", "", "diagnostic log level on stderr: debug, info, warn or error (default warn)")
	pf.BoolVar(&flags.debug, "debug", false, "write debug logs to stderr, same as --log-level=debug")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newSetupCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
}

// newAppConfig turns the global flags into the application configuration.
func newAppConfig(cmd *cobra.Command, mode app.Mode, component string) (*app.Config, error) {
	colorMode, err := color.ParseMode(flags.colorMode)
	if err != nil {
		return nil, err
	}

	var stopOn config.StopPolicy
	if flags.stopOn != "" {
		if stopOn, err = config.ParseStopPolicy(flags.stopOn); err != nil {
			return nil, err
		}
	}
	if flags.gracePeriod < 0 {
		return nil, fmt.Errorf("--grace-period must not be negative")
	}

	cfg := app.NewConfig(mode)
	cfg.ConfigPath = flags.configPath
	cfg.Component = component
	cfg.Tags = selector.ParseTags(flags.tags)
	cfg.ColorMode = colorMode
	cfg.Align = flags.align
	cfg.GracePeriod = flags.gracePeriod
	cfg.StopOn = stopOn
	cfg.LogLevel = flags.logLevel
	cfg.Debug = flags.debug
	cfg.Stdout = cmd.OutOrStdout()
	cfg.Stderr = cmd.ErrOrStderr()
	return cfg, nil
}

func runApp(cmd *cobra.Command, mode app.Mode, component string) error {
	return runAppWith(cmd, mode, component, nil)
}

func runAppWith(cmd *cobra.Command, mode app.Mode, component string, mutate func(*app.Config)) error {
	cfg, err := newAppConfig(cmd, mode, component)
	if err != nil {
		return err
	}
	if mutate != nil {
		mutate(cfg)
	}

	a, err := app.NewApplication(cfg)
	if err != nil {
		return err
	}
	return a.Run(cmd.Context())
}
